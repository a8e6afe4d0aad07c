package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/trgovina/internal/model"
)

// PlaceOrder creates a pending order for a customer. The total is computed
// from the current product prices. Stock is not checked or reserved.
func PlaceOrder(ctx context.Context, db *sql.DB, customerID int64, lines []model.OrderLine) (*model.Order, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("order has no items: %w", ErrInvalidArgument)
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be positive: %w", ErrInvalidArgument)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	total := decimal.Zero
	for _, l := range lines {
		p, err := GetProduct(ctx, tx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Deleted() {
			return nil, fmt.Errorf("product %d: %w", l.ProductID, ErrNotFound)
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO orders (total, status, ordered_by) VALUES (?, ?, ?)`,
		total.String(), model.OrderPending, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting order id: %w", err)
	}

	for i, l := range lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, product_id, quantity) VALUES (?, ?, ?, ?)`,
			orderID, i, l.ProductID, l.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("adding order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing order: %w", err)
	}

	return GetOrder(ctx, db, orderID)
}

const orderColumns = `o.id, o.total, o.status, o.ordered_by, o.created_at, o.updated_at, u.name AS customer_name`

func scanOrder(row interface{ Scan(...any) error }, o *model.Order) error {
	return row.Scan(&o.ID, &o.Total, &o.Status, &o.OrderedBy, &o.CreatedAt, &o.UpdatedAt, &o.CustomerName)
}

// GetOrder returns an order by ID with its items and their products populated.
func GetOrder(ctx context.Context, db DBTX, id int64) (*model.Order, error) {
	o := &model.Order{}
	err := scanOrder(db.QueryRowContext(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 JOIN users u ON u.id = o.ordered_by
		 WHERE o.id = ?`, id,
	), o)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	if o.Items, err = getOrderItems(ctx, db, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func getOrderItems(ctx context.Context, db DBTX, orderID int64) ([]model.OrderItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT oi.quantity, p.id, p.name, p.category, p.price, p.quantity, p.image_mime,
		        p.created_at, p.updated_at, p.deleted_at
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = ?
		 ORDER BY oi.position`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting order items: %w", err)
	}
	defer rows.Close()

	items := []model.OrderItem{}
	for rows.Next() {
		var it model.OrderItem
		var p model.Product
		var imageMime sql.NullString
		if err := rows.Scan(&it.Quantity, &p.ID, &p.Name, &p.Category, &p.Price, &p.Quantity, &imageMime,
			&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		p.ImageMime = imageMime.String
		if p.ImageMime != "" {
			p.Image = model.ProductImagePath(p.ID)
		}
		it.ProductID = p.ID
		it.Product = &p
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListOrders returns all orders, newest first.
func ListOrders(ctx context.Context, db *sql.DB) ([]model.Order, error) {
	return listOrders(ctx, db, `SELECT `+orderColumns+`
		FROM orders o
		JOIN users u ON u.id = o.ordered_by
		ORDER BY o.created_at DESC, o.id DESC`)
}

// ListOrdersByCustomer returns a customer's orders, newest first.
func ListOrdersByCustomer(ctx context.Context, db *sql.DB, customerID int64) ([]model.Order, error) {
	return listOrders(ctx, db, `SELECT `+orderColumns+`
		FROM orders o
		JOIN users u ON u.id = o.ordered_by
		WHERE o.ordered_by = ?
		ORDER BY o.created_at DESC, o.id DESC`, customerID)
}

func listOrders(ctx context.Context, db *sql.DB, query string, args ...any) ([]model.Order, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := scanOrder(rows, &o); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	// Items are loaded after the cursor is released; the pool holds one connection.
	rows.Close()

	for i := range orders {
		if orders[i].Items, err = getOrderItems(ctx, db, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// UpdateOrderStatusIf moves an order from one status to another. It reports
// false when the order is not currently in the from status.
func UpdateOrderStatusIf(ctx context.Context, db DBTX, id int64, from, to model.OrderStatus) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		to, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("updating order status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating order status: %w", err)
	}
	return n > 0, nil
}

// GetOrderStats counts all orders and pending orders.
func GetOrderStats(ctx context.Context, db *sql.DB) (*model.OrderStats, error) {
	s := &model.OrderStats{}
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(status = ?), 0) FROM orders`, model.OrderPending,
	).Scan(&s.TotalOrders, &s.Pending)
	if err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}
	return s, nil
}
