package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/trgovina/internal/model"
)

// CreateSale appends a sale record. orderID is nil for direct sales.
func CreateSale(ctx context.Context, db DBTX, productID int64, quantity int, totalAmount decimal.Decimal, soldBy int64, orderID *int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive: %w", ErrInvalidArgument)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO sales (product_id, quantity, total_amount, sold_by, order_id) VALUES (?, ?, ?, ?, ?)`,
		productID, quantity, totalAmount.String(), soldBy, orderID,
	)
	if err != nil {
		return 0, fmt.Errorf("recording sale: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting sale id: %w", err)
	}
	return id, nil
}

// RecordSale sells stock directly, outside of any order. The stock check,
// decrement and sale record happen in a single transaction.
func RecordSale(ctx context.Context, db *sql.DB, productID int64, quantity int, soldBy int64) (*model.Sale, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", ErrInvalidArgument)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := GetProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Deleted() {
		return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}

	if err := DecrementStock(ctx, tx, productID, quantity, false); err != nil {
		return nil, err
	}

	total := p.Price.Mul(decimal.NewFromInt(int64(quantity)))
	saleID, err := CreateSale(ctx, tx, productID, quantity, total, soldBy, nil)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing sale: %w", err)
	}

	return GetSale(ctx, db, saleID)
}

const saleColumns = `s.id, s.product_id, s.quantity, s.total_amount, s.sold_by, s.order_id, s.created_at,
	p.name AS product_name, u.name AS sold_by_name`

const saleJoins = `FROM sales s
	JOIN products p ON p.id = s.product_id
	JOIN users u ON u.id = s.sold_by`

// GetSale returns a sale by ID.
func GetSale(ctx context.Context, db DBTX, id int64) (*model.Sale, error) {
	s := &model.Sale{}
	err := scanSale(db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` `+saleJoins+` WHERE s.id = ?`, id,
	), s)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting sale: %w", err)
	}
	return s, nil
}

// ListSales returns all sales, newest first.
func ListSales(ctx context.Context, db *sql.DB) ([]model.Sale, error) {
	return listSales(ctx, db, `SELECT `+saleColumns+` `+saleJoins+` ORDER BY s.created_at DESC, s.id DESC`)
}

// ListSalesByOrder returns the sales recorded when an order was fulfilled.
func ListSalesByOrder(ctx context.Context, db DBTX, orderID int64) ([]model.Sale, error) {
	return listSales(ctx, db, `SELECT `+saleColumns+` `+saleJoins+` WHERE s.order_id = ? ORDER BY s.id`, orderID)
}

func listSales(ctx context.Context, db DBTX, query string, args ...any) ([]model.Sale, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	defer rows.Close()

	var sales []model.Sale
	for rows.Next() {
		var s model.Sale
		if err := scanSale(rows, &s); err != nil {
			return nil, fmt.Errorf("scanning sale: %w", err)
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

func scanSale(row interface{ Scan(...any) error }, s *model.Sale) error {
	var orderID sql.NullInt64
	if err := row.Scan(&s.ID, &s.ProductID, &s.Quantity, &s.TotalAmount, &s.SoldBy, &orderID, &s.CreatedAt,
		&s.ProductName, &s.SoldByName); err != nil {
		return err
	}
	if orderID.Valid {
		s.OrderID = &orderID.Int64
	}
	return nil
}

// Revenue sums the amounts of all recorded sales.
func Revenue(ctx context.Context, db *sql.DB) (decimal.Decimal, error) {
	rows, err := db.QueryContext(ctx, `SELECT total_amount FROM sales`)
	if err != nil {
		return decimal.Zero, fmt.Errorf("computing revenue: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("scanning sale amount: %w", err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}
