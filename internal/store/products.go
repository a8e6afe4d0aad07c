package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/trgovina/internal/model"
)

const productColumns = `id, name, category, price, quantity, image_mime, created_at, updated_at, deleted_at`

func scanProduct(row interface{ Scan(...any) error }, p *model.Product) error {
	var imageMime sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Quantity, &imageMime,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
		return err
	}
	p.ImageMime = imageMime.String
	if p.ImageMime != "" {
		p.Image = model.ProductImagePath(p.ID)
	}
	return nil
}

// CreateProduct creates a new product.
func CreateProduct(ctx context.Context, db *sql.DB, name, category string, price decimal.Decimal, quantity int) (*model.Product, error) {
	if price.IsNegative() || quantity < 0 {
		return nil, fmt.Errorf("price and quantity must not be negative: %w", ErrInvalidArgument)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO products (name, category, price, quantity) VALUES (?, ?, ?, ?)`,
		name, category, price.String(), quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting product id: %w", err)
	}

	return GetProduct(ctx, db, id)
}

// GetProduct returns a product by ID, including soft-deleted ones.
func GetProduct(ctx context.Context, db DBTX, id int64) (*model.Product, error) {
	p := &model.Product{}
	err := scanProduct(db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id,
	), p)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return p, nil
}

// ListProducts returns all non-deleted products, optionally filtered by category.
func ListProducts(ctx context.Context, db *sql.DB, category string) ([]model.Product, error) {
	var rows *sql.Rows
	var err error

	if category != "" {
		rows, err = db.QueryContext(ctx,
			`SELECT `+productColumns+` FROM products
			 WHERE deleted_at IS NULL AND category = ? ORDER BY name`, category,
		)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT `+productColumns+` FROM products
			 WHERE deleted_at IS NULL ORDER BY name`,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateProduct updates a product's metadata, price and stock.
func UpdateProduct(ctx context.Context, db *sql.DB, id int64, name, category string, price decimal.Decimal, quantity int) error {
	if price.IsNegative() || quantity < 0 {
		return fmt.Errorf("price and quantity must not be negative: %w", ErrInvalidArgument)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE products SET name = ?, category = ?, price = ?, quantity = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		name, category, price.String(), quantity, id,
	)
	if err != nil {
		return fmt.Errorf("updating product: %w", err)
	}
	return requireAffected(result, "product")
}

// DeleteProduct soft-deletes a product.
func DeleteProduct(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	return requireAffected(result, "product")
}

// SetProductImage sets a product's image data.
func SetProductImage(ctx context.Context, db *sql.DB, id int64, image []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting product image: %w", err)
	}
	return requireAffected(result, "product")
}

// GetProductImage returns a product's image data and MIME type.
func GetProductImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM products WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting product image: %w", err)
	}
	return image, mime.String, nil
}

// AdjustStock adds delta (which may be negative) to a product's quantity.
// The resulting quantity must not drop below zero.
func AdjustStock(ctx context.Context, db *sql.DB, id int64, delta int) (*model.Product, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET quantity = quantity + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL AND quantity + ? >= 0`,
		delta, id, delta,
	)
	if err != nil {
		return nil, fmt.Errorf("adjusting stock: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("adjusting stock: %w", err)
	}

	p, err := GetProduct(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Deleted() {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: have %d, adjusting by %d: %w", p.Name, p.Quantity, delta, ErrInsufficientStock)
	}
	return p, nil
}

// DecrementStock takes quantity units of a product out of stock. Unless
// allowNegative is set, the decrement only applies when enough stock is
// available; otherwise it fails with ErrInsufficientStock.
func DecrementStock(ctx context.Context, db DBTX, id int64, quantity int, allowNegative bool) error {
	query := `UPDATE products SET quantity = quantity - ?, updated_at = CURRENT_TIMESTAMP
	          WHERE id = ?`
	args := []any{quantity, id}
	if !allowNegative {
		query += ` AND quantity >= ?`
		args = append(args, quantity)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("decrementing stock: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrementing stock: %w", err)
	}
	if n > 0 {
		return nil
	}

	p, err := GetProduct(ctx, db, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return fmt.Errorf("%s: have %d, need %d: %w", p.Name, p.Quantity, quantity, ErrInsufficientStock)
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
