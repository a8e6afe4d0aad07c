package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry with a price and a stock quantity.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
	ImageMime string          `json:"-"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	DeletedAt *time.Time      `json:"deletedAt,omitempty"`
}

// ProductImagePath returns the API path a product's image is served from.
func ProductImagePath(id int64) string {
	return fmt.Sprintf("/api/products/%d/image", id)
}

// Deleted reports whether the product has been soft-deleted.
func (p *Product) Deleted() bool {
	return p.DeletedAt != nil
}
