package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is an append-only ledger record of sold stock.
type Sale struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	SoldBy      int64           `json:"soldBy"`
	OrderID     *int64          `json:"orderId"`
	CreatedAt   time.Time       `json:"createdAt"`

	// Joined fields (not always populated).
	ProductName string `json:"productName,omitempty"`
	SoldByName  string `json:"soldByName,omitempty"`
}
