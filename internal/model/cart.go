package model

import "time"

// Cart is a user's server-side shopping cart.
type Cart struct {
	UserID    int64      `json:"userId"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CartItem is a product and quantity in a cart.
type CartItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Cart event types.
const (
	CartUpdated    = "updated"
	CartCleared    = "cleared"
	CartCheckedOut = "checked_out"
)

// CartEvent is published to a user's subscribers whenever their cart changes.
type CartEvent struct {
	Type    string `json:"type"`
	Cart    Cart   `json:"cart"`
	OrderID int64  `json:"orderId,omitempty"`
}

// Lines converts cart items to order lines.
func (c *Cart) Lines() []OrderLine {
	lines := make([]OrderLine, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}
