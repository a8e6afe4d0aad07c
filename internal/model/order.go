package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// Order statuses. The values are part of the wire format.
const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in progress"
	OrderDelivered  OrderStatus = "delivered"
)

// ParseOrderStatus maps a wire label to an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderPending, OrderInProgress, OrderDelivered:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// TransitionRule describes what happens when an order moves between two statuses.
type TransitionRule struct {
	Allowed bool
	// Fulfills means the transition decrements stock and records sales.
	Fulfills bool
}

var transitions = map[[2]OrderStatus]TransitionRule{
	{OrderPending, OrderInProgress}:   {Allowed: true, Fulfills: true},
	{OrderInProgress, OrderDelivered}: {Allowed: true},
}

// LookupTransition returns the rule for moving an order from one status to
// another. Pairs missing from the table are denied.
func LookupTransition(from, to OrderStatus) TransitionRule {
	return transitions[[2]OrderStatus{from, to}]
}

// Order is a customer's request for products.
type Order struct {
	ID        int64           `json:"id"`
	Items     []OrderItem     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Status    OrderStatus     `json:"status"`
	OrderedBy int64           `json:"orderedBy"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`

	// Joined fields (not always populated).
	CustomerName string `json:"customerName,omitempty"`
}

// OrderItem is one line of an order. Product is populated on reads.
type OrderItem struct {
	ProductID int64    `json:"productId"`
	Product   *Product `json:"product,omitempty"`
	Quantity  int      `json:"quantity"`
}

// OrderLine is a requested line when placing an order.
type OrderLine struct {
	ProductID int64 `json:"product"`
	Quantity  int   `json:"quantity"`
}

// OrderStats are aggregate order counts.
type OrderStats struct {
	TotalOrders int `json:"totalOrders"`
	Pending     int `json:"pending"`
}
