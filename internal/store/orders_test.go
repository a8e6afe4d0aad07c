package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/trgovina/internal/db"
	"github.com/erazemk/trgovina/internal/model"
)

func seedCustomer(t *testing.T, database *sql.DB) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), database, "Customer", "customer@example.com", "hash", model.RoleCustomer)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestPlaceOrder(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	customer := seedCustomer(t, database)

	tea, _ := CreateProduct(ctx, database, "Tea", "", decimal.RequireFromString("2.50"), 1)
	bread, _ := CreateProduct(ctx, database, "Bread", "", decimal.NewFromInt(3), 0)

	order, err := PlaceOrder(ctx, database, customer.ID, []model.OrderLine{
		{ProductID: tea.ID, Quantity: 4},
		{ProductID: bread.ID, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.Status != model.OrderPending {
		t.Errorf("expected pending, got %q", order.Status)
	}
	if !order.Total.Equal(decimal.NewFromInt(13)) {
		t.Errorf("expected total 13, got %s", order.Total)
	}
	if order.CustomerName != "Customer" {
		t.Errorf("expected customer name, got %q", order.CustomerName)
	}
	if len(order.Items) != 2 || order.Items[0].Product.Name != "Tea" || order.Items[1].Quantity != 1 {
		t.Errorf("unexpected items %+v", order.Items)
	}

	// Placement does not touch stock.
	p, _ := GetProduct(ctx, database, tea.ID)
	if p.Quantity != 1 {
		t.Errorf("expected stock 1, got %d", p.Quantity)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	customer := seedCustomer(t, database)

	tea, _ := CreateProduct(ctx, database, "Tea", "", decimal.NewFromInt(2), 1)
	gone, _ := CreateProduct(ctx, database, "Gone", "", decimal.NewFromInt(2), 1)
	DeleteProduct(ctx, database, gone.ID)

	tests := []struct {
		name  string
		lines []model.OrderLine
		want  error
	}{
		{"empty", nil, ErrInvalidArgument},
		{"zero quantity", []model.OrderLine{{ProductID: tea.ID, Quantity: 0}}, ErrInvalidArgument},
		{"missing product", []model.OrderLine{{ProductID: 999, Quantity: 1}}, ErrNotFound},
		{"deleted product", []model.OrderLine{{ProductID: gone.ID, Quantity: 1}}, ErrNotFound},
	}

	for _, tt := range tests {
		_, err := PlaceOrder(ctx, database, customer.ID, tt.lines)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}

	orders, _ := ListOrders(ctx, database)
	if len(orders) != 0 {
		t.Errorf("expected no orders after failed placements, got %d", len(orders))
	}
}

func TestListOrdersByCustomer(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := seedCustomer(t, database)
	bob, _ := CreateUser(ctx, database, "Bob", "bob@example.com", "hash", model.RoleCustomer)

	tea, _ := CreateProduct(ctx, database, "Tea", "", decimal.NewFromInt(2), 1)
	line := []model.OrderLine{{ProductID: tea.ID, Quantity: 1}}
	PlaceOrder(ctx, database, alice.ID, line)
	PlaceOrder(ctx, database, alice.ID, line)
	PlaceOrder(ctx, database, bob.ID, line)

	all, err := ListOrders(ctx, database)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 orders, got %d", len(all))
	}
	for _, o := range all {
		if len(o.Items) != 1 {
			t.Errorf("order %d: expected populated items, got %v", o.ID, o.Items)
		}
	}

	mine, _ := ListOrdersByCustomer(ctx, database, alice.ID)
	if len(mine) != 2 {
		t.Errorf("expected 2 orders for alice, got %d", len(mine))
	}
}

func TestUpdateOrderStatusIf(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	customer := seedCustomer(t, database)

	tea, _ := CreateProduct(ctx, database, "Tea", "", decimal.NewFromInt(2), 1)
	order, _ := PlaceOrder(ctx, database, customer.ID, []model.OrderLine{{ProductID: tea.ID, Quantity: 1}})

	ok, err := UpdateOrderStatusIf(ctx, database, order.ID, model.OrderPending, model.OrderInProgress)
	if err != nil || !ok {
		t.Fatalf("expected first update to apply, got %v, %v", ok, err)
	}

	ok, err = UpdateOrderStatusIf(ctx, database, order.ID, model.OrderPending, model.OrderInProgress)
	if err != nil || ok {
		t.Fatalf("expected second update to be a no-op, got %v, %v", ok, err)
	}

	stats, err := GetOrderStats(ctx, database)
	if err != nil {
		t.Fatalf("GetOrderStats: %v", err)
	}
	if stats.TotalOrders != 1 || stats.Pending != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
