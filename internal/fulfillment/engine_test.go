package fulfillment

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/erazemk/trgovina/internal/db"
	"github.com/erazemk/trgovina/internal/model"
	"github.com/erazemk/trgovina/internal/store"
)

type fixture struct {
	db       *sql.DB
	engine   *Engine
	customer *model.User
	staff    *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	customer, err := store.CreateUser(ctx, database, "Customer", "customer@example.com", "hash", model.RoleCustomer)
	require.NoError(t, err)
	staff, err := store.CreateUser(ctx, database, "Staff", "staff@example.com", "hash", model.RoleStaff)
	require.NoError(t, err)

	return &fixture{
		db:       database,
		engine:   &Engine{DB: database},
		customer: customer,
		staff:    staff,
	}
}

func (f *fixture) product(t *testing.T, name, price string, quantity int) *model.Product {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), f.db, name, "", decimal.RequireFromString(price), quantity)
	require.NoError(t, err)
	return p
}

func (f *fixture) order(t *testing.T, lines ...model.OrderLine) *model.Order {
	t.Helper()
	o, err := store.PlaceOrder(context.Background(), f.db, f.customer.ID, lines)
	require.NoError(t, err)
	return o
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Quantity
}

func (f *fixture) sales(t *testing.T, orderID int64) []model.Sale {
	t.Helper()
	sales, err := store.ListSalesByOrder(context.Background(), f.db, orderID)
	require.NoError(t, err)
	return sales
}

func TestFulfilPendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.product(t, "Widget", "100", 50)
	o := f.order(t, model.OrderLine{ProductID: p.ID, Quantity: 3})

	got, err := f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
	require.NoError(t, err)

	assert.Equal(t, model.OrderInProgress, got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Widget", got.Items[0].Product.Name)
	assert.Equal(t, 47, got.Items[0].Product.Quantity)
	assert.Equal(t, 47, f.stock(t, p.ID))

	sales := f.sales(t, o.ID)
	require.Len(t, sales, 1)
	assert.Equal(t, p.ID, sales[0].ProductID)
	assert.Equal(t, 3, sales[0].Quantity)
	assert.True(t, sales[0].TotalAmount.Equal(decimal.NewFromInt(300)), "amount %s", sales[0].TotalAmount)
	assert.Equal(t, f.staff.ID, sales[0].SoldBy)
	require.NotNil(t, sales[0].OrderID)
	assert.Equal(t, o.ID, *sales[0].OrderID)
}

func TestFulfilMultipleLinesInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.product(t, "A", "1.50", 10)
	b := f.product(t, "B", "2", 10)
	o := f.order(t,
		model.OrderLine{ProductID: b.ID, Quantity: 2},
		model.OrderLine{ProductID: a.ID, Quantity: 4},
	)

	_, err := f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
	require.NoError(t, err)

	sales := f.sales(t, o.ID)
	require.Len(t, sales, 2)
	assert.Equal(t, b.ID, sales[0].ProductID)
	assert.Equal(t, a.ID, sales[1].ProductID)
	assert.True(t, sales[1].TotalAmount.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, 8, f.stock(t, b.ID))
	assert.Equal(t, 6, f.stock(t, a.ID))
}

func TestSaleUsesCurrentPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.product(t, "Widget", "10", 5)
	o := f.order(t, model.OrderLine{ProductID: p.ID, Quantity: 2})
	require.NoError(t, store.UpdateProduct(ctx, f.db, p.ID, "Widget", "", decimal.NewFromInt(12), 5))

	_, err := f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
	require.NoError(t, err)

	sales := f.sales(t, o.ID)
	require.Len(t, sales, 1)
	assert.True(t, sales[0].TotalAmount.Equal(decimal.NewFromInt(24)), "amount %s", sales[0].TotalAmount)

	// The order total stays frozen at placement.
	got, err := store.GetOrder(ctx, f.db, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(20)))
}

func TestInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.product(t, "A", "1", 10)
	b := f.product(t, "B", "1", 1)
	o := f.order(t,
		model.OrderLine{ProductID: a.ID, Quantity: 2},
		model.OrderLine{ProductID: b.ID, Quantity: 3},
	)

	_, err := f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	assert.Equal(t, 10, f.stock(t, a.ID))
	assert.Equal(t, 1, f.stock(t, b.ID))
	assert.Empty(t, f.sales(t, o.ID))

	got, err := store.GetOrder(ctx, f.db, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, got.Status)
}

func TestAllowNegativeStock(t *testing.T) {
	f := newFixture(t)
	f.engine.AllowNegativeStock = true
	ctx := context.Background()

	p := f.product(t, "Widget", "5", 1)
	o := f.order(t, model.OrderLine{ProductID: p.ID, Quantity: 3})

	got, err := f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderInProgress, got.Status)
	assert.Equal(t, -2, f.stock(t, p.ID))
	assert.Len(t, f.sales(t, o.ID), 1)
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.product(t, "Widget", "5", 10)
	o := f.order(t, model.OrderLine{ProductID: p.ID, Quantity: 1})

	_, err := f.engine.TransitionOrderStatus(ctx, o.ID, "", f.staff.ID)
	assert.ErrorIs(t, err, store.ErrInvalidArgument)

	_, err = f.engine.TransitionOrderStatus(ctx, o.ID, "shipped", f.staff.ID)
	assert.ErrorIs(t, err, store.ErrInvalidArgument)

	_, err = f.engine.TransitionOrderStatus(ctx, 9999, "in progress", f.staff.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.engine.TransitionOrderStatus(ctx, o.ID, "delivered", f.staff.ID)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = f.engine.TransitionOrderStatus(ctx, o.ID, "pending", f.staff.ID)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	assert.Equal(t, 10, f.stock(t, p.ID))
	assert.Empty(t, f.sales(t, o.ID))
}

func TestDeliverHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.product(t, "Widget", "5", 10)
	o := f.order(t, model.OrderLine{ProductID: p.ID, Quantity: 4})

	_, err := f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
	require.NoError(t, err)

	got, err := f.engine.TransitionOrderStatus(ctx, o.ID, "delivered", f.staff.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, got.Status)
	assert.Equal(t, 6, f.stock(t, p.ID))
	assert.Len(t, f.sales(t, o.ID), 1)

	// Delivered is terminal.
	for _, s := range []string{"pending", "in progress", "delivered"} {
		_, err := f.engine.TransitionOrderStatus(ctx, o.ID, s, f.staff.ID)
		assert.ErrorIs(t, err, store.ErrInvalidTransition, "delivered -> %s", s)
	}
}

func TestRepeatedFulfilmentAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.product(t, "Widget", "5", 10)
	o := f.order(t, model.OrderLine{ProductID: p.ID, Quantity: 4})

	_, err := f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
	require.NoError(t, err)

	_, err = f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	assert.Equal(t, 6, f.stock(t, p.ID))
	assert.Len(t, f.sales(t, o.ID), 1)
}

func TestConcurrentFulfilmentAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.product(t, "Widget", "5", 100)
	o := f.order(t, model.OrderLine{ProductID: p.ID, Quantity: 7})

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 93, f.stock(t, p.ID))
	assert.Len(t, f.sales(t, o.ID), 1)
}

func TestFulfilmentProperties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var seq int

	rapid.Check(t, func(rt *rapid.T) {
		seq++

		nProducts := rapid.IntRange(1, 4).Draw(rt, "products")
		products := make([]*model.Product, nProducts)
		for i := range products {
			cents := rapid.IntRange(0, 10000).Draw(rt, "cents")
			stock := rapid.IntRange(0, 20).Draw(rt, "stock")
			p, err := store.CreateProduct(ctx, f.db, fmt.Sprintf("P%d-%d", seq, i), "",
				decimal.New(int64(cents), -2), stock)
			if err != nil {
				rt.Fatalf("CreateProduct: %v", err)
			}
			products[i] = p
		}

		nLines := rapid.IntRange(1, 5).Draw(rt, "lines")
		lines := make([]model.OrderLine, nLines)
		need := map[int64]int{}
		for i := range lines {
			p := products[rapid.IntRange(0, nProducts-1).Draw(rt, "product")]
			qty := rapid.IntRange(1, 10).Draw(rt, "quantity")
			lines[i] = model.OrderLine{ProductID: p.ID, Quantity: qty}
			need[p.ID] += qty
		}

		fits := true
		for _, p := range products {
			if need[p.ID] > p.Quantity {
				fits = false
			}
		}

		o, err := store.PlaceOrder(ctx, f.db, f.customer.ID, lines)
		if err != nil {
			rt.Fatalf("PlaceOrder: %v", err)
		}

		got, err := f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
		sales, lerr := store.ListSalesByOrder(ctx, f.db, o.ID)
		if lerr != nil {
			rt.Fatalf("ListSalesByOrder: %v", lerr)
		}

		if !fits {
			if err == nil {
				rt.Fatalf("expected insufficient stock")
			}
			if len(sales) != 0 {
				rt.Fatalf("expected no sales after a refused transition, got %d", len(sales))
			}
			for _, p := range products {
				cur, _ := store.GetProduct(ctx, f.db, p.ID)
				if cur.Quantity != p.Quantity {
					rt.Fatalf("stock of %s changed from %d to %d", p.Name, p.Quantity, cur.Quantity)
				}
			}
			return
		}

		if err != nil {
			rt.Fatalf("TransitionOrderStatus: %v", err)
		}
		if got.Status != model.OrderInProgress {
			rt.Fatalf("expected in progress, got %q", got.Status)
		}
		if len(sales) != len(lines) {
			rt.Fatalf("expected %d sales, got %d", len(lines), len(sales))
		}

		sum := decimal.Zero
		for i, s := range sales {
			if s.ProductID != lines[i].ProductID || s.Quantity != lines[i].Quantity {
				rt.Fatalf("sale %d does not match line %d", s.ID, i)
			}
			sum = sum.Add(s.TotalAmount)
		}
		// Prices are untouched between placement and fulfilment.
		if !sum.Equal(o.Total) {
			rt.Fatalf("sales sum %s does not match order total %s", sum, o.Total)
		}

		for _, p := range products {
			cur, _ := store.GetProduct(ctx, f.db, p.ID)
			if cur.Quantity != p.Quantity-need[p.ID] {
				rt.Fatalf("stock of %s: expected %d, got %d", p.Name, p.Quantity-need[p.ID], cur.Quantity)
			}
		}
	})
}

func TestOnTransitionHook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	type call struct {
		from, to model.OrderStatus
		sales    int
	}
	var calls []call
	f.engine.OnTransition = func(o *model.Order, from, to model.OrderStatus, sales int) {
		calls = append(calls, call{from, to, sales})
	}

	p := f.product(t, "Widget", "5", 1)
	o := f.order(t,
		model.OrderLine{ProductID: p.ID, Quantity: 1},
		model.OrderLine{ProductID: p.ID, Quantity: 5},
	)

	// Refused transitions do not fire the hook.
	_, err := f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Empty(t, calls)

	_, err = store.AdjustStock(ctx, f.db, p.ID, 10)
	require.NoError(t, err)

	_, err = f.engine.TransitionOrderStatus(ctx, o.ID, "in progress", f.staff.ID)
	require.NoError(t, err)
	_, err = f.engine.TransitionOrderStatus(ctx, o.ID, "delivered", f.staff.ID)
	require.NoError(t, err)

	assert.Equal(t, []call{
		{model.OrderPending, model.OrderInProgress, 2},
		{model.OrderInProgress, model.OrderDelivered, 0},
	}, calls)
}
