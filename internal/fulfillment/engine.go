// Package fulfillment moves orders through their lifecycle. Accepting a
// pending order takes its items out of stock and records a sale per line.
package fulfillment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/trgovina/internal/model"
	"github.com/erazemk/trgovina/internal/store"
)

// Engine applies order status transitions.
type Engine struct {
	DB *sql.DB
	// AllowNegativeStock lets fulfilment drive product quantities below zero
	// instead of refusing the transition.
	AllowNegativeStock bool
	// OnTransition, if set, is called after each committed transition with
	// the number of sales it recorded.
	OnTransition func(order *model.Order, from, to model.OrderStatus, sales int)
}

// TransitionOrderStatus moves an order to the requested status on behalf of
// actorID. All effects of the transition commit together or not at all.
//
// Errors wrap store.ErrInvalidArgument for an empty or unknown status,
// store.ErrNotFound for a missing order, store.ErrInvalidTransition when the
// order's current status does not permit the move, and
// store.ErrInsufficientStock when a line cannot be fulfilled.
func (e *Engine) TransitionOrderStatus(ctx context.Context, orderID int64, requested string, actorID int64) (*model.Order, error) {
	if requested == "" {
		return nil, fmt.Errorf("status is required: %w", store.ErrInvalidArgument)
	}
	to, err := model.ParseOrderStatus(requested)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, store.ErrInvalidArgument)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := store.GetOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %d: %w", orderID, store.ErrNotFound)
	}

	from := order.Status
	rule := model.LookupTransition(from, to)
	if !rule.Allowed {
		return nil, fmt.Errorf("order %d: %s -> %s: %w", orderID, from, to, store.ErrInvalidTransition)
	}

	ok, err := store.UpdateOrderStatusIf(ctx, tx, orderID, from, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("order %d is no longer %s: %w", orderID, from, store.ErrInvalidTransition)
	}

	sales := 0
	if rule.Fulfills {
		if err := e.fulfil(ctx, tx, order, actorID); err != nil {
			return nil, err
		}
		sales = len(order.Items)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing status change: %w", err)
	}

	updated, err := store.GetOrder(ctx, e.DB, orderID)
	if err != nil {
		return nil, err
	}
	if e.OnTransition != nil {
		e.OnTransition(updated, from, to, sales)
	}
	return updated, nil
}

// fulfil takes each line out of stock and records its sale, in item order.
func (e *Engine) fulfil(ctx context.Context, tx *sql.Tx, order *model.Order, actorID int64) error {
	for _, item := range order.Items {
		if err := store.DecrementStock(ctx, tx, item.ProductID, item.Quantity, e.AllowNegativeStock); err != nil {
			return fmt.Errorf("fulfilling order %d: %w", order.ID, err)
		}

		p, err := store.GetProduct(ctx, tx, item.ProductID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("product %d: %w", item.ProductID, store.ErrNotFound)
		}

		amount := p.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if _, err := store.CreateSale(ctx, tx, p.ID, item.Quantity, amount, actorID, &order.ID); err != nil {
			return err
		}
	}
	return nil
}
