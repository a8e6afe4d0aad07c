package cart

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/erazemk/trgovina/internal/model"
	"github.com/erazemk/trgovina/internal/store"
)

// subscriberBuffer is how many events a subscriber may fall behind before
// further events are dropped for it.
const subscriberBuffer = 16

// Service implements cart operations on top of a Store.
type Service struct {
	store Store
	db    *sql.DB

	// mu serializes read-modify-write cycles on carts.
	mu sync.Mutex

	subMu sync.Mutex
	subs  map[int64]map[chan model.CartEvent]struct{}
}

// NewService returns a cart service. db is used to validate products and to
// place orders on checkout.
func NewService(s Store, db *sql.DB) *Service {
	return &Service{
		store: s,
		db:    db,
		subs:  make(map[int64]map[chan model.CartEvent]struct{}),
	}
}

// Get returns a user's cart.
func (s *Service) Get(ctx context.Context, userID int64) (*model.Cart, error) {
	return s.store.Get(ctx, userID)
}

// SetItem sets the quantity of a product in the cart. Zero removes the product.
func (s *Service) SetItem(ctx context.Context, userID, productID int64, quantity int) (*model.Cart, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative: %w", store.ErrInvalidArgument)
	}
	if quantity > 0 {
		p, err := store.GetProduct(ctx, s.db, productID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Deleted() {
			return nil, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
		}
	}

	return s.update(ctx, userID, func(c *model.Cart) {
		for i, it := range c.Items {
			if it.ProductID == productID {
				if quantity == 0 {
					c.Items = append(c.Items[:i], c.Items[i+1:]...)
				} else {
					c.Items[i].Quantity = quantity
				}
				return
			}
		}
		if quantity > 0 {
			c.Items = append(c.Items, model.CartItem{ProductID: productID, Quantity: quantity})
		}
	})
}

// RemoveItem removes a product from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID int64) (*model.Cart, error) {
	return s.SetItem(ctx, userID, productID, 0)
}

func (s *Service) update(ctx context.Context, userID int64, fn func(*model.Cart)) (*model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	fn(c)
	c.UpdatedAt = time.Now().UTC()
	if err := s.store.Put(ctx, c); err != nil {
		return nil, err
	}

	s.publish(model.CartEvent{Type: model.CartUpdated, Cart: *c})
	return c, nil
}

// Clear empties a user's cart.
func (s *Service) Clear(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, userID); err != nil {
		return err
	}
	s.publish(model.CartEvent{Type: model.CartCleared, Cart: *emptyCart(userID)})
	return nil
}

// Checkout places an order for the cart's contents and empties the cart.
func (s *Service) Checkout(ctx context.Context, userID int64) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, fmt.Errorf("cart is empty: %w", store.ErrInvalidArgument)
	}

	order, err := store.PlaceOrder(ctx, s.db, userID, c.Lines())
	if err != nil {
		return nil, err
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		return nil, fmt.Errorf("order %d placed but cart not cleared: %w", order.ID, err)
	}
	s.publish(model.CartEvent{Type: model.CartCheckedOut, Cart: *emptyCart(userID), OrderID: order.ID})
	return order, nil
}

// Subscribe returns a channel of the user's cart events and a function that
// cancels the subscription and closes the channel.
func (s *Service) Subscribe(userID int64) (<-chan model.CartEvent, func()) {
	ch := make(chan model.CartEvent, subscriberBuffer)

	s.subMu.Lock()
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[chan model.CartEvent]struct{})
	}
	s.subs[userID][ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs[userID], ch)
			if len(s.subs[userID]) == 0 {
				delete(s.subs, userID)
			}
			close(ch)
		})
	}
}

// publish delivers ev to the cart owner's subscribers without blocking.
func (s *Service) publish(ev model.CartEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subs[ev.Cart.UserID] {
		e := ev
		e.Cart.Items = append([]model.CartItem{}, ev.Cart.Items...)
		select {
		case ch <- e:
		default:
		}
	}
}
