// Package cart keeps each user's shopping cart on the server and notifies
// subscribers when it changes.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erazemk/trgovina/internal/model"
)

// Store persists carts by user ID. Get returns an empty cart for users
// without one.
type Store interface {
	Get(ctx context.Context, userID int64) (*model.Cart, error)
	Put(ctx context.Context, c *model.Cart) error
	Delete(ctx context.Context, userID int64) error
}

// MemoryStore keeps carts in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[int64]model.Cart
}

// NewMemoryStore returns an empty in-memory cart store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[int64]model.Cart)}
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (*model.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[userID]
	if !ok {
		return emptyCart(userID), nil
	}
	c.Items = append([]model.CartItem{}, c.Items...)
	return &c, nil
}

func (s *MemoryStore) Put(_ context.Context, c *model.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *c
	stored.Items = append([]model.CartItem{}, c.Items...)
	s.carts[c.UserID] = stored
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, userID)
	return nil
}

// RedisStore keeps carts as JSON values in Redis. Carts expire after ttl
// without changes; zero keeps them forever.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore returns a cart store backed by rdb.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (*model.Cart, error) {
	data, err := s.rdb.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return emptyCart(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cart: %w", err)
	}

	c := &model.Cart{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}
	if c.Items == nil {
		c.Items = []model.CartItem{}
	}
	return c, nil
}

func (s *RedisStore) Put(ctx context.Context, c *model.Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}
	if err := s.rdb.Set(ctx, cartKey(c.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing cart: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	if err := s.rdb.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("deleting cart: %w", err)
	}
	return nil
}

func emptyCart(userID int64) *model.Cart {
	return &model.Cart{UserID: userID, Items: []model.CartItem{}}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
