// Package cartstore persists in-progress cart snapshots per operator so a
// register restart (or a crash mid-sale) does not lose the cart being built.
package cartstore

import (
	"context"
	"sync"
	"time"

	"fondapos/backend/internal/cart"
)

type Store interface {
	Load(ctx context.Context, operator string) (*cart.Cart, bool, error)
	Save(ctx context.Context, operator string, c *cart.Cart, ttl time.Duration) error
	Delete(ctx context.Context, operator string) error
}

// InProcessStore keeps snapshots in memory. It is the fallback when no
// Redis address is configured; snapshots then only survive within one
// server process.
type InProcessStore struct {
	mu    sync.RWMutex
	carts map[string][]byte
}

func NewInProcessStore() *InProcessStore {
	return &InProcessStore{carts: make(map[string][]byte)}
}

func (s *InProcessStore) Load(_ context.Context, operator string) (*cart.Cart, bool, error) {
	s.mu.RLock()
	payload, ok := s.carts[operator]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	c, err := decodeCart(payload)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *InProcessStore) Save(_ context.Context, operator string, c *cart.Cart, _ time.Duration) error {
	payload, err := encodeCart(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.carts[operator] = payload
	s.mu.Unlock()
	return nil
}

func (s *InProcessStore) Delete(_ context.Context, operator string) error {
	s.mu.Lock()
	delete(s.carts, operator)
	s.mu.Unlock()
	return nil
}
