package cartstore

import (
	"context"
	"testing"
	"time"

	"fondapos/backend/internal/cart"
	"fondapos/backend/internal/domain"
)

func TestInProcessStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInProcessStore()

	c := cart.New(cart.NopNotifier{})
	c.AddItem(domain.Product{ID: "prod-1", Name: "Burger", PriceCents: 4500, Active: true, Purchasable: true}, []domain.AddOn{
		{ID: "ao-1", Name: "Cheese", PriceCents: 500},
	})
	c.SetDiscount(10, domain.DiscountPercent)
	c.SetNotes("no onions")

	if err := s.Save(ctx, "cashier1", c, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, ok, err := s.Load(ctx, "cashier1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot for cashier1")
	}
	if loaded.SubtotalCents() != 5000 {
		t.Fatalf("expected subtotal 5000, got %d", loaded.SubtotalCents())
	}
	if loaded.DiscountCents() != 500 {
		t.Fatalf("expected discount 500, got %d", loaded.DiscountCents())
	}
	if loaded.Notes != "no onions" {
		t.Fatalf("expected notes preserved, got %q", loaded.Notes)
	}
	if len(loaded.Items) != 1 || !loaded.Items[0].Key.Equal(c.Items[0].Key) {
		t.Fatalf("expected line identity preserved across the round trip")
	}
}

func TestInProcessStoreIsolatesOperators(t *testing.T) {
	ctx := context.Background()
	s := NewInProcessStore()

	c := cart.New(cart.NopNotifier{})
	c.AddItem(domain.Product{ID: "prod-1", Name: "Burger", PriceCents: 4500}, nil)
	if err := s.Save(ctx, "cashier1", c, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, ok, _ := s.Load(ctx, "cashier2"); ok {
		t.Fatalf("expected no snapshot for a different operator")
	}
}

func TestInProcessStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewInProcessStore()

	if err := s.Save(ctx, "cashier1", cart.New(cart.NopNotifier{}), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(ctx, "cashier1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Load(ctx, "cashier1"); ok {
		t.Fatalf("expected snapshot gone after delete")
	}
}
