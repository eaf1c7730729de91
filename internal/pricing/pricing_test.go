package pricing

import (
	"testing"

	"fondapos/backend/internal/domain"
)

func TestUnitPriceCentsSumsAddOns(t *testing.T) {
	got := UnitPriceCents(4500, []domain.AddOn{
		{ID: "ao-1", Name: "Extra cheese", PriceCents: 500},
		{ID: "ao-2", Name: "Garlic sauce", PriceCents: 250},
	})
	if got != 5250 {
		t.Fatalf("expected 5250, got %d", got)
	}
}

func TestUnitPriceCentsNoAddOns(t *testing.T) {
	if got := UnitPriceCents(4500, nil); got != 4500 {
		t.Fatalf("expected 4500, got %d", got)
	}
}

func TestDiscountAmountCents(t *testing.T) {
	cases := []struct {
		name     string
		subtotal int64
		value    float64
		kind     domain.DiscountKind
		want     int64
	}{
		{"fixed within range", 9000, 1000, domain.DiscountFixed, 1000},
		{"fixed clamped to subtotal", 9000, 20000, domain.DiscountFixed, 9000},
		{"percent ten", 60000, 10, domain.DiscountPercent, 6000},
		{"percent rounds", 8750, 33, domain.DiscountPercent, 2888},
		{"percent over hundred clamps", 5000, 150, domain.DiscountPercent, 5000},
		{"negative treated as zero", 5000, -10, domain.DiscountFixed, 0},
		{"zero value", 5000, 0, domain.DiscountPercent, 0},
		{"zero subtotal", 0, 50, domain.DiscountPercent, 0},
		{"unknown kind", 5000, 10, domain.DiscountKind("bogus"), 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DiscountAmountCents(tc.subtotal, tc.value, tc.kind)
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestChangeCents(t *testing.T) {
	// Amount due $87.50: cash $100 gives $12.50 back, non-cash never does.
	if got := ChangeCents(10000, 8750, domain.PaymentCash); got != 1250 {
		t.Fatalf("expected 1250 change for cash, got %d", got)
	}
	if got := ChangeCents(8750, 8750, domain.PaymentDebit); got != 0 {
		t.Fatalf("expected 0 change for exact debit, got %d", got)
	}
	if got := ChangeCents(9000, 8750, domain.PaymentDebit); got != 0 {
		t.Fatalf("expected 0 change for debit overpayment, got %d", got)
	}
	if got := ChangeCents(5000, 8750, domain.PaymentCash); got != 0 {
		t.Fatalf("expected 0 change when tender below due, got %d", got)
	}
}
