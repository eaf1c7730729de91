package receipt

import (
	"strings"
	"testing"
	"time"

	"fondapos/backend/internal/domain"
)

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:            "ord-1",
		BranchID:      "branch-1",
		Status:        domain.OrderStatusPending,
		CustomerID:    "cust-1",
		CustomerName:  "Ana Morales",
		SubtotalCents: 9000,
		DiscountCents: 500,
		ShippingCents: 3000,
		TotalCents:    11500,
		DeliveryZoneID: "zone-center",
		DeliveryAddress: domain.DeliveryAddress{
			Street:    "123 Main St",
			City:      "Springfield",
			Reference: "blue door",
		},
		CreatedAt: time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC),
		Items: []domain.OrderItem{
			{ProductID: "prod-burger", Name: "Classic Burger (Extra cheese)", UnitPriceCents: 5000, Quantity: 1},
			{ProductID: "prod-fries", Name: "Fries", UnitPriceCents: 2000, Quantity: 2},
		},
		Payments: []domain.Payment{
			{Method: domain.PaymentCash, AmountCents: 5000},
		},
	}
}

func TestBuildCustomerReceipt(t *testing.T) {
	r := Build(sampleOrder(), &domain.DeliveryMethod{ID: "dm-counter"})

	for _, want := range []string{
		"Order: ord-1",
		"Customer: Ana Morales",
		"Classic Burger (Extra cheese) x1",
		"Fries x2",
		"Subtotal : $90.00",
		"Discount : $5.00",
		"Shipping : $30.00",
		"Total    : $115.00",
		"Balance  : $65.00",
	} {
		if !strings.Contains(r.PreviewText, want) {
			t.Fatalf("receipt missing %q:\n%s", want, r.PreviewText)
		}
	}
	if r.EscposBase64 == "" {
		t.Fatalf("expected escpos payload")
	}
	if r.CourierSlipText != "" {
		t.Fatalf("expected no courier slip for a non-delivery method")
	}
}

func TestCourierSlipOnlyForHomeDelivery(t *testing.T) {
	method := &domain.DeliveryMethod{ID: "dm-delivery", RequiresAddress: true, HasCost: true, HomeDelivery: true}
	r := Build(sampleOrder(), method)

	if r.CourierSlipText == "" {
		t.Fatalf("expected courier slip for home delivery")
	}
	for _, want := range []string{
		"Address: 123 Main St",
		"Zone: zone-center",
		"COLLECT: $65.00",
		"Fries x2",
	} {
		if !strings.Contains(r.CourierSlipText, want) {
			t.Fatalf("courier slip missing %q:\n%s", want, r.CourierSlipText)
		}
	}
}

func TestBalanceNeverNegative(t *testing.T) {
	order := sampleOrder()
	order.Payments = []domain.Payment{{Method: domain.PaymentCash, AmountCents: 20000}}

	r := Build(order, nil)
	if !strings.Contains(r.PreviewText, "Balance  : $0.00") {
		t.Fatalf("expected zero balance on overpaid order:\n%s", r.PreviewText)
	}
}
