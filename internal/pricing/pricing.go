// Package pricing holds the pure money math shared by the cart and the
// checkout flow. All amounts are int64 cents.
package pricing

import (
	"math"

	"fondapos/backend/internal/domain"
)

// UnitPriceCents is base price plus the sum of the selected add-on prices.
// It is computed once when a cart line is created (or its add-on set is
// replaced) so the line keeps its price-at-time-of-sale even if the catalog
// changes afterward.
func UnitPriceCents(basePriceCents int64, addOns []domain.AddOn) int64 {
	total := basePriceCents
	for _, a := range addOns {
		total += a.PriceCents
	}
	return total
}

// DiscountAmountCents converts a requested discount into cents, clamped to
// [0, subtotal]. Percentage discounts round to the nearest cent; negative
// or zero inputs yield zero.
func DiscountAmountCents(subtotalCents int64, value float64, kind domain.DiscountKind) int64 {
	if subtotalCents < 1 || value <= 0 {
		return 0
	}

	var amount int64
	switch kind {
	case domain.DiscountPercent:
		amount = int64(math.Round(float64(subtotalCents) * value / 100))
	case domain.DiscountFixed:
		amount = int64(math.Round(value))
	default:
		return 0
	}

	if amount < 0 {
		return 0
	}
	if amount > subtotalCents {
		return subtotalCents
	}
	return amount
}

// ChangeCents is the change owed on a single tender. Only cash produces
// change; overpayment on any other method is a user-input error to be
// blocked by validation, not converted to change.
func ChangeCents(tenderedCents int64, dueCents int64, method domain.PaymentMethod) int64 {
	if method != domain.PaymentCash {
		return 0
	}
	if tenderedCents <= dueCents {
		return 0
	}
	return tenderedCents - dueCents
}
