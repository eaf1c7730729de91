package checkout

import (
	"fmt"

	"fondapos/backend/internal/domain"
	"fondapos/backend/internal/pricing"
	"fondapos/backend/internal/store"
)

// finalizeEpsilonCents absorbs rounding drift when deciding whether an
// order is fully paid.
const finalizeEpsilonCents = 1

type PaymentEntry struct {
	Method      domain.PaymentMethod `json:"method"`
	AmountCents int64                `json:"amount_cents"`
}

// Collector accumulates the tenders against one persisted order. The
// customer's available credit is snapshotted when the collector is built,
// not refreshed per entry.
type Collector struct {
	SubtotalCents int64          `json:"subtotal_cents"`
	DiscountCents int64          `json:"discount_cents"`
	ShippingCents int64          `json:"shipping_cents"`
	Entries       []PaymentEntry `json:"entries"`

	creditAvailableCents int64
}

func NewCollector(subtotalCents, discountCents, shippingCents, creditAvailableCents int64) *Collector {
	return &Collector{
		SubtotalCents:        subtotalCents,
		DiscountCents:        discountCents,
		ShippingCents:        shippingCents,
		creditAvailableCents: creditAvailableCents,
	}
}

func (c *Collector) DueCents() int64 {
	return c.SubtotalCents - c.DiscountCents + c.ShippingCents
}

func (c *Collector) AmountPaidCents() int64 {
	var paid int64
	for _, e := range c.Entries {
		paid += e.AmountCents
	}
	return paid
}

func (c *Collector) BalanceRemainingCents() int64 {
	remaining := c.DueCents() - c.AmountPaidCents()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ChangePreviewCents is the change the operator would owe for a tender
// about to be entered, computed against the remaining balance right now,
// not the order total. Only cash ever produces change.
func (c *Collector) ChangePreviewCents(method domain.PaymentMethod, tenderedCents int64) int64 {
	return pricing.ChangeCents(tenderedCents, c.BalanceRemainingCents(), method)
}

func (c *Collector) AddEntry(method domain.PaymentMethod, amountCents int64) error {
	if amountCents < 1 {
		return fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	if !method.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, method)
	}
	if method == domain.PaymentCustomerCredit {
		if c.creditUsedCents()+amountCents > c.creditAvailableCents {
			return fmt.Errorf("%w: available credit is %d cents", store.ErrInsufficientCredit, c.creditAvailableCents)
		}
	}
	c.Entries = append(c.Entries, PaymentEntry{Method: method, AmountCents: amountCents})
	return nil
}

func (c *Collector) RemoveEntry(index int) error {
	if index < 0 || index >= len(c.Entries) {
		return fmt.Errorf("%w: no payment entry at index %d", store.ErrValidation, index)
	}
	c.Entries = append(c.Entries[:index], c.Entries[index+1:]...)
	return nil
}

// AdjustDiscount re-enters the discount after the order was persisted and
// recomputes the amount due. Already-entered tenders are left as they are;
// the operator reconciles them manually.
func (c *Collector) AdjustDiscount(value float64, kind domain.DiscountKind) error {
	if value < 0 {
		return fmt.Errorf("%w: discount cannot be negative", store.ErrValidation)
	}
	if kind == domain.DiscountFixed && int64(value) > c.SubtotalCents {
		return fmt.Errorf("%w: discount cannot exceed the subtotal", store.ErrValidation)
	}
	if kind == domain.DiscountPercent && value > 100 {
		return fmt.Errorf("%w: percentage discount cannot exceed 100", store.ErrValidation)
	}
	c.DiscountCents = pricing.DiscountAmountCents(c.SubtotalCents, value, kind)
	return nil
}

func (c *Collector) CanFinalize() bool {
	return c.BalanceRemainingCents() <= finalizeEpsilonCents
}

func (c *Collector) creditUsedCents() int64 {
	var used int64
	for _, e := range c.Entries {
		if e.Method == domain.PaymentCustomerCredit {
			used += e.AmountCents
		}
	}
	return used
}
