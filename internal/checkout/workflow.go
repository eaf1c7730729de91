// Package checkout drives a single checkout attempt through its states:
// validation, the upsell prompt, promised-time capture, persistence, and
// payment collection. One workflow instance belongs to one operator session
// and holds the single pending-action marker (save vs charge).
package checkout

import (
	"context"
	"fmt"
	"log"
	"time"

	"fondapos/backend/internal/cart"
	"fondapos/backend/internal/domain"
	"fondapos/backend/internal/store"
)

type State string

const (
	StateIdle                  State = "idle"
	StateValidating            State = "validating"
	StateOfferingUpsell        State = "offering_upsell"
	StateCapturingPromisedTime State = "capturing_promised_time"
	StatePersisting            State = "persisting"
	StateCollectingPayment     State = "collecting_payment"
	StateFinalized             State = "finalized"
	StateFailed                State = "failed"
)

type Action string

const (
	ActionNone   Action = ""
	ActionSave   Action = "save"
	ActionCharge Action = "charge"
)

// The five required-field checks each fail with their own message so the
// operator knows exactly what to fix.
var (
	ErrEmptyCart        = fmt.Errorf("%w: the order has no items", store.ErrValidation)
	ErrNoCustomer       = fmt.Errorf("%w: select a customer before checking out", store.ErrValidation)
	ErrNoDeliveryMethod = fmt.Errorf("%w: select a delivery method before checking out", store.ErrValidation)
	ErrNoStreet         = fmt.Errorf("%w: this delivery method needs a street address", store.ErrValidation)
	ErrNoZone           = fmt.Errorf("%w: this delivery method needs a delivery zone", store.ErrValidation)

	ErrSubmitting = fmt.Errorf("%w: a submission is already in progress", store.ErrValidation)
)

const (
	promisedMinutesMin = 5
	promisedMinutesMax = 480
)

type Workflow struct {
	repo     store.Repository
	cart     *cart.Cart
	branchID string
	operator string

	state           State
	pendingAction   Action
	submitting      bool
	upsell          domain.UpsellMetric
	promisedMinutes int
	order           *domain.Order
	collector       *Collector
}

func NewWorkflow(repo store.Repository, c *cart.Cart, branchID string, operator string) *Workflow {
	return &Workflow{
		repo:     repo,
		cart:     c,
		branchID: branchID,
		operator: operator,
		state:    StateIdle,
	}
}

func (w *Workflow) State() State          { return w.state }
func (w *Workflow) PendingAction() Action { return w.pendingAction }
func (w *Workflow) Order() *domain.Order  { return w.order }
func (w *Workflow) Collector() *Collector { return w.collector }

// Begin starts a checkout attempt for the given action. Any required-field
// failure drops back to Idle with the field-specific error and clears the
// pending action; nothing in the cart changes.
func (w *Workflow) Begin(ctx context.Context, action Action) error {
	if w.submitting {
		return ErrSubmitting
	}
	if action != ActionSave && action != ActionCharge {
		return fmt.Errorf("%w: unknown checkout action %q", store.ErrValidation, action)
	}
	switch w.state {
	case StateIdle, StateFinalized, StateFailed:
	default:
		return fmt.Errorf("%w: a checkout is already in progress", store.ErrValidation)
	}

	w.state = StateValidating
	w.pendingAction = action
	w.upsell = domain.UpsellMetric{}
	w.promisedMinutes = 0
	w.order = nil
	w.collector = nil

	if _, err := w.validate(ctx); err != nil {
		w.state = StateIdle
		w.pendingAction = ActionNone
		return err
	}

	satisfied, err := w.upsellSatisfied(ctx)
	if err != nil {
		w.state = StateIdle
		w.pendingAction = ActionNone
		return err
	}
	if satisfied {
		// Both categories already in the cart: no prompt, recorded as not
		// offered / accepted.
		w.upsell = domain.UpsellMetric{
			OfferedSideDish:  false,
			AcceptedSideDish: true,
			OfferedDessert:   false,
			AcceptedDessert:  true,
		}
		w.state = StateCapturingPromisedTime
		return nil
	}

	w.state = StateOfferingUpsell
	return nil
}

// AnswerUpsell records the operator's answers to the side-dish and dessert
// prompts. The answers feed analytics only; they never alter the order.
func (w *Workflow) AnswerUpsell(offeredSideDish, acceptedSideDish, offeredDessert, acceptedDessert bool) error {
	if w.state != StateOfferingUpsell {
		return fmt.Errorf("%w: no upsell prompt is open", store.ErrValidation)
	}
	w.upsell = domain.UpsellMetric{
		OfferedSideDish:  offeredSideDish,
		AcceptedSideDish: acceptedSideDish,
		OfferedDessert:   offeredDessert,
		AcceptedDessert:  acceptedDessert,
	}
	w.state = StateCapturingPromisedTime
	return nil
}

func (w *Workflow) SetPromisedTime(minutes int) error {
	if w.state != StateCapturingPromisedTime {
		return fmt.Errorf("%w: not capturing a promised time", store.ErrValidation)
	}
	if minutes < promisedMinutesMin || minutes > promisedMinutesMax {
		return fmt.Errorf("%w: promised time must be between %d and %d minutes", store.ErrValidation, promisedMinutesMin, promisedMinutesMax)
	}
	w.promisedMinutes = minutes
	w.state = StatePersisting
	return nil
}

// Persist writes the order. Totals are computed fresh from the cart at this
// moment. On the save path the attempt finalizes immediately; on the charge
// path the workflow moves to payment collection with a credit snapshot.
// A persistence failure moves to Failed with the cart left intact.
func (w *Workflow) Persist(ctx context.Context) (*domain.Order, error) {
	if w.state != StatePersisting {
		return nil, fmt.Errorf("%w: nothing staged to persist", store.ErrValidation)
	}
	if w.submitting {
		return nil, ErrSubmitting
	}
	w.submitting = true
	defer func() { w.submitting = false }()

	order := w.buildOrder()

	var (
		saved *domain.Order
		err   error
	)
	editing := w.cart.EditingOrderID != ""
	if editing {
		order.ID = w.cart.EditingOrderID
		saved, err = w.repo.UpdateOrder(ctx, order)
	} else {
		saved, err = w.repo.CreateOrder(ctx, order)
	}
	if err != nil {
		w.fail()
		return nil, err
	}

	if !editing {
		metric := w.upsell
		metric.OrderID = saved.ID
		metric.PromisedMinutes = w.promisedMinutes
		if metricErr := w.repo.CreateUpsellMetric(ctx, metric); metricErr != nil {
			log.Printf("[checkout] WARN: upsell metric write failed for order %s: %v", saved.ID, metricErr)
		}
	}

	w.order = saved

	if w.pendingAction == ActionSave {
		w.cart.Reset()
		w.state = StateFinalized
		w.pendingAction = ActionNone
		return saved, nil
	}

	var creditAvailable int64
	if saved.CustomerID != "" {
		creditAvailable, err = w.repo.GetCreditBalance(ctx, saved.CustomerID)
		if err != nil {
			w.fail()
			return nil, err
		}
	}
	w.collector = NewCollector(saved.SubtotalCents, saved.DiscountCents, saved.ShippingCents, creditAvailable)
	w.state = StateCollectingPayment
	return saved, nil
}

func (w *Workflow) AddPayment(method domain.PaymentMethod, amountCents int64) error {
	if w.state != StateCollectingPayment {
		return fmt.Errorf("%w: not collecting payment", store.ErrValidation)
	}
	return w.collector.AddEntry(method, amountCents)
}

func (w *Workflow) RemovePayment(index int) error {
	if w.state != StateCollectingPayment {
		return fmt.Errorf("%w: not collecting payment", store.ErrValidation)
	}
	return w.collector.RemoveEntry(index)
}

func (w *Workflow) AdjustDiscount(value float64, kind domain.DiscountKind) error {
	if w.state != StateCollectingPayment {
		return fmt.Errorf("%w: not collecting payment", store.ErrValidation)
	}
	return w.collector.AdjustDiscount(value, kind)
}

// Finalize commits the collected tenders. The balance must be settled (to
// the cent); customer-credit tenders also write a charge to the customer's
// ledger. The cart resets only after every write has succeeded.
func (w *Workflow) Finalize(ctx context.Context) (*domain.Order, error) {
	if w.state != StateCollectingPayment {
		return nil, fmt.Errorf("%w: not collecting payment", store.ErrValidation)
	}
	if !w.collector.CanFinalize() {
		return nil, fmt.Errorf("%w: %d cents still unpaid", store.ErrValidation, w.collector.BalanceRemainingCents())
	}
	return w.settle(ctx, true)
}

// SavePending records whatever tenders were entered and leaves the order
// pending with its remaining balance. Explicitly allowed with a non-zero
// balance.
func (w *Workflow) SavePending(ctx context.Context) (*domain.Order, error) {
	if w.state != StateCollectingPayment {
		return nil, fmt.Errorf("%w: not collecting payment", store.ErrValidation)
	}
	return w.settle(ctx, false)
}

// Abort abandons the attempt without touching the cart. An order already
// persisted on the charge path stays in the store as pending.
func (w *Workflow) Abort() error {
	if w.submitting {
		return ErrSubmitting
	}
	w.state = StateIdle
	w.pendingAction = ActionNone
	w.collector = nil
	return nil
}

func (w *Workflow) settle(ctx context.Context, fullyPaid bool) (*domain.Order, error) {
	if w.submitting {
		return nil, ErrSubmitting
	}
	w.submitting = true
	defer func() { w.submitting = false }()

	order := w.order

	if w.collector.DiscountCents != order.DiscountCents {
		updated := *order
		updated.DiscountCents = w.collector.DiscountCents
		updated.TotalCents = updated.SubtotalCents - updated.DiscountCents + updated.ShippingCents
		saved, err := w.repo.UpdateOrder(ctx, updated)
		if err != nil {
			w.fail()
			return nil, err
		}
		order = saved
		w.order = saved
	}

	for _, entry := range w.collector.Entries {
		if _, err := w.repo.AppendPayment(ctx, domain.Payment{
			OrderID:     order.ID,
			Method:      entry.Method,
			AmountCents: entry.AmountCents,
		}); err != nil {
			w.fail()
			return nil, err
		}
		if entry.Method == domain.PaymentCustomerCredit && order.CustomerID != "" {
			if _, err := w.repo.AppendCreditMovement(ctx, domain.CreditMovement{
				CustomerID:  order.CustomerID,
				Kind:        domain.CreditMovementCharge,
				AmountCents: entry.AmountCents,
				Memo:        "order " + order.ID,
			}); err != nil {
				w.fail()
				return nil, err
			}
		}
	}

	if fullyPaid {
		if err := w.repo.SetOrderStatus(ctx, order.ID, domain.OrderStatusPaid); err != nil {
			w.fail()
			return nil, err
		}
	}

	final, err := w.repo.GetOrderByID(ctx, order.ID)
	if err != nil {
		w.fail()
		return nil, err
	}
	w.order = final

	w.cart.Reset()
	w.state = StateFinalized
	w.pendingAction = ActionNone
	return final, nil
}

func (w *Workflow) fail() {
	w.state = StateFailed
	w.pendingAction = ActionNone
}

func (w *Workflow) validate(ctx context.Context) (*domain.DeliveryMethod, error) {
	if len(w.cart.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if w.cart.Customer == nil || w.cart.Customer.ID == "" {
		return nil, ErrNoCustomer
	}
	if w.cart.DeliveryMethodID == "" {
		return nil, ErrNoDeliveryMethod
	}

	methods, err := w.repo.ListDeliveryMethods(ctx)
	if err != nil {
		return nil, err
	}
	var method *domain.DeliveryMethod
	for i := range methods {
		if methods[i].ID == w.cart.DeliveryMethodID {
			method = &methods[i]
			break
		}
	}
	if method == nil {
		return nil, ErrNoDeliveryMethod
	}
	if method.RequiresAddress {
		if w.cart.DeliveryAddress.Street == "" {
			return nil, ErrNoStreet
		}
		if w.cart.DeliveryZoneID == "" {
			return nil, ErrNoZone
		}
	}
	return method, nil
}

// upsellSatisfied reports whether the cart already holds something from
// both the side-dish and the dessert category.
func (w *Workflow) upsellSatisfied(ctx context.Context) (bool, error) {
	ids := make([]string, 0, len(w.cart.Items))
	for _, line := range w.cart.Items {
		ids = append(ids, line.ProductID)
	}
	products, err := w.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return false, err
	}
	categories, err := w.repo.ListCategories(ctx)
	if err != nil {
		return false, err
	}

	roleByCategory := make(map[string]string, len(categories))
	for _, c := range categories {
		roleByCategory[c.ID] = c.Role
	}

	hasSide, hasDessert := false, false
	for _, p := range products {
		switch roleByCategory[p.CategoryID] {
		case domain.CategoryRoleSideDish:
			hasSide = true
		case domain.CategoryRoleDessert:
			hasDessert = true
		}
	}
	return hasSide && hasDessert, nil
}

func (w *Workflow) buildOrder() domain.Order {
	c := w.cart
	items := make([]domain.OrderItem, 0, len(c.Items))
	for _, line := range c.Items {
		addOns := make([]domain.OrderItemAddOn, 0, len(line.AddOns))
		for _, a := range line.AddOns {
			addOns = append(addOns, domain.OrderItemAddOn{ID: a.ID, Name: a.Name, PriceCents: a.PriceCents})
		}
		items = append(items, domain.OrderItem{
			ProductID:      line.ProductID,
			Name:           line.Name,
			BaseName:       line.BaseName,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			SubtotalCents:  line.SubtotalCents,
			AddOns:         addOns,
		})
	}

	order := domain.Order{
		BranchID:         w.branchID,
		Status:           domain.OrderStatusPending,
		SubtotalCents:    c.SubtotalCents(),
		DiscountCents:    c.DiscountCents(),
		DiscountValue:    c.DiscountValue,
		DiscountKind:     c.DiscountKind,
		ShippingCents:    c.ShippingCents,
		TotalCents:       c.TotalWithShippingCents(),
		DeliveryMethodID: c.DeliveryMethodID,
		DeliveryZoneID:   c.DeliveryZoneID,
		DeliveryAddress:  c.DeliveryAddress,
		DeliveryNotes:    c.DeliveryNotes,
		Notes:            c.Notes,
		PromisedMinutes:  w.promisedMinutes,
		CreatedBy:        w.operator,
		CreatedAt:        time.Now().UTC(),
		Items:            items,
	}
	if c.Customer != nil {
		order.CustomerID = c.Customer.ID
		order.CustomerName = c.Customer.Name
	}
	return order
}
