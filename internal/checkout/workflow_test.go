package checkout

import (
	"context"
	"errors"
	"testing"

	"fondapos/backend/internal/cart"
	"fondapos/backend/internal/domain"
	"fondapos/backend/internal/store"
	"fondapos/backend/internal/store/memory"
)

func seededCart(t *testing.T, repo *memory.Store, productIDs ...string) *cart.Cart {
	t.Helper()
	ctx := context.Background()

	c := cart.New(cart.NopNotifier{})
	for _, id := range productIDs {
		product, err := repo.GetProductByID(ctx, id)
		if err != nil {
			t.Fatalf("seed product %s: %v", id, err)
		}
		c.AddItem(*product, nil)
	}
	customer, err := repo.GetCustomerByID(ctx, "cust-ana")
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	c.SetCustomer(customer)
	c.SetDeliveryMethod("dm-counter")
	return c
}

func advanceToPayment(t *testing.T, w *Workflow) *domain.Order {
	t.Helper()
	ctx := context.Background()

	if err := w.Begin(ctx, ActionCharge); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if w.State() == StateOfferingUpsell {
		if err := w.AnswerUpsell(true, false, true, false); err != nil {
			t.Fatalf("answer upsell: %v", err)
		}
	}
	if err := w.SetPromisedTime(30); err != nil {
		t.Fatalf("set promised time: %v", err)
	}
	order, err := w.Persist(ctx)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if w.State() != StateCollectingPayment {
		t.Fatalf("expected collecting payment, got %s", w.State())
	}
	return order
}

func TestValidationFailuresAreDistinctAndReturnToIdle(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()

	customer := &domain.Customer{ID: "cust-ana", Name: "Ana Morales"}

	cases := []struct {
		name  string
		setup func() *cart.Cart
		want  error
	}{
		{"empty cart", func() *cart.Cart {
			c := cart.New(cart.NopNotifier{})
			c.SetCustomer(customer)
			c.SetDeliveryMethod("dm-counter")
			return c
		}, ErrEmptyCart},
		{"no customer", func() *cart.Cart {
			c := seededCart(t, repo, "prod-burger")
			c.SetCustomer(nil)
			return c
		}, ErrNoCustomer},
		{"no delivery method", func() *cart.Cart {
			c := seededCart(t, repo, "prod-burger")
			c.SetDeliveryMethod("")
			return c
		}, ErrNoDeliveryMethod},
		{"missing street", func() *cart.Cart {
			c := seededCart(t, repo, "prod-burger")
			c.SetDeliveryMethod("dm-delivery")
			c.SetDeliveryZone("zone-center")
			return c
		}, ErrNoStreet},
		{"missing zone", func() *cart.Cart {
			c := seededCart(t, repo, "prod-burger")
			c.SetDeliveryMethod("dm-delivery")
			c.SetDeliveryAddress(domain.DeliveryAddress{Street: "123 Main St"})
			return c
		}, ErrNoZone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.setup()
			w := NewWorkflow(repo, c, "branch-1", "cashier")

			err := w.Begin(ctx, ActionSave)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, store.ErrValidation) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if w.State() != StateIdle {
				t.Fatalf("expected return to idle, got %s", w.State())
			}
			if w.PendingAction() != ActionNone {
				t.Fatalf("expected pending action cleared")
			}
		})
	}
}

func TestUpsellPromptSkippedWhenBothCategoriesPresent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()

	c := seededCart(t, repo, "prod-burger", "prod-fries", "prod-flan")
	w := NewWorkflow(repo, c, "branch-1", "cashier")

	if err := w.Begin(ctx, ActionSave); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if w.State() != StateCapturingPromisedTime {
		t.Fatalf("expected upsell skipped, got state %s", w.State())
	}

	if err := w.SetPromisedTime(20); err != nil {
		t.Fatalf("set promised time: %v", err)
	}
	if _, err := w.Persist(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}

	metrics := repo.UpsellMetrics()
	if len(metrics) != 1 {
		t.Fatalf("expected one upsell metric, got %d", len(metrics))
	}
	m := metrics[0]
	if m.OfferedSideDish || m.OfferedDessert {
		t.Fatalf("expected offered flags false when the prompt was skipped")
	}
	if !m.AcceptedSideDish || !m.AcceptedDessert {
		t.Fatalf("expected accepted flags true when the prompt was skipped")
	}
	if m.PromisedMinutes != 20 {
		t.Fatalf("expected promised minutes recorded, got %d", m.PromisedMinutes)
	}
}

func TestUpsellPromptShownWhenCategoryMissing(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()

	c := seededCart(t, repo, "prod-burger")
	w := NewWorkflow(repo, c, "branch-1", "cashier")

	if err := w.Begin(ctx, ActionSave); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if w.State() != StateOfferingUpsell {
		t.Fatalf("expected upsell prompt, got state %s", w.State())
	}
	if err := w.AnswerUpsell(true, true, true, false); err != nil {
		t.Fatalf("answer upsell: %v", err)
	}
	if w.State() != StateCapturingPromisedTime {
		t.Fatalf("expected promised-time capture, got state %s", w.State())
	}
}

func TestPromisedTimeBounds(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()

	c := seededCart(t, repo, "prod-burger", "prod-fries", "prod-flan")
	w := NewWorkflow(repo, c, "branch-1", "cashier")
	if err := w.Begin(ctx, ActionSave); err != nil {
		t.Fatalf("begin: %v", err)
	}

	for _, minutes := range []int{0, 4, 481, -10} {
		if err := w.SetPromisedTime(minutes); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("expected validation error for %d minutes, got %v", minutes, err)
		}
		if w.State() != StateCapturingPromisedTime {
			t.Fatalf("expected state unchanged after rejected input")
		}
	}
	if err := w.SetPromisedTime(5); err != nil {
		t.Fatalf("expected 5 minutes accepted: %v", err)
	}
}

func TestSimpleCashSale(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()

	// One line, unit price 4500, qty 2: subtotal 9000, no discount, no
	// shipping. One cash payment of 9000 settles it.
	c := seededCart(t, repo, "prod-burger")
	c.SetQuantity(cart.NewLineKey("prod-burger", nil), 2)
	w := NewWorkflow(repo, c, "branch-1", "cashier")

	order := advanceToPayment(t, w)
	if order.SubtotalCents != 9000 || order.TotalCents != 9000 {
		t.Fatalf("expected totals 9000/9000, got %d/%d", order.SubtotalCents, order.TotalCents)
	}

	if err := w.AddPayment(domain.PaymentCash, 9000); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if w.Collector().BalanceRemainingCents() != 0 {
		t.Fatalf("expected zero balance, got %d", w.Collector().BalanceRemainingCents())
	}

	final, err := w.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if w.State() != StateFinalized {
		t.Fatalf("expected finalized, got %s", w.State())
	}
	if final.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", final.Status)
	}
	if len(final.Payments) != 1 || final.Payments[0].AmountCents != 9000 {
		t.Fatalf("expected one recorded payment of 9000, got %+v", final.Payments)
	}
	if len(c.Items) != 0 || c.Customer != nil {
		t.Fatalf("expected cart reset after finalize")
	}
}

func TestPercentDiscountWithFreeShipping(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()

	// Milanesa sells at its discounted price 6000; ten of them make the
	// 60000 subtotal. 10% off and the zone-north free-shipping threshold of
	// 50000 leave a 54000 total.
	c := seededCart(t, repo, "prod-milanesa")
	c.SetQuantity(cart.NewLineKey("prod-milanesa", nil), 10)
	c.SetDeliveryMethod("dm-delivery")
	c.SetDeliveryZone("zone-north")
	c.SetDeliveryAddress(domain.DeliveryAddress{Street: "742 Evergreen Terrace"})
	c.SetDiscount(10, domain.DiscountPercent)

	method := &domain.DeliveryMethod{ID: "dm-delivery", RequiresAddress: true, HasCost: true, HomeDelivery: true}
	zone := &domain.DeliveryZone{ID: "zone-north", CostCents: 5000, FreeShippingMinCents: 50000}
	c.ApplyDeliveryRules(method, zone)

	if c.ShippingCents != 0 {
		t.Fatalf("expected free shipping, got %d", c.ShippingCents)
	}

	w := NewWorkflow(repo, c, "branch-1", "cashier")
	if err := w.Begin(ctx, ActionSave); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.AnswerUpsell(true, false, true, false); err != nil {
		t.Fatalf("answer upsell: %v", err)
	}
	if err := w.SetPromisedTime(45); err != nil {
		t.Fatalf("set promised time: %v", err)
	}
	order, err := w.Persist(ctx)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	if order.SubtotalCents != 60000 {
		t.Fatalf("expected subtotal 60000, got %d", order.SubtotalCents)
	}
	if order.DiscountCents != 6000 {
		t.Fatalf("expected discount 6000, got %d", order.DiscountCents)
	}
	if order.ShippingCents != 0 {
		t.Fatalf("expected shipping 0, got %d", order.ShippingCents)
	}
	if order.TotalCents != 54000 {
		t.Fatalf("expected total 54000, got %d", order.TotalCents)
	}
	if w.State() != StateFinalized {
		t.Fatalf("expected finalized on the save path, got %s", w.State())
	}
}

func TestPartialPaymentSaveAsPending(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()

	// Total due 12000; only 5000 is tendered before saving as pending.
	c := seededCart(t, repo, "prod-milanesa")
	c.SetQuantity(cart.NewLineKey("prod-milanesa", nil), 2)
	w := NewWorkflow(repo, c, "branch-1", "cashier")

	order := advanceToPayment(t, w)
	if order.TotalCents != 12000 {
		t.Fatalf("expected total 12000, got %d", order.TotalCents)
	}

	if err := w.AddPayment(domain.PaymentCash, 5000); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if got := w.Collector().BalanceRemainingCents(); got != 7000 {
		t.Fatalf("expected balance 7000, got %d", got)
	}
	if _, err := w.Finalize(ctx); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected finalize blocked with open balance, got %v", err)
	}

	final, err := w.SavePending(ctx)
	if err != nil {
		t.Fatalf("save pending: %v", err)
	}
	if final.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", final.Status)
	}
	if len(final.Payments) != 1 || final.Payments[0].AmountCents != 5000 {
		t.Fatalf("expected the partial payment recorded, got %+v", final.Payments)
	}
	if w.State() != StateFinalized {
		t.Fatalf("expected workflow finalized via the pending path, got %s", w.State())
	}
	if len(c.Items) != 0 {
		t.Fatalf("expected cart reset")
	}

	paid, err := repo.IsOrderFullyPaid(ctx, final.ID)
	if err != nil {
		t.Fatalf("fully paid check: %v", err)
	}
	if paid {
		t.Fatalf("expected order not fully paid")
	}
}

func TestCustomerCreditRejectedBeyondSnapshot(t *testing.T) {
	repo := memory.NewSeeded()

	// cust-ana has a 100000 credit limit and no prior movements.
	c := seededCart(t, repo, "prod-milanesa")
	c.SetQuantity(cart.NewLineKey("prod-milanesa", nil), 30) // total 180000
	w := NewWorkflow(repo, c, "branch-1", "cashier")
	advanceToPayment(t, w)

	if err := w.AddPayment(domain.PaymentCustomerCredit, 150000); !errors.Is(err, store.ErrInsufficientCredit) {
		t.Fatalf("expected insufficient credit, got %v", err)
	}
	if err := w.AddPayment(domain.PaymentCustomerCredit, 80000); err != nil {
		t.Fatalf("expected tender within snapshot accepted: %v", err)
	}
	// The snapshot is not refreshed: a second credit entry may not push the
	// combined credit use past it.
	if err := w.AddPayment(domain.PaymentCustomerCredit, 30000); !errors.Is(err, store.ErrInsufficientCredit) {
		t.Fatalf("expected combined credit use rejected, got %v", err)
	}
}

func TestCreditTenderWritesLedgerCharge(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()

	c := seededCart(t, repo, "prod-burger")
	w := NewWorkflow(repo, c, "branch-1", "cashier")
	order := advanceToPayment(t, w)

	if err := w.AddPayment(domain.PaymentCustomerCredit, order.TotalCents); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if _, err := w.Finalize(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	movements, err := repo.ListCreditMovements(ctx, "cust-ana", 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(movements))
	}
	if movements[0].Kind != domain.CreditMovementCharge || movements[0].AmountCents != order.TotalCents {
		t.Fatalf("unexpected ledger entry %+v", movements[0])
	}

	balance, err := repo.GetCreditBalance(ctx, "cust-ana")
	if err != nil {
		t.Fatalf("credit balance: %v", err)
	}
	if balance != 100000-order.TotalCents {
		t.Fatalf("expected reduced balance, got %d", balance)
	}
}

func TestDiscountAdjustmentDoesNotRescaleEntries(t *testing.T) {
	repo := memory.NewSeeded()

	c := seededCart(t, repo, "prod-milanesa")
	c.SetQuantity(cart.NewLineKey("prod-milanesa", nil), 10) // due 60000
	w := NewWorkflow(repo, c, "branch-1", "cashier")
	advanceToPayment(t, w)

	if err := w.AddPayment(domain.PaymentCash, 30000); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if err := w.AdjustDiscount(10, domain.DiscountPercent); err != nil {
		t.Fatalf("adjust discount: %v", err)
	}

	col := w.Collector()
	if col.DueCents() != 54000 {
		t.Fatalf("expected due recomputed to 54000, got %d", col.DueCents())
	}
	if col.AmountPaidCents() != 30000 {
		t.Fatalf("expected entries untouched, got paid %d", col.AmountPaidCents())
	}
	if col.BalanceRemainingCents() != 24000 {
		t.Fatalf("expected balance 24000, got %d", col.BalanceRemainingCents())
	}

	if err := w.AdjustDiscount(999999, domain.DiscountFixed); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected over-subtotal discount rejected, got %v", err)
	}
}

type failingRepo struct {
	store.Repository
	failCreate bool
}

func (r *failingRepo) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if r.failCreate {
		return nil, errors.New("backend unavailable")
	}
	return r.Repository.CreateOrder(ctx, order)
}

func TestPersistenceFailureMovesToFailedAndKeepsCart(t *testing.T) {
	ctx := context.Background()
	seeded := memory.NewSeeded()
	repo := &failingRepo{Repository: seeded, failCreate: true}

	c := seededCart(t, seeded, "prod-burger", "prod-fries", "prod-flan")
	w := NewWorkflow(repo, c, "branch-1", "cashier")

	if err := w.Begin(ctx, ActionSave); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.SetPromisedTime(30); err != nil {
		t.Fatalf("set promised time: %v", err)
	}
	if _, err := w.Persist(ctx); err == nil {
		t.Fatalf("expected persistence failure")
	}

	if w.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", w.State())
	}
	if w.PendingAction() != ActionNone {
		t.Fatalf("expected pending action cleared after failure")
	}
	if len(c.Items) != 3 {
		t.Fatalf("expected cart intact after failure, got %d items", len(c.Items))
	}

	// The attempt restarts cleanly once the backend recovers.
	repo.failCreate = false
	if err := w.Begin(ctx, ActionSave); err != nil {
		t.Fatalf("restart begin: %v", err)
	}
	if err := w.SetPromisedTime(30); err != nil {
		t.Fatalf("restart promised time: %v", err)
	}
	if _, err := w.Persist(ctx); err != nil {
		t.Fatalf("restart persist: %v", err)
	}
	if w.State() != StateFinalized {
		t.Fatalf("expected finalized after retry, got %s", w.State())
	}
}

func TestEditModeUpdatesExistingOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()

	c := seededCart(t, repo, "prod-burger", "prod-fries", "prod-flan")
	w := NewWorkflow(repo, c, "branch-1", "cashier")
	if err := w.Begin(ctx, ActionSave); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.SetPromisedTime(30); err != nil {
		t.Fatalf("promised time: %v", err)
	}
	created, err := w.Persist(ctx)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	// Load for edit, change a quantity, save again.
	stored, err := repo.GetOrderByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	edit := cart.New(cart.NopNotifier{})
	if err := edit.LoadFromOrder(stored); err != nil {
		t.Fatalf("load for edit: %v", err)
	}
	if err := edit.SetQuantity(cart.NewLineKey("prod-burger", nil), 3); err != nil {
		t.Fatalf("set quantity: %v", err)
	}

	w2 := NewWorkflow(repo, edit, "branch-1", "cashier")
	if err := w2.Begin(ctx, ActionSave); err != nil {
		t.Fatalf("edit begin: %v", err)
	}
	if err := w2.SetPromisedTime(30); err != nil {
		t.Fatalf("edit promised time: %v", err)
	}
	updated, err := w2.Persist(ctx)
	if err != nil {
		t.Fatalf("edit persist: %v", err)
	}

	if updated.ID != created.ID {
		t.Fatalf("expected in-place update, got new id %s", updated.ID)
	}
	wantSubtotal := int64(3*4500 + 1500 + 1800)
	if updated.SubtotalCents != wantSubtotal {
		t.Fatalf("expected subtotal %d, got %d", wantSubtotal, updated.SubtotalCents)
	}
	// Only the original create wrote an analytics record.
	if got := len(repo.UpsellMetrics()); got != 1 {
		t.Fatalf("expected a single upsell metric, got %d", got)
	}
}
