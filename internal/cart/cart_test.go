package cart

import (
	"errors"
	"testing"

	"fondapos/backend/internal/domain"
	"fondapos/backend/internal/store"
)

type recordingNotifier struct {
	infos []string
	warns []string
}

func (n *recordingNotifier) Info(msg string) { n.infos = append(n.infos, msg) }
func (n *recordingNotifier) Warn(msg string) { n.warns = append(n.warns, msg) }

var (
	burger = domain.Product{ID: "prod-burger", Name: "Classic Burger", CategoryID: "cat-main", PriceCents: 4500, Active: true, Purchasable: true}
	fries  = domain.Product{ID: "prod-fries", Name: "Fries", CategoryID: "cat-sides", PriceCents: 1500, Active: true, Purchasable: true}

	cheese = domain.AddOn{ID: "ao-cheese", Name: "Extra cheese", PriceCents: 500}
	bacon  = domain.AddOn{ID: "ao-bacon", Name: "Bacon", PriceCents: 700}
)

func TestAddItemDistinctAddOnSetsAreDistinctLines(t *testing.T) {
	c := New(NopNotifier{})

	c.AddItem(burger, []domain.AddOn{cheese})
	c.AddItem(burger, []domain.AddOn{bacon})

	if len(c.Items) != 2 {
		t.Fatalf("expected 2 distinct lines, got %d", len(c.Items))
	}
}

func TestAddItemSameAddOnSetCollapses(t *testing.T) {
	c := New(NopNotifier{})

	// Add-on order must not matter for identity.
	c.AddItem(burger, []domain.AddOn{cheese, bacon})
	c.AddItem(burger, []domain.AddOn{bacon, cheese})

	if len(c.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(c.Items))
	}
	if c.Items[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", c.Items[0].Quantity)
	}
	wantUnit := int64(4500 + 500 + 700)
	if c.Items[0].UnitPriceCents != wantUnit {
		t.Fatalf("expected unit price %d, got %d", wantUnit, c.Items[0].UnitPriceCents)
	}
	if c.Items[0].SubtotalCents != wantUnit*2 {
		t.Fatalf("expected line subtotal %d, got %d", wantUnit*2, c.Items[0].SubtotalCents)
	}
}

func TestSubtotalAdditivityAcrossMutations(t *testing.T) {
	c := New(NopNotifier{})

	c.AddItem(burger, nil)
	c.AddItem(burger, []domain.AddOn{cheese})
	c.AddItem(fries, nil)

	check := func() {
		t.Helper()
		var want int64
		for _, line := range c.Items {
			want += line.UnitPriceCents * int64(line.Quantity)
		}
		if got := c.SubtotalCents(); got != want {
			t.Fatalf("subtotal %d does not match sum of lines %d", got, want)
		}
	}

	check()
	if err := c.SetQuantity(NewLineKey(burger.ID, nil), 5); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	check()
	if err := c.RemoveItem(NewLineKey(fries.ID, nil)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	check()
	c.UndoRemove()
	check()
}

func TestSetQuantityZeroRemovesLine(t *testing.T) {
	c := New(NopNotifier{})
	c.AddItem(burger, nil)

	if err := c.SetQuantity(NewLineKey(burger.ID, nil), 0); err != nil {
		t.Fatalf("set quantity 0: %v", err)
	}
	if len(c.Items) != 0 {
		t.Fatalf("expected line removed at quantity 0")
	}
	if c.LastRemoved == nil {
		t.Fatalf("expected removal to populate undo buffer")
	}
}

func TestUndoRemoveRestoresIdenticalLineOnce(t *testing.T) {
	c := New(NopNotifier{})
	c.AddItem(burger, []domain.AddOn{cheese})
	c.SetQuantity(NewLineKey(burger.ID, []domain.AddOn{cheese}), 3)
	original := c.Items[0]

	if err := c.RemoveItem(original.Key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !c.UndoRemove() {
		t.Fatalf("expected undo to restore the line")
	}

	restored := c.Items[0]
	if !restored.Key.Equal(original.Key) {
		t.Fatalf("restored key differs")
	}
	if restored.UnitPriceCents != original.UnitPriceCents || restored.Quantity != original.Quantity {
		t.Fatalf("restored line differs: %+v vs %+v", restored, original)
	}
	if len(restored.AddOns) != 1 || restored.AddOns[0].ID != cheese.ID {
		t.Fatalf("restored add-ons differ")
	}

	if c.UndoRemove() {
		t.Fatalf("second undo with empty buffer must be a no-op")
	}
}

func TestRemoveOverwritesUndoBuffer(t *testing.T) {
	c := New(NopNotifier{})
	c.AddItem(burger, nil)
	c.AddItem(fries, nil)

	c.RemoveItem(NewLineKey(burger.ID, nil))
	c.RemoveItem(NewLineKey(fries.ID, nil))

	if c.LastRemoved == nil || c.LastRemoved.ProductID != fries.ID {
		t.Fatalf("expected buffer to hold the most recent removal")
	}
	c.UndoRemove()
	if len(c.Items) != 1 || c.Items[0].ProductID != fries.ID {
		t.Fatalf("expected only the fries line restored")
	}
}

func TestReplaceAddOnsCarriesQuantity(t *testing.T) {
	c := New(NopNotifier{})
	c.AddItem(burger, []domain.AddOn{cheese})
	c.SetQuantity(NewLineKey(burger.ID, []domain.AddOn{cheese}), 4)

	if err := c.ReplaceAddOns(NewLineKey(burger.ID, []domain.AddOn{cheese}), burger, []domain.AddOn{bacon}); err != nil {
		t.Fatalf("replace add-ons: %v", err)
	}

	if len(c.Items) != 1 {
		t.Fatalf("expected 1 line after replacement, got %d", len(c.Items))
	}
	line := c.Items[0]
	if line.Quantity != 4 {
		t.Fatalf("expected quantity carried over, got %d", line.Quantity)
	}
	if line.UnitPriceCents != 4500+700 {
		t.Fatalf("expected recomputed unit price, got %d", line.UnitPriceCents)
	}
	if !line.Key.Equal(NewLineKey(burger.ID, []domain.AddOn{bacon})) {
		t.Fatalf("expected new identity key")
	}
}

func TestApplyDeliveryRulesFreeShippingThreshold(t *testing.T) {
	zone := &domain.DeliveryZone{ID: "zone-north", CostCents: 5000, FreeShippingMinCents: 50000}
	method := &domain.DeliveryMethod{ID: "dm-home", RequiresAddress: true, HasCost: true, HomeDelivery: true}

	c := New(NopNotifier{})
	c.SetDeliveryMethod(method.ID)
	c.SetDeliveryZone(zone.ID)

	// Subtotal $499.99 → zone cost applies.
	c.AddItem(domain.Product{ID: "p1", Name: "Tray", PriceCents: 49999, Active: true, Purchasable: true}, nil)
	c.ApplyDeliveryRules(method, zone)
	if c.ShippingCents != 5000 {
		t.Fatalf("expected shipping 5000 below threshold, got %d", c.ShippingCents)
	}

	// One more cent crosses the threshold.
	c.AddItem(domain.Product{ID: "p2", Name: "Mint", PriceCents: 1, Active: true, Purchasable: true}, nil)
	c.ApplyDeliveryRules(method, zone)
	if c.ShippingCents != 0 {
		t.Fatalf("expected free shipping at threshold, got %d", c.ShippingCents)
	}
}

func TestApplyDeliveryRulesNoAddressMethodClearsDeliveryFields(t *testing.T) {
	method := &domain.DeliveryMethod{ID: "dm-pickup", RequiresAddress: false}

	c := New(NopNotifier{})
	c.SetDeliveryMethod(method.ID)
	c.SetDeliveryZone("zone-north")
	c.SetShippingCents(5000)
	c.SetDeliveryAddress(domain.DeliveryAddress{Street: "123 Main St"})

	c.ApplyDeliveryRules(method, nil)

	if c.ShippingCents != 0 {
		t.Fatalf("expected shipping forced to 0, got %d", c.ShippingCents)
	}
	if c.DeliveryZoneID != "" || c.DeliveryAddress.Street != "" {
		t.Fatalf("expected zone and address cleared")
	}
}

func TestRevalidatePricesUpdatesAndDrops(t *testing.T) {
	notifier := &recordingNotifier{}
	c := New(notifier)
	c.AddItem(burger, []domain.AddOn{cheese})
	c.AddItem(fries, nil)
	c.SetQuantity(NewLineKey(burger.ID, []domain.AddOn{cheese}), 2)

	// Burger price went up; fries vanished from the catalog.
	repriced := burger
	repriced.PriceCents = 5200
	catalog := map[string]domain.Product{burger.ID: repriced}

	c.RevalidatePrices(catalog)

	if len(c.Items) != 1 {
		t.Fatalf("expected dropped line for missing product, got %d lines", len(c.Items))
	}
	line := c.Items[0]
	if line.UnitPriceCents != 5200+500 {
		t.Fatalf("expected repriced unit 5700, got %d", line.UnitPriceCents)
	}
	if line.SubtotalCents != (5200+500)*2 {
		t.Fatalf("expected repriced subtotal, got %d", line.SubtotalCents)
	}
	if len(notifier.warns) != 1 {
		t.Fatalf("expected a drop warning, got %v", notifier.warns)
	}
	if len(notifier.infos) == 0 {
		t.Fatalf("expected a price-changed notice")
	}
}

func TestLoadFromOrderFallsBackToDenormalizedCustomer(t *testing.T) {
	order := &domain.Order{
		ID:           "ord-1",
		CustomerID:   "cust-9",
		CustomerName: "Ana Morales",
		Customer:     &domain.Customer{}, // backend returned an empty nested object
		Items: []domain.OrderItem{
			{ProductID: "prod-burger", Name: "Classic Burger", BaseName: "Classic Burger", UnitPriceCents: 4500, Quantity: 2},
		},
	}

	c := New(NopNotifier{})
	if err := c.LoadFromOrder(order); err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Customer == nil {
		t.Fatalf("expected customer reconstructed from flat fields")
	}
	if c.Customer.Name != "Ana Morales" {
		t.Fatalf("expected denormalized name, got %q", c.Customer.Name)
	}
	if c.EditingOrderID != "ord-1" {
		t.Fatalf("expected edit mode marker set")
	}
	if c.SubtotalCents() != 9000 {
		t.Fatalf("expected subtotal 9000, got %d", c.SubtotalCents())
	}
}

func TestLoadFromOrderMissingNestedProductUsesFlatID(t *testing.T) {
	order := &domain.Order{
		ID: "ord-2",
		Items: []domain.OrderItem{
			{ProductID: "prod-fries", Name: "Fries", UnitPriceCents: 1500, Quantity: 3},
		},
	}

	c := New(NopNotifier{})
	if err := c.LoadFromOrder(order); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Items[0].ProductID != "prod-fries" {
		t.Fatalf("expected flat product id resolved")
	}
	if c.Items[0].SubtotalCents != 4500 {
		t.Fatalf("expected subtotal recomputed, got %d", c.Items[0].SubtotalCents)
	}
}

func TestLoadFromOrderRejectsUnresolvableItem(t *testing.T) {
	order := &domain.Order{
		ID: "ord-3",
		Items: []domain.OrderItem{
			{ProductID: "prod-burger", UnitPriceCents: 4500, Quantity: 1},
			{Name: "Mystery item", UnitPriceCents: 100, Quantity: 1}, // no product reference at all
		},
	}

	c := New(NopNotifier{})
	c.AddItem(fries, nil)

	err := c.LoadFromOrder(order)
	if !errors.Is(err, store.ErrCorruptOrder) {
		t.Fatalf("expected ErrCorruptOrder, got %v", err)
	}
	// The failed load must not partially mutate the cart.
	if len(c.Items) != 1 || c.Items[0].ProductID != fries.ID {
		t.Fatalf("expected cart untouched after rejected load")
	}
	if c.EditingOrderID != "" {
		t.Fatalf("expected edit marker untouched after rejected load")
	}
}

func TestResetClearsEverythingIncludingEditMode(t *testing.T) {
	c := New(NopNotifier{})
	c.AddItem(burger, nil)
	c.SetCustomer(&domain.Customer{ID: "cust-1", Name: "Test"})
	c.SetDiscount(10, domain.DiscountPercent)
	c.EditingOrderID = "ord-9"
	c.RemoveItem(NewLineKey(burger.ID, nil))

	c.Reset()

	if len(c.Items) != 0 || c.Customer != nil || c.DiscountValue != 0 || c.EditingOrderID != "" || c.LastRemoved != nil {
		t.Fatalf("expected full reset, got %+v", c)
	}
}

func TestDiscountClampingAndTotals(t *testing.T) {
	c := New(NopNotifier{})
	c.AddItem(domain.Product{ID: "p", Name: "Combo", PriceCents: 60000, Active: true, Purchasable: true}, nil)

	c.SetDiscount(10, domain.DiscountPercent)
	if got := c.DiscountCents(); got != 6000 {
		t.Fatalf("expected 10%% of 60000 = 6000, got %d", got)
	}
	if got := c.TotalWithDiscountCents(); got != 54000 {
		t.Fatalf("expected total 54000, got %d", got)
	}

	c.SetDiscount(999999, domain.DiscountFixed)
	if got := c.DiscountCents(); got != 60000 {
		t.Fatalf("expected discount clamped to subtotal, got %d", got)
	}
	if got := c.TotalWithDiscountCents(); got != 0 {
		t.Fatalf("expected total never negative, got %d", got)
	}

	c.ClearDiscount()
	if c.DiscountCents() != 0 {
		t.Fatalf("expected cleared discount")
	}
}
