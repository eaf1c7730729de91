// Package cart implements the order-in-progress aggregate: line items keyed
// by product + add-on selection, the single-slot removal undo buffer, the
// discount/shipping fields, and lossless reconstruction from a persisted
// order for edit mode.
package cart

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"fondapos/backend/internal/domain"
	"fondapos/backend/internal/pricing"
	"fondapos/backend/internal/store"
)

var ErrLineNotFound = errors.New("cart line not found")

// Notifier receives the user-visible signals the aggregate emits (item
// added, price changed, item dropped). Injected so tests and headless
// callers can run without a UI.
type Notifier interface {
	Info(msg string)
	Warn(msg string)
}

type NopNotifier struct{}

func (NopNotifier) Info(string) {}
func (NopNotifier) Warn(string) {}

// LineKey identifies a line item by product plus the exact add-on set.
// AddOnIDs is kept sorted so equality is structural and order-independent.
type LineKey struct {
	ProductID string   `json:"product_id"`
	AddOnIDs  []string `json:"add_on_ids,omitempty"`
}

func NewLineKey(productID string, addOns []domain.AddOn) LineKey {
	ids := make([]string, 0, len(addOns))
	for _, a := range addOns {
		ids = append(ids, a.ID)
	}
	slices.Sort(ids)
	return LineKey{ProductID: productID, AddOnIDs: ids}
}

func (k LineKey) Equal(other LineKey) bool {
	return k.ProductID == other.ProductID && slices.Equal(k.AddOnIDs, other.AddOnIDs)
}

type LineItem struct {
	Key            LineKey        `json:"key"`
	ProductID      string         `json:"product_id"`
	Name           string         `json:"name"`
	BaseName       string         `json:"base_name"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	Quantity       int            `json:"quantity"`
	SubtotalCents  int64          `json:"subtotal_cents"`
	AddOns         []domain.AddOn `json:"add_ons,omitempty"`
}

// Cart is the order being built by one operator. Mutations are plain method
// calls; persistence and notification are collaborator concerns, not the
// aggregate's.
type Cart struct {
	Items           []LineItem             `json:"items"`
	Customer        *domain.Customer       `json:"customer,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	DeliveryMethodID string                `json:"delivery_method_id,omitempty"`
	ShippingCents   int64                  `json:"shipping_cents"`
	DeliveryAddress domain.DeliveryAddress `json:"delivery_address"`
	DeliveryZoneID  string                 `json:"delivery_zone_id,omitempty"`
	DeliveryNotes   string                 `json:"delivery_notes,omitempty"`
	DiscountValue   float64                `json:"discount_value"`
	DiscountKind    domain.DiscountKind    `json:"discount_kind,omitempty"`
	// EditingOrderID is set when the cart was loaded from a persisted order;
	// empty means a brand-new order.
	EditingOrderID string `json:"editing_order_id,omitempty"`
	// LastRemoved is the single-slot undo buffer; the next removal
	// overwrites it.
	LastRemoved *LineItem `json:"last_removed,omitempty"`

	notify Notifier
}

func New(notifier Notifier) *Cart {
	c := &Cart{}
	c.SetNotifier(notifier)
	return c
}

// SetNotifier re-attaches the notifier after a snapshot reload.
func (c *Cart) SetNotifier(notifier Notifier) {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	c.notify = notifier
}

func (c *Cart) notifier() Notifier {
	if c.notify == nil {
		return NopNotifier{}
	}
	return c.notify
}

func annotatedName(base string, addOns []domain.AddOn) string {
	if len(addOns) == 0 {
		return base
	}
	names := make([]string, 0, len(addOns))
	for _, a := range addOns {
		names = append(names, a.Name)
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(names, ", "))
}

func (c *Cart) findIndex(key LineKey) int {
	for i := range c.Items {
		if c.Items[i].Key.Equal(key) {
			return i
		}
	}
	return -1
}

// AddItem inserts a new line for the product + add-on combination, or bumps
// the quantity when an identical combination is already in the cart. The
// unit price is fixed here and not recomputed on later reads.
func (c *Cart) AddItem(product domain.Product, addOns []domain.AddOn) *LineItem {
	key := NewLineKey(product.ID, addOns)
	if idx := c.findIndex(key); idx >= 0 {
		_ = c.SetQuantity(key, c.Items[idx].Quantity+1)
		c.notifier().Info(fmt.Sprintf("added %s", c.Items[idx].Name))
		return &c.Items[idx]
	}

	unit := pricing.UnitPriceCents(product.EffectivePriceCents(), addOns)
	line := LineItem{
		Key:            key,
		ProductID:      product.ID,
		Name:           annotatedName(product.Name, addOns),
		BaseName:       product.Name,
		UnitPriceCents: unit,
		Quantity:       1,
		SubtotalCents:  unit,
		AddOns:         append([]domain.AddOn(nil), addOns...),
	}
	c.Items = append(c.Items, line)
	c.notifier().Info(fmt.Sprintf("added %s", line.Name))
	return &c.Items[len(c.Items)-1]
}

// RemoveItem drops the line and captures it into the undo buffer,
// overwriting whatever was buffered before.
func (c *Cart) RemoveItem(key LineKey) error {
	idx := c.findIndex(key)
	if idx < 0 {
		return ErrLineNotFound
	}
	removed := c.Items[idx]
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.LastRemoved = &removed
	return nil
}

// UndoRemove re-inserts the buffered line (appended, not restored to its
// original position) and clears the buffer. Reports whether anything was
// restored.
func (c *Cart) UndoRemove() bool {
	if c.LastRemoved == nil {
		return false
	}
	c.Items = append(c.Items, *c.LastRemoved)
	c.LastRemoved = nil
	return true
}

// SetQuantity updates the quantity and line subtotal atomically; a quantity
// of zero or less removes the line.
func (c *Cart) SetQuantity(key LineKey, quantity int) error {
	if quantity <= 0 {
		return c.RemoveItem(key)
	}
	idx := c.findIndex(key)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.Items[idx].Quantity = quantity
	c.Items[idx].SubtotalCents = c.Items[idx].UnitPriceCents * int64(quantity)
	return nil
}

// ReplaceAddOns swaps a line's customization. The identity key is derived
// data, so this is a destroy + create that carries the old quantity over.
// If the new combination already exists in the cart the quantities merge.
func (c *Cart) ReplaceAddOns(key LineKey, product domain.Product, addOns []domain.AddOn) error {
	idx := c.findIndex(key)
	if idx < 0 {
		return ErrLineNotFound
	}
	quantity := c.Items[idx].Quantity
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)

	newKey := NewLineKey(product.ID, addOns)
	if existing := c.findIndex(newKey); existing >= 0 {
		return c.SetQuantity(newKey, c.Items[existing].Quantity+quantity)
	}

	unit := pricing.UnitPriceCents(product.EffectivePriceCents(), addOns)
	c.Items = append(c.Items, LineItem{
		Key:            newKey,
		ProductID:      product.ID,
		Name:           annotatedName(product.Name, addOns),
		BaseName:       product.Name,
		UnitPriceCents: unit,
		Quantity:       quantity,
		SubtotalCents:  unit * int64(quantity),
		AddOns:         append([]domain.AddOn(nil), addOns...),
	})
	return nil
}

func (c *Cart) SetDiscount(value float64, kind domain.DiscountKind) {
	c.DiscountValue = value
	c.DiscountKind = kind
}

func (c *Cart) ClearDiscount() {
	c.DiscountValue = 0
	c.DiscountKind = ""
}

func (c *Cart) SetCustomer(customer *domain.Customer) { c.Customer = customer }
func (c *Cart) SetNotes(notes string)                 { c.Notes = notes }
func (c *Cart) SetDeliveryNotes(notes string)         { c.DeliveryNotes = notes }

func (c *Cart) SetDeliveryMethod(id string)                   { c.DeliveryMethodID = id }
func (c *Cart) SetDeliveryZone(id string)                     { c.DeliveryZoneID = id }
func (c *Cart) SetShippingCents(cents int64)                  { c.ShippingCents = cents }
func (c *Cart) SetDeliveryAddress(a domain.DeliveryAddress)   { c.DeliveryAddress = a }

// ApplyDeliveryRules enforces the cross-field shipping invariants. The
// setters above are intentionally dumb; this is the one place the rules
// live, and callers invoke it whenever the delivery method, zone, or
// subtotal changes.
func (c *Cart) ApplyDeliveryRules(method *domain.DeliveryMethod, zone *domain.DeliveryZone) {
	if method == nil || !method.RequiresAddress {
		c.ShippingCents = 0
		c.DeliveryZoneID = ""
		c.DeliveryAddress = domain.DeliveryAddress{}
		return
	}
	if zone == nil {
		c.ShippingCents = 0
		return
	}
	if zone.FreeShippingMinCents > 0 && c.SubtotalCents() >= zone.FreeShippingMinCents {
		c.ShippingCents = 0
		return
	}
	c.ShippingCents = zone.CostCents
}

// RevalidatePrices recomputes each line's unit price from the current
// catalog plus its already-selected add-ons. Price drift updates the line
// with a visible notice; a product missing from the catalog drops the line
// with a warning. Protects stale carts left open across catalog changes.
func (c *Cart) RevalidatePrices(catalog map[string]domain.Product) {
	kept := make([]LineItem, 0, len(c.Items))
	for _, line := range c.Items {
		product, ok := catalog[line.ProductID]
		if !ok {
			c.notifier().Warn(fmt.Sprintf("%s is no longer available and was removed from the order", line.BaseName))
			continue
		}
		want := pricing.UnitPriceCents(product.EffectivePriceCents(), line.AddOns)
		if want != line.UnitPriceCents {
			line.UnitPriceCents = want
			line.SubtotalCents = want * int64(line.Quantity)
			c.notifier().Info(fmt.Sprintf("price of %s changed", line.BaseName))
		}
		kept = append(kept, line)
	}
	c.Items = kept
}

// LoadFromOrder rebuilds the cart wholesale from a persisted order and
// marks edit mode. Items tolerate a missing nested product as long as the
// flat product id resolves; an item with no product id at all rejects the
// whole load. The customer reference falls back to the order's denormalized
// fields when the nested customer object is empty.
func (c *Cart) LoadFromOrder(order *domain.Order) error {
	items := make([]LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		productID := item.ProductID
		if productID == "" && item.Product != nil {
			productID = item.Product.ID
		}
		if productID == "" {
			return fmt.Errorf("%w: order %s has a line item with no product reference", store.ErrCorruptOrder, order.ID)
		}

		addOns := make([]domain.AddOn, 0, len(item.AddOns))
		for _, a := range item.AddOns {
			addOns = append(addOns, domain.AddOn{ID: a.ID, Name: a.Name, PriceCents: a.PriceCents})
		}

		baseName := item.BaseName
		if baseName == "" && item.Product != nil {
			baseName = item.Product.Name
		}
		if baseName == "" {
			baseName = item.Name
		}
		name := item.Name
		if name == "" {
			name = annotatedName(baseName, addOns)
		}

		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}

		items = append(items, LineItem{
			Key:            NewLineKey(productID, addOns),
			ProductID:      productID,
			Name:           name,
			BaseName:       baseName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       quantity,
			SubtotalCents:  item.UnitPriceCents * int64(quantity),
			AddOns:         addOns,
		})
	}

	var customer *domain.Customer
	if order.Customer != nil && order.Customer.ID != "" {
		copied := *order.Customer
		customer = &copied
	} else if order.CustomerID != "" {
		customer = &domain.Customer{ID: order.CustomerID, Name: order.CustomerName}
	}

	c.Items = items
	c.Customer = customer
	c.Notes = order.Notes
	c.DeliveryMethodID = order.DeliveryMethodID
	c.ShippingCents = order.ShippingCents
	c.DeliveryAddress = order.DeliveryAddress
	c.DeliveryZoneID = order.DeliveryZoneID
	c.DeliveryNotes = order.DeliveryNotes
	c.DiscountValue = order.DiscountValue
	c.DiscountKind = order.DiscountKind
	if c.DiscountKind == "" && order.DiscountCents > 0 {
		// Older orders stored only the resolved amount.
		c.DiscountValue = float64(order.DiscountCents)
		c.DiscountKind = domain.DiscountFixed
	}
	c.EditingOrderID = order.ID
	c.LastRemoved = nil
	return nil
}

// Reset clears every field back to defaults. This is the only path that
// exits edit mode.
func (c *Cart) Reset() {
	notifier := c.notify
	*c = Cart{}
	c.notify = notifier
}

func (c *Cart) SubtotalCents() int64 {
	var total int64
	for _, line := range c.Items {
		total += line.SubtotalCents
	}
	return total
}

// ItemCount is the sum of quantities, not the number of distinct lines.
func (c *Cart) ItemCount() int {
	count := 0
	for _, line := range c.Items {
		count += line.Quantity
	}
	return count
}

func (c *Cart) DiscountCents() int64 {
	return pricing.DiscountAmountCents(c.SubtotalCents(), c.DiscountValue, c.DiscountKind)
}

func (c *Cart) TotalWithDiscountCents() int64 {
	return c.SubtotalCents() - c.DiscountCents()
}

func (c *Cart) TotalWithShippingCents() int64 {
	return c.TotalWithDiscountCents() + c.ShippingCents
}
