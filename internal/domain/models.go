package domain

import "time"

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Category roles mark the two categories the checkout upsell prompt cares
// about. A category with an empty role is an ordinary menu section.
const (
	CategoryRoleSideDish = "side_dish"
	CategoryRoleDessert  = "dessert"
)

type AddOn struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

type Product struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	CategoryID         string  `json:"category_id"`
	PriceCents         int64   `json:"price_cents"`
	DiscountPriceCents int64   `json:"discount_price_cents,omitempty"`
	ImageRef           string  `json:"image_ref,omitempty"`
	Active             bool    `json:"active"`
	Purchasable        bool    `json:"purchasable"`
	RequiresAddOns     bool    `json:"requires_add_ons"`
	MinAddOns          int     `json:"min_add_ons"`
	MaxAddOns          int     `json:"max_add_ons"`
	AddOns             []AddOn `json:"add_ons,omitempty"`
}

// EffectivePriceCents is the base price a new cart line starts from: the
// discounted price when one is set, the list price otherwise.
func (p Product) EffectivePriceCents() int64 {
	if p.DiscountPriceCents > 0 && p.DiscountPriceCents < p.PriceCents {
		return p.DiscountPriceCents
	}
	return p.PriceCents
}

type Customer struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone,omitempty"`
	Email            string    `json:"email,omitempty"`
	Address          string    `json:"address,omitempty"`
	CreditLimitCents int64     `json:"credit_limit_cents"`
	CreatedAt        time.Time `json:"created_at"`
}

type CreditMovement struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	Kind        string    `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	Memo        string    `json:"memo,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	CreditMovementCharge  = "charge"
	CreditMovementPayment = "payment"
)

type DeliveryMethod struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	RequiresAddress bool   `json:"requires_address"`
	HasCost         bool   `json:"has_cost"`
	HomeDelivery    bool   `json:"home_delivery"`
}

type DeliveryZone struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	CostCents            int64  `json:"cost_cents"`
	FreeShippingMinCents int64  `json:"free_shipping_min_cents,omitempty"`
}

type DeliveryAddress struct {
	Street    string `json:"street"`
	City      string `json:"city,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type DiscountKind string

const (
	DiscountFixed   DiscountKind = "fixed"
	DiscountPercent DiscountKind = "percent"
)

type PaymentMethod string

const (
	PaymentCash           PaymentMethod = "cash"
	PaymentDebit          PaymentMethod = "debit"
	PaymentCredit         PaymentMethod = "credit"
	PaymentTransfer       PaymentMethod = "transfer"
	PaymentCustomerCredit PaymentMethod = "customer_credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentDebit, PaymentCredit, PaymentTransfer, PaymentCustomerCredit:
		return true
	default:
		return false
	}
}

type Payment struct {
	ID          string        `json:"id"`
	OrderID     string        `json:"order_id"`
	Method      PaymentMethod `json:"method"`
	AmountCents int64         `json:"amount_cents"`
	CreatedAt   time.Time     `json:"created_at"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

type OrderItemAddOn struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

type OrderItem struct {
	ID             string           `json:"id"`
	OrderID        string           `json:"order_id,omitempty"`
	ProductID      string           `json:"product_id"`
	Product        *Product         `json:"product,omitempty"`
	Name           string           `json:"name"`
	BaseName       string           `json:"base_name"`
	UnitPriceCents int64            `json:"unit_price_cents"`
	Quantity       int              `json:"quantity"`
	SubtotalCents  int64            `json:"subtotal_cents"`
	AddOns         []OrderItemAddOn `json:"add_ons,omitempty"`
}

type Order struct {
	ID               string          `json:"id"`
	BranchID         string          `json:"branch_id"`
	Status           string          `json:"status"`
	CustomerID       string          `json:"customer_id,omitempty"`
	CustomerName     string          `json:"customer_name,omitempty"`
	Customer         *Customer       `json:"customer,omitempty"`
	SubtotalCents    int64           `json:"subtotal_cents"`
	DiscountCents    int64           `json:"discount_cents"`
	DiscountValue    float64         `json:"discount_value,omitempty"`
	DiscountKind     DiscountKind    `json:"discount_kind,omitempty"`
	ShippingCents    int64           `json:"shipping_cents"`
	TotalCents       int64           `json:"total_cents"`
	DeliveryMethodID string          `json:"delivery_method_id,omitempty"`
	DeliveryZoneID   string          `json:"delivery_zone_id,omitempty"`
	DeliveryAddress  DeliveryAddress `json:"delivery_address,omitempty"`
	DeliveryNotes    string          `json:"delivery_notes,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	PromisedMinutes  int             `json:"promised_minutes,omitempty"`
	CreatedBy        string          `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        *time.Time      `json:"deleted_at,omitempty"`
	Items            []OrderItem     `json:"items"`
	Payments         []Payment       `json:"payments,omitempty"`
}

// PaidCents sums the recorded payments on the order.
func (o Order) PaidCents() int64 {
	var paid int64
	for _, p := range o.Payments {
		paid += p.AmountCents
	}
	return paid
}

// UpsellMetric is the per-order analytics record written after a successful
// order create. Writes are best-effort and never block the order.
type UpsellMetric struct {
	ID               string    `json:"id"`
	OrderID          string    `json:"order_id"`
	OfferedSideDish  bool      `json:"offered_side_dish"`
	AcceptedSideDish bool      `json:"accepted_side_dish"`
	OfferedDessert   bool      `json:"offered_dessert"`
	AcceptedDessert  bool      `json:"accepted_dessert"`
	PromisedMinutes  int       `json:"promised_minutes"`
	CreatedAt        time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	BranchID      string    `json:"branch_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type CustomerCreateRequest struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	Address          string `json:"address"`
	CreditLimitCents int64  `json:"credit_limit_cents"`
}

type CreditMovementRequest struct {
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	Memo        string `json:"memo"`
}

type ProductCreateRequest struct {
	Name               string  `json:"name"`
	CategoryID         string  `json:"category_id"`
	PriceCents         int64   `json:"price_cents"`
	DiscountPriceCents int64   `json:"discount_price_cents"`
	ImageRef           string  `json:"image_ref"`
	RequiresAddOns     bool    `json:"requires_add_ons"`
	MinAddOns          int     `json:"min_add_ons"`
	MaxAddOns          int     `json:"max_add_ons"`
	AddOns             []AddOn `json:"add_ons"`
}

type ProductUpdateRequest struct {
	Name               *string  `json:"name,omitempty"`
	CategoryID         *string  `json:"category_id,omitempty"`
	PriceCents         *int64   `json:"price_cents,omitempty"`
	DiscountPriceCents *int64   `json:"discount_price_cents,omitempty"`
	Active             *bool    `json:"active,omitempty"`
	Purchasable        *bool    `json:"purchasable,omitempty"`
	AddOns             *[]AddOn `json:"add_ons,omitempty"`
}
