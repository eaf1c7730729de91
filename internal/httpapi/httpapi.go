package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"fondapos/backend/internal/cart"
	"fondapos/backend/internal/cartstore"
	"fondapos/backend/internal/checkout"
	"fondapos/backend/internal/domain"
	"fondapos/backend/internal/service"
	"fondapos/backend/internal/store"
)

type API struct {
	service       *service.Service
	repo          store.Repository
	auth          *AuthManager
	carts         cartstore.Store
	cartTTL       time.Duration
	branchID      string
	allowedOrigin string
	loginLimiter  *attemptLimiter
	sessions      *sessionManager
}

func New(svc *service.Service, repo store.Repository, auth *AuthManager, carts cartstore.Store, cartTTL time.Duration, allowedOrigin string) *API {
	return &API{
		service:       svc,
		repo:          repo,
		auth:          auth,
		carts:         carts,
		cartTTL:       cartTTL,
		branchID:      svc.DefaultBranchID(),
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		sessions:      newSessionManager(),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/users/cashiers", a.requireAuth(a.handleCashiers, "admin"))

	mux.HandleFunc("/api/v1/categories", a.requireAuth(a.handleCategories, "cashier", "admin"))
	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers, "cashier", "admin"))
	mux.HandleFunc("/api/v1/customers/", a.requireAuth(a.handleCustomerActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/delivery/methods", a.requireAuth(a.handleDeliveryMethods, "cashier", "admin"))
	mux.HandleFunc("/api/v1/delivery/zones", a.requireAuth(a.handleDeliveryZones, "cashier", "admin"))

	mux.HandleFunc("/api/v1/cart", a.requireAuth(a.handleCart, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/", a.requireAuth(a.handleCartActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/checkout/", a.requireAuth(a.handleCheckoutActions, "cashier", "admin"))

	mux.HandleFunc("/api/v1/orders", a.requireAuth(a.handleOrders, "cashier", "admin"))
	mux.HandleFunc("/api/v1/orders/", a.requireAuth(a.handleOrderActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers()})
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		cashier, err := a.auth.CreateCashier(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	categories, err := a.service.ListCategories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/products/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		updated, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": updated})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query().Get("q")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 20, 100)
		customers, err := a.service.SearchCustomers(r.Context(), query, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/customers/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("customer id required"))
		return
	}

	if id, ok := strings.CutSuffix(tail, "/credit"); ok {
		id = strings.Trim(id, "/")
		switch r.Method {
		case http.MethodGet:
			credit, err := a.service.GetCustomerCredit(r.Context(), id)
			if err != nil {
				writeError(w, statusForError(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"credit": credit})
		case http.MethodPost:
			var req domain.CreditMovementRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			movement, err := a.service.RecordCreditMovement(r.Context(), id, req)
			if err != nil {
				writeError(w, statusForError(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"movement": movement})
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	customer, err := a.service.GetCustomer(r.Context(), tail)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleDeliveryMethods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	methods, err := a.service.ListDeliveryMethods(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"methods": methods})
}

func (a *API) handleDeliveryZones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	zones, err := a.service.ListDeliveryZones(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones})
}

// Cart request payloads. The line key is echoed back from cart views, so the
// client addresses lines structurally rather than by index.
type addItemRequest struct {
	ProductID string   `json:"product_id"`
	AddOnIDs  []string `json:"add_on_ids"`
}

type lineKeyRequest struct {
	Key cart.LineKey `json:"key"`
}

type quantityRequest struct {
	Key      cart.LineKey `json:"key"`
	Quantity int          `json:"quantity"`
}

type replaceAddOnsRequest struct {
	Key      cart.LineKey `json:"key"`
	AddOnIDs []string     `json:"add_on_ids"`
}

type discountRequest struct {
	Value float64             `json:"value"`
	Kind  domain.DiscountKind `json:"kind"`
}

type customerRequest struct {
	CustomerID string `json:"customer_id"`
}

type deliveryRequest struct {
	MethodID string                 `json:"method_id"`
	ZoneID   string                 `json:"zone_id"`
	Address  domain.DeliveryAddress `json:"address"`
	Notes    string                 `json:"notes"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type cartView struct {
	Items            []cart.LineItem        `json:"items"`
	ItemCount        int                    `json:"item_count"`
	SubtotalCents    int64                  `json:"subtotal_cents"`
	DiscountCents    int64                  `json:"discount_cents"`
	ShippingCents    int64                  `json:"shipping_cents"`
	TotalCents       int64                  `json:"total_cents"`
	DiscountValue    float64                `json:"discount_value"`
	DiscountKind     domain.DiscountKind    `json:"discount_kind,omitempty"`
	Customer         *domain.Customer       `json:"customer,omitempty"`
	DeliveryMethodID string                 `json:"delivery_method_id,omitempty"`
	DeliveryZoneID   string                 `json:"delivery_zone_id,omitempty"`
	DeliveryAddress  domain.DeliveryAddress `json:"delivery_address"`
	DeliveryNotes    string                 `json:"delivery_notes,omitempty"`
	Notes            string                 `json:"notes,omitempty"`
	EditingOrderID   string                 `json:"editing_order_id,omitempty"`
	CanUndoRemove    bool                   `json:"can_undo_remove"`
	Notices          []string               `json:"notices,omitempty"`
}

func viewOf(sess *session) cartView {
	c := sess.cart
	items := sess.cart.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	return cartView{
		Items:            items,
		ItemCount:        c.ItemCount(),
		SubtotalCents:    c.SubtotalCents(),
		DiscountCents:    c.DiscountCents(),
		ShippingCents:    c.ShippingCents,
		TotalCents:       c.TotalWithShippingCents(),
		DiscountValue:    c.DiscountValue,
		DiscountKind:     c.DiscountKind,
		Customer:         c.Customer,
		DeliveryMethodID: c.DeliveryMethodID,
		DeliveryZoneID:   c.DeliveryZoneID,
		DeliveryAddress:  c.DeliveryAddress,
		DeliveryNotes:    c.DeliveryNotes,
		Notes:            c.Notes,
		EditingOrderID:   c.EditingOrderID,
		CanUndoRemove:    c.LastRemoved != nil,
		Notices:          sess.notices.drain(),
	}
}

// withCart runs one cart mutation under the operator's session lock, snapshots
// the result, and responds with the updated cart view.
func (a *API) withCart(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, sess *session) error) {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing actor"))
		return
	}

	sess, err := a.sessionFor(r.Context(), actor.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := fn(r.Context(), sess); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	a.saveCart(r.Context(), actor.Username, sess)
	writeJSON(w, http.StatusOK, map[string]any{"cart": viewOf(sess)})
}

// applyDeliveryRules re-resolves the cart's method and zone and reapplies the
// shipping invariants. Called after any mutation that can move the subtotal
// across a free-shipping threshold.
func (a *API) applyDeliveryRules(ctx context.Context, c *cart.Cart) error {
	method, err := a.service.DeliveryMethodByID(ctx, c.DeliveryMethodID)
	if err != nil {
		return err
	}
	zone, err := a.service.DeliveryZoneByID(ctx, c.DeliveryZoneID)
	if err != nil {
		return err
	}
	c.ApplyDeliveryRules(method, zone)
	return nil
}

func resolveAddOns(product domain.Product, ids []string) ([]domain.AddOn, error) {
	byID := make(map[string]domain.AddOn, len(product.AddOns))
	for _, a := range product.AddOns {
		byID[a.ID] = a
	}

	addOns := make([]domain.AddOn, 0, len(ids))
	for _, id := range ids {
		addOn, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: product %s has no add-on %q", store.ErrValidation, product.ID, id)
		}
		addOns = append(addOns, addOn)
	}

	if product.RequiresAddOns && len(addOns) < product.MinAddOns {
		return nil, fmt.Errorf("%w: %s requires at least %d add-ons", store.ErrValidation, product.Name, product.MinAddOns)
	}
	if product.MaxAddOns > 0 && len(addOns) > product.MaxAddOns {
		return nil, fmt.Errorf("%w: %s allows at most %d add-ons", store.ErrValidation, product.Name, product.MaxAddOns)
	}
	return addOns, nil
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			return nil
		})
	case http.MethodDelete:
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			sess.cart.Reset()
			return nil
		})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCartActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/cart/")

	if orderID, ok := strings.CutPrefix(tail, "load-order/"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		orderID = strings.Trim(orderID, "/")
		if orderID == "" {
			writeError(w, http.StatusBadRequest, errors.New("order id required"))
			return
		}
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			order, err := a.service.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			return sess.cart.LoadFromOrder(&order)
		})
		return
	}

	if tail == "discount" && r.Method == http.MethodDelete {
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			sess.cart.ClearDiscount()
			return nil
		})
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	switch tail {
	case "items":
		var req addItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			product, err := a.service.GetProduct(ctx, req.ProductID)
			if err != nil {
				return err
			}
			if !product.Active || !product.Purchasable {
				return fmt.Errorf("%w: %s is not available for sale", store.ErrValidation, product.Name)
			}
			addOns, err := resolveAddOns(product, req.AddOnIDs)
			if err != nil {
				return err
			}
			sess.cart.AddItem(product, addOns)
			return a.applyDeliveryRules(ctx, sess.cart)
		})
	case "items/remove":
		var req lineKeyRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			if err := sess.cart.RemoveItem(req.Key); err != nil {
				return err
			}
			return a.applyDeliveryRules(ctx, sess.cart)
		})
	case "items/undo":
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			sess.cart.UndoRemove()
			return a.applyDeliveryRules(ctx, sess.cart)
		})
	case "items/quantity":
		var req quantityRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			if err := sess.cart.SetQuantity(req.Key, req.Quantity); err != nil {
				return err
			}
			return a.applyDeliveryRules(ctx, sess.cart)
		})
	case "items/replace-addons":
		var req replaceAddOnsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			product, err := a.service.GetProduct(ctx, req.Key.ProductID)
			if err != nil {
				return err
			}
			addOns, err := resolveAddOns(product, req.AddOnIDs)
			if err != nil {
				return err
			}
			if err := sess.cart.ReplaceAddOns(req.Key, product, addOns); err != nil {
				return err
			}
			return a.applyDeliveryRules(ctx, sess.cart)
		})
	case "discount":
		var req discountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			if req.Value < 0 {
				return fmt.Errorf("%w: discount cannot be negative", store.ErrValidation)
			}
			if req.Kind != domain.DiscountFixed && req.Kind != domain.DiscountPercent {
				return fmt.Errorf("%w: discount kind must be fixed or percent", store.ErrValidation)
			}
			if req.Kind == domain.DiscountPercent && req.Value > 100 {
				return fmt.Errorf("%w: percentage discount cannot exceed 100", store.ErrValidation)
			}
			sess.cart.SetDiscount(req.Value, req.Kind)
			return nil
		})
	case "customer":
		var req customerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			if req.CustomerID == "" {
				sess.cart.SetCustomer(nil)
				return nil
			}
			customer, err := a.service.GetCustomer(ctx, req.CustomerID)
			if err != nil {
				return err
			}
			sess.cart.SetCustomer(&customer)
			return nil
		})
	case "delivery":
		var req deliveryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			method, err := a.service.DeliveryMethodByID(ctx, req.MethodID)
			if err != nil {
				return err
			}
			if req.MethodID != "" && method == nil {
				return fmt.Errorf("%w: unknown delivery method %q", store.ErrValidation, req.MethodID)
			}
			zone, err := a.service.DeliveryZoneByID(ctx, req.ZoneID)
			if err != nil {
				return err
			}
			if req.ZoneID != "" && zone == nil {
				return fmt.Errorf("%w: unknown delivery zone %q", store.ErrValidation, req.ZoneID)
			}
			sess.cart.SetDeliveryMethod(req.MethodID)
			sess.cart.SetDeliveryZone(req.ZoneID)
			sess.cart.SetDeliveryAddress(req.Address)
			sess.cart.SetDeliveryNotes(req.Notes)
			sess.cart.ApplyDeliveryRules(method, zone)
			return nil
		})
	case "notes":
		var req notesRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			sess.cart.SetNotes(req.Notes)
			return nil
		})
	case "revalidate":
		a.withCart(w, r, func(ctx context.Context, sess *session) error {
			ids := make([]string, 0, len(sess.cart.Items))
			for _, line := range sess.cart.Items {
				ids = append(ids, line.ProductID)
			}
			catalog, err := a.service.GetProductsByIDs(ctx, ids)
			if err != nil {
				return err
			}
			sess.cart.RevalidatePrices(catalog)
			return a.applyDeliveryRules(ctx, sess.cart)
		})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown cart action"))
	}
}

type beginRequest struct {
	Action checkout.Action `json:"action"`
}

type upsellRequest struct {
	OfferedSideDish  bool `json:"offered_side_dish"`
	AcceptedSideDish bool `json:"accepted_side_dish"`
	OfferedDessert   bool `json:"offered_dessert"`
	AcceptedDessert  bool `json:"accepted_dessert"`
}

type promisedTimeRequest struct {
	Minutes int `json:"minutes"`
}

type paymentRequest struct {
	Method      domain.PaymentMethod `json:"method"`
	AmountCents int64                `json:"amount_cents"`
}

type removePaymentRequest struct {
	Index int `json:"index"`
}

type paymentView struct {
	DueCents      int64                   `json:"due_cents"`
	PaidCents     int64                   `json:"paid_cents"`
	BalanceCents  int64                   `json:"balance_cents"`
	DiscountCents int64                   `json:"discount_cents"`
	Entries       []checkout.PaymentEntry `json:"entries"`
	CanFinalize   bool                    `json:"can_finalize"`
}

type checkoutView struct {
	State         checkout.State  `json:"state"`
	PendingAction checkout.Action `json:"pending_action,omitempty"`
	Order         *domain.Order   `json:"order,omitempty"`
	Payment       *paymentView    `json:"payment,omitempty"`
	ChangeCents   int64           `json:"change_cents,omitempty"`
}

func checkoutViewOf(sess *session) checkoutView {
	view := checkoutView{
		State:         sess.flow.State(),
		PendingAction: sess.flow.PendingAction(),
		Order:         sess.flow.Order(),
	}
	if collector := sess.flow.Collector(); collector != nil {
		entries := collector.Entries
		if entries == nil {
			entries = []checkout.PaymentEntry{}
		}
		view.Payment = &paymentView{
			DueCents:      collector.DueCents(),
			PaidCents:     collector.AmountPaidCents(),
			BalanceCents:  collector.BalanceRemainingCents(),
			DiscountCents: collector.DiscountCents,
			Entries:       entries,
			CanFinalize:   collector.CanFinalize(),
		}
	}
	return view
}

// withCheckout mirrors withCart for workflow transitions: session lock,
// mutation, cart snapshot (finalizing resets the cart), checkout view back.
func (a *API) withCheckout(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, sess *session) (int64, error)) {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing actor"))
		return
	}

	sess, err := a.sessionFor(r.Context(), actor.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	changeCents, err := fn(r.Context(), sess)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	a.saveCart(r.Context(), actor.Username, sess)

	view := checkoutViewOf(sess)
	view.ChangeCents = changeCents
	writeJSON(w, http.StatusOK, map[string]any{"checkout": view})
}

func (a *API) handleCheckoutActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/checkout/")

	if tail == "state" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			return 0, nil
		})
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	switch tail {
	case "begin":
		var req beginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			return 0, sess.flow.Begin(ctx, req.Action)
		})
	case "upsell":
		var req upsellRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			return 0, sess.flow.AnswerUpsell(req.OfferedSideDish, req.AcceptedSideDish, req.OfferedDessert, req.AcceptedDessert)
		})
	case "promised-time":
		var req promisedTimeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			return 0, sess.flow.SetPromisedTime(req.Minutes)
		})
	case "persist":
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			_, err := sess.flow.Persist(ctx)
			return 0, err
		})
	case "payments":
		var req paymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			var changeCents int64
			if collector := sess.flow.Collector(); collector != nil {
				changeCents = collector.ChangePreviewCents(req.Method, req.AmountCents)
			}
			if err := sess.flow.AddPayment(req.Method, req.AmountCents); err != nil {
				return 0, err
			}
			return changeCents, nil
		})
	case "payments/remove":
		var req removePaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			return 0, sess.flow.RemovePayment(req.Index)
		})
	case "discount":
		var req discountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			return 0, sess.flow.AdjustDiscount(req.Value, req.Kind)
		})
	case "finalize":
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			_, err := sess.flow.Finalize(ctx)
			return 0, err
		})
	case "pending":
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			_, err := sess.flow.SavePending(ctx)
			return 0, err
		})
	case "abort":
		a.withCheckout(w, r, func(ctx context.Context, sess *session) (int64, error) {
			return 0, sess.flow.Abort()
		})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown checkout action"))
	}
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	status := r.URL.Query().Get("status")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)

	orders, err := a.service.ListOrders(r.Context(), status, limit)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/orders/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("order id required"))
		return
	}

	if id, ok := strings.CutSuffix(tail, "/receipt"); ok {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		id = strings.Trim(id, "/")
		rcpt, err := a.service.BuildReceipt(r.Context(), id)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"receipt": rcpt})
		return
	}

	switch r.Method {
	case http.MethodGet:
		order, err := a.service.GetOrder(r.Context(), tail)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case http.MethodDelete:
		if err := a.service.DeleteOrder(r.Context(), tail); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrCorruptOrder), errors.Is(err, store.ErrInsufficientCredit):
		return http.StatusConflict
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	}
	if strings.Contains(strings.ToLower(err.Error()), "admin role required") {
		return http.StatusForbidden
	}
	return http.StatusUnprocessableEntity
}

func pathTail(path string, prefix string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(path, prefix), "/"))
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx messages stay generic so internals never leak to the register UI.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
