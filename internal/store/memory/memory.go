package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fondapos/backend/internal/domain"
	"fondapos/backend/internal/store"
	"fondapos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	categories      []domain.Category
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	creditMovements map[string][]domain.CreditMovement
	orders          map[string]*domain.Order
	deliveryMethods []domain.DeliveryMethod
	deliveryZones   []domain.DeliveryZone
	upsellMetrics   []domain.UpsellMetric
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	categories := []domain.Category{
		{ID: "cat-mains", Name: "Mains"},
		{ID: "cat-sides", Name: "Side Dishes", Role: domain.CategoryRoleSideDish},
		{ID: "cat-desserts", Name: "Desserts", Role: domain.CategoryRoleDessert},
		{ID: "cat-drinks", Name: "Drinks"},
	}

	burgerAddOns := []domain.AddOn{
		{ID: "ao-cheese", Name: "Extra cheese", PriceCents: 500},
		{ID: "ao-bacon", Name: "Bacon", PriceCents: 700},
		{ID: "ao-egg", Name: "Fried egg", PriceCents: 400},
	}
	pizzaAddOns := []domain.AddOn{
		{ID: "ao-ham", Name: "Ham", PriceCents: 600},
		{ID: "ao-olives", Name: "Olives", PriceCents: 300},
	}

	products := []domain.Product{
		{ID: "prod-burger", Name: "Classic Burger", CategoryID: "cat-mains", PriceCents: 4500, Active: true, Purchasable: true, AddOns: burgerAddOns, MaxAddOns: 3},
		{ID: "prod-milanesa", Name: "Milanesa Napolitana", CategoryID: "cat-mains", PriceCents: 6500, DiscountPriceCents: 6000, Active: true, Purchasable: true},
		{ID: "prod-pizza", Name: "Pizza Muzzarella", CategoryID: "cat-mains", PriceCents: 5000, Active: true, Purchasable: true, AddOns: pizzaAddOns, MaxAddOns: 2},
		{ID: "prod-bowl", Name: "Custom Bowl", CategoryID: "cat-mains", PriceCents: 5500, Active: true, Purchasable: true, RequiresAddOns: true, MinAddOns: 1, MaxAddOns: 3, AddOns: burgerAddOns},
		{ID: "prod-fries", Name: "Fries", CategoryID: "cat-sides", PriceCents: 1500, Active: true, Purchasable: true},
		{ID: "prod-salad", Name: "Side Salad", CategoryID: "cat-sides", PriceCents: 1800, Active: true, Purchasable: true},
		{ID: "prod-flan", Name: "Flan Casero", CategoryID: "cat-desserts", PriceCents: 1800, Active: true, Purchasable: true},
		{ID: "prod-brownie", Name: "Brownie", CategoryID: "cat-desserts", PriceCents: 2200, Active: true, Purchasable: true},
		{ID: "prod-soda", Name: "Soda 500ml", CategoryID: "cat-drinks", PriceCents: 1200, Active: true, Purchasable: true},
		{ID: "prod-water", Name: "Sparkling Water", CategoryID: "cat-drinks", PriceCents: 1000, Active: true, Purchasable: true},
	}

	now := time.Now().UTC()
	customers := []domain.Customer{
		{ID: "cust-ana", Name: "Ana Morales", Phone: "555-0101", Email: "ana@example.com", CreditLimitCents: 100000, CreatedAt: now},
		{ID: "cust-bruno", Name: "Bruno Paz", Phone: "555-0102", CreatedAt: now},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	customerMap := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		customerMap[c.ID] = c
	}

	return &Store{
		categories:      categories,
		products:        productMap,
		customers:       customerMap,
		creditMovements: make(map[string][]domain.CreditMovement),
		orders:          make(map[string]*domain.Order),
		deliveryMethods: []domain.DeliveryMethod{
			{ID: "dm-counter", Name: "Counter Pickup"},
			{ID: "dm-dinein", Name: "Dine-in"},
			{ID: "dm-delivery", Name: "Home Delivery", RequiresAddress: true, HasCost: true, HomeDelivery: true},
		},
		deliveryZones: []domain.DeliveryZone{
			{ID: "zone-center", Name: "Centro", CostCents: 3000},
			{ID: "zone-north", Name: "Zona Norte", CostCents: 5000, FreeShippingMinCents: 50000},
		},
		upsellMetrics:   make([]domain.UpsellMetric, 0, 64),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, len(s.categories))
	copy(result, s.categories)
	return result, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active || !p.Purchasable {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CategoryID == b.CategoryID {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.CategoryID, b.CategoryID)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneProduct(product)
	return &copied, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.CategoryID == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.RequiresAddOns && product.MinAddOns < 1 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}

	product.Active = true
	product.Purchasable = true
	s.products[product.ID] = product
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.CategoryID == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.ID] = product
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrValidation
	}
	if customer.CreditLimitCents < 0 {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (s *Store) SearchCustomers(_ context.Context, query string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.Customer, 0, 16)
	for _, c := range s.customers {
		if query != "" &&
			!strings.Contains(strings.ToLower(c.Name), query) &&
			!strings.Contains(strings.ToLower(c.Phone), query) &&
			!strings.Contains(strings.ToLower(c.Email), query) {
			continue
		}
		result = append(result, c)
	}

	slices.SortFunc(result, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetCreditBalance returns the customer's remaining available credit: the
// credit limit minus outstanding charges plus recorded payments.
func (s *Store) GetCreditBalance(_ context.Context, customerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[customerID]
	if !exists {
		return 0, store.ErrNotFound
	}

	available := customer.CreditLimitCents
	for _, m := range s.creditMovements[customerID] {
		switch m.Kind {
		case domain.CreditMovementCharge:
			available -= m.AmountCents
		case domain.CreditMovementPayment:
			available += m.AmountCents
		}
	}
	if available < 0 {
		available = 0
	}
	return available, nil
}

func (s *Store) AppendCreditMovement(_ context.Context, movement domain.CreditMovement) (*domain.CreditMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.Kind != domain.CreditMovementCharge && movement.Kind != domain.CreditMovementPayment {
		return nil, store.ErrValidation
	}
	if movement.AmountCents < 1 {
		return nil, store.ErrValidation
	}
	if _, exists := s.customers[movement.CustomerID]; !exists {
		return nil, store.ErrNotFound
	}
	if movement.ID == "" {
		movement.ID = xid.New("cm")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	s.creditMovements[movement.CustomerID] = append(s.creditMovements[movement.CustomerID], movement)
	created := movement
	return &created, nil
}

func (s *Store) ListCreditMovements(_ context.Context, customerID string, limit int) ([]domain.CreditMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.customers[customerID]; !exists {
		return nil, store.ErrNotFound
	}

	movements := s.creditMovements[customerID]
	result := make([]domain.CreditMovement, len(movements))
	copy(result, movements)
	slices.SortFunc(result, func(a, b domain.CreditMovement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Items) == 0 {
		return nil, store.ErrValidation
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if _, exists := s.orders[order.ID]; exists {
		return nil, store.ErrValidation
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = xid.New("oi")
		}
		order.Items[i].OrderID = order.ID
	}

	saved := cloneOrder(order)
	s.orders[order.ID] = saved
	result := cloneOrder(*saved)
	return result, nil
}

// UpdateOrder replaces the order's header fields and line items wholesale.
// Recorded payments and the creation timestamp are preserved.
func (s *Store) UpdateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.orders[order.ID]
	if !exists || existing.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if len(order.Items) == 0 {
		return nil, store.ErrValidation
	}

	order.CreatedAt = existing.CreatedAt
	order.CreatedBy = existing.CreatedBy
	order.Payments = existing.Payments
	order.UpdatedAt = time.Now().UTC()
	if order.Status == "" {
		order.Status = existing.Status
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = xid.New("oi")
		}
		order.Items[i].OrderID = order.ID
	}

	saved := cloneOrder(order)
	s.orders[order.ID] = saved
	result := cloneOrder(*saved)
	return result, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists || order.DeletedAt != nil {
		return nil, store.ErrNotFound
	}

	result := cloneOrder(*order)
	if result.CustomerID != "" {
		if customer, ok := s.customers[result.CustomerID]; ok {
			copied := customer
			result.Customer = &copied
		}
	}
	return result, nil
}

func (s *Store) SoftDeleteOrder(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists || order.DeletedAt != nil {
		return store.ErrNotFound
	}
	order.DeletedAt = &at
	order.UpdatedAt = at
	return nil
}

func (s *Store) ListOrdersByStatus(_ context.Context, branchID string, status string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 32)
	for _, order := range s.orders {
		if order.DeletedAt != nil {
			continue
		}
		if branchID != "" && order.BranchID != branchID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, *cloneOrder(*order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SetOrderStatus(_ context.Context, id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists || order.DeletedAt != nil {
		return store.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) AppendPayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment.AmountCents < 1 || !payment.Method.Valid() {
		return nil, store.ErrValidation
	}
	order, exists := s.orders[payment.OrderID]
	if !exists || order.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	order.Payments = append(order.Payments, payment)
	created := payment
	return &created, nil
}

func (s *Store) IsOrderFullyPaid(_ context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[orderID]
	if !exists {
		return false, store.ErrNotFound
	}
	return order.PaidCents() >= order.TotalCents, nil
}

func (s *Store) ListDeliveryMethods(_ context.Context) ([]domain.DeliveryMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DeliveryMethod, len(s.deliveryMethods))
	copy(result, s.deliveryMethods)
	return result, nil
}

func (s *Store) ListDeliveryZones(_ context.Context) ([]domain.DeliveryZone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DeliveryZone, len(s.deliveryZones))
	copy(result, s.deliveryZones)
	return result, nil
}

func (s *Store) CreateUpsellMetric(_ context.Context, metric domain.UpsellMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if metric.ID == "" {
		metric.ID = xid.New("upsell")
	}
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = time.Now().UTC()
	}
	s.upsellMetrics = append(s.upsellMetrics, metric)
	return nil
}

// UpsellMetrics is a test hook; the HTTP surface never reads these back.
func (s *Store) UpsellMetrics() []domain.UpsellMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UpsellMetric, len(s.upsellMetrics))
	copy(result, s.upsellMetrics)
	return result
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrValidation
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	addOns := make([]domain.AddOn, len(src.AddOns))
	copy(addOns, src.AddOns)
	dup.AddOns = addOns
	return dup
}

func cloneOrder(src domain.Order) *domain.Order {
	dup := src
	items := make([]domain.OrderItem, len(src.Items))
	for i, item := range src.Items {
		copied := item
		addOns := make([]domain.OrderItemAddOn, len(item.AddOns))
		copy(addOns, item.AddOns)
		copied.AddOns = addOns
		copied.Product = nil
		items[i] = copied
	}
	dup.Items = items
	payments := make([]domain.Payment, len(src.Payments))
	copy(payments, src.Payments)
	dup.Payments = payments
	if src.DeletedAt != nil {
		at := *src.DeletedAt
		dup.DeletedAt = &at
	}
	dup.Customer = nil
	return &dup
}
