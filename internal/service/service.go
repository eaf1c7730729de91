package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"fondapos/backend/internal/domain"
	"fondapos/backend/internal/receipt"
	"fondapos/backend/internal/store"
	"fondapos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	defaultBranchID string
}

func New(repo store.Repository, defaultBranchID string) *Service {
	if defaultBranchID == "" {
		defaultBranchID = "main-branch"
	}

	return &Service{
		repo:            repo,
		defaultBranchID: defaultBranchID,
	}
}

func (s *Service) DefaultBranchID() string { return s.defaultBranchID }

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	return s.repo.GetProductsByIDs(ctx, ids)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if req.Name == "" || req.CategoryID == "" || req.PriceCents < 1 {
		return domain.Product{}, store.ErrValidation
	}
	if req.DiscountPriceCents < 0 || (req.DiscountPriceCents != 0 && req.DiscountPriceCents >= req.PriceCents) {
		return domain.Product{}, store.ErrValidation
	}
	if req.RequiresAddOns && (req.MinAddOns < 1 || len(req.AddOns) == 0) {
		return domain.Product{}, store.ErrValidation
	}
	if req.MaxAddOns > 0 && req.MinAddOns > req.MaxAddOns {
		return domain.Product{}, store.ErrValidation
	}

	product := domain.Product{
		Name:               req.Name,
		CategoryID:         req.CategoryID,
		PriceCents:         req.PriceCents,
		DiscountPriceCents: req.DiscountPriceCents,
		ImageRef:           strings.TrimSpace(req.ImageRef),
		Active:             true,
		Purchasable:        true,
		RequiresAddOns:     req.RequiresAddOns,
		MinAddOns:          req.MinAddOns,
		MaxAddOns:          req.MaxAddOns,
		AddOns:             req.AddOns,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d", created.Name, created.PriceCents))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.CategoryID != nil {
		categoryID := strings.TrimSpace(*req.CategoryID)
		if categoryID == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.CategoryID = categoryID
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.DiscountPriceCents != nil {
		if *req.DiscountPriceCents < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.DiscountPriceCents = *req.DiscountPriceCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.Purchasable != nil {
		updated.Purchasable = *req.Purchasable
	}
	if req.AddOns != nil {
		updated.AddOns = *req.AddOns
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

func (s *Service) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 20
	}
	return s.repo.SearchCustomers(ctx, query, limit)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrValidation
	}
	if req.CreditLimitCents < 0 {
		return domain.Customer{}, store.ErrValidation
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:             req.Name,
		Phone:            strings.TrimSpace(req.Phone),
		Email:            strings.TrimSpace(req.Email),
		Address:          strings.TrimSpace(req.Address),
		CreditLimitCents: req.CreditLimitCents,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

// CustomerCredit is the available balance plus the recent ledger.
type CustomerCredit struct {
	CustomerID       string                  `json:"customer_id"`
	AvailableCents   int64                   `json:"available_cents"`
	CreditLimitCents int64                   `json:"credit_limit_cents"`
	Movements        []domain.CreditMovement `json:"movements"`
}

func (s *Service) GetCustomerCredit(ctx context.Context, customerID string) (CustomerCredit, error) {
	customer, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		return CustomerCredit{}, err
	}
	available, err := s.repo.GetCreditBalance(ctx, customerID)
	if err != nil {
		return CustomerCredit{}, err
	}
	movements, err := s.repo.ListCreditMovements(ctx, customerID, 50)
	if err != nil {
		return CustomerCredit{}, err
	}
	return CustomerCredit{
		CustomerID:       customer.ID,
		AvailableCents:   available,
		CreditLimitCents: customer.CreditLimitCents,
		Movements:        movements,
	}, nil
}

// RecordCreditMovement appends a manual ledger entry. A charge may not push
// the customer past their available credit.
func (s *Service) RecordCreditMovement(ctx context.Context, customerID string, req domain.CreditMovementRequest) (domain.CreditMovement, error) {
	if req.Kind != domain.CreditMovementCharge && req.Kind != domain.CreditMovementPayment {
		return domain.CreditMovement{}, fmt.Errorf("%w: movement kind must be charge or payment", store.ErrValidation)
	}
	if req.AmountCents < 1 {
		return domain.CreditMovement{}, fmt.Errorf("%w: movement amount must be positive", store.ErrValidation)
	}

	if req.Kind == domain.CreditMovementCharge {
		available, err := s.repo.GetCreditBalance(ctx, customerID)
		if err != nil {
			return domain.CreditMovement{}, err
		}
		if req.AmountCents > available {
			return domain.CreditMovement{}, store.ErrInsufficientCredit
		}
	}

	created, err := s.repo.AppendCreditMovement(ctx, domain.CreditMovement{
		CustomerID:  customerID,
		Kind:        req.Kind,
		AmountCents: req.AmountCents,
		Memo:        strings.TrimSpace(req.Memo),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.CreditMovement{}, err
	}

	s.logAudit(ctx, "credit_movement", "customer", customerID, fmt.Sprintf("kind=%s,amount=%d", created.Kind, created.AmountCents))
	return *created, nil
}

func (s *Service) ListDeliveryMethods(ctx context.Context) ([]domain.DeliveryMethod, error) {
	return s.repo.ListDeliveryMethods(ctx)
}

func (s *Service) ListDeliveryZones(ctx context.Context) ([]domain.DeliveryZone, error) {
	return s.repo.ListDeliveryZones(ctx)
}

// DeliveryMethodByID resolves a method; a nil result with nil error means
// the id is unknown.
func (s *Service) DeliveryMethodByID(ctx context.Context, id string) (*domain.DeliveryMethod, error) {
	if id == "" {
		return nil, nil
	}
	methods, err := s.repo.ListDeliveryMethods(ctx)
	if err != nil {
		return nil, err
	}
	for i := range methods {
		if methods[i].ID == id {
			return &methods[i], nil
		}
	}
	return nil, nil
}

func (s *Service) DeliveryZoneByID(ctx context.Context, id string) (*domain.DeliveryZone, error) {
	if id == "" {
		return nil, nil
	}
	zones, err := s.repo.ListDeliveryZones(ctx)
	if err != nil {
		return nil, err
	}
	for i := range zones {
		if zones[i].ID == id {
			return &zones[i], nil
		}
	}
	return nil, nil
}

func (s *Service) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 50
	}
	switch status {
	case "", domain.OrderStatusPending, domain.OrderStatusPaid, domain.OrderStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown order status %q", store.ErrValidation, status)
	}
	return s.repo.ListOrdersByStatus(ctx, s.defaultBranchID, status, limit)
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if err := s.repo.SoftDeleteOrder(ctx, id, time.Now().UTC()); err != nil {
		return err
	}
	s.logAudit(ctx, "order_delete", "order", id, "")
	return nil
}

func (s *Service) BuildReceipt(ctx context.Context, orderID string) (receipt.Receipt, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return receipt.Receipt{}, err
	}
	method, err := s.DeliveryMethodByID(ctx, order.DeliveryMethodID)
	if err != nil {
		return receipt.Receipt{}, err
	}
	return receipt.Build(order, method), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrValidation
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, s.defaultBranchID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		BranchID:      s.defaultBranchID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
