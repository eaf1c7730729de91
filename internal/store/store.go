package store

import (
	"context"
	"errors"
	"time"

	"fondapos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input the caller can fix; handlers map it to 400.
	ErrValidation = errors.New("validation failed")
	// ErrCorruptOrder marks a persisted order that cannot be reconstructed
	// into a cart (an item with no resolvable product id). The whole load is
	// rejected rather than partially reconstructed.
	ErrCorruptOrder       = errors.New("corrupt order data")
	ErrInsufficientCredit = errors.New("insufficient customer credit")
)

type Repository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)
	GetCreditBalance(ctx context.Context, customerID string) (int64, error)
	AppendCreditMovement(ctx context.Context, movement domain.CreditMovement) (*domain.CreditMovement, error)
	ListCreditMovements(ctx context.Context, customerID string, limit int) ([]domain.CreditMovement, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	UpdateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	SoftDeleteOrder(ctx context.Context, id string, at time.Time) error
	ListOrdersByStatus(ctx context.Context, branchID string, status string, limit int) ([]domain.Order, error)
	SetOrderStatus(ctx context.Context, id string, status string) error

	AppendPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	IsOrderFullyPaid(ctx context.Context, orderID string) (bool, error)

	ListDeliveryMethods(ctx context.Context) ([]domain.DeliveryMethod, error)
	ListDeliveryZones(ctx context.Context) ([]domain.DeliveryZone, error)

	CreateUpsellMetric(ctx context.Context, metric domain.UpsellMetric) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
