package repositories

import (
	"context"
	"time"

	domain "github.com/annapurna-foods/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Counters() CounterRepository
	Orders() OrderRepository
	Stock() StockRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// OrderRepository persists order documents and provides query helpers for users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error)
	// UpdateIf applies mutate inside a transaction only when the stored order
	// is still in the expected status. A status drift surfaces as an
	// OrderError with OrderErrorStatusMismatch.
	UpdateIf(ctx context.Context, orderID string, expected domain.OrderStatus, mutate func(domain.Order) (domain.Order, error)) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	Count(ctx context.Context, filter OrderListFilter) (int64, error)
}

// OrderListFilter narrows order queries by owner, status, and creation window.
type OrderListFilter struct {
	UserID string
	Status []domain.OrderStatus
	Since  *time.Time
	Until  *time.Time
	Limit  int
}

// StockLine identifies a quantity of a single product inside one catalog.
type StockLine struct {
	ProductType domain.ProductType
	ProductID   string
	Quantity    int
}

// StockRepository manages per-catalog stock documents with transactional decrements.
type StockRepository interface {
	Get(ctx context.Context, productType domain.ProductType, productID string) (domain.ProductStock, error)
	// DecrementAll atomically decrements every line or none of them. Lines may
	// span multiple catalogs; the whole batch shares one transaction.
	DecrementAll(ctx context.Context, lines []StockLine) ([]domain.ProductStock, error)
	// Restore adds quantities back, used to compensate a failed downstream step.
	Restore(ctx context.Context, lines []StockLine) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
