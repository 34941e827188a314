package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/annapurna-foods/api/internal/payments"
	"github.com/annapurna-foods/api/internal/platform/config"
	pfirestore "github.com/annapurna-foods/api/internal/platform/firestore"
	"github.com/annapurna-foods/api/internal/repositories"
	firestoreRepo "github.com/annapurna-foods/api/internal/repositories/firestore"
	"github.com/annapurna-foods/api/internal/services"
	"github.com/annapurna-foods/api/internal/shipping"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Counters services.CounterService
	Stock    services.StockService
	Orders   services.OrderService
	System   services.SystemService
}

// Collaborators carries externally constructed dependencies that the service layer
// consumes but does not own: the payment gateway, the courier client, mail delivery,
// and event publishing. Carrier, Notifier, and Events may be nil when unconfigured.
type Collaborators struct {
	Gateway  payments.Provider
	Carrier  shipping.Client
	Notifier services.OrderNotifier
	Events   services.OrderEventPublisher
	Build    services.BuildInfo
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, collab Collaborators) (Services, error) {
	var svc Services

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	stockSvc, err := services.NewStockService(services.StockServiceDeps{
		Repository: reg.Stock(),
		Logger:     collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock service: %w", err)
	}
	svc.Stock = stockSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Counters: counterSvc,
		Stock:    stockSvc,
		Gateway:  collab.Gateway,
		Carrier:  collab.Carrier,
		Notifier: collab.Notifier,
		Events:   collab.Events,
		Clock:    time.Now,
		Logger:   collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            collab.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

type firestoreRegistry struct {
	provider *pfirestore.Provider
	counters repositories.CounterRepository
	orders   repositories.OrderRepository
	stock    repositories.StockRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*firestoreRegistry)(nil)

// NewFirestoreRegistry assembles the Firestore-backed repository registry on top of a
// shared provider. The health repository is optional and may be nil.
func NewFirestoreRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (repositories.Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore provider is required")
	}

	counters, err := firestoreRepo.NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}
	orders, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	stock, err := firestoreRepo.NewStockRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build stock repository: %w", err)
	}

	return &firestoreRegistry{
		provider: provider,
		counters: counters,
		orders:   orders,
		stock:    stock,
		health:   health,
	}, nil
}

func (r *firestoreRegistry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *firestoreRegistry) Counters() repositories.CounterRepository { return r.counters }

func (r *firestoreRegistry) Orders() repositories.OrderRepository { return r.orders }

func (r *firestoreRegistry) Stock() repositories.StockRepository { return r.stock }

func (r *firestoreRegistry) Health() repositories.HealthRepository { return r.health }

func (r *firestoreRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		return fn(txCtx)
	})
}
