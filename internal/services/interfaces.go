package services

import (
	"context"
	"time"

	domain "github.com/annapurna-foods/api/internal/domain"
	"github.com/annapurna-foods/api/internal/notifications"
	"github.com/annapurna-foods/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderLineItem      = domain.OrderLineItem
	OrderStatus        = domain.OrderStatus
	PaymentMethod      = domain.PaymentMethod
	Address            = domain.Address
	ProductStock       = domain.ProductStock
	ProductType        = domain.ProductType
	SystemHealthReport = domain.SystemHealthReport

	StockLine       = repositories.StockLine
	OrderListFilter = repositories.OrderListFilter
)

// CounterService hands out sequence numbers backed by transactional counters.
type CounterService interface {
	Next(ctx context.Context, counterID string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
	NextInvoiceNumber(ctx context.Context) (string, error)
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
	Prefix       string
	Suffix       string
	PadLength    int
	Formatter    func(seq int64) string
}

// CounterValue pairs the raw sequence value with its formatted representation.
type CounterValue struct {
	Value     int64
	Formatted string
}

// StockService guards catalog stock levels across product collections.
type StockService interface {
	Get(ctx context.Context, productType ProductType, productID string) (ProductStock, error)
	// Decrement reduces every line atomically or none at all.
	Decrement(ctx context.Context, lines []StockLine) ([]ProductStock, error)
	// Restore compensates a decrement after a downstream failure or a
	// cancellation of a paid order.
	Restore(ctx context.Context, lines []StockLine) error
}

// OrderService owns the order lifecycle from placement through delivery,
// cancellation, and refund.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListUserOrders(ctx context.Context, userID string, limit int) ([]Order, error)
	ListAdminOrders(ctx context.Context, query AdminOrderQuery) (AdminOrderPage, error)
}

// CreateOrderCommand carries everything needed to place an order.
type CreateOrderCommand struct {
	UserID          string
	UserEmail       string
	Items           []OrderLineItem
	ShippingAddress Address
	PaymentMethod   PaymentMethod
}

// VerifyPaymentCommand carries the gateway callback triple.
type VerifyPaymentCommand struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// CancelOrderCommand cancels an order on behalf of its owner.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

// UpdateOrderStatusCommand moves an order along the fulfillment state machine.
type UpdateOrderStatusCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
}

// AdminOrderQuery filters the admin order listing.
type AdminOrderQuery struct {
	Status []OrderStatus
	Since  *time.Time
	Until  *time.Time
	Limit  int
}

// AdminOrderPage bundles the listing with aggregate counts for the same window.
type AdminOrderPage struct {
	Orders       []Order
	Total        int64
	StatusCounts map[OrderStatus]int64
}

// OrderNotifier delivers transactional mail for order lifecycle events.
// Implementations are best effort and must not block the order flow.
type OrderNotifier interface {
	Notify(ctx context.Context, kind notifications.EventKind, order domain.Order)
}

// OrderEventPublisher emits order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEventMessage) (string, error)
}

// OrderEventMessage is the payload published on every order state change.
type OrderEventMessage struct {
	EventID     string    `json:"eventId"`
	Kind        string    `json:"kind"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// SystemService aggregates utility surfaces such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
