package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/annapurna-foods/api/internal/domain"
	"github.com/annapurna-foods/api/internal/notifications"
	"github.com/annapurna-foods/api/internal/payments"
	"github.com/annapurna-foods/api/internal/repositories"
	"github.com/annapurna-foods/api/internal/shipping"
)

const (
	orderEventCreated       = "order.created"
	orderEventPaid          = "order.paid"
	orderEventStatusChanged = "order.status.changed"
	orderEventCancelled     = "order.cancelled"

	orderIDPrefix = "ord_"
	eventIDPrefix = "evt_"

	paisePerRupee = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent writers raced on the same order.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderPaymentInvalid indicates the gateway callback failed verification.
	ErrOrderPaymentInvalid = errors.New("order: payment verification failed")
)

// orderStateTransitions defines the allowed fulfillment moves. Anything not
// listed is rejected. Settlement to paid never happens here: it goes through
// payment verification, or at creation for cash on delivery. Every non-terminal
// status can reach cancelled.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:        {domain.OrderStatusCancelled},
	domain.OrderStatusPaid:           {domain.OrderStatusShipped, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusShipped:        {domain.OrderStatusOutForDelivery, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusOutForDelivery: {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:      {domain.OrderStatusRefunded},
}

// userCancellableStatuses limits self-service cancellation to orders that have
// not left the warehouse.
var userCancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusPaid,
}

var statusNotificationKinds = map[domain.OrderStatus]notifications.EventKind{
	domain.OrderStatusShipped:        notifications.KindOrderShipped,
	domain.OrderStatusOutForDelivery: notifications.KindOrderOutForDelivery,
	domain.OrderStatusDelivered:      notifications.KindOrderDelivered,
	domain.OrderStatusCancelled:      notifications.KindOrderCancelled,
	domain.OrderStatusRefunded:       notifications.KindOrderRefunded,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    CounterService
	Stock       StockService
	Gateway     payments.Provider
	Carrier     shipping.Client
	Notifier    OrderNotifier
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	counters CounterService
	stock    StockService
	gateway  payments.Provider
	carrier  shipping.Client
	notifier OrderNotifier
	events   OrderEventPublisher
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order service: stock service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("order service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		counters: deps.Counters,
		stock:    deps.Stock,
		gateway:  deps.Gateway,
		carrier:  deps.Carrier,
		notifier: deps.Notifier,
		events:   deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if err := validateCreateOrderCommand(cmd); err != nil {
		return Order{}, err
	}

	now := s.clock()
	total := orderTotal(cmd.Items)

	orderNumber, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order service: allocate order number: %w", err)
	}
	invoiceNumber, err := s.counters.NextInvoiceNumber(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order service: allocate invoice number: %w", err)
	}

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     orderNumber,
		InvoiceNumber:   invoiceNumber,
		UserID:          strings.TrimSpace(cmd.UserID),
		UserEmail:       strings.TrimSpace(cmd.UserEmail),
		Items:           cloneLineItems(cmd.Items),
		TotalAmount:     total,
		ShippingAddress: cmd.ShippingAddress,
		PaymentMethod:   cmd.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	switch cmd.PaymentMethod {
	case domain.PaymentMethodOnline:
		gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.GatewayOrderRequest{
			AmountPaise: total * paisePerRupee,
			Receipt:     orderNumber,
			Notes: map[string]string{
				"orderNumber": orderNumber,
				"userId":      order.UserID,
			},
		})
		if err != nil {
			return Order{}, fmt.Errorf("order service: create gateway order: %w", err)
		}
		order.GatewayOrderID = gatewayOrder.ID

		if err := s.orders.Insert(ctx, order); err != nil {
			return Order{}, translateOrderError(err)
		}

	case domain.PaymentMethodCOD:
		// COD has no payment step to gate on, so stock is committed up front
		// and the order is immediately eligible for fulfillment. Payment
		// status stays pending until delivery.
		if _, err := s.stock.Decrement(ctx, stockLinesFor(order.Items)); err != nil {
			return Order{}, err
		}
		order.Status = domain.OrderStatusPaid
		order.PaidAt = &now

		if err := s.orders.Insert(ctx, order); err != nil {
			s.compensateStock(ctx, order)
			return Order{}, translateOrderError(err)
		}
		order = s.manifestShipment(ctx, order)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":       order.ID,
		"orderNumber":   order.OrderNumber,
		"paymentMethod": string(order.PaymentMethod),
		"totalAmount":   order.TotalAmount,
	})

	s.notify(ctx, notifications.KindOrderPlaced, order)
	s.notify(ctx, notifications.KindAdminNewOrder, order)
	s.publishEvent(ctx, orderEventCreated, order)

	return order, nil
}

func (s *orderService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	gatewayPaymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	signature := strings.TrimSpace(cmd.Signature)
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return Order{}, fmt.Errorf("%w: gateway order id, payment id, and signature are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return Order{}, translateOrderError(err)
	}

	if err := s.gateway.VerifySignature(payments.VerifyRequest{
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: gatewayPaymentID,
		Signature:        signature,
	}); err != nil {
		if errors.Is(err, payments.ErrSignatureMismatch) {
			s.logger(ctx, "order.payment.rejected", map[string]any{
				"orderId":     order.ID,
				"orderNumber": order.OrderNumber,
			})
			s.notify(ctx, notifications.KindPaymentFailed, order)
			return Order{}, fmt.Errorf("%w: signature mismatch", ErrOrderPaymentInvalid)
		}
		return Order{}, err
	}

	// A repeated callback for an already settled payment is a no-op.
	if order.Status != domain.OrderStatusPending {
		if order.PaymentStatus == domain.PaymentStatusPaid && order.GatewayPaymentID == gatewayPaymentID {
			return order, nil
		}
		return Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, order.OrderNumber, order.Status)
	}

	if _, err := s.stock.Decrement(ctx, stockLinesFor(order.Items)); err != nil {
		return Order{}, err
	}

	now := s.clock()
	updated, err := s.orders.UpdateIf(ctx, order.ID, domain.OrderStatusPending, func(current domain.Order) (domain.Order, error) {
		current.Status = domain.OrderStatusPaid
		current.PaymentStatus = domain.PaymentStatusPaid
		current.GatewayPaymentID = gatewayPaymentID
		current.GatewaySignature = signature
		current.PaidAt = &now
		current.UpdatedAt = now
		return current, nil
	})
	if err != nil {
		s.compensateStock(ctx, order)
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) && orderErr.Code == repositories.OrderErrorStatusMismatch {
			latest, findErr := s.orders.FindByID(ctx, order.ID)
			if findErr == nil && latest.PaymentStatus == domain.PaymentStatusPaid && latest.GatewayPaymentID == gatewayPaymentID {
				return latest, nil
			}
			return Order{}, fmt.Errorf("%w: %s", ErrOrderConflict, orderErr.Message)
		}
		return Order{}, translateOrderError(err)
	}

	s.logger(ctx, "order.payment.verified", map[string]any{
		"orderId":     updated.ID,
		"orderNumber": updated.OrderNumber,
	})

	updated = s.manifestShipment(ctx, updated)
	s.notify(ctx, notifications.KindPaymentConfirmed, updated)
	s.publishEvent(ctx, orderEventPaid, updated)

	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: cancellation reason is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateOrderError(err)
	}
	if userID := strings.TrimSpace(cmd.UserID); userID != "" && order.UserID != userID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	if !statusIn(order.Status, userCancellableStatuses) {
		return Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, order.OrderNumber, order.Status)
	}

	previousStatus := order.Status
	now := s.clock()
	updated, err := s.orders.UpdateIf(ctx, order.ID, order.Status, func(current domain.Order) (domain.Order, error) {
		current.Status = domain.OrderStatusCancelled
		current.IsCancelled = true
		current.CancelReason = reason
		current.CancelledAt = &now
		current.UpdatedAt = now
		return current, nil
	})
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) && orderErr.Code == repositories.OrderErrorStatusMismatch {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderConflict, orderErr.Message)
		}
		return Order{}, translateOrderError(err)
	}

	// Stock was only committed once the order reached paid.
	if previousStatus == domain.OrderStatusPaid {
		s.compensateStock(ctx, updated)
	}
	s.cancelShipment(ctx, updated)

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId":     updated.ID,
		"orderNumber": updated.OrderNumber,
		"reason":      updated.CancelReason,
	})

	s.notify(ctx, notifications.KindOrderCancelled, updated)
	s.publishEvent(ctx, orderEventCancelled, updated)

	return updated, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(string(cmd.TargetStatus))
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateOrderError(err)
	}
	if !statusIn(target, orderStateTransitions[order.Status]) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, target)
	}

	previousStatus := order.Status
	now := s.clock()
	updated, err := s.orders.UpdateIf(ctx, order.ID, order.Status, func(current domain.Order) (domain.Order, error) {
		current.Status = target
		current.UpdatedAt = now
		switch target {
		case domain.OrderStatusShipped:
			current.ShippedAt = &now
		case domain.OrderStatusDelivered:
			current.DeliveredAt = &now
			// Delivery settles cash on delivery.
			if current.PaymentMethod == domain.PaymentMethodCOD {
				current.PaymentStatus = domain.PaymentStatusPaid
			}
		case domain.OrderStatusCancelled:
			current.IsCancelled = true
			current.CancelledAt = &now
		case domain.OrderStatusRefunded:
			current.RefundedAt = &now
		}
		return current, nil
	})
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) && orderErr.Code == repositories.OrderErrorStatusMismatch {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderConflict, orderErr.Message)
		}
		return Order{}, translateOrderError(err)
	}

	switch target {
	case domain.OrderStatusShipped:
		updated = s.manifestShipment(ctx, updated)
	case domain.OrderStatusCancelled:
		if previousStatus != domain.OrderStatusPending {
			s.compensateStock(ctx, updated)
		}
		s.cancelShipment(ctx, updated)
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId":     updated.ID,
		"orderNumber": updated.OrderNumber,
		"from":        string(previousStatus),
		"to":          string(target),
		"actorId":     strings.TrimSpace(cmd.ActorID),
	})

	if kind, ok := statusNotificationKinds[target]; ok {
		s.notify(ctx, kind, updated)
	}
	s.publishEvent(ctx, orderEventStatusChanged, updated)

	return updated, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateOrderError(err)
	}
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID string, limit int) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.List(ctx, OrderListFilter{UserID: userID, Limit: limit})
	if err != nil {
		return nil, translateOrderError(err)
	}
	return orders, nil
}

func (s *orderService) ListAdminOrders(ctx context.Context, query AdminOrderQuery) (AdminOrderPage, error) {
	if query.Since != nil && query.Until != nil && query.Until.Before(*query.Since) {
		return AdminOrderPage{}, fmt.Errorf("%w: range end precedes start", ErrOrderInvalidInput)
	}

	filter := OrderListFilter{
		Status: query.Status,
		Since:  query.Since,
		Until:  query.Until,
		Limit:  query.Limit,
	}
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return AdminOrderPage{}, translateOrderError(err)
	}

	total, err := s.orders.Count(ctx, OrderListFilter{Since: query.Since, Until: query.Until})
	if err != nil {
		return AdminOrderPage{}, translateOrderError(err)
	}

	counts := make(map[OrderStatus]int64)
	for _, status := range []OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusPaid,
		domain.OrderStatusShipped,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	} {
		count, err := s.orders.Count(ctx, OrderListFilter{
			Status: []OrderStatus{status},
			Since:  query.Since,
			Until:  query.Until,
		})
		if err != nil {
			return AdminOrderPage{}, translateOrderError(err)
		}
		counts[status] = count
	}

	return AdminOrderPage{Orders: orders, Total: total, StatusCounts: counts}, nil
}

// manifestShipment books a waybill and persists it on the order. Carrier
// failures are logged, never propagated; fulfillment retries at ship time.
func (s *orderService) manifestShipment(ctx context.Context, order Order) Order {
	if s.carrier == nil || strings.TrimSpace(order.Waybill) != "" {
		return order
	}

	shipment, err := s.carrier.CreateShipment(ctx, order)
	if err != nil {
		s.logger(ctx, "order.shipment.failed", map[string]any{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"error":       err.Error(),
		})
		return order
	}

	order.Waybill = shipment.Waybill
	order.UpdatedAt = s.clock()
	if err := s.orders.Update(ctx, order); err != nil {
		s.logger(ctx, "order.shipment.persist_failed", map[string]any{
			"orderId": order.ID,
			"waybill": shipment.Waybill,
			"error":   err.Error(),
		})
	}
	return order
}

func (s *orderService) cancelShipment(ctx context.Context, order Order) {
	if s.carrier == nil || strings.TrimSpace(order.Waybill) == "" {
		return
	}
	if err := s.carrier.CancelShipment(ctx, order.Waybill); err != nil {
		s.logger(ctx, "order.shipment.cancel_failed", map[string]any{
			"orderId": order.ID,
			"waybill": order.Waybill,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) compensateStock(ctx context.Context, order Order) {
	if err := s.stock.Restore(ctx, stockLinesFor(order.Items)); err != nil {
		s.logger(ctx, "order.stock.restore_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) notify(ctx context.Context, kind notifications.EventKind, order Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, kind, order)
}

func (s *orderService) publishEvent(ctx context.Context, kind string, order Order) {
	if s.events == nil {
		return
	}
	_, err := s.events.PublishOrderEvent(ctx, OrderEventMessage{
		EventID:     eventIDPrefix + s.newID(),
		Kind:        kind,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		OccurredAt:  s.clock(),
	})
	if err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"orderId": order.ID,
			"kind":    kind,
			"error":   err.Error(),
		})
	}
}

func validateCreateOrderCommand(cmd CreateOrderCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for _, item := range cmd.Items {
		if _, ok := domain.ParseProductType(string(item.ProductType)); !ok {
			return fmt.Errorf("%w: unknown product type %q", ErrOrderInvalidInput, item.ProductType)
		}
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive for %s", ErrOrderInvalidInput, item.ProductID)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: unit price must not be negative for %s", ErrOrderInvalidInput, item.ProductID)
		}
	}
	if orderTotal(cmd.Items) <= 0 {
		return fmt.Errorf("%w: order total must be positive", ErrOrderInvalidInput)
	}
	if _, ok := domain.ParsePaymentMethod(string(cmd.PaymentMethod)); !ok {
		return fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	addr := cmd.ShippingAddress
	for field, value := range map[string]string{
		"name":        addr.Name,
		"phone":       addr.Phone,
		"line1":       addr.Line1,
		"city":        addr.City,
		"state":       addr.State,
		"postal code": addr.PostalCode,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: shipping address %s is required", ErrOrderInvalidInput, field)
		}
	}
	return nil
}

func orderTotal(items []OrderLineItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}

func cloneLineItems(items []OrderLineItem) []OrderLineItem {
	cloned := make([]OrderLineItem, len(items))
	copy(cloned, items)
	return cloned
}

func stockLinesFor(items []OrderLineItem) []StockLine {
	lines := make([]StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, StockLine{
			ProductType: item.ProductType,
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
		})
	}
	return lines
}

func statusIn(status OrderStatus, allowed []OrderStatus) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}

func translateOrderError(err error) error {
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderErr.Message)
		case repositories.OrderErrorStatusMismatch:
			return fmt.Errorf("%w: %s", ErrOrderConflict, orderErr.Message)
		case repositories.OrderErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrOrderInvalidInput, orderErr.Message)
		}
	}
	return err
}
