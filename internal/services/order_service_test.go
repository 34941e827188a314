package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/annapurna-foods/api/internal/domain"
	"github.com/annapurna-foods/api/internal/notifications"
	"github.com/annapurna-foods/api/internal/payments"
	"github.com/annapurna-foods/api/internal/repositories"
	"github.com/annapurna-foods/api/internal/shipping"
)

// memoryOrderRepository is an in-memory stand-in for the Firestore order repository.
type memoryOrderRepository struct {
	mu          sync.Mutex
	orders      map[string]domain.Order
	updateIfErr error
}

func newMemoryOrderRepository() *memoryOrderRepository {
	return &memoryOrderRepository{orders: make(map[string]domain.Order)}
}

func (r *memoryOrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return repositories.NewOrderError(repositories.OrderErrorInvalidInput, "duplicate order id", nil)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memoryOrderRepository) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; !exists {
		return repositories.NewOrderError(repositories.OrderErrorNotFound, "order "+order.ID, nil)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memoryOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order "+orderID, nil)
	}
	return order, nil
}

func (r *memoryOrderRepository) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.GatewayOrderID == gatewayOrderID {
			return order, nil
		}
	}
	return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "gateway order "+gatewayOrderID, nil)
}

func (r *memoryOrderRepository) UpdateIf(_ context.Context, orderID string, expected domain.OrderStatus, mutate func(domain.Order) (domain.Order, error)) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateIfErr != nil {
		return domain.Order{}, r.updateIfErr
	}
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order "+orderID, nil)
	}
	if order.Status != expected {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorStatusMismatch,
			fmt.Sprintf("order %s is %s, expected %s", orderID, order.Status, expected), nil)
	}
	updated, err := mutate(order)
	if err != nil {
		return domain.Order{}, err
	}
	r.orders[orderID] = updated
	return updated, nil
}

func (r *memoryOrderRepository) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Order
	for _, order := range r.orders {
		if orderMatchesFilter(order, filter) {
			matched = append(matched, order)
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *memoryOrderRepository) Count(_ context.Context, filter repositories.OrderListFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, order := range r.orders {
		if orderMatchesFilter(order, filter) {
			count++
		}
	}
	return count, nil
}

func orderMatchesFilter(order domain.Order, filter repositories.OrderListFilter) bool {
	if filter.UserID != "" && order.UserID != filter.UserID {
		return false
	}
	if len(filter.Status) > 0 {
		found := false
		for _, status := range filter.Status {
			if order.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Since != nil && order.CreatedAt.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && !order.CreatedAt.Before(*filter.Until) {
		return false
	}
	return true
}

type stubStockService struct {
	mu           sync.Mutex
	decremented  [][]StockLine
	restored     [][]StockLine
	decrementErr error
	restoreErr   error
}

func (s *stubStockService) Get(context.Context, ProductType, string) (ProductStock, error) {
	return ProductStock{}, nil
}

func (s *stubStockService) Decrement(_ context.Context, lines []StockLine) ([]ProductStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decrementErr != nil {
		return nil, s.decrementErr
	}
	s.decremented = append(s.decremented, lines)
	return nil, nil
}

func (s *stubStockService) Restore(_ context.Context, lines []StockLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restoreErr != nil {
		return s.restoreErr
	}
	s.restored = append(s.restored, lines)
	return nil
}

type sequenceCounterService struct {
	mu      sync.Mutex
	orders  int64
	invoice int64
}

func (s *sequenceCounterService) Next(context.Context, string, CounterGenerationOptions) (CounterValue, error) {
	return CounterValue{}, errors.New("not used")
}

func (s *sequenceCounterService) NextOrderNumber(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders++
	return fmt.Sprintf("ORD-%05d", s.orders), nil
}

func (s *sequenceCounterService) NextInvoiceNumber(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoice++
	return fmt.Sprintf("INV-%05d", s.invoice), nil
}

type stubGateway struct {
	mu        sync.Mutex
	created   []payments.GatewayOrderRequest
	createErr error
	verifyErr error
}

func (g *stubGateway) CreateOrder(_ context.Context, req payments.GatewayOrderRequest) (payments.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payments.GatewayOrder{}, g.createErr
	}
	g.created = append(g.created, req)
	return payments.GatewayOrder{
		ID:          fmt.Sprintf("order_gw%d", len(g.created)),
		AmountPaise: req.AmountPaise,
		Currency:    "INR",
		Receipt:     req.Receipt,
		Status:      "created",
	}, nil
}

func (g *stubGateway) VerifySignature(payments.VerifyRequest) error {
	return g.verifyErr
}

type stubCarrier struct {
	mu         sync.Mutex
	created    []string
	cancelled  []string
	createErr  error
	nextNumber int
}

func (c *stubCarrier) CreateShipment(_ context.Context, order domain.Order) (shipping.Shipment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return shipping.Shipment{}, c.createErr
	}
	c.nextNumber++
	waybill := fmt.Sprintf("WB%03d", c.nextNumber)
	c.created = append(c.created, order.OrderNumber)
	return shipping.Shipment{Waybill: waybill, Status: "Success"}, nil
}

func (c *stubCarrier) CancelShipment(_ context.Context, waybill string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, waybill)
	return nil
}

type stubNotifier struct {
	mu    sync.Mutex
	kinds []notifications.EventKind
}

func (n *stubNotifier) Notify(_ context.Context, kind notifications.EventKind, _ domain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

func (n *stubNotifier) sentKinds() []notifications.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.EventKind(nil), n.kinds...)
}

type stubPublisher struct {
	mu     sync.Mutex
	events []OrderEventMessage
}

func (p *stubPublisher) PublishOrderEvent(_ context.Context, event OrderEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

type orderServiceFixture struct {
	service  OrderService
	orders   *memoryOrderRepository
	stock    *stubStockService
	gateway  *stubGateway
	carrier  *stubCarrier
	notifier *stubNotifier
	events   *stubPublisher
}

func newOrderServiceFixture(t *testing.T) *orderServiceFixture {
	t.Helper()
	fixture := &orderServiceFixture{
		orders:   newMemoryOrderRepository(),
		stock:    &stubStockService{},
		gateway:  &stubGateway{},
		carrier:  &stubCarrier{},
		notifier: &stubNotifier{},
		events:   &stubPublisher{},
	}

	var nextID int
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:   fixture.orders,
		Counters: &sequenceCounterService{},
		Stock:    fixture.stock,
		Gateway:  fixture.gateway,
		Carrier:  fixture.carrier,
		Notifier: fixture.notifier,
		Events:   fixture.events,
		Clock: func() time.Time {
			return time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
		},
		IDGenerator: func() string {
			nextID++
			return fmt.Sprintf("%06d", nextID)
		},
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	fixture.service = svc
	return fixture
}

func createCommand(method domain.PaymentMethod) CreateOrderCommand {
	return CreateOrderCommand{
		UserID:    "user-7",
		UserEmail: "asha@example.com",
		Items: []OrderLineItem{
			{ProductType: domain.ProductTypeGhee, ProductID: "ghee-500ml", Name: "Cow Ghee 500ml", Quantity: 2, UnitPrice: 500},
			{ProductType: domain.ProductTypeMasala, ProductID: "garam-masala-100g", Name: "Garam Masala 100g", Quantity: 1, UnitPrice: 250},
		},
		ShippingAddress: domain.Address{
			Name:       "Asha Kulkarni",
			Phone:      "9800000000",
			Line1:      "14 MG Road",
			City:       "Pune",
			State:      "Maharashtra",
			PostalCode: "411005",
		},
		PaymentMethod: method,
	}
}

func TestCreateOnlineOrderRegistersGatewayOrder(t *testing.T) {
	f := newOrderServiceFixture(t)

	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.OrderNumber != "ORD-00001" {
		t.Errorf("unexpected order number %s", order.OrderNumber)
	}
	if order.InvoiceNumber != "INV-00001" {
		t.Errorf("unexpected invoice number %s", order.InvoiceNumber)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("unexpected status %s", order.Status)
	}
	if order.TotalAmount != 1250 {
		t.Errorf("unexpected total %d", order.TotalAmount)
	}
	if order.GatewayOrderID == "" {
		t.Error("expected gateway order id")
	}
	if len(f.gateway.created) != 1 {
		t.Fatalf("expected 1 gateway order, got %d", len(f.gateway.created))
	}
	if f.gateway.created[0].AmountPaise != 125000 {
		t.Errorf("expected amount in paise, got %d", f.gateway.created[0].AmountPaise)
	}
	// Stock is committed only when payment is verified.
	if len(f.stock.decremented) != 0 {
		t.Errorf("online order must not decrement stock at creation")
	}

	kinds := f.notifier.sentKinds()
	if len(kinds) != 2 || kinds[0] != notifications.KindOrderPlaced || kinds[1] != notifications.KindAdminNewOrder {
		t.Errorf("unexpected notifications %v", kinds)
	}
	if len(f.events.events) != 1 || f.events.events[0].Kind != orderEventCreated {
		t.Errorf("unexpected events %v", f.events.events)
	}
}

func TestCreateCODOrderCommitsStockAndIsPaid(t *testing.T) {
	f := newOrderServiceFixture(t)

	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.Status != domain.OrderStatusPaid {
		t.Errorf("unexpected status %s", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("cod payment must stay pending until delivery, got %s", order.PaymentStatus)
	}
	if order.PaidAt == nil {
		t.Error("expected paid timestamp")
	}
	if len(f.stock.decremented) != 1 {
		t.Fatalf("expected 1 stock decrement, got %d", len(f.stock.decremented))
	}
	if order.Waybill == "" {
		t.Error("expected waybill on cod order")
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newOrderServiceFixture(t)

	cases := map[string]func(*CreateOrderCommand){
		"missing user":    func(c *CreateOrderCommand) { c.UserID = "" },
		"no items":        func(c *CreateOrderCommand) { c.Items = nil },
		"zero quantity":   func(c *CreateOrderCommand) { c.Items[0].Quantity = 0 },
		"unknown type":    func(c *CreateOrderCommand) { c.Items[0].ProductType = "candles" },
		"bad method":      func(c *CreateOrderCommand) { c.PaymentMethod = "upi" },
		"missing address": func(c *CreateOrderCommand) { c.ShippingAddress.PostalCode = "" },
	}
	for name, corrupt := range cases {
		cmd := createCommand(domain.PaymentMethodOnline)
		corrupt(&cmd)
		if _, err := f.service.Create(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
			t.Errorf("%s: expected ErrOrderInvalidInput, got %v", name, err)
		}
	}
}

func TestVerifyPaymentSettlesOrder(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := f.service.VerifyPayment(context.Background(), VerifyPaymentCommand{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pay_123",
		Signature:        "sig",
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	if updated.Status != domain.OrderStatusPaid {
		t.Errorf("unexpected status %s", updated.Status)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("unexpected payment status %s", updated.PaymentStatus)
	}
	if updated.GatewayPaymentID != "pay_123" {
		t.Errorf("unexpected payment id %s", updated.GatewayPaymentID)
	}
	if len(f.stock.decremented) != 1 {
		t.Fatalf("expected 1 stock decrement, got %d", len(f.stock.decremented))
	}
	if updated.Waybill == "" {
		t.Error("expected waybill after settlement")
	}

	kinds := f.notifier.sentKinds()
	if kinds[len(kinds)-1] != notifications.KindPaymentConfirmed {
		t.Errorf("expected payment confirmation mail, got %v", kinds)
	}
}

func TestVerifyPaymentRejectsBadSignature(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.gateway.verifyErr = payments.ErrSignatureMismatch

	_, err = f.service.VerifyPayment(context.Background(), VerifyPaymentCommand{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pay_123",
		Signature:        "forged",
	})
	if !errors.Is(err, ErrOrderPaymentInvalid) {
		t.Fatalf("expected ErrOrderPaymentInvalid, got %v", err)
	}
	if len(f.stock.decremented) != 0 {
		t.Error("stock must not move on a rejected signature")
	}

	kinds := f.notifier.sentKinds()
	if len(kinds) == 0 || kinds[len(kinds)-1] != notifications.KindPaymentFailed {
		t.Errorf("expected payment failed mail, got %v", kinds)
	}

	// The order stays pending so the customer can retry with a valid payment.
	current, err := f.service.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if current.Status != domain.OrderStatusPending {
		t.Errorf("unexpected status %s", current.Status)
	}
}

func TestVerifyPaymentIsIdempotent(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cmd := VerifyPaymentCommand{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pay_123",
		Signature:        "sig",
	}
	if _, err := f.service.VerifyPayment(context.Background(), cmd); err != nil {
		t.Fatalf("first VerifyPayment: %v", err)
	}
	again, err := f.service.VerifyPayment(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second VerifyPayment: %v", err)
	}
	if again.Status != domain.OrderStatusPaid {
		t.Errorf("unexpected status %s", again.Status)
	}
	if len(f.stock.decremented) != 1 {
		t.Errorf("duplicate callback must not decrement stock twice, got %d", len(f.stock.decremented))
	}
}

func TestVerifyPaymentConflictRestoresStock(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.orders.updateIfErr = repositories.NewOrderError(repositories.OrderErrorStatusMismatch, "order drifted", nil)

	_, err = f.service.VerifyPayment(context.Background(), VerifyPaymentCommand{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pay_123",
		Signature:        "sig",
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
	if len(f.stock.restored) != 1 {
		t.Errorf("expected stock compensation, got %d restores", len(f.stock.restored))
	}
}

func TestCancelPendingOrderSkipsStockRestore(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cancelled, err := f.service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: order.ID,
		UserID:  "user-7",
		Reason:  "ordered by mistake",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || !cancelled.IsCancelled {
		t.Errorf("unexpected state %s cancelled=%v", cancelled.Status, cancelled.IsCancelled)
	}
	if cancelled.CancelReason != "ordered by mistake" {
		t.Errorf("unexpected reason %q", cancelled.CancelReason)
	}
	if len(f.stock.restored) != 0 {
		t.Error("pending order has no stock to restore")
	}
}

func TestCancelPaidOrderRestoresStockAndVoidsWaybill(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cancelled, err := f.service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: order.ID,
		UserID:  "user-7",
		Reason:  "changed my mind",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("unexpected status %s", cancelled.Status)
	}
	if len(f.stock.restored) != 1 {
		t.Errorf("expected stock restore, got %d", len(f.stock.restored))
	}
	if len(f.carrier.cancelled) != 1 {
		t.Errorf("expected waybill cancellation, got %d", len(f.carrier.cancelled))
	}
}

func TestCancelRejectsShippedOrder(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusShipped,
		ActorID:      "admin-1",
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	_, err = f.service.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, UserID: "user-7", Reason: "too slow"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for name, reason := range map[string]string{"empty": "", "blank": "   "} {
		_, err := f.service.Cancel(context.Background(), CancelOrderCommand{
			OrderID: order.ID,
			UserID:  "user-7",
			Reason:  reason,
		})
		if !errors.Is(err, ErrOrderInvalidInput) {
			t.Errorf("%s reason: expected ErrOrderInvalidInput, got %v", name, err)
		}
	}

	current, err := f.service.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if current.Status != domain.OrderStatusPending {
		t.Errorf("order must be untouched, got %s", current.Status)
	}
}

func TestCancelHidesForeignOrders(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = f.service.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, UserID: "someone-else", Reason: "not mine"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestUpdateStatusEnforcesTransitions(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// paid -> out_for_delivery skips shipped and must be rejected.
	_, err = f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusOutForDelivery,
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}

	for _, target := range []domain.OrderStatus{
		domain.OrderStatusShipped,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
	} {
		updated, err := f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
			OrderID:      order.ID,
			TargetStatus: target,
			ActorID:      "admin-1",
		})
		if err != nil {
			t.Fatalf("UpdateStatus to %s: %v", target, err)
		}
		if updated.Status != target {
			t.Errorf("expected status %s, got %s", target, updated.Status)
		}
	}

	final, err := f.service.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if final.ShippedAt == nil || final.DeliveredAt == nil {
		t.Error("expected shipped and delivered timestamps")
	}
	// Delivery settles COD.
	if final.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("expected cod settlement on delivery, got %s", final.PaymentStatus)
	}
}

func TestUpdateStatusCancelsShippedOrder(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusShipped,
		ActorID:      "admin-1",
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	cancelled, err := f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusCancelled,
		ActorID:      "admin-1",
	})
	if err != nil {
		t.Fatalf("UpdateStatus to cancelled: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || !cancelled.IsCancelled {
		t.Errorf("unexpected state %s cancelled=%v", cancelled.Status, cancelled.IsCancelled)
	}
	if len(f.stock.restored) != 1 {
		t.Errorf("expected stock restore, got %d", len(f.stock.restored))
	}
	if len(f.carrier.cancelled) != 1 {
		t.Errorf("expected waybill cancellation, got %d", len(f.carrier.cancelled))
	}

	kinds := f.notifier.sentKinds()
	if kinds[len(kinds)-1] != notifications.KindOrderCancelled {
		t.Errorf("expected cancellation mail, got %v", kinds)
	}
}

func TestUpdateStatusCancelsOutForDeliveryOrder(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, target := range []domain.OrderStatus{domain.OrderStatusShipped, domain.OrderStatusOutForDelivery} {
		if _, err := f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
			OrderID:      order.ID,
			TargetStatus: target,
			ActorID:      "admin-1",
		}); err != nil {
			t.Fatalf("UpdateStatus to %s: %v", target, err)
		}
	}

	cancelled, err := f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusCancelled,
		ActorID:      "admin-1",
	})
	if err != nil {
		t.Fatalf("UpdateStatus to cancelled: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("unexpected status %s", cancelled.Status)
	}
	if len(f.stock.restored) != 1 {
		t.Errorf("expected stock restore, got %d", len(f.stock.restored))
	}
	if len(f.carrier.cancelled) != 1 {
		t.Errorf("expected waybill cancellation, got %d", len(f.carrier.cancelled))
	}
}

func TestUpdateStatusRejectsManualSettlement(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Settlement goes through payment verification only.
	_, err = f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusPaid,
		ActorID:      "admin-1",
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
	if len(f.stock.decremented) != 0 {
		t.Error("stock must not move on a rejected settlement")
	}

	current, err := f.service.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if current.Status != domain.OrderStatusPending || current.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("order must stay pending, got %s/%s", current.Status, current.PaymentStatus)
	}
}

func TestUpdateStatusRejectsSkippingOutForDelivery(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusShipped,
		ActorID:      "admin-1",
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	_, err = f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusDelivered,
		ActorID:      "admin-1",
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestUpdateStatusRefundKeepsStock(t *testing.T) {
	f := newOrderServiceFixture(t)
	order, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	refunded, err := f.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusRefunded,
		ActorID:      "admin-1",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if refunded.RefundedAt == nil {
		t.Error("expected refunded timestamp")
	}
	if len(f.stock.restored) != 0 {
		t.Error("refund must not restore stock, goods may already be with the customer")
	}
}

func TestListUserOrdersFiltersByOwner(t *testing.T) {
	f := newOrderServiceFixture(t)
	if _, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	other := createCommand(domain.PaymentMethodOnline)
	other.UserID = "user-9"
	if _, err := f.service.Create(context.Background(), other); err != nil {
		t.Fatalf("Create: %v", err)
	}

	orders, err := f.service.ListUserOrders(context.Background(), "user-7", 0)
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if len(orders) != 1 || orders[0].UserID != "user-7" {
		t.Errorf("unexpected listing %v", orders)
	}
}

func TestListAdminOrdersAggregatesCounts(t *testing.T) {
	f := newOrderServiceFixture(t)
	online, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.service.Create(context.Background(), createCommand(domain.PaymentMethodCOD)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.service.VerifyPayment(context.Background(), VerifyPaymentCommand{
		GatewayOrderID:   online.GatewayOrderID,
		GatewayPaymentID: "pay_1",
		Signature:        "sig",
	}); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	page, err := f.service.ListAdminOrders(context.Background(), AdminOrderQuery{})
	if err != nil {
		t.Fatalf("ListAdminOrders: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("unexpected total %d", page.Total)
	}
	if page.StatusCounts[domain.OrderStatusPaid] != 2 {
		t.Errorf("unexpected paid count %d", page.StatusCounts[domain.OrderStatusPaid])
	}
	if page.StatusCounts[domain.OrderStatusPending] != 0 {
		t.Errorf("unexpected pending count %d", page.StatusCounts[domain.OrderStatusPending])
	}
	if len(page.Orders) != 2 {
		t.Errorf("unexpected listing size %d", len(page.Orders))
	}
}
