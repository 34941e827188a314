package notifications

import (
	"context"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	domain "github.com/annapurna-foods/api/internal/domain"
	"github.com/annapurna-foods/api/internal/platform/requestctx"
)

// Dispatcher renders and sends fulfillment mail. Delivery is best effort:
// failures are logged and never surfaced to the order flow.
type Dispatcher struct {
	sender     Sender
	opsMailbox string
	logger     *zap.Logger
	sanitizer  *bluemonday.Policy
}

// DispatcherOption customises the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger injects the fallback logger used outside request scope.
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher. opsMailbox receives the admin copy
// of new-order mail; when empty that event is skipped.
func NewDispatcher(sender Sender, opsMailbox string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sender:     sender,
		opsMailbox: strings.TrimSpace(opsMailbox),
		logger:     zap.NewNop(),
		sanitizer:  bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Notify sends the mail for one event. It never returns an error.
func (d *Dispatcher) Notify(ctx context.Context, kind EventKind, order domain.Order) {
	if d == nil || d.sender == nil {
		return
	}
	logger := d.requestLogger(ctx).With(
		zap.String("event", string(kind)),
		zap.String("order_number", order.OrderNumber),
	)

	to := d.recipient(kind, order)
	if to == "" {
		logger.Warn("notification skipped, no recipient")
		return
	}

	mail, err := render(kind, d.templateData(order))
	if err != nil {
		logger.Error("notification render failed", zap.Error(err))
		return
	}

	if err := d.sender.Send(Message{To: to, Subject: mail.Subject, HTML: mail.HTML}); err != nil {
		logger.Error("notification send failed", zap.Error(err))
		return
	}
	logger.Info("notification sent")
}

func (d *Dispatcher) recipient(kind EventKind, order domain.Order) string {
	if kind == KindAdminNewOrder {
		return d.opsMailbox
	}
	return strings.TrimSpace(order.RecipientEmail())
}

func (d *Dispatcher) templateData(order domain.Order) templateData {
	data := templateData{
		Order:        order,
		CustomerName: d.clean(order.ShippingAddress.Name),
		Total:        FormatINR(order.TotalAmount),
		CancelReason: d.clean(order.CancelReason),
		Waybill:      d.clean(order.Waybill),
	}
	if data.CustomerName == "" {
		data.CustomerName = "customer"
	}
	for _, item := range order.Items {
		data.Lines = append(data.Lines, templateLine{
			Name:     d.clean(item.Name),
			Variant:  d.clean(item.Variant),
			Quantity: item.Quantity,
			Subtotal: FormatINR(item.Subtotal()),
		})
	}
	return data
}

// clean strips markup from user-supplied strings before they reach a mail
// body.
func (d *Dispatcher) clean(value string) string {
	return strings.TrimSpace(d.sanitizer.Sanitize(value))
}

func (d *Dispatcher) requestLogger(ctx context.Context) *zap.Logger {
	if logger := requestctx.Logger(ctx); logger != requestctx.NoopLogger() {
		return logger
	}
	return d.logger
}
