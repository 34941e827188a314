package notifications

import (
	"bytes"
	"fmt"
	"html/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/annapurna-foods/api/internal/domain"
)

// EventKind enumerates the transactional mails sent during order fulfillment.
type EventKind string

const (
	KindOrderPlaced         EventKind = "order.placed"
	KindAdminNewOrder       EventKind = "order.admin_new"
	KindPaymentConfirmed    EventKind = "order.payment_confirmed"
	KindPaymentFailed       EventKind = "order.payment_failed"
	KindOrderShipped        EventKind = "order.shipped"
	KindOrderOutForDelivery EventKind = "order.out_for_delivery"
	KindOrderDelivered      EventKind = "order.delivered"
	KindOrderCancelled      EventKind = "order.cancelled"
	KindOrderRefunded       EventKind = "order.refunded"
)

// EventKinds lists every mailable event in a stable order.
func EventKinds() []EventKind {
	return []EventKind{
		KindOrderPlaced,
		KindAdminNewOrder,
		KindPaymentConfirmed,
		KindPaymentFailed,
		KindOrderShipped,
		KindOrderOutForDelivery,
		KindOrderDelivered,
		KindOrderCancelled,
		KindOrderRefunded,
	}
}

// inrPrinter renders amounts with Indian digit grouping.
var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders a whole-rupee amount for mail bodies.
func FormatINR(amount int64) string {
	return inrPrinter.Sprintf("₹%v", amount)
}

type templateData struct {
	Order        domain.Order
	CustomerName string
	Total        string
	CancelReason string
	Waybill      string
	Lines        []templateLine
}

type templateLine struct {
	Name     string
	Variant  string
	Quantity int
	Subtotal string
}

const baseLayout = `<!DOCTYPE html>
<html>
<body style="font-family:Arial,sans-serif;color:#333;">
<h2>{{.Heading}}</h2>
{{.Body}}
<p style="color:#777;font-size:12px;">Annapurna Foods &middot; order {{.OrderNumber}}</p>
</body>
</html>`

var layoutTmpl = template.Must(template.New("layout").Parse(baseLayout))

var bodyTemplates = map[EventKind]*template.Template{
	KindOrderPlaced: mustBody("order_placed", `
<p>Namaste {{.CustomerName}},</p>
<p>We received your order <strong>{{.Order.OrderNumber}}</strong> for {{.Total}}.</p>
{{template "items" .}}
<p>We will mail you again once payment is confirmed and the order ships.</p>`),

	KindAdminNewOrder: mustBody("admin_new_order", `
<p>New order <strong>{{.Order.OrderNumber}}</strong> ({{.Order.PaymentMethod}}) for {{.Total}}.</p>
{{template "items" .}}
<p>Shipping to {{.Order.ShippingAddress.City}}, {{.Order.ShippingAddress.State}} {{.Order.ShippingAddress.PostalCode}}.</p>`),

	KindPaymentConfirmed: mustBody("payment_confirmed", `
<p>Namaste {{.CustomerName}},</p>
<p>Payment of {{.Total}} for order <strong>{{.Order.OrderNumber}}</strong> is confirmed. Invoice {{.Order.InvoiceNumber}}.</p>
<p>Your order is now being packed.</p>`),

	KindPaymentFailed: mustBody("payment_failed", `
<p>Namaste {{.CustomerName}},</p>
<p>We could not verify the payment for order <strong>{{.Order.OrderNumber}}</strong>. No money has been captured for this order.</p>
<p>Please retry the payment from your orders page. If the amount was debited it will be reversed by your bank automatically.</p>`),

	KindOrderShipped: mustBody("order_shipped", `
<p>Namaste {{.CustomerName}},</p>
<p>Order <strong>{{.Order.OrderNumber}}</strong> has shipped.</p>
{{if .Waybill}}<p>Track it with waybill <strong>{{.Waybill}}</strong>.</p>{{end}}`),

	KindOrderOutForDelivery: mustBody("order_out_for_delivery", `
<p>Namaste {{.CustomerName}},</p>
<p>Order <strong>{{.Order.OrderNumber}}</strong> is out for delivery today. Please keep your phone reachable.</p>`),

	KindOrderDelivered: mustBody("order_delivered", `
<p>Namaste {{.CustomerName}},</p>
<p>Order <strong>{{.Order.OrderNumber}}</strong> was delivered. We hope everything arrived in good condition.</p>`),

	KindOrderCancelled: mustBody("order_cancelled", `
<p>Namaste {{.CustomerName}},</p>
<p>Order <strong>{{.Order.OrderNumber}}</strong> has been cancelled.</p>
{{if .CancelReason}}<p>Reason: {{.CancelReason}}</p>{{end}}`),

	KindOrderRefunded: mustBody("order_refunded", `
<p>Namaste {{.CustomerName}},</p>
<p>Your refund of {{.Total}} for order <strong>{{.Order.OrderNumber}}</strong> has been initiated. It should reach your account within 5-7 working days.</p>`),
}

const itemsPartial = `{{define "items"}}<table cellpadding="4" cellspacing="0" border="0">
{{range .Lines}}<tr><td>{{.Name}}{{if .Variant}} ({{.Variant}}){{end}}</td><td>x{{.Quantity}}</td><td>{{.Subtotal}}</td></tr>
{{end}}</table>{{end}}`

func mustBody(name, body string) *template.Template {
	return template.Must(template.Must(template.New(name).Parse(itemsPartial)).Parse(body))
}

var subjects = map[EventKind]string{
	KindOrderPlaced:         "Order %s received",
	KindAdminNewOrder:       "New order %s",
	KindPaymentConfirmed:    "Payment confirmed for order %s",
	KindPaymentFailed:       "Payment failed for order %s",
	KindOrderShipped:        "Order %s has shipped",
	KindOrderOutForDelivery: "Order %s is out for delivery",
	KindOrderDelivered:      "Order %s delivered",
	KindOrderCancelled:      "Order %s cancelled",
	KindOrderRefunded:       "Refund initiated for order %s",
}

type renderedMail struct {
	Subject string
	HTML    string
}

func render(kind EventKind, data templateData) (renderedMail, error) {
	bodyTmpl, ok := bodyTemplates[kind]
	if !ok {
		return renderedMail{}, fmt.Errorf("notifications: no template for event %q", kind)
	}

	var body bytes.Buffer
	if err := bodyTmpl.Execute(&body, data); err != nil {
		return renderedMail{}, fmt.Errorf("notifications: render %s body: %w", kind, err)
	}

	var page bytes.Buffer
	err := layoutTmpl.Execute(&page, map[string]any{
		"Heading":     fmt.Sprintf(subjects[kind], data.Order.OrderNumber),
		"Body":        template.HTML(body.String()),
		"OrderNumber": data.Order.OrderNumber,
	})
	if err != nil {
		return renderedMail{}, fmt.Errorf("notifications: render %s layout: %w", kind, err)
	}

	return renderedMail{
		Subject: fmt.Sprintf(subjects[kind], data.Order.OrderNumber),
		HTML:    page.String(),
	}, nil
}
