package notifications

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/annapurna-foods/api/internal/domain"
)

type stubSender struct {
	sent []Message
	err  error
}

func (s *stubSender) Send(msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func notifiableOrder() domain.Order {
	return domain.Order{
		ID:            "order-1",
		OrderNumber:   "ORD-00042",
		InvoiceNumber: "INV-00042",
		UserEmail:     "asha@example.com",
		TotalAmount:   1250,
		Items: []domain.OrderLineItem{
			{Name: "Cow Ghee 500ml", Variant: "500ml", Quantity: 2, UnitPrice: 500},
			{Name: "Garam Masala 100g", Quantity: 1, UnitPrice: 250},
		},
		PaymentMethod: domain.PaymentMethodOnline,
		ShippingAddress: domain.Address{
			Name:       "Asha Kulkarni",
			Email:      "asha.alt@example.com",
			City:       "Pune",
			State:      "Maharashtra",
			PostalCode: "411005",
		},
	}
}

func TestNotifySendsOrderPlacedToCustomer(t *testing.T) {
	sender := &stubSender{}
	d := NewDispatcher(sender, "ops@annapurnafoods.in")

	d.Notify(context.Background(), KindOrderPlaced, notifiableOrder())

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "asha@example.com" {
		t.Errorf("unexpected recipient %s", msg.To)
	}
	if msg.Subject != "Order ORD-00042 received" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Asha Kulkarni") {
		t.Error("body missing customer name")
	}
	if !strings.Contains(msg.HTML, "Cow Ghee 500ml") {
		t.Error("body missing line item")
	}
	if !strings.Contains(msg.HTML, "₹1,250") {
		t.Errorf("body missing formatted total: %s", msg.HTML)
	}
}

func TestNotifyRoutesAdminCopyToOpsMailbox(t *testing.T) {
	sender := &stubSender{}
	d := NewDispatcher(sender, "ops@annapurnafoods.in")

	d.Notify(context.Background(), KindAdminNewOrder, notifiableOrder())

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(sender.sent))
	}
	if sender.sent[0].To != "ops@annapurnafoods.in" {
		t.Errorf("unexpected recipient %s", sender.sent[0].To)
	}
}

func TestNotifyFallsBackToShippingAddressEmail(t *testing.T) {
	sender := &stubSender{}
	d := NewDispatcher(sender, "")

	order := notifiableOrder()
	order.UserEmail = ""
	d.Notify(context.Background(), KindOrderDelivered, order)

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(sender.sent))
	}
	if sender.sent[0].To != "asha.alt@example.com" {
		t.Errorf("unexpected recipient %s", sender.sent[0].To)
	}
}

func TestNotifySkipsWhenNoRecipient(t *testing.T) {
	sender := &stubSender{}
	d := NewDispatcher(sender, "")

	order := notifiableOrder()
	order.UserEmail = ""
	order.ShippingAddress.Email = ""
	d.Notify(context.Background(), KindOrderPlaced, order)

	if len(sender.sent) != 0 {
		t.Fatalf("expected no mail, got %d", len(sender.sent))
	}
}

func TestNotifySwallowsSendFailure(t *testing.T) {
	sender := &stubSender{err: errors.New("smtp unavailable")}
	d := NewDispatcher(sender, "ops@annapurnafoods.in")

	// Must not panic or propagate.
	d.Notify(context.Background(), KindPaymentConfirmed, notifiableOrder())
}

func TestNotifyStripsMarkupFromUserStrings(t *testing.T) {
	sender := &stubSender{}
	d := NewDispatcher(sender, "")

	order := notifiableOrder()
	order.ShippingAddress.Name = `<script>alert(1)</script>Asha`
	order.CancelReason = `changed my <b>mind</b>`
	d.Notify(context.Background(), KindOrderCancelled, order)

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(sender.sent))
	}
	body := sender.sent[0].HTML
	if strings.Contains(body, "<script>") || strings.Contains(body, "alert(1)") {
		t.Error("body carries script content")
	}
	if !strings.Contains(body, "changed my mind") {
		t.Error("cancel reason missing from body")
	}
}

func TestEventKindsCoverAllTemplates(t *testing.T) {
	for _, kind := range EventKinds() {
		if _, ok := bodyTemplates[kind]; !ok {
			t.Errorf("missing template for %s", kind)
		}
		if _, ok := subjects[kind]; !ok {
			t.Errorf("missing subject for %s", kind)
		}
	}
}

func TestFormatINRUsesIndianGrouping(t *testing.T) {
	cases := map[int64]string{
		999:     "₹999",
		1250:    "₹1,250",
		125000:  "₹1,25,000",
		1250000: "₹12,50,000",
	}
	for amount, want := range cases {
		if got := FormatINR(amount); got != want {
			t.Errorf("FormatINR(%d) = %q, want %q", amount, got, want)
		}
	}
}
