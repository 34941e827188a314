package domain

import (
	"strings"
	"time"
)

// ProductType tags a line item with the catalog collection that owns the product.
// The set is closed: each variant maps to exactly one stock-bearing collection.
type ProductType string

const (
	ProductTypeStandard  ProductType = "standard"
	ProductTypeOil       ProductType = "oil"
	ProductTypeMasala    ProductType = "masala"
	ProductTypeGhee      ProductType = "ghee"
	ProductTypeAgarbatti ProductType = "agarbatti"
	ProductTypeGanpati   ProductType = "ganpati"
	ProductTypeCup       ProductType = "cup"
)

// ProductTypes returns every known catalog type in a stable order.
func ProductTypes() []ProductType {
	return []ProductType{
		ProductTypeStandard,
		ProductTypeOil,
		ProductTypeMasala,
		ProductTypeGhee,
		ProductTypeAgarbatti,
		ProductTypeGanpati,
		ProductTypeCup,
	}
}

// ParseProductType normalises and validates a catalog type tag.
func ParseProductType(value string) (ProductType, bool) {
	candidate := ProductType(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range ProductTypes() {
		if t == candidate {
			return t, true
		}
	}
	return "", false
}

// OrderStatus enumerates the order state machine states.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// ParseOrderStatus normalises and validates a status string.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	candidate := OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	switch candidate {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusOutForDelivery, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusRefunded:
		return candidate, true
	}
	return "", false
}

// PaymentMethod distinguishes gateway-settled orders from cash on delivery.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

// ParsePaymentMethod normalises and validates a payment method string.
func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	candidate := PaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	switch candidate {
	case PaymentMethodCOD, PaymentMethodOnline:
		return candidate, true
	}
	return "", false
}

// PaymentStatus tracks whether funds have actually settled. COD orders stay
// pending until cash is collected on delivery.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// StockStatus is the derived availability label recomputed on every stock mutation.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "IN_STOCK"
	StockStatusLowStock   StockStatus = "LOW_STOCK"
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
)

// StockStatusFor derives the availability label from a quantity and low threshold.
func StockStatusFor(stock, lowThreshold int) StockStatus {
	switch {
	case stock <= 0:
		return StockStatusOutOfStock
	case stock <= lowThreshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// Address is the structured postal address captured at checkout.
type Address struct {
	Name       string `firestore:"name" json:"name"`
	Email      string `firestore:"email,omitempty" json:"email,omitempty"`
	Phone      string `firestore:"phone" json:"phone"`
	Line1      string `firestore:"line1" json:"line1"`
	Line2      string `firestore:"line2,omitempty" json:"line2,omitempty"`
	City       string `firestore:"city" json:"city"`
	State      string `firestore:"state" json:"state"`
	PostalCode string `firestore:"postalCode" json:"postal_code"`
}

// OrderLineItem snapshots one cart entry at order time. Name, image, variant
// and unit price are frozen copies; later catalog edits never touch them.
type OrderLineItem struct {
	ProductType ProductType `firestore:"productType" json:"product_type"`
	ProductID   string      `firestore:"productId" json:"product_id"`
	Name        string      `firestore:"name" json:"name"`
	Image       string      `firestore:"image,omitempty" json:"image,omitempty"`
	Variant     string      `firestore:"variant,omitempty" json:"variant,omitempty"`
	Quantity    int         `firestore:"qty" json:"quantity"`
	UnitPrice   int64       `firestore:"unitPrice" json:"unit_price"`
	WeightGrams int         `firestore:"weightGrams,omitempty" json:"weight_grams,omitempty"`
}

// Subtotal returns quantity times the frozen unit price.
func (l OrderLineItem) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Order is the fulfillment aggregate root. Orders are never deleted; cancelled
// and refunded records remain as the audit trail.
type Order struct {
	ID            string `firestore:"-" json:"id"`
	OrderNumber   string `firestore:"orderNumber" json:"order_number"`
	InvoiceNumber string `firestore:"invoiceNumber" json:"invoice_number"`

	UserID    string `firestore:"userId" json:"user_id"`
	UserEmail string `firestore:"userEmail,omitempty" json:"user_email,omitempty"`

	Items       []OrderLineItem `firestore:"items" json:"items"`
	TotalAmount int64           `firestore:"totalAmount" json:"total_amount"`

	ShippingAddress Address `firestore:"shippingAddress" json:"shipping_address"`

	PaymentMethod PaymentMethod `firestore:"paymentMethod" json:"payment_method"`
	PaymentStatus PaymentStatus `firestore:"paymentStatus" json:"payment_status"`
	Status        OrderStatus   `firestore:"status" json:"status"`

	IsCancelled  bool   `firestore:"isCancelled" json:"is_cancelled"`
	CancelReason string `firestore:"cancelReason,omitempty" json:"cancel_reason,omitempty"`

	// Waybill is assigned asynchronously once the carrier accepts the
	// shipment. Empty means the shipment must be manifested manually.
	Waybill string `firestore:"waybill,omitempty" json:"waybill,omitempty"`

	GatewayOrderID   string `firestore:"gatewayOrderId,omitempty" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string `firestore:"gatewayPaymentId,omitempty" json:"gateway_payment_id,omitempty"`
	GatewaySignature string `firestore:"gatewaySignature,omitempty" json:"-"`

	CreatedAt   time.Time  `firestore:"createdAt" json:"created_at"`
	UpdatedAt   time.Time  `firestore:"updatedAt" json:"updated_at"`
	PaidAt      *time.Time `firestore:"paidAt,omitempty" json:"paid_at,omitempty"`
	ShippedAt   *time.Time `firestore:"shippedAt,omitempty" json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `firestore:"deliveredAt,omitempty" json:"delivered_at,omitempty"`
	CancelledAt *time.Time `firestore:"cancelledAt,omitempty" json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `firestore:"refundedAt,omitempty" json:"refunded_at,omitempty"`
}

// RecipientEmail resolves the notification address: the denormalised user email
// first, falling back to the email captured on the shipping address.
func (o Order) RecipientEmail() string {
	if email := strings.TrimSpace(o.UserEmail); email != "" {
		return email
	}
	return strings.TrimSpace(o.ShippingAddress.Email)
}

// ProductStock is the stock view of one catalog record, independent of which
// collection owns it.
type ProductStock struct {
	ProductType ProductType `firestore:"-" json:"product_type"`
	ProductID   string      `firestore:"-" json:"product_id"`
	Name        string      `firestore:"name,omitempty" json:"name,omitempty"`
	Stock       int         `firestore:"stock" json:"stock"`
	StockStatus StockStatus `firestore:"stockStatus" json:"stock_status"`
	UpdatedAt   time.Time   `firestore:"updatedAt" json:"updated_at"`
}
