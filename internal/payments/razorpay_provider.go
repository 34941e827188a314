package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

// razorpayOrderAPI mirrors the order endpoints of the Razorpay SDK client so
// tests can substitute a stub.
type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayProvider implements Provider using the Razorpay Orders API and the
// documented signature scheme (HMAC-SHA256 over "orderId|paymentId").
type RazorpayProvider struct {
	orders    razorpayOrderAPI
	keySecret string
	currency  string
}

// RazorpayOption customises the provider.
type RazorpayOption func(*RazorpayProvider)

// WithRazorpayOrderAPI overrides the SDK order client, primarily for testing.
func WithRazorpayOrderAPI(api razorpayOrderAPI) RazorpayOption {
	return func(p *RazorpayProvider) {
		if api != nil {
			p.orders = api
		}
	}
}

// NewRazorpayProvider constructs a Razorpay-backed payment provider.
func NewRazorpayProvider(keyID, keySecret, currency string, opts ...RazorpayOption) (*RazorpayProvider, error) {
	keyID = strings.TrimSpace(keyID)
	keySecret = strings.TrimSpace(keySecret)
	if keyID == "" || keySecret == "" {
		return nil, errors.New("payments: razorpay key id and secret are required")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "INR"
	}

	client := razorpay.NewClient(keyID, keySecret)
	provider := &RazorpayProvider{
		orders:    client.Order,
		keySecret: keySecret,
		currency:  currency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider, nil
}

// CreateOrder registers an order with Razorpay and returns the gateway order.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error) {
	if p == nil || p.orders == nil {
		return GatewayOrder{}, errors.New("payments: razorpay provider not initialised")
	}
	if err := ctx.Err(); err != nil {
		return GatewayOrder{}, err
	}
	if req.AmountPaise <= 0 {
		return GatewayOrder{}, fmt.Errorf("payments: order amount must be positive, got %d", req.AmountPaise)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = p.currency
	}

	data := map[string]interface{}{
		"amount":   req.AmountPaise,
		"currency": currency,
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		data["receipt"] = receipt
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	body, err := p.orders.Create(data, nil)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payments: razorpay create order: %w", err)
	}

	order := GatewayOrder{
		ID:          stringField(body, "id"),
		AmountPaise: intField(body, "amount"),
		Currency:    stringField(body, "currency"),
		Receipt:     stringField(body, "receipt"),
		Status:      stringField(body, "status"),
	}
	if order.ID == "" {
		return GatewayOrder{}, errors.New("payments: razorpay order response missing id")
	}
	return order, nil
}

// VerifySignature validates the callback triple against the key secret.
func (p *RazorpayProvider) VerifySignature(req VerifyRequest) error {
	if p == nil {
		return errors.New("payments: razorpay provider not initialised")
	}
	orderID := strings.TrimSpace(req.GatewayOrderID)
	paymentID := strings.TrimSpace(req.GatewayPaymentID)
	signature := strings.TrimSpace(req.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, []byte(p.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func stringField(body map[string]interface{}, key string) string {
	if v, ok := body[key].(string); ok {
		return v
	}
	return ""
}

func intField(body map[string]interface{}, key string) int64 {
	switch v := body[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return 0
}
