package payments

import (
	"context"
	"errors"
)

// ErrSignatureMismatch is returned when the callback signature does not match
// the expected HMAC digest.
var ErrSignatureMismatch = errors.New("payments: signature verification failed")

// GatewayOrderRequest captures the payload required to register an order with the gateway.
type GatewayOrderRequest struct {
	// AmountPaise is the order total in the currency's smallest unit.
	AmountPaise int64
	Currency    string
	// Receipt is the merchant-side reference echoed back by the gateway.
	Receipt string
	Notes   map[string]string
}

// GatewayOrder represents the gateway order returned to the client for checkout.
type GatewayOrder struct {
	ID          string
	AmountPaise int64
	Currency    string
	Receipt     string
	Status      string
}

// VerifyRequest carries the callback triple posted by the client after checkout.
type VerifyRequest struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// Provider defines the contract for payment gateway adapters.
type Provider interface {
	// CreateOrder registers an order with the gateway ahead of checkout.
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error)
	// VerifySignature checks the callback triple. It returns
	// ErrSignatureMismatch on a forged or corrupted signature and must not
	// hit the network.
	VerifySignature(req VerifyRequest) error
}
