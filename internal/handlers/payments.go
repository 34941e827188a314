package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/annapurna-foods/api/internal/platform/httpx"
	"github.com/annapurna-foods/api/internal/services"
)

const (
	maxVerifyBodySize = 8 * 1024

	verifyRateLimit  = 30
	verifyRateWindow = time.Minute
)

// verifyPaymentRequest mirrors the field names the gateway checkout posts back
// to the client.
type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

// PaymentHandlers exposes the payment verification callback endpoint.
type PaymentHandlers struct {
	orders  services.OrderService
	limiter rateLimiter
}

// PaymentOption customises the payment handlers.
type PaymentOption func(*PaymentHandlers)

// WithVerifyRateLimiter overrides the limiter guarding verification attempts.
func WithVerifyRateLimiter(limiter rateLimiter) PaymentOption {
	return func(h *PaymentHandlers) {
		h.limiter = limiter
	}
}

// NewPaymentHandlers constructs payment handlers with a per-caller rate limit
// on verification attempts.
func NewPaymentHandlers(orders services.OrderService, opts ...PaymentOption) *PaymentHandlers {
	h := &PaymentHandlers{
		orders:  orders,
		limiter: newSimpleRateLimiter(verifyRateLimit, verifyRateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the payment endpoints on the API root.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments:verify", h.verifyPayment)
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	key := requesterID(r)
	if key == "" {
		key = strings.TrimSpace(r.RemoteAddr)
	}
	if h.limiter != nil && !h.limiter.Allow(key) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many verification attempts", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxVerifyBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req verifyPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.VerifyPayment(ctx, services.VerifyPaymentCommand{
		GatewayOrderID:   strings.TrimSpace(req.RazorpayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.RazorpayPaymentID),
		Signature:        strings.TrimSpace(req.RazorpaySignature),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: order})
}
