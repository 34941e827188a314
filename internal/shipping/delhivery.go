package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/annapurna-foods/api/internal/domain"
	"github.com/annapurna-foods/api/internal/platform/config"
)

const (
	createShipmentPath = "/api/cmu/create.json"
	editShipmentPath   = "/api/p/edit"

	paymentModePrepaid = "Prepaid"
	paymentModeCOD     = "COD"
)

// ErrShipmentRejected is returned when the carrier accepts the request but
// declines to manifest the shipment.
var ErrShipmentRejected = errors.New("shipping: carrier rejected shipment")

// Shipment is the carrier's acknowledgement of a manifested package.
type Shipment struct {
	Waybill string
	Status  string
	Remarks []string
}

// Client is the carrier-facing contract used by the order service.
type Client interface {
	CreateShipment(ctx context.Context, order domain.Order) (Shipment, error)
	CancelShipment(ctx context.Context, waybill string) error
}

// DelhiveryClient talks to the Delhivery manifest API.
type DelhiveryClient struct {
	httpClient *http.Client
	cfg        config.CarrierConfig
	logger     *zap.Logger
}

// DelhiveryOption customises the client.
type DelhiveryOption func(*DelhiveryClient)

// WithHTTPClient overrides the underlying HTTP client, primarily for testing.
func WithHTTPClient(client *http.Client) DelhiveryOption {
	return func(c *DelhiveryClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger injects the logger used for request outcomes.
func WithLogger(logger *zap.Logger) DelhiveryOption {
	return func(c *DelhiveryClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewDelhiveryClient constructs a carrier client from configuration.
func NewDelhiveryClient(cfg config.CarrierConfig, opts ...DelhiveryOption) (*DelhiveryClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("shipping: carrier base url is required")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("shipping: carrier api token is required")
	}
	if cfg.DefaultWeightGrams <= 0 {
		cfg.DefaultWeightGrams = 250
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := &DelhiveryClient{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type manifestShipment struct {
	Name          string `json:"name"`
	Address       string `json:"add"`
	Pin           string `json:"pin"`
	City          string `json:"city"`
	State         string `json:"state"`
	Country       string `json:"country"`
	Phone         string `json:"phone"`
	Order         string `json:"order"`
	PaymentMode   string `json:"payment_mode"`
	CODAmount     int64  `json:"cod_amount"`
	TotalAmount   int64  `json:"total_amount"`
	SellerName    string `json:"seller_name"`
	SellerAdd     string `json:"seller_add"`
	ReturnAdd     string `json:"return_add"`
	ReturnPin     string `json:"return_pin"`
	ReturnCity    string `json:"return_city"`
	ReturnState   string `json:"return_state"`
	ReturnCountry string `json:"return_country"`
	ProductsDesc  string `json:"products_desc"`
	Quantity      int    `json:"quantity"`
	WeightGrams   int    `json:"weight"`
}

type manifestRequest struct {
	Shipments      []manifestShipment `json:"shipments"`
	PickupLocation map[string]string  `json:"pickup_location"`
}

type manifestResponse struct {
	Success  bool `json:"success"`
	Packages []struct {
		Waybill string   `json:"waybill"`
		Status  string   `json:"status"`
		Remarks []string `json:"remarks"`
	} `json:"packages"`
	RMK string `json:"rmk"`
}

// CreateShipment manifests the order with the carrier and returns the waybill.
func (c *DelhiveryClient) CreateShipment(ctx context.Context, order domain.Order) (Shipment, error) {
	if c == nil || c.httpClient == nil {
		return Shipment{}, errors.New("shipping: client not initialised")
	}

	manifest := c.buildManifest(order)
	payload, err := json.Marshal(manifest)
	if err != nil {
		return Shipment{}, fmt.Errorf("shipping: marshal manifest: %w", err)
	}

	form := "format=json&data=" + url.QueryEscape(string(payload))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+createShipmentPath, strings.NewReader(form))
	if err != nil {
		return Shipment{}, fmt.Errorf("shipping: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Shipment{}, fmt.Errorf("shipping: create shipment: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Shipment{}, fmt.Errorf("shipping: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Shipment{}, fmt.Errorf("shipping: create shipment returned %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var decoded manifestResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Shipment{}, fmt.Errorf("shipping: decode response: %w", err)
	}
	if len(decoded.Packages) == 0 {
		return Shipment{}, fmt.Errorf("%w: %s", ErrShipmentRejected, truncate(decoded.RMK, 256))
	}

	pkg := decoded.Packages[0]
	if strings.TrimSpace(pkg.Waybill) == "" {
		return Shipment{}, fmt.Errorf("%w: %s", ErrShipmentRejected, strings.Join(pkg.Remarks, "; "))
	}

	c.logger.Info("shipment manifested",
		zap.String("order_number", order.OrderNumber),
		zap.String("waybill", pkg.Waybill),
	)

	return Shipment{
		Waybill: pkg.Waybill,
		Status:  pkg.Status,
		Remarks: pkg.Remarks,
	}, nil
}

// CancelShipment voids a previously manifested waybill.
func (c *DelhiveryClient) CancelShipment(ctx context.Context, waybill string) error {
	if c == nil || c.httpClient == nil {
		return errors.New("shipping: client not initialised")
	}
	waybill = strings.TrimSpace(waybill)
	if waybill == "" {
		return errors.New("shipping: waybill is required")
	}

	payload, err := json.Marshal(map[string]string{
		"waybill":      waybill,
		"cancellation": "true",
	})
	if err != nil {
		return fmt.Errorf("shipping: marshal cancellation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+editShipmentPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("shipping: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shipping: cancel shipment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("shipping: cancel shipment returned %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	c.logger.Info("shipment cancelled", zap.String("waybill", waybill))
	return nil
}

func (c *DelhiveryClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Token "+c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")
}

func (c *DelhiveryClient) buildManifest(order domain.Order) manifestRequest {
	addr := order.ShippingAddress

	line := addr.Line1
	if addr.Line2 != "" {
		line += ", " + addr.Line2
	}

	paymentMode := paymentModePrepaid
	var codAmount int64
	if order.PaymentMethod == domain.PaymentMethodCOD {
		paymentMode = paymentModeCOD
		codAmount = order.TotalAmount
	}

	var (
		descriptions []string
		quantity     int
		weight       int
	)
	for _, item := range order.Items {
		descriptions = append(descriptions, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
		quantity += item.Quantity
		unitWeight := item.WeightGrams
		if unitWeight <= 0 {
			unitWeight = c.cfg.DefaultWeightGrams
		}
		weight += unitWeight * item.Quantity
	}
	if weight <= 0 {
		weight = c.cfg.DefaultWeightGrams
	}

	return manifestRequest{
		Shipments: []manifestShipment{{
			Name:          addr.Name,
			Address:       line,
			Pin:           addr.PostalCode,
			City:          addr.City,
			State:         addr.State,
			Country:       "India",
			Phone:         addr.Phone,
			Order:         order.OrderNumber,
			PaymentMode:   paymentMode,
			CODAmount:     codAmount,
			TotalAmount:   order.TotalAmount,
			SellerName:    c.cfg.SellerName,
			SellerAdd:     c.cfg.SellerAddress,
			ReturnAdd:     c.cfg.ReturnAddress,
			ReturnPin:     c.cfg.ReturnPin,
			ReturnCity:    c.cfg.ReturnCity,
			ReturnState:   c.cfg.ReturnState,
			ReturnCountry: c.cfg.ReturnCountry,
			ProductsDesc:  truncate(strings.Join(descriptions, ", "), 250),
			Quantity:      quantity,
			WeightGrams:   weight,
		}},
		PickupLocation: map[string]string{"name": c.cfg.PickupLocation},
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
