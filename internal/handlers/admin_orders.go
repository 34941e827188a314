package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/annapurna-foods/api/internal/domain"
	"github.com/annapurna-foods/api/internal/platform/httpx"
	"github.com/annapurna-foods/api/internal/services"
)

const (
	defaultAdminPageSize     = 50
	maxAdminPageSize         = 200
	maxStatusUpdateBodySize  = 4 * 1024
	orderRangeTimezone       = "Asia/Kolkata"
	defaultAdminOrderRange   = "7d"
	adminOrderRangeParamName = "range"
)

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type adminOrderListResponse struct {
	Items        []domain.Order   `json:"items"`
	Total        int64            `json:"total"`
	StatusCounts map[string]int64 `json:"status_counts"`
	Range        adminRangeWindow `json:"range"`
}

type adminRangeWindow struct {
	Name  string     `json:"name"`
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`
}

// AdminOrderHandlers exposes the back-office order surface.
type AdminOrderHandlers struct {
	orders services.OrderService
	clock  func() time.Time
}

// AdminOption customises the admin handlers.
type AdminOption func(*AdminOrderHandlers)

// WithAdminClock overrides the clock used for range calculations, primarily for testing.
func WithAdminClock(clock func() time.Time) AdminOption {
	return func(h *AdminOrderHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewAdminOrderHandlers constructs admin order handlers.
func NewAdminOrderHandlers(orders services.OrderService, opts ...AdminOption) *AdminOrderHandlers {
	h := &AdminOrderHandlers{orders: orders, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /admin endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Post("/orders/{orderID}:status", h.updateStatus)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	rangeName := strings.ToLower(strings.TrimSpace(query.Get(adminOrderRangeParamName)))
	if rangeName == "" {
		rangeName = defaultAdminOrderRange
	}
	since, ok := rangeStart(rangeName, h.clock())
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "range must be one of today, 24h, 7d, 30d, 60d, all", http.StatusBadRequest))
		return
	}

	var statuses []domain.OrderStatus
	for _, raw := range query["status"] {
		for _, piece := range strings.Split(raw, ",") {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			status, ok := domain.ParseOrderStatus(piece)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown status "+strings.TrimSpace(piece), http.StatusBadRequest))
				return
			}
			statuses = append(statuses, status)
		}
	}

	limit := defaultAdminPageSize
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case parsed <= 0:
			limit = defaultAdminPageSize
		case parsed > maxAdminPageSize:
			limit = maxAdminPageSize
		default:
			limit = parsed
		}
	}

	page, err := h.orders.ListAdminOrders(ctx, services.AdminOrderQuery{
		Status: statuses,
		Since:  since,
		Limit:  limit,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := page.Orders
	if items == nil {
		items = []domain.Order{}
	}
	counts := make(map[string]int64, len(page.StatusCounts))
	for status, count := range page.StatusCounts {
		counts[string(status)] = count
	}

	writeJSONResponse(w, http.StatusOK, adminOrderListResponse{
		Items:        items,
		Total:        page.Total,
		StatusCounts: counts,
		Range:        adminRangeWindow{Name: rangeName, Since: since},
	})
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxStatusUpdateBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	status, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:      orderID,
		TargetStatus: status,
		ActorID:      requesterID(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: order})
}

// rangeStart resolves a named window to its inclusive start. "today" means the
// start of the current day in the store's timezone, not a rolling 24 hours.
func rangeStart(name string, now time.Time) (*time.Time, bool) {
	switch name {
	case "all":
		return nil, true
	case "today":
		loc, err := time.LoadLocation(orderRangeTimezone)
		if err != nil {
			loc = time.UTC
		}
		local := now.In(loc)
		start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		return &start, true
	case "24h":
		start := now.Add(-24 * time.Hour)
		return &start, true
	case "7d":
		start := now.Add(-7 * 24 * time.Hour)
		return &start, true
	case "30d":
		start := now.Add(-30 * 24 * time.Hour)
		return &start, true
	case "60d":
		start := now.Add(-60 * 24 * time.Hour)
		return &start, true
	default:
		return nil, false
	}
}
