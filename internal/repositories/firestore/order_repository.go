package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/annapurna-foods/api/internal/domain"
	pfirestore "github.com/annapurna-foods/api/internal/platform/firestore"
	"github.com/annapurna-foods/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[domain.Order]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[domain.Order](provider, ordersCollection, nil, decodeOrder)
	return &OrderRepository{
		provider: provider,
		orders:   base,
	}, nil
}

func decodeOrder(_ context.Context, snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var order domain.Order
	if err := snap.DataTo(&order); err != nil {
		return domain.Order{}, err
	}
	order.ID = snap.Ref.ID
	return order, nil
}

// Insert creates a new order document, failing when the ID is already taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order id is required", nil)
	}

	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, order); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the stored order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order id is required", nil)
	}
	if _, err := r.orders.Set(ctx, order.ID, order); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID fetches an order by document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapOrderLookupError(orderID, err)
	}
	return doc.Data, nil
}

// FindByGatewayOrderID locates the order created for a gateway order reference.
func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(gatewayOrderID)
	if id == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "gateway order id is required", nil)
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("gatewayOrderId", "==", id).Limit(1)
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_gateway_order", err)
	}
	if len(docs) == 0 {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("no order for gateway order %s", id), nil)
	}
	return docs[0].Data, nil
}

// UpdateIf runs mutate transactionally, guarded by the expected status.
func (r *OrderRepository) UpdateIf(ctx context.Context, orderID string, expected domain.OrderStatus, mutate func(domain.Order) (domain.Order, error)) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order id is required", nil)
	}
	if mutate == nil {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "mutate function is required", nil)
	}

	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		order, err := decodeOrder(ctx, snap)
		if err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if order.Status != expected {
			return repositories.NewOrderError(repositories.OrderErrorStatusMismatch, fmt.Sprintf("order %s is %s, expected %s", orderID, order.Status, expected), nil)
		}

		mutated, err := mutate(order)
		if err != nil {
			return err
		}
		mutated.ID = order.ID

		if err := tx.Set(ref, mutated); err != nil {
			return err
		}
		result = mutated
		return nil
	})
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) {
			return domain.Order{}, orderErr
		}
		return domain.Order{}, wrapOrderError("orders.update_if", err)
	}
	return result, nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return applyOrderFilter(q, filter).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, pfirestore.WrapError("orders.list", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data)
	}
	return orders, nil
}

// Count runs a server-side aggregation over the filtered order set.
func (r *OrderRepository) Count(ctx context.Context, filter repositories.OrderListFilter) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("order repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	query := applyOrderFilter(client.Collection(ordersCollection).Query, filter)
	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("orders.count", err)
	}

	raw, ok := results["total"]
	if !ok {
		return 0, errors.New("orders.count: aggregation result missing total")
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("orders.count: unexpected aggregation type %T", raw)
	}
	return value.GetIntegerValue(), nil
}

func applyOrderFilter(q firestore.Query, filter repositories.OrderListFilter) firestore.Query {
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		q = q.Where("userId", "==", userID)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status", "in", statuses)
	}
	if filter.Since != nil {
		q = q.Where("createdAt", ">=", filter.Since.UTC())
	}
	if filter.Until != nil {
		q = q.Where("createdAt", "<", filter.Until.UTC())
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	return q
}

func mapOrderLookupError(orderID string, err error) error {
	var repoErr *pfirestore.Error
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
	}
	return err
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	return pfirestore.WrapError(op, err)
}
