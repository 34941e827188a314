package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/annapurna-foods/api/internal/domain"
	pfirestore "github.com/annapurna-foods/api/internal/platform/firestore"
	"github.com/annapurna-foods/api/internal/repositories"
)

// Each product type owns its own catalog collection. Stock lives on the
// product document itself, so decrements update catalog records in place.
var catalogCollections = map[domain.ProductType]string{
	domain.ProductTypeStandard:  "products_standard",
	domain.ProductTypeOil:       "products_oil",
	domain.ProductTypeMasala:    "products_masala",
	domain.ProductTypeGhee:      "products_ghee",
	domain.ProductTypeAgarbatti: "products_agarbatti",
	domain.ProductTypeGanpati:   "products_ganpati",
	domain.ProductTypeCup:       "products_cup",
}

const defaultLowStockThreshold = 5

type productStockDocument struct {
	Name        string    `firestore:"name"`
	Stock       int       `firestore:"stock"`
	StockStatus string    `firestore:"stockStatus"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// StockRepository implements repositories.StockRepository over the per-type catalog collections.
type StockRepository struct {
	provider     *pfirestore.Provider
	lowThreshold int
}

// StockRepositoryOption customises repository behaviour.
type StockRepositoryOption func(*StockRepository)

// WithLowStockThreshold overrides the quantity at which stock is flagged low.
func WithLowStockThreshold(threshold int) StockRepositoryOption {
	return func(r *StockRepository) {
		if threshold > 0 {
			r.lowThreshold = threshold
		}
	}
}

// NewStockRepository constructs a Firestore-backed stock repository.
func NewStockRepository(provider *pfirestore.Provider, opts ...StockRepositoryOption) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	repo := &StockRepository{
		provider:     provider,
		lowThreshold: defaultLowStockThreshold,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Get returns the stock view of a single catalog record.
func (r *StockRepository) Get(ctx context.Context, productType domain.ProductType, productID string) (domain.ProductStock, error) {
	if r == nil || r.provider == nil {
		return domain.ProductStock{}, errors.New("stock repository not initialised")
	}
	ref, err := r.documentRef(ctx, productType, productID)
	if err != nil {
		return domain.ProductStock{}, err
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ProductStock{}, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("product %s/%s not found", productType, productID), err)
		}
		return domain.ProductStock{}, pfirestore.WrapError("stock.get", err)
	}

	var doc productStockDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.ProductStock{}, fmt.Errorf("decode product stock %s/%s: %w", productType, productID, err)
	}
	return r.toDomain(productType, productID, doc), nil
}

// DecrementAll decrements every line inside one transaction. If any product is
// missing or short on stock, no document changes.
func (r *StockRepository) DecrementAll(ctx context.Context, lines []repositories.StockLine) ([]domain.ProductStock, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("stock repository not initialised")
	}
	if len(lines) == 0 {
		return nil, repositories.NewStockError(repositories.StockErrorInvalidInput, "at least one stock line is required", nil)
	}

	now := time.Now().UTC()
	var updated []domain.ProductStock

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		updated = updated[:0]

		type pendingWrite struct {
			ref     *firestore.DocumentRef
			line    repositories.StockLine
			doc     productStockDocument
			updates []firestore.Update
		}
		writes := make([]pendingWrite, 0, len(lines))

		for _, line := range lines {
			if line.Quantity <= 0 {
				return repositories.NewStockError(repositories.StockErrorInvalidInput, fmt.Sprintf("quantity for %s/%s must be > 0", line.ProductType, line.ProductID), nil)
			}
		}

		// Transactions read every document from one snapshot, so repeated
		// lines for the same product must be collapsed into a single write.
		// All reads happen before any write.
		for _, line := range mergeStockLines(lines) {
			ref, err := r.documentRef(ctx, line.ProductType, line.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("product %s/%s not found", line.ProductType, line.ProductID), err)
				}
				return err
			}
			var doc productStockDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product stock %s/%s: %w", line.ProductType, line.ProductID, err)
			}
			if doc.Stock < line.Quantity {
				return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s/%s: have %d, need %d", line.ProductType, line.ProductID, doc.Stock, line.Quantity), nil)
			}

			doc.Stock -= line.Quantity
			doc.StockStatus = string(domain.StockStatusFor(doc.Stock, r.lowThreshold))
			doc.UpdatedAt = now

			writes = append(writes, pendingWrite{
				ref:  ref,
				line: line,
				doc:  doc,
				updates: []firestore.Update{
					{Path: "stock", Value: doc.Stock},
					{Path: "stockStatus", Value: doc.StockStatus},
					{Path: "updatedAt", Value: now},
				},
			})
		}

		for _, write := range writes {
			if err := tx.Update(write.ref, write.updates); err != nil {
				return err
			}
			updated = append(updated, r.toDomain(write.line.ProductType, write.line.ProductID, write.doc))
		}
		return nil
	})
	if err != nil {
		return nil, wrapStockError("stock.decrement_all", err)
	}
	return updated, nil
}

// Restore adds quantities back after a downstream failure. Missing products
// are skipped rather than failing the whole compensation.
func (r *StockRepository) Restore(ctx context.Context, lines []repositories.StockLine) error {
	if r == nil || r.provider == nil {
		return errors.New("stock repository not initialised")
	}
	if len(lines) == 0 {
		return nil
	}

	now := time.Now().UTC()

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pendingWrite struct {
			ref     *firestore.DocumentRef
			updates []firestore.Update
		}
		writes := make([]pendingWrite, 0, len(lines))

		for _, line := range mergeStockLines(lines) {
			if line.Quantity <= 0 {
				continue
			}
			ref, err := r.documentRef(ctx, line.ProductType, line.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					continue
				}
				return err
			}
			var doc productStockDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product stock %s/%s: %w", line.ProductType, line.ProductID, err)
			}

			stock := doc.Stock + line.Quantity
			writes = append(writes, pendingWrite{
				ref: ref,
				updates: []firestore.Update{
					{Path: "stock", Value: stock},
					{Path: "stockStatus", Value: string(domain.StockStatusFor(stock, r.lowThreshold))},
					{Path: "updatedAt", Value: now},
				},
			})
		}

		for _, write := range writes {
			if err := tx.Update(write.ref, write.updates); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapStockError("stock.restore", err)
	}
	return nil
}

// mergeStockLines sums quantities for repeated (productType, productID) pairs,
// keeping the first-seen order of the lines.
func mergeStockLines(lines []repositories.StockLine) []repositories.StockLine {
	merged := make([]repositories.StockLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		key := string(line.ProductType) + "/" + strings.TrimSpace(line.ProductID)
		if i, ok := index[key]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

func (r *StockRepository) documentRef(ctx context.Context, productType domain.ProductType, productID string) (*firestore.DocumentRef, error) {
	collection, ok := catalogCollections[productType]
	if !ok {
		return nil, repositories.NewStockError(repositories.StockErrorUnknownCatalog, fmt.Sprintf("no catalog registered for product type %q", productType), nil)
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return nil, repositories.NewStockError(repositories.StockErrorInvalidInput, "product id is required", nil)
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(collection).Doc(id), nil
}

func (r *StockRepository) toDomain(productType domain.ProductType, productID string, doc productStockDocument) domain.ProductStock {
	stockStatus := domain.StockStatus(doc.StockStatus)
	if doc.StockStatus == "" {
		stockStatus = domain.StockStatusFor(doc.Stock, r.lowThreshold)
	}
	return domain.ProductStock{
		ProductType: productType,
		ProductID:   productID,
		Name:        doc.Name,
		Stock:       doc.Stock,
		StockStatus: stockStatus,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
