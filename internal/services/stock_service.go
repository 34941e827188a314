package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/annapurna-foods/api/internal/repositories"
)

var (
	// ErrStockInvalidInput signals the caller supplied malformed stock lines.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockInsufficient indicates at least one line exceeds available stock.
	ErrStockInsufficient = errors.New("stock: insufficient")
	// ErrStockNotFound indicates the product has no stock record.
	ErrStockNotFound = errors.New("stock: not found")
	// ErrStockUnknownCatalog indicates the product type has no catalog collection.
	ErrStockUnknownCatalog = errors.New("stock: unknown catalog")
)

// StockServiceDeps bundles collaborators required to construct a stock service.
type StockServiceDeps struct {
	Repository repositories.StockRepository
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	repo   repositories.StockRepository
	logger func(context.Context, string, map[string]any)
}

var _ StockService = (*stockService)(nil)

// NewStockService constructs a stock service on top of the catalog stock repository.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Repository == nil {
		return nil, errors.New("stock service: repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stockService{repo: deps.Repository, logger: logger}, nil
}

func (s *stockService) Get(ctx context.Context, productType ProductType, productID string) (ProductStock, error) {
	if strings.TrimSpace(productID) == "" {
		return ProductStock{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	stock, err := s.repo.Get(ctx, productType, productID)
	if err != nil {
		return ProductStock{}, translateStockError(err)
	}
	return stock, nil
}

func (s *stockService) Decrement(ctx context.Context, lines []StockLine) ([]ProductStock, error) {
	if err := validateStockLines(lines); err != nil {
		return nil, err
	}

	updated, err := s.repo.DecrementAll(ctx, lines)
	if err != nil {
		return nil, translateStockError(err)
	}

	for _, stock := range updated {
		if stock.StockStatus == "" {
			continue
		}
		s.logger(ctx, "stock.decremented", map[string]any{
			"productType": string(stock.ProductType),
			"productId":   stock.ProductID,
			"stock":       stock.Stock,
			"stockStatus": string(stock.StockStatus),
		})
	}
	return updated, nil
}

func (s *stockService) Restore(ctx context.Context, lines []StockLine) error {
	if err := validateStockLines(lines); err != nil {
		return err
	}
	if err := s.repo.Restore(ctx, lines); err != nil {
		return translateStockError(err)
	}
	s.logger(ctx, "stock.restored", map[string]any{"lines": len(lines)})
	return nil
}

func validateStockLines(lines []StockLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrStockInvalidInput)
	}
	for _, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive for %s", ErrStockInvalidInput, line.ProductID)
		}
	}
	return nil
}

func translateStockError(err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrStockInsufficient, stockErr.Message)
		case repositories.StockErrorNotFound:
			return fmt.Errorf("%w: %s", ErrStockNotFound, stockErr.Message)
		case repositories.StockErrorUnknownCatalog:
			return fmt.Errorf("%w: %s", ErrStockUnknownCatalog, stockErr.Message)
		case repositories.StockErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrStockInvalidInput, stockErr.Message)
		}
	}
	return err
}
