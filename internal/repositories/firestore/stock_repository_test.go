package firestore

import (
	"testing"

	domain "github.com/annapurna-foods/api/internal/domain"
	"github.com/annapurna-foods/api/internal/repositories"
)

func TestMergeStockLinesCombinesDuplicates(t *testing.T) {
	lines := []repositories.StockLine{
		{ProductType: domain.ProductTypeGhee, ProductID: "ghee-500ml", Quantity: 2},
		{ProductType: domain.ProductTypeMasala, ProductID: "garam-masala-100g", Quantity: 1},
		{ProductType: domain.ProductTypeGhee, ProductID: "ghee-500ml", Quantity: 3},
		{ProductType: domain.ProductTypeGhee, ProductID: " ghee-500ml ", Quantity: 1},
	}

	merged := mergeStockLines(lines)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged lines, got %d", len(merged))
	}
	if merged[0].ProductID != "ghee-500ml" || merged[0].Quantity != 6 {
		t.Errorf("unexpected first line %+v", merged[0])
	}
	if merged[1].ProductID != "garam-masala-100g" || merged[1].Quantity != 1 {
		t.Errorf("unexpected second line %+v", merged[1])
	}
}

func TestMergeStockLinesKeepsDistinctProducts(t *testing.T) {
	lines := []repositories.StockLine{
		{ProductType: domain.ProductTypeGhee, ProductID: "ghee-500ml", Quantity: 2},
		{ProductType: domain.ProductTypeOil, ProductID: "ghee-500ml", Quantity: 2},
	}

	merged := mergeStockLines(lines)
	if len(merged) != 2 {
		t.Fatalf("same id under different catalogs must not merge, got %d lines", len(merged))
	}
}
