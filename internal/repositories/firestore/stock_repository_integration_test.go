//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
	"time"

	domain "github.com/annapurna-foods/api/internal/domain"
	pconfig "github.com/annapurna-foods/api/internal/platform/config"
	pfirestore "github.com/annapurna-foods/api/internal/platform/firestore"
	"github.com/annapurna-foods/api/internal/repositories"
)

func TestStockRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "annapurna-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("firestore client: %v", err)
	}

	seed := func(collection, id string, stock int) {
		t.Helper()
		_, err := client.Collection(collection).Doc(id).Set(ctx, map[string]any{
			"name":        id,
			"stock":       stock,
			"stockStatus": "IN_STOCK",
			"updatedAt":   time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seed %s/%s: %v", collection, id, err)
		}
	}

	seed("products_ghee", "ghee-500ml", 10)
	seed("products_masala", "garam-masala-100g", 6)

	repo, err := NewStockRepository(provider)
	if err != nil {
		t.Fatalf("new stock repository: %v", err)
	}

	lines := []repositories.StockLine{
		{ProductType: domain.ProductTypeGhee, ProductID: "ghee-500ml", Quantity: 3},
		{ProductType: domain.ProductTypeMasala, ProductID: "garam-masala-100g", Quantity: 2},
	}

	updated, err := repo.DecrementAll(ctx, lines)
	if err != nil {
		t.Fatalf("decrement all: %v", err)
	}
	if len(updated) != 2 {
		t.Fatalf("expected 2 updated records, got %d", len(updated))
	}
	for _, stock := range updated {
		switch stock.ProductID {
		case "ghee-500ml":
			if stock.Stock != 7 || stock.StockStatus != domain.StockStatusInStock {
				t.Fatalf("unexpected ghee stock %+v", stock)
			}
		case "garam-masala-100g":
			if stock.Stock != 4 || stock.StockStatus != domain.StockStatusLowStock {
				t.Fatalf("unexpected masala stock %+v", stock)
			}
		}
	}

	// A batch containing an insufficient line must not touch the other lines.
	_, err = repo.DecrementAll(ctx, []repositories.StockLine{
		{ProductType: domain.ProductTypeGhee, ProductID: "ghee-500ml", Quantity: 1},
		{ProductType: domain.ProductTypeMasala, ProductID: "garam-masala-100g", Quantity: 99},
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorInsufficient {
		t.Fatalf("expected insufficient stock error, got %T %v", err, err)
	}

	ghee, err := repo.Get(ctx, domain.ProductTypeGhee, "ghee-500ml")
	if err != nil {
		t.Fatalf("get ghee: %v", err)
	}
	if ghee.Stock != 7 {
		t.Fatalf("expected ghee stock unchanged at 7, got %d", ghee.Stock)
	}

	// Restore compensates a downstream failure.
	if err := repo.Restore(ctx, lines); err != nil {
		t.Fatalf("restore: %v", err)
	}
	ghee, err = repo.Get(ctx, domain.ProductTypeGhee, "ghee-500ml")
	if err != nil {
		t.Fatalf("get ghee after restore: %v", err)
	}
	if ghee.Stock != 10 || ghee.StockStatus != domain.StockStatusInStock {
		t.Fatalf("unexpected ghee stock after restore %+v", ghee)
	}

	// Repeated lines for the same product decrement the summed quantity.
	_, err = repo.DecrementAll(ctx, []repositories.StockLine{
		{ProductType: domain.ProductTypeGhee, ProductID: "ghee-500ml", Quantity: 2},
		{ProductType: domain.ProductTypeGhee, ProductID: "ghee-500ml", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("decrement duplicate lines: %v", err)
	}
	ghee, err = repo.Get(ctx, domain.ProductTypeGhee, "ghee-500ml")
	if err != nil {
		t.Fatalf("get ghee after duplicate decrement: %v", err)
	}
	if ghee.Stock != 5 {
		t.Fatalf("expected ghee stock 5 after duplicate decrement, got %d", ghee.Stock)
	}
	if err := repo.Restore(ctx, []repositories.StockLine{
		{ProductType: domain.ProductTypeGhee, ProductID: "ghee-500ml", Quantity: 5},
	}); err != nil {
		t.Fatalf("restore after duplicate decrement: %v", err)
	}

	// Unknown catalog types are rejected before any write.
	_, err = repo.DecrementAll(ctx, []repositories.StockLine{
		{ProductType: domain.ProductType("biscuit"), ProductID: "p1", Quantity: 1},
	})
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorUnknownCatalog {
		t.Fatalf("expected unknown catalog error, got %T %v", err, err)
	}
}
