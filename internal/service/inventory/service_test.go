package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/storage/memory"
)

func seedProducts(t *testing.T, stocks map[string]int64) domain.ProductRepository {
	t.Helper()

	repo := memory.NewProductRepository()
	for id, stock := range stocks {
		if err := repo.Create(context.Background(), domain.Product{ID: id, Name: id, Stock: stock}); err != nil {
			t.Fatalf("seed product %s: %v", id, err)
		}
	}
	return repo
}

func stockOf(t *testing.T, repo domain.ProductRepository, id string) int64 {
	t.Helper()
	product, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return product.Stock
}

func TestService_DeductAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := seedProducts(t, map[string]int64{"p-1": 10, "p-2": 1})
	svc := NewService(repo, nil)

	items := []domain.OrderItem{
		domain.NewItem("p-1", "Pelmeni", 4, 100),
		domain.NewItem("p-2", "Manti", 3, 100),
	}
	err := svc.Deduct(ctx, items)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := stockOf(t, repo, "p-1"); got != 10 {
		t.Fatalf("p-1 must be compensated, stock=%d", got)
	}

	items[1].Quantity = 1
	if err := svc.Deduct(ctx, items); err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if stockOf(t, repo, "p-1") != 6 || stockOf(t, repo, "p-2") != 0 {
		t.Fatal("unexpected stock after deduct")
	}
}

func TestService_ApplyBestEffort(t *testing.T) {
	ctx := context.Background()
	repo := seedProducts(t, map[string]int64{"p-1": 0, "p-3": 5})
	svc := NewService(repo, nil)

	items := []domain.OrderItem{
		domain.NewItem("p-1", "Pelmeni", 2, 100),
		domain.NewItem("p-2", "Deleted", 1, 100),
		domain.NewItem("p-3", "Manti", 1, 100),
	}

	report := svc.Apply(ctx, domain.StockRestore, items)
	if len(report.Adjustments) != 3 {
		t.Fatalf("expected 3 adjustments, got %d", len(report.Adjustments))
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].ProductID != "p-2" || !errors.Is(failed[0].Err, domain.ErrProductNotFound) {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	if stockOf(t, repo, "p-1") != 2 || stockOf(t, repo, "p-3") != 6 {
		t.Fatal("restorable items must be restored despite one failure")
	}

	report = svc.Apply(ctx, domain.StockDeduct, items)
	if len(report.Failed()) != 1 {
		t.Fatalf("expected only the missing product to fail, got %+v", report.Failed())
	}
	if stockOf(t, repo, "p-1") != 0 || stockOf(t, repo, "p-3") != 5 {
		t.Fatal("unexpected stock after re-deduction")
	}

	if report := svc.Apply(ctx, domain.StockUnchanged, items); len(report.Adjustments) != 0 {
		t.Fatalf("unchanged direction must not touch stock: %+v", report)
	}
}
