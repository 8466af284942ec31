package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/storage/memory"
)

func TestClientRepository_TotalDebt(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewClientRepository()

	if err := repo.Create(ctx, domain.Client{ID: "c-2", Name: "Aziz", TelegramID: 42}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, domain.Client{ID: "c-1", Name: "Dilnoza"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdateTotalDebt(ctx, "c-2", 15000); err != nil {
		t.Fatalf("UpdateTotalDebt: %v", err)
	}

	// Повторное сохранение профиля не сбрасывает долг.
	if err := repo.Create(ctx, domain.Client{ID: "c-2", Name: "Aziz aka"}); err != nil {
		t.Fatalf("re-create: %v", err)
	}
	client, err := repo.Get(ctx, "c-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if client.TotalDebt != 15000 || client.Name != "Aziz aka" {
		t.Fatalf("unexpected client: %+v", client)
	}

	ids, _ := repo.ListIDs(ctx)
	if len(ids) != 2 || ids[0] != "c-1" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	debtors, _ := repo.ListDebtors(ctx)
	if len(debtors) != 1 || debtors[0].ID != "c-2" {
		t.Fatalf("unexpected debtors: %+v", debtors)
	}

	if err := repo.UpdateTotalDebt(ctx, "missing", 1); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestProductRepository_AdjustStock(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	if err := repo.Create(ctx, domain.Product{ID: "p-1", Name: "Manti", Stock: 5}); err != nil {
		t.Fatalf("create: %v", err)
	}

	stock, err := repo.AdjustStock(ctx, "p-1", -3)
	if err != nil || stock != 2 {
		t.Fatalf("AdjustStock(-3) = %d, %v", stock, err)
	}
	if _, err := repo.AdjustStock(ctx, "p-1", -3); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	stock, err = repo.AdjustStock(ctx, "p-1", 3)
	if err != nil || stock != 5 {
		t.Fatalf("AdjustStock(+3) = %d, %v", stock, err)
	}
	if _, err := repo.AdjustStock(ctx, "missing", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
