package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

func TestOrderRepository_PostgresCreateGetAndList(t *testing.T) {
	store := migratedStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()
	seedClient(t, store, "c1")

	base := time.Now().UTC().Add(-time.Hour).Round(time.Microsecond)
	older := sampleOrder("o-old", "c1", 500, base)
	newer := sampleOrder("o-new", "c1", 300, base.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	got, err := repo.Get(ctx, older.ID)
	require.NoError(t, err)
	require.Equal(t, older.Number, got.Number)
	require.Equal(t, int64(500), got.Debt)
	require.Len(t, got.Items, 1)
	require.Equal(t, int64(5), got.Items[0].Quantity)

	list, err := repo.ListByClient(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, newer.ID, list[0].ID)

	outstanding, err := repo.ListOutstanding(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, outstanding, 2)
	require.Equal(t, older.ID, outstanding[0].ID)

	total, err := repo.SumDebt(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, int64(800), total)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_PostgresCreateConflicts(t *testing.T) {
	store := migratedStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()
	seedClient(t, store, "c1")

	order := sampleOrder("o-1", "c1", 500, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, order))

	dup := sampleOrder("o-2", "c1", 500, time.Now().UTC())
	dup.Number = order.Number
	require.ErrorIs(t, repo.Create(ctx, dup), domain.ErrOrderNumberTaken)

	orphan := sampleOrder("o-3", "ghost", 500, time.Now().UTC())
	require.ErrorIs(t, repo.Create(ctx, orphan), domain.ErrClientNotFound)
}

func TestOrderRepository_PostgresSaveVersionConflict(t *testing.T) {
	store := migratedStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()
	seedClient(t, store, "c1")

	order := sampleOrder("o-1", "c1", 1000, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, order))

	current, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, current.IncreaseDebt(100))
	require.NoError(t, repo.Save(ctx, current))

	stale := current
	require.ErrorIs(t, repo.Save(ctx, stale), domain.ErrOrderVersionConflict)

	missing := sampleOrder("o-missing", "c1", 100, time.Now().UTC())
	require.ErrorIs(t, repo.Save(ctx, missing), domain.ErrOrderNotFound)
}

func TestOrderRepository_PostgresSaveStockReleased(t *testing.T) {
	store := migratedStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()
	seedClient(t, store, "c1")

	order := sampleOrder("o-1", "c1", 500, time.Now().UTC().Round(time.Microsecond))
	order.Items = append(order.Items, domain.NewItem("cone", "Vafli", 2, 0))
	require.NoError(t, repo.Create(ctx, order))

	order.Items[1].StockReleased = true
	require.NoError(t, repo.Save(ctx, order))

	got, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.False(t, got.Items[0].StockReleased)
	require.True(t, got.Items[1].StockReleased)

	got.Items[1].StockReleased = false
	require.NoError(t, repo.Save(ctx, got))

	got, err = repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.HeldItems(), 2)
}

func TestPaymentRepository_PostgresRecordAndRevoke(t *testing.T) {
	store := migratedStore(t)
	orders := NewOrderRepository(store)
	payments := NewPaymentRepository(store)
	ctx := context.Background()
	seedClient(t, store, "c1")

	a := sampleOrder("o-a", "c1", 500, time.Now().UTC().Add(-time.Minute))
	b := sampleOrder("o-b", "c1", 300, time.Now().UTC())
	require.NoError(t, orders.Create(ctx, a))
	require.NoError(t, orders.Create(ctx, b))

	require.NoError(t, a.ApplyPayment(500))
	require.NoError(t, b.ApplyPayment(100))
	now := time.Now().UTC().Round(time.Microsecond)
	postings := []domain.PaymentPosting{
		{Order: a, Payment: domain.Payment{ID: "p-a", OrderID: a.ID, ClientID: "c1", Amount: 500, Method: domain.PaymentMethodCash, Notes: domain.AutoDistributionNote, CreatedAt: now}},
		{Order: b, Payment: domain.Payment{ID: "p-b", OrderID: b.ID, ClientID: "c1", Amount: 100, Method: domain.PaymentMethodCash, Notes: domain.AutoDistributionNote, CreatedAt: now}},
	}
	require.NoError(t, payments.Record(ctx, postings))

	storedB, err := orders.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), storedB.PaidSum)
	require.Equal(t, int64(200), storedB.Debt)
	require.Equal(t, int64(2), storedB.Version)

	// Повторная запись с устаревшей версией откатывается целиком.
	err = payments.Record(ctx, []domain.PaymentPosting{
		{Order: b, Payment: domain.Payment{ID: "p-c", OrderID: b.ID, ClientID: "c1", Amount: 50, Method: domain.PaymentMethodCash, CreatedAt: now}},
	})
	require.ErrorIs(t, err, domain.ErrOrderVersionConflict)
	_, err = payments.Get(ctx, "p-c")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)

	storedB.RevertPayment(100)
	require.NoError(t, payments.Revoke(ctx, storedB, "p-b"))

	reverted, err := orders.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), reverted.PaidSum)
	require.Equal(t, int64(300), reverted.Debt)

	list, err := payments.ListByOrder(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, list)

	err = payments.Revoke(ctx, reverted, "p-b")
	require.True(t, errors.Is(err, domain.ErrPaymentNotFound), "got %v", err)
}

func TestClientAndProductRepositories_Postgres(t *testing.T) {
	store := migratedStore(t)
	clients := NewClientRepository(store)
	products := NewProductRepository(store)
	ctx := context.Background()

	require.NoError(t, clients.Create(ctx, domain.Client{ID: "c1", Name: "Ali", TelegramID: 42, Role: domain.ClientRoleClient}))
	require.NoError(t, clients.UpdateTotalDebt(ctx, "c1", 700))
	require.NoError(t, clients.Create(ctx, domain.Client{ID: "c1", Name: "Ali aka", TelegramID: 42, Role: domain.ClientRoleClient}))

	client, err := clients.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "Ali aka", client.Name)
	require.Equal(t, int64(700), client.TotalDebt)

	debtors, err := clients.ListDebtors(ctx)
	require.NoError(t, err)
	require.Len(t, debtors, 1)
	require.ErrorIs(t, clients.UpdateTotalDebt(ctx, "ghost", 1), domain.ErrClientNotFound)

	require.NoError(t, products.Create(ctx, domain.Product{ID: "ice", Name: "Muzqaymoq", Stock: 5, SellPrice: 12000}))
	stock, err := products.AdjustStock(ctx, "ice", -3)
	require.NoError(t, err)
	require.Equal(t, int64(2), stock)

	stock, err = products.AdjustStock(ctx, "ice", -3)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.Equal(t, int64(2), stock)

	_, err = products.AdjustStock(ctx, "missing", 1)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}
