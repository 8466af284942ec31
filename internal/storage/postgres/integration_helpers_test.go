package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

// Интеграционные тесты идут только при заданном LEDGER_TEST_POSTGRES_DSN.
const integrationDSNEnv = "LEDGER_TEST_POSTGRES_DSN"

// ledgerTables очищаются перед каждым тестом; порядок не важен из-за CASCADE.
var ledgerTables = []string{
	"idempotency_keys",
	"outbox_messages",
	"timeline_events",
	"payments",
	"order_items",
	"orders",
	"products",
	"clients",
}

// rawStore подключается к базе без миграций.
func rawStore(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(integrationDSNEnv))
	if dsn == "" {
		t.Skipf("%s is not set", integrationDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	require.NoError(t, err, "open postgres")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// migratedStore накатывает все миграции и очищает таблицы учёта.
func migratedStore(t *testing.T) *Store {
	t.Helper()

	store := rawStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0), "migrate up")
	_, err := store.DB().ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(ledgerTables, ", ")+" RESTART IDENTITY CASCADE")
	require.NoError(t, err, "truncate ledger tables")
	return store
}

func seedClient(t *testing.T, store *Store, id string) {
	t.Helper()

	err := NewClientRepository(store).Create(context.Background(), domain.Client{ID: id, Name: id, Role: domain.ClientRoleClient})
	require.NoError(t, err, "seed client %s", id)
}

// sampleOrder — заказ из одной позиции по 100 за штуку.
func sampleOrder(id, clientID string, total int64, createdAt time.Time) domain.Order {
	order := domain.Order{
		ID:        id,
		Number:    "MB-" + id,
		ClientID:  clientID,
		Items:     []domain.OrderItem{domain.NewItem("ice", "Muzqaymoq", total/100, 100)},
		TotalSum:  total,
		Status:    domain.OrderStatusPending,
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	order.Recalculate()
	return order
}
