package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/health"
	"github.com/vladislavdragonenkov/muzbazar/internal/storage/memory"
	"github.com/vladislavdragonenkov/muzbazar/internal/storage/postgres"
)

// runtimeDependencies — репозитории выбранного хранилища.
type runtimeDependencies struct {
	orders          domain.OrderRepository
	payments        domain.PaymentRepository
	clients         domain.ClientRepository
	products        domain.ProductRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	storageChecker health.Checker
	closeFn        func() error
}

// initRuntimeDependencies открывает хранилище по cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		return newMemoryDependencies(), nil
	case StorageDriverPostgres:
		return newPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newMemoryDependencies() *runtimeDependencies {
	store := memory.NewLedgerStore()
	return &runtimeDependencies{
		orders:          store.Orders(),
		payments:        store.Payments(),
		clients:         memory.NewClientRepository(),
		products:        memory.NewProductRepository(),
		outboxRepo:      memory.NewOutboxRepository(),
		timelineRepo:    memory.NewTimelineRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		storageChecker:  health.NewSimpleChecker("storage", func(context.Context) error { return nil }),
		closeFn:         func() error { return nil },
	}
}

func newPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, fmt.Errorf("postgres storage requires %s_POSTGRES_DSN", EnvPrefix)
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
	if err != nil {
		return nil, err
	}
	logger = logger.WithField("database", store.Database())
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres schema is up to date")
	}

	return &runtimeDependencies{
		orders:          postgres.NewOrderRepository(store),
		payments:        postgres.NewPaymentRepository(store),
		clients:         postgres.NewClientRepository(store),
		products:        postgres.NewProductRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		timelineRepo:    postgres.NewTimelineRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		storageChecker:  health.NewSimpleChecker("storage", store.Ping),
		closeFn:         store.Close,
	}, nil
}
