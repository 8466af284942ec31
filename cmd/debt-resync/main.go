// debt-resync пересчитывает TotalDebt клиентов по их заказам и,
// по флагу -audit, сверяет PaidSum заказов с суммой платежей.
//
// Работает напрямую с PostgreSQL. Если рядом запущен сервис с Redis-блокировками,
// укажите тот же -redis, иначе пересчёт может пересечься с платежами.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/lock"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/inventory"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/ledger"
	"github.com/vladislavdragonenkov/muzbazar/internal/storage/postgres"
)

const (
	defaultTimeout     = 5 * time.Minute
	defaultConcurrency = 4

	envPostgresDSN = "LEDGER_POSTGRES_DSN"
	envRedisAddr   = "LEDGER_REDIS_ADDR"
)

type config struct {
	dsn         string
	redisAddr   string
	clientID    string
	audit       bool
	concurrency int
	timeout     time.Duration
}

// toolDeps — то, что нужно утилите от хранилища.
type toolDeps struct {
	ledger  *ledger.Service
	clients domain.ClientRepository
	closeFn func() error
}

var openDeps = func(ctx context.Context, cfg config, logger *log.Entry) (*toolDeps, error) {
	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}

	var (
		locker      domain.Locker = lock.NewKeyedLocker()
		redisClient *redis.Client
	)
	if cfg.redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			_ = store.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.redisAddr, err)
		}
		locker = lock.NewRedisLocker(redisClient, lock.WithLogger(logger.WithField("component", "lock")))
	}

	products := postgres.NewProductRepository(store)
	clients := postgres.NewClientRepository(store)
	svc := ledger.NewService(ledger.Deps{
		Orders:   postgres.NewOrderRepository(store),
		Payments: postgres.NewPaymentRepository(store),
		Clients:  clients,
		Products: products,
		Stock:    inventory.NewService(products, logger.WithField("component", "inventory")),
		Outbox:   postgres.NewOutboxRepository(store),
		Timeline: postgres.NewTimelineRepository(store),
		Locker:   locker,
	},
		ledger.WithLogger(logger.WithField("component", "ledger")),
		ledger.WithResyncConcurrency(cfg.concurrency),
	)

	return &toolDeps{
		ledger:  svc,
		clients: clients,
		closeFn: func() error {
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return store.Close()
		},
	}, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	drifts, err := run(ctx, cfg, os.Stdout)
	if err != nil {
		fail("debt resync failed: %v", err)
	}
	if drifts > 0 {
		fail("audit found %d drifted orders", drifts)
	}
}

func readConfig() (config, error) {
	cfg := config{}

	flag.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	flag.StringVar(&cfg.redisAddr, "redis", "", "Redis address for distributed locks (fallback: "+envRedisAddr+")")
	flag.StringVar(&cfg.clientID, "client", "", "resync a single client instead of all")
	flag.BoolVar(&cfg.audit, "audit", false, "compare order paid sums with recorded payments")
	flag.IntVar(&cfg.concurrency, "concurrency", defaultConcurrency, "clients resynced in parallel")
	flag.DurationVar(&cfg.timeout, "timeout", defaultTimeout, "overall timeout")
	flag.Parse()

	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = strings.TrimSpace(os.Getenv(envPostgresDSN))
	}
	if strings.TrimSpace(cfg.redisAddr) == "" {
		cfg.redisAddr = strings.TrimSpace(os.Getenv(envRedisAddr))
	}
	cfg.clientID = strings.TrimSpace(cfg.clientID)

	if cfg.dsn == "" {
		return config{}, fmt.Errorf("%s (or -dsn) is required", envPostgresDSN)
	}
	if cfg.concurrency <= 0 {
		return config{}, fmt.Errorf("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return config{}, fmt.Errorf("timeout must be > 0")
	}
	return cfg, nil
}

// run выполняет пересчёт и возвращает число заказов с расхождениями.
func run(ctx context.Context, cfg config, out io.Writer) (int, error) {
	logger := log.WithField("component", "debt-resync")

	deps, err := openDeps(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer func() { _ = deps.closeFn() }()

	clientIDs := []string{cfg.clientID}
	if cfg.clientID != "" {
		total, err := deps.ledger.ResyncClientDebt(ctx, cfg.clientID)
		if err != nil {
			return 0, fmt.Errorf("resync client %s: %w", cfg.clientID, err)
		}
		_, _ = fmt.Fprintf(out, "client %s: total_debt=%d\n", cfg.clientID, total)
	} else {
		report, err := deps.ledger.ResyncAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("resync all: %w", err)
		}
		_, _ = fmt.Fprintf(out, "checked=%d fixed=%d unchanged=%d errors=%d grand_total=%d\n",
			report.Checked, report.Fixed, report.Unchanged, report.Errors, report.GrandTotal)
		if report.Errors > 0 {
			return 0, fmt.Errorf("%d clients failed to resync", report.Errors)
		}

		if cfg.audit {
			clientIDs, err = deps.clients.ListIDs(ctx)
			if err != nil {
				return 0, fmt.Errorf("list clients: %w", err)
			}
		}
	}

	if !cfg.audit {
		return 0, nil
	}

	drifted := 0
	for _, id := range clientIDs {
		drifts, err := deps.ledger.AuditClient(ctx, id)
		if err != nil {
			return drifted, fmt.Errorf("audit client %s: %w", id, err)
		}
		for _, d := range drifts {
			_, _ = fmt.Fprintf(out, "drift client=%s order=%s paid_sum=%d payments_sum=%d payments=%d drift=%d\n",
				id, d.OrderID, d.PaidSum, d.PaymentsSum, d.Payments, d.Drift)
		}
		drifted += len(drifts)
	}
	_, _ = fmt.Fprintf(out, "audit: clients=%d drifted_orders=%d\n", len(clientIDs), drifted)
	return drifted, nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
