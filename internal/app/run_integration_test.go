package app

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	healthcheck "github.com/vladislavdragonenkov/muzbazar/internal/health"
)

func localConfig() Config {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	return cfg
}

// runFor запускает Run и отменяет контекст через d.
func runFor(t *testing.T, cfg Config, d time.Duration) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	select {
	case err := <-done:
		return err
	case <-time.After(d + 10*time.Second):
		t.Fatal("Run did not return after cancellation")
		return nil
	}
}

func TestRun_MemoryStopsOnCancel(t *testing.T) {
	err := runFor(t, localConfig(), 150*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_WithRedisLocks(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := localConfig()
	cfg.RedisAddr = mr.Addr()

	err := runFor(t, cfg, 200*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_StartupErrors(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"storage driver": {
			mutate: func(c *Config) { c.StorageDriver = "sqlite" },
			want:   "unsupported storage driver",
		},
		"redis down": {
			mutate: func(c *Config) { c.RedisAddr = "127.0.0.1:1" },
			want:   "ping redis",
		},
		"grpc port taken": {
			mutate: func(c *Config) { c.GRPCAddr = busy.Addr().String() },
			want:   busy.Addr().String(),
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := localConfig()
			tc.mutate(&cfg)
			err := runFor(t, cfg, 3*time.Second)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestInitRuntimeDependencies_Postgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("LEDGER_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("LEDGER_TEST_POSTGRES_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-deps"))
	require.NoError(t, err)
	t.Cleanup(func() { closeStorage(deps, log.WithField("test", "postgres-deps")) })

	require.NotNil(t, deps.orders)
	require.NotNil(t, deps.payments)
	require.NotNil(t, deps.outboxRepo)
	require.NotNil(t, deps.timelineRepo)
	require.NotNil(t, deps.idempotencyRepo)
	require.Equal(t, healthcheck.StatusHealthy, deps.storageChecker.Check(context.Background()).Status)
}

func TestShutdownWorkers(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	cancelled := false
	finished := make(chan struct{})
	close(finished)
	shutdownWorkers(func() { cancelled = true }, finished, time.Second, logger)
	require.True(t, cancelled)

	shutdownWorkers(nil, nil, time.Second, logger)

	started := time.Now()
	shutdownWorkers(func() {}, make(chan struct{}), 50*time.Millisecond, logger)
	require.Less(t, time.Since(started), time.Second)

	closeRedis(nil, logger)
	closeStorage(nil, logger)
	stopGRPC(grpc.NewServer(), time.Second, logger)
}

func TestWaitDone(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	done := waitDone(&wg)

	select {
	case <-done:
		t.Fatal("closed before workers finished")
	default:
	}

	wg.Done()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
