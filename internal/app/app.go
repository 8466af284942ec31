package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/muzbazar/internal/health"
	"github.com/vladislavdragonenkov/muzbazar/internal/httpapi"
	"github.com/vladislavdragonenkov/muzbazar/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/muzbazar/internal/service/grpc"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/idempotency"
	"github.com/vladislavdragonenkov/muzbazar/internal/version"
	ledgerv1 "github.com/vladislavdragonenkov/muzbazar/proto/ledger/v1"
)

// Run поднимает gRPC и HTTP серверы учёта и фоновые воркеры, затем ждёт отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage(deps, logger)

	redisClient, err := initRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis(redisClient, logger)

	ledgerMetrics := metrics.NewLedgerMetrics()
	ledgerSvc := newLedgerService(deps, newLocker(redisClient, cfg, logger), ledgerMetrics, cfg, logger)
	keeper := idempotency.NewKeeper(deps.idempotencyRepo,
		idempotency.WithKeeperLogger(logger.WithField("component", "idempotency")))

	bridge, err := connectKafka(cfg, logger)
	switch {
	case errors.Is(err, errKafkaDisabled):
		logger.Warn("kafka is not configured, ledger events stay in the outbox")
	case err != nil:
		logger.WithError(err).Warn("kafka is unreachable, ledger events stay in the outbox")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	var workers sync.WaitGroup
	startWorker := func(name string, fn func(ctx context.Context) error) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := fn(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).WithField("worker", name).Error("background worker stopped with error")
			}
		}()
	}

	sweeper := idempotency.NewSweeper(deps.idempotencyRepo,
		idempotency.WithSweepInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithSweepBatch(cfg.IdempotencyCleanupBatchSize),
		idempotency.WithSweepMetrics(prometheus.DefaultRegisterer),
		idempotency.WithSweepLogger(logger.WithField("component", "idempotency-sweeper")),
	)
	startWorker("idempotency-sweeper", sweeper.Run)

	if worker := bridge.outboxWorker(cfg, deps.outboxRepo); worker != nil {
		startWorker("outbox", worker.Run)
	}
	if cfg.KafkaCommandsEnabled {
		if err := bridge.startCommands(workerCtx, cfg, ledgerSvc); err != nil {
			logger.WithError(err).Warn("kafka commands are disabled")
		}
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	stopBackground := func() {
		bridge.stopCommands()
		shutdownWorkers(cancelWorkers, waitDone(&workers), shutdownTimeout, logger)
		bridge.close()
	}

	if cfg.ReminderEnabled {
		if redisClient == nil {
			logger.Warn("debt reminders need redis, reminders are disabled")
		} else {
			reminderWorker, err := newReminderWorker(cfg, redisClient, deps, ledgerMetrics, logger)
			if err != nil {
				stopBackground()
				return fmt.Errorf("configure debt reminders: %w", err)
			}
			startWorker("debt-reminder", reminderWorker.Run)
		}
	}

	healthHandler := newHealthHandler(cfg, deps, redisClient)

	grpcMetrics := registerGRPCMetrics(logger)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	ledgerv1.RegisterLedgerServiceServer(grpcServer,
		grpcsvc.NewLedgerService(ledgerSvc, keeper, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(grpcServer)

	// Reflection для grpcurl и нагрузочных утилит.
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		API:            httpapi.NewHandler(ledgerSvc, keeper, logger.WithField("layer", "http")),
		Health:         healthHandler,
		Metrics:        promhttp.Handler(),
		RateLimit:      cfg.HTTPRateLimit,
		RequestTimeout: cfg.HTTPRequestTimeout,
		Logger:         logger.WithField("component", "http"),
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		stopBackground()
		return err
	}
	httpSrv := startHTTPServer(ctx, cfg.HTTPAddr, logger, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	stopAll := func() {
		shutdownHTTP(httpSrv, logger)
		stopBackground()
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, shutdownTimeout, logger)
		stopAll()
		return ctx.Err()
	case err := <-errCh:
		stopAll()
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newHealthHandler регистрирует проверки хранилища, Redis и backlog outbox.
func newHealthHandler(cfg Config, deps *runtimeDependencies, redisClient *redis.Client) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.Current().Version)
	h.RegisterChecker("storage", deps.storageChecker)
	if redisClient != nil {
		h.RegisterChecker("redis", healthcheck.NewSimpleChecker("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}
	h.RegisterOptional("outbox", healthcheck.NewSimpleChecker("outbox", outboxBacklogCheck(deps.outboxRepo, cfg.OutboxMaxPending)))
	return h
}

// outboxBacklogCheck сообщает об ошибке, если неотправленных событий больше maxPending.
func outboxBacklogCheck(repo domain.OutboxRepository, maxPending int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if maxPending > 0 && stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
		}
		return nil
	}
}

// registerGRPCMetrics регистрирует метрики gRPC; при повторном запуске переиспользует уже зарегистрированные.
func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

// startHTTPServer запускает HTTP API вместе с /metrics и health-эндпоинтами.
func startHTTPServer(ctx context.Context, addr string, logger *log.Entry, handler http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("HTTP API доступен по адресу %s/api/v1", addr)
		logger.Infof("метрики и health checks: %s/metrics, %s/healthz, %s/livez, %s/readyz", addr, addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// stopGRPC ждёт завершения активных RPC не дольше timeout.
func stopGRPC(srv *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// shutdownWorkers отменяет фоновые воркеры и ждёт их завершения не дольше timeout.
func shutdownWorkers(cancel context.CancelFunc, done <-chan struct{}, timeout time.Duration, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("background workers did not stop in time")
	}
}

func waitDone(wg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func closeStorage(deps *runtimeDependencies, logger *log.Entry) {
	if deps == nil || deps.closeFn == nil {
		return
	}
	if err := deps.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

func closeRedis(client *redis.Client, logger *log.Entry) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.WithError(err).Warn("failed to close redis client")
	}
}
