package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/metrics"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultSweepBatch    = 500
	// Ограничивает один проход, чтобы не держать базу под длинным удалением.
	defaultSweepMaxBatches = 100
)

// SweepResult — итог одного прохода очистки.
type SweepResult struct {
	Deleted int
	Batches int
	// Truncated означает, что проход упёрся в maxBatches и ключи ещё остались.
	Truncated bool
}

type sweepMetrics struct {
	runs    *prometheus.CounterVec
	deleted prometheus.Counter
	last    prometheus.Gauge
}

func newSweepMetrics(registerer prometheus.Registerer) *sweepMetrics {
	return &sweepMetrics{
		runs: metrics.Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_idempotency_sweep_runs_total",
			Help: "Idempotency key sweeps by result.",
		}, []string{"result"})),
		deleted: metrics.Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_idempotency_keys_expired_total",
			Help: "Expired idempotency keys removed by the sweeper.",
		})),
		last: metrics.Register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_idempotency_sweep_last_deleted",
			Help: "Keys removed by the most recent sweep.",
		})),
	}
}

// Sweeper периодически удаляет истёкшие ключи, после чего клиент
// может повторно занять ключ под новую команду.
type Sweeper struct {
	repo       domain.IdempotencyRepository
	logger     *log.Entry
	now        func() time.Time
	interval   time.Duration
	batch      int
	maxBatches int
	metrics    *sweepMetrics
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval задаёт паузу между проходами.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepBatch задаёт размер одного удаления.
func WithSweepBatch(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithSweepMaxBatches ограничивает число удалений за проход.
func WithSweepMaxBatches(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.maxBatches = n
		}
	}
}

func WithSweepLogger(logger *log.Entry) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepMetrics регистрирует метрики очистки. Без этой опции
// Sweeper метрик не пишет.
func WithSweepMetrics(registerer prometheus.Registerer) SweeperOption {
	return func(s *Sweeper) {
		if registerer != nil {
			s.metrics = newSweepMetrics(registerer)
		}
	}
}

// NewSweeper создаёт Sweeper поверх репозитория ключей.
func NewSweeper(repo domain.IdempotencyRepository, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:       repo,
		logger:     log.New().WithField("component", "idempotency-sweeper"),
		now:        func() time.Time { return time.Now().UTC() },
		interval:   defaultSweepInterval,
		batch:      defaultSweepBatch,
		maxBatches: defaultSweepMaxBatches,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run выполняет проход сразу и затем раз в interval, пока ctx жив.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper disabled: no repository")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepAndLog(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	result, err := s.Sweep(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		s.observe("error", result.Deleted)
		s.logger.WithError(err).WithField("deleted", result.Deleted).Warn("idempotency sweep failed")
		return
	}

	s.observe("ok", result.Deleted)
	if result.Deleted == 0 {
		return
	}
	entry := s.logger.WithFields(log.Fields{
		"deleted": result.Deleted,
		"batches": result.Batches,
	})
	if result.Truncated {
		entry.Warn("idempotency sweep hit batch limit, expired keys remain")
		return
	}
	entry.Info("expired idempotency keys removed")
}

// Sweep удаляет ключи, истёкшие к текущему моменту, порциями по batch.
// Проход заканчивается на неполной порции или после maxBatches порций.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	before := s.now()

	for result.Batches < s.maxBatches {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n, err := s.repo.DeleteExpired(ctx, before, s.batch)
		if err != nil {
			return result, err
		}
		result.Batches++
		result.Deleted += n
		if n < s.batch {
			return result, nil
		}
	}

	result.Truncated = true
	return result, nil
}

func (s *Sweeper) observe(outcome string, deleted int) {
	if s.metrics == nil {
		return
	}
	s.metrics.runs.WithLabelValues(outcome).Inc()
	s.metrics.deleted.Add(float64(deleted))
	if outcome == "ok" {
		s.metrics.last.Set(float64(deleted))
	}
}
