// Package outbox доставляет события учёта из таблицы outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/metrics"
)

// DeadLetterSuffix добавляется к типу события, ушедшего в DLQ.
const DeadLetterSuffix = ".dlq"

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// DeadLetter — payload события, которое не удалось опубликовать.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
}

// BatchResult — итог одного цикла публикации.
type BatchResult struct {
	Sent   int
	Failed int
}

type workerMetrics struct {
	attempts  *prometheus.CounterVec
	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
}

func newWorkerMetrics(registerer prometheus.Registerer) *workerMetrics {
	return &workerMetrics{
		attempts: metrics.Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_outbox_publish_attempts_total",
			Help: "Ledger event publish attempts by result.",
		}, []string{"result"})),
		pending: metrics.Register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_outbox_pending_records",
			Help: "Ledger events waiting for publication.",
		})),
		oldestAge: metrics.Register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest unpublished ledger event.",
		})),
	}
}

func (m *workerMetrics) attempt(result string) {
	if m != nil {
		m.attempts.WithLabelValues(result).Inc()
	}
}

// Worker публикует события из outbox. Событие, не опубликованное за
// maxAttempts попыток, помечается failed и копируется в DLQ.
type Worker struct {
	repo       domain.OutboxRepository
	publisher  domain.OutboxPublisher
	deadLetter domain.OutboxPublisher
	logger     *log.Entry
	metrics    *workerMetrics
	now        func() time.Time

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher задаёт получателя событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.deadLetter = publisher }
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithRetryBaseDelay задаёт паузу перед второй попыткой; дальше она
// удваивается, но не превышает maxRetryDelay. Ноль отключает паузы.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = max(d, 0) }
}

// WithMetrics регистрирует метрики backlog и попыток публикации.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(w *Worker) {
		if registerer != nil {
			w.metrics = newWorkerMetrics(registerer)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker создаёт Worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.New().WithField("component", "outbox-worker"),
		now:            func() time.Time { return time.Now().UTC() },
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox раз в pollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) error {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker disabled: repository or publisher missing")
		return nil
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну пачку событий по порядку. При отмене ctx
// текущее событие остаётся pending.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}

	events, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox events")
		return result
	}

	for _, event := range events {
		entry := w.logger.WithFields(log.Fields{
			"outbox_id":    event.ID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		})

		attempts, err := w.deliver(ctx, event)
		switch {
		case err == nil:
			result.Sent++
			if err := w.repo.MarkSent(ctx, event.ID); err != nil {
				entry.WithError(err).Warn("failed to mark outbox event sent")
			}
		case ctx.Err() != nil:
			return result
		default:
			result.Failed++
			w.metrics.attempt("failed")
			entry.WithError(err).WithField("attempts", attempts).Error("outbox event moved to dead letters")
			w.bury(ctx, event, attempts, err, entry)
		}
	}

	w.observeBacklog(ctx)
	if result.Failed > 0 {
		w.logger.WithFields(log.Fields{"sent": result.Sent, "failed": result.Failed}).Warn("outbox batch had failures")
	}
	return result
}

// deliver делает до maxAttempts попыток и возвращает их число.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, w.retryBackoff(attempt-1)); err != nil {
				return attempt - 1, err
			}
		}

		lastErr = w.publisher.Publish(event)
		if lastErr == nil {
			w.metrics.attempt("sent")
			return attempt, nil
		}
		w.metrics.attempt("retry_error")
	}
	return w.maxAttempts, fmt.Errorf("%w: %w", domain.ErrOutboxPublish, lastErr)
}

func (w *Worker) bury(ctx context.Context, event domain.OutboxMessage, attempts int, cause error, entry *log.Entry) {
	if w.deadLetter != nil {
		if err := w.publishDeadLetter(event, attempts, cause); err != nil {
			w.metrics.attempt("dlq_failed")
			entry.WithError(err).Warn("failed to publish dead letter")
		}
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		entry.WithError(err).Warn("failed to mark outbox event failed")
	}
}

func (w *Worker) publishDeadLetter(event domain.OutboxMessage, attempts int, cause error) error {
	payload, err := json.Marshal(DeadLetter{
		OutboxID:      event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishError:  cause.Error(),
		Attempts:      attempts,
		FailedAt:      w.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	letter := event
	letter.EventType = event.EventType + DeadLetterSuffix
	letter.Payload = payload
	return w.deadLetter.Publish(letter)
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Debug("outbox stats unavailable")
		return
	}

	w.metrics.pending.Set(float64(stats.PendingCount))
	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0)
	}
	w.metrics.oldestAge.Set(age)
}

// retryBackoff возвращает паузу после n-й неудачной попытки.
func (w *Worker) retryBackoff(n int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < n && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
