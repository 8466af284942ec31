package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Режимы зачисления платежа.
const (
	ModeTargeted = "targeted"
	ModeAuto     = "auto"
)

// LedgerMetrics содержит метрики операций учёта долгов.
// Все методы допускают nil-получатель.
type LedgerMetrics struct {
	paymentsApplied   *prometheus.CounterVec
	paymentAmount     prometheus.Counter
	excessDropped     prometheus.Counter
	paymentsDeleted   prometheus.Counter
	debtIncreased     prometheus.Counter
	statusTransitions *prometheus.CounterVec
	stockFailures     prometheus.Counter
	resyncs           *prometheus.CounterVec
	versionConflicts  prometheus.Counter
	opDuration        *prometheus.HistogramVec
	timelineEvents    prometheus.Counter
	outboxEvents      prometheus.Counter
	remindersQueued   prometheus.Counter
}

// NewLedgerMetrics регистрирует метрики в глобальном реестре.
func NewLedgerMetrics() *LedgerMetrics {
	return NewLedgerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLedgerMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewLedgerMetricsWithRegisterer(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LedgerMetrics{
		paymentsApplied: Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_payments_applied_total",
			Help: "Total number of payment records created",
		}, []string{"mode"})),
		paymentAmount: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_payment_amount_total",
			Help: "Total amount applied to orders",
		})),
		excessDropped: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_payment_excess_dropped_total",
			Help: "Total amount of automatic payments left unapplied because debt was exhausted",
		})),
		paymentsDeleted: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_payments_deleted_total",
			Help: "Total number of reversed payments",
		})),
		debtIncreased: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_debt_increased_total",
			Help: "Total number of manual debt increases",
		})),
		statusTransitions: Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_status_transitions_total",
			Help: "Total number of order status transitions",
		}, []string{"from", "to"})),
		stockFailures: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_stock_adjust_failures_total",
			Help: "Total number of per-item stock adjustments that failed",
		})),
		resyncs: Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_resync_total",
			Help: "Total number of client debt resyncs by result",
		}, []string{"result"})),
		versionConflicts: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_version_conflicts_total",
			Help: "Total number of optimistic locking conflicts",
		})),
		opDuration: Register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"op"})),
		timelineEvents: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_timeline_events_total",
			Help: "Total number of timeline events recorded",
		})),
		outboxEvents: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		})),
		remindersQueued: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_debt_reminders_total",
			Help: "Total number of debt reminders queued",
		})),
	}
}

// Register регистрирует коллектор; при повторной регистрации возвращает уже существующий.
func Register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordPayment учитывает созданный платёж.
func (m *LedgerMetrics) RecordPayment(mode string, amount int64) {
	if m == nil {
		return
	}
	m.paymentsApplied.WithLabelValues(mode).Inc()
	m.paymentAmount.Add(float64(amount))
}

// RecordExcessDropped учитывает незачисленный остаток автоматического платежа.
func (m *LedgerMetrics) RecordExcessDropped(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.excessDropped.Add(float64(amount))
}

// RecordPaymentDeleted увеличивает счётчик отменённых платежей.
func (m *LedgerMetrics) RecordPaymentDeleted() {
	if m == nil {
		return
	}
	m.paymentsDeleted.Inc()
}

// RecordDebtIncreased увеличивает счётчик доначислений.
func (m *LedgerMetrics) RecordDebtIncreased() {
	if m == nil {
		return
	}
	m.debtIncreased.Inc()
}

// RecordStatusTransition учитывает смену статуса.
func (m *LedgerMetrics) RecordStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(from, to).Inc()
}

// RecordStockFailures учитывает позиции, остаток по которым не удалось поправить.
func (m *LedgerMetrics) RecordStockFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.stockFailures.Add(float64(n))
}

// RecordResync учитывает пересчёт долга клиента: result = fixed|unchanged|skipped|error.
func (m *LedgerMetrics) RecordResync(result string) {
	if m == nil {
		return
	}
	m.resyncs.WithLabelValues(result).Inc()
}

// RecordVersionConflict увеличивает счётчик конфликтов версий.
func (m *LedgerMetrics) RecordVersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

// ObserveOperation записывает длительность операции.
func (m *LedgerMetrics) ObserveOperation(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *LedgerMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LedgerMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// RecordReminderQueued увеличивает счётчик напоминаний о долге.
func (m *LedgerMetrics) RecordReminderQueued() {
	if m == nil {
		return
	}
	m.remindersQueued.Inc()
}
