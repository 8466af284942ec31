package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/metrics"
)

// TaskDebtReminder — тип asynq-задачи рассылки.
const TaskDebtReminder = "ledger:debt_reminder"

// NewDebtReminderTask создаёт задачу рассылки.
func NewDebtReminderTask() *asynq.Task {
	return asynq.NewTask(TaskDebtReminder, nil)
}

// Result — итог одного запуска.
type Result struct {
	Skipped bool
	Reason  string
	Queued  int
	// NoTelegram — должники без привязанного Telegram.
	NoTelegram int
}

// Job ставит в outbox напоминания всем клиентам с долгом.
type Job struct {
	clients  domain.ClientRepository
	outbox   domain.OutboxRepository
	lastRun  LastRunStore
	settings Settings
	metrics  *metrics.LedgerMetrics
	logger   *log.Entry
	now      func() time.Time
}

// JobOption настраивает Job.
type JobOption func(*Job)

// WithMetrics включает счётчик напоминаний.
func WithMetrics(m *metrics.LedgerMetrics) JobOption {
	return func(j *Job) {
		j.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) JobOption {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) JobOption {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
	}
}

// NewJob создаёт задачу рассылки.
func NewJob(clients domain.ClientRepository, outbox domain.OutboxRepository, lastRun LastRunStore, settings Settings, opts ...JobOption) *Job {
	if lastRun == nil {
		lastRun = &MemoryLastRun{}
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	j := &Job{
		clients:  clients,
		outbox:   outbox,
		lastRun:  lastRun,
		settings: settings,
		logger:   log.New().WithField("component", "debt-reminder"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// ProcessTask реализует asynq.Handler.
func (j *Job) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	result, err := j.Run(ctx)
	if err != nil {
		return err
	}
	j.logger.WithFields(log.Fields{
		"skipped":     result.Skipped,
		"reason":      result.Reason,
		"queued":      result.Queued,
		"no_telegram": result.NoTelegram,
	}).Info("debt reminder run finished")
	return nil
}

// Run выполняет рассылку, если она включена и интервал с прошлого запуска истёк.
func (j *Job) Run(ctx context.Context) (Result, error) {
	if !j.settings.Enabled {
		return Result{Skipped: true, Reason: "disabled"}, nil
	}

	now := j.now()
	last, ok, err := j.lastRun.LastRun(ctx)
	if err != nil {
		return Result{}, err
	}
	if ok {
		elapsedDays := int(now.Sub(last) / (24 * time.Hour))
		if elapsedDays < j.settings.IntervalDays {
			return Result{Skipped: true, Reason: fmt.Sprintf("interval not reached: %d of %d days", elapsedDays, j.settings.IntervalDays)}, nil
		}
	}

	debtors, err := j.clients.ListDebtors(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list debtors: %w", err)
	}

	var result Result
	for _, client := range debtors {
		if client.TotalDebt <= 0 {
			continue
		}
		if client.TelegramID == 0 {
			result.NoTelegram++
			continue
		}
		if err := j.enqueue(ctx, client, now); err != nil {
			j.logger.WithError(err).WithField("client_id", client.ID).Warn("enqueue debt reminder failed")
			continue
		}
		result.Queued++
		j.metrics.RecordReminderQueued()
	}

	if err := j.lastRun.SetLastRun(ctx, now); err != nil {
		return result, err
	}
	return result, nil
}

func (j *Job) enqueue(ctx context.Context, client domain.Client, now time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"client_id":   client.ID,
		"telegram_id": client.TelegramID,
		"total_debt":  client.TotalDebt,
		"message":     Message(client.TotalDebt),
		"ts":          now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}
	_, err = j.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "client",
		AggregateID:   client.ID,
		EventType:     domain.EventDebtReminder,
		Payload:       payload,
	})
	return err
}
