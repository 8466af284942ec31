package reminder

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

// QueueDefault — очередь задач рассылки.
const QueueDefault = "default"

// Worker объединяет asynq-сервер и планировщик задачи рассылки.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *log.Entry
}

// NewWorker регистрирует Job в cron по Settings.Time.
func NewWorker(redisOpts asynq.RedisClientOpt, job *Job, logger *log.Entry) (*Worker, error) {
	if job == nil {
		return nil, errors.New("reminder worker: job is nil")
	}
	if logger == nil {
		logger = log.New().WithField("component", "reminder-worker")
	}
	if err := job.settings.Validate(); err != nil {
		return nil, err
	}
	spec, err := job.settings.CronSpec()
	if err != nil {
		return nil, err
	}

	srv := asynq.NewServer(redisOpts, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskDebtReminder, job)

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{Location: job.settings.Location})
	if _, err := scheduler.Register(spec, NewDebtReminderTask(), asynq.Queue(QueueDefault), asynq.MaxRetry(3)); err != nil {
		return nil, fmt.Errorf("register reminder cron %q: %w", spec, err)
	}

	logger.WithFields(log.Fields{
		"cron":          spec,
		"interval_days": job.settings.IntervalDays,
		"timezone":      job.settings.Location.String(),
	}).Info("debt reminder scheduled")

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run обрабатывает задачи до отмены ctx.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("reminder worker: not configured")
	}
	if err := w.scheduler.Start(); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.scheduler.Shutdown()
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		w.scheduler.Shutdown()
		return err
	}
}
