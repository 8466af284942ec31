package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/lock"
	"github.com/vladislavdragonenkov/muzbazar/internal/metrics"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/inventory"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/ledger"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/reminder"
)

// initRedis подключается к Redis, если он настроен. Без адреса возвращает nil.
func initRedis(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// newLocker выбирает распределённую блокировку при наличии Redis.
func newLocker(client *redis.Client, cfg Config, logger *log.Entry) domain.Locker {
	if client == nil {
		logger.Info("redis is not configured, using in-process locks")
		return lock.NewKeyedLocker()
	}
	return lock.NewRedisLocker(client,
		lock.WithTTL(cfg.LockTTL),
		lock.WithLogger(logger.WithField("component", "redis-lock")),
	)
}

// newLedgerService собирает сервис учёта поверх выбранного хранилища.
func newLedgerService(deps *runtimeDependencies, locker domain.Locker, m *metrics.LedgerMetrics, cfg Config, logger *log.Entry) *ledger.Service {
	return ledger.NewService(ledger.Deps{
		Orders:   deps.orders,
		Payments: deps.payments,
		Clients:  deps.clients,
		Products: deps.products,
		Stock:    inventory.NewService(deps.products, logger.WithField("component", "inventory")),
		Outbox:   deps.outboxRepo,
		Timeline: deps.timelineRepo,
		Locker:   locker,
	},
		ledger.WithLogger(logger.WithField("component", "ledger")),
		ledger.WithMetrics(m),
		ledger.WithResyncConcurrency(cfg.ResyncConcurrency),
	)
}

// reminderSettings переводит настройки окружения в reminder.Settings.
func reminderSettings(cfg Config) (reminder.Settings, error) {
	settings := reminder.DefaultSettings()
	settings.Enabled = cfg.ReminderEnabled
	if cfg.ReminderIntervalDays > 0 {
		settings.IntervalDays = cfg.ReminderIntervalDays
	}
	if cfg.ReminderTime != "" {
		settings.Time = cfg.ReminderTime
	}
	settings, err := settings.LoadLocation(cfg.ReminderTimezone)
	if err != nil {
		return reminder.Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return reminder.Settings{}, err
	}
	return settings, nil
}

// newReminderWorker настраивает рассылку напоминаний о долге. Требует Redis.
func newReminderWorker(cfg Config, client redis.UniversalClient, deps *runtimeDependencies, m *metrics.LedgerMetrics, logger *log.Entry) (*reminder.Worker, error) {
	settings, err := reminderSettings(cfg)
	if err != nil {
		return nil, err
	}
	job := reminder.NewJob(deps.clients, deps.outboxRepo, reminder.NewRedisLastRun(client, ""), settings,
		reminder.WithMetrics(m),
		reminder.WithLogger(logger.WithField("component", "debt-reminder")),
	)
	return reminder.NewWorker(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, job, logger.WithField("component", "reminder-worker"))
}
