package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix — префикс переменных окружения сервиса.
const EnvPrefix = "LEDGER"

// Поддерживаемые хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса учёта.
// Значения читаются из окружения с префиксом LEDGER_, например LEDGER_GRPC_ADDR.
type Config struct {
	GRPCAddr string `envconfig:"GRPC_ADDR"`
	// HTTPAddr обслуживает /api/v1, /metrics и health-эндпоинты.
	HTTPAddr string `envconfig:"HTTP_ADDR"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE"`
	PostgresMaxConns    int    `envconfig:"POSTGRES_MAX_CONNS"`

	// RedisAddr пустой: блокировки внутри процесса, напоминания выключены.
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB"`
	LockTTL       time.Duration `envconfig:"LOCK_TTL"`

	// KafkaBrokers — список брокеров через запятую; пустой отключает публикацию.
	KafkaBrokers         string `envconfig:"KAFKA_BROKERS"`
	KafkaCommandsEnabled bool   `envconfig:"KAFKA_COMMANDS_ENABLED"`
	KafkaConsumerGroup   string `envconfig:"KAFKA_CONSUMER_GROUP"`
	KafkaClientID        string `envconfig:"KAFKA_CLIENT_ID"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY"`
	// OutboxMaxPending — размер backlog, после которого /healthz сообщает degraded.
	OutboxMaxPending int `envconfig:"OUTBOX_MAX_PENDING"`

	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE"`

	ReminderEnabled      bool   `envconfig:"REMINDER_ENABLED"`
	ReminderIntervalDays int    `envconfig:"REMINDER_INTERVAL_DAYS"`
	ReminderTime         string `envconfig:"REMINDER_TIME"`
	ReminderTimezone     string `envconfig:"REMINDER_TIMEZONE"`

	// HTTPRateLimit — запросов в минуту на IP для /api/v1.
	HTTPRateLimit      int           `envconfig:"HTTP_RATE_LIMIT"`
	HTTPRequestTimeout time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT"`
	ResyncConcurrency  int           `envconfig:"RESYNC_CONCURRENCY"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`

	LogFormat string `envconfig:"LOG_FORMAT"`
	LogLevel  string `envconfig:"LOG_LEVEL"`
}

// DefaultConfig возвращает настройки по умолчанию: память вместо БД, без Redis и Kafka.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		HTTPAddr:                    ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PostgresMaxConns:            25,
		LockTTL:                     10 * time.Second,
		KafkaConsumerGroup:          "muzbazar-ledger",
		KafkaClientID:               "muzbazar-ledger",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		OutboxMaxPending:            1000,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		ReminderIntervalDays:        3,
		ReminderTime:                "10:00",
		ReminderTimezone:            "Asia/Tashkent",
		HTTPRateLimit:               60,
		HTTPRequestTimeout:          15 * time.Second,
		ResyncConcurrency:           4,
		ShutdownTimeout:             5 * time.Second,
		LogFormat:                   "text",
		LogLevel:                    "info",
	}
}

// LoadConfig накладывает переменные окружения на DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("config: %s_POSTGRES_DSN is required for postgres storage", EnvPrefix)
		}
		if c.PostgresMaxConns <= 0 {
			return fmt.Errorf("config: %s_POSTGRES_MAX_CONNS must be > 0", EnvPrefix)
		}
	default:
		return fmt.Errorf("config: unsupported storage driver %q", c.StorageDriver)
	}
	if c.GRPCAddr == "" || c.HTTPAddr == "" {
		return fmt.Errorf("config: grpc and http addresses are required")
	}
	if c.ReminderEnabled && c.RedisAddr == "" {
		return fmt.Errorf("config: debt reminders require %s_REDIS_ADDR", EnvPrefix)
	}
	if c.KafkaCommandsEnabled && c.KafkaBrokers == "" {
		return fmt.Errorf("config: kafka commands require %s_KAFKA_BROKERS", EnvPrefix)
	}
	return nil
}

// Brokers разбирает KafkaBrokers, отбрасывая пробелы и пустые элементы.
func (c Config) Brokers() []string {
	return splitBrokers(c.KafkaBrokers)
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
