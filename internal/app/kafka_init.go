package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/outbox"
)

var errKafkaDisabled = errors.New("kafka brokers are not configured")

// kafkaBridge держит producer событий и consumer команд. Все методы
// допускают nil-получатель: без Kafka сервис работает, а события
// копятся в outbox.
type kafkaBridge struct {
	producer *kafka.Producer
	commands *kafka.Consumer
	logger   *log.Entry
}

func connectKafka(cfg Config, logger *log.Entry) (*kafkaBridge, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, errKafkaDisabled
	}

	producer, err := kafka.NewProducer(brokers,
		kafka.WithClientID(cfg.KafkaClientID),
		kafka.WithProducerLogger(logger.WithField("component", "kafka-producer")))
	if err != nil {
		return nil, err
	}
	logger.WithField("brokers", brokers).Info("kafka producer connected")
	return &kafkaBridge{producer: producer, logger: logger}, nil
}

// outboxWorker публикует события в TopicLedgerEvents, а исчерпавшие
// попытки в TopicDeadLetterQueue.
func (b *kafkaBridge) outboxWorker(cfg Config, repo domain.OutboxRepository) *outbox.Worker {
	if b == nil {
		return nil
	}
	return outbox.NewWorker(repo,
		kafka.NewOutboxPublisher(b.producer, kafka.TopicLedgerEvents),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(b.producer, kafka.TopicDeadLetterQueue)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		outbox.WithMetrics(prometheus.DefaultRegisterer),
		outbox.WithLogger(b.logger.WithField("component", "outbox-worker")),
	)
}

// startCommands подписывается на TopicLedgerCommands; необработанные
// команды уходят в DLQ через тот же producer.
func (b *kafkaBridge) startCommands(ctx context.Context, cfg Config, ledger kafka.Ledger) error {
	if b == nil {
		return errKafkaDisabled
	}
	if ledger == nil {
		return errors.New("kafka commands need a ledger")
	}

	entry := b.logger.WithField("component", "kafka-commands")
	consumer, err := kafka.NewConsumer(cfg.Brokers(), cfg.KafkaConsumerGroup,
		[]string{kafka.TopicLedgerCommands},
		kafka.NewCommandHandler(ledger, entry).Handle,
		kafka.WithDLQ(b.producer, kafka.TopicDeadLetterQueue),
		kafka.WithConsumerLogger(entry),
	)
	if err != nil {
		return fmt.Errorf("kafka command consumer: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start kafka command consumer: %w", err)
	}
	b.commands = consumer
	return nil
}

func (b *kafkaBridge) stopCommands() {
	if b == nil || b.commands == nil {
		return
	}
	if err := b.commands.Stop(); err != nil {
		b.logger.WithError(err).Warn("failed to stop kafka command consumer")
	}
	b.commands = nil
}

func (b *kafkaBridge) close() {
	if b == nil {
		return
	}
	b.stopCommands()
	if err := b.producer.Close(); err != nil {
		b.logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	b.logger.Info("kafka producer closed")
}
