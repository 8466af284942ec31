package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ErrPermanent помечает ошибки, повтор которых бесполезен: сообщение сразу уходит в DLQ.
var ErrPermanent = errors.New("permanent message failure")

const (
	defaultConsumerRetries    = 3
	defaultConsumerRetryDelay = 200 * time.Millisecond
)

// MessageHandler обрабатывает одно сообщение топика.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer читает топики в consumer group. Сообщение, которое не удалось
// обработать за maxRetries попыток, уходит в DLQ, и offset фиксируется.
// Без DLQ offset не фиксируется, и сообщение будет прочитано снова.
type Consumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	logger     *log.Entry
	now        func() time.Time
	dlq        *Producer
	dlqTopic   string
	maxRetries int
	retryDelay time.Duration

	wg sync.WaitGroup
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDLQ включает Dead Letter Queue.
func WithDLQ(producer *Producer, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.dlq = producer
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

// WithRetry задаёт общее число попыток (с учётом заголовка x-retry-count) и паузу между ними.
func WithRetry(maxRetries int, delay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		c.retryDelay = max(delay, 0)
	}
}

func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer создаёт consumer group groupID. Новая группа начинает с конца топика.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = defaultClientID
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group %s: %w", groupID, err)
	}
	return newConsumer(group, topics, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:      group,
		topics:     topics,
		handler:    handler,
		logger:     log.New().WithField("component", "kafka-consumer"),
		now:        func() time.Time { return time.Now().UTC() },
		dlqTopic:   TopicDeadLetterQueue,
		maxRetries: defaultConsumerRetries,
		retryDelay: defaultConsumerRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start запускает чтение в фоне и сразу возвращается.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		// Consume возвращается на каждом rebalance.
		for ctx.Err() == nil {
			err := c.group.Consume(ctx, c.topics, c)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			if err != nil {
				c.logger.WithError(err).Error("kafka consume session ended with error")
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("kafka consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.process(ctx, message); err != nil {
				c.logger.WithError(err).WithFields(messageFields(message)).Error("kafka message left uncommitted")
				continue
			}
			session.MarkMessage(message, "")
		}
	}
}

// process возвращает nil, если сообщение обработано или передано в DLQ.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	attempt := retryCount(message)
	for {
		err := c.handler(ctx, message)
		if err == nil {
			return nil
		}

		attempt++
		if errors.Is(err, ErrPermanent) || attempt >= c.maxRetries {
			return c.bury(message, err, attempt)
		}

		c.logger.WithError(err).WithFields(messageFields(message)).WithField("attempt", attempt).Warn("kafka message failed, retrying")
		if err := pause(ctx, c.retryDelay); err != nil {
			return err
		}
	}
}

func (c *Consumer) bury(message *sarama.ConsumerMessage, cause error, attempts int) error {
	if c.dlq == nil {
		return cause
	}
	if err := c.sendToDLQ(message, cause, attempts); err != nil {
		return fmt.Errorf("dead letter for %s/%d/%d: %w", message.Topic, message.Partition, message.Offset, err)
	}
	c.logger.WithError(cause).WithFields(messageFields(message)).WithField("attempts", attempts).Warn("kafka message moved to dead letters")
	return nil
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, cause error, attempts int) error {
	failedAt := c.now().Format(time.RFC3339)
	value, err := json.Marshal(DeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      cause.Error(),
		FailedAt:          failedAt,
		RetryCount:        attempts,
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	return c.dlq.Send(Message{
		Topic: c.dlqTopic,
		Key:   string(message.Key),
		Value: value,
		Headers: map[string]string{
			HeaderRetryCount:    strconv.Itoa(attempts),
			HeaderOriginalTopic: message.Topic,
			HeaderErrorMessage:  cause.Error(),
			HeaderFailedAt:      failedAt,
		},
	})
}

// retryCount читает x-retry-count; сообщение из DLQ продолжает счёт попыток.
func retryCount(message *sarama.ConsumerMessage) int {
	for _, h := range message.Headers {
		if h == nil || string(h.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(h.Value)); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

func messageFields(message *sarama.ConsumerMessage) log.Fields {
	return log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	}
}

func pause(ctx context.Context, d time.Duration) error {
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
