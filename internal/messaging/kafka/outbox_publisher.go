package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

// Заголовки событий учёта.
const (
	HeaderEventType     = "event-type"
	HeaderAggregateType = "aggregate-type"
)

var errPublisherClosed = errors.New("kafka event publisher has no producer")

// eventPublisher заворачивает событие outbox в LedgerEvent и пишет в топик
// с ключом агрегата: события одного заказа или клиента идут в одну партицию.
type eventPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher публикует события outbox в topic (по умолчанию TopicLedgerEvents).
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicLedgerEvents
	}
	return &eventPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *eventPublisher) Publish(event domain.OutboxMessage) error {
	if p.producer == nil {
		return errPublisherClosed
	}

	value, err := json.Marshal(LedgerEvent{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   p.now(),
	})
	if err != nil {
		return fmt.Errorf("encode ledger event %s: %w", event.ID, err)
	}

	return p.producer.Send(Message{
		Topic: p.topic,
		Key:   partitionKey(event),
		Value: value,
		Headers: map[string]string{
			HeaderEventType:     event.EventType,
			HeaderAggregateType: event.AggregateType,
		},
	})
}

func partitionKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}
