package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

func headerMap(msg *sarama.ProducerMessage) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[string(h.Key)] = string(h.Value)
	}
	return out
}

func TestEventPublisher_WrapsEventAndKeysByAggregate(t *testing.T) {
	sync := mocks.NewSyncProducer(t, nil)
	publishedAt := time.Date(2026, 7, 3, 8, 30, 0, 0, time.UTC)

	sync.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		require.Equal(t, TopicLedgerEvents, msg.Topic)

		key, _ := msg.Key.Encode()
		require.Equal(t, "order-123", string(key))
		require.Equal(t, map[string]string{
			HeaderEventType:     domain.EventPaymentApplied,
			HeaderAggregateType: "order",
		}, headerMap(msg))

		value, _ := msg.Value.Encode()
		event, err := ParseLedgerEvent(value)
		require.NoError(t, err)
		require.Equal(t, "outbox-1", event.ID)
		require.JSONEq(t, `{"amount":500}`, string(event.Payload))
		require.True(t, publishedAt.Equal(event.PublishedAt))
		return nil
	})

	publisher := NewOutboxPublisher(newProducer(sync, nil), "").(*eventPublisher)
	publisher.now = func() time.Time { return publishedAt }

	require.NoError(t, publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     domain.EventPaymentApplied,
		Payload:       []byte(`{"amount":500}`),
	}))
	require.NoError(t, sync.Close())
}

func TestEventPublisher_FallsBackToEventIDKey(t *testing.T) {
	sync := mocks.NewSyncProducer(t, nil)
	sync.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		require.Equal(t, TopicDeadLetterQueue, msg.Topic)
		key, _ := msg.Key.Encode()
		require.Equal(t, "evt-9", string(key))
		return nil
	})

	publisher := NewOutboxPublisher(newProducer(sync, nil), TopicDeadLetterQueue)
	require.NoError(t, publisher.Publish(domain.OutboxMessage{ID: "evt-9", EventType: domain.EventDebtReminder, Payload: []byte(`{}`)}))
	require.NoError(t, sync.Close())
}

func TestEventPublisher_Errors(t *testing.T) {
	sync := mocks.NewSyncProducer(t, nil)
	sync.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newProducer(sync, nil), TopicLedgerEvents)
	err := publisher.Publish(domain.OutboxMessage{ID: "outbox-2", AggregateID: "client-1", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sync.Close())

	err = NewOutboxPublisher(nil, "").Publish(domain.OutboxMessage{ID: "outbox-3"})
	require.ErrorIs(t, err, errPublisherClosed)

	err = NewOutboxPublisher(newProducer(mocks.NewSyncProducer(t, nil), nil), "").
		Publish(domain.OutboxMessage{ID: "outbox-4", Payload: []byte(`{broken`)})
	require.ErrorContains(t, err, "encode ledger event outbox-4")
}

func TestLedgerEventRoundTripKeepsRawPayload(t *testing.T) {
	data, err := json.Marshal(LedgerEvent{ID: "e1", EventType: domain.EventDebtIncreased, Payload: json.RawMessage(`{"amount":1500}`)})
	require.NoError(t, err)

	event, err := ParseLedgerEvent(data)
	require.NoError(t, err)
	require.Equal(t, `{"amount":1500}`, string(event.Payload))
}
