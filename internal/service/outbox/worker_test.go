package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/storage/memory"
)

var failedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// flakyBroker отказывает первые failures[id] публикаций события.
type flakyBroker struct {
	mu        sync.Mutex
	failures  map[string]int
	published []domain.OutboxMessage
	calls     map[string]int
}

func newFlakyBroker(failures map[string]int) *flakyBroker {
	return &flakyBroker{failures: failures, calls: make(map[string]int)}
}

func (b *flakyBroker) Publish(event domain.OutboxMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls[event.ID]++
	if b.failures[event.ID] > 0 {
		b.failures[event.ID]--
		return errors.New("leader not available")
	}
	b.published = append(b.published, event)
	return nil
}

func (b *flakyBroker) sent() []domain.OutboxMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.OutboxMessage(nil), b.published...)
}

func (b *flakyBroker) attempts(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[id]
}

func seedOutbox(t *testing.T, events ...domain.OutboxMessage) *memory.OutboxRepository {
	t.Helper()

	repo := memory.NewOutboxRepositoryWithClock(func() time.Time { return failedAt.Add(-time.Minute) })
	for _, e := range events {
		_, err := repo.Enqueue(context.Background(), e)
		require.NoError(t, err)
	}
	return repo
}

func paymentEvent(id, clientID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "client",
		AggregateID:   clientID,
		EventType:     domain.EventPaymentApplied,
		Payload:       []byte(`{"client_id":"` + clientID + `","amount":2500}`),
	}
}

func TestWorker_ProcessOnce_PublishesInOrder(t *testing.T) {
	t.Parallel()

	repo := seedOutbox(t, paymentEvent("evt-1", "c-1"), paymentEvent("evt-2", "c-2"))
	broker := newFlakyBroker(nil)

	result := NewWorker(repo, broker, WithRetryBaseDelay(0)).ProcessOnce(context.Background())

	require.Equal(t, BatchResult{Sent: 2}, result)
	require.Empty(t, repo.AllPending())
	require.Len(t, repo.WithStatus(memory.OutboxSent), 2)

	sent := broker.sent()
	require.Len(t, sent, 2)
	require.Equal(t, "evt-1", sent[0].ID)
	require.Equal(t, "evt-2", sent[1].ID)
}

func TestWorker_ProcessOnce_RetriesUntilDelivered(t *testing.T) {
	t.Parallel()

	repo := seedOutbox(t, paymentEvent("evt-1", "c-1"))
	broker := newFlakyBroker(map[string]int{"evt-1": 2})

	result := NewWorker(repo, broker, WithRetryBaseDelay(0), WithMaxAttempts(3)).ProcessOnce(context.Background())

	require.Equal(t, BatchResult{Sent: 1}, result)
	require.Equal(t, 3, broker.attempts("evt-1"))
	require.Len(t, repo.WithStatus(memory.OutboxSent), 1)
	require.Empty(t, repo.WithStatus(memory.OutboxFailed))
}

func TestWorker_ProcessOnce_DeadLetterAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	repo := seedOutbox(t, paymentEvent("evt-bad", "c-1"), paymentEvent("evt-ok", "c-2"))
	broker := newFlakyBroker(map[string]int{"evt-bad": 10})
	dlq := newFlakyBroker(nil)

	worker := NewWorker(repo, broker,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(2),
		WithClock(func() time.Time { return failedAt }),
	)
	result := worker.ProcessOnce(context.Background())

	require.Equal(t, BatchResult{Sent: 1, Failed: 1}, result)
	require.Equal(t, 2, broker.attempts("evt-bad"))

	failed := repo.WithStatus(memory.OutboxFailed)
	require.Len(t, failed, 1)
	require.Equal(t, "evt-bad", failed[0].ID)

	letters := dlq.sent()
	require.Len(t, letters, 1)
	require.Equal(t, domain.EventPaymentApplied+DeadLetterSuffix, letters[0].EventType)
	require.Equal(t, "c-1", letters[0].AggregateID)

	var letter DeadLetter
	require.NoError(t, json.Unmarshal(letters[0].Payload, &letter))
	require.Equal(t, "evt-bad", letter.OutboxID)
	require.Equal(t, domain.EventPaymentApplied, letter.EventType)
	require.Equal(t, 2, letter.Attempts)
	require.True(t, failedAt.Equal(letter.FailedAt))
	require.Contains(t, letter.PublishError, "leader not available")
	require.JSONEq(t, `{"client_id":"c-1","amount":2500}`, string(letter.Payload))
}

func TestWorker_ProcessOnce_MarksFailedWithoutDLQ(t *testing.T) {
	t.Parallel()

	repo := seedOutbox(t, paymentEvent("evt-1", "c-1"))
	broker := newFlakyBroker(map[string]int{"evt-1": 5})

	result := NewWorker(repo, broker, WithRetryBaseDelay(0), WithMaxAttempts(1)).ProcessOnce(context.Background())

	require.Equal(t, BatchResult{Failed: 1}, result)
	require.Len(t, repo.WithStatus(memory.OutboxFailed), 1)
}

func TestWorker_ProcessOnce_CancelDuringBackoffKeepsPending(t *testing.T) {
	t.Parallel()

	repo := seedOutbox(t, domain.OutboxMessage{ID: "evt-1", AggregateID: "c-1", EventType: domain.EventDebtReminder})
	ctx, cancel := context.WithCancel(context.Background())
	publisher := publisherFunc(func(domain.OutboxMessage) error {
		cancel()
		return errors.New("broker unavailable")
	})

	result := NewWorker(repo, publisher, WithRetryBaseDelay(time.Hour)).ProcessOnce(ctx)

	require.Equal(t, BatchResult{}, result)
	require.Len(t, repo.AllPending(), 1)
}

func TestWorker_ProcessOnce_Metrics(t *testing.T) {
	t.Parallel()

	repo := seedOutbox(t, paymentEvent("evt-ok", "c-1"), paymentEvent("evt-bad", "c-2"))
	broker := newFlakyBroker(map[string]int{"evt-bad": 10})

	worker := NewWorker(repo, broker,
		WithRetryBaseDelay(0),
		WithMaxAttempts(2),
		WithMetrics(prometheus.NewRegistry()),
	)
	worker.ProcessOnce(context.Background())

	require.InDelta(t, 1, testutil.ToFloat64(worker.metrics.attempts.WithLabelValues("sent")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(worker.metrics.attempts.WithLabelValues("retry_error")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(worker.metrics.attempts.WithLabelValues("failed")), 0)
	require.Zero(t, testutil.ToFloat64(worker.metrics.pending))
	require.Zero(t, testutil.ToFloat64(worker.metrics.oldestAge))
}

func TestWorker_BacklogAge(t *testing.T) {
	t.Parallel()

	repo := seedOutbox(t, paymentEvent("evt-1", "c-1"))
	worker := NewWorker(repo, newFlakyBroker(nil),
		WithMetrics(prometheus.NewRegistry()),
		WithClock(func() time.Time { return failedAt }),
	)

	worker.observeBacklog(context.Background())

	require.InDelta(t, 1, testutil.ToFloat64(worker.metrics.pending), 0)
	require.InDelta(t, 60, testutil.ToFloat64(worker.metrics.oldestAge), 0.001)
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()

	repo := seedOutbox(t, paymentEvent("evt-1", "c-1"))
	broker := newFlakyBroker(nil)
	worker := NewWorker(repo, broker, WithPollInterval(5*time.Millisecond), WithRetryBaseDelay(0))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return len(broker.sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("outbox worker did not stop after cancel")
	}
}

func TestWorker_RunWithoutPublisherReturnsImmediately(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewWorker(memory.NewOutboxRepository(), nil).Run(context.Background()))
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	worker := NewWorker(nil, nil, WithRetryBaseDelay(10*time.Millisecond))
	for n, want := range map[int]time.Duration{
		1:  10 * time.Millisecond,
		2:  20 * time.Millisecond,
		4:  80 * time.Millisecond,
		20: maxRetryDelay,
	} {
		if got := worker.retryBackoff(n); got != want {
			t.Fatalf("after %d failures: expected %s, got %s", n, want, got)
		}
	}

	require.Zero(t, NewWorker(nil, nil, WithRetryBaseDelay(0)).retryBackoff(3))
}

type publisherFunc func(domain.OutboxMessage) error

func (f publisherFunc) Publish(event domain.OutboxMessage) error { return f(event) }
