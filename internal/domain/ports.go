package domain

import (
	"context"
	"time"
)

// StockService управляет остатками по позициям заказа.
type StockService interface {
	// Deduct списывает все позиции либо ни одной.
	Deduct(ctx context.Context, items []OrderItem) error
	// Apply двигает остатки по каждой позиции независимо и возвращает отчёт.
	Apply(ctx context.Context, direction StockDirection, items []OrderItem) StockReport
}

// OutboxPublisher доставляет событие учёта получателю. Повторная доставка
// того же события допустима: получатели дедуплицируют по ID.
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}

// OutboxRepository — очередь событий, записанных вместе с изменением учёта.
// PullPending отдаёт события в порядке записи и не меняет их статус.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository — журнал действий по заказу.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит ответы на запросы с Idempotency-Key.
// Ключ живёт до expiresAt, затем его удаляет DeleteExpired.
type IdempotencyRepository interface {
	// CreateProcessing резервирует ключ; занятый ключ даёт ErrIdempotencyKeyAlreadyExists.
	CreateProcessing(ctx context.Context, key, requestHash string, expiresAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, body []byte, code int) error
	MarkFailed(ctx context.Context, key string, body []byte, code int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Locker сериализует изменения одной сущности.
type Locker interface {
	// Lock блокирует ключ до вызова unlock либо возвращает ошибку,
	// если контекст истёк раньше.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats — размер и возраст неотправленной части outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
