package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

// Статусы события в outbox.
const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

type outboxEntry struct {
	msg      domain.OutboxMessage
	status   string
	seq      int64
	queuedAt time.Time
}

// OutboxRepository — outbox в памяти. События выдаются в порядке Enqueue.
type OutboxRepository struct {
	mu      sync.RWMutex
	now     func() time.Time
	seq     int64
	entries map[string]*outboxEntry
}

func NewOutboxRepository() *OutboxRepository {
	return NewOutboxRepositoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewOutboxRepositoryWithClock задаёт время постановки событий.
func NewOutboxRepositoryWithClock(now func() time.Time) *OutboxRepository {
	return &OutboxRepository{now: now, entries: make(map[string]*outboxEntry)}
}

// Enqueue ставит событие в очередь; пустой ID заменяется UUID.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.entries[msg.ID] = &outboxEntry{msg: msg, status: OutboxPending, seq: r.seq, queuedAt: r.now()}
	return msg, nil
}

// PullPending не меняет статус: событие остаётся pending до MarkSent/MarkFailed.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	pending := r.byStatus(OutboxPending)
	return pending[:min(limit, len(pending))], nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, e := range r.entries {
		if e.status != OutboxPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || e.queuedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = e.queuedAt
		}
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.setStatus(id, OutboxSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.setStatus(id, OutboxFailed)
}

// AllPending возвращает события pending в порядке постановки.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	return r.byStatus(OutboxPending)
}

// WithStatus возвращает события с указанным статусом.
func (r *OutboxRepository) WithStatus(status string) []domain.OutboxMessage {
	return r.byStatus(status)
}

// EventTypes перечисляет типы pending событий по порядку.
func (r *OutboxRepository) EventTypes() []string {
	pending := r.byStatus(OutboxPending)
	types := make([]string, len(pending))
	for i, msg := range pending {
		types[i] = msg.EventType
	}
	return types
}

func (r *OutboxRepository) setStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOutboxMessageNotFound, id)
	}
	e.status = status
	return nil
}

func (r *OutboxRepository) byStatus(status string) []domain.OutboxMessage {
	r.mu.RLock()
	matched := make([]*outboxEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.status == status {
			matched = append(matched, e)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *outboxEntry) int { return int(a.seq - b.seq) })
	out := make([]domain.OutboxMessage, len(matched))
	for i, e := range matched {
		out[i] = e.msg
	}
	return out
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
