package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

type timelineRepository struct {
	mu     sync.RWMutex
	now    func() time.Time
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository хранит историю заказов в памяти.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepository{
		now:    func() time.Time { return time.Now().UTC() },
		events: make(map[string][]domain.TimelineEvent),
	}
}

// Append вставляет событие после всех событий с тем же или более ранним временем.
func (r *timelineRepository) Append(_ context.Context, e domain.TimelineEvent) error {
	if e.Occurred.IsZero() {
		e.Occurred = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.events[e.OrderID]
	at := len(history)
	for at > 0 && history[at-1].Occurred.After(e.Occurred) {
		at--
	}
	r.events[e.OrderID] = slices.Insert(history, at, e)
	return nil
}

func (r *timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.TimelineEvent{}, r.events[orderID]...), nil
}
