package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

const timelineColumns = `order_id, client_id, type, reason, amount, occurred`

var errTimelineOrderRequired = errors.New("timeline event without order id")

// timelineRepository ведёт историю заказа; при равном occurred
// события идут в порядке вставки.
type timelineRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *timelineRepository) Append(ctx context.Context, e domain.TimelineEvent) error {
	if e.OrderID == "" {
		return errTimelineOrderRequired
	}
	if e.Occurred.IsZero() {
		e.Occurred = r.now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_events (`+timelineColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.OrderID, e.ClientID, e.Type, e.Reason, e.Amount, e.Occurred)
	if err != nil {
		return fmt.Errorf("append %s to order %s timeline: %w", e.Type, e.OrderID, err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+timelineColumns+` FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("query order %s timeline: %w", orderID, err)
	}
	defer rows.Close()

	events := []domain.TimelineEvent{}
	for rows.Next() {
		var e domain.TimelineEvent
		if err := rows.Scan(&e.OrderID, &e.ClientID, &e.Type, &e.Reason, &e.Amount, &e.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		e.Occurred = e.Occurred.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
