package ledger

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

// event описывает изменение учёта для outbox и истории заказа.
type event struct {
	aggregateType string
	aggregateID   string
	orderID       string
	clientID      string
	eventType     string
	amount        int64
	reason        string
	payload       map[string]any
}

func orderEvent(order domain.Order, eventType string, payload map[string]any) event {
	return event{
		aggregateType: "order",
		aggregateID:   order.ID,
		orderID:       order.ID,
		clientID:      order.ClientID,
		eventType:     eventType,
		payload:       payload,
	}
}

// emit кладёт событие в outbox и дописывает его в историю заказа.
// Ошибки только логируются: изменение учёта к этому моменту уже сохранено.
func (s *Service) emit(ctx context.Context, ev event) {
	occurred := s.now()
	payload := ev.payload
	if payload == nil {
		payload = make(map[string]any)
	}
	if ev.orderID != "" {
		payload["order_id"] = ev.orderID
	}
	if ev.clientID != "" {
		payload["client_id"] = ev.clientID
	}
	if ev.amount != 0 {
		payload["amount"] = ev.amount
	}
	if ev.reason != "" {
		payload["reason"] = ev.reason
	}
	payload["ts"] = occurred.Format(time.RFC3339Nano)

	fields := log.Fields{
		"aggregate_id": ev.aggregateID,
		"event":        ev.eventType,
	}

	if s.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Error("marshal event failed")
			return
		}
		msg := domain.OutboxMessage{
			AggregateType: ev.aggregateType,
			AggregateID:   ev.aggregateID,
			EventType:     ev.eventType,
			Payload:       data,
		}
		if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
			s.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		} else {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.timeline != nil && ev.orderID != "" {
		entry := domain.TimelineEvent{
			OrderID:  ev.orderID,
			ClientID: ev.clientID,
			Type:     ev.eventType,
			Reason:   ev.reason,
			Amount:   ev.amount,
			Occurred: occurred,
		}
		if err := s.timeline.Append(ctx, entry); err != nil {
			s.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
		} else {
			s.metrics.RecordTimelineEvent()
		}
	}
}
