package domain

import "time"

// Типы событий учёта.
const (
	EventOrderCreated       = "OrderCreated"
	EventPaymentApplied     = "PaymentApplied"
	EventPaymentDeleted     = "PaymentDeleted"
	EventDebtIncreased      = "DebtIncreased"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventClientDebtResynced = "ClientDebtResynced"
	EventDebtReminder       = "DebtReminder"
)

// TimelineEvent описывает событие в истории заказа.
type TimelineEvent struct {
	OrderID  string
	ClientID string
	Type     string
	Reason   string
	Amount   int64
	Occurred time.Time
}
