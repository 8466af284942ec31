package ledger

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// OrderAudit сравнивает оплаченную сумму заказа с суммой его платежей.
type OrderAudit struct {
	OrderID     string
	PaidSum     int64
	PaymentsSum int64
	Payments    int
	// Drift = PaidSum - PaymentsSum; ненулевое значение означает расхождение.
	Drift int64
}

// Consistent сообщает, что расхождения нет.
func (a OrderAudit) Consistent() bool {
	return a.Drift == 0
}

// AuditOrder проверяет заказ на расхождение paidSum и платежей. Ничего не меняет.
func (s *Service) AuditOrder(ctx context.Context, orderID string) (OrderAudit, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return OrderAudit{}, err
	}
	payments, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return OrderAudit{}, err
	}

	audit := OrderAudit{OrderID: order.ID, PaidSum: order.PaidSum, Payments: len(payments)}
	for _, payment := range payments {
		audit.PaymentsSum += payment.Amount
	}
	audit.Drift = audit.PaidSum - audit.PaymentsSum

	if !audit.Consistent() {
		s.logger.WithFields(log.Fields{
			"order_id":     order.ID,
			"paid_sum":     audit.PaidSum,
			"payments_sum": audit.PaymentsSum,
			"drift":        audit.Drift,
		}).Warn("order paid sum drifts from payments")
	}
	return audit, nil
}

// AuditClient проверяет все заказы клиента и возвращает только расхождения.
func (s *Service) AuditClient(ctx context.Context, clientID string) ([]OrderAudit, error) {
	orders, err := s.orders.ListByClient(ctx, clientID, 0)
	if err != nil {
		return nil, err
	}
	var drifts []OrderAudit
	for _, order := range orders {
		audit, err := s.AuditOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if !audit.Consistent() {
			drifts = append(drifts, audit)
		}
	}
	return drifts, nil
}
