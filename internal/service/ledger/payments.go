package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/lock"
	"github.com/vladislavdragonenkov/muzbazar/internal/metrics"
)

// PaymentRequest — погашение долга клиента.
// Пустой OrderID означает автоматическое распределение по старым заказам.
type PaymentRequest struct {
	ClientID  string
	Amount    int64
	OrderID   string
	Method    domain.PaymentMethod
	Notes     string
	SellerID  string
	AdminName string
}

// PaymentResult описывает, куда ушли деньги.
type PaymentResult struct {
	Orders   []domain.Order
	Payments []domain.Payment
	// Applied — зачисленная сумма, Unapplied — остаток, которому не нашлось долга.
	Applied   int64
	Unapplied int64
	// TotalDebt — долг клиента после пересчёта; TotalDebtSynced=false, если пересчёт не удался.
	TotalDebt       int64
	TotalDebtSynced bool
}

// ApplyPayment зачисляет платёж клиента на конкретный заказ либо распределяет его
// по неоплаченным заказам начиная с самого старого.
func (s *Service) ApplyPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	defer s.observe("apply_payment", time.Now())

	req.Method = req.Method.OrDefault()
	switch {
	case req.Amount <= 0:
		return PaymentResult{}, domain.ErrInvalidAmount
	case strings.TrimSpace(req.ClientID) == "":
		return PaymentResult{}, domain.ErrClientRequired
	case !req.Method.Valid():
		return PaymentResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMethod, req.Method)
	}

	if req.OrderID != "" {
		return s.applyTargeted(ctx, req)
	}
	return s.applyAuto(ctx, req)
}

func (s *Service) applyTargeted(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	var posting domain.PaymentPosting

	err := s.withLock(ctx, lock.OrderKey(req.OrderID), func() error {
		return s.retryOnConflict(ctx, "apply_payment", req.OrderID, func() error {
			order, err := s.orders.Get(ctx, req.OrderID)
			if err != nil {
				return err
			}
			if order.ClientID != req.ClientID {
				return domain.ErrOrderBelongsToOtherClient
			}
			if err := order.ApplyPayment(req.Amount); err != nil {
				return err
			}

			posting = domain.PaymentPosting{Order: order, Payment: s.newPayment(order, req.Amount, req, req.Notes)}
			if err := s.payments.Record(ctx, []domain.PaymentPosting{posting}); err != nil {
				return err
			}
			posting.Order.Version++
			return nil
		})
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"client_id": req.ClientID,
			"order_id":  req.OrderID,
			"amount":    req.Amount,
		}).Warn("targeted payment rejected")
		return PaymentResult{}, err
	}

	ctx = context.WithoutCancel(ctx)
	s.recordPosted(ctx, metrics.ModeTargeted, posting)

	result := PaymentResult{
		Orders:   []domain.Order{posting.Order},
		Payments: []domain.Payment{posting.Payment},
		Applied:  req.Amount,
	}
	result.TotalDebt, result.TotalDebtSynced = s.resyncAfter(ctx, req.ClientID)
	return result, nil
}

func (s *Service) applyAuto(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	var (
		postings []domain.PaymentPosting
		result   PaymentResult
	)

	// Блокировка клиента сериализует распределения одного клиента;
	// заказы блокируются строго в порядке FIFO.
	err := s.withLock(ctx, lock.ClientKey(req.ClientID), func() error {
		outstanding, err := s.orders.ListOutstanding(ctx, req.ClientID)
		if err != nil {
			return err
		}
		if len(outstanding) == 0 {
			return domain.ErrNoDebtToPay
		}

		held := make(map[string]func(), len(outstanding))
		defer func() {
			for _, unlock := range held {
				unlock()
			}
		}()

		err = s.retryOnConflict(ctx, "apply_payment_auto", req.ClientID, func() error {
			postings = postings[:0]
			remaining := req.Amount
			note := autoNote(req.Notes)

			for _, candidate := range outstanding {
				if remaining == 0 {
					break
				}
				if _, ok := held[candidate.ID]; !ok {
					unlock, err := s.locker.Lock(ctx, lock.OrderKey(candidate.ID))
					if err != nil {
						return err
					}
					held[candidate.ID] = unlock
				}

				order, err := s.orders.Get(ctx, candidate.ID)
				if err != nil {
					return err
				}
				if order.ClientID != req.ClientID || order.Status.IsCancelled() || order.Debt <= 0 {
					continue
				}

				portion := min(remaining, order.Debt)
				if err := order.ApplyPayment(portion); err != nil {
					return err
				}
				postings = append(postings, domain.PaymentPosting{
					Order:   order,
					Payment: s.newPayment(order, portion, req, note),
				})
				remaining -= portion
			}

			if len(postings) == 0 {
				return domain.ErrNoDebtToPay
			}
			if err := s.payments.Record(ctx, postings); err != nil {
				return err
			}
			result.Unapplied = remaining
			result.Applied = req.Amount - remaining
			return nil
		})
		if err != nil {
			return err
		}

		// Пересчёт под уже захваченной блокировкой клиента.
		wctx := context.WithoutCancel(ctx)
		for i := range postings {
			postings[i].Order.Version++
			s.recordPosted(wctx, metrics.ModeAuto, postings[i])
		}
		result.TotalDebt, result.TotalDebtSynced = s.resyncLocked(wctx, req.ClientID)
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"client_id": req.ClientID,
			"amount":    req.Amount,
		}).Warn("automatic payment rejected")
		return PaymentResult{}, err
	}

	for _, posting := range postings {
		result.Orders = append(result.Orders, posting.Order)
		result.Payments = append(result.Payments, posting.Payment)
	}
	if result.Unapplied > 0 {
		s.metrics.RecordExcessDropped(result.Unapplied)
		s.logger.WithFields(log.Fields{
			"client_id": req.ClientID,
			"amount":    req.Amount,
			"unapplied": result.Unapplied,
		}).Info("payment exceeds total debt, excess not applied")
	}
	return result, nil
}

func (s *Service) newPayment(order domain.Order, amount int64, req PaymentRequest, notes string) domain.Payment {
	return domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		ClientID:  order.ClientID,
		Amount:    amount,
		Method:    req.Method,
		Notes:     notes,
		SellerID:  req.SellerID,
		AdminName: req.AdminName,
		CreatedAt: s.now(),
	}
}

func (s *Service) recordPosted(ctx context.Context, mode string, posting domain.PaymentPosting) {
	s.metrics.RecordPayment(mode, posting.Payment.Amount)
	s.logger.WithFields(log.Fields{
		"order_id":   posting.Order.ID,
		"client_id":  posting.Order.ClientID,
		"payment_id": posting.Payment.ID,
		"amount":     posting.Payment.Amount,
		"debt":       posting.Order.Debt,
		"mode":       mode,
	}).Info("payment applied")

	ev := orderEvent(posting.Order, domain.EventPaymentApplied, map[string]any{
		"payment_id": posting.Payment.ID,
		"method":     string(posting.Payment.Method),
		"mode":       mode,
		"paid_sum":   posting.Order.PaidSum,
		"debt":       posting.Order.Debt,
	})
	ev.amount = posting.Payment.Amount
	s.emit(ctx, ev)
}

func autoNote(notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return domain.AutoDistributionNote
	}
	return notes + " (" + domain.AutoDistributionNote + ")"
}

// DeletePayment отменяет платёж: уменьшает оплаченную сумму заказа и удаляет запись.
func (s *Service) DeletePayment(ctx context.Context, paymentID string) (domain.Order, error) {
	defer s.observe("delete_payment", time.Now())

	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Order{}, err
	}

	var order domain.Order
	err = s.withLock(ctx, lock.OrderKey(payment.OrderID), func() error {
		return s.retryOnConflict(ctx, "delete_payment", payment.OrderID, func() error {
			var err error
			order, err = s.orders.Get(ctx, payment.OrderID)
			if err != nil {
				return err
			}
			order.RevertPayment(payment.Amount)
			if err := s.payments.Revoke(ctx, order, payment.ID); err != nil {
				return err
			}
			order.Version++
			return nil
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	ctx = context.WithoutCancel(ctx)
	s.metrics.RecordPaymentDeleted()
	s.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"payment_id": payment.ID,
		"amount":     payment.Amount,
		"debt":       order.Debt,
	}).Info("payment deleted")

	ev := orderEvent(order, domain.EventPaymentDeleted, map[string]any{
		"payment_id": payment.ID,
		"paid_sum":   order.PaidSum,
		"debt":       order.Debt,
	})
	ev.amount = payment.Amount
	s.emit(ctx, ev)

	s.resyncAfter(ctx, order.ClientID)
	return order, nil
}
