package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/lock"
)

// ItemRequest — позиция нового заказа. Цена берётся из карточки товара.
type ItemRequest struct {
	ProductID string
	Quantity  int64
}

// CreateOrderRequest — оформление заказа в долг.
type CreateOrderRequest struct {
	ClientID string
	Items    []ItemRequest
}

// TransitionResult описывает итог смены статуса.
type TransitionResult struct {
	Order    domain.Order
	Previous domain.OrderStatus
	Stock    domain.StockReport
}

// CreateOrder оформляет заказ: фиксирует цены, списывает товар со склада
// и открывает долг на всю сумму.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	defer s.observe("create_order", time.Now())

	if strings.TrimSpace(req.ClientID) == "" {
		return domain.Order{}, domain.ErrClientRequired
	}
	if len(req.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}
	if _, err := s.clients.Get(ctx, req.ClientID); err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return domain.Order{}, fmt.Errorf("%w: product %s", domain.ErrItemQtyInvalid, item.ProductID)
		}
		product, err := s.products.Get(ctx, item.ProductID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("product %s: %w", item.ProductID, err)
		}
		if _, err := domain.ItemTotal(item.Quantity, product.SellPrice); err != nil {
			return domain.Order{}, fmt.Errorf("product %s: %w", item.ProductID, err)
		}
		items = append(items, domain.NewItem(product.ID, product.Name, item.Quantity, product.SellPrice))
	}
	total, err := domain.SumItems(items)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.stock.Deduct(ctx, items); err != nil {
		s.logger.WithError(err).WithField("client_id", req.ClientID).Warn("order rejected: stock deduction failed")
		return domain.Order{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:        uuid.NewString(),
		ClientID:  req.ClientID,
		Items:     items,
		TotalSum:  total,
		Status:    domain.OrderStatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.Recalculate()

	if err := s.createWithNumber(ctx, &order); err != nil {
		wctx := context.WithoutCancel(ctx)
		report := s.stock.Apply(wctx, domain.StockRestore, items)
		s.metrics.RecordStockFailures(len(report.Failed()))
		return domain.Order{}, err
	}

	ctx = context.WithoutCancel(ctx)
	s.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"number":    order.Number,
		"client_id": order.ClientID,
		"total_sum": order.TotalSum,
	}).Info("order created")

	ev := orderEvent(order, domain.EventOrderCreated, map[string]any{
		"number":    order.Number,
		"total_sum": order.TotalSum,
		"items":     len(order.Items),
	})
	ev.amount = order.TotalSum
	s.emit(ctx, ev)

	s.resyncAfter(ctx, order.ClientID)
	return order, nil
}

func (s *Service) createWithNumber(ctx context.Context, order *domain.Order) error {
	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		order.Number = s.newNumber(s.now())
		err = s.orders.Create(ctx, *order)
		if !errors.Is(err, domain.ErrOrderNumberTaken) {
			return err
		}
		s.logger.WithFields(log.Fields{
			"number":  order.Number,
			"attempt": attempt + 1,
		}).Warn("order number collision, regenerating")
	}
	return err
}

// IncreaseDebt доначисляет сумму к заказу без создания платежа.
func (s *Service) IncreaseDebt(ctx context.Context, orderID string, amount int64, reason string) (domain.Order, error) {
	defer s.observe("increase_debt", time.Now())

	if amount <= 0 {
		return domain.Order{}, domain.ErrInvalidAmount
	}

	var order domain.Order
	err := s.withLock(ctx, lock.OrderKey(orderID), func() error {
		return s.retryOnConflict(ctx, "increase_debt", orderID, func() error {
			var err error
			order, err = s.orders.Get(ctx, orderID)
			if err != nil {
				return err
			}
			if err := order.IncreaseDebt(amount); err != nil {
				return err
			}
			order.UpdatedAt = s.now()
			if err := s.orders.Save(ctx, order); err != nil {
				return err
			}
			order.Version++
			return nil
		})
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"amount":   amount,
		}).Warn("debt increase rejected")
		return domain.Order{}, err
	}

	ctx = context.WithoutCancel(ctx)
	s.metrics.RecordDebtIncreased()
	s.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"client_id": order.ClientID,
		"amount":    amount,
		"debt":      order.Debt,
	}).Info("debt increased")

	ev := orderEvent(order, domain.EventDebtIncreased, map[string]any{
		"total_sum": order.TotalSum,
		"debt":      order.Debt,
	})
	ev.amount = amount
	ev.reason = reason
	s.emit(ctx, ev)

	s.resyncAfter(ctx, order.ClientID)
	return order, nil
}

// TransitionStatus переводит заказ в новый статус. При отмене товар
// возвращается на склад, при реактивации списывается снова; ошибки по
// отдельным позициям попадают в отчёт и не отменяют смену статуса.
func (s *Service) TransitionStatus(ctx context.Context, orderID string, next domain.OrderStatus) (TransitionResult, error) {
	defer s.observe("transition_status", time.Now())

	if !next.Valid() {
		return TransitionResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, next)
	}

	var (
		result    TransitionResult
		direction domain.StockDirection
		changed   bool
	)
	err := s.withLock(ctx, lock.OrderKey(orderID), func() error {
		err := s.retryOnConflict(ctx, "transition_status", orderID, func() error {
			order, err := s.orders.Get(ctx, orderID)
			if err != nil {
				return err
			}
			result.Previous = order.Status
			if order.Status == next {
				result.Order = order
				changed = false
				return nil
			}

			direction, err = order.TransitionTo(next)
			if err != nil {
				return err
			}
			order.UpdatedAt = s.now()
			if err := s.orders.Save(ctx, order); err != nil {
				return err
			}
			order.Version++
			result.Order = order
			changed = true
			return nil
		})
		if err != nil || !changed {
			return err
		}

		// Статус уже сохранён: остатки двигаем под той же блокировкой заказа,
		// повтор перехода их второй раз не затронет.
		wctx := context.WithoutCancel(ctx)
		switch direction {
		case domain.StockRestore:
			result.Stock = s.stock.Apply(wctx, direction, result.Order.HeldItems())
		case domain.StockDeduct:
			result.Stock = s.stock.Apply(wctx, direction, result.Order.Items)
			s.recordReleased(wctx, &result.Order, result.Stock)
		default:
			result.Stock = domain.StockReport{Direction: direction}
		}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if !changed {
		result.Stock = domain.StockReport{Direction: domain.StockUnchanged}
		return result, nil
	}

	ctx = context.WithoutCancel(ctx)
	failed := result.Stock.Failed()
	s.metrics.RecordStatusTransition(string(result.Previous), string(next))
	s.metrics.RecordStockFailures(len(failed))

	entry := s.logger.WithFields(log.Fields{
		"order_id":  orderID,
		"client_id": result.Order.ClientID,
		"from":      result.Previous,
		"to":        next,
		"debt":      result.Order.Debt,
	})
	if len(failed) > 0 {
		entry.WithField("stock_failures", len(failed)).Warn("order status changed, stock partially adjusted")
	} else {
		entry.Info("order status changed")
	}

	ev := orderEvent(result.Order, domain.EventOrderStatusChanged, map[string]any{
		"from":           string(result.Previous),
		"to":             string(next),
		"debt":           result.Order.Debt,
		"stock_failures": len(failed),
	})
	ev.reason = string(result.Previous) + "->" + string(next)
	s.emit(ctx, ev)

	s.resyncAfter(ctx, result.Order.ClientID)
	return result, nil
}

// recordReleased помечает позиции, которые не удалось списать при возобновлении
// заказа, чтобы следующая отмена не вернула на склад товар, которого заказ не держит.
func (s *Service) recordReleased(ctx context.Context, order *domain.Order, report domain.StockReport) {
	if len(report.Adjustments) != len(order.Items) {
		return
	}

	items := slices.Clone(order.Items)
	changed := false
	for i, adj := range report.Adjustments {
		released := !adj.OK()
		if items[i].StockReleased != released {
			items[i].StockReleased = released
			changed = true
		}
	}
	if !changed {
		return
	}

	updated := *order
	updated.Items = items
	if err := s.orders.Save(ctx, updated); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to record released stock")
		return
	}
	updated.Version++
	*order = updated
}
