package inventory

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

// Service двигает складские остатки по позициям заказа.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
}

// NewService создаёт сервис остатков поверх репозитория товаров.
func NewService(products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &Service{products: products, logger: logger}
}

// Deduct списывает позиции по очереди. При первой ошибке уже списанное возвращается на склад.
func (s *Service) Deduct(ctx context.Context, items []domain.OrderItem) error {
	applied := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		if _, err := s.products.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
			s.compensate(ctx, applied)
			return fmt.Errorf("deduct %s x%d: %w", item.ProductID, item.Quantity, err)
		}
		applied = append(applied, item)
	}
	return nil
}

// Apply применяет направление ко всем позициям. Ошибка одной позиции не останавливает остальные.
func (s *Service) Apply(ctx context.Context, direction domain.StockDirection, items []domain.OrderItem) domain.StockReport {
	report := domain.StockReport{Direction: direction}
	sign := direction.Sign()
	if sign == 0 {
		return report
	}

	for _, item := range items {
		delta := sign * item.Quantity
		stock, err := s.products.AdjustStock(ctx, item.ProductID, delta)
		adj := domain.StockAdjustment{ProductID: item.ProductID, Delta: delta}
		if err != nil {
			adj.Err = err
			s.logger.WithError(err).WithFields(log.Fields{
				"product_id": item.ProductID,
				"delta":      delta,
			}).Warn("stock adjustment failed")
		} else {
			adj.Stock = stock
		}
		report.Adjustments = append(report.Adjustments, adj)
	}
	return report
}

func (s *Service) compensate(ctx context.Context, applied []domain.OrderItem) {
	for i := len(applied) - 1; i >= 0; i-- {
		item := applied[i]
		if _, err := s.products.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"product_id": item.ProductID,
				"quantity":   item.Quantity,
			}).Error("stock compensation failed")
		}
	}
}

var _ domain.StockService = (*Service)(nil)
