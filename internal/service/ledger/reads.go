package ledger

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

// ClientSummary — карточка клиента с открытыми долгами.
type ClientSummary struct {
	Client      domain.Client
	Outstanding []domain.Order
	// OrdersDebt — сумма долгов по заказам на момент чтения; может отличаться
	// от Client.TotalDebt, пока пересчёт не завершён.
	OrdersDebt int64
}

// GetOrder возвращает заказ.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ListClientOrders возвращает заказы клиента, новые первыми.
func (s *Service) ListClientOrders(ctx context.Context, clientID string, limit int) ([]domain.Order, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, domain.ErrClientRequired
	}
	return s.orders.ListByClient(ctx, clientID, limit)
}

// ListOrderPayments возвращает платежи заказа в порядке поступления.
func (s *Service) ListOrderPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.payments.ListByOrder(ctx, orderID)
}

// OrderTimeline возвращает историю событий заказа.
func (s *Service) OrderTimeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(ctx, orderID)
}

// GetClient возвращает клиента.
func (s *Service) GetClient(ctx context.Context, clientID string) (domain.Client, error) {
	return s.clients.Get(ctx, clientID)
}

// ClientSummary собирает карточку клиента. Одновременные запросы по одному
// клиенту выполняются одним чтением.
func (s *Service) ClientSummary(ctx context.Context, clientID string) (ClientSummary, error) {
	if strings.TrimSpace(clientID) == "" {
		return ClientSummary{}, domain.ErrClientRequired
	}

	v, err, _ := s.summaries.Do(clientID, func() (any, error) {
		client, err := s.clients.Get(ctx, clientID)
		if err != nil {
			return ClientSummary{}, err
		}
		outstanding, err := s.orders.ListOutstanding(ctx, clientID)
		if err != nil {
			return ClientSummary{}, err
		}
		summary := ClientSummary{Client: client, Outstanding: outstanding}
		for _, order := range outstanding {
			summary.OrdersDebt += order.Debt
		}
		return summary, nil
	})
	if err != nil {
		return ClientSummary{}, err
	}
	return v.(ClientSummary), nil
}

// RegisterClient создаёт клиента или обновляет его контакты. TotalDebt не меняется.
func (s *Service) RegisterClient(ctx context.Context, client domain.Client) (domain.Client, error) {
	if strings.TrimSpace(client.ID) == "" {
		return domain.Client{}, domain.ErrClientRequired
	}
	if client.Role == "" {
		client.Role = domain.ClientRoleClient
	}
	now := s.now()
	client.CreatedAt = now
	client.UpdatedAt = now
	if err := s.clients.Create(ctx, client); err != nil {
		return domain.Client{}, err
	}
	return s.clients.Get(ctx, client.ID)
}

// RegisterProduct создаёт или обновляет карточку товара.
func (s *Service) RegisterProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if strings.TrimSpace(product.ID) == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if product.SellPrice < 0 || product.CostPrice < 0 {
		return domain.Product{}, domain.ErrItemPriceInvalid
	}
	if product.Stock < 0 {
		return domain.Product{}, domain.ErrInsufficientStock
	}
	product.UpdatedAt = s.now()
	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}
	return s.products.Get(ctx, product.ID)
}
