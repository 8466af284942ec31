package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

// LedgerStore хранит заказы и платежи под одной блокировкой,
// чтобы изменение заказа и платежа применялось атомарно.
type LedgerStore struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	numbers  map[string]string
	payments map[string]domain.Payment
}

// NewLedgerStore возвращает in-memory хранилище для локальной разработки и тестов.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		orders:   make(map[string]domain.Order),
		numbers:  make(map[string]string),
		payments: make(map[string]domain.Payment),
	}
}

// Orders возвращает репозиторий заказов поверх хранилища.
func (s *LedgerStore) Orders() domain.OrderRepository { return (*orderRepositoryInMemory)(s) }

// Payments возвращает репозиторий платежей поверх хранилища.
func (s *LedgerStore) Payments() domain.PaymentRepository { return (*paymentRepositoryInMemory)(s) }

type orderRepositoryInMemory LedgerStore

// Create сохраняет новый заказ, если ID и номер ещё не заняты.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if _, taken := r.numbers[order.Number]; taken {
		return domain.ErrOrderNumberTaken
	}
	r.orders[order.ID] = cloneOrder(order)
	r.numbers[order.Number] = order.ID
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByClient возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByClient(_ context.Context, clientID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.orders {
		if order.ClientID != clientID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListOutstanding возвращает заказы с долгом в порядке погашения (старые первыми).
func (r *orderRepositoryInMemory) ListOutstanding(_ context.Context, clientID string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.orders {
		if order.ClientID != clientID || order.Status.IsCancelled() || order.Debt <= 0 {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SumDebt суммирует долг по неотменённым заказам клиента.
func (r *orderRepositoryInMemory) SumDebt(_ context.Context, clientID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, order := range r.orders {
		if order.ClientID != clientID || order.Status.IsCancelled() {
			continue
		}
		if order.Debt > math.MaxInt64-total {
			return 0, fmt.Errorf("sum debt of client %s: %w", clientID, domain.ErrAmountOverflow)
		}
		total += order.Debt
	}
	return total, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return (*LedgerStore)(r).saveLocked(order)
}

func (s *LedgerStore) saveLocked(order domain.Order) error {
	if err := s.checkVersionLocked(order); err != nil {
		return err
	}
	order.Version++
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *LedgerStore) checkVersionLocked(order domain.Order) error {
	current, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	return nil
}

type paymentRepositoryInMemory LedgerStore

// Get возвращает платёж или ErrPaymentNotFound.
func (r *paymentRepositoryInMemory) Get(_ context.Context, id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

// ListByOrder возвращает платежи заказа в хронологическом порядке.
func (r *paymentRepositoryInMemory) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Payment, 0)
	for _, payment := range r.payments {
		if payment.OrderID == orderID {
			result = append(result, payment)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Record проверяет версии всех заказов и только затем применяет изменения.
func (r *paymentRepositoryInMemory) Record(_ context.Context, postings []domain.PaymentPosting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	store := (*LedgerStore)(r)
	for _, posting := range postings {
		if err := store.checkVersionLocked(posting.Order); err != nil {
			return err
		}
		if _, exists := r.payments[posting.Payment.ID]; exists {
			return domain.ErrOrderVersionConflict
		}
	}
	for _, posting := range postings {
		order := posting.Order
		order.Version++
		r.orders[order.ID] = cloneOrder(order)
		r.payments[posting.Payment.ID] = posting.Payment
	}
	return nil
}

// Revoke сохраняет заказ и удаляет платёж одной операцией.
func (r *paymentRepositoryInMemory) Revoke(_ context.Context, order domain.Order, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[paymentID]; !ok {
		return domain.ErrPaymentNotFound
	}
	if err := (*LedgerStore)(r).saveLocked(order); err != nil {
		return err
	}
	delete(r.payments, paymentID)
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var (
	_ domain.OrderRepository   = (*orderRepositoryInMemory)(nil)
	_ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
)
