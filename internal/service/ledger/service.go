// Package ledger ведёт учёт заказов, платежей и долгов клиентов.
//
// Каждая операция меняет заказ под блокировкой заказа (или клиента для
// автоматического распределения), сохраняет изменения с проверкой версии
// и после фиксации пересчитывает агрегированный долг клиента.
package ledger

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/lock"
	"github.com/vladislavdragonenkov/muzbazar/internal/metrics"
)

// Deps — хранилища и сервисы, с которыми работает учёт.
type Deps struct {
	Orders   domain.OrderRepository
	Payments domain.PaymentRepository
	Clients  domain.ClientRepository
	Products domain.ProductRepository
	Stock    domain.StockService
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
	Locker   domain.Locker
}

// Service реализует операции учёта долгов.
type Service struct {
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	clients  domain.ClientRepository
	products domain.ProductRepository
	stock    domain.StockService
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	locker   domain.Locker

	logger            *log.Entry
	metrics           *metrics.LedgerMetrics
	retry             RetryConfig
	now               func() time.Time
	newNumber         func(time.Time) string
	resyncConcurrency int

	summaries singleflight.Group
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает запись метрик.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetryConfig задаёт политику повторов при конфликте версий.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) {
		if cfg.Attempts > 0 {
			s.retry = cfg
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNumberGenerator подменяет генератор номеров заказов.
func WithNumberGenerator(gen func(time.Time) string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newNumber = gen
		}
	}
}

// WithResyncConcurrency ограничивает параллелизм массового пересчёта.
func WithResyncConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.resyncConcurrency = n
		}
	}
}

// NewService создаёт сервис учёта. Если Locker не задан, используются
// блокировки в пределах процесса.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		orders:            deps.Orders,
		payments:          deps.Payments,
		clients:           deps.Clients,
		products:          deps.Products,
		stock:             deps.Stock,
		outbox:            deps.Outbox,
		timeline:          deps.Timeline,
		locker:            deps.Locker,
		logger:            log.New().WithField("component", "ledger"),
		retry:             DefaultRetryConfig(),
		now:               func() time.Time { return time.Now().UTC() },
		newNumber:         NewOrderNumber,
		resyncConcurrency: 4,
	}
	if s.locker == nil {
		s.locker = lock.NewKeyedLocker()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withLock выполняет fn, удерживая блокировку ключа.
func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func (s *Service) observe(op string, started time.Time) {
	s.metrics.ObserveOperation(op, time.Since(started))
}
