package ledger

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

// RetryConfig — повторы операции при конфликте версий заказа. Пауза
// перед n-м повтором равна BaseDelay*2^(n-1), но не больше MaxDelay.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  3,
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  200 * time.Millisecond,
	}
}

// pause возвращает ожидание после failed-й неудачной попытки.
func (c RetryConfig) pause(failed int) time.Duration {
	d := c.BaseDelay
	for i := 1; i < failed && d < c.MaxDelay; i++ {
		d *= 2
	}
	return min(d, c.MaxDelay)
}

// retryOnConflict повторяет fn, пока она возвращает конфликт версий.
// fn перечитывает заказ сама: повтор со старой версией снова упадёт.
func (s *Service) retryOnConflict(ctx context.Context, op, id string, fn func() error) error {
	entry := s.logger.WithFields(log.Fields{"operation": op, "id": id})

	for failed := 1; ; failed++ {
		err := fn()
		if !domain.IsVersionConflict(err) {
			return err
		}
		s.metrics.RecordVersionConflict()

		if failed >= s.retry.Attempts {
			entry.WithField("attempts", failed).Error("version conflict persisted, giving up")
			return err
		}

		wait := s.retry.pause(failed)
		entry.WithFields(log.Fields{"attempt": failed, "delay": wait}).Warn("version conflict, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
