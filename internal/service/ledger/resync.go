package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/lock"
)

// Результаты пересчёта для метрик.
const (
	resyncFixed     = "fixed"
	resyncUnchanged = "unchanged"
	resyncMissing   = "missing"
	resyncError     = "error"
)

// ResyncReport — итог массового пересчёта долгов.
type ResyncReport struct {
	Checked    int
	Fixed      int
	Unchanged  int
	Errors     int
	GrandTotal int64
}

type resyncOutcome struct {
	previous int64
	total    int64
	changed  bool
	missing  bool
}

// ResyncClientDebt пересчитывает TotalDebt клиента по его заказам и
// возвращает новое значение. Для неизвестного клиента возвращает 0 без ошибки.
func (s *Service) ResyncClientDebt(ctx context.Context, clientID string) (int64, error) {
	defer s.observe("resync_client", time.Now())

	if clientID == "" {
		return 0, domain.ErrClientRequired
	}

	var outcome resyncOutcome
	err := s.withLock(ctx, lock.ClientKey(clientID), func() error {
		var err error
		outcome, err = s.syncClient(ctx, clientID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return outcome.total, nil
}

// ResyncAll пересчитывает долги всех клиентов с ограниченным параллелизмом.
// Ошибка по одному клиенту не прерывает остальных.
func (s *Service) ResyncAll(ctx context.Context) (ResyncReport, error) {
	defer s.observe("resync_all", time.Now())

	ids, err := s.clients.ListIDs(ctx)
	if err != nil {
		return ResyncReport{}, err
	}

	var (
		mu     sync.Mutex
		report ResyncReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.resyncConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			var outcome resyncOutcome
			err := s.withLock(gctx, lock.ClientKey(id), func() error {
				var err error
				outcome, err = s.syncClient(gctx, id)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			switch {
			case err != nil:
				report.Errors++
				s.logger.WithError(err).WithField("client_id", id).Error("client debt resync failed")
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
			case outcome.changed:
				report.Fixed++
			default:
				report.Unchanged++
			}
			report.GrandTotal += outcome.total
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	s.logger.WithFields(log.Fields{
		"checked":     report.Checked,
		"fixed":       report.Fixed,
		"unchanged":   report.Unchanged,
		"errors":      report.Errors,
		"grand_total": report.GrandTotal,
	}).Info("client debts resynced")
	return report, nil
}

// resyncAfter пересчитывает долг клиента после уже сохранённого изменения.
// Неудача пересчёта не отменяет изменение, поэтому только логируется.
func (s *Service) resyncAfter(ctx context.Context, clientID string) (int64, bool) {
	var (
		total  int64
		synced bool
	)
	err := s.withLock(ctx, lock.ClientKey(clientID), func() error {
		total, synced = s.resyncLocked(ctx, clientID)
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("client_id", clientID).Error("client lock for resync not acquired")
		return 0, false
	}
	return total, synced
}

// resyncLocked вызывается под блокировкой клиента.
func (s *Service) resyncLocked(ctx context.Context, clientID string) (int64, bool) {
	outcome, err := s.syncClient(ctx, clientID)
	if err != nil {
		s.logger.WithError(err).WithField("client_id", clientID).Error("client debt resync failed")
		return 0, false
	}
	return outcome.total, true
}

func (s *Service) syncClient(ctx context.Context, clientID string) (resyncOutcome, error) {
	client, err := s.clients.Get(ctx, clientID)
	if errors.Is(err, domain.ErrClientNotFound) {
		s.metrics.RecordResync(resyncMissing)
		s.logger.WithField("client_id", clientID).Warn("resync skipped: client not found")
		return resyncOutcome{missing: true}, nil
	}
	if err != nil {
		s.metrics.RecordResync(resyncError)
		return resyncOutcome{}, err
	}

	total, err := s.orders.SumDebt(ctx, clientID)
	if err != nil {
		s.metrics.RecordResync(resyncError)
		return resyncOutcome{}, err
	}

	outcome := resyncOutcome{previous: client.TotalDebt, total: total}
	if client.TotalDebt == total {
		s.metrics.RecordResync(resyncUnchanged)
		return outcome, nil
	}

	if err := s.clients.UpdateTotalDebt(ctx, clientID, total); err != nil {
		s.metrics.RecordResync(resyncError)
		return resyncOutcome{}, err
	}
	outcome.changed = true
	s.metrics.RecordResync(resyncFixed)

	s.logger.WithFields(log.Fields{
		"client_id": clientID,
		"previous":  client.TotalDebt,
		"total":     total,
	}).Info("client total debt updated")

	s.emit(ctx, event{
		aggregateType: "client",
		aggregateID:   clientID,
		clientID:      clientID,
		eventType:     domain.EventClientDebtResynced,
		payload: map[string]any{
			"previous":   client.TotalDebt,
			"total_debt": total,
		},
	})
	return outcome, nil
}
