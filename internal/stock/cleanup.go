package stock

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockengine/internal/products"
	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
	"github.com/angelmondragon/stockengine/pkg/metrics"
)

// CleanupResult summarizes one expiry sweep.
type CleanupResult struct {
	Scanned  int
	Released int
	Failed   int
}

// CleanupExpiredReservations releases every unconsumed reservation whose
// expiry has passed. Each reservation gets its own transaction that locks the
// product then the reservation and re-checks it, so a sweep never races a
// conversion into double consumption. Per-row failures are counted and logged;
// only a failing candidate query is returned as an error.
func (m *Manager) CleanupExpiredReservations(ctx context.Context) (CleanupResult, error) {
	var (
		result   CleanupResult
		failures error
		afterID  = uuid.Nil
	)
	now := m.now()
	ledger := newRepository(m.db.WithContext(ctx))

	for {
		batch, err := ledger.expiredAfter(ctx, now, afterID, m.batchSize)
		if err != nil {
			return result, m.finish(ctx, "cleanup", dependency(err, "list expired reservations"))
		}
		for _, candidate := range batch {
			afterID = candidate.ID
			result.Scanned++
			released, err := m.expireReservation(ctx, candidate.ID)
			if err != nil {
				result.Failed++
				failures = multierr.Append(failures, err)
				continue
			}
			if released {
				result.Released++
			}
		}
		if len(batch) < m.batchSize {
			break
		}
	}

	m.metrics.AddExpired(result.Released, result.Failed)
	logCtx := m.logg.WithFields(ctx, map[string]any{
		"scanned":  result.Scanned,
		"released": result.Released,
		"failed":   result.Failed,
	})
	if failures != nil {
		m.logg.Warn(m.logg.WithField(logCtx, "errors", failures.Error()), "reservation cleanup finished with failures")
	} else if result.Scanned > 0 {
		m.logg.Info(logCtx, "reservation cleanup complete")
	}
	m.metrics.IncOperation("cleanup", metrics.OutcomeOK)
	return result, nil
}

// expireReservation reports false when the row was terminated by someone else
// between the scan and the lock.
func (m *Manager) expireReservation(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	var released bool
	err := m.inTx(ctx, func(catalog *products.Repository, ledger *repository) error {
		reservation, product, err := lockReservation(ctx, catalog, ledger, reservationID)
		if err != nil {
			return err
		}
		if reservation.Consumed || reservation.ExpiresAt.After(m.now()) {
			return nil
		}
		ok, err := ledger.consume(ctx, reservation.ID, nil)
		if err != nil {
			return dependency(err, "consume reservation")
		}
		if !ok {
			return nil
		}
		if err := writeLog(ctx, ledger, &models.StockLog{
			ProductID:     product.ID,
			OperationType: enums.StockOperationRelease,
			QuantityDelta: reservation.Quantity,
			StockBefore:   product.Stock,
			StockAfter:    product.Stock,
			Reason:        ReasonReservationExpired,
		}); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}
