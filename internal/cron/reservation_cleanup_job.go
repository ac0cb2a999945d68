package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stockengine/internal/stock"
	"github.com/angelmondragon/stockengine/pkg/logger"
)

type reservationSweeper interface {
	CleanupExpiredReservations(ctx context.Context) (stock.CleanupResult, error)
}

// NewReservationCleanupJob builds the job that returns expired holds to the
// available pool.
func NewReservationCleanupJob(logg *logger.Logger, sweeper reservationSweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("reservation sweeper required")
	}
	return &reservationCleanupJob{logg: logg, sweeper: sweeper}, nil
}

type reservationCleanupJob struct {
	logg    *logger.Logger
	sweeper reservationSweeper
}

func (j *reservationCleanupJob) Name() string { return "reservation-cleanup" }

// Run sweeps once. Per-reservation failures are counted and logged by the
// manager and retried next cycle; only a failed candidate scan fails the job.
func (j *reservationCleanupJob) Run(ctx context.Context) error {
	result, err := j.sweeper.CleanupExpiredReservations(ctx)
	if err != nil {
		return fmt.Errorf("reservation cleanup: %w", err)
	}
	if result.Failed > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"released": result.Released,
			"failed":   result.Failed,
		})
		j.logg.Warn(logCtx, "some expired reservations were not released")
	}
	return nil
}
