package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockengine/pkg/errors"
	"github.com/angelmondragon/stockengine/pkg/logger"
)

const (
	defaultPendingTTL   = 72 * time.Hour
	pendingExpiryBatch  = 100
	pendingExpiryReason = "pending order expired"
)

type pendingOrderReader interface {
	ListByStatus(ctx context.Context, status enums.OrderStatus, limit int) ([]models.Order, error)
}

type orderCanceler interface {
	CancelOrder(ctx context.Context, order *models.Order, reason string, refundPayment bool) error
}

// PendingOrderExpiryJobParams configure the stale order sweep.
type PendingOrderExpiryJobParams struct {
	Logger   *logger.Logger
	Orders   pendingOrderReader
	Canceler orderCanceler
	TTL      time.Duration
}

// NewPendingOrderExpiryJob builds the job that cancels orders stuck in
// pending, restoring their stock and refunding the payment.
func NewPendingOrderExpiryJob(params PendingOrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Canceler == nil {
		return nil, fmt.Errorf("order canceler required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &pendingOrderExpiryJob{
		logg:     params.Logger,
		orders:   params.Orders,
		canceler: params.Canceler,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

type pendingOrderExpiryJob struct {
	logg     *logger.Logger
	orders   pendingOrderReader
	canceler orderCanceler
	ttl      time.Duration
	now      func() time.Time
}

func (j *pendingOrderExpiryJob) Name() string { return "pending-order-expiry" }

func (j *pendingOrderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	pending, err := j.orders.ListByStatus(ctx, enums.OrderStatusPending, pendingExpiryBatch)
	if err != nil {
		return fmt.Errorf("query pending orders: %w", err)
	}

	var (
		errs         error
		expired      int
		refundFailed int
	)
	for i := range pending {
		order := &pending[i]
		// oldest first
		if order.StatusUpdatedAt.After(cutoff) {
			break
		}
		err := j.canceler.CancelOrder(ctx, order, pendingExpiryReason, true)
		switch {
		case err == nil:
			expired++
		case order.Status == enums.OrderStatusCanceled:
			// canceled, but the refund did not go through
			expired++
			refundFailed++
			j.logg.Error(j.logg.WithOrderID(ctx, order.ID.String()), "refund for expired order failed", err)
		case isStateConflict(err):
			// moved on since the scan
		default:
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"expired":       expired,
		"refund_failed": refundFailed,
	})
	j.logg.Info(logCtx, "pending order expiry complete")
	return errs
}

func isStateConflict(err error) bool {
	typed := pkgerrors.As(err)
	return typed != nil && typed.Code() == pkgerrors.CodeStateConflict
}
