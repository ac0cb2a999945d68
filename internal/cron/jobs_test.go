package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockengine/internal/events"
	"github.com/angelmondragon/stockengine/internal/stock"
	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockengine/pkg/errors"
	"github.com/angelmondragon/stockengine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

type fakeSweeper struct {
	result stock.CleanupResult
	err    error
	calls  int
}

func (f *fakeSweeper) CleanupExpiredReservations(context.Context) (stock.CleanupResult, error) {
	f.calls++
	return f.result, f.err
}

func TestReservationCleanupJob(t *testing.T) {
	sweeper := &fakeSweeper{result: stock.CleanupResult{Scanned: 4, Released: 3, Failed: 1}}
	job, err := NewReservationCleanupJob(testLogger(), sweeper)
	if err != nil {
		t.Fatalf("NewReservationCleanupJob: %v", err)
	}
	if job.Name() != "reservation-cleanup" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("per-row failures should not fail the job: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}

	sweeper.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected scan failure to fail the job")
	}
}

type fakePublisher struct {
	err   error
	calls int
}

func (f *fakePublisher) PublishPending(context.Context) (events.RelayResult, error) {
	f.calls++
	return events.RelayResult{Published: 2}, f.err
}

func TestOutboxRelayJob(t *testing.T) {
	publisher := &fakePublisher{}
	job, err := NewOutboxRelayJob(publisher)
	if err != nil {
		t.Fatalf("NewOutboxRelayJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	publisher.err = errors.New("broker unavailable")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected relay error to surface")
	}
	if publisher.calls != 2 {
		t.Fatalf("expected 2 relay passes, got %d", publisher.calls)
	}
}

type fakePendingOrders struct {
	orders []models.Order
}

func (f *fakePendingOrders) ListByStatus(_ context.Context, status enums.OrderStatus, _ int) ([]models.Order, error) {
	if status != enums.OrderStatusPending {
		return nil, nil
	}
	return f.orders, nil
}

type fakeCanceler struct {
	errs     map[uuid.UUID]error
	canceled []uuid.UUID
}

func (f *fakeCanceler) CancelOrder(_ context.Context, order *models.Order, reason string, refund bool) error {
	err := f.errs[order.ID]
	if pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
		return err
	}
	order.Status = enums.OrderStatusCanceled
	order.Metadata.CancelReason = reason
	f.canceled = append(f.canceled, order.ID)
	return err
}

func TestPendingOrderExpiryJobCancelsStaleOrders(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	stale := pendingOrder(now.Add(-96 * time.Hour))
	raced := pendingOrder(now.Add(-80 * time.Hour))
	refundFails := pendingOrder(now.Add(-75 * time.Hour))
	fresh := pendingOrder(now.Add(-time.Hour))

	canceler := &fakeCanceler{errs: map[uuid.UUID]error{
		raced.ID:       pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed"),
		refundFails.ID: pkgerrors.New(pkgerrors.CodeDependency, "refund payment"),
	}}
	job := newPendingExpiryJob(t, &fakePendingOrders{orders: []models.Order{stale, raced, refundFails, fresh}}, canceler)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(canceler.canceled) != 2 || canceler.canceled[0] != stale.ID || canceler.canceled[1] != refundFails.ID {
		t.Fatalf("unexpected cancellations %v", canceler.canceled)
	}
}

func TestPendingOrderExpiryJobReportsUnexpectedFailures(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	order := pendingOrder(now.Add(-100 * time.Hour))
	canceler := &failingCanceler{err: errors.New("db down")}
	job := newPendingExpiryJob(t, &fakePendingOrders{orders: []models.Order{order}}, canceler)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected cancellation failure to surface")
	}
}

type failingCanceler struct{ err error }

func (f *failingCanceler) CancelOrder(context.Context, *models.Order, string, bool) error {
	return f.err
}

func newPendingExpiryJob(t *testing.T, reader pendingOrderReader, canceler orderCanceler) *pendingOrderExpiryJob {
	t.Helper()
	jobIface, err := NewPendingOrderExpiryJob(PendingOrderExpiryJobParams{
		Logger:   testLogger(),
		Orders:   reader,
		Canceler: canceler,
	})
	if err != nil {
		t.Fatalf("NewPendingOrderExpiryJob: %v", err)
	}
	return jobIface.(*pendingOrderExpiryJob)
}

func pendingOrder(updatedAt time.Time) models.Order {
	return models.Order{
		ID:              uuid.New(),
		Status:          enums.OrderStatusPending,
		StatusUpdatedAt: updatedAt,
	}
}
