package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockengine/internal/products"
	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockengine/pkg/errors"
	"github.com/angelmondragon/stockengine/pkg/logger"
	"github.com/angelmondragon/stockengine/pkg/metrics"
)

const (
	DefaultReservationTTL   = 15 * time.Minute
	defaultCleanupBatchSize = 200
)

// Reasons written to stock_logs.reason.
const (
	ReasonReservationCreated   = "reservation_created"
	ReasonReservationReleased  = "reservation_released"
	ReasonReservationExpired   = "reservation_expired"
	ReasonReservationConverted = "reservation_converted"
	ReasonOrderCreated         = "order_created"
	ReasonOrderCanceled        = "order_canceled"
	ReasonStockRestored        = "stock_restored"
)

// ManagerParams configure the stock manager.
type ManagerParams struct {
	DB               *gorm.DB
	Logger           *logger.Logger
	Metrics          *metrics.StockMetrics
	ReservationTTL   time.Duration
	CleanupBatchSize int
}

// Manager is the only writer of products.stock and stock_reservations.consumed.
// Every mutating call runs in its own transaction that starts by locking the
// product row, so writers for one product queue behind each other while
// different products never contend. Locks are always taken product first,
// reservation second.
type Manager struct {
	db        *gorm.DB
	logg      *logger.Logger
	metrics   *metrics.StockMetrics
	ttl       time.Duration
	batchSize int
	now       func() time.Time
	// bound is set on managers returned by WithTx
	bound bool
}

// NewManager builds a stock manager.
func NewManager(params ManagerParams) (*Manager, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.ReservationTTL
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	batch := params.CleanupBatchSize
	if batch <= 0 {
		batch = defaultCleanupBatchSize
	}
	return &Manager{
		db:        params.DB,
		logg:      params.Logger,
		metrics:   params.Metrics,
		ttl:       ttl,
		batchSize: batch,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithTx binds the manager to a caller's transaction. Each operation then runs
// in a savepoint, and nothing commits until the caller's transaction does.
func (m *Manager) WithTx(tx *gorm.DB) *Manager {
	clone := *m
	clone.db = tx
	clone.bound = true
	return &clone
}

// ReserveInput describes a soft hold request.
type ReserveInput struct {
	ProductID uuid.UUID
	Quantity  int
	SessionID string
	UserID    *uuid.UUID
}

// ReserveStock places a hold of Quantity units for the session. Physical stock
// is left alone; the hold counts against availability until it expires or is
// terminated.
func (m *Manager) ReserveStock(ctx context.Context, input ReserveInput) (*models.StockReservation, error) {
	if input.Quantity <= 0 {
		return nil, m.finish(ctx, "reserve", invalidQuantity(input.Quantity))
	}
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return nil, m.finish(ctx, "reserve", pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
	}

	var reservation *models.StockReservation
	err := m.inTx(ctx, func(catalog *products.Repository, ledger *repository) error {
		product, err := lockProduct(ctx, catalog, input.ProductID)
		if err != nil {
			return err
		}
		now := m.now()
		held, err := ledger.heldQuantity(ctx, product.ID, now)
		if err != nil {
			return dependency(err, "sum active reservations")
		}
		available := product.Stock - held
		if available < input.Quantity {
			return insufficientStock(product.ID, available, input.Quantity)
		}

		reservation = &models.StockReservation{
			ProductID:  product.ID,
			Quantity:   input.Quantity,
			ReservedBy: input.UserID,
			SessionID:  sessionID,
			ExpiresAt:  now.Add(m.ttl),
		}
		if err := ledger.createReservation(ctx, reservation); err != nil {
			return dependency(err, "create reservation")
		}
		return writeLog(ctx, ledger, &models.StockLog{
			ProductID:     product.ID,
			OperationType: enums.StockOperationReserve,
			QuantityDelta: -input.Quantity,
			StockBefore:   product.Stock,
			StockAfter:    product.Stock,
			Reason:        ReasonReservationCreated,
			PerformedBy:   input.UserID,
		})
	})
	if err := m.finish(ctx, "reserve", err); err != nil {
		return nil, err
	}
	return reservation, nil
}

// ReleaseReservation gives a hold back without touching physical stock. A
// reservation can be released once; any later call fails.
func (m *Manager) ReleaseReservation(ctx context.Context, reservationID uuid.UUID) error {
	err := m.inTx(ctx, func(catalog *products.Repository, ledger *repository) error {
		reservation, product, err := lockReservation(ctx, catalog, ledger, reservationID)
		if err != nil {
			return err
		}
		if reservation.Consumed {
			return reservationFailure(reservation.ID, ReservationConsumed)
		}
		if err := consume(ctx, ledger, reservation.ID, nil); err != nil {
			return err
		}
		return writeLog(ctx, ledger, &models.StockLog{
			ProductID:     product.ID,
			OperationType: enums.StockOperationRelease,
			QuantityDelta: reservation.Quantity,
			StockBefore:   product.Stock,
			StockAfter:    product.Stock,
			Reason:        ReasonReservationReleased,
			PerformedBy:   reservation.ReservedBy,
		})
	})
	return m.finish(ctx, "release", err)
}

// ConvertReservationToSale turns an active hold into a permanent decrement tied
// to the order. The decrement and the consumption commit together or not at all.
func (m *Manager) ConvertReservationToSale(ctx context.Context, reservationID, orderID uuid.UUID) error {
	err := m.inTx(ctx, func(catalog *products.Repository, ledger *repository) error {
		reservation, product, err := lockReservation(ctx, catalog, ledger, reservationID)
		if err != nil {
			return err
		}
		if reservation.Consumed {
			return reservationFailure(reservation.ID, ReservationConsumed)
		}
		if !reservation.ExpiresAt.After(m.now()) {
			return reservationFailure(reservation.ID, ReservationExpired)
		}
		// stock can be edited out of band after the hold was placed
		if product.Stock < reservation.Quantity {
			return insufficientStock(product.ID, product.Stock, reservation.Quantity)
		}

		after := product.Stock - reservation.Quantity
		if err := catalog.UpdateStock(ctx, product.ID, after); err != nil {
			return dependency(err, "update product stock")
		}
		if err := consume(ctx, ledger, reservation.ID, &orderID); err != nil {
			return err
		}
		return writeLog(ctx, ledger, &models.StockLog{
			ProductID:     product.ID,
			OperationType: enums.StockOperationDecrement,
			QuantityDelta: -reservation.Quantity,
			StockBefore:   product.Stock,
			StockAfter:    after,
			Reason:        ReasonReservationConverted,
			OrderID:       &orderID,
			PerformedBy:   reservation.ReservedBy,
		})
	})
	return m.finish(ctx, "convert", err)
}

// DecrementInput describes a direct sale that skipped the reservation step.
type DecrementInput struct {
	ProductID   uuid.UUID
	Quantity    int
	OrderID     *uuid.UUID
	Reason      string
	PerformedBy *uuid.UUID
}

// DecrementStock removes Quantity units of physical stock.
func (m *Manager) DecrementStock(ctx context.Context, input DecrementInput) error {
	if input.Quantity <= 0 {
		return m.finish(ctx, "decrement", invalidQuantity(input.Quantity))
	}
	reason := input.Reason
	if reason == "" {
		reason = ReasonOrderCreated
	}
	err := m.inTx(ctx, func(catalog *products.Repository, ledger *repository) error {
		product, err := lockProduct(ctx, catalog, input.ProductID)
		if err != nil {
			return err
		}
		if product.Stock < input.Quantity {
			return insufficientStock(product.ID, product.Stock, input.Quantity)
		}
		after := product.Stock - input.Quantity
		if err := catalog.UpdateStock(ctx, product.ID, after); err != nil {
			return dependency(err, "update product stock")
		}
		return writeLog(ctx, ledger, &models.StockLog{
			ProductID:     product.ID,
			OperationType: enums.StockOperationDecrement,
			QuantityDelta: -input.Quantity,
			StockBefore:   product.Stock,
			StockAfter:    after,
			Reason:        reason,
			OrderID:       input.OrderID,
			PerformedBy:   input.PerformedBy,
		})
	})
	return m.finish(ctx, "decrement", err)
}

// IncrementInput describes stock coming back (cancellation, return, restock).
type IncrementInput struct {
	ProductID   uuid.UUID
	Quantity    int
	OrderID     *uuid.UUID
	Reason      string
	PerformedBy *uuid.UUID
}

// IncrementStock adds Quantity units of physical stock. There is no upper bound.
func (m *Manager) IncrementStock(ctx context.Context, input IncrementInput) error {
	if input.Quantity <= 0 {
		return m.finish(ctx, "increment", invalidQuantity(input.Quantity))
	}
	reason := input.Reason
	if reason == "" {
		reason = ReasonStockRestored
	}
	err := m.inTx(ctx, func(catalog *products.Repository, ledger *repository) error {
		product, err := lockProduct(ctx, catalog, input.ProductID)
		if err != nil {
			return err
		}
		after := product.Stock + input.Quantity
		if err := catalog.UpdateStock(ctx, product.ID, after); err != nil {
			return dependency(err, "update product stock")
		}
		return writeLog(ctx, ledger, &models.StockLog{
			ProductID:     product.ID,
			OperationType: enums.StockOperationIncrement,
			QuantityDelta: input.Quantity,
			StockBefore:   product.Stock,
			StockAfter:    after,
			Reason:        reason,
			OrderID:       input.OrderID,
			PerformedBy:   input.PerformedBy,
		})
	})
	return m.finish(ctx, "increment", err)
}

// GetAvailableStock returns physical stock minus active holds. The read takes
// no lock and may be stale by the time it returns; only the mutating calls
// decide.
func (m *Manager) GetAvailableStock(ctx context.Context, productID uuid.UUID) (int, error) {
	db := m.db.WithContext(ctx)
	product, err := products.NewRepository(db).FindByID(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return 0, productNotFound(productID)
		}
		return 0, dependency(err, "load product")
	}
	held, err := newRepository(db).heldQuantity(ctx, productID, m.now())
	if err != nil {
		return 0, dependency(err, "sum active reservations")
	}
	return product.Stock - held, nil
}

// SessionReservations lists the session's active holds on a product, oldest first.
func (m *Manager) SessionReservations(ctx context.Context, sessionID string, productID uuid.UUID) ([]models.StockReservation, error) {
	reservations, err := newRepository(m.db.WithContext(ctx)).sessionReservations(ctx, sessionID, productID, m.now())
	if err != nil {
		return nil, dependency(err, "list session reservations")
	}
	return reservations, nil
}

func (m *Manager) inTx(ctx context.Context, fn func(catalog *products.Repository, ledger *repository) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(products.NewRepository(tx), newRepository(tx))
	})
}

// finish records the outcome and normalizes the error returned to callers.
func (m *Manager) finish(ctx context.Context, op string, err error) error {
	if err == nil {
		m.count(op, metrics.OutcomeOK)
		return nil
	}
	err = dependency(err, op+" stock")
	switch pkgerrors.As(err).Code() {
	case pkgerrors.CodeInsufficientStock:
		m.count(op, metrics.OutcomeInsufficient)
	case pkgerrors.CodeDependency, pkgerrors.CodeInternal:
		m.count(op, metrics.OutcomeError)
		logCtx := m.logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		m.logg.Error(m.logg.WithField(logCtx, "operation", op), "stock operation failed", err)
	default:
		m.count(op, metrics.OutcomeRejected)
	}
	return err
}

// count skips operations bound to a caller's transaction; their outcome is
// only known once the caller commits.
func (m *Manager) count(op, outcome string) {
	if m.bound {
		return
	}
	m.metrics.IncOperation(op, outcome)
}

func lockProduct(ctx context.Context, catalog *products.Repository, productID uuid.UUID) (*models.Product, error) {
	product, err := catalog.FindForUpdate(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return nil, productNotFound(productID)
		}
		return nil, dependency(err, "lock product")
	}
	return product, nil
}

// lockReservation reads the reservation to learn its product, locks the
// product row, then locks and re-reads the reservation.
func lockReservation(ctx context.Context, catalog *products.Repository, ledger *repository, reservationID uuid.UUID) (*models.StockReservation, *models.Product, error) {
	peek, err := ledger.findReservation(ctx, reservationID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, reservationFailure(reservationID, ReservationMissing)
		}
		return nil, nil, dependency(err, "load reservation")
	}
	product, err := lockProduct(ctx, catalog, peek.ProductID)
	if err != nil {
		return nil, nil, err
	}
	reservation, err := ledger.findReservationForUpdate(ctx, reservationID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, reservationFailure(reservationID, ReservationMissing)
		}
		return nil, nil, dependency(err, "lock reservation")
	}
	return reservation, product, nil
}

func consume(ctx context.Context, ledger *repository, reservationID uuid.UUID, orderID *uuid.UUID) error {
	ok, err := ledger.consume(ctx, reservationID, orderID)
	if err != nil {
		return dependency(err, "consume reservation")
	}
	if !ok {
		return reservationFailure(reservationID, ReservationConsumed)
	}
	return nil
}

func writeLog(ctx context.Context, ledger *repository, entry *models.StockLog) error {
	if err := entry.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stock log rejected")
	}
	return dependency(ledger.insertLog(ctx, entry), "insert stock log")
}
