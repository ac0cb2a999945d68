package orders

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockengine/internal/cart"
	"github.com/angelmondragon/stockengine/internal/stock"
	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockengine/pkg/errors"
	"github.com/angelmondragon/stockengine/pkg/logger"
	"github.com/angelmondragon/stockengine/pkg/types"
)

const (
	defaultLowStockThreshold     = 5
	defaultValidationConcurrency = 4
)

// Service drives orders through their lifecycle and ties them to stock.
type Service interface {
	UpdateOrderStatus(ctx context.Context, order *models.Order, next enums.OrderStatus) error
	CreateOrderFromCart(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	CancelOrder(ctx context.Context, order *models.Order, reason string, refundPayment bool) error
	ValidateCartForCheckout(ctx context.Context, cart *models.Cart) CartValidation
}

// ServiceParams wire the order service collaborators.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Stock    *stock.Manager
	Catalog  productReader
	Carts    *cart.Repository
	Payments PaymentVerifier
	Refunds  PaymentRefunder
	Emitter  StatusEmitter
	Logger   *logger.Logger

	LowStockThreshold     int
	ValidationConcurrency int
}

type service struct {
	repo        Repository
	tx          txRunner
	stock       *stock.Manager
	catalog     productReader
	carts       *cart.Repository
	payments    PaymentVerifier
	refunds     PaymentRefunder
	emitter     StatusEmitter
	logg        *logger.Logger
	validate    *validator.Validate
	lowStock    int
	concurrency int
	now         func() time.Time
}

// NewService builds an order service with the required dependencies. The
// refunder and emitter are optional.
func NewService(params ServiceParams) (Service, error) {
	return newService(params)
}

func newService(params ServiceParams) (*service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock manager required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment verifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	lowStock := params.LowStockThreshold
	if lowStock <= 0 {
		lowStock = defaultLowStockThreshold
	}
	concurrency := params.ValidationConcurrency
	if concurrency <= 0 {
		concurrency = defaultValidationConcurrency
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		stock:       params.Stock,
		catalog:     params.Catalog,
		carts:       params.Carts,
		payments:    params.Payments,
		refunds:     params.Refunds,
		emitter:     params.Emitter,
		logg:        params.Logger,
		validate:    newValidator(),
		lowStock:    lowStock,
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// UpdateOrderStatus applies one state machine transition. On an illegal move
// the order is left untouched. On success the emitter sees the change once,
// after commit; an emitter failure is logged and the transition stands.
func (s *service) UpdateOrderStatus(ctx context.Context, order *models.Order, next enums.OrderStatus) error {
	if order == nil || order.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !next.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").WithDetails(map[string]any{"status": next})
	}
	if !CanTransition(order.Status, next) {
		return invalidTransition(order.Status, next)
	}

	old := order.Status
	at := s.now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.moveStatus(ctx, s.repo.WithTx(tx), order.ID, old, next, at)
	})
	if err != nil {
		return s.failed(ctx, "update order status", err)
	}

	order.Status = next
	order.StatusUpdatedAt = at
	s.emit(ctx, order, old, next)
	return nil
}

// CreateOrderFromCart verifies the payment, then in one transaction converts
// the session's holds (oldest first), decrements whatever the holds did not
// cover, writes the order and clears the cart. Any failure rolls all of it back.
func (s *service) CreateOrderFromCart(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	if err := s.payments.VerifyPayment(ctx, input.PaymentIntentID); err != nil {
		return nil, err
	}

	cartModel := input.Cart
	lines := sortedLines(cartModel.Items)
	now := s.now()
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          input.UserID,
		Status:          enums.OrderStatusPending,
		StatusUpdatedAt: now,
		PaymentID:       input.PaymentIntentID,
		PayWay:          input.PayWay,
		ShippingAddress: input.ShippingAddress,
		Metadata:        types.OrderMetadata{CartSnapshot: snapshot(cartModel.Items)},
		Items:           orderItems(cartModel.Items),
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return dependency(err, "create order")
		}

		stockTx := s.stock.WithTx(tx)
		var reservationIDs []uuid.UUID
		for _, line := range lines {
			converted, err := s.allocateLine(ctx, stockTx, cartModel.SessionID, order.ID, line, input.UserID)
			if err != nil {
				return err
			}
			reservationIDs = append(reservationIDs, converted...)
		}

		order.Metadata.StockReservationIDs = reservationIDs
		if err := repo.UpdateMetadata(ctx, order.ID, order.Metadata); err != nil {
			return dependency(err, "store order metadata")
		}
		if err := s.carts.WithTx(tx).Clear(ctx, cartModel.ID, now); err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return dependency(err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return nil, s.failed(ctx, "create order", err)
	}

	s.logg.Info(s.logg.WithField(ctx, "items", len(order.Items)), "order created from cart")
	return order, nil
}

// allocateLine covers one cart line from the session's holds and decrements
// the remainder. Holds larger than what is still needed are released so they
// stop counting against availability.
func (s *service) allocateLine(ctx context.Context, stockTx *stock.Manager, sessionID string, orderID uuid.UUID, line models.CartItem, userID *uuid.UUID) ([]uuid.UUID, error) {
	holds, err := stockTx.SessionReservations(ctx, sessionID, line.ProductID)
	if err != nil {
		return nil, err
	}

	remaining := line.Quantity
	var converted []uuid.UUID
	for _, hold := range holds {
		if hold.Quantity > remaining {
			if err := stockTx.ReleaseReservation(ctx, hold.ID); err != nil {
				return nil, err
			}
			continue
		}
		if err := stockTx.ConvertReservationToSale(ctx, hold.ID, orderID); err != nil {
			return nil, err
		}
		converted = append(converted, hold.ID)
		remaining -= hold.Quantity
	}

	if remaining > 0 {
		err := stockTx.DecrementStock(ctx, stock.DecrementInput{
			ProductID:   line.ProductID,
			Quantity:    remaining,
			OrderID:     &orderID,
			Reason:      stock.ReasonOrderCreated,
			PerformedBy: userID,
		})
		if err != nil {
			return nil, err
		}
	}
	return converted, nil
}

// CancelOrder restores every unit the order still holds, moves it to canceled
// and records the reason, all in one transaction. The refund runs after
// commit; a refund failure is returned but does not undo the cancellation.
func (s *service) CancelOrder(ctx context.Context, order *models.Order, reason string, refundPayment bool) error {
	if order == nil || order.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !CanTransition(order.Status, enums.OrderStatusCanceled) {
		return cancellationRefused(order.ID, order.Status)
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	old := order.Status
	at := s.now()
	metadata := order.Metadata
	metadata.CancelReason = reason

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// the conditional status write serializes concurrent cancellations
		if err := s.moveStatus(ctx, repo, order.ID, old, enums.OrderStatusCanceled, at); err != nil {
			return err
		}

		stockTx := s.stock.WithTx(tx)
		outstanding, err := stockTx.OutstandingByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		for _, line := range outstanding {
			err := stockTx.IncrementStock(ctx, stock.IncrementInput{
				ProductID:   line.ProductID,
				Quantity:    line.Quantity,
				OrderID:     &order.ID,
				Reason:      stock.ReasonOrderCanceled,
				PerformedBy: order.UserID,
			})
			if err != nil {
				return err
			}
		}

		if err := repo.UpdateMetadata(ctx, order.ID, metadata); err != nil {
			return dependency(err, "store cancel reason")
		}
		return nil
	})
	if err != nil {
		return s.failed(ctx, "cancel order", err)
	}

	order.Status = enums.OrderStatusCanceled
	order.StatusUpdatedAt = at
	order.Metadata = metadata
	s.emit(ctx, order, old, enums.OrderStatusCanceled)

	if !refundPayment {
		return nil
	}
	if s.refunds == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "refunds are not configured")
	}
	if err := s.refunds.RefundPayment(ctx, order.PaymentID); err != nil {
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund payment")
		}
		return s.failed(ctx, "refund after cancellation", err)
	}
	return nil
}

func (s *service) moveStatus(ctx context.Context, repo Repository, orderID uuid.UUID, from, to enums.OrderStatus, at time.Time) error {
	ok, err := repo.UpdateStatus(ctx, orderID, from, to, at)
	if err != nil {
		return dependency(err, "update order status")
	}
	if ok {
		return nil
	}
	if _, err := repo.FindByID(ctx, orderID); err != nil {
		if isNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return dependency(err, "load order")
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently").WithDetails(map[string]any{
		"order_id": orderID,
		"expected": from,
	})
}

// failed logs infrastructure failures with their database diagnostics and
// returns err with uncoded causes marked as dependency failures.
func (s *service) failed(ctx context.Context, op string, err error) error {
	err = dependency(err, op)
	switch pkgerrors.As(err).Code() {
	case pkgerrors.CodeDependency, pkgerrors.CodeInternal:
		logCtx := s.logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		s.logg.Error(s.logg.WithField(logCtx, "operation", op), op+" failed", err)
	}
	return err
}

func (s *service) emit(ctx context.Context, order *models.Order, old, next enums.OrderStatus) {
	if s.emitter == nil {
		return
	}
	change := StatusChange{Order: order, Old: old, New: next}
	if err := s.emitter.Emit(ctx, change); err != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"old_status": old,
			"new_status": next,
		})
		logCtx = s.logg.WithFields(logCtx, pkgerrors.Dump(err).Fields())
		s.logg.Error(logCtx, "order status emit failed", err)
	}
}

func (s *service) validateInput(input CreateOrderInput) error {
	if err := s.validate.Struct(input); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			details := map[string]string{}
			for _, fieldErr := range errs {
				details[fieldErr.Namespace()] = fieldErr.Tag()
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid order input").WithDetails(details)
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order input")
	}
	if len(input.Cart.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if strings.TrimSpace(input.Cart.SessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart session id is required")
	}
	for _, item := range input.Cart.Items {
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart item quantity must be positive").WithDetails(map[string]any{
				"product_id": item.ProductID,
				"quantity":   item.Quantity,
			})
		}
	}
	return nil
}

// sortedLines orders cart lines by product id so concurrent orders lock
// product rows in the same order.
func sortedLines(items []models.CartItem) []models.CartItem {
	lines := make([]models.CartItem, len(items))
	copy(lines, items)
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].ProductID.String() < lines[j].ProductID.String()
	})
	return lines
}

func snapshot(items []models.CartItem) []types.CartSnapshotLine {
	out := make([]types.CartSnapshotLine, 0, len(items))
	for _, item := range items {
		out = append(out, types.CartSnapshotLine{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			Position:       item.Position,
		})
	}
	return out
}

func orderItems(items []models.CartItem) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.OrderItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: item.UnitPriceCents,
			Position:   item.Position,
		})
	}
	return out
}
