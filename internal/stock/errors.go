package stock

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/stockengine/pkg/errors"
)

// InsufficientStockError reports a request larger than the product can cover.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// ProductNotFoundError reports an unknown product id.
type ProductNotFoundError struct {
	ProductID uuid.UUID
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ReservationProblem names why a reservation could not be terminated.
type ReservationProblem string

const (
	ReservationMissing  ReservationProblem = "not_found"
	ReservationConsumed ReservationProblem = "already_consumed"
	ReservationExpired  ReservationProblem = "expired"
)

// ReservationError reports a missing, consumed or expired reservation.
type ReservationError struct {
	ReservationID uuid.UUID
	Problem       ReservationProblem
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("reservation %s: %s", e.ReservationID, e.Problem)
}

func insufficientStock(productID uuid.UUID, available, requested int) error {
	typed := &InsufficientStockError{ProductID: productID, Available: available, Requested: requested}
	return pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, typed, typed.Error()).
		WithDetails(map[string]any{
			"product_id": productID,
			"available":  available,
			"requested":  requested,
		})
}

func productNotFound(productID uuid.UUID) error {
	typed := &ProductNotFoundError{ProductID: productID}
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, typed, typed.Error())
}

func reservationFailure(reservationID uuid.UUID, problem ReservationProblem) error {
	typed := &ReservationError{ReservationID: reservationID, Problem: problem}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, typed, typed.Error()).
		WithDetails(map[string]any{
			"reservation_id": reservationID,
			"problem":        problem,
		})
}

func invalidQuantity(quantity int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be positive, got %d", quantity)).
		WithDetails(map[string]any{"quantity": quantity})
}

// dependency wraps storage failures; coded errors pass through untouched.
func dependency(err error, msg string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
