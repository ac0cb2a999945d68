package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockengine/pkg/errors"
)

// InvalidStatusTransitionError is returned when the state machine has no edge
// from Current to Requested.
type InvalidStatusTransitionError struct {
	Current   enums.OrderStatus
	Requested enums.OrderStatus
	Allowed   []enums.OrderStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, status := range e.Allowed {
		allowed = append(allowed, status.String())
	}
	return fmt.Sprintf("cannot move order from %s to %s (allowed: [%s])", e.Current, e.Requested, strings.Join(allowed, ", "))
}

// OrderCancellationError is returned when an order can no longer be canceled.
type OrderCancellationError struct {
	OrderID uuid.UUID
	Reason  string
}

func (e *OrderCancellationError) Error() string {
	return fmt.Sprintf("order %s cannot be canceled: %s", e.OrderID, e.Reason)
}

func invalidTransition(current, requested enums.OrderStatus) error {
	typed := &InvalidStatusTransitionError{
		Current:   current,
		Requested: requested,
		Allowed:   AllowedTransitions(current),
	}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, typed, "invalid order status transition").WithDetails(map[string]any{
		"current":   current,
		"requested": requested,
		"allowed":   typed.Allowed,
	})
}

func cancellationRefused(orderID uuid.UUID, status enums.OrderStatus) error {
	typed := &OrderCancellationError{
		OrderID: orderID,
		Reason:  fmt.Sprintf("status %s does not allow cancellation", status),
	}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, typed, "order cannot be canceled").WithDetails(map[string]any{
		"order_id": orderID,
		"status":   status,
	})
}

// dependency wraps uncoded errors; coded errors pass through untouched.
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
