package orders

import "github.com/angelmondragon/stockengine/pkg/enums"

// transitions lists the statuses each status may move to. Terminal statuses
// map to nothing.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusCanceled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCanceled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusReturned},
	enums.OrderStatusDelivered:  {enums.OrderStatusCompleted, enums.OrderStatusReturned},
	enums.OrderStatusReturned:   {enums.OrderStatusRefunded},
	enums.OrderStatusCompleted:  {},
	enums.OrderStatusCanceled:   {},
	enums.OrderStatusRefunded:   {},
}

// AllowedTransitions returns the statuses reachable from current in one step.
func AllowedTransitions(current enums.OrderStatus) []enums.OrderStatus {
	next := transitions[current]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether current may move to next.
func CanTransition(current, next enums.OrderStatus) bool {
	for _, candidate := range transitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
