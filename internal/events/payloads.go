package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockengine/internal/orders"
	"github.com/angelmondragon/stockengine/pkg/enums"
	"github.com/angelmondragon/stockengine/pkg/outbox"
)

// OrderStatusChangedEvent is the data carried by order_status_changed events.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	UserID    *uuid.UUID        `json:"user_id,omitempty"`
	OldStatus enums.OrderStatus `json:"old_status"`
	NewStatus enums.OrderStatus `json:"new_status"`
	ChangedAt time.Time         `json:"changed_at"`
	PaymentID string            `json:"payment_id,omitempty"`
}

func domainEvent(change orders.StatusChange) outbox.DomainEvent {
	order := change.Order
	var actor *outbox.ActorRef
	if order.UserID != nil {
		actor = &outbox.ActorRef{UserID: *order.UserID}
	}
	changedAt := order.StatusUpdatedAt
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Version:       1,
		OccurredAt:    changedAt,
		Data: OrderStatusChangedEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			OldStatus: change.Old,
			NewStatus: change.New,
			ChangedAt: changedAt,
			PaymentID: order.PaymentID,
		},
	}
}
