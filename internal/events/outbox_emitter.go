package events

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/stockengine/internal/orders"
	"github.com/angelmondragon/stockengine/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxEmitter records status changes in outbox_events. The write uses its
// own transaction because emission happens after the order commit.
type OutboxEmitter struct {
	tx     txRunner
	outbox *outbox.Service
}

// NewOutboxEmitter builds an emitter backed by the outbox service.
func NewOutboxEmitter(tx txRunner, svc *outbox.Service) (*OutboxEmitter, error) {
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if svc == nil {
		return nil, errors.New("outbox service required")
	}
	return &OutboxEmitter{tx: tx, outbox: svc}, nil
}

func (e *OutboxEmitter) Emit(ctx context.Context, change orders.StatusChange) error {
	if change.Order == nil {
		return errors.New("status change without order")
	}
	return e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return e.outbox.Emit(ctx, tx, domainEvent(change))
	})
}
