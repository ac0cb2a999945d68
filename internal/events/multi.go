package events

import (
	"context"

	"go.uber.org/multierr"

	"github.com/angelmondragon/stockengine/internal/orders"
)

// Multi fans a status change out to every emitter. All emitters run even when
// one fails; the failures come back combined.
type Multi []orders.StatusEmitter

func (m Multi) Emit(ctx context.Context, change orders.StatusChange) error {
	var err error
	for _, emitter := range m {
		if emitter == nil {
			continue
		}
		err = multierr.Append(err, emitter.Emit(ctx, change))
	}
	return err
}
