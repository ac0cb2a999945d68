package orders

import (
	"context"

	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
)

// StatusChange describes one committed status transition.
type StatusChange struct {
	Order *models.Order
	Old   enums.OrderStatus
	New   enums.OrderStatus
}

// StatusEmitter receives every committed status transition exactly once,
// synchronously, after the transaction commits.
type StatusEmitter interface {
	Emit(ctx context.Context, change StatusChange) error
}
