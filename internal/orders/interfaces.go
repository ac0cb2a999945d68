package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
	"github.com/angelmondragon/stockengine/pkg/types"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, metadata types.OrderMetadata) error
	ListByStatus(ctx context.Context, status enums.OrderStatus, limit int) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PaymentVerifier confirms a payment intent exists and is in a usable state.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, paymentIntentID string) error
}

// PaymentRefunder returns the money for a canceled order.
type PaymentRefunder interface {
	RefundPayment(ctx context.Context, paymentIntentID string) error
}

type productReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}
