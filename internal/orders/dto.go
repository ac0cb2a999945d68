package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
	"github.com/angelmondragon/stockengine/pkg/types"
)

// CreateOrderInput carries everything needed to turn a cart into an order.
type CreateOrderInput struct {
	Cart            *models.Cart  `json:"cart" validate:"required"`
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
	PaymentIntentID string        `json:"payment_intent_id" validate:"required"`
	PayWay          enums.PayWay  `json:"pay_way" validate:"required,oneof=card bank_transfer wallet"`
	UserID          *uuid.UUID    `json:"user_id,omitempty"`
}

// CartIssue is one finding from cart validation. Available and Requested are
// set for stock problems.
type CartIssue struct {
	ProductID uuid.UUID `json:"product_id"`
	Message   string    `json:"message"`
	Available int       `json:"available,omitempty"`
	Requested int       `json:"requested,omitempty"`
}

// PriceWarning flags a cart line whose captured price no longer matches the catalog.
type PriceWarning struct {
	ProductID         uuid.UUID `json:"product_id"`
	CartPriceCents    int       `json:"cart_price_cents"`
	CurrentPriceCents int       `json:"current_price_cents"`
}

// CartValidation is the advisory result of ValidateCartForCheckout.
type CartValidation struct {
	Valid         bool           `json:"valid"`
	Errors        []CartIssue    `json:"errors"`
	Warnings      []CartIssue    `json:"warnings"`
	PriceWarnings []PriceWarning `json:"price_warnings"`
}
