package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// CartSnapshotLine freezes one cart line at the moment an order was created.
type CartSnapshotLine struct {
	ProductID      uuid.UUID `json:"product_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
	Position       int       `json:"position"`
}

// OrderMetadata is the orders.metadata JSONB bag.
type OrderMetadata struct {
	CartSnapshot        []CartSnapshotLine `json:"cart_snapshot,omitempty"`
	StockReservationIDs []uuid.UUID        `json:"stock_reservation_ids,omitempty"`
	CancelReason        string             `json:"cancel_reason,omitempty"`
}

// Value marshals the metadata into JSON.
func (m OrderMetadata) Value() (driver.Value, error) {
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the metadata.
func (m *OrderMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = OrderMetadata{}
		return nil
	}
	raw, ok := toBytes(value)
	if !ok {
		return fmt.Errorf("order metadata: unsupported scan type %T", value)
	}
	var decoded OrderMetadata
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("order metadata: %w", err)
	}
	*m = decoded
	return nil
}
