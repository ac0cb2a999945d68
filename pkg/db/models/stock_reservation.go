package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockReservation is a time-bounded hold against a product's available stock.
// It counts as held only while Consumed is false and ExpiresAt is in the future.
type StockReservation struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	Quantity   int        `gorm:"column:quantity;not null"`
	ReservedBy *uuid.UUID `gorm:"column:reserved_by;type:uuid"`
	SessionID  string     `gorm:"column:session_id;not null"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null"`
	Consumed   bool       `gorm:"column:consumed;not null;default:false"`
	OrderID    *uuid.UUID `gorm:"column:order_id;type:uuid"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *StockReservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the reservation still holds stock at now.
func (r StockReservation) IsActive(now time.Time) bool {
	return !r.Consumed && r.ExpiresAt.After(now)
}
