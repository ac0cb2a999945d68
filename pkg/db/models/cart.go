package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart groups the line items a session intends to buy.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	SessionID string     `gorm:"column:session_id;not null"`
	UserID    *uuid.UUID `gorm:"column:user_id;type:uuid"`
	ClearedAt *time.Time `gorm:"column:cleared_at"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
