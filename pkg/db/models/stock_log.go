package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockengine/pkg/enums"
)

// ErrStockLogImmutable is returned when a caller tries to update a ledger row.
var ErrStockLogImmutable = errors.New("stock log rows are append-only")

// StockLog is one append-only audit row per successful stock mutation.
// ID is a sequence so rows for a product replay in commit order.
type StockLog struct {
	ID            int64                `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID     uuid.UUID            `gorm:"column:product_id;type:uuid;not null"`
	OperationType enums.StockOperation `gorm:"column:operation_type;not null"`
	QuantityDelta int                  `gorm:"column:quantity_delta;not null"`
	StockBefore   int                  `gorm:"column:stock_before;not null"`
	StockAfter    int                  `gorm:"column:stock_after;not null"`
	Reason        string               `gorm:"column:reason;not null"`
	OrderID       *uuid.UUID           `gorm:"column:order_id;type:uuid"`
	PerformedBy   *uuid.UUID           `gorm:"column:performed_by;type:uuid"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectiveDelta is the change the row applies to physical stock.
func (l StockLog) EffectiveDelta() int {
	if l.OperationType.ChangesPhysicalStock() {
		return l.QuantityDelta
	}
	return 0
}

// Validate checks the audit identity stock_after = stock_before + effective delta.
func (l StockLog) Validate() error {
	if !l.OperationType.IsValid() {
		return fmt.Errorf("stock log: invalid operation %q", l.OperationType)
	}
	if l.StockAfter < 0 {
		return fmt.Errorf("stock log: stock_after %d is negative", l.StockAfter)
	}
	if want := l.StockBefore + l.EffectiveDelta(); l.StockAfter != want {
		return fmt.Errorf("stock log: %s stock_after %d, expected %d", l.OperationType, l.StockAfter, want)
	}
	return nil
}

func (l *StockLog) BeforeCreate(*gorm.DB) error {
	return l.Validate()
}

func (l *StockLog) BeforeUpdate(*gorm.DB) error {
	return ErrStockLogImmutable
}
