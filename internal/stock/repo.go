package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockengine/internal/repo"
	"github.com/angelmondragon/stockengine/pkg/db/models"
)

// repository owns the stock_reservations and stock_logs tables.
type repository struct {
	repo.Base
}

func newRepository(db *gorm.DB) *repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) heldQuantity(ctx context.Context, productID uuid.UUID, now time.Time) (int, error) {
	var held int
	err := r.DB(ctx).
		Model(&models.StockReservation{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("product_id = ? AND consumed = ? AND expires_at > ?", productID, false, now).
		Scan(&held).Error
	return held, err
}

func (r *repository) createReservation(ctx context.Context, reservation *models.StockReservation) error {
	return r.DB(ctx).Create(reservation).Error
}

func (r *repository) findReservation(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	var reservation models.StockReservation
	if err := r.DB(ctx).First(&reservation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) findReservationForUpdate(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	var reservation models.StockReservation
	if err := r.Locked(ctx).First(&reservation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// consume flips consumed to true. It reports false when another writer got
// there first.
func (r *repository) consume(ctx context.Context, id uuid.UUID, orderID *uuid.UUID) (bool, error) {
	updates := map[string]any{"consumed": true}
	if orderID != nil {
		updates["order_id"] = *orderID
	}
	res := r.DB(ctx).
		Model(&models.StockReservation{}).
		Where("id = ? AND consumed = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) sessionReservations(ctx context.Context, sessionID string, productID uuid.UUID, now time.Time) ([]models.StockReservation, error) {
	var reservations []models.StockReservation
	err := r.DB(ctx).
		Where("session_id = ? AND product_id = ? AND consumed = ? AND expires_at > ?", sessionID, productID, false, now).
		Order("created_at ASC").
		Order("id ASC").
		Find(&reservations).Error
	return reservations, err
}

// expiredAfter pages through unconsumed, expired reservations by id.
func (r *repository) expiredAfter(ctx context.Context, now time.Time, afterID uuid.UUID, limit int) ([]models.StockReservation, error) {
	var reservations []models.StockReservation
	err := r.DB(ctx).
		Where("consumed = ? AND expires_at <= ? AND id > ?", false, now, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&reservations).Error
	return reservations, err
}

func (r *repository) insertLog(ctx context.Context, entry *models.StockLog) error {
	return r.DB(ctx).Create(entry).Error
}

func (r *repository) logsByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockLog, error) {
	var logs []models.StockLog
	err := r.DB(ctx).
		Where("product_id = ?", productID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}

func (r *repository) logsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockLog, error) {
	var logs []models.StockLog
	err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}
