package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
)

func (r *GormRepo) LastOrderNumber(ctx context.Context, prefix string) (string, error) {
	var o models.Order
	err := r.DB.WithContext(ctx).
		Select("order_number").
		Where("order_number LIKE ?", prefix+"%").
		Order("LENGTH(order_number) DESC, order_number DESC").
		Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return o.OrderNumber, nil
}

func (r *GormRepo) CreateOrder(ctx context.Context, o *models.Order) error {
	return translate(r.DB.WithContext(ctx).Create(o).Error)
}

func (r *GormRepo) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := r.DB.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *GormRepo) ListOrdersByUser(ctx context.Context, userID uuid.UUID, offset, limit int) (int64, []models.Order, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var out []models.Order
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Preload("Items").Order("created_at DESC").Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return 0, nil, err
	}
	return total, out, nil
}

func (r *GormRepo) ListOrdersForProgression(ctx context.Context, status models.OrderStatus, cutoff time.Time, offset, limit int) ([]models.Order, error) {
	var out []models.Order
	err := r.DB.WithContext(ctx).
		Where("status = ? AND (status_updated_at IS NULL OR status_updated_at <= ?)", status, cutoff).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":            to,
			"status_updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepo) AppendStatusHistory(ctx context.Context, h *models.OrderStatusHistory) error {
	return r.DB.WithContext(ctx).Create(h).Error
}

func (r *GormRepo) ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var out []models.OrderStatusHistory
	if err := r.DB.WithContext(ctx).Where("order_id = ?", orderID).Order("changed_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepo) MarkPointsAwarded(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND points_awarded = ?", id, false).
		Update("points_awarded", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepo) SetPayment(ctx context.Context, id uuid.UUID, gatewayOrderID string, status models.PaymentStatus) error {
	updates := map[string]any{"payment_status": status}
	if gatewayOrderID != "" {
		updates["gateway_order_id"] = gatewayOrderID
	}
	res := r.DB.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
