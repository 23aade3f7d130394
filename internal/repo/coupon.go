package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bloombox/backend/internal/models"
)

func (r *GormRepo) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := r.DB.WithContext(ctx).Where("code = ?", models.NormalizeCouponCode(code)).First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *GormRepo) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	return translate(r.DB.WithContext(ctx).Create(c).Error)
}

func (r *GormRepo) IncrementCouponUsage(ctx context.Context, code string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Coupon{}).
		Where("code = ? AND (usage_limit IS NULL OR times_used < usage_limit)", models.NormalizeCouponCode(code)).
		Update("times_used", gorm.Expr("times_used + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepo) GetDeliveryOption(ctx context.Context, id uuid.UUID) (*models.DeliveryOption, error) {
	var d models.DeliveryOption
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *GormRepo) ListDeliveryOptions(ctx context.Context, activeOnly bool) ([]models.DeliveryOption, error) {
	q := r.DB.WithContext(ctx).Model(&models.DeliveryOption{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []models.DeliveryOption
	if err := q.Order("sort_order ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepo) CreateDeliveryOption(ctx context.Context, d *models.DeliveryOption) error {
	return translate(r.DB.WithContext(ctx).Create(d).Error)
}
