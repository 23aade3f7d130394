package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
)

func (r *GormRepo) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormRepo) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("phone = ?", phone).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	return translate(r.DB.WithContext(ctx).Create(u).Error)
}

func (r *GormRepo) AddLoyaltyPoints(ctx context.Context, id uuid.UUID, points int) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("loyalty_points", gorm.Expr("loyalty_points + ?", points))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *GormRepo) GetUserAddress(ctx context.Context, userID, addressID uuid.UUID) (*models.Address, error) {
	var a models.Address
	if err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", addressID, userID).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *GormRepo) ListAddresses(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	var out []models.Address
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepo) CreateAddress(ctx context.Context, a *models.Address) error {
	return translate(r.DB.WithContext(ctx).Create(a).Error)
}
