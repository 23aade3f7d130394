package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
)

const uniqueViolation = "23505"

// GormRepo implements store.Store on top of gorm. The same code serves
// postgres in production and sqlite for local runs and tests.
type GormRepo struct {
	DB *gorm.DB
}

var _ store.Store = (*GormRepo)(nil)

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&models.Product{},
		&models.Coupon{},
		&models.DeliveryOption{},
		&models.User{},
		&models.Address{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusHistory{},
	)
}

func (r *GormRepo) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepo{DB: tx})
	})
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}
	if isDuplicate(err) {
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	}
	return err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
