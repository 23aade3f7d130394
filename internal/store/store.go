// Package store declares the persistence capabilities the shop needs. The
// gorm-backed implementation lives in internal/repo; internal/repo/memrepo
// is an in-memory variant for tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bloombox/backend/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

type ProductStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, offset, limit int, activeOnly bool) (int64, []models.Product, error)
	// SearchProducts matches active products whose name or description
	// contains query, ignoring case.
	SearchProducts(ctx context.Context, query string, offset, limit int) (int64, []models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	// DecrementStock subtracts qty only when at least qty is available and
	// keeps in_stock in step. It reports false when nothing was updated.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	SetProductActive(ctx context.Context, id uuid.UUID, active bool) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ProductReferenced(ctx context.Context, id uuid.UUID) (bool, error)
}

type CouponStore interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	CreateCoupon(ctx context.Context, c *models.Coupon) error
	// IncrementCouponUsage bumps times_used unless the usage limit has been
	// reached. It reports false when nothing was updated.
	IncrementCouponUsage(ctx context.Context, code string) (bool, error)
}

type DeliveryStore interface {
	GetDeliveryOption(ctx context.Context, id uuid.UUID) (*models.DeliveryOption, error)
	ListDeliveryOptions(ctx context.Context, activeOnly bool) ([]models.DeliveryOption, error)
	CreateDeliveryOption(ctx context.Context, d *models.DeliveryOption) error
}

type AddressStore interface {
	// GetUserAddress returns ErrNotFound when the address does not exist or
	// belongs to someone else.
	GetUserAddress(ctx context.Context, userID, addressID uuid.UUID) (*models.Address, error)
	ListAddresses(ctx context.Context, userID uuid.UUID) ([]models.Address, error)
	CreateAddress(ctx context.Context, a *models.Address) error
}

type CartStore interface {
	GetCart(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	AddToCart(ctx context.Context, item *models.CartItem) error
	RemoveFromCart(ctx context.Context, userID, productID uuid.UUID) error
	ClearCart(ctx context.Context, userID uuid.UUID) error
}

type OrderStore interface {
	// LastOrderNumber returns the highest order number with the given
	// prefix, or "" when there is none.
	LastOrderNumber(ctx context.Context, prefix string) (string, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, offset, limit int) (int64, []models.Order, error)
	// ListOrdersForProgression returns orders in status whose status has not
	// changed since cutoff, oldest first.
	ListOrdersForProgression(ctx context.Context, status models.OrderStatus, cutoff time.Time, offset, limit int) ([]models.Order, error)
	// UpdateOrderStatus moves the order from one status to another only if it
	// is still in from. It reports false when the order was not in from.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, at time.Time) (bool, error)
	AppendStatusHistory(ctx context.Context, h *models.OrderStatusHistory) error
	ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	// MarkPointsAwarded flips points_awarded from false to true and reports
	// whether this call did it.
	MarkPointsAwarded(ctx context.Context, id uuid.UUID) (bool, error)
	SetPayment(ctx context.Context, id uuid.UUID, gatewayOrderID string, status models.PaymentStatus) error
}

type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	AddLoyaltyPoints(ctx context.Context, id uuid.UUID, points int) error
}

type Store interface {
	ProductStore
	CouponStore
	DeliveryStore
	AddressStore
	CartStore
	OrderStore
	UserStore

	// WithTx runs fn inside one transaction. Any error returned by fn rolls
	// everything back.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
