package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"                       json:"id"`
	Name          string          `gorm:"not null"                                   json:"name"`
	Description   string          `gorm:"not null"                                   json:"description"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null"                json:"price"`
	StockQuantity int             `gorm:"not null;check:stock_quantity >= 0"         json:"stock_quantity"`
	InStock       bool            `gorm:"not null"                                   json:"in_stock"`
	Active        bool            `gorm:"not null;index"                             json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.InStock = p.StockQuantity > 0
	return nil
}

type Coupon struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey"          json:"id"`
	Code           string              `gorm:"uniqueIndex;not null"          json:"code"`
	Type           CouponType          `gorm:"not null"                      json:"type"`
	Value          decimal.Decimal     `gorm:"type:numeric(12,2);not null"   json:"value"`
	MinOrderAmount decimal.Decimal     `gorm:"type:numeric(12,2);not null"   json:"min_order_amount"`
	MaxDiscount    decimal.NullDecimal `gorm:"type:numeric(12,2)"            json:"max_discount"`
	UsageLimit     *int                `json:"usage_limit"`
	TimesUsed      int                 `gorm:"not null"                      json:"times_used"`
	IsActive       bool                `gorm:"not null"                      json:"is_active"`
	StartsAt       *time.Time          `json:"starts_at"`
	ExpiresAt      *time.Time          `json:"expires_at"`
}

// NormalizeCouponCode is the canonical form codes are stored and matched in.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Code = NormalizeCouponCode(c.Code)
	return nil
}

// Exhausted reports whether the usage limit has been reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.TimesUsed >= *c.UsageLimit
}

type DeliveryOption struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"         json:"id"`
	Name          string          `gorm:"not null"                     json:"name"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null"  json:"price"`
	EstimatedDays string          `gorm:"not null"                     json:"estimated_days"`
	IsActive      bool            `gorm:"not null"                     json:"is_active"`
	SortOrder     int             `gorm:"not null"                     json:"sort_order"`
}

func (d *DeliveryOption) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
