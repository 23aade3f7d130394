package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"   json:"id"`
	Phone         string    `gorm:"uniqueIndex;not null"   json:"phone"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `gorm:"not null"               json:"role"`
	LoyaltyPoints int       `gorm:"not null"               json:"loyalty_points"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type Address struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"   json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Label      string    `json:"label"`
	Line1      string    `gorm:"not null"               json:"line1"`
	Line2      string    `json:"line2"`
	City       string    `gorm:"not null"               json:"city"`
	State      string    `json:"state"`
	PostalCode string    `gorm:"not null"               json:"postal_code"`
	Phone      string    `json:"phone"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *Address) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Format renders the address the way it is frozen onto an order.
func (a Address) Format() string {
	s := a.Line1
	if a.Line2 != "" {
		s += ", " + a.Line2
	}
	s += ", " + a.City
	if a.State != "" {
		s += ", " + a.State
	}
	return s + " - " + a.PostalCode
}

type CartItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"                    json:"id"`
	UserID    uuid.UUID `gorm:"uniqueIndex:idx_user_product;not null"   json:"user_id"`
	ProductID uuid.UUID `gorm:"uniqueIndex:idx_user_product;not null"   json:"product_id"`
	Quantity  int       `gorm:"not null;check:quantity > 0"             json:"quantity"`
}

func (c *CartItem) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (CartItem) TableName() string {
	return "cart_items"
}
