package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Tolerance is the largest accepted difference between two money amounts
// that should agree.
var Tolerance = decimal.RequireFromString("0.01")

type Order struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey"                  json:"id"`
	OrderNumber           string          `gorm:"uniqueIndex;not null"                  json:"order_number"`
	UserID                *uuid.UUID      `gorm:"type:uuid;index"                       json:"user_id"`
	CustomerName          string          `gorm:"not null"                              json:"customer_name"`
	CustomerPhone         string          `gorm:"not null"                              json:"customer_phone"`
	CustomerEmail         string          `json:"customer_email"`
	Status                OrderStatus     `gorm:"not null;index:idx_status_updated"     json:"status"`
	StatusUpdatedAt       *time.Time      `gorm:"index:idx_status_updated"              json:"status_updated_at"`
	PaymentStatus         PaymentStatus   `gorm:"not null"                              json:"payment_status"`
	PaymentMethod         PaymentMethod   `gorm:"not null"                              json:"payment_method"`
	GatewayOrderID        string          `json:"gateway_order_id,omitempty"`
	Items                 []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Subtotal              decimal.Decimal `gorm:"type:numeric(12,2);not null"           json:"subtotal"`
	DeliveryCharge        decimal.Decimal `gorm:"type:numeric(12,2);not null"           json:"delivery_charge"`
	DiscountAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null"           json:"discount_amount"`
	PaymentCharges        decimal.Decimal `gorm:"type:numeric(12,2);not null"           json:"payment_charges"`
	Total                 decimal.Decimal `gorm:"type:numeric(12,2);not null"           json:"total"`
	CouponCode            string          `json:"coupon_code,omitempty"`
	DeliveryOptionID      uuid.UUID       `gorm:"type:uuid;not null"                    json:"delivery_option_id"`
	DeliveryAddress       string          `gorm:"not null"                              json:"delivery_address"`
	Notes                 string          `json:"notes,omitempty"`
	EstimatedDeliveryDate *time.Time      `json:"estimated_delivery_date"`
	PointsAwarded         bool            `gorm:"not null"                              json:"points_awarded"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// TotalConsistent checks total = subtotal + delivery - discount + charges
// within Tolerance.
func (o *Order) TotalConsistent() bool {
	want := o.Subtotal.Add(o.DeliveryCharge).Sub(o.DiscountAmount).Add(o.PaymentCharges)
	return want.Sub(o.Total).Abs().LessThanOrEqual(Tolerance)
}

// OrderItem is a validated line item frozen onto the order.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"         json:"id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;index;not null"     json:"order_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;index;not null"     json:"product_id"`
	ProductName string          `gorm:"not null"                     json:"product_name"`
	Quantity    int             `gorm:"not null;check:quantity > 0"  json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null"  json:"unit_price"`
	TotalPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null"  json:"total_price"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

type OrderStatusHistory struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey"       json:"id"`
	OrderID   uuid.UUID   `gorm:"type:uuid;index;not null"   json:"order_id"`
	Status    OrderStatus `gorm:"not null"                   json:"status"`
	Note      string      `json:"note"`
	ChangedAt time.Time   `gorm:"not null"                   json:"changed_at"`
}

func (h *OrderStatusHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
