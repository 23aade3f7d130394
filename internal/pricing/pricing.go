// Package pricing computes delivery, discount, payment surcharge and total
// for a checkout. Compute is pure; Engine adds the lookups around it.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
)

var (
	surchargeRate = decimal.RequireFromString("0.02")
	minSurcharge  = decimal.NewFromInt(5)
	hundred       = decimal.NewFromInt(100)
)

type Breakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaymentCharges decimal.Decimal `json:"payment_charges"`
	Total          decimal.Decimal `json:"total"`
}

// Compute prices a checkout. A nil delivery option is free and a nil or
// unusable coupon gives no discount.
func Compute(subtotal decimal.Decimal, delivery *models.DeliveryOption, coupon *models.Coupon, method models.PaymentMethod, now time.Time) Breakdown {
	subtotal = subtotal.Round(2)

	deliveryCharge := decimal.Zero
	if delivery != nil {
		deliveryCharge = delivery.Price.Round(2)
	}

	discount := Discount(subtotal, coupon, now)
	charges := Surcharge(subtotal.Add(deliveryCharge).Sub(discount), method)

	return Breakdown{
		Subtotal:       subtotal,
		DeliveryCharge: deliveryCharge,
		DiscountAmount: discount,
		PaymentCharges: charges,
		Total:          subtotal.Add(deliveryCharge).Sub(discount).Add(charges),
	}
}

// Discount returns what coupon takes off subtotal at now. The result never
// exceeds subtotal.
func Discount(subtotal decimal.Decimal, coupon *models.Coupon, now time.Time) decimal.Decimal {
	if coupon == nil || CouponProblem(coupon, subtotal, now) != "" {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch coupon.Type {
	case models.CouponPercentage:
		d = subtotal.Mul(coupon.Value).Div(hundred).Round(2)
		if coupon.MaxDiscount.Valid && d.GreaterThan(coupon.MaxDiscount.Decimal) {
			d = coupon.MaxDiscount.Decimal
		}
	case models.CouponFixed:
		d = coupon.Value
	default:
		return decimal.Zero
	}

	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, subtotal).Round(2)
}

// Surcharge is the gateway fee for prepaid methods: 2% of base, at least 5.
func Surcharge(base decimal.Decimal, method models.PaymentMethod) decimal.Decimal {
	if !method.Prepaid() {
		return decimal.Zero
	}
	return decimal.Max(base.Mul(surchargeRate).Round(2), minSurcharge)
}

// CouponProblem returns the conflict reason that makes coupon unusable for
// subtotal at now, or "" when it applies.
func CouponProblem(c *models.Coupon, subtotal decimal.Decimal, now time.Time) string {
	switch {
	case !c.IsActive:
		return apperr.ReasonCouponInactive
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return apperr.ReasonCouponNotStarted
	case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
		return apperr.ReasonCouponExpired
	case c.Exhausted():
		return apperr.ReasonCouponExhausted
	case subtotal.LessThan(c.MinOrderAmount):
		return apperr.ReasonCouponMinOrder
	}
	return ""
}

var couponMessages = map[string]string{
	apperr.ReasonCouponNotFound:   "Coupon code not found",
	apperr.ReasonCouponInactive:   "Coupon is not active",
	apperr.ReasonCouponNotStarted: "Coupon is not valid yet",
	apperr.ReasonCouponExpired:    "Coupon has expired",
	apperr.ReasonCouponExhausted:  "Coupon usage limit reached",
	apperr.ReasonCouponMinOrder:   "Order total is below the coupon minimum",
}

type Engine struct {
	Delivery store.DeliveryStore
	Coupons  store.CouponStore
	Now      func() time.Time
}

func NewEngine(delivery store.DeliveryStore, coupons store.CouponStore) *Engine {
	return &Engine{Delivery: delivery, Coupons: coupons, Now: time.Now}
}

// ComputePricing looks up the delivery option and coupon and prices the
// checkout. Missing records are not errors; only storage failures are.
func (e *Engine) ComputePricing(ctx context.Context, subtotal decimal.Decimal, deliveryOptionID uuid.UUID, couponCode string, method models.PaymentMethod) (Breakdown, error) {
	var delivery *models.DeliveryOption
	if deliveryOptionID != uuid.Nil {
		d, err := e.Delivery.GetDeliveryOption(ctx, deliveryOptionID)
		switch {
		case err == nil:
			delivery = d
		case !errors.Is(err, store.ErrNotFound):
			return Breakdown{}, fmt.Errorf("get delivery option: %w", err)
		}
	}

	coupon, err := e.lookupCoupon(ctx, couponCode)
	if err != nil {
		return Breakdown{}, err
	}

	return Compute(subtotal, delivery, coupon, method, e.Now()), nil
}

// ResolveCoupon checks a code against subtotal and returns the coupon with
// the discount it would give, or a conflict explaining why it does not apply.
func (e *Engine) ResolveCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*models.Coupon, decimal.Decimal, error) {
	coupon, err := e.lookupCoupon(ctx, code)
	if err != nil {
		return nil, decimal.Zero, apperr.Unavailable("coupon lookup failed", err)
	}
	if coupon == nil {
		return nil, decimal.Zero, apperr.ConflictOn("coupon_code", apperr.ReasonCouponNotFound, couponMessages[apperr.ReasonCouponNotFound])
	}
	if reason := CouponProblem(coupon, subtotal, e.Now()); reason != "" {
		return coupon, decimal.Zero, apperr.ConflictOn("coupon_code", reason, couponMessages[reason])
	}
	return coupon, Discount(subtotal, coupon, e.Now()), nil
}

func (e *Engine) lookupCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	if models.NormalizeCouponCode(code) == "" {
		return nil, nil
	}
	c, err := e.Coupons.GetCouponByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}
