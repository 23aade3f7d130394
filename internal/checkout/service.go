// Package checkout turns a client cart into a persisted order: validate,
// price, assemble and commit in one transaction.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/pricing"
	"github.com/bloombox/backend/internal/store"
	"github.com/bloombox/backend/pkg/logging"
)

const defaultMaxAttempts = 3

type PlacementInput struct {
	CustomerName      string     `json:"customer_name"`
	CustomerPhone     string     `json:"customer_phone"`
	CustomerEmail     string     `json:"customer_email"`
	Items             []LineItem `json:"items"`
	DeliveryOptionID  uuid.UUID  `json:"delivery_option_id"`
	PaymentMethod     string     `json:"payment_method"`
	CouponCode        string     `json:"coupon_code"`
	ShippingAddressID *uuid.UUID `json:"shipping_address_id"`
	DeliveryAddress   string     `json:"delivery_address"`
	Notes             string     `json:"notes"`

	// Amounts the client showed the customer; checked when present.
	DeliveryCharge *decimal.Decimal `json:"delivery_charge"`
	DiscountAmount *decimal.Decimal `json:"discount_amount"`
	Total          *decimal.Decimal `json:"total"`
}

// Draft is an order that passed every check but is not stored yet.
type Draft struct {
	Order   models.Order
	Pricing pricing.Breakdown
}

type PlacementResult struct {
	IsValid bool               `json:"is_valid"`
	Order   *models.Order      `json:"order,omitempty"`
	Pricing *pricing.Breakdown `json:"pricing,omitempty"`
	Errors  []*apperr.Error    `json:"errors,omitempty"`
}

// Background runs work detached from the request that produced it.
type Background interface {
	Submit(name string, task func(ctx context.Context) error) bool
}

// Hook is a post-commit side effect. Its failure never affects the order.
type Hook struct {
	Name string
	Run  func(ctx context.Context, o models.Order) error
}

type Service struct {
	Store      store.Store
	Validator  *Validator
	Pricing    *pricing.Engine
	Background Background
	Hooks      []Hook

	Now         func() time.Time
	MaxAttempts int
}

func NewService(st store.Store, engine *pricing.Engine, bg Background, hooks ...Hook) *Service {
	return &Service{
		Store:      st,
		Validator:  &Validator{Products: st},
		Pricing:    engine,
		Background: bg,
		Hooks:      hooks,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// ValidateAndProcessOrder checks the input and builds a draft whose lines
// and amounts come from the server, never from the client.
func (s *Service) ValidateAndProcessOrder(ctx context.Context, in PlacementInput, userID *uuid.UUID) (*Draft, []*apperr.Error) {
	l := logging.FromContext(ctx).With("svc", "checkout.assemble")

	errs := validateContract(in, userID)
	method, _ := models.ParsePaymentMethod(in.PaymentMethod)

	cart := s.Validator.ValidateCart(ctx, in.Items)
	errs = append(errs, cart.Errors...)
	if len(cart.Errors) == 0 && !cart.IsValid {
		errs = append(errs, apperr.Validation("items", "Some items could not be validated"))
	}

	var delivery *models.DeliveryOption
	if in.DeliveryOptionID != uuid.Nil {
		d, err := s.Store.GetDeliveryOption(ctx, in.DeliveryOptionID)
		switch {
		case errors.Is(err, store.ErrNotFound) || (err == nil && !d.IsActive):
			errs = append(errs, apperr.Validation("delivery_option_id", "Invalid or inactive delivery option"))
		case err != nil:
			l.Error("assemble_error", "reason", "delivery lookup failed", "error", err)
			errs = append(errs, apperr.Unavailable("Could not load delivery option", err))
		default:
			delivery = d
		}
	}

	address := strings.TrimSpace(in.DeliveryAddress)
	if userID != nil && in.ShippingAddressID != nil {
		a, err := s.Store.GetUserAddress(ctx, *userID, *in.ShippingAddressID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			errs = append(errs, apperr.Validation("shipping_address_id", "Address not found"))
		case err != nil:
			l.Error("assemble_error", "reason", "address lookup failed", "error", err)
			errs = append(errs, apperr.Unavailable("Could not load address", err))
		default:
			address = a.Format()
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	couponCode := models.NormalizeCouponCode(in.CouponCode)
	if couponCode != "" {
		if _, _, err := s.Pricing.ResolveCoupon(ctx, couponCode, cart.Subtotal); err != nil {
			return nil, []*apperr.Error{asAppErr(err)}
		}
	}

	breakdown, err := s.Pricing.ComputePricing(ctx, cart.Subtotal, delivery.ID, couponCode, method)
	if err != nil {
		l.Error("assemble_error", "reason", "pricing failed", "error", err)
		return nil, []*apperr.Error{apperr.Unavailable("Could not calculate pricing", err)}
	}

	errs = append(errs, compareClaim("delivery_charge", in.DeliveryCharge, breakdown.DeliveryCharge)...)
	errs = append(errs, compareClaim("discount_amount", in.DiscountAmount, breakdown.DiscountAmount)...)
	errs = append(errs, compareClaim("total", in.Total, breakdown.Total)...)
	if len(errs) > 0 {
		l.Warn("assemble_rejected", "reason", "client amounts disagree", "server_total", breakdown.Total.String())
		return nil, errs
	}

	now := s.now()
	var eta *time.Time
	if days, ok := LowerBoundDays(delivery.EstimatedDays); ok {
		t := now.AddDate(0, 0, days)
		eta = &t
	}

	return &Draft{
		Order: models.Order{
			UserID:                userID,
			CustomerName:          strings.TrimSpace(in.CustomerName),
			CustomerPhone:         strings.TrimSpace(in.CustomerPhone),
			CustomerEmail:         strings.TrimSpace(in.CustomerEmail),
			Status:                models.OrderStatusPending,
			PaymentStatus:         models.PaymentStatusPending,
			PaymentMethod:         method,
			Items:                 cart.Items,
			Subtotal:              breakdown.Subtotal,
			DeliveryCharge:        breakdown.DeliveryCharge,
			DiscountAmount:        breakdown.DiscountAmount,
			PaymentCharges:        breakdown.PaymentCharges,
			Total:                 breakdown.Total,
			CouponCode:            couponCode,
			DeliveryOptionID:      delivery.ID,
			DeliveryAddress:       address,
			Notes:                 strings.TrimSpace(in.Notes),
			EstimatedDeliveryDate: eta,
		},
		Pricing: breakdown,
	}, nil
}

// ProcessOrderPlacement is the single entry point for placing an order. It
// never returns an error: every failure is reported in the result.
func (s *Service) ProcessOrderPlacement(ctx context.Context, in PlacementInput, userID *uuid.UUID) (res PlacementResult) {
	l := logging.FromContext(ctx).With("svc", "checkout.place_order")

	defer func() {
		if r := recover(); r != nil {
			l.Error("place_order_panic", "panic", fmt.Sprint(r))
			res = failed(fmt.Errorf("panic: %v", r))
		}
	}()

	draft, errs := s.ValidateAndProcessOrder(ctx, in, userID)
	if len(errs) > 0 {
		return PlacementResult{Errors: errs}
	}

	var order models.Order
	for attempt := 1; ; attempt++ {
		order = freshCopy(draft.Order)
		err := s.Store.WithTx(ctx, func(tx store.Store) error {
			return s.commit(ctx, tx, &order)
		})
		if err == nil {
			break
		}

		if errors.Is(err, store.ErrDuplicate) && attempt < s.maxAttempts() {
			l.Warn("place_order_retry", "reason", "order number taken", "attempt", attempt, "order_number", order.OrderNumber)
			continue
		}

		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindConflict {
			l.Warn("place_order_rejected", "status", 409, "reason", ae.Reason, "error", err)
			return PlacementResult{Errors: []*apperr.Error{ae}}
		}

		l.Error("place_order_error", "status", 503, "attempt", attempt, "error", err)
		return failed(err)
	}

	l.Info("order_placed", "order_id", order.ID, "order_number", order.OrderNumber, "total", order.Total.String())
	s.afterCommit(ctx, order)

	return PlacementResult{IsValid: true, Order: &order, Pricing: &draft.Pricing}
}

func (s *Service) commit(ctx context.Context, tx store.Store, order *models.Order) error {
	now := s.now()
	prefix := OrderNumberPrefix(now)

	last, err := tx.LastOrderNumber(ctx, prefix)
	if err != nil {
		return fmt.Errorf("last order number: %w", err)
	}
	order.OrderNumber, err = NextOrderNumber(prefix, last)
	if err != nil {
		return err
	}
	order.StatusUpdatedAt = &now

	if err := tx.CreateOrder(ctx, order); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	if err := tx.AppendStatusHistory(ctx, &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    models.OrderStatusPending,
		Note:      "Order placed",
		ChangedAt: now,
	}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	for _, item := range order.Items {
		ok, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if !ok {
			return apperr.ConflictOn("items", apperr.ReasonInsufficientStock, "Insufficient stock for "+item.ProductName)
		}
	}

	if order.CouponCode != "" {
		ok, err := tx.IncrementCouponUsage(ctx, order.CouponCode)
		if err != nil {
			return fmt.Errorf("increment coupon usage: %w", err)
		}
		if !ok {
			return apperr.ConflictOn("coupon_code", apperr.ReasonCouponExhausted, "Coupon usage limit reached")
		}
	}

	if order.UserID != nil {
		if err := tx.ClearCart(ctx, *order.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, order models.Order) {
	l := logging.FromContext(ctx)
	for _, h := range s.Hooks {
		run := func(ctx context.Context) error { return h.Run(ctx, order) }
		if s.Background == nil {
			if err := run(context.WithoutCancel(ctx)); err != nil {
				l.Warn("post_commit_failed", "hook", h.Name, "order_id", order.ID, "error", err)
			}
			continue
		}
		if !s.Background.Submit(h.Name, run) {
			l.Warn("post_commit_dropped", "hook", h.Name, "order_id", order.ID)
		}
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return defaultMaxAttempts
}

func validateContract(in PlacementInput, userID *uuid.UUID) []*apperr.Error {
	var errs []*apperr.Error
	if strings.TrimSpace(in.CustomerName) == "" {
		errs = append(errs, apperr.Validation("customer_name", "Customer name is required"))
	}
	if strings.TrimSpace(in.CustomerPhone) == "" {
		errs = append(errs, apperr.Validation("customer_phone", "Customer phone is required"))
	}
	if _, err := models.ParsePaymentMethod(in.PaymentMethod); err != nil {
		errs = append(errs, apperr.Validation("payment_method", "Payment method must be one of COD, Online, UPI, Card"))
	}
	if in.DeliveryOptionID == uuid.Nil {
		errs = append(errs, apperr.Validation("delivery_option_id", "Delivery option is required"))
	}

	hasSavedAddress := userID != nil && in.ShippingAddressID != nil
	if !hasSavedAddress && strings.TrimSpace(in.DeliveryAddress) == "" {
		errs = append(errs, apperr.Validation("delivery_address", "Delivery address is required"))
	}
	return errs
}

func compareClaim(field string, claimed *decimal.Decimal, actual decimal.Decimal) []*apperr.Error {
	if claimed == nil || claimed.Sub(actual).Abs().LessThanOrEqual(models.Tolerance) {
		return nil
	}
	return []*apperr.Error{apperr.ConflictOn(field, apperr.ReasonTotalMismatch,
		fmt.Sprintf("Submitted %s %s does not match calculated %s", strings.ReplaceAll(field, "_", " "), claimed.StringFixed(2), actual.StringFixed(2)))}
}

func freshCopy(o models.Order) models.Order {
	o.ID = uuid.Nil
	o.Items = slices.Clone(o.Items)
	for i := range o.Items {
		o.Items[i].ID = uuid.Nil
		o.Items[i].OrderID = uuid.Nil
	}
	return o
}

func failed(err error) PlacementResult {
	return PlacementResult{Errors: []*apperr.Error{apperr.Unavailable("Failed to process order placement", err)}}
}

func asAppErr(err error) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Unavailable("Failed to process order placement", err)
}
