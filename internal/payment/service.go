// Package payment collects prepaid orders through the payment gateway.
package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
	"github.com/bloombox/backend/pkg/logging"
)

type Service struct {
	Store    store.OrderStore
	Gateway  Gateway
	Currency string
	Secret   string
	KeyID    string
}

func NewService(st store.OrderStore, gw Gateway, cur, keyID, secret string) *Service {
	return &Service{Store: st, Gateway: gw, Currency: cur, KeyID: keyID, Secret: secret}
}

// Checkout is what the client needs to open the gateway's payment form.
type Checkout struct {
	KeyID          string          `json:"key_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	Total          decimal.Decimal `json:"total"`
	OrderNumber    string          `json:"order_number"`
}

// CreateForOrder opens a gateway order for the order's total. Only the
// owner may pay, and only for a prepaid method with nothing paid yet.
func (s *Service) CreateForOrder(ctx context.Context, orderID, userID uuid.UUID) (*Checkout, error) {
	l := logging.FromContext(ctx).With("svc", "payment.create")

	o, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if !o.PaymentMethod.Prepaid() {
		return nil, apperr.Validation("payment_method", "Order is paid on delivery")
	}
	if o.PaymentStatus != models.PaymentStatusPending || o.Status == models.OrderStatusCancelled {
		return nil, apperr.Conflict(apperr.ReasonPaymentNotPending, "Order is not awaiting payment")
	}

	scale, err := minorScale(s.Currency)
	if err != nil {
		return nil, apperr.Unavailable("Payment currency is misconfigured", err)
	}
	amount := o.Total.Shift(scale).Round(0).IntPart()

	gwo, err := s.Gateway.CreateOrder(ctx, amount, s.Currency, o.OrderNumber)
	if err != nil {
		l.Error("gateway_error", "order_id", o.ID, "error", err)
		return nil, apperr.Unavailable("Payment gateway is unavailable", err)
	}
	if err := s.Store.SetPayment(ctx, o.ID, gwo.ID, models.PaymentStatusPending); err != nil {
		return nil, apperr.Unavailable("Failed to record payment", err)
	}

	l.Info("gateway_order_created", "order_id", o.ID, "gateway_order_id", gwo.ID, "amount", amount)
	return &Checkout{
		KeyID:          s.KeyID,
		GatewayOrderID: gwo.ID,
		Amount:         amount,
		Currency:       s.Currency,
		Total:          o.Total,
		OrderNumber:    o.OrderNumber,
	}, nil
}

// Verify checks the gateway's signature and marks the order paid.
// Verifying an already paid order again succeeds.
func (s *Service) Verify(ctx context.Context, orderID, userID uuid.UUID, gatewayOrderID, paymentID, signature string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "payment.verify")

	o, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if o.GatewayOrderID == "" || o.GatewayOrderID != gatewayOrderID {
		return nil, apperr.Validation("gateway_order_id", "Payment does not belong to this order")
	}
	if !VerifySignature(s.Secret, gatewayOrderID, paymentID, signature) {
		l.Warn("signature_mismatch", "order_id", o.ID, "gateway_order_id", gatewayOrderID)
		return nil, apperr.Validation("signature", "Payment signature is not valid")
	}
	if o.PaymentStatus == models.PaymentStatusPaid {
		return o, nil
	}

	if err := s.Store.SetPayment(ctx, o.ID, gatewayOrderID, models.PaymentStatusPaid); err != nil {
		return nil, apperr.Unavailable("Failed to record payment", err)
	}
	o.PaymentStatus = models.PaymentStatusPaid
	l.Info("payment_verified", "order_id", o.ID, "payment_id", paymentID)
	return o, nil
}

func (s *Service) ownedOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperr.Unavailable("Failed to load order", err)
	}
	if o.UserID == nil || *o.UserID != userID {
		return nil, apperr.NotFound("Order not found")
	}
	return o, nil
}
