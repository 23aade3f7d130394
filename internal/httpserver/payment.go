package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloombox/backend/internal/payment"
	"github.com/bloombox/backend/pkg/logging"
)

type PaymentHTTP struct {
	Svc *payment.Service
}

func (h *PaymentHTTP) CreatePayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.create")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	co, err := h.Svc.CreateForOrder(ctx, id, userID)
	if err != nil {
		return respondError(c, l, "create_payment_error", err)
	}
	return c.JSON(http.StatusCreated, co)
}

func (h *PaymentHTTP) Verify(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.verify")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req struct {
		OrderID        uuid.UUID `json:"order_id"`
		GatewayOrderID string    `json:"gateway_order_id"`
		PaymentID      string    `json:"payment_id"`
		Signature      string    `json:"signature"`
	}
	if err := c.Bind(&req); err != nil || req.OrderID == uuid.Nil {
		l.Warn("verify_payment_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	o, err := h.Svc.Verify(ctx, req.OrderID, userID, req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		return respondError(c, l, "verify_payment_error", err)
	}
	l.Info("verify_payment_success", "order_id", o.ID)
	return c.JSON(http.StatusOK, o)
}
