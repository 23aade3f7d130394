package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/checkout"
	"github.com/bloombox/backend/pkg/logging"
)

type CheckoutHTTP struct {
	Svc *checkout.Service
}

// Quote runs every placement check and returns the server-side pricing
// without storing anything.
func (h *CheckoutHTTP) Quote(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.quote")

	var in checkout.PlacementInput
	if err := c.Bind(&in); err != nil {
		l.Warn("quote_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	draft, errs := h.Svc.ValidateAndProcessOrder(ctx, in, optionalUser(c))
	if len(errs) > 0 {
		return respondErrors(c, l, "quote_rejected", errs)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"items":                   draft.Order.Items,
		"pricing":                 draft.Pricing,
		"estimated_delivery_date": draft.Order.EstimatedDeliveryDate,
	})
}

func (h *CheckoutHTTP) CheckCoupon(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.check_coupon")

	var req struct {
		Code     string          `json:"code"`
		Subtotal decimal.Decimal `json:"subtotal"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("check_coupon_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Code == "" {
		return respondError(c, l, "check_coupon_error", apperr.Validation("code", "Coupon code is required"))
	}

	coupon, discount, err := h.Svc.Pricing.ResolveCoupon(ctx, req.Code, req.Subtotal)
	if err != nil {
		return respondError(c, l, "check_coupon_rejected", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"code":     coupon.Code,
		"type":     coupon.Type,
		"discount": discount,
	})
}

func (h *CheckoutHTTP) PlaceOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.place_order")

	var in checkout.PlacementInput
	if err := c.Bind(&in); err != nil {
		l.Warn("place_order_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res := h.Svc.ProcessOrderPlacement(ctx, in, optionalUser(c))
	if !res.IsValid {
		return respondErrors(c, l, "place_order_rejected", res.Errors)
	}

	l.Info("place_order_success", "order_id", res.Order.ID, "order_number", res.Order.OrderNumber)
	return c.JSON(http.StatusCreated, map[string]any{
		"order":   res.Order,
		"pricing": res.Pricing,
	})
}
