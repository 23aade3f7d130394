package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/catalog"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/orders"
	"github.com/bloombox/backend/pkg/logging"
	authmw "github.com/bloombox/backend/pkg/middleware/auth"
)

type OrdersHTTP struct {
	Svc *orders.Service
}

func (h *OrdersHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.list")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	page := catalog.ParseIntDefault(c.QueryParam("page"), 1)
	size := catalog.ParseIntDefault(c.QueryParam("size"), catalog.DefaultPageSize)
	offset, limit := catalog.Calculate(page, size)

	total, list, err := h.Svc.List(ctx, userID, offset, limit)
	if err != nil {
		return respondError(c, l, "list_orders_error", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data": list,
		"meta": catalog.Meta(page, offset, limit, total),
	})
}

func (h *OrdersHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.get")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.Svc.Get(ctx, id, userID, authmw.IsAdmin(c))
	if err != nil {
		return respondError(c, l, "get_order_error", err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrdersHTTP) History(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.history")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	hist, err := h.Svc.History(ctx, id, userID, authmw.IsAdmin(c))
	if err != nil {
		return respondError(c, l, "order_history_error", err)
	}
	return c.JSON(http.StatusOK, hist)
}

func (h *OrdersHTTP) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.cancel")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("cancel_order_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	o, err := h.Svc.Cancel(ctx, id, userID, req.Reason)
	if err != nil {
		return respondError(c, l, "cancel_order_error", err)
	}
	l.Info("cancel_order_success", "order_id", o.ID)
	return c.JSON(http.StatusOK, o)
}

// SetStatus moves an order along the lifecycle. With force the operator
// may jump to any status that is not behind a terminal one.
func (h *OrdersHTTP) SetStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.set_status")

	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Status string `json:"status"`
		Note   string `json:"note"`
		Force  bool   `json:"force"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("set_status_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	to, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		return respondError(c, l, "set_status_error", apperr.Validation("status", err.Error()))
	}

	var o *models.Order
	if req.Force {
		o, err = h.Svc.Override(ctx, id, to, req.Note)
	} else {
		o, err = h.Svc.Transition(ctx, id, to, req.Note)
	}
	if err != nil {
		return respondError(c, l, "set_status_error", err)
	}
	l.Info("set_status_success", "order_id", o.ID, "status", o.Status)
	return c.JSON(http.StatusOK, o)
}
