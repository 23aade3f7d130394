package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloombox/backend/internal/cart"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/pkg/logging"
)

type CartHTTP struct {
	Svc       *cart.Service
	Addresses *cart.Addresses
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	view, err := h.Svc.Get(ctx, userID)
	if err != nil {
		return respondError(c, l, "get_cart_error", err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CartHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req struct {
		ProductID uuid.UUID `json:"product_id"`
		Quantity  int       `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("add_to_cart_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	item, err := h.Svc.Add(ctx, userID, req.ProductID, req.Quantity)
	if err != nil {
		return respondError(c, l, "add_to_cart_error", err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *CartHTTP) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	productID, err := pathUUID(c, "productId")
	if err != nil {
		return err
	}
	if err := h.Svc.Remove(ctx, userID, productID); err != nil {
		return respondError(c, l, "remove_from_cart_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHTTP) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.clear")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.Svc.Clear(ctx, userID); err != nil {
		return respondError(c, l, "clear_cart_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHTTP) ListAddresses(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "address.list")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	out, err := h.Addresses.List(ctx, userID)
	if err != nil {
		return respondError(c, l, "list_addresses_error", err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHTTP) CreateAddress(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "address.create")

	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req models.Address
	if err := c.Bind(&req); err != nil {
		l.Warn("create_address_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	addr, err := h.Addresses.Create(ctx, userID, req)
	if err != nil {
		return respondError(c, l, "create_address_error", err)
	}
	return c.JSON(http.StatusCreated, addr)
}
