package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloombox/backend/internal/catalog"
	"github.com/bloombox/backend/internal/search"
	"github.com/bloombox/backend/pkg/logging"
	authmw "github.com/bloombox/backend/pkg/middleware/auth"
)

type CatalogHTTP struct {
	Svc    *catalog.Service
	Search *search.Service
}

func (h *CatalogHTTP) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_products")

	page := catalog.ParseIntDefault(c.QueryParam("page"), 1)
	size := catalog.ParseIntDefault(c.QueryParam("size"), catalog.DefaultPageSize)
	offset, limit := catalog.Calculate(page, size)

	all := authmw.IsAdmin(c) && c.QueryParam("all") == "true"
	total, items, err := h.Svc.ListProducts(ctx, offset, limit, all)
	if err != nil {
		return respondError(c, l, "get_products_error", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": catalog.Meta(page, offset, limit, total),
	})
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_product")

	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.Svc.GetProduct(ctx, id, authmw.IsAdmin(c))
	if err != nil {
		return respondError(c, l, "get_product_error", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHTTP) SearchProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.search")

	page := catalog.ParseIntDefault(c.QueryParam("page"), 1)
	size := catalog.ParseIntDefault(c.QueryParam("size"), catalog.DefaultPageSize)
	offset, limit := catalog.Calculate(page, size)

	res, err := h.Search.Search(ctx, c.QueryParam("q"), offset, limit)
	if err != nil {
		return respondError(c, l, "search_error", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data": res.Items,
		"meta": catalog.Meta(page, offset, limit, res.Total),
	})
}

func (h *CatalogHTTP) DeliveryOptions(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.delivery_options")

	opts, err := h.Svc.ListDeliveryOptions(ctx)
	if err != nil {
		return respondError(c, l, "delivery_options_error", err)
	}
	return c.JSON(http.StatusOK, opts)
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.create_product")

	var req catalog.ProductInput
	if err := c.Bind(&req); err != nil {
		l.Warn("create_product_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	p, err := h.Svc.CreateProduct(ctx, req)
	if err != nil {
		return respondError(c, l, "create_product_error", err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.delete_product")

	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Svc.DeleteProduct(ctx, id); err != nil {
		return respondError(c, l, "delete_product_error", err)
	}
	l.Info("delete_product_success", "product_id", id)
	return c.NoContent(http.StatusNoContent)
}

func (h *CatalogHTTP) ArchiveProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.archive_product")

	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.Svc.ArchiveProduct(ctx, id)
	if err != nil {
		return respondError(c, l, "archive_product_error", err)
	}
	return c.JSON(http.StatusOK, p)
}
