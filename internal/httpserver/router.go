// Package httpserver exposes the shop over HTTP.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloombox/backend/pkg/logging"
	authmw "github.com/bloombox/backend/pkg/middleware/auth"
)

type Deps struct {
	Catalog   *CatalogHTTP
	Cart      *CartHTTP
	Checkout  *CheckoutHTTP
	Orders    *OrdersHTTP
	Payment   *PaymentHTTP
	Auth      *AuthHTTP
	Admin     *AdminHTTP
	JWTSecret []byte
	// Ready reports whether the backing services are reachable.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", d.ready)

	mw := authmw.New(d.JWTSecret)
	api := e.Group("/api/v1")

	api.GET("/products", d.Catalog.GetProducts, mw.OptionalAuth)
	api.GET("/products/:id", d.Catalog.GetProduct, mw.OptionalAuth)
	api.GET("/search", d.Catalog.SearchProducts)
	api.GET("/delivery-options", d.Catalog.DeliveryOptions)

	auth := api.Group("/auth")
	auth.POST("/otp/request", d.Auth.RequestOTP)
	auth.POST("/otp/verify", d.Auth.VerifyOTP)
	auth.POST("/logout", d.Auth.Logout)

	api.POST("/checkout/quote", d.Checkout.Quote, mw.OptionalAuth)
	api.POST("/coupons/check", d.Checkout.CheckCoupon)
	api.POST("/orders", d.Checkout.PlaceOrder, mw.OptionalAuth)

	user := api.Group("", mw.RequireAuth)
	user.GET("/cart", d.Cart.GetCart)
	user.POST("/cart", d.Cart.AddToCart)
	user.DELETE("/cart", d.Cart.ClearCart)
	user.DELETE("/cart/items/:productId", d.Cart.RemoveFromCart)
	user.GET("/addresses", d.Cart.ListAddresses)
	user.POST("/addresses", d.Cart.CreateAddress)
	user.GET("/orders", d.Orders.ListOrders)
	user.GET("/orders/:id", d.Orders.GetOrder)
	user.GET("/orders/:id/history", d.Orders.History)
	user.POST("/orders/:id/cancel", d.Orders.Cancel)
	user.POST("/payments/orders/:id", d.Payment.CreatePayment)
	user.POST("/payments/verify", d.Payment.Verify)

	admin := api.Group("/admin", mw.RequireAdmin)
	admin.PATCH("/orders/:id/status", d.Orders.SetStatus)
	admin.POST("/products", d.Catalog.CreateProduct)
	admin.DELETE("/products/:id", d.Catalog.DeleteProduct)
	admin.POST("/products/:id/archive", d.Catalog.ArchiveProduct)
	admin.GET("/scheduler", d.Admin.SchedulerStatus)
	admin.POST("/scheduler/run", d.Admin.RunScheduler)
	admin.GET("/queues", d.Admin.QueueStats)
}

func (d *Deps) ready(c echo.Context) error {
	if d.Ready == nil {
		return c.NoContent(http.StatusOK)
	}
	ctx := c.Request().Context()
	if err := d.Ready(ctx); err != nil {
		logging.FromContext(ctx).Warn("readiness_failed", "status", 503, "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.NoContent(http.StatusOK)
}
