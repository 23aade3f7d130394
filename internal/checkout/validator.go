package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
	"github.com/bloombox/backend/pkg/logging"
)

// LineItem is a cart line as the client sent it. UnitPrice is only a claim.
type LineItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CartValidation struct {
	IsValid  bool               `json:"is_valid"`
	Errors   []*apperr.Error    `json:"errors"`
	Items    []models.OrderItem `json:"validated_items"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

type Validator struct {
	Products store.ProductStore
}

// ValidateCart re-prices every line against the live catalog. A bad line
// is reported and skipped; the rest are still checked.
func (v *Validator) ValidateCart(ctx context.Context, items []LineItem) CartValidation {
	l := logging.FromContext(ctx).With("svc", "checkout.validate_cart")

	res := CartValidation{Subtotal: decimal.Zero}
	if len(items) == 0 {
		res.Errors = append(res.Errors, apperr.Validation("items", "At least one item is required"))
		return res
	}

	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)

		switch {
		case item.ProductID == uuid.Nil:
			res.Errors = append(res.Errors, apperr.Validation(field+".product_id", "Product id is required"))
			continue
		case item.Quantity <= 0:
			res.Errors = append(res.Errors, apperr.Validation(field+".quantity", "Quantity must be greater than zero"))
			continue
		case !item.UnitPrice.IsPositive():
			res.Errors = append(res.Errors, apperr.Validation(field+".unit_price", "Unit price must be greater than zero"))
			continue
		}

		p, err := v.Products.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				res.Errors = append(res.Errors, apperr.Validation(field+".product_id", "Product not found"))
				continue
			}
			l.Error("validate_cart_error", "reason", "product lookup failed", "product_id", item.ProductID, "error", err)
			res.Errors = append(res.Errors, apperr.Unavailable("Could not check product availability", err))
			continue
		}

		switch {
		case !p.Active:
			res.Errors = append(res.Errors, apperr.ConflictOn(field, apperr.ReasonProductInactive, p.Name+" is no longer available"))
			continue
		case !p.InStock || p.StockQuantity <= 0:
			res.Errors = append(res.Errors, apperr.ConflictOn(field, apperr.ReasonOutOfStock, p.Name+" is out of stock"))
			continue
		case p.StockQuantity < item.Quantity:
			res.Errors = append(res.Errors, apperr.ConflictOn(field+".quantity", apperr.ReasonInsufficientStock,
				fmt.Sprintf("Only %d of %s left in stock", p.StockQuantity, p.Name)))
			continue
		case p.Price.Sub(item.UnitPrice).Abs().GreaterThan(models.Tolerance):
			res.Errors = append(res.Errors, apperr.ConflictOn(field+".unit_price", apperr.ReasonPriceMismatch,
				fmt.Sprintf("Price of %s has changed to %s", p.Name, p.Price.StringFixed(2))))
			continue
		}

		total := p.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		res.Items = append(res.Items, models.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    item.Quantity,
			UnitPrice:   p.Price,
			TotalPrice:  total,
		})
		res.Subtotal = res.Subtotal.Add(total)
	}

	res.IsValid = len(res.Errors) == 0 && len(res.Items) == len(items)
	return res
}
