// Package cart keeps a signed-in customer's basket between visits.
package cart

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
	"github.com/bloombox/backend/pkg/logging"
)

const MaxQuantity = 99

type Service struct {
	Store interface {
		store.CartStore
		store.ProductStore
	}
}

func NewService(st store.Store) *Service {
	return &Service{Store: st}
}

// Line is one cart entry. Available turns false once the product is
// archived or short of stock; such lines are left out of Subtotal.
type Line struct {
	Product   models.Product  `json:"product"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
	Available bool            `json:"available"`
}

type View struct {
	Items    []Line          `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Get returns the cart priced at current catalog prices. Lines whose
// product disappeared are dropped.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	items, err := s.Store.GetCart(ctx, userID)
	if err != nil {
		return nil, apperr.Unavailable("Failed to load cart", err)
	}

	view := &View{Items: make([]Line, 0, len(items)), Subtotal: decimal.Zero}
	for _, it := range items {
		p, err := s.Store.GetProduct(ctx, it.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, apperr.Unavailable("Failed to load cart", err)
		}
		line := Line{
			Product:   *p,
			Quantity:  it.Quantity,
			LineTotal: p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
			Available: p.Active && p.StockQuantity >= it.Quantity,
		}
		if line.Available {
			view.Subtotal = view.Subtotal.Add(line.LineTotal)
		}
		view.Items = append(view.Items, line)
	}
	sort.Slice(view.Items, func(i, j int) bool { return view.Items[i].Product.Name < view.Items[j].Product.Name })
	return view, nil
}

// Add puts qty more of a product in the cart.
func (s *Service) Add(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.CartItem, error) {
	l := logging.FromContext(ctx).With("svc", "cart.add")

	if productID == uuid.Nil {
		return nil, apperr.Validation("product_id", "Product is required")
	}
	if qty < 1 || qty > MaxQuantity {
		return nil, apperr.Validation("quantity", "Quantity must be between 1 and 99")
	}

	p, err := s.Store.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperr.Unavailable("Failed to add to cart", err)
	}
	if !p.Active {
		return nil, apperr.ConflictOn("product_id", apperr.ReasonProductInactive, p.Name+" is no longer available")
	}
	if p.StockQuantity == 0 {
		return nil, apperr.ConflictOn("product_id", apperr.ReasonOutOfStock, p.Name+" is out of stock")
	}

	item := &models.CartItem{UserID: userID, ProductID: productID, Quantity: qty}
	if err := s.Store.AddToCart(ctx, item); err != nil {
		return nil, apperr.Unavailable("Failed to add to cart", err)
	}

	l.Info("cart_item_added", "user_id", userID, "product_id", productID, "quantity", item.Quantity)
	return item, nil
}

func (s *Service) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	err := s.Store.RemoveFromCart(ctx, userID, productID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Item is not in the cart")
	}
	if err != nil {
		return apperr.Unavailable("Failed to update cart", err)
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.Store.ClearCart(ctx, userID); err != nil {
		return apperr.Unavailable("Failed to clear cart", err)
	}
	return nil
}
