// Package catalog serves products and delivery options and keeps the
// search index in step with admin changes.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
	"github.com/bloombox/backend/pkg/logging"
)

// Indexer mirrors catalog changes into the search index.
type Indexer interface {
	IndexProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	Store interface {
		store.ProductStore
		store.DeliveryStore
	}
	Index Indexer
}

func NewService(st store.Store, idx Indexer) *Service {
	return &Service{Store: st, Index: idx}
}

type ProductInput struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

func (s *Service) ListProducts(ctx context.Context, offset, limit int, includeInactive bool) (int64, []models.Product, error) {
	total, items, err := s.Store.ListProducts(ctx, offset, limit, !includeInactive)
	if err != nil {
		return 0, nil, apperr.Unavailable("Failed to load products", err)
	}
	return total, items, nil
}

// GetProduct hides archived products from everyone but admins.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID, admin bool) (*models.Product, error) {
	p, err := s.Store.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !p.Active && !admin) {
		return nil, apperr.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperr.Unavailable("Failed to load product", err)
	}
	return p, nil
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.create_product")

	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, apperr.Validation("name", "Product name is required")
	case !in.Price.IsPositive():
		return nil, apperr.Validation("price", "Price must be greater than zero")
	case in.StockQuantity < 0:
		return nil, apperr.Validation("stock_quantity", "Stock cannot be negative")
	}

	p := &models.Product{
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		Price:         in.Price.Round(2),
		StockQuantity: in.StockQuantity,
		Active:        true,
	}
	if err := s.Store.CreateProduct(ctx, p); err != nil {
		return nil, apperr.Unavailable("Failed to create product", err)
	}

	s.reindex(ctx, *p)
	l.Info("product_created", "product_id", p.ID)
	return p, nil
}

// DeleteProduct removes a product no order has ever referenced. Referenced
// products have to be archived instead.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	l := logging.FromContext(ctx).With("svc", "catalog.delete_product")

	if _, err := s.GetProduct(ctx, id, true); err != nil {
		return err
	}
	referenced, err := s.Store.ProductReferenced(ctx, id)
	if err != nil {
		return apperr.Unavailable("Failed to delete product", err)
	}
	if referenced {
		l.Warn("product_delete_refused", "product_id", id, "reason", apperr.ReasonReferenced)
		return apperr.Dependency("Product is part of existing orders; archive it instead")
	}

	if err := s.Store.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Product not found")
		}
		return apperr.Unavailable("Failed to delete product", err)
	}

	if s.Index != nil {
		if err := s.Index.DeleteProduct(ctx, id); err != nil {
			l.Error("search_delete_failed", "product_id", id, "error", err)
		}
	}
	l.Info("product_deleted", "product_id", id)
	return nil
}

// ArchiveProduct hides a product from the storefront and checkout while
// keeping it for order history.
func (s *Service) ArchiveProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.archive_product")

	if err := s.Store.SetProductActive(ctx, id, false); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Product not found")
		}
		return nil, apperr.Unavailable("Failed to archive product", err)
	}
	p, err := s.GetProduct(ctx, id, true)
	if err != nil {
		return nil, err
	}

	s.reindex(ctx, *p)
	l.Info("product_archived", "product_id", id)
	return p, nil
}

func (s *Service) ListDeliveryOptions(ctx context.Context) ([]models.DeliveryOption, error) {
	opts, err := s.Store.ListDeliveryOptions(ctx, true)
	if err != nil {
		return nil, apperr.Unavailable("Failed to load delivery options", err)
	}
	return opts, nil
}

// Index errors are only logged; search falls back to the database.
func (s *Service) reindex(ctx context.Context, p models.Product) {
	if s.Index == nil {
		return
	}
	if err := s.Index.IndexProduct(ctx, p); err != nil {
		logging.FromContext(ctx).Error("search_index_failed", "product_id", p.ID, "error", err)
	}
}
