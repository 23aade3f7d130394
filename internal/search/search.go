// Package search finds products by text. Elasticsearch is used when
// configured; the database is the fallback.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
	"github.com/bloombox/backend/pkg/logging"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Document is what gets indexed for a product.
type Document struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	InStock       bool            `json:"in_stock"`
	Active        bool            `json:"active"`
}

func documentOf(p models.Product) Document {
	return Document{
		ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price,
		StockQuantity: p.StockQuantity, InStock: p.InStock, Active: p.Active,
	}
}

func (d Document) product() models.Product {
	return models.Product{
		ID: d.ID, Name: d.Name, Description: d.Description, Price: d.Price,
		StockQuantity: d.StockQuantity, InStock: d.InStock, Active: d.Active,
	}
}

type Results struct {
	Total int64            `json:"total"`
	Items []models.Product `json:"items"`
}

type Service struct {
	ES       *elasticsearch.Client
	Index    string
	Products store.ProductStore
	log      *slog.Logger
}

// NewService returns a search service. es may be nil.
func NewService(es *elasticsearch.Client, index string, products store.ProductStore, log *slog.Logger) *Service {
	return &Service{ES: es, Index: index, Products: products, log: log.With("svc", "search")}
}

func (s *Service) Search(ctx context.Context, rawQ string, offset, limit int) (Results, error) {
	q := strings.TrimSpace(rawQ)
	if q == "" {
		return Results{Items: []models.Product{}}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	offset = max(offset, 0)

	if s.ES != nil {
		res, err := s.searchES(ctx, q, offset, limit)
		if err == nil {
			return res, nil
		}
		logging.FromContext(ctx).Warn("search_fallback", "reason", "elasticsearch failed", "error", err)
	}

	total, items, err := s.Products.SearchProducts(ctx, q, offset, limit)
	if err != nil {
		return Results{}, apperr.Unavailable("Search is unavailable", err)
	}
	return Results{Total: total, Items: items}, nil
}

func (s *Service) searchES(ctx context.Context, q string, from, size int) (Results, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     q,
						"fields":    []string{"name^2", "description"},
						"fuzziness": "AUTO",
					},
				},
				"filter": []any{
					map[string]any{"term": map[string]any{"active": true}},
				},
			},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return Results{}, fmt.Errorf("encode query: %w", err)
	}

	res, err := s.ES.Search(
		s.ES.Search.WithContext(ctx),
		s.ES.Search.WithIndex(s.Index),
		s.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return Results{}, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return Results{}, responseError("search", res.Status(), res.Body)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return Results{}, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.Product, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		items[i] = hit.Source.product()
	}
	return Results{Total: r.Hits.Total.Value, Items: items}, nil
}

// IndexProduct writes or replaces the product's document.
func (s *Service) IndexProduct(ctx context.Context, p models.Product) error {
	if s.ES == nil {
		return nil
	}
	data, err := json.Marshal(documentOf(p))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	res, err := s.ES.Index(s.Index, bytes.NewReader(data),
		s.ES.Index.WithContext(ctx),
		s.ES.Index.WithDocumentID(p.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("index product %s: %w", p.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index", res.Status(), res.Body)
	}
	return nil
}

func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if s.ES == nil {
		return nil
	}
	res, err := s.ES.Delete(s.Index, id.String(), s.ES.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return responseError("delete", res.Status(), res.Body)
	}
	return nil
}

// Reindex refreshes the documents of the given products from the store,
// typically after an order changed their stock.
func (s *Service) Reindex(ctx context.Context, ids []uuid.UUID) error {
	if s.ES == nil {
		return nil
	}
	start := time.Now()
	var failed int
	for _, id := range ids {
		p, err := s.Products.GetProduct(ctx, id)
		if err != nil {
			failed++
			s.log.Warn("reindex_lookup_failed", "product_id", id, "error", err)
			continue
		}
		if err := s.IndexProduct(ctx, *p); err != nil {
			failed++
			s.log.Warn("reindex_failed", "product_id", id, "error", err)
		}
	}
	s.log.Info("reindex_done", "products", len(ids), "failed", failed, "took", time.Since(start).String())
	if failed > 0 {
		return fmt.Errorf("reindex: %d of %d products failed", failed, len(ids))
	}
	return nil
}

func responseError(op, status string, body io.Reader) error {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	return fmt.Errorf("elasticsearch %s: %s: %s", op, status, raw)
}
