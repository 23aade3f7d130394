package checkout

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/pricing"
	"github.com/bloombox/backend/internal/repo/memrepo"
	"github.com/bloombox/backend/internal/store"
)

var fixedNow = time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type fixture struct {
	repo     *memrepo.Repo
	svc      *Service
	delivery *models.DeliveryOption
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	r := memrepo.New()
	d := &models.DeliveryOption{Name: "Standard", Price: dec("50"), EstimatedDays: "1-4", IsActive: true}
	require.NoError(t, r.CreateDeliveryOption(context.Background(), d))

	engine := pricing.NewEngine(r, r)
	engine.Now = func() time.Time { return fixedNow }

	svc := NewService(r, engine, nil)
	svc.Now = func() time.Time { return fixedNow }

	return &fixture{repo: r, svc: svc, delivery: d}
}

func (f *fixture) product(t *testing.T, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:          gofakeit.ProductName(),
		Description:   gofakeit.ProductDescription(),
		Price:         dec(price),
		StockQuantity: stock,
		Active:        true,
	}
	require.NoError(t, f.repo.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) coupon(t *testing.T, c *models.Coupon) {
	t.Helper()
	require.NoError(t, f.repo.CreateCoupon(context.Background(), c))
}

func (f *fixture) input(items ...LineItem) PlacementInput {
	return PlacementInput{
		CustomerName:     gofakeit.Name(),
		CustomerPhone:    "98" + gofakeit.Numerify("########"),
		CustomerEmail:    gofakeit.Email(),
		Items:            items,
		DeliveryOptionID: f.delivery.ID,
		PaymentMethod:    string(models.PaymentCOD),
		DeliveryAddress:  gofakeit.Street() + ", Pune - 411001",
	}
}

func line(p *models.Product, qty int) LineItem {
	return LineItem{ProductID: p.ID, Quantity: qty, UnitPrice: p.Price}
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

// dupStore reports a duplicate order number for the first n inserts.
type dupStore struct {
	*memrepo.Repo
	left *atomic.Int32
}

func (d dupStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return d.Repo.WithTx(ctx, func(tx store.Store) error {
		return fn(dupTx{Store: tx, left: d.left})
	})
}

type dupTx struct {
	store.Store
	left *atomic.Int32
}

func (d dupTx) CreateOrder(ctx context.Context, o *models.Order) error {
	if d.left.Add(-1) >= 0 {
		return store.ErrDuplicate
	}
	return d.Store.CreateOrder(ctx, o)
}

type recordingBackground struct {
	names []string
	tasks []func(ctx context.Context) error
}

func (b *recordingBackground) Submit(name string, task func(ctx context.Context) error) bool {
	b.names = append(b.names, name)
	b.tasks = append(b.tasks, task)
	return true
}

func decimalNull(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}
