package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/repo/memrepo"
)

func product(t *testing.T, r *memrepo.Repo, name, price string, stock int, active bool) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock, Active: active}
	require.NoError(t, r.CreateProduct(context.Background(), p))
	return p
}

func TestService_AddAndGet(t *testing.T) {
	t.Parallel()

	r := memrepo.New()
	svc := NewService(r)
	ctx := context.Background()
	user := uuid.New()

	roses := product(t, r, "Roses", "100", 10, true)
	lilies := product(t, r, "Lilies", "80.50", 1, true)

	_, err := svc.Add(ctx, user, roses.ID, 2)
	require.NoError(t, err)
	item, err := svc.Add(ctx, user, roses.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)
	_, err = svc.Add(ctx, user, lilies.ID, 1)
	require.NoError(t, err)

	view, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "Lilies", view.Items[0].Product.Name)
	assert.Equal(t, "380.5", view.Subtotal.String())

	other, err := svc.Get(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other.Items)
}

func TestService_GetMarksUnavailable(t *testing.T) {
	t.Parallel()

	r := memrepo.New()
	svc := NewService(r)
	ctx := context.Background()
	user := uuid.New()

	p := product(t, r, "Tulips", "60", 2, true)
	_, err := svc.Add(ctx, user, p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, r.SetProductActive(ctx, p.ID, false))

	view, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.False(t, view.Items[0].Available)
	assert.True(t, view.Subtotal.IsZero())

	require.NoError(t, r.DeleteProduct(ctx, p.ID))
	view, err = svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestService_AddRejections(t *testing.T) {
	t.Parallel()

	r := memrepo.New()
	svc := NewService(r)
	archived := product(t, r, "Old", "10", 5, false)
	soldOut := product(t, r, "Gone", "10", 0, true)
	live := product(t, r, "Live", "10", 5, true)

	tests := []struct {
		name    string
		product uuid.UUID
		qty     int
		want    error
	}{
		{name: "nil product", product: uuid.Nil, qty: 1, want: apperr.ErrValidation},
		{name: "zero quantity", product: live.ID, qty: 0, want: apperr.ErrValidation},
		{name: "huge quantity", product: live.ID, qty: 100, want: apperr.ErrValidation},
		{name: "unknown product", product: uuid.New(), qty: 1, want: apperr.ErrNotFound},
		{name: "archived", product: archived.ID, qty: 1, want: &apperr.Error{Kind: apperr.KindConflict, Reason: apperr.ReasonProductInactive}},
		{name: "sold out", product: soldOut.ID, qty: 1, want: &apperr.Error{Kind: apperr.KindConflict, Reason: apperr.ReasonOutOfStock}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Add(context.Background(), uuid.New(), tt.product, tt.qty)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_RemoveAndClear(t *testing.T) {
	t.Parallel()

	r := memrepo.New()
	svc := NewService(r)
	ctx := context.Background()
	user := uuid.New()
	a := product(t, r, "A", "10", 5, true)
	b := product(t, r, "B", "10", 5, true)

	_, err := svc.Add(ctx, user, a.ID, 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, user, b.ID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, user, a.ID))
	assert.ErrorIs(t, svc.Remove(ctx, user, a.ID), apperr.ErrNotFound)

	require.NoError(t, svc.Clear(ctx, user))
	view, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestAddresses(t *testing.T) {
	t.Parallel()

	r := memrepo.New()
	svc := NewAddresses(r)
	ctx := context.Background()
	user := uuid.New()

	addr, err := svc.Create(ctx, user, models.Address{Line1: " 12 MG Road ", City: "Pune", PostalCode: "411001"})
	require.NoError(t, err)
	assert.Equal(t, "12 MG Road", addr.Line1)
	assert.Equal(t, user, addr.UserID)

	list, err := svc.List(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, addr.ID, list[0].ID)

	tests := []struct {
		name  string
		in    models.Address
		field string
	}{
		{name: "no line", in: models.Address{City: "Pune", PostalCode: "411001"}, field: "line1"},
		{name: "no city", in: models.Address{Line1: "x", PostalCode: "411001"}, field: "city"},
		{name: "bad postal code", in: models.Address{Line1: "x", City: "Pune", PostalCode: "41#"}, field: "postal_code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Create(ctx, user, tt.in)
			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.field, ae.Field)
		})
	}
}
