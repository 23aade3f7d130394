package repo_test

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/repo"
	"github.com/bloombox/backend/pkg/db"
)

func newSQLiteRepo(t *testing.T) *repo.GormRepo {
	t.Helper()
	ctx := context.Background()

	gdb, err := db.OpenSQLite(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	require.NoError(t, repo.Migrate(ctx, gdb))
	return repo.New(gdb)
}

func fakeProduct(stock int) *models.Product {
	return &models.Product{
		Name:          gofakeit.ProductName(),
		Description:   gofakeit.ProductDescription(),
		Price:         decimal.NewFromFloat(gofakeit.Price(50, 500)).Round(2),
		StockQuantity: stock,
		Active:        true,
	}
}

func fakeOrder(number string, userID *uuid.UUID, items ...models.OrderItem) *models.Order {
	return &models.Order{
		OrderNumber:      number,
		UserID:           userID,
		CustomerName:     gofakeit.Name(),
		CustomerPhone:    "+91" + gofakeit.Numerify("98########"),
		Status:           models.OrderStatusPending,
		PaymentStatus:    models.PaymentStatusPending,
		PaymentMethod:    models.PaymentCOD,
		Items:            items,
		Subtotal:         decimal.NewFromInt(200),
		DeliveryCharge:   decimal.NewFromInt(50),
		DiscountAmount:   decimal.Zero,
		PaymentCharges:   decimal.Zero,
		Total:            decimal.NewFromInt(250),
		DeliveryOptionID: uuid.New(),
		DeliveryAddress:  gofakeit.Street(),
	}
}

func countRows(t *testing.T, gdb *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(model).Count(&n).Error)
	return n
}
