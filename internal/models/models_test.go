package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	t.Parallel()

	for s := range validOrderStatuses {
		got, err := ParseOrderStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseOrderStatus("refunded")
	assert.Error(t, err)
	_, err = ParseOrderStatus("Pending")
	assert.Error(t, err)
}

func TestOrderStatus_Sets(t *testing.T) {
	t.Parallel()

	assert.True(t, OrderStatusPending.Cancellable())
	assert.True(t, OrderStatusProcessing.Cancellable())
	assert.False(t, OrderStatusShipped.Cancellable())
	assert.False(t, OrderStatusDelivered.Cancellable())
	assert.True(t, OrderStatusDelivered.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatusShipped.Terminal())
}

func TestPaymentMethod(t *testing.T) {
	t.Parallel()

	m, err := ParsePaymentMethod("UPI")
	require.NoError(t, err)
	assert.True(t, m.Prepaid())
	assert.False(t, PaymentCOD.Prepaid())

	_, err = ParsePaymentMethod("cheque")
	assert.Error(t, err)
}

func TestOrder_TotalConsistent(t *testing.T) {
	t.Parallel()

	o := Order{
		Subtotal:       decimal.NewFromInt(200),
		DeliveryCharge: decimal.NewFromInt(50),
		DiscountAmount: decimal.NewFromInt(15),
		PaymentCharges: decimal.RequireFromString("4.70"),
		Total:          decimal.RequireFromString("239.70"),
	}
	assert.True(t, o.TotalConsistent())

	o.Total = decimal.RequireFromString("239.71")
	assert.True(t, o.TotalConsistent())

	o.Total = decimal.RequireFromString("239.72")
	assert.False(t, o.TotalConsistent())
}

func TestCoupon_Exhausted(t *testing.T) {
	t.Parallel()

	limit := 2
	c := Coupon{UsageLimit: &limit, TimesUsed: 1}
	assert.False(t, c.Exhausted())
	c.TimesUsed = 2
	assert.True(t, c.Exhausted())
	c.UsageLimit = nil
	assert.False(t, c.Exhausted())
}

func TestNormalizeCouponCode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "SPRING10", NormalizeCouponCode("  spring10 "))
}

func TestAddress_Format(t *testing.T) {
	t.Parallel()

	a := Address{Line1: "12 MG Road", City: "Bengaluru", State: "KA", PostalCode: "560001"}
	assert.Equal(t, "12 MG Road, Bengaluru, KA - 560001", a.Format())
}
