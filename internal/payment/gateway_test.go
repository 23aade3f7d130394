package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CreateOrder(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		gotBody map[string]any
		gotUser string
		gotPass string
		gotPath string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_K1","amount":25500,"currency":"INR","receipt":"BBORD202602140001","status":"created"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", "rzp_test_key", "s3cret")
	out, err := c.CreateOrder(context.Background(), 25500, "inr", "BBORD202602140001")
	require.NoError(t, err)
	assert.Equal(t, "order_K1", out.ID)
	assert.Equal(t, int64(25500), out.Amount)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/v1/orders", gotPath)
	assert.Equal(t, "rzp_test_key", gotUser)
	assert.Equal(t, "s3cret", gotPass)
	assert.Equal(t, "INR", gotBody["currency"])
	assert.EqualValues(t, 25500, gotBody["amount"])
	assert.Equal(t, "BBORD202602140001", gotBody["receipt"])
}

func TestClient_CreateOrder_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "k", "s")

	tests := []struct {
		name     string
		amount   int64
		currency string
		contains string
	}{
		{name: "gateway rejects", amount: 100, currency: "INR", contains: "amount too small"},
		{name: "unknown currency", amount: 100, currency: "XYZQ", contains: "currency"},
		{name: "zero amount", amount: 0, currency: "INR", contains: "positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := c.CreateOrder(context.Background(), tt.amount, tt.currency, "r")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	sig := Sign("s3cret", "order_K1", "pay_9")

	assert.True(t, VerifySignature("s3cret", "order_K1", "pay_9", sig))
	assert.False(t, VerifySignature("s3cret", "order_K1", "pay_8", sig))
	assert.False(t, VerifySignature("other", "order_K1", "pay_9", sig))
	assert.False(t, VerifySignature("s3cret", "order_K1", "pay_9", ""))
	assert.Len(t, sig, 64)
}

func TestMinorScale(t *testing.T) {
	t.Parallel()

	inr, err := minorScale("INR")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inr)

	jpy, err := minorScale("JPY")
	require.NoError(t, err)
	assert.Equal(t, int32(0), jpy)
}
