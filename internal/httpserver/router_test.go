package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloombox/backend/internal/cart"
	"github.com/bloombox/backend/internal/catalog"
	"github.com/bloombox/backend/internal/checkout"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/notify"
	"github.com/bloombox/backend/internal/orders"
	"github.com/bloombox/backend/internal/otp"
	"github.com/bloombox/backend/internal/payment"
	"github.com/bloombox/backend/internal/pricing"
	"github.com/bloombox/backend/internal/repo/memrepo"
	"github.com/bloombox/backend/internal/scheduler"
	"github.com/bloombox/backend/internal/search"
	"github.com/bloombox/backend/pkg/cache"
	"github.com/bloombox/backend/pkg/logging"
	"github.com/bloombox/backend/pkg/tokens"
)

var secret = []byte("router-test-secret")

type smsOutbox struct {
	mu     sync.Mutex
	bodies []string
}

func (o *smsOutbox) SendSMS(to, body string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bodies = append(o.bodies, body)
	return "sms-1", nil
}

func (o *smsOutbox) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bodies[len(o.bodies)-1]
}

type stubGateway struct{}

func (stubGateway) CreateOrder(_ context.Context, amount int64, cur, receipt string) (payment.GatewayOrder, error) {
	return payment.GatewayOrder{ID: "order_" + receipt, Amount: amount, Currency: cur, Receipt: receipt}, nil
}

type server struct {
	e        *echo.Echo
	repo     *memrepo.Repo
	outbox   *smsOutbox
	delivery *models.DeliveryOption
	product  *models.Product
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	log := logging.Discard()

	r := memrepo.New()
	d := &models.DeliveryOption{Name: "Standard", Price: decimal.NewFromInt(50), EstimatedDays: "1-3", IsActive: true}
	require.NoError(t, r.CreateDeliveryOption(ctx, d))
	p := &models.Product{Name: "Red Roses", Description: "A dozen red roses", Price: decimal.NewFromInt(250), StockQuantity: 10, Active: true}
	require.NoError(t, r.CreateProduct(ctx, p))

	outbox := &smsOutbox{}
	searchSvc := search.NewService(nil, "", r, log)
	orderSvc := orders.NewService(r, nil)

	e := echo.New()
	Register(e, &Deps{
		Catalog:  &CatalogHTTP{Svc: catalog.NewService(r, searchSvc), Search: searchSvc},
		Cart:     &CartHTTP{Svc: cart.NewService(r), Addresses: cart.NewAddresses(r)},
		Checkout: &CheckoutHTTP{Svc: checkout.NewService(r, pricing.NewEngine(r, r), nil)},
		Orders:   &OrdersHTTP{Svc: orderSvc},
		Payment:  &PaymentHTTP{Svc: payment.NewService(r, stubGateway{}, "INR", "key", "s3cret")},
		Auth:     &AuthHTTP{OTP: otp.NewService(cache.NewMemoryCache("test"), r, outbox, secret, "+91")},
		Admin: &AdminHTTP{
			Scheduler: scheduler.New(r, orderSvc, time.Minute, log),
			Queues:    []*notify.Queue{notify.NewQueue("sms", notify.ChannelSMS, nil, log)},
		},
		JWTSecret: secret,
	})
	return &server{e: e, repo: r, outbox: outbox, delivery: d, product: p}
}

func (s *server) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, role string) (string, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	tok, err := tokens.IssueAccess(secret, id.String(), role, "", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	return tok, id
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// orderBody builds a placement for one rose bunch; total is the client's
// claim and is left out when empty.
func (s *server) orderBody(total string) string {
	body := map[string]any{
		"customer_name":      "Asha Rao",
		"customer_phone":     "9876543210",
		"items":              []map[string]any{{"product_id": s.product.ID, "quantity": 1, "unit_price": "250"}},
		"delivery_option_id": s.delivery.ID,
		"payment_method":     "COD",
		"delivery_address":   "12 MG Road, Pune - 411001",
	}
	if total != "" {
		body["total"] = total
	}
	b, _ := json.Marshal(body)
	return string(b)
}

type errorsResponse struct {
	Errors []struct {
		Kind   string `json:"kind"`
		Field  string `json:"field"`
		Reason string `json:"reason"`
	} `json:"errors"`
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", "", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", "", "").Code)

	e := echo.New()
	Register(e, &Deps{Ready: func(context.Context) error { return errors.New("db down") }})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/products?page=1&size=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []models.Product `json:"data"`
		Meta catalog.PageMeta `json:"meta"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Data, 1)
	assert.EqualValues(t, 1, list.Meta.Total)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/products/"+s.product.ID.String(), "", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/products/"+uuid.NewString(), "", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/products/not-a-uuid", "", "").Code)

	rec = s.do(t, http.MethodGet, "/api/v1/search?q=roses", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Len(t, list.Data, 1)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/delivery-options", "", "").Code)
}

func TestPlaceOrder_Guest(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", s.orderBody("300"), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		Order   models.Order      `json:"order"`
		Pricing pricing.Breakdown `json:"pricing"`
	}
	decode(t, rec, &out)
	assert.True(t, strings.HasPrefix(out.Order.OrderNumber, "BBORD"))
	assert.True(t, decimal.NewFromInt(300).Equal(out.Pricing.Total))
	assert.Nil(t, out.Order.UserID)

	p, err := s.repo.GetProduct(context.Background(), s.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, p.StockQuantity)
}

func TestPlaceOrder_Rejected(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", s.orderBody("1"), "")
	require.Equal(t, http.StatusConflict, rec.Code)
	var body errorsResponse
	decode(t, rec, &body)
	require.NotEmpty(t, body.Errors)
	assert.Equal(t, "total_mismatch", body.Errors[0].Reason)

	rec = s.do(t, http.MethodPost, "/api/v1/orders", `{"items":[]}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/checkout/quote", s.orderBody(""), "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestOTPLoginAndCart(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/otp/request", `{"phone":"9876543210"}`, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	code := regexp.MustCompile(`\b\d{6}\b`).FindString(s.outbox.last())
	require.NotEmpty(t, code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/otp/verify", `{"phone":"9876543210","code":"`+code+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess otp.Session
	decode(t, rec, &sess)
	require.NotEmpty(t, sess.Token)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/cart", "", "").Code)

	rec = s.do(t, http.MethodPost, "/api/v1/cart", `{"product_id":"`+s.product.ID.String()+`","quantity":2}`, sess.Token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/cart", "", sess.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var view cart.View
	decode(t, rec, &view)
	require.Len(t, view.Items, 1)
	assert.True(t, decimal.NewFromInt(500).Equal(view.Subtotal))
}

func TestOrdersAndAdmin(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	customer, customerID := token(t, tokens.RoleCustomer)
	admin, _ := token(t, tokens.RoleAdmin)

	require.NoError(t, s.repo.CreateUser(context.Background(), &models.User{ID: customerID, Phone: "+919876543210", Role: tokens.RoleCustomer}))
	rec := s.do(t, http.MethodPost, "/api/v1/orders", s.orderBody(""), customer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed struct {
		Order models.Order `json:"order"`
	}
	decode(t, rec, &placed)
	orderPath := "/api/v1/orders/" + placed.Order.ID.String()

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, orderPath, "", customer).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, orderPath+"/history", "", customer).Code)

	other, _ := token(t, tokens.RoleCustomer)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, orderPath, "", other).Code)

	statusPath := "/api/v1/admin/orders/" + placed.Order.ID.String() + "/status"
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPatch, statusPath, `{"status":"confirmed"}`, customer).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPatch, statusPath, `{"status":"lost"}`, admin).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPatch, statusPath, `{"status":"delivered"}`, admin).Code)

	rec = s.do(t, http.MethodPatch, statusPath, `{"status":"shipped","force":true}`, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, orderPath+"/cancel", `{"reason":"too late"}`, customer)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/admin/products/"+s.product.ID.String(), "", admin)
	require.Equal(t, http.StatusConflict, rec.Code)
	var body errorsResponse
	decode(t, rec, &body)
	assert.Equal(t, "dependency", body.Errors[0].Kind)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/admin/products/"+s.product.ID.String()+"/archive", "", admin).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/admin/scheduler", "", admin).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/admin/scheduler/run", "", admin).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/admin/queues", "", admin).Code)
}

func TestPayments(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	customer, customerID := token(t, tokens.RoleCustomer)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(s.orderBody("")), &body))
	body["payment_method"] = "UPI"
	raw, _ := json.Marshal(body)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", string(raw), customer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed struct {
		Order models.Order `json:"order"`
	}
	decode(t, rec, &placed)
	require.Equal(t, customerID, *placed.Order.UserID)

	rec = s.do(t, http.MethodPost, "/api/v1/payments/orders/"+placed.Order.ID.String(), "", customer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var co payment.Checkout
	decode(t, rec, &co)

	verify := func(sig string) int {
		b, _ := json.Marshal(map[string]string{
			"order_id":         placed.Order.ID.String(),
			"gateway_order_id": co.GatewayOrderID,
			"payment_id":       "pay_1",
			"signature":        sig,
		})
		return s.do(t, http.MethodPost, "/api/v1/payments/verify", string(b), customer).Code
	}
	assert.Equal(t, http.StatusBadRequest, verify("bad"))
	assert.Equal(t, http.StatusOK, verify(payment.Sign("s3cret", co.GatewayOrderID, "pay_1")))
}
