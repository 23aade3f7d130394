package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloombox/backend/pkg/tokens"
)

var testSecret = []byte("test-jwt-secret")

func issue(t *testing.T, role string) (string, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	tok, err := tokens.IssueAccess(testSecret, id.String(), role, "", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	return tok, id
}

func run(t *testing.T, mw echo.MiddlewareFunc, setup func(r *http.Request)) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if setup != nil {
		setup(req)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	return c, err
}

func statusOf(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()
	m := New(testSecret)

	_, err := run(t, m.RequireAuth, nil)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	_, err = run(t, m.RequireAuth, func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") })
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	tok, id := issue(t, tokens.RoleCustomer)
	c, err := run(t, m.RequireAuth, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) })
	require.NoError(t, err)
	got, ok := UserID(c)
	require.True(t, ok)
	assert.Equal(t, id, got)

	c, err = run(t, m.RequireAuth, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: tokens.AccessCookie, Value: tok}) })
	require.NoError(t, err)
	assert.False(t, IsAdmin(c))
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()
	m := New(testSecret)

	customer, _ := issue(t, tokens.RoleCustomer)
	_, err := run(t, m.RequireAdmin, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+customer) })
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	admin, _ := issue(t, tokens.RoleAdmin)
	c, err := run(t, m.RequireAdmin, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+admin) })
	require.NoError(t, err)
	assert.True(t, IsAdmin(c))
}

func TestOptionalAuth(t *testing.T) {
	t.Parallel()
	m := New(testSecret)

	c, err := run(t, m.OptionalAuth, nil)
	require.NoError(t, err)
	_, ok := UserID(c)
	assert.False(t, ok)

	tok, id := issue(t, tokens.RoleCustomer)
	c, err = run(t, m.OptionalAuth, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) })
	require.NoError(t, err)
	got, ok := UserID(c)
	require.True(t, ok)
	assert.Equal(t, id, got)
}
