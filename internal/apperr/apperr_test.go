package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesKindAndReason(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("place order: %w", Conflict(ReasonInsufficientStock, "Insufficient stock for Roses"))

	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, &Error{Kind: KindConflict, Reason: ReasonInsufficientStock})
	assert.NotErrorIs(t, err, &Error{Kind: KindConflict, Reason: ReasonPriceMismatch})
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindValidation, KindOf(Validation("items", "required")))
	assert.Equal(t, KindDependency, KindOf(fmt.Errorf("wrap: %w", Dependency("archive instead"))))
	assert.Equal(t, KindUnavailable, KindOf(errors.New("connection refused")))
}

func TestUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: timeout")
	err := Unavailable("Failed to process order placement", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Failed to process order placement: dial tcp: timeout", err.Error())
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		errs []*Error
		want int
	}{
		{name: "none", errs: nil, want: http.StatusOK},
		{name: "validation wins", errs: []*Error{Conflict(ReasonPriceMismatch, "x"), Validation("quantity", "y")}, want: http.StatusBadRequest},
		{name: "conflict", errs: []*Error{Conflict(ReasonInsufficientStock, "x")}, want: http.StatusConflict},
		{name: "dependency", errs: []*Error{Dependency("x")}, want: http.StatusConflict},
		{name: "unavailable", errs: []*Error{Unavailable("x", nil)}, want: http.StatusServiceUnavailable},
		{name: "not found before unavailable", errs: []*Error{Unavailable("x", nil), NotFound("y")}, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusFor(tt.errs))
		})
	}
}
