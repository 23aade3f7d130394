package checkout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderNumberPrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "BBORD20260214", OrderNumberPrefix(time.Date(2026, 2, 14, 23, 59, 0, 0, time.UTC)))
}

func TestNextOrderNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		last    string
		want    string
		wantErr bool
	}{
		{name: "first of the day", last: "", want: "BBORD202602140001"},
		{name: "increments", last: "BBORD202602140041", want: "BBORD202602140042"},
		{name: "grows past four digits", last: "BBORD202602149999", want: "BBORD2026021410000"},
		{name: "other day", last: "BBORD202602130007", wantErr: true},
		{name: "garbage suffix", last: "BBORD20260214abcd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NextOrderNumber("BBORD20260214", tt.last)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLowerBoundDays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{in: "1-4", want: 1, wantOK: true},
		{in: "3", want: 3, wantOK: true},
		{in: " 2 - 5 ", want: 2, wantOK: true},
		{in: "0", want: 0, wantOK: true},
		{in: "same day", wantOK: false},
		{in: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := LowerBoundDays(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
