package cart

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
)

// Addresses manages the delivery addresses a customer saves for checkout.
type Addresses struct {
	Store store.AddressStore
}

func NewAddresses(st store.AddressStore) *Addresses {
	return &Addresses{Store: st}
}

func (a *Addresses) List(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	out, err := a.Store.ListAddresses(ctx, userID)
	if err != nil {
		return nil, apperr.Unavailable("Failed to load addresses", err)
	}
	return out, nil
}

func (a *Addresses) Create(ctx context.Context, userID uuid.UUID, in models.Address) (*models.Address, error) {
	addr := &models.Address{
		UserID:     userID,
		Label:      strings.TrimSpace(in.Label),
		Line1:      strings.TrimSpace(in.Line1),
		Line2:      strings.TrimSpace(in.Line2),
		City:       strings.TrimSpace(in.City),
		State:      strings.TrimSpace(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Phone:      strings.TrimSpace(in.Phone),
	}

	switch {
	case addr.Line1 == "":
		return nil, apperr.Validation("line1", "Address line is required")
	case addr.City == "":
		return nil, apperr.Validation("city", "City is required")
	case !validPostalCode(addr.PostalCode):
		return nil, apperr.Validation("postal_code", "Postal code is not valid")
	}

	if err := a.Store.CreateAddress(ctx, addr); err != nil {
		return nil, apperr.Unavailable("Failed to save address", err)
	}
	return addr, nil
}

func validPostalCode(s string) bool {
	if len(s) < 4 || len(s) > 10 {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && !unicode.IsLetter(r) && r != ' ' && r != '-'
	}) < 0
}
