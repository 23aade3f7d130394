package notify

import (
	"errors"
	"strings"
	"unicode"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizeE164 strips formatting from phone and returns it in E.164 form.
// Local numbers without a country code get defaultCC ("+91").
func NormalizeE164(phone, defaultCC string) (string, error) {
	phone = strings.TrimSpace(phone)
	plus := strings.HasPrefix(phone, "+")

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)

	cc := strings.TrimPrefix(defaultCC, "+")
	switch {
	case plus:
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = cc + digits[1:]
	case len(digits) == 10:
		digits = cc + digits
	}

	if len(digits) < 8 || len(digits) > 15 || digits[0] == '0' {
		return "", ErrInvalidPhone
	}
	return "+" + digits, nil
}
