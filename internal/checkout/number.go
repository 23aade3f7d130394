package checkout

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const orderNumberPrefix = "BBORD"

// OrderNumberPrefix is the date-scoped part of an order number.
func OrderNumberPrefix(t time.Time) string {
	return orderNumberPrefix + t.Format("20060102")
}

// NextOrderNumber returns the number following last within prefix. The
// suffix is zero-padded to four digits and simply grows past 9999.
func NextOrderNumber(prefix, last string) (string, error) {
	if last == "" {
		return prefix + "0001", nil
	}
	suffix, ok := strings.CutPrefix(last, prefix)
	if !ok {
		return "", fmt.Errorf("order number %q does not start with %q", last, prefix)
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return "", fmt.Errorf("order number %q: bad suffix: %w", last, err)
	}
	return fmt.Sprintf("%s%04d", prefix, n+1), nil
}

// LowerBoundDays reads the first number of an estimate such as "1-4" or "3".
func LowerBoundDays(estimate string) (int, bool) {
	first, _, _ := strings.Cut(estimate, "-")
	n, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
