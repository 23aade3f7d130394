// Package apperr is the error taxonomy shared by the order pipeline and the
// HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindDependency   Kind = "dependency"
	KindUnavailable  Kind = "unavailable"
	KindNotification Kind = "notification"
	KindNotFound     Kind = "not_found"
)

// Reasons reported with KindConflict.
const (
	ReasonInsufficientStock = "insufficient_stock"
	ReasonPriceMismatch     = "price_mismatch"
	ReasonProductInactive   = "product_inactive"
	ReasonOutOfStock        = "out_of_stock"
	ReasonTotalMismatch     = "total_mismatch"
	ReasonCouponNotFound    = "coupon_not_found"
	ReasonCouponInactive    = "coupon_inactive"
	ReasonCouponNotStarted  = "coupon_not_started"
	ReasonCouponExpired     = "coupon_expired"
	ReasonCouponExhausted   = "coupon_exhausted"
	ReasonCouponMinOrder    = "coupon_min_order"
	ReasonIllegalTransition = "illegal_transition"
	ReasonNotCancellable    = "not_cancellable"
	ReasonReferenced        = "referenced"
	ReasonPaymentNotPending = "payment_not_pending"
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind and, when set on the target, Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func Conflict(reason, message string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: message}
}

func ConflictOn(field, reason, message string) *Error {
	return &Error{Kind: KindConflict, Field: field, Reason: reason, Message: message}
}

func Dependency(message string) *Error {
	return &Error{Kind: KindDependency, Reason: ReasonReferenced, Message: message}
}

func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

func Notification(message string, err error) *Error {
	return &Error{Kind: KindNotification, Message: message, Err: err}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Sentinels for errors.Is checks.
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrDependency  = &Error{Kind: KindDependency}
	ErrUnavailable = &Error{Kind: KindUnavailable}
	ErrNotFound    = &Error{Kind: KindNotFound}
)

// KindOf returns the Kind of the first *Error in err's chain, or
// KindUnavailable for anything untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindDependency:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// StatusFor picks the response status for a list of errors: the first
// validation error wins, then conflicts, then the rest.
func StatusFor(errs []*Error) int {
	if len(errs) == 0 {
		return http.StatusOK
	}
	rank := map[Kind]int{KindValidation: 0, KindNotFound: 1, KindConflict: 2, KindDependency: 2}
	best := errs[0].Kind
	for _, e := range errs[1:] {
		r, ok := rank[e.Kind]
		br, bok := rank[best]
		if ok && (!bok || r < br) {
			best = e.Kind
		}
	}
	return HTTPStatus(best)
}
