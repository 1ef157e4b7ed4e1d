package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an expected failure of a core operation.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindUnavailable     Kind = "unavailable"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindInvalidState    Kind = "invalid_state"
	KindPaymentRequired Kind = "payment_required"
	KindRefundFailed    Kind = "refund_failed"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal"
)

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinel comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Message == "" && other.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinels for errors.Is checks: apperr.Is(err, apperr.NotFound).
var (
	InvalidInput    = &Error{Kind: KindInvalidInput}
	Unavailable     = &Error{Kind: KindUnavailable}
	Conflict        = &Error{Kind: KindConflict}
	NotFound        = &Error{Kind: KindNotFound}
	Forbidden       = &Error{Kind: KindForbidden}
	InvalidState    = &Error{Kind: KindInvalidState}
	PaymentRequired = &Error{Kind: KindPaymentRequired}
	RefundFailed    = &Error{Kind: KindRefundFailed}
)

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal error"
}

// HTTPStatus maps a kind to its transport status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindPaymentRequired:
		return http.StatusPaymentRequired
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusUnprocessableEntity
	case KindRefundFailed:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON shape of an error response.
type Body struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// ToBody renders err for a response payload.
func ToBody(err error) Body {
	return Body{Kind: KindOf(err), Message: MessageOf(err)}
}

// WriteJSON writes err as a structured JSON error response.
func WriteJSON(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(map[string]Body{"error": ToBody(err)})
}

// WriteJSONStatus writes an error body for transport-level failures that have
// no domain kind, such as 401 or 429.
func WriteJSONStatus(w http.ResponseWriter, status int, kind Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]Body{"error": {Kind: kind, Message: message}})
}
