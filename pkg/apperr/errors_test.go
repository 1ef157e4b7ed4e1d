package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	base := New(KindConflict, "slot was taken")
	wrapped := fmt.Errorf("reservations: hold: %w", base)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "slot was taken", MessageOf(wrapped))
	assert.True(t, errors.Is(wrapped, Conflict))
	assert.False(t, errors.Is(wrapped, Unavailable))
}

func TestKindOfUnclassified(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal error", MessageOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("stripe down")
	err := Wrap(KindRefundFailed, "failed to process refund", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "stripe down")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidInput:    http.StatusBadRequest,
		KindPaymentRequired: http.StatusPaymentRequired,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindConflict:        http.StatusConflict,
		KindInvalidState:    http.StatusConflict,
		KindUnavailable:     http.StatusUnprocessableEntity,
		KindRefundFailed:    http.StatusBadGateway,
		KindRateLimited:     http.StatusTooManyRequests,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), string(kind))
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, New(KindForbidden, "you can only update your own booked appointments"))

	require.Equal(t, http.StatusForbidden, rr.Code)
	var body map[string]Body
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, KindForbidden, body["error"].Kind)
	assert.Equal(t, "you can only update your own booked appointments", body["error"].Message)
}
