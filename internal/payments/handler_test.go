package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/slotbook/internal/identity"
)

func checkoutRequest(slotID string, who *identity.Identity) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/appointments/"+slotID+"/checkout", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", slotID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if who != nil {
		ctx = identity.WithIdentity(ctx, *who)
	}
	return req.WithContext(ctx)
}

func TestCheckoutHandler(t *testing.T) {
	slotSvc, held := heldSlot(t)
	svc := NewCheckoutService(slotSvc, NewMemoryRepository(), &fakeCheckoutGateway{}, CheckoutConfig{AmountCents: 5000, Currency: "usd"}, nil)
	handler := NewCheckoutHandler(svc, nil)

	t.Run("holder gets a session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Checkout(rec, checkoutRequest(held.ID, &identity.Identity{ID: "u1", Role: identity.RolePatient}))
		require.Equal(t, http.StatusCreated, rec.Code)

		var body CheckoutResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body.URL)
		assert.Equal(t, StatusPending, body.Payment.Status)
	})

	t.Run("other patient is forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Checkout(rec, checkoutRequest(held.ID, &identity.Identity{ID: "u2", Role: identity.RolePatient}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Checkout(rec, checkoutRequest(held.ID, nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
