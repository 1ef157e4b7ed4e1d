package payments

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/slotbook/internal/identity"
	"github.com/wolfman30/slotbook/pkg/apperr"
	"github.com/wolfman30/slotbook/pkg/logging"
)

// CheckoutHandler serves POST /appointments/{id}/checkout.
type CheckoutHandler struct {
	svc    *CheckoutService
	logger *logging.Logger
}

// NewCheckoutHandler creates a checkout handler.
func NewCheckoutHandler(svc *CheckoutService, logger *logging.Logger) *CheckoutHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckoutHandler{svc: svc, logger: logger}
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	who, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.New(apperr.KindForbidden, "missing identity"))
		return
	}
	result, err := h.svc.Checkout(r.Context(), chi.URLParam(r, "id"), who.ID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.logger.WithContext(r.Context()).Error("checkout failed", "error", err)
		}
		apperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)
}
