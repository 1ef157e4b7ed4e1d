package cancellation

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/slotbook/internal/identity"
	"github.com/wolfman30/slotbook/pkg/apperr"
	"github.com/wolfman30/slotbook/pkg/logging"
)

// Handler serves DELETE /appointments/{id}.
type Handler struct {
	engine *Engine
	logger *logging.Logger
}

func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

type cancelResponse struct {
	Message     string        `json:"message"`
	Note        string        `json:"note"`
	Appointment any           `json:"appointment"`
	Refund      RefundOutcome `json:"refund"`
}

// Cancel releases the caller's appointment. A failed refund still answers
// 200 because the slot release has been committed.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	who, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.New(apperr.KindForbidden, "missing identity"))
		return
	}
	result, err := h.engine.Cancel(r.Context(), chi.URLParam(r, "id"), who.ID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.logger.WithContext(r.Context()).Error("cancel failed", "error", err)
		}
		apperr.WriteJSON(w, err)
		return
	}
	if result.RefundErr != nil {
		h.logger.WithContext(r.Context()).Warn("appointment released without refund",
			"slot_id", result.Slot.ID, "error", result.RefundErr)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(cancelResponse{
		Message:     "Appointment cancelled successfully.",
		Note:        result.Note,
		Appointment: result.Slot,
		Refund:      result.Refund,
	})
}
