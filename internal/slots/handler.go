package slots

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/slotbook/internal/identity"
	"github.com/wolfman30/slotbook/pkg/apperr"
	"github.com/wolfman30/slotbook/pkg/logging"
)

// Handler exposes slot publication, holds and doctor decisions over HTTP.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a slots handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

type slotsResponse struct {
	Message string  `json:"message,omitempty"`
	Slots   []*Slot `json:"slots"`
}

type appointmentResponse struct {
	Message     string `json:"message,omitempty"`
	Appointment *Slot  `json:"appointment"`
}

type decisionRequest struct {
	Status AppointmentStatus `json:"status"`
}

// CreateSlots handles POST /doctor/slots.
func (h *Handler) CreateSlots(w http.ResponseWriter, r *http.Request) {
	who, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.New(apperr.KindForbidden, "missing identity"))
		return
	}
	var req CreateSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.KindInvalidInput, "Invalid request body.", err))
		return
	}
	req.DoctorID = who.ID

	created, err := h.svc.CreateSlots(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create slots", err)
		return
	}
	writeJSON(w, http.StatusCreated, slotsResponse{Message: "Slots created successfully.", Slots: created})
}

// ListAvailable handles GET /slots/{date}.
func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListAvailable(r.Context(), chi.URLParam(r, "date"), r.URL.Query().Get("doctorId"))
	if err != nil {
		h.fail(w, r, "list available slots", err)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{Slots: list})
}

// Hold handles POST /appointments.
func (h *Handler) Hold(w http.ResponseWriter, r *http.Request) {
	who, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.New(apperr.KindForbidden, "missing identity"))
		return
	}
	var req HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.KindInvalidInput, "Invalid request body.", err))
		return
	}
	req.RequesterID = who.ID

	held, err := h.svc.Hold(r.Context(), req)
	if err != nil {
		h.fail(w, r, "hold slot", err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentResponse{
		Message:     "Slot held. Complete payment before the hold expires.",
		Appointment: held,
	})
}

// Update handles PUT /appointments/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	who, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.New(apperr.KindForbidden, "missing identity"))
		return
	}
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.KindInvalidInput, "Invalid request body.", err))
		return
	}
	req.SlotID = chi.URLParam(r, "id")
	req.RequesterID = who.ID

	updated, err := h.svc.UpdateHeld(r.Context(), req)
	if err != nil {
		h.fail(w, r, "update appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse{Message: "Appointment updated successfully.", Appointment: updated})
}

// Decide handles PATCH /doctor/appointments/{id}.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.KindInvalidInput, "Invalid request body.", err))
		return
	}
	updated, err := h.svc.Decide(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, "decide appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse{Message: "Appointment status updated.", Appointment: updated})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.WithContext(r.Context()).Error("failed to "+op, "error", err)
	}
	apperr.WriteJSON(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
