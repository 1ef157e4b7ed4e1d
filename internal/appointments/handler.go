package appointments

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/slotbook/internal/identity"
	"github.com/wolfman30/slotbook/internal/slots"
	"github.com/wolfman30/slotbook/pkg/apperr"
	"github.com/wolfman30/slotbook/pkg/logging"
)

// Handler exposes the appointment read endpoints.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

type listResponse struct {
	Appointments []*slots.Slot `json:"appointments"`
}

type itemResponse struct {
	Appointment *slots.Slot `json:"appointment"`
}

// ListMine handles GET /appointments.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ByOwner(r.Context(), who.ID)
	if err != nil {
		h.fail(w, r, "list appointments", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Appointments: list})
}

// Get handles GET /appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	slot, err := h.svc.ByID(r.Context(), chi.URLParam(r, "id"), who)
	if err != nil {
		h.fail(w, r, "get appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{Appointment: slot})
}

// FilterForDoctor handles GET /doctor/appointments?date=&status=.
func (h *Handler) FilterForDoctor(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	list, err := h.svc.FilterForDoctor(r.Context(), who.ID, q.Get("date"), q.Get("status"))
	if err != nil {
		h.fail(w, r, "filter appointments", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Appointments: list})
}

// PaidForDoctor handles GET /doctor/appointments/paid.
func (h *Handler) PaidForDoctor(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	list, err := h.svc.PaidForDoctor(r.Context(), who.ID)
	if err != nil {
		h.fail(w, r, "list paid appointments", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Appointments: list})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	who, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.New(apperr.KindForbidden, "missing identity"))
	}
	return who, ok
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.WithContext(r.Context()).Error(op+" failed", "error", err)
	}
	apperr.WriteJSON(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
