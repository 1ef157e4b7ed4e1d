package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/slotbook/internal/appointments"
	"github.com/wolfman30/slotbook/internal/cancellation"
	httpmiddleware "github.com/wolfman30/slotbook/internal/http/middleware"
	"github.com/wolfman30/slotbook/internal/identity"
	"github.com/wolfman30/slotbook/internal/payments"
	"github.com/wolfman30/slotbook/internal/slots"
	"github.com/wolfman30/slotbook/pkg/logging"
)

// HealthCheck reports on one dependency.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	SlotsHandler        *slots.Handler
	AppointmentsHandler *appointments.Handler
	CancelHandler       *cancellation.Handler
	CheckoutHandler     *payments.CheckoutHandler
	StripeWebhook       *payments.StripeWebhookHandler
	MetricsHandler      http.Handler
	HealthChecks        map[string]HealthCheck
	AuthSecret          string
	CORSAllowedOrigins  []string
	RateLimitRPS        float64
	RateLimitBurst      int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Holds and checkouts share one per-IP budget.
	limited := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimitRPS > 0 {
		limited = httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
		if cfg.SlotsHandler != nil {
			public.Get("/slots/{date}", cfg.SlotsHandler.ListAvailable)
		}
	})

	r.Group(func(authed chi.Router) {
		authed.Use(httpmiddleware.IdentityJWT(cfg.AuthSecret))

		authed.Route("/doctor", func(doctor chi.Router) {
			doctor.Use(httpmiddleware.RequireRole(identity.RoleDoctor))
			if cfg.SlotsHandler != nil {
				doctor.Post("/slots", cfg.SlotsHandler.CreateSlots)
				doctor.Patch("/appointments/{id}", cfg.SlotsHandler.Decide)
			}
			if cfg.AppointmentsHandler != nil {
				doctor.Get("/appointments", cfg.AppointmentsHandler.FilterForDoctor)
				doctor.Get("/appointments/paid", cfg.AppointmentsHandler.PaidForDoctor)
			}
		})

		authed.Route("/appointments", func(appts chi.Router) {
			patient := httpmiddleware.RequireRole(identity.RolePatient)
			if cfg.AppointmentsHandler != nil {
				appts.With(patient).Get("/", cfg.AppointmentsHandler.ListMine)
				appts.Get("/{id}", cfg.AppointmentsHandler.Get)
			}
			if cfg.SlotsHandler != nil {
				appts.With(patient, limited).Post("/", cfg.SlotsHandler.Hold)
				appts.With(patient).Put("/{id}", cfg.SlotsHandler.Update)
			}
			if cfg.CancelHandler != nil {
				appts.With(patient).Delete("/{id}", cfg.CancelHandler.Cancel)
			}
			if cfg.CheckoutHandler != nil {
				appts.With(patient, limited).Post("/{id}/checkout", cfg.CheckoutHandler.Checkout)
			}
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := map[string]string{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp[name] = err.Error()
				resp["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
