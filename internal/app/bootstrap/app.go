package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/slotbook/internal/api/router"
	"github.com/wolfman30/slotbook/internal/appointments"
	"github.com/wolfman30/slotbook/internal/cancellation"
	appconfig "github.com/wolfman30/slotbook/internal/config"
	"github.com/wolfman30/slotbook/internal/events"
	"github.com/wolfman30/slotbook/internal/observability/metrics"
	"github.com/wolfman30/slotbook/internal/payments"
	"github.com/wolfman30/slotbook/internal/slots"
	"github.com/wolfman30/slotbook/pkg/logging"
)

// App is the assembled HTTP service.
type App struct {
	Handler  http.Handler
	Registry *prometheus.Registry
	Metrics  *metrics.ReservationMetrics

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Close releases the database pool and Redis client.
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// Build wires stores, services and handlers from cfg. Without DATABASE_URL
// every store lives in memory; without REDIS_ADDR processed webhook events
// are tracked in Postgres, or in memory when there is no database either.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reservationMetrics := metrics.NewReservationMetrics(registry)

	pool, err := BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Registry: registry, Metrics: reservationMetrics, pool: pool}
	app.redis = BuildRedisClient(ctx, cfg, logger, true)

	var (
		slotStore   slots.Store
		paymentRepo payments.Repository
		tracker     events.Tracker
	)
	if pool != nil {
		slotStore = slots.NewPostgresStore(pool)
		paymentRepo = payments.NewPostgresRepository(pool)
		tracker = events.NewProcessedStore(pool, events.DefaultProcessedTTL)
		logger.Info("using postgres stores")
	} else {
		slotStore = slots.NewMemoryStore()
		paymentRepo = payments.NewMemoryRepository()
		tracker = events.NewMemoryProcessedStore()
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}
	if app.redis != nil {
		tracker = events.NewRedisProcessedStore(app.redis, events.DefaultProcessedTTL)
		logger.Info("using redis for processed webhook events")
	}

	cal := slots.NewCalendar(loc)
	slotSvc := slots.NewService(slotStore, cal, logger.With("component", "slots")).
		WithHoldDuration(cfg.HoldDuration).
		WithOvernightWindows(cfg.AllowOvernightWindows).
		WithMetrics(reservationMetrics).
		WithRelinker(paymentRepo)

	stripe := payments.NewStripeClient(cfg.StripeSecretKey, logger.With("component", "stripe")).
		WithBaseURL(cfg.StripeBaseURL)

	checkoutSvc := payments.NewCheckoutService(slotSvc, paymentRepo, stripe, payments.CheckoutConfig{
		AmountCents: cfg.AppointmentPriceCents,
		Currency:    cfg.AppointmentCurrency,
		SuccessURL:  cfg.StripeSuccessURL,
		CancelURL:   cfg.StripeCancelURL,
	}, logger.With("component", "checkout"))
	if app.redis != nil {
		checkoutSvc.WithVelocity(payments.NewVelocityChecker(app.redis, payments.VelocityConfig{
			MaxCheckoutsPerUser: cfg.CheckoutMaxPerHour,
			CheckoutWindow:      time.Hour,
		}, logger.With("component", "checkout_velocity")))
	}

	policy := cancellation.Policy{
		FullRefundWindow: cfg.FullRefundWindow,
		LateFeePercent:   int64(cfg.LateCancelFeePercent),
	}
	engine := cancellation.NewEngine(slotSvc, paymentRepo, stripe, policy, logger.With("component", "cancellation")).
		WithMetrics(reservationMetrics)

	querySvc := appointments.NewService(slotStore, paymentRepo, cal, logger.With("component", "appointments"))

	webhook := payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, paymentRepo, slotSvc, tracker,
		reservationMetrics, logger.With("component", "stripe_webhook"))

	checks := map[string]router.HealthCheck{}
	if pool != nil {
		checks["database"] = pool.Ping
	}
	if app.redis != nil {
		client := app.redis
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	app.Handler = router.New(&router.Config{
		Logger:              logger,
		SlotsHandler:        slots.NewHandler(slotSvc, logger),
		AppointmentsHandler: appointments.NewHandler(querySvc, logger),
		CancelHandler:       cancellation.NewHandler(engine, logger),
		CheckoutHandler:     payments.NewCheckoutHandler(checkoutSvc, logger),
		StripeWebhook:       webhook,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		HealthChecks:        checks,
		AuthSecret:          cfg.AuthJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
	})
	return app, nil
}
