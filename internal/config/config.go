package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	AuthJWTSecret      string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string
	StripeSuccessURL    string
	StripeCancelURL     string
	CheckoutMaxPerHour  int

	// Scheduling policy
	ClinicTimezone        string
	HoldDuration          time.Duration
	FullRefundWindow      time.Duration
	LateCancelFeePercent  int
	AllowOvernightWindows bool
	AppointmentPriceCents int64
	AppointmentCurrency   string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first without overriding real env vars.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeBaseURL:       getEnv("STRIPE_BASE_URL", "https://api.stripe.com"),
		StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", ""),
		StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", ""),
		CheckoutMaxPerHour:  getEnvAsInt("CHECKOUT_MAX_PER_HOUR", 5),

		ClinicTimezone:        getEnv("CLINIC_TIMEZONE", "UTC"),
		HoldDuration:          getEnvAsDuration("HOLD_DURATION", 2*time.Minute),
		FullRefundWindow:      getEnvAsDuration("FULL_REFUND_WINDOW", 6*time.Hour),
		LateCancelFeePercent:  getEnvAsInt("LATE_CANCEL_FEE_PERCENT", 10),
		AllowOvernightWindows: getEnvAsBool("ALLOW_OVERNIGHT_WINDOWS", false),
		AppointmentPriceCents: int64(getEnvAsInt("APPOINTMENT_PRICE_CENTS", 5000)),
		AppointmentCurrency:   strings.ToLower(getEnv("APPOINTMENT_CURRENCY", "usd")),
	}
}

// Validate rejects settings the scheduling core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HoldDuration <= 0 {
		errs = append(errs, fmt.Errorf("HOLD_DURATION must be positive, got %s", c.HoldDuration))
	}
	if c.FullRefundWindow < 0 {
		errs = append(errs, fmt.Errorf("FULL_REFUND_WINDOW must not be negative, got %s", c.FullRefundWindow))
	}
	if c.LateCancelFeePercent < 0 || c.LateCancelFeePercent > 100 {
		errs = append(errs, fmt.Errorf("LATE_CANCEL_FEE_PERCENT must be within [0,100], got %d", c.LateCancelFeePercent))
	}
	if c.AppointmentPriceCents <= 0 {
		errs = append(errs, fmt.Errorf("APPOINTMENT_PRICE_CENTS must be positive, got %d", c.AppointmentPriceCents))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves the clinic time zone used for doctor-local dates.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// UseMemoryStores reports whether no database is configured.
func (c *Config) UseMemoryStores() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
