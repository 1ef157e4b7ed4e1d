package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/slotbook/pkg/logging"
)

// VelocityChecker caps how often one patient may open checkouts, so a single
// account cannot churn through holds and gateway sessions.
type VelocityChecker struct {
	redis  redis.Cmdable
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	MaxCheckoutsPerUser int
	CheckoutWindow      time.Duration
}

// DefaultVelocityConfig allows five checkouts per patient per hour.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxCheckoutsPerUser: 5,
		CheckoutWindow:      time.Hour,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityChecker creates a new velocity checker.
func NewVelocityChecker(redisClient redis.Cmdable, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	if config.CheckoutWindow <= 0 {
		config.CheckoutWindow = time.Hour
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

func checkoutVelocityKey(userID string) string {
	return "slotbook:velocity:checkout:" + userID
}

// CheckCheckout counts one checkout attempt for userID. Redis failures fail
// open.
func (v *VelocityChecker) CheckCheckout(ctx context.Context, userID string) (*VelocityResult, error) {
	ctx, span := stripeTracer.Start(ctx, "velocity.check_checkout")
	defer span.End()

	if v.config.MaxCheckoutsPerUser <= 0 {
		return &VelocityResult{Allowed: true}, nil
	}

	key := checkoutVelocityKey(userID)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.CheckoutWindow)
	if err != nil {
		v.logger.WithContext(ctx).Error("velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxCheckoutsPerUser,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxCheckoutsPerUser,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d checkout attempts in %s", v.config.MaxCheckoutsPerUser, v.config.CheckoutWindow)
		v.logger.WithContext(ctx).Warn("checkout velocity exceeded",
			"user_id", userID,
			"count", count,
			"max", v.config.MaxCheckoutsPerUser,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// incrementAndGet increments a counter and returns the new value with expiry time.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}
	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}

// ResetCheckout clears a patient's checkout counter.
func (v *VelocityChecker) ResetCheckout(ctx context.Context, userID string) error {
	return v.redis.Del(ctx, checkoutVelocityKey(userID)).Err()
}
