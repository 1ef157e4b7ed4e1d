package payments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestVelocityChecker_CheckCheckout(t *testing.T) {
	redisClient, _ := setupTestRedis(t)
	checker := NewVelocityChecker(redisClient, VelocityConfig{MaxCheckoutsPerUser: 3, CheckoutWindow: time.Hour}, nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		userID      string
		attempts    int
		wantAllowed bool
	}{
		{name: "first attempt allowed", userID: "u1", attempts: 1, wantAllowed: true},
		{name: "at limit allowed", userID: "u2", attempts: 3, wantAllowed: true},
		{name: "over limit blocked", userID: "u3", attempts: 4, wantAllowed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result *VelocityResult
			for i := 0; i < tt.attempts; i++ {
				var err error
				result, err = checker.CheckCheckout(ctx, tt.userID)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAllowed, result.Allowed)
			assert.Equal(t, tt.attempts, result.CurrentCount)
		})
	}
}

func TestVelocityChecker_WindowExpires(t *testing.T) {
	redisClient, mr := setupTestRedis(t)
	checker := NewVelocityChecker(redisClient, VelocityConfig{MaxCheckoutsPerUser: 1, CheckoutWindow: time.Minute}, nil)
	ctx := context.Background()

	first, err := checker.CheckCheckout(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	second, err := checker.CheckCheckout(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, second.Allowed)

	mr.FastForward(2 * time.Minute)
	third, err := checker.CheckCheckout(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, third.Allowed)
}

func TestVelocityChecker_ResetAndFailOpen(t *testing.T) {
	redisClient, mr := setupTestRedis(t)
	checker := NewVelocityChecker(redisClient, VelocityConfig{MaxCheckoutsPerUser: 1, CheckoutWindow: time.Hour}, nil)
	ctx := context.Background()

	_, _ = checker.CheckCheckout(ctx, "u1")
	require.NoError(t, checker.ResetCheckout(ctx, "u1"))
	again, err := checker.CheckCheckout(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, again.Allowed)

	mr.Close()
	down, err := checker.CheckCheckout(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, down.Allowed)
	assert.Equal(t, "velocity check unavailable", down.Message)
}
