package rategate

import (
	"context"
	"testing"
	"time"

	"github.com/account-sync/internal/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedisGate creates a Redis gate backed by a test Redis instance.
func setupTestRedisGate(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	gate, err := NewRedis(client)
	require.NoError(t, err)

	return gate, mr
}

func TestNewRedis(t *testing.T) {
	t.Run("returns error for nil client", func(t *testing.T) {
		gate, err := NewRedis(nil)
		assert.Error(t, err)
		assert.Nil(t, gate)
	})
}

func TestRedisAllow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	t.Run("first sync is allowed and sets the key", func(t *testing.T) {
		gate, mr := setupTestRedisGate(t)

		allowed, err := gate.Allow(ctx, "user-1", types.TriggerManual, now)
		require.NoError(t, err)
		assert.True(t, allowed)

		assert.True(t, mr.Exists("rategate:user-1:manual"))
	})

	t.Run("second sync within cooldown is denied", func(t *testing.T) {
		gate, _ := setupTestRedisGate(t)

		allowed, err := gate.Allow(ctx, "user-1", types.TriggerManual, now)
		require.NoError(t, err)
		require.True(t, allowed)

		allowed, err = gate.Allow(ctx, "user-1", types.TriggerManual, now.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("allowed again after the key TTL expires", func(t *testing.T) {
		gate, mr := setupTestRedisGate(t)

		_, err := gate.Allow(ctx, "user-1", types.TriggerManual, now)
		require.NoError(t, err)

		mr.FastForward(time.Hour + time.Second)

		allowed, err := gate.Allow(ctx, "user-1", types.TriggerManual, now.Add(time.Hour+time.Second))
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("webhook and scheduled bypass without touching Redis", func(t *testing.T) {
		gate, mr := setupTestRedisGate(t)

		allowed, err := gate.Allow(ctx, "user-1", types.TriggerWebhook, now)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = gate.Allow(ctx, "user-1", types.TriggerScheduled, now)
		require.NoError(t, err)
		assert.True(t, allowed)

		assert.False(t, mr.Exists("rategate:user-1:webhook"))
		assert.False(t, mr.Exists("rategate:user-1:scheduled"))
	})
}

func TestRedisNextEligible(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	t.Run("zero before any grant", func(t *testing.T) {
		gate, _ := setupTestRedisGate(t)

		next, err := gate.NextEligible(ctx, "user-1", types.TriggerManual)
		require.NoError(t, err)
		assert.True(t, next.IsZero())
	})

	t.Run("grant time plus cooldown after a grant", func(t *testing.T) {
		gate, _ := setupTestRedisGate(t)

		_, err := gate.Allow(ctx, "user-1", types.TriggerLogin, now)
		require.NoError(t, err)

		next, err := gate.NextEligible(ctx, "user-1", types.TriggerLogin)
		require.NoError(t, err)
		assert.True(t, next.Equal(now.Add(4*time.Hour)))
	})
}
