package rategate

import (
	"context"
	"testing"
	"time"

	"github.com/account-sync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAllow(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	t.Run("first login sync is allowed", func(t *testing.T) {
		gate := NewMemory()

		allowed, err := gate.Allow(ctx, "user-1", types.TriggerLogin, base)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("second login sync within cooldown is denied", func(t *testing.T) {
		gate := NewMemory()

		allowed, err := gate.Allow(ctx, "user-1", types.TriggerLogin, base)
		require.NoError(t, err)
		require.True(t, allowed)

		allowed, err = gate.Allow(ctx, "user-1", types.TriggerLogin, base.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("login sync after cooldown elapses is allowed", func(t *testing.T) {
		gate := NewMemory()

		_, err := gate.Allow(ctx, "user-1", types.TriggerLogin, base)
		require.NoError(t, err)

		allowed, err := gate.Allow(ctx, "user-1", types.TriggerLogin, base.Add(4*time.Hour+time.Second))
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("manual cooldown is shorter than login", func(t *testing.T) {
		gate := NewMemory()

		_, err := gate.Allow(ctx, "user-1", types.TriggerManual, base)
		require.NoError(t, err)

		denied, err := gate.Allow(ctx, "user-1", types.TriggerManual, base.Add(59*time.Minute))
		require.NoError(t, err)
		assert.False(t, denied)

		allowed, err := gate.Allow(ctx, "user-1", types.TriggerManual, base.Add(time.Hour+time.Second))
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("scheduled and webhook bypass the gate", func(t *testing.T) {
		gate := NewMemory()

		for i := 0; i < 3; i++ {
			allowed, err := gate.Allow(ctx, "user-1", types.TriggerScheduled, base)
			require.NoError(t, err)
			assert.True(t, allowed)

			allowed, err = gate.Allow(ctx, "user-1", types.TriggerWebhook, base)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
	})

	t.Run("cooldowns are independent per user", func(t *testing.T) {
		gate := NewMemory()

		_, err := gate.Allow(ctx, "user-1", types.TriggerLogin, base)
		require.NoError(t, err)

		allowed, err := gate.Allow(ctx, "user-2", types.TriggerLogin, base)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("cooldowns are independent per trigger", func(t *testing.T) {
		gate := NewMemory()

		_, err := gate.Allow(ctx, "user-1", types.TriggerLogin, base)
		require.NoError(t, err)

		allowed, err := gate.Allow(ctx, "user-1", types.TriggerManual, base)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("denied call does not extend the cooldown", func(t *testing.T) {
		gate := NewMemory()

		_, err := gate.Allow(ctx, "user-1", types.TriggerManual, base)
		require.NoError(t, err)

		// Denied at 59 minutes; the window still expires at the original hour
		_, err = gate.Allow(ctx, "user-1", types.TriggerManual, base.Add(59*time.Minute))
		require.NoError(t, err)

		allowed, err := gate.Allow(ctx, "user-1", types.TriggerManual, base.Add(61*time.Minute))
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestMemoryNextEligible(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	t.Run("zero before any grant", func(t *testing.T) {
		gate := NewMemory()

		next, err := gate.NextEligible(ctx, "user-1", types.TriggerManual)
		require.NoError(t, err)
		assert.True(t, next.IsZero())
	})

	t.Run("grant time plus cooldown after a grant", func(t *testing.T) {
		gate := NewMemory()

		_, err := gate.Allow(ctx, "user-1", types.TriggerManual, base)
		require.NoError(t, err)

		next, err := gate.NextEligible(ctx, "user-1", types.TriggerManual)
		require.NoError(t, err)
		assert.Equal(t, base.Add(time.Hour), next)
	})

	t.Run("zero for bypassed triggers", func(t *testing.T) {
		gate := NewMemory()

		_, err := gate.Allow(ctx, "user-1", types.TriggerWebhook, base)
		require.NoError(t, err)

		next, err := gate.NextEligible(ctx, "user-1", types.TriggerWebhook)
		require.NoError(t, err)
		assert.True(t, next.IsZero())
	})
}

func TestCooldownFor(t *testing.T) {
	assert.Equal(t, 4*time.Hour, CooldownFor(types.TriggerLogin))
	assert.Equal(t, time.Hour, CooldownFor(types.TriggerManual))
	assert.Equal(t, time.Duration(0), CooldownFor(types.TriggerScheduled))
	assert.Equal(t, time.Duration(0), CooldownFor(types.TriggerWebhook))
}
