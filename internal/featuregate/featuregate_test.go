package featuregate

import (
	"context"
	"testing"

	"github.com/account-sync/internal/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()

	enabled, err := (&Static{Enabled: true}).HasCapability(ctx, "user-1", types.CapabilityBankSync)
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = (&Static{}).HasCapability(ctx, "user-1", types.CapabilityBankSync)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestRedisGate(t *testing.T) {
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	gate := NewRedisGate(client)

	t.Run("no grants means no capability", func(t *testing.T) {
		enabled, err := gate.HasCapability(ctx, "user-1", types.CapabilityBankSync)
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("granted capability is visible", func(t *testing.T) {
		_, err := mr.SAdd("capabilities:user-1", types.CapabilityBankSync)
		require.NoError(t, err)

		enabled, err := gate.HasCapability(ctx, "user-1", types.CapabilityBankSync)
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("grants do not leak across users", func(t *testing.T) {
		enabled, err := gate.HasCapability(ctx, "user-2", types.CapabilityBankSync)
		require.NoError(t, err)
		assert.False(t, enabled)
	})
}
