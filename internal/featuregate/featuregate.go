// Package featuregate answers subscription capability checks. Capability
// grants are owned by the billing system; this package only reads them.
package featuregate

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Static grants or denies every capability for every user. Used in
// development and tests.
type Static struct {
	Enabled bool
}

// HasCapability reports the static grant.
func (s *Static) HasCapability(_ context.Context, _, _ string) (bool, error) {
	return s.Enabled, nil
}

// RedisGate reads capability grants from Redis sets maintained by the
// billing system. Key layout: capabilities:{userID} is a set of capability
// names.
type RedisGate struct {
	client redis.Cmdable
}

// NewRedisGate creates a Redis-backed capability reader.
func NewRedisGate(client redis.Cmdable) *RedisGate {
	return &RedisGate{client: client}
}

// HasCapability reports whether the capability set for the user contains
// the named capability.
func (g *RedisGate) HasCapability(ctx context.Context, userID, capability string) (bool, error) {
	ok, err := g.client.SIsMember(ctx, capabilityKey(userID), capability).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check capability %s for user %s: %w", capability, userID, err)
	}
	return ok, nil
}

func capabilityKey(userID string) string {
	return fmt.Sprintf("capabilities:%s", userID)
}
