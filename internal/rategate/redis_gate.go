package rategate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/account-sync/internal/types"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rategate:"

// Redis is a shared-store Gate for multi-process deployments. The
// test-and-set is SET NX with the cooldown as the key TTL, so the grant is
// atomic across processes.
type Redis struct {
	client redis.Cmdable
}

// NewRedis creates a new Redis-backed gate.
func NewRedis(client redis.Cmdable) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Redis{client: client}, nil
}

// Allow implements Gate.
func (g *Redis) Allow(ctx context.Context, userID string, kind types.TriggerKind, now time.Time) (bool, error) {
	cooldown := CooldownFor(kind)
	if cooldown == 0 {
		return true, nil
	}

	key := redisKey(userID, kind)
	granted, err := g.client.SetNX(ctx, key, now.UTC().Format(time.RFC3339), cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate gate: %w", err)
	}

	return granted, nil
}

// NextEligible implements Gate.
func (g *Redis) NextEligible(ctx context.Context, userID string, kind types.TriggerKind) (time.Time, error) {
	cooldown := CooldownFor(kind)
	if cooldown == 0 {
		return time.Time{}, nil
	}

	key := redisKey(userID, kind)
	value, err := g.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read rate gate: %w", err)
	}

	last, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed rate gate value %q: %w", value, err)
	}

	return last.Add(cooldown), nil
}

func redisKey(userID string, kind types.TriggerKind) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, userID, kind)
}
