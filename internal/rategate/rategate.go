// Package rategate provides the per-(user, trigger) cooldown gate.
// Allow is test-and-set: a granted call immediately records the grant time,
// so two concurrent callers for the same user cannot both pass.
package rategate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/account-sync/internal/types"
)

// Cooldowns is the fixed cooldown table per trigger kind. Scheduled and
// webhook syncs bypass the gate entirely.
var Cooldowns = map[types.TriggerKind]time.Duration{
	types.TriggerLogin:     4 * time.Hour,
	types.TriggerManual:    time.Hour,
	types.TriggerScheduled: 0,
	types.TriggerWebhook:   0,
}

// CooldownFor returns the cooldown for a trigger kind.
func CooldownFor(kind types.TriggerKind) time.Duration {
	return Cooldowns[kind]
}

// Gate answers whether a sync of a given kind is allowed for a user right now.
type Gate interface {
	// Allow reports whether a sync may run, recording now as the new
	// last-allowed time when it returns true.
	Allow(ctx context.Context, userID string, kind types.TriggerKind, now time.Time) (bool, error)

	// NextEligible returns the earliest time a sync of this kind may run
	// again for the user.
	NextEligible(ctx context.Context, userID string, kind types.TriggerKind) (time.Time, error)
}

// Memory is an in-process Gate for single-process deployments.
type Memory struct {
	mu          sync.Mutex
	lastAllowed map[string]time.Time
}

// NewMemory creates a new in-memory gate.
func NewMemory() *Memory {
	return &Memory{lastAllowed: make(map[string]time.Time)}
}

// Allow implements Gate. The check and the record are done under one lock.
func (g *Memory) Allow(_ context.Context, userID string, kind types.TriggerKind, now time.Time) (bool, error) {
	cooldown := CooldownFor(kind)
	if cooldown == 0 {
		return true, nil
	}

	key := gateKey(userID, kind)

	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastAllowed[key]; ok && now.Sub(last) < cooldown {
		return false, nil
	}

	g.lastAllowed[key] = now
	return true, nil
}

// NextEligible implements Gate.
func (g *Memory) NextEligible(_ context.Context, userID string, kind types.TriggerKind) (time.Time, error) {
	cooldown := CooldownFor(kind)
	if cooldown == 0 {
		return time.Time{}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.lastAllowed[gateKey(userID, kind)]
	if !ok {
		return time.Time{}, nil
	}
	return last.Add(cooldown), nil
}

func gateKey(userID string, kind types.TriggerKind) string {
	return fmt.Sprintf("%s:%s", userID, kind)
}
