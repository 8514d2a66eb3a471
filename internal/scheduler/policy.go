package scheduler

import (
	"math"
	"time"

	"github.com/account-sync/internal/types"
)

// RetryPolicy defines the backoff behavior for one trigger kind.
type RetryPolicy struct {
	MaxRetries int
	Multiplier float64
	MaxDelay   time.Duration
}

// baseDelay is the delay before the first retry, prior to backoff growth.
const baseDelay = time.Second

// retryPolicies is the fixed per-trigger retry table. Urgent triggers retry
// fast and give up quickly; the nightly batch tolerates long delays.
var retryPolicies = map[types.TriggerKind]RetryPolicy{
	types.TriggerWebhook:   {MaxRetries: 3, Multiplier: 2, MaxDelay: 30 * time.Second},
	types.TriggerManual:    {MaxRetries: 2, Multiplier: 2, MaxDelay: 60 * time.Second},
	types.TriggerLogin:     {MaxRetries: 1, Multiplier: 2, MaxDelay: 300 * time.Second},
	types.TriggerScheduled: {MaxRetries: 2, Multiplier: 3, MaxDelay: 600 * time.Second},
}

// PolicyFor returns the retry policy for a trigger kind.
func PolicyFor(kind types.TriggerKind) RetryPolicy {
	if policy, ok := retryPolicies[kind]; ok {
		return policy
	}
	return RetryPolicy{MaxRetries: 0, Multiplier: 2, MaxDelay: 30 * time.Second}
}

// DelayFor computes the backoff delay after the given retry count:
// min(base * multiplier^retryCount, cap).
func DelayFor(kind types.TriggerKind, retryCount int) time.Duration {
	policy := PolicyFor(kind)
	delay := float64(baseDelay) * math.Pow(policy.Multiplier, float64(retryCount))
	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	return time.Duration(delay)
}
