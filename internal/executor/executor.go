// Package executor runs one complete sync attempt for one user:
// rate check, fetch, map, reconcile, persist, log outcome.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/account-sync/internal/aggregator"
	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/mapper"
	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/rategate"
	"github.com/account-sync/internal/reconcile"
	"github.com/account-sync/internal/syncerr"
	"github.com/account-sync/internal/types"
	"github.com/google/uuid"
)

// FeatureGate is the subscription capability check consumed from outside
// the core.
type FeatureGate interface {
	HasCapability(ctx context.Context, userID, capability string) (bool, error)
}

// ConnectionStore reads and updates the per-user aggregator link.
type ConnectionStore interface {
	GetByUser(ctx context.Context, userID string) (*models.Connection, error)
	UpdateLastSyncedAt(ctx context.Context, userID string, syncedAt time.Time) error
}

// AttemptLog is the append-only sync attempt record store.
type AttemptLog interface {
	Create(ctx context.Context, attempt *models.SyncAttempt) error
	MarkInProgress(ctx context.Context, attemptID string) error
	Finalize(ctx context.Context, attemptID string, status types.AttemptStatus, itemsSynced int, errMsg *string) error
}

// Archiver receives finalized attempts for long-window analytics.
// Archival is best-effort and never affects the attempt outcome.
type Archiver interface {
	BatchInsert(ctx context.Context, attempts []*models.SyncAttempt) error
}

// Result is the outcome of one sync attempt.
type Result struct {
	Success      bool
	Status       types.AttemptStatus
	ItemsSynced  int
	Accounts     int
	Holdings     int
	Transactions int
	Errors       []string
}

// Executor orchestrates a single sync attempt.
type Executor struct {
	gate           rategate.Gate
	features       FeatureGate
	connections    ConnectionStore
	client         aggregator.Client
	reconciler     *reconcile.Reconciler
	attempts       AttemptLog
	archive        Archiver // optional
	lookbackMonths int
}

// Config holds executor dependencies.
type Config struct {
	Gate        rategate.Gate
	Features    FeatureGate
	Connections ConnectionStore
	Client      aggregator.Client
	Reconciler  *reconcile.Reconciler
	Attempts    AttemptLog
	// Archive is optional; when set, finalized attempts are mirrored
	// asynchronously for long-window stats.
	Archive        Archiver
	LookbackMonths int
}

// New creates a new executor.
func New(cfg *Config) *Executor {
	lookback := cfg.LookbackMonths
	if lookback <= 0 {
		lookback = 3
	}
	return &Executor{
		gate:           cfg.Gate,
		features:       cfg.Features,
		connections:    cfg.Connections,
		client:         cfg.Client,
		reconciler:     cfg.Reconciler,
		attempts:       cfg.Attempts,
		archive:        cfg.Archive,
		lookbackMonths: lookback,
	}
}

// Execute runs one sync attempt for a user. Every call, regardless of
// outcome, produces exactly one finalized attempt record. The returned error
// carries the retry classification the scheduler acts on.
func (e *Executor) Execute(ctx context.Context, userID string, kind types.TriggerKind) (*Result, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"userId":  userID,
		"trigger": string(kind),
	})

	attempt := &models.SyncAttempt{
		AttemptID: uuid.NewString(),
		UserID:    userID,
		Trigger:   kind,
		Status:    types.AttemptPending,
		StartedAt: time.Now().UTC(),
	}
	if err := e.attempts.Create(ctx, attempt); err != nil {
		// Without an attempt record there is no audit trail; abort retryably.
		return nil, syncerr.NewRetryable("failed to open sync attempt record", err)
	}

	logger = logger.WithField("attemptId", attempt.AttemptID)

	if err := e.attempts.MarkInProgress(ctx, attempt.AttemptID); err != nil {
		return nil, e.fail(ctx, logger, attempt, syncerr.NewRetryable("failed to start sync attempt", err))
	}
	logger.Info("Sync attempt started")

	// Capability check: missing capability is terminal, never retried.
	allowed, err := e.features.HasCapability(ctx, userID, types.CapabilityBankSync)
	if err != nil {
		return nil, e.fail(ctx, logger, attempt, syncerr.NewRetryable("capability check failed", err))
	}
	if !allowed {
		return nil, e.fail(ctx, logger, attempt, syncerr.NewCapabilityDenied(userID, types.CapabilityBankSync))
	}

	// Re-check the rate gate defensively; the enqueue path already deduped,
	// but a request can sit in the queue past another grant.
	granted, err := e.gate.Allow(ctx, userID, kind, time.Now())
	if err != nil {
		return nil, e.fail(ctx, logger, attempt, syncerr.NewRetryable("rate gate check failed", err))
	}
	if !granted {
		return nil, e.fail(ctx, logger, attempt, syncerr.NewRateLimited(userID, kind))
	}

	conn, err := e.connections.GetByUser(ctx, userID)
	if err != nil {
		return nil, e.fail(ctx, logger, attempt, syncerr.NewRetryable("failed to load connection", err))
	}
	if conn == nil {
		return nil, e.fail(ctx, logger, attempt, syncerr.NewNoConnection(userID))
	}

	accounts, holdings, transactions, err := e.fetch(ctx, conn.AccessToken)
	if err != nil {
		return nil, e.fail(ctx, logger, attempt, err)
	}

	mapped := mapper.MapSnapshot(userID, accounts, holdings, transactions)

	recResult, err := e.reconciler.Reconcile(ctx, userID, mapped)
	if err != nil {
		return nil, e.fail(ctx, logger, attempt, syncerr.Categorize(err))
	}

	if err := e.connections.UpdateLastSyncedAt(ctx, userID, time.Now().UTC()); err != nil {
		// The domain writes already landed; only the bookkeeping failed.
		logger.WithError(err).Warn("Failed to update connection last-synced time")
	}

	result := &Result{
		ItemsSynced:  recResult.Upserted + recResult.FlaggedForReview,
		Accounts:     len(accounts),
		Holdings:     len(holdings),
		Transactions: len(transactions),
	}
	for _, recErr := range mapped.Errors {
		result.Errors = append(result.Errors, recErr.Error())
	}
	result.Errors = append(result.Errors, recResult.RecordErrors...)

	// Record-level failures leave the attempt Partial, not Failed: the
	// succeeded upserts are already durable and must not be re-run wholesale.
	status := types.AttemptSuccess
	var errMsg *string
	if len(result.Errors) > 0 {
		status = types.AttemptPartial
		joined := strings.Join(result.Errors, "; ")
		errMsg = &joined
	}
	result.Status = status
	result.Success = status == types.AttemptSuccess

	e.finalize(ctx, logger, attempt, status, result.ItemsSynced, errMsg)

	logger.WithFields(map[string]interface{}{
		"status":      string(status),
		"itemsSynced": result.ItemsSynced,
		"flagged":     recResult.FlaggedForReview,
	}).Info("Sync attempt completed")

	return result, nil
}

// fetch pulls the full snapshot from the aggregator with the bounded
// transaction lookback window.
func (e *Executor) fetch(ctx context.Context, accessToken string) ([]*aggregator.Account, []*aggregator.Holding, []*aggregator.Transaction, error) {
	accounts, err := e.client.FetchAccounts(ctx, accessToken)
	if err != nil {
		return nil, nil, nil, err
	}

	holdings, err := e.client.FetchHoldings(ctx, accessToken)
	if err != nil {
		return nil, nil, nil, err
	}

	fromDate := time.Now().UTC().AddDate(0, -e.lookbackMonths, 0)
	transactions, err := e.client.FetchTransactions(ctx, accessToken, fromDate)
	if err != nil {
		return nil, nil, nil, err
	}

	return accounts, holdings, transactions, nil
}

// fail finalizes the attempt as Failed with the categorized reason and
// returns the error for the scheduler's retry decision.
func (e *Executor) fail(ctx context.Context, logger *logging.Logger, attempt *models.SyncAttempt, err error) error {
	reason := syncerr.Categorize(err).Reason()
	e.finalize(ctx, logger, attempt, types.AttemptFailed, 0, &reason)
	logger.WithError(err).Warn("Sync attempt failed")
	return err
}

func (e *Executor) finalize(ctx context.Context, logger *logging.Logger, attempt *models.SyncAttempt, status types.AttemptStatus, itemsSynced int, errMsg *string) {
	if err := e.attempts.Finalize(ctx, attempt.AttemptID, status, itemsSynced, errMsg); err != nil {
		logger.WithError(err).Error("Failed to finalize sync attempt record")
		return
	}

	if e.archive == nil {
		return
	}

	now := time.Now().UTC()
	archived := *attempt
	archived.Status = status
	archived.CompletedAt = &now
	archived.DurationMs = now.Sub(attempt.StartedAt).Milliseconds()
	archived.ItemsSynced = itemsSynced
	archived.Error = errMsg

	// Mirror to the archive asynchronously; archival failures are logged only.
	go func() {
		bgCtx := context.Background()
		if err := e.archive.BatchInsert(bgCtx, []*models.SyncAttempt{&archived}); err != nil {
			logger.WithError(err).Warn("Failed to archive sync attempt")
		}
	}()
}
