// Package scheduler holds pending sync requests from the four trigger kinds,
// orders them by priority, bounds concurrent execution, and re-enqueues
// retryable failures with per-trigger exponential backoff.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/account-sync/internal/executor"
	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/syncerr"
	"github.com/account-sync/internal/types"
	"github.com/google/uuid"
)

// Executor runs one sync attempt for a dispatched request.
type Executor interface {
	Execute(ctx context.Context, userID string, kind types.TriggerKind) (*executor.Result, error)
}

// Store is the durable snapshot of the queue, so pending and retrying work
// survives a process restart. Any durable store satisfies it.
type Store interface {
	SaveQueuedRequest(ctx context.Context, req *models.SyncRequest) error
	LoadPendingRequests(ctx context.Context) ([]*models.SyncRequest, error)
	DeleteQueuedRequest(ctx context.Context, requestID string) error
}

// AttemptSweeper closes attempt records stuck in progress, independent of the
// in-memory queue.
type AttemptSweeper interface {
	SweepStuck(ctx context.Context, maxAge time.Duration) (int, error)
}

// QueueStatus is the observable state of the scheduler.
type QueueStatus struct {
	QueueLength     int                       `json:"queueLength"`
	ActiveCount     int                       `json:"activeCount"`
	NextRequest     *models.SyncRequest       `json:"nextRequest,omitempty"`
	CountsByTrigger map[types.TriggerKind]int `json:"countsByTrigger"`
}

// Config holds scheduler configuration and dependencies.
type Config struct {
	Executor Executor
	Store    Store
	Sweeper  AttemptSweeper

	TickInterval      time.Duration // dispatch tick, default 5s
	MaxConcurrent     int           // concurrency ceiling, default 3
	StaleAfter        time.Duration // rehydration staleness cutoff, default 24h
	SweepInterval     time.Duration // stuck-attempt sweep cadence, default 10m
	InProgressTimeout time.Duration // stuck-attempt age threshold, default 1h
}

// Scheduler is the priority queue and dispatch loop for sync requests.
type Scheduler struct {
	executor Executor
	store    Store
	sweeper  AttemptSweeper

	tickInterval      time.Duration
	maxConcurrent     int
	staleAfter        time.Duration
	sweepInterval     time.Duration
	inProgressTimeout time.Duration

	mu       sync.Mutex
	queue    requestQueue
	byID     map[string]*queueItem
	byUser   map[string]*models.SyncRequest // dedup key user|trigger -> live request
	inFlight int

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a new scheduler.
func New(cfg *Config) (*Scheduler, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("queue store cannot be nil")
	}

	tick := cfg.TickInterval
	if tick == 0 {
		tick = 5 * time.Second
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	staleAfter := cfg.StaleAfter
	if staleAfter == 0 {
		staleAfter = 24 * time.Hour
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval == 0 {
		sweepInterval = 10 * time.Minute
	}
	inProgressTimeout := cfg.InProgressTimeout
	if inProgressTimeout == 0 {
		inProgressTimeout = time.Hour
	}

	return &Scheduler{
		executor:          cfg.Executor,
		store:             cfg.Store,
		sweeper:           cfg.Sweeper,
		tickInterval:      tick,
		maxConcurrent:     maxConcurrent,
		staleAfter:        staleAfter,
		sweepInterval:     sweepInterval,
		inProgressTimeout: inProgressTimeout,
		byID:              make(map[string]*queueItem),
		byUser:            make(map[string]*models.SyncRequest),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}, nil
}

// Start rehydrates the queue from persistence and begins the dispatch and
// sweep loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.rehydrate(ctx); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to rehydrate queue: %w", err)
	}

	go s.run(ctx)
	return nil
}

// Stop signals the loops to exit and waits for them to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Enqueue adds a sync request for (user, trigger). If a live request for the
// same pair already exists, its id is returned with deduplicated true instead
// of creating a second entry. The dedup decision is made under the queue lock,
// so concurrent callers for the same pair see exactly one false.
func (s *Scheduler) Enqueue(ctx context.Context, userID string, kind types.TriggerKind, metadata map[string]string) (string, bool, error) {
	if userID == "" {
		return "", false, fmt.Errorf("user id cannot be empty")
	}
	if !kind.Valid() {
		return "", false, fmt.Errorf("unknown trigger kind: %s", kind)
	}

	logger := logging.FromContext(ctx)
	now := time.Now().UTC()

	s.mu.Lock()
	if existing, ok := s.byUser[dedupKey(userID, kind)]; ok {
		requestID := existing.RequestID
		s.mu.Unlock()
		logger.WithFields(map[string]interface{}{
			"userId":    userID,
			"trigger":   string(kind),
			"requestId": requestID,
		}).Debug("Duplicate sync request deduplicated")
		return requestID, true, nil
	}

	req := &models.SyncRequest{
		RequestID:  uuid.NewString(),
		UserID:     userID,
		Trigger:    kind,
		Priority:   kind.Priority(),
		State:      types.RequestEnqueued,
		EligibleAt: now,
		EnqueuedAt: now,
		Metadata:   metadata,
	}
	s.push(req)
	// Persist a copy taken under the lock; the dispatch loop may mutate the
	// live request while the store write is in flight.
	snap := *req
	s.mu.Unlock()

	if err := s.store.SaveQueuedRequest(ctx, &snap); err != nil {
		// The request still runs from memory; it just won't survive restart.
		logger.WithError(err).WithField("requestId", snap.RequestID).Warn("Failed to persist queued request")
	}

	logger.WithFields(map[string]interface{}{
		"userId":    userID,
		"trigger":   string(kind),
		"requestId": snap.RequestID,
		"priority":  snap.Priority,
	}).Info("Sync request enqueued")

	return snap.RequestID, false, nil
}

// Cancel removes a not-yet-dispatched request. It is a no-op for requests
// already handed to the executor.
func (s *Scheduler) Cancel(ctx context.Context, requestID string) bool {
	s.mu.Lock()
	item, ok := s.byID[requestID]
	if !ok || item.req.State == types.RequestDispatched {
		s.mu.Unlock()
		return false
	}

	heap.Remove(&s.queue, item.index)
	delete(s.byID, requestID)
	delete(s.byUser, dedupKey(item.req.UserID, item.req.Trigger))
	s.mu.Unlock()

	if err := s.store.DeleteQueuedRequest(ctx, requestID); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("requestId", requestID).Warn("Failed to delete cancelled request")
	}

	logging.FromContext(ctx).WithField("requestId", requestID).Info("Sync request cancelled")
	return true
}

// Status returns the observable queue state.
func (s *Scheduler) Status() *QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &QueueStatus{
		QueueLength:     s.queue.Len(),
		ActiveCount:     s.inFlight,
		CountsByTrigger: make(map[types.TriggerKind]int),
	}
	for _, item := range s.queue {
		status.CountsByTrigger[item.req.Trigger]++
	}
	if s.queue.Len() > 0 {
		next := *s.queue[0].req
		status.NextRequest = &next
	}
	return status
}

// IsQueued reports whether a live request exists for (user, trigger).
func (s *Scheduler) IsQueued(userID string, kind types.TriggerKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byUser[dedupKey(userID, kind)]
	return ok
}

// run is the combined dispatch and sweep loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	logger := logging.FromContext(ctx)
	logger.WithFields(map[string]interface{}{
		"tick":          s.tickInterval.String(),
		"maxConcurrent": s.maxConcurrent,
	}).Info("Scheduler started")

	dispatchTicker := time.NewTicker(s.tickInterval)
	defer dispatchTicker.Stop()

	sweepTicker := time.NewTicker(s.sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopped: context cancelled")
			return
		case <-s.stopCh:
			logger.Info("Scheduler stopped")
			return
		case <-dispatchTicker.C:
			s.dispatchEligible(ctx)
		case <-sweepTicker.C:
			s.sweep(ctx)
		}
	}
}

// dispatchEligible pops eligible requests in priority order and hands them to
// the executor until the concurrency ceiling is reached. It never blocks on
// an in-flight execution.
func (s *Scheduler) dispatchEligible(ctx context.Context) {
	now := time.Now().UTC()

	for {
		s.mu.Lock()
		if s.inFlight >= s.maxConcurrent {
			s.mu.Unlock()
			return
		}

		req := s.popEligible(now)
		if req == nil {
			s.mu.Unlock()
			return
		}

		req.State = types.RequestDispatched
		s.inFlight++
		snap := *req
		s.mu.Unlock()

		if err := s.store.SaveQueuedRequest(ctx, &snap); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("requestId", req.RequestID).Warn("Failed to persist dispatched state")
		}

		go s.execute(ctx, req)
	}
}

// popEligible removes and returns the highest-priority eligible request.
// Ineligible requests (retry backoff still pending) are skipped and pushed
// back. Caller must hold the lock.
func (s *Scheduler) popEligible(now time.Time) *models.SyncRequest {
	var skipped []*queueItem
	var found *models.SyncRequest

	for s.queue.Len() > 0 {
		item := heap.Pop(&s.queue).(*queueItem)
		if item.req.Eligible(now) {
			found = item.req
			delete(s.byID, item.req.RequestID)
			break
		}
		skipped = append(skipped, item)
	}

	for _, item := range skipped {
		heap.Push(&s.queue, item)
	}

	return found
}

// execute runs one attempt and applies the retry policy to the outcome.
func (s *Scheduler) execute(ctx context.Context, req *models.SyncRequest) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"requestId": req.RequestID,
		"userId":    req.UserID,
		"trigger":   string(req.Trigger),
		"retry":     req.RetryCount,
	})
	logger.Info("Sync request dispatched")

	_, err := s.executor.Execute(ctx, req.UserID, req.Trigger)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	if err == nil {
		s.finish(ctx, req)
		logger.Info("Sync request succeeded")
		return
	}

	policy := PolicyFor(req.Trigger)
	if syncerr.IsRetryable(err) && req.RetryCount < policy.MaxRetries {
		delay := DelayFor(req.Trigger, req.RetryCount)
		s.requeue(ctx, req, delay)
		logger.WithError(err).WithFields(map[string]interface{}{
			"delay":      delay.String(),
			"maxRetries": policy.MaxRetries,
		}).Warn("Sync request failed, retrying with backoff")
		return
	}

	// Fatal error or retry ceiling exhausted: the request leaves the queue;
	// the finalized attempt records remain as the audit trail.
	s.finish(ctx, req)
	if syncerr.IsRetryable(err) {
		logger.WithError(err).Error("Sync request exhausted retry ceiling")
	} else {
		logger.WithError(err).Warn("Sync request failed terminally")
	}
}

// finish removes a request from the queue and its durable snapshot.
func (s *Scheduler) finish(ctx context.Context, req *models.SyncRequest) {
	s.mu.Lock()
	delete(s.byUser, dedupKey(req.UserID, req.Trigger))
	s.mu.Unlock()

	if err := s.store.DeleteQueuedRequest(ctx, req.RequestID); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("requestId", req.RequestID).Warn("Failed to delete finished request")
	}
}

// requeue pushes a failed request back with an incremented retry count and a
// backoff-delayed eligible time.
func (s *Scheduler) requeue(ctx context.Context, req *models.SyncRequest, delay time.Duration) {
	s.mu.Lock()
	req.RetryCount++
	req.State = types.RequestRetrying
	req.EligibleAt = time.Now().UTC().Add(delay)
	s.push(req)
	snap := *req
	s.mu.Unlock()

	if err := s.store.SaveQueuedRequest(ctx, &snap); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("requestId", req.RequestID).Warn("Failed to persist retrying request")
	}
}

// push inserts a request into the heap and both indexes. Caller must hold
// the lock.
func (s *Scheduler) push(req *models.SyncRequest) {
	item := &queueItem{req: req, index: -1}
	heap.Push(&s.queue, item)
	s.byID[req.RequestID] = item
	s.byUser[dedupKey(req.UserID, req.Trigger)] = req
}

// rehydrate restores the queue from persistence, discarding stale entries
// instead of silently resurrecting day-old work.
func (s *Scheduler) rehydrate(ctx context.Context) error {
	requests, err := s.store.LoadPendingRequests(ctx)
	if err != nil {
		return err
	}

	logger := logging.FromContext(ctx)
	now := time.Now().UTC()
	restored := 0

	for _, req := range requests {
		if now.Sub(req.EnqueuedAt) > s.staleAfter {
			if err := s.store.DeleteQueuedRequest(ctx, req.RequestID); err != nil {
				logger.WithError(err).WithField("requestId", req.RequestID).Warn("Failed to delete stale request")
			}
			logger.WithFields(map[string]interface{}{
				"requestId":  req.RequestID,
				"enqueuedAt": req.EnqueuedAt.Format(time.RFC3339),
			}).Info("Dropped stale queued request")
			continue
		}

		// A request persisted as dispatched belonged to a crashed process;
		// its orphaned attempt is closed by the sweep, and the request runs
		// again from the top.
		if req.State == types.RequestDispatched {
			req.State = types.RequestEnqueued
		}

		s.mu.Lock()
		s.push(req)
		s.mu.Unlock()
		restored++
	}

	logger.WithFields(map[string]interface{}{
		"restored": restored,
		"dropped":  len(requests) - restored,
	}).Info("Queue rehydrated from persistence")

	return nil
}

// sweep closes attempt records stuck in progress past the timeout.
func (s *Scheduler) sweep(ctx context.Context) {
	if s.sweeper == nil {
		return
	}

	swept, err := s.sweeper.SweepStuck(ctx, s.inProgressTimeout)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Stuck attempt sweep failed")
		return
	}
	if swept > 0 {
		logging.FromContext(ctx).WithField("swept", swept).Warn("Closed stuck sync attempts")
	}
}

func dedupKey(userID string, kind types.TriggerKind) string {
	return userID + "|" + string(kind)
}
