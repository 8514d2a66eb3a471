package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/scheduler"
	"github.com/account-sync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduler implements SchedulerInterface in memory.
type fakeScheduler struct {
	queued     map[string]string // user|kind -> request id
	byID       map[string]bool
	dispatched map[string]bool
	enqueueErr error
	nextID     int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		queued:     make(map[string]string),
		byID:       make(map[string]bool),
		dispatched: make(map[string]bool),
	}
}

func (f *fakeScheduler) Enqueue(_ context.Context, userID string, kind types.TriggerKind, _ map[string]string) (string, bool, error) {
	if f.enqueueErr != nil {
		return "", false, f.enqueueErr
	}
	key := userID + "|" + string(kind)
	if id, ok := f.queued[key]; ok {
		return id, true, nil
	}
	f.nextID++
	id := fmt.Sprintf("req-%d", f.nextID)
	f.queued[key] = id
	f.byID[id] = true
	return id, false, nil
}

func (f *fakeScheduler) Cancel(_ context.Context, requestID string) bool {
	if !f.byID[requestID] || f.dispatched[requestID] {
		return false
	}
	delete(f.byID, requestID)
	for k, id := range f.queued {
		if id == requestID {
			delete(f.queued, k)
		}
	}
	return true
}

func (f *fakeScheduler) Status() *scheduler.QueueStatus {
	return &scheduler.QueueStatus{
		QueueLength:     len(f.byID),
		CountsByTrigger: map[types.TriggerKind]int{},
	}
}

func (f *fakeScheduler) IsQueued(userID string, kind types.TriggerKind) bool {
	_, ok := f.queued[userID+"|"+string(kind)]
	return ok
}

type fakeAttemptLog struct {
	latest     *models.SyncAttempt
	inProgress bool
	stats      *models.SyncStats
	statsErr   error
}

func (f *fakeAttemptLog) GetLatestByUser(context.Context, string) (*models.SyncAttempt, error) {
	return f.latest, nil
}

func (f *fakeAttemptLog) HasInProgress(context.Context, string) (bool, error) {
	return f.inProgress, nil
}

func (f *fakeAttemptLog) Stats(context.Context, string, time.Duration) (*models.SyncStats, error) {
	return f.stats, f.statsErr
}

type fakeConnections struct {
	conn *models.Connection
}

func (f *fakeConnections) GetByUser(context.Context, string) (*models.Connection, error) {
	return f.conn, nil
}

type fakeFeatures struct {
	enabled bool
}

func (f *fakeFeatures) HasCapability(context.Context, string, string) (bool, error) {
	return f.enabled, nil
}

type fakeCooldowns struct {
	next time.Time
}

func (f *fakeCooldowns) NextEligible(context.Context, string, types.TriggerKind) (time.Time, error) {
	return f.next, nil
}

type healthOK struct{}

func (healthOK) Ping(context.Context) error { return nil }

type healthDown struct{}

func (healthDown) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	server    *Server
	scheduler *fakeScheduler
	attempts  *fakeAttemptLog
	conns     *fakeConnections
	features  *fakeFeatures
	cooldowns *fakeCooldowns
}

func createTestServer() *testServer {
	ts := &testServer{
		scheduler: newFakeScheduler(),
		attempts:  &fakeAttemptLog{stats: &models.SyncStats{}},
		conns:     &fakeConnections{},
		features:  &fakeFeatures{enabled: true},
		cooldowns: &fakeCooldowns{},
	}

	ts.server = NewServer(
		&ServerConfig{Host: "127.0.0.1", Port: "0", RequestsPerSec: 1000},
		ts.scheduler,
		ts.attempts,
		ts.conns,
		ts.features,
		ts.cooldowns,
		map[string]HealthChecker{"postgres": healthOK{}},
	)

	return ts
}

func (ts *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "caller-1")

	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)
	return w
}

func TestEnqueueSync(t *testing.T) {
	t.Run("accepts a valid request", func(t *testing.T) {
		ts := createTestServer()

		w := ts.do("POST", "/api/sync", map[string]interface{}{
			"userId":  "user-1",
			"trigger": "manual",
		})
		require.Equal(t, http.StatusAccepted, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["requestId"])
		assert.Equal(t, false, resp["deduplicated"])
	})

	t.Run("duplicate returns existing id with 200", func(t *testing.T) {
		ts := createTestServer()

		first := ts.do("POST", "/api/sync", map[string]interface{}{"userId": "user-1", "trigger": "manual"})
		require.Equal(t, http.StatusAccepted, first.Code)
		var firstResp map[string]interface{}
		require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

		second := ts.do("POST", "/api/sync", map[string]interface{}{"userId": "user-1", "trigger": "manual"})
		require.Equal(t, http.StatusOK, second.Code)
		var secondResp map[string]interface{}
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

		assert.Equal(t, firstResp["requestId"], secondResp["requestId"])
		assert.Equal(t, true, secondResp["deduplicated"])
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		ts := createTestServer()

		req := httptest.NewRequest("POST", "/api/sync", bytes.NewReader([]byte("not json")))
		req.Header.Set("X-User-ID", "caller-1")
		w := httptest.NewRecorder()
		ts.server.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects missing user id", func(t *testing.T) {
		ts := createTestServer()
		w := ts.do("POST", "/api/sync", map[string]interface{}{"trigger": "manual"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown trigger", func(t *testing.T) {
		ts := createTestServer()
		w := ts.do("POST", "/api/sync", map[string]interface{}{"userId": "user-1", "trigger": "cron"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCancelSync(t *testing.T) {
	t.Run("cancels a queued request", func(t *testing.T) {
		ts := createTestServer()

		w := ts.do("POST", "/api/sync", map[string]interface{}{"userId": "user-1", "trigger": "manual"})
		require.Equal(t, http.StatusAccepted, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		del := ts.do("DELETE", "/api/sync/"+resp["requestId"].(string), nil)
		assert.Equal(t, http.StatusOK, del.Code)
	})

	t.Run("unknown request id returns 404", func(t *testing.T) {
		ts := createTestServer()
		w := ts.do("DELETE", "/api/sync/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("dispatched request cannot be cancelled", func(t *testing.T) {
		ts := createTestServer()

		w := ts.do("POST", "/api/sync", map[string]interface{}{"userId": "user-1", "trigger": "manual"})
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		id := resp["requestId"].(string)
		ts.scheduler.dispatched[id] = true

		del := ts.do("DELETE", "/api/sync/"+id, nil)
		assert.Equal(t, http.StatusNotFound, del.Code)
	})
}

func TestQueueStatusEndpoint(t *testing.T) {
	ts := createTestServer()

	_ = ts.do("POST", "/api/sync", map[string]interface{}{"userId": "user-1", "trigger": "manual"})

	w := ts.do("GET", "/api/sync/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status scheduler.QueueStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1, status.QueueLength)
}

func TestSyncStatusEndpoint(t *testing.T) {
	t.Run("assembles the full status view", func(t *testing.T) {
		ts := createTestServer()

		lastSync := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
		errMsg := "TRANSIENT: aggregator temporarily unavailable"
		ts.conns.conn = &models.Connection{
			UserID:         "user-1",
			LinkedAccounts: []string{"acc-1", "acc-2"},
			LastSyncedAt:   &lastSync,
		}
		ts.attempts.latest = &models.SyncAttempt{
			Status: types.AttemptFailed,
			Error:  &errMsg,
		}
		ts.attempts.inProgress = true
		ts.cooldowns.next = time.Now().UTC().Add(30 * time.Minute)

		w := ts.do("GET", "/api/sync/status/user-1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp SyncStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		assert.Equal(t, "user-1", resp.UserID)
		assert.True(t, resp.Enabled)
		assert.True(t, resp.IsSyncing)
		assert.Equal(t, 2, resp.AccountsConnected)
		require.NotNil(t, resp.LastSync)
		assert.True(t, resp.LastSync.Equal(lastSync))
		assert.Equal(t, string(types.AttemptFailed), resp.LastStatus)
		require.NotNil(t, resp.LastError)
		assert.Equal(t, errMsg, *resp.LastError)
		require.NotNil(t, resp.NextEligibleSync)
	})

	t.Run("no connection yields zero accounts", func(t *testing.T) {
		ts := createTestServer()
		ts.features.enabled = false

		w := ts.do("GET", "/api/sync/status/user-1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp SyncStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Enabled)
		assert.Equal(t, 0, resp.AccountsConnected)
		assert.Nil(t, resp.NextEligibleSync)
	})

	t.Run("elapsed cooldown is omitted", func(t *testing.T) {
		ts := createTestServer()
		ts.cooldowns.next = time.Now().UTC().Add(-time.Minute)

		w := ts.do("GET", "/api/sync/status/user-1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp SyncStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Nil(t, resp.NextEligibleSync)
	})
}

func TestSyncStatsEndpoint(t *testing.T) {
	t.Run("defaults to a 24 hour window", func(t *testing.T) {
		ts := createTestServer()
		ts.attempts.stats = &models.SyncStats{Total: 7, Successful: 5, Failed: 2}

		w := ts.do("GET", "/api/sync/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(24), resp["windowHours"])
	})

	t.Run("rejects invalid window", func(t *testing.T) {
		ts := createTestServer()

		for _, q := range []string{"?windowHours=abc", "?windowHours=-1", "?windowHours=0"} {
			w := ts.do("GET", "/api/sync/stats"+q, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, "query %s", q)
		}
	})

	t.Run("stats failure returns 500", func(t *testing.T) {
		ts := createTestServer()
		ts.attempts.statsErr = errors.New("query timeout")

		w := ts.do("GET", "/api/sync/stats", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestAggregatorWebhookEndpoint(t *testing.T) {
	t.Run("accepts a webhook and enqueues a sync", func(t *testing.T) {
		ts := createTestServer()

		w := ts.do("POST", "/webhooks/aggregator", map[string]interface{}{
			"webhook_type": "TRANSACTIONS",
			"webhook_code": "DEFAULT_UPDATE",
			"item_id":      "item-1",
			"user_id":      "user-1",
		})
		require.Equal(t, http.StatusAccepted, w.Code)

		assert.True(t, ts.scheduler.IsQueued("user-1", types.TriggerWebhook))
	})

	t.Run("rejects missing user id", func(t *testing.T) {
		ts := createTestServer()

		w := ts.do("POST", "/webhooks/aggregator", map[string]interface{}{
			"webhook_type": "TRANSACTIONS",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("burst of webhooks dedupes to one request", func(t *testing.T) {
		ts := createTestServer()

		payload := map[string]interface{}{"webhook_type": "TRANSACTIONS", "user_id": "user-1"}
		for i := 0; i < 5; i++ {
			w := ts.do("POST", "/webhooks/aggregator", payload)
			require.Equal(t, http.StatusAccepted, w.Code)
		}

		assert.Equal(t, 1, ts.scheduler.Status().QueueLength)
	})
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("healthy when all dependencies respond", func(t *testing.T) {
		ts := createTestServer()

		w := ts.do("GET", "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp["status"])
	})

	t.Run("degraded when a dependency is down", func(t *testing.T) {
		ts := createTestServer()
		ts.server.deps["redis"] = healthDown{}

		w := ts.do("GET", "/health", nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp["status"])
	})
}
