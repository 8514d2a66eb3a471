package aggregator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/account-sync/internal/config"
	"github.com/account-sync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(&config.AggregatorConfig{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		RequestTimeout:    2 * time.Second,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	return client
}

func TestNewHTTPClient(t *testing.T) {
	t.Run("requires base URL", func(t *testing.T) {
		_, err := NewHTTPClient(&config.AggregatorConfig{})
		assert.Error(t, err)
	})
}

func TestFetchAccounts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accounts":[{"account_id":"acc-1","name":"Brokerage","type":"investment"}]}`))
	})

	accounts, err := client.FetchAccounts(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acc-1", accounts[0].AccountID)
	assert.Equal(t, "Brokerage", accounts[0].Name)
}

func TestFetchHoldings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/investments/holdings", r.URL.Path)
		w.Write([]byte(`{"holdings":[{"holding_id":"h-1","ticker_symbol":"AAPL","quantity":"10"}]}`))
	})

	holdings, err := client.FetchHoldings(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL", holdings[0].Symbol)
}

func TestFetchTransactions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "2026-01-01", r.URL.Query().Get("start_date"))
		w.Write([]byte(`{"transactions":[{"transaction_id":"tx-1","amount":"25.00","date":"2026-03-01"}]}`))
	})

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	transactions, err := client.FetchTransactions(context.Background(), "tok-1", from)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "tx-1", transactions[0].TransactionID)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		isFatal     bool
		isRetryable bool
	}{
		{"unauthorized is fatal", http.StatusUnauthorized, true, false},
		{"bad request is fatal", http.StatusBadRequest, true, false},
		{"server error is retryable", http.StatusInternalServerError, false, true},
		{"rate limit upstream is retryable", http.StatusTooManyRequests, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream says no", tt.status)
			})

			_, err := client.FetchAccounts(context.Background(), "tok-1")
			require.Error(t, err)
			assert.Equal(t, tt.isFatal, syncerr.IsFatal(err))
			assert.Equal(t, tt.isRetryable, syncerr.IsRetryable(err))
		})
	}
}

func TestMalformedResponseIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accounts": [truncated`))
	})

	_, err := client.FetchAccounts(context.Background(), "tok-1")
	require.Error(t, err)
	assert.True(t, syncerr.IsRetryable(err))
}

func TestContextCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{"accounts":[]}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchAccounts(ctx, "tok-1")
	require.Error(t, err)
	assert.True(t, syncerr.IsRetryable(err), "cancelled requests stay retryable")
}
