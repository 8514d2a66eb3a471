package syncerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/account-sync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, Categorize(nil))
	})

	t.Run("passes through sync errors", func(t *testing.T) {
		err := NewRetryable("network blip", nil)
		se := Categorize(err)
		assert.Equal(t, CategoryRetryable, se.Category)
	})

	t.Run("unwraps wrapped sync errors", func(t *testing.T) {
		inner := NewRateLimited("user-1", types.TriggerManual)
		wrapped := fmt.Errorf("executing sync: %w", inner)

		se := Categorize(wrapped)
		assert.Equal(t, CategoryRateLimited, se.Category)
	})

	t.Run("unclassified errors are fatal", func(t *testing.T) {
		se := Categorize(errors.New("index out of range"))
		assert.Equal(t, CategoryFatal, se.Category)
		assert.Equal(t, "INTERNAL", se.Code)
	})
}

func TestCategoryPredicates(t *testing.T) {
	assert.True(t, IsRetryable(NewRetryable("blip", nil)))
	assert.False(t, IsRetryable(NewFatal("X", "nope", nil)))

	assert.True(t, IsRateLimited(NewRateLimited("user-1", types.TriggerLogin)))
	assert.False(t, IsRateLimited(NewRetryable("blip", nil)))

	assert.True(t, IsFatal(NewNoConnection("user-1")))
	assert.True(t, IsFatal(NewCapabilityDenied("user-1", types.CapabilityBankSync)))
	assert.False(t, IsFatal(NewRetryable("blip", nil)))
}

func TestNewAggregatorError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		category Category
		code     string
	}{
		{"unauthorized is fatal", http.StatusUnauthorized, CategoryFatal, "AGGREGATOR_AUTH"},
		{"forbidden is fatal", http.StatusForbidden, CategoryFatal, "AGGREGATOR_AUTH"},
		{"bad request is fatal", http.StatusBadRequest, CategoryFatal, "AGGREGATOR_REQUEST"},
		{"unprocessable is fatal", http.StatusUnprocessableEntity, CategoryFatal, "AGGREGATOR_REQUEST"},
		{"server error is retryable", http.StatusInternalServerError, CategoryRetryable, "AGGREGATOR_UNAVAILABLE"},
		{"bad gateway is retryable", http.StatusBadGateway, CategoryRetryable, "AGGREGATOR_UNAVAILABLE"},
		{"too many requests is retryable", http.StatusTooManyRequests, CategoryRetryable, "AGGREGATOR_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := NewAggregatorError(tt.status, errors.New("upstream"))
			assert.Equal(t, tt.category, se.Category)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, tt.status, se.Details["status"])
		})
	}
}

func TestReason(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewRetryable("aggregator unreachable", cause)

	// Reason is the short user-safe string; the cause stays out of it
	assert.Equal(t, "TRANSIENT: aggregator unreachable", err.Reason())
	assert.NotContains(t, err.Reason(), "dial tcp")

	// But Error() keeps the cause for logs
	assert.Contains(t, err.Error(), "dial tcp")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewFatal("X", "failed", cause)

	require.ErrorIs(t, err, cause)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(NewRateLimited("u", types.TriggerManual)))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(NewRetryable("blip", nil)))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NewNoConnection("u")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(NewCapabilityDenied("u", types.CapabilityBankSync)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("unknown")))
}
