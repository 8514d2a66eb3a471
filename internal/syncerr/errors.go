// Package syncerr provides the error taxonomy for the sync pipeline.
// Every failure in the pipeline is classified as rate-limited, retryable,
// or fatal; the scheduler's retry decision depends only on this category.
package syncerr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/account-sync/internal/types"
)

// Category represents the retry classification of a sync error.
type Category string

const (
	// CategoryRateLimited represents a cooldown denial; not retried at this layer
	CategoryRateLimited Category = "rate_limited"
	// CategoryRetryable represents a transient failure subject to backoff retry
	CategoryRetryable Category = "retryable"
	// CategoryFatal represents a failure that is never retried
	CategoryFatal Category = "fatal"
)

// SyncError is an error with a retry category and a short, user-safe reason.
type SyncError struct {
	Category Category
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Reason returns the short categorized reason string surfaced to status queries.
// Stack traces and wrapped causes are never exposed here.
func (e *SyncError) Reason() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ToServiceError converts to a ServiceError for API responses.
func (e *SyncError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewRateLimited creates a rate-limited error for a (user, trigger) cooldown denial.
func NewRateLimited(userID string, kind types.TriggerKind) *SyncError {
	return &SyncError{
		Category: CategoryRateLimited,
		Code:     "RATE_LIMITED",
		Message:  fmt.Sprintf("sync rate limited for trigger %s", kind),
		Details: map[string]interface{}{
			"userId":  userID,
			"trigger": string(kind),
		},
	}
}

// NewRetryable creates a transient error subject to the backoff policy.
func NewRetryable(message string, cause error) *SyncError {
	return &SyncError{
		Category: CategoryRetryable,
		Code:     "TRANSIENT",
		Message:  message,
		Cause:    cause,
	}
}

// NewFatal creates a terminal error that is never retried.
func NewFatal(code, message string, cause error) *SyncError {
	return &SyncError{
		Category: CategoryFatal,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// NewNoConnection creates the fatal error for a user with no linked aggregator account.
func NewNoConnection(userID string) *SyncError {
	return &SyncError{
		Category: CategoryFatal,
		Code:     "NO_CONNECTION",
		Message:  "no linked aggregator account",
		Details: map[string]interface{}{
			"userId": userID,
		},
	}
}

// NewCapabilityDenied creates the fatal error for a missing feature-gate capability.
func NewCapabilityDenied(userID, capability string) *SyncError {
	return &SyncError{
		Category: CategoryFatal,
		Code:     "CAPABILITY_DENIED",
		Message:  fmt.Sprintf("capability %s not enabled", capability),
		Details: map[string]interface{}{
			"userId":     userID,
			"capability": capability,
		},
	}
}

// NewAggregatorError classifies an aggregator API failure by HTTP status.
// Auth and config failures are fatal; everything else transient.
func NewAggregatorError(statusCode int, cause error) *SyncError {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &SyncError{
			Category: CategoryFatal,
			Code:     "AGGREGATOR_AUTH",
			Message:  "aggregator rejected credentials",
			Cause:    cause,
			Details:  map[string]interface{}{"status": statusCode},
		}
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return &SyncError{
			Category: CategoryFatal,
			Code:     "AGGREGATOR_REQUEST",
			Message:  "aggregator rejected request",
			Cause:    cause,
			Details:  map[string]interface{}{"status": statusCode},
		}
	default:
		return &SyncError{
			Category: CategoryRetryable,
			Code:     "AGGREGATOR_UNAVAILABLE",
			Message:  "aggregator temporarily unavailable",
			Cause:    cause,
			Details:  map[string]interface{}{"status": statusCode},
		}
	}
}

// Categorize returns the SyncError for err, wrapping unclassified errors as fatal.
// Programming errors in the mapper or reconciler must never be retried.
func Categorize(err error) *SyncError {
	if err == nil {
		return nil
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}
	return NewFatal("INTERNAL", "unexpected error", err)
}

// IsRetryable reports whether err should be re-enqueued with backoff.
func IsRetryable(err error) bool {
	se := Categorize(err)
	return se != nil && se.Category == CategoryRetryable
}

// IsRateLimited reports whether err is a cooldown denial.
func IsRateLimited(err error) bool {
	se := Categorize(err)
	return se != nil && se.Category == CategoryRateLimited
}

// IsFatal reports whether err is terminal for the request.
func IsFatal(err error) bool {
	se := Categorize(err)
	return se != nil && se.Category == CategoryFatal
}

// HTTPStatus maps an error to the API status code for it.
func HTTPStatus(err error) int {
	se := Categorize(err)
	if se == nil {
		return http.StatusInternalServerError
	}
	switch se.Category {
	case CategoryRateLimited:
		return http.StatusTooManyRequests
	case CategoryRetryable:
		return http.StatusBadGateway
	default:
		switch se.Code {
		case "NO_CONNECTION":
			return http.StatusNotFound
		case "CAPABILITY_DENIED":
			return http.StatusForbidden
		default:
			return http.StatusInternalServerError
		}
	}
}
