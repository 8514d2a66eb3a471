// Package types provides common type definitions for the account sync service.
package types

// TriggerKind represents the reason a sync was requested.
type TriggerKind string

const (
	// TriggerLogin represents a sync requested when the user signs in
	TriggerLogin TriggerKind = "login"
	// TriggerManual represents a sync requested explicitly by the user
	TriggerManual TriggerKind = "manual"
	// TriggerScheduled represents a sync requested by the nightly batch
	TriggerScheduled TriggerKind = "scheduled"
	// TriggerWebhook represents a sync requested by an aggregator webhook event
	TriggerWebhook TriggerKind = "webhook"
)

// Valid reports whether the trigger kind is one of the known kinds.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerLogin, TriggerManual, TriggerScheduled, TriggerWebhook:
		return true
	}
	return false
}

// Priority returns the dispatch priority for the trigger kind.
// Lower values are dispatched first.
func (k TriggerKind) Priority() int {
	switch k {
	case TriggerWebhook:
		return 1
	case TriggerManual:
		return 2
	case TriggerLogin:
		return 3
	case TriggerScheduled:
		return 4
	default:
		return 5
	}
}

// AttemptStatus represents the lifecycle state of one sync attempt.
type AttemptStatus string

const (
	// AttemptPending represents an attempt record that has been opened but not started
	AttemptPending AttemptStatus = "pending"
	// AttemptInProgress represents an attempt currently executing
	AttemptInProgress AttemptStatus = "in_progress"
	// AttemptSuccess represents an attempt that completed with all records synced
	AttemptSuccess AttemptStatus = "success"
	// AttemptPartial represents an attempt that completed with some record-level failures
	AttemptPartial AttemptStatus = "partial"
	// AttemptFailed represents an attempt aborted before completion
	AttemptFailed AttemptStatus = "failed"
)

// Terminal reports whether the status is a final attempt state.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSuccess || s == AttemptPartial || s == AttemptFailed
}

// RequestState represents the scheduler-side state of a queued sync request.
type RequestState string

const (
	// RequestEnqueued represents a request waiting for dispatch
	RequestEnqueued RequestState = "enqueued"
	// RequestDispatched represents a request handed to the executor
	RequestDispatched RequestState = "dispatched"
	// RequestRetrying represents a failed request waiting for its backoff delay
	RequestRetrying RequestState = "retrying"
)

// DataSource tags where a domain record originated.
type DataSource string

const (
	// SourceManual represents a record entered directly by the user
	SourceManual DataSource = "manual"
	// SourceAggregator represents a record written by the sync pipeline
	SourceAggregator DataSource = "aggregator"
)

// ReviewState represents the reconciliation flag on a domain record.
type ReviewState string

const (
	// ReviewNone represents a record with no pending reconciliation conflict
	ReviewNone ReviewState = "none"
	// ReviewNeeded represents a manual record with conflicting aggregator data attached
	ReviewNeeded ReviewState = "needs_review"
)

// ExpenseCategory represents the domain's fixed expense taxonomy.
type ExpenseCategory string

const (
	CategoryHousing       ExpenseCategory = "housing"
	CategoryFood          ExpenseCategory = "food"
	CategoryTransport     ExpenseCategory = "transport"
	CategoryUtilities     ExpenseCategory = "utilities"
	CategoryHealthcare    ExpenseCategory = "healthcare"
	CategoryEntertainment ExpenseCategory = "entertainment"
	CategoryShopping      ExpenseCategory = "shopping"
	CategoryTravel        ExpenseCategory = "travel"
	CategoryEducation     ExpenseCategory = "education"
	CategoryFees          ExpenseCategory = "fees"
	CategoryOther         ExpenseCategory = "other"
)

// IncomeType distinguishes dividend income from generic credits.
type IncomeType string

const (
	// IncomeDividend represents dividend or distribution income
	IncomeDividend IncomeType = "dividend"
	// IncomeInterest represents interest income
	IncomeInterest IncomeType = "interest"
	// IncomeDeposit represents a generic credit
	IncomeDeposit IncomeType = "deposit"
)

// CapabilityBankSync is the feature-gate capability required to run a sync.
const CapabilityBankSync = "BankSync"

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
