package transaction

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable domain error code surfaced to API clients.
type ErrorCode string

const (
	// ErrorValidation indicates request payload validation failed.
	ErrorValidation ErrorCode = "1001"
	// ErrorInvalidStateTransition indicates a transaction status transition
	// that the state machine does not permit.
	ErrorInvalidStateTransition ErrorCode = "1002"
	// ErrorInsufficientFunds indicates the payer account cannot cover the amount.
	ErrorInsufficientFunds ErrorCode = "0018"
	// ErrorPolicyBlocked indicates pre-transaction policy checks reported
	// blocking reasons.
	ErrorPolicyBlocked ErrorCode = "0019"
	// ErrorNotFound indicates the checksum, account, hold, or record is
	// missing or expired.
	ErrorNotFound ErrorCode = "0040"
	// ErrorDuplicateChecksum indicates a transaction already exists for the
	// checksum; the request was already processed.
	ErrorDuplicateChecksum ErrorCode = "0073"
	// ErrorConcurrencyConflict indicates optimistic-concurrency retries were
	// exhausted.
	ErrorConcurrencyConflict ErrorCode = "0074"
	// ErrorDispatchFailure indicates the external settlement processor
	// rejected or timed out.
	ErrorDispatchFailure ErrorCode = "0080"
	// ErrorUnknownCallbackStatus indicates a provider callback carried a
	// status code this system does not recognize.
	ErrorUnknownCallbackStatus ErrorCode = "0090"
)

// DomainError is a structured domain error with a stable code. Financial
// errors carry actionable messages; internal ones carry a generic message
// while the full detail is logged.
type DomainError struct {
	Code    ErrorCode
	Field   string
	Message string
}

// Error returns the formatted domain error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// NewDomainError creates a domain error with code, field, and message.
func NewDomainError(code ErrorCode, field, message string) error {
	return DomainError{Code: code, Field: field, Message: message}
}

var (
	// ErrRecordNotFound is returned when no transaction matches the lookup key.
	ErrRecordNotFound = errors.New("transaction not found")
	// ErrDuplicateChecksum is returned when a record already exists for the
	// checksum. The original record stands; the caller should check its status.
	ErrDuplicateChecksum = errors.New("transaction with this checksum already exists")
	// ErrStaleTransition is returned when a conditional status update observed
	// a different current status than expected.
	ErrStaleTransition = errors.New("transaction status changed concurrently")
)
