package ledger

import "errors"

var (
	// ErrAccountNotFound indicates the ledger account does not exist.
	ErrAccountNotFound = errors.New("ledger account not found")

	// ErrHoldNotFound indicates the hold does not exist.
	ErrHoldNotFound = errors.New("hold not found")

	// ErrInsufficientFunds indicates the available balance cannot cover the
	// requested hold amount.
	ErrInsufficientFunds = errors.New("insufficient available funds")

	// ErrConcurrencyConflict indicates the optimistic write retries were
	// exhausted without winning a version check.
	ErrConcurrencyConflict = errors.New("concurrent balance update conflict")

	// ErrVersionConflict indicates a single compare-and-swap attempt lost to
	// a concurrent writer. The engine retries on it; callers see
	// ErrConcurrencyConflict once retries run out.
	ErrVersionConflict = errors.New("account version conflict")

	// ErrHoldReleased indicates a capture was attempted on a released hold.
	ErrHoldReleased = errors.New("hold already released")

	// ErrHoldCaptured indicates a release was attempted on a captured hold.
	ErrHoldCaptured = errors.New("hold already captured")

	// ErrHoldNotCaptured indicates a refund was attempted on a hold that was
	// never captured.
	ErrHoldNotCaptured = errors.New("hold not captured")

	// ErrRefundExceedsCapture indicates the requested refund would push the
	// cumulative refunded figure past the captured amount.
	ErrRefundExceedsCapture = errors.New("refund exceeds captured amount")

	// ErrHoldMismatch indicates the idempotency key is already bound to a
	// hold with a different account or amount.
	ErrHoldMismatch = errors.New("idempotency key bound to a different hold")

	// ErrDuplicateHold indicates a concurrent insert already created the
	// hold for this idempotency key.
	ErrDuplicateHold = errors.New("hold already exists for idempotency key")
)
