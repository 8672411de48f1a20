package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists accounts and holds. Implementations must honor the
// compare-and-swap contract of UpdateAccount and the idempotency-key
// uniqueness of InsertHold; everything else is plain CRUD.
type Store interface {
	// CreateAccount inserts a new account document.
	CreateAccount(ctx context.Context, acct *Account) error

	// GetAccount returns the account by id, or ErrAccountNotFound.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// UpdateAccount writes the account only if the stored version still
	// equals expectedVersion, failing with ErrVersionConflict otherwise.
	// acct.Version must already carry the incremented value.
	UpdateAccount(ctx context.Context, acct *Account, expectedVersion int64) error

	// InsertHold inserts a new hold. A hold with the same idempotency key
	// already persisted fails with ErrDuplicateHold.
	InsertHold(ctx context.Context, hold *Hold) error

	// GetHold returns the hold by id, or ErrHoldNotFound.
	GetHold(ctx context.Context, id string) (*Hold, error)

	// FindHoldByKey returns the hold bound to the idempotency key, or
	// ErrHoldNotFound.
	FindHoldByKey(ctx context.Context, key string) (*Hold, error)

	// TransitionHold moves the hold from one state to another only if the
	// stored state still equals from, failing with ErrVersionConflict when
	// a concurrent writer moved it first.
	TransitionHold(ctx context.Context, id string, from, to HoldState) (*Hold, error)

	// RecordRefund writes the hold's cumulative refunded amount only if the
	// stored version still equals expectedVersion, failing with
	// ErrVersionConflict when a concurrent refund landed first.
	RecordRefund(ctx context.Context, id string, refunded decimal.Decimal, expectedVersion int64) (*Hold, error)
}
