package transaction

import (
	"context"
)

// StatusUpdate carries the optional fields written alongside a status
// transition. Empty fields are left untouched.
type StatusUpdate struct {
	Message           string
	ExternalReference string
	PaymentURL        string
}

// Repository persists transaction records. Create enforces checksum
// uniqueness; Transition is conditional on the current status so that
// concurrent writers cannot both advance the same record.
type Repository interface {
	// Create inserts a new record. A record with the same checksum already
	// persisted fails with ErrDuplicateChecksum.
	Create(ctx context.Context, rec *Record) error

	// Find returns the record by id, or ErrRecordNotFound.
	Find(ctx context.Context, id string) (*Record, error)

	// FindByChecksum returns the record carrying the checksum, or
	// ErrRecordNotFound.
	FindByChecksum(ctx context.Context, checksum string) (*Record, error)

	// FindByExternalReference returns the record carrying the processor
	// reference, or ErrRecordNotFound.
	FindByExternalReference(ctx context.Context, ref string) (*Record, error)

	// Transition moves the record from one status to another, applying the
	// update fields, only if the stored status still equals from. A record
	// in any other status fails with ErrStaleTransition.
	Transition(ctx context.Context, id string, from, to Status, upd StatusUpdate) (*Record, error)

	// AppendCallback appends one entry to the record's callback history.
	AppendCallback(ctx context.Context, id string, entry CallbackEntry) error
}
