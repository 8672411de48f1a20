package transaction

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository with the same transition and
// uniqueness semantics as the MongoDB implementation. Used in unit tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

func (r *MemoryRepository) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.records {
		if existing.Checksum == rec.Checksum {
			return ErrDuplicateChecksum
		}
	}

	cp := *rec
	r.records[rec.ID] = &cp

	return nil
}

func (r *MemoryRepository) Find(_ context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}

	cp := *rec

	return &cp, nil
}

func (r *MemoryRepository) FindByChecksum(_ context.Context, checksum string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records {
		if rec.Checksum == checksum {
			cp := *rec

			return &cp, nil
		}
	}

	return nil, ErrRecordNotFound
}

func (r *MemoryRepository) FindByExternalReference(_ context.Context, ref string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records {
		if rec.ExternalReference == ref && ref != "" {
			cp := *rec

			return &cp, nil
		}
	}

	return nil, ErrRecordNotFound
}

func (r *MemoryRepository) Transition(_ context.Context, id string, from, to Status, upd StatusUpdate) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}

	if rec.Status != from {
		return nil, ErrStaleTransition
	}

	rec.Status = to
	if upd.Message != "" {
		rec.StatusMessage = upd.Message
	}

	if upd.ExternalReference != "" {
		rec.ExternalReference = upd.ExternalReference
	}

	if upd.PaymentURL != "" {
		rec.PaymentURL = upd.PaymentURL
	}

	rec.UpdatedAt = time.Now().UTC()

	cp := *rec

	return &cp, nil
}

func (r *MemoryRepository) AppendCallback(_ context.Context, id string, entry CallbackEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrRecordNotFound
	}

	rec.Callbacks = append(rec.Callbacks, entry)
	rec.UpdatedAt = time.Now().UTC()

	return nil
}
