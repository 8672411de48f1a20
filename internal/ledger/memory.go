package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store faithful to the compare-and-swap
// contract: a stale expected version loses exactly like a conditional
// document update would. Used in unit tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	holds    map[string]*Hold
	holdKeys map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		holds:    make(map[string]*Hold),
		holdKeys: make(map[string]string),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *acct
	s.accounts[acct.ID] = &cp

	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}

	cp := *acct

	return &cp, nil
}

func (s *MemoryStore) UpdateAccount(_ context.Context, acct *Account, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accounts[acct.ID]
	if !ok {
		return ErrAccountNotFound
	}

	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}

	cp := *acct
	s.accounts[acct.ID] = &cp

	return nil
}

func (s *MemoryStore) InsertHold(_ context.Context, hold *Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.holdKeys[hold.IdempotencyKey]; exists {
		return ErrDuplicateHold
	}

	cp := *hold
	s.holds[hold.ID] = &cp
	s.holdKeys[hold.IdempotencyKey] = hold.ID

	return nil
}

func (s *MemoryStore) GetHold(_ context.Context, id string) (*Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hold, ok := s.holds[id]
	if !ok {
		return nil, ErrHoldNotFound
	}

	cp := *hold

	return &cp, nil
}

func (s *MemoryStore) FindHoldByKey(_ context.Context, key string) (*Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.holdKeys[key]
	if !ok {
		return nil, ErrHoldNotFound
	}

	cp := *s.holds[id]

	return &cp, nil
}

func (s *MemoryStore) TransitionHold(_ context.Context, id string, from, to HoldState) (*Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, ok := s.holds[id]
	if !ok {
		return nil, ErrHoldNotFound
	}

	if hold.State != from {
		return nil, ErrVersionConflict
	}

	hold.State = to
	hold.UpdatedAt = time.Now().UTC()

	cp := *hold

	return &cp, nil
}

func (s *MemoryStore) RecordRefund(_ context.Context, id string, refunded decimal.Decimal, expectedVersion int64) (*Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, ok := s.holds[id]
	if !ok {
		return nil, ErrHoldNotFound
	}

	if hold.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	hold.Refunded = refunded
	hold.Version++
	hold.UpdatedAt = time.Now().UTC()

	cp := *hold

	return &cp, nil
}
