package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodaniels/doseal-transaction-core/internal/events"
	"github.com/sodaniels/doseal-transaction-core/internal/ledger"
	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.StatusEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event events.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) statuses() []transaction.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]transaction.Status, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Status)
	}

	return out
}

type fixture struct {
	records    *transaction.MemoryRepository
	store      *ledger.MemoryStore
	engine     *ledger.Engine
	publisher  *recordingPublisher
	reconciler *Reconciler
}

// newFixture seeds an account with 100 USD, places a 30 hold, and persists
// an AWAITING_PAYMENT record wired to that hold.
func newFixture(t *testing.T) (*fixture, *transaction.Record) {
	t.Helper()

	ctx := context.Background()
	store := ledger.NewMemoryStore()
	engine := ledger.NewEngine(store, log.NewNop(), ledger.Config{RetryBase: time.Millisecond})

	require.NoError(t, store.CreateAccount(ctx, &ledger.Account{
		ID: "acc-1", OwnerID: "owner-1", Currency: "USD",
		Available: decimal.RequireFromString("100"), Held: decimal.Zero,
		UpdatedAt: time.Now().UTC(),
	}))

	hold, err := engine.PlaceHold(ctx, "acc-1", decimal.RequireFromString("30"), "key-1", "DR_REF1")
	require.NoError(t, err)

	records := transaction.NewMemoryRepository()
	now := time.Now().UTC()
	rec := &transaction.Record{
		ID:                "tx-1",
		Checksum:          "CHECKSUM1",
		InternalReference: "DR_REF1",
		BusinessID:        "biz-1",
		Amounts: transaction.AmountDetails{
			SendAmount:   decimal.RequireFromString("27.50"),
			Fee:          decimal.RequireFromString("2.50"),
			TotalDebit:   decimal.RequireFromString("30"),
			SendCurrency: "USD",
		},
		PaymentMode:     transaction.ModeCard,
		LedgerAccountID: "acc-1",
		LedgerHoldID:    hold.ID,
		Status:          transaction.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, records.Create(ctx, rec))

	rec, err = records.Transition(ctx, rec.ID, transaction.StatusPending, transaction.StatusAwaitingPayment, transaction.StatusUpdate{
		ExternalReference: "EXT-1",
	})
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	reconciler := NewReconciler(records, engine, publisher, log.NewNop())

	return &fixture{
		records:    records,
		store:      store,
		engine:     engine,
		publisher:  publisher,
		reconciler: reconciler,
	}, rec
}

func (f *fixture) account(t *testing.T) *ledger.Account {
	t.Helper()

	acct, err := f.engine.GetAccount(context.Background(), "acc-1")
	require.NoError(t, err)

	return acct
}

func TestReconcilerPaymentStarted(t *testing.T) {
	t.Parallel()

	f, rec := newFixture(t)
	ctx := context.Background()

	updated, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", CodePaymentStarted, "payment started")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSettling, updated.Status)

	// Replay keeps the state and appends history only.
	again, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", CodePaymentStarted, "payment started")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSettling, again.Status)

	stored, err := f.records.Find(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Callbacks, 2)
}

func TestReconcilerSuccessCapturesAndSettles(t *testing.T) {
	t.Parallel()

	f, rec := newFixture(t)
	ctx := context.Background()

	updated, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", CodeSuccess, "approved")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSettled, updated.Status)

	acct := f.account(t)
	assert.True(t, acct.Available.Equal(decimal.RequireFromString("70")))
	assert.True(t, acct.Held.IsZero(), "captured funds left the account")

	assert.Equal(t, []transaction.Status{transaction.StatusSettled}, f.publisher.statuses())

	// Replayed success moves nothing twice.
	again, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", CodeSuccess, "approved")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSettled, again.Status)

	acct = f.account(t)
	assert.True(t, acct.Available.Equal(decimal.RequireFromString("70")), "no double capture")

	stored, err := f.records.Find(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Callbacks, 2, "replay recorded in history")
}

func TestReconcilerFailureReleasesAndFails(t *testing.T) {
	t.Parallel()

	f, _ := newFixture(t)
	ctx := context.Background()

	updated, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", CodeFailure, "declined")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, updated.Status)
	assert.Equal(t, "declined", updated.StatusMessage)

	acct := f.account(t)
	assert.True(t, acct.Available.Equal(decimal.RequireFromString("100")), "held funds returned")
	assert.True(t, acct.Held.IsZero())

	assert.Equal(t, []transaction.Status{transaction.StatusFailed}, f.publisher.statuses())

	// Replay is a no-op.
	again, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", CodeFailure, "declined")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, again.Status)
}

func TestReconcilerFailureAfterSettlementIsIgnored(t *testing.T) {
	t.Parallel()

	f, _ := newFixture(t)
	ctx := context.Background()

	_, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", CodeSuccess, "approved")
	require.NoError(t, err)

	// Out-of-order failure must not claw settled funds back.
	rec, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", CodeFailure, "declined")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSettled, rec.Status)

	acct := f.account(t)
	assert.True(t, acct.Available.Equal(decimal.RequireFromString("70")))
}

func TestReconcilerUnknownStatusCode(t *testing.T) {
	t.Parallel()

	f, rec := newFixture(t)
	ctx := context.Background()

	_, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", "999", "mystery")
	require.ErrorIs(t, err, ErrUnknownCallbackStatus)

	// Record untouched, including history.
	stored, err := f.records.Find(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusAwaitingPayment, stored.Status)
	assert.Empty(t, stored.Callbacks)
}

func TestReconcilerUnknownExternalReference(t *testing.T) {
	t.Parallel()

	f, _ := newFixture(t)

	_, err := f.reconciler.ApplyByExternalReference(context.Background(), "EXT-MISSING", CodeSuccess, "approved")
	require.ErrorIs(t, err, transaction.ErrRecordNotFound)
}

func TestReconcilerReverse(t *testing.T) {
	t.Parallel()

	f, rec := newFixture(t)
	ctx := context.Background()

	_, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", CodeSuccess, "approved")
	require.NoError(t, err)

	reversed, err := f.reconciler.Reverse(ctx, rec.ID, "customer refund")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusReversed, reversed.Status)

	acct := f.account(t)
	assert.True(t, acct.Available.Equal(decimal.RequireFromString("100")), "refund restored the captured amount")

	// Replayed reversal refunds nothing twice.
	again, err := f.reconciler.Reverse(ctx, rec.ID, "customer refund")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusReversed, again.Status)

	acct = f.account(t)
	assert.True(t, acct.Available.Equal(decimal.RequireFromString("100")))

	assert.Equal(t,
		[]transaction.Status{transaction.StatusSettled, transaction.StatusReversed},
		f.publisher.statuses())
}

func TestReconcilerReverseAfterPartialRefund(t *testing.T) {
	t.Parallel()

	f, rec := newFixture(t)
	ctx := context.Background()

	_, err := f.reconciler.ApplyByExternalReference(ctx, "EXT-1", CodeSuccess, "approved")
	require.NoError(t, err)

	stored, err := f.records.Find(ctx, rec.ID)
	require.NoError(t, err)

	// Part of the capture was already refunded out of band.
	_, err = f.engine.RefundCapture(ctx, stored.LedgerHoldID, decimal.RequireFromString("10"))
	require.NoError(t, err)

	acct := f.account(t)
	require.True(t, acct.Available.Equal(decimal.RequireFromString("80")))

	// The reversal credits only the remainder, never the full amount again.
	reversed, err := f.reconciler.Reverse(ctx, rec.ID, "customer refund")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusReversed, reversed.Status)

	acct = f.account(t)
	assert.True(t, acct.Available.Equal(decimal.RequireFromString("100")))
}

// flakyHoldStore fails GetHold a configured number of times, standing in for
// a store that drops a read mid-operation.
type flakyHoldStore struct {
	ledger.Store

	mu    sync.Mutex
	fails int
}

func (s *flakyHoldStore) arm(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fails = n
}

func (s *flakyHoldStore) GetHold(ctx context.Context, id string) (*ledger.Hold, error) {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()

		return nil, errors.New("transient store error")
	}
	s.mu.Unlock()

	return s.Store.GetHold(ctx, id)
}

// A reversal that dies between the status write and the refund must be
// finishable: the replay re-attempts the refund instead of reporting success
// with the payer's money still gone.
func TestReconcilerReverseReplayFinishesRefund(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	flaky := &flakyHoldStore{Store: ledger.NewMemoryStore()}
	engine := ledger.NewEngine(flaky, log.NewNop(), ledger.Config{RetryBase: time.Millisecond})

	require.NoError(t, flaky.CreateAccount(ctx, &ledger.Account{
		ID: "acc-1", OwnerID: "owner-1", Currency: "USD",
		Available: decimal.RequireFromString("100"), Held: decimal.Zero,
		UpdatedAt: time.Now().UTC(),
	}))

	hold, err := engine.PlaceHold(ctx, "acc-1", decimal.RequireFromString("30"), "key-1", "DR_REF1")
	require.NoError(t, err)

	records := transaction.NewMemoryRepository()
	now := time.Now().UTC()
	require.NoError(t, records.Create(ctx, &transaction.Record{
		ID:                "tx-1",
		Checksum:          "CHECKSUM1",
		InternalReference: "DR_REF1",
		BusinessID:        "biz-1",
		Amounts: transaction.AmountDetails{
			SendAmount:   decimal.RequireFromString("27.50"),
			Fee:          decimal.RequireFromString("2.50"),
			TotalDebit:   decimal.RequireFromString("30"),
			SendCurrency: "USD",
		},
		PaymentMode:     transaction.ModeCard,
		LedgerAccountID: "acc-1",
		LedgerHoldID:    hold.ID,
		Status:          transaction.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))

	_, err = records.Transition(ctx, "tx-1", transaction.StatusPending, transaction.StatusAwaitingPayment, transaction.StatusUpdate{
		ExternalReference: "EXT-1",
	})
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	reconciler := NewReconciler(records, engine, publisher, log.NewNop())

	_, err = reconciler.ApplyByExternalReference(ctx, "EXT-1", CodeSuccess, "approved")
	require.NoError(t, err)

	// The refund's hold read fails after the status write has committed.
	flaky.arm(1)

	_, err = reconciler.Reverse(ctx, "tx-1", "customer refund")
	require.Error(t, err)

	stored, err := records.Find(ctx, "tx-1")
	require.NoError(t, err)
	require.Equal(t, transaction.StatusReversed, stored.Status, "status write already committed")

	acct, err := engine.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	require.True(t, acct.Available.Equal(decimal.RequireFromString("70")), "refund did not land")

	// The replay finishes the refund instead of swallowing it.
	replayed, err := reconciler.Reverse(ctx, "tx-1", "customer refund")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusReversed, replayed.Status)

	acct, err = engine.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acct.Available.Equal(decimal.RequireFromString("100")), "replay credited the refund")

	assert.Equal(t,
		[]transaction.Status{transaction.StatusSettled, transaction.StatusReversed},
		publisher.statuses())

	// A further replay moves nothing and publishes nothing new.
	_, err = reconciler.Reverse(ctx, "tx-1", "customer refund")
	require.NoError(t, err)

	acct, err = engine.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acct.Available.Equal(decimal.RequireFromString("100")))
	assert.Len(t, publisher.statuses(), 2)
}

func TestReconcilerReverseRequiresSettled(t *testing.T) {
	t.Parallel()

	f, rec := newFixture(t)

	_, err := f.reconciler.Reverse(context.Background(), rec.ID, "refund")
	require.Error(t, err)

	var domainErr transaction.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, transaction.ErrorInvalidStateTransition, domainErr.Code)
}
