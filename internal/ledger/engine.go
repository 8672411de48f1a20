package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sodaniels/doseal-transaction-core/pkg/backoff"
	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

const (
	defaultMaxRetries = 5
	defaultRetryBase  = 20 * time.Millisecond
)

// Config tunes the optimistic retry loop. Zero values pick the defaults.
type Config struct {
	// MaxRetries bounds how many version conflicts one operation absorbs
	// before giving up with ErrConcurrencyConflict.
	MaxRetries int
	// RetryBase is the base delay of the jittered exponential backoff
	// between attempts.
	RetryBase time.Duration
}

// Engine applies balance movements with optimistic concurrency: read the
// account, compute the new balances, and write conditioned on the version
// read. Losers retry with jittered backoff up to Config.MaxRetries.
type Engine struct {
	store      Store
	logger     log.Logger
	maxRetries int
	retryBase  time.Duration
}

// NewEngine wires an engine over the given store.
func NewEngine(store Store, logger log.Logger, cfg Config) *Engine {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	if cfg.RetryBase == 0 {
		cfg.RetryBase = defaultRetryBase
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &Engine{
		store:      store,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
	}
}

// GetAccount returns the current account state.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	return e.store.GetAccount(ctx, accountID)
}

// GetHold returns the current hold state.
func (e *Engine) GetHold(ctx context.Context, holdID string) (*Hold, error) {
	return e.store.GetHold(ctx, holdID)
}

// PlaceHold earmarks amount against the account's available balance and
// records an ACTIVE hold bound to idempotencyKey. Replaying the same key
// with the same account and amount returns the original hold; a mismatched
// replay fails with ErrHoldMismatch. Insufficient available funds fail with
// ErrInsufficientFunds and write nothing.
func (e *Engine) PlaceHold(ctx context.Context, accountID string, amount decimal.Decimal, idempotencyKey, reference string) (*Hold, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("hold amount must be positive, got %s", amount)
	}

	if existing, err := e.replayedHold(ctx, accountID, amount, idempotencyKey); existing != nil || err != nil {
		return existing, err
	}

	err := e.applyDelta(ctx, accountID, amount.Neg(), amount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	hold := &Hold{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		IdempotencyKey: idempotencyKey,
		Reference:      reference,
		Amount:         amount,
		State:          HoldActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.InsertHold(ctx, hold); err != nil {
		if errors.Is(err, ErrDuplicateHold) {
			// A concurrent caller won the insert. Undo our balance movement
			// and hand back the winner's hold.
			if undoErr := e.applyDelta(ctx, accountID, amount, amount.Neg()); undoErr != nil {
				e.logger.Log(ctx, log.LevelError, "failed to undo balance movement after duplicate hold",
					log.String("account_id", accountID),
					log.String("idempotency_key", idempotencyKey),
					log.Err(undoErr),
				)

				return nil, fmt.Errorf("undo balance movement: %w", undoErr)
			}

			return e.replayedHold(ctx, accountID, amount, idempotencyKey)
		}

		return nil, err
	}

	e.logger.Log(ctx, log.LevelInfo, "hold placed",
		log.String("account_id", accountID),
		log.String("hold_id", hold.ID),
		log.String("amount", amount.String()),
	)

	return hold, nil
}

// CaptureHold finalizes the debit: held funds leave the account and the hold
// becomes CAPTURED. Capturing an already captured hold is a no-op; capturing
// a released hold fails with ErrHoldReleased.
func (e *Engine) CaptureHold(ctx context.Context, holdID string) (*Hold, error) {
	hold, err := e.store.GetHold(ctx, holdID)
	if err != nil {
		return nil, err
	}

	switch hold.State {
	case HoldCaptured:
		return hold, nil
	case HoldReleased:
		return nil, ErrHoldReleased
	}

	if err := e.applyDelta(ctx, hold.AccountID, decimal.Zero, hold.Amount.Neg()); err != nil {
		return nil, err
	}

	captured, err := e.transitionHold(ctx, hold, HoldCaptured, decimal.Zero, hold.Amount)
	if err != nil {
		return nil, err
	}

	e.logger.Log(ctx, log.LevelInfo, "hold captured",
		log.String("account_id", hold.AccountID),
		log.String("hold_id", hold.ID),
		log.String("amount", hold.Amount.String()),
	)

	return captured, nil
}

// ReleaseHold returns held funds to the available balance and marks the hold
// RELEASED. Releasing an already released hold is a no-op; releasing a
// captured hold fails with ErrHoldCaptured.
func (e *Engine) ReleaseHold(ctx context.Context, holdID string) (*Hold, error) {
	hold, err := e.store.GetHold(ctx, holdID)
	if err != nil {
		return nil, err
	}

	switch hold.State {
	case HoldReleased:
		return hold, nil
	case HoldCaptured:
		return nil, ErrHoldCaptured
	}

	if err := e.applyDelta(ctx, hold.AccountID, hold.Amount, hold.Amount.Neg()); err != nil {
		return nil, err
	}

	released, err := e.transitionHold(ctx, hold, HoldReleased, hold.Amount.Neg(), hold.Amount)
	if err != nil {
		return nil, err
	}

	e.logger.Log(ctx, log.LevelInfo, "hold released",
		log.String("account_id", hold.AccountID),
		log.String("hold_id", hold.ID),
		log.String("amount", hold.Amount.String()),
	)

	return released, nil
}

// RefundCapture credits part or all of a captured hold's amount back to the
// available balance. The explicit compensation path for reversing a settled
// transfer; the hold itself stays CAPTURED while Refunded accumulates toward
// Amount, so the same money can never be credited twice. A refund that loses
// the conditional write to a concurrent one fails with ErrVersionConflict
// after undoing its credit; callers re-read the hold and decide what remains.
func (e *Engine) RefundCapture(ctx context.Context, holdID string, amount decimal.Decimal) (*Hold, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("refund amount must be positive, got %s", amount)
	}

	hold, err := e.store.GetHold(ctx, holdID)
	if err != nil {
		return nil, err
	}

	if hold.State != HoldCaptured {
		return nil, ErrHoldNotCaptured
	}

	if amount.GreaterThan(hold.RemainingRefundable()) {
		return nil, ErrRefundExceedsCapture
	}

	if err := e.applyDelta(ctx, hold.AccountID, amount, decimal.Zero); err != nil {
		return nil, err
	}

	updated, err := e.store.RecordRefund(ctx, hold.ID, hold.Refunded.Add(amount), hold.Version)
	if err != nil {
		// The credit must not stand without its marker. Undo it and let the
		// caller re-read the hold and retry.
		if undoErr := e.applyDelta(ctx, hold.AccountID, amount.Neg(), decimal.Zero); undoErr != nil {
			e.logger.Log(ctx, log.LevelError, "failed to undo refund credit",
				log.String("account_id", hold.AccountID),
				log.String("hold_id", hold.ID),
				log.Err(undoErr),
			)

			return nil, fmt.Errorf("undo refund credit: %w", undoErr)
		}

		return nil, err
	}

	e.logger.Log(ctx, log.LevelInfo, "capture refunded",
		log.String("account_id", hold.AccountID),
		log.String("hold_id", hold.ID),
		log.String("amount", amount.String()),
		log.String("refunded", updated.Refunded.String()),
	)

	return updated, nil
}

// replayedHold resolves an idempotency-key replay. It returns (nil, nil)
// when no hold is bound to the key yet.
func (e *Engine) replayedHold(ctx context.Context, accountID string, amount decimal.Decimal, key string) (*Hold, error) {
	existing, err := e.store.FindHoldByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrHoldNotFound) {
			return nil, nil
		}

		return nil, err
	}

	if existing.AccountID != accountID || !existing.Amount.Equal(amount) {
		return nil, ErrHoldMismatch
	}

	return existing, nil
}

// transitionHold moves the hold state with a conditional write, retrying a
// lost race by compensating the balance movement already applied.
func (e *Engine) transitionHold(ctx context.Context, hold *Hold, to HoldState, undoAvailable, undoHeld decimal.Decimal) (*Hold, error) {
	moved, err := e.store.TransitionHold(ctx, hold.ID, HoldActive, to)
	if err == nil {
		return moved, nil
	}

	if errors.Is(err, ErrVersionConflict) {
		// Someone else resolved this hold first. Undo our balance movement
		// and report the state they left it in.
		if undoErr := e.applyDelta(ctx, hold.AccountID, undoAvailable, undoHeld); undoErr != nil {
			return nil, fmt.Errorf("undo balance movement: %w", undoErr)
		}

		current, getErr := e.store.GetHold(ctx, hold.ID)
		if getErr != nil {
			return nil, getErr
		}

		if current.State == to {
			return current, nil
		}

		if to == HoldCaptured {
			return nil, ErrHoldReleased
		}

		return nil, ErrHoldCaptured
	}

	return nil, err
}

// applyDelta moves availableDelta and heldDelta onto the account under the
// optimistic version check, retrying lost races with jittered backoff. Any
// movement that would take a balance negative fails without writing.
func (e *Engine) applyDelta(ctx context.Context, accountID string, availableDelta, heldDelta decimal.Decimal) error {
	for attempt := 0; ; attempt++ {
		acct, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		newAvailable := acct.Available.Add(availableDelta)
		newHeld := acct.Held.Add(heldDelta)

		if newAvailable.IsNegative() {
			return ErrInsufficientFunds
		}

		if newHeld.IsNegative() {
			return fmt.Errorf("held balance would go negative on account %s", accountID)
		}

		expected := acct.Version
		acct.Available = newAvailable
		acct.Held = newHeld
		acct.Version = expected + 1
		acct.UpdatedAt = time.Now().UTC()

		err = e.store.UpdateAccount(ctx, acct, expected)
		if err == nil {
			return nil
		}

		if !errors.Is(err, ErrVersionConflict) {
			return err
		}

		if attempt >= e.maxRetries {
			e.logger.Log(ctx, log.LevelWarn, "balance update retries exhausted",
				log.String("account_id", accountID),
				log.Int("attempts", attempt+1),
			)

			return ErrConcurrencyConflict
		}

		delay := backoff.ExponentialWithJitter(e.retryBase, attempt)
		if err := backoff.SleepWithContext(ctx, delay); err != nil {
			return err
		}
	}
}
