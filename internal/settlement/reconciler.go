package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sodaniels/doseal-transaction-core/internal/events"
	"github.com/sodaniels/doseal-transaction-core/internal/ledger"
	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

// Provider callback status codes.
const (
	CodePaymentStarted = "411"
	CodeSuccess        = "200"
	CodeFailure        = "400"
)

// ErrUnknownCallbackStatus indicates a status code outside the provider's
// contract. The record is left untouched.
var ErrUnknownCallbackStatus = errors.New("unknown callback status code")

// Reconciler applies provider callbacks to records and their ledger holds.
// Replayed callbacks are recorded in the history but never re-applied, so
// hitting the same terminal callback twice moves no money twice.
type Reconciler struct {
	records   transaction.Repository
	ledger    *ledger.Engine
	publisher events.Publisher
	logger    log.Logger
}

// NewReconciler wires a reconciler.
func NewReconciler(records transaction.Repository, engine *ledger.Engine, publisher events.Publisher, logger log.Logger) *Reconciler {
	if publisher == nil {
		publisher = events.Nop{}
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &Reconciler{records: records, ledger: engine, publisher: publisher, logger: logger}
}

// ApplyByExternalReference resolves the record carrying the processor
// reference and applies the callback.
func (r *Reconciler) ApplyByExternalReference(ctx context.Context, externalRef, statusCode, message string) (*transaction.Record, error) {
	rec, err := r.records.FindByExternalReference(ctx, externalRef)
	if err != nil {
		return nil, err
	}

	return r.Apply(ctx, rec, statusCode, message)
}

// Apply reconciles one callback against the record.
func (r *Reconciler) Apply(ctx context.Context, rec *transaction.Record, statusCode, message string) (*transaction.Record, error) {
	switch statusCode {
	case CodePaymentStarted, CodeSuccess, CodeFailure:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallbackStatus, statusCode)
	}

	if err := r.records.AppendCallback(ctx, rec.ID, transaction.CallbackEntry{
		StatusCode: statusCode,
		Message:    message,
		ReceivedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	switch statusCode {
	case CodePaymentStarted:
		return r.markSettling(ctx, rec)
	case CodeSuccess:
		return r.settle(ctx, rec, message)
	default:
		return r.fail(ctx, rec, message)
	}
}

func (r *Reconciler) markSettling(ctx context.Context, rec *transaction.Record) (*transaction.Record, error) {
	updated, err := r.records.Transition(ctx, rec.ID, transaction.StatusAwaitingPayment, transaction.StatusSettling, transaction.StatusUpdate{})
	if err == nil {
		return updated, nil
	}

	if errors.Is(err, transaction.ErrStaleTransition) {
		// Replayed or out-of-order start callback. Keep whatever state the
		// record already reached.
		return r.records.Find(ctx, rec.ID)
	}

	return nil, err
}

func (r *Reconciler) settle(ctx context.Context, rec *transaction.Record, message string) (*transaction.Record, error) {
	current, err := r.records.Find(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	if current.Status == transaction.StatusSettled {
		return current, nil
	}

	if !transaction.CanTransition(current.Status, transaction.StatusSettled) {
		return nil, transaction.NewDomainError(transaction.ErrorInvalidStateTransition, "status",
			fmt.Sprintf("cannot settle a %s transaction", current.Status))
	}

	// Capture first. Capture is idempotent, so a crash between capture and
	// the status write is healed by the callback replay.
	if _, err := r.ledger.CaptureHold(ctx, current.LedgerHoldID); err != nil {
		return nil, fmt.Errorf("capture hold: %w", err)
	}

	updated, err := r.records.Transition(ctx, current.ID, current.Status, transaction.StatusSettled, transaction.StatusUpdate{
		Message: message,
	})
	if err != nil {
		if errors.Is(err, transaction.ErrStaleTransition) {
			return r.records.Find(ctx, current.ID)
		}

		return nil, err
	}

	r.publish(ctx, updated)

	return updated, nil
}

func (r *Reconciler) fail(ctx context.Context, rec *transaction.Record, message string) (*transaction.Record, error) {
	current, err := r.records.Find(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	if current.Status == transaction.StatusFailed {
		return current, nil
	}

	if !transaction.CanTransition(current.Status, transaction.StatusFailed) {
		// A failure callback after settlement must not claw funds back.
		r.logger.Log(ctx, log.LevelWarn, "ignoring failure callback on finalized transaction",
			log.String("transaction_id", current.ID),
			log.String("status", string(current.Status)),
		)

		return current, nil
	}

	if _, err := r.ledger.ReleaseHold(ctx, current.LedgerHoldID); err != nil {
		return nil, fmt.Errorf("release hold: %w", err)
	}

	updated, err := r.records.Transition(ctx, current.ID, current.Status, transaction.StatusFailed, transaction.StatusUpdate{
		Message: message,
	})
	if err != nil {
		if errors.Is(err, transaction.ErrStaleTransition) {
			return r.records.Find(ctx, current.ID)
		}

		return nil, err
	}

	r.publish(ctx, updated)

	return updated, nil
}

// Reverse refunds a settled transaction: the captured amount returns to the
// payer's account and the record moves to REVERSED. Explicit compensation
// only, never triggered by callbacks. A reversal that errored after the
// status write is finished by calling Reverse again: the replay re-attempts
// whatever part of the refund has not landed yet, and the hold's cumulative
// refund cap keeps a completed refund from ever crediting twice.
func (r *Reconciler) Reverse(ctx context.Context, transactionID, reason string) (*transaction.Record, error) {
	rec, err := r.records.Find(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if rec.Status == transaction.StatusReversed {
		return r.finishReversal(ctx, rec)
	}

	if !transaction.CanTransition(rec.Status, transaction.StatusReversed) {
		return nil, transaction.NewDomainError(transaction.ErrorInvalidStateTransition, "status",
			fmt.Sprintf("cannot reverse a %s transaction", rec.Status))
	}

	updated, err := r.records.Transition(ctx, rec.ID, transaction.StatusSettled, transaction.StatusReversed, transaction.StatusUpdate{
		Message: reason,
	})
	if err != nil {
		if errors.Is(err, transaction.ErrStaleTransition) {
			current, findErr := r.records.Find(ctx, rec.ID)
			if findErr != nil {
				return nil, findErr
			}

			if current.Status == transaction.StatusReversed {
				return r.finishReversal(ctx, current)
			}

			return current, nil
		}

		return nil, err
	}

	if _, err := r.refundRemainder(ctx, updated); err != nil {
		return nil, fmt.Errorf("refund capture: %w", err)
	}

	r.publish(ctx, updated)

	return updated, nil
}

// finishReversal completes a REVERSED record whose refund may not have
// landed. It publishes only when money actually moved now, so a clean replay
// stays silent.
func (r *Reconciler) finishReversal(ctx context.Context, rec *transaction.Record) (*transaction.Record, error) {
	moved, err := r.refundRemainder(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("refund capture: %w", err)
	}

	if moved {
		r.publish(ctx, rec)
	}

	return rec, nil
}

// refundRemainder credits whatever part of the captured amount has not been
// refunded yet, reporting whether any money moved. Already fully refunded is
// a no-op.
func (r *Reconciler) refundRemainder(ctx context.Context, rec *transaction.Record) (bool, error) {
	for {
		hold, err := r.ledger.GetHold(ctx, rec.LedgerHoldID)
		if err != nil {
			return false, err
		}

		remaining := hold.RemainingRefundable()
		if !remaining.IsPositive() {
			return false, nil
		}

		if _, err := r.ledger.RefundCapture(ctx, rec.LedgerHoldID, remaining); err != nil {
			if errors.Is(err, ledger.ErrVersionConflict) {
				// A concurrent refund moved the figure. Re-read what remains.
				continue
			}

			return false, err
		}

		return true, nil
	}
}

func (r *Reconciler) publish(ctx context.Context, rec *transaction.Record) {
	if err := r.publisher.Publish(ctx, events.NewStatusEvent(rec)); err != nil {
		r.logger.Log(ctx, log.LevelWarn, "failed to publish status event",
			log.String("transaction_id", rec.ID),
			log.Err(err),
		)
	}
}
