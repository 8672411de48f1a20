package settlement

import (
	"context"
	"fmt"

	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

// Dispatcher routes a freshly created PENDING record onto its settlement
// rail. Every failure path releases the ledger hold before returning, so a
// transaction never fails with funds still earmarked.
type Dispatcher struct {
	processor  CardProcessor
	records    transaction.Repository
	reconciler *Reconciler
	logger     log.Logger
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(processor CardProcessor, records transaction.Repository, reconciler *Reconciler, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Dispatcher{
		processor:  processor,
		records:    records,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Dispatch sends the record down its payment rail and returns it in its new
// state: AWAITING_PAYMENT with a payment URL for card, SETTLED for cash,
// FAILED when the rail rejects it.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *transaction.Record) (*transaction.Record, error) {
	switch rec.PaymentMode {
	case transaction.ModeCard:
		return d.dispatchCard(ctx, rec)
	case transaction.ModeCash:
		return d.dispatchCash(ctx, rec)
	default:
		return nil, transaction.NewDomainError(transaction.ErrorValidation, "payment_mode",
			fmt.Sprintf("unsupported payment mode %q", rec.PaymentMode))
	}
}

func (d *Dispatcher) dispatchCard(ctx context.Context, rec *transaction.Record) (*transaction.Record, error) {
	session, err := d.processor.CreateSession(ctx, SessionRequest{
		Reference:     rec.InternalReference,
		Amount:        rec.Amounts.TotalDebit,
		Currency:      rec.Amounts.SendCurrency,
		CustomerName:  rec.Payer.Name,
		CustomerPhone: rec.Payer.PhoneNumber,
	})
	if err != nil {
		d.logger.Log(ctx, log.LevelError, "card session creation failed",
			log.String("transaction_id", rec.ID),
			log.Err(err),
		)

		return d.failDispatch(ctx, rec, "card processor rejected the payment session")
	}

	updated, err := d.records.Transition(ctx, rec.ID, transaction.StatusPending, transaction.StatusAwaitingPayment, transaction.StatusUpdate{
		ExternalReference: session.ExternalReference,
		PaymentURL:        session.PaymentURL,
	})
	if err != nil {
		return nil, err
	}

	d.logger.Log(ctx, log.LevelInfo, "card transaction dispatched",
		log.String("transaction_id", rec.ID),
		log.String("external_reference", session.ExternalReference),
	)

	return updated, nil
}

func (d *Dispatcher) dispatchCash(ctx context.Context, rec *transaction.Record) (*transaction.Record, error) {
	// Cash settles against the agent float in-line. The record takes its
	// own internal reference as the external one and runs through the same
	// reconciliation as a provider success callback.
	settling, err := d.records.Transition(ctx, rec.ID, transaction.StatusPending, transaction.StatusSettling, transaction.StatusUpdate{
		ExternalReference: rec.InternalReference,
	})
	if err != nil {
		return nil, err
	}

	settled, err := d.reconciler.Apply(ctx, settling, CodeSuccess, "cash settlement")
	if err != nil {
		d.logger.Log(ctx, log.LevelError, "cash settlement failed",
			log.String("transaction_id", rec.ID),
			log.Err(err),
		)

		return d.failDispatch(ctx, settling, "cash settlement failed")
	}

	return settled, nil
}

// failDispatch releases the hold and marks the record FAILED through the
// reconciler's failure path, then surfaces a dispatch error to the caller.
func (d *Dispatcher) failDispatch(ctx context.Context, rec *transaction.Record, message string) (*transaction.Record, error) {
	failed, err := d.reconciler.fail(ctx, rec, message)
	if err != nil {
		return nil, fmt.Errorf("resolve failed dispatch: %w", err)
	}

	return failed, transaction.NewDomainError(transaction.ErrorDispatchFailure, "payment_mode", message)
}
