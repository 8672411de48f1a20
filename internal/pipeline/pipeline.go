// Package pipeline orchestrates the two-phase transfer flow: Initiate
// prices and stages a draft keyed by its content checksum, Execute consumes
// the draft, earmarks funds, persists the record and dispatches settlement.
// Idempotency rests on three legs: the atomic consume of the staged draft,
// the hold idempotency key, and the unique checksum on persisted records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sodaniels/doseal-transaction-core/internal/ledger"
	"github.com/sodaniels/doseal-transaction-core/internal/policy"
	"github.com/sodaniels/doseal-transaction-core/internal/rates"
	"github.com/sodaniels/doseal-transaction-core/internal/settlement"
	"github.com/sodaniels/doseal-transaction-core/internal/staging"
	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

const transferType = "remittance"

// PartyResolver resolves the sending customer and their ledger account
// within a business tenant.
type PartyResolver interface {
	ResolvePayer(ctx context.Context, businessID, payerID string) (transaction.PayerRef, string, error)
}

// ErrPayerNotFound is returned by resolvers when the payer does not exist
// under the business.
var ErrPayerNotFound = errors.New("payer not found")

// InitiateResult is what the client needs to confirm and execute: the
// idempotency token plus the priced figures to show the customer.
type InitiateResult struct {
	Checksum          string                    `json:"checksum"`
	InternalReference string                    `json:"internalReference"`
	Amounts           transaction.AmountDetails `json:"amounts"`
	ExpiresIn         time.Duration             `json:"expiresIn"`
}

// Pipeline wires the transfer flow end to end.
type Pipeline struct {
	staging    *staging.Cache
	records    transaction.Repository
	ledger     *ledger.Engine
	gate       policy.Gate
	rates      rates.Provider
	dispatcher *settlement.Dispatcher
	resolver   PartyResolver
	logger     log.Logger
}

// New assembles a pipeline.
func New(
	stagingCache *staging.Cache,
	records transaction.Repository,
	engine *ledger.Engine,
	gate policy.Gate,
	provider rates.Provider,
	dispatcher *settlement.Dispatcher,
	resolver PartyResolver,
	logger log.Logger,
) *Pipeline {
	if gate == nil {
		gate = policy.AllowAll{}
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &Pipeline{
		staging:    stagingCache,
		records:    records,
		ledger:     engine,
		gate:       gate,
		rates:      provider,
		dispatcher: dispatcher,
		resolver:   resolver,
		logger:     logger,
	}
}

// Initiate validates and prices the request, stages the resolved draft
// under its checksum, and returns the checksum as the execution token.
// Nothing is persisted and no funds move; an abandoned initiation simply
// expires out of the staging cache.
func (p *Pipeline) Initiate(ctx context.Context, pctx Context, req transaction.InitiateRequest) (*InitiateResult, error) {
	logger := p.requestLogger(pctx)

	if req.BusinessID == "" {
		req.BusinessID = pctx.BusinessID
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	payer, accountID, err := p.resolver.ResolvePayer(ctx, req.BusinessID, req.PayerID)
	if err != nil {
		if errors.Is(err, ErrPayerNotFound) {
			return nil, transaction.NewDomainError(transaction.ErrorNotFound, "payerId", "payer not found")
		}

		return nil, fmt.Errorf("resolve payer: %w", err)
	}

	if err := p.checkPolicy(ctx, payer); err != nil {
		return nil, err
	}

	mode, err := transaction.ParsePaymentMode(req.PaymentMode)
	if err != nil {
		return nil, err
	}

	fee, err := p.rates.Fee(ctx, req.SendCurrency, req.SendAmount, transferType)
	if err != nil {
		return nil, fmt.Errorf("quote fee: %w", err)
	}

	rate, err := p.rates.Rate(ctx, req.SendCurrency, req.RecvCurrency, "standard")
	if err != nil {
		return nil, fmt.Errorf("quote rate: %w", err)
	}

	amounts := transaction.ComputeAmountDetails(
		req.SendAmount, fee, rate,
		req.SendCurrency, req.RecvCurrency,
		req.SenderCountry, req.Beneficiary.Country,
	)

	// Advisory only. The authoritative check is the hold at execution.
	if err := p.advisoryBalanceCheck(ctx, accountID, amounts.TotalDebit); err != nil {
		return nil, err
	}

	checksum, err := transaction.Checksum(req)
	if err != nil {
		return nil, err
	}

	draft := &transaction.Draft{
		InternalReference: transaction.NewInternalReference(),
		BusinessID:        req.BusinessID,
		Payer:             payer,
		Beneficiary:       req.Beneficiary,
		Amounts:           amounts,
		PaymentMode:       mode,
		LedgerAccountID:   accountID,
		CreatedAt:         time.Now().UTC(),
	}

	if err := p.staging.Stage(ctx, checksum, draft); err != nil {
		return nil, err
	}

	logger.Log(ctx, log.LevelInfo, "transaction initiated",
		log.String("checksum", checksum),
		log.String("internal_reference", draft.InternalReference),
		log.String("total_debit", amounts.TotalDebit.String()),
	)

	return &InitiateResult{
		Checksum:          checksum,
		InternalReference: draft.InternalReference,
		Amounts:           amounts,
		ExpiresIn:         staging.DefaultTTL,
	}, nil
}

// Execute consumes the staged draft for the checksum, places the ledger
// hold, persists the PENDING record and dispatches settlement. Concurrent
// executes for one checksum resolve to exactly one live transaction; every
// error after the hold releases it before returning.
func (p *Pipeline) Execute(ctx context.Context, pctx Context, checksum string) (*transaction.Record, error) {
	logger := p.requestLogger(pctx)

	draft, err := p.staging.Consume(ctx, checksum)
	if err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			return nil, transaction.NewDomainError(transaction.ErrorNotFound, "checksum",
				"no staged transaction for checksum; it may have expired or already executed")
		}

		return nil, err
	}

	// Circumstances may have changed since initiation.
	if err := p.checkPolicy(ctx, draft.Payer); err != nil {
		return nil, err
	}

	hold, err := p.ledger.PlaceHold(ctx, draft.LedgerAccountID, draft.Amounts.TotalDebit, holdKey(checksum), draft.InternalReference)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return nil, transaction.NewDomainError(transaction.ErrorInsufficientFunds, "sendAmount",
				"available balance cannot cover the total debit")
		case errors.Is(err, ledger.ErrConcurrencyConflict):
			return nil, transaction.NewDomainError(transaction.ErrorConcurrencyConflict, "",
				"account is under heavy contention, retry shortly")
		}

		return nil, fmt.Errorf("place hold: %w", err)
	}

	now := time.Now().UTC()
	rec := &transaction.Record{
		ID:                uuid.NewString(),
		Checksum:          checksum,
		InternalReference: draft.InternalReference,
		BusinessID:        draft.BusinessID,
		Payer:             draft.Payer,
		Beneficiary:       draft.Beneficiary,
		Amounts:           draft.Amounts,
		PaymentMode:       draft.PaymentMode,
		LedgerAccountID:   draft.LedgerAccountID,
		LedgerHoldID:      hold.ID,
		Status:            transaction.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := p.records.Create(ctx, rec); err != nil {
		if errors.Is(err, transaction.ErrDuplicateChecksum) {
			// The hold idempotency key derives from the checksum, so a
			// replayed execute gets the live transaction's hold back.
			// Release only a hold that is not backing the existing record.
			existing, findErr := p.records.FindByChecksum(ctx, checksum)
			if findErr != nil || existing.LedgerHoldID != hold.ID {
				p.releaseAfterFailure(ctx, logger, hold.ID, checksum)
			}

			return nil, transaction.NewDomainError(transaction.ErrorDuplicateChecksum, "checksum",
				"transaction already processed")
		}

		p.releaseAfterFailure(ctx, logger, hold.ID, checksum)

		return nil, err
	}

	logger.Log(ctx, log.LevelInfo, "transaction record created",
		log.String("transaction_id", rec.ID),
		log.String("checksum", checksum),
		log.String("hold_id", hold.ID),
	)

	dispatched, err := p.dispatcher.Dispatch(ctx, rec)
	if err != nil {
		// A DomainError means the dispatcher already resolved the record
		// and its hold; pass it through with the failed record's state.
		var domainErr transaction.DomainError
		if errors.As(err, &domainErr) {
			return dispatched, err
		}

		p.releaseAfterFailure(ctx, logger, hold.ID, checksum)

		return nil, fmt.Errorf("dispatch settlement: %w", err)
	}

	return dispatched, nil
}

// Status returns the record by id, falling back to the processor's external
// reference.
func (p *Pipeline) Status(ctx context.Context, idOrRef string) (*transaction.Record, error) {
	rec, err := p.records.Find(ctx, idOrRef)
	if err == nil {
		return rec, nil
	}

	if !errors.Is(err, transaction.ErrRecordNotFound) {
		return nil, err
	}

	return p.records.FindByExternalReference(ctx, idOrRef)
}

func (p *Pipeline) checkPolicy(ctx context.Context, payer transaction.PayerRef) error {
	reasons, err := p.gate.Check(ctx, payer)
	if err != nil {
		return fmt.Errorf("policy check: %w", err)
	}

	if len(reasons) > 0 {
		return transaction.NewDomainError(transaction.ErrorPolicyBlocked, "payerId", reasons[0].Message)
	}

	return nil
}

func (p *Pipeline) advisoryBalanceCheck(ctx context.Context, accountID string, totalDebit decimal.Decimal) error {
	acct, err := p.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load ledger account: %w", err)
	}

	if acct.Available.LessThan(totalDebit) {
		return transaction.NewDomainError(transaction.ErrorInsufficientFunds, "sendAmount",
			"available balance cannot cover the total debit")
	}

	return nil
}

func (p *Pipeline) releaseAfterFailure(ctx context.Context, logger log.Logger, holdID, checksum string) {
	if _, err := p.ledger.ReleaseHold(ctx, holdID); err != nil {
		logger.Log(ctx, log.LevelError, "failed to release hold after pipeline error",
			log.String("hold_id", holdID),
			log.String("checksum", checksum),
			log.Err(err),
		)
	}
}

func (p *Pipeline) requestLogger(pctx Context) log.Logger {
	fields := make([]log.Field, 0, 3)

	if pctx.BusinessID != "" {
		fields = append(fields, log.String("business_id", pctx.BusinessID))
	}

	if pctx.AgentID != "" {
		fields = append(fields, log.String("agent_id", pctx.AgentID))
	}

	if pctx.CorrelationID != "" {
		fields = append(fields, log.String("correlation_id", pctx.CorrelationID))
	}

	return p.logger.With(fields...)
}

func holdKey(checksum string) string {
	return "hold:" + checksum
}
