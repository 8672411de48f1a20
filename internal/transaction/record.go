package transaction

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMode selects the settlement rail for the payer leg.
type PaymentMode string

const (
	// ModeCard settles through a hosted-payment card processor; the customer
	// completes payment on an external page and the provider calls back.
	ModeCard PaymentMode = "CARD"
	// ModeCash settles synchronously against the agent's float.
	ModeCash PaymentMode = "CASH"
)

// ParsePaymentMode normalizes a client-supplied payment mode.
func ParsePaymentMode(s string) (PaymentMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ModeCard):
		return ModeCard, nil
	case string(ModeCash):
		return ModeCash, nil
	}

	return "", NewDomainError(ErrorValidation, "payment_mode", "payment mode must be CARD or CASH")
}

// Status is the lifecycle state of a settlement attempt.
//
// Transitions:
//
//	PENDING → AWAITING_PAYMENT | SETTLING | FAILED
//	AWAITING_PAYMENT → SETTLING | SETTLED | FAILED
//	SETTLING → SETTLED | FAILED
//	SETTLED → REVERSED (explicit compensation only)
//	FAILED, REVERSED: terminal
type Status string

const (
	// StatusPending marks a record created at Execute, before dispatch.
	StatusPending Status = "PENDING"
	// StatusAwaitingPayment marks a card record waiting on the customer to
	// complete the hosted payment page.
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	// StatusSettling marks a record whose settlement is in flight.
	StatusSettling Status = "SETTLING"
	// StatusSettled marks a successfully settled record; its hold is captured.
	StatusSettled Status = "SETTLED"
	// StatusFailed marks a failed record; its hold is released.
	StatusFailed Status = "FAILED"
	// StatusReversed marks a settled record that was explicitly refunded.
	StatusReversed Status = "REVERSED"
)

// Terminal reports whether no further forward transition is possible.
// SETTLED is not terminal: an explicit reversal may still follow.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusReversed
}

var allowedTransitions = map[Status][]Status{
	StatusPending:         {StatusAwaitingPayment, StatusSettling, StatusFailed},
	StatusAwaitingPayment: {StatusSettling, StatusSettled, StatusFailed},
	StatusSettling:        {StatusSettled, StatusFailed},
	StatusSettled:         {StatusReversed},
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// AmountDetails carries every figure computed at initiate time. Execute
// reuses these as staged; it never re-queries the fee or rate provider.
type AmountDetails struct {
	SendAmount      decimal.Decimal `json:"sendAmount" bson:"send_amount"`
	Fee             decimal.Decimal `json:"fee" bson:"fee"`
	Rate            decimal.Decimal `json:"rate" bson:"rate"`
	ReceiveAmount   decimal.Decimal `json:"receiveAmount" bson:"receive_amount"`
	TotalDebit      decimal.Decimal `json:"totalDebit" bson:"total_debit"`
	SendCurrency    string          `json:"sendCurrency" bson:"send_currency"`
	ReceiveCurrency string          `json:"receiveCurrency" bson:"receive_currency"`
	SenderCountry   string          `json:"senderCountry" bson:"sender_country"`
	ReceiverCountry string          `json:"receiverCountry" bson:"receiver_country"`
}

// ComputeAmountDetails derives the receive amount and total debit from the
// staged send amount, fee, and rate. Receive amount is rounded to two
// decimal places toward zero, matching the settlement providers.
func ComputeAmountDetails(
	sendAmount, fee, rate decimal.Decimal,
	sendCurrency, receiveCurrency, senderCountry, receiverCountry string,
) AmountDetails {
	return AmountDetails{
		SendAmount:      sendAmount,
		Fee:             fee,
		Rate:            rate,
		ReceiveAmount:   sendAmount.Mul(rate).RoundDown(2),
		TotalDebit:      sendAmount.Add(fee),
		SendCurrency:    sendCurrency,
		ReceiveCurrency: receiveCurrency,
		SenderCountry:   senderCountry,
		ReceiverCountry: receiverCountry,
	}
}

// CallbackEntry is one received provider callback. The history is
// append-only; duplicates are recorded but never re-applied.
type CallbackEntry struct {
	StatusCode string    `json:"statusCode" bson:"status_code"`
	Message    string    `json:"message" bson:"message"`
	ReceivedAt time.Time `json:"receivedAt" bson:"received_at"`
}

// Record is the persisted state machine for one settlement attempt. At most
// one record exists per checksum; the storage layer enforces uniqueness.
type Record struct {
	ID                string         `json:"id" bson:"_id"`
	Checksum          string         `json:"checksum" bson:"checksum"`
	InternalReference string         `json:"internalReference" bson:"internal_reference"`
	BusinessID        string         `json:"businessId" bson:"business_id"`
	Payer             PayerRef       `json:"payer" bson:"payer"`
	Beneficiary       BeneficiaryRef `json:"beneficiary" bson:"beneficiary"`
	Amounts           AmountDetails  `json:"amounts" bson:"amounts"`
	PaymentMode       PaymentMode    `json:"paymentMode" bson:"payment_mode"`
	LedgerAccountID   string         `json:"ledgerAccountId,omitempty" bson:"ledger_account_id,omitempty"`
	LedgerHoldID      string         `json:"ledgerHoldId,omitempty" bson:"ledger_hold_id,omitempty"`
	Status            Status         `json:"status" bson:"status"`
	StatusMessage     string         `json:"statusMessage,omitempty" bson:"status_message,omitempty"`
	ExternalReference string         `json:"externalReference,omitempty" bson:"external_reference,omitempty"`
	PaymentURL        string         `json:"paymentUrl,omitempty" bson:"payment_url,omitempty"`
	Callbacks         []CallbackEntry `json:"callbacks,omitempty" bson:"callbacks,omitempty"`
	CreatedAt         time.Time      `json:"createdAt" bson:"created_at"`
	UpdatedAt         time.Time      `json:"updatedAt" bson:"updated_at"`
}
