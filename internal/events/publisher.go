// Package events announces transaction state changes to downstream
// consumers such as notification and reporting services.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
)

// StatusEvent is published whenever a record reaches SETTLED, FAILED or
// REVERSED.
type StatusEvent struct {
	TransactionID     string             `json:"transactionId"`
	InternalReference string             `json:"internalReference"`
	BusinessID        string             `json:"businessId"`
	Status            transaction.Status `json:"status"`
	StatusMessage     string             `json:"statusMessage,omitempty"`
	SendAmount        decimal.Decimal    `json:"sendAmount"`
	SendCurrency      string             `json:"sendCurrency"`
	OccurredAt        time.Time          `json:"occurredAt"`
}

// NewStatusEvent builds an event from the record's current state.
func NewStatusEvent(rec *transaction.Record) StatusEvent {
	return StatusEvent{
		TransactionID:     rec.ID,
		InternalReference: rec.InternalReference,
		BusinessID:        rec.BusinessID,
		Status:            rec.Status,
		StatusMessage:     rec.StatusMessage,
		SendAmount:        rec.Amounts.SendAmount,
		SendCurrency:      rec.Amounts.SendCurrency,
		OccurredAt:        time.Now().UTC(),
	}
}

// Publisher delivers status events. Publishing is best effort; the pipeline
// never fails a transfer over a lost event.
type Publisher interface {
	Publish(ctx context.Context, event StatusEvent) error
}

// Nop discards every event. Used where no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, StatusEvent) error { return nil }
