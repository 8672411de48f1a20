package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one ledger balance document. Available and Held never go
// negative; Version backs the optimistic concurrency check on every write.
type Account struct {
	ID        string          `json:"id" bson:"_id"`
	OwnerID   string          `json:"ownerId" bson:"owner_id"`
	Currency  string          `json:"currency" bson:"currency"`
	Available decimal.Decimal `json:"available" bson:"available"`
	Held      decimal.Decimal `json:"held" bson:"held"`
	Version   int64           `json:"version" bson:"version"`
	UpdatedAt time.Time       `json:"updatedAt" bson:"updated_at"`
}

// Total returns available plus held funds. Place and capture/release
// operations conserve this quantity until money actually leaves the account.
func (a *Account) Total() decimal.Decimal {
	return a.Available.Add(a.Held)
}

// HoldState is the lifecycle state of a hold.
//
//	ACTIVE → CAPTURED | RELEASED
//
// CAPTURED and RELEASED are terminal.
type HoldState string

const (
	HoldActive   HoldState = "ACTIVE"
	HoldCaptured HoldState = "CAPTURED"
	HoldReleased HoldState = "RELEASED"
)

// Hold is an earmark against an account's available balance. At most one
// hold exists per idempotency key. Refunded accumulates post-capture refunds
// up to Amount; Version guards its conditional update.
type Hold struct {
	ID             string          `json:"id" bson:"_id"`
	AccountID      string          `json:"accountId" bson:"account_id"`
	IdempotencyKey string          `json:"idempotencyKey" bson:"idempotency_key"`
	Reference      string          `json:"reference" bson:"reference"`
	Amount         decimal.Decimal `json:"amount" bson:"amount"`
	Refunded       decimal.Decimal `json:"refunded" bson:"refunded"`
	State          HoldState       `json:"state" bson:"state"`
	Version        int64           `json:"version" bson:"version"`
	CreatedAt      time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" bson:"updated_at"`
}

// RemainingRefundable is the captured amount not yet credited back.
func (h *Hold) RemainingRefundable() decimal.Decimal {
	return h.Amount.Sub(h.Refunded)
}
