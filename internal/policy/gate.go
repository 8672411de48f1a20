// Package policy evaluates pre-transaction compliance checks against the
// sending customer. The gate is advisory: it can block an attempt up front
// but provides no concurrency safety, which rests entirely on the ledger.
package policy

import (
	"context"

	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
)

// BlockingReason is one failed check. An empty slice means the payer is
// clear to transact.
type BlockingReason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Gate runs the pre-transaction checks for a payer.
type Gate interface {
	Check(ctx context.Context, payer transaction.PayerRef) ([]BlockingReason, error)
}

// AllowAll is a gate that clears every payer. Used where no policy service
// is configured.
type AllowAll struct{}

func (AllowAll) Check(context.Context, transaction.PayerRef) ([]BlockingReason, error) {
	return nil, nil
}

// Static blocks payers by id with fixed reasons. Used in tests and local
// setups.
type Static struct {
	Blocked map[string][]BlockingReason
}

func (s *Static) Check(_ context.Context, payer transaction.PayerRef) ([]BlockingReason, error) {
	return s.Blocked[payer.ID], nil
}
