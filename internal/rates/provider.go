// Package rates resolves transfer fees and FX rates. Pricing happens once,
// at initiation; executed transfers use the figures staged with the draft.
package rates

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoQuote indicates the provider has no fee or rate for the requested
// parameters.
var ErrNoQuote = errors.New("no quote for requested parameters")

// Provider quotes fees and FX rates.
type Provider interface {
	// Fee returns the composite charge for sending amount in currency over
	// the given transfer type.
	Fee(ctx context.Context, currency string, amount decimal.Decimal, transferType string) (decimal.Decimal, error)

	// Rate returns the FX rate from one currency to another for the given
	// account tier.
	Rate(ctx context.Context, from, to, accountType string) (decimal.Decimal, error)
}

// Static serves fees and rates from fixed tables. Used in tests and local
// setups.
type Static struct {
	// Fees maps currency to a flat fee.
	Fees map[string]decimal.Decimal
	// Rates maps "FROM/TO" pairs to a rate.
	Rates map[string]decimal.Decimal
}

func (s *Static) Fee(_ context.Context, currency string, _ decimal.Decimal, _ string) (decimal.Decimal, error) {
	fee, ok := s.Fees[currency]
	if !ok {
		return decimal.Zero, ErrNoQuote
	}

	return fee, nil
}

func (s *Static) Rate(_ context.Context, from, to, _ string) (decimal.Decimal, error) {
	rate, ok := s.Rates[from+"/"+to]
	if !ok {
		return decimal.Zero, ErrNoQuote
	}

	return rate, nil
}
