package transaction

import (
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumDeterministic(t *testing.T) {
	t.Parallel()

	req := InitiateRequest{
		BusinessID:   "biz-1",
		PayerID:      "payer-1",
		SendAmount:   decimal.RequireFromString("100"),
		SendCurrency: "USD",
		RecvCurrency: "GHS",
		PaymentMode:  "CARD",
	}

	first, err := Checksum(req)
	require.NoError(t, err)

	second, err := Checksum(req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{64}$`), first,
		"checksum must be 64 uppercase hex characters")
}

func TestChecksumIgnoresFieldOrder(t *testing.T) {
	t.Parallel()

	// Maps with the same entries in different insertion order must hash
	// identically once serialized canonically.
	a := map[string]any{"amount": "100", "currency": "USD", "payer": "p1"}
	b := map[string]any{"payer": "p1", "currency": "USD", "amount": "100"}

	ha, err := Checksum(a)
	require.NoError(t, err)

	hb, err := Checksum(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestChecksumSensitiveToContent(t *testing.T) {
	t.Parallel()

	base := map[string]any{"amount": "100", "currency": "USD"}
	changed := map[string]any{"amount": "100.01", "currency": "USD"}

	ha, err := Checksum(base)
	require.NoError(t, err)

	hb, err := Checksum(changed)
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestChecksumUnmarshalableInput(t *testing.T) {
	t.Parallel()

	_, err := Checksum(make(chan int))
	require.Error(t, err)
}
