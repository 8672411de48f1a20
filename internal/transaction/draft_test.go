package transaction

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBeneficiary() BeneficiaryRef {
	return BeneficiaryRef{
		ID:      "ben-1",
		Name:    "Ama Mensah",
		Country: "GH",
		Payout: PayoutDetails{
			Kind: PayoutWallet,
			Wallet: &WalletPayout{
				Network:      "MTN",
				WalletNumber: "233200000001",
			},
		},
	}
}

func validInitiateRequest() InitiateRequest {
	return InitiateRequest{
		BusinessID:    "biz-1",
		PayerID:       "payer-1",
		Beneficiary:   validBeneficiary(),
		SendAmount:    decimal.RequireFromString("50"),
		SendCurrency:  "USD",
		RecvCurrency:  "GHS",
		PaymentMode:   "CARD",
		SenderCountry: "US",
	}
}

func TestPayoutDetailsValidate(t *testing.T) {
	tests := []struct {
		name      string
		payout    PayoutDetails
		wantField string
	}{
		{
			name: "valid bank",
			payout: PayoutDetails{
				Kind: PayoutBank,
				Bank: &BankPayout{BankCode: "GCB", BankName: "GCB Bank", AccountNumber: "0012345678", AccountName: "Ama Mensah"},
			},
		},
		{
			name: "valid wallet",
			payout: PayoutDetails{
				Kind:   PayoutWallet,
				Wallet: &WalletPayout{Network: "MTN", WalletNumber: "233200000001"},
			},
		},
		{
			name: "valid billpay",
			payout: PayoutDetails{
				Kind:    PayoutBillPay,
				BillPay: &BillPayout{BillerCode: "ECG", AccountNumber: "ACC-9"},
			},
		},
		{
			name:      "no variant set",
			payout:    PayoutDetails{Kind: PayoutBank},
			wantField: "payout",
		},
		{
			name: "two variants set",
			payout: PayoutDetails{
				Kind:   PayoutBank,
				Bank:   &BankPayout{BankCode: "GCB", AccountNumber: "1", AccountName: "A"},
				Wallet: &WalletPayout{Network: "MTN", WalletNumber: "2"},
			},
			wantField: "payout",
		},
		{
			name: "kind mismatch",
			payout: PayoutDetails{
				Kind:   PayoutBank,
				Wallet: &WalletPayout{Network: "MTN", WalletNumber: "233200000001"},
			},
			wantField: "payout.bank",
		},
		{
			name: "bank missing account name",
			payout: PayoutDetails{
				Kind: PayoutBank,
				Bank: &BankPayout{BankCode: "GCB", AccountNumber: "0012345678"},
			},
			wantField: "payout.bank",
		},
		{
			name: "wallet missing network",
			payout: PayoutDetails{
				Kind:   PayoutWallet,
				Wallet: &WalletPayout{WalletNumber: "233200000001"},
			},
			wantField: "payout.wallet",
		},
		{
			name: "unknown kind",
			payout: PayoutDetails{
				Kind:   PayoutKind("CRYPTO"),
				Wallet: &WalletPayout{Network: "MTN", WalletNumber: "233200000001"},
			},
			wantField: "payout.kind",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.payout.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)

				return
			}

			var domainErr DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, ErrorValidation, domainErr.Code)
			assert.Equal(t, tt.wantField, domainErr.Field)
		})
	}
}

func TestInitiateRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*InitiateRequest)
		wantField string
	}{
		{name: "valid", mutate: func(r *InitiateRequest) {}},
		{name: "missing business", mutate: func(r *InitiateRequest) { r.BusinessID = " " }, wantField: "businessId"},
		{name: "missing payer", mutate: func(r *InitiateRequest) { r.PayerID = "" }, wantField: "payerId"},
		{name: "zero amount", mutate: func(r *InitiateRequest) { r.SendAmount = decimal.Zero }, wantField: "sendAmount"},
		{name: "negative amount", mutate: func(r *InitiateRequest) { r.SendAmount = decimal.RequireFromString("-5") }, wantField: "sendAmount"},
		{name: "missing send currency", mutate: func(r *InitiateRequest) { r.SendCurrency = "" }, wantField: "sendCurrency"},
		{name: "missing receive currency", mutate: func(r *InitiateRequest) { r.RecvCurrency = "" }, wantField: "receiveCurrency"},
		{name: "bad payment mode", mutate: func(r *InitiateRequest) { r.PaymentMode = "WIRE" }, wantField: "payment_mode"},
		{name: "missing beneficiary name", mutate: func(r *InitiateRequest) { r.Beneficiary.Name = "" }, wantField: "beneficiary.name"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := validInitiateRequest()
			tt.mutate(&req)

			err := req.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)

				return
			}

			var domainErr DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tt.wantField, domainErr.Field)
		})
	}
}

func TestPayoutAccountNumber(t *testing.T) {
	t.Parallel()

	bank := PayoutDetails{Kind: PayoutBank, Bank: &BankPayout{AccountNumber: "001"}}
	wallet := PayoutDetails{Kind: PayoutWallet, Wallet: &WalletPayout{WalletNumber: "233"}}
	bill := PayoutDetails{Kind: PayoutBillPay, BillPay: &BillPayout{AccountNumber: "acc"}}

	assert.Equal(t, "001", bank.AccountNumber())
	assert.Equal(t, "233", wallet.AccountNumber())
	assert.Equal(t, "acc", bill.AccountNumber())
	assert.Empty(t, PayoutDetails{}.AccountNumber())
}

func TestNewInternalReference(t *testing.T) {
	t.Parallel()

	ref := NewInternalReference()
	assert.True(t, strings.HasPrefix(ref, "DR_"))
	assert.Len(t, ref, 35)
	assert.NotEqual(t, ref, NewInternalReference())
}
