package transaction

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayerRef identifies the sending customer. AccountNumber is sealed by the
// persistence layer before hitting storage.
type PayerRef struct {
	ID            string `json:"id" bson:"id"`
	Name          string `json:"name" bson:"name"`
	PhoneNumber   string `json:"phoneNumber" bson:"phone_number"`
	AccountNumber string `json:"accountNumber,omitempty" bson:"account_number,omitempty"`
	Country       string `json:"country" bson:"country"`
}

// Validate checks the required payer fields.
func (p PayerRef) Validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return NewDomainError(ErrorValidation, "payer.id", "payer id is required")
	case strings.TrimSpace(p.Name) == "":
		return NewDomainError(ErrorValidation, "payer.name", "payer name is required")
	case strings.TrimSpace(p.Country) == "":
		return NewDomainError(ErrorValidation, "payer.country", "payer country is required")
	}

	return nil
}

// PayoutKind discriminates the beneficiary payout variants.
type PayoutKind string

const (
	PayoutBank    PayoutKind = "BANK"
	PayoutWallet  PayoutKind = "WALLET"
	PayoutBillPay PayoutKind = "BILLPAY"
)

// BankPayout delivers the receive amount to a bank account.
type BankPayout struct {
	BankCode      string `json:"bankCode" bson:"bank_code"`
	BankName      string `json:"bankName" bson:"bank_name"`
	AccountNumber string `json:"accountNumber" bson:"account_number"`
	AccountName   string `json:"accountName" bson:"account_name"`
}

// WalletPayout delivers the receive amount to a mobile wallet.
type WalletPayout struct {
	Network      string `json:"network" bson:"network"`
	WalletNumber string `json:"walletNumber" bson:"wallet_number"`
}

// BillPayout pays a biller invoice on the beneficiary's behalf.
type BillPayout struct {
	BillerCode    string `json:"billerCode" bson:"biller_code"`
	AccountNumber string `json:"accountNumber" bson:"account_number"`
	InvoiceNumber string `json:"invoiceNumber,omitempty" bson:"invoice_number,omitempty"`
}

// PayoutDetails is a discriminated union over the three payout variants.
// Exactly the variant named by Kind must be populated.
type PayoutDetails struct {
	Kind    PayoutKind    `json:"kind" bson:"kind"`
	Bank    *BankPayout   `json:"bank,omitempty" bson:"bank,omitempty"`
	Wallet  *WalletPayout `json:"wallet,omitempty" bson:"wallet,omitempty"`
	BillPay *BillPayout   `json:"billPay,omitempty" bson:"bill_pay,omitempty"`
}

// Validate checks that the variant named by Kind is present and complete,
// and that no other variant is set.
func (p PayoutDetails) Validate() error {
	populated := 0
	if p.Bank != nil {
		populated++
	}

	if p.Wallet != nil {
		populated++
	}

	if p.BillPay != nil {
		populated++
	}

	if populated != 1 {
		return NewDomainError(ErrorValidation, "payout", "exactly one payout variant must be set")
	}

	switch p.Kind {
	case PayoutBank:
		if p.Bank == nil {
			return NewDomainError(ErrorValidation, "payout.bank", "bank payout details are required")
		}

		if p.Bank.BankCode == "" || p.Bank.AccountNumber == "" || p.Bank.AccountName == "" {
			return NewDomainError(ErrorValidation, "payout.bank", "bank code, account number and account name are required")
		}
	case PayoutWallet:
		if p.Wallet == nil {
			return NewDomainError(ErrorValidation, "payout.wallet", "wallet payout details are required")
		}

		if p.Wallet.Network == "" || p.Wallet.WalletNumber == "" {
			return NewDomainError(ErrorValidation, "payout.wallet", "network and wallet number are required")
		}
	case PayoutBillPay:
		if p.BillPay == nil {
			return NewDomainError(ErrorValidation, "payout.billPay", "bill payment details are required")
		}

		if p.BillPay.BillerCode == "" || p.BillPay.AccountNumber == "" {
			return NewDomainError(ErrorValidation, "payout.billPay", "biller code and account number are required")
		}
	default:
		return NewDomainError(ErrorValidation, "payout.kind", "payout kind must be BANK, WALLET or BILLPAY")
	}

	return nil
}

// AccountNumber returns the delivery account number of whichever variant is
// populated. The persistence layer seals this value.
func (p PayoutDetails) AccountNumber() string {
	switch {
	case p.Bank != nil:
		return p.Bank.AccountNumber
	case p.Wallet != nil:
		return p.Wallet.WalletNumber
	case p.BillPay != nil:
		return p.BillPay.AccountNumber
	}

	return ""
}

// BeneficiaryRef identifies the receiving party and how to pay them out.
type BeneficiaryRef struct {
	ID          string        `json:"id" bson:"id"`
	Name        string        `json:"name" bson:"name"`
	PhoneNumber string        `json:"phoneNumber" bson:"phone_number"`
	Country     string        `json:"country" bson:"country"`
	Payout      PayoutDetails `json:"payout" bson:"payout"`
}

// Validate checks the required beneficiary fields and the payout variant.
func (b BeneficiaryRef) Validate() error {
	switch {
	case strings.TrimSpace(b.ID) == "":
		return NewDomainError(ErrorValidation, "beneficiary.id", "beneficiary id is required")
	case strings.TrimSpace(b.Name) == "":
		return NewDomainError(ErrorValidation, "beneficiary.name", "beneficiary name is required")
	case strings.TrimSpace(b.Country) == "":
		return NewDomainError(ErrorValidation, "beneficiary.country", "beneficiary country is required")
	}

	return b.Payout.Validate()
}

// InitiateRequest is the client payload that starts a transfer. Its canonical
// JSON form feeds the checksum.
type InitiateRequest struct {
	BusinessID    string          `json:"businessId"`
	PayerID       string          `json:"payerId"`
	Beneficiary   BeneficiaryRef  `json:"beneficiary"`
	SendAmount    decimal.Decimal `json:"sendAmount"`
	SendCurrency  string          `json:"sendCurrency"`
	RecvCurrency  string          `json:"receiveCurrency"`
	PaymentMode   string          `json:"paymentMode"`
	SenderCountry string          `json:"senderCountry"`
}

// Validate checks the initiation payload before any downstream call.
func (r InitiateRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.BusinessID) == "":
		return NewDomainError(ErrorValidation, "businessId", "business id is required")
	case strings.TrimSpace(r.PayerID) == "":
		return NewDomainError(ErrorValidation, "payerId", "payer id is required")
	case !r.SendAmount.IsPositive():
		return NewDomainError(ErrorValidation, "sendAmount", "send amount must be greater than zero")
	case strings.TrimSpace(r.SendCurrency) == "":
		return NewDomainError(ErrorValidation, "sendCurrency", "send currency is required")
	case strings.TrimSpace(r.RecvCurrency) == "":
		return NewDomainError(ErrorValidation, "receiveCurrency", "receive currency is required")
	}

	if _, err := ParsePaymentMode(r.PaymentMode); err != nil {
		return err
	}

	return r.Beneficiary.Validate()
}

// Draft is the fully resolved initiation snapshot staged between Initiate
// and Execute. Execute treats it as authoritative and performs no pricing
// calls of its own.
type Draft struct {
	InternalReference string         `json:"internalReference"`
	BusinessID        string         `json:"businessId"`
	Payer             PayerRef       `json:"payer"`
	Beneficiary       BeneficiaryRef `json:"beneficiary"`
	Amounts           AmountDetails  `json:"amounts"`
	PaymentMode       PaymentMode    `json:"paymentMode"`
	LedgerAccountID   string         `json:"ledgerAccountId"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// NewInternalReference mints a "DR_"-prefixed reference used as the hold
// reference and the processor-facing external id.
func NewInternalReference() string {
	return "DR_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
