package domain

import "github.com/shopspring/decimal"

// OwnerType identifies what kind of party owns a ledger account.
type OwnerType string

const (
	OwnerCustomer OwnerType = "CUSTOMER"
	OwnerAgent    OwnerType = "AGENT"
	OwnerMerchant OwnerType = "MERCHANT"
	OwnerPlatform OwnerType = "PLATFORM"
)

// AccountType classifies the ledger slice an account represents.
type AccountType string

const (
	AccountWallet     AccountType = "WALLET"
	AccountFloat      AccountType = "FLOAT"
	AccountFeeRevenue AccountType = "FEE_REVENUE"
	AccountCommission AccountType = "COMMISSION"
	AccountSettlement AccountType = "SETTLEMENT"
	AccountSuspense   AccountType = "SUSPENSE"
)

// Account is a ledger account. Its identity is the tuple
// (owner type, owner id, account type, currency); it is created on first use
// and immutable afterwards apart from the overdraft facility.
type Account struct {
	AccountID      string          `json:"accountID"` // Primary key (UUID)
	OwnerType      OwnerType       `json:"ownerType"`
	OwnerID        string          `json:"ownerID"`
	AccountType    AccountType     `json:"accountType"`
	CurrencyCode   string          `json:"currencyCode"`
	IsActive       bool            `json:"isActive"`
	OverdraftLimit decimal.Decimal `json:"overdraftLimit"` // Zero when no facility is active
	AuditFields
}

// OverdraftCoverage returns the total amount a debit may draw on:
// the given available balance plus the active overdraft limit.
func (a Account) OverdraftCoverage(available decimal.Decimal) decimal.Decimal {
	return available.Add(a.OverdraftLimit)
}
