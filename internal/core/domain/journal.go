package domain

import "github.com/shopspring/decimal"

// JournalState indicates the state of a journal entry. Journals are
// append-only: a posted journal is never updated or deleted, only compensated
// by a later REVERSAL journal that links back to it.
type JournalState string

const (
	Posted JournalState = "POSTED"
)

// TransactionType classifies the business movement a journal records.
type TransactionType string

const (
	TxnDeposit         TransactionType = "DEPOSIT"
	TxnWithdrawal      TransactionType = "WITHDRAWAL"
	TxnTransfer        TransactionType = "TRANSFER"
	TxnMerchantPayment TransactionType = "MERCHANT_PAYMENT"
	TxnFloatFunding    TransactionType = "FLOAT_FUNDING"
	TxnAdjustment      TransactionType = "ADJUSTMENT"
	TxnReversal        TransactionType = "REVERSAL"
)

// EntrySide indicates whether a line debits or credits its account.
type EntrySide string

const (
	Debit  EntrySide = "DEBIT"
	Credit EntrySide = "CREDIT"
)

// Opposite returns the flipped side, used when constructing reversals.
func (s EntrySide) Opposite() EntrySide {
	if s == Debit {
		return Credit
	}
	return Debit
}

// Journal is a single balanced financial event composed of multiple lines.
type Journal struct {
	JournalID         string          `json:"journalID"` // Primary key (UUID)
	DomainKey         string          `json:"domainKey"` // Serialization partition
	TransactionType   TransactionType `json:"transactionType"`
	CurrencyCode      string          `json:"currencyCode"`
	CorrelationID     string          `json:"correlationID"`
	IdempotencyKey    string          `json:"idempotencyKey"` // Unique per domain key
	State             JournalState    `json:"state"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`            // Sum of the debit side
	OriginalJournalID *string         `json:"originalJournalID"` // Set on reversals only
	Lines             []Line          `json:"lines,omitempty"`
	AuditFields
}

// Line is a single account-level movement within a Journal.
type Line struct {
	LineID       string          `json:"lineID"` // Primary key (UUID)
	JournalID    string          `json:"journalID"`
	AccountID    string          `json:"accountID"`
	Side         EntrySide       `json:"side"`
	Amount       decimal.Decimal `json:"amount"` // Always positive
	CurrencyCode string          `json:"currencyCode"`
	Description  string          `json:"description"`
	AuditFields
}

// SignedAmount is the line's effect on its account balance under the
// credits-minus-debits convention used for wallet ledgers.
func (l Line) SignedAmount() decimal.Decimal {
	if l.Side == Credit {
		return l.Amount
	}
	return l.Amount.Neg()
}
