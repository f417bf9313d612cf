package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the materialized balance row for one account. It is mutated only
// as a side effect of a successful posting, never independently.
type Balance struct {
	AccountID      string          `json:"accountID"`
	Actual         decimal.Decimal `json:"actual"`         // credits - debits over posted lines
	Hold           decimal.Decimal `json:"hold"`           // amount reserved against the account
	PendingCredits decimal.Decimal `json:"pendingCredits"` // credits awaiting async re-derivation
	LastJournalID  string          `json:"lastJournalID"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Available is the balance a debit may draw on before overdraft:
// actual minus holds plus pending credits.
func (b Balance) Available() decimal.Decimal {
	return b.Actual.Sub(b.Hold).Add(b.PendingCredits)
}
