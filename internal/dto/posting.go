package dto

import (
	"time"

	"github.com/sandpesa/coreledger/internal/core/domain"
	"github.com/shopspring/decimal"
)

// PostEntry is one debit or credit leg of a posting command.
type PostEntry struct {
	AccountID    string           `json:"accountID" binding:"required"`
	Side         domain.EntrySide `json:"side" binding:"required,oneof=DEBIT CREDIT"`
	Amount       decimal.Decimal  `json:"amount" binding:"required"`
	CurrencyCode string           `json:"currencyCode" binding:"required,len=3"`
	Description  string           `json:"description"`
}

// PostCommand is the inbound contract of the posting engine. Fee and
// commission legs arrive pre-computed as additional entries; the engine only
// enforces that the complete entry set balances.
type PostCommand struct {
	IdempotencyKey    string                 `json:"idempotencyKey" binding:"required"`
	CorrelationID     string                 `json:"correlationID"`
	TransactionType   domain.TransactionType `json:"transactionType" binding:"required"`
	CurrencyCode      string                 `json:"currencyCode" binding:"required,len=3"`
	Entries           []PostEntry            `json:"entries" binding:"required,min=2,dive"`
	Description       string                 `json:"description"`
	ActorID           string                 `json:"actorID"`
	FeeVersionRef     string                 `json:"feeVersionRef,omitempty"`
	CommissionVersion string                 `json:"commissionVersionRef,omitempty"`
}

// ReverseCommand requests a compensating journal for a posted journal.
type ReverseCommand struct {
	OriginalJournalID string `json:"originalJournalID" binding:"required"`
	IdempotencyKey    string `json:"idempotencyKey" binding:"required"`
	CorrelationID     string `json:"correlationID"`
	Description       string `json:"description"`
	ActorID           string `json:"actorID"`
}

// JournalResult is the caller-visible outcome of a post. It is also the
// payload stored on the idempotency record and replayed on retries.
type JournalResult struct {
	JournalID     string              `json:"journalID"`
	JournalState  domain.JournalState `json:"journalState"`
	CorrelationID string              `json:"correlationID"`
	PostedAt      time.Time           `json:"postedAt"`
}

// BalanceResponse is the caller-visible balance of one account.
type BalanceResponse struct {
	AccountID      string          `json:"accountID"`
	Actual         decimal.Decimal `json:"actual"`
	Available      decimal.Decimal `json:"available"`
	Hold           decimal.Decimal `json:"hold"`
	PendingCredits decimal.Decimal `json:"pendingCredits"`
	LastJournalID  string          `json:"lastJournalID"`
}

// ListJournalsParams holds parameters for listing journals within a domain key.
type ListJournalsParams struct {
	Limit     int     `form:"limit"`
	NextToken *string `form:"nextToken"`
}

// ListJournalsResponse is a page of journals plus the token for the next page.
type ListJournalsResponse struct {
	Journals  []domain.Journal `json:"journals"`
	NextToken *string          `json:"nextToken,omitempty"`
}
