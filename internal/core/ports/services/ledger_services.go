package services

import (
	"context"

	"github.com/sandpesa/coreledger/internal/core/domain"
	"github.com/sandpesa/coreledger/internal/dto"
)

// PostingSvcFacade is the inbound contract of the ledger posting engine.
// All commands sharing a domain key are processed strictly one at a time in
// arrival order; different domain keys post fully in parallel.
type PostingSvcFacade interface {
	Post(ctx context.Context, domainKey string, cmd dto.PostCommand) (*dto.JournalResult, error)
	Reverse(ctx context.Context, domainKey string, cmd dto.ReverseCommand) (*dto.JournalResult, error)
	GetBalance(ctx context.Context, accountID string) (*dto.BalanceResponse, error)
	GetJournal(ctx context.Context, journalID string) (*domain.Journal, error)
	ListJournals(ctx context.Context, domainKey string, params dto.ListJournalsParams) (*dto.ListJournalsResponse, error)
}

// AccountSvcFacade manages ledger accounts.
type AccountSvcFacade interface {
	// GetOrCreateAccount resolves the account identified by the natural key,
	// creating it on first use.
	GetOrCreateAccount(ctx context.Context, req dto.GetOrCreateAccountRequest, actorID string) (*domain.Account, error)
	GetAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	GetAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)
}

// CurrencySvcFacade validates and manages supported currencies.
type CurrencySvcFacade interface {
	GetCurrency(ctx context.Context, code string) (*domain.Currency, error)
	ListCurrencies(ctx context.Context) ([]domain.Currency, error)
	CreateCurrency(ctx context.Context, currency domain.Currency, actorID string) (*domain.Currency, error)
	// ValidateAmount checks the currency is supported and the amount does not
	// exceed the currency's fraction digits.
	ValidateAmount(ctx context.Context, code string, amount string) error
}

// EventPublisher is the fire-and-forget seam to the event sink. Publish
// failures are logged, never propagated into the consistency boundary.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
