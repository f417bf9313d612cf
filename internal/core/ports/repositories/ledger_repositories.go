package repositories

import (
	"context"
	"time"

	"github.com/sandpesa/coreledger/internal/core/domain"
	"github.com/shopspring/decimal"
)

// AccountRepository persists ledger accounts.
type AccountRepository interface {
	// SaveAccount inserts a new account. Returns apperrors.ErrDuplicate when
	// the natural key (owner type, owner id, account type, currency) exists.
	SaveAccount(ctx context.Context, account domain.Account) error
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	// FindAccountByNaturalKey resolves the get-or-create identity tuple.
	FindAccountByNaturalKey(ctx context.Context, ownerType domain.OwnerType, ownerID string, accountType domain.AccountType, currencyCode string) (*domain.Account, error)
	FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)
	// SetOverdraftLimit activates or resizes an account's overdraft facility.
	SetOverdraftLimit(ctx context.Context, accountID string, limit decimal.Decimal, updatedBy string, now time.Time) error
}

// BalanceRepository reads materialized balances. Balance writes happen only
// inside JournalRepository.SavePosting.
type BalanceRepository interface {
	GetBalance(ctx context.Context, accountID string) (*domain.Balance, error)
	GetBalances(ctx context.Context, accountIDs []string) (map[string]domain.Balance, error)
}

// JournalRepository persists journals and their lines.
type JournalRepository interface {
	// SavePosting atomically inserts the journal and its lines, applies the
	// balance deltas, and finalizes the idempotency record with the result
	// payload. All of it commits as one database transaction; there is no
	// partial visibility of a journal without its lines.
	SavePosting(ctx context.Context, journal domain.Journal, lines []domain.Line, balanceDeltas map[string]decimal.Decimal, idem domain.IdempotencyRecord) error
	FindJournalByID(ctx context.Context, journalID string) (*domain.Journal, error)
	FindLinesByJournalID(ctx context.Context, journalID string) ([]domain.Line, error)
	ListJournalsByDomainKey(ctx context.Context, domainKey string, limit int, nextToken *string) ([]domain.Journal, *string, error)
}

// IdempotencyRepository is the shared (scope, key) -> outcome store.
type IdempotencyRepository interface {
	Get(ctx context.Context, scope domain.IdempotencyScope, key string) (*domain.IdempotencyRecord, error)
	// Start inserts an in-progress record. Returns apperrors.ErrDuplicate when
	// a record for (scope, key) already exists.
	Start(ctx context.Context, record domain.IdempotencyRecord) error
	// Reclaim takes over a stale in-progress record, resetting its creation time.
	Reclaim(ctx context.Context, scope domain.IdempotencyScope, key string, now time.Time) error
	// Finalize stores the result payload outside a posting transaction
	// (used for approval decision dedup).
	Finalize(ctx context.Context, scope domain.IdempotencyScope, key string, result []byte, now time.Time) error
}

// CurrencyRepository persists supported currencies.
type CurrencyRepository interface {
	SaveCurrency(ctx context.Context, currency domain.Currency) error
	FindCurrencyByCode(ctx context.Context, code string) (*domain.Currency, error)
	ListCurrencies(ctx context.Context) ([]domain.Currency, error)
}

// EventRepository appends domain events to the append-only sink table.
type EventRepository interface {
	Append(ctx context.Context, event domain.Event) error
}
