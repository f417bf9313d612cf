package pgsql

import (
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		AccountRepo:     newPgxAccountRepository(dbPool),
		BalanceRepo:     newPgxBalanceRepository(dbPool),
		JournalRepo:     newPgxJournalRepository(dbPool),
		IdempotencyRepo: newPgxIdempotencyRepository(dbPool),
		CurrencyRepo:    newPgxCurrencyRepository(dbPool),
		EventRepo:       newPgxEventRepository(dbPool),
		PolicyRepo:      newPgxPolicyRepository(dbPool),
		ApprovalRepo:    newPgxApprovalRepository(dbPool),
		DelegationRepo:  newPgxDelegationRepository(dbPool),
	}
}
