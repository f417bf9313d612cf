package pgsql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
)

// PgxBalanceRepository reads the materialized balance rows. Writes happen
// exclusively inside PgxJournalRepository.SavePosting.
type PgxBalanceRepository struct {
	BaseRepository
}

func newPgxBalanceRepository(pool *pgxpool.Pool) portsrepo.BalanceRepository {
	return &PgxBalanceRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.BalanceRepository = (*PgxBalanceRepository)(nil)

const balanceColumns = `account_id, actual, hold, pending_credits, last_journal_id, updated_at`

func scanBalance(row pgx.Row) (domain.Balance, error) {
	var b domain.Balance
	err := row.Scan(
		&b.AccountID,
		&b.Actual,
		&b.Hold,
		&b.PendingCredits,
		&b.LastJournalID,
		&b.UpdatedAt,
	)
	return b, err
}

// GetBalance retrieves the balance row for one account.
func (r *PgxBalanceRepository) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM balances WHERE account_id = $1;`
	balance, err := scanBalance(r.Pool.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find balance for account "+accountID, err)
	}
	return &balance, nil
}

// GetBalances retrieves the balance rows found for the given ids, keyed by
// account id. Accounts with no row yet are simply absent from the map.
func (r *PgxBalanceRepository) GetBalances(ctx context.Context, accountIDs []string) (map[string]domain.Balance, error) {
	if len(accountIDs) == 0 {
		return map[string]domain.Balance{}, nil
	}

	query := `SELECT ` + balanceColumns + ` FROM balances WHERE account_id = ANY($1);`
	rows, err := r.Pool.Query(ctx, query, accountIDs)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query balances", err)
	}
	defer rows.Close()

	balances := make(map[string]domain.Balance, len(accountIDs))
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan balance row", err)
		}
		balances[balance.AccountID] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "failed to iterate balance rows", err)
	}
	return balances, nil
}
