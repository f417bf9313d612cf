package pgsql

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
	"github.com/sandpesa/coreledger/internal/utils/pagination"
	"github.com/shopspring/decimal"
)

type PgxJournalRepository struct {
	BaseRepository
}

func newPgxJournalRepository(pool *pgxpool.Pool) portsrepo.JournalRepository {
	return &PgxJournalRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.JournalRepository = (*PgxJournalRepository)(nil)

// SavePosting atomically inserts the journal and its lines, applies the
// balance deltas, and finalizes the idempotency record. The balance rows are
// locked before the upserts so concurrent postings from other processes
// serialize on the database even without the in-process lane.
func (r *PgxJournalRepository) SavePosting(ctx context.Context, journal domain.Journal, lines []domain.Line, balanceDeltas map[string]decimal.Decimal, idem domain.IdempotencyRecord) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx) // No-op once the transaction is committed

	journalQuery := `
		INSERT INTO journals (
			journal_id, domain_key, transaction_type, currency_code, correlation_id,
			idempotency_key, state, description, amount, original_journal_id,
			created_at, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err = tx.Exec(ctx, journalQuery,
		journal.JournalID,
		journal.DomainKey,
		journal.TransactionType,
		journal.CurrencyCode,
		journal.CorrelationID,
		journal.IdempotencyKey,
		journal.State,
		journal.Description,
		journal.Amount,
		journal.OriginalJournalID,
		journal.CreatedAt,
		journal.CreatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return apperrors.NewAppError(500, "failed to insert journal "+journal.JournalID, err)
	}

	// Lock the touched balance rows first; accounts posted to for the first
	// time have no row yet and are covered by the upsert below.
	accountIDs := make([]string, 0, len(balanceDeltas))
	for accID := range balanceDeltas {
		accountIDs = append(accountIDs, accID)
	}
	lockQuery := `SELECT account_id FROM balances WHERE account_id = ANY($1) FOR UPDATE;`
	lockRows, err := tx.Query(ctx, lockQuery, accountIDs)
	if err != nil {
		return apperrors.NewAppError(500, "failed to lock balance rows", err)
	}
	lockRows.Close()
	if err := lockRows.Err(); err != nil {
		return apperrors.NewAppError(500, "failed to lock balance rows", err)
	}

	batch := &pgx.Batch{}

	balanceQuery := `
		INSERT INTO balances (account_id, actual, hold, pending_credits, last_journal_id, updated_at)
		VALUES ($1, $2, 0, 0, $3, $4)
		ON CONFLICT (account_id) DO UPDATE
		SET actual = balances.actual + EXCLUDED.actual,
		    last_journal_id = EXCLUDED.last_journal_id,
		    updated_at = EXCLUDED.updated_at;
	`
	for _, accID := range accountIDs {
		batch.Queue(balanceQuery, accID, balanceDeltas[accID], journal.JournalID, journal.CreatedAt)
	}

	lineQuery := `
		INSERT INTO journal_lines (
			line_id, journal_id, account_id, side, amount, currency_code, description,
			created_at, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	for _, line := range lines {
		batch.Queue(lineQuery,
			line.LineID,
			line.JournalID,
			line.AccountID,
			line.Side,
			line.Amount,
			line.CurrencyCode,
			line.Description,
			line.CreatedAt,
			line.CreatedBy,
		)
	}

	idemQuery := `
		INSERT INTO idempotency_records (scope, key, payload_hash, state, result, created_at, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (scope, key) DO UPDATE
		SET state = EXCLUDED.state,
		    result = EXCLUDED.result,
		    finalized_at = EXCLUDED.finalized_at;
	`
	batch.Queue(idemQuery,
		idem.Scope,
		idem.Key,
		idem.PayloadHash,
		idem.State,
		idem.Result,
		idem.CreatedAt,
		idem.FinalizedAt,
	)

	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		return apperrors.NewAppError(500, "failed to execute posting batch for journal "+journal.JournalID, err)
	}

	return r.Commit(ctx, tx)
}

const journalColumns = `journal_id, domain_key, transaction_type, currency_code, correlation_id, idempotency_key, state, description, amount, original_journal_id, created_at, created_by`

func scanJournal(row pgx.Row) (domain.Journal, error) {
	var j domain.Journal
	var originalID sql.NullString
	err := row.Scan(
		&j.JournalID,
		&j.DomainKey,
		&j.TransactionType,
		&j.CurrencyCode,
		&j.CorrelationID,
		&j.IdempotencyKey,
		&j.State,
		&j.Description,
		&j.Amount,
		&originalID,
		&j.CreatedAt,
		&j.CreatedBy,
	)
	if originalID.Valid {
		j.OriginalJournalID = &originalID.String
	}
	return j, err
}

// FindJournalByID retrieves a journal by its ID, without lines.
func (r *PgxJournalRepository) FindJournalByID(ctx context.Context, journalID string) (*domain.Journal, error) {
	query := `SELECT ` + journalColumns + ` FROM journals WHERE journal_id = $1;`
	journal, err := scanJournal(r.Pool.QueryRow(ctx, query, journalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find journal by ID "+journalID, err)
	}
	return &journal, nil
}

// FindLinesByJournalID retrieves all lines of a journal.
func (r *PgxJournalRepository) FindLinesByJournalID(ctx context.Context, journalID string) ([]domain.Line, error) {
	query := `
		SELECT line_id, journal_id, account_id, side, amount, currency_code, description, created_at, created_by
		FROM journal_lines
		WHERE journal_id = $1
		ORDER BY line_id;
	`
	rows, err := r.Pool.Query(ctx, query, journalID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query lines for journal "+journalID, err)
	}
	defer rows.Close()

	lines := []domain.Line{}
	for rows.Next() {
		var l domain.Line
		err := rows.Scan(
			&l.LineID,
			&l.JournalID,
			&l.AccountID,
			&l.Side,
			&l.Amount,
			&l.CurrencyCode,
			&l.Description,
			&l.CreatedAt,
			&l.CreatedBy,
		)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan line row for journal "+journalID, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "failed to iterate line rows", err)
	}
	return lines, nil
}

// ListJournalsByDomainKey retrieves a paginated list of journals for a domain
// key using token-based pagination, newest first.
func (r *PgxJournalRepository) ListJournalsByDomainKey(ctx context.Context, domainKey string, limit int, nextToken *string) ([]domain.Journal, *string, error) {
	args := []interface{}{domainKey}
	query := `SELECT ` + journalColumns + ` FROM journals WHERE domain_key = $1`

	if nextToken != nil && *nextToken != "" {
		lastCreatedAt, lastID, err := pagination.DecodeToken(*nextToken)
		if err != nil {
			return nil, nil, apperrors.NewAppError(400, "invalid pagination token", err)
		}
		query += ` AND (created_at, journal_id) < ($2, $3)`
		args = append(args, lastCreatedAt, lastID)
	}

	query += ` ORDER BY created_at DESC, journal_id DESC LIMIT $` + strconv.Itoa(len(args)+1) + `;`
	args = append(args, limit+1) // one extra row to detect the next page

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to query journals for domain key "+domainKey, err)
	}
	defer rows.Close()

	journals := []domain.Journal{}
	for rows.Next() {
		journal, err := scanJournal(rows)
		if err != nil {
			return nil, nil, apperrors.NewAppError(500, "failed to scan journal row", err)
		}
		journals = append(journals, journal)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to iterate journal rows", err)
	}

	var token *string
	if len(journals) > limit {
		journals = journals[:limit]
		last := journals[len(journals)-1]
		encoded := pagination.EncodeToken(last.CreatedAt, last.JournalID)
		token = &encoded
	}
	return journals, token, nil
}
