package pgsql

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
)

type PgxIdempotencyRepository struct {
	BaseRepository
}

func newPgxIdempotencyRepository(pool *pgxpool.Pool) portsrepo.IdempotencyRepository {
	return &PgxIdempotencyRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.IdempotencyRepository = (*PgxIdempotencyRepository)(nil)

// Get retrieves the record for (scope, key).
func (r *PgxIdempotencyRepository) Get(ctx context.Context, scope domain.IdempotencyScope, key string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT scope, key, payload_hash, state, result, created_at, finalized_at
		FROM idempotency_records
		WHERE scope = $1 AND key = $2;
	`
	var record domain.IdempotencyRecord
	err := r.Pool.QueryRow(ctx, query, scope, key).Scan(
		&record.Scope,
		&record.Key,
		&record.PayloadHash,
		&record.State,
		&record.Result,
		&record.CreatedAt,
		&record.FinalizedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find idempotency record "+key, err)
	}
	return &record, nil
}

// Start inserts an in-progress record.
func (r *PgxIdempotencyRepository) Start(ctx context.Context, record domain.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_records (scope, key, payload_hash, state, result, created_at, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := r.Pool.Exec(ctx, query,
		record.Scope,
		record.Key,
		record.PayloadHash,
		record.State,
		record.Result,
		record.CreatedAt,
		record.FinalizedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return apperrors.NewAppError(500, "failed to insert idempotency record "+record.Key, err)
	}
	return nil
}

// Reclaim takes over a stale in-progress record by resetting its creation
// time. It only touches records still in progress, so a concurrent finalize wins.
func (r *PgxIdempotencyRepository) Reclaim(ctx context.Context, scope domain.IdempotencyScope, key string, now time.Time) error {
	query := `
		UPDATE idempotency_records
		SET created_at = $3
		WHERE scope = $1 AND key = $2 AND state = 'IN_PROGRESS';
	`
	tag, err := r.Pool.Exec(ctx, query, scope, key, now)
	if err != nil {
		return apperrors.NewAppError(500, "failed to reclaim idempotency record "+key, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// Finalize stores the result payload and flips the record to FINALIZED.
func (r *PgxIdempotencyRepository) Finalize(ctx context.Context, scope domain.IdempotencyScope, key string, result []byte, now time.Time) error {
	query := `
		UPDATE idempotency_records
		SET state = 'FINALIZED', result = $3, finalized_at = $4
		WHERE scope = $1 AND key = $2;
	`
	tag, err := r.Pool.Exec(ctx, query, scope, key, result, now)
	if err != nil {
		return apperrors.NewAppError(500, "failed to finalize idempotency record "+key, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
