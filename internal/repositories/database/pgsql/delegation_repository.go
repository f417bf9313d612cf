package pgsql

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
)

type PgxDelegationRepository struct {
	BaseRepository
}

func newPgxDelegationRepository(pool *pgxpool.Pool) portsrepo.DelegationRepository {
	return &PgxDelegationRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.DelegationRepository = (*PgxDelegationRepository)(nil)

// SaveDelegation inserts a new delegation.
func (r *PgxDelegationRepository) SaveDelegation(ctx context.Context, delegation domain.Delegation) error {
	query := `
		INSERT INTO delegations (
			delegation_id, delegator_id, delegator_role, delegate_id, approval_type, state,
			valid_from, valid_until, created_at, created_by, last_updated_at, last_updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err := r.Pool.Exec(ctx, query,
		delegation.DelegationID,
		delegation.DelegatorID,
		delegation.DelegatorRole,
		delegation.DelegateID,
		delegation.ApprovalType,
		delegation.State,
		delegation.ValidFrom,
		delegation.ValidUntil,
		delegation.CreatedAt,
		delegation.CreatedBy,
		delegation.LastUpdatedAt,
		delegation.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return apperrors.NewAppError(500, "failed to insert delegation "+delegation.DelegationID, err)
	}
	return nil
}

// RevokeDelegation flips a delegation to REVOKED.
func (r *PgxDelegationRepository) RevokeDelegation(ctx context.Context, delegationID string, updatedBy string, now time.Time) error {
	query := `
		UPDATE delegations
		SET state = 'REVOKED', last_updated_at = $2, last_updated_by = $3
		WHERE delegation_id = $1;
	`
	tag, err := r.Pool.Exec(ctx, query, delegationID, now, updatedBy)
	if err != nil {
		return apperrors.NewAppError(500, "failed to revoke delegation "+delegationID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// FindDelegationsForDelegate retrieves every delegation naming the actor as delegate.
func (r *PgxDelegationRepository) FindDelegationsForDelegate(ctx context.Context, delegateID string) ([]domain.Delegation, error) {
	query := `
		SELECT delegation_id, delegator_id, delegator_role, delegate_id, approval_type, state,
		       valid_from, valid_until, created_at, created_by, last_updated_at, last_updated_by
		FROM delegations
		WHERE delegate_id = $1;
	`
	rows, err := r.Pool.Query(ctx, query, delegateID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query delegations for "+delegateID, err)
	}
	defer rows.Close()

	delegations := []domain.Delegation{}
	for rows.Next() {
		var d domain.Delegation
		err := rows.Scan(
			&d.DelegationID,
			&d.DelegatorID,
			&d.DelegatorRole,
			&d.DelegateID,
			&d.ApprovalType,
			&d.State,
			&d.ValidFrom,
			&d.ValidUntil,
			&d.CreatedAt,
			&d.CreatedBy,
			&d.LastUpdatedAt,
			&d.LastUpdatedBy,
		)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan delegation row", err)
		}
		delegations = append(delegations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "failed to iterate delegation rows", err)
	}
	return delegations, nil
}
