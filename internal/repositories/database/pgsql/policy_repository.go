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

type PgxPolicyRepository struct {
	BaseRepository
}

func newPgxPolicyRepository(pool *pgxpool.Pool) portsrepo.PolicyRepository {
	return &PgxPolicyRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.PolicyRepository = (*PgxPolicyRepository)(nil)

// SavePolicy inserts the policy, its stages, and its conditions atomically.
func (r *PgxPolicyRepository) SavePolicy(ctx context.Context, policy domain.ApprovalPolicy) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	policyQuery := `
		INSERT INTO approval_policies (
			policy_id, name, approval_type, priority, state, valid_from, valid_until,
			created_at, created_by, last_updated_at, last_updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err = tx.Exec(ctx, policyQuery,
		policy.PolicyID,
		policy.Name,
		policy.ApprovalType,
		policy.Priority,
		policy.State,
		policy.ValidFrom,
		policy.ValidUntil,
		policy.CreatedAt,
		policy.CreatedBy,
		policy.LastUpdatedAt,
		policy.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return apperrors.NewAppError(500, "failed to insert policy "+policy.PolicyID, err)
	}

	batch := &pgx.Batch{}
	stageQuery := `
		INSERT INTO policy_stages (
			stage_id, policy_id, stage_number, min_approvals, allowed_roles,
			allowed_actor_ids, exclude_maker, exclude_previous_approver
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	for _, stage := range policy.Stages {
		batch.Queue(stageQuery,
			stage.StageID,
			stage.PolicyID,
			stage.StageNumber,
			stage.MinApprovals,
			stage.AllowedRoles,
			stage.AllowedActorIDs,
			stage.ExcludeMaker,
			stage.ExcludePreviousApprover,
		)
	}

	conditionQuery := `
		INSERT INTO policy_conditions (condition_id, policy_id, field, operator, value)
		VALUES ($1, $2, $3, $4, $5);
	`
	for _, cond := range policy.Conditions {
		batch.Queue(conditionQuery, cond.ConditionID, cond.PolicyID, cond.Field, cond.Operator, cond.Value)
	}

	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		return apperrors.NewAppError(500, "failed to insert stages and conditions for policy "+policy.PolicyID, err)
	}

	return r.Commit(ctx, tx)
}

const policyColumns = `policy_id, name, approval_type, priority, state, valid_from, valid_until, created_at, created_by, last_updated_at, last_updated_by`

func scanPolicy(row pgx.Row) (domain.ApprovalPolicy, error) {
	var p domain.ApprovalPolicy
	err := row.Scan(
		&p.PolicyID,
		&p.Name,
		&p.ApprovalType,
		&p.Priority,
		&p.State,
		&p.ValidFrom,
		&p.ValidUntil,
		&p.CreatedAt,
		&p.CreatedBy,
		&p.LastUpdatedAt,
		&p.LastUpdatedBy,
	)
	return p, err
}

// FindPolicyByID retrieves a policy with stages and conditions populated.
func (r *PgxPolicyRepository) FindPolicyByID(ctx context.Context, policyID string) (*domain.ApprovalPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM approval_policies WHERE policy_id = $1;`
	policy, err := scanPolicy(r.Pool.QueryRow(ctx, query, policyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find policy by ID "+policyID, err)
	}

	policies := []domain.ApprovalPolicy{policy}
	if err := r.populate(ctx, policies); err != nil {
		return nil, err
	}
	return &policies[0], nil
}

// ListPoliciesForType returns every policy whose type matches exactly or via
// wildcard, ordered by priority descending, with stages and conditions populated.
func (r *PgxPolicyRepository) ListPoliciesForType(ctx context.Context, approvalType domain.ApprovalType) ([]domain.ApprovalPolicy, error) {
	query := `
		SELECT ` + policyColumns + `
		FROM approval_policies
		WHERE approval_type = $1 OR approval_type = $2
		ORDER BY priority DESC, created_at ASC;
	`
	return r.queryPolicies(ctx, query, approvalType, domain.ApprovalTypeWildcard)
}

// ListPolicies retrieves every policy with stages and conditions populated.
func (r *PgxPolicyRepository) ListPolicies(ctx context.Context) ([]domain.ApprovalPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM approval_policies ORDER BY priority DESC, created_at ASC;`
	return r.queryPolicies(ctx, query)
}

func (r *PgxPolicyRepository) queryPolicies(ctx context.Context, query string, args ...interface{}) ([]domain.ApprovalPolicy, error) {
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query policies", err)
	}
	defer rows.Close()

	policies := []domain.ApprovalPolicy{}
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan policy row", err)
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "failed to iterate policy rows", err)
	}

	if err := r.populate(ctx, policies); err != nil {
		return nil, err
	}
	return policies, nil
}

// populate loads stages and conditions for the given policies in two queries.
func (r *PgxPolicyRepository) populate(ctx context.Context, policies []domain.ApprovalPolicy) error {
	if len(policies) == 0 {
		return nil
	}

	ids := make([]string, 0, len(policies))
	index := make(map[string]int, len(policies))
	for i := range policies {
		ids = append(ids, policies[i].PolicyID)
		index[policies[i].PolicyID] = i
	}

	stageQuery := `
		SELECT stage_id, policy_id, stage_number, min_approvals, allowed_roles, allowed_actor_ids, exclude_maker, exclude_previous_approver
		FROM policy_stages
		WHERE policy_id = ANY($1)
		ORDER BY policy_id, stage_number;
	`
	stageRows, err := r.Pool.Query(ctx, stageQuery, ids)
	if err != nil {
		return apperrors.NewAppError(500, "failed to query policy stages", err)
	}
	defer stageRows.Close()
	for stageRows.Next() {
		var s domain.PolicyStage
		err := stageRows.Scan(
			&s.StageID,
			&s.PolicyID,
			&s.StageNumber,
			&s.MinApprovals,
			&s.AllowedRoles,
			&s.AllowedActorIDs,
			&s.ExcludeMaker,
			&s.ExcludePreviousApprover,
		)
		if err != nil {
			return apperrors.NewAppError(500, "failed to scan policy stage row", err)
		}
		i := index[s.PolicyID]
		policies[i].Stages = append(policies[i].Stages, s)
	}
	if err := stageRows.Err(); err != nil {
		return apperrors.NewAppError(500, "failed to iterate policy stage rows", err)
	}

	conditionQuery := `
		SELECT condition_id, policy_id, field, operator, value
		FROM policy_conditions
		WHERE policy_id = ANY($1);
	`
	condRows, err := r.Pool.Query(ctx, conditionQuery, ids)
	if err != nil {
		return apperrors.NewAppError(500, "failed to query policy conditions", err)
	}
	defer condRows.Close()
	for condRows.Next() {
		var c domain.PolicyCondition
		if err := condRows.Scan(&c.ConditionID, &c.PolicyID, &c.Field, &c.Operator, &c.Value); err != nil {
			return apperrors.NewAppError(500, "failed to scan policy condition row", err)
		}
		i := index[c.PolicyID]
		policies[i].Conditions = append(policies[i].Conditions, c)
	}
	if err := condRows.Err(); err != nil {
		return apperrors.NewAppError(500, "failed to iterate policy condition rows", err)
	}
	return nil
}

// UpdatePolicyState moves a policy between lifecycle states.
func (r *PgxPolicyRepository) UpdatePolicyState(ctx context.Context, policyID string, state domain.PolicyState, updatedBy string, now time.Time) error {
	query := `
		UPDATE approval_policies
		SET state = $2, last_updated_at = $3, last_updated_by = $4
		WHERE policy_id = $1;
	`
	tag, err := r.Pool.Exec(ctx, query, policyID, state, now, updatedBy)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update state of policy "+policyID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
