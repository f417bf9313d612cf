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
	"github.com/sandpesa/coreledger/internal/dto"
	"github.com/sandpesa/coreledger/internal/utils/pagination"
)

type PgxApprovalRepository struct {
	BaseRepository
}

func newPgxApprovalRepository(pool *pgxpool.Pool) portsrepo.ApprovalRepository {
	return &PgxApprovalRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.ApprovalRepository = (*PgxApprovalRepository)(nil)

// SaveRequest inserts a new approval request.
func (r *PgxApprovalRepository) SaveRequest(ctx context.Context, request domain.ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests (
			request_id, approval_type, payload, maker_id, checker_id, state, policy_id,
			current_stage, total_stages, workflow_state, correlation_id,
			created_at, created_by, last_updated_at, last_updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);
	`
	_, err := r.Pool.Exec(ctx, query,
		request.RequestID,
		request.ApprovalType,
		request.Payload,
		request.MakerID,
		request.CheckerID,
		request.State,
		request.PolicyID,
		request.CurrentStage,
		request.TotalStages,
		request.WorkflowState,
		request.CorrelationID,
		request.CreatedAt,
		request.CreatedBy,
		request.LastUpdatedAt,
		request.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return apperrors.NewAppError(500, "failed to insert approval request "+request.RequestID, err)
	}
	return nil
}

const requestColumns = `request_id, approval_type, payload, maker_id, checker_id, state, policy_id, current_stage, total_stages, workflow_state, correlation_id, created_at, created_by, last_updated_at, last_updated_by`

func scanRequest(row pgx.Row) (domain.ApprovalRequest, error) {
	var req domain.ApprovalRequest
	var checkerID, policyID sql.NullString
	err := row.Scan(
		&req.RequestID,
		&req.ApprovalType,
		&req.Payload,
		&req.MakerID,
		&checkerID,
		&req.State,
		&policyID,
		&req.CurrentStage,
		&req.TotalStages,
		&req.WorkflowState,
		&req.CorrelationID,
		&req.CreatedAt,
		&req.CreatedBy,
		&req.LastUpdatedAt,
		&req.LastUpdatedBy,
	)
	if checkerID.Valid {
		req.CheckerID = &checkerID.String
	}
	if policyID.Valid {
		req.PolicyID = &policyID.String
	}
	return req, err
}

// FindRequestByID retrieves an approval request by its ID.
func (r *PgxApprovalRepository) FindRequestByID(ctx context.Context, requestID string) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE request_id = $1;`
	request, err := scanRequest(r.Pool.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find approval request by ID "+requestID, err)
	}
	return &request, nil
}

// SaveDecisionAndProgress records a stage decision and the resulting request
// progress in one database transaction. The unique index on
// (request_id, stage_number, decider_id) backstops the double-decision check.
func (r *PgxApprovalRepository) SaveDecisionAndProgress(ctx context.Context, decision domain.StageDecision, request domain.ApprovalRequest) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	decisionQuery := `
		INSERT INTO stage_decisions (
			decision_id, request_id, stage_number, decider_id, decider_role, decision, reason,
			created_at, created_by, last_updated_at, last_updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err = tx.Exec(ctx, decisionQuery,
		decision.DecisionID,
		decision.RequestID,
		decision.StageNumber,
		decision.DeciderID,
		decision.DeciderRole,
		decision.Decision,
		decision.Reason,
		decision.CreatedAt,
		decision.CreatedBy,
		decision.LastUpdatedAt,
		decision.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrAlreadyDecided
		}
		return apperrors.NewAppError(500, "failed to insert stage decision "+decision.DecisionID, err)
	}

	progressQuery := `
		UPDATE approval_requests
		SET state = $2, workflow_state = $3, current_stage = $4, checker_id = $5,
		    last_updated_at = $6, last_updated_by = $7
		WHERE request_id = $1;
	`
	tag, err := tx.Exec(ctx, progressQuery,
		request.RequestID,
		request.State,
		request.WorkflowState,
		request.CurrentStage,
		request.CheckerID,
		request.LastUpdatedAt,
		request.LastUpdatedBy,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update approval request "+request.RequestID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return r.Commit(ctx, tx)
}

// FindDecisionsByRequestID retrieves every recorded decision of a request.
func (r *PgxApprovalRepository) FindDecisionsByRequestID(ctx context.Context, requestID string) ([]domain.StageDecision, error) {
	query := `
		SELECT decision_id, request_id, stage_number, decider_id, decider_role, decision, reason,
		       created_at, created_by, last_updated_at, last_updated_by
		FROM stage_decisions
		WHERE request_id = $1
		ORDER BY stage_number, created_at;
	`
	rows, err := r.Pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query decisions for request "+requestID, err)
	}
	defer rows.Close()

	decisions := []domain.StageDecision{}
	for rows.Next() {
		var d domain.StageDecision
		err := rows.Scan(
			&d.DecisionID,
			&d.RequestID,
			&d.StageNumber,
			&d.DeciderID,
			&d.DeciderRole,
			&d.Decision,
			&d.Reason,
			&d.CreatedAt,
			&d.CreatedBy,
			&d.LastUpdatedAt,
			&d.LastUpdatedBy,
		)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan stage decision row", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "failed to iterate stage decision rows", err)
	}
	return decisions, nil
}

// ListRequests retrieves a filtered, token-paginated page of approval
// requests, newest first.
func (r *PgxApprovalRepository) ListRequests(ctx context.Context, params dto.ListRequestsParams) ([]domain.ApprovalRequest, *string, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE 1=1`
	args := []interface{}{}

	if params.ApprovalType != nil {
		args = append(args, *params.ApprovalType)
		query += ` AND approval_type = $` + strconv.Itoa(len(args))
	}
	if params.State != nil {
		args = append(args, *params.State)
		query += ` AND state = $` + strconv.Itoa(len(args))
	}
	if params.NextToken != nil && *params.NextToken != "" {
		lastCreatedAt, lastID, err := pagination.DecodeToken(*params.NextToken)
		if err != nil {
			return nil, nil, apperrors.NewAppError(400, "invalid pagination token", err)
		}
		args = append(args, lastCreatedAt, lastID)
		query += ` AND (created_at, request_id) < ($` + strconv.Itoa(len(args)-1) + `, $` + strconv.Itoa(len(args)) + `)`
	}

	args = append(args, params.Limit+1)
	query += ` ORDER BY created_at DESC, request_id DESC LIMIT $` + strconv.Itoa(len(args)) + `;`

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to query approval requests", err)
	}
	defer rows.Close()

	requests := []domain.ApprovalRequest{}
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, nil, apperrors.NewAppError(500, "failed to scan approval request row", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to iterate approval request rows", err)
	}

	var token *string
	if len(requests) > params.Limit {
		requests = requests[:params.Limit]
		last := requests[len(requests)-1]
		encoded := pagination.EncodeToken(last.CreatedAt, last.RequestID)
		token = &encoded
	}
	return requests, token, nil
}
