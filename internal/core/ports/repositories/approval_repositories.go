package repositories

import (
	"context"
	"time"

	"github.com/sandpesa/coreledger/internal/core/domain"
	"github.com/sandpesa/coreledger/internal/dto"
)

// PolicyRepository persists approval policies with their stages and conditions.
type PolicyRepository interface {
	// SavePolicy inserts the policy, its stages, and its conditions atomically.
	SavePolicy(ctx context.Context, policy domain.ApprovalPolicy) error
	FindPolicyByID(ctx context.Context, policyID string) (*domain.ApprovalPolicy, error)
	// ListPoliciesForType returns every policy whose approval type equals the
	// given type or the wildcard, with stages and conditions populated,
	// ordered by priority descending.
	ListPoliciesForType(ctx context.Context, approvalType domain.ApprovalType) ([]domain.ApprovalPolicy, error)
	ListPolicies(ctx context.Context) ([]domain.ApprovalPolicy, error)
	UpdatePolicyState(ctx context.Context, policyID string, state domain.PolicyState, updatedBy string, now time.Time) error
}

// ApprovalRepository persists approval requests and their stage decisions.
// Stage decisions are append-only.
type ApprovalRepository interface {
	SaveRequest(ctx context.Context, request domain.ApprovalRequest) error
	FindRequestByID(ctx context.Context, requestID string) (*domain.ApprovalRequest, error)
	// SaveDecisionAndProgress records a stage decision and the resulting
	// request progress (state, workflow state, current stage, checker) in one
	// database transaction. Returns apperrors.ErrAlreadyDecided when the
	// (request, stage, decider) uniqueness is violated.
	SaveDecisionAndProgress(ctx context.Context, decision domain.StageDecision, request domain.ApprovalRequest) error
	FindDecisionsByRequestID(ctx context.Context, requestID string) ([]domain.StageDecision, error)
	ListRequests(ctx context.Context, params dto.ListRequestsParams) ([]domain.ApprovalRequest, *string, error)
}

// DelegationRepository persists approval delegations.
type DelegationRepository interface {
	SaveDelegation(ctx context.Context, delegation domain.Delegation) error
	RevokeDelegation(ctx context.Context, delegationID string, updatedBy string, now time.Time) error
	// FindDelegationsForDelegate returns every delegation naming the actor as
	// delegate, regardless of state or window; the service filters with Covers.
	FindDelegationsForDelegate(ctx context.Context, delegateID string) ([]domain.Delegation, error)
}
