package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
	"github.com/sandpesa/coreledger/internal/dto"
	"github.com/sandpesa/coreledger/internal/middleware"
	"github.com/shopspring/decimal"
)

// PolicyService administers approval policies and delegations and selects the
// policy that governs a new approval request.
type PolicyService struct {
	policyRepo     portsrepo.PolicyRepository
	delegationRepo portsrepo.DelegationRepository
}

// NewPolicyService creates a new PolicyService.
func NewPolicyService(policyRepo portsrepo.PolicyRepository, delegationRepo portsrepo.DelegationRepository) *PolicyService {
	return &PolicyService{policyRepo: policyRepo, delegationRepo: delegationRepo}
}

// CreatePolicy validates and persists a new policy in DRAFT state. Stages must
// be numbered 1..N without gaps so the workflow can advance deterministically.
func (s *PolicyService) CreatePolicy(ctx context.Context, req dto.CreatePolicyRequest, actorID string) (*domain.ApprovalPolicy, error) {
	now := time.Now().UTC()

	seen := make(map[int]bool, len(req.Stages))
	for _, stage := range req.Stages {
		if seen[stage.StageNumber] {
			return nil, fmt.Errorf("duplicate stage number %d: %w", stage.StageNumber, apperrors.ErrValidation)
		}
		seen[stage.StageNumber] = true
		if len(stage.AllowedRoles) == 0 && len(stage.AllowedActorIDs) == 0 {
			return nil, fmt.Errorf("stage %d: at least one allowed role or actor is required: %w", stage.StageNumber, apperrors.ErrValidation)
		}
	}
	for n := 1; n <= len(req.Stages); n++ {
		if !seen[n] {
			return nil, fmt.Errorf("stage numbers must be contiguous from 1, missing %d: %w", n, apperrors.ErrValidation)
		}
	}

	validFrom := req.ValidFrom
	if validFrom.IsZero() {
		validFrom = now
	}
	if req.ValidUntil != nil && !req.ValidUntil.After(validFrom) {
		return nil, fmt.Errorf("validUntil must be after validFrom: %w", apperrors.ErrValidation)
	}

	policy := domain.ApprovalPolicy{
		PolicyID:     uuid.NewString(),
		Name:         req.Name,
		ApprovalType: req.ApprovalType,
		Priority:     req.Priority,
		State:        domain.PolicyDraft,
		ValidFrom:    validFrom,
		ValidUntil:   req.ValidUntil,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actorID,
			LastUpdatedAt: now,
			LastUpdatedBy: actorID,
		},
	}
	for _, stage := range req.Stages {
		policy.Stages = append(policy.Stages, domain.PolicyStage{
			StageID:                 uuid.NewString(),
			PolicyID:                policy.PolicyID,
			StageNumber:             stage.StageNumber,
			MinApprovals:            stage.MinApprovals,
			AllowedRoles:            stage.AllowedRoles,
			AllowedActorIDs:         stage.AllowedActorIDs,
			ExcludeMaker:            stage.ExcludeMaker,
			ExcludePreviousApprover: stage.ExcludePreviousApprover,
		})
	}
	for _, cond := range req.Conditions {
		policy.Conditions = append(policy.Conditions, domain.PolicyCondition{
			ConditionID: uuid.NewString(),
			PolicyID:    policy.PolicyID,
			Field:       cond.Field,
			Operator:    cond.Operator,
			Value:       cond.Value,
		})
	}

	if err := s.policyRepo.SavePolicy(ctx, policy); err != nil {
		return nil, fmt.Errorf("saving policy: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Approval policy created",
		slog.String("policy_id", policy.PolicyID),
		slog.String("approval_type", string(policy.ApprovalType)),
		slog.Int("stages", len(policy.Stages)),
	)
	return &policy, nil
}

// ActivatePolicy moves a DRAFT policy to ACTIVE.
func (s *PolicyService) ActivatePolicy(ctx context.Context, policyID string, actorID string) error {
	policy, err := s.policyRepo.FindPolicyByID(ctx, policyID)
	if err != nil {
		return fmt.Errorf("loading policy %s: %w", policyID, err)
	}
	if policy.State == domain.PolicyActive {
		return nil
	}
	if policy.State != domain.PolicyDraft {
		return fmt.Errorf("policy %s is %s, only DRAFT policies can be activated: %w", policyID, policy.State, apperrors.ErrConflict)
	}

	now := time.Now().UTC()
	if err := s.policyRepo.UpdatePolicyState(ctx, policyID, domain.PolicyActive, actorID, now); err != nil {
		return fmt.Errorf("activating policy %s: %w", policyID, err)
	}
	middleware.GetLoggerFromCtx(ctx).Info("Approval policy activated", slog.String("policy_id", policyID))
	return nil
}

// ListPolicies returns every policy with stages and conditions populated.
func (s *PolicyService) ListPolicies(ctx context.Context) ([]domain.ApprovalPolicy, error) {
	policies, err := s.policyRepo.ListPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing policies: %w", err)
	}
	return policies, nil
}

// Evaluate selects the governing policy for a new request: the
// highest-priority policy that is in effect, whose approval type matches
// exactly or by wildcard, and whose conditions all hold against the
// evaluation context. A nil result without error means no policy governs and
// the request falls back to legacy single-stage mode.
func (s *PolicyService) Evaluate(ctx context.Context, approvalType domain.ApprovalType, evalCtx map[string]string) (*domain.ApprovalPolicy, error) {
	policies, err := s.policyRepo.ListPoliciesForType(ctx, approvalType)
	if err != nil {
		return nil, fmt.Errorf("loading policies for type %s: %w", approvalType, err)
	}

	now := time.Now().UTC()
	for i := range policies {
		policy := policies[i]
		if !policy.InEffect(now) {
			continue
		}
		matched, err := conditionsHold(policy.Conditions, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("evaluating policy %s: %w", policy.PolicyID, err)
		}
		if matched {
			return &policy, nil
		}
	}
	return nil, nil
}

// conditionsHold reports whether every condition evaluates true against the
// context. A condition on a field absent from the context fails the policy.
func conditionsHold(conditions []domain.PolicyCondition, evalCtx map[string]string) (bool, error) {
	for _, cond := range conditions {
		actual, ok := evalCtx[cond.Field]
		if !ok {
			return false, nil
		}
		holds, err := compareValues(actual, cond.Operator, cond.Value)
		if err != nil {
			return false, err
		}
		if !holds {
			return false, nil
		}
	}
	return true, nil
}

// compareValues applies one operator. When both sides parse as decimals the
// comparison is numeric, so "100.00" equals "100"; otherwise it is lexical.
func compareValues(actual string, op domain.ConditionOperator, expected string) (bool, error) {
	var cmp int
	actualDec, errA := decimal.NewFromString(actual)
	expectedDec, errB := decimal.NewFromString(expected)
	if errA == nil && errB == nil {
		cmp = actualDec.Cmp(expectedDec)
	} else {
		switch {
		case actual == expected:
			cmp = 0
		case actual < expected:
			cmp = -1
		default:
			cmp = 1
		}
	}

	switch op {
	case domain.OpEqual:
		return cmp == 0, nil
	case domain.OpNotEqual:
		return cmp != 0, nil
	case domain.OpGreaterThan:
		return cmp > 0, nil
	case domain.OpGreaterOrEqual:
		return cmp >= 0, nil
	case domain.OpLessThan:
		return cmp < 0, nil
	case domain.OpLessOrEqual:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("unknown condition operator %q: %w", op, apperrors.ErrStructuralPolicy)
	}
}

// CreateDelegation persists a new ACTIVE delegation.
func (s *PolicyService) CreateDelegation(ctx context.Context, req dto.CreateDelegationRequest, actorID string) (*domain.Delegation, error) {
	now := time.Now().UTC()

	if req.DelegatorID == req.DelegateID {
		return nil, fmt.Errorf("delegator and delegate must differ: %w", apperrors.ErrValidation)
	}
	validFrom := req.ValidFrom
	if validFrom.IsZero() {
		validFrom = now
	}
	if !req.ValidUntil.After(validFrom) {
		return nil, fmt.Errorf("validUntil must be after validFrom: %w", apperrors.ErrValidation)
	}

	delegation := domain.Delegation{
		DelegationID:  uuid.NewString(),
		DelegatorID:   req.DelegatorID,
		DelegatorRole: req.DelegatorRole,
		DelegateID:    req.DelegateID,
		ApprovalType:  req.ApprovalType,
		State:         domain.DelegationActive,
		ValidFrom:     validFrom,
		ValidUntil:    req.ValidUntil,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actorID,
			LastUpdatedAt: now,
			LastUpdatedBy: actorID,
		},
	}
	if err := s.delegationRepo.SaveDelegation(ctx, delegation); err != nil {
		return nil, fmt.Errorf("saving delegation: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Delegation created",
		slog.String("delegation_id", delegation.DelegationID),
		slog.String("delegator_id", delegation.DelegatorID),
		slog.String("delegate_id", delegation.DelegateID),
	)
	return &delegation, nil
}

// RevokeDelegation marks a delegation REVOKED. Revocation takes effect for
// all decisions made after it.
func (s *PolicyService) RevokeDelegation(ctx context.Context, delegationID string, actorID string) error {
	if err := s.delegationRepo.RevokeDelegation(ctx, delegationID, actorID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoking delegation %s: %w", delegationID, err)
	}
	middleware.GetLoggerFromCtx(ctx).Info("Delegation revoked", slog.String("delegation_id", delegationID))
	return nil
}

// effectiveRoles returns the decider's own role plus every role delegated to
// them that covers the approval type right now. Delegations widen, never
// replace, the decider's own authority.
func effectiveRoles(ctx context.Context, delegationRepo portsrepo.DelegationRepository, deciderID string, deciderRole string, approvalType domain.ApprovalType, now time.Time) (map[string]bool, error) {
	roles := map[string]bool{}
	if deciderRole != "" {
		roles[deciderRole] = true
	}

	delegations, err := delegationRepo.FindDelegationsForDelegate(ctx, deciderID)
	if err != nil {
		return nil, fmt.Errorf("loading delegations for %s: %w", deciderID, err)
	}
	for _, d := range delegations {
		if d.Covers(approvalType, now) {
			roles[d.DelegatorRole] = true
		}
	}
	return roles, nil
}
