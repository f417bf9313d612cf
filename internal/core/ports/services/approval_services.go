package services

import (
	"context"

	"github.com/sandpesa/coreledger/internal/core/domain"
	"github.com/sandpesa/coreledger/internal/dto"
)

// ApprovalSvcFacade drives maker-checker workflows. Decisions for a single
// request are serialized per request id.
type ApprovalSvcFacade interface {
	Submit(ctx context.Context, req dto.SubmitApprovalRequest, makerID string) (*domain.ApprovalRequest, error)
	Decide(ctx context.Context, requestID string, deciderID string, deciderRole string, req dto.DecideRequest) (*dto.WorkflowOutcome, error)
	GetRequest(ctx context.Context, requestID string) (*domain.ApprovalRequest, error)
	ListRequests(ctx context.Context, params dto.ListRequestsParams) (*dto.ListRequestsResponse, error)
}

// PolicySvcFacade administers approval policies and delegations, and exposes
// the matcher used at submit time.
type PolicySvcFacade interface {
	CreatePolicy(ctx context.Context, req dto.CreatePolicyRequest, actorID string) (*domain.ApprovalPolicy, error)
	ActivatePolicy(ctx context.Context, policyID string, actorID string) error
	ListPolicies(ctx context.Context) ([]domain.ApprovalPolicy, error)
	// Evaluate selects the highest-priority ACTIVE policy matching the
	// approval type and context. A nil result means legacy single-stage mode.
	Evaluate(ctx context.Context, approvalType domain.ApprovalType, evalCtx map[string]string) (*domain.ApprovalPolicy, error)
	CreateDelegation(ctx context.Context, req dto.CreateDelegationRequest, actorID string) (*domain.Delegation, error)
	RevokeDelegation(ctx context.Context, delegationID string, actorID string) error
}

// SideEffectHandler is the outbound seam invoked when a request reaches a
// terminal state. The approval engine is agnostic to what the handler does.
type SideEffectHandler interface {
	// OnApprove runs after the APPROVED transition is persisted. The handler
	// typically posts a command into the ledger engine with its own
	// idempotency key, so retrying it is always safe.
	OnApprove(ctx context.Context, request domain.ApprovalRequest) error
	OnReject(ctx context.Context, request domain.ApprovalRequest) error
	// AllowedCheckerRoles supplies the fixed checker role list used when no
	// policy matches (legacy single-stage mode).
	AllowedCheckerRoles() []string
}
