package dto

import (
	"encoding/json"

	"github.com/sandpesa/coreledger/internal/core/domain"
)

// SubmitApprovalRequest opens a maker-checker workflow for a gated action.
type SubmitApprovalRequest struct {
	ApprovalType  domain.ApprovalType `json:"approvalType" binding:"required"`
	Payload       json.RawMessage     `json:"payload" binding:"required"`
	CorrelationID string              `json:"correlationID"`
}

// DecideRequest records one checker decision on a pending request.
type DecideRequest struct {
	Decision       domain.Decision `json:"decision" binding:"required,oneof=APPROVE REJECT"`
	Reason         string          `json:"reason"`
	IdempotencyKey string          `json:"idempotencyKey"` // Optional decision dedup
}

// WorkflowOutcome is returned after a decision is applied.
type WorkflowOutcome struct {
	RequestID     string               `json:"requestID"`
	State         domain.RequestState  `json:"state"`
	WorkflowState domain.WorkflowState `json:"workflowState"`
	CurrentStage  int                  `json:"currentStage,omitempty"`
	TotalStages   int                  `json:"totalStages"`
	HandlerError  string               `json:"handlerError,omitempty"` // Side effect failed after terminal transition
}

// ListRequestsParams filters the pending-approvals listing.
type ListRequestsParams struct {
	ApprovalType *domain.ApprovalType `form:"approvalType"`
	State        *domain.RequestState `form:"state"`
	Limit        int                  `form:"limit"`
	NextToken    *string              `form:"nextToken"`
}

// ListRequestsResponse is a page of approval requests.
type ListRequestsResponse struct {
	Requests  []domain.ApprovalRequest `json:"requests"`
	NextToken *string                  `json:"nextToken,omitempty"`
}
