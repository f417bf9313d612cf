package dto

import (
	"time"

	"github.com/sandpesa/coreledger/internal/core/domain"
)

// CreatePolicyStage defines one stage of a new policy.
type CreatePolicyStage struct {
	StageNumber             int      `json:"stageNumber" binding:"required,min=1"`
	MinApprovals            int      `json:"minApprovals" binding:"required,min=1"`
	AllowedRoles            []string `json:"allowedRoles"`
	AllowedActorIDs         []string `json:"allowedActorIDs"`
	ExcludeMaker            bool     `json:"excludeMaker"`
	ExcludePreviousApprover bool     `json:"excludePreviousApprover"`
}

// CreatePolicyCondition defines one match predicate of a new policy.
type CreatePolicyCondition struct {
	Field    string                   `json:"field" binding:"required"`
	Operator domain.ConditionOperator `json:"operator" binding:"required,oneof=EQ NEQ GT GTE LT LTE"`
	Value    string                   `json:"value" binding:"required"`
}

// CreatePolicyRequest creates a policy in DRAFT state.
type CreatePolicyRequest struct {
	Name         string                  `json:"name" binding:"required"`
	ApprovalType domain.ApprovalType     `json:"approvalType" binding:"required"`
	Priority     int                     `json:"priority"`
	ValidFrom    time.Time               `json:"validFrom"`
	ValidUntil   *time.Time              `json:"validUntil"`
	Stages       []CreatePolicyStage     `json:"stages" binding:"required,min=1,dive"`
	Conditions   []CreatePolicyCondition `json:"conditions" binding:"dive"`
}

// CreateDelegationRequest stands a delegate in for the delegator's role.
type CreateDelegationRequest struct {
	DelegatorID   string               `json:"delegatorID" binding:"required"`
	DelegatorRole string               `json:"delegatorRole" binding:"required"`
	DelegateID    string               `json:"delegateID" binding:"required"`
	ApprovalType  *domain.ApprovalType `json:"approvalType"`
	ValidFrom     time.Time            `json:"validFrom"`
	ValidUntil    time.Time            `json:"validUntil" binding:"required"`
}
