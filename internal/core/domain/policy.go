package domain

import "time"

// PolicyState is the lifecycle state of an approval policy. Only ACTIVE
// policies participate in matching.
type PolicyState string

const (
	PolicyDraft    PolicyState = "DRAFT"
	PolicyActive   PolicyState = "ACTIVE"
	PolicyDisabled PolicyState = "DISABLED"
)

// ApprovalTypeWildcard matches every approval type.
const ApprovalTypeWildcard ApprovalType = "*"

// ConditionOperator is the closed set of comparison operators a policy
// condition may use against the evaluation context.
type ConditionOperator string

const (
	OpEqual          ConditionOperator = "EQ"
	OpNotEqual       ConditionOperator = "NEQ"
	OpGreaterThan    ConditionOperator = "GT"
	OpGreaterOrEqual ConditionOperator = "GTE"
	OpLessThan       ConditionOperator = "LT"
	OpLessOrEqual    ConditionOperator = "LTE"
)

// PolicyCondition is one field/operator/value predicate. All conditions of a
// policy must evaluate true against the context for the policy to match.
type PolicyCondition struct {
	ConditionID string            `json:"conditionID"` // Primary key (UUID)
	PolicyID    string            `json:"policyID"`
	Field       string            `json:"field"` // Context attribute, e.g. "amount", "currency"
	Operator    ConditionOperator `json:"operator"`
	Value       string            `json:"value"` // Typed at evaluation time
}

// PolicyStage is one quorum-gated step of a policy's workflow. Stages run in
// stage-number order; a request completes only after all stages reach quorum.
type PolicyStage struct {
	StageID                 string   `json:"stageID"` // Primary key (UUID)
	PolicyID                string   `json:"policyID"`
	StageNumber             int      `json:"stageNumber"` // 1-based
	MinApprovals            int      `json:"minApprovals"`
	AllowedRoles            []string `json:"allowedRoles"`
	AllowedActorIDs         []string `json:"allowedActorIDs"` // When set, authorizes by explicit actor list
	ExcludeMaker            bool     `json:"excludeMaker"`
	ExcludePreviousApprover bool     `json:"excludePreviousApprover"`
}

// ApprovalPolicy describes when a multi-stage workflow applies and what its
// stages require. Highest priority ACTIVE policy wins at evaluation time.
type ApprovalPolicy struct {
	PolicyID     string            `json:"policyID"` // Primary key (UUID)
	Name         string            `json:"name"`
	ApprovalType ApprovalType      `json:"approvalType"` // Exact type or wildcard
	Priority     int               `json:"priority"`     // Higher wins
	State        PolicyState       `json:"state"`
	ValidFrom    time.Time         `json:"validFrom"`
	ValidUntil   *time.Time        `json:"validUntil,omitempty"` // Nil = open-ended
	Stages       []PolicyStage     `json:"stages"`
	Conditions   []PolicyCondition `json:"conditions"`
	AuditFields
}

// InEffect reports whether the policy is ACTIVE and its validity window covers now.
func (p ApprovalPolicy) InEffect(now time.Time) bool {
	if p.State != PolicyActive {
		return false
	}
	if now.Before(p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	return true
}

// StageByNumber returns the stage with the given number, or nil.
func (p ApprovalPolicy) StageByNumber(n int) *PolicyStage {
	for i := range p.Stages {
		if p.Stages[i].StageNumber == n {
			return &p.Stages[i]
		}
	}
	return nil
}

// DelegationState is the lifecycle state of a delegation.
type DelegationState string

const (
	DelegationActive  DelegationState = "ACTIVE"
	DelegationRevoked DelegationState = "REVOKED"
)

// Delegation lets a delegate stand in for the delegator's role-based
// authorization during a validity window, optionally scoped to one approval type.
type Delegation struct {
	DelegationID  string          `json:"delegationID"` // Primary key (UUID)
	DelegatorID   string          `json:"delegatorID"`
	DelegatorRole string          `json:"delegatorRole"` // Role the delegate inherits
	DelegateID    string          `json:"delegateID"`
	ApprovalType  *ApprovalType   `json:"approvalType,omitempty"` // Nil = all types
	State         DelegationState `json:"state"`
	ValidFrom     time.Time       `json:"validFrom"`
	ValidUntil    time.Time       `json:"validUntil"`
	AuditFields
}

// Covers reports whether the delegation grants the delegator's role for the
// given approval type at the given instant.
func (d Delegation) Covers(approvalType ApprovalType, now time.Time) bool {
	if d.State != DelegationActive {
		return false
	}
	if now.Before(d.ValidFrom) || now.After(d.ValidUntil) {
		return false
	}
	return d.ApprovalType == nil || *d.ApprovalType == approvalType
}
