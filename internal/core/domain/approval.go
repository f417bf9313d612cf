package domain

import "encoding/json"

// ApprovalType names the gated operation a request wants authorized.
type ApprovalType string

const (
	ApprovalReversal        ApprovalType = "JOURNAL_REVERSAL"
	ApprovalAdjustment      ApprovalType = "MANUAL_ADJUSTMENT"
	ApprovalLargeWithdrawal ApprovalType = "LARGE_WITHDRAWAL"
	ApprovalOverdraftGrant  ApprovalType = "OVERDRAFT_GRANT"
)

// RequestState is the top-level state of an approval request.
// APPROVED and REJECTED are terminal.
type RequestState string

const (
	RequestPending  RequestState = "PENDING"
	RequestApproved RequestState = "APPROVED"
	RequestRejected RequestState = "REJECTED"
)

// WorkflowState tracks multi-stage progress within a PENDING request.
type WorkflowState string

const (
	StagePending      WorkflowState = "STAGE_PENDING"
	AllStagesComplete WorkflowState = "ALL_STAGES_COMPLETE"
)

// Decision is a checker's verdict on one stage.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ApprovalRequest is one maker-initiated action awaiting checker authorization.
// The payload is an opaque blob interpreted only by the side-effect handler.
type ApprovalRequest struct {
	RequestID     string          `json:"requestID"` // Primary key (UUID)
	ApprovalType  ApprovalType    `json:"approvalType"`
	Payload       json.RawMessage `json:"payload"`
	MakerID       string          `json:"makerID"`
	CheckerID     *string         `json:"checkerID,omitempty"` // Final decider, set on terminal transition
	State         RequestState    `json:"state"`
	PolicyID      *string         `json:"policyID,omitempty"` // Nil in legacy single-stage mode
	CurrentStage  int             `json:"currentStage"`
	TotalStages   int             `json:"totalStages"`
	WorkflowState WorkflowState   `json:"workflowState"`
	CorrelationID string          `json:"correlationID"`
	AuditFields
}

// Terminal reports whether no further decisions are permitted.
func (r ApprovalRequest) Terminal() bool {
	return r.State == RequestApproved || r.State == RequestRejected
}

// StageDecision is one decider's recorded verdict for one stage of a request.
// At most one decision per (request, stage, decider) is permitted.
type StageDecision struct {
	DecisionID  string   `json:"decisionID"` // Primary key (UUID)
	RequestID   string   `json:"requestID"`
	StageNumber int      `json:"stageNumber"`
	DeciderID   string   `json:"deciderID"`
	DeciderRole string   `json:"deciderRole"` // Role held at decision time
	Decision    Decision `json:"decision"`
	Reason      string   `json:"reason"`
	AuditFields
}
