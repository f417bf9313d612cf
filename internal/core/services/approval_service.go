package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
	portssvc "github.com/sandpesa/coreledger/internal/core/ports/services"
	"github.com/sandpesa/coreledger/internal/dto"
	"github.com/sandpesa/coreledger/internal/middleware"
	"github.com/sandpesa/coreledger/internal/utils/hashing"
)

const defaultRequestPageLimit = 50

// ApprovalService drives maker-checker workflows. The governing policy is
// snapshotted onto the request at submit time; later policy edits never
// affect in-flight requests. Decisions on one request run on that request's
// serializer lane.
type ApprovalService struct {
	approvalRepo   portsrepo.ApprovalRepository
	policySvc      portssvc.PolicySvcFacade
	delegationRepo portsrepo.DelegationRepository
	policyRepo     portsrepo.PolicyRepository
	idemRepo       portsrepo.IdempotencyRepository
	publisher      portssvc.EventPublisher
	handlers       map[domain.ApprovalType]portssvc.SideEffectHandler
	lanes          *KeyedSerializer
}

// NewApprovalService creates a new ApprovalService. The handler registry maps
// each supported approval type to the side effect executed on terminal
// transitions; submitting an unregistered type is rejected.
func NewApprovalService(
	approvalRepo portsrepo.ApprovalRepository,
	policySvc portssvc.PolicySvcFacade,
	delegationRepo portsrepo.DelegationRepository,
	policyRepo portsrepo.PolicyRepository,
	idemRepo portsrepo.IdempotencyRepository,
	publisher portssvc.EventPublisher,
	handlers map[domain.ApprovalType]portssvc.SideEffectHandler,
	lanes *KeyedSerializer,
) *ApprovalService {
	return &ApprovalService{
		approvalRepo:   approvalRepo,
		policySvc:      policySvc,
		delegationRepo: delegationRepo,
		policyRepo:     policyRepo,
		idemRepo:       idemRepo,
		publisher:      publisher,
		handlers:       handlers,
		lanes:          lanes,
	}
}

// Submit opens a new approval request. The policy engine is consulted once,
// here; a matching policy pins the request to its multi-stage workflow, no
// match leaves the request in legacy single-stage mode.
func (s *ApprovalService) Submit(ctx context.Context, req dto.SubmitApprovalRequest, makerID string) (*domain.ApprovalRequest, error) {
	logger := middleware.GetLoggerFromCtx(ctx).With(
		slog.String("approval_type", string(req.ApprovalType)),
		slog.String("maker_id", makerID),
	)

	if _, ok := s.handlers[req.ApprovalType]; !ok {
		return nil, fmt.Errorf("no handler registered for approval type %s: %w", req.ApprovalType, apperrors.ErrValidation)
	}

	evalCtx, err := evaluationContext(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("parsing request payload: %w", err)
	}

	policy, err := s.policySvc.Evaluate(ctx, req.ApprovalType, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("evaluating policies: %w", err)
	}

	now := time.Now().UTC()
	request := domain.ApprovalRequest{
		RequestID:     uuid.NewString(),
		ApprovalType:  req.ApprovalType,
		Payload:       req.Payload,
		MakerID:       makerID,
		State:         domain.RequestPending,
		CurrentStage:  1,
		TotalStages:   1,
		WorkflowState: domain.StagePending,
		CorrelationID: req.CorrelationID,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     makerID,
			LastUpdatedAt: now,
			LastUpdatedBy: makerID,
		},
	}
	if policy != nil {
		request.PolicyID = &policy.PolicyID
		request.TotalStages = len(policy.Stages)
	}

	if err := s.approvalRepo.SaveRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("saving approval request: %w", err)
	}

	logger.Info("Approval request submitted",
		slog.String("request_id", request.RequestID),
		slog.Int("total_stages", request.TotalStages),
	)
	s.publishRequestEvent(ctx, logger, domain.EventRequestSubmitted, request, "")
	return &request, nil
}

// evaluationContext flattens the top level of the payload into the string
// map the policy matcher evaluates conditions against. Nested values are
// ignored; policies condition on scalar attributes like amount and currency.
func evaluationContext(payload json.RawMessage) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	// Numbers stay as their raw text so large amounts keep exact precision.
	dec.UseNumber()
	var top map[string]any
	if err := dec.Decode(&top); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", apperrors.ErrValidation)
	}
	evalCtx := make(map[string]string, len(top))
	for k, v := range top {
		switch t := v.(type) {
		case string:
			evalCtx[k] = t
		case json.Number:
			evalCtx[k] = t.String()
		case bool:
			if t {
				evalCtx[k] = "true"
			} else {
				evalCtx[k] = "false"
			}
		}
	}
	return evalCtx, nil
}

// Decide applies one checker decision to a pending request, serialized per
// request id. On the terminal transition the registered side effect runs
// after the state is persisted; a handler failure is reported in the outcome
// but never rolls the decision back.
func (s *ApprovalService) Decide(ctx context.Context, requestID string, deciderID string, deciderRole string, req dto.DecideRequest) (*dto.WorkflowOutcome, error) {
	logger := middleware.GetLoggerFromCtx(ctx).With(
		slog.String("request_id", requestID),
		slog.String("decider_id", deciderID),
		slog.String("decision", string(req.Decision)),
	)

	release, err := s.lanes.Acquire(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("acquiring decision lane: %w", err)
	}
	defer release()

	if req.IdempotencyKey != "" {
		replay, err := s.replayDecision(ctx, requestID, deciderID, req)
		if err != nil {
			return nil, err
		}
		if replay != nil {
			logger.Info("Replaying finalized decision result")
			return replay, nil
		}
	}

	request, err := s.approvalRepo.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("loading approval request %s: %w", requestID, err)
	}
	if request.Terminal() {
		return nil, fmt.Errorf("request %s is %s: %w", requestID, request.State, apperrors.ErrNotPending)
	}

	handler, ok := s.handlers[request.ApprovalType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for approval type %s: %w", request.ApprovalType, apperrors.ErrStructuralPolicy)
	}

	decisions, err := s.approvalRepo.FindDecisionsByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("loading decisions for request %s: %w", requestID, err)
	}

	stage, err := s.currentStage(ctx, *request, handler)
	if err != nil {
		return nil, err
	}

	if err := s.checkEligibility(ctx, logger, *request, stage, decisions, deciderID, deciderRole); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	decision := domain.StageDecision{
		DecisionID:  uuid.NewString(),
		RequestID:   requestID,
		StageNumber: request.CurrentStage,
		DeciderID:   deciderID,
		DeciderRole: deciderRole,
		Decision:    req.Decision,
		Reason:      req.Reason,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     deciderID,
			LastUpdatedAt: now,
			LastUpdatedBy: deciderID,
		},
	}

	updated := s.progress(*request, stage, decisions, decision, now)

	if err := s.approvalRepo.SaveDecisionAndProgress(ctx, decision, updated); err != nil {
		return nil, fmt.Errorf("saving decision: %w", err)
	}

	logger.Info("Stage decision recorded",
		slog.Int("stage", decision.StageNumber),
		slog.String("request_state", string(updated.State)),
	)
	s.publishRequestEvent(ctx, logger, domain.EventStageDecided, updated, decision.DecisionID)

	outcome := &dto.WorkflowOutcome{
		RequestID:     updated.RequestID,
		State:         updated.State,
		WorkflowState: updated.WorkflowState,
		CurrentStage:  updated.CurrentStage,
		TotalStages:   updated.TotalStages,
	}

	if updated.Terminal() {
		eventName := domain.EventRequestApproved
		handlerErr := error(nil)
		if updated.State == domain.RequestApproved {
			handlerErr = handler.OnApprove(ctx, updated)
		} else {
			eventName = domain.EventRequestRejected
			handlerErr = handler.OnReject(ctx, updated)
		}
		if handlerErr != nil {
			// The decision stands; the side effect is retried out of band.
			logger.Error("Side effect handler failed after terminal transition",
				slog.String("request_state", string(updated.State)),
				slog.String("error", handlerErr.Error()),
			)
			outcome.HandlerError = handlerErr.Error()
		}
		s.publishRequestEvent(ctx, logger, eventName, updated, decision.DecisionID)
	}

	if req.IdempotencyKey != "" {
		s.finalizeDecision(ctx, logger, requestID, deciderID, req, outcome)
	}
	return outcome, nil
}

// currentStage resolves the stage requirements governing the request's
// current stage. Legacy requests without a policy run a synthetic single
// stage built from the handler's fixed checker roles.
func (s *ApprovalService) currentStage(ctx context.Context, request domain.ApprovalRequest, handler portssvc.SideEffectHandler) (domain.PolicyStage, error) {
	if request.PolicyID == nil {
		return domain.PolicyStage{
			StageNumber:  1,
			MinApprovals: 1,
			AllowedRoles: handler.AllowedCheckerRoles(),
			ExcludeMaker: true,
		}, nil
	}

	policy, err := s.policyRepo.FindPolicyByID(ctx, *request.PolicyID)
	if err != nil {
		return domain.PolicyStage{}, fmt.Errorf("loading policy %s: %w", *request.PolicyID, err)
	}
	stage := policy.StageByNumber(request.CurrentStage)
	if stage == nil {
		return domain.PolicyStage{}, fmt.Errorf("policy %s has no stage %d: %w", policy.PolicyID, request.CurrentStage, apperrors.ErrStructuralPolicy)
	}
	return *stage, nil
}

// checkEligibility runs the ordered eligibility checks for the decider
// against the current stage. The first failing check determines the error.
func (s *ApprovalService) checkEligibility(ctx context.Context, logger *slog.Logger, request domain.ApprovalRequest, stage domain.PolicyStage, decisions []domain.StageDecision, deciderID string, deciderRole string) error {
	if stage.ExcludeMaker && deciderID == request.MakerID {
		logger.Warn("Decision rejected: maker cannot check own request")
		return fmt.Errorf("maker cannot decide on own request: %w", apperrors.ErrUnauthorized)
	}

	for _, d := range decisions {
		if d.StageNumber == request.CurrentStage && d.DeciderID == deciderID {
			return fmt.Errorf("decider %s already decided stage %d: %w", deciderID, request.CurrentStage, apperrors.ErrAlreadyDecided)
		}
	}

	if stage.ExcludePreviousApprover {
		for _, d := range decisions {
			if d.StageNumber < request.CurrentStage && d.DeciderID == deciderID && d.Decision == domain.DecisionApprove {
				return fmt.Errorf("decider %s approved an earlier stage: %w", deciderID, apperrors.ErrUnauthorized)
			}
		}
	}

	if len(stage.AllowedActorIDs) > 0 {
		for _, id := range stage.AllowedActorIDs {
			if id == deciderID {
				return nil
			}
		}
		return fmt.Errorf("decider %s is not in the stage actor list: %w", deciderID, apperrors.ErrUnauthorized)
	}

	roles, err := effectiveRoles(ctx, s.delegationRepo, deciderID, deciderRole, request.ApprovalType, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, allowed := range stage.AllowedRoles {
		if roles[allowed] {
			return nil
		}
	}
	return fmt.Errorf("decider %s holds no allowed role for stage %d: %w", deciderID, stage.StageNumber, apperrors.ErrUnauthorized)
}

// progress computes the request's next state after appending the decision.
// A rejection is immediately terminal; approvals advance once the stage
// reaches its quorum.
func (s *ApprovalService) progress(request domain.ApprovalRequest, stage domain.PolicyStage, decisions []domain.StageDecision, decision domain.StageDecision, now time.Time) domain.ApprovalRequest {
	updated := request
	updated.LastUpdatedAt = now
	updated.LastUpdatedBy = decision.DeciderID

	if decision.Decision == domain.DecisionReject {
		updated.State = domain.RequestRejected
		updated.CheckerID = &decision.DeciderID
		return updated
	}

	approvals := 1 // the decision being applied
	for _, d := range decisions {
		if d.StageNumber == request.CurrentStage && d.Decision == domain.DecisionApprove {
			approvals++
		}
	}
	if approvals < stage.MinApprovals {
		return updated
	}

	if request.CurrentStage < request.TotalStages {
		updated.CurrentStage = request.CurrentStage + 1
		return updated
	}

	updated.State = domain.RequestApproved
	updated.WorkflowState = domain.AllStagesComplete
	updated.CheckerID = &decision.DeciderID
	return updated
}

// replayDecision returns the stored outcome for a deduplicated decision
// retry, or nil when this is a fresh attempt.
func (s *ApprovalService) replayDecision(ctx context.Context, requestID string, deciderID string, req dto.DecideRequest) (*dto.WorkflowOutcome, error) {
	key := requestID + ":" + deciderID + ":" + req.IdempotencyKey
	record, err := s.idemRepo.Get(ctx, domain.ScopeDecision, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up decision idempotency record: %w", err)
	}
	if record == nil {
		return nil, nil
	}

	hash, err := hashing.ContentHash(req)
	if err != nil {
		return nil, fmt.Errorf("hashing decision payload: %w", err)
	}
	if record.PayloadHash != hash {
		return nil, fmt.Errorf("decision key %s: %w", req.IdempotencyKey, apperrors.ErrIdempotencyConflict)
	}
	if record.State != domain.IdemFinalized {
		return nil, nil
	}

	var outcome dto.WorkflowOutcome
	if err := json.Unmarshal(record.Result, &outcome); err != nil {
		return nil, fmt.Errorf("decoding stored decision result: %w", err)
	}
	return &outcome, nil
}

// finalizeDecision stores the outcome for future retries. Dedup storage is
// best effort: the decision itself is already durable.
func (s *ApprovalService) finalizeDecision(ctx context.Context, logger *slog.Logger, requestID string, deciderID string, req dto.DecideRequest, outcome *dto.WorkflowOutcome) {
	key := requestID + ":" + deciderID + ":" + req.IdempotencyKey
	hash, err := hashing.ContentHash(req)
	if err != nil {
		logger.Warn("Failed to hash decision payload for dedup", slog.String("error", err.Error()))
		return
	}
	resultJSON, err := json.Marshal(outcome)
	if err != nil {
		logger.Warn("Failed to encode decision outcome for dedup", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	record := domain.IdempotencyRecord{
		Scope:       domain.ScopeDecision,
		Key:         key,
		PayloadHash: hash,
		State:       domain.IdemInProgress,
		CreatedAt:   now,
	}
	if err := s.idemRepo.Start(ctx, record); err != nil && !errors.Is(err, apperrors.ErrDuplicate) {
		logger.Warn("Failed to start decision dedup record", slog.String("error", err.Error()))
		return
	}
	if err := s.idemRepo.Finalize(ctx, domain.ScopeDecision, key, resultJSON, now); err != nil {
		logger.Warn("Failed to finalize decision dedup record", slog.String("error", err.Error()))
	}
}

// GetRequest returns one approval request.
func (s *ApprovalService) GetRequest(ctx context.Context, requestID string) (*domain.ApprovalRequest, error) {
	request, err := s.approvalRepo.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("loading approval request %s: %w", requestID, err)
	}
	return request, nil
}

// ListRequests pages through approval requests, newest first.
func (s *ApprovalService) ListRequests(ctx context.Context, params dto.ListRequestsParams) (*dto.ListRequestsResponse, error) {
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = defaultRequestPageLimit
	}
	requests, nextToken, err := s.approvalRepo.ListRequests(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("listing approval requests: %w", err)
	}
	return &dto.ListRequestsResponse{Requests: requests, NextToken: nextToken}, nil
}

func (s *ApprovalService) publishRequestEvent(ctx context.Context, logger *slog.Logger, name string, request domain.ApprovalRequest, causationID string) {
	payload, err := json.Marshal(request)
	if err != nil {
		logger.Error("Failed to encode approval event payload", slog.String("error", err.Error()))
		return
	}
	event := domain.Event{
		EventID:       uuid.NewString(),
		Name:          name,
		EntityID:      request.RequestID,
		CorrelationID: request.CorrelationID,
		CausationID:   causationID,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish approval event", slog.String("event", name), slog.String("error", err.Error()))
	}
}
