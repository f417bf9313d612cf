package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portssvc "github.com/sandpesa/coreledger/internal/core/ports/services"
	"github.com/sandpesa/coreledger/internal/core/services"
	"github.com/sandpesa/coreledger/internal/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ApprovalServiceTestSuite struct {
	suite.Suite
	approvalRepo   *MockApprovalRepository
	policySvc      *MockPolicyService
	delegationRepo *MockDelegationRepository
	policyRepo     *MockPolicyRepository
	idemRepo       *MockIdempotencyRepository
	publisher      *MockEventPublisher
	handler        *MockSideEffectHandler
	service        *services.ApprovalService
	ctx            context.Context
}

func (s *ApprovalServiceTestSuite) SetupTest() {
	s.approvalRepo = new(MockApprovalRepository)
	s.policySvc = new(MockPolicyService)
	s.delegationRepo = new(MockDelegationRepository)
	s.policyRepo = new(MockPolicyRepository)
	s.idemRepo = new(MockIdempotencyRepository)
	s.publisher = new(MockEventPublisher)
	s.handler = &MockSideEffectHandler{checkerRoles: []string{"SUPERVISOR"}}
	s.service = services.NewApprovalService(
		s.approvalRepo, s.policySvc, s.delegationRepo, s.policyRepo, s.idemRepo, s.publisher,
		map[domain.ApprovalType]portssvc.SideEffectHandler{domain.ApprovalReversal: s.handler},
		services.NewKeyedSerializer(),
	)
	s.ctx = context.Background()
	s.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
}

func (s *ApprovalServiceTestSuite) pendingRequest(policyID *string, currentStage, totalStages int) *domain.ApprovalRequest {
	return &domain.ApprovalRequest{
		RequestID:     uuid.NewString(),
		ApprovalType:  domain.ApprovalReversal,
		Payload:       json.RawMessage(`{"domainKey":"wallet:w-1","originalJournalID":"j-1"}`),
		MakerID:       "maker-1",
		State:         domain.RequestPending,
		PolicyID:      policyID,
		CurrentStage:  currentStage,
		TotalStages:   totalStages,
		WorkflowState: domain.StagePending,
	}
}

func (s *ApprovalServiceTestSuite) twoStagePolicy() *domain.ApprovalPolicy {
	return &domain.ApprovalPolicy{
		PolicyID:     uuid.NewString(),
		Name:         "high value reversals",
		ApprovalType: domain.ApprovalReversal,
		State:        domain.PolicyActive,
		ValidFrom:    time.Now().Add(-time.Hour),
		Stages: []domain.PolicyStage{
			{StageNumber: 1, MinApprovals: 2, AllowedRoles: []string{"SUPERVISOR"}, ExcludeMaker: true},
			{StageNumber: 2, MinApprovals: 1, AllowedRoles: []string{"FINANCE_ADMIN"}, ExcludeMaker: true, ExcludePreviousApprover: true},
		},
	}
}

func (s *ApprovalServiceTestSuite) TestSubmit_LegacyModeWhenNoPolicyMatches() {
	s.policySvc.On("Evaluate", mock.Anything, domain.ApprovalReversal, mock.Anything).Return(nil, nil).Once()

	var saved domain.ApprovalRequest
	s.approvalRepo.On("SaveRequest", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(domain.ApprovalRequest) }).Return(nil).Once()

	request, err := s.service.Submit(s.ctx, dto.SubmitApprovalRequest{
		ApprovalType: domain.ApprovalReversal,
		Payload:      json.RawMessage(`{"domainKey":"wallet:w-1","originalJournalID":"j-1"}`),
	}, "maker-1")

	s.Require().NoError(err)
	s.Equal(domain.RequestPending, request.State)
	s.Nil(saved.PolicyID)
	s.Equal(1, saved.TotalStages)
	s.Equal(1, saved.CurrentStage)
}

func (s *ApprovalServiceTestSuite) TestSubmit_PolicySnapshotPinsStages() {
	policy := s.twoStagePolicy()
	s.policySvc.On("Evaluate", mock.Anything, domain.ApprovalReversal, mock.MatchedBy(func(evalCtx map[string]string) bool {
		return evalCtx["domainKey"] == "wallet:w-1"
	})).Return(policy, nil).Once()

	var saved domain.ApprovalRequest
	s.approvalRepo.On("SaveRequest", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(domain.ApprovalRequest) }).Return(nil).Once()

	_, err := s.service.Submit(s.ctx, dto.SubmitApprovalRequest{
		ApprovalType: domain.ApprovalReversal,
		Payload:      json.RawMessage(`{"domainKey":"wallet:w-1","originalJournalID":"j-1"}`),
	}, "maker-1")

	s.Require().NoError(err)
	s.Require().NotNil(saved.PolicyID)
	s.Equal(policy.PolicyID, *saved.PolicyID)
	s.Equal(2, saved.TotalStages)
}

func (s *ApprovalServiceTestSuite) TestSubmit_LargeAmountKeepsExactPrecision() {
	// 90071992547409993 does not survive a float64 round trip; the policy
	// matcher must see the raw digits.
	var matched map[string]string
	s.policySvc.On("Evaluate", mock.Anything, domain.ApprovalReversal, mock.Anything).
		Run(func(args mock.Arguments) { matched = args.Get(2).(map[string]string) }).
		Return(nil, nil).Once()
	s.approvalRepo.On("SaveRequest", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := s.service.Submit(s.ctx, dto.SubmitApprovalRequest{
		ApprovalType: domain.ApprovalReversal,
		Payload:      json.RawMessage(`{"amount": 90071992547409993, "currencyCode": "KES", "urgent": true}`),
	}, "maker-1")

	s.Require().NoError(err)
	s.Equal("90071992547409993", matched["amount"])
	s.Equal("KES", matched["currencyCode"])
	s.Equal("true", matched["urgent"])
}

func (s *ApprovalServiceTestSuite) TestSubmit_UnregisteredTypeRejected() {
	_, err := s.service.Submit(s.ctx, dto.SubmitApprovalRequest{
		ApprovalType: domain.ApprovalAdjustment,
		Payload:      json.RawMessage(`{}`),
	}, "maker-1")

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrValidation)
}

func (s *ApprovalServiceTestSuite) TestDecide_MakerCannotCheckOwnRequest() {
	request := s.pendingRequest(nil, 1, 1)
	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return([]domain.StageDecision{}, nil).Once()

	_, err := s.service.Decide(s.ctx, request.RequestID, "maker-1", "SUPERVISOR", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrUnauthorized)
}

func (s *ApprovalServiceTestSuite) TestDecide_LegacyApproveIsTerminal() {
	request := s.pendingRequest(nil, 1, 1)
	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return([]domain.StageDecision{}, nil).Once()
	s.delegationRepo.On("FindDelegationsForDelegate", mock.Anything, "checker-1").Return([]domain.Delegation{}, nil).Once()

	var progressed domain.ApprovalRequest
	s.approvalRepo.On("SaveDecisionAndProgress", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { progressed = args.Get(2).(domain.ApprovalRequest) }).Return(nil).Once()
	s.handler.On("OnApprove", mock.Anything, mock.Anything).Return(nil).Once()

	outcome, err := s.service.Decide(s.ctx, request.RequestID, "checker-1", "SUPERVISOR", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().NoError(err)
	s.Equal(domain.RequestApproved, outcome.State)
	s.Empty(outcome.HandlerError)
	s.Equal(domain.AllStagesComplete, progressed.WorkflowState)
	s.Require().NotNil(progressed.CheckerID)
	s.Equal("checker-1", *progressed.CheckerID)
	s.handler.AssertExpectations(s.T())
}

func (s *ApprovalServiceTestSuite) TestDecide_QuorumHoldsStageOpen() {
	policy := s.twoStagePolicy()
	request := s.pendingRequest(&policy.PolicyID, 1, 2)

	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return([]domain.StageDecision{}, nil).Once()
	s.policyRepo.On("FindPolicyByID", mock.Anything, policy.PolicyID).Return(policy, nil).Once()
	s.delegationRepo.On("FindDelegationsForDelegate", mock.Anything, "checker-1").Return([]domain.Delegation{}, nil).Once()

	var progressed domain.ApprovalRequest
	s.approvalRepo.On("SaveDecisionAndProgress", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { progressed = args.Get(2).(domain.ApprovalRequest) }).Return(nil).Once()

	outcome, err := s.service.Decide(s.ctx, request.RequestID, "checker-1", "SUPERVISOR", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().NoError(err)
	s.Equal(domain.RequestPending, outcome.State)
	s.Equal(1, progressed.CurrentStage, "one of two required approvals keeps the stage open")
	s.handler.AssertNotCalled(s.T(), "OnApprove", mock.Anything, mock.Anything)
}

func (s *ApprovalServiceTestSuite) TestDecide_QuorumReachedAdvancesStage() {
	policy := s.twoStagePolicy()
	request := s.pendingRequest(&policy.PolicyID, 1, 2)
	prior := []domain.StageDecision{
		{DecisionID: uuid.NewString(), RequestID: request.RequestID, StageNumber: 1, DeciderID: "checker-1", Decision: domain.DecisionApprove},
	}

	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return(prior, nil).Once()
	s.policyRepo.On("FindPolicyByID", mock.Anything, policy.PolicyID).Return(policy, nil).Once()
	s.delegationRepo.On("FindDelegationsForDelegate", mock.Anything, "checker-2").Return([]domain.Delegation{}, nil).Once()

	var progressed domain.ApprovalRequest
	s.approvalRepo.On("SaveDecisionAndProgress", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { progressed = args.Get(2).(domain.ApprovalRequest) }).Return(nil).Once()

	outcome, err := s.service.Decide(s.ctx, request.RequestID, "checker-2", "SUPERVISOR", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().NoError(err)
	s.Equal(domain.RequestPending, outcome.State)
	s.Equal(2, progressed.CurrentStage)
	s.handler.AssertNotCalled(s.T(), "OnApprove", mock.Anything, mock.Anything)
}

func (s *ApprovalServiceTestSuite) TestDecide_FinalStageApprovalRunsHandler() {
	policy := s.twoStagePolicy()
	request := s.pendingRequest(&policy.PolicyID, 2, 2)
	prior := []domain.StageDecision{
		{DecisionID: uuid.NewString(), RequestID: request.RequestID, StageNumber: 1, DeciderID: "checker-1", Decision: domain.DecisionApprove},
		{DecisionID: uuid.NewString(), RequestID: request.RequestID, StageNumber: 1, DeciderID: "checker-2", Decision: domain.DecisionApprove},
	}

	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return(prior, nil).Once()
	s.policyRepo.On("FindPolicyByID", mock.Anything, policy.PolicyID).Return(policy, nil).Once()
	s.delegationRepo.On("FindDelegationsForDelegate", mock.Anything, "fin-1").Return([]domain.Delegation{}, nil).Once()
	s.approvalRepo.On("SaveDecisionAndProgress", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	s.handler.On("OnApprove", mock.Anything, mock.MatchedBy(func(r domain.ApprovalRequest) bool {
		return r.State == domain.RequestApproved
	})).Return(nil).Once()

	outcome, err := s.service.Decide(s.ctx, request.RequestID, "fin-1", "FINANCE_ADMIN", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().NoError(err)
	s.Equal(domain.RequestApproved, outcome.State)
	s.handler.AssertExpectations(s.T())
}

func (s *ApprovalServiceTestSuite) TestDecide_PreviousApproverExcludedFromLaterStage() {
	policy := s.twoStagePolicy()
	request := s.pendingRequest(&policy.PolicyID, 2, 2)
	prior := []domain.StageDecision{
		{DecisionID: uuid.NewString(), RequestID: request.RequestID, StageNumber: 1, DeciderID: "checker-1", Decision: domain.DecisionApprove},
		{DecisionID: uuid.NewString(), RequestID: request.RequestID, StageNumber: 1, DeciderID: "checker-2", Decision: domain.DecisionApprove},
	}

	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return(prior, nil).Once()
	s.policyRepo.On("FindPolicyByID", mock.Anything, policy.PolicyID).Return(policy, nil).Once()

	_, err := s.service.Decide(s.ctx, request.RequestID, "checker-1", "FINANCE_ADMIN", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrUnauthorized)
}

func (s *ApprovalServiceTestSuite) TestDecide_RejectIsImmediatelyTerminal() {
	policy := s.twoStagePolicy()
	request := s.pendingRequest(&policy.PolicyID, 1, 2)

	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return([]domain.StageDecision{}, nil).Once()
	s.policyRepo.On("FindPolicyByID", mock.Anything, policy.PolicyID).Return(policy, nil).Once()
	s.delegationRepo.On("FindDelegationsForDelegate", mock.Anything, "checker-1").Return([]domain.Delegation{}, nil).Once()
	s.approvalRepo.On("SaveDecisionAndProgress", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	s.handler.On("OnReject", mock.Anything, mock.Anything).Return(nil).Once()

	outcome, err := s.service.Decide(s.ctx, request.RequestID, "checker-1", "SUPERVISOR", dto.DecideRequest{Decision: domain.DecisionReject, Reason: "wrong amount"})

	s.Require().NoError(err)
	s.Equal(domain.RequestRejected, outcome.State)
	s.handler.AssertExpectations(s.T())
}

func (s *ApprovalServiceTestSuite) TestDecide_TerminalRequestRejectsFurtherDecisions() {
	request := s.pendingRequest(nil, 1, 1)
	request.State = domain.RequestApproved
	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()

	_, err := s.service.Decide(s.ctx, request.RequestID, "checker-1", "SUPERVISOR", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrNotPending)
	s.approvalRepo.AssertNotCalled(s.T(), "SaveDecisionAndProgress", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ApprovalServiceTestSuite) TestDecide_DoubleDecisionSameStageRejected() {
	request := s.pendingRequest(nil, 1, 1)
	prior := []domain.StageDecision{
		{DecisionID: uuid.NewString(), RequestID: request.RequestID, StageNumber: 1, DeciderID: "checker-1", Decision: domain.DecisionApprove},
	}
	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return(prior, nil).Once()

	_, err := s.service.Decide(s.ctx, request.RequestID, "checker-1", "SUPERVISOR", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrAlreadyDecided)
}

func (s *ApprovalServiceTestSuite) TestDecide_DelegationWidensRoles() {
	request := s.pendingRequest(nil, 1, 1)
	delegations := []domain.Delegation{{
		DelegationID:  uuid.NewString(),
		DelegatorID:   "boss-1",
		DelegatorRole: "SUPERVISOR",
		DelegateID:    "junior-1",
		State:         domain.DelegationActive,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidUntil:    time.Now().Add(time.Hour),
	}}

	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return([]domain.StageDecision{}, nil).Once()
	s.delegationRepo.On("FindDelegationsForDelegate", mock.Anything, "junior-1").Return(delegations, nil).Once()
	s.approvalRepo.On("SaveDecisionAndProgress", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	s.handler.On("OnApprove", mock.Anything, mock.Anything).Return(nil).Once()

	// junior-1 holds no allowed role of their own; the delegation carries it.
	outcome, err := s.service.Decide(s.ctx, request.RequestID, "junior-1", "TELLER", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().NoError(err)
	s.Equal(domain.RequestApproved, outcome.State)
}

func (s *ApprovalServiceTestSuite) TestDecide_ExpiredDelegationDoesNotAuthorize() {
	request := s.pendingRequest(nil, 1, 1)
	delegations := []domain.Delegation{{
		DelegationID:  uuid.NewString(),
		DelegatorID:   "boss-1",
		DelegatorRole: "SUPERVISOR",
		DelegateID:    "junior-1",
		State:         domain.DelegationActive,
		ValidFrom:     time.Now().Add(-2 * time.Hour),
		ValidUntil:    time.Now().Add(-time.Hour),
	}}

	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return([]domain.StageDecision{}, nil).Once()
	s.delegationRepo.On("FindDelegationsForDelegate", mock.Anything, "junior-1").Return(delegations, nil).Once()

	_, err := s.service.Decide(s.ctx, request.RequestID, "junior-1", "TELLER", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrUnauthorized)
}

func (s *ApprovalServiceTestSuite) TestDecide_HandlerFailureDoesNotRollBack() {
	request := s.pendingRequest(nil, 1, 1)

	s.approvalRepo.On("FindRequestByID", mock.Anything, request.RequestID).Return(request, nil).Once()
	s.approvalRepo.On("FindDecisionsByRequestID", mock.Anything, request.RequestID).Return([]domain.StageDecision{}, nil).Once()
	s.delegationRepo.On("FindDelegationsForDelegate", mock.Anything, "checker-1").Return([]domain.Delegation{}, nil).Once()
	s.approvalRepo.On("SaveDecisionAndProgress", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	s.handler.On("OnApprove", mock.Anything, mock.Anything).Return(errors.New("ledger unavailable")).Once()

	outcome, err := s.service.Decide(s.ctx, request.RequestID, "checker-1", "SUPERVISOR", dto.DecideRequest{Decision: domain.DecisionApprove})

	s.Require().NoError(err)
	s.Equal(domain.RequestApproved, outcome.State)
	s.Equal("ledger unavailable", outcome.HandlerError)
}

func TestApprovalServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ApprovalServiceTestSuite))
}
