package services_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sandpesa/coreledger/internal/core/domain"
	"github.com/sandpesa/coreledger/internal/core/services"
	"github.com/sandpesa/coreledger/internal/dto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReversalSideEffect_PostsReversalWithDerivedKey(t *testing.T) {
	posting := new(MockPostingService)
	handler := services.NewReversalSideEffect(posting)

	request := domain.ApprovalRequest{
		RequestID:     uuid.NewString(),
		ApprovalType:  domain.ApprovalReversal,
		MakerID:       "maker-1",
		CorrelationID: "corr-1",
		State:         domain.RequestApproved,
		Payload:       json.RawMessage(`{"domainKey":"wallet:w-1","originalJournalID":"j-1"}`),
	}

	posting.On("Reverse", mock.Anything, "wallet:w-1", mock.MatchedBy(func(cmd dto.ReverseCommand) bool {
		return cmd.OriginalJournalID == "j-1" &&
			cmd.IdempotencyKey == "approval:"+request.RequestID &&
			cmd.ActorID == "maker-1"
	})).Return(&dto.JournalResult{JournalID: uuid.NewString()}, nil).Once()

	err := handler.OnApprove(context.Background(), request)

	require.NoError(t, err)
	posting.AssertExpectations(t)
}

func TestReversalSideEffect_RejectIsNoOp(t *testing.T) {
	posting := new(MockPostingService)
	handler := services.NewReversalSideEffect(posting)

	err := handler.OnReject(context.Background(), domain.ApprovalRequest{RequestID: uuid.NewString()})

	require.NoError(t, err)
	posting.AssertNotCalled(t, "Reverse", mock.Anything, mock.Anything, mock.Anything)
}

func TestOverdraftGrantSideEffect_SetsLimit(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := services.NewOverdraftGrantSideEffect(accountRepo)

	accountID := uuid.NewString()
	payload, _ := json.Marshal(services.OverdraftGrantPayload{AccountID: accountID, Limit: decimal.NewFromInt(5000)})
	request := domain.ApprovalRequest{
		RequestID:    uuid.NewString(),
		ApprovalType: domain.ApprovalOverdraftGrant,
		MakerID:      "maker-1",
		Payload:      payload,
	}

	accountRepo.On("SetOverdraftLimit", mock.Anything, accountID, mock.MatchedBy(func(limit decimal.Decimal) bool {
		return limit.Equal(decimal.NewFromInt(5000))
	}), "maker-1", mock.Anything).Return(nil).Once()

	err := handler.OnApprove(context.Background(), request)

	require.NoError(t, err)
	accountRepo.AssertExpectations(t)
}

func TestOverdraftGrantSideEffect_NegativeLimitRejected(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := services.NewOverdraftGrantSideEffect(accountRepo)

	payload, _ := json.Marshal(services.OverdraftGrantPayload{AccountID: uuid.NewString(), Limit: decimal.NewFromInt(-1)})
	err := handler.OnApprove(context.Background(), domain.ApprovalRequest{RequestID: uuid.NewString(), Payload: payload})

	assert.Error(t, err)
	accountRepo.AssertNotCalled(t, "SetOverdraftLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
