package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portssvc "github.com/sandpesa/coreledger/internal/core/ports/services"
	"github.com/sandpesa/coreledger/internal/dto"
	"github.com/sandpesa/coreledger/internal/handlers"
	"github.com/sandpesa/coreledger/internal/platform/config"
)

// --- Mock PostingService ---
type MockPostingService struct {
	mock.Mock
}

func (m *MockPostingService) Post(ctx context.Context, domainKey string, cmd dto.PostCommand) (*dto.JournalResult, error) {
	args := m.Called(ctx, domainKey, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.JournalResult), args.Error(1)
}

func (m *MockPostingService) Reverse(ctx context.Context, domainKey string, cmd dto.ReverseCommand) (*dto.JournalResult, error) {
	args := m.Called(ctx, domainKey, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.JournalResult), args.Error(1)
}

func (m *MockPostingService) GetBalance(ctx context.Context, accountID string) (*dto.BalanceResponse, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.BalanceResponse), args.Error(1)
}

func (m *MockPostingService) GetJournal(ctx context.Context, journalID string) (*domain.Journal, error) {
	args := m.Called(ctx, journalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Journal), args.Error(1)
}

func (m *MockPostingService) ListJournals(ctx context.Context, domainKey string, params dto.ListJournalsParams) (*dto.ListJournalsResponse, error) {
	args := m.Called(ctx, domainKey, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ListJournalsResponse), args.Error(1)
}

var _ portssvc.PostingSvcFacade = (*MockPostingService)(nil)

// --- Test Suite ---
type LedgerHandlerTestSuite struct {
	suite.Suite
	router             *gin.Engine
	mockPostingService *MockPostingService
	jwtSecret          string
}

func (suite *LedgerHandlerTestSuite) generateTestToken(actorID, role string) string {
	claims := struct {
		Role string `json:"role"`
		jwt.RegisteredClaims
	}{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "coreledger-test",
			Subject:   actorID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(suite.jwtSecret))
	if err != nil {
		suite.FailNow("Failed to sign test token", err.Error())
	}
	return signed
}

func (suite *LedgerHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.router = gin.New()
	suite.jwtSecret = "test-secret-key-that-is-long-enough"

	suite.mockPostingService = new(MockPostingService)

	cfg := &config.Config{JWTSecret: suite.jwtSecret}
	services := &portssvc.ServiceContainer{Posting: suite.mockPostingService}
	handlers.RegisterRoutes(suite.router, cfg, services)
}

func (suite *LedgerHandlerTestSuite) postBody() map[string]any {
	return map[string]any{
		"idempotencyKey":  "idem-1",
		"transactionType": "TRANSFER",
		"currencyCode":    "KES",
		"entries": []map[string]any{
			{"accountID": "acc-1", "side": "DEBIT", "amount": "100", "currencyCode": "KES"},
			{"accountID": "acc-2", "side": "CREDIT", "amount": "100", "currencyCode": "KES"},
		},
	}
}

// --- Test Cases ---

func (suite *LedgerHandlerTestSuite) TestPostJournal_Success() {
	actorID := uuid.NewString()
	domainKey := "wallet:w-1"
	expected := &dto.JournalResult{
		JournalID:     uuid.NewString(),
		JournalState:  domain.Posted,
		CorrelationID: "corr-1",
		PostedAt:      time.Now().UTC(),
	}

	suite.mockPostingService.On("Post",
		mock.Anything,
		domainKey,
		mock.MatchedBy(func(cmd dto.PostCommand) bool {
			// The handler stamps the authenticated actor onto the command.
			return cmd.ActorID == actorID && cmd.IdempotencyKey == "idem-1"
		}),
	).Return(expected, nil).Once()

	body, _ := json.Marshal(suite.postBody())
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/ledger/%s/journals", domainKey), bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+suite.generateTestToken(actorID, "TELLER"))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusCreated, w.Code)

	var result dto.JournalResult
	suite.NoError(json.Unmarshal(w.Body.Bytes(), &result))
	suite.Equal(expected.JournalID, result.JournalID)
	suite.mockPostingService.AssertExpectations(suite.T())
}

func (suite *LedgerHandlerTestSuite) TestPostJournal_MissingTokenRejected() {
	body, _ := json.Marshal(suite.postBody())
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/ledger/wallet:w-1/journals", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.mockPostingService.AssertNotCalled(suite.T(), "Post")
}

func (suite *LedgerHandlerTestSuite) TestPostJournal_UnbalancedReturns400() {
	suite.mockPostingService.On("Post", mock.Anything, "wallet:w-1", mock.Anything).
		Return(nil, fmt.Errorf("posting: %w", apperrors.ErrUnbalancedJournal)).Once()

	body, _ := json.Marshal(suite.postBody())
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/ledger/wallet:w-1/journals", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+suite.generateTestToken(uuid.NewString(), "TELLER"))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *LedgerHandlerTestSuite) TestPostJournal_InsufficientFundsReturns422() {
	suite.mockPostingService.On("Post", mock.Anything, "wallet:w-1", mock.Anything).
		Return(nil, fmt.Errorf("posting: %w", apperrors.ErrInsufficientFunds)).Once()

	body, _ := json.Marshal(suite.postBody())
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/ledger/wallet:w-1/journals", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+suite.generateTestToken(uuid.NewString(), "TELLER"))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusUnprocessableEntity, w.Code)
}

func (suite *LedgerHandlerTestSuite) TestPostJournal_DuplicateInFlightReturns409() {
	suite.mockPostingService.On("Post", mock.Anything, "wallet:w-1", mock.Anything).
		Return(nil, fmt.Errorf("posting: %w", apperrors.ErrDuplicateInFlight)).Once()

	body, _ := json.Marshal(suite.postBody())
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/ledger/wallet:w-1/journals", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+suite.generateTestToken(uuid.NewString(), "TELLER"))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *LedgerHandlerTestSuite) TestGetJournal_NotFoundReturns404() {
	journalID := uuid.NewString()
	suite.mockPostingService.On("GetJournal", mock.Anything, journalID).
		Return(nil, apperrors.NewNotFoundError("journal "+journalID+" not found")).Once()

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/journals/"+journalID, nil)
	req.Header.Set("Authorization", "Bearer "+suite.generateTestToken(uuid.NewString(), "TELLER"))

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *LedgerHandlerTestSuite) TestGetBalance_Success() {
	accountID := uuid.NewString()
	expected := &dto.BalanceResponse{
		AccountID: accountID,
		Actual:    decimal.NewFromInt(250),
		Available: decimal.NewFromInt(250),
	}
	suite.mockPostingService.On("GetBalance", mock.Anything, accountID).
		Return(expected, nil).Once()

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/accounts/"+accountID+"/balance", nil)
	req.Header.Set("Authorization", "Bearer "+suite.generateTestToken(uuid.NewString(), "TELLER"))

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusOK, w.Code)

	var balance dto.BalanceResponse
	suite.NoError(json.Unmarshal(w.Body.Bytes(), &balance))
	suite.True(expected.Actual.Equal(balance.Actual))
	suite.mockPostingService.AssertExpectations(suite.T())
}

// --- Run Test Suite ---
func TestLedgerHandler(t *testing.T) {
	suite.Run(t, new(LedgerHandlerTestSuite))
}
