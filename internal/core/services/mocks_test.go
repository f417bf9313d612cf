package services_test

import (
	"context"
	"time"

	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
	portssvc "github.com/sandpesa/coreledger/internal/core/ports/services"
	"github.com/sandpesa/coreledger/internal/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// --- Mock JournalRepository ---

type MockJournalRepository struct {
	mock.Mock
}

var _ portsrepo.JournalRepository = (*MockJournalRepository)(nil)

func (m *MockJournalRepository) SavePosting(ctx context.Context, journal domain.Journal, lines []domain.Line, balanceDeltas map[string]decimal.Decimal, idem domain.IdempotencyRecord) error {
	args := m.Called(ctx, journal, lines, balanceDeltas, idem)
	return args.Error(0)
}

func (m *MockJournalRepository) FindJournalByID(ctx context.Context, journalID string) (*domain.Journal, error) {
	args := m.Called(ctx, journalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Journal), args.Error(1)
}

func (m *MockJournalRepository) FindLinesByJournalID(ctx context.Context, journalID string) ([]domain.Line, error) {
	args := m.Called(ctx, journalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Line), args.Error(1)
}

func (m *MockJournalRepository) ListJournalsByDomainKey(ctx context.Context, domainKey string, limit int, nextToken *string) ([]domain.Journal, *string, error) {
	args := m.Called(ctx, domainKey, limit, nextToken)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	var returnedToken *string
	if args.Get(1) != nil {
		tokenVal := args.Get(1).(string)
		returnedToken = &tokenVal
	}
	return args.Get(0).([]domain.Journal), returnedToken, args.Error(2)
}

// --- Mock AccountRepository ---

type MockAccountRepository struct {
	mock.Mock
}

var _ portsrepo.AccountRepository = (*MockAccountRepository)(nil)

func (m *MockAccountRepository) SaveAccount(ctx context.Context, account domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) FindAccountByNaturalKey(ctx context.Context, ownerType domain.OwnerType, ownerID string, accountType domain.AccountType, currencyCode string) (*domain.Account, error) {
	args := m.Called(ctx, ownerType, ownerID, accountType, currencyCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	args := m.Called(ctx, accountIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Account), args.Error(1)
}

func (m *MockAccountRepository) SetOverdraftLimit(ctx context.Context, accountID string, limit decimal.Decimal, updatedBy string, now time.Time) error {
	args := m.Called(ctx, accountID, limit, updatedBy, now)
	return args.Error(0)
}

// --- Mock BalanceRepository ---

type MockBalanceRepository struct {
	mock.Mock
}

var _ portsrepo.BalanceRepository = (*MockBalanceRepository)(nil)

func (m *MockBalanceRepository) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Balance), args.Error(1)
}

func (m *MockBalanceRepository) GetBalances(ctx context.Context, accountIDs []string) (map[string]domain.Balance, error) {
	args := m.Called(ctx, accountIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Balance), args.Error(1)
}

// --- Mock IdempotencyRepository ---

type MockIdempotencyRepository struct {
	mock.Mock
}

var _ portsrepo.IdempotencyRepository = (*MockIdempotencyRepository)(nil)

func (m *MockIdempotencyRepository) Get(ctx context.Context, scope domain.IdempotencyScope, key string) (*domain.IdempotencyRecord, error) {
	args := m.Called(ctx, scope, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IdempotencyRecord), args.Error(1)
}

func (m *MockIdempotencyRepository) Start(ctx context.Context, record domain.IdempotencyRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockIdempotencyRepository) Reclaim(ctx context.Context, scope domain.IdempotencyScope, key string, now time.Time) error {
	args := m.Called(ctx, scope, key, now)
	return args.Error(0)
}

func (m *MockIdempotencyRepository) Finalize(ctx context.Context, scope domain.IdempotencyScope, key string, result []byte, now time.Time) error {
	args := m.Called(ctx, scope, key, result, now)
	return args.Error(0)
}

// --- Mock CurrencyRepository ---

type MockCurrencyRepository struct {
	mock.Mock
}

var _ portsrepo.CurrencyRepository = (*MockCurrencyRepository)(nil)

func (m *MockCurrencyRepository) SaveCurrency(ctx context.Context, currency domain.Currency) error {
	args := m.Called(ctx, currency)
	return args.Error(0)
}

func (m *MockCurrencyRepository) FindCurrencyByCode(ctx context.Context, code string) (*domain.Currency, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Currency), args.Error(1)
}

func (m *MockCurrencyRepository) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Currency), args.Error(1)
}

// --- Mock PolicyRepository ---

type MockPolicyRepository struct {
	mock.Mock
}

var _ portsrepo.PolicyRepository = (*MockPolicyRepository)(nil)

func (m *MockPolicyRepository) SavePolicy(ctx context.Context, policy domain.ApprovalPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockPolicyRepository) FindPolicyByID(ctx context.Context, policyID string) (*domain.ApprovalPolicy, error) {
	args := m.Called(ctx, policyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalPolicy), args.Error(1)
}

func (m *MockPolicyRepository) ListPoliciesForType(ctx context.Context, approvalType domain.ApprovalType) ([]domain.ApprovalPolicy, error) {
	args := m.Called(ctx, approvalType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ApprovalPolicy), args.Error(1)
}

func (m *MockPolicyRepository) ListPolicies(ctx context.Context) ([]domain.ApprovalPolicy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ApprovalPolicy), args.Error(1)
}

func (m *MockPolicyRepository) UpdatePolicyState(ctx context.Context, policyID string, state domain.PolicyState, updatedBy string, now time.Time) error {
	args := m.Called(ctx, policyID, state, updatedBy, now)
	return args.Error(0)
}

// --- Mock ApprovalRepository ---

type MockApprovalRepository struct {
	mock.Mock
}

var _ portsrepo.ApprovalRepository = (*MockApprovalRepository)(nil)

func (m *MockApprovalRepository) SaveRequest(ctx context.Context, request domain.ApprovalRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockApprovalRepository) FindRequestByID(ctx context.Context, requestID string) (*domain.ApprovalRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalRequest), args.Error(1)
}

func (m *MockApprovalRepository) SaveDecisionAndProgress(ctx context.Context, decision domain.StageDecision, request domain.ApprovalRequest) error {
	args := m.Called(ctx, decision, request)
	return args.Error(0)
}

func (m *MockApprovalRepository) FindDecisionsByRequestID(ctx context.Context, requestID string) ([]domain.StageDecision, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StageDecision), args.Error(1)
}

func (m *MockApprovalRepository) ListRequests(ctx context.Context, params dto.ListRequestsParams) ([]domain.ApprovalRequest, *string, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	var returnedToken *string
	if args.Get(1) != nil {
		tokenVal := args.Get(1).(string)
		returnedToken = &tokenVal
	}
	return args.Get(0).([]domain.ApprovalRequest), returnedToken, args.Error(2)
}

// --- Mock DelegationRepository ---

type MockDelegationRepository struct {
	mock.Mock
}

var _ portsrepo.DelegationRepository = (*MockDelegationRepository)(nil)

func (m *MockDelegationRepository) SaveDelegation(ctx context.Context, delegation domain.Delegation) error {
	args := m.Called(ctx, delegation)
	return args.Error(0)
}

func (m *MockDelegationRepository) RevokeDelegation(ctx context.Context, delegationID string, updatedBy string, now time.Time) error {
	args := m.Called(ctx, delegationID, updatedBy, now)
	return args.Error(0)
}

func (m *MockDelegationRepository) FindDelegationsForDelegate(ctx context.Context, delegateID string) ([]domain.Delegation, error) {
	args := m.Called(ctx, delegateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Delegation), args.Error(1)
}

// --- Mock EventRepository ---

type MockEventRepository struct {
	mock.Mock
}

var _ portsrepo.EventRepository = (*MockEventRepository)(nil)

func (m *MockEventRepository) Append(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// --- Mock CurrencySvcFacade ---

type MockCurrencyService struct {
	mock.Mock
}

var _ portssvc.CurrencySvcFacade = (*MockCurrencyService)(nil)

func (m *MockCurrencyService) GetCurrency(ctx context.Context, code string) (*domain.Currency, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Currency), args.Error(1)
}

func (m *MockCurrencyService) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Currency), args.Error(1)
}

func (m *MockCurrencyService) CreateCurrency(ctx context.Context, currency domain.Currency, actorID string) (*domain.Currency, error) {
	args := m.Called(ctx, currency, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Currency), args.Error(1)
}

func (m *MockCurrencyService) ValidateAmount(ctx context.Context, code string, amount string) error {
	args := m.Called(ctx, code, amount)
	return args.Error(0)
}

// --- Mock EventPublisher ---

type MockEventPublisher struct {
	mock.Mock
}

var _ portssvc.EventPublisher = (*MockEventPublisher)(nil)

func (m *MockEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// --- Mock PolicySvcFacade ---

type MockPolicyService struct {
	mock.Mock
}

var _ portssvc.PolicySvcFacade = (*MockPolicyService)(nil)

func (m *MockPolicyService) CreatePolicy(ctx context.Context, req dto.CreatePolicyRequest, actorID string) (*domain.ApprovalPolicy, error) {
	args := m.Called(ctx, req, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalPolicy), args.Error(1)
}

func (m *MockPolicyService) ActivatePolicy(ctx context.Context, policyID string, actorID string) error {
	args := m.Called(ctx, policyID, actorID)
	return args.Error(0)
}

func (m *MockPolicyService) ListPolicies(ctx context.Context) ([]domain.ApprovalPolicy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ApprovalPolicy), args.Error(1)
}

func (m *MockPolicyService) Evaluate(ctx context.Context, approvalType domain.ApprovalType, evalCtx map[string]string) (*domain.ApprovalPolicy, error) {
	args := m.Called(ctx, approvalType, evalCtx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalPolicy), args.Error(1)
}

func (m *MockPolicyService) CreateDelegation(ctx context.Context, req dto.CreateDelegationRequest, actorID string) (*domain.Delegation, error) {
	args := m.Called(ctx, req, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Delegation), args.Error(1)
}

func (m *MockPolicyService) RevokeDelegation(ctx context.Context, delegationID string, actorID string) error {
	args := m.Called(ctx, delegationID, actorID)
	return args.Error(0)
}

// --- Mock PostingSvcFacade ---

type MockPostingService struct {
	mock.Mock
}

var _ portssvc.PostingSvcFacade = (*MockPostingService)(nil)

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

// --- Mock SideEffectHandler ---

type MockSideEffectHandler struct {
	mock.Mock
	checkerRoles []string
}

var _ portssvc.SideEffectHandler = (*MockSideEffectHandler)(nil)

func (m *MockSideEffectHandler) OnApprove(ctx context.Context, request domain.ApprovalRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockSideEffectHandler) OnReject(ctx context.Context, request domain.ApprovalRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockSideEffectHandler) AllowedCheckerRoles() []string {
	return m.checkerRoles
}
