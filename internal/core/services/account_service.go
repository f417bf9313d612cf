package services

import (
	"context"
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
	"github.com/shopspring/decimal"
)

// AccountService manages ledger accounts. Accounts are created on first use
// against their natural key and never deleted.
type AccountService struct {
	accountRepo portsrepo.AccountRepository
	currencySvc portssvc.CurrencySvcFacade
}

// NewAccountService creates a new AccountService.
func NewAccountService(accountRepo portsrepo.AccountRepository, currencySvc portssvc.CurrencySvcFacade) *AccountService {
	return &AccountService{accountRepo: accountRepo, currencySvc: currencySvc}
}

// GetOrCreateAccount resolves the account identified by the natural key,
// creating it on first use. A concurrent first use loses the insert race and
// reads the winner's row.
func (s *AccountService) GetOrCreateAccount(ctx context.Context, req dto.GetOrCreateAccountRequest, actorID string) (*domain.Account, error) {
	existing, err := s.accountRepo.FindAccountByNaturalKey(ctx, req.OwnerType, req.OwnerID, req.AccountType, req.CurrencyCode)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("resolving account: %w", err)
	}

	if _, err := s.currencySvc.GetCurrency(ctx, req.CurrencyCode); err != nil {
		return nil, fmt.Errorf("validating currency %s: %w", req.CurrencyCode, err)
	}

	now := time.Now().UTC()
	account := domain.Account{
		AccountID:      uuid.NewString(),
		OwnerType:      req.OwnerType,
		OwnerID:        req.OwnerID,
		AccountType:    req.AccountType,
		CurrencyCode:   req.CurrencyCode,
		IsActive:       true,
		OverdraftLimit: decimal.Zero,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actorID,
			LastUpdatedAt: now,
			LastUpdatedBy: actorID,
		},
	}

	if err := s.accountRepo.SaveAccount(ctx, account); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return s.accountRepo.FindAccountByNaturalKey(ctx, req.OwnerType, req.OwnerID, req.AccountType, req.CurrencyCode)
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Account created",
		slog.String("account_id", account.AccountID),
		slog.String("owner_type", string(account.OwnerType)),
		slog.String("account_type", string(account.AccountType)),
		slog.String("currency", account.CurrencyCode),
	)
	return &account, nil
}

// GetAccountByID returns one account.
func (s *AccountService) GetAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accountRepo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", accountID, err)
	}
	return account, nil
}

// GetAccountsByIDs returns the accounts found for the given ids, keyed by id.
func (s *AccountService) GetAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	accounts, err := s.accountRepo.FindAccountsByIDs(ctx, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}
	return accounts, nil
}
