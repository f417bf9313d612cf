package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
	"github.com/sandpesa/coreledger/internal/middleware"
	"github.com/shopspring/decimal"
)

// CurrencyService validates and manages the supported currency set.
type CurrencyService struct {
	currencyRepo portsrepo.CurrencyRepository
}

// NewCurrencyService creates a new CurrencyService.
func NewCurrencyService(currencyRepo portsrepo.CurrencyRepository) *CurrencyService {
	return &CurrencyService{currencyRepo: currencyRepo}
}

// GetCurrency returns one supported currency.
func (s *CurrencyService) GetCurrency(ctx context.Context, code string) (*domain.Currency, error) {
	currency, err := s.currencyRepo.FindCurrencyByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("loading currency %s: %w", code, err)
	}
	return currency, nil
}

// ListCurrencies returns every supported currency.
func (s *CurrencyService) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	currencies, err := s.currencyRepo.ListCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing currencies: %w", err)
	}
	return currencies, nil
}

// CreateCurrency registers a new supported currency.
func (s *CurrencyService) CreateCurrency(ctx context.Context, currency domain.Currency, actorID string) (*domain.Currency, error) {
	if len(currency.CurrencyCode) != 3 {
		return nil, fmt.Errorf("currency code must be 3 characters: %w", apperrors.ErrValidation)
	}
	if currency.Precision < 0 || currency.Precision > 8 {
		return nil, fmt.Errorf("currency precision must be between 0 and 8: %w", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	currency.CreatedAt = now
	currency.CreatedBy = actorID
	currency.LastUpdatedAt = now
	currency.LastUpdatedBy = actorID

	if err := s.currencyRepo.SaveCurrency(ctx, currency); err != nil {
		return nil, fmt.Errorf("saving currency %s: %w", currency.CurrencyCode, err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Currency created", slog.String("currency_code", currency.CurrencyCode))
	return &currency, nil
}

// ValidateAmount checks the currency is supported and the amount carries no
// more fraction digits than the currency allows.
func (s *CurrencyService) ValidateAmount(ctx context.Context, code string, amount string) error {
	currency, err := s.currencyRepo.FindCurrencyByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("currency %s is not supported: %w", code, err)
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("amount %q is not a valid decimal: %w", amount, apperrors.ErrValidation)
	}
	if int(-value.Exponent()) > currency.Precision {
		return fmt.Errorf("amount %s exceeds %d fraction digits of %s: %w", amount, currency.Precision, code, apperrors.ErrValidation)
	}
	return nil
}
