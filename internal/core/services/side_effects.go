package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
	portssvc "github.com/sandpesa/coreledger/internal/core/ports/services"
	"github.com/sandpesa/coreledger/internal/dto"
	"github.com/shopspring/decimal"
)

// Side effect handlers bridge approved requests into the ledger. Each handler
// derives its posting idempotency key from the request id, so re-running a
// handler after a crash replays instead of double-posting.

// ReversalSideEffect executes an approved journal reversal.
type ReversalSideEffect struct {
	posting portssvc.PostingSvcFacade
}

// NewReversalSideEffect creates the handler for JOURNAL_REVERSAL requests.
func NewReversalSideEffect(posting portssvc.PostingSvcFacade) *ReversalSideEffect {
	return &ReversalSideEffect{posting: posting}
}

// ReversalPayload is the payload shape of a JOURNAL_REVERSAL request.
type ReversalPayload struct {
	DomainKey         string `json:"domainKey"`
	OriginalJournalID string `json:"originalJournalID"`
	Description       string `json:"description"`
}

func (h *ReversalSideEffect) OnApprove(ctx context.Context, request domain.ApprovalRequest) error {
	var payload ReversalPayload
	if err := json.Unmarshal(request.Payload, &payload); err != nil {
		return fmt.Errorf("decoding reversal payload: %w", err)
	}
	if payload.DomainKey == "" || payload.OriginalJournalID == "" {
		return fmt.Errorf("reversal payload requires domainKey and originalJournalID: %w", apperrors.ErrValidation)
	}

	_, err := h.posting.Reverse(ctx, payload.DomainKey, dto.ReverseCommand{
		OriginalJournalID: payload.OriginalJournalID,
		IdempotencyKey:    "approval:" + request.RequestID,
		CorrelationID:     request.CorrelationID,
		Description:       payload.Description,
		ActorID:           request.MakerID,
	})
	return err
}

func (h *ReversalSideEffect) OnReject(ctx context.Context, request domain.ApprovalRequest) error {
	return nil
}

func (h *ReversalSideEffect) AllowedCheckerRoles() []string {
	return []string{"SUPERVISOR", "FINANCE_ADMIN"}
}

// AdjustmentSideEffect executes an approved manual adjustment posting.
type AdjustmentSideEffect struct {
	posting portssvc.PostingSvcFacade
}

// NewAdjustmentSideEffect creates the handler for MANUAL_ADJUSTMENT requests.
func NewAdjustmentSideEffect(posting portssvc.PostingSvcFacade) *AdjustmentSideEffect {
	return &AdjustmentSideEffect{posting: posting}
}

// AdjustmentPayload is the payload shape of a MANUAL_ADJUSTMENT request. The
// entries must balance like any posting command.
type AdjustmentPayload struct {
	DomainKey    string          `json:"domainKey"`
	CurrencyCode string          `json:"currency"`
	Entries      []dto.PostEntry `json:"entries"`
	Description  string          `json:"description"`
}

func (h *AdjustmentSideEffect) OnApprove(ctx context.Context, request domain.ApprovalRequest) error {
	var payload AdjustmentPayload
	if err := json.Unmarshal(request.Payload, &payload); err != nil {
		return fmt.Errorf("decoding adjustment payload: %w", err)
	}
	if payload.DomainKey == "" {
		return fmt.Errorf("adjustment payload requires domainKey: %w", apperrors.ErrValidation)
	}

	_, err := h.posting.Post(ctx, payload.DomainKey, dto.PostCommand{
		IdempotencyKey:  "approval:" + request.RequestID,
		CorrelationID:   request.CorrelationID,
		TransactionType: domain.TxnAdjustment,
		CurrencyCode:    payload.CurrencyCode,
		Entries:         payload.Entries,
		Description:     payload.Description,
		ActorID:         request.MakerID,
	})
	return err
}

func (h *AdjustmentSideEffect) OnReject(ctx context.Context, request domain.ApprovalRequest) error {
	return nil
}

func (h *AdjustmentSideEffect) AllowedCheckerRoles() []string {
	return []string{"FINANCE_ADMIN"}
}

// OverdraftGrantSideEffect activates or resizes an account's overdraft
// facility once the grant is approved.
type OverdraftGrantSideEffect struct {
	accountRepo portsrepo.AccountRepository
}

// NewOverdraftGrantSideEffect creates the handler for OVERDRAFT_GRANT requests.
func NewOverdraftGrantSideEffect(accountRepo portsrepo.AccountRepository) *OverdraftGrantSideEffect {
	return &OverdraftGrantSideEffect{accountRepo: accountRepo}
}

// OverdraftGrantPayload is the payload shape of an OVERDRAFT_GRANT request.
type OverdraftGrantPayload struct {
	AccountID string          `json:"accountID"`
	Limit     decimal.Decimal `json:"limit"`
}

func (h *OverdraftGrantSideEffect) OnApprove(ctx context.Context, request domain.ApprovalRequest) error {
	var payload OverdraftGrantPayload
	if err := json.Unmarshal(request.Payload, &payload); err != nil {
		return fmt.Errorf("decoding overdraft grant payload: %w", err)
	}
	if payload.AccountID == "" || payload.Limit.IsNegative() {
		return fmt.Errorf("overdraft grant requires accountID and a non-negative limit: %w", apperrors.ErrValidation)
	}
	return h.accountRepo.SetOverdraftLimit(ctx, payload.AccountID, payload.Limit, request.MakerID, time.Now().UTC())
}

func (h *OverdraftGrantSideEffect) OnReject(ctx context.Context, request domain.ApprovalRequest) error {
	return nil
}

func (h *OverdraftGrantSideEffect) AllowedCheckerRoles() []string {
	return []string{"RISK_ADMIN", "FINANCE_ADMIN"}
}

// LargeWithdrawalSideEffect posts a withdrawal that was held for approval
// because it crossed a policy threshold.
type LargeWithdrawalSideEffect struct {
	posting portssvc.PostingSvcFacade
}

// NewLargeWithdrawalSideEffect creates the handler for LARGE_WITHDRAWAL requests.
func NewLargeWithdrawalSideEffect(posting portssvc.PostingSvcFacade) *LargeWithdrawalSideEffect {
	return &LargeWithdrawalSideEffect{posting: posting}
}

// LargeWithdrawalPayload is the payload shape of a LARGE_WITHDRAWAL request.
type LargeWithdrawalPayload struct {
	DomainKey    string          `json:"domainKey"`
	CurrencyCode string          `json:"currency"`
	Entries      []dto.PostEntry `json:"entries"`
	Description  string          `json:"description"`
}

func (h *LargeWithdrawalSideEffect) OnApprove(ctx context.Context, request domain.ApprovalRequest) error {
	var payload LargeWithdrawalPayload
	if err := json.Unmarshal(request.Payload, &payload); err != nil {
		return fmt.Errorf("decoding withdrawal payload: %w", err)
	}
	if payload.DomainKey == "" {
		return fmt.Errorf("withdrawal payload requires domainKey: %w", apperrors.ErrValidation)
	}

	_, err := h.posting.Post(ctx, payload.DomainKey, dto.PostCommand{
		IdempotencyKey:  "approval:" + request.RequestID,
		CorrelationID:   request.CorrelationID,
		TransactionType: domain.TxnWithdrawal,
		CurrencyCode:    payload.CurrencyCode,
		Entries:         payload.Entries,
		Description:     payload.Description,
		ActorID:         request.MakerID,
	})
	return err
}

func (h *LargeWithdrawalSideEffect) OnReject(ctx context.Context, request domain.ApprovalRequest) error {
	return nil
}

func (h *LargeWithdrawalSideEffect) AllowedCheckerRoles() []string {
	return []string{"SUPERVISOR"}
}

// DefaultSideEffectHandlers wires the standard handler registry.
func DefaultSideEffectHandlers(posting portssvc.PostingSvcFacade, accountRepo portsrepo.AccountRepository) map[domain.ApprovalType]portssvc.SideEffectHandler {
	return map[domain.ApprovalType]portssvc.SideEffectHandler{
		domain.ApprovalReversal:        NewReversalSideEffect(posting),
		domain.ApprovalAdjustment:      NewAdjustmentSideEffect(posting),
		domain.ApprovalOverdraftGrant:  NewOverdraftGrantSideEffect(accountRepo),
		domain.ApprovalLargeWithdrawal: NewLargeWithdrawalSideEffect(posting),
	}
}
