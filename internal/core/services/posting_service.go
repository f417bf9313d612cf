package services

import (
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
	"github.com/shopspring/decimal"
)

const defaultJournalPageLimit = 50

// PostingService is the ledger posting engine. Every posting and reversal for
// a domain key runs on that key's serializer lane, so balance reads and
// writes within a key never interleave.
type PostingService struct {
	journalRepo portsrepo.JournalRepository
	accountRepo portsrepo.AccountRepository
	balanceRepo portsrepo.BalanceRepository
	idemRepo    portsrepo.IdempotencyRepository
	currencySvc portssvc.CurrencySvcFacade
	publisher   portssvc.EventPublisher
	lanes       *KeyedSerializer
	inflightTTL time.Duration
}

// NewPostingService creates a new PostingService. inflightTTL bounds how long
// an in-progress idempotency record blocks retries before it is treated as
// abandoned and reclaimed.
func NewPostingService(
	journalRepo portsrepo.JournalRepository,
	accountRepo portsrepo.AccountRepository,
	balanceRepo portsrepo.BalanceRepository,
	idemRepo portsrepo.IdempotencyRepository,
	currencySvc portssvc.CurrencySvcFacade,
	publisher portssvc.EventPublisher,
	lanes *KeyedSerializer,
	inflightTTL time.Duration,
) *PostingService {
	return &PostingService{
		journalRepo: journalRepo,
		accountRepo: accountRepo,
		balanceRepo: balanceRepo,
		idemRepo:    idemRepo,
		currencySvc: currencySvc,
		publisher:   publisher,
		lanes:       lanes,
		inflightTTL: inflightTTL,
	}
}

// postingFingerprint is the canonical shape hashed for idempotent replay
// detection. Correlation id is trace metadata, not payload, so a retry under a
// new trace still replays.
type postingFingerprint struct {
	DomainKey       string                 `json:"domainKey"`
	TransactionType domain.TransactionType `json:"transactionType"`
	CurrencyCode    string                 `json:"currencyCode"`
	Description     string                 `json:"description"`
	Entries         []fingerprintEntry     `json:"entries"`
}

type fingerprintEntry struct {
	AccountID string           `json:"accountID"`
	Side      domain.EntrySide `json:"side"`
	Amount    string           `json:"amount"`
}

func fingerprintOf(domainKey string, cmd dto.PostCommand) (string, error) {
	fp := postingFingerprint{
		DomainKey:       domainKey,
		TransactionType: cmd.TransactionType,
		CurrencyCode:    cmd.CurrencyCode,
		Description:     cmd.Description,
	}
	for _, e := range cmd.Entries {
		fp.Entries = append(fp.Entries, fingerprintEntry{
			AccountID: e.AccountID,
			Side:      e.Side,
			Amount:    e.Amount.String(),
		})
	}
	return hashing.ContentHash(fp)
}

// Post validates and persists one balanced journal. Retries with the same
// idempotency key and payload return the stored result without re-posting.
func (s *PostingService) Post(ctx context.Context, domainKey string, cmd dto.PostCommand) (*dto.JournalResult, error) {
	logger := middleware.GetLoggerFromCtx(ctx).With(
		slog.String("domain_key", domainKey),
		slog.String("idempotency_key", cmd.IdempotencyKey),
	)

	release, err := s.lanes.Acquire(ctx, domainKey)
	if err != nil {
		return nil, fmt.Errorf("acquiring posting lane: %w", err)
	}
	defer release()

	return s.postLocked(ctx, logger, domainKey, cmd, nil)
}

// Reverse posts a compensating journal for an already-posted journal: same
// lines with flipped sides, linked back via the original journal id. The
// original journal is never touched. A reversal is itself a posted journal,
// so reversing a reversal restores the original movement.
func (s *PostingService) Reverse(ctx context.Context, domainKey string, cmd dto.ReverseCommand) (*dto.JournalResult, error) {
	logger := middleware.GetLoggerFromCtx(ctx).With(
		slog.String("domain_key", domainKey),
		slog.String("original_journal_id", cmd.OriginalJournalID),
		slog.String("idempotency_key", cmd.IdempotencyKey),
	)

	release, err := s.lanes.Acquire(ctx, domainKey)
	if err != nil {
		return nil, fmt.Errorf("acquiring posting lane: %w", err)
	}
	defer release()

	original, err := s.journalRepo.FindJournalByID(ctx, cmd.OriginalJournalID)
	if err != nil {
		return nil, fmt.Errorf("loading original journal %s: %w", cmd.OriginalJournalID, err)
	}
	if original.DomainKey != domainKey {
		logger.Warn("Reversal rejected: journal belongs to another domain key", slog.String("journal_domain_key", original.DomainKey))
		return nil, fmt.Errorf("original journal belongs to another domain key: %w", apperrors.ErrValidation)
	}

	lines := original.Lines
	if len(lines) == 0 {
		lines, err = s.journalRepo.FindLinesByJournalID(ctx, cmd.OriginalJournalID)
		if err != nil {
			return nil, fmt.Errorf("loading lines of journal %s: %w", cmd.OriginalJournalID, err)
		}
	}

	description := cmd.Description
	if description == "" {
		description = "Reversal of journal " + original.JournalID
	}

	postCmd := dto.PostCommand{
		IdempotencyKey:  cmd.IdempotencyKey,
		CorrelationID:   cmd.CorrelationID,
		TransactionType: domain.TxnReversal,
		CurrencyCode:    original.CurrencyCode,
		Description:     description,
		ActorID:         cmd.ActorID,
	}
	for _, line := range lines {
		postCmd.Entries = append(postCmd.Entries, dto.PostEntry{
			AccountID:    line.AccountID,
			Side:         line.Side.Opposite(),
			Amount:       line.Amount,
			CurrencyCode: line.CurrencyCode,
			Description:  line.Description,
		})
	}

	return s.postLocked(ctx, logger, domainKey, postCmd, &original.JournalID)
}

// postLocked runs the idempotency protocol and the posting pipeline. The
// caller must hold the domain key's lane.
func (s *PostingService) postLocked(ctx context.Context, logger *slog.Logger, domainKey string, cmd dto.PostCommand, originalJournalID *string) (*dto.JournalResult, error) {
	payloadHash, err := fingerprintOf(domainKey, cmd)
	if err != nil {
		return nil, fmt.Errorf("hashing posting payload: %w", err)
	}

	idemKey := domainKey + ":" + cmd.IdempotencyKey
	now := time.Now().UTC()

	existing, err := s.idemRepo.Get(ctx, domain.ScopePosting, idemKey)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("looking up idempotency record: %w", err)
	}

	reclaim := false
	if existing != nil {
		if existing.PayloadHash != payloadHash {
			logger.Warn("Idempotency key reused with a different payload")
			return nil, fmt.Errorf("key %s: %w", cmd.IdempotencyKey, apperrors.ErrIdempotencyConflict)
		}
		switch {
		case existing.State == domain.IdemFinalized:
			var replay dto.JournalResult
			if err := json.Unmarshal(existing.Result, &replay); err != nil {
				return nil, fmt.Errorf("decoding stored posting result: %w", err)
			}
			logger.Info("Replaying finalized posting result", slog.String("journal_id", replay.JournalID))
			return &replay, nil
		case existing.Stale(now, s.inflightTTL):
			reclaim = true
		default:
			return nil, fmt.Errorf("key %s: %w", cmd.IdempotencyKey, apperrors.ErrDuplicateInFlight)
		}
	}

	// Validate before any durable write: a rejected command leaves no
	// in-progress record behind, so an identical retry gets the same
	// deterministic error instead of a duplicate-in-flight conflict.
	journal, lines, deltas, err := s.buildJournal(ctx, logger, domainKey, cmd, originalJournalID, now)
	if err != nil {
		return nil, err
	}

	if reclaim {
		logger.Warn("Reclaiming stale in-progress posting attempt")
		if err := s.idemRepo.Reclaim(ctx, domain.ScopePosting, idemKey, now); err != nil {
			return nil, fmt.Errorf("reclaiming idempotency record: %w", err)
		}
	} else if existing == nil {
		record := domain.IdempotencyRecord{
			Scope:       domain.ScopePosting,
			Key:         idemKey,
			PayloadHash: payloadHash,
			State:       domain.IdemInProgress,
			CreatedAt:   now,
		}
		if err := s.idemRepo.Start(ctx, record); err != nil {
			if errors.Is(err, apperrors.ErrDuplicate) {
				return nil, fmt.Errorf("key %s: %w", cmd.IdempotencyKey, apperrors.ErrDuplicateInFlight)
			}
			return nil, fmt.Errorf("starting idempotency record: %w", err)
		}
	}

	result := dto.JournalResult{
		JournalID:     journal.JournalID,
		JournalState:  journal.State,
		CorrelationID: cmd.CorrelationID,
		PostedAt:      now,
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding posting result: %w", err)
	}

	finalizedAt := now
	idem := domain.IdempotencyRecord{
		Scope:       domain.ScopePosting,
		Key:         idemKey,
		PayloadHash: payloadHash,
		State:       domain.IdemFinalized,
		Result:      resultJSON,
		CreatedAt:   now,
		FinalizedAt: &finalizedAt,
	}

	if err := s.journalRepo.SavePosting(ctx, journal, lines, deltas, idem); err != nil {
		return nil, fmt.Errorf("saving posting: %w", err)
	}

	logger.Info("Journal posted",
		slog.String("journal_id", journal.JournalID),
		slog.String("transaction_type", string(journal.TransactionType)),
		slog.String("amount", journal.Amount.String()),
	)

	s.publishPosted(ctx, logger, journal)
	return &result, nil
}

// buildJournal validates the command against accounts, currency rules and
// balances, and assembles the journal, its lines and the per-account balance
// deltas. It performs no writes.
func (s *PostingService) buildJournal(ctx context.Context, logger *slog.Logger, domainKey string, cmd dto.PostCommand, originalJournalID *string, now time.Time) (domain.Journal, []domain.Line, map[string]decimal.Decimal, error) {
	var none domain.Journal

	if len(cmd.Entries) < 2 {
		return none, nil, nil, fmt.Errorf("a journal requires at least two entries: %w", apperrors.ErrValidation)
	}

	debitTotal := decimal.Zero
	creditTotal := decimal.Zero
	deltas := make(map[string]decimal.Decimal)
	accountIDs := make([]string, 0, len(cmd.Entries))

	for i, entry := range cmd.Entries {
		if !entry.Amount.IsPositive() {
			return none, nil, nil, fmt.Errorf("entry %d: amount must be positive: %w", i, apperrors.ErrValidation)
		}
		if entry.CurrencyCode != cmd.CurrencyCode {
			return none, nil, nil, fmt.Errorf("entry %d: currency %s does not match journal currency %s: %w", i, entry.CurrencyCode, cmd.CurrencyCode, apperrors.ErrCrossCurrency)
		}
		if err := s.currencySvc.ValidateAmount(ctx, entry.CurrencyCode, entry.Amount.String()); err != nil {
			return none, nil, nil, fmt.Errorf("entry %d: %w", i, err)
		}

		switch entry.Side {
		case domain.Debit:
			debitTotal = debitTotal.Add(entry.Amount)
		case domain.Credit:
			creditTotal = creditTotal.Add(entry.Amount)
		default:
			return none, nil, nil, fmt.Errorf("entry %d: side must be DEBIT or CREDIT: %w", i, apperrors.ErrValidation)
		}

		if _, seen := deltas[entry.AccountID]; !seen {
			accountIDs = append(accountIDs, entry.AccountID)
		}
		signed := entry.Amount
		if entry.Side == domain.Debit {
			signed = signed.Neg()
		}
		deltas[entry.AccountID] = deltas[entry.AccountID].Add(signed)
	}

	if len(accountIDs) < 2 {
		return none, nil, nil, fmt.Errorf("a journal must touch at least two distinct accounts: %w", apperrors.ErrValidation)
	}
	if !debitTotal.Equal(creditTotal) {
		logger.Warn("Unbalanced journal rejected",
			slog.String("debit_total", debitTotal.String()),
			slog.String("credit_total", creditTotal.String()),
		)
		return none, nil, nil, fmt.Errorf("debits %s do not equal credits %s: %w", debitTotal.String(), creditTotal.String(), apperrors.ErrUnbalancedJournal)
	}

	accounts, err := s.accountRepo.FindAccountsByIDs(ctx, accountIDs)
	if err != nil {
		return none, nil, nil, fmt.Errorf("loading accounts: %w", err)
	}
	for _, id := range accountIDs {
		account, ok := accounts[id]
		if !ok {
			return none, nil, nil, apperrors.NewNotFoundError("account " + id + " not found")
		}
		if !account.IsActive {
			return none, nil, nil, fmt.Errorf("account %s is not active: %w", id, apperrors.ErrValidation)
		}
		if account.CurrencyCode != cmd.CurrencyCode {
			return none, nil, nil, fmt.Errorf("account %s is denominated in %s: %w", id, account.CurrencyCode, apperrors.ErrCrossCurrency)
		}
	}

	if err := s.checkFunds(ctx, accounts, deltas); err != nil {
		return none, nil, nil, err
	}

	journal := domain.Journal{
		JournalID:         uuid.NewString(),
		DomainKey:         domainKey,
		TransactionType:   cmd.TransactionType,
		CurrencyCode:      cmd.CurrencyCode,
		CorrelationID:     cmd.CorrelationID,
		IdempotencyKey:    cmd.IdempotencyKey,
		State:             domain.Posted,
		Description:       cmd.Description,
		Amount:            debitTotal,
		OriginalJournalID: originalJournalID,
		AuditFields: domain.AuditFields{
			CreatedAt: now,
			CreatedBy: cmd.ActorID,
		},
	}

	lines := make([]domain.Line, 0, len(cmd.Entries))
	for _, entry := range cmd.Entries {
		lines = append(lines, domain.Line{
			LineID:       uuid.NewString(),
			JournalID:    journal.JournalID,
			AccountID:    entry.AccountID,
			Side:         entry.Side,
			Amount:       entry.Amount,
			CurrencyCode: entry.CurrencyCode,
			Description:  entry.Description,
			AuditFields: domain.AuditFields{
				CreatedAt: now,
				CreatedBy: cmd.ActorID,
			},
		})
	}
	journal.Lines = lines

	return journal, lines, deltas, nil
}

// checkFunds rejects the posting when any net-debited account would fall
// below what its available balance plus overdraft facility can cover.
func (s *PostingService) checkFunds(ctx context.Context, accounts map[string]domain.Account, deltas map[string]decimal.Decimal) error {
	debited := make([]string, 0, len(deltas))
	for id, delta := range deltas {
		if delta.IsNegative() {
			debited = append(debited, id)
		}
	}
	if len(debited) == 0 {
		return nil
	}

	balances, err := s.balanceRepo.GetBalances(ctx, debited)
	if err != nil {
		return fmt.Errorf("loading balances: %w", err)
	}

	for _, id := range debited {
		account := accounts[id]
		balance := balances[id] // zero-valued for never-posted accounts
		coverage := account.OverdraftCoverage(balance.Available())
		if coverage.Add(deltas[id]).IsNegative() {
			return fmt.Errorf("account %s: coverage %s, required %s: %w", id, coverage.String(), deltas[id].Neg().String(), apperrors.ErrInsufficientFunds)
		}
	}
	return nil
}

func (s *PostingService) publishPosted(ctx context.Context, logger *slog.Logger, journal domain.Journal) {
	name := domain.EventJournalPosted
	causation := ""
	if journal.OriginalJournalID != nil {
		name = domain.EventJournalReversed
		causation = *journal.OriginalJournalID
	}

	payload, err := json.Marshal(journal)
	if err != nil {
		logger.Error("Failed to encode journal event payload", slog.String("error", err.Error()))
		return
	}

	event := domain.Event{
		EventID:       uuid.NewString(),
		Name:          name,
		EntityID:      journal.JournalID,
		CorrelationID: journal.CorrelationID,
		CausationID:   causation,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish journal event", slog.String("event", name), slog.String("error", err.Error()))
	}
}

// GetBalance returns the materialized balance of one account. It reads
// committed state and does not enter the account's posting lane.
func (s *PostingService) GetBalance(ctx context.Context, accountID string) (*dto.BalanceResponse, error) {
	if _, err := s.accountRepo.FindAccountByID(ctx, accountID); err != nil {
		return nil, fmt.Errorf("loading account %s: %w", accountID, err)
	}

	balance, err := s.balanceRepo.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Account exists but has never been posted to.
			return &dto.BalanceResponse{
				AccountID:      accountID,
				Actual:         decimal.Zero,
				Available:      decimal.Zero,
				Hold:           decimal.Zero,
				PendingCredits: decimal.Zero,
			}, nil
		}
		return nil, fmt.Errorf("loading balance of account %s: %w", accountID, err)
	}

	return &dto.BalanceResponse{
		AccountID:      balance.AccountID,
		Actual:         balance.Actual,
		Available:      balance.Available(),
		Hold:           balance.Hold,
		PendingCredits: balance.PendingCredits,
		LastJournalID:  balance.LastJournalID,
	}, nil
}

// GetJournal returns a journal with its lines.
func (s *PostingService) GetJournal(ctx context.Context, journalID string) (*domain.Journal, error) {
	journal, err := s.journalRepo.FindJournalByID(ctx, journalID)
	if err != nil {
		return nil, fmt.Errorf("loading journal %s: %w", journalID, err)
	}
	if len(journal.Lines) == 0 {
		lines, err := s.journalRepo.FindLinesByJournalID(ctx, journalID)
		if err != nil {
			return nil, fmt.Errorf("loading lines of journal %s: %w", journalID, err)
		}
		journal.Lines = lines
	}
	return journal, nil
}

// ListJournals pages through a domain key's journals, newest first.
func (s *PostingService) ListJournals(ctx context.Context, domainKey string, params dto.ListJournalsParams) (*dto.ListJournalsResponse, error) {
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = defaultJournalPageLimit
	}

	journals, nextToken, err := s.journalRepo.ListJournalsByDomainKey(ctx, domainKey, limit, params.NextToken)
	if err != nil {
		return nil, fmt.Errorf("listing journals for domain key %s: %w", domainKey, err)
	}

	return &dto.ListJournalsResponse{Journals: journals, NextToken: nextToken}, nil
}
