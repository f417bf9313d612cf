package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrConflict indicates the operation conflicts with the current state of the resource.
var ErrConflict = errors.New("conflict with current state")

// ErrInternal indicates an unexpected internal failure.
var ErrInternal = errors.New("internal error")

// Posting engine errors.
var (
	// ErrIdempotencyConflict means the idempotency key was seen before with a
	// different payload hash. Never retried silently.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")

	// ErrDuplicateInFlight means an identical request is currently being
	// processed. Callers should retry with the same key after a short backoff.
	ErrDuplicateInFlight = errors.New("identical request already in flight")

	// ErrUnbalancedJournal means the debit and credit sides of a command do
	// not sum to the same amount.
	ErrUnbalancedJournal = errors.New("journal entries do not balance")

	// ErrInsufficientFunds means a debited account lacks available balance
	// and has no overdraft facility covering the shortfall.
	ErrInsufficientFunds = errors.New("insufficient available balance")

	// ErrCrossCurrency means an entry's currency differs from the journal currency.
	ErrCrossCurrency = errors.New("entry currency does not match journal currency")
)

// Approval engine errors.
var (
	// ErrUnauthorized means the decider fails an eligibility check for the stage.
	ErrUnauthorized = errors.New("decider is not authorized for this stage")

	// ErrAlreadyDecided means the decider already recorded a decision for this stage.
	ErrAlreadyDecided = errors.New("decision already recorded for this stage")

	// ErrNotPending means the approval request has reached a terminal state.
	ErrNotPending = errors.New("approval request is not pending")

	// ErrStructuralPolicy means policy or stage rows the workflow depends on
	// are missing. This is data corruption, not user error.
	ErrStructuralPolicy = errors.New("approval policy data is structurally invalid")
)

// AppError wraps an underlying error with an HTTP-ish status code and a
// message suitable for logs. Repositories use it for infrastructure failures.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewNotFoundError creates a 404 AppError that matches ErrNotFound via errors.Is.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: 404, Message: message, Err: ErrNotFound}
}

// StatusCode maps an error to an HTTP status code for the handlers.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrIdempotencyConflict),
		errors.Is(err, ErrAlreadyDecided),
		errors.Is(err, ErrNotPending),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrDuplicateInFlight):
		return 409
	case errors.Is(err, ErrUnauthorized):
		return 403
	case errors.Is(err, ErrUnbalancedJournal),
		errors.Is(err, ErrCrossCurrency),
		errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrInsufficientFunds):
		return 422
	default:
		return 500
	}
}
