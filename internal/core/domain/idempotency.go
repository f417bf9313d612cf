package domain

import "time"

// IdempotencyScope namespaces idempotency keys per subsystem.
type IdempotencyScope string

const (
	ScopePosting  IdempotencyScope = "posting"
	ScopeDecision IdempotencyScope = "approval:decision"
)

// IdempotencyState is the lifecycle state of an idempotency record.
type IdempotencyState string

const (
	IdemInProgress IdempotencyState = "IN_PROGRESS"
	IdemFinalized  IdempotencyState = "FINALIZED"
)

// IdempotencyRecord pins the outcome of one logical operation to its
// (scope, key) so that retries replay the stored result instead of
// re-executing. A record with a matching key but different payload hash is a
// conflict, never a silent accept.
type IdempotencyRecord struct {
	Scope       IdempotencyScope `json:"scope"`
	Key         string           `json:"key"`
	PayloadHash string           `json:"payloadHash"`
	State       IdempotencyState `json:"state"`
	Result      []byte           `json:"result,omitempty"` // Final result payload, JSON
	CreatedAt   time.Time        `json:"createdAt"`
	FinalizedAt *time.Time       `json:"finalizedAt,omitempty"`
}

// Stale reports whether an in-progress record is old enough to be considered
// abandoned (the original attempt died before finalizing) and may be reclaimed.
func (r IdempotencyRecord) Stale(now time.Time, ttl time.Duration) bool {
	return r.State == IdemInProgress && now.Sub(r.CreatedAt) > ttl
}
