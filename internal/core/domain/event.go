package domain

import (
	"encoding/json"
	"time"
)

// Event is an append-only domain event emitted after state changes.
// Delivery to downstream consumers is at-least-once and best effort; event
// emission is never part of the posting consistency boundary.
type Event struct {
	EventID       string          `json:"eventID"` // Primary key (UUID)
	Name          string          `json:"name"`    // e.g. "ledger.journal.posted"
	EntityID      string          `json:"entityID"`
	CorrelationID string          `json:"correlationID"`
	CausationID   string          `json:"causationID"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Event names emitted by the two subsystems.
const (
	EventJournalPosted    = "ledger.journal.posted"
	EventJournalReversed  = "ledger.journal.reversed"
	EventRequestSubmitted = "approval.request.submitted"
	EventStageDecided     = "approval.stage.decided"
	EventRequestApproved  = "approval.request.approved"
	EventRequestRejected  = "approval.request.rejected"
)
