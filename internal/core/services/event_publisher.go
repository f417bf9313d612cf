package services

import (
	"context"

	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
)

// StoreEventPublisher appends domain events to the database sink table. A
// relay process drains the table to downstream consumers, which keeps event
// delivery at-least-once without a broker in the posting path.
type StoreEventPublisher struct {
	eventRepo portsrepo.EventRepository
}

// NewStoreEventPublisher creates a publisher backed by the event sink table.
func NewStoreEventPublisher(eventRepo portsrepo.EventRepository) *StoreEventPublisher {
	return &StoreEventPublisher{eventRepo: eventRepo}
}

func (p *StoreEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	return p.eventRepo.Append(ctx, event)
}
