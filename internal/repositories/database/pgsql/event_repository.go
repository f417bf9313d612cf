package pgsql

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sandpesa/coreledger/internal/apperrors"
	"github.com/sandpesa/coreledger/internal/core/domain"
	portsrepo "github.com/sandpesa/coreledger/internal/core/ports/repositories"
)

// PgxEventRepository appends to the domain_events sink table. Rows are
// drained by a relay; this process only ever inserts.
type PgxEventRepository struct {
	BaseRepository
}

func newPgxEventRepository(pool *pgxpool.Pool) portsrepo.EventRepository {
	return &PgxEventRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.EventRepository = (*PgxEventRepository)(nil)

// Append inserts one domain event.
func (r *PgxEventRepository) Append(ctx context.Context, event domain.Event) error {
	query := `
		INSERT INTO domain_events (event_id, name, entity_id, correlation_id, causation_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := r.Pool.Exec(ctx, query,
		event.EventID,
		event.Name,
		event.EntityID,
		event.CorrelationID,
		event.CausationID,
		event.Payload,
		event.CreatedAt,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to insert domain event "+event.EventID, err)
	}
	return nil
}
