package repository

import (
	"context"
	"time"

	"ai-dev-platform/analytics/internal/telemetry/domain"
)

// Repository defines read access to raw telemetry events.
type Repository interface {
	// ListByTypes returns events whose type is in eventTypes and whose
	// occurred_at falls in the half-open interval [from, to), ordered by
	// occurred_at ascending.
	ListByTypes(ctx context.Context, eventTypes []string, from, to time.Time) ([]*domain.Event, error)
	// Save persists one event. Used by the seed binary and tests; the
	// production producers write through their own ingestion path.
	Save(ctx context.Context, e *domain.Event) error
}
