package repository

import (
	"context"
	"time"

	"ai-dev-platform/analytics/internal/analytics/domain"
)

// StateRepository defines persistence for per-pipeline ingestion cursors.
type StateRepository interface {
	// FindState returns the ingestion state for pipeline, or nil if never run.
	// It returns an error only for database failures, not for missing rows.
	FindState(ctx context.Context, pipeline string) (*domain.IngestionState, error)
	// CreateState inserts the initial cursor row for a pipeline.
	CreateState(ctx context.Context, s *domain.IngestionState) error
	// UpdateState advances the cursor and replaces metadata (nil leaves metadata unchanged).
	UpdateState(ctx context.Context, pipeline string, lastProcessedAt time.Time, metadata []byte) error
}

// RecordRepository defines persistence for derived metric records. All writes
// are upsert-safe on their natural keys so re-processing an identical window
// is idempotent.
type RecordRepository interface {
	RecordQualityScore(ctx context.Context, o *domain.QualityScoreObservation) error
	RecordAgentPerformance(ctx context.Context, m *domain.AgentPerformanceMetric) error
	RecordRepositoryAnalytics(ctx context.Context, a *domain.RepositoryAnalytics) error
	RecordUserEngagement(ctx context.Context, m *domain.UserEngagementMetric) error
	RecordAnalyticsAnomaly(ctx context.Context, a *domain.AnalyticsAnomaly) error

	// ListAgentPerformance returns performance metrics whose window_start falls
	// in [from, to). Used by the anomaly pipeline to build baselines.
	ListAgentPerformance(ctx context.Context, from, to time.Time) ([]*domain.AgentPerformanceMetric, error)
	// ListQualityScores returns quality observations with occurred_at in [from, to).
	ListQualityScores(ctx context.Context, from, to time.Time) ([]*domain.QualityScoreObservation, error)
}

// Repository is the full analytics persistence surface consumed by the orchestrator and pipelines.
type Repository interface {
	StateRepository
	RecordRepository
}
