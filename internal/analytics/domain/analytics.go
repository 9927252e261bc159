// Package domain holds the derived analytical records produced by the
// ingestion pipelines and the per-pipeline cursor state.
package domain

import "time"

// Anomaly severities, ordered by escalation. Warning is the default; specific
// trigger rules escalate to Error or Critical.
const (
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// IngestionState is the per-pipeline progress cursor. One row per pipeline
// name, created lazily on first run and mutated only after a window fully
// succeeds, never deleted.
type IngestionState struct {
	Pipeline        string
	LastProcessedAt time.Time
	Metadata        []byte // JSONB, nil if unset
	UpdatedAt       time.Time
}

// QualityScoreObservation is a per-stage quality score for one window.
type QualityScoreObservation struct {
	AgentStage string
	Score      float64 // clamped to [0,100]
	Drivers    map[string]float64
	OccurredAt time.Time
}

// AgentPerformanceMetric aggregates task outcomes for one stage over one window.
type AgentPerformanceMetric struct {
	AgentStage       string
	WindowStart      time.Time
	WindowEnd        time.Time
	TasksProcessed   int64
	AvgLatencyMs     float64
	SuccessRate      float64
	FallbackRate     float64
	HumanHandOffRate float64
}

// RepositoryAnalytics aggregates commit and coverage activity for one
// repository over one window.
type RepositoryAnalytics struct {
	Repository       string
	Branch           string // empty if not attributable to a single branch
	WindowStart      time.Time
	WindowEnd        time.Time
	CommitVelocity   float64
	RefactorHotspots map[string]int64
	CoverageDrift    float64
}

// UserEngagementMetric aggregates platform-wide engagement for one window.
// Exactly one record exists per window, even with zero activity.
type UserEngagementMetric struct {
	WindowStart           time.Time
	WindowEnd             time.Time
	ActiveUsers           int64
	CollaborationSessions int64
	AvgSessionDurationSec float64
	FeatureUsage          map[string]int64
	RetentionCohorts      []byte // JSONB, nil if not computed
}

// AnalyticsAnomaly records a statistical regression detected for a stage.
type AnalyticsAnomaly struct {
	Source      string
	Severity    string
	Description string
	OccurredAt  time.Time
	Metadata    []byte // JSONB snapshot of baseline and current stats
}
