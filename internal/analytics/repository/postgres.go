package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"ai-dev-platform/analytics/internal/analytics/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an analytics repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindState returns the ingestion state for pipeline, or nil if never run.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) FindState(ctx context.Context, pipeline string) (*domain.IngestionState, error) {
	s := &domain.IngestionState{}
	err := r.db.QueryRowContext(ctx, `
		SELECT pipeline, last_processed_at, metadata, updated_at
		FROM analytics_ingestion_state
		WHERE pipeline = $1`,
		pipeline).Scan(&s.Pipeline, &s.LastProcessedAt, &s.Metadata, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// CreateState inserts the initial cursor row for a pipeline.
func (r *PostgresRepository) CreateState(ctx context.Context, s *domain.IngestionState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analytics_ingestion_state (pipeline, last_processed_at, metadata, updated_at)
		VALUES ($1, $2, $3, now())`,
		s.Pipeline, s.LastProcessedAt, nullJSON(s.Metadata))
	return err
}

// UpdateState advances the cursor. A nil metadata leaves the stored metadata unchanged.
func (r *PostgresRepository) UpdateState(ctx context.Context, pipeline string, lastProcessedAt time.Time, metadata []byte) error {
	var err error
	if metadata == nil {
		_, err = r.db.ExecContext(ctx, `
			UPDATE analytics_ingestion_state
			SET last_processed_at = $2, updated_at = now()
			WHERE pipeline = $1`,
			pipeline, lastProcessedAt)
	} else {
		_, err = r.db.ExecContext(ctx, `
			UPDATE analytics_ingestion_state
			SET last_processed_at = $2, metadata = $3, updated_at = now()
			WHERE pipeline = $1`,
			pipeline, lastProcessedAt, json.RawMessage(metadata))
	}
	return err
}

// RecordQualityScore upserts one observation keyed by (agent_stage, occurred_at).
func (r *PostgresRepository) RecordQualityScore(ctx context.Context, o *domain.QualityScoreObservation) error {
	drivers, err := json.Marshal(o.Drivers)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO quality_score_observations (agent_stage, score, drivers, occurred_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_stage, occurred_at)
		DO UPDATE SET score = EXCLUDED.score, drivers = EXCLUDED.drivers`,
		o.AgentStage, o.Score, json.RawMessage(drivers), o.OccurredAt)
	return err
}

// RecordAgentPerformance upserts one metric keyed by (agent_stage, window_start, window_end).
func (r *PostgresRepository) RecordAgentPerformance(ctx context.Context, m *domain.AgentPerformanceMetric) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO agent_performance_metrics
			(agent_stage, window_start, window_end, tasks_processed, avg_latency_ms,
			 success_rate, fallback_rate, human_hand_off_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_stage, window_start, window_end)
		DO UPDATE SET tasks_processed = EXCLUDED.tasks_processed,
			avg_latency_ms = EXCLUDED.avg_latency_ms,
			success_rate = EXCLUDED.success_rate,
			fallback_rate = EXCLUDED.fallback_rate,
			human_hand_off_rate = EXCLUDED.human_hand_off_rate`,
		m.AgentStage, m.WindowStart, m.WindowEnd, m.TasksProcessed, m.AvgLatencyMs,
		m.SuccessRate, m.FallbackRate, m.HumanHandOffRate)
	return err
}

// RecordRepositoryAnalytics upserts one record keyed by (repository, window_start, window_end).
func (r *PostgresRepository) RecordRepositoryAnalytics(ctx context.Context, a *domain.RepositoryAnalytics) error {
	hotspots, err := json.Marshal(a.RefactorHotspots)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO repository_analytics
			(repository, branch, window_start, window_end, commit_velocity,
			 refactor_hotspots, coverage_drift)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (repository, window_start, window_end)
		DO UPDATE SET branch = EXCLUDED.branch,
			commit_velocity = EXCLUDED.commit_velocity,
			refactor_hotspots = EXCLUDED.refactor_hotspots,
			coverage_drift = EXCLUDED.coverage_drift`,
		a.Repository, nullString(a.Branch), a.WindowStart, a.WindowEnd,
		a.CommitVelocity, json.RawMessage(hotspots), a.CoverageDrift)
	return err
}

// RecordUserEngagement upserts the single record keyed by (window_start, window_end).
func (r *PostgresRepository) RecordUserEngagement(ctx context.Context, m *domain.UserEngagementMetric) error {
	usage, err := json.Marshal(m.FeatureUsage)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_engagement_metrics
			(window_start, window_end, active_users, collaboration_sessions,
			 avg_session_duration_sec, feature_usage, retention_cohorts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (window_start, window_end)
		DO UPDATE SET active_users = EXCLUDED.active_users,
			collaboration_sessions = EXCLUDED.collaboration_sessions,
			avg_session_duration_sec = EXCLUDED.avg_session_duration_sec,
			feature_usage = EXCLUDED.feature_usage,
			retention_cohorts = EXCLUDED.retention_cohorts`,
		m.WindowStart, m.WindowEnd, m.ActiveUsers, m.CollaborationSessions,
		m.AvgSessionDurationSec, json.RawMessage(usage), nullJSON(m.RetentionCohorts))
	return err
}

// RecordAnalyticsAnomaly appends one anomaly record.
func (r *PostgresRepository) RecordAnalyticsAnomaly(ctx context.Context, a *domain.AnalyticsAnomaly) error {
	metadata := a.Metadata
	if metadata == nil {
		metadata = []byte("{}")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analytics_anomalies (source, severity, description, occurred_at, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		a.Source, a.Severity, a.Description, a.OccurredAt, json.RawMessage(metadata))
	return err
}

// ListAgentPerformance returns metrics with window_start in [from, to), ordered by window_start.
func (r *PostgresRepository) ListAgentPerformance(ctx context.Context, from, to time.Time) ([]*domain.AgentPerformanceMetric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT agent_stage, window_start, window_end, tasks_processed, avg_latency_ms,
		       success_rate, fallback_rate, human_hand_off_rate
		FROM agent_performance_metrics
		WHERE window_start >= $1 AND window_start < $2
		ORDER BY window_start ASC`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AgentPerformanceMetric
	for rows.Next() {
		m := &domain.AgentPerformanceMetric{}
		if err := rows.Scan(&m.AgentStage, &m.WindowStart, &m.WindowEnd, &m.TasksProcessed,
			&m.AvgLatencyMs, &m.SuccessRate, &m.FallbackRate, &m.HumanHandOffRate); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListQualityScores returns observations with occurred_at in [from, to), ordered by occurred_at.
func (r *PostgresRepository) ListQualityScores(ctx context.Context, from, to time.Time) ([]*domain.QualityScoreObservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT agent_stage, score, drivers, occurred_at
		FROM quality_score_observations
		WHERE occurred_at >= $1 AND occurred_at < $2
		ORDER BY occurred_at ASC`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.QualityScoreObservation
	for rows.Next() {
		o := &domain.QualityScoreObservation{}
		var drivers []byte
		if err := rows.Scan(&o.AgentStage, &o.Score, &drivers, &o.OccurredAt); err != nil {
			return nil, err
		}
		if len(drivers) > 0 {
			if err := json.Unmarshal(drivers, &o.Drivers); err != nil {
				return nil, err
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return json.RawMessage(b)
}
