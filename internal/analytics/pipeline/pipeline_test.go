package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"ai-dev-platform/analytics/internal/analytics/domain"
	"ai-dev-platform/analytics/internal/config"
	"ai-dev-platform/analytics/internal/logging"
	"ai-dev-platform/analytics/internal/sharedstate"
	telemetrydomain "ai-dev-platform/analytics/internal/telemetry/domain"
)

var windowEnd = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// memoryEvents is an in-memory telemetry event repository filtering by type
// and occurred_at, like the real query does.
type memoryEvents struct {
	events []*telemetrydomain.Event
	err    error
}

func (m *memoryEvents) ListByTypes(_ context.Context, eventTypes []string, from, to time.Time) ([]*telemetrydomain.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	want := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		want[t] = true
	}
	var out []*telemetrydomain.Event
	for _, e := range m.events {
		if want[e.EventType] && !e.OccurredAt.Before(from) && e.OccurredAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryEvents) Save(_ context.Context, e *telemetrydomain.Event) error {
	m.events = append(m.events, e)
	return nil
}

// memoryRecords captures derived records and serves them back to the anomaly
// pipeline's list queries.
type memoryRecords struct {
	quality    []*domain.QualityScoreObservation
	perf       []*domain.AgentPerformanceMetric
	repos      []*domain.RepositoryAnalytics
	engagement []*domain.UserEngagementMetric
	anomalies  []*domain.AnalyticsAnomaly
	recordErr  error
}

func (m *memoryRecords) RecordQualityScore(_ context.Context, o *domain.QualityScoreObservation) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.quality = append(m.quality, o)
	return nil
}

func (m *memoryRecords) RecordAgentPerformance(_ context.Context, p *domain.AgentPerformanceMetric) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.perf = append(m.perf, p)
	return nil
}

func (m *memoryRecords) RecordRepositoryAnalytics(_ context.Context, a *domain.RepositoryAnalytics) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.repos = append(m.repos, a)
	return nil
}

func (m *memoryRecords) RecordUserEngagement(_ context.Context, e *domain.UserEngagementMetric) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.engagement = append(m.engagement, e)
	return nil
}

func (m *memoryRecords) RecordAnalyticsAnomaly(_ context.Context, a *domain.AnalyticsAnomaly) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.anomalies = append(m.anomalies, a)
	return nil
}

func (m *memoryRecords) ListAgentPerformance(_ context.Context, from, to time.Time) ([]*domain.AgentPerformanceMetric, error) {
	var out []*domain.AgentPerformanceMetric
	for _, p := range m.perf {
		if !p.WindowStart.Before(from) && p.WindowStart.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRecords) ListQualityScores(_ context.Context, from, to time.Time) ([]*domain.QualityScoreObservation, error) {
	var out []*domain.QualityScoreObservation
	for _, o := range m.quality {
		if !o.OccurredAt.Before(from) && o.OccurredAt.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		IngestionIntervalMs:         60000,
		IngestionWindowMinutes:      15,
		QualityBaseIntercept:        0.35,
		QualityWeightSuccess:        1.6,
		QualityWeightFailure:        -1.2,
		QualityWeightLatency:        0.8,
		QualityWeightFallback:       0.9,
		QualityWeightHandOff:        0.7,
		QualityWeightRetry:          0.5,
		QualityLatencyBaselineMs:    2500,
		QualityConfidentTaskCount:   5,
		AnomalyMinSamples:           3,
		AnomalyStdDeviations:        2.0,
		AnomalyCriticalSuccessRate:  0.5,
		AnomalyWarningLatencyFactor: 1.5,
	}
}

func testContext(t *testing.T, events *memoryEvents, records *memoryRecords) *Context {
	t.Helper()
	return &Context{
		Window: Window{
			Start: windowEnd.Add(-15 * time.Minute),
			End:   windowEnd,
			State: &domain.IngestionState{Pipeline: "test", LastProcessedAt: windowEnd.Add(-15 * time.Minute)},
		},
		Events:  events,
		Records: records,
		Config:  testConfig(),
		Logger:  logging.Nop{},
		Tracer:  tracenoop.NewTracerProvider().Tracer("test"),
		Shared:  sharedstate.NewMemoryStore(),
	}
}

var nextEventID int64

// event builds a telemetry event inside the test window with a JSON payload.
func event(t *testing.T, eventType string, offset time.Duration, payload map[string]any) *telemetrydomain.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	nextEventID++
	return &telemetrydomain.Event{
		ID:         nextEventID,
		EventType:  eventType,
		Payload:    raw,
		OccurredAt: windowEnd.Add(-15 * time.Minute).Add(offset),
	}
}

func containsWarning(warnings []string, want string) bool {
	for _, w := range warnings {
		if w == want {
			return true
		}
	}
	return false
}
