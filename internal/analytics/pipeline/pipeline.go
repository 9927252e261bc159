// Package pipeline defines the aggregation pipelines that convert raw
// telemetry events into derived analytical records, one time window at a time.
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	analyticsrepo "ai-dev-platform/analytics/internal/analytics/repository"
	"ai-dev-platform/analytics/internal/analytics/domain"
	"ai-dev-platform/analytics/internal/config"
	"ai-dev-platform/analytics/internal/logging"
	"ai-dev-platform/analytics/internal/sharedstate"
	"ai-dev-platform/analytics/internal/telemetry"
	telemetryrepo "ai-dev-platform/analytics/internal/telemetry/repository"
)

// WarnNoEvents is the warning emitted when a window holds no telemetry events.
const WarnNoEvents = "No telemetry events detected in window"

// Window is the half-open interval [Start, End) a pipeline run aggregates
// over, plus a snapshot of the cursor state it was derived from.
type Window struct {
	Start time.Time
	End   time.Time
	State *domain.IngestionState
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Result is the uniform envelope every pipeline run returns.
type Result struct {
	RecordsProcessed       int
	TelemetryEventsScanned int
	DurationMs             int64
	Warnings               []string
	Metadata               map[string]any
	// NextCursor is where the next window starts. Must be a valid timestamp;
	// the orchestrator treats a zero or regressing cursor as fatal for the tick.
	NextCursor time.Time
}

// Context supplies a pipeline run with its window and shared dependencies.
// Alerts may be nil when no alerting sink is configured.
type Context struct {
	Window  Window
	Events  telemetryrepo.Repository
	Records analyticsrepo.RecordRepository
	Config  *config.Config
	Logger  logging.Logger
	Tracer  trace.Tracer
	Shared  sharedstate.Store
	Alerts  telemetry.AlertEmitter
}

// Pipeline is a named, stateless aggregation strategy. Run must be a pure
// function of the window and the underlying events: re-running against the
// identical window and events yields identical derived values.
type Pipeline interface {
	Name() string
	Run(ctx context.Context, pc *Context) (*Result, error)
}

// startSpan opens the per-invocation span for a pipeline run.
func startSpan(ctx context.Context, pc *Context, name string) (context.Context, trace.Span) {
	return pc.Tracer.Start(ctx, "analytics.pipeline."+name+".run",
		trace.WithAttributes(
			attribute.String("pipeline", name),
			attribute.String("window.start", pc.Window.Start.Format(time.RFC3339)),
			attribute.String("window.end", pc.Window.End.Format(time.RFC3339)),
		))
}

// endSpan records the run outcome on the span and ends it. Call via defer so
// the span ends even when the run fails.
func endSpan(span trace.Span, res *Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if res != nil {
		span.SetAttributes(
			attribute.Int("records.processed", res.RecordsProcessed),
			attribute.Int("telemetry.events_scanned", res.TelemetryEventsScanned),
			attribute.Int64("duration_ms", res.DurationMs),
		)
	}
	span.End()
}

// emptyResult builds the envelope for a window with no matching events:
// zero records, one warning, cursor advanced to the window end so progress
// never stalls on quiet windows.
func emptyResult(w Window, scanned int, startedAt time.Time) *Result {
	return &Result{
		RecordsProcessed:       0,
		TelemetryEventsScanned: scanned,
		DurationMs:             time.Since(startedAt).Milliseconds(),
		Warnings:               []string{WarnNoEvents},
		Metadata:               map[string]any{},
		NextCursor:             w.End,
	}
}
