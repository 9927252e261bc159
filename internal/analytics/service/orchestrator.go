// Package service owns the analytics ingestion orchestrator: it schedules the
// registered pipelines, coordinates distributed locking, iterates catch-up
// windows, and persists per-pipeline cursors.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"ai-dev-platform/analytics/internal/analytics/domain"
	"ai-dev-platform/analytics/internal/analytics/pipeline"
	analyticsrepo "ai-dev-platform/analytics/internal/analytics/repository"
	"ai-dev-platform/analytics/internal/config"
	"ai-dev-platform/analytics/internal/locking"
	"ai-dev-platform/analytics/internal/logging"
	"ai-dev-platform/analytics/internal/scheduling"
	"ai-dev-platform/analytics/internal/sharedstate"
	"ai-dev-platform/analytics/internal/telemetry"
	telemetryrepo "ai-dev-platform/analytics/internal/telemetry/repository"
)

// maxWindowsPerTick bounds the catch-up loop so one tick can never replay an
// unbounded backlog.
const maxWindowsPerTick = 12

// Tick outcomes recorded on the invocation counter.
const (
	outcomeSuccess    = "success"
	outcomeFailure    = "failure"
	outcomeLockDenied = "lock_denied"
)

// Deps bundles the orchestrator's collaborators. Logger, Tracer, Meter, and
// Now are optional; the rest are required.
type Deps struct {
	Config    *config.Config
	States    analyticsrepo.StateRepository
	Records   analyticsrepo.RecordRepository
	Events    telemetryrepo.Repository
	Locks     locking.Manager
	Scheduler *scheduling.Scheduler
	Shared    sharedstate.Store
	Alerts    telemetry.AlertEmitter
	Logger    logging.Logger
	Tracer    trace.Tracer
	Meter     metric.Meter
	Now       func() time.Time
}

// Orchestrator runs the registered pipelines on a periodic schedule. Each
// pipeline's tick acquires the distributed lock, processes up to
// maxWindowsPerTick contiguous windows from the persisted cursor, and
// persists the cursor after every successful window.
type Orchestrator struct {
	cfg       *config.Config
	states    analyticsrepo.StateRepository
	records   analyticsrepo.RecordRepository
	events    telemetryrepo.Repository
	locks     locking.Manager
	scheduler *scheduling.Scheduler
	shared    sharedstate.Store
	alerts    telemetry.AlertEmitter
	logger    logging.Logger
	tracer    trace.Tracer
	now       func() time.Time

	invocations  metric.Int64Counter
	windowsCtr   metric.Int64Counter
	recordsCtr   metric.Int64Counter
	eventsCtr    metric.Int64Counter
	tickDuration metric.Float64Histogram

	mu        sync.Mutex
	pipelines map[string]pipeline.Pipeline
	order     []string
	inFlight  map[string]bool
	handles   []scheduling.Handle
	started   bool

	running sync.WaitGroup
}

// New builds an Orchestrator from deps. Returns an error for missing required
// collaborators or failed instrument creation.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("orchestrator: config is required")
	}
	if deps.States == nil || deps.Records == nil || deps.Events == nil {
		return nil, fmt.Errorf("orchestrator: repositories are required")
	}
	if deps.Locks == nil {
		return nil, fmt.Errorf("orchestrator: lock manager is required")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("orchestrator: scheduler is required")
	}
	if deps.Shared == nil {
		deps.Shared = sharedstate.NewMemoryStore()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = tracenoop.NewTracerProvider().Tracer("analytics")
	}
	if deps.Meter == nil {
		deps.Meter = metricnoop.NewMeterProvider().Meter("analytics")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	o := &Orchestrator{
		cfg:       deps.Config,
		states:    deps.States,
		records:   deps.Records,
		events:    deps.Events,
		locks:     deps.Locks,
		scheduler: deps.Scheduler,
		shared:    deps.Shared,
		alerts:    deps.Alerts,
		logger:    deps.Logger,
		tracer:    deps.Tracer,
		now:       deps.Now,
		pipelines: make(map[string]pipeline.Pipeline),
		inFlight:  make(map[string]bool),
	}

	var err error
	if o.invocations, err = deps.Meter.Int64Counter("analytics.pipeline.invocations"); err != nil {
		return nil, err
	}
	if o.windowsCtr, err = deps.Meter.Int64Counter("analytics.pipeline.windows"); err != nil {
		return nil, err
	}
	if o.recordsCtr, err = deps.Meter.Int64Counter("analytics.pipeline.records"); err != nil {
		return nil, err
	}
	if o.eventsCtr, err = deps.Meter.Int64Counter("analytics.pipeline.telemetry_events"); err != nil {
		return nil, err
	}
	if o.tickDuration, err = deps.Meter.Float64Histogram("analytics.pipeline.duration_ms"); err != nil {
		return nil, err
	}
	return o, nil
}

// Register adds a pipeline to the registry. Must be called before Start.
func (o *Orchestrator) Register(p pipeline.Pipeline) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return fmt.Errorf("orchestrator: cannot register %s after start", p.Name())
	}
	if _, exists := o.pipelines[p.Name()]; exists {
		return fmt.Errorf("orchestrator: pipeline %s already registered", p.Name())
	}
	o.pipelines[p.Name()] = p
	o.order = append(o.order, p.Name())
	return nil
}

// Start schedules every registered pipeline on the configured interval and
// fires each once immediately to work off any backlog.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return fmt.Errorf("orchestrator: already started")
	}

	expression := scheduling.DeriveCronExpression(float64(o.cfg.IngestionIntervalMs))
	for _, name := range o.order {
		p := o.pipelines[name]
		handle, err := o.scheduler.Schedule("analytics:"+name, func(ctx context.Context) error {
			return o.Tick(ctx, p)
		}, scheduling.Options{Expression: expression, RunOnInit: true})
		if err != nil {
			for _, h := range o.handles {
				h.Stop()
			}
			o.handles = nil
			return err
		}
		o.handles = append(o.handles, handle)
	}
	o.started = true
	o.logger.Info("analytics orchestrator started",
		"pipelines", len(o.order), "expression", expression,
		"window", o.cfg.WindowDuration().String())
	return nil
}

// Stop halts future ticks and waits for in-flight ticks to finish, up to
// ctx's deadline. In-flight runs are never aborted; the lock TTL is the only
// hard timeout.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	handles := o.handles
	o.handles = nil
	o.started = false
	o.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}

	done := make(chan struct{})
	go func() {
		o.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tickTotals accumulates results across the windows of one tick.
type tickTotals struct {
	windows  int64
	records  int64
	events   int64
	warnings int
}

// Tick runs one scheduling cycle for p: in-flight guard, distributed lock,
// catch-up window loop, cursor persistence, metrics, and a summary log line.
// A pipeline failure is returned to the caller (the scheduler's wrapper
// absorbs it); lock release always happens.
func (o *Orchestrator) Tick(ctx context.Context, p pipeline.Pipeline) error {
	name := p.Name()
	if !o.markInFlight(name) {
		o.logger.Debug("pipeline tick still in flight, skipping", "pipeline", name)
		return nil
	}
	o.running.Add(1)
	defer func() {
		o.clearInFlight(name)
		o.running.Done()
	}()

	started := o.now()
	lock := o.locks.Acquire(ctx, name, o.cfg.LockTTL())
	if lock == nil {
		// Another runner holds the pipeline; normal operation, not an error.
		o.recordTick(ctx, name, outcomeLockDenied, tickTotals{}, 0)
		return nil
	}
	defer o.locks.Release(ctx, lock)

	ctx, span := o.tracer.Start(ctx, "analytics.orchestrator.tick",
		trace.WithAttributes(attribute.String("pipeline", name)))
	defer span.End()

	totals, err := o.processWindows(ctx, p)
	durationMs := float64(o.now().Sub(started).Milliseconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.recordTick(ctx, name, outcomeFailure, totals, durationMs)
		o.logger.Error("pipeline tick failed", "pipeline", name, "error", err)
		return fmt.Errorf("pipeline %s: %w", name, err)
	}

	span.SetAttributes(
		attribute.Int64("windows.processed", totals.windows),
		attribute.Int64("records.processed", totals.records),
		attribute.Int64("telemetry.events_scanned", totals.events),
	)
	o.recordTick(ctx, name, outcomeSuccess, totals, durationMs)
	o.logger.Info("pipeline tick complete",
		"pipeline", name,
		"windows", totals.windows,
		"records", totals.records,
		"events", totals.events,
		"warnings", totals.warnings,
		"duration_ms", int64(durationMs))
	return nil
}

// processWindows loads or creates the pipeline's cursor and walks contiguous
// windows until caught up or maxWindowsPerTick is reached. The cursor is
// persisted immediately after each successful window, so a crash loses at
// most the in-flight window.
func (o *Orchestrator) processWindows(ctx context.Context, p pipeline.Pipeline) (tickTotals, error) {
	var totals tickTotals
	name := p.Name()
	windowDuration := o.cfg.WindowDuration()

	state, err := o.loadOrCreateState(ctx, name, windowDuration)
	if err != nil {
		return totals, fmt.Errorf("load state: %w", err)
	}
	cursor := state.LastProcessedAt

	for i := 0; i < maxWindowsPerTick; i++ {
		now := o.now().UTC()
		end := cursor.Add(windowDuration)
		if end.After(now) {
			end = now
		}
		if !end.After(cursor) {
			break // caught up
		}

		window := pipeline.Window{Start: cursor, End: end, State: state}
		res, err := p.Run(ctx, &pipeline.Context{
			Window:  window,
			Events:  o.events,
			Records: o.records,
			Config:  o.cfg,
			Logger:  o.logger,
			Tracer:  o.tracer,
			Shared:  o.shared,
			Alerts:  o.alerts,
		})
		if err != nil {
			return totals, err
		}

		next := res.NextCursor
		if next.IsZero() || next.Before(window.Start) {
			// A bad cursor would stall or rewind the pipeline; retry next
			// tick from the last persisted cursor instead.
			o.logger.Error("pipeline returned invalid next cursor, aborting catch-up",
				"pipeline", name, "cursor", next.String(),
				"window_start", window.Start.String(), "window_end", window.End.String())
			break
		}

		var metadata []byte
		if len(res.Metadata) > 0 {
			if metadata, err = json.Marshal(res.Metadata); err != nil {
				return totals, fmt.Errorf("marshal window metadata: %w", err)
			}
		}
		if err := o.states.UpdateState(ctx, name, next, metadata); err != nil {
			return totals, fmt.Errorf("persist cursor: %w", err)
		}
		cursor = next
		state.LastProcessedAt = next

		totals.windows++
		totals.records += int64(res.RecordsProcessed)
		totals.events += int64(res.TelemetryEventsScanned)
		totals.warnings += len(res.Warnings)
		for _, w := range res.Warnings {
			o.logger.Warn("pipeline warning", "pipeline", name, "warning", w)
		}

		if !next.Before(o.now().UTC()) {
			break
		}
	}
	return totals, nil
}

// loadOrCreateState returns the pipeline's cursor row, creating it lazily on
// first run with one window's worth of backlog.
func (o *Orchestrator) loadOrCreateState(ctx context.Context, name string, windowDuration time.Duration) (*domain.IngestionState, error) {
	state, err := o.states.FindState(ctx, name)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}
	state = &domain.IngestionState{
		Pipeline:        name,
		LastProcessedAt: o.now().UTC().Add(-windowDuration),
	}
	if err := o.states.CreateState(ctx, state); err != nil {
		return nil, err
	}
	o.logger.Info("initialized ingestion state",
		"pipeline", name, "cursor", state.LastProcessedAt.String())
	return state, nil
}

func (o *Orchestrator) recordTick(ctx context.Context, name, outcome string, totals tickTotals, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("pipeline", name),
		attribute.String("outcome", outcome),
	)
	o.invocations.Add(ctx, 1, attrs)
	if totals.windows > 0 {
		o.windowsCtr.Add(ctx, totals.windows, attrs)
	}
	if totals.records > 0 {
		o.recordsCtr.Add(ctx, totals.records, attrs)
	}
	if totals.events > 0 {
		o.eventsCtr.Add(ctx, totals.events, attrs)
	}
	if outcome != outcomeLockDenied {
		o.tickDuration.Record(ctx, durationMs, attrs)
	}
}

func (o *Orchestrator) markInFlight(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[name] {
		return false
	}
	o.inFlight[name] = true
	return true
}

func (o *Orchestrator) clearInFlight(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, name)
}
