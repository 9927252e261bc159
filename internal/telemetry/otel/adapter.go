package otel

import (
	"context"
	"log"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"ai-dev-platform/analytics/internal/analytics/domain"
	"ai-dev-platform/analytics/internal/telemetry"
)

// NewAlertEmitter returns an AlertEmitter that sends anomalies as OTel log
// records via the given LoggerProvider. If provider is nil, returns a no-op emitter.
func NewAlertEmitter(provider *sdklog.LoggerProvider) telemetry.AlertEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("analytics.anomalies")}
}

// NewAlertEmitterWithLogger builds an emitter over a raw record sink. Used by
// tests to capture emitted records.
func NewAlertEmitterWithLogger(logger recordEmitter) telemetry.AlertEmitter {
	return &otelEmitter{logger: logger}
}

// recordEmitter is the slice of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.AnalyticsAnomaly) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the anomaly to an OTel log record and emits it. Best-effort;
// the record body carries the baseline/current snapshot.
func (e *otelEmitter) Emit(ctx context.Context, anomaly *domain.AnalyticsAnomaly) error {
	if anomaly == nil {
		return nil
	}
	rec := otellog.Record{}
	if !anomaly.OccurredAt.IsZero() {
		rec.SetTimestamp(anomaly.OccurredAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetSeverity(severityOf(anomaly.Severity))
	rec.SetSeverityText(anomaly.Severity)
	if len(anomaly.Metadata) > 0 {
		rec.SetBody(otellog.BytesValue(anomaly.Metadata))
	}
	if anomaly.Source != "" {
		rec.AddAttributes(otellog.String("source", anomaly.Source))
	}
	if anomaly.Description != "" {
		rec.AddAttributes(otellog.String("description", anomaly.Description))
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func severityOf(severity string) otellog.Severity {
	switch severity {
	case domain.SeverityCritical:
		return otellog.SeverityFatal
	case domain.SeverityError:
		return otellog.SeverityError
	default:
		return otellog.SeverityWarn
	}
}

// EmitAsync runs Emit in a goroutine with a short timeout so the pipeline's
// window loop is not blocked. Logs errors.
func EmitAsync(emitter telemetry.AlertEmitter, anomaly *domain.AnalyticsAnomaly) {
	if emitter == nil || anomaly == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := emitter.Emit(emitCtx, anomaly); err != nil {
			log.Printf("telemetry: async anomaly emit failed: %v", err)
		}
	}()
}
