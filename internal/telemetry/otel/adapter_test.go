package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"ai-dev-platform/analytics/internal/analytics/domain"
)

func TestNewAlertEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewAlertEmitter(nil)
	if em == nil {
		t.Fatal("NewAlertEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("noop Emit(ctx, nil): %v", err)
	}
	if err := em.Emit(context.Background(), &domain.AnalyticsAnomaly{Source: "codegen"}); err != nil {
		t.Errorf("noop Emit(ctx, anomaly): %v", err)
	}
}

func TestEmit_NilAnomaly_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewAlertEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
}

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.rec = rec
}

func TestEmit_RecordMapping(t *testing.T) {
	cap := &recordCapture{}
	em := NewAlertEmitterWithLogger(cap)
	occurred := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	anomaly := &domain.AnalyticsAnomaly{
		Source:      "codegen",
		Severity:    domain.SeverityError,
		Description: "latency 4000ms is 2.00x the baseline 2000ms",
		OccurredAt:  occurred,
		Metadata:    []byte(`{"stage":"codegen"}`),
	}
	if err := em.Emit(context.Background(), anomaly); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := cap.rec

	if !rec.Timestamp().Equal(occurred) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), occurred)
	}
	if rec.Severity() != otellog.SeverityError {
		t.Errorf("severity = %v, want %v", rec.Severity(), otellog.SeverityError)
	}
	if rec.SeverityText() != domain.SeverityError {
		t.Errorf("severity text = %q, want %q", rec.SeverityText(), domain.SeverityError)
	}
	if got := string(rec.Body().AsBytes()); got != `{"stage":"codegen"}` {
		t.Errorf("body = %q, want metadata", got)
	}

	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	if attrs["source"] != "codegen" {
		t.Errorf("source attr = %q, want codegen", attrs["source"])
	}
	if attrs["description"] != anomaly.Description {
		t.Errorf("description attr = %q, want %q", attrs["description"], anomaly.Description)
	}
}

func TestEmit_SeverityMapping(t *testing.T) {
	tests := []struct {
		severity string
		want     otellog.Severity
	}{
		{domain.SeverityWarning, otellog.SeverityWarn},
		{domain.SeverityError, otellog.SeverityError},
		{domain.SeverityCritical, otellog.SeverityFatal},
		{"unrecognized", otellog.SeverityWarn},
	}
	for _, tc := range tests {
		t.Run(tc.severity, func(t *testing.T) {
			cap := &recordCapture{}
			em := NewAlertEmitterWithLogger(cap)
			if err := em.Emit(context.Background(), &domain.AnalyticsAnomaly{
				Source: "codegen", Severity: tc.severity, OccurredAt: time.Now(),
			}); err != nil {
				t.Fatalf("Emit: %v", err)
			}
			if cap.rec.Severity() != tc.want {
				t.Errorf("severity = %v, want %v", cap.rec.Severity(), tc.want)
			}
		})
	}
}

func TestEmit_ZeroTimestamp_SetsCurrentTime(t *testing.T) {
	cap := &recordCapture{}
	em := NewAlertEmitterWithLogger(cap)
	before := time.Now().UTC()
	if err := em.Emit(context.Background(), &domain.AnalyticsAnomaly{
		Source: "codegen", Severity: domain.SeverityWarning,
	}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	after := time.Now().UTC()
	timestamp := cap.rec.Timestamp()
	if timestamp.Before(before) || timestamp.After(after) {
		t.Errorf("timestamp = %v, should be between %v and %v", timestamp, before, after)
	}
}

func TestEmit_EmptyMetadata_NoBodySet(t *testing.T) {
	cap := &recordCapture{}
	em := NewAlertEmitterWithLogger(cap)
	if err := em.Emit(context.Background(), &domain.AnalyticsAnomaly{
		Source: "codegen", Severity: domain.SeverityWarning, OccurredAt: time.Now(),
	}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !cap.rec.Body().Empty() {
		t.Error("body should be empty when metadata is nil")
	}
}

func TestEmitAsync_NilArgs(t *testing.T) {
	// Must not panic.
	EmitAsync(nil, &domain.AnalyticsAnomaly{})
	EmitAsync(NewAlertEmitter(nil), nil)
}
