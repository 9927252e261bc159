package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	telemetrydomain "ai-dev-platform/analytics/internal/telemetry/domain"
)

func TestQualityScores_EmptyWindow(t *testing.T) {
	records := &memoryRecords{}
	pc := testContext(t, &memoryEvents{}, records)

	res, err := NewQualityScores().Run(context.Background(), pc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RecordsProcessed != 0 {
		t.Errorf("RecordsProcessed = %d, want 0", res.RecordsProcessed)
	}
	if !containsWarning(res.Warnings, WarnNoEvents) {
		t.Errorf("Warnings = %v, want %q", res.Warnings, WarnNoEvents)
	}
	if !res.NextCursor.Equal(pc.Window.End) {
		t.Errorf("NextCursor = %v, want window end %v", res.NextCursor, pc.Window.End)
	}
	if len(records.quality) != 0 {
		t.Errorf("recorded %d observations for empty window", len(records.quality))
	}
}

func TestQualityScores_PerStageObservations(t *testing.T) {
	events := &memoryEvents{events: []*telemetrydomain.Event{
		event(t, telemetrydomain.EventAgentTaskCompleted, 1*time.Minute,
			map[string]any{"stage": "codegen", "latencyMs": 2500}),
		event(t, telemetrydomain.EventAgentTaskFailed, 2*time.Minute,
			map[string]any{"stage": "codegen", "latencyMs": 2500}),
		event(t, telemetrydomain.EventAgentTaskCompleted, 3*time.Minute,
			map[string]any{"stage": "review", "latencyMs": 2500}),
	}}
	records := &memoryRecords{}
	pc := testContext(t, events, records)

	res, err := NewQualityScores().Run(context.Background(), pc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RecordsProcessed != 2 {
		t.Fatalf("RecordsProcessed = %d, want 2 (one per stage)", res.RecordsProcessed)
	}
	if res.TelemetryEventsScanned != 3 {
		t.Errorf("TelemetryEventsScanned = %d, want 3", res.TelemetryEventsScanned)
	}
	// Sorted stage order keeps runs deterministic.
	if records.quality[0].AgentStage != "codegen" || records.quality[1].AgentStage != "review" {
		t.Errorf("stage order = [%s, %s], want [codegen, review]",
			records.quality[0].AgentStage, records.quality[1].AgentStage)
	}
	for _, obs := range records.quality {
		if obs.Score < 0 || obs.Score > 100 {
			t.Errorf("stage %s score = %v, want within [0,100]", obs.AgentStage, obs.Score)
		}
		if !obs.OccurredAt.Equal(pc.Window.End) {
			t.Errorf("stage %s occurred_at = %v, want window end", obs.AgentStage, obs.OccurredAt)
		}
	}
	// Review (all success) must outscore codegen (half failed); latency is at baseline for both.
	if records.quality[1].Score <= records.quality[0].Score {
		t.Errorf("all-success stage score %v should exceed half-failed stage score %v",
			records.quality[1].Score, records.quality[0].Score)
	}
}

func TestQualityScores_DriversIncludeRatesAndPayloadDrivers(t *testing.T) {
	events := &memoryEvents{events: []*telemetrydomain.Event{
		event(t, telemetrydomain.EventAgentTaskCompleted, time.Minute, map[string]any{
			"stage": "codegen", "latencyMs": 2500,
			"drivers": map[string]any{"testCoverage": 0.8},
		}),
		event(t, telemetrydomain.EventAgentTaskCompleted, 2*time.Minute, map[string]any{
			"stage": "codegen", "latencyMs": 2500, "fallbackUsed": true,
			"drivers": map[string]any{"testCoverage": 0.6},
		}),
	}}
	records := &memoryRecords{}
	pc := testContext(t, events, records)

	if _, err := NewQualityScores().Run(context.Background(), pc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	drivers := records.quality[0].Drivers
	if got := drivers["fallbackRate"]; got != 0.5 {
		t.Errorf("fallbackRate driver = %v, want 0.5", got)
	}
	if got := drivers["successRate"]; got != 1.0 {
		t.Errorf("successRate driver = %v, want 1.0", got)
	}
	if got := drivers["testCoverage"]; got != 0.7 {
		t.Errorf("testCoverage driver = %v, want averaged 0.7", got)
	}
}

func TestQualityScores_LowSampleWarning(t *testing.T) {
	events := &memoryEvents{events: []*telemetrydomain.Event{
		event(t, telemetrydomain.EventAgentTaskCompleted, time.Minute,
			map[string]any{"stage": "codegen"}),
	}}
	pc := testContext(t, events, &memoryRecords{})

	res, err := NewQualityScores().Run(context.Background(), pc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := fmt.Sprintf("stage codegen has 1 samples, below confidence threshold %d",
		pc.Config.QualityConfidentTaskCount)
	if !containsWarning(res.Warnings, want) {
		t.Errorf("Warnings = %v, want %q", res.Warnings, want)
	}
}

func TestQualityScores_MissingStageGroupsAsUnknown(t *testing.T) {
	events := &memoryEvents{events: []*telemetrydomain.Event{
		event(t, telemetrydomain.EventAgentTaskCompleted, time.Minute, map[string]any{}),
	}}
	records := &memoryRecords{}
	pc := testContext(t, events, records)

	if _, err := NewQualityScores().Run(context.Background(), pc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records.quality) != 1 || records.quality[0].AgentStage != unknownStage {
		t.Errorf("payload without stage should group under %q, got %+v", unknownStage, records.quality)
	}
}

func TestQualityScores_RecordFailure(t *testing.T) {
	events := &memoryEvents{events: []*telemetrydomain.Event{
		event(t, telemetrydomain.EventAgentTaskCompleted, time.Minute,
			map[string]any{"stage": "codegen"}),
	}}
	recordErr := errors.New("insert failed")
	pc := testContext(t, events, &memoryRecords{recordErr: recordErr})

	if _, err := NewQualityScores().Run(context.Background(), pc); !errors.Is(err, recordErr) {
		t.Errorf("Run error = %v, want wrapped %v", err, recordErr)
	}
}

func TestQualityScore_ClampsAndDegradesGracefully(t *testing.T) {
	cfg := testConfig()

	perfect := &stageAccumulator{
		total: 10, successes: 10,
		latencySum: 10 * 1000, latencyCount: 10, // well under baseline
		driverSums: map[string]float64{}, driverCounts: map[string]int64{},
	}
	score, _ := qualityScore(cfg, perfect)
	if score < 80 || score > 100 {
		t.Errorf("perfect stage score = %v, want high and clamped <= 100", score)
	}

	awful := &stageAccumulator{
		total: 10, failures: 10, fallbacks: 10, handOffs: 10, retries: 30,
		latencySum: 10 * 50000, latencyCount: 10,
		driverSums: map[string]float64{}, driverCounts: map[string]int64{},
	}
	score, _ = qualityScore(cfg, awful)
	if score != 0 {
		t.Errorf("awful stage score = %v, want clamped to 0", score)
	}
}

func TestQualityScore_NoLatencySamplesUsesBaseline(t *testing.T) {
	cfg := testConfig()
	acc := &stageAccumulator{
		total: 4, successes: 4,
		driverSums: map[string]float64{}, driverCounts: map[string]int64{},
	}
	_, drivers := qualityScore(cfg, acc)
	if drivers["latencyDelta"] != 0 {
		t.Errorf("latencyDelta = %v, want 0 when no samples (baseline assumed)", drivers["latencyDelta"])
	}
}
