package pipeline

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	telemetrydomain "ai-dev-platform/analytics/internal/telemetry/domain"
)

func TestRepositoryMetrics_EmptyWindow(t *testing.T) {
	records := &memoryRecords{}
	pc := testContext(t, &memoryEvents{}, records)

	res, err := NewRepositoryMetrics().Run(context.Background(), pc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RecordsProcessed != 0 || len(records.repos) != 0 {
		t.Errorf("empty window produced %d records", len(records.repos))
	}
}

func TestRepositoryMetrics_CommitVelocityAndHotspots(t *testing.T) {
	events := &memoryEvents{events: []*telemetrydomain.Event{
		event(t, telemetrydomain.EventRepositoryCommit, 1*time.Minute,
			map[string]any{"repository": "api", "branch": "main"}),
		event(t, telemetrydomain.EventRepositoryCommit, 2*time.Minute,
			map[string]any{"repository": "api", "branch": "main", "commits": 3}),
		event(t, telemetrydomain.EventRepositoryRefactor, 3*time.Minute, map[string]any{
			"repository": "api", "branch": "main",
			"hotspots": map[string]any{"pkg/auth": 4, "pkg/db": 1},
		}),
		event(t, telemetrydomain.EventRepositoryRefactor, 4*time.Minute, map[string]any{
			"repository": "api",
			"hotspots":   map[string]any{"pkg/auth": 2},
		}),
		event(t, telemetrydomain.EventRepositoryCoverage, 5*time.Minute,
			map[string]any{"repository": "api", "coverage": 0.81, "previousCoverage": 0.85}),
	}}
	records := &memoryRecords{}
	pc := testContext(t, events, records)

	res, err := NewRepositoryMetrics().Run(context.Background(), pc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RecordsProcessed != 1 {
		t.Fatalf("RecordsProcessed = %d, want 1", res.RecordsProcessed)
	}

	rec := records.repos[0]
	// 4 commits (1 defaulted + 3 explicit) over a 15 minute window.
	wantVelocity := 4.0 / 0.25
	if rec.CommitVelocity != wantVelocity {
		t.Errorf("CommitVelocity = %v, want %v", rec.CommitVelocity, wantVelocity)
	}
	if rec.Branch != "main" {
		t.Errorf("Branch = %q, want main", rec.Branch)
	}
	if rec.RefactorHotspots["pkg/auth"] != 6 || rec.RefactorHotspots["pkg/db"] != 1 {
		t.Errorf("RefactorHotspots = %v, want pkg/auth=6 pkg/db=1", rec.RefactorHotspots)
	}
	if math.Abs(rec.CoverageDrift-(-0.04)) > 1e-9 {
		t.Errorf("CoverageDrift = %v, want -0.04", rec.CoverageDrift)
	}
}

func TestRepositoryMetrics_ExplicitDriftWins(t *testing.T) {
	events := &memoryEvents{events: []*telemetrydomain.Event{
		event(t, telemetrydomain.EventRepositoryCoverage, time.Minute, map[string]any{
			"repository": "api", "coverageDrift": 0.02,
			"coverage": 0.5, "previousCoverage": 0.9,
		}),
	}}
	records := &memoryRecords{}
	pc := testContext(t, events, records)

	if _, err := NewRepositoryMetrics().Run(context.Background(), pc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := records.repos[0].CoverageDrift; got != 0.02 {
		t.Errorf("CoverageDrift = %v, want explicit 0.02", got)
	}
}

func TestRepositoryMetrics_BranchConflictClearsBranch(t *testing.T) {
	events := &memoryEvents{events: []*telemetrydomain.Event{
		event(t, telemetrydomain.EventRepositoryCommit, 1*time.Minute,
			map[string]any{"repository": "api", "branch": "main"}),
		event(t, telemetrydomain.EventRepositoryCommit, 2*time.Minute,
			map[string]any{"repository": "api", "branch": "release"}),
	}}
	records := &memoryRecords{}
	pc := testContext(t, events, records)

	if _, err := NewRepositoryMetrics().Run(context.Background(), pc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := records.repos[0].Branch; got != "" {
		t.Errorf("Branch = %q, want empty after conflicting branches", got)
	}
}

func TestRepositoryMetrics_NoCoverageSamplesWarns(t *testing.T) {
	events := &memoryEvents{events: []*telemetrydomain.Event{
		event(t, telemetrydomain.EventRepositoryCommit, time.Minute,
			map[string]any{"repository": "api"}),
	}}
	pc := testContext(t, &memoryEvents{events: events.events}, &memoryRecords{})

	res, err := NewRepositoryMetrics().Run(context.Background(), pc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !containsWarning(res.Warnings, "repository api has no coverage samples") {
		t.Errorf("Warnings = %v, want coverage warning", res.Warnings)
	}
}

func TestMergeHotspots_CapAdmitsNoNewEntriesPastLimit(t *testing.T) {
	dst := make(map[string]int64)
	big := make(map[string]int64)
	for i := 0; i < maxHotspotEntries+20; i++ {
		big[fmt.Sprintf("pkg/mod%03d", i)] = 1
	}
	mergeHotspots(dst, big)
	if len(dst) != maxHotspotEntries {
		t.Fatalf("len(dst) = %d, want capped at %d", len(dst), maxHotspotEntries)
	}

	// Existing entries keep accumulating even at the cap.
	mergeHotspots(dst, map[string]int64{"pkg/mod000": 5})
	if dst["pkg/mod000"] != 6 {
		t.Errorf("existing entry = %d, want 6", dst["pkg/mod000"])
	}
	if len(dst) != maxHotspotEntries {
		t.Errorf("len(dst) = %d, cap should hold", len(dst))
	}
}
