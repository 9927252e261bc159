package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	analyticsdomain "ai-dev-platform/analytics/internal/analytics/domain"
	"ai-dev-platform/analytics/internal/telemetry/domain"
)

// RepositoryPipelineName identifies the per-repository analytics pipeline.
const RepositoryPipelineName = "repository-analytics"

// maxHotspotEntries caps the merged refactor-hotspot map so one noisy window
// cannot grow a record without bound.
const maxHotspotEntries = 100

// RepositoryMetrics aggregates commit velocity, refactor hotspots, and
// coverage drift per repository over one window.
type RepositoryMetrics struct{}

func NewRepositoryMetrics() *RepositoryMetrics { return &RepositoryMetrics{} }

func (p *RepositoryMetrics) Name() string { return RepositoryPipelineName }

type repoAccumulator struct {
	commits        int64
	branch         string
	branchConflict bool
	hotspots       map[string]int64
	driftSum       float64
	driftCount     int64
}

func (p *RepositoryMetrics) Run(ctx context.Context, pc *Context) (res *Result, err error) {
	started := time.Now()
	ctx, span := startSpan(ctx, pc, p.Name())
	defer func() { endSpan(span, res, err) }()

	events, err := pc.Events.ListByTypes(ctx,
		[]string{domain.EventRepositoryCommit, domain.EventRepositoryRefactor, domain.EventRepositoryCoverage},
		pc.Window.Start, pc.Window.End)
	if err != nil {
		return nil, fmt.Errorf("repository analytics: fetch events: %w", err)
	}
	if len(events) == 0 {
		return emptyResult(pc.Window, 0, started), nil
	}

	repos := make(map[string]*repoAccumulator)
	for _, e := range events {
		payload := decodeRepository(e.Payload)
		acc := repos[payload.Repository]
		if acc == nil {
			acc = &repoAccumulator{hotspots: make(map[string]int64)}
			repos[payload.Repository] = acc
		}
		switch e.EventType {
		case domain.EventRepositoryCommit:
			commits := payload.Commits
			if commits <= 0 {
				commits = 1
			}
			acc.commits += commits
		case domain.EventRepositoryRefactor:
			mergeHotspots(acc.hotspots, payload.Hotspots)
		case domain.EventRepositoryCoverage:
			if drift, ok := coverageDrift(payload); ok {
				acc.driftSum += drift
				acc.driftCount++
			}
		}
		if payload.Branch != "" {
			switch {
			case acc.branch == "":
				acc.branch = payload.Branch
			case acc.branch != payload.Branch:
				acc.branchConflict = true
			}
		}
	}

	windowHours := pc.Window.Duration().Hours()
	var warnings []string
	records := 0
	for _, repo := range sortedRepos(repos) {
		acc := repos[repo]
		branch := acc.branch
		if acc.branchConflict {
			branch = ""
		}
		velocity := float64(acc.commits)
		if windowHours > 0 {
			velocity = float64(acc.commits) / windowHours
		}
		drift := 0.0
		if acc.driftCount > 0 {
			drift = acc.driftSum / float64(acc.driftCount)
		} else {
			warnings = append(warnings, fmt.Sprintf("repository %s has no coverage samples", repo))
		}
		record := &analyticsdomain.RepositoryAnalytics{
			Repository:       repo,
			Branch:           branch,
			WindowStart:      pc.Window.Start,
			WindowEnd:        pc.Window.End,
			CommitVelocity:   velocity,
			RefactorHotspots: acc.hotspots,
			CoverageDrift:    drift,
		}
		if err := pc.Records.RecordRepositoryAnalytics(ctx, record); err != nil {
			return nil, fmt.Errorf("repository analytics: record %s: %w", repo, err)
		}
		records++
	}

	res = &Result{
		RecordsProcessed:       records,
		TelemetryEventsScanned: len(events),
		DurationMs:             time.Since(started).Milliseconds(),
		Warnings:               warnings,
		Metadata:               map[string]any{"repositories": records},
		NextCursor:             pc.Window.End,
	}
	return res, nil
}

// coverageDrift prefers the explicit field, else derives it from coverage
// minus previous coverage when both are present.
func coverageDrift(p repositoryPayload) (float64, bool) {
	if p.CoverageDrift != nil {
		return *p.CoverageDrift, true
	}
	if p.Coverage != nil && p.PreviousCoverage != nil {
		return *p.Coverage - *p.PreviousCoverage, true
	}
	return 0, false
}

// mergeHotspots adds src counts into dst, admitting new entries only while
// dst stays under the cap. Existing entries always accumulate.
func mergeHotspots(dst map[string]int64, src map[string]int64) {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, exists := dst[name]; !exists && len(dst) >= maxHotspotEntries {
			continue
		}
		dst[name] += src[name]
	}
}

func sortedRepos(repos map[string]*repoAccumulator) []string {
	names := make([]string, 0, len(repos))
	for name := range repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
