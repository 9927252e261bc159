package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"ai-dev-platform/analytics/internal/analytics/domain"
	"ai-dev-platform/analytics/internal/config"
)

// AnomalyPipelineName identifies the statistical anomaly-detection pipeline.
const AnomalyPipelineName = "anomalies"

// baselineLookbackWindows is how many prior window-widths feed the trailing
// statistical baseline.
const baselineLookbackWindows = 24

// qualityDeltaScale is the fixed scale constant the quality-score trigger
// multiplies with the configured deviation count. The quality delta is on the
// 0-100 score scale while the other triggers are std-relative; the mismatch
// is intentional and preserved from the original model.
const qualityDeltaScale = 5.0

// Anomalies compares each stage's current window against a trailing baseline
// of derived performance and quality records, emitting one anomaly record per
// stage whose regression triggers fire.
type Anomalies struct{}

func NewAnomalies() *Anomalies { return &Anomalies{} }

func (p *Anomalies) Name() string { return AnomalyPipelineName }

// stageBaseline is the trailing-window statistical summary for one stage.
type stageBaseline struct {
	PerfSamples    int     `json:"perfSamples"`
	QualitySamples int     `json:"qualitySamples"`
	SuccessMean    float64 `json:"successMean"`
	SuccessStd     float64 `json:"successStd"`
	FallbackMean   float64 `json:"fallbackMean"`
	FallbackStd    float64 `json:"fallbackStd"`
	HandOffMean    float64 `json:"handOffMean"`
	HandOffStd     float64 `json:"handOffStd"`
	LatencyMean    float64 `json:"latencyMean"`
	LatencyStd     float64 `json:"latencyStd"`
	QualityMean    float64 `json:"qualityMean"`
	QualityStd     float64 `json:"qualityStd"`
}

// stageSnapshot is the weighted current-window summary for one stage.
type stageSnapshot struct {
	PerfSamples    int     `json:"perfSamples"`
	QualitySamples int     `json:"qualitySamples"`
	TasksProcessed int64   `json:"tasksProcessed"`
	SuccessRate    float64 `json:"successRate"`
	FallbackRate   float64 `json:"fallbackRate"`
	HandOffRate    float64 `json:"handOffRate"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
	QualityScore   float64 `json:"qualityScore"`
}

type stageSeries struct {
	successRates  []float64
	fallbackRates []float64
	handOffRates  []float64
	latencies     []float64
	weights       []float64
	tasks         int64
	qualityScores []float64
}

func (p *Anomalies) Run(ctx context.Context, pc *Context) (res *Result, err error) {
	started := time.Now()
	ctx, span := startSpan(ctx, pc, p.Name())
	defer func() { endSpan(span, res, err) }()

	windowDuration := pc.Window.Duration()
	baselineStart := pc.Window.Start.Add(-time.Duration(baselineLookbackWindows) * windowDuration)

	baselineSeries, err := p.collect(ctx, pc, baselineStart, pc.Window.Start)
	if err != nil {
		return nil, fmt.Errorf("anomalies: fetch baseline: %w", err)
	}
	currentSeries, err := p.collect(ctx, pc, pc.Window.Start, pc.Window.End)
	if err != nil {
		return nil, fmt.Errorf("anomalies: fetch current window: %w", err)
	}
	if len(currentSeries) == 0 {
		return emptyResult(pc.Window, 0, started), nil
	}

	cfg := pc.Config
	var warnings []string
	anomalies := 0

	stages := make([]string, 0, len(currentSeries))
	for stage := range currentSeries {
		stages = append(stages, stage)
	}
	sort.Strings(stages)

	for _, stage := range stages {
		current := snapshotOf(currentSeries[stage])
		base, haveBaseline := baselineSeries[stage]
		if !haveBaseline {
			warnings = append(warnings, fmt.Sprintf("stage %s has no baseline history", stage))
			continue
		}
		baseline := baselineOf(base)

		if current.PerfSamples < cfg.AnomalyMinSamples || baseline.PerfSamples < cfg.AnomalyMinSamples {
			continue
		}

		triggers, severity := p.evaluate(cfg, baseline, current)
		if len(triggers) == 0 {
			continue
		}

		metadata, mErr := json.Marshal(map[string]any{
			"stage":    stage,
			"baseline": baseline,
			"current":  current,
		})
		if mErr != nil {
			return nil, fmt.Errorf("anomalies: marshal metadata for stage %s: %w", stage, mErr)
		}
		record := &domain.AnalyticsAnomaly{
			Source:      stage,
			Severity:    severity,
			Description: strings.Join(triggers, "; "),
			OccurredAt:  pc.Window.End,
			Metadata:    metadata,
		}
		if err := pc.Records.RecordAnalyticsAnomaly(ctx, record); err != nil {
			return nil, fmt.Errorf("anomalies: record stage %s: %w", stage, err)
		}
		if pc.Alerts != nil {
			if aErr := pc.Alerts.Emit(ctx, record); aErr != nil {
				pc.Logger.Warn("anomaly alert emit failed", "stage", stage, "error", aErr)
			}
		}
		anomalies++
	}

	res = &Result{
		RecordsProcessed:       anomalies,
		TelemetryEventsScanned: 0,
		DurationMs:             time.Since(started).Milliseconds(),
		Warnings:               warnings,
		Metadata:               map[string]any{"stagesEvaluated": len(stages), "anomalies": anomalies},
		NextCursor:             pc.Window.End,
	}
	return res, nil
}

// evaluate applies the trigger rules for one stage, returning the fired
// trigger descriptions and the escalated severity. Severity starts at
// warning; the latency trigger escalates to error; the critical success
// floor overrides everything.
func (p *Anomalies) evaluate(cfg *config.Config, baseline stageBaseline, current stageSnapshot) ([]string, string) {
	var triggers []string
	severity := domain.SeverityWarning

	successDelta := baseline.SuccessMean - current.SuccessRate
	if successDelta > 0 && successDelta > cfg.AnomalyStdDeviations*baseline.SuccessStd {
		triggers = append(triggers, fmt.Sprintf(
			"success rate %.3f dropped %.3f below baseline mean %.3f (threshold %.1f std)",
			current.SuccessRate, successDelta, baseline.SuccessMean, cfg.AnomalyStdDeviations))
	}

	critical := current.SuccessRate <= cfg.AnomalyCriticalSuccessRate
	if critical {
		triggers = append(triggers, fmt.Sprintf(
			"success rate %.3f at or below critical floor %.3f",
			current.SuccessRate, cfg.AnomalyCriticalSuccessRate))
	}

	if baseline.LatencyMean > 0 && current.AvgLatencyMs/baseline.LatencyMean >= cfg.AnomalyWarningLatencyFactor {
		triggers = append(triggers, fmt.Sprintf(
			"latency %.0fms is %.2fx the baseline %.0fms",
			current.AvgLatencyMs, current.AvgLatencyMs/baseline.LatencyMean, baseline.LatencyMean))
		severity = domain.SeverityError
	}

	if baseline.QualitySamples >= cfg.AnomalyMinSamples && current.QualitySamples > 0 {
		qualityDelta := baseline.QualityMean - current.QualityScore
		if qualityDelta > cfg.AnomalyStdDeviations*qualityDeltaScale {
			triggers = append(triggers, fmt.Sprintf(
				"quality score %.1f dropped %.1f below baseline mean %.1f",
				current.QualityScore, qualityDelta, baseline.QualityMean))
		}
	}

	if critical {
		severity = domain.SeverityCritical
	}
	return triggers, severity
}

// collect loads performance metrics and quality observations for [from, to)
// and groups their series per stage.
func (p *Anomalies) collect(ctx context.Context, pc *Context, from, to time.Time) (map[string]*stageSeries, error) {
	perf, err := pc.Records.ListAgentPerformance(ctx, from, to)
	if err != nil {
		return nil, err
	}
	quality, err := pc.Records.ListQualityScores(ctx, from, to)
	if err != nil {
		return nil, err
	}

	series := make(map[string]*stageSeries)
	get := func(stage string) *stageSeries {
		s := series[stage]
		if s == nil {
			s = &stageSeries{}
			series[stage] = s
		}
		return s
	}
	for _, m := range perf {
		s := get(m.AgentStage)
		s.successRates = append(s.successRates, m.SuccessRate)
		s.fallbackRates = append(s.fallbackRates, m.FallbackRate)
		s.handOffRates = append(s.handOffRates, m.HumanHandOffRate)
		s.latencies = append(s.latencies, m.AvgLatencyMs)
		s.weights = append(s.weights, float64(m.TasksProcessed))
		s.tasks += m.TasksProcessed
	}
	for _, o := range quality {
		get(o.AgentStage).qualityScores = append(get(o.AgentStage).qualityScores, o.Score)
	}
	return series, nil
}

func baselineOf(s *stageSeries) stageBaseline {
	return stageBaseline{
		PerfSamples:    len(s.successRates),
		QualitySamples: len(s.qualityScores),
		SuccessMean:    mean(s.successRates),
		SuccessStd:     sampleStd(s.successRates),
		FallbackMean:   mean(s.fallbackRates),
		FallbackStd:    sampleStd(s.fallbackRates),
		HandOffMean:    mean(s.handOffRates),
		HandOffStd:     sampleStd(s.handOffRates),
		LatencyMean:    mean(s.latencies),
		LatencyStd:     sampleStd(s.latencies),
		QualityMean:    mean(s.qualityScores),
		QualityStd:     sampleStd(s.qualityScores),
	}
}

func snapshotOf(s *stageSeries) stageSnapshot {
	return stageSnapshot{
		PerfSamples:    len(s.successRates),
		QualitySamples: len(s.qualityScores),
		TasksProcessed: s.tasks,
		SuccessRate:    weightedMean(s.successRates, s.weights),
		FallbackRate:   weightedMean(s.fallbackRates, s.weights),
		HandOffRate:    weightedMean(s.handOffRates, s.weights),
		AvgLatencyMs:   weightedMean(s.latencies, s.weights),
		QualityScore:   mean(s.qualityScores),
	}
}
