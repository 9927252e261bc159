package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"ai-dev-platform/analytics/internal/analytics/domain"
	"ai-dev-platform/analytics/internal/config"
)

// QualityPipelineName identifies the per-stage quality score pipeline.
const QualityPipelineName = "quality-scores"

// QualityScores derives a 0-100 quality score per agent stage from the
// window's task outcomes, via a weighted linear model over outcome rates.
type QualityScores struct{}

func NewQualityScores() *QualityScores { return &QualityScores{} }

func (p *QualityScores) Name() string { return QualityPipelineName }

func (p *QualityScores) Run(ctx context.Context, pc *Context) (res *Result, err error) {
	started := time.Now()
	ctx, span := startSpan(ctx, pc, p.Name())
	defer func() { endSpan(span, res, err) }()

	stages, scanned, err := fetchAgentTaskStages(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("quality scores: fetch events: %w", err)
	}
	if len(stages) == 0 {
		return emptyResult(pc.Window, scanned, started), nil
	}

	cfg := pc.Config
	var warnings []string
	records := 0
	for _, stage := range sortedStages(stages) {
		acc := stages[stage]
		score, drivers := qualityScore(cfg, acc)
		obs := &domain.QualityScoreObservation{
			AgentStage: stage,
			Score:      score,
			Drivers:    drivers,
			OccurredAt: pc.Window.End,
		}
		if err := pc.Records.RecordQualityScore(ctx, obs); err != nil {
			return nil, fmt.Errorf("quality scores: record stage %s: %w", stage, err)
		}
		records++
		if acc.total < int64(cfg.QualityConfidentTaskCount) {
			warnings = append(warnings, fmt.Sprintf(
				"stage %s has %d samples, below confidence threshold %d",
				stage, acc.total, cfg.QualityConfidentTaskCount))
		}
	}

	res = &Result{
		RecordsProcessed:       records,
		TelemetryEventsScanned: scanned,
		DurationMs:             time.Since(started).Milliseconds(),
		Warnings:               warnings,
		Metadata:               map[string]any{"stages": records},
		NextCursor:             pc.Window.End,
	}
	return res, nil
}

// qualityScore applies the weighted linear model and maps the output onto a
// 0-100 score. The latency term compares the stage's mean latency against the
// configured baseline; positive deltas (slower than baseline) pull the score
// down. A non-finite result clamps to 0.
func qualityScore(cfg *config.Config, acc *stageAccumulator) (float64, map[string]float64) {
	successRate := acc.successRate()
	failureRate := acc.failureRate()
	fallbackRate := acc.fallbackRate()
	handOffRate := acc.handOffRate()
	retryRate := acc.retryRate()

	avgLatency := acc.avgLatencyMs(cfg.QualityLatencyBaselineMs)
	latencyDelta := (avgLatency - cfg.QualityLatencyBaselineMs) / cfg.QualityLatencyBaselineMs

	raw := cfg.QualityBaseIntercept +
		cfg.QualityWeightSuccess*successRate +
		cfg.QualityWeightFailure*failureRate +
		cfg.QualityWeightLatency*(-latencyDelta) +
		cfg.QualityWeightFallback*(-fallbackRate) +
		cfg.QualityWeightHandOff*(-handOffRate) +
		cfg.QualityWeightRetry*(-retryRate)

	score := raw*20 + 50
	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = 0
	}
	score = math.Max(0, math.Min(100, score))

	drivers := map[string]float64{
		"successRate":  successRate,
		"failureRate":  failureRate,
		"latencyDelta": latencyDelta,
		"fallbackRate": fallbackRate,
		"handOffRate":  handOffRate,
		"retryRate":    retryRate,
	}
	for name, count := range acc.driverCounts {
		if count > 0 {
			drivers[name] = acc.driverSums[name] / float64(count)
		}
	}
	return score, drivers
}
