package pipeline

import (
	"context"
	"fmt"
	"time"

	"ai-dev-platform/analytics/internal/analytics/domain"
)

// AgentPerformancePipelineName identifies the per-stage performance pipeline.
const AgentPerformancePipelineName = "agent-performance"

// AgentPerformance aggregates task throughput, latency, and outcome rates per
// agent stage over one window.
type AgentPerformance struct{}

func NewAgentPerformance() *AgentPerformance { return &AgentPerformance{} }

func (p *AgentPerformance) Name() string { return AgentPerformancePipelineName }

func (p *AgentPerformance) Run(ctx context.Context, pc *Context) (res *Result, err error) {
	started := time.Now()
	ctx, span := startSpan(ctx, pc, p.Name())
	defer func() { endSpan(span, res, err) }()

	stages, scanned, err := fetchAgentTaskStages(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("agent performance: fetch events: %w", err)
	}
	if len(stages) == 0 {
		return emptyResult(pc.Window, scanned, started), nil
	}

	var warnings []string
	records := 0
	for _, stage := range sortedStages(stages) {
		acc := stages[stage]
		metric := &domain.AgentPerformanceMetric{
			AgentStage:       stage,
			WindowStart:      pc.Window.Start,
			WindowEnd:        pc.Window.End,
			TasksProcessed:   acc.total,
			AvgLatencyMs:     acc.avgLatencyMs(0),
			SuccessRate:      acc.successRate(),
			FallbackRate:     acc.fallbackRate(),
			HumanHandOffRate: acc.handOffRate(),
		}
		if err := pc.Records.RecordAgentPerformance(ctx, metric); err != nil {
			return nil, fmt.Errorf("agent performance: record stage %s: %w", stage, err)
		}
		records++
		if acc.latencyCount == 0 {
			warnings = append(warnings, fmt.Sprintf("stage %s has no latency samples", stage))
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
