package pipeline

import (
	"context"
	"sort"

	"ai-dev-platform/analytics/internal/telemetry/domain"
)

// stageAccumulator gathers per-stage counters over one window's agent task
// events. Shared by the quality-score and agent-performance pipelines.
type stageAccumulator struct {
	total        int64
	successes    int64
	failures     int64
	latencySum   float64
	latencyCount int64
	fallbacks    int64
	handOffs     int64
	retries      int64
	driverSums   map[string]float64
	driverCounts map[string]int64
}

func (a *stageAccumulator) successRate() float64 { return ratio(a.successes, a.total) }
func (a *stageAccumulator) failureRate() float64 { return ratio(a.failures, a.total) }
func (a *stageAccumulator) fallbackRate() float64 {
	return ratio(a.fallbacks, a.total)
}
func (a *stageAccumulator) handOffRate() float64 { return ratio(a.handOffs, a.total) }
func (a *stageAccumulator) retryRate() float64   { return ratio(a.retries, a.total) }

// avgLatencyMs returns the mean observed latency, or fallback when no event
// carried a latency sample.
func (a *stageAccumulator) avgLatencyMs(fallback float64) float64 {
	if a.latencyCount == 0 {
		return fallback
	}
	return a.latencySum / float64(a.latencyCount)
}

func ratio(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

// fetchAgentTaskStages loads the window's agent task events and accumulates
// them per stage. Returns the accumulators and the number of events scanned.
func fetchAgentTaskStages(ctx context.Context, pc *Context) (map[string]*stageAccumulator, int, error) {
	events, err := pc.Events.ListByTypes(ctx,
		[]string{domain.EventAgentTaskCompleted, domain.EventAgentTaskFailed},
		pc.Window.Start, pc.Window.End)
	if err != nil {
		return nil, 0, err
	}

	stages := make(map[string]*stageAccumulator)
	for _, e := range events {
		p := decodeAgentTask(e.Payload)
		acc := stages[p.Stage]
		if acc == nil {
			acc = &stageAccumulator{
				driverSums:   make(map[string]float64),
				driverCounts: make(map[string]int64),
			}
			stages[p.Stage] = acc
		}
		acc.total++
		if e.EventType == domain.EventAgentTaskFailed {
			acc.failures++
		} else {
			acc.successes++
		}
		if p.LatencyMs > 0 {
			acc.latencySum += p.LatencyMs
			acc.latencyCount++
		}
		if p.FallbackUsed {
			acc.fallbacks++
		}
		if p.HumanHandOff {
			acc.handOffs++
		}
		acc.retries += p.RetryCount
		for name, v := range p.Drivers {
			acc.driverSums[name] += v
			acc.driverCounts[name]++
		}
	}
	return stages, len(events), nil
}

// sortedStages returns stage names in deterministic order so warnings and
// record writes are stable across identical runs.
func sortedStages(stages map[string]*stageAccumulator) []string {
	names := make([]string, 0, len(stages))
	for name := range stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
