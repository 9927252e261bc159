package pipeline

import "encoding/json"

// Payload shapes produced by the platform's telemetry emitters. All fields
// are optional in the raw JSON; decoding is tolerant and missing fields keep
// their zero values so a malformed event degrades to an "unknown" grouping
// instead of failing the window.

type agentTaskPayload struct {
	Stage        string             `json:"stage"`
	LatencyMs    float64            `json:"latencyMs"`
	FallbackUsed bool               `json:"fallbackUsed"`
	HumanHandOff bool               `json:"humanHandOff"`
	RetryCount   int64              `json:"retryCount"`
	Drivers      map[string]float64 `json:"drivers"`
}

type repositoryPayload struct {
	Repository       string           `json:"repository"`
	Branch           string           `json:"branch"`
	Commits          int64            `json:"commits"`
	Hotspots         map[string]int64 `json:"hotspots"`
	Coverage         *float64         `json:"coverage"`
	PreviousCoverage *float64         `json:"previousCoverage"`
	CoverageDrift    *float64         `json:"coverageDrift"`
}

type engagementPayload struct {
	UserID                string   `json:"userId"`
	SessionID             string   `json:"sessionId"`
	CollaborationID       string   `json:"collaborationId"`
	DurationSec           float64  `json:"durationSec"`
	Feature               string   `json:"feature"`
	ActiveUsers           *int64   `json:"activeUsers"`
	CollaborationSessions *int64   `json:"collaborationSessions"`
	AvgSessionDurationSec *float64 `json:"avgSessionDurationSec"`
}

const unknownStage = "unknown"

func decodeAgentTask(raw []byte) agentTaskPayload {
	var p agentTaskPayload
	_ = json.Unmarshal(raw, &p)
	if p.Stage == "" {
		p.Stage = unknownStage
	}
	return p
}

func decodeRepository(raw []byte) repositoryPayload {
	var p repositoryPayload
	_ = json.Unmarshal(raw, &p)
	if p.Repository == "" {
		p.Repository = unknownStage
	}
	return p
}

func decodeEngagement(raw []byte) engagementPayload {
	var p engagementPayload
	_ = json.Unmarshal(raw, &p)
	return p
}
