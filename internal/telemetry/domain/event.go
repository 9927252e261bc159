package domain

import "time"

// Event types produced by the platform's agents, editors, and collaboration
// features. The ingestion pipelines only ever read these; producers live
// outside this service.
const (
	EventAgentTaskCompleted = "agent_task_completed"
	EventAgentTaskFailed    = "agent_task_failed"
	EventRepositoryCommit   = "repository_commit"
	EventRepositoryRefactor = "repository_refactor"
	EventRepositoryCoverage = "repository_coverage"
	EventUserSession        = "user_session"
	EventCollaboration      = "collaboration_event"
	EventFeatureUsed        = "feature_used"
)

// Event represents a raw telemetry event. Append-only and immutable; this
// service only reads events within aggregation windows.
type Event struct {
	ID         int64
	EventType  string
	Payload    []byte // JSONB
	OccurredAt time.Time
}
