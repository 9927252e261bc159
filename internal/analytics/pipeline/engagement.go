package pipeline

import (
	"context"
	"fmt"
	"time"

	analyticsdomain "ai-dev-platform/analytics/internal/analytics/domain"
	"ai-dev-platform/analytics/internal/telemetry/domain"
)

// EngagementPipelineName identifies the platform-wide engagement pipeline.
const EngagementPipelineName = "user-engagement"

// maxFeatureEntries caps the per-window feature usage map.
const maxFeatureEntries = 100

// UserEngagement aggregates platform-wide engagement over one window. Unlike
// the other aggregation pipelines there is no grouping key: the whole window
// collapses into a single record, emitted even when no counted activity
// occurred.
type UserEngagement struct{}

func NewUserEngagement() *UserEngagement { return &UserEngagement{} }

func (p *UserEngagement) Name() string { return EngagementPipelineName }

func (p *UserEngagement) Run(ctx context.Context, pc *Context) (res *Result, err error) {
	started := time.Now()
	ctx, span := startSpan(ctx, pc, p.Name())
	defer func() { endSpan(span, res, err) }()

	events, err := pc.Events.ListByTypes(ctx,
		[]string{domain.EventUserSession, domain.EventCollaboration, domain.EventFeatureUsed},
		pc.Window.Start, pc.Window.End)
	if err != nil {
		return nil, fmt.Errorf("user engagement: fetch events: %w", err)
	}
	if len(events) == 0 {
		return emptyResult(pc.Window, 0, started), nil
	}

	users := make(map[string]struct{})
	collaborations := make(map[string]struct{})
	featureUsage := make(map[string]int64)
	var durationSum float64
	var durationCount int64

	// Explicit aggregate fields win over inference; across events the max
	// seen value is kept (producers may emit cumulative snapshots).
	var explicitActiveUsers, explicitCollabSessions int64 = -1, -1
	explicitAvgDuration := -1.0

	for _, e := range events {
		payload := decodeEngagement(e.Payload)
		if payload.UserID != "" {
			users[payload.UserID] = struct{}{}
		}
		if payload.CollaborationID != "" {
			collaborations[payload.CollaborationID] = struct{}{}
		}
		if e.EventType == domain.EventCollaboration && payload.SessionID != "" {
			collaborations[payload.SessionID] = struct{}{}
		}
		if payload.DurationSec > 0 {
			durationSum += payload.DurationSec
			durationCount++
		}
		if payload.Feature != "" {
			if _, exists := featureUsage[payload.Feature]; exists || len(featureUsage) < maxFeatureEntries {
				featureUsage[payload.Feature]++
			}
		}
		if payload.ActiveUsers != nil && *payload.ActiveUsers > explicitActiveUsers {
			explicitActiveUsers = *payload.ActiveUsers
		}
		if payload.CollaborationSessions != nil && *payload.CollaborationSessions > explicitCollabSessions {
			explicitCollabSessions = *payload.CollaborationSessions
		}
		if payload.AvgSessionDurationSec != nil && *payload.AvgSessionDurationSec > explicitAvgDuration {
			explicitAvgDuration = *payload.AvgSessionDurationSec
		}
	}

	activeUsers := int64(len(users))
	if explicitActiveUsers >= 0 {
		activeUsers = explicitActiveUsers
	}
	collabSessions := int64(len(collaborations))
	if explicitCollabSessions >= 0 {
		collabSessions = explicitCollabSessions
	}
	avgDuration := 0.0
	if durationCount > 0 {
		avgDuration = durationSum / float64(durationCount)
	}
	if explicitAvgDuration >= 0 {
		avgDuration = explicitAvgDuration
	}

	var warnings []string
	if activeUsers == 0 && collabSessions == 0 && len(featureUsage) == 0 {
		warnings = append(warnings, "no countable engagement activity in window")
	}

	metric := &analyticsdomain.UserEngagementMetric{
		WindowStart:           pc.Window.Start,
		WindowEnd:             pc.Window.End,
		ActiveUsers:           activeUsers,
		CollaborationSessions: collabSessions,
		AvgSessionDurationSec: avgDuration,
		FeatureUsage:          featureUsage,
	}
	if err := pc.Records.RecordUserEngagement(ctx, metric); err != nil {
		return nil, fmt.Errorf("user engagement: record window: %w", err)
	}

	res = &Result{
		RecordsProcessed:       1,
		TelemetryEventsScanned: len(events),
		DurationMs:             time.Since(started).Milliseconds(),
		Warnings:               warnings,
		Metadata: map[string]any{
			"activeUsers":           activeUsers,
			"collaborationSessions": collabSessions,
		},
		NextCursor: pc.Window.End,
	}
	return res, nil
}
