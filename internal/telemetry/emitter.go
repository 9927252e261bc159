// Package telemetry defines the outbound telemetry surfaces of the service:
// raw event access lives in repository, and detected anomalies flow out
// through an AlertEmitter.
package telemetry

import (
	"context"

	"ai-dev-platform/analytics/internal/analytics/domain"
)

// AlertEmitter publishes a detected anomaly to an external alerting sink.
// Emission is best-effort; persistence in the anomalies table is the source
// of truth and an emit failure never fails the pipeline window.
type AlertEmitter interface {
	Emit(ctx context.Context, anomaly *domain.AnalyticsAnomaly) error
}
