// seed inserts synthetic telemetry events for local testing, spread over the
// trailing two hours so the pipelines have several windows of history to chew
// through. Safe to run repeatedly; every run appends a fresh batch.
package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"ai-dev-platform/analytics/internal/config"
	"ai-dev-platform/analytics/internal/db"
	"ai-dev-platform/analytics/internal/telemetry/domain"
	"ai-dev-platform/analytics/internal/telemetry/repository"
)

var stages = []string{"planning", "codegen", "review", "testing"}

var features = []string{"inline-completion", "chat", "refactor", "test-generation"}

var repositories = []string{"platform/api", "platform/web", "agents/core"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	events := repository.NewPostgresRepository(conn)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	now := time.Now().UTC()
	start := now.Add(-2 * time.Hour)
	count := 0

	userIDs := make([]string, 8)
	for i := range userIDs {
		userIDs[i] = uuid.NewString()
	}

	save := func(eventType string, occurredAt time.Time, payload map[string]any) {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Fatalf("marshal payload: %v", err)
		}
		if err := events.Save(ctx, &domain.Event{
			EventType:  eventType,
			Payload:    raw,
			OccurredAt: occurredAt,
		}); err != nil {
			log.Fatalf("save %s: %v", eventType, err)
		}
		count++
	}

	for at := start; at.Before(now); at = at.Add(30 * time.Second) {
		stage := stages[rng.Intn(len(stages))]
		eventType := domain.EventAgentTaskCompleted
		if rng.Float64() < 0.12 {
			eventType = domain.EventAgentTaskFailed
		}
		save(eventType, at, map[string]any{
			"stage":        stage,
			"latencyMs":    1200 + rng.Float64()*3000,
			"fallbackUsed": rng.Float64() < 0.08,
			"humanHandOff": rng.Float64() < 0.04,
			"retryCount":   rng.Intn(3),
			"drivers":      map[string]float64{"testCoverage": 0.5 + rng.Float64()*0.5},
		})

		if rng.Float64() < 0.3 {
			repo := repositories[rng.Intn(len(repositories))]
			save(domain.EventRepositoryCommit, at, map[string]any{
				"repository": repo,
				"branch":     "main",
				"commits":    1 + rng.Intn(3),
			})
			if rng.Float64() < 0.4 {
				save(domain.EventRepositoryCoverage, at, map[string]any{
					"repository":       repo,
					"coverage":         0.6 + rng.Float64()*0.3,
					"previousCoverage": 0.6 + rng.Float64()*0.3,
				})
			}
		}

		if rng.Float64() < 0.5 {
			save(domain.EventUserSession, at, map[string]any{
				"userId":      userIDs[rng.Intn(len(userIDs))],
				"sessionId":   uuid.NewString(),
				"durationSec": 60 + rng.Float64()*900,
			})
		}
		if rng.Float64() < 0.4 {
			save(domain.EventFeatureUsed, at, map[string]any{
				"userId":  userIDs[rng.Intn(len(userIDs))],
				"feature": features[rng.Intn(len(features))],
			})
		}
		if rng.Float64() < 0.1 {
			save(domain.EventCollaboration, at, map[string]any{
				"userId":    userIDs[rng.Intn(len(userIDs))],
				"sessionId": uuid.NewString(),
			})
		}
	}

	log.Printf("Seeded %d telemetry events covering %s to %s.",
		count, start.Format(time.RFC3339), now.Format(time.RFC3339))
}
