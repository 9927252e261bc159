// Worker runs the analytics ingestion orchestrator: it schedules the
// aggregation pipelines, coordinates Redis-backed distributed locks so only
// one replica processes a pipeline at a time, and persists derived records to
// Postgres. Set DATABASE_URL and REDIS_ADDR; OTLP_ENDPOINT enables telemetry
// export.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	analyticsrepo "ai-dev-platform/analytics/internal/analytics/repository"
	"ai-dev-platform/analytics/internal/analytics/pipeline"
	"ai-dev-platform/analytics/internal/analytics/service"
	"ai-dev-platform/analytics/internal/config"
	"ai-dev-platform/analytics/internal/db"
	"ai-dev-platform/analytics/internal/locking"
	"ai-dev-platform/analytics/internal/logging"
	"ai-dev-platform/analytics/internal/scheduling"
	"ai-dev-platform/analytics/internal/sharedstate"
	"ai-dev-platform/analytics/internal/telemetry/otel"
	telemetryrepo "ai-dev-platform/analytics/internal/telemetry/repository"
)

const serviceName = "analytics-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	logger := logging.NewStdLogger()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("redis: %v", err)
	}
	pingCancel()

	providers, err := otel.NewProviders(context.Background(), cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	orchestrator, err := service.New(service.Deps{
		Config:    cfg,
		States:    analyticsrepo.NewPostgresRepository(conn),
		Records:   analyticsrepo.NewPostgresRepository(conn),
		Events:    telemetryrepo.NewPostgresRepository(conn),
		Locks:     locking.NewRedisManager(rdb, "analytics:lock", logger),
		Scheduler: scheduling.New(logger),
		Shared:    sharedstate.NewMemoryStore(),
		Alerts:    otel.NewAlertEmitter(providers.LoggerProvider),
		Logger:    logger,
		Tracer:    providers.TracerProvider.Tracer("analytics"),
		Meter:     providers.MeterProvider.Meter("analytics"),
	})
	if err != nil {
		log.Fatalf("orchestrator: %v", err)
	}

	for _, p := range []pipeline.Pipeline{
		pipeline.NewQualityScores(),
		pipeline.NewAgentPerformance(),
		pipeline.NewRepositoryMetrics(),
		pipeline.NewUserEngagement(),
		pipeline.NewAnomalies(),
	} {
		if err := orchestrator.Register(p); err != nil {
			log.Fatalf("register pipeline: %v", err)
		}
	}

	if err := orchestrator.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("worker: shutting down...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := orchestrator.Stop(stopCtx); err != nil {
		log.Printf("worker: stop: %v", err)
	}
	if err := providers.Shutdown(stopCtx); err != nil {
		log.Printf("worker: telemetry shutdown: %v", err)
	}
	log.Println("worker: stopped")
}
