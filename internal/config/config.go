// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN; required for the worker and migrate binaries.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the host:port of the Redis instance backing distributed locks (e.g. localhost:6379).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the Redis logical database index.
	RedisDB int `mapstructure:"REDIS_DB"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. http://localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// IngestionIntervalMs is how often each pipeline is triggered, in milliseconds.
	IngestionIntervalMs int `mapstructure:"INGESTION_INTERVAL_MS"`
	// IngestionWindowMinutes is the width of one aggregation window, in minutes.
	IngestionWindowMinutes int `mapstructure:"INGESTION_WINDOW_MINUTES"`

	// Quality score model. Rates enter the linear model scaled to [0,1]; the
	// combined output is mapped onto a 0-100 score by the pipeline.
	QualityBaseIntercept     float64 `mapstructure:"QUALITY_BASE_INTERCEPT"`
	QualityWeightSuccess     float64 `mapstructure:"QUALITY_WEIGHT_SUCCESS"`
	QualityWeightFailure     float64 `mapstructure:"QUALITY_WEIGHT_FAILURE"`
	QualityWeightLatency     float64 `mapstructure:"QUALITY_WEIGHT_LATENCY"`
	QualityWeightFallback    float64 `mapstructure:"QUALITY_WEIGHT_FALLBACK"`
	QualityWeightHandOff     float64 `mapstructure:"QUALITY_WEIGHT_HANDOFF"`
	QualityWeightRetry       float64 `mapstructure:"QUALITY_WEIGHT_RETRY"`
	QualityLatencyBaselineMs float64 `mapstructure:"QUALITY_LATENCY_BASELINE_MS"`
	// QualityConfidentTaskCount is the minimum samples per stage before a score is considered confident.
	QualityConfidentTaskCount int `mapstructure:"QUALITY_CONFIDENT_TASK_COUNT"`

	// Anomaly detection thresholds.
	AnomalyMinSamples           int     `mapstructure:"ANOMALY_MIN_SAMPLES"`
	AnomalyStdDeviations        float64 `mapstructure:"ANOMALY_STD_DEVIATIONS"`
	AnomalyCriticalSuccessRate  float64 `mapstructure:"ANOMALY_CRITICAL_SUCCESS_RATE"`
	AnomalyWarningLatencyFactor float64 `mapstructure:"ANOMALY_WARNING_LATENCY_FACTOR"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	v.SetDefault("INGESTION_INTERVAL_MS", 60000)
	v.SetDefault("INGESTION_WINDOW_MINUTES", 15)

	v.SetDefault("QUALITY_BASE_INTERCEPT", 0.35)
	v.SetDefault("QUALITY_WEIGHT_SUCCESS", 1.6)
	v.SetDefault("QUALITY_WEIGHT_FAILURE", -1.2)
	v.SetDefault("QUALITY_WEIGHT_LATENCY", 0.8)
	v.SetDefault("QUALITY_WEIGHT_FALLBACK", 0.9)
	v.SetDefault("QUALITY_WEIGHT_HANDOFF", 0.7)
	v.SetDefault("QUALITY_WEIGHT_RETRY", 0.5)
	v.SetDefault("QUALITY_LATENCY_BASELINE_MS", 2500)
	v.SetDefault("QUALITY_CONFIDENT_TASK_COUNT", 5)

	v.SetDefault("ANOMALY_MIN_SAMPLES", 3)
	v.SetDefault("ANOMALY_STD_DEVIATIONS", 2.0)
	v.SetDefault("ANOMALY_CRITICAL_SUCCESS_RATE", 0.5)
	v.SetDefault("ANOMALY_WARNING_LATENCY_FACTOR", 1.5)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.IngestionIntervalMs <= 0 {
		return nil, errors.New("config: INGESTION_INTERVAL_MS must be positive")
	}
	if cfg.IngestionWindowMinutes <= 0 {
		return nil, errors.New("config: INGESTION_WINDOW_MINUTES must be positive")
	}
	if cfg.QualityLatencyBaselineMs <= 0 {
		return nil, errors.New("config: QUALITY_LATENCY_BASELINE_MS must be positive")
	}
	if cfg.AnomalyMinSamples < 1 {
		return nil, errors.New("config: ANOMALY_MIN_SAMPLES must be at least 1")
	}
	if cfg.AnomalyStdDeviations <= 0 {
		return nil, errors.New("config: ANOMALY_STD_DEVIATIONS must be positive")
	}
	if cfg.AnomalyCriticalSuccessRate < 0 || cfg.AnomalyCriticalSuccessRate > 1 {
		return nil, errors.New("config: ANOMALY_CRITICAL_SUCCESS_RATE must be in [0,1]")
	}
	if cfg.AnomalyWarningLatencyFactor < 1 {
		return nil, errors.New("config: ANOMALY_WARNING_LATENCY_FACTOR must be at least 1")
	}

	return &cfg, nil
}

// IngestionInterval returns the pipeline trigger interval as a time.Duration.
func (c *Config) IngestionInterval() time.Duration {
	return time.Duration(c.IngestionIntervalMs) * time.Millisecond
}

// WindowDuration returns the aggregation window width as a time.Duration.
func (c *Config) WindowDuration() time.Duration {
	return time.Duration(c.IngestionWindowMinutes) * time.Minute
}

// LockTTL returns the distributed lock TTL: twice the trigger interval with a
// 60s floor, so a crashed holder cannot stall a pipeline for long while slow
// runs and clock skew stay covered.
func (c *Config) LockTTL() time.Duration {
	ttl := 2 * c.IngestionInterval()
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}
