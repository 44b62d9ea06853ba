// Package config holds the single construction-time configuration for the
// autopilot core. Collaborators pass one Config into the wiring layer; no
// component reads the environment on its own.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration for the pipeline.
type Config struct {
	// Redis (the KeyValueStore collaborator)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Anomaly detection
	ZScoreThreshold float64       // emit an anomaly above this many sigmas
	WarmupSamples   int           // baseline samples required before gating
	BaselineWindow  int           // retained values per (service, metric)
	BaselineTTL     time.Duration // baseline expiry after inactivity
	AnomalyListCap  int           // per-service recent-anomaly ring size
	AnomalyTTL      time.Duration

	// Autonomous execution
	Mode                 string // manual | supervised | autonomous | night
	ConfidenceThreshold  float64
	RuleWeight           float64
	AIWeight             float64
	HistoryWeight        float64
	ActionCooldown       time.Duration // per (service, actionType)
	MaxConcurrentActions int
	RollbacksPerHour     int
	NightStartHour       int // UTC, inclusive
	NightEndHour         int // UTC, exclusive
	DryRun               bool

	// Worker loops
	MetricPollInterval time.Duration
	LogPollInterval    time.Duration
	CorrelateInterval  time.Duration
	DrainInterval      time.Duration
	TriggerThreshold   int           // anomalies per service before incident analysis
	ClusterWindow      time.Duration // correlation lookback per service

	// External call deadlines
	AnalyzerTimeout time.Duration // LLM seam
	ProviderTimeout time.Duration // action providers

	// Observability
	MetricsAddr string // empty disables the /metrics listener
	LogLevel    string
}

// Defaults returns the configuration the pipeline ships with.
func Defaults() Config {
	return Config{
		RedisAddr: "127.0.0.1:6379",

		ZScoreThreshold: 2.5,
		WarmupSamples:   10,
		BaselineWindow:  1000,
		BaselineTTL:     7 * 24 * time.Hour,
		AnomalyListCap:  100,
		AnomalyTTL:      24 * time.Hour,

		Mode:                 "supervised",
		ConfidenceThreshold:  75,
		RuleWeight:           0.40,
		AIWeight:             0.40,
		HistoryWeight:        0.20,
		ActionCooldown:       300 * time.Second,
		MaxConcurrentActions: 3,
		RollbacksPerHour:     2,
		NightStartHour:       22,
		NightEndHour:         6,
		DryRun:               true,

		MetricPollInterval: 2 * time.Second,
		LogPollInterval:    2 * time.Second,
		CorrelateInterval:  10 * time.Second,
		DrainInterval:      5 * time.Second,
		TriggerThreshold:   3,
		ClusterWindow:      5 * time.Minute,

		AnalyzerTimeout: 120 * time.Second,
		ProviderTimeout: 30 * time.Second,

		MetricsAddr: "",
		LogLevel:    "info",
	}
}

// FromEnv layers AUTOPILOT_* environment variables over Defaults.
func FromEnv() (Config, error) {
	cfg := Defaults()

	cfg.RedisAddr = envString("AUTOPILOT_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("AUTOPILOT_REDIS_PASSWORD", cfg.RedisPassword)

	var err error
	if cfg.RedisDB, err = envInt("AUTOPILOT_REDIS_DB", cfg.RedisDB); err != nil {
		return cfg, err
	}
	if cfg.ZScoreThreshold, err = envFloat("AUTOPILOT_ZSCORE_THRESHOLD", cfg.ZScoreThreshold); err != nil {
		return cfg, err
	}
	if cfg.ConfidenceThreshold, err = envFloat("AUTOPILOT_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold); err != nil {
		return cfg, err
	}
	if cfg.MaxConcurrentActions, err = envInt("AUTOPILOT_MAX_CONCURRENT_ACTIONS", cfg.MaxConcurrentActions); err != nil {
		return cfg, err
	}
	if cfg.NightStartHour, err = envInt("AUTOPILOT_NIGHT_START_HOUR", cfg.NightStartHour); err != nil {
		return cfg, err
	}
	if cfg.NightEndHour, err = envInt("AUTOPILOT_NIGHT_END_HOUR", cfg.NightEndHour); err != nil {
		return cfg, err
	}
	if cfg.ActionCooldown, err = envDuration("AUTOPILOT_ACTION_COOLDOWN", cfg.ActionCooldown); err != nil {
		return cfg, err
	}
	if cfg.DryRun, err = envBool("AUTOPILOT_DRY_RUN", cfg.DryRun); err != nil {
		return cfg, err
	}
	cfg.Mode = envString("AUTOPILOT_MODE", cfg.Mode)
	cfg.MetricsAddr = envString("AUTOPILOT_METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = envString("AUTOPILOT_LOG_LEVEL", cfg.LogLevel)

	return cfg, cfg.Validate()
}

// Validate rejects configurations the executor cannot run with.
func (c Config) Validate() error {
	switch c.Mode {
	case "manual", "supervised", "autonomous", "night":
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		return fmt.Errorf("config: confidence threshold %v out of range [0,100]", c.ConfidenceThreshold)
	}
	sum := c.RuleWeight + c.AIWeight + c.HistoryWeight
	if sum <= 0 {
		return fmt.Errorf("config: confidence weights must sum to a positive value, got %v", sum)
	}
	if c.NightStartHour < 0 || c.NightStartHour > 23 || c.NightEndHour < 0 || c.NightEndHour > 23 {
		return fmt.Errorf("config: night hours must be within 0-23")
	}
	if c.MaxConcurrentActions < 1 {
		return fmt.Errorf("config: max concurrent actions must be at least 1")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
