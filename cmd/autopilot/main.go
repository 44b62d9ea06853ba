package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsloop/autopilot/internal/actions"
	"github.com/opsloop/autopilot/internal/analysis"
	"github.com/opsloop/autopilot/internal/anomaly"
	"github.com/opsloop/autopilot/internal/autonomous"
	"github.com/opsloop/autopilot/internal/config"
	"github.com/opsloop/autopilot/internal/decisionlog"
	"github.com/opsloop/autopilot/internal/deployrisk"
	"github.com/opsloop/autopilot/internal/knowledge"
	"github.com/opsloop/autopilot/internal/kvstore"
	"github.com/opsloop/autopilot/internal/learning"
	"github.com/opsloop/autopilot/internal/logging"
	"github.com/opsloop/autopilot/internal/repeat"
	"github.com/opsloop/autopilot/internal/worker"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "autopilot",
	Short:   "Autopilot - autonomous incident response core",
	Long:    `Autopilot watches service metrics and logs, detects anomalies, analyzes incidents, and executes safe remediations on its own.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runPipeline()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Autopilot %s\n", Version)
		fmt.Printf("Built: %s\n", BuildTime)
		fmt.Printf("Commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPipeline() {
	// .env is optional; environment variables win.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "autopilot: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:     cfg.LogLevel,
		Component: "autopilot",
	})

	log.Info().
		Str("version", Version).
		Str("mode", cfg.Mode).
		Bool("dryRun", cfg.DryRun).
		Msg("Starting autopilot")

	store, err := kvstore.NewRedisStore(kvstore.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store client")
	}
	defer store.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = store.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Store unreachable")
	}

	detector := anomaly.NewDetector(store, anomaly.Config{
		ZScoreThreshold: cfg.ZScoreThreshold,
		WarmupSamples:   cfg.WarmupSamples,
		WindowSize:      cfg.BaselineWindow,
		BaselineTTL:     cfg.BaselineTTL,
		AnomalyListCap:  cfg.AnomalyListCap,
		AnomalyTTL:      cfg.AnomalyTTL,
	})

	base := knowledge.NewBase()
	hydrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := base.HydrateUserPatterns(hydrateCtx, store); err != nil {
		log.Warn().Err(err).Msg("User pattern hydration failed, continuing with builtins")
	}
	cancel()
	log.Info().Int("patterns", base.Count()).Msg("Knowledge base loaded")

	engine := learning.NewEngine(store)
	base.SetStatsProvider(engine)

	analyzer := analysis.NewAnalyzer(store, base, engine, detector, nil, cfg.AnalyzerTimeout)
	executor := actions.NewExecutor(store, actions.DefaultProviders(), cfg.DryRun, cfg.ProviderTimeout)
	decisions := decisionlog.NewLogger(store)

	auto := autonomous.NewExecutor(autonomous.Config{
		Mode:                autonomous.Mode(cfg.Mode),
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		RuleWeight:          cfg.RuleWeight,
		AIWeight:            cfg.AIWeight,
		HistoryWeight:       cfg.HistoryWeight,
		Cooldown:            cfg.ActionCooldown,
		MaxConcurrent:       cfg.MaxConcurrentActions,
		RollbacksPerHour:    cfg.RollbacksPerHour,
		NightStartHour:      cfg.NightStartHour,
		NightEndHour:        cfg.NightEndHour,
	}, store, executor, engine, detector, decisions)

	repeats := repeat.NewEliminator(store, executor)
	risks := deployrisk.NewAnalyzer(store, detector, analyzer)

	pipeline := worker.NewPipeline(worker.Config{
		MetricPollInterval: cfg.MetricPollInterval,
		LogPollInterval:    cfg.LogPollInterval,
		CorrelateInterval:  cfg.CorrelateInterval,
		DrainInterval:      cfg.DrainInterval,
		TriggerThreshold:   cfg.TriggerThreshold,
		ClusterWindow:      cfg.ClusterWindow,
	}, store, detector, analyzer, auto, executor, repeats, risks)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Pipeline exited with error")
	}
	logging.Shutdown()
	log.Info().Msg("Autopilot stopped")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info().Str("addr", addr).Msg("Metrics listener started")
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics listener failed")
	}
}
