// Package worker runs the four cooperative loops of the pipeline:
// metric ingestion, log ingestion, anomaly correlation, and the
// approved-action drain. Loops are independent, pace themselves with
// sleeps, and never die on a single bad item.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/opsloop/autopilot/internal/actions"
	"github.com/opsloop/autopilot/internal/analysis"
	"github.com/opsloop/autopilot/internal/anomaly"
	"github.com/opsloop/autopilot/internal/autonomous"
	"github.com/opsloop/autopilot/internal/decisionlog"
	"github.com/opsloop/autopilot/internal/deployrisk"
	"github.com/opsloop/autopilot/internal/kvstore"
	"github.com/opsloop/autopilot/internal/monitoring"
	"github.com/opsloop/autopilot/internal/repeat"
)

const (
	metricQueue    = "ingest:metrics"
	logQueue       = "ingest:logs"
	deployQueue    = "ingest:deployments"
	servicesSet    = "services"
	recentLogsCap  = 200
	recentLogsTTL  = 24 * time.Hour
	batchLimit     = 100
	analyzeLogSpan = 50
	probeInterval  = 10 * time.Second
	drainTimeout   = 30 * time.Second
)

func recentLogsKey(service string) string { return "recent_logs:" + service }
func triggerKey(service string) string    { return "correlated:" + service }

// Config paces the loops.
type Config struct {
	MetricPollInterval time.Duration
	LogPollInterval    time.Duration
	CorrelateInterval  time.Duration
	DrainInterval      time.Duration
	TriggerThreshold   int
	ClusterWindow      time.Duration
}

// DefaultConfig returns the shipping pacing.
func DefaultConfig() Config {
	return Config{
		MetricPollInterval: 2 * time.Second,
		LogPollInterval:    2 * time.Second,
		CorrelateInterval:  10 * time.Second,
		DrainInterval:      5 * time.Second,
		TriggerThreshold:   3,
		ClusterWindow:      5 * time.Minute,
	}
}

// MetricSample is the wire form of one ingested metric observation.
type MetricSample struct {
	Service   string    `json:"service"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// LogLine is the wire form of one ingested log line.
type LogLine struct {
	Service   string    `json:"service"`
	Line      string    `json:"line"`
	Timestamp time.Time `json:"timestamp"`
}

// DeployEvent is the wire form of one announced deployment.
type DeployEvent struct {
	Service         string    `json:"service"`
	Version         string    `json:"version"`
	FromVersion     string    `json:"from_version,omitempty"`
	HasMigration    bool      `json:"has_migration,omitempty"`
	HasConfigChange bool      `json:"has_config_change,omitempty"`
	FilesChanged    int       `json:"files_changed,omitempty"`
	Dependencies    []string  `json:"dependencies,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Pipeline wires the loops to the core components.
type Pipeline struct {
	cfg        Config
	store      kvstore.Store
	detector   *anomaly.Detector
	analyzer   *analysis.Analyzer
	autonomous *autonomous.Executor
	actions    *actions.Executor
	repeats    *repeat.Eliminator
	risks      *deployrisk.Analyzer
	metrics    *monitoring.PipelineMetrics
}

func NewPipeline(cfg Config, store kvstore.Store, det *anomaly.Detector, an *analysis.Analyzer, auto *autonomous.Executor, act *actions.Executor, rep *repeat.Eliminator, risks *deployrisk.Analyzer) *Pipeline {
	def := DefaultConfig()
	if cfg.MetricPollInterval <= 0 {
		cfg.MetricPollInterval = def.MetricPollInterval
	}
	if cfg.LogPollInterval <= 0 {
		cfg.LogPollInterval = def.LogPollInterval
	}
	if cfg.CorrelateInterval <= 0 {
		cfg.CorrelateInterval = def.CorrelateInterval
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = def.DrainInterval
	}
	if cfg.TriggerThreshold <= 0 {
		cfg.TriggerThreshold = def.TriggerThreshold
	}
	if cfg.ClusterWindow <= 0 {
		cfg.ClusterWindow = def.ClusterWindow
	}
	return &Pipeline{
		cfg:        cfg,
		store:      store,
		detector:   det,
		analyzer:   an,
		autonomous: auto,
		actions:    act,
		repeats:    rep,
		risks:      risks,
		metrics:    monitoring.Get(),
	}
}

// Run starts the loops and blocks until the context is cancelled. After
// cancellation the approved queue gets a bounded final drain so in-flight
// approvals are not lost.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.loop(ctx, "metric_poll", p.cfg.MetricPollInterval, p.pollMetrics) })
	g.Go(func() error { return p.loop(ctx, "log_poll", p.cfg.LogPollInterval, p.pollLogs) })
	g.Go(func() error { return p.loop(ctx, "correlate", p.cfg.CorrelateInterval, p.correlate) })
	g.Go(func() error { return p.loop(ctx, "drain", p.cfg.DrainInterval, p.drainApproved) })
	g.Go(func() error { return p.loop(ctx, "deploy_poll", p.cfg.LogPollInterval, p.pollDeployments) })
	g.Go(func() error {
		return p.loop(ctx, "store_probe", probeInterval, func(ctx context.Context) error {
			p.autonomous.ProbeStore(ctx)
			return nil
		})
	})
	err := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if derr := p.drainApproved(drainCtx); derr != nil {
		log.Warn().Err(derr).Msg("Final drain incomplete")
	}
	return err
}

// loop runs one iteration per interval. Iteration errors are logged and
// counted but never stop the loop; only context cancellation does. An
// iteration slower than the interval skips the backlog instead of
// queueing behind it.
func (p *Pipeline) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	log.Info().Str("loop", name).Dur("interval", interval).Msg("Loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("loop", name).Msg("Loop stopped")
			return nil
		case <-time.After(interval):
		}
		start := time.Now()
		err := fn(ctx)
		elapsed := time.Since(start)
		p.metrics.RecordLoopIteration(name, err, elapsed)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("loop", name).Msg("Loop iteration failed")
		}
		if elapsed > interval {
			log.Warn().Str("loop", name).Dur("elapsed", elapsed).Msg("Iteration slower than interval, skipping backlog")
		}
	}
}

// pollMetrics drains a batch of ingested samples into the detector.
func (p *Pipeline) pollMetrics(ctx context.Context) error {
	for i := 0; i < batchLimit; i++ {
		raw, err := p.store.RPop(ctx, metricQueue)
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var s MetricSample
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed metric sample")
			continue
		}
		if s.Timestamp.IsZero() {
			s.Timestamp = time.Now().UTC()
		}
		if err := p.store.SAdd(ctx, servicesSet, s.Service); err != nil {
			log.Warn().Err(err).Str("service", s.Service).Msg("Failed to track active service")
		}
		if _, err := p.detector.Process(ctx, anomaly.Sample{
			Service:   s.Service,
			Metric:    s.Metric,
			Value:     s.Value,
			Timestamp: s.Timestamp,
		}); err != nil {
			log.Warn().Err(err).Str("service", s.Service).Str("metric", s.Metric).Msg("Sample processing failed")
		}
	}
	return nil
}

// pollLogs files ingested log lines into per-service rings.
func (p *Pipeline) pollLogs(ctx context.Context) error {
	for i := 0; i < batchLimit; i++ {
		raw, err := p.store.RPop(ctx, logQueue)
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var line LogLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed log line")
			continue
		}
		key := recentLogsKey(line.Service)
		if err := p.store.LPush(ctx, key, line.Line); err != nil {
			log.Warn().Err(err).Str("service", line.Service).Msg("Failed to file log line")
			continue
		}
		if err := p.store.LTrim(ctx, key, 0, recentLogsCap-1); err != nil {
			log.Warn().Err(err).Str("service", line.Service).Msg("Failed to trim log ring")
		}
		if err := p.store.Expire(ctx, key, recentLogsTTL); err != nil {
			log.Warn().Err(err).Str("service", line.Service).Msg("Failed to refresh log ring TTL")
		}
	}
	return nil
}

// correlate looks for services whose recent anomalies cluster inside the
// window and pushes them through analysis and the autonomous decision.
func (p *Pipeline) correlate(ctx context.Context) error {
	services, err := p.store.SMembers(ctx, servicesSet)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil
		}
		return err
	}
	for _, service := range services {
		if err := p.correlateService(ctx, service); err != nil {
			log.Warn().Err(err).Str("service", service).Msg("Correlation failed")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func (p *Pipeline) correlateService(ctx context.Context, service string) error {
	recent, err := p.detector.RecentAnomalies(ctx, service, 50)
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-p.cfg.ClusterWindow)
	var clustered []anomaly.Anomaly
	for _, a := range recent {
		if a.DetectedAt.After(cutoff) {
			clustered = append(clustered, a)
		}
	}
	if len(clustered) < p.cfg.TriggerThreshold {
		return nil
	}

	// One incident per service per window.
	if _, err := p.store.Get(ctx, triggerKey(service)); err == nil {
		return nil
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return err
	}
	if err := p.store.Set(ctx, triggerKey(service), "1", p.cfg.ClusterWindow); err != nil {
		return err
	}

	logs, err := p.store.LRange(ctx, recentLogsKey(service), 0, analyzeLogSpan-1)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		log.Warn().Err(err).Str("service", service).Msg("Log ring unavailable for analysis")
	}

	inc, err := p.analyzer.Analyze(ctx, service, clustered, logs)
	if err != nil {
		return err
	}
	if len(inc.RecommendedActions) == 0 {
		log.Info().Str("incidentID", inc.IncidentID).Str("service", service).Msg("Incident has no recommended action")
		return nil
	}

	top := inc.RecommendedActions[0]
	risk := actions.RiskLow
	if top.RequiresApproval {
		risk = actions.RiskMedium
	}
	d, a, err := p.autonomous.Decide(ctx, autonomous.Proposal{
		Incident:   inc,
		ActionType: top.ActionType,
		Params:     top.Params,
		Risk:       risk,
		Reasoning:  inc.RootCause,
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("incidentID", inc.IncidentID).
		Str("service", service).
		Str("actionType", top.ActionType).
		Str("decision", string(d.Decision)).
		Msg("Correlated incident decided")

	// Executed incidents feed the repeat tracker so recurring shapes get
	// a permanent fix.
	if p.repeats != nil && d.Decision == decisionlog.DecisionApproved && a != nil && a.Status.Terminal() {
		success := a.Status == actions.StatusSuccess
		if _, err := p.repeats.ProcessIncident(ctx, inc, top.ActionType, success); err != nil {
			log.Warn().Err(err).Str("incidentID", inc.IncidentID).Msg("Repeat tracking failed")
		}
	}
	return nil
}

// pollDeployments records announced deployments and assesses their risk
// before they land.
func (p *Pipeline) pollDeployments(ctx context.Context) error {
	for i := 0; i < batchLimit; i++ {
		raw, err := p.store.RPop(ctx, deployQueue)
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var ev DeployEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed deployment event")
			continue
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now().UTC()
		}
		if err := p.detector.RecordDeployment(ctx, ev.Service, ev.Version, ev.Timestamp); err != nil {
			log.Warn().Err(err).Str("service", ev.Service).Msg("Failed to record deployment")
		}
		if p.risks == nil {
			continue
		}
		as, err := p.risks.Assess(ctx, deployrisk.Request{
			Service:         ev.Service,
			FromVersion:     ev.FromVersion,
			ToVersion:       ev.Version,
			HasMigration:    ev.HasMigration,
			HasConfigChange: ev.HasConfigChange,
			FilesChanged:    ev.FilesChanged,
			Dependencies:    ev.Dependencies,
		})
		if err != nil {
			log.Warn().Err(err).Str("service", ev.Service).Msg("Risk assessment failed")
			continue
		}
		if !as.ShouldProceed {
			log.Warn().
				Str("service", ev.Service).
				Str("version", ev.Version).
				Float64("score", as.OverallScore).
				Msg("Deployment risk critical, flagged for block")
		}
	}
	return nil
}

// drainApproved executes externally approved actions queued for pickup.
func (p *Pipeline) drainApproved(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		id, err := p.actions.PopApproved(ctx)
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := p.actions.Execute(ctx, id); err != nil {
			log.Warn().Err(err).Str("actionID", id).Msg("Approved action failed to execute")
		}
	}
}
