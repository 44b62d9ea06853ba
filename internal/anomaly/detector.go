// Package anomaly turns a stream of metric samples into anomaly records.
// It learns a rolling baseline per (service, metric) and flags values that
// deviate beyond the z-score threshold.
package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsloop/autopilot/internal/kvstore"
	"github.com/opsloop/autopilot/internal/monitoring"
)

// Severity classifies how far a value deviates from its baseline.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight orders severities for comparisons; higher is worse.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Sample is one metric observation.
type Sample struct {
	Service   string
	Metric    string
	Value     float64
	Timestamp time.Time
}

// Baseline is the rolling statistical window for one (service, metric).
// The detector is its only writer.
type Baseline struct {
	Service   string    `json:"service"`
	Metric    string    `json:"metric"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"stddev"`
	Count     int       `json:"count"`
	Values    []float64 `json:"values"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Anomaly is a sample that exceeded the z-score gate.
type Anomaly struct {
	Service      string    `json:"service"`
	Metric       string    `json:"metric"`
	Value        float64   `json:"value"`
	Mean         float64   `json:"mean"`
	StdDev       float64   `json:"stddev"`
	ZScore       float64   `json:"z_score"`
	DeviationPct float64   `json:"deviation_pct"`
	Severity     Severity  `json:"severity"`
	DetectedAt   time.Time `json:"detected_at"`
}

// DeploymentCorrelation links an anomaly to a recent deployment.
type DeploymentCorrelation struct {
	Correlated bool    `json:"correlated"`
	Version    string  `json:"version,omitempty"`
	AgeMinutes float64 `json:"age_minutes,omitempty"`
	Confidence string  `json:"confidence,omitempty"` // high | medium
}

// Config tunes the detector.
type Config struct {
	ZScoreThreshold float64
	WarmupSamples   int
	WindowSize      int
	BaselineTTL     time.Duration
	AnomalyListCap  int
	AnomalyTTL      time.Duration
}

// DefaultConfig returns the thresholds the detector ships with.
func DefaultConfig() Config {
	return Config{
		ZScoreThreshold: 2.5,
		WarmupSamples:   10,
		WindowSize:      1000,
		BaselineTTL:     7 * 24 * time.Hour,
		AnomalyListCap:  100,
		AnomalyTTL:      24 * time.Hour,
	}
}

const lockStripes = 64

// Detector maintains baselines and emits anomalies. Samples for the same
// (service, metric) are serialized through striped locks; distinct keys
// proceed independently.
type Detector struct {
	store   kvstore.Store
	cfg     Config
	metrics *monitoring.PipelineMetrics
	locks   [lockStripes]sync.Mutex
}

// NewDetector creates a detector over the given store.
func NewDetector(store kvstore.Store, cfg Config) *Detector {
	if cfg.ZScoreThreshold <= 0 {
		cfg.ZScoreThreshold = 2.5
	}
	if cfg.WarmupSamples <= 0 {
		cfg.WarmupSamples = 10
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 1000
	}
	if cfg.BaselineTTL <= 0 {
		cfg.BaselineTTL = 7 * 24 * time.Hour
	}
	if cfg.AnomalyListCap <= 0 {
		cfg.AnomalyListCap = 100
	}
	if cfg.AnomalyTTL <= 0 {
		cfg.AnomalyTTL = 24 * time.Hour
	}
	return &Detector{store: store, cfg: cfg, metrics: monitoring.Get()}
}

func baselineKey(service, metric string) string {
	return "baseline:" + service + ":" + metric
}

func anomalyListKey(service string) string {
	return "recent_anomalies:" + service
}

func deploymentsKey(service string) string {
	return "deployments:" + service
}

func (d *Detector) lockFor(service, metric string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(service))
	h.Write([]byte{':'})
	h.Write([]byte(metric))
	return &d.locks[h.Sum32()%lockStripes]
}

// Process ingests one sample. It returns the anomaly if the sample crossed
// the threshold, or nil when the value is within the baseline or the
// baseline is still warming up.
func (d *Detector) Process(ctx context.Context, sample Sample) (*Anomaly, error) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	mu := d.lockFor(sample.Service, sample.Metric)
	mu.Lock()
	defer mu.Unlock()

	baseline, err := d.loadBaseline(ctx, sample.Service, sample.Metric)
	if err != nil {
		return nil, err
	}

	var result *Anomaly
	if baseline.Count >= d.cfg.WarmupSamples {
		z := 0.0
		if baseline.StdDev > 0 {
			z = math.Abs(sample.Value-baseline.Mean) / baseline.StdDev
		}
		if z > d.cfg.ZScoreThreshold {
			deviation := 0.0
			if baseline.Mean != 0 {
				deviation = (sample.Value - baseline.Mean) / baseline.Mean * 100
			}
			result = &Anomaly{
				Service:      sample.Service,
				Metric:       sample.Metric,
				Value:        sample.Value,
				Mean:         baseline.Mean,
				StdDev:       baseline.StdDev,
				ZScore:       z,
				DeviationPct: deviation,
				Severity:     severityForZ(z),
				DetectedAt:   sample.Timestamp,
			}
		}
	}

	d.appendValue(baseline, sample.Value)
	if err := d.persistBaseline(ctx, baseline); err != nil {
		// One retry, then drop. Detection must not stall on storage.
		if err = d.persistBaseline(ctx, baseline); err != nil {
			d.metrics.RecordStoreError("baseline_persist")
			log.Warn().Err(err).
				Str("service", sample.Service).
				Str("metric", sample.Metric).
				Msg("Dropping baseline update after retry")
		}
	}

	if result != nil {
		d.metrics.RecordAnomaly(result.Service, string(result.Severity))
		d.recordAnomaly(ctx, result)
	}

	return result, nil
}

// CheckErrorRate evaluates a per-window error rate against the service's
// learned error_rate baseline. A spike requires the rate to exceed three
// times the baseline mean and an absolute floor of 1%.
func (d *Detector) CheckErrorRate(ctx context.Context, service string, errorCount, totalCount int) (*Anomaly, error) {
	if totalCount <= 0 {
		return nil, nil
	}
	rate := float64(errorCount) / float64(totalCount) * 100

	mu := d.lockFor(service, "error_rate")
	mu.Lock()
	defer mu.Unlock()

	baseline, err := d.loadBaseline(ctx, service, "error_rate")
	if err != nil {
		return nil, err
	}

	var result *Anomaly
	if baseline.Count >= d.cfg.WarmupSamples && rate > 3*baseline.Mean && rate > 1.0 {
		severity := SeverityMedium
		if rate > 5 {
			severity = SeverityCritical
		}
		z := 0.0
		if baseline.StdDev > 0 {
			z = math.Abs(rate-baseline.Mean) / baseline.StdDev
		}
		deviation := 0.0
		if baseline.Mean != 0 {
			deviation = (rate - baseline.Mean) / baseline.Mean * 100
		}
		result = &Anomaly{
			Service:      service,
			Metric:       "error_rate",
			Value:        rate,
			Mean:         baseline.Mean,
			StdDev:       baseline.StdDev,
			ZScore:       z,
			DeviationPct: deviation,
			Severity:     severity,
			DetectedAt:   time.Now().UTC(),
		}
	}

	d.appendValue(baseline, rate)
	if err := d.persistBaseline(ctx, baseline); err != nil {
		if err = d.persistBaseline(ctx, baseline); err != nil {
			d.metrics.RecordStoreError("baseline_persist")
			log.Warn().Err(err).Str("service", service).Msg("Dropping error-rate baseline update after retry")
		}
	}

	if result != nil {
		d.metrics.RecordAnomaly(service, string(result.Severity))
		d.recordAnomaly(ctx, result)
	}

	return result, nil
}

// CorrelateDeployment reports whether a deployment landed on the service in
// the 30 minutes before the anomaly.
func (d *Detector) CorrelateDeployment(ctx context.Context, service string, at time.Time) (DeploymentCorrelation, error) {
	return d.DeploymentWithin(ctx, service, 30*time.Minute, at)
}

// DeploymentWithin returns the most recent deployment inside an arbitrary
// lookback window ending at the given time.
func (d *Detector) DeploymentWithin(ctx context.Context, service string, window time.Duration, at time.Time) (DeploymentCorrelation, error) {
	members, err := d.store.ZRangeByScoreWithScores(ctx, deploymentsKey(service),
		float64(at.Add(-window).Unix()), float64(at.Unix()))
	if err != nil {
		return DeploymentCorrelation{}, fmt.Errorf("scan deployments for %s: %w", service, err)
	}
	if len(members) == 0 {
		return DeploymentCorrelation{}, nil
	}

	latest := members[len(members)-1]
	age := at.Sub(time.Unix(int64(latest.Score), 0))
	confidence := "medium"
	if age < 10*time.Minute {
		confidence = "high"
	}
	return DeploymentCorrelation{
		Correlated: true,
		Version:    latest.Member,
		AgeMinutes: age.Minutes(),
		Confidence: confidence,
	}, nil
}

// RecordDeployment indexes a deployment in the service's sorted set.
func (d *Detector) RecordDeployment(ctx context.Context, service, version string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return d.store.ZAdd(ctx, deploymentsKey(service), float64(at.Unix()), version)
}

// RecentAnomalies returns up to limit anomalies for a service, newest first.
// Entries that fail to parse are skipped.
func (d *Detector) RecentAnomalies(ctx context.Context, service string, limit int) ([]Anomaly, error) {
	if limit <= 0 {
		limit = d.cfg.AnomalyListCap
	}
	raw, err := d.store.LRange(ctx, anomalyListKey(service), 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("read recent anomalies for %s: %w", service, err)
	}
	anomalies := make([]Anomaly, 0, len(raw))
	for _, item := range raw {
		var a Anomaly
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			log.Warn().Err(err).Str("service", service).Msg("Skipping malformed anomaly record")
			continue
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, nil
}

// Baseline returns the current baseline for a (service, metric), or
// kvstore.ErrNotFound when none has been learned.
func (d *Detector) Baseline(ctx context.Context, service, metric string) (Baseline, error) {
	data, err := d.store.Get(ctx, baselineKey(service, metric))
	if err != nil {
		return Baseline{}, err
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return Baseline{}, fmt.Errorf("parse baseline %s/%s: %w", service, metric, err)
	}
	return b, nil
}

func (d *Detector) loadBaseline(ctx context.Context, service, metric string) (*Baseline, error) {
	data, err := d.store.Get(ctx, baselineKey(service, metric))
	if err == kvstore.ErrNotFound {
		return &Baseline{Service: service, Metric: metric}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load baseline %s/%s: %w", service, metric, err)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		// Corrupt baseline: start over rather than poisoning detection.
		log.Warn().Err(err).Str("service", service).Str("metric", metric).Msg("Resetting malformed baseline")
		return &Baseline{Service: service, Metric: metric}, nil
	}
	return &b, nil
}

func (d *Detector) appendValue(b *Baseline, value float64) {
	b.Values = append(b.Values, value)
	if len(b.Values) > d.cfg.WindowSize {
		b.Values = b.Values[len(b.Values)-d.cfg.WindowSize:]
	}
	b.Count = len(b.Values)
	b.Mean = mean(b.Values)
	b.StdDev = sampleStdDev(b.Values, b.Mean)
	b.Min, b.Max = minMax(b.Values)
	b.UpdatedAt = time.Now().UTC()
}

func (d *Detector) persistBaseline(ctx context.Context, b *Baseline) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	return d.store.Set(ctx, baselineKey(b.Service, b.Metric), data, d.cfg.BaselineTTL)
}

// recordAnomaly appends to the per-service ring. Best effort: failures are
// logged and swallowed.
func (d *Detector) recordAnomaly(ctx context.Context, a *Anomaly) {
	data, err := json.Marshal(a)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal anomaly")
		return
	}
	key := anomalyListKey(a.Service)
	if err := d.store.LPush(ctx, key, data); err != nil {
		d.metrics.RecordStoreError("anomaly_append")
		log.Warn().Err(err).Str("service", a.Service).Msg("Failed to append anomaly")
		return
	}
	if err := d.store.LTrim(ctx, key, 0, int64(d.cfg.AnomalyListCap-1)); err != nil {
		log.Warn().Err(err).Str("service", a.Service).Msg("Failed to trim anomaly list")
	}
	if err := d.store.Expire(ctx, key, d.cfg.AnomalyTTL); err != nil {
		log.Warn().Err(err).Str("service", a.Service).Msg("Failed to refresh anomaly list TTL")
	}
}

func severityForZ(z float64) Severity {
	switch {
	case z > 4:
		return SeverityCritical
	case z > 3:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
