// Package deployrisk scores a deployment before it ships and decides,
// after it ships, whether the error rate justifies an automatic rollback.
package deployrisk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsloop/autopilot/internal/anomaly"
	"github.com/opsloop/autopilot/internal/kvstore"
)

const (
	assessmentTTL    = 7 * 24 * time.Hour
	deployHistoryCap = 50
	historyWindow    = 20
)

// Factor weights sum to one.
const (
	weightHistorical   = 0.25
	weightCriticality  = 0.20
	weightHealth       = 0.15
	weightMagnitude    = 0.15
	weightTiming       = 0.10
	weightDependencies = 0.10
	weightRecent       = 0.05
)

// Level buckets the overall score.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
	LevelMinimal  Level = "minimal"
)

func levelFor(score float64) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	case score >= 20:
		return LevelLow
	default:
		return LevelMinimal
	}
}

// rollbackThresholds maps risk level to the post-deploy error-rate
// percentage that triggers an automatic rollback.
var rollbackThresholds = map[Level]float64{
	LevelCritical: 20,
	LevelHigh:     30,
	LevelMedium:   50,
	LevelLow:      70,
	LevelMinimal:  90,
}

const defaultRollbackThreshold = 70

// Factor is one scored dimension of the assessment.
type Factor struct {
	Name        string   `json:"name"`
	Score       float64  `json:"score"`
	Weight      float64  `json:"weight"`
	Weighted    float64  `json:"weighted"`
	Details     string   `json:"details"`
	Mitigations []string `json:"mitigations,omitempty"`
}

// Request describes the deployment to assess.
type Request struct {
	Service         string   `json:"service"`
	FromVersion     string   `json:"from_version"`
	ToVersion       string   `json:"to_version"`
	HasMigration    bool     `json:"has_migration"`
	HasConfigChange bool     `json:"has_config_change"`
	FilesChanged    int      `json:"files_changed"`
	Dependencies    []string `json:"dependencies,omitempty"`
}

// Assessment is the persisted verdict for one deployment.
type Assessment struct {
	AssessmentID        string    `json:"assessment_id"`
	Service             string    `json:"service"`
	FromVersion         string    `json:"from_version"`
	ToVersion           string    `json:"to_version"`
	OverallScore        float64   `json:"overall_score"`
	RiskLevel           Level     `json:"risk_level"`
	Factors             []Factor  `json:"factors"`
	ShouldProceed       bool      `json:"should_proceed"`
	RequiresApproval    bool      `json:"requires_approval"`
	AutoRollbackEnabled bool      `json:"auto_rollback_enabled"`
	RollbackThreshold   float64   `json:"rollback_threshold"`
	Timestamp           time.Time `json:"timestamp"`
}

// DeployResult is one entry of a service's deployment history.
type DeployResult struct {
	Version   string    `json:"version"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// AnomalyReader is the slice of the detector the analyzer needs.
type AnomalyReader interface {
	RecentAnomalies(ctx context.Context, service string, limit int) ([]anomaly.Anomaly, error)
}

// IncidentCounter reports recent incident volume per service.
type IncidentCounter interface {
	RecentIncidentCount(ctx context.Context, service string, since time.Time) (int, error)
}

// Analyzer computes deployment risk assessments.
type Analyzer struct {
	store     kvstore.Store
	anomalies AnomalyReader
	incidents IncidentCounter
	now       func() time.Time
}

func NewAnalyzer(store kvstore.Store, anomalies AnomalyReader, incidents IncidentCounter) *Analyzer {
	return &Analyzer{
		store:     store,
		anomalies: anomalies,
		incidents: incidents,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func assessmentKey(id string) string    { return "risk_assessment:" + id }
func latestKey(service string) string   { return "risk_assessment:latest:" + service }
func historyKey(service string) string  { return "deploy_history:" + service }

// RecordDeployResult appends one deployment outcome to the service history.
func (a *Analyzer) RecordDeployResult(ctx context.Context, service, version string, success bool) error {
	data, err := json.Marshal(DeployResult{Version: version, Success: success, Timestamp: a.now()})
	if err != nil {
		return err
	}
	if err := a.store.LPush(ctx, historyKey(service), data); err != nil {
		return fmt.Errorf("deployrisk: record deploy for %s: %w", service, err)
	}
	if err := a.store.LTrim(ctx, historyKey(service), 0, deployHistoryCap-1); err != nil {
		log.Warn().Err(err).Str("service", service).Msg("Failed to trim deploy history")
	}
	return nil
}

// Assess scores the seven risk factors and persists the assessment.
func (a *Analyzer) Assess(ctx context.Context, req Request) (*Assessment, error) {
	if req.Service == "" {
		return nil, errors.New("deployrisk: missing service")
	}

	factors := []Factor{
		a.historicalFactor(ctx, req.Service),
		criticalityFactor(req.Service),
		a.healthFactor(ctx, req.Service),
		magnitudeFactor(req),
		timingFactor(a.now()),
		a.dependencyFactor(ctx, req.Dependencies),
		a.recentIncidentFactor(ctx, req.Service),
	}

	var overall float64
	for i := range factors {
		factors[i].Weighted = factors[i].Score * factors[i].Weight
		overall += factors[i].Weighted
	}

	level := levelFor(overall)
	as := &Assessment{
		AssessmentID:        uuid.New().String(),
		Service:             req.Service,
		FromVersion:         req.FromVersion,
		ToVersion:           req.ToVersion,
		OverallScore:        overall,
		RiskLevel:           level,
		Factors:             factors,
		ShouldProceed:       overall < 80,
		RequiresApproval:    overall >= 60,
		AutoRollbackEnabled: overall >= 50,
		RollbackThreshold:   rollbackThresholds[level],
		Timestamp:           a.now(),
	}

	if err := a.store.Set(ctx, assessmentKey(as.AssessmentID), as, assessmentTTL); err != nil {
		return nil, fmt.Errorf("deployrisk: persist assessment: %w", err)
	}
	if err := a.store.Set(ctx, latestKey(req.Service), as.AssessmentID, assessmentTTL); err != nil {
		log.Warn().Err(err).Str("service", req.Service).Msg("Failed to update latest assessment pointer")
	}
	log.Info().
		Str("assessmentID", as.AssessmentID).
		Str("service", req.Service).
		Float64("score", overall).
		Str("level", string(level)).
		Msg("Deployment risk assessed")
	return as, nil
}

// Get loads an assessment by ID.
func (a *Analyzer) Get(ctx context.Context, id string) (*Assessment, error) {
	data, err := a.store.Get(ctx, assessmentKey(id))
	if err != nil {
		return nil, err
	}
	var as Assessment
	if err := json.Unmarshal(data, &as); err != nil {
		return nil, fmt.Errorf("deployrisk: parse assessment %s: %w", id, err)
	}
	return &as, nil
}

// Latest loads the newest assessment for a service.
func (a *Analyzer) Latest(ctx context.Context, service string) (*Assessment, error) {
	data, err := a.store.Get(ctx, latestKey(service))
	if err != nil {
		return nil, err
	}
	return a.Get(ctx, string(data))
}

// ShouldRollback decides, from the service's latest assessment, whether
// the observed post-deploy error rate warrants an automatic rollback.
func (a *Analyzer) ShouldRollback(ctx context.Context, service string, currentErrorRate float64) (bool, string) {
	threshold := float64(defaultRollbackThreshold)
	level := "unknown"
	if as, err := a.Latest(ctx, service); err == nil {
		threshold = as.RollbackThreshold
		level = string(as.RiskLevel)
	}
	if currentErrorRate >= threshold {
		return true, fmt.Sprintf("error rate %.1f%% at or above %s-risk threshold %.0f%%", currentErrorRate, level, threshold)
	}
	return false, fmt.Sprintf("error rate %.1f%% below threshold %.0f%%", currentErrorRate, threshold)
}

// historicalFactor buckets the failure rate over the last 20 deploys.
func (a *Analyzer) historicalFactor(ctx context.Context, service string) Factor {
	f := Factor{Name: "historical_failures", Weight: weightHistorical}
	raw, err := a.store.LRange(ctx, historyKey(service), 0, historyWindow-1)
	if err != nil || len(raw) == 0 {
		f.Score = 30
		f.Details = "no deployment history"
		f.Mitigations = []string{"deploy to a canary first to build history"}
		return f
	}
	failures := 0
	for _, item := range raw {
		var r DeployResult
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			continue
		}
		if !r.Success {
			failures++
		}
	}
	rate := float64(failures) / float64(len(raw)) * 100
	switch {
	case rate == 0:
		f.Score = 10
	case rate < 10:
		f.Score = 25
	case rate < 20:
		f.Score = 45
	case rate < 30:
		f.Score = 65
	default:
		f.Score = 85
	}
	f.Details = fmt.Sprintf("%d of last %d deploys failed (%.1f%%)", failures, len(raw), rate)
	if f.Score >= 65 {
		f.Mitigations = []string{"review recent failed deploys before proceeding"}
	}
	return f
}

var criticalityTiers = []struct {
	tier     string
	score    float64
	patterns []string
}{
	{"tier_1", 80, []string{"payment", "auth", "billing", "database", "gateway"}},
	{"tier_2", 55, []string{"api", "order", "checkout", "core", "user"}},
	{"tier_3", 30, []string{"worker", "queue", "cache", "search", "notification"}},
}

// criticalityFactor maps the service name onto a criticality tier.
func criticalityFactor(service string) Factor {
	f := Factor{Name: "service_criticality", Weight: weightCriticality}
	name := strings.ToLower(service)
	for _, t := range criticalityTiers {
		for _, p := range t.patterns {
			if strings.Contains(name, p) {
				f.Score = t.score
				f.Details = fmt.Sprintf("%s service (matched %q)", t.tier, p)
				if t.tier == "tier_1" {
					f.Mitigations = []string{"use a canary rollout", "have the rollback ready"}
				}
				return f
			}
		}
	}
	f.Score = 10
	f.Details = "tier_4 service (no criticality pattern matched)"
	return f
}

func (a *Analyzer) healthFactor(ctx context.Context, service string) Factor {
	f := Factor{Name: "current_health", Weight: weightHealth}
	recent, err := a.anomalies.RecentAnomalies(ctx, service, 20)
	if err != nil {
		f.Score = 35
		f.Details = "anomaly history unavailable"
		return f
	}
	n := len(recent)
	switch {
	case n == 0:
		f.Score = 15
	case n <= 2:
		f.Score = 35
	case n <= 5:
		f.Score = 60
	default:
		f.Score = 85
	}
	f.Details = fmt.Sprintf("%d recent anomalies", n)
	if n > 5 {
		f.Mitigations = []string{"stabilize the service before deploying"}
	}
	return f
}

func magnitudeFactor(req Request) Factor {
	f := Factor{Name: "change_magnitude", Weight: weightMagnitude}
	kind := versionBump(req.FromVersion, req.ToVersion)
	switch kind {
	case "major":
		f.Score = 75
	case "minor":
		f.Score = 45
	case "patch":
		f.Score = 20
	default:
		f.Score = 50
	}
	details := []string{kind + " version change"}
	if req.HasMigration {
		f.Score += 20
		details = append(details, "includes DB migration")
		f.Mitigations = append(f.Mitigations, "verify the migration is reversible")
	}
	if req.HasConfigChange {
		f.Score += 10
		details = append(details, "includes config change")
	}
	if req.FilesChanged > 100 {
		f.Score += 15
		details = append(details, fmt.Sprintf("%d files changed", req.FilesChanged))
	}
	if f.Score > 100 {
		f.Score = 100
	}
	f.Details = strings.Join(details, ", ")
	return f
}

// timingFactor scores when the deploy lands. Friday afternoons are the
// worst slot, quiet weekday mornings the safest.
func timingFactor(now time.Time) Factor {
	f := Factor{Name: "deployment_timing", Weight: weightTiming}
	day := now.Weekday()
	hour := now.Hour()
	switch {
	case day == time.Friday && hour >= 14:
		f.Score = 85
		f.Details = "Friday afternoon deploy"
		f.Mitigations = []string{"wait until Monday morning"}
	case day == time.Saturday || day == time.Sunday:
		f.Score = 70
		f.Details = "weekend deploy"
	case hour >= 22 || hour < 6:
		f.Score = 60
		f.Details = "late-night deploy"
	case hour >= 9 && hour < 18:
		f.Score = 45
		f.Details = "weekday peak hours"
	default:
		f.Score = 20
		f.Details = "off-peak weekday"
	}
	return f
}

func (a *Analyzer) dependencyFactor(ctx context.Context, deps []string) Factor {
	f := Factor{Name: "dependency_health", Weight: weightDependencies}
	unhealthy := 0
	var names []string
	for _, dep := range deps {
		recent, err := a.anomalies.RecentAnomalies(ctx, dep, 10)
		if err == nil && len(recent) >= 3 {
			unhealthy++
			names = append(names, dep)
		}
	}
	switch {
	case unhealthy == 0:
		f.Score = 15
		f.Details = fmt.Sprintf("all %d dependencies healthy", len(deps))
	case unhealthy == 1:
		f.Score = 45
		f.Details = "1 unhealthy dependency: " + names[0]
	case unhealthy <= 2:
		f.Score = 65
		f.Details = fmt.Sprintf("%d unhealthy dependencies: %s", unhealthy, strings.Join(names, ", "))
	default:
		f.Score = 85
		f.Details = fmt.Sprintf("%d unhealthy dependencies: %s", unhealthy, strings.Join(names, ", "))
		f.Mitigations = []string{"hold until dependencies recover"}
	}
	return f
}

func (a *Analyzer) recentIncidentFactor(ctx context.Context, service string) Factor {
	f := Factor{Name: "recent_incidents", Weight: weightRecent}
	if a.incidents == nil {
		f.Score = 10
		f.Details = "incident history unavailable"
		return f
	}
	n, err := a.incidents.RecentIncidentCount(ctx, service, a.now().Add(-24*time.Hour))
	if err != nil {
		f.Score = 35
		f.Details = "incident history unavailable"
		return f
	}
	switch {
	case n == 0:
		f.Score = 10
	case n == 1:
		f.Score = 35
	case n <= 3:
		f.Score = 60
	default:
		f.Score = 85
	}
	f.Details = fmt.Sprintf("%d incidents in the last 24h", n)
	return f
}

// versionBump classifies the semver delta between two version strings.
func versionBump(from, to string) string {
	fM, fm, fp, ok1 := parseSemver(from)
	tM, tm, tp, ok2 := parseSemver(to)
	if !ok1 || !ok2 {
		return "unknown"
	}
	switch {
	case tM != fM:
		return "major"
	case tm != fm:
		return "minor"
	case tp != fp:
		return "patch"
	default:
		return "unknown"
	}
}

func parseSemver(v string) (major, minor, patch int, ok bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	parts := strings.SplitN(v, "-", 2)[0]
	fields := strings.Split(parts, ".")
	if len(fields) != 3 {
		return 0, 0, 0, false
	}
	nums := make([]int, 3)
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], true
}
