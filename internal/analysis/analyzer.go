// Package analysis composes incident records from raw anomaly and log
// signals: fingerprinting, pattern matching, root-cause heuristics, action
// ranking, and the autonomy verdict.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/opsloop/autopilot/internal/anomaly"
	"github.com/opsloop/autopilot/internal/knowledge"
	"github.com/opsloop/autopilot/internal/kvstore"
	"github.com/opsloop/autopilot/internal/learning"
	"github.com/opsloop/autopilot/internal/monitoring"
)

const (
	incidentTTL       = 30 * 24 * time.Hour
	incidentIndexCap  = 100
	autonomyMinConf   = 70
	defaultResolution = 300
)

// signalKeywords are scanned case-insensitively across the log corpus.
var signalKeywords = []string{
	"OOMKilled", "CrashLoopBackOff", "timeout", "connection refused",
	"out of memory", "disk full", "CPU throttling", "deadlock",
	"replication lag", "certificate expired", "authentication failed",
	"rate limit", "quota exceeded", "health check failed",
}

// MatchedPattern records one catalogue hit on an incident.
type MatchedPattern struct {
	PatternID  string  `json:"pattern_id"`
	Confidence float64 `json:"confidence"`
}

// ScoredAction is a remediation candidate ranked by pattern confidence
// blended with historical success.
type ScoredAction struct {
	ActionType       string            `json:"action_type"`
	ActionCategory   string            `json:"action_category"`
	Confidence       float64           `json:"confidence"`
	Params           map[string]string `json:"params,omitempty"`
	RequiresApproval bool              `json:"requires_approval"`
	RollbackAction   string            `json:"rollback_action,omitempty"`
}

// Incident is the complete analysis artifact for one cluster of anomalies.
type Incident struct {
	IncidentID                 string           `json:"incident_id"`
	Fingerprint                string           `json:"fingerprint"`
	Service                    string           `json:"service"`
	Category                   string           `json:"category"`
	Subcategory                string           `json:"subcategory"`
	Severity                   anomaly.Severity `json:"severity"`
	Symptoms                   []string         `json:"symptoms"`
	Signals                    []string         `json:"signals,omitempty"`
	MatchedPatterns            []MatchedPattern `json:"matched_patterns,omitempty"`
	BestPatternID              string           `json:"best_pattern_id,omitempty"`
	PatternConfidence          float64          `json:"pattern_confidence"`
	RootCause                  string           `json:"root_cause"`
	RootCauseConfidence        float64          `json:"root_cause_confidence"`
	ContributingFactors        []string         `json:"contributing_factors,omitempty"`
	SimilarIncidentCount       int              `json:"similar_incident_count"`
	MeanSimilarity             float64          `json:"mean_similarity,omitempty"`
	HistoricalSuccessRate      float64          `json:"historical_success_rate"`
	AvgResolutionSeconds       float64          `json:"avg_resolution_seconds"`
	RecommendedActions         []ScoredAction   `json:"recommended_actions,omitempty"`
	AutonomousSafe             bool             `json:"autonomous_safe"`
	AutonomousReason           string           `json:"autonomous_reason"`
	BlastRadius                string           `json:"blast_radius"`
	AffectedServices           []string         `json:"affected_services"`
	PredictedResolutionSeconds float64          `json:"predicted_resolution_seconds"`
	RecurrenceProbability      float64          `json:"recurrence_probability"`
	AIAnalysis                 *Analysis        `json:"ai_analysis,omitempty"`
	Resolved                   bool             `json:"resolved"`
	ResolutionSeconds          float64          `json:"resolution_seconds,omitempty"`
	Timestamp                  time.Time        `json:"timestamp"`
}

// Analyzer builds incidents. It reads patterns and learning state but
// never mutates them.
type Analyzer struct {
	store     kvstore.Store
	patterns  *knowledge.Base
	learning  *learning.Engine
	detector  *anomaly.Detector
	ai        AIAnalyzer
	aiTimeout time.Duration
	metrics   *monitoring.PipelineMetrics
}

// NewAnalyzer wires the analyzer. Pass a nil AIAnalyzer to run on the
// built-in heuristics alone.
func NewAnalyzer(store kvstore.Store, patterns *knowledge.Base, eng *learning.Engine, det *anomaly.Detector, ai AIAnalyzer, aiTimeout time.Duration) *Analyzer {
	if ai == nil {
		ai = HeuristicAnalyzer{}
	}
	if aiTimeout <= 0 {
		aiTimeout = 120 * time.Second
	}
	return &Analyzer{
		store:     store,
		patterns:  patterns,
		learning:  eng,
		detector:  det,
		ai:        ai,
		aiTimeout: aiTimeout,
		metrics:   monitoring.Get(),
	}
}

func incidentKey(id string) string       { return "incident_analysis:" + id }
func fingerprintIndex(fp string) string  { return "incidents:by_fingerprint:" + fp }
func serviceIndex(service string) string { return "incidents:by_service:" + service }

// Analyze builds and persists an Incident from the service's current
// anomalies and recent logs.
func (a *Analyzer) Analyze(ctx context.Context, service string, anomalies []anomaly.Anomaly, logs []string) (*Incident, error) {
	if len(anomalies) == 0 && len(logs) == 0 {
		return nil, errors.New("analysis: nothing to analyze")
	}

	now := time.Now().UTC()
	inc := &Incident{
		IncidentID:  ulid.Make().String(),
		Fingerprint: Fingerprint(service, anomalies),
		Service:     service,
		Symptoms:    extractSymptoms(anomalies),
		Signals:     extractSignals(logs),
		Severity:    maxSeverity(anomalies),
		Timestamp:   now,
	}
	inc.Category, inc.Subcategory = classify(anomalies, logs)

	// Pattern matching, top 5, learning-adjusted best confidence.
	matches := a.patterns.Match(ctx, anomalies, logs, 0)
	if len(matches) > 5 {
		matches = matches[:5]
	}
	var bestPattern *knowledge.IncidentPattern
	for _, m := range matches {
		inc.MatchedPatterns = append(inc.MatchedPatterns, MatchedPattern{PatternID: m.Pattern.ID, Confidence: m.Confidence})
	}
	if len(matches) > 0 {
		bestPattern = matches[0].Pattern
		inc.BestPatternID = bestPattern.ID
		inc.PatternConfidence = a.learning.AdjustedConfidence(ctx, bestPattern.ID, matches[0].Confidence)
	}

	// Deployment lookback for the root-cause heuristic.
	deploy, err := a.detector.DeploymentWithin(ctx, service, time.Hour, now)
	if err != nil {
		log.Warn().Err(err).Str("service", service).Msg("Deployment lookback failed")
		deploy = anomaly.DeploymentCorrelation{}
	}

	similar, meanSim := a.similarIncidents(ctx, inc)
	inc.SimilarIncidentCount = len(similar)
	inc.MeanSimilarity = meanSim
	inc.HistoricalSuccessRate, inc.AvgResolutionSeconds = historicalStats(similar)

	inc.RootCause, inc.RootCauseConfidence = rootCause(deploy, bestPattern, inc.PatternConfidence, logs)
	inc.ContributingFactors = a.contributingFactors(ctx, service, anomalies, deploy)
	inc.RecommendedActions = a.rankActions(ctx, service, bestPattern)
	inc.AutonomousSafe, inc.AutonomousReason = a.autonomyVerdict(ctx, inc)
	inc.AffectedServices, inc.BlastRadius = blastRadius(service, anomalies)
	inc.PredictedResolutionSeconds = predictResolution(inc.AvgResolutionSeconds, bestPattern)
	inc.RecurrenceProbability = a.recurrenceProbability(ctx, inc)

	// The AI seam runs under its own deadline; on failure we fall back to
	// the heuristic analyzer so the incident always carries an analysis.
	aiCtx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()
	req := AnalyzeRequest{Service: service, Anomalies: anomalies, Logs: logs}
	if deploy.Correlated {
		req.Deployments = []string{deploy.Version}
	}
	aiResult, err := a.ai.Analyze(aiCtx, req)
	if err != nil || aiResult == nil {
		log.Warn().Err(err).Str("service", service).Msg("AI analyzer unavailable, using heuristics")
		aiResult, _ = HeuristicAnalyzer{}.Analyze(ctx, req)
	}
	inc.AIAnalysis = aiResult

	if err := a.persist(ctx, inc); err != nil {
		return nil, err
	}
	a.metrics.RecordIncident(inc.Category, string(inc.Severity))
	log.Info().
		Str("incidentID", inc.IncidentID).
		Str("service", service).
		Str("fingerprint", inc.Fingerprint).
		Str("rootCause", inc.RootCause).
		Float64("patternConfidence", inc.PatternConfidence).
		Msg("Incident analyzed")
	return inc, nil
}

// Incident loads a stored incident by ID.
func (a *Analyzer) Incident(ctx context.Context, id string) (*Incident, error) {
	data, err := a.store.Get(ctx, incidentKey(id))
	if err != nil {
		return nil, err
	}
	var inc Incident
	if err := json.Unmarshal(data, &inc); err != nil {
		return nil, fmt.Errorf("analysis: parse incident %s: %w", id, err)
	}
	return &inc, nil
}

// RecentIncidentCount reports how many incidents a service logged since
// the cutoff, reading the newest entries of the service index.
func (a *Analyzer) RecentIncidentCount(ctx context.Context, service string, since time.Time) (int, error) {
	ids, err := a.store.LRange(ctx, serviceIndex(service), 0, incidentIndexCap-1)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		inc, err := a.Incident(ctx, id)
		if err != nil {
			continue
		}
		if !inc.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

// MarkResolved labels a stored incident with its resolution outcome.
func (a *Analyzer) MarkResolved(ctx context.Context, id string, resolutionSeconds float64) error {
	inc, err := a.Incident(ctx, id)
	if err != nil {
		return err
	}
	inc.Resolved = true
	inc.ResolutionSeconds = resolutionSeconds
	return a.store.Set(ctx, incidentKey(id), inc, incidentTTL)
}

func (a *Analyzer) persist(ctx context.Context, inc *Incident) error {
	if err := a.store.Set(ctx, incidentKey(inc.IncidentID), inc, incidentTTL); err != nil {
		return fmt.Errorf("analysis: persist incident: %w", err)
	}
	for _, key := range []string{fingerprintIndex(inc.Fingerprint), serviceIndex(inc.Service)} {
		if err := a.store.LPush(ctx, key, inc.IncidentID); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to index incident")
			continue
		}
		if err := a.store.LTrim(ctx, key, 0, incidentIndexCap-1); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to trim incident index")
		}
	}
	return nil
}

func extractSymptoms(anomalies []anomaly.Anomaly) []string {
	symptoms := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		symptoms = append(symptoms, fmt.Sprintf("High %s: %s (threshold: %s)",
			a.Metric, trimFloat(a.Value), trimFloat(a.Mean)))
	}
	return symptoms
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func extractSignals(logs []string) []string {
	corpus := strings.ToLower(strings.Join(logs, "\n"))
	var found []string
	for _, kw := range signalKeywords {
		if strings.Contains(corpus, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return found
}

func maxSeverity(anomalies []anomaly.Anomaly) anomaly.Severity {
	best := anomaly.SeverityLow
	for _, a := range anomalies {
		if a.Severity.Weight() > best.Weight() {
			best = a.Severity
		}
	}
	return best
}

// classify applies the first matching category rule over the log corpus
// plus anomaly metric names.
func classify(anomalies []anomaly.Anomaly, logs []string) (string, string) {
	var sb strings.Builder
	for _, a := range anomalies {
		sb.WriteString(a.Metric)
		sb.WriteByte(' ')
	}
	sb.WriteString(strings.Join(logs, " "))
	corpus := strings.ToLower(sb.String())

	contains := func(terms ...string) bool {
		for _, t := range terms {
			if strings.Contains(corpus, t) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("pod", "container", "kubelet", "node"):
		return "kubernetes", "workload"
	case contains("mysql", "postgres", "mongodb", "redis", "connection pool"):
		return "database", "connectivity"
	case contains("latency", "packet_loss", "timeout"):
		return "network", "connectivity"
	case contains("error_rate", "5xx", "exception"):
		return "application", "errors"
	case contains("cpu", "memory"):
		return "application", "resources"
	default:
		return "unknown", "unknown"
	}
}

// similarIncidents looks up prior incidents, exact fingerprint first, then
// symptom overlap over the service's recent history. The second return is
// the mean similarity of the matches: 1.0 for fingerprint matches, the
// symptom overlap fraction otherwise.
func (a *Analyzer) similarIncidents(ctx context.Context, inc *Incident) ([]*Incident, float64) {
	ids, err := a.store.LRange(ctx, fingerprintIndex(inc.Fingerprint), 0, 9)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		log.Warn().Err(err).Str("fingerprint", inc.Fingerprint).Msg("Fingerprint index read failed")
	}
	similar := a.loadIncidents(ctx, ids)
	if len(similar) > 0 {
		return similar, 1.0
	}

	ids, err = a.store.LRange(ctx, serviceIndex(inc.Service), 0, 49)
	if err != nil || len(inc.Symptoms) == 0 {
		return nil, 0
	}
	type scored struct {
		inc     *Incident
		overlap int
	}
	var candidates []scored
	for _, prior := range a.loadIncidents(ctx, ids) {
		n := symptomOverlap(inc.Symptoms, prior.Symptoms)
		if n > 0 {
			candidates = append(candidates, scored{prior, n})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].overlap > candidates[j].overlap })
	out := make([]*Incident, 0, len(candidates))
	simSum := 0.0
	for _, c := range candidates {
		out = append(out, c.inc)
		simSum += float64(c.overlap) / float64(len(inc.Symptoms))
	}
	if len(out) == 0 {
		return nil, 0
	}
	return out, simSum / float64(len(out))
}

func (a *Analyzer) loadIncidents(ctx context.Context, ids []string) []*Incident {
	var out []*Incident
	for _, id := range ids {
		inc, err := a.Incident(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, inc)
	}
	return out
}

func symptomOverlap(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	n := 0
	for _, s := range b {
		if _, ok := set[s]; ok {
			n++
		}
	}
	return n
}

func historicalStats(similar []*Incident) (successRate, avgResolution float64) {
	if len(similar) == 0 {
		return 0, 0
	}
	resolved := 0
	var total float64
	var resolutionN int
	for _, inc := range similar {
		if inc.Resolved {
			resolved++
		}
		if inc.ResolutionSeconds > 0 {
			total += inc.ResolutionSeconds
			resolutionN++
		}
	}
	successRate = float64(resolved) / float64(len(similar))
	if resolutionN > 0 {
		avgResolution = total / float64(resolutionN)
	}
	return successRate, avgResolution
}

func rootCause(deploy anomaly.DeploymentCorrelation, pattern *knowledge.IncidentPattern, patternConfidence float64, logs []string) (string, float64) {
	if deploy.Correlated {
		return "Recent deployment change", 85
	}
	if pattern != nil {
		return pattern.Name, patternConfidence
	}
	corpus := strings.ToLower(strings.Join(logs, "\n"))
	if strings.Contains(corpus, "oomkilled") || strings.Contains(corpus, "out of memory") {
		return "Memory exhaustion (OOM)", 90
	}
	if strings.Contains(corpus, "connection") && strings.Contains(corpus, "timeout") {
		return "Connection pool exhaustion or downstream timeout", 75
	}
	return "Unknown, requires investigation", 30
}

func (a *Analyzer) contributingFactors(ctx context.Context, service string, anomalies []anomaly.Anomaly, deploy anomaly.DeploymentCorrelation) []string {
	var factors []string
	if b, err := a.detector.Baseline(ctx, service, "cpu_usage"); err == nil && b.Mean > 80 {
		factors = append(factors, fmt.Sprintf("elevated CPU before incident (%.0f%%)", b.Mean))
	}
	if b, err := a.detector.Baseline(ctx, service, "memory_usage"); err == nil && b.Mean > 85 {
		factors = append(factors, fmt.Sprintf("elevated memory before incident (%.0f%%)", b.Mean))
	}
	for _, an := range anomalies {
		if an.Metric == "request_rate" && an.Mean > 0 && an.Value >= 1.5*an.Mean {
			factors = append(factors, fmt.Sprintf("traffic %.1fx above average", an.Value/an.Mean))
			break
		}
	}
	if deploy.Correlated {
		factors = append(factors, fmt.Sprintf("deployment %s %.0f minutes before incident", deploy.Version, deploy.AgeMinutes))
	}
	if len(anomalies) >= 4 {
		factors = append(factors, fmt.Sprintf("%d concurrent anomalies", len(anomalies)))
	}
	return factors
}

// rankActions blends catalogue confidence with the recorded success rate
// for the same action on this service.
func (a *Analyzer) rankActions(ctx context.Context, service string, pattern *knowledge.IncidentPattern) []ScoredAction {
	if pattern == nil {
		return nil
	}
	actions := make([]ScoredAction, 0, len(pattern.Actions))
	for _, ra := range pattern.Actions {
		rate := a.actionSuccessRate(ctx, ra.ActionType, service)
		actions = append(actions, ScoredAction{
			ActionType:       ra.ActionType,
			ActionCategory:   ra.ActionCategory,
			Confidence:       0.6*ra.BaseConfidence + 0.4*100*rate,
			Params:           ra.Params,
			RequiresApproval: ra.RequiresApproval,
			RollbackAction:   ra.RollbackAction,
		})
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Confidence > actions[j].Confidence })
	if len(actions) > 5 {
		actions = actions[:5]
	}
	return actions
}

func (a *Analyzer) actionSuccessRate(ctx context.Context, actionType, service string) float64 {
	fields, err := a.store.HGetAll(ctx, "action_success_rate:"+actionType+":"+service)
	if err != nil || len(fields) == 0 {
		return 0.5
	}
	total, _ := strconv.ParseFloat(fields["total"], 64)
	success, _ := strconv.ParseFloat(fields["success"], 64)
	if total == 0 {
		return 0.5
	}
	return success / total
}

func (a *Analyzer) autonomyVerdict(ctx context.Context, inc *Incident) (bool, string) {
	if inc.BestPatternID == "" {
		return false, "no pattern matched"
	}
	if inc.PatternConfidence < autonomyMinConf {
		return false, fmt.Sprintf("pattern confidence %.0f below %d", inc.PatternConfidence, autonomyMinConf)
	}
	return a.learning.AutonomousSafety(ctx, inc.BestPatternID)
}

// blastRadius sizes the incident by distinct services, bumped one level
// when a critical-path service is involved.
func blastRadius(service string, anomalies []anomaly.Anomaly) ([]string, string) {
	seen := map[string]struct{}{service: {}}
	for _, a := range anomalies {
		if a.Service != "" {
			seen[a.Service] = struct{}{}
		}
	}
	services := make([]string, 0, len(seen))
	for s := range seen {
		services = append(services, s)
	}
	sort.Strings(services)

	radius := "low"
	switch {
	case len(services) > 3:
		radius = "high"
	case len(services) > 1:
		radius = "medium"
	}
	for _, s := range services {
		name := strings.ToLower(s)
		if strings.Contains(name, "auth") || strings.Contains(name, "payment") ||
			strings.Contains(name, "database") || strings.Contains(name, "gateway") {
			radius = bumpRadius(radius)
			break
		}
	}
	return services, radius
}

func bumpRadius(r string) string {
	switch r {
	case "low":
		return "medium"
	case "medium":
		return "high"
	default:
		return "critical"
	}
}

func predictResolution(historicalAvg float64, pattern *knowledge.IncidentPattern) float64 {
	if historicalAvg > 0 {
		return historicalAvg
	}
	if pattern != nil && pattern.AvgResolutionSeconds > 0 {
		return float64(pattern.AvgResolutionSeconds)
	}
	return defaultResolution
}

func (a *Analyzer) recurrenceProbability(ctx context.Context, inc *Incident) float64 {
	prior, err := a.store.LLen(ctx, fingerprintIndex(inc.Fingerprint))
	if err != nil {
		return 0.1
	}
	switch {
	case prior >= 5:
		return 0.9
	case prior >= 3:
		return 0.7
	case prior >= 1:
		return 0.5
	}
	if n, err := a.store.LLen(ctx, serviceIndex(inc.Service)); err != nil || n == 0 {
		return 0.1
	}
	return 0.2
}
