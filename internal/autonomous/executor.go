// Package autonomous decides whether proposed remediations run without a
// human, executes the approved ones, and feeds results back into learning.
package autonomous

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/opsloop/autopilot/internal/actions"
	"github.com/opsloop/autopilot/internal/analysis"
	"github.com/opsloop/autopilot/internal/anomaly"
	"github.com/opsloop/autopilot/internal/decisionlog"
	"github.com/opsloop/autopilot/internal/kvstore"
	"github.com/opsloop/autopilot/internal/learning"
	"github.com/opsloop/autopilot/internal/monitoring"
)

// Mode controls how much autonomy the executor has.
type Mode string

const (
	ModeManual     Mode = "manual"
	ModeSupervised Mode = "supervised"
	ModeAutonomous Mode = "autonomous"
	ModeNight      Mode = "night"
)

// Config tunes the executor.
type Config struct {
	Mode                Mode
	ConfidenceThreshold float64
	RuleWeight          float64
	AIWeight            float64
	HistoryWeight       float64
	Cooldown            time.Duration
	MaxConcurrent       int
	RollbacksPerHour    int
	NightStartHour      int
	NightEndHour        int
	StoreOutageLimit    time.Duration
}

// DefaultConfig returns the shipping defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeSupervised,
		ConfidenceThreshold: 75,
		RuleWeight:          0.40,
		AIWeight:            0.40,
		HistoryWeight:       0.20,
		Cooldown:            300 * time.Second,
		MaxConcurrent:       3,
		RollbacksPerHour:    2,
		NightStartHour:      22,
		NightEndHour:        6,
		StoreOutageLimit:    30 * time.Second,
	}
}

// weightEpsilon floors each weight before re-normalizing so adaptation can
// never zero a channel out.
const weightEpsilon = 0.01

// Proposal is one candidate action for an incident.
type Proposal struct {
	Incident   *analysis.Incident
	ActionType string
	Params     map[string]string
	Risk       actions.Risk
	Reasoning  string
}

// Executor owns the decision pipeline and the in-process execution state
// (active count, cooldowns, rollback budget). One instance per process.
type Executor struct {
	cfg       Config
	store     kvstore.Store
	actions   *actions.Executor
	learning  *learning.Engine
	detector  *anomaly.Detector
	decisions *decisionlog.Logger
	metrics   *monitoring.PipelineMetrics
	now       func() time.Time

	mu             sync.Mutex
	mode           Mode
	preOutageMode  Mode
	storeDownSince time.Time
	ruleWeight     float64
	aiWeight       float64
	historyWeight  float64
	active         int
	lastExec       map[string]time.Time
	rollbackTimes  []time.Time
}

// NewExecutor wires the autonomous executor.
func NewExecutor(cfg Config, store kvstore.Store, act *actions.Executor, eng *learning.Engine, det *anomaly.Detector, dec *decisionlog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.RuleWeight <= 0 && cfg.AIWeight <= 0 && cfg.HistoryWeight <= 0 {
		cfg.RuleWeight, cfg.AIWeight, cfg.HistoryWeight = def.RuleWeight, def.AIWeight, def.HistoryWeight
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.RollbacksPerHour <= 0 {
		cfg.RollbacksPerHour = def.RollbacksPerHour
	}
	if cfg.StoreOutageLimit <= 0 {
		cfg.StoreOutageLimit = def.StoreOutageLimit
	}
	e := &Executor{
		cfg:           cfg,
		store:         store,
		actions:       act,
		learning:      eng,
		detector:      det,
		decisions:     dec,
		metrics:       monitoring.Get(),
		now:           func() time.Time { return time.Now().UTC() },
		mode:          cfg.Mode,
		ruleWeight:    cfg.RuleWeight,
		aiWeight:      cfg.AIWeight,
		historyWeight: cfg.HistoryWeight,
		lastExec:      make(map[string]time.Time),
	}
	e.normalizeWeights()
	return e
}

// Mode returns the current execution mode.
func (e *Executor) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetMode switches the execution mode.
func (e *Executor) SetMode(m Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = m
	log.Info().Str("mode", string(m)).Msg("Execution mode changed")
}

// Weights returns the current confidence weights (rule, ai, history).
func (e *Executor) Weights() (float64, float64, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ruleWeight, e.aiWeight, e.historyWeight
}

// Decide evaluates a proposal end to end: proposes the action, scores it,
// runs the safety rails, and executes when everything clears. The returned
// DecisionLog is recorded whatever the verdict.
func (e *Executor) Decide(ctx context.Context, p Proposal) (*decisionlog.DecisionLog, *actions.Action, error) {
	if p.Incident == nil {
		return nil, nil, fmt.Errorf("autonomous: proposal missing incident")
	}
	service := p.Incident.Service

	action, err := e.actions.Propose(ctx, actions.ProposeRequest{
		IncidentID: p.Incident.IncidentID,
		ActionType: p.ActionType,
		Service:    service,
		Params:     p.Params,
		Reasoning:  p.Reasoning,
		Risk:       p.Risk,
		ProposedBy: "autopilot",
	})
	if err != nil {
		return nil, nil, err
	}

	d := &decisionlog.DecisionLog{
		DecisionID:     ulid.Make().String(),
		Timestamp:      e.now(),
		IncidentID:     p.Incident.IncidentID,
		Service:        service,
		ActionType:     p.ActionType,
		Threshold:      e.cfg.ConfidenceThreshold,
		MatchedPattern: p.Incident.BestPatternID,
		ExecutionMode:  string(e.Mode()),
	}

	final := e.scoreProposal(ctx, p, d)
	d.FinalConfidence = final

	// Hard stops first: a rail failure denies regardless of confidence.
	// Passing the rails reserves the concurrency slot, cooldown stamp, and
	// rollback budget entry; any verdict short of execution releases them.
	check, res, ok := e.safetyRails(ctx, p, final)
	if !ok {
		d.Decision = decisionlog.DecisionDenied
		d.ReasoningSummary = check.Detail
		d.SafetyChecks = append(d.SafetyChecks, check)
		e.record(ctx, d)
		return d, action, nil
	}
	d.SafetyChecks = append(d.SafetyChecks, decisionlog.SafetyCheck{Name: "all_rails", Passed: true})

	if verdict, reason := e.modeAllows(p.Risk); !verdict {
		e.release(res)
		d.Decision = decisionlog.DecisionDeferred
		d.ReasoningSummary = reason
		e.record(ctx, d)
		return d, action, nil
	}

	if final < e.cfg.ConfidenceThreshold {
		e.release(res)
		d.Decision = decisionlog.DecisionDenied
		d.ReasoningSummary = fmt.Sprintf("confidence %.1f below threshold %.0f", final, e.cfg.ConfidenceThreshold)
		e.record(ctx, d)
		return d, action, nil
	}

	d.Decision = decisionlog.DecisionApproved
	d.ReasoningSummary = fmt.Sprintf("confidence %.1f meets threshold %.0f", final, e.cfg.ConfidenceThreshold)
	e.record(ctx, d)

	executed, err := e.execute(ctx, d, p, action, res)
	if err != nil {
		return d, action, err
	}
	return d, executed, nil
}

// scoreProposal computes the three confidence channels and their weighted
// sum, filling the decision's contribution breakdown.
func (e *Executor) scoreProposal(ctx context.Context, p Proposal, d *decisionlog.DecisionLog) float64 {
	rw, aw, hw := e.Weights()

	rule, ruleFactors := e.ruleConfidence(ctx, p)
	ai, aiReason := aiConfidence(p.Incident, p.ActionType)
	hist, histReason := e.historyConfidence(ctx, p.Incident, p.ActionType)

	d.Contributions = []decisionlog.Contribution{
		{Source: "rule", Value: rule, Weight: rw, Weighted: rule * rw, Factors: ruleFactors},
		{Source: "ai", Value: ai, Weight: aw, Weighted: ai * aw, Reasoning: aiReason},
		{Source: "history", Value: hist, Weight: hw, Weighted: hist * hw, Reasoning: histReason},
	}
	for _, f := range ruleFactors {
		if strings.HasPrefix(f, "+") {
			d.FactorsFor = append(d.FactorsFor, f)
		} else if strings.HasPrefix(f, "-") {
			d.FactorsAgainst = append(d.FactorsAgainst, f)
		}
	}
	return rule*rw + ai*aw + hist*hw
}

// ruleConfidence starts at 50 and applies the static heuristics.
func (e *Executor) ruleConfidence(ctx context.Context, p Proposal) (float64, []string) {
	conf := 50.0
	var factors []string
	add := func(delta float64, reason string) {
		conf += delta
		sign := "+"
		if delta < 0 {
			sign = "-"
		}
		factors = append(factors, fmt.Sprintf("%s%.0f %s", sign, absf(delta), reason))
	}

	switch p.Risk {
	case actions.RiskLow:
		add(20, "low-risk action")
	case actions.RiskHigh:
		add(-20, "high-risk action")
	}

	if isRollback(p.ActionType) {
		if dep, err := e.detector.DeploymentWithin(ctx, p.Incident.Service, 10*time.Minute, e.now()); err == nil && dep.Correlated {
			add(25, fmt.Sprintf("deployment %s %.0f minutes ago", dep.Version, dep.AgeMinutes))
		}
	}
	if p.ActionType == "scale_up" && symptomMentions(p.Incident, "latency") {
		add(15, "scaling matches latency anomaly")
	}
	if p.ActionType == "restart_service" && symptomMentions(p.Incident, "memory") {
		add(15, "restart matches memory anomaly")
	}
	if p.Incident.Severity == anomaly.SeverityCritical {
		add(10, "critical incident")
	}
	return clamp(conf, 0, 100), factors
}

// aiConfidence derives the AI channel from the incident's analysis.
func aiConfidence(inc *analysis.Incident, actionType string) (float64, string) {
	ai := inc.AIAnalysis
	if ai == nil {
		return 50, "no AI analysis available"
	}
	base := ai.RootCause.Confidence
	for _, rec := range ai.RecommendedActions {
		if strings.Contains(strings.ToLower(rec.Action), strings.ToLower(actionType)) ||
			strings.Contains(strings.ToLower(actionType), strings.ToLower(rec.Action)) {
			boost := float64(6-rec.Priority) * 5
			return clamp(base+boost, 0, 100), fmt.Sprintf("AI recommends %s at priority %d", rec.Action, rec.Priority)
		}
	}
	return clamp(base*0.6, 0, 100), "action not among AI recommendations"
}

// historyConfidence blends the action type's observed success rate on the
// service with how similar incidents resolved, weighted by how close the
// matches were. Without execution history for the action the channel
// falls back to the resolution rate alone.
func (e *Executor) historyConfidence(ctx context.Context, inc *analysis.Incident, actionType string) (float64, string) {
	if inc.SimilarIncidentCount == 0 {
		return 50, "no similar incidents on record"
	}
	resolved := clamp(inc.HistoricalSuccessRate*100, 0, 100)

	rate, runs, err := e.actions.SuccessRate(ctx, actionType, inc.Service)
	if err != nil || runs == 0 {
		return resolved, fmt.Sprintf("%d similar incidents, %.0f%% resolved (no %s executions on record)",
			inc.SimilarIncidentCount, resolved, actionType)
	}

	w := clamp(inc.MeanSimilarity, 0, 1)
	blended := clamp(w*rate*100+(1-w)*resolved, 0, 100)
	return blended, fmt.Sprintf("%d similar incidents (similarity %.2f), %s succeeded %.0f%% over %d runs",
		inc.SimilarIncidentCount, w, actionType, rate*100, runs)
}

// reservation is the rail state claimed by one in-flight proposal: the
// concurrency slot, a tentative cooldown stamp, and (for rollbacks) a
// budget entry. It is released on any verdict short of execution.
type reservation struct {
	key      string
	rollback bool
	stamp    time.Time
	prevExec time.Time
	hadPrev  bool
}

// safetyRails evaluates the hard stops in order; the first failure wins.
// The in-process checks and the state they guard share one critical
// section, so concurrent proposals cannot all pass before any of them
// reserves a slot.
func (e *Executor) safetyRails(ctx context.Context, p Proposal, confidence float64) (decisionlog.SafetyCheck, *reservation, bool) {
	service := p.Incident.Service
	now := e.now()
	key := cooldownKey(service, p.ActionType)

	e.mu.Lock()
	if e.active >= e.cfg.MaxConcurrent {
		active := e.active
		e.mu.Unlock()
		return failCheck("concurrency", fmt.Sprintf("%d actions already active (limit %d)", active, e.cfg.MaxConcurrent)), nil, false
	}

	if last, hasLast := e.lastExec[key]; hasLast {
		if since := now.Sub(last); since < e.cfg.Cooldown {
			remaining := e.cfg.Cooldown - since
			e.mu.Unlock()
			return failCheck("cooldown", fmt.Sprintf("Cooldown active (%.0fs remaining)", remaining.Seconds())), nil, false
		}
	}

	if isRollback(p.ActionType) && countSince(e.rollbackTimes, now.Add(-time.Hour)) >= e.cfg.RollbacksPerHour {
		e.mu.Unlock()
		return failCheck("rollback_budget", fmt.Sprintf("rollback budget exhausted (%d/h)", e.cfg.RollbacksPerHour)), nil, false
	}

	res := &reservation{key: key, rollback: isRollback(p.ActionType), stamp: now}
	res.prevExec, res.hadPrev = e.lastExec[key]
	e.active++
	e.metrics.SetActiveActions(e.active)
	e.lastExec[key] = now
	if res.rollback {
		e.rollbackTimes = append(pruneOlder(e.rollbackTimes, now.Add(-time.Hour)), now)
	}
	e.mu.Unlock()

	if strings.Contains(p.ActionType, "scale") {
		if check, ok := scaleLimits(p.Params); !ok {
			e.release(res)
			return check, nil, false
		}
	}

	if recent, err := e.detector.RecentAnomalies(ctx, service, 10); err == nil {
		critical := 0
		for _, a := range recent {
			if a.Severity == anomaly.SeverityCritical {
				critical++
			}
		}
		if critical >= 3 {
			e.release(res)
			return failCheck("service_health", fmt.Sprintf("service health critical (%d critical anomalies in last 10)", critical)), nil, false
		}
	}

	if check, ok := blastRadiusCap(p.ActionType, p.Incident.BlastRadius, confidence); !ok {
		e.release(res)
		return check, nil, false
	}

	return decisionlog.SafetyCheck{}, res, true
}

// release hands back a reservation that did not reach execution.
func (e *Executor) release(r *reservation) {
	if r == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active--
	e.metrics.SetActiveActions(e.active)
	if r.hadPrev {
		e.lastExec[r.key] = r.prevExec
	} else {
		delete(e.lastExec, r.key)
	}
	if r.rollback {
		for i, ts := range e.rollbackTimes {
			if ts.Equal(r.stamp) {
				e.rollbackTimes = append(e.rollbackTimes[:i], e.rollbackTimes[i+1:]...)
				break
			}
		}
	}
}

// scaleLimits bounds replica targets: never below one, never more than
// triple the current count.
func scaleLimits(params map[string]string) (decisionlog.SafetyCheck, bool) {
	target, err := strconv.Atoi(params["target_replicas"])
	if err != nil {
		return decisionlog.SafetyCheck{}, true
	}
	if target < 1 {
		return failCheck("scale_limits", "target replicas below 1"), false
	}
	if current, err := strconv.Atoi(params["current_replicas"]); err == nil && current > 0 && target > 3*current {
		return failCheck("scale_limits", fmt.Sprintf("target %d exceeds 3x current %d", target, current)), false
	}
	return decisionlog.SafetyCheck{}, true
}

// blastRadiusCap limits how widely an action may reach. Disruptive but
// reversible actions tolerate a bigger radius when confidence is high.
func blastRadiusCap(actionType, radius string, confidence float64) (decisionlog.SafetyCheck, bool) {
	score := radiusScore(radius)
	limit := 50.0
	if (isRollback(actionType) || actionType == "restart_service" || actionType == "clear_cache") && confidence >= 80 {
		limit = 80
	}
	if score > limit {
		return failCheck("blast_radius", fmt.Sprintf("blast radius %s (%.0f) exceeds cap %.0f for %s", radius, score, limit, actionType)), false
	}
	return decisionlog.SafetyCheck{}, true
}

func radiusScore(radius string) float64 {
	switch radius {
	case "low":
		return 25
	case "medium":
		return 50
	case "high":
		return 75
	case "critical":
		return 100
	default:
		return 50
	}
}

// modeAllows applies the execution-mode gate after the rails pass.
func (e *Executor) modeAllows(risk actions.Risk) (bool, string) {
	e.mu.Lock()
	mode := e.mode
	e.mu.Unlock()

	switch mode {
	case ModeManual:
		return false, "manual mode: awaiting operator approval"
	case ModeSupervised:
		if risk != actions.RiskLow {
			return false, fmt.Sprintf("supervised mode: %s risk requires approval", risk)
		}
		return true, ""
	case ModeNight:
		hour := e.now().Hour()
		if !hourInWindow(hour, e.cfg.NightStartHour, e.cfg.NightEndHour) {
			return false, fmt.Sprintf("night mode: hour %02d outside window [%02d, %02d)", hour, e.cfg.NightStartHour, e.cfg.NightEndHour)
		}
		return true, ""
	case ModeAutonomous:
		return true, ""
	default:
		return false, fmt.Sprintf("unknown mode %q", mode)
	}
}

// hourInWindow handles windows that wrap across midnight.
func hourInWindow(hour, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// execute drives the action through the lifecycle and fans the outcome
// back into learning and the decision log. The reservation's slot is held
// for the duration; its cooldown stamp is refreshed to completion time.
// Failed executions still consume the cooldown and budget.
func (e *Executor) execute(ctx context.Context, d *decisionlog.DecisionLog, p Proposal, a *actions.Action, res *reservation) (*actions.Action, error) {
	start := e.now()
	done, err := e.actions.Approve(ctx, a.ID, "autopilot")

	e.mu.Lock()
	e.active--
	e.metrics.SetActiveActions(e.active)
	e.lastExec[res.key] = e.now()
	e.mu.Unlock()

	if err != nil {
		e.finishDecision(ctx, d, p, false, e.now().Sub(start).Seconds())
		return nil, err
	}

	success := done.Status == actions.StatusSuccess
	e.finishDecision(ctx, d, p, success, e.now().Sub(start).Seconds())
	return done, nil
}

func (e *Executor) finishDecision(ctx context.Context, d *decisionlog.DecisionLog, p Proposal, success bool, execSeconds float64) {
	outcome := "failed_autonomous"
	if success {
		outcome = "success_autonomous"
	}
	if err := e.decisions.SetOutcome(ctx, d.DecisionID, outcome); err != nil {
		log.Warn().Err(err).Str("decisionID", d.DecisionID).Msg("Failed to label decision outcome")
	}

	if p.Incident.BestPatternID != "" {
		err := e.learning.RecordOutcome(ctx, learning.LearningOutcome{
			OutcomeID:             d.DecisionID,
			IncidentID:            p.Incident.IncidentID,
			PatternID:             p.Incident.BestPatternID,
			ActionType:            p.ActionType,
			ActionCategory:        categoryOf(p.ActionType),
			Success:               success,
			Autonomous:            true,
			ConfidenceAtExecution: d.FinalConfidence,
			ExecutionSeconds:      execSeconds,
			Timestamp:             e.now(),
		})
		if err != nil {
			log.Warn().Err(err).Str("patternID", p.Incident.BestPatternID).Msg("Failed to record learning outcome")
		}
	}

	e.adaptWeights(success, d.FinalConfidence)
}

// adaptWeights nudges all three channels on strong outcomes, floors them
// at epsilon, and re-normalizes to sum to one.
func (e *Executor) adaptWeights(success bool, confidence float64) {
	var delta float64
	switch {
	case success && confidence >= 90:
		delta = 0.02
	case !success && confidence >= 75:
		delta = -0.02
	default:
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ruleWeight += delta
	e.aiWeight += delta
	e.historyWeight += delta
	e.normalizeWeightsLocked()
}

func (e *Executor) normalizeWeights() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.normalizeWeightsLocked()
}

func (e *Executor) normalizeWeightsLocked() {
	if e.ruleWeight < weightEpsilon {
		e.ruleWeight = weightEpsilon
	}
	if e.aiWeight < weightEpsilon {
		e.aiWeight = weightEpsilon
	}
	if e.historyWeight < weightEpsilon {
		e.historyWeight = weightEpsilon
	}
	sum := e.ruleWeight + e.aiWeight + e.historyWeight
	e.ruleWeight /= sum
	e.aiWeight /= sum
	e.historyWeight /= sum
}

// ProbeStore tracks C1 health. An outage longer than the configured limit
// forces manual mode; recovery restores the previous mode.
func (e *Executor) ProbeStore(ctx context.Context) {
	err := e.store.Ping(ctx)
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err == nil {
		if !e.storeDownSince.IsZero() {
			e.storeDownSince = time.Time{}
			if e.preOutageMode != "" {
				log.Info().Str("mode", string(e.preOutageMode)).Msg("Store recovered, restoring mode")
				e.mode = e.preOutageMode
				e.preOutageMode = ""
			}
		}
		return
	}

	if e.storeDownSince.IsZero() {
		e.storeDownSince = now
		return
	}
	if now.Sub(e.storeDownSince) > e.cfg.StoreOutageLimit && e.mode != ModeManual {
		log.Error().Err(err).Dur("down", now.Sub(e.storeDownSince)).Msg("Store unhealthy, forcing manual mode")
		e.preOutageMode = e.mode
		e.mode = ModeManual
	}
}

func (e *Executor) record(ctx context.Context, d *decisionlog.DecisionLog) {
	e.metrics.RecordDecision(string(d.Decision))
	if err := e.decisions.Record(ctx, d); err != nil {
		log.Warn().Err(err).Str("decisionID", d.DecisionID).Msg("Failed to record decision log")
	}
	log.Info().
		Str("decisionID", d.DecisionID).
		Str("service", d.Service).
		Str("actionType", d.ActionType).
		Str("decision", string(d.Decision)).
		Float64("confidence", d.FinalConfidence).
		Msg("Autonomous decision")
}

func cooldownKey(service, actionType string) string { return service + ":" + actionType }

func isRollback(actionType string) bool {
	return actionType == "rollback" || actionType == "rollback_deploy"
}

func symptomMentions(inc *analysis.Incident, term string) bool {
	for _, s := range inc.Symptoms {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func categoryOf(actionType string) string {
	switch {
	case isRollback(actionType) || strings.HasPrefix(actionType, "pipeline"):
		return "cicd"
	case strings.Contains(actionType, "scale") || actionType == "restart_service" || actionType == "update_resources":
		return "kubernetes"
	case strings.Contains(actionType, "connection") || strings.Contains(actionType, "quer"):
		return "database"
	default:
		return "generic"
	}
}

func failCheck(name, detail string) decisionlog.SafetyCheck {
	return decisionlog.SafetyCheck{Name: name, Passed: false, Detail: detail}
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func pruneOlder(times []time.Time, cutoff time.Time) []time.Time {
	out := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
