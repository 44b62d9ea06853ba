package autonomous

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsloop/autopilot/internal/actions"
	"github.com/opsloop/autopilot/internal/analysis"
	"github.com/opsloop/autopilot/internal/anomaly"
	"github.com/opsloop/autopilot/internal/decisionlog"
	"github.com/opsloop/autopilot/internal/kvstore"
	"github.com/opsloop/autopilot/internal/learning"
)

type testRig struct {
	exec     *Executor
	store    kvstore.Store
	detector *anomaly.Detector
	learning *learning.Engine
	logger   *decisionlog.Logger
}

func newRig(t *testing.T, cfg Config) *testRig {
	return newRigWithProviders(t, cfg, nil)
}

func newRigWithProviders(t *testing.T, cfg Config, providers []actions.Provider) *testRig {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	det := anomaly.NewDetector(store, anomaly.DefaultConfig())
	eng := learning.NewEngine(store)
	logger := decisionlog.NewLogger(store)
	act := actions.NewExecutor(store, providers, true, 5*time.Second)
	return &testRig{
		exec:     NewExecutor(cfg, store, act, eng, det, logger),
		store:    store,
		detector: det,
		learning: eng,
		logger:   logger,
	}
}

// slowProvider holds each execution open so overlapping decisions are
// observable.
type slowProvider struct{ delay time.Duration }

func (p slowProvider) Category() string     { return "generic" }
func (p slowProvider) Supports(string) bool { return true }

func (p slowProvider) Execute(ctx context.Context, actionType string, params map[string]string, dryRun bool) (actions.ProviderResult, error) {
	select {
	case <-ctx.Done():
		return actions.ProviderResult{}, ctx.Err()
	case <-time.After(p.delay):
	}
	return actions.ProviderResult{Success: true, Message: "simulated " + actionType, DryRun: dryRun}, nil
}

func rollbackIncident(service string) *analysis.Incident {
	return &analysis.Incident{
		IncidentID:    "inc-1",
		Service:       service,
		Severity:      anomaly.SeverityHigh,
		Symptoms:      []string{"High request_latency_ms: 1500.00 (threshold: 102.00)"},
		BestPatternID: "cicd-bad-deploy",
		BlastRadius:   "low",
		AIAnalysis: &analysis.Analysis{
			RootCause: analysis.RootCause{Description: "Recent deployment change", Confidence: 85},
			RecommendedActions: []analysis.AIRecommendation{
				{Action: "rollback_deploy", Priority: 1, Risk: "low"},
			},
		},
	}
}

func rollbackProposal(service string) Proposal {
	return Proposal{
		Incident:   rollbackIncident(service),
		ActionType: "rollback_deploy",
		Risk:       actions.RiskLow,
		Reasoning:  "latency spike after deploy",
	}
}

func restartProposal(service string) Proposal {
	p := rollbackProposal(service)
	p.ActionType = "restart_service"
	p.Incident.Symptoms = []string{"High memory_usage: 97.00 (threshold: 60.00)"}
	p.Incident.AIAnalysis.RecommendedActions[0].Action = "restart_service"
	return p
}

func TestRollbackAutoApprovedAfterDeploy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRig(t, cfg)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, rig.detector.RecordDeployment(ctx, "payment-api", "v3.2.1", now.Add(-5*time.Minute)))

	d, a, err := rig.exec.Decide(ctx, rollbackProposal("payment-api"))
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionApproved, d.Decision)

	// Rule: 50 base + 20 low-risk + 25 deploy within 10 min = 95.
	var rule decisionlog.Contribution
	for _, c := range d.Contributions {
		if c.Source == "rule" {
			rule = c
		}
	}
	assert.GreaterOrEqual(t, rule.Value, 75.0)

	// AI recommends the rollback at priority 1.
	assert.GreaterOrEqual(t, d.FinalConfidence, 75.0)

	require.NotNil(t, a)
	assert.Equal(t, actions.StatusSuccess, a.Status)
	assert.True(t, a.Result.DryRun)

	stored, err := rig.logger.Get(ctx, d.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, "success_autonomous", stored.Outcome)

	// The outcome fed learning for the matched pattern.
	assert.Equal(t, 1, rig.learning.TotalMatches(ctx, "cicd-bad-deploy"))
}

func TestCooldownDeniesSecondExecution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRig(t, cfg)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rig.exec.now = func() time.Time { return t0 }

	p := rollbackProposal("auth-service")
	p.ActionType = "restart_service"
	p.Incident.Symptoms = []string{"High memory_usage: 97.00 (threshold: 60.00)"}
	p.Incident.AIAnalysis.RecommendedActions[0].Action = "restart_service"

	d, a, err := rig.exec.Decide(ctx, p)
	require.NoError(t, err)
	require.Equal(t, decisionlog.DecisionApproved, d.Decision)
	require.Equal(t, actions.StatusSuccess, a.Status)

	rig.exec.now = func() time.Time { return t0.Add(100 * time.Second) }
	d2, a2, err := rig.exec.Decide(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDenied, d2.Decision)
	assert.Equal(t, "Cooldown active (200s remaining)", d2.ReasoningSummary)
	assert.Equal(t, actions.StatusPending, a2.Status)

	// Past the cooldown the same pair may run again.
	rig.exec.now = func() time.Time { return t0.Add(301 * time.Second) }
	d3, _, err := rig.exec.Decide(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionApproved, d3.Decision)
}

func TestConcurrencyCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRig(t, cfg)

	rig.exec.mu.Lock()
	rig.exec.active = cfg.MaxConcurrent
	rig.exec.mu.Unlock()

	d, _, err := rig.exec.Decide(context.Background(), rollbackProposal("api"))
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDenied, d.Decision)
	assert.Contains(t, d.ReasoningSummary, "active")
}

func TestRollbackBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRig(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	step := 0
	rig.exec.now = func() time.Time { return base.Add(time.Duration(step) * 10 * time.Minute) }

	// Two rollbacks on different services consume the hourly budget.
	for _, svc := range []string{"svc-a", "svc-b"} {
		d, _, err := rig.exec.Decide(ctx, rollbackProposal(svc))
		require.NoError(t, err)
		require.Equal(t, decisionlog.DecisionApproved, d.Decision)
		step++
	}

	d, _, err := rig.exec.Decide(ctx, rollbackProposal("svc-c"))
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDenied, d.Decision)
	assert.Contains(t, d.ReasoningSummary, "rollback budget")
}

func TestScaleLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRig(t, cfg)
	ctx := context.Background()

	p := rollbackProposal("api")
	p.ActionType = "scale_up"
	p.Params = map[string]string{"target_replicas": "10", "current_replicas": "3"}

	d, _, err := rig.exec.Decide(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDenied, d.Decision)
	assert.Contains(t, d.ReasoningSummary, "3x")

	p.Params = map[string]string{"target_replicas": "0"}
	d, _, err = rig.exec.Decide(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDenied, d.Decision)
	assert.Contains(t, d.ReasoningSummary, "below 1")
}

func TestServiceHealthVeto(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRig(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, rig.store.LPush(ctx, "recent_anomalies:api",
			`{"service":"api","metric":"error_rate","severity":"critical"}`))
	}

	d, _, err := rig.exec.Decide(ctx, rollbackProposal("api"))
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDenied, d.Decision)
	assert.Contains(t, d.ReasoningSummary, "health")
}

func TestBlastRadiusCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRig(t, cfg)
	ctx := context.Background()

	p := rollbackProposal("api")
	p.Incident.BlastRadius = "critical"

	d, _, err := rig.exec.Decide(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDenied, d.Decision)
	assert.Contains(t, d.ReasoningSummary, "blast radius")
}

func TestManualModeDefers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeManual
	rig := newRig(t, cfg)

	d, a, err := rig.exec.Decide(context.Background(), rollbackProposal("api"))
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDeferred, d.Decision)
	assert.Equal(t, actions.StatusPending, a.Status)
}

func TestSupervisedModeGatesRisk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeSupervised
	rig := newRig(t, cfg)
	ctx := context.Background()

	// Low risk passes through.
	d, _, err := rig.exec.Decide(ctx, rollbackProposal("api"))
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionApproved, d.Decision)

	p := rollbackProposal("other")
	p.Risk = actions.RiskHigh
	d, _, err = rig.exec.Decide(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDeferred, d.Decision)
}

func TestNightModeWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeNight
	cfg.NightStartHour = 22
	cfg.NightEndHour = 6
	rig := newRig(t, cfg)
	ctx := context.Background()

	// 23:00 is inside the wrap-around window.
	rig.exec.now = func() time.Time { return time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC) }
	d, _, err := rig.exec.Decide(ctx, rollbackProposal("api"))
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionApproved, d.Decision)

	// 03:00 the next day still is.
	rig.exec.now = func() time.Time { return time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC) }
	d, _, err = rig.exec.Decide(ctx, rollbackProposal("svc-b"))
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionApproved, d.Decision)

	// 10:00 is not.
	rig.exec.now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) }
	d, _, err = rig.exec.Decide(ctx, rollbackProposal("svc-c"))
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDeferred, d.Decision)
}

func TestBelowThresholdDenied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRig(t, cfg)

	p := rollbackProposal("api")
	p.Incident.AIAnalysis = &analysis.Analysis{
		RootCause: analysis.RootCause{Description: "unclear", Confidence: 30},
	}
	p.Risk = actions.RiskMedium

	// Rule ~50, AI 30*0.6=18, history 50: weighted well below 75.
	d, a, err := rig.exec.Decide(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, decisionlog.DecisionDenied, d.Decision)
	assert.Contains(t, d.ReasoningSummary, "threshold")
	assert.Equal(t, actions.StatusPending, a.Status)
}

func TestWeightAdaptationNormalizes(t *testing.T) {
	rig := newRig(t, DefaultConfig())

	for i := 0; i < 50; i++ {
		rig.exec.adaptWeights(true, 95)
	}
	r, a, h := rig.exec.Weights()
	assert.InDelta(t, 1.0, r+a+h, 1e-6)
	assert.Greater(t, r, 0.0)

	for i := 0; i < 200; i++ {
		rig.exec.adaptWeights(false, 80)
	}
	r, a, h = rig.exec.Weights()
	assert.InDelta(t, 1.0, r+a+h, 1e-6)
	assert.GreaterOrEqual(t, r, weightEpsilon/3)
	assert.GreaterOrEqual(t, h, weightEpsilon/3)

	// Outcomes outside the reinforcement bands leave weights alone.
	before := [3]float64{r, a, h}
	rig.exec.adaptWeights(true, 50)
	rig.exec.adaptWeights(false, 50)
	r, a, h = rig.exec.Weights()
	assert.InDelta(t, before[0], r, 1e-9)
	assert.InDelta(t, before[1], a, 1e-9)
	assert.InDelta(t, before[2], h, 1e-9)
}

func TestStoreOutageForcesManual(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	det := anomaly.NewDetector(store, anomaly.DefaultConfig())
	exec := NewExecutor(cfg, store, actions.NewExecutor(store, nil, true, time.Second),
		learning.NewEngine(store), det, decisionlog.NewLogger(store))

	t0 := time.Now().UTC()
	exec.now = func() time.Time { return t0 }

	ctx := context.Background()
	exec.ProbeStore(ctx)
	assert.Equal(t, ModeAutonomous, exec.Mode())

	mr.Close()
	exec.ProbeStore(ctx) // outage starts
	exec.now = func() time.Time { return t0.Add(time.Minute) }
	exec.ProbeStore(ctx) // past the limit
	assert.Equal(t, ModeManual, exec.Mode())

	// Recovery restores the previous mode.
	mr.Restart()
	exec.ProbeStore(ctx)
	assert.Equal(t, ModeAutonomous, exec.Mode())
}

func TestConcurrentDecisionsRespectConcurrencyCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRigWithProviders(t, cfg, []actions.Provider{slowProvider{delay: 150 * time.Millisecond}})
	ctx := context.Background()

	stop := make(chan struct{})
	peakCh := make(chan int, 1)
	go func() {
		peak := 0
		for {
			select {
			case <-stop:
				peakCh <- peak
				return
			default:
			}
			rig.exec.mu.Lock()
			if rig.exec.active > peak {
				peak = rig.exec.active
			}
			rig.exec.mu.Unlock()
			time.Sleep(time.Millisecond)
		}
	}()

	const proposals = 6
	var wg sync.WaitGroup
	errs := make([]error, proposals)
	for i := 0; i < proposals; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = rig.exec.Decide(ctx, restartProposal(fmt.Sprintf("svc-%d", i)))
		}(i)
	}
	wg.Wait()
	close(stop)

	for i, err := range errs {
		assert.NoError(t, err, "proposal %d", i)
	}
	assert.LessOrEqual(t, <-peakCh, cfg.MaxConcurrent)

	rig.exec.mu.Lock()
	assert.Zero(t, rig.exec.active)
	rig.exec.mu.Unlock()
}

func TestConcurrentRollbacksRespectBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRigWithProviders(t, cfg, []actions.Provider{slowProvider{delay: 100 * time.Millisecond}})
	ctx := context.Background()

	const proposals = 6
	now := time.Now().UTC()
	for i := 0; i < proposals; i++ {
		require.NoError(t, rig.detector.RecordDeployment(ctx, fmt.Sprintf("svc-%d", i), "v1.0.1", now.Add(-5*time.Minute)))
	}

	var wg sync.WaitGroup
	decisions := make([]*decisionlog.DecisionLog, proposals)
	errs := make([]error, proposals)
	for i := 0; i < proposals; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], _, errs[i] = rig.exec.Decide(ctx, rollbackProposal(fmt.Sprintf("svc-%d", i)))
		}(i)
	}
	wg.Wait()

	approved := 0
	for i := range decisions {
		require.NoError(t, errs[i])
		if decisions[i].Decision == decisionlog.DecisionApproved {
			approved++
		} else {
			assert.Contains(t, decisions[i].ReasoningSummary, "rollback budget")
		}
	}
	assert.Equal(t, cfg.RollbacksPerHour, approved)
}

func TestReleasedRailsLeaveNoResidue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAutonomous
	rig := newRig(t, cfg)
	ctx := context.Background()

	p := rollbackProposal("api")
	p.Incident.AIAnalysis = &analysis.Analysis{
		RootCause: analysis.RootCause{Description: "unclear", Confidence: 30},
	}
	p.Risk = actions.RiskMedium

	d, _, err := rig.exec.Decide(ctx, p)
	require.NoError(t, err)
	require.Equal(t, decisionlog.DecisionDenied, d.Decision)
	require.Contains(t, d.ReasoningSummary, "threshold")

	// The denial released its reservation: no slot held, no cooldown
	// stamp, no rollback budget spent.
	rig.exec.mu.Lock()
	assert.Zero(t, rig.exec.active)
	assert.Empty(t, rig.exec.lastExec)
	assert.Empty(t, rig.exec.rollbackTimes)
	rig.exec.mu.Unlock()

	// A replay is judged on confidence again, not on a stale cooldown.
	d2, _, err := rig.exec.Decide(ctx, p)
	require.NoError(t, err)
	assert.Contains(t, d2.ReasoningSummary, "threshold")
}

func TestHistoryConfidenceBlendsActionRecord(t *testing.T) {
	rig := newRig(t, DefaultConfig())
	ctx := context.Background()

	inc := rollbackIncident("api")
	inc.SimilarIncidentCount = 4
	inc.HistoricalSuccessRate = 0.5
	inc.MeanSimilarity = 0.8

	// Without executions of the action the channel is the resolution rate.
	v, reason := rig.exec.historyConfidence(ctx, inc, "restart_service")
	assert.InDelta(t, 50, v, 0.001)
	assert.Contains(t, reason, "no restart_service executions")

	// 4/5 successful restarts shift the channel toward the action's own
	// record, weighted by match similarity: 0.8*80 + 0.2*50 = 74.
	_, err := rig.store.HIncrBy(ctx, "action_success_rate:restart_service:api", "total", 5)
	require.NoError(t, err)
	_, err = rig.store.HIncrBy(ctx, "action_success_rate:restart_service:api", "success", 4)
	require.NoError(t, err)

	v, reason = rig.exec.historyConfidence(ctx, inc, "restart_service")
	assert.InDelta(t, 74, v, 0.001)
	assert.Contains(t, reason, "80%")

	// No similar incidents keeps the neutral prior.
	inc.SimilarIncidentCount = 0
	v, _ = rig.exec.historyConfidence(ctx, inc, "restart_service")
	assert.InDelta(t, 50, v, 0.001)
}
