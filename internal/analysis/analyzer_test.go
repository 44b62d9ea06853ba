package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsloop/autopilot/internal/anomaly"
	"github.com/opsloop/autopilot/internal/knowledge"
	"github.com/opsloop/autopilot/internal/kvstore"
	"github.com/opsloop/autopilot/internal/learning"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *anomaly.Detector, kvstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	det := anomaly.NewDetector(store, anomaly.DefaultConfig())
	eng := learning.NewEngine(store)
	base := knowledge.NewBase()
	base.SetStatsProvider(eng)
	return NewAnalyzer(store, base, eng, det, nil, time.Second), det, store
}

func oomAnomaly(service string) anomaly.Anomaly {
	return anomaly.Anomaly{
		Service:    service,
		Metric:     "memory_usage",
		Value:      97,
		Mean:       60,
		StdDev:     9,
		ZScore:     4.1,
		Severity:   anomaly.SeverityCritical,
		DetectedAt: time.Now().UTC(),
	}
}

func TestFingerprintStableAcrossOrder(t *testing.T) {
	a1 := anomaly.Anomaly{Service: "api", Metric: "cpu_usage", Value: 95, Mean: 40, Severity: anomaly.SeverityHigh}
	a2 := anomaly.Anomaly{Service: "api", Metric: "request_latency_ms", Value: 900, Mean: 100, Severity: anomaly.SeverityCritical}

	fp1 := Fingerprint("api", []anomaly.Anomaly{a1, a2})
	fp2 := Fingerprint("api", []anomaly.Anomaly{a2, a1})
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 24)

	// Duplicated features collapse to the same identity.
	fp3 := Fingerprint("api", []anomaly.Anomaly{a1, a1, a2})
	assert.Equal(t, fp1, fp3)

	// Different service, different fingerprint.
	assert.NotEqual(t, fp1, Fingerprint("other", []anomaly.Anomaly{a1, a2}))
}

func TestFingerprintDirectionAboveOnEquality(t *testing.T) {
	eq := anomaly.Anomaly{Service: "api", Metric: "cpu_usage", Value: 50, Mean: 50, Severity: anomaly.SeverityMedium}
	above := anomaly.Anomaly{Service: "api", Metric: "cpu_usage", Value: 80, Mean: 50, Severity: anomaly.SeverityMedium}
	below := anomaly.Anomaly{Service: "api", Metric: "cpu_usage", Value: 20, Mean: 50, Severity: anomaly.SeverityMedium}

	assert.Equal(t,
		Fingerprint("api", []anomaly.Anomaly{eq}),
		Fingerprint("api", []anomaly.Anomaly{above}))
	assert.NotEqual(t,
		Fingerprint("api", []anomaly.Anomaly{eq}),
		Fingerprint("api", []anomaly.Anomaly{below}))
}

func TestAnalyzeOOMIncident(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)
	ctx := context.Background()

	inc, err := a.Analyze(ctx, "payment-service",
		[]anomaly.Anomaly{oomAnomaly("payment-service")},
		[]string{"Container was OOMKilled"})
	require.NoError(t, err)

	assert.Equal(t, anomaly.SeverityCritical, inc.Severity)
	assert.Contains(t, inc.Signals, "OOMKilled")
	assert.NotEmpty(t, inc.BestPatternID)
	assert.NotEmpty(t, inc.RootCause)
	assert.Greater(t, inc.RootCauseConfidence, 0.0)

	// Fresh pattern with no learning history is never autonomous.
	assert.False(t, inc.AutonomousSafe)

	// Single service, but payment bumps the radius.
	assert.Equal(t, []string{"payment-service"}, inc.AffectedServices)
	assert.Equal(t, "medium", inc.BlastRadius)

	require.NotNil(t, inc.AIAnalysis)
	assert.LessOrEqual(t, inc.AIAnalysis.RootCause.Confidence, 50.0)
}

func TestRootCauseHeuristics(t *testing.T) {
	noDeploy := anomaly.DeploymentCorrelation{}

	cause, conf := rootCause(anomaly.DeploymentCorrelation{Correlated: true, Version: "v2"}, nil, 0, nil)
	assert.Equal(t, "Recent deployment change", cause)
	assert.InDelta(t, 85, conf, 0.001)

	pattern := &knowledge.IncidentPattern{ID: "p", Name: "Connection pool exhausted"}
	cause, conf = rootCause(noDeploy, pattern, 72, nil)
	assert.Equal(t, "Connection pool exhausted", cause)
	assert.InDelta(t, 72, conf, 0.001)

	cause, conf = rootCause(noDeploy, nil, 0, []string{"process ran out of memory"})
	assert.Contains(t, cause, "Memory exhaustion")
	assert.InDelta(t, 90, conf, 0.001)

	cause, conf = rootCause(noDeploy, nil, 0, []string{"connection to db timeout after 30s"})
	assert.Contains(t, cause, "Connection")
	assert.InDelta(t, 75, conf, 0.001)

	_, conf = rootCause(noDeploy, nil, 0, []string{"nothing interesting"})
	assert.InDelta(t, 30, conf, 0.001)
}

func TestDeploymentRootCauseWins(t *testing.T) {
	a, det, _ := newTestAnalyzer(t)
	ctx := context.Background()

	require.NoError(t, det.RecordDeployment(ctx, "api", "v5.1.0", time.Now().UTC().Add(-20*time.Minute)))

	inc, err := a.Analyze(ctx, "api",
		[]anomaly.Anomaly{oomAnomaly("api")},
		[]string{"Container was OOMKilled"})
	require.NoError(t, err)
	assert.Equal(t, "Recent deployment change", inc.RootCause)
	assert.InDelta(t, 85, inc.RootCauseConfidence, 0.001)
	assert.NotEmpty(t, inc.ContributingFactors)
}

func TestClassification(t *testing.T) {
	cat, sub := classify([]anomaly.Anomaly{{Metric: "memory_usage"}}, []string{"pod restarting"})
	assert.Equal(t, "kubernetes", cat)
	assert.Equal(t, "workload", sub)

	cat, _ = classify(nil, []string{"postgres connection pool saturated"})
	assert.Equal(t, "database", cat)

	cat, _ = classify([]anomaly.Anomaly{{Metric: "request_latency_ms"}}, nil)
	assert.Equal(t, "network", cat)

	cat, sub = classify([]anomaly.Anomaly{{Metric: "error_rate"}}, nil)
	assert.Equal(t, "application", cat)
	assert.Equal(t, "errors", sub)

	cat, _ = classify(nil, []string{"something odd"})
	assert.Equal(t, "unknown", cat)
}

func TestRecurrenceProbabilityGrowsWithHistory(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)
	ctx := context.Background()

	anomalies := []anomaly.Anomaly{oomAnomaly("checkout")}
	logs := []string{"Container was OOMKilled"}

	first, err := a.Analyze(ctx, "checkout", anomalies, logs)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, first.RecurrenceProbability, 0.001)

	second, err := a.Analyze(ctx, "checkout", anomalies, logs)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, second.RecurrenceProbability, 0.001)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 1, second.SimilarIncidentCount)

	for i := 0; i < 3; i++ {
		_, err = a.Analyze(ctx, "checkout", anomalies, logs)
		require.NoError(t, err)
	}
	sixth, err := a.Analyze(ctx, "checkout", anomalies, logs)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, sixth.RecurrenceProbability, 0.001)
}

func TestMeanSimilarityTracksMatchCloseness(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)
	ctx := context.Background()

	anomalies := []anomaly.Anomaly{oomAnomaly("checkout")}
	logs := []string{"Container was OOMKilled"}

	first, err := a.Analyze(ctx, "checkout", anomalies, logs)
	require.NoError(t, err)
	assert.Zero(t, first.MeanSimilarity)

	// An exact fingerprint repeat is a perfect match.
	second, err := a.Analyze(ctx, "checkout", anomalies, logs)
	require.NoError(t, err)
	require.Equal(t, 1, second.SimilarIncidentCount)
	assert.InDelta(t, 1.0, second.MeanSimilarity, 0.001)

	// A different anomaly set sharing one of two symptoms falls back to
	// the overlap fraction.
	cpu := anomaly.Anomaly{
		Service: "checkout", Metric: "cpu_usage", Value: 95, Mean: 40,
		StdDev: 10, ZScore: 5.5, Severity: anomaly.SeverityHigh,
		DetectedAt: time.Now().UTC(),
	}
	third, err := a.Analyze(ctx, "checkout", []anomaly.Anomaly{oomAnomaly("checkout"), cpu}, nil)
	require.NoError(t, err)
	require.NotEqual(t, first.Fingerprint, third.Fingerprint)
	require.Equal(t, 2, third.SimilarIncidentCount)
	assert.InDelta(t, 0.5, third.MeanSimilarity, 0.001)
}

func TestMarkResolvedFeedsHistoricalStats(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)
	ctx := context.Background()

	anomalies := []anomaly.Anomaly{oomAnomaly("checkout")}
	logs := []string{"Container was OOMKilled"}

	first, err := a.Analyze(ctx, "checkout", anomalies, logs)
	require.NoError(t, err)
	require.NoError(t, a.MarkResolved(ctx, first.IncidentID, 120))

	second, err := a.Analyze(ctx, "checkout", anomalies, logs)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, second.HistoricalSuccessRate, 0.001)
	assert.InDelta(t, 120, second.AvgResolutionSeconds, 0.001)
	assert.InDelta(t, 120, second.PredictedResolutionSeconds, 0.001)
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)
	_, err := a.Analyze(context.Background(), "api", nil, nil)
	assert.Error(t, err)
}

type failingAI struct{}

func (failingAI) Analyze(context.Context, AnalyzeRequest) (*Analysis, error) {
	return nil, errors.New("llm unavailable")
}

func TestAIFallbackOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	det := anomaly.NewDetector(store, anomaly.DefaultConfig())
	eng := learning.NewEngine(store)
	a := NewAnalyzer(store, knowledge.NewBase(), eng, det, failingAI{}, time.Second)

	inc, err := a.Analyze(context.Background(), "api",
		[]anomaly.Anomaly{oomAnomaly("api")}, []string{"Container was OOMKilled"})
	require.NoError(t, err)
	require.NotNil(t, inc.AIAnalysis)
	assert.LessOrEqual(t, inc.AIAnalysis.RootCause.Confidence, 50.0)
}

func TestRankedActionsBounded(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)
	ctx := context.Background()

	inc, err := a.Analyze(ctx, "api",
		[]anomaly.Anomaly{oomAnomaly("api")}, []string{"Container was OOMKilled"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(inc.RecommendedActions), 5)
	for i := 1; i < len(inc.RecommendedActions); i++ {
		assert.GreaterOrEqual(t, inc.RecommendedActions[i-1].Confidence, inc.RecommendedActions[i].Confidence)
	}
}
