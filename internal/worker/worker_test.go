package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsloop/autopilot/internal/actions"
	"github.com/opsloop/autopilot/internal/analysis"
	"github.com/opsloop/autopilot/internal/anomaly"
	"github.com/opsloop/autopilot/internal/autonomous"
	"github.com/opsloop/autopilot/internal/decisionlog"
	"github.com/opsloop/autopilot/internal/deployrisk"
	"github.com/opsloop/autopilot/internal/knowledge"
	"github.com/opsloop/autopilot/internal/kvstore"
	"github.com/opsloop/autopilot/internal/learning"
	"github.com/opsloop/autopilot/internal/repeat"
)

func newTestPipeline(t *testing.T) (*Pipeline, kvstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	det := anomaly.NewDetector(store, anomaly.DefaultConfig())
	eng := learning.NewEngine(store)
	analyzer := analysis.NewAnalyzer(store, knowledge.NewBase(), eng, det, nil, time.Second)
	act := actions.NewExecutor(store, nil, true, time.Second)
	autoCfg := autonomous.DefaultConfig()
	autoCfg.Mode = autonomous.ModeAutonomous
	auto := autonomous.NewExecutor(autoCfg, store, act, eng, det, decisionlog.NewLogger(store))
	rep := repeat.NewEliminator(store, act)
	risks := deployrisk.NewAnalyzer(store, det, analyzer)

	return NewPipeline(DefaultConfig(), store, det, analyzer, auto, act, rep, risks), store
}

func queueSample(t *testing.T, store kvstore.Store, service, metric string, value float64) {
	t.Helper()
	data, err := json.Marshal(MetricSample{Service: service, Metric: metric, Value: value})
	require.NoError(t, err)
	require.NoError(t, store.LPush(context.Background(), metricQueue, data))
}

func TestPollMetricsFeedsDetector(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		queueSample(t, store, "payment-api", "memory_usage", float64(50+i%10))
	}
	for _, v := range []float64{95, 97, 96} {
		queueSample(t, store, "payment-api", "memory_usage", v)
	}

	require.NoError(t, p.pollMetrics(ctx))

	// Queue is fully drained.
	_, err := store.RPop(ctx, metricQueue)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	recent, err := p.detector.RecentAnomalies(ctx, "payment-api", 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(recent), 2)

	services, err := store.SMembers(ctx, servicesSet)
	require.NoError(t, err)
	assert.Contains(t, services, "payment-api")
}

func TestPollMetricsSkipsMalformed(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, store.LPush(ctx, metricQueue, "not json"))
	queueSample(t, store, "api", "cpu_usage", 40)

	require.NoError(t, p.pollMetrics(ctx))
	_, err := store.RPop(ctx, metricQueue)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestPollLogsFilesPerServiceRing(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		data, err := json.Marshal(LogLine{Service: "api", Line: fmt.Sprintf("request %d failed", i)})
		require.NoError(t, err)
		require.NoError(t, store.LPush(ctx, logQueue, data))
	}
	require.NoError(t, p.pollLogs(ctx))

	lines, err := store.LRange(ctx, recentLogsKey("api"), 0, -1)
	require.NoError(t, err)
	require.Len(t, lines, 5)
	assert.Equal(t, "request 4 failed", lines[0]) // newest first
}

func TestCorrelateTriggersOncePerWindow(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		queueSample(t, store, "payment-api", "memory_usage", float64(50+i%10))
	}
	for _, v := range []float64{95, 97, 96} {
		queueSample(t, store, "payment-api", "memory_usage", v)
	}
	require.NoError(t, p.pollMetrics(ctx))

	oom, err := json.Marshal(LogLine{Service: "payment-api", Line: "Container was OOMKilled"})
	require.NoError(t, err)
	require.NoError(t, store.LPush(ctx, logQueue, oom))
	require.NoError(t, p.pollLogs(ctx))

	require.NoError(t, p.correlate(ctx))

	incidents, err := store.LRange(ctx, "incidents:by_service:payment-api", 0, -1)
	require.NoError(t, err)
	require.Len(t, incidents, 1)

	// The incident went through the autonomous decision path.
	n, err := store.LLen(ctx, "decision_logs:timeline")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// A second pass inside the window must not re-analyze.
	require.NoError(t, p.correlate(ctx))
	incidents, err = store.LRange(ctx, "incidents:by_service:payment-api", 0, -1)
	require.NoError(t, err)
	assert.Len(t, incidents, 1)
}

func TestCorrelateBelowThresholdIsQuiet(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		queueSample(t, store, "api", "cpu_usage", float64(30+i%5))
	}
	queueSample(t, store, "api", "cpu_usage", 99)
	require.NoError(t, p.pollMetrics(ctx))
	require.NoError(t, p.correlate(ctx))

	_, err := store.Get(ctx, triggerKey("api"))
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestDrainApprovedExecutesQueuedActions(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	ext := actions.Action{
		ID:             "ext-1",
		ActionType:     "restart_service",
		ActionCategory: "kubernetes",
		Service:        "api",
		Status:         actions.StatusApproved,
		ProposedBy:     "oncall",
	}
	require.NoError(t, store.Set(ctx, "action:ext-1", ext, time.Hour))
	require.NoError(t, store.LPush(ctx, "actions:approved", "ext-1"))

	require.NoError(t, p.drainApproved(ctx))

	got, err := p.actions.Get(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, actions.StatusSuccess, got.Status)

	n, err := store.LLen(ctx, "actions:approved")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPollDeploymentsRecordsAndAssesses(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	ev, err := json.Marshal(DeployEvent{
		Service:     "payment-api",
		Version:     "v3.2.1",
		FromVersion: "v3.2.0",
	})
	require.NoError(t, err)
	require.NoError(t, store.LPush(ctx, deployQueue, ev))

	require.NoError(t, p.pollDeployments(ctx))

	dep, err := p.detector.DeploymentWithin(ctx, "payment-api", 10*time.Minute, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, dep.Correlated)
	assert.Equal(t, "v3.2.1", dep.Version)

	as, err := p.risks.Latest(ctx, "payment-api")
	require.NoError(t, err)
	assert.Equal(t, "v3.2.1", as.ToVersion)
}

func TestRunStopsOnCancel(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
}
