package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsloop/autopilot/internal/kvstore"
)

func newTestDetector(t *testing.T) (*Detector, kvstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return NewDetector(store, DefaultConfig()), store
}

func feed(t *testing.T, d *Detector, service, metric string, values []float64) {
	t.Helper()
	ctx := context.Background()
	for _, v := range values {
		_, err := d.Process(ctx, Sample{Service: service, Metric: metric, Value: v})
		require.NoError(t, err)
	}
}

func TestWarmupEmitsNothing(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()

	// First 10 samples are warm-up regardless of how wild the values are.
	values := []float64{100, 1, 5000, 3, 900, 2, 100, 100, 100, 100}
	for i, v := range values {
		a, err := d.Process(ctx, Sample{Service: "api", Metric: "latency_ms", Value: v})
		require.NoError(t, err)
		assert.Nil(t, a, "sample %d emitted during warm-up", i)
	}
}

func TestSpikeDetectedAfterWarmup(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()

	stable := make([]float64, 20)
	for i := range stable {
		stable[i] = 100 + float64(i%5) // 100..104
	}
	feed(t, d, "payment-api", "request_latency_ms", stable)

	a, err := d.Process(ctx, Sample{Service: "payment-api", Metric: "request_latency_ms", Value: 1500})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.Greater(t, a.ZScore, 2.5)
	assert.InDelta(t, 102, a.Mean, 2)
	assert.Greater(t, a.DeviationPct, 1000.0)
}

func TestThresholdInvariant(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()

	stable := make([]float64, 30)
	for i := range stable {
		stable[i] = 50 + float64(i%3) // small variance
	}
	feed(t, d, "api", "cpu", stable)

	// A value just inside the band emits nothing.
	a, err := d.Process(ctx, Sample{Service: "api", Metric: "cpu", Value: 52})
	require.NoError(t, err)
	assert.Nil(t, a)

	// Every emitted anomaly satisfies |value-mean|/stddev > 2.5.
	a, err = d.Process(ctx, Sample{Service: "api", Metric: "cpu", Value: 90})
	require.NoError(t, err)
	require.NotNil(t, a)
	if a.StdDev > 0 {
		assert.Greater(t, (a.Value-a.Mean)/a.StdDev, 2.5)
	}
}

func TestBaselineWindowBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 50
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	d := NewDetector(store, cfg)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		_, err := d.Process(ctx, Sample{Service: "api", Metric: "mem", Value: float64(i % 7)})
		require.NoError(t, err)
	}

	b, err := d.Baseline(ctx, "api", "mem")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(b.Values), 50)
	assert.Equal(t, b.Count, len(b.Values))
}

func TestZeroStdDevEmitsNothing(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()

	flat := make([]float64, 15)
	for i := range flat {
		flat[i] = 42
	}
	feed(t, d, "api", "queue_depth", flat)

	a, err := d.Process(ctx, Sample{Service: "api", Metric: "queue_depth", Value: 9000})
	require.NoError(t, err)
	assert.Nil(t, a, "stddev 0 must be treated as z=0")
}

func TestRecentAnomaliesCapAndOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AnomalyListCap = 5
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	d := NewDetector(store, cfg)
	ctx := context.Background()

	stable := make([]float64, 20)
	for i := range stable {
		stable[i] = 10 + float64(i%3)
	}
	feed(t, d, "api", "latency", stable)

	for i := 0; i < 10; i++ {
		_, err := d.Process(ctx, Sample{Service: "api", Metric: "latency", Value: 500 + float64(i)})
		require.NoError(t, err)
		// Reset the window so each spike keeps standing out.
		feed(t, d, "api", "latency", stable)
	}

	anomalies, err := d.RecentAnomalies(ctx, "api", 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(anomalies), 5)
}

func TestErrorRateSpike(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()

	// Learn a ~0.5% baseline.
	for i := 0; i < 15; i++ {
		_, err := d.CheckErrorRate(ctx, "checkout", 1, 200)
		require.NoError(t, err)
	}

	a, err := d.CheckErrorRate(ctx, "checkout", 12, 100) // 12%
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "error_rate", a.Metric)
	assert.Equal(t, SeverityCritical, a.Severity)

	// Below the absolute floor nothing fires even if relative jump is big.
	a, err = d.CheckErrorRate(ctx, "checkout", 0, 100)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestErrorRateMediumSeverity(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := d.CheckErrorRate(ctx, "api", 1, 1000) // 0.1%
		require.NoError(t, err)
	}

	a, err := d.CheckErrorRate(ctx, "api", 3, 100) // 3%: above 3x mean, below 5
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, SeverityMedium, a.Severity)
}

func TestDeploymentCorrelation(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, d.RecordDeployment(ctx, "api", "v3.2.1", now.Add(-5*time.Minute)))
	require.NoError(t, d.RecordDeployment(ctx, "api", "v3.2.0", now.Add(-2*time.Hour)))

	corr, err := d.CorrelateDeployment(ctx, "api", now)
	require.NoError(t, err)
	assert.True(t, corr.Correlated)
	assert.Equal(t, "v3.2.1", corr.Version)
	assert.Equal(t, "high", corr.Confidence)
	assert.InDelta(t, 5, corr.AgeMinutes, 0.1)

	// Older deployment inside the window but past 10 minutes is medium.
	corr, err = d.CorrelateDeployment(ctx, "api", now.Add(20*time.Minute))
	require.NoError(t, err)
	assert.True(t, corr.Correlated)
	assert.Equal(t, "medium", corr.Confidence)

	// Nothing in the window.
	corr, err = d.CorrelateDeployment(ctx, "other", now)
	require.NoError(t, err)
	assert.False(t, corr.Correlated)
}

func TestMalformedAnomalyRecordsSkipped(t *testing.T) {
	d, store := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, store.LPush(ctx, "recent_anomalies:api", "{not json"))
	require.NoError(t, store.LPush(ctx, "recent_anomalies:api", `{"service":"api","metric":"cpu","severity":"high"}`))

	anomalies, err := d.RecentAnomalies(ctx, "api", 10)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, SeverityHigh, anomalies[0].Severity)
}
