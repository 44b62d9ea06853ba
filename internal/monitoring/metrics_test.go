package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersAreNilSafe(t *testing.T) {
	var pm *PipelineMetrics
	pm.RecordAnomaly("api", "high")
	pm.RecordDecision("approved")
	pm.RecordExecution("rollback", true, time.Second)
	pm.SetActiveActions(2)
	pm.RecordLoopIteration("metrics", nil, time.Millisecond)
	pm.RecordStoreError("get")
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := newPipelineMetrics(reg)

	pm.RecordAnomaly("payment-api", "critical")
	pm.RecordAnomaly("payment-api", "critical")
	pm.RecordDecision("denied")
	pm.RecordExecution("restart_service", false, 2*time.Second)
	pm.RecordLoopIteration("correlate", errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(pm.anomaliesDetected.WithLabelValues("payment-api", "critical")); got != 2 {
		t.Errorf("anomalies counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(pm.decisions.WithLabelValues("denied")); got != 1 {
		t.Errorf("decisions counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pm.actionExecutions.WithLabelValues("restart_service", "failure")); got != 1 {
		t.Errorf("executions counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pm.loopIterations.WithLabelValues("correlate", "error")); got != 1 {
		t.Errorf("loop counter = %v, want 1", got)
	}
}
