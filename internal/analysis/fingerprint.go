package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/opsloop/autopilot/internal/anomaly"
)

// Fingerprint derives a stable 24-hex-digit identity for an incident from
// its service and the deduplicated, sorted feature set of its anomalies.
// Order of anomalies never changes the result.
func Fingerprint(service string, anomalies []anomaly.Anomaly) string {
	features := map[string]struct{}{service: {}}
	for _, a := range anomalies {
		features["metric:"+a.Metric] = struct{}{}
		features["type:"+anomalyType(a.Metric)] = struct{}{}
		features["severity:"+string(a.Severity)] = struct{}{}
		// Equality counts as above.
		direction := "above"
		if a.Value < a.Mean {
			direction = "below"
		}
		features["direction:"+direction] = struct{}{}
	}

	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sum := sha256.Sum256([]byte(strings.Join(keys, "|")))
	return hex.EncodeToString(sum[:])[:24]
}

// anomalyType buckets a metric name into a coarse failure class.
func anomalyType(metric string) string {
	m := strings.ToLower(metric)
	switch {
	case strings.Contains(m, "latency") || strings.Contains(m, "duration"):
		return "latency_spike"
	case strings.Contains(m, "error"):
		return "error_rate_spike"
	case strings.Contains(m, "memory") || strings.Contains(m, "mem"):
		return "memory_issue"
	case strings.Contains(m, "cpu"):
		return "cpu_issue"
	case strings.Contains(m, "connection") || strings.Contains(m, "conn"):
		return "connection_exhaustion"
	case strings.Contains(m, "disk") || strings.Contains(m, "storage"):
		return "disk_issue"
	default:
		return "metric_deviation"
	}
}
