package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/opsloop/autopilot/internal/anomaly"
)

// RootCause is the AI analyzer's primary conclusion.
type RootCause struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"` // 0..100
	Reasoning   string  `json:"reasoning"`
}

// AIRecommendation is one action suggested by the analyzer, priority 1
// being the strongest.
type AIRecommendation struct {
	Action         string `json:"action"`
	Reasoning      string `json:"reasoning"`
	Risk           string `json:"risk"`
	ExpectedImpact string `json:"expected_impact"`
	Priority       int    `json:"priority"` // 1..5
}

// Analysis is the structured verdict from the AI seam.
type Analysis struct {
	RootCause               RootCause          `json:"root_cause"`
	ContributingFactors     []string           `json:"contributing_factors,omitempty"`
	RecommendedActions      []AIRecommendation `json:"recommended_actions,omitempty"`
	PreventiveMeasures      []string           `json:"preventive_measures,omitempty"`
	Severity                string             `json:"severity"`
	EstimatedCustomerImpact string             `json:"estimated_customer_impact,omitempty"`
	AnalyzedAt              time.Time          `json:"analyzed_at"`
	Service                 string             `json:"service"`
}

// AnalyzeRequest bundles the raw signals handed to the AI seam.
type AnalyzeRequest struct {
	Service     string
	Anomalies   []anomaly.Anomaly
	Logs        []string
	Deployments []string
}

// AIAnalyzer is the pluggable analysis seam. Implementations must never
// return a nil Analysis alongside a nil error.
type AIAnalyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error)
}

// HeuristicAnalyzer is the built-in fallback used when no LLM-backed
// analyzer is wired in, and the safety net when one fails. Its confidence
// never exceeds 50.
type HeuristicAnalyzer struct{}

func (HeuristicAnalyzer) Analyze(_ context.Context, req AnalyzeRequest) (*Analysis, error) {
	corpus := strings.ToLower(strings.Join(req.Logs, "\n"))

	rc := RootCause{
		Description: "Undetermined root cause, manual investigation required",
		Confidence:  30,
		Reasoning:   "no conclusive signal in anomalies or logs",
	}
	var recs []AIRecommendation
	switch {
	case strings.Contains(corpus, "oomkilled") || strings.Contains(corpus, "out of memory"):
		rc = RootCause{Description: "Memory exhaustion", Confidence: 50, Reasoning: "OOM markers present in logs"}
		recs = append(recs, AIRecommendation{Action: "restart_service", Reasoning: "reclaim leaked memory", Risk: "low", Priority: 1})
	case strings.Contains(corpus, "connection") && strings.Contains(corpus, "timeout"):
		rc = RootCause{Description: "Connection exhaustion or downstream timeout", Confidence: 45, Reasoning: "connection and timeout markers present"}
		recs = append(recs, AIRecommendation{Action: "kill_connections", Reasoning: "free stuck connections", Risk: "medium", Priority: 2})
	case len(req.Deployments) > 0:
		rc = RootCause{Description: "Recent deployment change", Confidence: 50, Reasoning: "deployment occurred close to the anomalies"}
		recs = append(recs, AIRecommendation{Action: "rollback_deploy", Reasoning: "revert the correlated release", Risk: "low", Priority: 1})
	}

	severity := "medium"
	for _, a := range req.Anomalies {
		if a.Severity == anomaly.SeverityCritical {
			severity = "critical"
			break
		}
		if a.Severity == anomaly.SeverityHigh {
			severity = "high"
		}
	}

	return &Analysis{
		RootCause:          rc,
		RecommendedActions: recs,
		Severity:           severity,
		AnalyzedAt:         time.Now().UTC(),
		Service:            req.Service,
	}, nil
}
