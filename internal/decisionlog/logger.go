// Package decisionlog records every autonomous decision with the full
// confidence breakdown, so any approval or denial can be reconstructed
// after the fact.
package decisionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsloop/autopilot/internal/kvstore"
)

const (
	logTTL      = 30 * 24 * time.Hour
	serviceCap  = 1000
	timelineCap = 10000
	timelineKey = "decision_logs:timeline"
)

// Decision is the executor's verdict on one proposed action.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
	DecisionDeferred Decision = "deferred"
)

// Contribution is one confidence channel's share of the final score.
type Contribution struct {
	Source    string   `json:"source"` // rule | ai | history
	Value     float64  `json:"value"`
	Weight    float64  `json:"weight"`
	Weighted  float64  `json:"weighted"`
	Reasoning string   `json:"reasoning,omitempty"`
	Factors   []string `json:"factors,omitempty"`
}

// SafetyCheck records one rail's verdict.
type SafetyCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DecisionLog is the persisted record of one decision.
type DecisionLog struct {
	DecisionID       string         `json:"decision_id"`
	Timestamp        time.Time      `json:"timestamp"`
	IncidentID       string         `json:"incident_id,omitempty"`
	Service          string         `json:"service"`
	ActionType       string         `json:"action_type"`
	Decision         Decision       `json:"decision"`
	FinalConfidence  float64        `json:"final_confidence"`
	Threshold        float64        `json:"threshold"`
	ReasoningSummary string         `json:"reasoning_summary"`
	Contributions    []Contribution `json:"contributions,omitempty"`
	FactorsFor       []string       `json:"factors_for,omitempty"`
	FactorsAgainst   []string       `json:"factors_against,omitempty"`
	SafetyChecks     []SafetyCheck  `json:"safety_checks,omitempty"`
	MatchedPattern   string         `json:"matched_pattern,omitempty"`
	ExecutionMode    string         `json:"execution_mode"`
	Outcome          string         `json:"outcome,omitempty"`
}

// Logger stores decision logs three ways: by ID, per service, and on a
// global timeline.
type Logger struct {
	store kvstore.Store
}

func NewLogger(store kvstore.Store) *Logger {
	return &Logger{store: store}
}

func logKey(id string) string           { return "decision_log:" + id }
func serviceKey(service string) string  { return "decision_logs:" + service }

// Record persists a decision log. Index failures are logged but do not
// fail the record.
func (l *Logger) Record(ctx context.Context, d *DecisionLog) error {
	if d.DecisionID == "" {
		return fmt.Errorf("decisionlog: missing decision id")
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	if err := l.store.Set(ctx, logKey(d.DecisionID), d, logTTL); err != nil {
		return fmt.Errorf("decisionlog: persist %s: %w", d.DecisionID, err)
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("decisionlog: encode %s: %w", d.DecisionID, err)
	}
	if err := l.store.LPush(ctx, serviceKey(d.Service), data); err != nil {
		log.Warn().Err(err).Str("service", d.Service).Msg("Failed to index decision by service")
	} else if err := l.store.LTrim(ctx, serviceKey(d.Service), 0, serviceCap-1); err != nil {
		log.Warn().Err(err).Str("service", d.Service).Msg("Failed to trim service decision log")
	}
	if err := l.store.LPush(ctx, timelineKey, data); err != nil {
		log.Warn().Err(err).Msg("Failed to append decision timeline")
	} else if err := l.store.LTrim(ctx, timelineKey, 0, timelineCap-1); err != nil {
		log.Warn().Err(err).Msg("Failed to trim decision timeline")
	}
	return nil
}

// Get loads one decision log by ID.
func (l *Logger) Get(ctx context.Context, id string) (*DecisionLog, error) {
	data, err := l.store.Get(ctx, logKey(id))
	if err != nil {
		return nil, err
	}
	var d DecisionLog
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decisionlog: parse %s: %w", id, err)
	}
	return &d, nil
}

// SetOutcome updates a stored decision with its eventual result, in place.
func (l *Logger) SetOutcome(ctx context.Context, id, outcome string) error {
	d, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	d.Outcome = outcome
	return l.store.Set(ctx, logKey(id), d, logTTL)
}

// Recent returns the newest decisions for a service, up to limit.
func (l *Logger) Recent(ctx context.Context, service string, limit int) ([]DecisionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := l.store.LRange(ctx, serviceKey(service), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	out := make([]DecisionLog, 0, len(raw))
	for _, item := range raw {
		var d DecisionLog
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			log.Warn().Err(err).Str("service", service).Msg("Skipping malformed decision log")
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
