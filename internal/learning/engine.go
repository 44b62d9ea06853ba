// Package learning tracks remediation outcomes per pattern and turns them
// into confidence adjustments, per-action success rates, and the
// promotion/demotion state that gates autonomous execution.
package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsloop/autopilot/internal/kvstore"
)

const (
	// emaAlpha is the smoothing factor for per-action success rates.
	emaAlpha = 0.3

	// perActionInit seeds an action's rate the first time it is seen.
	perActionInit = 0.5

	outcomeLogCap   = 1000
	timelineCap     = 10000
	promoteMinSeen  = 10
	promoteMinRate  = 0.90
	promoteAutoRate = 0.95
	demoteMinFails  = 3
	demoteFailRate  = 0.30
)

// PatternStats is the accumulated learning state for one pattern. Mutated
// only through RecordOutcome.
type PatternStats struct {
	PatternID            string             `json:"pattern_id"`
	TotalMatches         int                `json:"total_matches"`
	Successes            int                `json:"successes"`
	Failures             int                `json:"failures"`
	ConsecutiveFailures  int                `json:"consecutive_failures"`
	AutonomousAttempts   int                `json:"autonomous_attempts"`
	AutonomousSuccesses  int                `json:"autonomous_successes"`
	AvgResolutionSeconds float64            `json:"avg_resolution_seconds"`
	ConfidenceAdjustment float64            `json:"confidence_adjustment"`
	IsPromoted           bool               `json:"is_promoted"`
	IsDemoted            bool               `json:"is_demoted"`
	NeedsReview          bool               `json:"needs_review"`
	PerActionRate        map[string]float64 `json:"per_action_rate"`
	LastMatchedAt        time.Time          `json:"last_matched_at"`
	LastSuccessAt        time.Time          `json:"last_success_at,omitempty"`
}

// SuccessRate returns successes over total matches, 0 when unseen.
func (s *PatternStats) SuccessRate() float64 {
	if s.TotalMatches == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.TotalMatches)
}

// LearningOutcome is one observed remediation result fed back by the
// executor. OutcomeID must be unique; duplicates are ignored.
type LearningOutcome struct {
	OutcomeID             string             `json:"outcome_id"`
	IncidentID            string             `json:"incident_id"`
	PatternID             string             `json:"pattern_id"`
	ActionType            string             `json:"action_type"`
	ActionCategory        string             `json:"action_category"`
	Success               bool               `json:"success"`
	Autonomous            bool               `json:"autonomous"`
	ConfidenceAtExecution float64            `json:"confidence_at_execution"`
	ExecutionSeconds      float64            `json:"execution_seconds"`
	PreMetrics            map[string]float64 `json:"pre_metrics,omitempty"`
	PostMetrics           map[string]float64 `json:"post_metrics,omitempty"`
	ImprovementScore      float64            `json:"improvement_score"` // -100..100
	Timestamp             time.Time          `json:"timestamp"`
}

// Engine owns PatternStats. All mutation goes through RecordOutcome, which
// is serialized so stats updates never race.
type Engine struct {
	store kvstore.Store
	mu    sync.Mutex
}

func NewEngine(store kvstore.Store) *Engine {
	return &Engine{store: store}
}

func statsKey(patternID string) string   { return "learning:pattern_stats:" + patternID }
func outcomeKey(patternID string) string { return "learning:outcomes:" + patternID }

const (
	timelineKey = "learning:outcomes:timeline"
	seenKey     = "learning:outcome_seen"

	// seenTTL bounds the dedup hash: every write refreshes the expiry, so
	// the hash dies this long after the last recorded outcome. Outcome IDs
	// are decision ULIDs and never replay across that horizon.
	seenTTL = 30 * 24 * time.Hour
)

// RecordOutcome folds one outcome into the pattern's stats. Replays of an
// already-seen outcomeID are a no-op.
func (e *Engine) RecordOutcome(ctx context.Context, o LearningOutcome) error {
	if o.PatternID == "" {
		return errors.New("learning: outcome missing pattern id")
	}
	if o.OutcomeID == "" {
		return errors.New("learning: outcome missing outcome id")
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.HGet(ctx, seenKey, o.OutcomeID); err == nil {
		log.Debug().Str("outcomeID", o.OutcomeID).Msg("Duplicate outcome ignored")
		return nil
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return fmt.Errorf("learning: dedup check: %w", err)
	}

	stats, err := e.loadStats(ctx, o.PatternID)
	if err != nil {
		return err
	}

	stats.TotalMatches++
	stats.LastMatchedAt = o.Timestamp
	if o.Success {
		stats.Successes++
		stats.ConsecutiveFailures = 0
		stats.LastSuccessAt = o.Timestamp
	} else {
		stats.Failures++
		stats.ConsecutiveFailures++
	}
	if o.Autonomous {
		stats.AutonomousAttempts++
		if o.Success {
			stats.AutonomousSuccesses++
		}
	}

	// Running mean over observed execution times.
	n := float64(stats.TotalMatches)
	stats.AvgResolutionSeconds += (o.ExecutionSeconds - stats.AvgResolutionSeconds) / n

	actionKey := o.ActionCategory + ":" + o.ActionType
	if stats.PerActionRate == nil {
		stats.PerActionRate = make(map[string]float64)
	}
	prev, seen := stats.PerActionRate[actionKey]
	if !seen {
		prev = perActionInit
	}
	observed := 0.0
	if o.Success {
		observed = 1.0
	}
	stats.PerActionRate[actionKey] = emaAlpha*observed + (1-emaAlpha)*prev

	delta := adjustmentDelta(o, stats)
	stats.ConfidenceAdjustment += delta

	e.updatePromotionState(stats)

	if err := e.saveStats(ctx, stats); err != nil {
		return err
	}
	if err := e.store.HSet(ctx, seenKey, o.OutcomeID, "1"); err != nil {
		log.Warn().Err(err).Str("outcomeID", o.OutcomeID).Msg("Failed to mark outcome seen")
	} else if err := e.store.Expire(ctx, seenKey, seenTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to refresh outcome dedup expiry")
	}
	e.appendOutcome(ctx, o)

	log.Info().
		Str("patternID", o.PatternID).
		Str("action", actionKey).
		Bool("success", o.Success).
		Float64("adjustment", delta).
		Int("totalMatches", stats.TotalMatches).
		Msg("Recorded learning outcome")
	return nil
}

// adjustmentDelta computes the per-event confidence adjustment. Positive
// deltas are capped at +5, negative floored at -10. Stats reflect the
// outcome already being counted.
func adjustmentDelta(o LearningOutcome, stats *PatternStats) float64 {
	if o.Success {
		delta := 2.0
		if o.ConfidenceAtExecution < 60 {
			delta += 3.0
		} else if o.ConfidenceAtExecution < 80 {
			delta += 1.5
		}
		if stats.AvgResolutionSeconds > 0 && o.ExecutionSeconds < 0.5*stats.AvgResolutionSeconds {
			delta += 1.0
		}
		if o.ImprovementScore > 50 {
			delta += 2.0
		} else if o.ImprovementScore > 25 {
			delta += 1.0
		}
		// Diminishing returns once the pattern is well proven.
		if stats.Successes > 50 {
			delta *= 0.5
		} else if stats.Successes > 20 {
			delta *= 0.75
		}
		if delta > 5.0 {
			delta = 5.0
		}
		return delta
	}

	delta := -3.0
	if o.ConfidenceAtExecution > 90 {
		delta -= 5.0
	} else if o.ConfidenceAtExecution > 75 {
		delta -= 2.0
	}
	if o.ImprovementScore < -25 {
		delta -= 3.0
	}
	if delta < -10.0 {
		delta = -10.0
	}
	return delta
}

func (e *Engine) updatePromotionState(stats *PatternStats) {
	if stats.ConsecutiveFailures >= 2 {
		stats.NeedsReview = true
	}

	if stats.Failures >= demoteMinFails && stats.TotalMatches > 0 &&
		float64(stats.Failures)/float64(stats.TotalMatches) >= demoteFailRate {
		if stats.IsPromoted || !stats.IsDemoted {
			log.Warn().
				Str("patternID", stats.PatternID).
				Int("failures", stats.Failures).
				Int("totalMatches", stats.TotalMatches).
				Msg("Pattern demoted from autonomous execution")
		}
		stats.IsPromoted = false
		stats.IsDemoted = true
		return
	}

	if promotionEligible(stats) && !stats.IsPromoted {
		stats.IsPromoted = true
		stats.IsDemoted = false
		log.Info().
			Str("patternID", stats.PatternID).
			Int("successes", stats.Successes).
			Int("totalMatches", stats.TotalMatches).
			Msg("Pattern promoted to autonomous execution")
	}
}

func promotionEligible(stats *PatternStats) bool {
	if stats.TotalMatches < promoteMinSeen {
		return false
	}
	if stats.SuccessRate() < promoteMinRate {
		return false
	}
	if stats.AutonomousAttempts == 0 {
		return true
	}
	return float64(stats.AutonomousSuccesses)/float64(stats.AutonomousAttempts) >= promoteAutoRate
}

// AdjustedConfidence applies the pattern's cumulative adjustment to a base
// confidence, blending in the observed success rate once enough outcomes
// exist. Result is clamped to [0, 100].
func (e *Engine) AdjustedConfidence(ctx context.Context, patternID string, base float64) float64 {
	stats, err := e.loadStats(ctx, patternID)
	if err != nil {
		log.Warn().Err(err).Str("patternID", patternID).Msg("Failed to load pattern stats")
		return clamp(base, 0, 100)
	}
	effective := base + stats.ConfidenceAdjustment
	if stats.TotalMatches > 5 {
		effective = 0.7*effective + 0.3*(stats.SuccessRate()*100)
	}
	return clamp(effective, 0, 100)
}

// AutonomousSafety reports whether a pattern is cleared for autonomous
// execution, with a human-readable reason either way.
func (e *Engine) AutonomousSafety(ctx context.Context, patternID string) (bool, string) {
	stats, err := e.loadStats(ctx, patternID)
	if err != nil {
		return false, "no learning history available"
	}
	if stats.IsDemoted {
		return false, fmt.Sprintf("demoted after %d failures in %d matches", stats.Failures, stats.TotalMatches)
	}
	if stats.IsPromoted {
		return true, fmt.Sprintf("promoted: %d/%d successes", stats.Successes, stats.TotalMatches)
	}
	if promotionEligible(stats) {
		return true, fmt.Sprintf("meets promotion criteria: %d/%d successes", stats.Successes, stats.TotalMatches)
	}

	var reasons []string
	if stats.TotalMatches < promoteMinSeen {
		reasons = append(reasons, fmt.Sprintf("needs %d matches, has %d", promoteMinSeen, stats.TotalMatches))
	}
	if stats.SuccessRate() < promoteMinRate {
		reasons = append(reasons, fmt.Sprintf("success rate %.0f%% below %.0f%%", stats.SuccessRate()*100, promoteMinRate*100))
	}
	if stats.AutonomousAttempts > 0 {
		autoRate := float64(stats.AutonomousSuccesses) / float64(stats.AutonomousAttempts)
		if autoRate < promoteAutoRate {
			reasons = append(reasons, fmt.Sprintf("autonomous success rate %.0f%% below %.0f%%", autoRate*100, promoteAutoRate*100))
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no qualifying history")
	}
	reason := reasons[0]
	for _, r := range reasons[1:] {
		reason += "; " + r
	}
	return false, reason
}

// TotalMatches reports how often a pattern has been exercised. Used as a
// tie-breaker by the knowledge base.
func (e *Engine) TotalMatches(ctx context.Context, patternID string) int {
	stats, err := e.loadStats(ctx, patternID)
	if err != nil {
		return 0
	}
	return stats.TotalMatches
}

// ActionRate returns the learned EMA success rate for one action on one
// pattern, or the neutral prior if unseen.
func (e *Engine) ActionRate(ctx context.Context, patternID, actionCategory, actionType string) float64 {
	stats, err := e.loadStats(ctx, patternID)
	if err != nil {
		return perActionInit
	}
	if rate, ok := stats.PerActionRate[actionCategory+":"+actionType]; ok {
		return rate
	}
	return perActionInit
}

// Stats returns a copy of the pattern's current state.
func (e *Engine) Stats(ctx context.Context, patternID string) (*PatternStats, error) {
	return e.loadStats(ctx, patternID)
}

func (e *Engine) loadStats(ctx context.Context, patternID string) (*PatternStats, error) {
	data, err := e.store.Get(ctx, statsKey(patternID))
	if errors.Is(err, kvstore.ErrNotFound) {
		return &PatternStats{PatternID: patternID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("learning: load stats: %w", err)
	}
	var stats PatternStats
	if err := json.Unmarshal(data, &stats); err != nil {
		log.Warn().Err(err).Str("patternID", patternID).Msg("Resetting corrupt pattern stats")
		return &PatternStats{PatternID: patternID}, nil
	}
	if stats.PatternID == "" {
		stats.PatternID = patternID
	}
	return &stats, nil
}

func (e *Engine) saveStats(ctx context.Context, stats *PatternStats) error {
	if err := e.store.Set(ctx, statsKey(stats.PatternID), stats, 0); err != nil {
		return fmt.Errorf("learning: save stats: %w", err)
	}
	return nil
}

// appendOutcome records the outcome on the per-pattern log and the global
// timeline. Both are best effort.
func (e *Engine) appendOutcome(ctx context.Context, o LearningOutcome) {
	data, err := json.Marshal(o)
	if err != nil {
		log.Warn().Err(err).Str("outcomeID", o.OutcomeID).Msg("Failed to encode outcome")
		return
	}
	key := outcomeKey(o.PatternID)
	if err := e.store.LPush(ctx, key, data); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to append outcome")
	} else if err := e.store.LTrim(ctx, key, 0, outcomeLogCap-1); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to trim outcome log")
	}
	if err := e.store.LPush(ctx, timelineKey, data); err != nil {
		log.Warn().Err(err).Msg("Failed to append outcome timeline")
	} else if err := e.store.LTrim(ctx, timelineKey, 0, timelineCap-1); err != nil {
		log.Warn().Err(err).Msg("Failed to trim outcome timeline")
	}
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
