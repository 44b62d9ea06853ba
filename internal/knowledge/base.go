package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/opsloop/autopilot/internal/anomaly"
	"github.com/opsloop/autopilot/internal/kvstore"
)

// DefaultMinConfidence is the match threshold applied when the caller does
// not specify one.
const DefaultMinConfidence = 50.0

// signalBonus is added to the raw score per matched signal keyword.
const signalBonus = 0.5

// StatsProvider supplies per-pattern match counts for tie-breaking.
// The learning engine satisfies this.
type StatsProvider interface {
	TotalMatches(ctx context.Context, patternID string) int
}

// PatternMatch pairs a pattern with its normalized match confidence.
type PatternMatch struct {
	Pattern    *IncidentPattern
	Confidence float64 // 0..100
}

// Base is the in-memory pattern catalogue.
type Base struct {
	mu       sync.RWMutex
	patterns map[string]*IncidentPattern
	stats    StatsProvider
}

// NewBase loads the built-in catalogue.
func NewBase() *Base {
	b := &Base{patterns: make(map[string]*IncidentPattern)}
	for _, p := range builtinPatterns() {
		b.patterns[p.ID] = p
	}
	log.Info().Int("patterns", len(b.patterns)).Msg("Loaded pattern catalogue")
	return b
}

// SetStatsProvider installs the tie-break source. Optional.
func (b *Base) SetStatsProvider(sp StatsProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = sp
}

// HydrateUserPatterns overlays operator-added patterns stored under
// knowledge:pattern:*. Malformed entries are skipped.
func (b *Base) HydrateUserPatterns(ctx context.Context, store kvstore.Store) error {
	keys, err := store.Scan(ctx, "knowledge:pattern:*")
	if err != nil {
		return fmt.Errorf("scan user patterns: %w", err)
	}
	loaded := 0
	for _, key := range keys {
		data, err := store.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to read user pattern")
			continue
		}
		var p IncidentPattern
		if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
			log.Warn().Err(err).Str("key", key).Msg("Skipping malformed user pattern")
			continue
		}
		b.mu.Lock()
		b.patterns[p.ID] = &p
		b.mu.Unlock()
		loaded++
	}
	if loaded > 0 {
		log.Info().Int("patterns", loaded).Msg("Hydrated user patterns")
	}
	return nil
}

// Get returns a pattern by ID.
func (b *Base) Get(id string) (*IncidentPattern, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.patterns[id]
	return p, ok
}

// Count returns the catalogue size.
func (b *Base) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.patterns)
}

// Match scores every pattern against the incident's anomalies and logs and
// returns the matches at or above minConfidence, best first. Pass a
// non-positive minConfidence to use the default.
func (b *Base) Match(ctx context.Context, anomalies []anomaly.Anomaly, logs []string, minConfidence float64) []PatternMatch {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if len(anomalies) == 0 && len(logs) == 0 {
		return nil
	}

	anomalyText := make([]string, len(anomalies))
	for i, a := range anomalies {
		anomalyText[i] = strings.ToLower(fmt.Sprintf("%s %s %s value=%.2f z=%.2f",
			a.Service, a.Metric, a.Severity, a.Value, a.ZScore))
	}
	logText := make([]string, len(logs))
	for i, l := range logs {
		logText[i] = strings.ToLower(l)
	}
	logCorpus := strings.Join(logText, "\n")

	b.mu.RLock()
	defer b.mu.RUnlock()

	var matches []PatternMatch
	for _, p := range b.patterns {
		c := scorePattern(p, anomalies, anomalyText, logText, logCorpus)
		if c >= minConfidence {
			matches = append(matches, PatternMatch{Pattern: p, Confidence: c})
		}
	}

	stats := b.stats
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		if stats != nil {
			return stats.TotalMatches(ctx, matches[i].Pattern.ID) > stats.TotalMatches(ctx, matches[j].Pattern.ID)
		}
		return matches[i].Pattern.ID < matches[j].Pattern.ID
	})

	return matches
}

func scorePattern(p *IncidentPattern, anomalies []anomaly.Anomaly, anomalyText, logText []string, logCorpus string) float64 {
	totalWeight := 0.0
	for _, s := range p.Symptoms {
		totalWeight += s.Weight
	}
	if totalWeight <= 0 {
		return 0
	}

	raw := 0.0
	for _, s := range p.Symptoms {
		if symptomMatches(s, anomalies, anomalyText, logText) {
			raw += s.Weight
		}
	}

	for _, signal := range p.Signals {
		if signal != "" && strings.Contains(logCorpus, strings.ToLower(signal)) {
			raw += signalBonus
		}
	}

	c := raw / totalWeight * 100
	if c > 100 {
		c = 100
	}
	return c
}

func symptomMatches(s Symptom, anomalies []anomaly.Anomaly, anomalyText, logText []string) bool {
	name := strings.ToLower(s.Name)
	switch s.Type {
	case SymptomMetric:
		for _, a := range anomalies {
			if a.Metric == s.Name && compareNumeric(a.Value, s.Condition, s.Value) {
				return true
			}
		}
	case SymptomEvent:
		for _, text := range anomalyText {
			if strings.Contains(text, name) {
				return true
			}
		}
	case SymptomLog:
		for _, line := range logText {
			if strings.Contains(line, name) {
				return true
			}
		}
	}
	return false
}

// compareNumeric applies above/below/equals. Reference values in the
// catalogue are strings; both sides must parse as numbers to compare.
func compareNumeric(observed float64, cond Condition, reference string) bool {
	ref, err := strconv.ParseFloat(strings.TrimSpace(reference), 64)
	if err != nil {
		return false
	}
	switch cond {
	case CondAbove:
		return observed > ref
	case CondBelow:
		return observed < ref
	case CondEquals:
		return observed == ref
	default:
		return false
	}
}
