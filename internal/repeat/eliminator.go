// Package repeat hunts incidents that keep coming back. It fingerprints
// each resolved or failed incident, counts occurrences, applies a
// preventive fix once the pattern repeats, and escalates patterns no fix
// can hold down.
package repeat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsloop/autopilot/internal/actions"
	"github.com/opsloop/autopilot/internal/analysis"
	"github.com/opsloop/autopilot/internal/kvstore"
)

const (
	patternTTL       = 90 * 24 * time.Hour
	fixRegistryCap   = 100
	preventThreshold = 3
	escalateMinCount = 5
	baseConfidence   = 70.0
	provenFixBonus   = 10.0
	lockStripes      = 64
)

// State tracks where a repeat pattern sits in its lifecycle.
type State string

const (
	StateTracking   State = "tracking"
	StatePreventing State = "preventing"
	StateFixed      State = "fixed"
	StateEscalated  State = "escalated"
)

// FixRecord is one remediation attempt against a repeat pattern.
type FixRecord struct {
	ActionType string    `json:"action_type"`
	IncidentID string    `json:"incident_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// PermanentFix describes the preventive that finally held.
type PermanentFix struct {
	ActionType string    `json:"action_type"`
	ActionID   string    `json:"action_id"`
	Confidence float64   `json:"confidence"`
	AppliedAt  time.Time `json:"applied_at"`
}

// RepeatPattern is the persisted record of one recurring incident shape.
type RepeatPattern struct {
	PatternID           string        `json:"pattern_id"`
	Service             string        `json:"service"`
	RootCauseType       string        `json:"root_cause_type"`
	SymptomSignature    []string      `json:"symptom_signature"`
	OccurrenceCount     int           `json:"occurrence_count"`
	FirstSeen           time.Time     `json:"first_seen"`
	LastSeen            time.Time     `json:"last_seen"`
	SuccessfulFixes     []FixRecord   `json:"successful_fixes,omitempty"`
	FailedFixes         []FixRecord   `json:"failed_fixes,omitempty"`
	PermanentFixApplied bool          `json:"permanent_fix_applied"`
	PermanentFixDetails *PermanentFix `json:"permanent_fix_details,omitempty"`
	Escalated           bool          `json:"escalated"`
	State               State         `json:"state"`
}

// Escalation is appended when a pattern keeps recurring with no working fix.
type Escalation struct {
	PatternID       string    `json:"pattern_id"`
	Service         string    `json:"service"`
	OccurrenceCount int       `json:"occurrence_count"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
}

// ActionRunner is the slice of the action executor the eliminator needs.
type ActionRunner interface {
	Propose(ctx context.Context, req actions.ProposeRequest) (*actions.Action, error)
	Approve(ctx context.Context, id, approver string) (*actions.Action, error)
}

// Eliminator tracks repeat patterns and applies preventives through the
// action runner.
type Eliminator struct {
	store  kvstore.Store
	runner ActionRunner
	now    func() time.Time
	locks  [lockStripes]sync.Mutex
}

func NewEliminator(store kvstore.Store, runner ActionRunner) *Eliminator {
	return &Eliminator{
		store:  store,
		runner: runner,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func patternKey(id string) string       { return "repeat_pattern:" + id }
func serviceSetKey(svc string) string   { return "repeat_patterns:" + svc }
func fixRegistryKey(svc string) string  { return "permanent_fixes:" + svc }
func escalationsKey(svc string) string  { return "escalations:" + svc }

const (
	globalFixRegistry   = "permanent_fixes"
	globalEscalationLog = "escalations"
)

// symptomFlags distills an incident's symptoms into the four boolean
// dimensions the fingerprint cares about.
func symptomFlags(inc *analysis.Incident) []string {
	joined := strings.ToLower(strings.Join(inc.Symptoms, " "))
	var flags []string
	if strings.Contains(joined, "latency") {
		flags = append(flags, "latency_spike")
	}
	if strings.Contains(joined, "error") {
		flags = append(flags, "error_rate_spike")
	}
	if strings.Contains(joined, "memory") {
		flags = append(flags, "memory_issue")
	}
	if strings.Contains(joined, "cpu") {
		flags = append(flags, "cpu_issue")
	}
	sort.Strings(flags)
	return flags
}

// rootCauseType buckets the free-text root cause so fingerprints stay
// stable across wording changes.
func rootCauseType(inc *analysis.Incident) string {
	rc := strings.ToLower(inc.RootCause)
	signals := strings.ToLower(strings.Join(inc.Signals, " "))
	switch {
	case strings.Contains(rc, "deploy"):
		return "deployment"
	case strings.Contains(rc, "memory") || strings.Contains(rc, "oom"):
		return "memory_exhaustion"
	case strings.Contains(rc, "connection"):
		return "connection_exhaustion"
	case strings.Contains(signals, "crashloop") || strings.Contains(signals, "oomkilled"):
		return "pod_crash"
	case inc.BestPatternID != "":
		return "pattern:" + inc.BestPatternID
	default:
		return "unknown"
	}
}

// Fingerprint derives the stable 16-hex pattern ID for an incident.
func Fingerprint(inc *analysis.Incident) string {
	parts := []string{inc.Service, rootCauseType(inc)}
	parts = append(parts, symptomFlags(inc)...)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// preventiveFor maps a pattern to its default preventive action.
func preventiveFor(p *RepeatPattern) string {
	switch p.RootCauseType {
	case "connection_exhaustion":
		return "kill_connections"
	case "pod_crash":
		return "update_resources"
	}
	sig := strings.Join(p.SymptomSignature, " ")
	switch {
	case strings.Contains(sig, "memory_issue"):
		return "restart_service"
	case strings.Contains(sig, "error_rate_spike"):
		return "rollback"
	case strings.Contains(sig, "latency_spike"), strings.Contains(sig, "cpu_issue"):
		return "scale_up"
	default:
		return "restart_service"
	}
}

// ProcessIncident folds one concluded incident into its repeat pattern.
// fixAction is the remediation that was attempted for the incident (may be
// empty) and fixWorked whether it resolved it. The updated pattern is
// returned after any preventive runs.
func (e *Eliminator) ProcessIncident(ctx context.Context, inc *analysis.Incident, fixAction string, fixWorked bool) (*RepeatPattern, error) {
	if inc == nil || inc.Service == "" {
		return nil, fmt.Errorf("repeat: incident missing service")
	}
	id := Fingerprint(inc)
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	now := e.now()
	p, err := e.load(ctx, id)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return nil, err
	}
	if p == nil {
		p = &RepeatPattern{
			PatternID:        id,
			Service:          inc.Service,
			RootCauseType:    rootCauseType(inc),
			SymptomSignature: symptomFlags(inc),
			FirstSeen:        now,
			State:            StateTracking,
		}
	}

	p.OccurrenceCount++
	p.LastSeen = now
	if fixAction != "" {
		rec := FixRecord{ActionType: fixAction, IncidentID: inc.IncidentID, Timestamp: now}
		if fixWorked {
			p.SuccessfulFixes = append(p.SuccessfulFixes, rec)
		} else {
			p.FailedFixes = append(p.FailedFixes, rec)
		}
	}

	if err := e.store.SAdd(ctx, serviceSetKey(p.Service), p.PatternID); err != nil {
		log.Warn().Err(err).Str("service", p.Service).Msg("Failed to index repeat pattern")
	}

	if p.OccurrenceCount >= preventThreshold && !p.PermanentFixApplied && !p.Escalated {
		e.applyPreventive(ctx, p, inc)
	}
	if p.OccurrenceCount >= escalateMinCount && !p.PermanentFixApplied && !p.Escalated {
		e.escalate(ctx, p)
	}

	if err := e.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// applyPreventive picks and executes the preventive for a repeating
// pattern. A previously successful fix is preferred and carries a
// confidence bonus.
func (e *Eliminator) applyPreventive(ctx context.Context, p *RepeatPattern, inc *analysis.Incident) {
	actionType := preventiveFor(p)
	confidence := baseConfidence
	for _, fix := range p.SuccessfulFixes {
		if fix.ActionType != "" {
			actionType = fix.ActionType
			confidence += provenFixBonus
			break
		}
	}
	if confidence > 100 {
		confidence = 100
	}
	p.State = StatePreventing

	reasoning := fmt.Sprintf("pattern %s recurred %d times (root cause %s), applying preventive at confidence %.0f",
		p.PatternID, p.OccurrenceCount, p.RootCauseType, confidence)
	proposed, err := e.runner.Propose(ctx, actions.ProposeRequest{
		IncidentID: inc.IncidentID,
		ActionType: actionType,
		Service:    p.Service,
		Reasoning:  reasoning,
		Risk:       actions.RiskLow,
		ProposedBy: "repeat-eliminator",
	})
	if err != nil {
		log.Warn().Err(err).Str("patternID", p.PatternID).Msg("Failed to propose preventive")
		p.FailedFixes = append(p.FailedFixes, FixRecord{ActionType: actionType, IncidentID: inc.IncidentID, Timestamp: e.now()})
		return
	}
	done, err := e.runner.Approve(ctx, proposed.ID, "repeat-eliminator")
	if err != nil || done.Status != actions.StatusSuccess {
		log.Warn().Err(err).Str("patternID", p.PatternID).Str("actionType", actionType).Msg("Preventive failed")
		p.FailedFixes = append(p.FailedFixes, FixRecord{ActionType: actionType, IncidentID: inc.IncidentID, Timestamp: e.now()})
		return
	}

	now := e.now()
	p.PermanentFixApplied = true
	p.PermanentFixDetails = &PermanentFix{
		ActionType: actionType,
		ActionID:   done.ID,
		Confidence: confidence,
		AppliedAt:  now,
	}
	p.SuccessfulFixes = append(p.SuccessfulFixes, FixRecord{ActionType: actionType, IncidentID: inc.IncidentID, Timestamp: now})
	p.State = StateFixed
	e.registerFix(ctx, p)
	log.Info().
		Str("patternID", p.PatternID).
		Str("service", p.Service).
		Str("actionType", actionType).
		Int("occurrences", p.OccurrenceCount).
		Msg("Permanent fix applied for repeat pattern")
}

func (e *Eliminator) registerFix(ctx context.Context, p *RepeatPattern) {
	entry, err := json.Marshal(struct {
		PatternID string        `json:"pattern_id"`
		Service   string        `json:"service"`
		Fix       *PermanentFix `json:"fix"`
	}{p.PatternID, p.Service, p.PermanentFixDetails})
	if err != nil {
		return
	}
	for _, key := range []string{globalFixRegistry, fixRegistryKey(p.Service)} {
		if err := e.store.LPush(ctx, key, entry); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to register permanent fix")
			continue
		}
		if err := e.store.LTrim(ctx, key, 0, fixRegistryCap-1); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to trim fix registry")
		}
	}
}

func (e *Eliminator) escalate(ctx context.Context, p *RepeatPattern) {
	p.Escalated = true
	p.State = StateEscalated
	esc := Escalation{
		PatternID:       p.PatternID,
		Service:         p.Service,
		OccurrenceCount: p.OccurrenceCount,
		Reason:          fmt.Sprintf("%d occurrences with no working fix (%d failed attempts)", p.OccurrenceCount, len(p.FailedFixes)),
		Timestamp:       e.now(),
	}
	data, err := json.Marshal(esc)
	if err != nil {
		return
	}
	for _, key := range []string{globalEscalationLog, escalationsKey(p.Service)} {
		if err := e.store.LPush(ctx, key, data); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to append escalation")
		}
	}
	log.Error().
		Str("patternID", p.PatternID).
		Str("service", p.Service).
		Int("occurrences", p.OccurrenceCount).
		Msg("Repeat pattern escalated")
}

// Pattern loads one repeat pattern by ID.
func (e *Eliminator) Pattern(ctx context.Context, id string) (*RepeatPattern, error) {
	return e.load(ctx, id)
}

// ForService lists the repeat patterns recorded for a service.
func (e *Eliminator) ForService(ctx context.Context, service string) ([]RepeatPattern, error) {
	ids, err := e.store.SMembers(ctx, serviceSetKey(service))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]RepeatPattern, 0, len(ids))
	for _, id := range ids {
		p, err := e.load(ctx, id)
		if err != nil {
			if errors.Is(err, kvstore.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurrenceCount > out[j].OccurrenceCount })
	return out, nil
}

// Escalations returns the newest escalations for a service, up to limit.
func (e *Eliminator) Escalations(ctx context.Context, service string, limit int) ([]Escalation, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := e.store.LRange(ctx, escalationsKey(service), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	out := make([]Escalation, 0, len(raw))
	for _, item := range raw {
		var esc Escalation
		if err := json.Unmarshal([]byte(item), &esc); err != nil {
			log.Warn().Err(err).Str("service", service).Msg("Skipping malformed escalation")
			continue
		}
		out = append(out, esc)
	}
	return out, nil
}

func (e *Eliminator) load(ctx context.Context, id string) (*RepeatPattern, error) {
	data, err := e.store.Get(ctx, patternKey(id))
	if err != nil {
		return nil, err
	}
	var p RepeatPattern
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("repeat: parse pattern %s: %w", id, err)
	}
	return &p, nil
}

func (e *Eliminator) save(ctx context.Context, p *RepeatPattern) error {
	if err := e.store.Set(ctx, patternKey(p.PatternID), p, patternTTL); err != nil {
		return fmt.Errorf("repeat: persist pattern %s: %w", p.PatternID, err)
	}
	return nil
}

func (e *Eliminator) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &e.locks[h.Sum32()%lockStripes]
}
