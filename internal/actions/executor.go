package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsloop/autopilot/internal/kvstore"
	"github.com/opsloop/autopilot/internal/monitoring"
)

const (
	actionTTL       = 24 * time.Hour
	historyCap      = 100
	outcomeListCap  = 1000
	pendingQueue    = "actions:pending"
	approvedQueue   = "actions:approved"
	outcomesKey     = "action_outcomes"
	executorStripes = 64
)

// ProposeRequest describes a new action to queue.
type ProposeRequest struct {
	IncidentID     string
	ActionType     string
	ActionCategory string
	Service        string
	Params         map[string]string
	Reasoning      string
	Risk           Risk
	ProposedBy     string
}

// Executor runs the action state machine over the store. Lifecycle calls
// for the same action ID are serialized; distinct IDs proceed in parallel.
type Executor struct {
	store           kvstore.Store
	providers       []Provider
	dryRun          bool
	providerTimeout time.Duration
	metrics         *monitoring.PipelineMetrics
	locks           [executorStripes]sync.Mutex
}

// NewExecutor creates an executor with the given providers; pass nil to
// use the built-in simulated set.
func NewExecutor(store kvstore.Store, providers []Provider, dryRun bool, providerTimeout time.Duration) *Executor {
	if len(providers) == 0 {
		providers = DefaultProviders()
	}
	if providerTimeout <= 0 {
		providerTimeout = 30 * time.Second
	}
	return &Executor{
		store:           store,
		providers:       providers,
		dryRun:          dryRun,
		providerTimeout: providerTimeout,
		metrics:         monitoring.Get(),
	}
}

func actionKey(id string) string         { return "action:" + id }
func historyKey(service string) string   { return "actions:history:" + service }
func successRateKey(at, svc string) string { return "action_success_rate:" + at + ":" + svc }

func (e *Executor) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &e.locks[h.Sum32()%executorStripes]
}

// Propose creates a pending action and queues it for approval.
func (e *Executor) Propose(ctx context.Context, req ProposeRequest) (*Action, error) {
	if req.ActionType == "" || req.Service == "" {
		return nil, fmt.Errorf("actions: propose requires action type and service")
	}
	if req.Risk == "" {
		req.Risk = RiskMedium
	}
	if req.ActionCategory == "" {
		req.ActionCategory = e.categoryFor(req.ActionType)
	}
	a := &Action{
		ID:             uuid.New().String(),
		IncidentID:     req.IncidentID,
		ActionType:     req.ActionType,
		ActionCategory: req.ActionCategory,
		Service:        req.Service,
		Params:         req.Params,
		Reasoning:      req.Reasoning,
		Risk:           req.Risk,
		Status:         StatusPending,
		ProposedAt:     time.Now().UTC(),
		ProposedBy:     req.ProposedBy,
	}
	if err := e.save(ctx, a); err != nil {
		return nil, err
	}
	if err := e.store.LPush(ctx, pendingQueue, a.ID); err != nil {
		log.Warn().Err(err).Str("actionID", a.ID).Msg("Failed to queue pending action")
	}
	log.Info().
		Str("actionID", a.ID).
		Str("actionType", a.ActionType).
		Str("service", a.Service).
		Str("risk", string(a.Risk)).
		Msg("Action proposed")
	return a, nil
}

// Approve moves a pending action to approved and executes it immediately.
// Approval from any other state returns an InvalidTransitionError.
func (e *Executor) Approve(ctx context.Context, id, approver string) (*Action, error) {
	mu := e.lockFor(id)
	mu.Lock()

	a, err := e.load(ctx, id)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if !transitionAllowed(a.Status, StatusApproved) {
		mu.Unlock()
		return nil, &InvalidTransitionError{ID: id, From: a.Status, To: StatusApproved}
	}
	now := time.Now().UTC()
	a.Status = StatusApproved
	a.ApprovedBy = approver
	a.ApprovedAt = &now
	if err := e.save(ctx, a); err != nil {
		mu.Unlock()
		return nil, err
	}
	if err := e.store.LRem(ctx, pendingQueue, 0, id); err != nil {
		log.Warn().Err(err).Str("actionID", id).Msg("Failed to dequeue pending action")
	}
	if err := e.store.LPush(ctx, approvedQueue, id); err != nil {
		log.Warn().Err(err).Str("actionID", id).Msg("Failed to queue approved action")
	}
	mu.Unlock()

	log.Info().Str("actionID", id).Str("approver", approver).Msg("Action approved")
	return e.Execute(ctx, id)
}

// Execute runs an approved action through its provider and records the
// terminal result.
func (e *Executor) Execute(ctx context.Context, id string) (*Action, error) {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	a, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(a.Status, StatusExecuting) {
		return nil, &InvalidTransitionError{ID: id, From: a.Status, To: StatusExecuting}
	}
	now := time.Now().UTC()
	a.Status = StatusExecuting
	a.ExecutedAt = &now
	if err := e.save(ctx, a); err != nil {
		return nil, err
	}

	provider := e.providerFor(a.ActionType, a.ActionCategory)
	execCtx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	result, execErr := provider.Execute(execCtx, a.ActionType, a.Params, e.dryRun)
	cancel()

	done := time.Now().UTC()
	a.CompletedAt = &done
	if execErr != nil {
		a.Status = StatusFailed
		a.Error = execErr.Error()
	} else {
		a.Result = &result
		if result.Success {
			a.Status = StatusSuccess
		} else {
			a.Status = StatusFailed
			a.Error = result.Message
		}
	}
	if err := e.save(ctx, a); err != nil {
		return nil, err
	}
	e.finishBookkeeping(ctx, a)

	e.metrics.RecordExecution(a.ActionType, a.Status == StatusSuccess, done.Sub(now))
	log.Info().
		Str("actionID", a.ID).
		Str("actionType", a.ActionType).
		Str("service", a.Service).
		Str("status", string(a.Status)).
		Bool("dryRun", e.dryRun).
		Msg("Action executed")
	return a, nil
}

// Cancel withdraws an action. Pending actions cancel directly; executing
// ones are marked cancelled as their terminal state.
func (e *Executor) Cancel(ctx context.Context, id, reason string) (*Action, error) {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	a, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(a.Status, StatusCancelled) {
		return nil, &InvalidTransitionError{ID: id, From: a.Status, To: StatusCancelled}
	}
	now := time.Now().UTC()
	a.Status = StatusCancelled
	a.CompletedAt = &now
	a.Error = reason
	if err := e.save(ctx, a); err != nil {
		return nil, err
	}
	if err := e.store.LRem(ctx, pendingQueue, 0, id); err != nil {
		log.Warn().Err(err).Str("actionID", id).Msg("Failed to dequeue cancelled action")
	}
	log.Info().Str("actionID", id).Str("reason", reason).Msg("Action cancelled")
	return a, nil
}

// Get returns an action by ID.
func (e *Executor) Get(ctx context.Context, id string) (*Action, error) {
	return e.load(ctx, id)
}

// Pending lists queued action IDs awaiting approval.
func (e *Executor) Pending(ctx context.Context) ([]string, error) {
	return e.store.LRange(ctx, pendingQueue, 0, -1)
}

// PopApproved removes and returns the oldest approved action ID, or
// kvstore.ErrNotFound when the queue is empty.
func (e *Executor) PopApproved(ctx context.Context) (string, error) {
	return e.store.RPop(ctx, approvedQueue)
}

// SuccessRate reports the observed success fraction for an action type on
// a service, and how many executions back it.
func (e *Executor) SuccessRate(ctx context.Context, actionType, service string) (float64, int, error) {
	fields, err := e.store.HGetAll(ctx, successRateKey(actionType, service))
	if err != nil {
		return 0, 0, err
	}
	total, _ := strconv.ParseInt(fields["total"], 10, 64)
	success, _ := strconv.ParseInt(fields["success"], 10, 64)
	if total == 0 {
		return 0, 0, nil
	}
	return float64(success) / float64(total), int(total), nil
}

func (e *Executor) categoryFor(actionType string) string {
	for _, p := range e.providers {
		if p.Category() != "generic" && p.Supports(actionType) {
			return p.Category()
		}
	}
	return "generic"
}

func (e *Executor) providerFor(actionType, category string) Provider {
	var generic Provider
	for _, p := range e.providers {
		if p.Category() == category && p.Supports(actionType) {
			return p
		}
		if p.Category() == "generic" {
			generic = p
		}
	}
	for _, p := range e.providers {
		if p.Category() != "generic" && p.Supports(actionType) {
			return p
		}
	}
	return generic
}

func (e *Executor) finishBookkeeping(ctx context.Context, a *Action) {
	if err := e.store.LRem(ctx, approvedQueue, 0, a.ID); err != nil {
		log.Warn().Err(err).Str("actionID", a.ID).Msg("Failed to dequeue approved action")
	}
	key := historyKey(a.Service)
	if err := e.store.LPush(ctx, key, a.ID); err != nil {
		log.Warn().Err(err).Str("actionID", a.ID).Msg("Failed to record action history")
	} else if err := e.store.LTrim(ctx, key, 0, historyCap-1); err != nil {
		log.Warn().Err(err).Str("actionID", a.ID).Msg("Failed to trim action history")
	}

	rateKey := successRateKey(a.ActionType, a.Service)
	if _, err := e.store.HIncrBy(ctx, rateKey, "total", 1); err != nil {
		log.Warn().Err(err).Str("key", rateKey).Msg("Failed to bump action total")
	}
	if a.Status == StatusSuccess {
		if _, err := e.store.HIncrBy(ctx, rateKey, "success", 1); err != nil {
			log.Warn().Err(err).Str("key", rateKey).Msg("Failed to bump action success")
		}
	}

	if data, err := json.Marshal(a); err == nil {
		if err := e.store.LPush(ctx, outcomesKey, data); err != nil {
			log.Warn().Err(err).Msg("Failed to append action outcome")
		} else if err := e.store.LTrim(ctx, outcomesKey, 0, outcomeListCap-1); err != nil {
			log.Warn().Err(err).Msg("Failed to trim action outcomes")
		}
	}
}

func (e *Executor) load(ctx context.Context, id string) (*Action, error) {
	data, err := e.store.Get(ctx, actionKey(id))
	if err != nil {
		return nil, fmt.Errorf("actions: load %s: %w", id, err)
	}
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("actions: parse %s: %w", id, err)
	}
	return &a, nil
}

func (e *Executor) save(ctx context.Context, a *Action) error {
	if err := e.store.Set(ctx, actionKey(a.ID), a, actionTTL); err != nil {
		return fmt.Errorf("actions: save %s: %w", a.ID, err)
	}
	return nil
}
