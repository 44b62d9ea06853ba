// Package actions owns the remediation action lifecycle: a small state
// machine from proposal through approval to execution, with simulated
// providers behind a uniform contract.
package actions

import (
	"fmt"
	"time"
)

// Status is an action's position in the lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusExecuting Status = "executing"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status can never change again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// validNext enumerates the state machine's legal edges.
var validNext = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusExecuting},
	StatusExecuting: {StatusSuccess, StatusFailed, StatusCancelled},
}

func transitionAllowed(from, to Status) bool {
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an attempt to move an action along an
// edge the state machine does not have.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("actions: invalid transition %s -> %s for action %s", e.From, e.To, e.ID)
}

// Risk labels how dangerous an action is to run.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Action is one proposed remediation. The executor is its only writer
// after proposal.
type Action struct {
	ID             string            `json:"id"`
	IncidentID     string            `json:"incident_id,omitempty"`
	ActionType     string            `json:"action_type"`
	ActionCategory string            `json:"action_category"`
	Service        string            `json:"service"`
	Params         map[string]string `json:"params,omitempty"`
	Reasoning      string            `json:"reasoning,omitempty"`
	Risk           Risk              `json:"risk"`
	Status         Status            `json:"status"`
	ProposedAt     time.Time         `json:"proposed_at"`
	ProposedBy     string            `json:"proposed_by"`
	ApprovedBy     string            `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time        `json:"approved_at,omitempty"`
	ExecutedAt     *time.Time        `json:"executed_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Result         *ProviderResult   `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// ProviderResult is the uniform outcome contract every provider returns.
type ProviderResult struct {
	Success         bool                   `json:"success"`
	Message         string                 `json:"message"`
	Details         map[string]interface{} `json:"details,omitempty"`
	DurationSeconds float64                `json:"duration_seconds"`
	DryRun          bool                   `json:"dry_run"`
}
