// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"encoding/json"

	"github.com/foreman-ai/foreman/lib/apierror"
)

// Task lifecycle statuses. The only legal transitions are
// pending → active → {completed, failed} and pending → cancelled.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Agent self-reported liveness statuses, written by the agent runtime
// into its own state hash and surfaced by the fleet reconciler.
const (
	AgentStarting = "starting"
	AgentIdle     = "idle"
	AgentWorking  = "working"
	AgentStopping = "stopping"

	// AgentUnknown is the sentinel for a worker the orchestrator
	// knows about but that has never checked in. It is never written
	// to the store; it exists only in reconciled views.
	AgentUnknown = "unknown"
)

// Task is one unit of work submitted for execution. The record is
// created at submission and mutated only by the lifecycle store;
// identifier and submitter are immutable once set. Terminal records
// (completed, failed, cancelled) are retained, never deleted.
//
// Timestamps are ISO 8601 strings. Context, Result, and Error are
// opaque payloads: the store round-trips them without interpretation.
type Task struct {
	// ID is the task identifier: "tsk-" followed by a lowercase
	// ULID. Time-ordered with a random suffix, so IDs sort by
	// submission time and collide only astronomically.
	ID string `json:"id"`

	// Instruction is the natural-language description of the work.
	Instruction string `json:"instruction"`

	// Repository is the target repository identifier.
	Repository string `json:"repository"`

	// Branch is the target branch. Defaults at submission to the
	// configured default branch.
	Branch string `json:"branch"`

	// Priority is 1-5, 1 = highest urgency. Defaults to 3.
	Priority int `json:"priority"`

	// Context is an opaque structured payload supplied by the
	// submitter and handed unmodified to the executing agent.
	Context json.RawMessage `json:"context,omitempty"`

	// Submitter is the verified identity that submitted the task.
	Submitter string `json:"submitter"`

	// SubmittedAt is when the task entered the queue.
	SubmittedAt string `json:"submitted_at"`

	// Status is the current lifecycle state.
	Status string `json:"status"`

	// Agent is the worker that claimed the task. Empty until the
	// task leaves pending.
	Agent string `json:"agent,omitempty"`

	// StartedAt is set when the task is claimed.
	StartedAt string `json:"started_at,omitempty"`

	// CompletedAt is set when the task reaches completed or failed.
	CompletedAt string `json:"completed_at,omitempty"`

	// Result is the opaque success payload from the completion
	// report. Set only on completed tasks.
	Result json.RawMessage `json:"result,omitempty"`

	// Error describes why the task failed. Set only on failed tasks.
	Error string `json:"error,omitempty"`

	// CancelledBy and CancelledAt record who cancelled the task and
	// when. Present if and only if status is cancelled.
	CancelledBy string `json:"cancelled_by,omitempty"`
	CancelledAt string `json:"cancelled_at,omitempty"`
}

// Spec is a submission request. Instruction and Repository are
// required; Branch, Priority, and Context are optional and take
// defaults at submission.
type Spec struct {
	Instruction string          `json:"instruction"`
	Repository  string          `json:"repository"`
	Branch      string          `json:"branch,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
}

// Validate checks the spec before submission. Priority 0 means "not
// set" and is replaced by the default.
func (s *Spec) Validate() error {
	if s.Instruction == "" {
		return apierror.Validationf("instruction is required")
	}
	if s.Repository == "" {
		return apierror.Validationf("repository is required")
	}
	if s.Priority != 0 && (s.Priority < 1 || s.Priority > 5) {
		return apierror.Validationf("priority must be 1-5, got %d", s.Priority)
	}
	return nil
}

// Receipt is what the submitter gets back: the new identifier, where
// the task landed in the pending ordering, and a coarse wait estimate.
type Receipt struct {
	ID string `json:"id"`

	Status string `json:"status"`

	// Position is the 0-indexed rank in the pending ordering at
	// submission time.
	Position int64 `json:"position"`

	// QueueDepth is the pending count including this task.
	QueueDepth int64 `json:"queue_depth"`

	// EstimatedWaitSeconds is the capacity-model wait estimate for
	// the current depth. Deliberately coarse; see Store.EstimateWait.
	EstimatedWaitSeconds int64 `json:"estimated_wait_seconds"`
}

// Stats are per-collection counts. Observational only: reading them
// has no side effects, and total is always the sum of the four states.
type Stats struct {
	Pending   int64 `json:"pending"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}

// CompletionReport is what a worker submits when it finishes a task.
// Success selects the terminal state; Result and Error are the
// corresponding payloads.
type CompletionReport struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// AgentState is a worker's self-reported state hash. Written by the
// agent runtime, read by the fleet reconciler. The store is
// authoritative for these fields; the orchestrator is authoritative
// for existence and phase.
type AgentState struct {
	// ID is the worker identifier (the pod name).
	ID string `json:"id"`

	// Status is one of the Agent* liveness statuses.
	Status string `json:"status"`

	// TaskID is the task currently being executed, empty when idle.
	TaskID string `json:"task_id,omitempty"`

	// Workspace is the working directory the agent executes in.
	Workspace string `json:"workspace,omitempty"`

	// Heartbeat is the ISO 8601 timestamp of the last check-in.
	Heartbeat string `json:"heartbeat,omitempty"`

	// Completed and Failed are cumulative counters over the agent's
	// lifetime.
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
