// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foreman-ai/foreman/lib/clock"
	"github.com/foreman-ai/foreman/lib/queue"
)

// Defaults applied by NewAgent when the corresponding AgentConfig
// field is zero.
const (
	defaultPollInterval      = 2 * time.Second
	defaultHeartbeatInterval = 15 * time.Second
	defaultTaskTimeout       = 30 * time.Minute
)

// shutdownWriteTimeout bounds the store writes that happen after the
// run context is gone: completion reports and the stopping record
// must not hang a draining pod past its grace period.
const shutdownWriteTimeout = 10 * time.Second

// Runner executes one claimed task and returns its result payload.
type Runner interface {
	Run(ctx context.Context, task *queue.Task) (json.RawMessage, error)
}

// AgentConfig configures an Agent.
type AgentConfig struct {
	// ID is the agent identifier, the pod name under the
	// orchestrator. Required.
	ID string

	// Store is the lifecycle store. Required.
	Store *queue.Store

	// Runner executes claimed tasks. Required.
	Runner Runner

	// Workspace is reported in the agent's self-reported state.
	Workspace string

	// PollInterval is the idle backoff between empty claims.
	PollInterval time.Duration

	// HeartbeatInterval is the liveness refresh period.
	HeartbeatInterval time.Duration

	// TaskTimeout bounds a single runner execution.
	TaskTimeout time.Duration

	// Clock is required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Agent is the worker runtime: a claim loop and a heartbeat loop,
// both writing through the lifecycle store. The store is the agent's
// only dependency; everything the control plane knows about this
// worker it learns from the state written there.
type Agent struct {
	id        string
	store     *queue.Store
	runner    Runner
	workspace string

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	taskTimeout       time.Duration

	clock  clock.Clock
	logger *slog.Logger

	// mu guards the self-reported fields below.
	mu        sync.Mutex
	status    string
	taskID    string
	completed int64
	failed    int64
}

// NewAgent creates an Agent.
func NewAgent(cfg AgentConfig) *Agent {
	if cfg.ID == "" {
		panic("agent: ID is required")
	}
	if cfg.Store == nil {
		panic("agent: Store is required")
	}
	if cfg.Runner == nil {
		panic("agent: Runner is required")
	}
	if cfg.Clock == nil {
		panic("agent: Clock is required")
	}
	if cfg.Logger == nil {
		panic("agent: Logger is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	return &Agent{
		id:                cfg.ID,
		store:             cfg.Store,
		runner:            cfg.Runner,
		workspace:         cfg.Workspace,
		pollInterval:      cfg.PollInterval,
		heartbeatInterval: cfg.HeartbeatInterval,
		taskTimeout:       cfg.TaskTimeout,
		clock:             cfg.Clock,
		logger:            cfg.Logger,
	}
}

// Run registers the agent and works the queue until ctx is cancelled.
// Cancellation drains: the in-flight task finishes and its outcome is
// reported before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	a.setStatus(queue.AgentStarting, "")
	if err := a.writeState(ctx); err != nil {
		return fmt.Errorf("registering agent %s: %w", a.id, err)
	}
	a.logger.Info("agent registered", "agent_id", a.id, "workspace", a.workspace)

	heartbeatDone := make(chan struct{})
	go a.heartbeatLoop(ctx, heartbeatDone)

	a.setStatus(queue.AgentIdle, "")
	if err := a.writeState(ctx); err != nil {
		a.logger.Warn("writing agent state failed", "error", err)
	}

	for ctx.Err() == nil {
		task, err := a.store.Claim(ctx, a.id)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			a.logger.Error("claim failed", "error", err)
			a.idle(ctx)
			continue
		}
		if task == nil {
			a.idle(ctx)
			continue
		}
		a.execute(ctx, task)
	}

	<-heartbeatDone

	// The run context is gone; the stopping record gets its own
	// deadline.
	a.setStatus(queue.AgentStopping, "")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownWriteTimeout)
	defer cancel()
	if err := a.writeState(stopCtx); err != nil {
		a.logger.Warn("recording agent stop failed", "error", err)
	}
	a.logger.Info("agent stopped", "agent_id", a.id)
	return nil
}

// execute runs one claimed task and reports the outcome. The runner
// and the report get fresh contexts: a drain signal stops further
// claims but never kills in-flight work or loses its result.
func (a *Agent) execute(ctx context.Context, task *queue.Task) {
	a.setStatus(queue.AgentWorking, task.ID)
	if err := a.writeState(ctx); err != nil {
		a.logger.Warn("writing agent state failed", "error", err)
	}
	a.logger.Info("task started",
		"task_id", task.ID,
		"repository", task.Repository,
		"priority", task.Priority,
	)

	runCtx, cancelRun := context.WithTimeout(context.Background(), a.taskTimeout)
	defer cancelRun()
	result, runErr := a.runner.Run(runCtx, task)

	report := queue.CompletionReport{Success: runErr == nil, Result: result}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	reportCtx, cancelReport := context.WithTimeout(context.Background(), shutdownWriteTimeout)
	defer cancelReport()
	if _, err := a.store.Complete(reportCtx, task.ID, a.id, report); err != nil {
		a.logger.Error("reporting completion failed", "task_id", task.ID, "error", err)
	}

	a.mu.Lock()
	if runErr == nil {
		a.completed++
	} else {
		a.failed++
	}
	a.mu.Unlock()

	if runErr == nil {
		a.logger.Info("task completed", "task_id", task.ID)
	} else {
		a.logger.Warn("task failed", "task_id", task.ID, "error", runErr)
	}

	a.setStatus(queue.AgentIdle, "")
	if err := a.writeState(reportCtx); err != nil {
		a.logger.Warn("writing agent state failed", "error", err)
	}
}

// idle parks the claim loop for one poll interval or until shutdown.
func (a *Agent) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-a.clock.After(a.pollInterval):
	}
}

// heartbeatLoop refreshes the liveness timestamp until ctx is
// cancelled. Status changes are written by the loop that makes them;
// the heartbeat only proves the process is alive.
func (a *Agent) heartbeatLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := a.clock.NewTicker(a.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.store.Heartbeat(ctx, a.id); err != nil {
				a.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func (a *Agent) setStatus(status, taskID string) {
	a.mu.Lock()
	a.status = status
	a.taskID = taskID
	a.mu.Unlock()
}

// writeState publishes the agent's current self-report.
func (a *Agent) writeState(ctx context.Context) error {
	a.mu.Lock()
	state := queue.AgentState{
		ID:        a.id,
		Status:    a.status,
		TaskID:    a.taskID,
		Workspace: a.workspace,
		Heartbeat: a.clock.Now().UTC().Format(time.RFC3339),
		Completed: a.completed,
		Failed:    a.failed,
	}
	a.mu.Unlock()
	return a.store.WriteAgentState(ctx, state)
}
