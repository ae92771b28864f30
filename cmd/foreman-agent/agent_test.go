// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/foreman-ai/foreman/lib/clock"
	"github.com/foreman-ai/foreman/lib/queue"
)

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// stubRunner is a Runner with a scriptable outcome and an optional
// gate so tests can hold a task in flight.
type stubRunner struct {
	result  json.RawMessage
	err     error
	started chan string
	release chan struct{}

	mu    sync.Mutex
	tasks []string
}

func (r *stubRunner) Run(ctx context.Context, task *queue.Task) (json.RawMessage, error) {
	r.mu.Lock()
	r.tasks = append(r.tasks, task.ID)
	r.mu.Unlock()
	if r.started != nil {
		r.started <- task.ID
	}
	if r.release != nil {
		<-r.release
	}
	return r.result, r.err
}

func (r *stubRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tasks...)
}

func newTestStore(t *testing.T, clk clock.Clock) *queue.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return queue.New(queue.Config{
		Client: client,
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func newTestAgent(store *queue.Store, runner Runner, clk clock.Clock) *Agent {
	return NewAgent(AgentConfig{
		ID:                "foreman-agent-0",
		Store:             store,
		Runner:            runner,
		Workspace:         "/workspace",
		PollInterval:      2 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		Clock:             clk,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func startAgent(ctx context.Context, agent *Agent) chan error {
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()
	return done
}

func waitAgentDone(t *testing.T, done chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func readState(t *testing.T, store *queue.Store, id string) queue.AgentState {
	t.Helper()
	state, ok, err := store.ReadAgentState(context.Background(), id)
	if err != nil {
		t.Fatalf("ReadAgentState: %v", err)
	}
	if !ok {
		t.Fatalf("agent %s never checked in", id)
	}
	return *state
}

func TestAgentRegistersOnStartup(t *testing.T) {
	clk := clock.Fake(testEpoch)
	store := newTestStore(t, clk)
	agent := newTestAgent(store, &stubRunner{}, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAgent(ctx, agent)

	// Heartbeat ticker plus the idle backoff timer: registration is
	// written and the claim loop is parked on the empty queue.
	clk.WaitForTimers(2)

	state := readState(t, store, "foreman-agent-0")
	if got, want := state.Status, queue.AgentIdle; got != want {
		t.Errorf("Status = %q, want %q", got, want)
	}
	if got, want := state.Workspace, "/workspace"; got != want {
		t.Errorf("Workspace = %q, want %q", got, want)
	}
	if got, want := state.Heartbeat, testEpoch.Format(time.RFC3339); got != want {
		t.Errorf("Heartbeat = %q, want %q", got, want)
	}

	cancel()
	waitAgentDone(t, done)
}

func TestAgentExecutesTasksInPriorityOrder(t *testing.T) {
	clk := clock.Fake(testEpoch)
	store := newTestStore(t, clk)

	background, err := store.Submit(context.Background(), queue.Spec{
		Instruction: "tidy the backlog",
		Repository:  "janua",
		Priority:    3,
	}, "alice")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	clk.Advance(time.Second)
	urgent, err := store.Submit(context.Background(), queue.Spec{
		Instruction: "fix the outage",
		Repository:  "janua",
		Priority:    1,
	}, "alice")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	runner := &stubRunner{result: json.RawMessage(`{"output":"done"}`)}
	agent := newTestAgent(store, runner, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAgent(ctx, agent)
	clk.WaitForTimers(2)

	// The later, more urgent submission ran first.
	if got, want := runner.ran(), []string{urgent.ID, background.ID}; !slices.Equal(got, want) {
		t.Errorf("execution order = %v, want %v", got, want)
	}

	for _, id := range []string{urgent.ID, background.ID} {
		task, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if got, want := task.Status, queue.StatusCompleted; got != want {
			t.Errorf("task %s Status = %q, want %q", id, got, want)
		}
		if got, want := task.Agent, "foreman-agent-0"; got != want {
			t.Errorf("task %s Agent = %q, want %q", id, got, want)
		}
		if len(task.Result) == 0 {
			t.Errorf("task %s has no result", id)
		}
	}

	cancel()
	waitAgentDone(t, done)

	state := readState(t, store, "foreman-agent-0")
	if got, want := state.Status, queue.AgentStopping; got != want {
		t.Errorf("Status = %q, want %q", got, want)
	}
	if got, want := state.Completed, int64(2); got != want {
		t.Errorf("Completed = %d, want %d", got, want)
	}
	if got, want := state.Failed, int64(0); got != want {
		t.Errorf("Failed = %d, want %d", got, want)
	}
}

func TestAgentReportsFailure(t *testing.T) {
	clk := clock.Fake(testEpoch)
	store := newTestStore(t, clk)

	receipt, err := store.Submit(context.Background(), queue.Spec{
		Instruction: "run the flaky migration",
		Repository:  "janua",
	}, "alice")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	runner := &stubRunner{err: errors.New("runner exploded")}
	agent := newTestAgent(store, runner, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAgent(ctx, agent)
	clk.WaitForTimers(2)
	cancel()
	waitAgentDone(t, done)

	task, err := store.Get(context.Background(), receipt.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got, want := task.Status, queue.StatusFailed; got != want {
		t.Errorf("Status = %q, want %q", got, want)
	}
	if got, want := task.Error, "runner exploded"; got != want {
		t.Errorf("Error = %q, want %q", got, want)
	}

	state := readState(t, store, "foreman-agent-0")
	if got, want := state.Completed, int64(0); got != want {
		t.Errorf("Completed = %d, want %d", got, want)
	}
	if got, want := state.Failed, int64(1); got != want {
		t.Errorf("Failed = %d, want %d", got, want)
	}
}

func TestAgentHeartbeat(t *testing.T) {
	clk := clock.Fake(testEpoch)
	store := newTestStore(t, clk)
	agent := newTestAgent(store, &stubRunner{}, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAgent(ctx, agent)
	clk.WaitForTimers(2)
	clk.Advance(15 * time.Second)

	want := testEpoch.Add(15 * time.Second).Format(time.RFC3339)
	for {
		state := readState(t, store, "foreman-agent-0")
		if state.Heartbeat == want {
			break
		}
		if t.Context().Err() != nil {
			t.Fatalf("Heartbeat = %q, never reached %q", state.Heartbeat, want)
		}
		runtime.Gosched()
	}

	cancel()
	waitAgentDone(t, done)
}

func TestAgentDrainsInFlightTask(t *testing.T) {
	clk := clock.Fake(testEpoch)
	store := newTestStore(t, clk)

	receipt, err := store.Submit(context.Background(), queue.Spec{
		Instruction: "run the long migration",
		Repository:  "janua",
	}, "alice")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	runner := &stubRunner{
		result:  json.RawMessage(`{"output":"migrated"}`),
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	agent := newTestAgent(store, runner, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAgent(ctx, agent)

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("runner never started")
	}

	// Shut down with the task still in flight, then let it finish.
	cancel()
	close(runner.release)
	waitAgentDone(t, done)

	task, err := store.Get(context.Background(), receipt.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got, want := task.Status, queue.StatusCompleted; got != want {
		t.Errorf("Status = %q, want %q: drain interrupted in-flight work", got, want)
	}

	state := readState(t, store, "foreman-agent-0")
	if got, want := state.Status, queue.AgentStopping; got != want {
		t.Errorf("Status = %q, want %q", got, want)
	}
	if got, want := state.Completed, int64(1); got != want {
		t.Errorf("Completed = %d, want %d", got, want)
	}
}
