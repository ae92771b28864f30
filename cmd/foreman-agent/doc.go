// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// foreman-agent is the worker runtime that executes queued tasks. It
// registers itself in the lifecycle store under its pod name, then
// runs two loops against the store: a heartbeat loop refreshing its
// liveness timestamp, and a claim loop that pops the best pending
// task, executes the configured runner command with the task in the
// environment, and reports the outcome.
//
// The agent never talks to foreman-dispatch. Its only dependency is
// the store, which is also what makes its self-reported state visible
// to the fleet reconciler.
//
// Configuration comes from Foreman environment variables:
//   - FOREMAN_AGENT_ID: agent identifier (default: the hostname,
//     which under the orchestrator is the pod name)
//   - FOREMAN_RUNNER: shell command executed per task (required)
//   - FOREMAN_WORKSPACE: working directory for the runner (default: /workspace)
//   - FOREMAN_REDIS_ADDR: store address (default: localhost:6379)
//   - FOREMAN_REDIS_PASSWORD: store password (default: none)
//   - FOREMAN_REDIS_DB: store database number (default: 0)
//   - FOREMAN_PREFIX: store key prefix (default: foreman)
//   - FOREMAN_POLL_INTERVAL: idle backoff between empty claims (default: 2s)
//   - FOREMAN_HEARTBEAT_INTERVAL: liveness refresh period (default: 15s)
//   - FOREMAN_TASK_TIMEOUT: per-task runner deadline (default: 30m)
//
// On SIGTERM the agent drains: the in-flight runner finishes and its
// outcome is reported, no further task is claimed, and the agent
// records the "stopping" status before exiting.
package main
