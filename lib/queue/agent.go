// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/foreman-ai/foreman/lib/apierror"
)

// WriteAgentState replaces an agent's self-reported state hash. The
// agent runtime calls this on every liveness transition; the fleet
// reconciler only ever reads it.
func (s *Store) WriteAgentState(ctx context.Context, state AgentState) error {
	if state.ID == "" {
		return apierror.Validationf("agent ID is required")
	}
	err := s.client.HSet(ctx, s.agentKey(state.ID),
		"id", state.ID,
		"status", state.Status,
		"task_id", state.TaskID,
		"workspace", state.Workspace,
		"heartbeat", state.Heartbeat,
		"completed", strconv.FormatInt(state.Completed, 10),
		"failed", strconv.FormatInt(state.Failed, 10),
	).Err()
	if err != nil {
		return fmt.Errorf("writing agent state for %s: %w", state.ID, err)
	}
	return nil
}

// Heartbeat refreshes the agent's heartbeat timestamp and nothing
// else.
func (s *Store) Heartbeat(ctx context.Context, agentID string) error {
	if agentID == "" {
		return apierror.Validationf("agent ID is required")
	}
	now := s.clock.Now().UTC().Format(time.RFC3339)
	if err := s.client.HSet(ctx, s.agentKey(agentID), "heartbeat", now).Err(); err != nil {
		return fmt.Errorf("recording heartbeat for %s: %w", agentID, err)
	}
	return nil
}

// ReadAgentState fetches an agent's self-reported state. The second
// return is false when the agent has never checked in, which is a
// normal condition, not an error. Missing or malformed fields degrade
// to the unknown defaults rather than failing the read.
func (s *Store) ReadAgentState(ctx context.Context, agentID string) (*AgentState, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.agentKey(agentID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reading agent state for %s: %w", agentID, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	state := &AgentState{
		ID:        agentID,
		Status:    fields["status"],
		TaskID:    fields["task_id"],
		Workspace: fields["workspace"],
		Heartbeat: fields["heartbeat"],
	}
	if state.Status == "" {
		state.Status = AgentUnknown
	}
	state.Completed, _ = strconv.ParseInt(fields["completed"], 10, 64)
	state.Failed, _ = strconv.ParseInt(fields["failed"], 10, 64)
	return state, true, nil
}
