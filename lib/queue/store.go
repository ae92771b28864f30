// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/foreman-ai/foreman/lib/apierror"
	"github.com/foreman-ai/foreman/lib/clock"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultPrefix         = "foreman"
	DefaultBranch         = "main"
	DefaultAvgTaskSeconds = 300
	DefaultTasksPerWorker = 3

	// DefaultPriority is assigned to submissions that do not set one.
	DefaultPriority = 3
)

// priorityStride separates priority bands in the queue score. Unix
// milliseconds stay below 1e13 until the year 2286, so bands cannot
// overlap, and the largest score (5e13 plus a timestamp) is well under
// 2^53, so Redis's float64 scores represent every value exactly.
const priorityStride = int64(1e13)

// orderKey computes the pending-queue score for a task. Lower scores
// dequeue first: priority 1 beats priority 5 regardless of age, and
// within a band the earlier submission wins.
func orderKey(priority int, submitted time.Time) int64 {
	return int64(priority)*priorityStride + submitted.UnixMilli()
}

// newTaskID mints a task identifier: "tsk-" plus a lowercase ULID.
// ULIDs embed their creation time, so identifiers sort by submission.
func newTaskID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return "tsk-" + strings.ToLower(id.String()), nil
}

// Config configures a Store.
type Config struct {
	// Client is the Redis connection. Required.
	Client redis.UniversalClient

	// Prefix namespaces every key the store touches. Defaults to
	// "foreman".
	Prefix string

	// DefaultBranch fills Spec.Branch when the submitter leaves it
	// empty. Defaults to "main".
	DefaultBranch string

	// AvgTaskSeconds and TasksPerWorker parameterize the wait
	// estimate (see EstimateWait). Defaults 300 and 3.
	AvgTaskSeconds int
	TasksPerWorker int

	// Clock supplies submission and transition timestamps. Defaults
	// to clock.Real().
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Store is the priority queue and task lifecycle store. All methods
// are safe for concurrent use; every lifecycle mutation is a single
// atomic Redis script.
type Store struct {
	client         redis.UniversalClient
	prefix         string
	defaultBranch  string
	avgTaskSeconds int
	tasksPerWorker int
	clock          clock.Clock
	logger         *slog.Logger
}

// New creates a Store. Client and Logger are required; everything else
// defaults per the Config documentation.
func New(cfg Config) *Store {
	if cfg.Client == nil {
		panic("queue: Client is required")
	}
	if cfg.Logger == nil {
		panic("queue: Logger is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = DefaultBranch
	}
	if cfg.AvgTaskSeconds <= 0 {
		cfg.AvgTaskSeconds = DefaultAvgTaskSeconds
	}
	if cfg.TasksPerWorker <= 0 {
		cfg.TasksPerWorker = DefaultTasksPerWorker
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Store{
		client:         cfg.Client,
		prefix:         cfg.Prefix,
		defaultBranch:  cfg.DefaultBranch,
		avgTaskSeconds: cfg.AvgTaskSeconds,
		tasksPerWorker: cfg.TasksPerWorker,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
	}
}

func (s *Store) pendingKey() string           { return s.prefix + ":queue:pending" }
func (s *Store) taskKeyPrefix() string        { return s.prefix + ":task:" }
func (s *Store) taskKey(id string) string     { return s.taskKeyPrefix() + id }
func (s *Store) listKey(status string) string { return s.prefix + ":tasks:" + status }
func (s *Store) agentKey(id string) string    { return s.prefix + ":agent:" + id }

// submitScript writes the task hash and its queue entry in one step
// and reports where the entry landed.
//
// KEYS[1] task hash, KEYS[2] pending queue
// ARGV[1] task ID, ARGV[2] order key, ARGV[3..] hash field/value pairs
var submitScript = redis.NewScript(`
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
local rank = redis.call('ZRANK', KEYS[2], ARGV[1])
local depth = redis.call('ZCARD', KEYS[2])
return {rank, depth}
`)

// cancelScript serializes cancellation against claims: by the time it
// returns ok, the queue entry is gone and no claim can see the task.
// Check order matters: absence, then ownership, then state.
//
// KEYS[1] task hash, KEYS[2] pending queue
// ARGV[1] task ID, ARGV[2] caller, ARGV[3] timestamp
var cancelScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'missing'
end
if redis.call('HGET', KEYS[1], 'submitter') ~= ARGV[2] then
  return 'forbidden'
end
local status = redis.call('HGET', KEYS[1], 'status')
if status ~= 'pending' then
  return 'state:' .. status
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'status', 'cancelled', 'cancelled_by', ARGV[2], 'cancelled_at', ARGV[3])
return 'ok'
`)

// claimScript pops the best pending entry and marks the task active.
// The task key is constructed from the popped ID inside the script,
// which requires all keys on one Redis instance (or one hash slot).
//
// KEYS[1] pending queue, KEYS[2] active list
// ARGV[1] task key prefix, ARGV[2] agent ID, ARGV[3] timestamp
var claimScript = redis.NewScript(`
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
  return false
end
local id = popped[1]
redis.call('HSET', ARGV[1] .. id, 'status', 'active', 'agent', ARGV[2], 'started_at', ARGV[3])
redis.call('LPUSH', KEYS[2], id)
return id
`)

// completeScript applies a completion report. Only an active task may
// complete, and only its assigned agent may report; anything else
// (pending, cancelled, already terminal, foreign agent) is rejected
// without touching the record. A cancellation that won the race
// therefore sticks.
//
// KEYS[1] task hash, KEYS[2] active list, KEYS[3] completed list,
// KEYS[4] failed list
// ARGV[1] task ID, ARGV[2] agent ID, ARGV[3] timestamp,
// ARGV[4] terminal status, ARGV[5] result payload, ARGV[6] error text
var completeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'missing'
end
local status = redis.call('HGET', KEYS[1], 'status')
if status ~= 'active' then
  return 'state:' .. status
end
if redis.call('HGET', KEYS[1], 'agent') ~= ARGV[2] then
  return 'agent'
end
redis.call('LREM', KEYS[2], 0, ARGV[1])
redis.call('HSET', KEYS[1], 'status', ARGV[4], 'completed_at', ARGV[3])
if ARGV[5] ~= '' then
  redis.call('HSET', KEYS[1], 'result', ARGV[5])
end
if ARGV[6] ~= '' then
  redis.call('HSET', KEYS[1], 'error', ARGV[6])
end
if ARGV[4] == 'completed' then
  redis.call('LPUSH', KEYS[3], ARGV[1])
else
  redis.call('LPUSH', KEYS[4], ARGV[1])
end
return 'ok'
`)

// Submit validates the spec, fills defaults, and enqueues a new
// pending task. The receipt reports the identifier, the position the
// entry landed at, and a wait estimate for the current depth.
func (s *Store) Submit(ctx context.Context, spec Spec, submitter string) (*Receipt, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if submitter == "" {
		return nil, apierror.Validationf("submitter identity is required")
	}

	priority := spec.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	branch := spec.Branch
	if branch == "" {
		branch = s.defaultBranch
	}

	now := s.clock.Now().UTC()
	id, err := newTaskID(now)
	if err != nil {
		return nil, fmt.Errorf("generating task ID: %w", err)
	}

	args := []any{
		id,
		orderKey(priority, now),
		"id", id,
		"instruction", spec.Instruction,
		"repository", spec.Repository,
		"branch", branch,
		"priority", strconv.Itoa(priority),
		"submitter", submitter,
		"submitted_at", now.Format(time.RFC3339),
		"status", StatusPending,
	}
	if len(spec.Context) > 0 {
		args = append(args, "context", string(spec.Context))
	}

	values, err := submitScript.Run(ctx, s.client, []string{s.taskKey(id), s.pendingKey()}, args...).Slice()
	if err != nil {
		return nil, fmt.Errorf("submitting task: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("submitting task: unexpected script reply length %d", len(values))
	}
	position, _ := values[0].(int64)
	depth, _ := values[1].(int64)

	s.logger.Info("task submitted",
		"task_id", id,
		"submitter", submitter,
		"priority", priority,
		"position", position,
	)

	return &Receipt{
		ID:                   id,
		Status:               StatusPending,
		Position:             position,
		QueueDepth:           depth,
		EstimatedWaitSeconds: s.EstimateWait(depth),
	}, nil
}

// Get fetches one task record.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	fields, err := s.client.HGetAll(ctx, s.taskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading task %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, apierror.NotFoundf("task %s not found", id)
	}
	return taskFromHash(fields)
}

// ListBySubmitter returns the caller's tasks, newest submission first.
// This scans the whole task keyspace: at the volumes foreman serves,
// the scan is cheaper than maintaining a per-submitter index on every
// lifecycle transition.
func (s *Store) ListBySubmitter(ctx context.Context, submitter string) ([]Task, error) {
	var tasks []Task
	seen := make(map[string]bool)

	iter := s.client.Scan(ctx, 0, s.taskKey("*"), 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		// SCAN may deliver a key more than once; the record may also
		// have been touched between SCAN and HGETALL.
		if len(fields) == 0 || fields["submitter"] != submitter || seen[fields["id"]] {
			continue
		}
		task, err := taskFromHash(fields)
		if err != nil {
			return nil, err
		}
		seen[task.ID] = true
		tasks = append(tasks, *task)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning tasks: %w", err)
	}

	// Identifiers embed submission time, so reverse ID order is
	// newest first.
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID > tasks[j].ID })
	return tasks, nil
}

// Cancel transitions a pending task to cancelled. Only the submitter
// may cancel, and only while the task is still pending; active work is
// not interrupted.
func (s *Store) Cancel(ctx context.Context, id, caller string) (*Task, error) {
	now := s.clock.Now().UTC().Format(time.RFC3339)
	result, err := cancelScript.Run(ctx, s.client, []string{s.taskKey(id), s.pendingKey()}, id, caller, now).Text()
	if err != nil {
		return nil, fmt.Errorf("cancelling task %s: %w", id, err)
	}
	switch {
	case result == "ok":
	case result == "missing":
		return nil, apierror.NotFoundf("task %s not found", id)
	case result == "forbidden":
		return nil, apierror.Authorizationf("task %s was submitted by a different identity", id)
	case strings.HasPrefix(result, "state:"):
		return nil, apierror.InvalidStatef("task %s is %s; only pending tasks can be cancelled",
			id, strings.TrimPrefix(result, "state:"))
	default:
		return nil, fmt.Errorf("cancelling task %s: unexpected script result %q", id, result)
	}

	s.logger.Info("task cancelled", "task_id", id, "cancelled_by", caller)
	return s.Get(ctx, id)
}

// Claim pops the best pending task and assigns it to the agent. A nil
// task with a nil error means the queue is empty. Claims serialize
// with cancellation on the store, so a cancelled task can never be
// claimed: its queue entry was removed before the cancel returned.
func (s *Store) Claim(ctx context.Context, agentID string) (*Task, error) {
	if agentID == "" {
		return nil, apierror.Validationf("agent ID is required")
	}
	now := s.clock.Now().UTC().Format(time.RFC3339)
	id, err := claimScript.Run(ctx, s.client,
		[]string{s.pendingKey(), s.listKey(StatusActive)},
		s.taskKeyPrefix(), agentID, now,
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming task: %w", err)
	}

	s.logger.Info("task claimed", "task_id", id, "agent_id", agentID)
	return s.Get(ctx, id)
}

// Complete applies a worker's completion report, moving the task to
// completed or failed. Only the assigned agent may complete, and only
// while the task is active.
func (s *Store) Complete(ctx context.Context, id, agentID string, report CompletionReport) (*Task, error) {
	if agentID == "" {
		return nil, apierror.Validationf("agent ID is required")
	}
	terminal := StatusCompleted
	if !report.Success {
		terminal = StatusFailed
	}
	now := s.clock.Now().UTC().Format(time.RFC3339)
	result, err := completeScript.Run(ctx, s.client,
		[]string{s.taskKey(id), s.listKey(StatusActive), s.listKey(StatusCompleted), s.listKey(StatusFailed)},
		id, agentID, now, terminal, string(report.Result), report.Error,
	).Text()
	if err != nil {
		return nil, fmt.Errorf("completing task %s: %w", id, err)
	}
	switch {
	case result == "ok":
	case result == "missing":
		return nil, apierror.NotFoundf("task %s not found", id)
	case result == "agent":
		return nil, apierror.InvalidStatef("task %s is assigned to a different agent", id)
	case strings.HasPrefix(result, "state:"):
		return nil, apierror.InvalidStatef("task %s is %s; only active tasks can be completed",
			id, strings.TrimPrefix(result, "state:"))
	default:
		return nil, fmt.Errorf("completing task %s: unexpected script result %q", id, result)
	}

	s.logger.Info("task "+terminal, "task_id", id, "agent_id", agentID)
	return s.Get(ctx, id)
}

// Stats counts tasks per lifecycle collection. Observational only.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var pending, active, completed, failed *redis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.ZCard(ctx, s.pendingKey())
		active = pipe.LLen(ctx, s.listKey(StatusActive))
		completed = pipe.LLen(ctx, s.listKey(StatusCompleted))
		failed = pipe.LLen(ctx, s.listKey(StatusFailed))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading queue stats: %w", err)
	}

	stats := &Stats{
		Pending:   pending.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}
	stats.Total = stats.Pending + stats.Active + stats.Completed + stats.Failed
	return stats, nil
}

// Position reports a task's 0-indexed rank in the pending ordering.
// The second return is false when the task is not pending.
func (s *Store) Position(ctx context.Context, id string) (int64, bool, error) {
	rank, err := s.client.ZRank(ctx, s.pendingKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("ranking task %s: %w", id, err)
	}
	return rank, true, nil
}

// EstimateWait converts a pending depth into a wait estimate in
// seconds: ceil(depth * avgTaskSeconds / workers), where the worker
// count scales with the queue itself (one worker per tasksPerWorker
// pending tasks, minimum one). A deliberately coarse capacity model:
// it tracks the autoscaling ratio instead of querying the fleet, so
// queue math never couples to the reconciler.
func (s *Store) EstimateWait(depth int64) int64 {
	if depth <= 0 {
		return 0
	}
	perWorker := int64(s.tasksPerWorker)
	workers := (depth + perWorker - 1) / perWorker
	if workers < 1 {
		workers = 1
	}
	total := depth * int64(s.avgTaskSeconds)
	return (total + workers - 1) / workers
}

// taskFromHash converts a Redis hash into a Task.
func taskFromHash(fields map[string]string) (*Task, error) {
	priority, err := strconv.Atoi(fields["priority"])
	if err != nil {
		return nil, fmt.Errorf("task %s has malformed priority %q", fields["id"], fields["priority"])
	}

	task := &Task{
		ID:          fields["id"],
		Instruction: fields["instruction"],
		Repository:  fields["repository"],
		Branch:      fields["branch"],
		Priority:    priority,
		Submitter:   fields["submitter"],
		SubmittedAt: fields["submitted_at"],
		Status:      fields["status"],
		Agent:       fields["agent"],
		StartedAt:   fields["started_at"],
		CompletedAt: fields["completed_at"],
		Error:       fields["error"],
		CancelledBy: fields["cancelled_by"],
		CancelledAt: fields["cancelled_at"],
	}
	if v := fields["context"]; v != "" {
		task.Context = json.RawMessage(v)
	}
	if v := fields["result"]; v != "" {
		task.Result = json.RawMessage(v)
	}
	return task, nil
}
