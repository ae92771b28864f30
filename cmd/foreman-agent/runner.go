// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/foreman-ai/foreman/lib/queue"
)

// maxResultOutput caps the runner output captured into the completion
// result. 64 KB holds log tails, commit SHAs, and summaries; anything
// larger belongs in the repository, not the task record.
const maxResultOutput = 64 * 1024

// errorTailSize is how much trailing output is folded into the error
// message of a failed run.
const errorTailSize = 1024

// ShellRunner executes tasks through a shell command. The command
// receives the task in FOREMAN_* environment variables, runs in the
// agent workspace, and has its combined output captured as the
// completion result.
type ShellRunner struct {
	// Command is the shell command executed per task.
	Command string

	// Workspace is the working directory for the command.
	Workspace string

	// Logger is required.
	Logger *slog.Logger
}

// runnerResult is the completion payload of a successful run.
type runnerResult struct {
	Output string `json:"output"`
}

// Run executes the configured command for one task.
func (r *ShellRunner) Run(ctx context.Context, task *queue.Task) (json.RawMessage, error) {
	r.Logger.Debug("runner starting", "task_id", task.ID, "command", r.Command)

	cmd := exec.CommandContext(ctx, "sh", "-c", r.Command)
	cmd.Dir = r.Workspace
	cmd.Env = append(os.Environ(),
		"FOREMAN_TASK_ID="+task.ID,
		"FOREMAN_INSTRUCTION="+task.Instruction,
		"FOREMAN_REPOSITORY="+task.Repository,
		"FOREMAN_BRANCH="+task.Branch,
	)
	if len(task.Context) > 0 {
		cmd.Env = append(cmd.Env, "FOREMAN_CONTEXT="+string(task.Context))
	}

	// Own process group, so a timeout kills the command's children
	// too, not just the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	captured := tail(output.Bytes(), maxResultOutput)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("runner timed out: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("runner exited with code %d: %s",
				exitErr.ExitCode(), tail(captured, errorTailSize))
		}
		return nil, fmt.Errorf("running task command: %w", err)
	}

	payload, err := json.Marshal(runnerResult{Output: string(captured)})
	if err != nil {
		return nil, fmt.Errorf("encoding runner result: %w", err)
	}
	return payload, nil
}

// tail returns at most limit trailing bytes of b.
func tail(b []byte, limit int) []byte {
	if len(b) <= limit {
		return b
	}
	return b[len(b)-limit:]
}
