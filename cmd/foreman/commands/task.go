// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/foreman-ai/foreman/cmd/foreman/cli"
	"github.com/foreman-ai/foreman/lib/queue"
)

// submitParams holds the flags for "foreman submit". The instruction
// itself is positional so operators can type it unquoted.
type submitParams struct {
	cli.DispatchConfig
	cli.JSONOutput
	Repository string `flag:"repo,r"     desc:"repository the task works in"`
	Branch     string `flag:"branch,b"   desc:"branch to work on (defaults to the repository default)"`
	Priority   int    `flag:"priority,p" desc:"priority 1-5, 1 most urgent (unset lets instruction hints decide)"`
	Context    string `flag:"context"    desc:"extra task context as a JSON object"`
}

func submitCommand() *cli.Command {
	var params submitParams

	return &cli.Command{
		Name:    "submit",
		Summary: "Submit a task to the queue",
		Description: `Submit a task for the worker fleet. The instruction is everything
after the flags; quoting is optional. Priority and repository can be
left unset when the instruction itself says enough ("urgent: fix the
flaky auth test in the janua repo").`,
		Usage: "foreman submit [flags] <instruction>",
		Examples: []cli.Example{
			{
				Description: "Explicit repository and priority",
				Command:     `foreman submit --repo janua --priority 2 "bump the redis client"`,
			},
			{
				Description: "Let the instruction hints fill the rest",
				Command:     `foreman submit "urgent: fix the memory leak in the hearth repo"`,
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("submit", &params)
		},
		Run: func(args []string) error {
			instruction := strings.TrimSpace(strings.Join(args, " "))
			if instruction == "" {
				return fmt.Errorf("instruction is required\n\nusage: foreman submit [flags] <instruction>")
			}

			spec := queue.Spec{
				Instruction: instruction,
				Repository:  params.Repository,
				Branch:      params.Branch,
				Priority:    params.Priority,
			}
			if params.Context != "" {
				if !json.Valid([]byte(params.Context)) {
					return fmt.Errorf("--context must be valid JSON")
				}
				spec.Context = json.RawMessage(params.Context)
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}
			receipt, err := client.SubmitTask(context.Background(), spec)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(receipt); done {
				return err
			}
			fmt.Printf("task %s submitted\n", receipt.ID)
			fmt.Printf("  position:       %d (queue depth %d)\n", receipt.Position, receipt.QueueDepth)
			fmt.Printf("  estimated wait: %s\n", time.Duration(receipt.EstimatedWaitSeconds)*time.Second)
			return nil
		},
	}
}

// showParams holds the flags for "foreman show".
type showParams struct {
	cli.DispatchConfig
	cli.JSONOutput
}

func showCommand() *cli.Command {
	var params showParams

	return &cli.Command{
		Name:    "show",
		Summary: "Show one task in full",
		Usage:   "foreman show [flags] <task-id>",
		Examples: []cli.Example{
			{
				Description: "Inspect a task's result",
				Command:     "foreman show tsk-01jtqv8e4kfxme9pkw5r3s7t2n",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("task ID is required\n\nusage: foreman show [flags] <task-id>")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}
			task, err := client.Task(context.Background(), args[0])
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(task); done {
				return err
			}
			printTask(task)
			return nil
		},
	}
}

// listParams holds the flags for "foreman list".
type listParams struct {
	cli.DispatchConfig
	cli.JSONOutput
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List your tasks, newest first",
		Description: `List the tasks you have submitted, newest first. Other submitters'
tasks are not shown; the queue scopes listings to the caller.`,
		Usage: "foreman list [flags]",
		Examples: []cli.Example{
			{
				Description: "Your tasks as JSON",
				Command:     "foreman list --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("list takes no arguments\n\nusage: foreman list [flags]")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}
			tasks, err := client.Tasks(context.Background())
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(tasks); done {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(os.Stderr, "no tasks found")
				return nil
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "ID\tSTATUS\tPRIO\tREPOSITORY\tSUBMITTED\tINSTRUCTION\n")
			for _, task := range tasks {
				fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\t%s\n",
					task.ID, task.Status, task.Priority, task.Repository,
					task.SubmittedAt, truncate(task.Instruction, 48))
			}
			return writer.Flush()
		},
	}
}

// cancelParams holds the flags for "foreman cancel".
type cancelParams struct {
	cli.DispatchConfig
	cli.JSONOutput
}

func cancelCommand() *cli.Command {
	var params cancelParams

	return &cli.Command{
		Name:    "cancel",
		Summary: "Cancel a pending task",
		Description: `Cancel one of your pending tasks. Only the submitter can cancel, and
only while the task is still pending; a claimed task runs to
completion.`,
		Usage: "foreman cancel [flags] <task-id>",
		Examples: []cli.Example{
			{
				Description: "Withdraw a task before a worker claims it",
				Command:     "foreman cancel tsk-01jtqv8e4kfxme9pkw5r3s7t2n",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("cancel", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("task ID is required\n\nusage: foreman cancel [flags] <task-id>")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}
			task, err := client.CancelTask(context.Background(), args[0])
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(task); done {
				return err
			}
			fmt.Printf("task %s cancelled\n", task.ID)
			return nil
		},
	}
}

// statsParams holds the flags for "foreman stats".
type statsParams struct {
	cli.DispatchConfig
	cli.JSONOutput
}

func statsCommand() *cli.Command {
	var params statsParams

	return &cli.Command{
		Name:    "stats",
		Summary: "Show queue counters",
		Usage:   "foreman stats [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("stats", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("stats takes no arguments\n\nusage: foreman stats [flags]")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}
			stats, err := client.QueueStats(context.Background())
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(stats); done {
				return err
			}
			fmt.Printf("pending:   %d\n", stats.Pending)
			fmt.Printf("active:    %d\n", stats.Active)
			fmt.Printf("completed: %d\n", stats.Completed)
			fmt.Printf("failed:    %d\n", stats.Failed)
			fmt.Printf("total:     %d\n", stats.Total)
			return nil
		},
	}
}

// printTask renders a task record as aligned key/value lines,
// omitting fields the task has not reached yet.
func printTask(task *queue.Task) {
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	row := func(key, value string) {
		if value != "" {
			fmt.Fprintf(writer, "%s:\t%s\n", key, value)
		}
	}
	row("id", task.ID)
	row("status", task.Status)
	row("instruction", task.Instruction)
	row("repository", task.Repository)
	row("branch", task.Branch)
	fmt.Fprintf(writer, "priority:\t%d\n", task.Priority)
	if len(task.Context) > 0 {
		row("context", string(task.Context))
	}
	row("submitter", task.Submitter)
	row("submitted", task.SubmittedAt)
	row("agent", task.Agent)
	row("started", task.StartedAt)
	row("completed", task.CompletedAt)
	if len(task.Result) > 0 {
		row("result", string(task.Result))
	}
	row("error", task.Error)
	row("cancelled by", task.CancelledBy)
	row("cancelled at", task.CancelledAt)
	writer.Flush()
}

// truncate shortens s to at most max runes, marking the cut with an
// ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimRight(string(runes[:max-3]), " ") + "..."
}
