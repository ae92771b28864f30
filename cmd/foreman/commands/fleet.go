// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/foreman-ai/foreman/cmd/foreman/cli"
	"github.com/foreman-ai/foreman/lib/fleet"
)

// workersParams holds the flags for "foreman workers".
type workersParams struct {
	cli.DispatchConfig
	cli.JSONOutput
}

func workersCommand() *cli.Command {
	var params workersParams

	return &cli.Command{
		Name:    "workers",
		Summary: "List the worker fleet",
		Description: `List every worker the orchestrator knows about, joined with each
agent's self-reported state. A worker that has never checked in shows
status "unknown"; that is normal during startup.`,
		Usage: "foreman workers [flags]",
		Examples: []cli.Example{
			{
				Description: "Fleet overview as JSON",
				Command:     "foreman workers --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("workers", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("workers takes no arguments\n\nusage: foreman workers [flags]")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}
			workers, err := client.Workers(context.Background())
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(workers); done {
				return err
			}
			if len(workers) == 0 {
				fmt.Fprintln(os.Stderr, "no workers found")
				return nil
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "ID\tPHASE\tREADY\tSTATUS\tTASK\tDONE\tFAILED\n")
			for _, worker := range workers {
				fmt.Fprintf(writer, "%s\t%s\t%t\t%s\t%s\t%d\t%d\n",
					worker.ID, worker.Phase, worker.Ready, worker.Status,
					worker.TaskID, worker.Completed, worker.Failed)
			}
			return writer.Flush()
		},
	}
}

// workerParams holds the flags for "foreman worker".
type workerParams struct {
	cli.DispatchConfig
	cli.JSONOutput
}

func workerCommand() *cli.Command {
	var params workerParams

	return &cli.Command{
		Name:    "worker",
		Summary: "Show one worker in full",
		Usage:   "foreman worker [flags] <worker-id>",
		Examples: []cli.Example{
			{
				Description: "Inspect a worker's containers and counters",
				Command:     "foreman worker foreman-agent-2",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("worker", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("worker ID is required\n\nusage: foreman worker [flags] <worker-id>")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}
			worker, err := client.Worker(context.Background(), args[0])
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(worker); done {
				return err
			}
			printWorker(worker)
			return nil
		},
	}
}

// logsParams holds the flags for "foreman logs".
type logsParams struct {
	cli.DispatchConfig
	Container string `flag:"container,c" desc:"container within the worker pod (empty for the pod default)"`
	Tail      int    `flag:"tail"        desc:"limit output to the last N lines (0 for everything)"`
}

func logsCommand() *cli.Command {
	var params logsParams

	return &cli.Command{
		Name:    "logs",
		Summary: "Fetch a worker's recent log output",
		Usage:   "foreman logs [flags] <worker-id>",
		Examples: []cli.Example{
			{
				Description: "Last hundred lines of the agent container",
				Command:     "foreman logs --container agent --tail 100 foreman-agent-2",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("logs", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("worker ID is required\n\nusage: foreman logs [flags] <worker-id>")
			}
			if params.Tail < 0 {
				return fmt.Errorf("--tail must be non-negative, got %d", params.Tail)
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}
			log, err := client.WorkerLog(context.Background(), args[0], params.Container, params.Tail)
			if err != nil {
				return err
			}

			fmt.Print(log)
			if log != "" && !strings.HasSuffix(log, "\n") {
				fmt.Println()
			}
			return nil
		},
	}
}

// printWorker renders the reconciled worker view: orchestrator fields
// first, the agent's self-reported fields after.
func printWorker(worker *fleet.WorkerView) {
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	row := func(key, value string) {
		if value != "" {
			fmt.Fprintf(writer, "%s:\t%s\n", key, value)
		}
	}
	row("id", worker.ID)
	row("phase", worker.Phase)
	fmt.Fprintf(writer, "ready:\t%t\n", worker.Ready)
	row("address", worker.Address)
	row("host", worker.Host)
	row("started", worker.StartedAt)
	for _, container := range worker.Containers {
		fmt.Fprintf(writer, "container:\t%s ready=%t restarts=%d\n",
			container.Name, container.Ready, container.Restarts)
	}
	row("status", worker.Status)
	row("task", worker.TaskID)
	row("workspace", worker.Workspace)
	row("heartbeat", worker.Heartbeat)
	fmt.Fprintf(writer, "completed:\t%d\n", worker.Completed)
	fmt.Fprintf(writer, "failed:\t%d\n", worker.Failed)
	writer.Flush()
}
