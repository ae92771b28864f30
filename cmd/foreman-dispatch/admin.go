// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/foreman-ai/foreman/lib/service"
	"github.com/foreman-ai/foreman/lib/version"
)

// registerActions registers the admin socket actions. All of them are
// read-only: the socket exists for host-local operators and probes,
// and mutations stay on the authenticated HTTP API. The socket itself
// has no credential checks — access control is the run directory's
// permissions.
func (d *Dispatch) registerActions(server *service.SocketServer) {
	server.Handle("ping", d.handlePing)
	server.Handle("stats", d.handleAdminStats)
	server.Handle("workers", d.handleAdminWorkers)
}

// pingResponse is the response to the "ping" action.
type pingResponse struct {
	// UptimeSeconds is how long the service has been running.
	UptimeSeconds float64 `cbor:"uptime_seconds"`

	// Version is the build version string.
	Version string `cbor:"version"`
}

func (d *Dispatch) handlePing(ctx context.Context, raw []byte) (any, error) {
	uptime := d.clock.Now().Sub(d.startedAt)
	return pingResponse{
		UptimeSeconds: uptime.Seconds(),
		Version:       version.Info(),
	}, nil
}

// statsResponse is the response to the "stats" action.
type statsResponse struct {
	Pending   int64 `cbor:"pending"`
	Active    int64 `cbor:"active"`
	Completed int64 `cbor:"completed"`
	Failed    int64 `cbor:"failed"`
	Total     int64 `cbor:"total"`
}

func (d *Dispatch) handleAdminStats(ctx context.Context, raw []byte) (any, error) {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return statsResponse{
		Pending:   stats.Pending,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Total:     stats.Total,
	}, nil
}

// workerSummary is one worker in the "workers" response. A compact
// subset of the HTTP fleet view: enough for an operator's glance, not
// the full reconciled record.
type workerSummary struct {
	ID        string `cbor:"id"`
	Phase     string `cbor:"phase"`
	Ready     bool   `cbor:"ready"`
	Status    string `cbor:"status"`
	TaskID    string `cbor:"task_id,omitempty"`
	Heartbeat string `cbor:"heartbeat,omitempty"`
}

// workersResponse is the response to the "workers" action.
type workersResponse struct {
	Workers []workerSummary `cbor:"workers"`
	Count   int             `cbor:"count"`
}

func (d *Dispatch) handleAdminWorkers(ctx context.Context, raw []byte) (any, error) {
	views, err := d.fleet.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}

	workers := make([]workerSummary, len(views))
	for i, view := range views {
		workers[i] = workerSummary{
			ID:        view.ID,
			Phase:     view.Phase,
			Ready:     view.Ready,
			Status:    view.Status,
			TaskID:    view.TaskID,
			Heartbeat: view.Heartbeat,
		}
	}
	return workersResponse{Workers: workers, Count: len(workers)}, nil
}
