// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/foreman-ai/foreman/lib/apierror"
	"github.com/foreman-ai/foreman/lib/clock"
	"github.com/foreman-ai/foreman/lib/fleet"
	"github.com/foreman-ai/foreman/lib/hints"
	"github.com/foreman-ai/foreman/lib/queue"
	"github.com/foreman-ai/foreman/lib/scope"
)

// maxRequestBodySize bounds the JSON request body. Task submissions
// are a few KB even with a generous context payload; 1 MB is far
// beyond any legitimate request.
const maxRequestBodySize = 1024 * 1024

// credentialVerifier checks a bearer credential and returns the
// verified identity. *keycache.Verifier implements it.
type credentialVerifier interface {
	Verify(ctx context.Context, token string) (scope.Identity, error)
}

// Dispatch is the control-plane service: the HTTP API handlers and the
// admin socket actions share its state.
type Dispatch struct {
	store     *queue.Store
	fleet     *fleet.Reconciler
	verifier  credentialVerifier
	clock     clock.Clock
	logger    *slog.Logger
	startedAt time.Time
}

// DispatchConfig configures a Dispatch.
type DispatchConfig struct {
	// Store is the task queue and lifecycle store. Required.
	Store *queue.Store

	// Fleet is the worker reconciler. Required.
	Fleet *fleet.Reconciler

	// Verifier checks bearer credentials. Required.
	Verifier credentialVerifier

	// Clock is the time source. Required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// NewDispatch creates the service.
func NewDispatch(cfg DispatchConfig) *Dispatch {
	if cfg.Store == nil {
		panic("dispatch: Store is required")
	}
	if cfg.Fleet == nil {
		panic("dispatch: Fleet is required")
	}
	if cfg.Verifier == nil {
		panic("dispatch: Verifier is required")
	}
	if cfg.Clock == nil {
		panic("dispatch: Clock is required")
	}
	if cfg.Logger == nil {
		panic("dispatch: Logger is required")
	}
	return &Dispatch{
		store:     cfg.Store,
		fleet:     cfg.Fleet,
		verifier:  cfg.Verifier,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		startedAt: cfg.Clock.Now(),
	}
}

// Routes builds the HTTP API. Reads require the view scope, mutations
// the control scope; the liveness probe is unauthenticated.
func (d *Dispatch) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", d.handleHealthz)

	mux.Handle("POST /v1/tasks", d.authenticated(scope.Control, d.handleSubmit))
	mux.Handle("GET /v1/tasks", d.authenticated(scope.View, d.handleListTasks))
	mux.Handle("GET /v1/tasks/{id}", d.authenticated(scope.View, d.handleGetTask))
	mux.Handle("DELETE /v1/tasks/{id}", d.authenticated(scope.Control, d.handleCancel))

	mux.Handle("GET /v1/queue/stats", d.authenticated(scope.View, d.handleStats))

	mux.Handle("GET /v1/workers", d.authenticated(scope.View, d.handleListWorkers))
	mux.Handle("GET /v1/workers/{id}", d.authenticated(scope.View, d.handleGetWorker))
	mux.Handle("GET /v1/workers/{id}/log", d.authenticated(scope.View, d.handleWorkerLog))

	return mux
}

// identityHandler is an API handler that receives the verified caller.
type identityHandler func(writer http.ResponseWriter, request *http.Request, caller scope.Identity)

// authenticated wraps a handler with bearer-credential verification
// and a scope check. An unverifiable credential is 401 — that is
// transport plumbing, not part of the error taxonomy — except when no
// key material exists at all, which surfaces as the key-fetch kind
// (503) so callers can tell "your token is bad" from "I cannot check
// any token right now". A verified caller without the capability is
// 403 via the taxonomy.
func (d *Dispatch) authenticated(capability string, handler identityHandler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		token, ok := bearerToken(request)
		if !ok {
			d.writeJSON(writer, http.StatusUnauthorized, errorBody{
				Error: "missing bearer credential",
			})
			return
		}

		caller, err := d.verifier.Verify(request.Context(), token)
		if err != nil {
			if apierror.KindOf(err) == apierror.KeyFetch {
				d.writeError(writer, err)
				return
			}
			d.logger.Debug("credential rejected",
				"path", request.URL.Path,
				"error", err,
			)
			d.writeJSON(writer, http.StatusUnauthorized, errorBody{
				Error: "credential verification failed",
			})
			return
		}

		if err := scope.Require(caller, capability); err != nil {
			d.writeError(writer, err)
			return
		}

		handler(writer, request, caller)
	})
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(request *http.Request) (string, bool) {
	header := request.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// --- Task routes ---

func (d *Dispatch) handleSubmit(writer http.ResponseWriter, request *http.Request, caller scope.Identity) {
	var spec queue.Spec
	body := io.LimitReader(request.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&spec); err != nil {
		d.writeError(writer, apierror.Validationf("parsing request body: %v", err))
		return
	}

	// Fill unset fields from instruction hints. An explicit field
	// always wins over an inferred one.
	inferred := hints.Extract(spec.Instruction)
	if spec.Priority == 0 && inferred.Priority != 0 {
		spec.Priority = inferred.Priority
	}
	if spec.Repository == "" && inferred.Repository != "" {
		spec.Repository = inferred.Repository
	}

	receipt, err := d.store.Submit(request.Context(), spec, caller.Subject)
	if err != nil {
		d.writeError(writer, err)
		return
	}
	d.writeJSON(writer, http.StatusCreated, receipt)
}

// taskList is the response to GET /v1/tasks.
type taskList struct {
	Tasks []queue.Task `json:"tasks"`
	Count int          `json:"count"`
}

func (d *Dispatch) handleListTasks(writer http.ResponseWriter, request *http.Request, caller scope.Identity) {
	tasks, err := d.store.ListBySubmitter(request.Context(), caller.Subject)
	if err != nil {
		d.writeError(writer, err)
		return
	}
	d.writeJSON(writer, http.StatusOK, taskList{Tasks: tasks, Count: len(tasks)})
}

func (d *Dispatch) handleGetTask(writer http.ResponseWriter, request *http.Request, caller scope.Identity) {
	task, err := d.store.Get(request.Context(), request.PathValue("id"))
	if err != nil {
		d.writeError(writer, err)
		return
	}
	d.writeJSON(writer, http.StatusOK, task)
}

func (d *Dispatch) handleCancel(writer http.ResponseWriter, request *http.Request, caller scope.Identity) {
	task, err := d.store.Cancel(request.Context(), request.PathValue("id"), caller.Subject)
	if err != nil {
		d.writeError(writer, err)
		return
	}
	d.writeJSON(writer, http.StatusOK, task)
}

func (d *Dispatch) handleStats(writer http.ResponseWriter, request *http.Request, caller scope.Identity) {
	stats, err := d.store.Stats(request.Context())
	if err != nil {
		d.writeError(writer, err)
		return
	}
	d.writeJSON(writer, http.StatusOK, stats)
}

// --- Worker routes ---

// workerList is the response to GET /v1/workers.
type workerList struct {
	Workers []fleet.WorkerView `json:"workers"`
	Count   int                `json:"count"`
}

func (d *Dispatch) handleListWorkers(writer http.ResponseWriter, request *http.Request, caller scope.Identity) {
	workers, err := d.fleet.ListWorkers(request.Context())
	if err != nil {
		d.writeError(writer, err)
		return
	}
	d.writeJSON(writer, http.StatusOK, workerList{Workers: workers, Count: len(workers)})
}

func (d *Dispatch) handleGetWorker(writer http.ResponseWriter, request *http.Request, caller scope.Identity) {
	worker, err := d.fleet.GetWorker(request.Context(), request.PathValue("id"))
	if err != nil {
		d.writeError(writer, err)
		return
	}
	d.writeJSON(writer, http.StatusOK, worker)
}

// workerLog is the response to GET /v1/workers/{id}/log.
type workerLog struct {
	WorkerID  string `json:"worker_id"`
	Container string `json:"container,omitempty"`
	Log       string `json:"log"`
}

func (d *Dispatch) handleWorkerLog(writer http.ResponseWriter, request *http.Request, caller scope.Identity) {
	id := request.PathValue("id")
	container := request.URL.Query().Get("container")

	var tail int64
	if raw := request.URL.Query().Get("tail"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			d.writeError(writer, apierror.Validationf("tail must be a non-negative integer, got %q", raw))
			return
		}
		tail = parsed
	}

	log, err := d.fleet.WorkerLog(request.Context(), id, container, tail)
	if err != nil {
		d.writeError(writer, err)
		return
	}
	d.writeJSON(writer, http.StatusOK, workerLog{
		WorkerID:  id,
		Container: container,
		Log:       log,
	})
}

// --- Liveness ---

func (d *Dispatch) handleHealthz(writer http.ResponseWriter, request *http.Request) {
	uptime := d.clock.Now().Sub(d.startedAt)
	d.writeJSON(writer, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(uptime.Seconds()),
	})
}

// --- Response plumbing ---

// errorBody is the JSON error envelope. Kind is the taxonomy category;
// it is empty for 401 responses, which sit outside the taxonomy.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps a taxonomy error to its status code and JSON body.
func (d *Dispatch) writeError(writer http.ResponseWriter, err error) {
	d.writeJSON(writer, apierror.HTTPStatus(err), errorBody{
		Error: err.Error(),
		Kind:  string(apierror.KindOf(err)),
	})
}

func (d *Dispatch) writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		d.logger.Debug("writing response failed", "error", err)
	}
}
