// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/foreman-ai/foreman/lib/fleet"
	"github.com/foreman-ai/foreman/lib/queue"
)

// requestTimeout bounds every dispatch API call made by the CLI.
const requestTimeout = 30 * time.Second

// DispatchConfig holds the shared flags for reaching the dispatch
// API. It satisfies [FlagBinder], so params structs embed it and pick
// up --server and --token:
//
//	type showParams struct {
//	    cli.DispatchConfig
//	}
type DispatchConfig struct {
	ServerURL string
	Token     string
}

// AddFlags registers --server and --token on flagSet.
func (c *DispatchConfig) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.ServerURL, "server", "", "dispatch API base URL (defaults to $FOREMAN_URL)")
	flagSet.StringVar(&c.Token, "token", "", "bearer token for the dispatch API (defaults to $FOREMAN_TOKEN)")
}

// Connect resolves the flags against the FOREMAN_URL and
// FOREMAN_TOKEN environment variables (flags win) and returns a
// ready client.
func (c *DispatchConfig) Connect() (*Client, error) {
	serverURL := c.ServerURL
	if serverURL == "" {
		serverURL = os.Getenv("FOREMAN_URL")
	}
	if serverURL == "" {
		return nil, fmt.Errorf("dispatch server not configured: pass --server or set FOREMAN_URL")
	}
	token := c.Token
	if token == "" {
		token = os.Getenv("FOREMAN_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("no API credential: pass --token or set FOREMAN_TOKEN")
	}
	return NewClient(serverURL, token), nil
}

// Client is an authenticated dispatch API client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the dispatch API at serverURL.
func NewClient(serverURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(serverURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// APIError is a structured error response from dispatch. Error()
// returns the server's message verbatim, so command output reads
// "error: task tsk-x not found" rather than a wrapped chain.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Kind is the error taxonomy kind ("not_found", "authorization",
	// ...), empty for transport-level failures like a bad credential.
	Kind string
	// Message is the server's human-readable error string.
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// SubmitTask submits a task spec and returns the queue receipt.
func (c *Client) SubmitTask(ctx context.Context, spec queue.Spec) (*queue.Receipt, error) {
	var receipt queue.Receipt
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", spec, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Task fetches one task by ID.
func (c *Client) Task(ctx context.Context, id string) (*queue.Task, error) {
	var task queue.Task
	if err := c.do(ctx, http.MethodGet, "/v1/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Tasks lists the caller's tasks, newest first.
func (c *Client) Tasks(ctx context.Context) ([]queue.Task, error) {
	var list struct {
		Tasks []queue.Task `json:"tasks"`
		Count int          `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/tasks", nil, &list); err != nil {
		return nil, err
	}
	return list.Tasks, nil
}

// CancelTask cancels a pending task and returns its final record.
func (c *Client) CancelTask(ctx context.Context, id string) (*queue.Task, error) {
	var task queue.Task
	if err := c.do(ctx, http.MethodDelete, "/v1/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// QueueStats fetches the queue counters.
func (c *Client) QueueStats(ctx context.Context) (*queue.Stats, error) {
	var stats queue.Stats
	if err := c.do(ctx, http.MethodGet, "/v1/queue/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Workers lists the reconciled worker fleet.
func (c *Client) Workers(ctx context.Context) ([]fleet.WorkerView, error) {
	var list struct {
		Workers []fleet.WorkerView `json:"workers"`
		Count   int                `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/workers", nil, &list); err != nil {
		return nil, err
	}
	return list.Workers, nil
}

// Worker fetches one worker's reconciled view.
func (c *Client) Worker(ctx context.Context, id string) (*fleet.WorkerView, error) {
	var worker fleet.WorkerView
	if err := c.do(ctx, http.MethodGet, "/v1/workers/"+url.PathEscape(id), nil, &worker); err != nil {
		return nil, err
	}
	return &worker, nil
}

// WorkerLog fetches a worker's recent log output. container selects a
// container within the pod ("" for the default); tail limits the line
// count (0 for the server default).
func (c *Client) WorkerLog(ctx context.Context, id, container string, tail int) (string, error) {
	path := "/v1/workers/" + url.PathEscape(id) + "/log"
	query := url.Values{}
	if container != "" {
		query.Set("container", container)
	}
	if tail > 0 {
		query.Set("tail", strconv.Itoa(tail))
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var response struct {
		WorkerID  string `json:"worker_id"`
		Container string `json:"container"`
		Log       string `json:"log"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return "", err
	}
	return response.Log, nil
}

// do performs one API request. requestBody is JSON-encoded when
// non-nil; a 2xx response is decoded into out, anything else becomes
// an [APIError].
func (c *Client) do(ctx context.Context, method, path string, requestBody, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.token)
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("calling dispatch at %s: %w", c.baseURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return decodeError(response)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeError turns a non-2xx response into an APIError, falling back
// to the raw body when it is not the dispatch error shape.
func decodeError(response *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(response.Body, 64*1024))
	if err != nil {
		return &APIError{
			StatusCode: response.StatusCode,
			Message:    fmt.Sprintf("dispatch returned %s", response.Status),
		}
	}

	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if jsonErr := json.Unmarshal(raw, &body); jsonErr == nil && body.Error != "" {
		return &APIError{
			StatusCode: response.StatusCode,
			Kind:       body.Kind,
			Message:    body.Error,
		}
	}

	message := strings.TrimSpace(string(raw))
	if message == "" {
		message = fmt.Sprintf("dispatch returned %s", response.Status)
	}
	return &APIError{
		StatusCode: response.StatusCode,
		Message:    message,
	}
}
