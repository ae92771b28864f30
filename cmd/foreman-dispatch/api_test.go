// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/foreman-ai/foreman/lib/apierror"
	"github.com/foreman-ai/foreman/lib/clock"
	"github.com/foreman-ai/foreman/lib/fleet"
	"github.com/foreman-ai/foreman/lib/keycache"
	"github.com/foreman-ai/foreman/lib/queue"
	"github.com/foreman-ai/foreman/lib/scope"
)

const testKeyID = "key-1"

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// issuerStub serves one static JWKS document and can be flipped into
// failure mode to simulate an issuer outage.
type issuerStub struct {
	server *httptest.Server

	mu      sync.Mutex
	failing bool
	payload []byte
}

func newIssuerStub(t *testing.T, payload []byte) *issuerStub {
	t.Helper()
	stub := &issuerStub{payload: payload}
	stub.server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		if stub.failing {
			http.Error(writer, "issuer unavailable", http.StatusInternalServerError)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.Write(stub.payload)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (i *issuerStub) setFailing(failing bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failing = failing
}

func jwksPayload(t *testing.T, kid string, key *rsa.PublicKey) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	if err != nil {
		t.Fatalf("marshaling JWKS payload: %v", err)
	}
	return payload
}

// harness is a Dispatch wired end to end: real store against
// miniredis, real reconciler against a fake clientset, real verifier
// against a stub issuer, all on a fake clock.
type harness struct {
	dispatch *Dispatch
	api      *httptest.Server
	store    *queue.Store
	clk      *clock.FakeClock
	issuer   *issuerStub
	signing  *rsa.PrivateKey
}

func newHarness(t *testing.T, pods ...runtime.Object) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clk := clock.Fake(testEpoch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := queue.New(queue.Config{
		Client: client,
		Clock:  clk,
		Logger: logger,
	})
	reconciler := fleet.New(fleet.Config{
		Clientset: fake.NewSimpleClientset(pods...),
		States:    store,
		Logger:    logger,
	})

	signing, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating signing key: %v", err)
	}
	issuer := newIssuerStub(t, jwksPayload(t, testKeyID, &signing.PublicKey))
	cache := keycache.New(keycache.Config{
		JWKSURL: issuer.server.URL + "/.well-known/jwks.json",
		Clock:   clk,
		Logger:  logger,
	})

	dispatch := NewDispatch(DispatchConfig{
		Store:    store,
		Fleet:    reconciler,
		Verifier: keycache.NewVerifier(cache, clk),
		Clock:    clk,
		Logger:   logger,
	})
	api := httptest.NewServer(dispatch.Routes())
	t.Cleanup(api.Close)

	return &harness{
		dispatch: dispatch,
		api:      api,
		store:    store,
		clk:      clk,
		issuer:   issuer,
		signing:  signing,
	}
}

// token mints a credential signed by the harness issuer, valid for an
// hour of fake-clock time.
func (h *harness) token(t *testing.T, subject, scopes string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": testEpoch.Unix(),
		"exp": testEpoch.Add(time.Hour).Unix(),
	}
	if scopes != "" {
		claims["scope"] = scopes
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(h.signing)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func (h *harness) doRaw(t *testing.T, method, path, authorization string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	request, err := http.NewRequest(method, h.api.URL+path, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if authorization != "" {
		request.Header.Set("Authorization", authorization)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer response.Body.Close()
	payload, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return response, payload
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	return h.doRaw(t, method, path, "Bearer "+token, reader)
}

func decodeBody(t *testing.T, payload []byte, target any) {
	t.Helper()
	if err := json.Unmarshal(payload, target); err != nil {
		t.Fatalf("decoding response %q: %v", payload, err)
	}
}

func agentPod(name string, ready bool) *corev1.Pod {
	condition := corev1.ConditionFalse
	if ready {
		condition = corev1.ConditionTrue
	}
	started := metav1.NewTime(testEpoch.Add(-5 * time.Minute))
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: fleet.DefaultNamespace,
			Labels:    map[string]string{"app.kubernetes.io/name": "foreman-agent"},
		},
		Spec: corev1.PodSpec{NodeName: "node-a"},
		Status: corev1.PodStatus{
			Phase:     corev1.PodRunning,
			PodIP:     "10.42.0.17",
			StartTime: &started,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: condition},
			},
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "agent", Ready: ready},
			},
		},
	}
}

func findWorker(t *testing.T, workers []fleet.WorkerView, id string) fleet.WorkerView {
	t.Helper()
	for _, worker := range workers {
		if worker.ID == id {
			return worker
		}
	}
	t.Fatalf("worker %s not in listing", id)
	return fleet.WorkerView{}
}

func TestSubmitReturnsReceipt(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, "alice", scope.Control)

	response, payload := h.do(t, http.MethodPost, "/v1/tasks", token, queue.Spec{
		Instruction: "fix the login bug",
		Repository:  "janua",
		Priority:    1,
	})
	if got, want := response.StatusCode, http.StatusCreated; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}

	var receipt queue.Receipt
	decodeBody(t, payload, &receipt)
	if !strings.HasPrefix(receipt.ID, "tsk-") {
		t.Errorf("ID = %q, want tsk- prefix", receipt.ID)
	}
	if got, want := receipt.Status, queue.StatusPending; got != want {
		t.Errorf("Status = %q, want %q", got, want)
	}
	if got, want := receipt.Position, int64(0); got != want {
		t.Errorf("Position = %d, want %d", got, want)
	}
	if got, want := receipt.QueueDepth, int64(1); got != want {
		t.Errorf("QueueDepth = %d, want %d", got, want)
	}
	if got, want := receipt.EstimatedWaitSeconds, int64(300); got != want {
		t.Errorf("EstimatedWaitSeconds = %d, want %d", got, want)
	}
}

func TestSubmitAppliesInstructionHints(t *testing.T) {
	t.Run("fills_unset_fields", func(t *testing.T) {
		h := newHarness(t)
		token := h.token(t, "alice", scope.View+" "+scope.Control)

		_, payload := h.do(t, http.MethodPost, "/v1/tasks", token, queue.Spec{
			Instruction: "urgent: fix the memory leak in the janua repo",
		})
		var receipt queue.Receipt
		decodeBody(t, payload, &receipt)

		response, payload := h.do(t, http.MethodGet, "/v1/tasks/"+receipt.ID, token, nil)
		if got, want := response.StatusCode, http.StatusOK; got != want {
			t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
		}
		var task queue.Task
		decodeBody(t, payload, &task)
		if got, want := task.Priority, 1; got != want {
			t.Errorf("Priority = %d, want %d", got, want)
		}
		if got, want := task.Repository, "janua"; got != want {
			t.Errorf("Repository = %q, want %q", got, want)
		}
	})

	t.Run("explicit_fields_win", func(t *testing.T) {
		h := newHarness(t)
		token := h.token(t, "alice", scope.View+" "+scope.Control)

		_, payload := h.do(t, http.MethodPost, "/v1/tasks", token, queue.Spec{
			Instruction: "urgent: fix the memory leak in the janua repo",
			Repository:  "hearth",
			Priority:    4,
		})
		var receipt queue.Receipt
		decodeBody(t, payload, &receipt)

		_, payload = h.do(t, http.MethodGet, "/v1/tasks/"+receipt.ID, token, nil)
		var task queue.Task
		decodeBody(t, payload, &task)
		if got, want := task.Priority, 4; got != want {
			t.Errorf("Priority = %d, want %d", got, want)
		}
		if got, want := task.Repository, "hearth"; got != want {
			t.Errorf("Repository = %q, want %q", got, want)
		}
	})
}

func TestSubmitRejectsInvalidSpecs(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, "alice", scope.Control)

	tests := []struct {
		name string
		spec queue.Spec
	}{
		{
			name: "missing_instruction",
			spec: queue.Spec{Repository: "janua"},
		},
		{
			name: "missing_repository",
			spec: queue.Spec{Instruction: "fix the build"},
		},
		{
			name: "priority_out_of_range",
			spec: queue.Spec{Instruction: "fix the build", Repository: "janua", Priority: 9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response, payload := h.do(t, http.MethodPost, "/v1/tasks", token, tt.spec)
			if got, want := response.StatusCode, http.StatusBadRequest; got != want {
				t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
			}
			var failure errorBody
			decodeBody(t, payload, &failure)
			if got, want := failure.Kind, string(apierror.Validation); got != want {
				t.Errorf("Kind = %q, want %q", got, want)
			}
		})
	}
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, "alice", scope.Control)

	response, payload := h.doRaw(t, http.MethodPost, "/v1/tasks", "Bearer "+token, strings.NewReader("{not json"))
	if got, want := response.StatusCode, http.StatusBadRequest; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	var failure errorBody
	decodeBody(t, payload, &failure)
	if got, want := failure.Kind, string(apierror.Validation); got != want {
		t.Errorf("Kind = %q, want %q", got, want)
	}
}

// TestCancelLifecycle walks a submission through a denied foreign
// cancel and a successful owner cancel.
func TestCancelLifecycle(t *testing.T) {
	h := newHarness(t)
	alice := h.token(t, "alice", scope.View+" "+scope.Control)
	bob := h.token(t, "bob", scope.View+" "+scope.Control)

	_, payload := h.do(t, http.MethodPost, "/v1/tasks", alice, queue.Spec{
		Instruction: "fix the login bug",
		Repository:  "janua",
		Priority:    1,
	})
	var receipt queue.Receipt
	decodeBody(t, payload, &receipt)

	_, payload = h.do(t, http.MethodGet, "/v1/queue/stats", alice, nil)
	var stats queue.Stats
	decodeBody(t, payload, &stats)
	if got, want := stats.Pending, int64(1); got != want {
		t.Fatalf("Pending = %d, want %d", got, want)
	}

	// A different submitter cannot cancel the task.
	response, payload := h.do(t, http.MethodDelete, "/v1/tasks/"+receipt.ID, bob, nil)
	if got, want := response.StatusCode, http.StatusForbidden; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	var failure errorBody
	decodeBody(t, payload, &failure)
	if got, want := failure.Kind, string(apierror.Authorization); got != want {
		t.Errorf("Kind = %q, want %q", got, want)
	}

	// The denied cancel left the task untouched.
	_, payload = h.do(t, http.MethodGet, "/v1/tasks/"+receipt.ID, bob, nil)
	var task queue.Task
	decodeBody(t, payload, &task)
	if got, want := task.Status, queue.StatusPending; got != want {
		t.Fatalf("Status = %q, want %q", got, want)
	}

	// The submitter cancels her own task.
	response, payload = h.do(t, http.MethodDelete, "/v1/tasks/"+receipt.ID, alice, nil)
	if got, want := response.StatusCode, http.StatusOK; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	decodeBody(t, payload, &task)
	if got, want := task.Status, queue.StatusCancelled; got != want {
		t.Errorf("Status = %q, want %q", got, want)
	}
	if got, want := task.CancelledBy, "alice"; got != want {
		t.Errorf("CancelledBy = %q, want %q", got, want)
	}

	_, payload = h.do(t, http.MethodGet, "/v1/queue/stats", alice, nil)
	decodeBody(t, payload, &stats)
	if got, want := stats.Pending, int64(0); got != want {
		t.Errorf("Pending = %d, want %d", got, want)
	}

	// Cancelling again conflicts: the task is no longer pending.
	response, payload = h.do(t, http.MethodDelete, "/v1/tasks/"+receipt.ID, alice, nil)
	if got, want := response.StatusCode, http.StatusConflict; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	decodeBody(t, payload, &failure)
	if got, want := failure.Kind, string(apierror.InvalidState); got != want {
		t.Errorf("Kind = %q, want %q", got, want)
	}
}

func TestListTasksScopedToSubmitter(t *testing.T) {
	h := newHarness(t)
	alice := h.token(t, "alice", scope.View+" "+scope.Control)
	bob := h.token(t, "bob", scope.View+" "+scope.Control)

	for _, instruction := range []string{"first task", "second task"} {
		response, payload := h.do(t, http.MethodPost, "/v1/tasks", alice, queue.Spec{
			Instruction: instruction,
			Repository:  "janua",
		})
		if got, want := response.StatusCode, http.StatusCreated; got != want {
			t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
		}
		h.clk.Advance(time.Second)
	}
	h.do(t, http.MethodPost, "/v1/tasks", bob, queue.Spec{
		Instruction: "bob's task",
		Repository:  "hearth",
	})

	_, payload := h.do(t, http.MethodGet, "/v1/tasks", alice, nil)
	var list taskList
	decodeBody(t, payload, &list)
	if got, want := list.Count, 2; got != want {
		t.Fatalf("Count = %d, want %d", got, want)
	}
	if got, want := list.Tasks[0].Instruction, "second task"; got != want {
		t.Errorf("Tasks[0].Instruction = %q, want %q (newest first)", got, want)
	}
	if got, want := list.Tasks[1].Instruction, "first task"; got != want {
		t.Errorf("Tasks[1].Instruction = %q, want %q", got, want)
	}

	_, payload = h.do(t, http.MethodGet, "/v1/tasks", bob, nil)
	decodeBody(t, payload, &list)
	if got, want := list.Count, 1; got != want {
		t.Fatalf("Count = %d, want %d", got, want)
	}
	if got, want := list.Tasks[0].Instruction, "bob's task"; got != want {
		t.Errorf("Tasks[0].Instruction = %q, want %q", got, want)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, "alice", scope.View)

	response, payload := h.do(t, http.MethodGet, "/v1/tasks/tsk-0000000000000000000000000000", token, nil)
	if got, want := response.StatusCode, http.StatusNotFound; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	var failure errorBody
	decodeBody(t, payload, &failure)
	if got, want := failure.Kind, string(apierror.NotFound); got != want {
		t.Errorf("Kind = %q, want %q", got, want)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name          string
		authorization string
		wantError     string
	}{
		{
			name:      "no_header",
			wantError: "missing bearer credential",
		},
		{
			name:          "wrong_scheme",
			authorization: "Basic abc123",
			wantError:     "missing bearer credential",
		},
		{
			name:          "empty_token",
			authorization: "Bearer ",
			wantError:     "missing bearer credential",
		},
		{
			name:          "garbage_token",
			authorization: "Bearer not-a-jwt",
			wantError:     "credential verification failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response, payload := h.doRaw(t, http.MethodGet, "/v1/tasks", tt.authorization, nil)
			if got, want := response.StatusCode, http.StatusUnauthorized; got != want {
				t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
			}
			var failure errorBody
			decodeBody(t, payload, &failure)
			if got, want := failure.Error, tt.wantError; got != want {
				t.Errorf("Error = %q, want %q", got, want)
			}
			if failure.Kind != "" {
				t.Errorf("Kind = %q, want empty: 401 sits outside the error taxonomy", failure.Kind)
			}
		})
	}
}

func TestScopeEnforcement(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		scopes string
		method string
		path   string
	}{
		{name: "view_cannot_submit", scopes: scope.View, method: http.MethodPost, path: "/v1/tasks"},
		{name: "view_cannot_cancel", scopes: scope.View, method: http.MethodDelete, path: "/v1/tasks/tsk-x"},
		{name: "control_cannot_list", scopes: scope.Control, method: http.MethodGet, path: "/v1/tasks"},
		{name: "no_scopes_cannot_read_stats", scopes: "", method: http.MethodGet, path: "/v1/queue/stats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := h.token(t, "mallory", tt.scopes)
			response, payload := h.do(t, tt.method, tt.path, token, nil)
			if got, want := response.StatusCode, http.StatusForbidden; got != want {
				t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
			}
			var failure errorBody
			decodeBody(t, payload, &failure)
			if got, want := failure.Kind, string(apierror.Authorization); got != want {
				t.Errorf("Kind = %q, want %q", got, want)
			}
		})
	}
}

func TestHealthzRequiresNoCredential(t *testing.T) {
	h := newHarness(t)

	response, payload := h.doRaw(t, http.MethodGet, "/healthz", "", nil)
	if got, want := response.StatusCode, http.StatusOK; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	var health map[string]any
	decodeBody(t, payload, &health)
	if got, want := health["status"], "ok"; got != want {
		t.Errorf("status = %v, want %v", got, want)
	}
}

func TestQueueStatsEndpoint(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, "alice", scope.View+" "+scope.Control)

	for _, instruction := range []string{"first task", "second task"} {
		h.do(t, http.MethodPost, "/v1/tasks", token, queue.Spec{
			Instruction: instruction,
			Repository:  "janua",
		})
	}
	claimed, err := h.store.Claim(context.Background(), "foreman-agent-0")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("Claim returned no task from a non-empty queue")
	}

	_, payload := h.do(t, http.MethodGet, "/v1/queue/stats", token, nil)
	var stats queue.Stats
	decodeBody(t, payload, &stats)
	want := queue.Stats{Pending: 1, Active: 1, Total: 2}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestListWorkersJoinsAgentState(t *testing.T) {
	h := newHarness(t, agentPod("foreman-agent-0", true), agentPod("foreman-agent-1", false))

	err := h.store.WriteAgentState(context.Background(), queue.AgentState{
		ID:        "foreman-agent-0",
		Status:    queue.AgentWorking,
		TaskID:    "tsk-01abc",
		Workspace: "/workspace/tsk-01abc",
		Heartbeat: testEpoch.Format(time.RFC3339),
		Completed: 4,
		Failed:    1,
	})
	if err != nil {
		t.Fatalf("WriteAgentState: %v", err)
	}

	token := h.token(t, "ops", scope.View)
	response, payload := h.do(t, http.MethodGet, "/v1/workers", token, nil)
	if got, want := response.StatusCode, http.StatusOK; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}

	var list workerList
	decodeBody(t, payload, &list)
	if got, want := list.Count, 2; got != want {
		t.Fatalf("Count = %d, want %d", got, want)
	}

	working := findWorker(t, list.Workers, "foreman-agent-0")
	if got, want := working.Status, queue.AgentWorking; got != want {
		t.Errorf("Status = %q, want %q", got, want)
	}
	if got, want := working.TaskID, "tsk-01abc"; got != want {
		t.Errorf("TaskID = %q, want %q", got, want)
	}
	if !working.Ready {
		t.Error("worker foreman-agent-0 not reported ready")
	}

	silent := findWorker(t, list.Workers, "foreman-agent-1")
	if got, want := silent.Status, queue.AgentUnknown; got != want {
		t.Errorf("Status = %q, want %q (never checked in)", got, want)
	}
	if silent.Ready {
		t.Error("worker foreman-agent-1 reported ready")
	}
}

func TestGetWorker(t *testing.T) {
	h := newHarness(t, agentPod("foreman-agent-0", true))
	token := h.token(t, "ops", scope.View)

	response, payload := h.do(t, http.MethodGet, "/v1/workers/foreman-agent-0", token, nil)
	if got, want := response.StatusCode, http.StatusOK; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	var worker fleet.WorkerView
	decodeBody(t, payload, &worker)
	if got, want := worker.ID, "foreman-agent-0"; got != want {
		t.Errorf("ID = %q, want %q", got, want)
	}
	if got, want := worker.Phase, "Running"; got != want {
		t.Errorf("Phase = %q, want %q", got, want)
	}

	response, payload = h.do(t, http.MethodGet, "/v1/workers/ghost", token, nil)
	if got, want := response.StatusCode, http.StatusNotFound; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	var failure errorBody
	decodeBody(t, payload, &failure)
	if got, want := failure.Kind, string(apierror.NotFound); got != want {
		t.Errorf("Kind = %q, want %q", got, want)
	}
}

func TestWorkerLogEndpoint(t *testing.T) {
	h := newHarness(t, agentPod("foreman-agent-0", true))
	token := h.token(t, "ops", scope.View)

	response, payload := h.do(t, http.MethodGet, "/v1/workers/foreman-agent-0/log?container=agent&tail=50", token, nil)
	if got, want := response.StatusCode, http.StatusOK; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	var log workerLog
	decodeBody(t, payload, &log)
	if got, want := log.WorkerID, "foreman-agent-0"; got != want {
		t.Errorf("WorkerID = %q, want %q", got, want)
	}
	if got, want := log.Container, "agent"; got != want {
		t.Errorf("Container = %q, want %q", got, want)
	}
	// The fake clientset serves a fixed log body.
	if got, want := log.Log, "fake logs"; got != want {
		t.Errorf("Log = %q, want %q", got, want)
	}

	response, payload = h.do(t, http.MethodGet, "/v1/workers/foreman-agent-0/log?tail=abc", token, nil)
	if got, want := response.StatusCode, http.StatusBadRequest; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	var failure errorBody
	decodeBody(t, payload, &failure)
	if got, want := failure.Kind, string(apierror.Validation); got != want {
		t.Errorf("Kind = %q, want %q", got, want)
	}
}

// TestIssuerOutage distinguishes "your token is bad" from "no token
// can be checked": with no cached keys and a failing issuer, requests
// surface 503, not 401.
func TestIssuerOutage(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, "alice", scope.View)
	h.issuer.setFailing(true)

	response, payload := h.do(t, http.MethodGet, "/v1/tasks", token, nil)
	if got, want := response.StatusCode, http.StatusServiceUnavailable; got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, payload)
	}
	var failure errorBody
	decodeBody(t, payload, &failure)
	if got, want := failure.Kind, string(apierror.KeyFetch); got != want {
		t.Errorf("Kind = %q, want %q", got, want)
	}
}
