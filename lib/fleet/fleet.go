// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/foreman-ai/foreman/lib/apierror"
	"github.com/foreman-ai/foreman/lib/queue"
)

// AgentLabelSelector identifies agent pods. Fixed, not configurable:
// the agent deployment and the reconciler must agree on it, and a
// config knob would only let them disagree.
const AgentLabelSelector = "app.kubernetes.io/name=foreman-agent"

// DefaultNamespace is where agent pods run unless configured
// otherwise.
const DefaultNamespace = "foreman"

// AgentStateReader is the read-only view of agent self-reported state
// the reconciler joins against. *queue.Store implements it.
type AgentStateReader interface {
	ReadAgentState(ctx context.Context, agentID string) (*queue.AgentState, bool, error)
}

// WorkerView is the reconciled picture of one worker: orchestrator
// fields first, self-reported fields after. Status is
// queue.AgentUnknown when the agent has never checked in or its state
// could not be read.
type WorkerView struct {
	// ID is the worker identifier (the pod name).
	ID string `json:"id"`

	// Phase is the orchestrator-reported pod phase.
	Phase string `json:"phase"`

	// Ready reflects the pod's Ready condition. Independent of the
	// self-reported Status: the two legitimately disagree while an
	// agent is past scheduling but still inside its own startup.
	Ready bool `json:"ready"`

	// Address is the pod IP, Host the node it runs on.
	Address string `json:"address,omitempty"`
	Host    string `json:"host,omitempty"`

	// StartedAt is the orchestrator's pod start time.
	StartedAt string `json:"started_at,omitempty"`

	// Containers is per-container health.
	Containers []ContainerHealth `json:"containers,omitempty"`

	// Self-reported fields, from the agent's state hash.
	Status    string `json:"status"`
	TaskID    string `json:"task_id,omitempty"`
	Workspace string `json:"workspace,omitempty"`
	Heartbeat string `json:"heartbeat,omitempty"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}

// ContainerHealth is one container's readiness and restart count.
type ContainerHealth struct {
	Name     string `json:"name"`
	Ready    bool   `json:"ready"`
	Restarts int32  `json:"restarts"`
}

// Config configures a Reconciler.
type Config struct {
	// Clientset is the Kubernetes API client. Required.
	Clientset kubernetes.Interface

	// Namespace is where agent pods live. Defaults to
	// DefaultNamespace.
	Namespace string

	// States reads agent self-reported state. Required.
	States AgentStateReader

	// Logger is required.
	Logger *slog.Logger
}

// Reconciler joins orchestrator pod state with agent self-reported
// state. Pure read-time join: it never writes either side.
type Reconciler struct {
	clientset kubernetes.Interface
	namespace string
	states    AgentStateReader
	logger    *slog.Logger
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.Clientset == nil {
		panic("fleet: Clientset is required")
	}
	if cfg.States == nil {
		panic("fleet: States is required")
	}
	if cfg.Logger == nil {
		panic("fleet: Logger is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	return &Reconciler{
		clientset: cfg.Clientset,
		namespace: cfg.Namespace,
		states:    cfg.States,
		logger:    cfg.Logger,
	}
}

// ListWorkers returns the reconciled view of every agent pod. Failure
// to reach the orchestrator fails the whole listing; failure to read
// one agent's self-report degrades only that entry.
func (r *Reconciler) ListWorkers(ctx context.Context) ([]WorkerView, error) {
	pods, err := r.clientset.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: AgentLabelSelector,
	})
	if err != nil {
		return nil, apierror.Discoveryf(err, "listing agent pods in namespace %s", r.namespace)
	}

	// One independent state read per pod. Each write goes to its own
	// slice slot, so the only coordination needed is the wait.
	views := make([]WorkerView, len(pods.Items))
	var stateReads sync.WaitGroup
	for i := range pods.Items {
		stateReads.Add(1)
		go func(i int) {
			defer stateReads.Done()
			views[i] = r.reconcile(ctx, &pods.Items[i])
		}(i)
	}
	stateReads.Wait()

	return views, nil
}

// GetWorker returns the reconciled view of one agent pod.
func (r *Reconciler) GetWorker(ctx context.Context, id string) (*WorkerView, error) {
	pod, err := r.clientset.CoreV1().Pods(r.namespace).Get(ctx, id, metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return nil, apierror.NotFoundf("worker %s not found", id)
		}
		return nil, apierror.Discoveryf(err, "reading agent pod %s", id)
	}
	view := r.reconcile(ctx, pod)
	return &view, nil
}

// WorkerLog fetches a log tail from one container of a worker pod. An
// empty container name selects the pod's default container; tailLines
// of zero or less fetches the full log.
func (r *Reconciler) WorkerLog(ctx context.Context, id, container string, tailLines int64) (string, error) {
	opts := &corev1.PodLogOptions{Container: container}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}

	stream, err := r.clientset.CoreV1().Pods(r.namespace).GetLogs(id, opts).Stream(ctx)
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return "", apierror.NotFoundf("worker %s not found", id)
		}
		return "", apierror.Discoveryf(err, "streaming logs for worker %s", id)
	}
	defer stream.Close()

	log, err := io.ReadAll(stream)
	if err != nil {
		return "", apierror.Discoveryf(err, "reading logs for worker %s", id)
	}
	return string(log), nil
}

// reconcile joins one pod with its self-reported state.
func (r *Reconciler) reconcile(ctx context.Context, pod *corev1.Pod) WorkerView {
	view := WorkerView{
		ID:      pod.Name,
		Phase:   string(pod.Status.Phase),
		Ready:   podReady(pod),
		Address: pod.Status.PodIP,
		Host:    pod.Spec.NodeName,
		Status:  queue.AgentUnknown,
	}
	if pod.Status.StartTime != nil {
		view.StartedAt = pod.Status.StartTime.UTC().Format(time.RFC3339)
	}
	for _, cs := range pod.Status.ContainerStatuses {
		view.Containers = append(view.Containers, ContainerHealth{
			Name:     cs.Name,
			Ready:    cs.Ready,
			Restarts: cs.RestartCount,
		})
	}

	state, ok, err := r.states.ReadAgentState(ctx, pod.Name)
	if err != nil {
		// Self-reported state is the secondary source; losing it
		// degrades this entry to the unknown defaults.
		r.logger.Warn("agent state read failed", "worker_id", pod.Name, "error", err)
		return view
	}
	if !ok {
		// Scheduled but never checked in. A valid state, not a fault.
		return view
	}

	view.Status = state.Status
	view.TaskID = state.TaskID
	view.Workspace = state.Workspace
	view.Heartbeat = state.Heartbeat
	view.Completed = state.Completed
	view.Failed = state.Failed
	return view
}

// podReady reports whether the pod's Ready condition is true.
func podReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
