// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runner is the core of the orchestration engine: it executes one
// workflow end to end, layer by layer, with per-task retry, timeout, and
// idempotency, publishing every status transition to the event bus.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skeinhq/skein/internal/dag"
	"github.com/skeinhq/skein/internal/domain"
	"github.com/skeinhq/skein/internal/dynamictask"
	"github.com/skeinhq/skein/internal/eventbus"
	"github.com/skeinhq/skein/internal/idempotency"
	"github.com/skeinhq/skein/internal/interpolate"
	"github.com/skeinhq/skein/internal/retry"
	skeinerrors "github.com/skeinhq/skein/pkg/errors"
)

// ActionTypeDynamicMap and ActionTypeDynamicReduce dispatch a task's
// payload through internal/dynamictask instead of a single registered
// handler: "items" is fanned out (map) or folded (reduce) through the
// handler named by "item_action_type", interpolating "task_template" per
// item. See internal/dynamictask for the fan-out semantics.
const (
	ActionTypeDynamicMap    = "dynamic_map"
	ActionTypeDynamicReduce = "dynamic_reduce"
)

// Repository is the persistence port the runner needs: load and save
// workflows and tasks, and append execution history.
type Repository interface {
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error
	SaveTask(ctx context.Context, task *domain.Task) error
	ListRunningWorkflows(ctx context.Context) ([]*domain.Workflow, error)
	CreateExecution(ctx context.Context, execution *domain.WorkflowExecution) error
	UpdateExecution(ctx context.Context, execution *domain.WorkflowExecution) error
	CreateTaskExecution(ctx context.Context, execution *domain.TaskExecution) error
}

// MetricsCollector defines the metrics the runner emits. internal/metrics.Collector
// satisfies this interface; it is defined here, narrow and runner-owned, so the
// runner never imports a concrete metrics backend.
type MetricsCollector interface {
	RecordWorkflowCompletion(name, status string, duration time.Duration)
	RecordTaskCompletion(name, status string, duration time.Duration)
	RecordTaskRetry(name string)
}

// ActionHandler executes one task's action payload and returns its
// structured result. Handlers must be re-entrant: the same handler may be
// invoked multiple times for the same task across retries.
type ActionHandler func(ctx context.Context, payload map[string]any) (map[string]any, error)

// EchoHandler is the permissive fallback used for any action_type without a
// registered handler: it returns the payload unchanged. Unknown action
// types never fail a task by themselves.
func EchoHandler(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return payload, nil
}

// Registry maps action_type to the handler that executes it.
type Registry struct {
	handlers map[string]ActionHandler
}

// NewRegistry creates an empty action handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]ActionHandler)}
}

// Register binds actionType to handler, replacing any existing binding.
func (r *Registry) Register(actionType string, handler ActionHandler) {
	r.handlers[actionType] = handler
}

// Lookup returns the handler bound to actionType, or EchoHandler if none is
// registered.
func (r *Registry) Lookup(actionType string) ActionHandler {
	if h, ok := r.handlers[actionType]; ok {
		return h
	}
	return EchoHandler
}

// Runner executes workflows: DAG layering, per-task retry/timeout/
// idempotency, lifecycle polling between layers, and status broadcast.
type Runner struct {
	repo        Repository
	bus         *eventbus.Bus
	registry    *Registry
	idempotency *idempotency.Checker
	metrics     MetricsCollector
	tracer      trace.Tracer
	interp      *interpolate.Interpolator
	logger      *slog.Logger
}

// Option configures optional Runner collaborators.
type Option func(*Runner)

// WithMetrics attaches a metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer attaches an OpenTelemetry tracer; each task execution becomes a
// child span. A nil tracer (the default) disables tracing.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithIdempotency attaches the idempotency checker used to dedup task
// executions. Without one, every task executes unconditionally.
func WithIdempotency(checker *idempotency.Checker) Option {
	return func(r *Runner) { r.idempotency = checker }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithInterpolator attaches the ${scope:key} variable/secret resolver.
// Without one, action payloads are dispatched verbatim and any
// placeholder syntax reaches the handler unresolved.
func WithInterpolator(interp *interpolate.Interpolator) Option {
	return func(r *Runner) { r.interp = interp }
}

// New creates a Runner bound to repo, bus, and an action handler registry.
func New(repo Repository, bus *eventbus.Bus, registry *Registry, opts ...Option) *Runner {
	if registry == nil {
		registry = NewRegistry()
	}
	r := &Runner{
		repo:     repo,
		bus:      bus,
		registry: registry,
		logger:   slog.Default().With(slog.String("component", "runner")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes workflowID end to end: it loads the workflow, transitions it
// to running, computes DAG layers, and runs them in order. A layer does not
// start if the workflow has been paused or cancelled since the previous
// layer completed. Already-completed tasks (from a prior partial run that
// was paused and resumed) are not re-executed.
func (r *Runner) Run(ctx context.Context, workflowID uuid.UUID, trigger domain.ExecutionTrigger) error {
	workflow, err := r.repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if workflow == nil {
		return &skeinerrors.NotFoundError{Resource: "workflow", ID: workflowID.String()}
	}

	logger := r.logger.With(slog.String("workflow_id", workflowID.String()), slog.String("workflow", workflow.Name))

	workflow.Status = domain.WorkflowRunning
	workflow.UpdatedAt = time.Now()
	if err := r.repo.SaveWorkflow(ctx, workflow); err != nil {
		return err
	}
	r.bus.PublishWorkflowStatus(ctx, workflowID.String(), string(domain.WorkflowRunning), nil)

	execution := &domain.WorkflowExecution{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		Trigger:    trigger,
		Status:     domain.WorkflowRunning,
		StartedAt:  time.Now(),
	}
	if err := r.repo.CreateExecution(ctx, execution); err != nil {
		logger.Warn("recording execution start failed", slog.Any("error", err))
	}

	start := time.Now()
	status, runErr := r.runLayers(ctx, workflow, logger)

	workflow.Status = status
	workflow.UpdatedAt = time.Now()
	if status.IsTerminal() {
		workflow.PausedAt = nil
	}
	if err := r.repo.SaveWorkflow(ctx, workflow); err != nil {
		logger.Error("saving final workflow status failed", slog.Any("error", err))
	}

	extra := map[string]any{}
	if runErr != nil {
		extra["error"] = runErr.Error()
	}
	r.bus.PublishWorkflowStatus(ctx, workflowID.String(), string(status), extra)

	ended := time.Now()
	execution.Status = status
	execution.EndedAt = &ended
	if runErr != nil {
		execution.Error = runErr.Error()
	}
	if err := r.repo.UpdateExecution(ctx, execution); err != nil {
		logger.Warn("recording execution end failed", slog.Any("error", err))
	}

	if r.metrics != nil && status.IsTerminal() {
		r.metrics.RecordWorkflowCompletion(workflow.Name, string(status), time.Since(start))
	}

	return runErr
}

// runLayers computes DAG layers and executes them in order, returning the
// workflow's terminal (or suspended) status and, on failure, the triggering
// error.
func (r *Runner) runLayers(ctx context.Context, workflow *domain.Workflow, logger *slog.Logger) (domain.WorkflowStatus, error) {
	nodes := make([]dag.Node, 0, len(workflow.Tasks))
	byName := make(map[string]*domain.Task, len(workflow.Tasks))
	for _, task := range workflow.Tasks {
		nodes = append(nodes, dag.Node{Name: task.Name, Dependencies: task.Dependencies})
		byName[task.Name] = task
	}

	layers, err := dag.Layers(nodes)
	if err != nil {
		return domain.WorkflowFailed, err
	}

	for _, layer := range layers {
		current, err := r.repo.GetWorkflow(ctx, workflow.ID)
		if err != nil {
			return domain.WorkflowFailed, err
		}
		if current == nil {
			return domain.WorkflowFailed, &skeinerrors.NotFoundError{Resource: "workflow", ID: workflow.ID.String()}
		}
		if current.Status == domain.WorkflowPaused || current.Status == domain.WorkflowCancelled {
			logger.Info("halting before layer, workflow suspended", slog.String("status", string(current.Status)))
			return current.Status, nil
		}

		pending := make([]*domain.Task, 0, len(layer))
		for _, name := range layer {
			task := byName[name]
			if task.Status == domain.TaskCompleted {
				continue
			}
			pending = append(pending, task)
		}
		if len(pending) == 0 {
			continue
		}

		if err := r.runLayer(ctx, workflow, pending, logger); err != nil {
			return domain.WorkflowFailed, err
		}
	}

	return domain.WorkflowCompleted, nil
}

// runLayer launches every task in pending concurrently and waits for all of
// them to settle. Already-running peers are allowed to finish even after one
// task in the layer fails terminally; the first terminal failure observed is
// returned once the whole layer has settled.
func (r *Runner) runLayer(ctx context.Context, workflow *domain.Workflow, pending []*domain.Task, logger *slog.Logger) error {
	type outcome struct {
		task *domain.Task
		err  error
	}

	results := make(chan outcome, len(pending))
	for _, task := range pending {
		go func(task *domain.Task) {
			err := r.executeTaskWithRetry(ctx, workflow, task, logger)
			results <- outcome{task: task, err: err}
		}(task)
	}

	var failure error
	for range pending {
		out := <-results
		if out.err != nil && failure == nil {
			failure = out.err
		}
	}
	return failure
}

// executeTaskWithRetry runs task's action under its retry policy (or the
// package default), retrying on timeout or handler error up to the policy's
// budget, and persisting/broadcasting every status transition.
func (r *Runner) executeTaskWithRetry(ctx context.Context, workflow *domain.Workflow, task *domain.Task, logger *slog.Logger) error {
	policy := retry.Default()
	if task.RetryPolicy != nil {
		policy = retry.Policy{
			MaxRetries:        task.RetryPolicy.MaxRetries,
			InitialDelay:      durationFromSeconds(task.RetryPolicy.InitialDelay),
			MaxDelay:          durationFromSeconds(task.RetryPolicy.MaxDelay),
			BackoffMultiplier: task.RetryPolicy.BackoffMultiplier,
			Jitter:            task.RetryPolicy.Jitter,
		}
	}

	taskLogger := logger.With(slog.String("task", task.Name), slog.String("action_type", task.ActionType))

	var idempotencyKey string
	if r.idempotency != nil {
		key, err := idempotency.GenerateKey(workflow.ID, task.Name, task.ActionPayload)
		if err != nil {
			return r.finishTask(ctx, task, domain.TaskFailed, nil, err, taskLogger)
		}
		idempotencyKey = key

		duplicate, cached, err := r.idempotency.Check(ctx, workflow.ID, task.Name, idempotencyKey)
		if err != nil {
			return r.finishTask(ctx, task, domain.TaskFailed, nil, err, taskLogger)
		}
		if duplicate {
			if r.metrics != nil {
				r.metrics.RecordTaskCompletion(task.Name, string(domain.TaskCompleted), 0)
			}
			return r.finishTask(ctx, task, domain.TaskCompleted, cached.Result, nil, taskLogger)
		}
	}

	var record *domain.IdempotencyKey
	if r.idempotency != nil {
		rec, err := r.idempotency.Begin(ctx, workflow.ID, task.Name, idempotencyKey, task.ActionPayload)
		if err != nil {
			taskLogger.Warn("beginning idempotency record failed", slog.Any("error", err))
		} else {
			record = rec
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		task.RetryCount = attempt
		task.Status = domain.TaskRunning
		if err := r.repo.SaveTask(ctx, task); err != nil {
			taskLogger.Warn("saving task status failed", slog.Any("error", err))
		}
		r.bus.PublishTaskStatus(ctx, task.ID.String(), task.Name, string(domain.TaskRunning), nil)

		start := time.Now()
		result, err := r.invoke(ctx, task)
		duration := time.Since(start)

		if err == nil {
			task.Status = domain.TaskCompleted
			task.Result = result
			if saveErr := r.repo.SaveTask(ctx, task); saveErr != nil {
				taskLogger.Warn("saving task result failed", slog.Any("error", saveErr))
			}
			r.bus.PublishTaskStatus(ctx, task.ID.String(), task.Name, string(domain.TaskCompleted), map[string]any{"result": result})
			r.recordTaskExecution(ctx, task, domain.TaskCompleted, attempt, duration, result, "")
			if r.metrics != nil {
				r.metrics.RecordTaskCompletion(task.Name, string(domain.TaskCompleted), duration)
			}
			if record != nil {
				_ = r.idempotency.Complete(ctx, record, result)
			}
			return nil
		}

		lastErr = err
		taskLogger.Warn("task attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))

		if !policy.ShouldRetry(attempt) {
			break
		}

		if r.metrics != nil {
			r.metrics.RecordTaskRetry(task.Name)
		}

		delay := policy.CalculateDelay(attempt)
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(delay):
			continue
		}
		break
	}

	failed := &skeinerrors.TaskFailedError{TaskName: task.Name, Attempts: task.RetryCount + 1, Cause: lastErr}
	if record != nil {
		_ = r.idempotency.Fail(ctx, record, failed.Error())
	}
	r.recordTaskExecution(ctx, task, domain.TaskFailed, task.RetryCount, 0, nil, failed.Error())
	if r.metrics != nil {
		r.metrics.RecordTaskCompletion(task.Name, string(domain.TaskFailed), 0)
	}
	return r.finishTask(ctx, task, domain.TaskFailed, map[string]any{"error": failed.Error()}, failed, taskLogger)
}

// invoke dispatches task.ActionPayload to its registered handler under an
// optional per-task timeout, wrapped in a tracing span.
func (r *Runner) invoke(ctx context.Context, task *domain.Task) (map[string]any, error) {
	actionCtx := ctx
	var cancel context.CancelFunc
	if task.TimeoutSeconds != nil && *task.TimeoutSeconds > 0 {
		actionCtx, cancel = context.WithTimeout(ctx, durationFromSeconds(*task.TimeoutSeconds))
		defer cancel()
	}

	spanCtx := actionCtx
	var span trace.Span
	if r.tracer != nil {
		spanCtx, span = r.tracer.Start(actionCtx, fmt.Sprintf("task.%s", task.Name),
			trace.WithAttributes(
				attribute.String("skein.task.name", task.Name),
				attribute.String("skein.task.action_type", task.ActionType),
			),
		)
		defer span.End()
	}

	payload := task.ActionPayload
	if r.interp != nil {
		payload, _ = r.interp.Dict(spanCtx, payload, task.WorkflowID.String()).(map[string]any)
	}

	var result map[string]any
	var err error
	switch task.ActionType {
	case ActionTypeDynamicMap, ActionTypeDynamicReduce:
		result, err = r.invokeDynamicGroup(spanCtx, task, payload)
	default:
		handler := r.registry.Lookup(task.ActionType)
		result, err = handler(spanCtx, payload)
	}
	if err != nil {
		if spanCtx.Err() == context.DeadlineExceeded {
			err = &skeinerrors.TimeoutError{Operation: fmt.Sprintf("task %q", task.Name), Duration: durationFromSeconds(valueOrZero(task.TimeoutSeconds)), Cause: err}
		}
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	return result, nil
}

// invokeDynamicGroup runs a dynamic_map/dynamic_reduce task: payload must
// carry "items" ([]any), "task_template" (map[string]any), and
// "item_action_type" (the registry handler each item/reduction dispatches
// to). The group runs in-process and is not checkpointed item-by-item. Every
// item runs even when others fail, but if any item fails the group's status
// is failed and the task fails with an error; the group result is then not
// stored as the task's result, and a retry of the task reruns every item.
func (r *Runner) invokeDynamicGroup(ctx context.Context, task *domain.Task, payload map[string]any) (map[string]any, error) {
	items, _ := payload["items"].([]any)
	template, _ := payload["task_template"].(map[string]any)
	itemActionType, _ := payload["item_action_type"].(string)
	if itemActionType == "" {
		return nil, fmt.Errorf("task %q: dynamic group payload missing item_action_type", task.Name)
	}
	handler := r.registry.Lookup(itemActionType)

	var group dynamictask.GroupResult
	if task.ActionType == ActionTypeDynamicReduce {
		group = dynamictask.ExecuteReduce(ctx, items, template, dynamictask.ActionHandler(handler))
	} else {
		group = dynamictask.ExecuteMap(ctx, items, template, dynamictask.ActionHandler(handler))
	}

	result := map[string]any{
		"total":     group.Total,
		"completed": group.Completed,
		"failed":    group.Failed,
		"results":   group.Results,
		"status":    string(group.Status),
		"progress":  dynamictask.ProgressPercentage(group.Total, group.Completed, group.Failed),
	}
	if group.Status == domain.GroupFailed {
		return result, fmt.Errorf("task %q: dynamic group had %d of %d items fail", task.Name, group.Failed, group.Total)
	}
	return result, nil
}

func (r *Runner) finishTask(ctx context.Context, task *domain.Task, status domain.TaskStatus, result map[string]any, err error, logger *slog.Logger) error {
	task.Status = status
	task.Result = result
	if saveErr := r.repo.SaveTask(ctx, task); saveErr != nil {
		logger.Warn("saving task final status failed", slog.Any("error", saveErr))
	}

	extra := map[string]any{}
	if result != nil {
		extra["result"] = result
	}
	if err != nil {
		extra["error"] = err.Error()
	}
	r.bus.PublishTaskStatus(ctx, task.ID.String(), task.Name, string(status), extra)
	return err
}

func (r *Runner) recordTaskExecution(ctx context.Context, task *domain.Task, status domain.TaskStatus, attempt int, duration time.Duration, result map[string]any, errMsg string) {
	now := time.Now()
	started := now.Add(-duration)
	execution := &domain.TaskExecution{
		ID:         uuid.New(),
		TaskName:   task.Name,
		Attempt:    attempt,
		Status:     status,
		StartedAt:  started,
		EndedAt:    &now,
		DurationMs: duration.Milliseconds(),
		Result:     result,
		Error:      errMsg,
	}
	if err := r.repo.CreateTaskExecution(ctx, execution); err != nil {
		r.logger.Warn("recording task execution failed", slog.String("task", task.Name), slog.Any("error", err))
	}
}

func durationFromSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func valueOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
