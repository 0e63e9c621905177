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

// Package domain holds the core entity types shared across the orchestration
// engine: workflows, tasks, versions, schedules, dynamic task groups,
// idempotency keys, and the variable/secret store.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus is the workflow lifecycle status.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowPaused    WorkflowStatus = "paused"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// IsTerminal reports whether status is a terminal workflow status.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// TaskStatus is a task's lifecycle status.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ExecutionTrigger records what caused a workflow execution to begin.
type ExecutionTrigger string

const (
	TriggerManual    ExecutionTrigger = "manual"
	TriggerScheduled ExecutionTrigger = "scheduled"
	TriggerResumed   ExecutionTrigger = "resumed"
)

// RetryPolicy configures per-task retry-with-backoff.
type RetryPolicy struct {
	MaxRetries        int     `json:"max_retries"`
	InitialDelay      float64 `json:"initial_delay"`
	MaxDelay          float64 `json:"max_delay"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	Jitter            bool    `json:"jitter"`
}

// Workflow is a user-declared DAG of tasks.
type Workflow struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      WorkflowStatus `json:"status"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	PausedAt    *time.Time     `json:"paused_at,omitempty"`
	Tasks       []*Task        `json:"tasks,omitempty"`
}

// Task is one node in a workflow's DAG.
type Task struct {
	ID             uuid.UUID      `json:"id"`
	WorkflowID     uuid.UUID      `json:"workflow_id"`
	Name           string         `json:"name"`
	Order          int            `json:"order"`
	ActionType     string         `json:"action_type"`
	ActionPayload  map[string]any `json:"action_payload,omitempty"`
	Dependencies   []string       `json:"dependencies,omitempty"`
	RetryPolicy    *RetryPolicy   `json:"retry_policy,omitempty"`
	TimeoutSeconds *float64       `json:"timeout_seconds,omitempty"`
	Status         TaskStatus     `json:"status"`
	Result         map[string]any `json:"result,omitempty"`
	RetryCount     int            `json:"retry_count"`
}

// WorkflowDefinition is the canonical, version-independent shape of a
// workflow's declared content: everything that participates in checksums,
// diffs, and rollback restoration.
type WorkflowDefinition struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Tasks       []TaskDefinition     `json:"tasks"`
}

// TaskDefinition is the canonical shape of one task within a
// WorkflowDefinition snapshot.
type TaskDefinition struct {
	Name           string         `json:"name"`
	ActionType     string         `json:"action_type"`
	ActionPayload  map[string]any `json:"action_payload,omitempty"`
	Dependencies   []string       `json:"dependencies,omitempty"`
	RetryPolicy    *RetryPolicy   `json:"retry_policy,omitempty"`
	TimeoutSeconds *float64       `json:"timeout_seconds,omitempty"`
}

// WorkflowVersion is a content-addressed snapshot of a workflow definition.
type WorkflowVersion struct {
	ID            uuid.UUID          `json:"id"`
	WorkflowID    uuid.UUID          `json:"workflow_id"`
	VersionNumber int                `json:"version_number"`
	VersionTag    string             `json:"version_tag,omitempty"`
	Definition    WorkflowDefinition `json:"definition"`
	Checksum      string             `json:"checksum"`
	IsActive      bool               `json:"is_active"`
	IsDraft       bool               `json:"is_draft"`
	ChangedBy     string             `json:"changed_by,omitempty"`
	ChangeSummary string             `json:"change_summary,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	ActivatedAt   *time.Time         `json:"activated_at,omitempty"`
}

// ChangeType enumerates WorkflowChangeLog kinds.
type ChangeType string

const (
	ChangeCreated    ChangeType = "created"
	ChangeUpdated    ChangeType = "updated"
	ChangeRolledBack ChangeType = "rolled_back"
	ChangeDeleted    ChangeType = "deleted"
)

// WorkflowChangeLog is an append-only record of a structural transition.
type WorkflowChangeLog struct {
	ID          uuid.UUID      `json:"id"`
	WorkflowID  uuid.UUID      `json:"workflow_id"`
	FromVersion *int           `json:"from_version,omitempty"`
	ToVersion   int            `json:"to_version"`
	ChangeType  ChangeType     `json:"change_type"`
	Changes     map[string]any `json:"changes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// WorkflowSchedule is the cron trigger bound to a workflow.
type WorkflowSchedule struct {
	ID             uuid.UUID  `json:"id"`
	WorkflowID     uuid.UUID  `json:"workflow_id"`
	CronExpression string     `json:"cron_expression"`
	Timezone       string     `json:"timezone"`
	Enabled        bool       `json:"enabled"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	LastRun        *time.Time `json:"last_run,omitempty"`
}

// DynamicTaskGroupKind distinguishes map vs. reduce groups.
type DynamicTaskGroupKind string

const (
	GroupKindMap    DynamicTaskGroupKind = "map"
	GroupKindReduce DynamicTaskGroupKind = "reduce"
)

// DynamicTaskGroupStatus is the lifecycle status of a dynamic task group.
type DynamicTaskGroupStatus string

const (
	GroupPending   DynamicTaskGroupStatus = "pending"
	GroupRunning   DynamicTaskGroupStatus = "running"
	GroupCompleted DynamicTaskGroupStatus = "completed"
	GroupFailed    DynamicTaskGroupStatus = "failed"
)

// DynamicTaskGroup is a map or reduce fan-out bound to a parent task.
type DynamicTaskGroup struct {
	ID             uuid.UUID              `json:"id"`
	WorkflowID     uuid.UUID              `json:"workflow_id"`
	ParentTaskName string                 `json:"parent_task_name"`
	Kind           DynamicTaskGroupKind   `json:"kind"`
	Items          []any                  `json:"items,omitempty"`
	TaskTemplate   map[string]any         `json:"task_template"`
	Total          int                    `json:"total"`
	Completed      int                    `json:"completed"`
	Failed         int                    `json:"failed"`
	Results        []any                  `json:"results,omitempty"`
	Status         DynamicTaskGroupStatus `json:"status"`
	CreatedAt      time.Time              `json:"created_at"`
}

// IdempotencyStatus is the lifecycle status of an idempotency record.
type IdempotencyStatus string

const (
	IdempotencyProcessing IdempotencyStatus = "processing"
	IdempotencyCompleted  IdempotencyStatus = "completed"
	IdempotencyFailed     IdempotencyStatus = "failed"
)

// IdempotencyKey dedups a logical execution of a task for a given workflow.
type IdempotencyKey struct {
	ID           uuid.UUID         `json:"id"`
	WorkflowID   uuid.UUID         `json:"workflow_id"`
	TaskName     string            `json:"task_name"`
	Key          string            `json:"key"`
	RequestHash  string            `json:"request_hash"`
	Status       IdempotencyStatus `json:"status"`
	Result       map[string]any    `json:"result,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
}

// WorkflowVariable is a plaintext key/value pair scoped to one workflow.
type WorkflowVariable struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflow_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
}

// WorkflowSecret is a ciphertext key/value pair scoped to one workflow.
// Value holds base64-encoded AES-256-GCM ciphertext, never plaintext.
type WorkflowSecret struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflow_id"`
	Key        string    `json:"key"`
	Ciphertext string    `json:"ciphertext"`
}

// GlobalVariable is a plaintext key/value pair visible to every workflow.
type GlobalVariable struct {
	ID    uuid.UUID `json:"id"`
	Key   string    `json:"key"`
	Value string    `json:"value"`
}

// GlobalSecret is a ciphertext key/value pair visible to every workflow.
type GlobalSecret struct {
	ID         uuid.UUID `json:"id"`
	Key        string    `json:"key"`
	Ciphertext string    `json:"ciphertext"`
}

// WorkflowExecution is an append-only record of one run of a workflow.
type WorkflowExecution struct {
	ID         uuid.UUID        `json:"id"`
	WorkflowID uuid.UUID        `json:"workflow_id"`
	Trigger    ExecutionTrigger `json:"trigger"`
	Status     WorkflowStatus   `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	EndedAt    *time.Time       `json:"ended_at,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// TaskExecution is an append-only record of one attempt of one task.
type TaskExecution struct {
	ID          uuid.UUID      `json:"id"`
	ExecutionID uuid.UUID      `json:"execution_id"`
	TaskName    string         `json:"task_name"`
	Attempt     int            `json:"attempt"`
	Status      TaskStatus     `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}
