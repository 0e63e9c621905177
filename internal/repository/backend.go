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

// Package repository provides storage backends for the orchestration
// engine.
//
// # Interface Hierarchy
//
// Like the rest of this module, persistence uses interface segregation:
// every consuming package (runner, lifecycle, scheduler, versioning,
// idempotency) declares its own small Store interface naming only the
// methods it calls. This package composes those same method sets into
// one per-concern interface so a single backend can satisfy all of them:
//
//   - WorkflowStore: workflow/task CRUD — satisfies runner.Repository
//     and lifecycle.Store.
//   - ExecutionStore: append-only workflow/task execution history.
//   - ScheduleStore: cron schedule CRUD — satisfies scheduler.Store.
//   - VersionStore: content-addressed version snapshots and change log —
//     satisfies versioning.Store.
//   - IdempotencyStore: dedup record CRUD — satisfies idempotency.Store.
//   - VariableStore: plaintext/ciphertext variable and secret CRUD.
//
// Backend composes all of these plus io.Closer for full-featured
// implementations; components that only need one concern can accept its
// narrower interface directly instead.
package repository

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/skeinhq/skein/internal/domain"
)

// WorkflowStore is workflow and task CRUD. This is the interface the
// task runner and lifecycle controller depend on.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error
	SaveTask(ctx context.Context, task *domain.Task) error
	ListRunningWorkflows(ctx context.Context) ([]*domain.Workflow, error)
}

// ExecutionStore is append-only workflow and task execution history.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, execution *domain.WorkflowExecution) error
	UpdateExecution(ctx context.Context, execution *domain.WorkflowExecution) error
	CreateTaskExecution(ctx context.Context, execution *domain.TaskExecution) error
}

// ScheduleStore is cron schedule CRUD, matching internal/scheduler.Store.
type ScheduleStore interface {
	DueSchedules(ctx context.Context, asOf time.Time) ([]*domain.WorkflowSchedule, error)
	WorkflowStatus(ctx context.Context, workflowID uuid.UUID) (domain.WorkflowStatus, bool, error)
	SaveSchedule(ctx context.Context, schedule *domain.WorkflowSchedule) error
}

// VersionStore is content-addressed version and change log persistence,
// matching internal/versioning.Store.
type VersionStore interface {
	LatestVersion(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowVersion, error)
	GetVersion(ctx context.Context, workflowID uuid.UUID, versionNumber int) (*domain.WorkflowVersion, error)
	ListVersions(ctx context.Context, workflowID uuid.UUID, includeDrafts bool, limit int) ([]*domain.WorkflowVersion, error)
	SaveVersion(ctx context.Context, version *domain.WorkflowVersion) error
	AppendChangeLog(ctx context.Context, entry *domain.WorkflowChangeLog) error
	ListChangeLog(ctx context.Context, workflowID uuid.UUID, limit int) ([]*domain.WorkflowChangeLog, error)
}

// IdempotencyStore is dedup record CRUD, matching internal/idempotency.Store.
type IdempotencyStore interface {
	Get(ctx context.Context, workflowID uuid.UUID, taskName, key string) (*domain.IdempotencyKey, error)
	Create(ctx context.Context, record *domain.IdempotencyKey) error
	Update(ctx context.Context, record *domain.IdempotencyKey) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListExpired(ctx context.Context, asOf time.Time) ([]*domain.IdempotencyKey, error)
}

// VariableStore is plaintext/ciphertext variable and secret CRUD, scoped
// per-workflow or global. Secret values are always ciphertext; encryption
// and decryption happen above this layer (see Resolver in this package).
type VariableStore interface {
	GetVariable(ctx context.Context, workflowID uuid.UUID, key string) (*domain.WorkflowVariable, error)
	SetVariable(ctx context.Context, variable *domain.WorkflowVariable) error
	DeleteVariable(ctx context.Context, workflowID uuid.UUID, key string) error
	ListVariables(ctx context.Context, workflowID uuid.UUID) ([]*domain.WorkflowVariable, error)

	GetSecret(ctx context.Context, workflowID uuid.UUID, key string) (*domain.WorkflowSecret, error)
	SetSecret(ctx context.Context, secret *domain.WorkflowSecret) error
	DeleteSecret(ctx context.Context, workflowID uuid.UUID, key string) error
	ListSecrets(ctx context.Context, workflowID uuid.UUID) ([]*domain.WorkflowSecret, error)

	GetGlobalVariable(ctx context.Context, key string) (*domain.GlobalVariable, error)
	SetGlobalVariable(ctx context.Context, variable *domain.GlobalVariable) error
	DeleteGlobalVariable(ctx context.Context, key string) error
	ListGlobalVariables(ctx context.Context) ([]*domain.GlobalVariable, error)

	GetGlobalSecret(ctx context.Context, key string) (*domain.GlobalSecret, error)
	SetGlobalSecret(ctx context.Context, secret *domain.GlobalSecret) error
	DeleteGlobalSecret(ctx context.Context, key string) error
	ListGlobalSecrets(ctx context.Context) ([]*domain.GlobalSecret, error)
}

// Backend is the full storage interface. Existing backends (memory,
// sqlite, postgres) implement every method; a new minimal backend can
// implement only the narrower Store interfaces its intended consumers
// need.
type Backend interface {
	WorkflowStore
	ExecutionStore
	ScheduleStore
	VersionStore
	IdempotencyStore
	VariableStore
	io.Closer
}
