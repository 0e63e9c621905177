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

// Package memory provides an in-memory storage backend, used in tests and
// single-process deployments that don't need durability.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skeinhq/skein/internal/domain"
	"github.com/skeinhq/skein/internal/repository"
	skeinerrors "github.com/skeinhq/skein/pkg/errors"
)

// Compile-time interface assertions.
var (
	_ repository.WorkflowStore    = (*Backend)(nil)
	_ repository.ExecutionStore   = (*Backend)(nil)
	_ repository.ScheduleStore    = (*Backend)(nil)
	_ repository.VersionStore     = (*Backend)(nil)
	_ repository.IdempotencyStore = (*Backend)(nil)
	_ repository.VariableStore    = (*Backend)(nil)
	_ repository.Backend          = (*Backend)(nil)
)

// Backend is an in-memory storage backend.
type Backend struct {
	mu sync.RWMutex

	workflows map[uuid.UUID]*domain.Workflow

	executions     map[uuid.UUID]*domain.WorkflowExecution
	taskExecutions []*domain.TaskExecution

	schedules map[uuid.UUID]*domain.WorkflowSchedule

	versions   map[uuid.UUID][]*domain.WorkflowVersion
	changeLogs map[uuid.UUID][]*domain.WorkflowChangeLog

	idempotency map[string]*domain.IdempotencyKey

	variables     map[uuid.UUID]map[string]*domain.WorkflowVariable
	secrets       map[uuid.UUID]map[string]*domain.WorkflowSecret
	globalVars    map[string]*domain.GlobalVariable
	globalSecrets map[string]*domain.GlobalSecret
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		workflows:     make(map[uuid.UUID]*domain.Workflow),
		executions:    make(map[uuid.UUID]*domain.WorkflowExecution),
		schedules:     make(map[uuid.UUID]*domain.WorkflowSchedule),
		versions:      make(map[uuid.UUID][]*domain.WorkflowVersion),
		changeLogs:    make(map[uuid.UUID][]*domain.WorkflowChangeLog),
		idempotency:   make(map[string]*domain.IdempotencyKey),
		variables:     make(map[uuid.UUID]map[string]*domain.WorkflowVariable),
		secrets:       make(map[uuid.UUID]map[string]*domain.WorkflowSecret),
		globalVars:    make(map[string]*domain.GlobalVariable),
		globalSecrets: make(map[string]*domain.GlobalSecret),
	}
}

func cloneWorkflow(w *domain.Workflow) *domain.Workflow {
	clone := *w
	clone.Tasks = make([]*domain.Task, len(w.Tasks))
	for i, t := range w.Tasks {
		task := *t
		clone.Tasks[i] = &task
	}
	return &clone
}

// GetWorkflow retrieves a workflow and its tasks by ID.
func (b *Backend) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.workflows[id]
	if !ok {
		return nil, nil
	}
	return cloneWorkflow(w), nil
}

// SaveWorkflow inserts or replaces a workflow, including its tasks.
func (b *Backend) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workflows[workflow.ID] = cloneWorkflow(workflow)
	return nil
}

// SaveTask updates one task within its parent workflow.
func (b *Backend) SaveTask(ctx context.Context, task *domain.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.workflows[task.WorkflowID]
	if !ok {
		return &skeinerrors.NotFoundError{Resource: "workflow", ID: task.WorkflowID.String()}
	}
	for i, t := range w.Tasks {
		if t.ID == task.ID {
			taskCopy := *task
			w.Tasks[i] = &taskCopy
			return nil
		}
	}
	taskCopy := *task
	w.Tasks = append(w.Tasks, &taskCopy)
	return nil
}

// ListRunningWorkflows returns every workflow currently in "running" status.
func (b *Backend) ListRunningWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*domain.Workflow
	for _, w := range b.workflows {
		if w.Status == domain.WorkflowRunning {
			out = append(out, cloneWorkflow(w))
		}
	}
	return out, nil
}

// CreateExecution records the start of a workflow execution.
func (b *Backend) CreateExecution(ctx context.Context, execution *domain.WorkflowExecution) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clone := *execution
	b.executions[execution.ID] = &clone
	return nil
}

// UpdateExecution updates an existing workflow execution record.
func (b *Backend) UpdateExecution(ctx context.Context, execution *domain.WorkflowExecution) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.executions[execution.ID]; !ok {
		return &skeinerrors.NotFoundError{Resource: "execution", ID: execution.ID.String()}
	}
	clone := *execution
	b.executions[execution.ID] = &clone
	return nil
}

// CreateTaskExecution appends one task attempt record.
func (b *Backend) CreateTaskExecution(ctx context.Context, execution *domain.TaskExecution) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clone := *execution
	b.taskExecutions = append(b.taskExecutions, &clone)
	return nil
}

// DueSchedules returns every enabled schedule whose next_run is at or
// before asOf.
func (b *Backend) DueSchedules(ctx context.Context, asOf time.Time) ([]*domain.WorkflowSchedule, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*domain.WorkflowSchedule
	for _, s := range b.schedules {
		if !s.Enabled {
			continue
		}
		if s.NextRun != nil && !s.NextRun.After(asOf) {
			clone := *s
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID.String() < out[j].WorkflowID.String() })
	return out, nil
}

// WorkflowStatus reports workflowID's current status, and whether the
// workflow exists at all.
func (b *Backend) WorkflowStatus(ctx context.Context, workflowID uuid.UUID) (domain.WorkflowStatus, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.workflows[workflowID]
	if !ok {
		return "", false, nil
	}
	return w.Status, true, nil
}

// SaveSchedule inserts or replaces a schedule.
func (b *Backend) SaveSchedule(ctx context.Context, schedule *domain.WorkflowSchedule) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clone := *schedule
	b.schedules[schedule.ID] = &clone
	return nil
}

// LatestVersion returns the highest version_number snapshot for workflowID.
func (b *Backend) LatestVersion(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowVersion, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	versions := b.versions[workflowID]
	if len(versions) == 0 {
		return nil, nil
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.VersionNumber > latest.VersionNumber {
			latest = v
		}
	}
	clone := *latest
	return &clone, nil
}

// GetVersion returns a specific version_number's snapshot.
func (b *Backend) GetVersion(ctx context.Context, workflowID uuid.UUID, versionNumber int) (*domain.WorkflowVersion, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, v := range b.versions[workflowID] {
		if v.VersionNumber == versionNumber {
			clone := *v
			return &clone, nil
		}
	}
	return nil, nil
}

// ListVersions returns workflowID's versions, newest first, optionally
// excluding drafts, capped at limit (0 = unlimited).
func (b *Backend) ListVersions(ctx context.Context, workflowID uuid.UUID, includeDrafts bool, limit int) ([]*domain.WorkflowVersion, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*domain.WorkflowVersion
	for _, v := range b.versions[workflowID] {
		if !includeDrafts && v.IsDraft {
			continue
		}
		clone := *v
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveVersion inserts or replaces a version snapshot.
func (b *Backend) SaveVersion(ctx context.Context, version *domain.WorkflowVersion) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	versions := b.versions[version.WorkflowID]
	for i, v := range versions {
		if v.ID == version.ID {
			clone := *version
			versions[i] = &clone
			return nil
		}
	}
	clone := *version
	b.versions[version.WorkflowID] = append(versions, &clone)
	return nil
}

// AppendChangeLog appends one structural change record.
func (b *Backend) AppendChangeLog(ctx context.Context, entry *domain.WorkflowChangeLog) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clone := *entry
	b.changeLogs[entry.WorkflowID] = append(b.changeLogs[entry.WorkflowID], &clone)
	return nil
}

// ListChangeLog returns workflowID's change log, newest first, capped at
// limit (0 = unlimited).
func (b *Backend) ListChangeLog(ctx context.Context, workflowID uuid.UUID, limit int) ([]*domain.WorkflowChangeLog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := append([]*domain.WorkflowChangeLog(nil), b.changeLogs[workflowID]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func idempotencyCompositeKey(workflowID uuid.UUID, taskName, key string) string {
	return workflowID.String() + ":" + taskName + ":" + key
}

// Get retrieves an idempotency record by (workflowID, taskName, key).
func (b *Backend) Get(ctx context.Context, workflowID uuid.UUID, taskName, key string) (*domain.IdempotencyKey, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	record, ok := b.idempotency[idempotencyCompositeKey(workflowID, taskName, key)]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

// Create inserts a new idempotency record.
func (b *Backend) Create(ctx context.Context, record *domain.IdempotencyKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clone := *record
	b.idempotency[idempotencyCompositeKey(record.WorkflowID, record.TaskName, record.Key)] = &clone
	return nil
}

// Update replaces an existing idempotency record.
func (b *Backend) Update(ctx context.Context, record *domain.IdempotencyKey) error {
	return b.Create(ctx, record)
}

// Delete removes an idempotency record by ID.
func (b *Backend) Delete(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range b.idempotency {
		if v.ID == id {
			delete(b.idempotency, k)
		}
	}
	return nil
}

// ListExpired returns every idempotency record whose expires_at has
// passed as of asOf.
func (b *Backend) ListExpired(ctx context.Context, asOf time.Time) ([]*domain.IdempotencyKey, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*domain.IdempotencyKey
	for _, v := range b.idempotency {
		if v.ExpiresAt != nil && v.ExpiresAt.Before(asOf) {
			clone := *v
			out = append(out, &clone)
		}
	}
	return out, nil
}

// GetVariable retrieves one workflow-scoped plaintext variable.
func (b *Backend) GetVariable(ctx context.Context, workflowID uuid.UUID, key string) (*domain.WorkflowVariable, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.variables[workflowID][key]
	if !ok {
		return nil, nil
	}
	clone := *v
	return &clone, nil
}

// SetVariable inserts or replaces one workflow-scoped plaintext variable.
func (b *Backend) SetVariable(ctx context.Context, variable *domain.WorkflowVariable) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.variables[variable.WorkflowID] == nil {
		b.variables[variable.WorkflowID] = make(map[string]*domain.WorkflowVariable)
	}
	clone := *variable
	b.variables[variable.WorkflowID][variable.Key] = &clone
	return nil
}

// DeleteVariable removes one workflow-scoped variable.
func (b *Backend) DeleteVariable(ctx context.Context, workflowID uuid.UUID, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.variables[workflowID], key)
	return nil
}

// ListVariables returns every plaintext variable scoped to workflowID.
func (b *Backend) ListVariables(ctx context.Context, workflowID uuid.UUID) ([]*domain.WorkflowVariable, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.WorkflowVariable, 0, len(b.variables[workflowID]))
	for _, v := range b.variables[workflowID] {
		clone := *v
		out = append(out, &clone)
	}
	return out, nil
}

// GetSecret retrieves one workflow-scoped ciphertext secret.
func (b *Backend) GetSecret(ctx context.Context, workflowID uuid.UUID, key string) (*domain.WorkflowSecret, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.secrets[workflowID][key]
	if !ok {
		return nil, nil
	}
	clone := *s
	return &clone, nil
}

// SetSecret inserts or replaces one workflow-scoped ciphertext secret.
func (b *Backend) SetSecret(ctx context.Context, secret *domain.WorkflowSecret) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.secrets[secret.WorkflowID] == nil {
		b.secrets[secret.WorkflowID] = make(map[string]*domain.WorkflowSecret)
	}
	clone := *secret
	b.secrets[secret.WorkflowID][secret.Key] = &clone
	return nil
}

// DeleteSecret removes one workflow-scoped secret.
func (b *Backend) DeleteSecret(ctx context.Context, workflowID uuid.UUID, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.secrets[workflowID], key)
	return nil
}

// ListSecrets returns every ciphertext secret scoped to workflowID.
func (b *Backend) ListSecrets(ctx context.Context, workflowID uuid.UUID) ([]*domain.WorkflowSecret, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.WorkflowSecret, 0, len(b.secrets[workflowID]))
	for _, s := range b.secrets[workflowID] {
		clone := *s
		out = append(out, &clone)
	}
	return out, nil
}

// GetGlobalVariable retrieves one global plaintext variable.
func (b *Backend) GetGlobalVariable(ctx context.Context, key string) (*domain.GlobalVariable, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.globalVars[key]
	if !ok {
		return nil, nil
	}
	clone := *v
	return &clone, nil
}

// SetGlobalVariable inserts or replaces one global plaintext variable.
func (b *Backend) SetGlobalVariable(ctx context.Context, variable *domain.GlobalVariable) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clone := *variable
	b.globalVars[variable.Key] = &clone
	return nil
}

// DeleteGlobalVariable removes one global variable.
func (b *Backend) DeleteGlobalVariable(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.globalVars, key)
	return nil
}

// ListGlobalVariables returns every global plaintext variable.
func (b *Backend) ListGlobalVariables(ctx context.Context) ([]*domain.GlobalVariable, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.GlobalVariable, 0, len(b.globalVars))
	for _, v := range b.globalVars {
		clone := *v
		out = append(out, &clone)
	}
	return out, nil
}

// GetGlobalSecret retrieves one global ciphertext secret.
func (b *Backend) GetGlobalSecret(ctx context.Context, key string) (*domain.GlobalSecret, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.globalSecrets[key]
	if !ok {
		return nil, nil
	}
	clone := *s
	return &clone, nil
}

// SetGlobalSecret inserts or replaces one global ciphertext secret.
func (b *Backend) SetGlobalSecret(ctx context.Context, secret *domain.GlobalSecret) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clone := *secret
	b.globalSecrets[secret.Key] = &clone
	return nil
}

// DeleteGlobalSecret removes one global secret.
func (b *Backend) DeleteGlobalSecret(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.globalSecrets, key)
	return nil
}

// ListGlobalSecrets returns every global ciphertext secret.
func (b *Backend) ListGlobalSecrets(ctx context.Context) ([]*domain.GlobalSecret, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.GlobalSecret, 0, len(b.globalSecrets))
	for _, s := range b.globalSecrets {
		clone := *s
		out = append(out, &clone)
	}
	return out, nil
}

// Close is a no-op; the in-memory backend owns no external resources.
func (b *Backend) Close() error {
	return nil
}
