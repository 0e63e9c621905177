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

// Package sqlite provides a SQLite storage backend for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

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

// Backend is a SQLite storage backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New creates a new SQLite backend, configuring pragmas and running
// migrations before returning.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL,
			created_by TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			paused_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			name TEXT NOT NULL,
			task_order INTEGER NOT NULL DEFAULT 0,
			action_type TEXT NOT NULL,
			action_payload TEXT,
			dependencies TEXT,
			retry_policy TEXT,
			timeout_seconds REAL,
			status TEXT NOT NULL,
			result TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_workflow_id ON tasks(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS workflow_executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			trigger TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			error TEXT,
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON workflow_executions(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS task_executions (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			task_name TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			result TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_executions_execution_id ON task_executions(execution_id)`,
		`CREATE TABLE IF NOT EXISTS workflow_schedules (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			cron_expression TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			enabled INTEGER NOT NULL DEFAULT 1,
			next_run TEXT,
			last_run TEXT,
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON workflow_schedules(next_run)`,
		`CREATE TABLE IF NOT EXISTS workflow_versions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			version_number INTEGER NOT NULL,
			version_tag TEXT,
			definition TEXT NOT NULL,
			checksum TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0,
			is_draft INTEGER NOT NULL DEFAULT 0,
			changed_by TEXT,
			change_summary TEXT,
			created_at TEXT NOT NULL,
			activated_at TEXT,
			UNIQUE (workflow_id, version_number),
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_workflow_id ON workflow_versions(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS workflow_change_logs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			from_version INTEGER,
			to_version INTEGER NOT NULL,
			change_type TEXT NOT NULL,
			changes TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_change_logs_workflow_id ON workflow_change_logs(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			task_name TEXT NOT NULL,
			dedup_key TEXT NOT NULL,
			request_hash TEXT,
			status TEXT NOT NULL,
			result TEXT,
			error_message TEXT,
			created_at TEXT NOT NULL,
			completed_at TEXT,
			expires_at TEXT,
			UNIQUE (workflow_id, task_name, dedup_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_idempotency_expires_at ON idempotency_keys(expires_at)`,
		`CREATE TABLE IF NOT EXISTS workflow_variables (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			UNIQUE (workflow_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_secrets (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			key TEXT NOT NULL,
			ciphertext TEXT NOT NULL,
			UNIQUE (workflow_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS global_variables (
			id TEXT PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS global_secrets (
			id TEXT PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			ciphertext TEXT NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// GetWorkflow retrieves a workflow and its tasks by ID.
func (b *Backend) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	var w domain.Workflow
	var description, createdBy sql.NullString
	var pausedAt sql.NullString
	var idStr string
	var createdAt, updatedAt string

	err := b.db.QueryRowContext(ctx,
		`SELECT id, name, description, status, created_by, created_at, updated_at, paused_at
		 FROM workflows WHERE id = ?`, id.String(),
	).Scan(&idStr, &w.Name, &description, &w.Status, &createdBy, &createdAt, &updatedAt, &pausedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	w.ID = id
	w.Description = description.String
	w.CreatedBy = createdBy.String
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if pausedAt.Valid {
		t, _ := time.Parse(time.RFC3339, pausedAt.String)
		w.PausedAt = &t
	}

	tasks, err := b.listTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	w.Tasks = tasks
	return &w, nil
}

func (b *Backend) listTasks(ctx context.Context, workflowID uuid.UUID) ([]*domain.Task, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, name, task_order, action_type, action_payload, dependencies,
			retry_policy, timeout_seconds, status, result, retry_count
		 FROM tasks WHERE workflow_id = ? ORDER BY task_order, name`, workflowID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows, workflowID)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner, workflowID uuid.UUID) (*domain.Task, error) {
	var task domain.Task
	var idStr string
	var payloadJSON, depsJSON, retryJSON, resultJSON sql.NullString
	var timeoutSeconds sql.NullFloat64

	if err := row.Scan(&idStr, &task.Name, &task.Order, &task.ActionType,
		&payloadJSON, &depsJSON, &retryJSON, &timeoutSeconds,
		&task.Status, &resultJSON, &task.RetryCount); err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid task id: %w", err)
	}
	task.ID = id
	task.WorkflowID = workflowID

	if payloadJSON.Valid && payloadJSON.String != "" {
		if err := json.Unmarshal([]byte(payloadJSON.String), &task.ActionPayload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action_payload: %w", err)
		}
	}
	if depsJSON.Valid && depsJSON.String != "" {
		if err := json.Unmarshal([]byte(depsJSON.String), &task.Dependencies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dependencies: %w", err)
		}
	}
	if retryJSON.Valid && retryJSON.String != "" {
		var policy domain.RetryPolicy
		if err := json.Unmarshal([]byte(retryJSON.String), &policy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal retry_policy: %w", err)
		}
		task.RetryPolicy = &policy
	}
	if timeoutSeconds.Valid {
		task.TimeoutSeconds = &timeoutSeconds.Float64
	}
	if resultJSON.Valid && resultJSON.String != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &task.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return &task, nil
}

// SaveWorkflow inserts or replaces a workflow and its tasks.
func (b *Backend) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, status, created_by, created_at, updated_at, paused_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description, status = excluded.status,
			created_by = excluded.created_by, updated_at = excluded.updated_at, paused_at = excluded.paused_at`,
		workflow.ID.String(), workflow.Name, nullString(workflow.Description), string(workflow.Status),
		nullString(workflow.CreatedBy), formatTimeOrNow(workflow.CreatedAt, now), now.Format(time.RFC3339),
		formatTime(workflow.PausedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert workflow: %w", err)
	}

	for _, task := range workflow.Tasks {
		if err := upsertTask(ctx, tx, workflow.ID, task); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workflow save: %w", err)
	}
	workflow.UpdatedAt = now
	return nil
}

func upsertTask(ctx context.Context, tx *sql.Tx, workflowID uuid.UUID, task *domain.Task) error {
	payloadJSON, err := json.Marshal(task.ActionPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal action_payload: %w", err)
	}
	depsJSON, err := json.Marshal(task.Dependencies)
	if err != nil {
		return fmt.Errorf("failed to marshal dependencies: %w", err)
	}
	var retryJSON []byte
	if task.RetryPolicy != nil {
		retryJSON, err = json.Marshal(task.RetryPolicy)
		if err != nil {
			return fmt.Errorf("failed to marshal retry_policy: %w", err)
		}
	}
	resultJSON, err := json.Marshal(task.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	var timeoutSeconds any
	if task.TimeoutSeconds != nil {
		timeoutSeconds = *task.TimeoutSeconds
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, workflow_id, name, task_order, action_type, action_payload,
			dependencies, retry_policy, timeout_seconds, status, result, retry_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, task_order = excluded.task_order, action_type = excluded.action_type,
			action_payload = excluded.action_payload, dependencies = excluded.dependencies,
			retry_policy = excluded.retry_policy, timeout_seconds = excluded.timeout_seconds,
			status = excluded.status, result = excluded.result, retry_count = excluded.retry_count`,
		task.ID.String(), workflowID.String(), task.Name, task.Order, task.ActionType,
		nullBytes(payloadJSON), nullBytes(depsJSON), nullBytes(retryJSON), timeoutSeconds,
		string(task.Status), nullBytes(resultJSON), task.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %q: %w", task.Name, err)
	}
	return nil
}

// SaveTask updates one task within its parent workflow.
func (b *Backend) SaveTask(ctx context.Context, task *domain.Task) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertTask(ctx, tx, task.WorkflowID, task); err != nil {
		return err
	}
	return tx.Commit()
}

// ListRunningWorkflows returns every workflow currently in "running" status.
func (b *Backend) ListRunningWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id FROM workflows WHERE status = ?`, string(domain.WorkflowRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to list running workflows: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan workflow id: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("invalid workflow id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	workflows := make([]*domain.Workflow, 0, len(ids))
	for _, id := range ids {
		w, err := b.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		if w != nil {
			workflows = append(workflows, w)
		}
	}
	return workflows, nil
}

// CreateExecution records the start of a workflow execution.
func (b *Backend) CreateExecution(ctx context.Context, execution *domain.WorkflowExecution) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (id, workflow_id, trigger, status, started_at, ended_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		execution.ID.String(), execution.WorkflowID.String(), string(execution.Trigger), string(execution.Status),
		execution.StartedAt.Format(time.RFC3339), formatTime(execution.EndedAt), nullString(execution.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// UpdateExecution updates an existing workflow execution record.
func (b *Backend) UpdateExecution(ctx context.Context, execution *domain.WorkflowExecution) error {
	result, err := b.db.ExecContext(ctx,
		`UPDATE workflow_executions SET status = ?, ended_at = ?, error = ? WHERE id = ?`,
		string(execution.Status), formatTime(execution.EndedAt), nullString(execution.Error), execution.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &skeinerrors.NotFoundError{Resource: "execution", ID: execution.ID.String()}
	}
	return nil
}

// CreateTaskExecution appends one task attempt record.
func (b *Backend) CreateTaskExecution(ctx context.Context, execution *domain.TaskExecution) error {
	resultJSON, err := json.Marshal(execution.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO task_executions (id, execution_id, task_name, attempt, status, started_at, ended_at, duration_ms, result, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		execution.ID.String(), execution.ExecutionID.String(), execution.TaskName, execution.Attempt,
		string(execution.Status), execution.StartedAt.Format(time.RFC3339), formatTime(execution.EndedAt),
		execution.DurationMs, nullBytes(resultJSON), nullString(execution.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to create task execution: %w", err)
	}
	return nil
}

// DueSchedules returns every enabled schedule whose next_run is at or
// before asOf.
func (b *Backend) DueSchedules(ctx context.Context, asOf time.Time) ([]*domain.WorkflowSchedule, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, workflow_id, cron_expression, timezone, enabled, next_run, last_run
		 FROM workflow_schedules WHERE enabled = 1 AND next_run IS NOT NULL AND next_run <= ?
		 ORDER BY next_run`, asOf.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkflowSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSchedule(row rowScanner) (*domain.WorkflowSchedule, error) {
	var s domain.WorkflowSchedule
	var idStr, workflowIDStr string
	var enabled int
	var nextRun, lastRun sql.NullString

	if err := row.Scan(&idStr, &workflowIDStr, &s.CronExpression, &s.Timezone, &enabled, &nextRun, &lastRun); err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule id: %w", err)
	}
	workflowID, err := uuid.Parse(workflowIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow id: %w", err)
	}
	s.ID = id
	s.WorkflowID = workflowID
	s.Enabled = enabled != 0
	if nextRun.Valid {
		t, _ := time.Parse(time.RFC3339, nextRun.String)
		s.NextRun = &t
	}
	if lastRun.Valid {
		t, _ := time.Parse(time.RFC3339, lastRun.String)
		s.LastRun = &t
	}
	return &s, nil
}

// WorkflowStatus reports workflowID's current status, and whether the
// workflow exists at all.
func (b *Backend) WorkflowStatus(ctx context.Context, workflowID uuid.UUID) (domain.WorkflowStatus, bool, error) {
	var status string
	err := b.db.QueryRowContext(ctx, `SELECT status FROM workflows WHERE id = ?`, workflowID.String()).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get workflow status: %w", err)
	}
	return domain.WorkflowStatus(status), true, nil
}

// SaveSchedule inserts or replaces a schedule.
func (b *Backend) SaveSchedule(ctx context.Context, schedule *domain.WorkflowSchedule) error {
	enabled := 0
	if schedule.Enabled {
		enabled = 1
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO workflow_schedules (id, workflow_id, cron_expression, timezone, enabled, next_run, last_run)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			cron_expression = excluded.cron_expression, timezone = excluded.timezone,
			enabled = excluded.enabled, next_run = excluded.next_run, last_run = excluded.last_run`,
		schedule.ID.String(), schedule.WorkflowID.String(), schedule.CronExpression, schedule.Timezone,
		enabled, formatTime(schedule.NextRun), formatTime(schedule.LastRun),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return nil
}

// LatestVersion returns the highest version_number snapshot for workflowID.
func (b *Backend) LatestVersion(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowVersion, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, version_number, version_tag, definition, checksum, is_active, is_draft,
			changed_by, change_summary, created_at, activated_at
		 FROM workflow_versions WHERE workflow_id = ? ORDER BY version_number DESC LIMIT 1`, workflowID.String())
	return scanVersionOrNil(row, workflowID)
}

// GetVersion returns a specific version_number's snapshot.
func (b *Backend) GetVersion(ctx context.Context, workflowID uuid.UUID, versionNumber int) (*domain.WorkflowVersion, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, version_number, version_tag, definition, checksum, is_active, is_draft,
			changed_by, change_summary, created_at, activated_at
		 FROM workflow_versions WHERE workflow_id = ? AND version_number = ?`, workflowID.String(), versionNumber)
	return scanVersionOrNil(row, workflowID)
}

func scanVersionOrNil(row *sql.Row, workflowID uuid.UUID) (*domain.WorkflowVersion, error) {
	v, err := scanVersion(row, workflowID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func scanVersion(row rowScanner, workflowID uuid.UUID) (*domain.WorkflowVersion, error) {
	var v domain.WorkflowVersion
	var idStr string
	var versionTag, changedBy, changeSummary, activatedAt sql.NullString
	var definitionJSON, createdAt string
	var isActive, isDraft int

	if err := row.Scan(&idStr, &v.VersionNumber, &versionTag, &definitionJSON, &v.Checksum,
		&isActive, &isDraft, &changedBy, &changeSummary, &createdAt, &activatedAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid version id: %w", err)
	}
	v.ID = id
	v.WorkflowID = workflowID
	v.VersionTag = versionTag.String
	v.IsActive = isActive != 0
	v.IsDraft = isDraft != 0
	v.ChangedBy = changedBy.String
	v.ChangeSummary = changeSummary.String
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if activatedAt.Valid {
		t, _ := time.Parse(time.RFC3339, activatedAt.String)
		v.ActivatedAt = &t
	}
	if err := json.Unmarshal([]byte(definitionJSON), &v.Definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}
	return &v, nil
}

// ListVersions returns workflowID's versions, newest first, optionally
// excluding drafts, capped at limit (0 = unlimited).
func (b *Backend) ListVersions(ctx context.Context, workflowID uuid.UUID, includeDrafts bool, limit int) ([]*domain.WorkflowVersion, error) {
	query := `SELECT id, version_number, version_tag, definition, checksum, is_active, is_draft,
		changed_by, change_summary, created_at, activated_at
		FROM workflow_versions WHERE workflow_id = ?`
	args := []any{workflowID.String()}
	if !includeDrafts {
		query += " AND is_draft = 0"
	}
	query += " ORDER BY version_number DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkflowVersion
	for rows.Next() {
		v, err := scanVersion(rows, workflowID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveVersion inserts or replaces a version snapshot.
func (b *Backend) SaveVersion(ctx context.Context, version *domain.WorkflowVersion) error {
	definitionJSON, err := json.Marshal(version.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}
	isActive, isDraft := 0, 0
	if version.IsActive {
		isActive = 1
	}
	if version.IsDraft {
		isDraft = 1
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now()
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO workflow_versions (id, workflow_id, version_number, version_tag, definition, checksum,
			is_active, is_draft, changed_by, change_summary, created_at, activated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			version_tag = excluded.version_tag, definition = excluded.definition, checksum = excluded.checksum,
			is_active = excluded.is_active, is_draft = excluded.is_draft, changed_by = excluded.changed_by,
			change_summary = excluded.change_summary, activated_at = excluded.activated_at`,
		version.ID.String(), version.WorkflowID.String(), version.VersionNumber, nullString(version.VersionTag),
		string(definitionJSON), version.Checksum, isActive, isDraft, nullString(version.ChangedBy),
		nullString(version.ChangeSummary), version.CreatedAt.Format(time.RFC3339), formatTime(version.ActivatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert version: %w", err)
	}
	return nil
}

// AppendChangeLog appends one structural change record.
func (b *Backend) AppendChangeLog(ctx context.Context, entry *domain.WorkflowChangeLog) error {
	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var fromVersion any
	if entry.FromVersion != nil {
		fromVersion = *entry.FromVersion
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO workflow_change_logs (id, workflow_id, from_version, to_version, change_type, changes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.WorkflowID.String(), fromVersion, entry.ToVersion, string(entry.ChangeType),
		nullBytes(changesJSON), entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append change log: %w", err)
	}
	return nil
}

// ListChangeLog returns workflowID's change log, newest first, capped at
// limit (0 = unlimited).
func (b *Backend) ListChangeLog(ctx context.Context, workflowID uuid.UUID, limit int) ([]*domain.WorkflowChangeLog, error) {
	query := `SELECT id, from_version, to_version, change_type, changes, created_at
		FROM workflow_change_logs WHERE workflow_id = ? ORDER BY created_at DESC`
	args := []any{workflowID.String()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list change log: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkflowChangeLog
	for rows.Next() {
		var entry domain.WorkflowChangeLog
		var idStr string
		var fromVersion sql.NullInt64
		var changesJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&idStr, &fromVersion, &entry.ToVersion, &entry.ChangeType, &changesJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan change log entry: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid change log id: %w", err)
		}
		entry.ID = id
		entry.WorkflowID = workflowID
		if fromVersion.Valid {
			v := int(fromVersion.Int64)
			entry.FromVersion = &v
		}
		if changesJSON.Valid && changesJSON.String != "" {
			if err := json.Unmarshal([]byte(changesJSON.String), &entry.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}
		entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &entry)
	}
	return out, rows.Err()
}

// Get retrieves an idempotency record by (workflowID, taskName, key).
func (b *Backend) Get(ctx context.Context, workflowID uuid.UUID, taskName, key string) (*domain.IdempotencyKey, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, request_hash, status, result, error_message, created_at, completed_at, expires_at
		 FROM idempotency_keys WHERE workflow_id = ? AND task_name = ? AND dedup_key = ?`,
		workflowID.String(), taskName, key)

	var record domain.IdempotencyKey
	var idStr string
	var requestHash, resultJSON, errorMessage sql.NullString
	var createdAt string
	var completedAt, expiresAt sql.NullString

	err := row.Scan(&idStr, &requestHash, &record.Status, &resultJSON, &errorMessage, &createdAt, &completedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid idempotency id: %w", err)
	}
	record.ID = id
	record.WorkflowID = workflowID
	record.TaskName = taskName
	record.Key = key
	record.RequestHash = requestHash.String
	record.ErrorMessage = errorMessage.String
	record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if resultJSON.Valid && resultJSON.String != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &record.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		record.CompletedAt = &t
	}
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339, expiresAt.String)
		record.ExpiresAt = &t
	}
	return &record, nil
}

// Create inserts a new idempotency record.
func (b *Backend) Create(ctx context.Context, record *domain.IdempotencyKey) error {
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (id, workflow_id, task_name, dedup_key, request_hash, status,
			result, error_message, created_at, completed_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(), record.WorkflowID.String(), record.TaskName, record.Key, nullString(record.RequestHash),
		string(record.Status), nullBytes(resultJSON), nullString(record.ErrorMessage),
		record.CreatedAt.Format(time.RFC3339), formatTime(record.CompletedAt), formatTime(record.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create idempotency record: %w", err)
	}
	return nil
}

// Update replaces an existing idempotency record's mutable fields.
func (b *Backend) Update(ctx context.Context, record *domain.IdempotencyKey) error {
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = b.db.ExecContext(ctx,
		`UPDATE idempotency_keys SET status = ?, result = ?, error_message = ?, completed_at = ?
		 WHERE id = ?`,
		string(record.Status), nullBytes(resultJSON), nullString(record.ErrorMessage),
		formatTime(record.CompletedAt), record.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update idempotency record: %w", err)
	}
	return nil
}

// Delete removes an idempotency record by ID.
func (b *Backend) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	return nil
}

// ListExpired returns every idempotency record whose expires_at has
// passed as of asOf.
func (b *Backend) ListExpired(ctx context.Context, asOf time.Time) ([]*domain.IdempotencyKey, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, workflow_id, task_name, dedup_key, request_hash, status, result, error_message,
			created_at, completed_at, expires_at
		 FROM idempotency_keys WHERE expires_at IS NOT NULL AND expires_at < ?`, asOf.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to list expired idempotency records: %w", err)
	}
	defer rows.Close()

	var out []*domain.IdempotencyKey
	for rows.Next() {
		var record domain.IdempotencyKey
		var idStr, workflowIDStr string
		var requestHash, resultJSON, errorMessage sql.NullString
		var createdAt string
		var completedAt, expiresAt sql.NullString

		if err := rows.Scan(&idStr, &workflowIDStr, &record.TaskName, &record.Key, &requestHash, &record.Status,
			&resultJSON, &errorMessage, &createdAt, &completedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan idempotency record: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid idempotency id: %w", err)
		}
		workflowID, err := uuid.Parse(workflowIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid workflow id: %w", err)
		}
		record.ID = id
		record.WorkflowID = workflowID
		record.RequestHash = requestHash.String
		record.ErrorMessage = errorMessage.String
		record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if resultJSON.Valid && resultJSON.String != "" {
			if err := json.Unmarshal([]byte(resultJSON.String), &record.Result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal result: %w", err)
			}
		}
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339, completedAt.String)
			record.CompletedAt = &t
		}
		if expiresAt.Valid {
			t, _ := time.Parse(time.RFC3339, expiresAt.String)
			record.ExpiresAt = &t
		}
		out = append(out, &record)
	}
	return out, rows.Err()
}

// GetVariable retrieves one workflow-scoped plaintext variable.
func (b *Backend) GetVariable(ctx context.Context, workflowID uuid.UUID, key string) (*domain.WorkflowVariable, error) {
	var v domain.WorkflowVariable
	var idStr string
	err := b.db.QueryRowContext(ctx,
		`SELECT id, value FROM workflow_variables WHERE workflow_id = ? AND key = ?`, workflowID.String(), key,
	).Scan(&idStr, &v.Value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get variable: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid variable id: %w", err)
	}
	v.ID = id
	v.WorkflowID = workflowID
	v.Key = key
	return &v, nil
}

// SetVariable inserts or replaces one workflow-scoped plaintext variable.
func (b *Backend) SetVariable(ctx context.Context, variable *domain.WorkflowVariable) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO workflow_variables (id, workflow_id, key, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT(workflow_id, key) DO UPDATE SET value = excluded.value`,
		variable.ID.String(), variable.WorkflowID.String(), variable.Key, variable.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert variable: %w", err)
	}
	return nil
}

// DeleteVariable removes one workflow-scoped variable.
func (b *Backend) DeleteVariable(ctx context.Context, workflowID uuid.UUID, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM workflow_variables WHERE workflow_id = ? AND key = ?`, workflowID.String(), key)
	if err != nil {
		return fmt.Errorf("failed to delete variable: %w", err)
	}
	return nil
}

// ListVariables returns every plaintext variable scoped to workflowID.
func (b *Backend) ListVariables(ctx context.Context, workflowID uuid.UUID) ([]*domain.WorkflowVariable, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, key, value FROM workflow_variables WHERE workflow_id = ?`, workflowID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list variables: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkflowVariable
	for rows.Next() {
		var v domain.WorkflowVariable
		var idStr string
		if err := rows.Scan(&idStr, &v.Key, &v.Value); err != nil {
			return nil, fmt.Errorf("failed to scan variable: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid variable id: %w", err)
		}
		v.ID = id
		v.WorkflowID = workflowID
		out = append(out, &v)
	}
	return out, rows.Err()
}

// GetSecret retrieves one workflow-scoped ciphertext secret.
func (b *Backend) GetSecret(ctx context.Context, workflowID uuid.UUID, key string) (*domain.WorkflowSecret, error) {
	var s domain.WorkflowSecret
	var idStr string
	err := b.db.QueryRowContext(ctx,
		`SELECT id, ciphertext FROM workflow_secrets WHERE workflow_id = ? AND key = ?`, workflowID.String(), key,
	).Scan(&idStr, &s.Ciphertext)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid secret id: %w", err)
	}
	s.ID = id
	s.WorkflowID = workflowID
	s.Key = key
	return &s, nil
}

// SetSecret inserts or replaces one workflow-scoped ciphertext secret.
func (b *Backend) SetSecret(ctx context.Context, secret *domain.WorkflowSecret) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO workflow_secrets (id, workflow_id, key, ciphertext) VALUES (?, ?, ?, ?)
		 ON CONFLICT(workflow_id, key) DO UPDATE SET ciphertext = excluded.ciphertext`,
		secret.ID.String(), secret.WorkflowID.String(), secret.Key, secret.Ciphertext,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert secret: %w", err)
	}
	return nil
}

// DeleteSecret removes one workflow-scoped secret.
func (b *Backend) DeleteSecret(ctx context.Context, workflowID uuid.UUID, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM workflow_secrets WHERE workflow_id = ? AND key = ?`, workflowID.String(), key)
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

// ListSecrets returns every ciphertext secret scoped to workflowID.
func (b *Backend) ListSecrets(ctx context.Context, workflowID uuid.UUID) ([]*domain.WorkflowSecret, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, key, ciphertext FROM workflow_secrets WHERE workflow_id = ?`, workflowID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkflowSecret
	for rows.Next() {
		var s domain.WorkflowSecret
		var idStr string
		if err := rows.Scan(&idStr, &s.Key, &s.Ciphertext); err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid secret id: %w", err)
		}
		s.ID = id
		s.WorkflowID = workflowID
		out = append(out, &s)
	}
	return out, rows.Err()
}

// GetGlobalVariable retrieves one global plaintext variable.
func (b *Backend) GetGlobalVariable(ctx context.Context, key string) (*domain.GlobalVariable, error) {
	var v domain.GlobalVariable
	var idStr string
	err := b.db.QueryRowContext(ctx, `SELECT id, value FROM global_variables WHERE key = ?`, key).Scan(&idStr, &v.Value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global variable: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid global variable id: %w", err)
	}
	v.ID = id
	v.Key = key
	return &v, nil
}

// SetGlobalVariable inserts or replaces one global plaintext variable.
func (b *Backend) SetGlobalVariable(ctx context.Context, variable *domain.GlobalVariable) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO global_variables (id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		variable.ID.String(), variable.Key, variable.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert global variable: %w", err)
	}
	return nil
}

// DeleteGlobalVariable removes one global variable.
func (b *Backend) DeleteGlobalVariable(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM global_variables WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete global variable: %w", err)
	}
	return nil
}

// ListGlobalVariables returns every global plaintext variable.
func (b *Backend) ListGlobalVariables(ctx context.Context) ([]*domain.GlobalVariable, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, key, value FROM global_variables`)
	if err != nil {
		return nil, fmt.Errorf("failed to list global variables: %w", err)
	}
	defer rows.Close()

	var out []*domain.GlobalVariable
	for rows.Next() {
		var v domain.GlobalVariable
		var idStr string
		if err := rows.Scan(&idStr, &v.Key, &v.Value); err != nil {
			return nil, fmt.Errorf("failed to scan global variable: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid global variable id: %w", err)
		}
		v.ID = id
		out = append(out, &v)
	}
	return out, rows.Err()
}

// GetGlobalSecret retrieves one global ciphertext secret.
func (b *Backend) GetGlobalSecret(ctx context.Context, key string) (*domain.GlobalSecret, error) {
	var s domain.GlobalSecret
	var idStr string
	err := b.db.QueryRowContext(ctx, `SELECT id, ciphertext FROM global_secrets WHERE key = ?`, key).Scan(&idStr, &s.Ciphertext)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global secret: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid global secret id: %w", err)
	}
	s.ID = id
	s.Key = key
	return &s, nil
}

// SetGlobalSecret inserts or replaces one global ciphertext secret.
func (b *Backend) SetGlobalSecret(ctx context.Context, secret *domain.GlobalSecret) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO global_secrets (id, key, ciphertext) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET ciphertext = excluded.ciphertext`,
		secret.ID.String(), secret.Key, secret.Ciphertext,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert global secret: %w", err)
	}
	return nil
}

// DeleteGlobalSecret removes one global secret.
func (b *Backend) DeleteGlobalSecret(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM global_secrets WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete global secret: %w", err)
	}
	return nil
}

// ListGlobalSecrets returns every global ciphertext secret.
func (b *Backend) ListGlobalSecrets(ctx context.Context) ([]*domain.GlobalSecret, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, key, ciphertext FROM global_secrets`)
	if err != nil {
		return nil, fmt.Errorf("failed to list global secrets: %w", err)
	}
	defer rows.Close()

	var out []*domain.GlobalSecret
	for rows.Next() {
		var s domain.GlobalSecret
		var idStr string
		if err := rows.Scan(&idStr, &s.Key, &s.Ciphertext); err != nil {
			return nil, fmt.Errorf("failed to scan global secret: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid global secret id: %w", err)
		}
		s.ID = id
		out = append(out, &s)
	}
	return out, rows.Err()
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatTimeOrNow(t time.Time, now time.Time) string {
	if t.IsZero() {
		return now.Format(time.RFC3339)
	}
	return t.Format(time.RFC3339)
}

// nullString returns nil if s is empty, otherwise s.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullBytes returns nil if b is empty or the JSON literal null, otherwise
// its string form.
func nullBytes(b []byte) any {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return string(b)
}
