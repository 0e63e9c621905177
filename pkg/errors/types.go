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

package errors

import (
	"fmt"
	"time"
)

// ValidationError represents user input validation failures.
// Use this for invalid user input, malformed data, or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a resource not found error.
// Use this when a requested resource does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "workflow", "tool", "connector")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ProviderError represents a failure raised by a task action handler.
// Use this for errors originating from external action handlers (http_request,
// shell_command, and similar action_type dispatches).
type ProviderError struct {
	// Provider is the action_type that failed (e.g., "http_request", "shell_command")
	Provider string

	// Code is the provider-specific error code
	Code int

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Message is the human-readable error message
	Message string

	// Suggestion provides actionable guidance for resolution
	Suggestion string

	// RequestID correlates this error with provider logs
	RequestID string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s error", e.Provider)

	if e.Code > 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.Code)
	}

	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}

	msg = fmt.Sprintf("%s: %s", msg, e.Message)

	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}

	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "api_key", "database.host")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts.
// Use this when an operation exceeds its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "LLM request", "workflow step")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// DAGValidationError represents a rejected workflow task graph.
// Use this for an unknown dependency name or a dependency cycle.
type DAGValidationError struct {
	// Reason is "cycle" or "unknown_dependency".
	Reason string

	// TaskName is the task implicated in the failure, when known.
	TaskName string

	// DependencyName is the offending dependency name, for unknown_dependency.
	DependencyName string
}

// Error implements the error interface.
func (e *DAGValidationError) Error() string {
	switch e.Reason {
	case "unknown_dependency":
		return fmt.Sprintf("invalid DAG: task %q depends on unknown task %q", e.TaskName, e.DependencyName)
	case "cycle":
		return "invalid DAG: dependency cycle detected"
	default:
		return fmt.Sprintf("invalid DAG: %s", e.Reason)
	}
}

// StateTransitionError represents a rejected lifecycle transition
// (pause/resume/cancel) that does not apply from the entity's current state.
type StateTransitionError struct {
	// Entity is the kind of entity (e.g., "workflow").
	Entity string

	// Op is the attempted operation (e.g., "pause", "resume", "cancel").
	Op string

	// FromStatus is the entity's current status.
	FromStatus string
}

// Error implements the error interface.
func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s from status %q", e.Op, e.Entity, e.FromStatus)
}

// TaskFailedError represents a task that exhausted its retry budget.
type TaskFailedError struct {
	// TaskName is the task that failed.
	TaskName string

	// Attempts is the number of attempts made before giving up.
	Attempts int

	// Cause is the final attempt's underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %q failed after %d attempt(s): %v", e.TaskName, e.Attempts, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TaskFailedError) Unwrap() error {
	return e.Cause
}

// EncryptionError represents a symmetric encrypt/decrypt failure.
// Fatal for the affected interpolation or secret access; never crashes the runner.
type EncryptionError struct {
	// Op is "encrypt", "decrypt", "generate-key" or "decode-key".
	Op string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *EncryptionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *EncryptionError) Unwrap() error {
	return e.Cause
}

// RepositoryError represents a persistence-layer failure.
// The enclosing transaction, if any, is rolled back by the caller.
type RepositoryError struct {
	// Op describes the failed operation (e.g., "create workflow", "list schedules").
	Op string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

// IdempotencyConflictError represents an in-flight duplicate execution request.
type IdempotencyConflictError struct {
	// Key is the idempotency key in conflict.
	Key string

	// Status is the conflicting record's status (always "processing").
	Status string
}

// Error implements the error interface.
func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("idempotency key %q is already %s", e.Key, e.Status)
}
