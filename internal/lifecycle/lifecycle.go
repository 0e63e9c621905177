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

// Package lifecycle implements the workflow pause/resume/cancel state
// machine. The runner observes a workflow's persisted status between DAG
// layers (see internal/runner); this package only governs the transitions
// themselves and leaves enforcement of the "between layers" boundary to the
// caller.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skeinhq/skein/internal/domain"
	skeinerrors "github.com/skeinhq/skein/pkg/errors"
)

// Store is the minimal persistence port lifecycle needs: load and save a
// workflow's mutable status fields.
type Store interface {
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error
}

// Controller applies pause/resume/cancel transitions against a Store.
type Controller struct {
	store Store
}

func New(store Store) *Controller {
	return &Controller{store: store}
}

// Pause transitions a "pending" or "running" workflow to "paused",
// recording paused_at. Any other status is rejected with
// StateTransitionError.
func (c *Controller) Pause(ctx context.Context, workflowID uuid.UUID) (*domain.Workflow, error) {
	workflow, err := c.get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	switch workflow.Status {
	case domain.WorkflowPending, domain.WorkflowRunning:
		now := time.Now()
		workflow.Status = domain.WorkflowPaused
		workflow.PausedAt = &now
		workflow.UpdatedAt = now
	default:
		return nil, &skeinerrors.StateTransitionError{Entity: "workflow", Op: "pause", FromStatus: string(workflow.Status)}
	}

	if err := c.store.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}
	return workflow, nil
}

// Resume transitions a "paused" workflow back to "pending", clearing
// paused_at. It does not start execution itself; a later Runner.Run of the
// workflow skips tasks that already completed. Any other status is
// rejected.
func (c *Controller) Resume(ctx context.Context, workflowID uuid.UUID) (*domain.Workflow, error) {
	workflow, err := c.get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != domain.WorkflowPaused {
		return nil, &skeinerrors.StateTransitionError{Entity: "workflow", Op: "resume", FromStatus: string(workflow.Status)}
	}

	workflow.Status = domain.WorkflowPending
	workflow.PausedAt = nil
	workflow.UpdatedAt = time.Now()

	if err := c.store.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}
	return workflow, nil
}

// Cancel transitions a non-terminal workflow to "cancelled" permanently.
// Terminal workflows (completed/failed/cancelled) are rejected.
func (c *Controller) Cancel(ctx context.Context, workflowID uuid.UUID) (*domain.Workflow, error) {
	workflow, err := c.get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status.IsTerminal() {
		return nil, &skeinerrors.StateTransitionError{Entity: "workflow", Op: "cancel", FromStatus: string(workflow.Status)}
	}

	workflow.Status = domain.WorkflowCancelled
	workflow.PausedAt = nil
	workflow.UpdatedAt = time.Now()

	if err := c.store.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}
	return workflow, nil
}

func (c *Controller) get(ctx context.Context, workflowID uuid.UUID) (*domain.Workflow, error) {
	workflow, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, &skeinerrors.NotFoundError{Resource: "workflow", ID: workflowID.String()}
	}
	return workflow, nil
}

// Description reports which transitions are currently legal for status,
// mirroring the fields a status API response exposes to callers.
type Description struct {
	Status    domain.WorkflowStatus `json:"status"`
	IsPaused  bool                  `json:"is_paused"`
	CanPause  bool                  `json:"can_pause"`
	CanResume bool                  `json:"can_resume"`
	CanCancel bool                  `json:"can_cancel"`
}

// Describe returns which of pause/resume/cancel apply from status, without
// touching storage.
func Describe(status domain.WorkflowStatus) Description {
	return Description{
		Status:    status,
		IsPaused:  status == domain.WorkflowPaused,
		CanPause:  status == domain.WorkflowPending || status == domain.WorkflowRunning,
		CanResume: status == domain.WorkflowPaused,
		CanCancel: !status.IsTerminal(),
	}
}
