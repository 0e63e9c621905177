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

package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/skeinhq/skein/internal/domain"
)

// OrphanReason is the error carried by the workflow-status event that
// ReconcileOrphaned publishes when it marks a workflow failed.
const OrphanReason = "orphaned"

// ReconcileOrphaned marks every workflow left in "running" status as
// failed with reason "orphaned". Call once at process startup: a crash
// mid-execution leaves in-flight workflows stuck in "running" forever
// since nothing will ever observe them settle otherwise.
func (r *Runner) ReconcileOrphaned(ctx context.Context) (int, error) {
	running, err := r.repo.ListRunningWorkflows(ctx)
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, workflow := range running {
		workflow.Status = domain.WorkflowFailed
		workflow.UpdatedAt = time.Now()
		workflow.PausedAt = nil
		if err := r.repo.SaveWorkflow(ctx, workflow); err != nil {
			r.logger.Error("reconciling orphaned workflow failed",
				slog.String("workflow_id", workflow.ID.String()), slog.Any("error", err))
			continue
		}
		r.bus.PublishWorkflowStatus(ctx, workflow.ID.String(), string(domain.WorkflowFailed), map[string]any{"error": OrphanReason})
		r.logger.Warn("marked orphaned workflow as failed", slog.String("workflow_id", workflow.ID.String()))
		reconciled++
	}
	return reconciled, nil
}
