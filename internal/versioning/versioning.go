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

// Package versioning snapshots workflow definitions as content-addressed
// versions, tracks structural changes between them, and supports rollback
// to any prior version.
package versioning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/skeinhq/skein/internal/domain"
	skeinerrors "github.com/skeinhq/skein/pkg/errors"
)

// Store persists versions and change log entries. Backends implement this
// directly.
type Store interface {
	LatestVersion(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowVersion, error)
	GetVersion(ctx context.Context, workflowID uuid.UUID, versionNumber int) (*domain.WorkflowVersion, error)
	ListVersions(ctx context.Context, workflowID uuid.UUID, includeDrafts bool, limit int) ([]*domain.WorkflowVersion, error)
	SaveVersion(ctx context.Context, version *domain.WorkflowVersion) error
	AppendChangeLog(ctx context.Context, entry *domain.WorkflowChangeLog) error
	ListChangeLog(ctx context.Context, workflowID uuid.UUID, limit int) ([]*domain.WorkflowChangeLog, error)
}

// Engine is the versioning service.
type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// Checksum returns the hex SHA-256 digest of def serialized with sorted
// object keys, so two structurally identical definitions always hash the
// same regardless of field insertion order.
func Checksum(def domain.WorkflowDefinition) (string, error) {
	canonical, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("canonicalizing definition: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// CreateVersionParams configures CreateVersion.
type CreateVersionParams struct {
	WorkflowID    uuid.UUID
	Definition    domain.WorkflowDefinition
	ChangeSummary string
	ChangedBy     string
	VersionTag    string
	IsDraft       bool
}

// CreateVersion snapshots params.Definition as a new version. If the
// snapshot's checksum matches the latest existing version's checksum, no
// new version is created and the existing one is returned unchanged
// (idempotent snapshotting). Otherwise a new version is appended, the
// previous active (non-draft) version is deactivated unless the new one is
// itself a draft, and a change log entry is recorded.
func (e *Engine) CreateVersion(ctx context.Context, params CreateVersionParams) (*domain.WorkflowVersion, error) {
	latest, err := e.store.LatestVersion(ctx, params.WorkflowID)
	if err != nil {
		return nil, err
	}

	checksum, err := Checksum(params.Definition)
	if err != nil {
		return nil, err
	}

	if latest != nil && latest.Checksum == checksum {
		return latest, nil
	}

	versionNumber := 1
	if latest != nil {
		versionNumber = latest.VersionNumber + 1
	}

	if !params.IsDraft && latest != nil && latest.IsActive {
		latest.IsActive = false
		if err := e.store.SaveVersion(ctx, latest); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	newVersion := &domain.WorkflowVersion{
		ID:            uuid.New(),
		WorkflowID:    params.WorkflowID,
		VersionNumber: versionNumber,
		VersionTag:    params.VersionTag,
		Definition:    params.Definition,
		Checksum:      checksum,
		IsActive:      !params.IsDraft,
		IsDraft:       params.IsDraft,
		ChangedBy:     params.ChangedBy,
		ChangeSummary: params.ChangeSummary,
		CreatedAt:     now,
	}
	if !params.IsDraft {
		newVersion.ActivatedAt = &now
	}

	if err := e.store.SaveVersion(ctx, newVersion); err != nil {
		return nil, err
	}

	var oldDef *domain.WorkflowDefinition
	var fromVersion *int
	if latest != nil {
		oldDef = &latest.Definition
		fromVersion = &latest.VersionNumber
	}
	changes, err := Diff(oldDef, &params.Definition)
	if err != nil {
		return nil, err
	}

	changeType := domain.ChangeCreated
	if latest != nil {
		changeType = domain.ChangeUpdated
	}

	if err := e.store.AppendChangeLog(ctx, &domain.WorkflowChangeLog{
		ID:          uuid.New(),
		WorkflowID:  params.WorkflowID,
		FromVersion: fromVersion,
		ToVersion:   versionNumber,
		ChangeType:  changeType,
		Changes:     changes,
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	return newVersion, nil
}

// Diff computes the shallow field-level difference between two workflow
// definitions. A nil oldDef reports every field of newDef as added. Fields
// present in both but unequal are reported as modified with their old and
// new values; fields present only in oldDef are reported as removed.
func Diff(oldDef, newDef *domain.WorkflowDefinition) (map[string]any, error) {
	newFields, err := toFieldMap(newDef)
	if err != nil {
		return nil, err
	}

	if oldDef == nil {
		return map[string]any{"change_type": "created", "added": newFields}, nil
	}

	oldFields, err := toFieldMap(oldDef)
	if err != nil {
		return nil, err
	}

	added := map[string]any{}
	modified := map[string]any{}
	for k, newValue := range newFields {
		oldValue, ok := oldFields[k]
		if !ok {
			added[k] = newValue
			continue
		}
		if !jsonEqual(oldValue, newValue) {
			modified[k] = map[string]any{"old": oldValue, "new": newValue}
		}
	}

	removed := map[string]any{}
	for k, oldValue := range oldFields {
		if _, ok := newFields[k]; !ok {
			removed[k] = oldValue
		}
	}

	return map[string]any{
		"added":    added,
		"removed":  removed,
		"modified": modified,
	}, nil
}

func toFieldMap(def *domain.WorkflowDefinition) (map[string]any, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encoding definition: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding definition: %w", err)
	}
	return fields, nil
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

// GetVersion retrieves one version by number.
func (e *Engine) GetVersion(ctx context.Context, workflowID uuid.UUID, versionNumber int) (*domain.WorkflowVersion, error) {
	return e.store.GetVersion(ctx, workflowID, versionNumber)
}

// ListVersions lists versions newest-first, optionally including drafts.
func (e *Engine) ListVersions(ctx context.Context, workflowID uuid.UUID, includeDrafts bool, limit int) ([]*domain.WorkflowVersion, error) {
	versions, err := e.store.ListVersions(ctx, workflowID, includeDrafts, limit)
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNumber > versions[j].VersionNumber
	})
	return versions, nil
}

// Compare computes the diff between two existing versions of a workflow.
func (e *Engine) Compare(ctx context.Context, workflowID uuid.UUID, versionA, versionB int) (map[string]any, error) {
	a, err := e.store.GetVersion(ctx, workflowID, versionA)
	if err != nil {
		return nil, err
	}
	b, err := e.store.GetVersion(ctx, workflowID, versionB)
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, &skeinerrors.NotFoundError{Resource: "workflow_version", ID: fmt.Sprintf("%d or %d", versionA, versionB)}
	}
	return Diff(&a.Definition, &b.Definition)
}

// Rollback restores a workflow to the full canonical definition of
// versionNumber — name, description, and the complete task list — by
// snapshotting that definition as a new version and recording a
// "rolled_back" change log entry. Unlike a simple pointer move, this keeps
// version history strictly append-only: the rollback itself becomes the
// new latest version, and prior versions remain inspectable.
func (e *Engine) Rollback(ctx context.Context, workflowID uuid.UUID, versionNumber int, changedBy string) (*domain.WorkflowVersion, error) {
	target, err := e.store.GetVersion(ctx, workflowID, versionNumber)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, &skeinerrors.NotFoundError{Resource: "workflow_version", ID: fmt.Sprintf("%d", versionNumber)}
	}

	newVersion, err := e.CreateVersion(ctx, CreateVersionParams{
		WorkflowID:    workflowID,
		Definition:    target.Definition,
		ChangeSummary: fmt.Sprintf("Rolled back to version %d", versionNumber),
		ChangedBy:     changedBy,
	})
	if err != nil {
		return nil, err
	}

	fromVersion := newVersion.VersionNumber - 1
	if err := e.store.AppendChangeLog(ctx, &domain.WorkflowChangeLog{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		FromVersion: &fromVersion,
		ToVersion:   newVersion.VersionNumber,
		ChangeType:  domain.ChangeRolledBack,
		Changes:     map[string]any{"rolled_back_to": versionNumber},
		CreatedAt:   time.Now(),
	}); err != nil {
		return nil, err
	}

	return newVersion, nil
}

// ChangeLog returns the most recent change log entries for a workflow,
// newest first.
func (e *Engine) ChangeLog(ctx context.Context, workflowID uuid.UUID, limit int) ([]*domain.WorkflowChangeLog, error) {
	entries, err := e.store.ListChangeLog(ctx, workflowID, limit)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}
