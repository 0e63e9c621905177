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

// Package idempotency derives deduplication keys for task executions and
// tracks their outcome, so a retried or duplicated dispatch of the same
// logical execution can be recognized and short-circuited rather than
// re-run.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	skeinerrors "github.com/skeinhq/skein/pkg/errors"

	"github.com/skeinhq/skein/internal/domain"
)

const DefaultTTL = 24 * time.Hour

// Store persists idempotency records. Backends implement this directly;
// it is intentionally small since every deployment backend (memory,
// sqlite, postgres) needs the same five operations.
type Store interface {
	Get(ctx context.Context, workflowID uuid.UUID, taskName, key string) (*domain.IdempotencyKey, error)
	Create(ctx context.Context, record *domain.IdempotencyKey) error
	Update(ctx context.Context, record *domain.IdempotencyKey) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListExpired(ctx context.Context, asOf time.Time) ([]*domain.IdempotencyKey, error)
}

// GenerateKey builds the deterministic key "workflow_id:task_name" or, when
// payload is non-empty, "workflow_id:task_name:payload_hash16" where
// payload_hash16 is the first 16 hex characters of the SHA-256 digest of
// payload serialized with sorted keys.
func GenerateKey(workflowID uuid.UUID, taskName string, payload map[string]any) (string, error) {
	key := fmt.Sprintf("%s:%s", workflowID, taskName)
	if len(payload) == 0 {
		return key, nil
	}
	hash, _, err := hashPayload(payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", key, hash[:16]), nil
}

// requestHash returns the full (untruncated) hex SHA-256 digest of payload,
// serialized with sorted keys, for exact-match fingerprinting distinct from
// the (possibly truncated) dedup key itself.
func requestHash(payload map[string]any) (string, error) {
	hash, _, err := hashPayload(payload)
	return hash, err
}

func hashPayload(payload map[string]any) (string, []byte, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", nil, fmt.Errorf("canonicalizing payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), canonical, nil
}

// canonicalJSON serializes v with object keys sorted, matching the
// sort_keys=True behavior Go's encoding/json already provides for map
// values (Go sorts map[string]any keys when marshaling).
func canonicalJSON(v map[string]any) ([]byte, error) {
	return json.Marshal(v)
}

// Checker wraps a Store with the check/create/complete/fail workflow used
// by task execution.
type Checker struct {
	store Store
	ttl   time.Duration
}

func New(store Store, ttl time.Duration) *Checker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Checker{store: store, ttl: ttl}
}

// Check looks up an existing record for (workflowID, taskName, key).
//
//   - No record, or an expired record (deleted as a side effect): not a
//     duplicate, proceed.
//   - status "processing": a concurrent execution is in flight; returns
//     IdempotencyConflictError.
//   - status "completed": a duplicate; the cached record is returned so the
//     caller can reuse its Result without re-running the task.
//   - status "failed": not treated as a duplicate — the caller may retry.
func (c *Checker) Check(ctx context.Context, workflowID uuid.UUID, taskName, key string) (duplicate bool, existing *domain.IdempotencyKey, err error) {
	record, err := c.store.Get(ctx, workflowID, taskName, key)
	if err != nil {
		return false, nil, err
	}
	if record == nil {
		return false, nil, nil
	}

	if record.ExpiresAt != nil && record.ExpiresAt.Before(timeNow()) {
		_ = c.store.Delete(ctx, record.ID)
		return false, nil, nil
	}

	switch record.Status {
	case domain.IdempotencyProcessing:
		return true, record, &skeinerrors.IdempotencyConflictError{Key: key, Status: string(record.Status)}
	case domain.IdempotencyCompleted:
		return true, record, nil
	case domain.IdempotencyFailed:
		return false, record, nil
	default:
		return false, nil, nil
	}
}

// Begin creates a "processing" record for the given key, recording the full
// request hash of payload for later comparison.
func (c *Checker) Begin(ctx context.Context, workflowID uuid.UUID, taskName, key string, payload map[string]any) (*domain.IdempotencyKey, error) {
	var hash string
	if len(payload) > 0 {
		h, err := requestHash(payload)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	now := timeNow()
	expires := now.Add(c.ttl)
	record := &domain.IdempotencyKey{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		TaskName:    taskName,
		Key:         key,
		RequestHash: hash,
		Status:      domain.IdempotencyProcessing,
		CreatedAt:   now,
		ExpiresAt:   &expires,
	}
	if err := c.store.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Complete marks record completed with result, recording completion time.
func (c *Checker) Complete(ctx context.Context, record *domain.IdempotencyKey, result map[string]any) error {
	now := timeNow()
	record.Status = domain.IdempotencyCompleted
	record.Result = result
	record.CompletedAt = &now
	return c.store.Update(ctx, record)
}

// Fail marks record failed with errMsg, recording completion time.
func (c *Checker) Fail(ctx context.Context, record *domain.IdempotencyKey, errMsg string) error {
	now := timeNow()
	record.Status = domain.IdempotencyFailed
	record.ErrorMessage = errMsg
	record.CompletedAt = &now
	return c.store.Update(ctx, record)
}

// CleanupExpired deletes and returns the count of records whose ExpiresAt
// has passed.
func (c *Checker) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := c.store.ListExpired(ctx, timeNow())
	if err != nil {
		return 0, err
	}
	for _, record := range expired {
		if err := c.store.Delete(ctx, record.ID); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// timeNow is a seam for deterministic testing.
var timeNow = time.Now
