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

package idempotency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinhq/skein/internal/domain"
	"github.com/skeinhq/skein/internal/idempotency"
	skeinerrors "github.com/skeinhq/skein/pkg/errors"
)

// memoryStore is a minimal map-backed idempotency.Store for tests.
type memoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.IdempotencyKey
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[uuid.UUID]*domain.IdempotencyKey)}
}

func (s *memoryStore) Get(ctx context.Context, workflowID uuid.UUID, taskName, key string) (*domain.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.WorkflowID == workflowID && r.TaskName == taskName && r.Key == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) Create(ctx context.Context, record *domain.IdempotencyKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.ID] = &cp
	return nil
}

func (s *memoryStore) Update(ctx context.Context, record *domain.IdempotencyKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.ID] = &cp
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memoryStore) ListExpired(ctx context.Context, asOf time.Time) ([]*domain.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.IdempotencyKey
	for _, r := range s.records {
		if r.ExpiresAt != nil && r.ExpiresAt.Before(asOf) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func TestGenerateKey_Deterministic(t *testing.T) {
	wfID := uuid.New()
	payload := map[string]any{"b": 2, "a": 1}

	k1, err := idempotency.GenerateKey(wfID, "send_email", payload)
	require.NoError(t, err)
	k2, err := idempotency.GenerateKey(wfID, "send_email", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "key order must not affect the hash")
	assert.Contains(t, k1, wfID.String()+":send_email:")
}

func TestGenerateKey_NoPayloadOmitsHashSegment(t *testing.T) {
	wfID := uuid.New()
	k, err := idempotency.GenerateKey(wfID, "send_email", nil)
	require.NoError(t, err)
	assert.Equal(t, wfID.String()+":send_email", k)
}

func TestCheck_NoRecordIsNotDuplicate(t *testing.T) {
	store := newMemoryStore()
	checker := idempotency.New(store, time.Hour)

	dup, existing, err := checker.Check(context.Background(), uuid.New(), "task", "key")
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Nil(t, existing)
}

func TestBeginThenCheck_ProcessingIsConflict(t *testing.T) {
	store := newMemoryStore()
	checker := idempotency.New(store, time.Hour)
	wfID := uuid.New()

	_, err := checker.Begin(context.Background(), wfID, "task", "key", map[string]any{"x": 1})
	require.NoError(t, err)

	dup, existing, err := checker.Check(context.Background(), wfID, "task", "key")
	assert.True(t, dup)
	require.NotNil(t, existing)
	var conflictErr *skeinerrors.IdempotencyConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "key", conflictErr.Key)
}

func TestCompletedRecordIsDuplicateWithCachedResult(t *testing.T) {
	store := newMemoryStore()
	checker := idempotency.New(store, time.Hour)
	wfID := uuid.New()

	record, err := checker.Begin(context.Background(), wfID, "task", "key", nil)
	require.NoError(t, err)
	require.NoError(t, checker.Complete(context.Background(), record, map[string]any{"ok": true}))

	dup, existing, err := checker.Check(context.Background(), wfID, "task", "key")
	require.NoError(t, err)
	assert.True(t, dup)
	require.NotNil(t, existing)
	assert.Equal(t, domain.IdempotencyCompleted, existing.Status)
	assert.Equal(t, true, existing.Result["ok"])
}

func TestFailedRecordIsNotDuplicate(t *testing.T) {
	store := newMemoryStore()
	checker := idempotency.New(store, time.Hour)
	wfID := uuid.New()

	record, err := checker.Begin(context.Background(), wfID, "task", "key", nil)
	require.NoError(t, err)
	require.NoError(t, checker.Fail(context.Background(), record, "boom"))

	dup, existing, err := checker.Check(context.Background(), wfID, "task", "key")
	require.NoError(t, err)
	assert.False(t, dup, "a failed task should be eligible for retry")
	require.NotNil(t, existing)
	assert.Equal(t, domain.IdempotencyFailed, existing.Status)
}

func TestExpiredRecordIsDeletedAndNotDuplicate(t *testing.T) {
	store := newMemoryStore()
	checker := idempotency.New(store, time.Millisecond)
	wfID := uuid.New()

	record, err := checker.Begin(context.Background(), wfID, "task", "key", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	dup, existing, err := checker.Check(context.Background(), wfID, "task", "key")
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Nil(t, existing)

	got, err := store.Get(context.Background(), wfID, "task", record.Key)
	require.NoError(t, err)
	assert.Nil(t, got, "expired record should be deleted as a side effect of Check")
}

func TestCleanupExpired_DeletesAndCounts(t *testing.T) {
	store := newMemoryStore()
	checker := idempotency.New(store, time.Millisecond)
	wfID := uuid.New()

	_, err := checker.Begin(context.Background(), wfID, "task-a", "key-a", nil)
	require.NoError(t, err)
	_, err = checker.Begin(context.Background(), wfID, "task-b", "key-b", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	count, err := checker.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
