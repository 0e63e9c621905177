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

package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinhq/skein/internal/domain"
	"github.com/skeinhq/skein/internal/scheduler"
)

type fakeStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*domain.WorkflowSchedule
	statuses  map[uuid.UUID]domain.WorkflowStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		schedules: make(map[uuid.UUID]*domain.WorkflowSchedule),
		statuses:  make(map[uuid.UUID]domain.WorkflowStatus),
	}
}

func (s *fakeStore) DueSchedules(ctx context.Context, asOf time.Time) ([]*domain.WorkflowSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*domain.WorkflowSchedule
	for _, sched := range s.schedules {
		if !sched.Enabled {
			continue
		}
		if sched.NextRun == nil || !sched.NextRun.After(asOf) {
			cp := *sched
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (s *fakeStore) WorkflowStatus(ctx context.Context, workflowID uuid.UUID) (domain.WorkflowStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[workflowID]
	return status, ok, nil
}

func (s *fakeStore) SaveSchedule(ctx context.Context, sched *domain.WorkflowSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sched
	s.schedules[sched.ID] = &cp
	return nil
}

func TestScheduler_TriggersDueWorkflowAndAdvancesNextRun(t *testing.T) {
	store := newFakeStore()
	wfID := uuid.New()
	store.statuses[wfID] = domain.WorkflowPending
	store.schedules[uuid.New()] = &domain.WorkflowSchedule{
		ID:             uuid.New(),
		WorkflowID:     wfID,
		CronExpression: "* * * * *",
		Enabled:        true,
		NextRun:        nil,
	}

	var triggered int
	var mu sync.Mutex
	done := make(chan struct{}, 1)
	trigger := func(ctx context.Context, workflowID uuid.UUID) error {
		mu.Lock()
		triggered++
		mu.Unlock()
		assert.Equal(t, wfID, workflowID)
		done <- struct{}{}
		return nil
	}

	sched := scheduler.New(store, trigger, 30*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not trigger due workflow in time")
	}

	mu.Lock()
	count := triggered
	mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestScheduler_SkipsAlreadyRunningWorkflowButAdvances(t *testing.T) {
	store := newFakeStore()
	wfID := uuid.New()
	store.statuses[wfID] = domain.WorkflowRunning
	schedID := uuid.New()
	store.schedules[schedID] = &domain.WorkflowSchedule{
		ID:             schedID,
		WorkflowID:     wfID,
		CronExpression: "* * * * *",
		Enabled:        true,
	}

	triggerCalled := make(chan struct{}, 1)
	trigger := func(ctx context.Context, workflowID uuid.UUID) error {
		triggerCalled <- struct{}{}
		return nil
	}

	sched := scheduler.New(store, trigger, 30*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	select {
	case <-triggerCalled:
		t.Fatal("trigger must not be called for an already-running workflow")
	case <-time.After(200 * time.Millisecond):
	}

	store.mu.Lock()
	advanced := store.schedules[schedID].NextRun != nil
	store.mu.Unlock()
	assert.True(t, advanced, "next_run must still be advanced to avoid repeated attempts")
}

func TestScheduler_DisablesScheduleWhenWorkflowMissing(t *testing.T) {
	store := newFakeStore()
	wfID := uuid.New()
	schedID := uuid.New()
	store.schedules[schedID] = &domain.WorkflowSchedule{
		ID:             schedID,
		WorkflowID:     wfID,
		CronExpression: "* * * * *",
		Enabled:        true,
	}

	trigger := func(ctx context.Context, workflowID uuid.UUID) error { return nil }
	sched := scheduler.New(store, trigger, 30*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return !store.schedules[schedID].Enabled
	}, 3*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopIsIdempotentAndWaitsForLoopExit(t *testing.T) {
	store := newFakeStore()
	trigger := func(ctx context.Context, workflowID uuid.UUID) error { return nil }
	sched := scheduler.New(store, trigger, 30*time.Millisecond)

	sched.Start(context.Background())
	sched.Stop()
	sched.Stop()
}
