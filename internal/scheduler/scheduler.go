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

// Package scheduler runs the cron trigger loop: on a fixed check interval
// it polls for due workflow schedules and triggers their execution.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skeinhq/skein/internal/domain"
)

// Store is the persistence port the scheduler needs: enumerate due
// schedules, inspect a workflow's current status to avoid double-triggering
// an in-flight run, and persist a schedule's updated next_run/last_run/
// enabled fields.
type Store interface {
	DueSchedules(ctx context.Context, asOf time.Time) ([]*domain.WorkflowSchedule, error)
	WorkflowStatus(ctx context.Context, workflowID uuid.UUID) (domain.WorkflowStatus, bool, error)
	SaveSchedule(ctx context.Context, schedule *domain.WorkflowSchedule) error
}

// TriggerFunc starts execution of workflowID. It is invoked from a
// goroutine per due schedule and must not block the tick loop.
type TriggerFunc func(ctx context.Context, workflowID uuid.UUID) error

// Scheduler polls Store on a fixed interval and triggers due workflows.
type Scheduler struct {
	mu            sync.Mutex
	store         Store
	trigger       TriggerFunc
	checkInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
	running       bool
	logger        *slog.Logger
}

// New creates a Scheduler that checks for due schedules every checkInterval.
func New(store Store, trigger TriggerFunc, checkInterval time.Duration) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = 60 * time.Second
	}
	return &Scheduler{
		store:         store,
		trigger:       trigger,
		checkInterval: checkInterval,
		logger:        slog.Default().With(slog.String("component", "scheduler")),
	}
}

// Start begins the tick loop in a background goroutine. Calling Start while
// already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop cancels the tick loop cooperatively and waits for it to exit. Any
// tick already in flight completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick checks for due schedules and triggers each, skipping a schedule
// whose workflow is already running and advancing its next_run regardless
// so a slow-running workflow does not get re-triggered on every tick.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	due, err := s.store.DueSchedules(ctx, now)
	if err != nil {
		s.logger.Error("listing due schedules failed", slog.Any("error", err))
		return
	}

	s.logger.Debug("found due schedules", slog.Int("count", len(due)))

	for _, sched := range due {
		s.executeDue(ctx, sched, now)
	}
}

func (s *Scheduler) executeDue(ctx context.Context, sched *domain.WorkflowSchedule, now time.Time) {
	schedLogger := s.logger.With(slog.String("schedule_id", sched.ID.String()), slog.String("workflow_id", sched.WorkflowID.String()))

	status, found, err := s.store.WorkflowStatus(ctx, sched.WorkflowID)
	if err != nil {
		schedLogger.Error("checking workflow status failed", slog.Any("error", err))
		return
	}
	if !found {
		schedLogger.Error("workflow not found, disabling schedule")
		sched.Enabled = false
		_ = s.store.SaveSchedule(ctx, sched)
		return
	}

	if status == domain.WorkflowRunning {
		schedLogger.Warn("workflow already running, skipping this trigger")
		s.advance(ctx, sched, now)
		return
	}

	schedLogger.Info("triggering scheduled workflow")
	go func() {
		if err := s.trigger(ctx, sched.WorkflowID); err != nil {
			schedLogger.Error("scheduled trigger failed", slog.Any("error", err))
		}
	}()

	s.advance(ctx, sched, now)
}

func (s *Scheduler) advance(ctx context.Context, sched *domain.WorkflowSchedule, now time.Time) {
	expr, err := ParseCron(sched.CronExpression)
	if err != nil {
		s.logger.Error("invalid cron expression, disabling schedule", slog.String("cron", sched.CronExpression), slog.Any("error", err))
		sched.Enabled = false
		_ = s.store.SaveSchedule(ctx, sched)
		return
	}

	loc := time.UTC
	if sched.Timezone != "" {
		if l, err := time.LoadLocation(sched.Timezone); err == nil {
			loc = l
		}
	}

	next := expr.Next(now.In(loc))
	lastRun := now
	sched.NextRun = &next
	sched.LastRun = &lastRun

	if err := s.store.SaveSchedule(ctx, sched); err != nil {
		s.logger.Error("saving schedule failed", slog.Any("error", err))
	}
}
