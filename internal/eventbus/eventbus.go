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

// Package eventbus is a best-effort, in-process pub/sub fan-out for
// workflow and task status transitions. Subscribers join and leave at any
// time. A listener's returned error is ignored: the listener stays
// subscribed and delivery to the other listeners continues. Publish
// returns only after every listener has returned, so a slow listener
// delays the publisher.
package eventbus

import (
	"context"
	"sync"
)

// EventType discriminates the published message shapes.
type EventType string

const (
	// EventWorkflowStatus carries {workflow_id, status[, error]}.
	EventWorkflowStatus EventType = "workflow_status"
	// EventTaskStatus carries {task_id, task_name, status[, error, result]}.
	EventTaskStatus EventType = "task_status"
)

// Event is one published status transition.
type Event struct {
	Type EventType
	Data map[string]any
}

// Listener receives published events. The bus ignores the returned error:
// a listener that errors is not removed, and Publish waits for it to return.
type Listener func(ctx context.Context, event *Event) error

// Bus is a fan-out sink of structured status events.
type Bus struct {
	mu        sync.RWMutex
	listeners map[EventType][]Listener
	async     bool
}

// New creates an event bus. When async is true, Publish dispatches to all
// subscribers concurrently and waits for them to finish before returning;
// when false, dispatch is synchronous and in subscription order. Either
// way, per-publisher ordering is preserved: a single goroutine's sequence
// of Publish calls is delivered to each subscriber in that order.
func New(async bool) *Bus {
	return &Bus{
		listeners: make(map[EventType][]Listener),
		async:     async,
	}
}

// On subscribes listener to events of the given type.
func (b *Bus) On(eventType EventType, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], listener)
}

// Off removes all currently-registered listeners for eventType. Individual
// listener removal by identity is not supported since Go function values
// are not comparable; callers that need fine-grained unsubscribe should
// wrap their listener with a closure over an atomic "enabled" flag.
func (b *Bus) Off(eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, eventType)
}

// ListenerCount reports how many listeners are registered for eventType.
func (b *Bus) ListenerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[eventType])
}

// RemoveAllListeners clears every subscription on the bus.
func (b *Bus) RemoveAllListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[EventType][]Listener)
}

// Publish fans event out to every subscriber of its type. Errors returned
// by listeners are swallowed: a dead subscriber never blocks or breaks the
// publisher, matching the best-effort delivery contract.
func (b *Bus) Publish(ctx context.Context, event *Event) {
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners[event.Type]...)
	b.mu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	if b.async {
		b.publishAsync(ctx, listeners, event)
	} else {
		b.publishSync(ctx, listeners, event)
	}
}

func (b *Bus) publishSync(ctx context.Context, listeners []Listener, event *Event) {
	for _, l := range listeners {
		_ = l(ctx, event)
	}
}

func (b *Bus) publishAsync(ctx context.Context, listeners []Listener, event *Event) {
	var wg sync.WaitGroup
	wg.Add(len(listeners))
	for _, l := range listeners {
		go func(l Listener) {
			defer wg.Done()
			_ = l(ctx, event)
		}(l)
	}
	wg.Wait()
}

// PublishWorkflowStatus is a convenience wrapper around Publish for
// workflow-level status transitions.
func (b *Bus) PublishWorkflowStatus(ctx context.Context, workflowID, status string, extra map[string]any) {
	data := map[string]any{"workflow_id": workflowID, "status": status}
	for k, v := range extra {
		data[k] = v
	}
	b.Publish(ctx, &Event{Type: EventWorkflowStatus, Data: data})
}

// PublishTaskStatus is a convenience wrapper around Publish for task-level
// status transitions.
func (b *Bus) PublishTaskStatus(ctx context.Context, taskID, taskName, status string, extra map[string]any) {
	data := map[string]any{"task_id": taskID, "task_name": taskName, "status": status}
	for k, v := range extra {
		data[k] = v
	}
	b.Publish(ctx, &Event{Type: EventTaskStatus, Data: data})
}
