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

package dynamictask

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/skeinhq/skein/internal/domain"
)

// ActionHandler executes one interpolated task payload and returns its
// structured result. Handlers are invoked once per map item (or once for
// a reducer) and must be safe to call concurrently with themselves.
type ActionHandler func(ctx context.Context, payload map[string]any) (map[string]any, error)

// GroupResult is the outcome of running a map or reduce group to
// completion.
type GroupResult struct {
	Total     int
	Completed int
	Failed    int
	Results   []any
	Status    domain.DynamicTaskGroupStatus
}

// ExecuteMap runs handler once per item in parallel, interpolating template
// for each item with context {item, index}. A handler error (or a template
// interpolation error) is captured as a per-item result marked as an error
// and counted as a failure rather than aborting the group; final status is
// "completed" iff no item failed, else "failed".
func ExecuteMap(ctx context.Context, items []any, template map[string]any, handler ActionHandler) GroupResult {
	total := len(items)
	results := make([]any, total)

	var completed, failed int64
	var wg sync.WaitGroup
	wg.Add(total)

	for i, item := range items {
		go func(i int, item any) {
			defer wg.Done()

			payload, err := InterpolateTemplate(template, map[string]any{"item": item, "index": i})
			if err != nil {
				atomic.AddInt64(&failed, 1)
				results[i] = map[string]any{"error": err.Error()}
				return
			}

			result, err := handler(ctx, payload)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				results[i] = map[string]any{"error": err.Error()}
				return
			}

			atomic.AddInt64(&completed, 1)
			results[i] = result
		}(i, item)
	}
	wg.Wait()

	status := domain.GroupCompleted
	if failed > 0 {
		status = domain.GroupFailed
	}

	return GroupResult{
		Total:     total,
		Completed: int(completed),
		Failed:    int(failed),
		Results:   results,
		Status:    status,
	}
}

// ExecuteReduce runs a single reducer over input (typically a map group's
// Results) under the same group abstraction: total is always 1.
func ExecuteReduce(ctx context.Context, input []any, template map[string]any, handler ActionHandler) GroupResult {
	payload, err := InterpolateTemplate(template, map[string]any{"items": input})
	if err != nil {
		return GroupResult{
			Total:   1,
			Failed:  1,
			Results: []any{map[string]any{"error": err.Error()}},
			Status:  domain.GroupFailed,
		}
	}

	result, err := handler(ctx, payload)
	if err != nil {
		return GroupResult{
			Total:   1,
			Failed:  1,
			Results: []any{map[string]any{"error": err.Error()}},
			Status:  domain.GroupFailed,
		}
	}

	return GroupResult{
		Total:     1,
		Completed: 1,
		Results:   []any{result},
		Status:    domain.GroupCompleted,
	}
}

// ProgressPercentage returns completed+failed as a percentage of total, 0
// when total is 0.
func ProgressPercentage(total, completed, failed int) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed+failed) / float64(total) * 100
}
