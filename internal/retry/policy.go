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

// Package retry computes exponential backoff with jitter for task retries.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy configures per-task retry-with-backoff.
type Policy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// Default returns the baseline retry policy: no retries.
func Default() Policy {
	return Policy{
		MaxRetries:        0,
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// Aggressive returns a policy for flaky, low-cost actions: many retries,
// a short initial delay, a low cap.
func Aggressive() Policy {
	return Policy{
		MaxRetries:        5,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// Conservative returns a policy for expensive or side-effecting actions:
// fewer retries, a longer initial delay, a high cap, steeper backoff.
func Conservative() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      2 * time.Second,
		MaxDelay:          120 * time.Second,
		BackoffMultiplier: 3,
		Jitter:            true,
	}
}

// ShouldRetry reports whether attempt n (0-indexed) is eligible for another
// try under this policy.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxRetries
}

// CalculateDelay returns the backoff delay before attempt n+1, given that
// attempt n (0-indexed) just failed. Returns 0 once the retry budget is
// exhausted. With jitter enabled, the delay is perturbed by a uniform
// factor in [0.75, 1.25] and clamped to be non-negative.
func (p Policy) CalculateDelay(attempt int) time.Duration {
	if attempt >= p.MaxRetries {
		return 0
	}

	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if maxDelay := float64(p.MaxDelay); delay > maxDelay {
		delay = maxDelay
	}

	if p.Jitter {
		factor := 1 + (rand.Float64()*2-1)*0.25
		delay *= factor
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}
