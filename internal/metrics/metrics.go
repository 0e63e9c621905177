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

// Package metrics implements the runner's MetricsCollector port: workflow
// and task completion counters and duration histograms, plus a retry
// counter, recorded via Prometheus client instruments. The collector
// registers against whatever prometheus.Registerer it is given; scraping it
// (an HTTP handler, a push gateway) is transport-layer and lives outside
// this package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records workflow and task execution outcomes as Prometheus
// metrics. The zero value is not usable; construct with New.
type Collector struct {
	workflowCompletions *prometheus.CounterVec
	workflowDuration    *prometheus.HistogramVec
	taskCompletions     *prometheus.CounterVec
	taskDuration        *prometheus.HistogramVec
	taskRetries         *prometheus.CounterVec
}

// New registers the collector's instruments against reg. Pass
// prometheus.DefaultRegisterer for process-wide metrics, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions across cases.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		workflowCompletions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skein_workflow_completions_total",
			Help: "Total workflow executions by name and terminal status.",
		}, []string{"name", "status"}),
		workflowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skein_workflow_duration_seconds",
			Help:    "Workflow execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name"}),
		taskCompletions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skein_task_completions_total",
			Help: "Total task executions by name and status.",
		}, []string{"name", "status"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skein_task_duration_seconds",
			Help:    "Task execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name"}),
		taskRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skein_task_retries_total",
			Help: "Total task retry attempts by name.",
		}, []string{"name"}),
	}
}

// RecordWorkflowCompletion increments the workflow completion counter and
// observes duration against the workflow duration histogram.
func (c *Collector) RecordWorkflowCompletion(name, status string, duration time.Duration) {
	c.workflowCompletions.WithLabelValues(name, status).Inc()
	c.workflowDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordTaskCompletion increments the task completion counter and observes
// duration against the task duration histogram.
func (c *Collector) RecordTaskCompletion(name, status string, duration time.Duration) {
	c.taskCompletions.WithLabelValues(name, status).Inc()
	c.taskDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordTaskRetry increments the retry counter for a task name.
func (c *Collector) RecordTaskRetry(name string) {
	c.taskRetries.WithLabelValues(name).Inc()
}
