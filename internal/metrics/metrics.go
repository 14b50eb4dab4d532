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

// Package metrics exposes the module's Prometheus instrumentation: task
// dispatch outcomes, retry/suspend counts, workflow completion, and reaper
// sweep activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksDispatched counts every task a worker loop pulls off the queue,
	// by workflow/activity name.
	TasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "durex_tasks_dispatched_total",
			Help: "Total tasks claimed from the queue by name",
		},
		[]string{"name"},
	)

	// TaskOutcomes counts how each dispatched task resolved.
	TaskOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "durex_task_outcomes_total",
			Help: "Total task outcomes by name and outcome (completed, suspended, retried, failed)",
		},
		[]string{"name", "outcome"},
	)

	// TaskDuration observes wall-clock time spent inside a single dispatch
	// (claim to outcome), excluding queue wait.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "durex_task_duration_seconds",
			Help:    "Time spent executing a single dispatched task",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)

	// WorkflowsCompleted counts terminal workflow outcomes.
	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "durex_workflows_completed_total",
			Help: "Total workflows that reached a terminal state, by name and status",
		},
		[]string{"name", "status"},
	)

	// QueueDepth tracks, per queue ID, the tasks enqueued whose result has
	// not yet been collected: it grows on a task's first Put and shrinks
	// when GetResult removes it. Gauged rather than derived from counters
	// since depth can both grow and shrink.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "durex_queue_depth",
			Help: "Number of tasks currently scheduled or running per queue",
		},
		[]string{"queue_id"},
	)

	// ReaperRecovered counts tasks reclaimed from a dead worker's lease by
	// queue ID.
	ReaperRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "durex_reaper_recovered_total",
			Help: "Total stale running tasks reset to scheduled by the reaper",
		},
		[]string{"queue_id"},
	)
)

// Handler returns the HTTP handler to mount at the metrics scrape path.
func Handler() http.Handler {
	return promhttp.Handler()
}
