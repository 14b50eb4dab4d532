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

// Package worker implements the Worker-pool dispatch loop (SPEC_FULL.md
// §4.5, C5): claim a task, look the name up in the engine registry, run
// it, and route the outcome (success, durable suspend, retryable error) to
// the right Queue operation.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/latchwork/durex/engine"
	"github.com/latchwork/durex/internal/durexerr"
	ilog "github.com/latchwork/durex/internal/log"
	"github.com/latchwork/durex/internal/metrics"
	"github.com/latchwork/durex/internal/tracing"
	"github.com/latchwork/durex/queue"
	"github.com/latchwork/durex/runner"
	"github.com/latchwork/durex/store"
)

// RetryPolicy governs how a non-suspend error is retried before a task is
// given up on. The zero value is not usable; use DefaultRetryPolicy.
type RetryPolicy struct {
	// ErrorMatch selects which errors this policy applies to; errors it
	// rejects are failed immediately with no retry.
	ErrorMatch func(error) bool
	MaxRetries int
	BaseDelay  time.Duration
	Backoff    float64
}

// DefaultRetryPolicy matches SPEC_FULL.md §4.5's default: every error,
// up to 10 retries, with no delay between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ErrorMatch: func(error) bool { return true },
		MaxRetries: 10,
		BaseDelay:  0,
		Backoff:    1,
	}
}

func (p RetryPolicy) delay(retryCount int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Backoff, float64(retryCount)))
}

// Worker repeatedly claims and dispatches tasks from a Queue until its
// context is cancelled.
type Worker struct {
	Queue  queue.Queue
	Only   []string // doublestar glob patterns over workflow/activity names; nil means all
	Retry  RetryPolicy
	Logger *slog.Logger
}

// New builds a Worker bound to q with the default retry policy and no
// name filter.
func New(q queue.Queue) *Worker {
	return &Worker{Queue: q, Retry: DefaultRetryPolicy(), Logger: slog.Default()}
}

// accepts reports whether name matches one of w.Only's glob patterns (e.g.
// "billing.*"). An empty Only accepts everything.
func (w *Worker) accepts(name string) bool {
	if len(w.Only) == 0 {
		return true
	}
	for _, pattern := range w.Only {
		if matchesOnlyPattern(pattern, name) {
			return true
		}
	}
	return false
}

func matchesOnlyPattern(pattern, name string) bool {
	if pattern == name {
		return true
	}
	matched, err := doublestar.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}

// Run polls w.Queue until ctx is cancelled, dispatching every task it
// claims. It returns ctx.Err() on cancellation; any other per-task error is
// logged and swallowed so one bad task doesn't take the whole loop down.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for {
		task, err := w.Queue.GetNextTask(ctx)
		if err != nil {
			return err
		}
		if !w.accepts(task.Name) {
			// Not ours; leave it SUSPENDED so another worker's poll can
			// claim it instead of looping on a name we'll never serve.
			if err := w.Queue.Suspend(ctx, task.ID); err != nil {
				logger.Error("failed to release unmatched task", ilog.Error(err), ilog.String(ilog.TaskIDKey, task.ID.String()))
			}
			continue
		}
		if err := w.dispatch(ctx, task); err != nil {
			logger.Error("task dispatch failed", ilog.Error(err), ilog.String(ilog.TaskIDKey, task.ID.String()), ilog.String(ilog.WorkflowKey, task.Name))
		} else {
			logger.Info("task dispatched", ilog.String(ilog.TaskIDKey, task.ID.String()), ilog.String(ilog.WorkflowKey, task.Name))
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, task *store.Task) error {
	metrics.TasksDispatched.WithLabelValues(task.Name).Inc()
	start := time.Now()
	defer func() { metrics.TaskDuration.WithLabelValues(task.Name).Observe(time.Since(start).Seconds()) }()

	ctx, span := tracing.StartSpan(ctx, "durex/worker", "task.dispatch",
		attribute.String("durex.task.name", task.Name),
		attribute.String("durex.task.id", task.ID.String()),
		attribute.Int("durex.task.retry_count", task.RetryCount))
	defer span.End()

	inv, ok := engine.Lookup(task.Name)
	if !ok {
		return w.outcome(ctx, task, "failed", w.fail(ctx, task, durexerr.NotFound("registered function", task.Name)))
	}

	runCtx := engine.WithExecutor(ctx, runner.WorkerPoolExecutor{})
	out, err := inv.Invoke(runCtx, task.ID, task.Input)
	if err == nil {
		return w.outcome(ctx, task, "completed", w.Queue.SetResult(ctx, &store.TaskResult{ID: task.ID, Result: out}))
	}

	if suspend, ok := durexerr.AsSuspend(err); ok {
		if suspend.At != nil {
			return w.outcome(ctx, task, "retried", w.requeueAt(ctx, task, *suspend.At))
		}
		return w.outcome(ctx, task, "suspended", w.Queue.Suspend(ctx, task.ID))
	}

	if w.Retry.ErrorMatch != nil && w.Retry.ErrorMatch(err) && task.RetryCount < w.Retry.MaxRetries {
		return w.outcome(ctx, task, "retried", w.requeueAt(ctx, task, time.Now().Add(w.Retry.delay(task.RetryCount))))
	}

	return w.outcome(ctx, task, "failed", w.fail(ctx, task, err))
}

func (w *Worker) outcome(ctx context.Context, task *store.Task, outcome string, err error) error {
	metrics.TaskOutcomes.WithLabelValues(task.Name, outcome).Inc()
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("durex.task.outcome", outcome))
	tracing.EndWithError(span, err)
	return err
}

func (w *Worker) requeueAt(ctx context.Context, task *store.Task, at time.Time) error {
	task.Timestamp = at
	task.RetryCount++
	task.Status = store.TaskScheduled
	return w.Queue.Put(ctx, task)
}

func (w *Worker) fail(ctx context.Context, task *store.Task, err error) error {
	msg := err.Error()
	return w.Queue.SetResult(ctx, &store.TaskResult{ID: task.ID, Error: &msg})
}

// IsContextDone reports whether err is context cancellation/deadline, the
// sentinel Worker.Run returns when its ctx is done rather than a real
// dispatch failure.
func IsContextDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
