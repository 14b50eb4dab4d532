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

// Package queue implements the durable, priority-by-timestamp task queue
// backing worker-mode execution (SPEC_FULL.md §4.3).
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/latchwork/durex/internal/durexerr"
	"github.com/latchwork/durex/internal/metrics"
	"github.com/latchwork/durex/repo"
	"github.com/latchwork/durex/store"
)

// Queue is the durable task queue surface. One Queue value serves one
// queue_id; multiple queues can share a Store.
type Queue interface {
	ID() string

	Put(ctx context.Context, t *store.Task) error
	// GetNextTask blocks (on PollBackoff, which defaults to 100ms) until a
	// SCHEDULED task with Timestamp <= now is available for this queue, or
	// ctx is cancelled.
	GetNextTask(ctx context.Context) (*store.Task, error)
	Suspend(ctx context.Context, taskID uuid.UUID) error
	Wakeup(ctx context.Context, taskID uuid.UUID) error
	// GetResult deletes and returns the Task+TaskResult pair. When blocking
	// is true it polls on PollBackoff until a result exists or ctx is
	// cancelled; when false it fails immediately with ErrEmpty.
	GetResult(ctx context.Context, taskID uuid.UUID, blocking bool) (*store.TaskResult, error)
	SetResult(ctx context.Context, r *store.TaskResult) error

	// Call enqueues name(input) to run now and returns the new task id.
	Call(ctx context.Context, name string, input []byte) (uuid.UUID, error)
	// CallLater enqueues name(input) to run no earlier than now+delay.
	CallLater(ctx context.Context, name string, delay time.Duration, input []byte) (uuid.UUID, error)
	// CallAt enqueues name(input) to run no earlier than at.
	CallAt(ctx context.Context, name string, at time.Time, input []byte) (uuid.UUID, error)
	// Execute is Call followed by a blocking GetResult; it returns the
	// task's encoded output, or the user error recorded in TaskResult.Error.
	Execute(ctx context.Context, name string, input []byte) ([]byte, error)
}

// PollBackoff is the delay between unsuccessful GetNextTask/GetResult polls.
// A package variable (not a constant) so tests can shrink it.
var PollBackoff = 100 * time.Millisecond

// DBQueue is the Store-backed Queue implementation.
type DBQueue struct {
	queueID string
	tasks   *repo.TaskRepo
}

// New returns a Queue bound to queueID over the tasks repo.
func New(queueID string, tasks *repo.TaskRepo) *DBQueue {
	return &DBQueue{queueID: queueID, tasks: tasks}
}

// pollLimiter builds a fresh, single-burst rate.Limiter reading the current
// PollBackoff: GetNextTask/GetResult call Wait before every claim attempt,
// so the first attempt fires immediately (consuming the initial burst
// token) and only a failed attempt pays the backoff before retrying.
func pollLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(PollBackoff), 1)
}

func (q *DBQueue) ID() string { return q.queueID }

func (q *DBQueue) Put(ctx context.Context, t *store.Task) error {
	if t.QueueID == "" {
		t.QueueID = q.queueID
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = store.TaskScheduled
	}
	if err := q.tasks.Put(ctx, t); err != nil {
		return err
	}
	// Only a first attempt grows the queue; a worker re-Put-ing a retry
	// (RetryCount already bumped) is the same task counted once already.
	if t.RetryCount == 0 {
		metrics.QueueDepth.WithLabelValues(q.queueID).Inc()
	}
	return nil
}

func (q *DBQueue) GetNextTask(ctx context.Context) (*store.Task, error) {
	limiter := pollLimiter()
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		task, err := q.tasks.ClaimNext(ctx, q.queueID)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}
	}
}

func (q *DBQueue) Suspend(ctx context.Context, taskID uuid.UUID) error {
	return q.tasks.Suspend(ctx, taskID)
}

func (q *DBQueue) Wakeup(ctx context.Context, taskID uuid.UUID) error {
	return q.tasks.Wake(ctx, taskID)
}

func (q *DBQueue) GetResult(ctx context.Context, taskID uuid.UUID, blocking bool) (*store.TaskResult, error) {
	var limiter *rate.Limiter
	if blocking {
		limiter = pollLimiter()
	}
	for {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		result, err := q.tasks.DeleteAndResult(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if result != nil {
			metrics.QueueDepth.WithLabelValues(q.queueID).Dec()
			return result, nil
		}
		if !blocking {
			return nil, durexerr.Empty("no result for task " + taskID.String())
		}
	}
}

func (q *DBQueue) SetResult(ctx context.Context, r *store.TaskResult) error {
	return q.tasks.SetResult(ctx, r)
}

func (q *DBQueue) Call(ctx context.Context, name string, input []byte) (uuid.UUID, error) {
	return q.CallAt(ctx, name, time.Now(), input)
}

func (q *DBQueue) CallLater(ctx context.Context, name string, delay time.Duration, input []byte) (uuid.UUID, error) {
	return q.CallAt(ctx, name, time.Now().Add(delay), input)
}

func (q *DBQueue) CallAt(ctx context.Context, name string, at time.Time, input []byte) (uuid.UUID, error) {
	id := uuid.New()
	task := &store.Task{
		ID: id, Name: name, Timestamp: at, Input: input,
		QueueID: q.queueID, Status: store.TaskScheduled,
	}
	if err := q.Put(ctx, task); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (q *DBQueue) Execute(ctx context.Context, name string, input []byte) ([]byte, error) {
	id, err := q.Call(ctx, name, input)
	if err != nil {
		return nil, err
	}
	result, err := q.GetResult(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, durexerr.UserErrorf(durexerr.New(*result.Error), "task %s failed", name)
	}
	return result.Result, nil
}
