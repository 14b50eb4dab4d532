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

package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/latchwork/durex/engine"
	"github.com/latchwork/durex/internal/durexerr"
	"github.com/latchwork/durex/queue"
	"github.com/latchwork/durex/store"
)

// WorkerPool dispatches workflows onto a durable Queue: the run itself
// executes on whichever worker process next claims the task. The
// workflow's own id doubles as its run-task id, so Suspend/WakeUp never
// need a separate workflowID->taskID lookup table.
type WorkerPool struct {
	q queue.Queue
}

func NewWorkerPool(q queue.Queue) *WorkerPool { return &WorkerPool{q: q} }

func (w *WorkerPool) Run(ctx context.Context, wf engine.Invoker, input []byte) ([]byte, error) {
	h, err := w.Start(ctx, wf, input)
	if err != nil {
		return nil, err
	}
	return h.Result(ctx)
}

func (w *WorkerPool) Start(ctx context.Context, wf engine.Invoker, input []byte) (engine.Handle, error) {
	workflowID, err := wf.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	task := &store.Task{
		ID: workflowID, Name: wf.Name(), Timestamp: time.Now(), Input: input,
		Status: store.TaskScheduled,
	}
	if err := w.q.Put(ctx, task); err != nil {
		return nil, err
	}
	return &workerPoolHandle{q: w.q, taskID: workflowID}, nil
}

func (w *WorkerPool) WakeUp(ctx context.Context, workflowID uuid.UUID) error {
	return w.q.Wakeup(ctx, workflowID)
}

type workerPoolHandle struct {
	q      queue.Queue
	taskID uuid.UUID
}

func (h *workerPoolHandle) Result(ctx context.Context) ([]byte, error) {
	result, err := h.q.GetResult(ctx, h.taskID, true)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, durexerr.UserErrorf(durexerr.New(*result.Error), "workflow task failed")
	}
	return result.Result, nil
}

// WorkerPoolExecutor never blocks: it returns the Suspend sentinel
// immediately and leaves parking to the worker loop, which re-enqueues
// (SuspendUntil) or calls Queue.Suspend (Suspend) on the caught sentinel.
type WorkerPoolExecutor struct{}

func (WorkerPoolExecutor) SuspendUntil(_ context.Context, _ uuid.UUID, at time.Time) error {
	t := at
	return &durexerr.Suspend{At: &t}
}

func (WorkerPoolExecutor) Suspend(_ context.Context, _ uuid.UUID) error {
	return &durexerr.Suspend{At: nil}
}
