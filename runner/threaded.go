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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/latchwork/durex/engine"
)

// Threaded spawns one goroutine per workflow and implements both Runner
// and Executor: Suspend parks the workflow's goroutine on a per-workflow
// channel, and WakeUp (which engine.Signal calls) closes it. A single Threaded value should be
// installed as both the Runner and the Executor on a process's context.
type Threaded struct {
	mu    sync.Mutex
	parks map[uuid.UUID]chan struct{}
}

func NewThreaded() *Threaded {
	return &Threaded{parks: make(map[uuid.UUID]chan struct{})}
}

func (t *Threaded) chanFor(id uuid.UUID) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.parks[id]
	if !ok {
		ch = make(chan struct{})
		t.parks[id] = ch
	}
	return ch
}

func (t *Threaded) Run(ctx context.Context, wf engine.Invoker, input []byte) ([]byte, error) {
	id, err := wf.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	return wf.Invoke(ctx, id, input)
}

// Start launches the workflow on a new goroutine, snapshotting ctx as any
// normal Go call does -- no separate capture-then-install step is needed.
func (t *Threaded) Start(ctx context.Context, wf engine.Invoker, input []byte) (engine.Handle, error) {
	id, err := wf.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	h := &threadedHandle{done: make(chan struct{})}
	go func() {
		h.out, h.err = wf.Invoke(ctx, id, input)
		close(h.done)
	}()
	return h, nil
}

// WakeUp closes the workflow's park channel if it is waiting, or pre-arms
// a closed channel so a Suspend call that has not happened yet returns
// immediately -- a signal emitted before the matching Wait must not be lost.
func (t *Threaded) WakeUp(_ context.Context, id uuid.UUID) error {
	ch := t.chanFor(id)
	select {
	case <-ch:
	default:
		close(ch)
	}
	return nil
}

// Suspend parks the calling goroutine until WakeUp closes workflowID's
// channel or ctx is cancelled.
func (t *Threaded) Suspend(ctx context.Context, workflowID uuid.UUID) error {
	ch := t.chanFor(workflowID)
	select {
	case <-ch:
		t.mu.Lock()
		delete(t.parks, workflowID)
		t.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SuspendUntil blocks until at, independent of the park-channel mechanism
// Suspend/WakeUp use for signals.
func (t *Threaded) SuspendUntil(ctx context.Context, _ uuid.UUID, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type threadedHandle struct {
	done chan struct{}
	out  []byte
	err  error
}

func (h *threadedHandle) Result(ctx context.Context) ([]byte, error) {
	select {
	case <-h.done:
		return h.out, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
