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

// Package engine implements the deterministic replay protocol: workflow and
// activity promotion, step-ordinal memoization, signal wait/emit, and sleep.
package engine

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/latchwork/durex/internal/durexerr"
)

// WorkflowContext is the in-process frame tracking the currently executing
// workflow: its durable id and the monotonically increasing step ordinal
// assigned to each activity/wait call. It is carried as a context.Context
// value rather than a hand-rolled stack: a child context derived for a
// nested call naturally "pushes a new frame" while the parent's own
// context still holds its own, which is exactly the shadowing behavior the
// reference implementation's ContextVar/ChainMap-backed stack provides
// (see SPEC_FULL.md §3 "Ownership" and DESIGN.md).
type WorkflowContext struct {
	ID uuid.UUID
	// step is mutated via atomic ops so replays from multiple goroutines
	// (threaded mode) never race on the step counter.
	step atomic.Int64
}

// NextStep bumps and returns the next step ordinal (1-based).
func (w *WorkflowContext) NextStep() int {
	return int(w.step.Add(1))
}

// Step returns the current step ordinal without bumping it.
func (w *WorkflowContext) Step() int {
	return int(w.step.Load())
}

type workflowContextKey struct{}

// WithWorkflowContext derives a child context carrying a fresh
// WorkflowContext for workflowID. Used once, at the top of runWorkflow.
func WithWorkflowContext(ctx context.Context, workflowID uuid.UUID) context.Context {
	return context.WithValue(ctx, workflowContextKey{}, &WorkflowContext{ID: workflowID})
}

// CurrentWorkflow returns the WorkflowContext installed by the nearest
// enclosing WithWorkflowContext call, or ErrNoCurrentWorkflow if ctx was
// never derived from one (e.g. an activity called outside a workflow body).
func CurrentWorkflow(ctx context.Context) (*WorkflowContext, error) {
	wc, ok := ctx.Value(workflowContextKey{}).(*WorkflowContext)
	if !ok {
		return nil, ErrNoCurrentWorkflow
	}
	return wc, nil
}

// ErrNoCurrentWorkflow is returned by activity/wait/sleep calls made
// outside of a running workflow body.
var ErrNoCurrentWorkflow = durexerr.New("no current workflow context")
