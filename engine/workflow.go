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

package engine

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/latchwork/durex/codec"
	"github.com/latchwork/durex/internal/durexerr"
	"github.com/latchwork/durex/internal/metrics"
	"github.com/latchwork/durex/internal/tracing"
	"github.com/latchwork/durex/repo"
)

// Workflow promotes a user function into a durable, replay-safe engine
// object. It satisfies Invoker so a Runner can dispatch it by name without
// depending on the concrete In/Out types.
type Workflow[In, Out any] struct {
	name  string
	codec codec.Codec[In, Out]
	fn    func(context.Context, In) (Out, error)
}

// NewWorkflow binds name, a Codec, and the user body into a Workflow, and
// registers it under name for worker-loop dispatch. It fails if name is
// already registered.
func NewWorkflow[In, Out any](name string, c codec.Codec[In, Out], fn func(context.Context, In) (Out, error)) (*Workflow[In, Out], error) {
	w := &Workflow[In, Out]{name: name, codec: c, fn: fn}
	if err := Register(w); err != nil {
		return nil, err
	}
	return w, nil
}

// Name returns the workflow's registered name.
func (w *Workflow[In, Out]) Name() string { return w.name }

// Create implements Invoker: GetOrCreate against storedInput directly,
// since a Workflow row's persisted Input is already the Codec-encoded form.
func (w *Workflow[In, Out]) Create(ctx context.Context, storedInput []byte) (uuid.UUID, error) {
	return w.create(ctx, storedInput)
}

// CreateRefusingStopped is Create with RefuseStopped set: it fails with
// AlreadyRunning instead of reviving a STOPPED row for this (name, input).
func (w *Workflow[In, Out]) CreateRefusingStopped(ctx context.Context, storedInput []byte) (uuid.UUID, error) {
	return w.create(ctx, storedInput, repo.GetOrCreateOpts{RefuseStopped: true})
}

func (w *Workflow[In, Out]) create(ctx context.Context, storedInput []byte, opts ...repo.GetOrCreateOpts) (uuid.UUID, error) {
	s, ok := CurrentStore(ctx)
	if !ok {
		return uuid.Nil, ErrNoCurrentStore
	}
	workflows := repo.NewWorkflowRepo(s)
	row, err := workflows.GetOrCreate(ctx, w.name, storedInput, opts...)
	if err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

// Invoke implements Invoker: this is runWorkflow (SPEC_FULL.md §4.4) --
// decode storedInput, derive a fresh WorkflowContext, run the user body,
// and mark the row COMPLETED or STOPPED depending on the outcome. A
// Suspend sentinel is neither: the row is left RUNNING for a later replay.
func (w *Workflow[In, Out]) Invoke(ctx context.Context, workflowID uuid.UUID, storedInput []byte) ([]byte, error) {
	spanCtx, span := tracing.StartSpan(ctx, "durex/engine", "workflow.invoke",
		attribute.String("durex.workflow.name", w.name),
		attribute.String("durex.workflow.id", workflowID.String()))
	defer span.End()

	s, ok := CurrentStore(spanCtx)
	if !ok {
		tracing.EndWithError(span, ErrNoCurrentStore)
		return nil, ErrNoCurrentStore
	}
	workflows := repo.NewWorkflowRepo(s)

	in, err := w.codec.DecodeInput(storedInput)
	if err != nil {
		tracing.EndWithError(span, err)
		return nil, err
	}

	wfCtx := WithWorkflowContext(spanCtx, workflowID)
	out, err := w.fn(wfCtx, in)
	if err != nil {
		if _, isSuspend := durexerr.AsSuspend(err); isSuspend {
			span.AddEvent("workflow.suspended")
			return nil, err
		}
		if _, failErr := workflows.Fail(ctx, workflowID); failErr != nil {
			tracing.EndWithError(span, failErr)
			return nil, failErr
		}
		metrics.WorkflowsCompleted.WithLabelValues(w.name, "stopped").Inc()
		wrapped := durexerr.UserErrorf(err, "workflow %s failed", w.name)
		tracing.EndWithError(span, wrapped)
		return nil, wrapped
	}

	if _, err := workflows.Complete(ctx, workflowID); err != nil {
		tracing.EndWithError(span, err)
		return nil, err
	}
	metrics.WorkflowsCompleted.WithLabelValues(w.name, "completed").Inc()
	tracing.EndWithError(span, nil)
	return w.codec.EncodeOutput(out)
}

// Run is create+Invoke dispatched through the active Runner: Direct runs it
// inline, Threaded hands it to a goroutine, Worker-pool enqueues it.
func (w *Workflow[In, Out]) Run(ctx context.Context, in In) (Out, error) {
	var zero Out
	encoded, err := w.codec.EncodeInput(in)
	if err != nil {
		return zero, err
	}
	runner, ok := CurrentRunner(ctx)
	if !ok {
		return zero, ErrNoCurrentRunner
	}
	out, err := runner.Run(ctx, w, encoded)
	if err != nil {
		return zero, err
	}
	return w.codec.DecodeOutput(out)
}

// Start launches the workflow asynchronously and returns a typed Handle.
func (w *Workflow[In, Out]) Start(ctx context.Context, in In) (*TypedHandle[Out], error) {
	encoded, err := w.codec.EncodeInput(in)
	if err != nil {
		return nil, err
	}
	runner, ok := CurrentRunner(ctx)
	if !ok {
		return nil, ErrNoCurrentRunner
	}
	h, err := runner.Start(ctx, w, encoded)
	if err != nil {
		return nil, err
	}
	return &TypedHandle[Out]{inner: h, codec: w.codec}, nil
}

// TypedHandle adapts the non-generic Handle a Runner returns to the
// Out-typed Result the caller of Start actually wants.
type TypedHandle[Out any] struct {
	inner Handle
	codec interface{ DecodeOutput([]byte) (Out, error) }
}

// Result blocks until the workflow completes and decodes its output.
func (h *TypedHandle[Out]) Result(ctx context.Context) (Out, error) {
	var zero Out
	b, err := h.inner.Result(ctx)
	if err != nil {
		return zero, err
	}
	return h.codec.DecodeOutput(b)
}
