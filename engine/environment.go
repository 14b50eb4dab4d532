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
	"time"

	"github.com/google/uuid"

	"github.com/latchwork/durex/queue"
	"github.com/latchwork/durex/store"
)

// Runner turns a workflow invocation into execution under one of the three
// provided strategies (Direct, Threaded, Worker-pool).
type Runner interface {
	// Run executes the workflow identified by invoker synchronously (under
	// Direct/Threaded) or via the queue (Worker-pool), returning its
	// encoded output.
	Run(ctx context.Context, wf Invoker, input []byte) ([]byte, error)
	// Start launches the workflow asynchronously and returns a Handle.
	Start(ctx context.Context, wf Invoker, input []byte) (Handle, error)
	// WakeUp notifies the runner's executor that workflowID may have new
	// signals or should otherwise be reconsidered.
	WakeUp(ctx context.Context, workflowID uuid.UUID) error
}

// Executor implements sleep/suspend for the active Runner's execution mode.
type Executor interface {
	SuspendUntil(ctx context.Context, workflowID uuid.UUID, at time.Time) error
	Suspend(ctx context.Context, workflowID uuid.UUID) error
}

// Handle is returned by Runner.Start; Result blocks until the workflow
// completes (or the context is cancelled).
type Handle interface {
	Result(ctx context.Context) ([]byte, error)
}

// BlobStore offloads oversized encoded payloads to external storage.
// Activity.Call runs every activity output it stores or replays through it;
// the default (no BlobStore installed) is a pass-through, so offload is
// opt-in via WithBlob.
type BlobStore interface {
	Encode(ctx context.Context, payload []byte) ([]byte, error)
	Decode(ctx context.Context, stored []byte) ([]byte, error)
}

// Invoker is the non-generic surface every registered Workflow[In, Out]
// exposes to the Runner/worker loop, which deal in encoded bytes and a
// task/workflow name rather than concrete Go types.
type Invoker interface {
	Name() string
	// Create obtains or reuses a Workflow row for storedInput and returns
	// its id; the row is RUNNING on return. Runner.Run/Start compose this
	// with Invoke the same way the reference implementation composes
	// create() with runWorkflow().
	Create(ctx context.Context, storedInput []byte) (uuid.UUID, error)
	// Invoke runs the workflow body against a pre-created workflow row,
	// decoding storedInput and encoding the return value.
	Invoke(ctx context.Context, workflowID uuid.UUID, storedInput []byte) ([]byte, error)
}

type envKey struct{ name string }

var (
	runKey  = envKey{"RUN"}
	execKey = envKey{"EXEC"}
	dbKey   = envKey{"DB"}
	qKey    = envKey{"Q"}
	blobKey = envKey{"BLOB"}
)

// WithRunner, WithExecutor, WithStore, WithQueue install one collaborator
// into a derived context. Because context.Context values shadow per
// derivation and are restored automatically when the derived context goes
// out of scope, a nested WithXxx call is exactly the reference
// implementation's "nested environment layer that overrides and restores
// on exit" (SPEC_FULL.md §4.5) -- no separate layered-map type is needed.
func WithRunner(ctx context.Context, r Runner) context.Context   { return context.WithValue(ctx, runKey, r) }
func WithExecutor(ctx context.Context, e Executor) context.Context { return context.WithValue(ctx, execKey, e) }
func WithStore(ctx context.Context, s store.Store) context.Context { return context.WithValue(ctx, dbKey, s) }
func WithQueue(ctx context.Context, q queue.Queue) context.Context { return context.WithValue(ctx, qKey, q) }
func WithBlob(ctx context.Context, b BlobStore) context.Context   { return context.WithValue(ctx, blobKey, b) }

// CurrentRunner, CurrentExecutor, CurrentStore, CurrentQueue, CurrentBlob
// fetch the innermost installed collaborator, or ok=false if none was
// installed.
func CurrentRunner(ctx context.Context) (Runner, bool)   { r, ok := ctx.Value(runKey).(Runner); return r, ok }
func CurrentExecutor(ctx context.Context) (Executor, bool) { e, ok := ctx.Value(execKey).(Executor); return e, ok }
func CurrentStore(ctx context.Context) (store.Store, bool) { s, ok := ctx.Value(dbKey).(store.Store); return s, ok }
func CurrentQueue(ctx context.Context) (queue.Queue, bool) { q, ok := ctx.Value(qKey).(queue.Queue); return q, ok }
func CurrentBlob(ctx context.Context) (BlobStore, bool)   { b, ok := ctx.Value(blobKey).(BlobStore); return b, ok }
