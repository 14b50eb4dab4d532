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

// Package runner provides the three Runner/Executor pairings the engine
// dispatches through: Direct (synchronous, single goroutine), Threaded
// (in-process async), and WorkerPool (durable, queue-backed).
package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/latchwork/durex/engine"
	"github.com/latchwork/durex/internal/durexerr"
)

// Direct runs a workflow inline on the caller's goroutine. It never
// suspends indefinitely: there is no one else to wake it.
type Direct struct{}

func NewDirect() *Direct { return &Direct{} }

func (Direct) Run(ctx context.Context, wf engine.Invoker, input []byte) ([]byte, error) {
	id, err := wf.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	return wf.Invoke(ctx, id, input)
}

func (Direct) Start(context.Context, engine.Invoker, []byte) (engine.Handle, error) {
	return nil, durexerr.New("direct runner does not support Start")
}

func (Direct) WakeUp(context.Context, uuid.UUID) error { return nil }

// DirectExecutor blocks the caller's own goroutine for Sleep, and refuses
// Wait: a synchronous workflow has no other goroutine to resume it.
type DirectExecutor struct{}

func (DirectExecutor) SuspendUntil(ctx context.Context, _ uuid.UUID, at time.Time) error {
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

func (DirectExecutor) Suspend(context.Context, uuid.UUID) error {
	return durexerr.New("direct executor cannot suspend indefinitely; use Threaded or WorkerPool mode for Wait")
}
