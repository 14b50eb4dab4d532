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

package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	jsoncodec "github.com/latchwork/durex/codec/json"
	"github.com/latchwork/durex/engine"
	"github.com/latchwork/durex/internal/durexerr"
	"github.com/latchwork/durex/store/memorystore"
)

// parkingExecutor is a minimal stand-in for the Threaded executor: Suspend
// blocks the calling goroutine on a per-workflow channel until WakeUp
// closes it.
type parkingExecutor struct {
	mu    sync.Mutex
	chans map[uuid.UUID]chan struct{}
}

func newParkingExecutor() *parkingExecutor {
	return &parkingExecutor{chans: make(map[uuid.UUID]chan struct{})}
}

func (p *parkingExecutor) chanFor(id uuid.UUID) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.chans[id]
	if !ok {
		ch = make(chan struct{})
		p.chans[id] = ch
	}
	return ch
}

func (p *parkingExecutor) Suspend(ctx context.Context, id uuid.UUID) error {
	ch := p.chanFor(id)
	select {
	case <-ch:
		p.mu.Lock()
		delete(p.chans, id)
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *parkingExecutor) SuspendUntil(ctx context.Context, _ uuid.UUID, at time.Time) error {
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

func (p *parkingExecutor) wake(id uuid.UUID) {
	ch := p.chanFor(id)
	select {
	case <-ch:
	default:
		close(ch)
	}
}

type wakingRunner struct{ exec *parkingExecutor }

func (r wakingRunner) Run(ctx context.Context, wf engine.Invoker, input []byte) ([]byte, error) {
	id, err := wf.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	return wf.Invoke(ctx, id, input)
}

func (r wakingRunner) Start(context.Context, engine.Invoker, []byte) (engine.Handle, error) {
	return nil, durexerr.New("waking runner does not support Start")
}

func (r wakingRunner) WakeUp(_ context.Context, id uuid.UUID) error {
	r.exec.wake(id)
	return nil
}

func TestWaitSuspendsAndResumesOnSignal(t *testing.T) {
	idCh := make(chan uuid.UUID, 1)
	waiter, err := engine.NewWorkflow[string, string]("wait-wf", jsoncodec.New[string, string](),
		func(ctx context.Context, _ string) (string, error) {
			wc, werr := engine.CurrentWorkflow(ctx)
			require.NoError(t, werr)
			idCh <- wc.ID
			return engine.Wait[string](ctx, "greeting")
		})
	require.NoError(t, err)

	exec := newParkingExecutor()
	ctx := context.Background()
	ctx = engine.WithStore(ctx, memorystore.New())
	ctx = engine.WithExecutor(ctx, exec)
	ctx = engine.WithRunner(ctx, wakingRunner{exec: exec})

	type outcome struct {
		out string
		err error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		out, runErr := waiter.Run(ctx, "ignored")
		resultCh <- outcome{out, runErr}
	}()

	id := <-idCh
	require.NoError(t, engine.Signal(ctx, id, "greeting", "hi there"))

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		require.Equal(t, "hi there", res.out)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for workflow to resume after signal")
	}
}

func TestWaitPicksUpPreExistingSignal(t *testing.T) {
	s := memorystore.New()
	exec := newParkingExecutor()
	ctx := context.Background()
	ctx = engine.WithStore(ctx, s)
	ctx = engine.WithExecutor(ctx, exec)
	ctx = engine.WithRunner(ctx, wakingRunner{exec: exec})

	waiter, err := engine.NewWorkflow[string, string]("wait-wf-preexisting", jsoncodec.New[string, string](),
		func(ctx context.Context, _ string) (string, error) {
			return engine.Wait[string](ctx, "greeting")
		})
	require.NoError(t, err)

	// Enqueue the workflow row first so Signal has a WorkflowID to target.
	id, err := waiter.Create(ctx, []byte(`"ignored"`))
	require.NoError(t, err)
	require.NoError(t, engine.Signal(ctx, id, "greeting", "already here"))

	out, err := waiter.Invoke(ctx, id, []byte(`"ignored"`))
	require.NoError(t, err)
	require.Equal(t, []byte(`"already here"`), out)
}
