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

package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	jsoncodec "github.com/latchwork/durex/codec/json"
	"github.com/latchwork/durex/engine"
	"github.com/latchwork/durex/queue"
	"github.com/latchwork/durex/repo"
	"github.com/latchwork/durex/runner"
	"github.com/latchwork/durex/store/memorystore"
	"github.com/latchwork/durex/worker"
)

func newWorkerEnv(t *testing.T) (context.Context, *queue.DBQueue) {
	t.Helper()
	s := memorystore.New()
	repos := repo.New(s)
	q := queue.New("default", repos.Tasks)
	ctx := engine.WithStore(context.Background(), s)
	ctx = engine.WithRunner(ctx, runner.NewWorkerPool(q))
	return ctx, q
}

func TestWorkerRunsScheduledWorkflowToCompletion(t *testing.T) {
	ctx, q := newWorkerEnv(t)

	wf, err := engine.NewWorkflow[string, string]("worker-greet", jsoncodec.New[string, string](),
		func(_ context.Context, name string) (string, error) { return "hi " + name, nil })
	require.NoError(t, err)

	h, err := wf.Start(ctx, "worker")
	require.NoError(t, err)

	w := worker.New(q)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	resultCtx, resultCancel := context.WithTimeout(context.Background(), time.Second)
	defer resultCancel()
	out, err := h.Result(resultCtx)
	require.NoError(t, err)
	require.Equal(t, `"hi worker"`, string(out))

	cancel()
	<-done
}

func TestWorkerRetriesTransientErrorThenSucceeds(t *testing.T) {
	ctx, q := newWorkerEnv(t)

	attempts := 0
	wf, err := engine.NewWorkflow[string, string]("worker-flaky", jsoncodec.New[string, string](),
		func(_ context.Context, _ string) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
	require.NoError(t, err)

	h, err := wf.Start(ctx, "")
	require.NoError(t, err)

	w := worker.New(q)
	w.Retry.BaseDelay = 0
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	resultCtx, resultCancel := context.WithTimeout(context.Background(), time.Second)
	defer resultCancel()
	out, err := h.Result(resultCtx)
	require.NoError(t, err)
	require.Equal(t, `"ok"`, string(out))
	require.Equal(t, 3, attempts)

	cancel()
	<-done
}

func TestWorkerGivesUpAfterMaxRetries(t *testing.T) {
	ctx, q := newWorkerEnv(t)

	wf, err := engine.NewWorkflow[string, string]("worker-always-fails", jsoncodec.New[string, string](),
		func(_ context.Context, _ string) (string, error) { return "", errors.New("boom") })
	require.NoError(t, err)

	h, err := wf.Start(ctx, "")
	require.NoError(t, err)

	w := worker.New(q)
	w.Retry.MaxRetries = 1
	w.Retry.BaseDelay = 0
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	resultCtx, resultCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer resultCancel()
	_, err = h.Result(resultCtx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")

	cancel()
	<-done
}
