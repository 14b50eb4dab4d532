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

	jsoncodec "github.com/latchwork/durex/codec/json"
	"github.com/latchwork/durex/repo"
)

// Wait blocks the calling workflow until a signal named name is addressed
// to it, decodes its content as S, and returns it. The step ordinal is
// bumped once per Wait call site, not once per suspend/resume cycle: on
// resumption the same step is re-checked against the signal table so a
// worker-pool replay lands on the same binding.
func Wait[S any](ctx context.Context, name string) (S, error) {
	var zero S

	wc, err := CurrentWorkflow(ctx)
	if err != nil {
		return zero, err
	}
	s, ok := CurrentStore(ctx)
	if !ok {
		return zero, ErrNoCurrentStore
	}
	exec, ok := CurrentExecutor(ctx)
	if !ok {
		return zero, ErrNoCurrentExecutor
	}

	signals := repo.NewSignalRepo(s)
	c := jsoncodec.New[S, S]()
	step := wc.NextStep()

	for {
		sig, err := signals.MayFindOne(ctx, wc.ID, name, step)
		if err != nil {
			return zero, err
		}
		if sig != nil {
			return c.DecodeInput(sig.Content)
		}
		// No bound signal yet. Direct/Threaded executors park here and
		// return nil once woken; the worker-pool Executor instead returns
		// the Suspend sentinel immediately, which this function propagates
		// unchanged so the worker loop can park the whole task.
		if err := exec.Suspend(ctx, wc.ID); err != nil {
			return zero, err
		}
	}
}

// Signal addresses content to workflowID under name: it writes an unbound
// signal row, then wakes the runner so a suspended Wait can re-check.
func Signal[S any](ctx context.Context, workflowID uuid.UUID, name string, content S) error {
	s, ok := CurrentStore(ctx)
	if !ok {
		return ErrNoCurrentStore
	}
	runner, ok := CurrentRunner(ctx)
	if !ok {
		return ErrNoCurrentRunner
	}

	c := jsoncodec.New[S, S]()
	encoded, err := c.EncodeInput(content)
	if err != nil {
		return err
	}

	signals := repo.NewSignalRepo(s)
	if err := signals.New(ctx, workflowID, name, encoded); err != nil {
		return err
	}
	return runner.WakeUp(ctx, workflowID)
}
