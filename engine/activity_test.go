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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	jsoncodec "github.com/latchwork/durex/codec/json"
	"github.com/latchwork/durex/engine"
	"github.com/latchwork/durex/store/memorystore"
)

func TestActivityMemoizesAcrossCalls(t *testing.T) {
	calls := 0
	double := engine.NewActivity[int, int]("double", jsoncodec.New[int, int](), func(_ context.Context, n int) (int, error) {
		calls++
		return n * 2, nil
	})

	s := memorystore.New()
	ctx := engine.WithStore(context.Background(), s)
	ctx = engine.WithWorkflowContext(ctx, uuid.New())

	out1, err := double.Call(ctx, 21)
	require.NoError(t, err)
	require.Equal(t, 42, out1)

	// Same workflow, same step ordinal because WithWorkflowContext resets
	// the step counter: this simulates a replay landing on the same call.
	wc, err := engine.CurrentWorkflow(ctx)
	require.NoError(t, err)
	replayCtx := engine.WithWorkflowContext(engine.WithStore(context.Background(), s), wc.ID)

	out2, err := double.Call(replayCtx, 21)
	require.NoError(t, err)
	require.Equal(t, 42, out2)
	require.Equal(t, 1, calls, "second call should be a memoized cache hit, not a re-run")
}

func TestActivityRequiresWorkflowContext(t *testing.T) {
	double := engine.NewActivity[int, int]("double2", jsoncodec.New[int, int](), func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})
	_, err := double.Call(context.Background(), 1)
	require.ErrorIs(t, err, engine.ErrNoCurrentWorkflow)
}
