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

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/latchwork/durex/store"
	"github.com/latchwork/durex/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWorkflowLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	w := &store.Workflow{ID: uuid.New(), Name: "greet", Input: []byte(`{}`), Status: store.WorkflowRunning}
	require.NoError(t, s.CreateWorkflow(ctx, w))

	found, err := s.FindRunning(ctx, "greet", []byte(`{}`))
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, w.ID, found.ID)

	updated, err := s.UpdateWorkflowStatus(ctx, w.ID, store.WorkflowCompleted)
	require.NoError(t, err)
	require.Equal(t, store.WorkflowCompleted, updated.Status)

	missing, err := s.FindRunning(ctx, "greet", []byte(`{}`))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestGetOrCreateInvariantViaUpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.UpdateWorkflowStatus(ctx, uuid.New(), store.WorkflowCompleted)
	require.Error(t, err)
}

func TestActivityResultMemoization(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	wfID := uuid.New()

	got, err := s.FindActivityResult(ctx, wfID, "format#1")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, s.SaveActivityResult(ctx, &store.ActivityResult{
		WorkflowID: wfID, Name: "format#1", Input: []byte(`"world"`), Output: []byte(`"hi world"`),
	}))

	got, err = s.FindActivityResult(ctx, wfID, "format#1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, []byte(`"hi world"`), got.Output)

	// re-saving the same (workflow_id, name) overwrites rather than duplicates.
	require.NoError(t, s.SaveActivityResult(ctx, &store.ActivityResult{
		WorkflowID: wfID, Name: "format#1", Input: []byte(`"world"`), Output: []byte(`"hi world again"`),
	}))
	got, err = s.FindActivityResult(ctx, wfID, "format#1")
	require.NoError(t, err)
	require.Equal(t, []byte(`"hi world again"`), got.Output)
}

func TestSignalBindingOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	wfID := uuid.New()

	for _, content := range []string{"A", "B", "C"} {
		require.NoError(t, s.CreateSignal(ctx, &store.Signal{
			ID: uuid.New(), WorkflowID: wfID, Name: "approval", Content: []byte(content),
		}))
		time.Sleep(time.Millisecond)
	}

	first, err := s.BindOrCreateSignal(ctx, wfID, "approval", 1)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, []byte("A"), first.Content)

	second, err := s.BindOrCreateSignal(ctx, wfID, "approval", 2)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.NotEqual(t, first.ID, second.ID)

	rebind, err := s.BindOrCreateSignal(ctx, wfID, "approval", 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, rebind.ID)
}

func TestTaskClaimAtomicity(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.PutTask(ctx, &store.Task{
			ID: uuid.New(), Name: "noop", Timestamp: time.Now().Add(-time.Second),
			QueueID: "default", Status: store.TaskScheduled,
		}))
	}

	seen := map[uuid.UUID]bool{}
	for i := 0; i < 5; i++ {
		task, err := s.ClaimNextTask(ctx, "default")
		require.NoError(t, err)
		require.NotNil(t, task)
		require.False(t, seen[task.ID], "task claimed twice")
		seen[task.ID] = true
	}

	task, err := s.ClaimNextTask(ctx, "default")
	require.NoError(t, err)
	require.Nil(t, task)
}

func TestResetStaleRunning(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	taskID := uuid.New()
	require.NoError(t, s.PutTask(ctx, &store.Task{
		ID: taskID, Name: "noop", Timestamp: time.Now().Add(-time.Minute),
		QueueID: "default", Status: store.TaskScheduled,
	}))
	_, err := s.ClaimNextTask(ctx, "default")
	require.NoError(t, err)

	n, err := s.ResetStaleRunning(ctx, "default", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, store.TaskScheduled, task.Status)
}

func TestDeleteTaskAndResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	taskID := uuid.New()
	require.NoError(t, s.PutTask(ctx, &store.Task{
		ID: taskID, Name: "noop", Timestamp: time.Now(), QueueID: "default", Status: store.TaskScheduled,
	}))

	none, err := s.DeleteTaskAndResult(ctx, taskID)
	require.NoError(t, err)
	require.Nil(t, none)

	require.NoError(t, s.SetTaskResult(ctx, &store.TaskResult{ID: taskID, Result: []byte(`"done"`)}))

	result, err := s.DeleteTaskAndResult(ctx, taskID)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, []byte(`"done"`), result.Result)

	_, err = s.GetTask(ctx, taskID)
	require.Error(t, err)
}
