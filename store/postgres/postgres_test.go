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

package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/latchwork/durex/store"
	"github.com/latchwork/durex/store/postgres"
)

// These tests exercise a real PostgreSQL instance and are skipped unless
// DUREX_TEST_POSTGRES_DSN is set, since no database is available in the
// default build/test environment. Point it at a disposable database, e.g.:
//
//	DUREX_TEST_POSTGRES_DSN=postgres://postgres@localhost/durex_test go test ./store/postgres/...
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("DUREX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DUREX_TEST_POSTGRES_DSN not set, skipping postgres store tests")
	}
	s, err := postgres.Open(dsn)
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
		require.False(t, seen[task.ID])
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
