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

package document

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/latchwork/durex/store"
)

// TestAtomicReentrant exercises a nested atomic-inside-atomic call on the
// same context, the shape a composed repo-layer operation would produce.
// A non-reentrant lock would deadlock on the inner s.lock.Lock() call.
func TestAtomicReentrant(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "durex.json"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	outerID, innerID := uuid.New(), uuid.New()

	done := make(chan error, 1)
	go func() {
		done <- s.atomic(ctx, func(ctx context.Context) error {
			s.data.Workflows[outerID] = &store.Workflow{ID: outerID, Name: "outer", Status: store.WorkflowRunning}
			return s.atomic(ctx, func(context.Context) error {
				s.data.Workflows[innerID] = &store.Workflow{ID: innerID, Name: "inner", Status: store.WorkflowRunning}
				return nil
			})
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("nested atomic call deadlocked")
	}

	reopened, err := Open(s.path)
	require.NoError(t, err)
	outer, err := reopened.GetWorkflow(ctx, outerID)
	require.NoError(t, err)
	require.Equal(t, "outer", outer.Name)
	inner, err := reopened.GetWorkflow(ctx, innerID)
	require.NoError(t, err)
	require.Equal(t, "inner", inner.Name)
}

// TestReadNestedInsideAtomic exercises a read call composed inside an
// atomic one, confirming the inner call reuses the outer frame instead of
// reacquiring the OS lock.
func TestReadNestedInsideAtomic(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "durex.json"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	id := uuid.New()

	err = s.atomic(ctx, func(ctx context.Context) error {
		s.data.Workflows[id] = &store.Workflow{ID: id, Name: "greet", Status: store.WorkflowRunning}
		return s.read(ctx, func(context.Context) error {
			w, ok := s.data.Workflows[id]
			require.True(t, ok)
			require.Equal(t, "greet", w.Name)
			return nil
		})
	})
	require.NoError(t, err)
}

// TestAtomicConcurrentCallersSerialize confirms distinct call chains (no
// shared lockFrame) still serialize through the real lock rather than
// racing each other.
func TestAtomicConcurrentCallersSerialize(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "durex.json"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errs <- s.CreateWorkflow(context.Background(), &store.Workflow{
				ID: uuid.New(), Name: "concurrent", Status: store.WorkflowRunning,
			})
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	err = s.read(context.Background(), func(context.Context) error {
		require.Len(t, s.data.Workflows, n)
		return nil
	})
	require.NoError(t, err)
}
