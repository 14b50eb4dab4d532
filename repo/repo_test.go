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

package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/latchwork/durex/internal/durexerr"
	"github.com/latchwork/durex/repo"
	"github.com/latchwork/durex/store"
	"github.com/latchwork/durex/store/memorystore"
)

// TestInvariant1 -- get_or_create; complete; get_or_create returns a
// different id (SPEC_FULL.md §8 invariant 1).
func TestInvariant1_CompleteThenRecreate(t *testing.T) {
	ctx := context.Background()
	repos := repo.New(memorystore.New())

	w1, err := repos.Workflows.GetOrCreate(ctx, "greet", []byte(`"world"`))
	require.NoError(t, err)

	_, err = repos.Workflows.Complete(ctx, w1.ID)
	require.NoError(t, err)

	w2, err := repos.Workflows.GetOrCreate(ctx, "greet", []byte(`"world"`))
	require.NoError(t, err)
	require.NotEqual(t, w1.ID, w2.ID)
	require.Equal(t, store.WorkflowRunning, w2.Status)
}

// TestInvariant2 -- get_or_create; failed; get_or_create returns the same
// id, RUNNING (SPEC_FULL.md §8 invariant 2).
func TestInvariant2_FailThenRevive(t *testing.T) {
	ctx := context.Background()
	repos := repo.New(memorystore.New())

	w1, err := repos.Workflows.GetOrCreate(ctx, "greet", []byte(`"world"`))
	require.NoError(t, err)

	_, err = repos.Workflows.Fail(ctx, w1.ID)
	require.NoError(t, err)

	w2, err := repos.Workflows.GetOrCreate(ctx, "greet", []byte(`"world"`))
	require.NoError(t, err)
	require.Equal(t, w1.ID, w2.ID)
	require.Equal(t, store.WorkflowRunning, w2.Status)
}

func TestGetOrCreate_AlreadyRunning(t *testing.T) {
	ctx := context.Background()
	repos := repo.New(memorystore.New())

	_, err := repos.Workflows.GetOrCreate(ctx, "greet", []byte(`"world"`))
	require.NoError(t, err)

	_, err = repos.Workflows.GetOrCreate(ctx, "greet", []byte(`"world"`))
	require.Error(t, err)
	require.True(t, errors.Is(err, durexerr.ErrAlreadyRunning))
}

func TestGetOrCreate_RefuseStopped(t *testing.T) {
	ctx := context.Background()
	repos := repo.New(memorystore.New())

	w1, err := repos.Workflows.GetOrCreate(ctx, "greet", []byte(`"world"`))
	require.NoError(t, err)
	_, err = repos.Workflows.Fail(ctx, w1.ID)
	require.NoError(t, err)

	_, err = repos.Workflows.GetOrCreate(ctx, "greet", []byte(`"world"`), repo.GetOrCreateOpts{RefuseStopped: true})
	require.Error(t, err)
	require.True(t, errors.Is(err, durexerr.ErrAlreadyRunning))
}

func TestGet_NotFound(t *testing.T) {
	ctx := context.Background()
	repos := repo.New(memorystore.New())

	_, err := repos.Workflows.Get(ctx, uuid.New())
	require.Error(t, err)
	require.True(t, errors.Is(err, durexerr.ErrNotFound))
}

func TestSignalFIFOBinding(t *testing.T) {
	ctx := context.Background()
	repos := repo.New(memorystore.New())
	wf, err := repos.Workflows.GetOrCreate(ctx, "approvals", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, repos.Signals.New(ctx, wf.ID, "approval", []byte(`"A"`)))
	require.NoError(t, repos.Signals.New(ctx, wf.ID, "approval", []byte(`"B"`)))
	require.NoError(t, repos.Signals.New(ctx, wf.ID, "approval", []byte(`"C"`)))

	s1, err := repos.Signals.MayFindOne(ctx, wf.ID, "approval", 1)
	require.NoError(t, err)
	require.Equal(t, `"A"`, string(s1.Content))

	s2, err := repos.Signals.MayFindOne(ctx, wf.ID, "approval", 2)
	require.NoError(t, err)
	require.Equal(t, `"B"`, string(s2.Content))

	s3, err := repos.Signals.MayFindOne(ctx, wf.ID, "approval", 3)
	require.NoError(t, err)
	require.Equal(t, `"C"`, string(s3.Content))

	none, err := repos.Signals.MayFindOne(ctx, wf.ID, "approval", 4)
	require.NoError(t, err)
	require.Nil(t, none)
}
