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

// Package repo implements the entity-level invariants (get-or-create,
// signal binding order, activity memoization) on top of a store.Store,
// independent of which backend is in use.
package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/latchwork/durex/internal/durexerr"
	"github.com/latchwork/durex/store"
)

// WorkflowRepo enforces the Workflow lifecycle invariants.
type WorkflowRepo struct {
	store store.WorkflowStore
}

func NewWorkflowRepo(s store.WorkflowStore) *WorkflowRepo {
	return &WorkflowRepo{store: s}
}

// GetOrCreateOpts configures GetOrCreate's handling of a STOPPED row.
type GetOrCreateOpts struct {
	// RefuseStopped, when true, makes GetOrCreate fail with AlreadyRunning
	// instead of reviving a STOPPED row. Default false ("revive by
	// default"), per SPEC_FULL.md §9's resolution of the ok_stopped
	// open question.
	RefuseStopped bool
}

// GetOrCreate implements the linchpin invariant:
//  1. RUNNING row for (name, input) exists -> ErrAlreadyRunning.
//  2. STOPPED row exists -> flip to RUNNING and return it (unless
//     opts.RefuseStopped).
//  3. Otherwise insert a fresh RUNNING row with a new id.
func (r *WorkflowRepo) GetOrCreate(ctx context.Context, name string, input []byte, opts ...GetOrCreateOpts) (*store.Workflow, error) {
	var opt GetOrCreateOpts
	if len(opts) > 0 {
		opt = opts[0]
	}

	if running, err := r.store.FindRunning(ctx, name, input); err != nil {
		return nil, err
	} else if running != nil {
		return nil, durexerr.AlreadyRunning(name)
	}

	stopped, err := r.store.FindStopped(ctx, name, input)
	if err != nil {
		return nil, err
	}
	if stopped != nil {
		if opt.RefuseStopped {
			return nil, durexerr.AlreadyRunning(name)
		}
		return r.store.UpdateWorkflowStatus(ctx, stopped.ID, store.WorkflowRunning)
	}

	w := &store.Workflow{ID: uuid.New(), Name: name, Input: input, Status: store.WorkflowRunning}
	if err := r.store.CreateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Get fetches a Workflow by id, failing with NotFound if absent.
func (r *WorkflowRepo) Get(ctx context.Context, id uuid.UUID) (*store.Workflow, error) {
	return r.store.GetWorkflow(ctx, id)
}

// Complete marks w COMPLETED (terminal).
func (r *WorkflowRepo) Complete(ctx context.Context, id uuid.UUID) (*store.Workflow, error) {
	return r.store.UpdateWorkflowStatus(ctx, id, store.WorkflowCompleted)
}

// Fail marks w STOPPED (resumable via a later GetOrCreate).
func (r *WorkflowRepo) Fail(ctx context.Context, id uuid.UUID) (*store.Workflow, error) {
	return r.store.UpdateWorkflowStatus(ctx, id, store.WorkflowStopped)
}

// ActivityRepo implements the activity-result memoization cache.
type ActivityRepo struct {
	store store.ActivityStore
}

func NewActivityRepo(s store.ActivityStore) *ActivityRepo {
	return &ActivityRepo{store: s}
}

// MayFindOne returns the memoized result for (workflowID, name), or
// (nil, nil) on a cache miss.
func (r *ActivityRepo) MayFindOne(ctx context.Context, workflowID uuid.UUID, name string) (*store.ActivityResult, error) {
	return r.store.FindActivityResult(ctx, workflowID, name)
}

// Save persists a's output, inserting or updating on (workflowID, name) conflict.
func (r *ActivityRepo) Save(ctx context.Context, a *store.ActivityResult) error {
	return r.store.SaveActivityResult(ctx, a)
}

// SignalRepo implements FIFO signal binding.
type SignalRepo struct {
	store store.SignalStore
}

func NewSignalRepo(s store.SignalStore) *SignalRepo {
	return &SignalRepo{store: s}
}

// New inserts an unbound signal (Step == nil). Its id is a time-ordered
// (version 7) UUID, so a lower id means an earlier signal.
func (r *SignalRepo) New(ctx context.Context, workflowID uuid.UUID, name string, content []byte) error {
	return r.store.CreateSignal(ctx, &store.Signal{
		ID: uuid.Must(uuid.NewV7()), WorkflowID: workflowID, Name: name, Content: content,
	})
}

// MayFindOne returns the signal already bound to (workflowID, name, step),
// or atomically binds and returns the oldest unbound signal for that name;
// (nil, nil) if neither exists.
func (r *SignalRepo) MayFindOne(ctx context.Context, workflowID uuid.UUID, name string, step int) (*store.Signal, error) {
	return r.store.BindOrCreateSignal(ctx, workflowID, name, step)
}

// TaskRepo wraps the raw TaskStore surface; Queue (package queue) adds the
// function-name/Codec bridging on top of this.
type TaskRepo struct {
	store store.TaskStore
}

func NewTaskRepo(s store.TaskStore) *TaskRepo {
	return &TaskRepo{store: s}
}

func (r *TaskRepo) Put(ctx context.Context, t *store.Task) error { return r.store.PutTask(ctx, t) }

func (r *TaskRepo) ClaimNext(ctx context.Context, queueID string) (*store.Task, error) {
	return r.store.ClaimNextTask(ctx, queueID)
}

func (r *TaskRepo) Suspend(ctx context.Context, id uuid.UUID) error {
	return r.store.SuspendTask(ctx, id)
}

func (r *TaskRepo) Wake(ctx context.Context, id uuid.UUID) error {
	return r.store.WakeTask(ctx, id)
}

func (r *TaskRepo) DeleteAndResult(ctx context.Context, id uuid.UUID) (*store.TaskResult, error) {
	return r.store.DeleteTaskAndResult(ctx, id)
}

func (r *TaskRepo) SetResult(ctx context.Context, result *store.TaskResult) error {
	return r.store.SetTaskResult(ctx, result)
}

func (r *TaskRepo) Get(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	return r.store.GetTask(ctx, id)
}

// Repositories bundles all four repos over one Store, mirroring the
// reference implementation's cached-property Repositories bundle.
type Repositories struct {
	Workflows  *WorkflowRepo
	Activities *ActivityRepo
	Signals    *SignalRepo
	Tasks      *TaskRepo
}

func New(s store.Store) *Repositories {
	return &Repositories{
		Workflows:  NewWorkflowRepo(s),
		Activities: NewActivityRepo(s),
		Signals:    NewSignalRepo(s),
		Tasks:      NewTaskRepo(s),
	}
}
