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

package store

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// WorkflowStore is the transactional surface over the Workflow table. Every
// method that can race with another caller (FindRunning+create, status
// flips) is implemented as a single atomic statement by each backend, never
// as a read followed by a separate write.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, w *Workflow) error
	GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error)
	FindRunning(ctx context.Context, name string, input []byte) (*Workflow, error)
	FindStopped(ctx context.Context, name string, input []byte) (*Workflow, error)
	UpdateWorkflowStatus(ctx context.Context, id uuid.UUID, status WorkflowStatus) (*Workflow, error)
}

// ActivityStore is the transactional surface over the ActivityResult table.
type ActivityStore interface {
	FindActivityResult(ctx context.Context, workflowID uuid.UUID, name string) (*ActivityResult, error)
	SaveActivityResult(ctx context.Context, a *ActivityResult) error
}

// SignalStore is the transactional surface over the Signal table.
type SignalStore interface {
	CreateSignal(ctx context.Context, s *Signal) error
	// BindOrCreateSignal returns the Signal already bound to
	// (workflowID, name, step) if one exists; otherwise it atomically binds
	// the oldest unbound signal for (workflowID, name) to step and returns
	// it. It returns (nil, nil) when neither exists yet.
	BindOrCreateSignal(ctx context.Context, workflowID uuid.UUID, name string, step int) (*Signal, error)
}

// TaskStore is the transactional surface over the Task and TaskResult
// tables backing the durable Queue.
type TaskStore interface {
	PutTask(ctx context.Context, t *Task) error
	// ClaimNextTask atomically selects the lowest-id SCHEDULED task with
	// Timestamp <= now for queueID, flips it to RUNNING, and returns it.
	// It returns (nil, nil) when no task is ready.
	ClaimNextTask(ctx context.Context, queueID string) (*Task, error)
	SuspendTask(ctx context.Context, id uuid.UUID) error
	WakeTask(ctx context.Context, id uuid.UUID) error
	// DeleteTaskAndResult atomically removes the Task and its TaskResult,
	// returning the result that was deleted. Returns (nil, nil) if the task
	// has no result yet (still in flight).
	DeleteTaskAndResult(ctx context.Context, id uuid.UUID) (*TaskResult, error)
	SetTaskResult(ctx context.Context, r *TaskResult) error
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	// ResetStaleRunning resets RUNNING tasks for queueID whose claim is
	// older than olderThan back to SCHEDULED, preserving RetryCount. Used
	// by the reaper (SPEC_FULL.md §5a).
	ResetStaleRunning(ctx context.Context, queueID string, olderThan time.Time) (int, error)
}

// Store is the full persistence surface a backend implements. Three
// backends ship in this module: sqlite, document, and memorystore, plus an
// optional postgres backend.
type Store interface {
	WorkflowStore
	ActivityStore
	SignalStore
	TaskStore
	io.Closer
}
