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

// Package store defines the durable entities the engine persists and the
// segregated interfaces each backend implements against them.
package store

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus is the lifecycle state of a Workflow row.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "RUNNING"
	WorkflowCompleted WorkflowStatus = "COMPLETED"
	WorkflowStopped   WorkflowStatus = "STOPPED"
)

// Workflow is a durable record of one workflow execution attempt.
// One RUNNING row per (Name, Input) is an invariant enforced by WorkflowRepo.
type Workflow struct {
	ID     uuid.UUID
	Name   string
	Input  []byte
	Status WorkflowStatus
}

// ActivityResult is a memoized, idempotent activity outcome keyed by
// (WorkflowID, Name). Name already encodes the ordinal ("userName#k").
type ActivityResult struct {
	ID         uuid.UUID
	WorkflowID uuid.UUID
	Name       string
	Input      []byte
	Output     []byte
}

// Signal is an externally-emitted message addressed to a running workflow.
// Step == nil means "delivered, not yet consumed"; a non-nil Step binds the
// signal to the k-th Wait call of that name within the workflow.
type Signal struct {
	ID         uuid.UUID
	WorkflowID uuid.UUID
	Name       string
	Content    []byte
	Step       *int
}

// TaskStatus is the lifecycle state of a Task row.
type TaskStatus string

const (
	TaskScheduled TaskStatus = "SCHEDULED"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSuspended TaskStatus = "SUSPENDED"
	TaskCompleted TaskStatus = "COMPLETED"
)

// Task is a scheduled, possibly-retryable unit of work in the durable queue.
type Task struct {
	ID         uuid.UUID
	Name       string
	Timestamp  time.Time
	RetryCount int
	Input      []byte
	QueueID    string
	Status     TaskStatus
}

// TaskResult holds the outcome of a completed Task. Exactly one of Result,
// Error is set.
type TaskResult struct {
	ID     uuid.UUID
	Result []byte
	Error  *string
}
