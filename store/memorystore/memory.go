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

// Package memorystore is an in-memory Store implementation, used as the
// Direct runner's default backend and across this module's unit tests.
package memorystore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/latchwork/durex/internal/durexerr"
	"github.com/latchwork/durex/store"
)

// Store is a sync.Mutex-guarded in-memory implementation of store.Store.
type Store struct {
	mu          sync.Mutex
	workflows   map[uuid.UUID]*store.Workflow
	activities  map[uuid.UUID]*store.ActivityResult
	signals     map[uuid.UUID]*store.Signal
	tasks       map[uuid.UUID]*store.Task
	taskResults map[uuid.UUID]*store.TaskResult
	claimedAt   map[uuid.UUID]time.Time
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		workflows:   make(map[uuid.UUID]*store.Workflow),
		activities:  make(map[uuid.UUID]*store.ActivityResult),
		signals:     make(map[uuid.UUID]*store.Signal),
		tasks:       make(map[uuid.UUID]*store.Task),
		taskResults: make(map[uuid.UUID]*store.TaskResult),
		claimedAt:   make(map[uuid.UUID]time.Time),
	}
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// --- WorkflowStore ---

func (s *Store) CreateWorkflow(_ context.Context, w *store.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = clone(w)
	return nil
}

func (s *Store) GetWorkflow(_ context.Context, id uuid.UUID) (*store.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, durexerr.NotFound("workflow", id.String())
	}
	return clone(w), nil
}

func (s *Store) FindRunning(_ context.Context, name string, input []byte) (*store.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByStatus(name, input, store.WorkflowRunning), nil
}

func (s *Store) FindStopped(_ context.Context, name string, input []byte) (*store.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByStatus(name, input, store.WorkflowStopped), nil
}

func (s *Store) findByStatus(name string, input []byte, status store.WorkflowStatus) *store.Workflow {
	for _, w := range s.workflows {
		if w.Name == name && bytes.Equal(w.Input, input) && w.Status == status {
			return clone(w)
		}
	}
	return nil
}

func (s *Store) UpdateWorkflowStatus(_ context.Context, id uuid.UUID, status store.WorkflowStatus) (*store.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, durexerr.NotFound("workflow", id.String())
	}
	w.Status = status
	return clone(w), nil
}

// --- ActivityStore ---

func (s *Store) FindActivityResult(_ context.Context, workflowID uuid.UUID, name string) (*store.ActivityResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.activities {
		if a.WorkflowID == workflowID && a.Name == name {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (s *Store) SaveActivityResult(_ context.Context, a *store.ActivityResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.activities {
		if existing.WorkflowID == a.WorkflowID && existing.Name == a.Name {
			a.ID = id
			s.activities[id] = clone(a)
			return nil
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.activities[a.ID] = clone(a)
	return nil
}

// --- SignalStore ---

func (s *Store) CreateSignal(_ context.Context, sig *store.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig.ID == uuid.Nil {
		sig.ID = uuid.New()
	}
	s.signals[sig.ID] = clone(sig)
	return nil
}

func (s *Store) BindOrCreateSignal(_ context.Context, workflowID uuid.UUID, name string, step int) (*store.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sig := range s.signals {
		if sig.WorkflowID == workflowID && sig.Name == name && sig.Step != nil && *sig.Step == step {
			return clone(sig), nil
		}
	}

	var oldest *store.Signal
	var oldestCreated uuid.UUID
	ordered := make([]*store.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		if sig.WorkflowID == workflowID && sig.Name == name && sig.Step == nil {
			ordered = append(ordered, sig)
		}
	}
	if len(ordered) == 0 {
		return nil, nil
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ID.String() < ordered[j].ID.String()
	})
	oldest = ordered[0]
	oldestCreated = oldest.ID

	bound := step
	oldest.Step = &bound
	s.signals[oldestCreated] = oldest
	return clone(oldest), nil
}

// --- TaskStore ---

func (s *Store) PutTask(_ context.Context, t *store.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tasks[t.ID]; ok {
		existing.Timestamp = t.Timestamp
		existing.RetryCount = t.RetryCount
		existing.Status = store.TaskScheduled
		existing.Input = t.Input
		existing.Name = t.Name
		existing.QueueID = t.QueueID
		return nil
	}
	s.tasks[t.ID] = clone(t)
	return nil
}

func (s *Store) ClaimNextTask(_ context.Context, queueID string) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var candidates []*store.Task
	for _, t := range s.tasks {
		if t.QueueID == queueID && t.Status == store.TaskScheduled && !t.Timestamp.After(now) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID.String() < candidates[j].ID.String()
	})
	claimed := candidates[0]
	claimed.Status = store.TaskRunning
	s.claimedAt[claimed.ID] = now
	return clone(claimed), nil
}

func (s *Store) SuspendTask(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return durexerr.NotFound("task", id.String())
	}
	if t.Status == store.TaskScheduled || t.Status == store.TaskRunning {
		t.Status = store.TaskSuspended
	}
	return nil
}

func (s *Store) WakeTask(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return durexerr.NotFound("task", id.String())
	}
	if t.Status == store.TaskSuspended {
		t.Status = store.TaskScheduled
	}
	return nil
}

func (s *Store) DeleteTaskAndResult(_ context.Context, id uuid.UUID) (*store.TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.taskResults[id]
	if !ok {
		return nil, nil
	}
	delete(s.taskResults, id)
	delete(s.tasks, id)
	delete(s.claimedAt, id)
	return clone(r), nil
}

func (s *Store) SetTaskResult(_ context.Context, r *store.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[r.ID]; ok {
		t.Status = store.TaskCompleted
	}
	s.taskResults[r.ID] = clone(r)
	return nil
}

func (s *Store) GetTask(_ context.Context, id uuid.UUID) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, durexerr.NotFound("task", id.String())
	}
	return clone(t), nil
}

func (s *Store) ResetStaleRunning(_ context.Context, queueID string, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.tasks {
		if t.QueueID != queueID || t.Status != store.TaskRunning {
			continue
		}
		if claimed, ok := s.claimedAt[id]; ok && claimed.Before(olderThan) {
			t.Status = store.TaskScheduled
			delete(s.claimedAt, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }
