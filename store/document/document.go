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

// Package document is a single-JSON-file Store backend, guarded by an
// OS-level file lock rather than a database engine -- the shape of backend
// a deployment with no SQLite/Postgres dependency at all can still use.
// Reload/mutate/commit is the only path to a write, mirroring the
// reference implementation's Backend.atomic context manager.
package document

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/latchwork/durex/internal/durexerr"
	"github.com/latchwork/durex/store"
)

type documentSignal struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflow_id"`
	Name       string    `json:"name"`
	Content    []byte    `json:"content"`
	Step       *int      `json:"step,omitempty"`
	CreatedAt  int64     `json:"created_at"`
}

type documentTask struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Timestamp  int64           `json:"ts"`
	RetryCount int             `json:"retry_count"`
	Input      []byte          `json:"input"`
	QueueID    string          `json:"queue_id"`
	Status     store.TaskStatus `json:"status"`
	ClaimedAt  *int64          `json:"claimed_at,omitempty"`
}

type documentTaskResult struct {
	ID     uuid.UUID `json:"id"`
	Result []byte    `json:"result,omitempty"`
	Error  *string   `json:"error,omitempty"`
}

// tables is the whole document, loaded and written as one JSON blob -- the
// Go analogue of the reference Backend's single top-level dict of tables.
type tables struct {
	Workflows       map[uuid.UUID]*store.Workflow      `json:"workflows"`
	ActivityResults map[uuid.UUID]*store.ActivityResult `json:"activity_results"`
	Signals         map[uuid.UUID]*documentSignal       `json:"signals"`
	Tasks           map[uuid.UUID]*documentTask         `json:"tasks"`
	TaskResults     map[uuid.UUID]*documentTaskResult   `json:"task_results"`
}

func newTables() *tables {
	return &tables{
		Workflows:       make(map[uuid.UUID]*store.Workflow),
		ActivityResults: make(map[uuid.UUID]*store.ActivityResult),
		Signals:         make(map[uuid.UUID]*documentSignal),
		Tasks:           make(map[uuid.UUID]*documentTask),
		TaskResults:     make(map[uuid.UUID]*documentTaskResult),
	}
}

// Store is the JSON-document Store backend. One *Store should be shared by
// every goroutine in a process; cross-process safety comes from the
// sidecar *.lock file.
type Store struct {
	path string
	lock *flock.Flock

	// mu serializes in-process access to data; the flock.Flock only
	// protects cross-process access to the file itself.
	mu   sync.Mutex
	data *tables
}

// lockFrame is the reentrancy counter for a single logical call chain,
// carried as a context.Context value the same way WorkflowContext tracks
// the step ordinal in engine.WithWorkflowContext: the first atomic/read
// call in a chain installs a fresh *lockFrame on a derived context, and
// every nested call sees that same frame instead of installing its own.
// depth 0 -> 1 is the only transition that takes the real locks; deeper
// calls just run against the already-reloaded s.data.
type lockFrame struct {
	depth int
}

type lockFrameKey struct{}

// withLockFrame returns a context carrying a *lockFrame, reusing whatever
// frame ctx already has so nested atomic/read calls within the same call
// chain share one depth counter.
func withLockFrame(ctx context.Context) (context.Context, *lockFrame) {
	if f, ok := ctx.Value(lockFrameKey{}).(*lockFrame); ok {
		return ctx, f
	}
	f := &lockFrame{}
	return context.WithValue(ctx, lockFrameKey{}, f), f
}

// Open returns a Store backed by the JSON file at path, creating it (and
// its "path.lock" sidecar) if absent.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			return nil, err
		}
	}
	return &Store{path: path, lock: flock.New(path + ".lock"), data: newTables()}, nil
}

func (s *Store) Close() error { return nil }

// atomic reloads the file under the OS lock, runs fn against s.data, and
// commits the result back -- the Go shape of the reference Backend.atomic
// context manager's reload/yield/commit sequence. It is reentrant on ctx's
// lockFrame: a call nested (directly or via a composed repo-layer
// operation) inside an outer atomic/read on the same ctx chain finds
// depth > 0 and skips the OS lock and reload entirely, trusting the
// outer frame's already-loaded s.data; only the outermost call commits.
func (s *Store) atomic(ctx context.Context, fn func(context.Context) error) error {
	ctx, frame := withLockFrame(ctx)

	if frame.depth == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.lock.Lock(); err != nil {
			return err
		}
		defer s.lock.Unlock()

		if err := s.reload(); err != nil {
			return err
		}
	}

	frame.depth++
	defer func() { frame.depth-- }()

	if err := fn(ctx); err != nil {
		return err
	}
	if frame.depth == 1 {
		return s.commit()
	}
	return nil
}

// read is atomic's read-only counterpart: reload but skip the write-back.
// Reentrant the same way atomic is.
func (s *Store) read(ctx context.Context, fn func(context.Context) error) error {
	ctx, frame := withLockFrame(ctx)

	if frame.depth == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.lock.Lock(); err != nil {
			return err
		}
		defer s.lock.Unlock()

		if err := s.reload(); err != nil {
			return err
		}
	}

	frame.depth++
	defer func() { frame.depth-- }()

	return fn(ctx)
}

func (s *Store) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		s.data = newTables()
		return nil
	}
	t := newTables()
	if err := json.Unmarshal(raw, t); err != nil {
		return err
	}
	s.data = t
	return nil
}

func (s *Store) commit() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// --- WorkflowStore ---

func (s *Store) CreateWorkflow(ctx context.Context, w *store.Workflow) error {
	return s.atomic(ctx, func(context.Context) error {
		cp := *w
		s.data.Workflows[w.ID] = &cp
		return nil
	})
}

func (s *Store) GetWorkflow(ctx context.Context, id uuid.UUID) (*store.Workflow, error) {
	var found *store.Workflow
	err := s.read(ctx, func(context.Context) error {
		w, ok := s.data.Workflows[id]
		if !ok {
			return durexerr.NotFound("workflow", id.String())
		}
		cp := *w
		found = &cp
		return nil
	})
	return found, err
}

func (s *Store) FindRunning(ctx context.Context, name string, input []byte) (*store.Workflow, error) {
	return s.findByStatus(ctx, name, input, store.WorkflowRunning)
}

func (s *Store) FindStopped(ctx context.Context, name string, input []byte) (*store.Workflow, error) {
	return s.findByStatus(ctx, name, input, store.WorkflowStopped)
}

func (s *Store) findByStatus(ctx context.Context, name string, input []byte, status store.WorkflowStatus) (*store.Workflow, error) {
	var found *store.Workflow
	err := s.read(ctx, func(context.Context) error {
		for _, w := range s.data.Workflows {
			if w.Name == name && string(w.Input) == string(input) && w.Status == status {
				cp := *w
				found = &cp
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (s *Store) UpdateWorkflowStatus(ctx context.Context, id uuid.UUID, status store.WorkflowStatus) (*store.Workflow, error) {
	var updated *store.Workflow
	err := s.atomic(ctx, func(context.Context) error {
		w, ok := s.data.Workflows[id]
		if !ok {
			return durexerr.NotFound("workflow", id.String())
		}
		w.Status = status
		cp := *w
		updated = &cp
		return nil
	})
	return updated, err
}

// --- ActivityStore ---

func (s *Store) FindActivityResult(ctx context.Context, workflowID uuid.UUID, name string) (*store.ActivityResult, error) {
	var found *store.ActivityResult
	err := s.read(ctx, func(context.Context) error {
		for _, a := range s.data.ActivityResults {
			if a.WorkflowID == workflowID && a.Name == name {
				cp := *a
				found = &cp
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (s *Store) SaveActivityResult(ctx context.Context, a *store.ActivityResult) error {
	return s.atomic(ctx, func(context.Context) error {
		for id, existing := range s.data.ActivityResults {
			if existing.WorkflowID == a.WorkflowID && existing.Name == a.Name {
				a.ID = id
				cp := *a
				s.data.ActivityResults[id] = &cp
				return nil
			}
		}
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		cp := *a
		s.data.ActivityResults[a.ID] = &cp
		return nil
	})
}

// --- SignalStore ---

func (s *Store) CreateSignal(ctx context.Context, sig *store.Signal) error {
	return s.atomic(ctx, func(context.Context) error {
		if sig.ID == uuid.Nil {
			sig.ID = uuid.New()
		}
		s.data.Signals[sig.ID] = &documentSignal{
			ID: sig.ID, WorkflowID: sig.WorkflowID, Name: sig.Name, Content: sig.Content,
			Step: sig.Step, CreatedAt: time.Now().UnixNano(),
		}
		return nil
	})
}

func (s *Store) BindOrCreateSignal(ctx context.Context, workflowID uuid.UUID, name string, step int) (*store.Signal, error) {
	var result *store.Signal
	err := s.atomic(ctx, func(context.Context) error {
		for _, sig := range s.data.Signals {
			if sig.WorkflowID == workflowID && sig.Name == name && sig.Step != nil && *sig.Step == step {
				result = toSignal(sig)
				return nil
			}
		}

		var unbound []*documentSignal
		for _, sig := range s.data.Signals {
			if sig.WorkflowID == workflowID && sig.Name == name && sig.Step == nil {
				unbound = append(unbound, sig)
			}
		}
		if len(unbound) == 0 {
			return nil
		}
		sort.Slice(unbound, func(i, j int) bool { return unbound[i].CreatedAt < unbound[j].CreatedAt })
		bound := step
		unbound[0].Step = &bound
		result = toSignal(unbound[0])
		return nil
	})
	return result, err
}

func toSignal(d *documentSignal) *store.Signal {
	return &store.Signal{ID: d.ID, WorkflowID: d.WorkflowID, Name: d.Name, Content: d.Content, Step: d.Step}
}

// --- TaskStore ---

func (s *Store) PutTask(ctx context.Context, t *store.Task) error {
	return s.atomic(ctx, func(context.Context) error {
		s.data.Tasks[t.ID] = &documentTask{
			ID: t.ID, Name: t.Name, Timestamp: t.Timestamp.UnixNano(), RetryCount: t.RetryCount,
			Input: t.Input, QueueID: t.QueueID, Status: store.TaskScheduled,
		}
		return nil
	})
}

func (s *Store) ClaimNextTask(ctx context.Context, queueID string) (*store.Task, error) {
	var claimed *store.Task
	err := s.atomic(ctx, func(context.Context) error {
		now := time.Now()
		var candidates []*documentTask
		for _, t := range s.data.Tasks {
			if t.QueueID == queueID && t.Status == store.TaskScheduled && t.Timestamp <= now.UnixNano() {
				candidates = append(candidates, t)
			}
		}
		if len(candidates) == 0 {
			return nil
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID.String() < candidates[j].ID.String() })
		t := candidates[0]
		t.Status = store.TaskRunning
		claimedAt := now.UnixNano()
		t.ClaimedAt = &claimedAt
		claimed = toTask(t)
		return nil
	})
	return claimed, err
}

func (s *Store) SuspendTask(ctx context.Context, id uuid.UUID) error {
	return s.atomic(ctx, func(context.Context) error {
		t, ok := s.data.Tasks[id]
		if !ok {
			return durexerr.NotFound("task", id.String())
		}
		if t.Status == store.TaskScheduled || t.Status == store.TaskRunning {
			t.Status = store.TaskSuspended
		}
		return nil
	})
}

func (s *Store) WakeTask(ctx context.Context, id uuid.UUID) error {
	return s.atomic(ctx, func(context.Context) error {
		t, ok := s.data.Tasks[id]
		if !ok {
			return durexerr.NotFound("task", id.String())
		}
		if t.Status == store.TaskSuspended {
			t.Status = store.TaskScheduled
		}
		return nil
	})
}

func (s *Store) DeleteTaskAndResult(ctx context.Context, id uuid.UUID) (*store.TaskResult, error) {
	var result *store.TaskResult
	err := s.atomic(ctx, func(context.Context) error {
		r, ok := s.data.TaskResults[id]
		if !ok {
			return nil
		}
		delete(s.data.TaskResults, id)
		delete(s.data.Tasks, id)
		cp := *r
		result = &store.TaskResult{ID: cp.ID, Result: cp.Result, Error: cp.Error}
		return nil
	})
	return result, err
}

func (s *Store) SetTaskResult(ctx context.Context, r *store.TaskResult) error {
	return s.atomic(ctx, func(context.Context) error {
		if t, ok := s.data.Tasks[r.ID]; ok {
			t.Status = store.TaskCompleted
		}
		s.data.TaskResults[r.ID] = &documentTaskResult{ID: r.ID, Result: r.Result, Error: r.Error}
		return nil
	})
}

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	var found *store.Task
	err := s.read(ctx, func(context.Context) error {
		t, ok := s.data.Tasks[id]
		if !ok {
			return durexerr.NotFound("task", id.String())
		}
		found = toTask(t)
		return nil
	})
	return found, err
}

func (s *Store) ResetStaleRunning(ctx context.Context, queueID string, olderThan time.Time) (int, error) {
	n := 0
	err := s.atomic(ctx, func(context.Context) error {
		for _, t := range s.data.Tasks {
			if t.QueueID != queueID || t.Status != store.TaskRunning {
				continue
			}
			if t.ClaimedAt != nil && *t.ClaimedAt < olderThan.UnixNano() {
				t.Status = store.TaskScheduled
				t.ClaimedAt = nil
				n++
			}
		}
		return nil
	})
	return n, err
}

func toTask(d *documentTask) *store.Task {
	return &store.Task{
		ID: d.ID, Name: d.Name, Timestamp: time.Unix(0, d.Timestamp), RetryCount: d.RetryCount,
		Input: d.Input, QueueID: d.QueueID, Status: d.Status,
	}
}
