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

// Package sqlite is a single-file, single-process durable Store backend
// over modernc.org/sqlite (pure Go, no cgo). Every read-modify-write
// sequence the interface calls out as atomic (claim, bind, get-or-create)
// runs inside one database/sql transaction so two goroutines sharing a
// *Store never race.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/latchwork/durex/internal/durexerr"
	"github.com/latchwork/durex/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	input BLOB NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflows_name_status ON workflows(name, status);

CREATE TABLE IF NOT EXISTS activity_results (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	name TEXT NOT NULL,
	input BLOB NOT NULL,
	output BLOB NOT NULL,
	UNIQUE(workflow_id, name)
);

CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	name TEXT NOT NULL,
	content BLOB NOT NULL,
	step INTEGER,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_lookup ON signals(workflow_id, name, step);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	ts INTEGER NOT NULL,
	retry_count INTEGER NOT NULL,
	input BLOB NOT NULL,
	queue_id TEXT NOT NULL,
	status TEXT NOT NULL,
	claimed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks(queue_id, status, ts);

CREATE TABLE IF NOT EXISTS task_results (
	id TEXT PRIMARY KEY,
	result BLOB,
	error TEXT
);
`

// Store is a database/sql-backed Store over a SQLite file (or :memory:).
type Store struct {
	db *sql.DB
}

// Open creates/migrates the SQLite database at path (e.g. "durex.db" or
// "file::memory:?cache=shared") and returns a ready Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers at the file level; a single shared
	// connection avoids "database is locked" errors under concurrent use.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- WorkflowStore ---

func (s *Store) CreateWorkflow(ctx context.Context, w *store.Workflow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, input, status) VALUES (?, ?, ?, ?)`,
		w.ID.String(), w.Name, w.Input, string(w.Status))
	return err
}

func (s *Store) GetWorkflow(ctx context.Context, id uuid.UUID) (*store.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRowContext(ctx,
		`SELECT id, name, input, status FROM workflows WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, durexerr.NotFound("workflow", id.String())
	}
	return w, err
}

func (s *Store) FindRunning(ctx context.Context, name string, input []byte) (*store.Workflow, error) {
	return s.findByStatus(ctx, name, input, store.WorkflowRunning)
}

func (s *Store) FindStopped(ctx context.Context, name string, input []byte) (*store.Workflow, error) {
	return s.findByStatus(ctx, name, input, store.WorkflowStopped)
}

func (s *Store) findByStatus(ctx context.Context, name string, input []byte, status store.WorkflowStatus) (*store.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRowContext(ctx,
		`SELECT id, name, input, status FROM workflows WHERE name = ? AND input = ? AND status = ? LIMIT 1`,
		name, input, string(status)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (s *Store) UpdateWorkflowStatus(ctx context.Context, id uuid.UUID, status store.WorkflowStatus) (*store.Workflow, error) {
	var w *store.Workflow
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE workflows SET status = ? WHERE id = ?`, string(status), id.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return durexerr.NotFound("workflow", id.String())
		}
		w, err = scanWorkflow(tx.QueryRowContext(ctx,
			`SELECT id, name, input, status FROM workflows WHERE id = ?`, id.String()))
		return err
	})
	return w, err
}

func scanWorkflow(row *sql.Row) (*store.Workflow, error) {
	var w store.Workflow
	var id, status string
	if err := row.Scan(&id, &w.Name, &w.Input, &status); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	w.ID = parsed
	w.Status = store.WorkflowStatus(status)
	return &w, nil
}

// --- ActivityStore ---

func (s *Store) FindActivityResult(ctx context.Context, workflowID uuid.UUID, name string) (*store.ActivityResult, error) {
	var a store.ActivityResult
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, output FROM activity_results WHERE workflow_id = ? AND name = ?`,
		workflowID.String(), name).Scan(&id, &a.Output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	a.ID, a.WorkflowID, a.Name = parsed, workflowID, name
	return &a, nil
}

func (s *Store) SaveActivityResult(ctx context.Context, a *store.ActivityResult) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_results (id, workflow_id, name, input, output) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(workflow_id, name) DO UPDATE SET input = excluded.input, output = excluded.output`,
		a.ID.String(), a.WorkflowID.String(), a.Name, a.Input, a.Output)
	return err
}

// --- SignalStore ---

func (s *Store) CreateSignal(ctx context.Context, sig *store.Signal) error {
	if sig.ID == uuid.Nil {
		sig.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (id, workflow_id, name, content, step, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sig.ID.String(), sig.WorkflowID.String(), sig.Name, sig.Content, sig.Step, time.Now().UnixNano())
	return err
}

// BindOrCreateSignal binds within a transaction: first look for a signal
// already bound to (workflowID, name, step); otherwise claim the
// oldest-by-created_at unbound signal for (workflowID, name), atomically,
// so two concurrent Wait calls never bind the same signal twice.
func (s *Store) BindOrCreateSignal(ctx context.Context, workflowID uuid.UUID, name string, step int) (*store.Signal, error) {
	var result *store.Signal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if sig, err := scanSignal(tx.QueryRowContext(ctx,
			`SELECT id, content, step FROM signals WHERE workflow_id = ? AND name = ? AND step = ?`,
			workflowID.String(), name, step)); err == nil {
			result = sig
			return nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var id string
		var content []byte
		row := tx.QueryRowContext(ctx,
			`SELECT id, content FROM signals WHERE workflow_id = ? AND name = ? AND step IS NULL
			 ORDER BY created_at ASC LIMIT 1`,
			workflowID.String(), name)
		if err := row.Scan(&id, &content); errors.Is(err, sql.ErrNoRows) {
			return nil
		} else if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE signals SET step = ? WHERE id = ?`, step, id); err != nil {
			return err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return err
		}
		boundStep := step
		result = &store.Signal{ID: parsed, WorkflowID: workflowID, Name: name, Content: content, Step: &boundStep}
		return nil
	})
	return result, err
}

func scanSignal(row *sql.Row) (*store.Signal, error) {
	var id string
	var content []byte
	var step sql.NullInt64
	if err := row.Scan(&id, &content, &step); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	sig := &store.Signal{ID: parsed, Content: content}
	if step.Valid {
		v := int(step.Int64)
		sig.Step = &v
	}
	return sig, nil
}

// --- TaskStore ---

func (s *Store) PutTask(ctx context.Context, t *store.Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, name, ts, retry_count, input, queue_id, status, claimed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT(id) DO UPDATE SET
			ts = excluded.ts, retry_count = excluded.retry_count, input = excluded.input,
			name = excluded.name, queue_id = excluded.queue_id, status = ?, claimed_at = NULL`,
		t.ID.String(), t.Name, t.Timestamp.UnixNano(), t.RetryCount, t.Input, t.QueueID, string(store.TaskScheduled),
		string(store.TaskScheduled))
	return err
}

func (s *Store) ClaimNextTask(ctx context.Context, queueID string) (*store.Task, error) {
	var claimed *store.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		row := tx.QueryRowContext(ctx,
			`SELECT id, name, ts, retry_count, input, queue_id, status FROM tasks
			 WHERE queue_id = ? AND status = ? AND ts <= ?
			 ORDER BY id ASC LIMIT 1`,
			queueID, string(store.TaskScheduled), now.UnixNano())
		t, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, claimed_at = ? WHERE id = ?`,
			string(store.TaskRunning), now.UnixNano(), t.ID.String()); err != nil {
			return err
		}
		t.Status = store.TaskRunning
		claimed = t
		return nil
	})
	return claimed, err
}

func (s *Store) SuspendTask(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ? WHERE id = ? AND status IN (?, ?)`,
		string(store.TaskSuspended), id.String(), string(store.TaskScheduled), string(store.TaskRunning))
	return err
}

func (s *Store) WakeTask(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ? WHERE id = ? AND status = ?`,
		string(store.TaskScheduled), id.String(), string(store.TaskSuspended))
	return err
}

func (s *Store) DeleteTaskAndResult(ctx context.Context, id uuid.UUID) (*store.TaskResult, error) {
	var result *store.TaskResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var res []byte
		var errMsg sql.NullString
		row := tx.QueryRowContext(ctx, `SELECT result, error FROM task_results WHERE id = ?`, id.String())
		if err := row.Scan(&res, &errMsg); errors.Is(err, sql.ErrNoRows) {
			return nil
		} else if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_results WHERE id = ?`, id.String()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.String()); err != nil {
			return err
		}
		tr := &store.TaskResult{ID: id, Result: res}
		if errMsg.Valid {
			tr.Error = &errMsg.String
		}
		result = tr
		return nil
	})
	return result, err
}

func (s *Store) SetTaskResult(ctx context.Context, r *store.TaskResult) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_results (id, result, error) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET result = excluded.result, error = excluded.error`,
			r.ID.String(), r.Result, r.Error); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(store.TaskCompleted), r.ID.String())
		return err
	})
}

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT id, name, ts, retry_count, input, queue_id, status FROM tasks WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, durexerr.NotFound("task", id.String())
	}
	return t, err
}

func (s *Store) ResetStaleRunning(ctx context.Context, queueID string, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, claimed_at = NULL
		 WHERE queue_id = ? AND status = ? AND claimed_at < ?`,
		string(store.TaskScheduled), queueID, string(store.TaskRunning), olderThan.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanTask(row *sql.Row) (*store.Task, error) {
	var t store.Task
	var id, queueID, status string
	var ts int64
	if err := row.Scan(&id, &t.Name, &ts, &t.RetryCount, &t.Input, &queueID, &status); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	t.ID = parsed
	t.Timestamp = time.Unix(0, ts)
	t.QueueID = queueID
	t.Status = store.TaskStatus(status)
	return &t, nil
}
