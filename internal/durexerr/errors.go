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

// Package durexerr defines the engine's error taxonomy: a small set of
// named kinds (NotFound, AlreadyRunning, Empty, Suspend, UserError,
// DeterminismViolation) plus the generic wrap/unwrap helpers used
// throughout the module.
package durexerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an Error by cause, independent of the concrete Go type,
// mirroring the error taxonomy every layer of the engine reports against.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyRunning
	KindEmpty
	KindUserError
	KindDeterminismViolation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyRunning:
		return "already_running"
	case KindEmpty:
		return "empty"
	case KindUserError:
		return "user_error"
	case KindDeterminismViolation:
		return "determinism_violation"
	default:
		return "unknown"
	}
}

// Error is the concrete type behind every sentinel below. Cause, when set,
// participates in errors.Is/errors.As via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause.Error())
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrNotFound) match any *Error with the same Kind,
// regardless of Message/Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons. Construct wrapped instances with
// NotFound/AlreadyRunning/Empty/UserError rather than returning these
// directly, so Message/Cause travel with the error.
var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrAlreadyRunning       = &Error{Kind: KindAlreadyRunning}
	ErrEmpty                = &Error{Kind: KindEmpty}
	ErrDeterminismViolation = &Error{Kind: KindDeterminismViolation}
)

// NotFound builds a NotFound error naming the missing resource.
func NotFound(resource, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s", resource, id)}
}

// AlreadyRunning builds an AlreadyRunning error for the given workflow name.
func AlreadyRunning(name string) error {
	return &Error{Kind: KindAlreadyRunning, Message: fmt.Sprintf("workflow %q already running", name)}
}

// Empty builds an Empty error, used by Queue.GetResult in non-blocking mode.
func Empty(what string) error {
	return &Error{Kind: KindEmpty, Message: what}
}

// UserErrorf wraps an error returned from workflow or activity user code,
// preserving it via Unwrap so callers can still errors.As into it.
func UserErrorf(cause error, format string, args ...any) error {
	return &Error{Kind: KindUserError, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Suspend is the control-flow sentinel a workflow-internal call returns in
// place of Go's unavailable exception mechanism when the active Executor
// wants the caller (the worker loop) to park the current task instead of
// returning a normal result. At == nil means "suspend indefinitely until
// woken"; a non-nil At means "resume no earlier than this time".
//
// Suspend is never a user-visible error: the Direct and Threaded executors
// never return it (they block in place), and only the worker-pool executor
// returns it, for its own dispatch loop to handle.
type Suspend struct {
	At *time.Time
}

func (s *Suspend) Error() string {
	if s.At == nil {
		return "suspend"
	}
	return fmt.Sprintf("suspend until %s", s.At.Format(time.RFC3339))
}

// AsSuspend reports whether err is (or wraps) a *Suspend, returning it.
func AsSuspend(err error) (*Suspend, bool) {
	var s *Suspend
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// Wrap adds context to err, preserving the error chain. Nil in, nil out.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is, As, Unwrap, New re-export the standard library so callers importing
// durexerr rarely need a second import for basic error chain inspection.
func Is(err, target error) bool   { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
func Unwrap(err error) error       { return errors.Unwrap(err) }
func New(message string) error    { return errors.New(message) }
