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

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/latchwork/durex/codec"
	"github.com/latchwork/durex/internal/durexerr"
	"github.com/latchwork/durex/internal/tracing"
	"github.com/latchwork/durex/repo"
	"github.com/latchwork/durex/store"
)

// Activity promotes a user function into a memoized, replay-safe step.
// Activity does not register itself in the task registry: it only ever
// runs in-process, inline within the enclosing workflow's runWorkflow call.
type Activity[In, Out any] struct {
	name  string
	codec codec.Codec[In, Out]
	fn    func(context.Context, In) (Out, error)
}

// NewActivity binds name, a Codec, and the user body into an Activity.
// name must be stable across workflow versions: it is combined with the
// call's ordinal position to form the memoization key.
func NewActivity[In, Out any](name string, c codec.Codec[In, Out], fn func(context.Context, In) (Out, error)) *Activity[In, Out] {
	return &Activity[In, Out]{name: name, codec: c, fn: fn}
}

// Name returns the activity's registered name.
func (a *Activity[In, Out]) Name() string { return a.name }

// highestStep tracks, per workflow id, the highest ordinal an activity
// lookup has observed in this process. It exists solely to drive the
// observability-only determinism warning below; it carries no durable
// state and is reset on process restart.
var highestStep sync.Map // uuid.UUID -> int

// Call runs the activity within the current workflow body: on a replay
// where (workflowID, name#step) already has a memoized result, the user
// function is skipped entirely and the stored output is decoded and
// returned.
func (a *Activity[In, Out]) Call(ctx context.Context, in In) (Out, error) {
	var zero Out

	wc, err := CurrentWorkflow(ctx)
	if err != nil {
		return zero, err
	}
	step := wc.NextStep()
	key := fmt.Sprintf("%s#%d", a.name, step)

	if prev, ok := highestStep.Load(wc.ID); ok && step < prev.(int) {
		slog.Default().Warn("possible determinism violation",
			"workflow_id", wc.ID, "activity", a.name, "step", step, "highest_seen", prev)
	}
	highestStep.Store(wc.ID, step)

	s, ok := CurrentStore(ctx)
	if !ok {
		return zero, ErrNoCurrentStore
	}
	activities := repo.NewActivityRepo(s)

	if cached, err := activities.MayFindOne(ctx, wc.ID, key); err != nil {
		return zero, err
	} else if cached != nil {
		output := cached.Output
		if blobs, ok := CurrentBlob(ctx); ok {
			if output, err = blobs.Decode(ctx, output); err != nil {
				return zero, err
			}
		}
		return a.codec.DecodeOutput(output)
	}

	encodedInput, err := a.codec.EncodeInput(in)
	if err != nil {
		return zero, err
	}

	spanCtx, span := tracing.StartSpan(ctx, "durex/engine", "activity.call",
		attribute.String("durex.activity.name", a.name),
		attribute.Int("durex.activity.step", step))
	out, err := a.fn(spanCtx, in)
	tracing.EndWithError(span, err)
	span.End()
	if err != nil {
		return zero, durexerr.UserErrorf(err, "activity %s failed", a.name)
	}

	encodedOutput, err := a.codec.EncodeOutput(out)
	if err != nil {
		return zero, err
	}
	if blobs, ok := CurrentBlob(ctx); ok {
		if encodedOutput, err = blobs.Encode(ctx, encodedOutput); err != nil {
			return zero, err
		}
	}

	if err := activities.Save(ctx, &store.ActivityResult{
		WorkflowID: wc.ID, Name: key, Input: encodedInput, Output: encodedOutput,
	}); err != nil {
		return zero, err
	}
	return out, nil
}
