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
	"time"

	jsoncodec "github.com/latchwork/durex/codec/json"
)

// timestampForDuration and sleepUntil are the two activities Sleep composes
// (SPEC_FULL.md §4.4): the first memoizes the wall-clock deadline so a
// crash-and-replay does not restart the clock, the second asks the active
// Executor to park until that deadline.
var timestampForDuration = NewActivity[time.Duration, time.Time](
	"engine.timestampForDuration",
	jsoncodec.New[time.Duration, time.Time](),
	func(_ context.Context, d time.Duration) (time.Time, error) {
		return time.Now().Add(d), nil
	},
)

var sleepUntil = NewActivity[time.Time, struct{}](
	"engine.sleepUntil",
	jsoncodec.New[time.Time, struct{}](),
	func(ctx context.Context, at time.Time) (struct{}, error) {
		wc, err := CurrentWorkflow(ctx)
		if err != nil {
			return struct{}{}, err
		}
		exec, ok := CurrentExecutor(ctx)
		if !ok {
			return struct{}{}, ErrNoCurrentExecutor
		}
		return struct{}{}, exec.SuspendUntil(ctx, wc.ID, at)
	},
)

// Sleep suspends the calling workflow until d has elapsed. Durable across
// crashes: replay re-runs timestampForDuration as a cache hit, so the
// deadline itself never moves.
func Sleep(ctx context.Context, d time.Duration) error {
	at, err := timestampForDuration.Call(ctx, d)
	if err != nil {
		return err
	}
	_, err = sleepUntil.Call(ctx, at)
	return err
}
