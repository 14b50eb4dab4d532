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

// Package reaper recovers tasks a worker claimed and then crashed or was
// killed before finishing: a task left RUNNING past its lease is not a
// retry, it is recovery of the exact same attempt, so retry_count is left
// untouched (SPEC_FULL.md §5a).
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/latchwork/durex/internal/metrics"
	"github.com/latchwork/durex/store"
)

// DefaultLeaseTimeout is how long a task may sit RUNNING before the reaper
// considers its worker dead.
const DefaultLeaseTimeout = 5 * time.Minute

// DefaultInterval is how often the reaper sweeps. Far shorter than the
// teacher's hour-long run-history cadence: a stuck task here blocks queue
// throughput directly, not just disk usage.
const DefaultInterval = 60 * time.Second

// Run sweeps queueID every interval until ctx is cancelled, resetting any
// task still RUNNING past leaseTimeout back to SCHEDULED. It blocks; call
// it from its own goroutine.
func Run(ctx context.Context, s store.TaskStore, queueID string, leaseTimeout, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reaper stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			reset, err := s.ResetStaleRunning(ctx, queueID, time.Now().Add(-leaseTimeout))
			if err != nil {
				logger.Error("reaper sweep failed", "error", err, "queue_id", queueID)
				continue
			}
			if reset > 0 {
				metrics.ReaperRecovered.WithLabelValues(queueID).Add(float64(reset))
				logger.Info("reaper recovered stale tasks", "reset", reset, "queue_id", queueID, "lease_timeout", leaseTimeout)
			}
		}
	}
}
