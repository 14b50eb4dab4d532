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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/latchwork/durex/engine"
	"github.com/latchwork/durex/internal/blob"
	"github.com/latchwork/durex/internal/config"
	ilog "github.com/latchwork/durex/internal/log"
	"github.com/latchwork/durex/internal/metrics"
	"github.com/latchwork/durex/internal/tracing"
	"github.com/latchwork/durex/queue"
	"github.com/latchwork/durex/reaper"
	"github.com/latchwork/durex/worker"
)

func newRunCommand(configPath *string) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a worker-pool dispatch loop and reaper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if len(only) > 0 {
				cfg.Worker.Only = only
			}
			return runWorker(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringSliceVar(&only, "only", nil, "restrict dispatch to workflow/activity names matching these glob patterns")
	return cmd
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	logger := ilog.New(&ilog.Config{
		Level:     cfg.Log.Level,
		Format:    ilog.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	})
	slog.SetDefault(logger)

	tp, err := tracing.New(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRatio:  cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer tp.Shutdown(context.Background())

	s, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	if cfg.Queue.PollBackoffMin > 0 {
		queue.PollBackoff = cfg.Queue.PollBackoffMin
	}
	q := openQueue(s, cfg.Queue)

	ctx = engine.WithStore(ctx, s)
	ctx = engine.WithQueue(ctx, q)
	if cfg.Blob.Enabled {
		blobs, err := blob.Open(ctx, blob.Config{
			Enabled:   cfg.Blob.Enabled,
			Bucket:    cfg.Blob.Bucket,
			Prefix:    cfg.Blob.Prefix,
			Region:    cfg.Blob.Region,
			Threshold: cfg.Blob.Threshold,
		})
		if err != nil {
			return fmt.Errorf("opening blob store: %w", err)
		}
		ctx = engine.WithBlob(ctx, blobs)
	}

	w := &worker.Worker{
		Queue: q,
		Only:  cfg.Worker.Only,
		Retry: worker.RetryPolicy{
			ErrorMatch: func(error) bool { return true },
			MaxRetries: cfg.Worker.MaxRetries,
			BaseDelay:  cfg.Worker.BaseDelay,
			Backoff:    cfg.Worker.Backoff,
		},
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Reaper.Enabled {
		go reaper.Run(ctx, s, cfg.Queue.ID, cfg.Reaper.LeaseTimeout, cfg.Reaper.SweepInterval, logger)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled || cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", ilog.Error(err))
			}
		}()
	}

	logger.Info("worker starting", ilog.String(ilog.QueueIDKey, cfg.Queue.ID), "backend", cfg.Store.Backend)
	err = w.Run(ctx)
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}
	if worker.IsContextDone(err) {
		logger.Info("worker stopped")
		return nil
	}
	return err
}
