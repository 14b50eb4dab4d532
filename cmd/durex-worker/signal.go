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
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/latchwork/durex/engine"
	"github.com/latchwork/durex/internal/cliutil"
	"github.com/latchwork/durex/internal/config"
	"github.com/latchwork/durex/runner"
)

func newSignalCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signal <workflow-id> <name> <json-content>",
		Short: "Deliver a signal to a running or stopped workflow",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid workflow id %q: %w", args[0], err)
			}
			name := args[1]
			raw := json.RawMessage(args[2])
			if !json.Valid(raw) {
				return fmt.Errorf("content is not valid JSON: %s", args[2])
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			s, err := openStore(cfg.Store)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer s.Close()

			q := openQueue(s, cfg.Queue)
			ctx := engine.WithStore(cmd.Context(), s)
			ctx = engine.WithRunner(ctx, runner.NewWorkerPool(q))
			if err := engine.Signal(ctx, workflowID, name, raw); err != nil {
				return fmt.Errorf("sending signal: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cliutil.RenderOK(fmt.Sprintf("signal %q delivered to %s", name, workflowID)))
			return nil
		},
	}
}
