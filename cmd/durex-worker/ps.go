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
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/latchwork/durex/internal/cliutil"
	"github.com/latchwork/durex/internal/config"
)

// newPSCommand reports on a single workflow or task by id. The Store
// interfaces this module exposes are all single-entity lookups (no bulk
// listing), so unlike a process table "ps" this always takes an id rather
// than printing every in-flight workflow.
func newPSCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ps <workflow-id>",
		Short: "Show a workflow's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid workflow id %q: %w", args[0], err)
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

			wf, err := s.GetWorkflow(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("looking up workflow: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cliutil.Header.Render("workflow"))
			fmt.Fprintf(out, "  id:     %s\n", wf.ID)
			fmt.Fprintf(out, "  name:   %s\n", wf.Name)
			fmt.Fprintf(out, "  status: %s\n", wf.Status)
			fmt.Fprintln(out, cliutil.Muted.Render(fmt.Sprintf("  input:  %s", string(wf.Input))))
			return nil
		},
	}
	cmd.AddCommand(newPSTaskCommand(configPath))
	return cmd
}

func newPSTaskCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "task <task-id>",
		Short: "Show a queued task's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
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

			t, err := s.GetTask(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("looking up task: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cliutil.Header.Render("task"))
			fmt.Fprintf(out, "  id:          %s\n", t.ID)
			fmt.Fprintf(out, "  name:        %s\n", t.Name)
			fmt.Fprintf(out, "  queue:       %s\n", t.QueueID)
			fmt.Fprintf(out, "  status:      %s\n", t.Status)
			fmt.Fprintf(out, "  retry_count: %d\n", t.RetryCount)
			fmt.Fprintf(out, "  scheduled:   %s\n", t.Timestamp)
			fmt.Fprintln(out, cliutil.Muted.Render("  (task results are consumed once by GetResult; ps does not peek at them)"))
			return nil
		},
	}
}
