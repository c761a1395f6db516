package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"docquery/internal/maintenance"

	"github.com/spf13/cobra"
)

func newMaintenanceCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	maintenanceCmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Run housekeeping tasks",
		Long: `Run the housekeeping tasks the server schedules: index eviction,
expired token cleanup and database optimization.`,
	}
	maintenanceCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")

	maintenanceCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run all maintenance tasks immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd, opts, func(ctx context.Context, s *maintenance.Scheduler) error {
				if err := s.RunNow(ctx); err != nil {
					return fmt.Errorf("failed to run maintenance tasks: %w", err)
				}
				return displayStatus(cmd.OutOrStdout(), s.GetStatus(), jsonOutput)
			})
		},
	})

	maintenanceCmd.AddCommand(&cobra.Command{
		Use:   "run-task [task-name]",
		Short: "Run a specific maintenance task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withScheduler(cmd, opts, func(ctx context.Context, s *maintenance.Scheduler) error {
				if err := s.RunTask(ctx, name); err != nil {
					return fmt.Errorf("failed to run maintenance task %s: %w", name, err)
				}
				status := s.GetStatus()
				return displayStatus(cmd.OutOrStdout(), map[string]maintenance.TaskStatus{name: status[name]}, jsonOutput)
			})
		},
	})

	maintenanceCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the registered maintenance tasks and their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd, opts, func(_ context.Context, s *maintenance.Scheduler) error {
				return displayStatus(cmd.OutOrStdout(), s.GetStatus(), jsonOutput)
			})
		},
	})

	return maintenanceCmd
}

func withScheduler(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *maintenance.Scheduler) error) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()
	return fn(ctx, a.scheduler)
}

func displayStatus(out io.Writer, status map[string]maintenance.TaskStatus, asJSON bool) error {
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	if asJSON {
		tasks := make([]maintenance.TaskStatus, 0, len(names))
		for _, name := range names {
			tasks = append(tasks, status[name])
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSCHEDULE\tENABLED\tRUNS\tLAST RESULT")
	for _, name := range names {
		st := status[name]
		result := "-"
		if st.Runs > 0 {
			result = st.LastResult.Message
			if !st.LastResult.Success {
				result = "FAILED: " + result
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n", name, st.Schedule, st.Enabled, st.Runs, result)
	}
	return w.Flush()
}
