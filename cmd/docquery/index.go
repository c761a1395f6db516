package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect and manage stored vector indexes",
		Long: `Inspect and manage the per-document vector indexes. Indexes are rebuilt
from the stored document on the next question, so dropping one is safe.`,
	}

	indexCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored indexes with their last access time and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexList(cmd, opts)
		},
	})

	var threshold time.Duration
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evict indexes idle for longer than the threshold",
		Long: `Run one eviction sweep. Without --threshold the configured inactivity
threshold is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexSweep(cmd, opts, threshold)
		},
	}
	sweepCmd.Flags().DurationVar(&threshold, "threshold", 0, "inactivity threshold, e.g. 1h (overrides config)")
	indexCmd.AddCommand(sweepCmd)

	indexCmd.AddCommand(&cobra.Command{
		Use:   "drop [document-id]",
		Short: "Delete the stored index of one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexDrop(cmd, opts, args[0])
		},
	})

	return indexCmd
}

func runIndexList(cmd *cobra.Command, opts *rootOptions) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.indexes.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No indexes stored.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT ID\tLAST ACCESS\tSIZE")
	for _, e := range entries {
		lastAccess := "-"
		if !e.LastAccess.IsZero() {
			lastAccess = e.LastAccess.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.DocumentID, lastAccess, formatBytes(e.SizeBytes))
	}
	return w.Flush()
}

func runIndexSweep(cmd *cobra.Command, opts *rootOptions, threshold time.Duration) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if threshold == 0 {
		threshold = a.cfg.Index.InactivityThreshold()
	}
	if threshold <= 0 {
		return errors.New("inactivity threshold must be positive")
	}

	evicted, err := a.indexes.Sweep(cmd.Context(), threshold)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Evicted %d index(es) idle for more than %s\n", len(evicted), threshold)
	for _, id := range evicted {
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}

func runIndexDrop(cmd *cobra.Command, opts *rootOptions, documentID string) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	ok, err := a.indexes.Has(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to look up index: %w", err)
	}
	if !ok {
		return fmt.Errorf("no index stored for document %s", documentID)
	}
	if err := a.indexes.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("failed to drop index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Dropped index for document %s\n", documentID)
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
