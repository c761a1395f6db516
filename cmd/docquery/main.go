package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docquery/internal/gateway"
	"docquery/internal/version"

	"github.com/spf13/cobra"
)

// rootOptions carries the persistent flags to every subcommand.
type rootOptions struct {
	cfgFile string
	dbPath  string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running it without a subcommand starts
// the server.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "docquery",
		Short: "DocQuery - document ingestion and question answering service",
		Long: `DocQuery stores uploaded text and PDF documents and answers questions
about them from a per-document vector index. Indexes are built on first use
and evicted after a period of inactivity.`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				log.SetFlags(log.LstdFlags | log.Lshortfile)
				log.Println("Verbose logging enabled")
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file path (default <data_dir>/config.json)")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "database", "", "database file path (default <data_dir>/data/docquery.db)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")

	serverCmd := newServerCmd(opts)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newIndexCmd(opts))
	rootCmd.AddCommand(newUserCmd(opts))
	rootCmd.AddCommand(newMaintenanceCmd(opts))

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServer(opts, 0)
	}

	return rootCmd
}

func newServerCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the DocQuery HTTP server",
		Long: `Start the HTTP API together with the index eviction job and the
maintenance scheduler. SIGINT or SIGTERM triggers a graceful shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(opts, port)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides config)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "DocQuery %s\n", version.Full())
			buildInfo := version.GetBuildInfo()

			if buildInfo.GitCommit != "unknown" {
				fmt.Fprintf(out, "Git commit: %s\n", buildInfo.GitCommit)
			}
			if buildInfo.GitTag != "" {
				fmt.Fprintf(out, "Git tag: %s\n", buildInfo.GitTag)
			}
			if buildInfo.GitDirty {
				fmt.Fprintf(out, "Git status: dirty (uncommitted changes)\n")
			}
			if buildInfo.BuildDate != "unknown" {
				fmt.Fprintf(out, "Build date: %s\n", buildInfo.BuildDate)
			}
			fmt.Fprintf(out, "Go version: %s\n", buildInfo.GoVersion)
			return nil
		},
	}
}

func runServer(opts *rootOptions, port int) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if port != 0 {
		a.cfg.Port = port
	}

	gw, err := gateway.New(a.cfg, gateway.Deps{
		DB:        a.db,
		Auth:      a.auth,
		Documents: a.documents,
		Ingester:  a.ingester,
		QA:        a.qa,
		Indexes:   a.indexes,
		Scheduler: a.scheduler,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance scheduler: %w", err)
	}
	defer func() {
		if err := a.scheduler.Stop(); err != nil {
			log.Printf("WARNING: Maintenance scheduler did not stop cleanly: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting DocQuery %s on port %d", version.Full(), a.cfg.Port)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("gateway error: %w", err)
	}
	log.Println("DocQuery stopped")
	return nil
}
