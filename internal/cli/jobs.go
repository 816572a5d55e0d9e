package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/verimatch/verimatch/internal/config"
	"github.com/verimatch/verimatch/internal/jobs"
	"github.com/verimatch/verimatch/internal/metrics"
	"github.com/verimatch/verimatch/internal/scheduler"
)

func createJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage tracked verification jobs",
	}

	cmd.AddCommand(createJobsListCmd())
	cmd.AddCommand(createJobsWatchCmd())
	cmd.AddCommand(createJobsClearCmd())

	return cmd
}

func createJobsListCmd() *cobra.Command {
	var jsonOutput bool
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked jobs",
		Long: `List locally tracked verification jobs, most recent first.

EXAMPLES:
  # List all tracked jobs
  verimatch jobs list

  # List only jobs still awaiting a result
  verimatch jobs list --pending

  # Output as JSON
  verimatch jobs list --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(jsonOutput, pendingOnly)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "show only pending jobs")

	return cmd
}

func createJobsWatchCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll pending jobs until they complete",
		Long: `Poll every pending job against the verification service and print
results as they arrive. Exits when no pending jobs remain, or on Ctrl-C.

EXAMPLES:
  # Track all pending jobs
  verimatch jobs watch

  # Track with a Prometheus metrics endpoint
  verimatch jobs watch --metrics-addr 127.0.0.1:9463
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsWatch(metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")

	return cmd
}

func createJobsClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all tracked jobs",
		Long: `Delete every locally tracked job. This only clears local records;
jobs already submitted keep running on the server.

EXAMPLES:
  verimatch jobs clear
  verimatch jobs clear --yes
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsClear(yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runJobsList(jsonOutput, pendingOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := openStore(cfg, false, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if pendingOnly {
		var pending []jobs.Job
		for _, job := range list {
			if job.Pending() {
				pending = append(pending, job)
			}
		}
		list = pending
	}

	if jsonOutput {
		return printJSON(map[string]any{
			"jobs":  list,
			"count": len(list),
		})
	}

	if len(list) == 0 {
		fmt.Println("No tracked jobs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMETHOD\tCHAIN\tADDRESS\tSUBMITTED\tSTATUS")
	for _, job := range list {
		chain, address := "", ""
		if job.Contract != nil {
			chain = job.Contract.ChainID
			address = truncateAddress(job.Contract.Address)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			job.ID, job.Method, chain, address,
			job.SubmittedAt.Local().Format(time.DateTime),
			jobStatusLabel(job))
	}
	w.Flush()

	return nil
}

func runJobsWatch(metricsAddr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := openStore(cfg, false, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if metricsAddr == "" && cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		metrics.Init(true)
		go func() {
			if err := metrics.Serve(ctx, metricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	svc := newServiceClient(cfg)
	tracker := jobs.NewTracker(store, svc, scheduler.Ticker{}, cfg.Tracking.JobPollInterval, logger)

	pending, err := tracker.PendingCount(ctx)
	if err != nil {
		return err
	}
	if pending == 0 {
		fmt.Println("No pending jobs")
		return nil
	}

	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	// Track finished jobs so each outcome prints once
	done := make(map[string]bool)
	list, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, job := range list {
		if !job.Pending() {
			done[job.ID] = true
		}
	}

	fmt.Printf("Watching %d pending job(s), polling every %s (Ctrl-C to stop)\n", pending, cfg.Tracking.JobPollInterval)

	tracker.Start(ctx)
	defer tracker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped; pending jobs keep running on the server")
			return nil
		case <-updates:
		}

		list, err := store.List(ctx)
		if err != nil {
			return err
		}

		remaining := 0
		for _, job := range list {
			if job.Pending() {
				remaining++
				continue
			}
			if !done[job.ID] {
				done[job.ID] = true
				job := job
				printJobOutcome(&job)
			}
		}

		if remaining == 0 {
			fmt.Println("\nAll jobs complete")
			return nil
		}
	}
}

func runJobsClear(yes bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := openStore(cfg, false, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(context.Background())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No tracked jobs")
		return nil
	}

	if !yes {
		fmt.Printf("Delete %d tracked job(s)? (y/N): ", len(list))
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := store.Clear(context.Background()); err != nil {
		return fmt.Errorf("failed to clear jobs: %w", err)
	}

	fmt.Printf("✅ Cleared %d job(s)\n", len(list))
	return nil
}
