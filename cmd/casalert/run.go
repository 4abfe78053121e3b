package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/casalert/internal/deduplication"
	"github.com/steveyegge/casalert/internal/metrics"
	"github.com/steveyegge/casalert/internal/notify"
	"github.com/steveyegge/casalert/internal/pipeline"
	"github.com/steveyegge/casalert/internal/scraper"
	"github.com/steveyegge/casalert/internal/storage"
	"github.com/steveyegge/casalert/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape every enabled source once and append new alerts",
	Long: `Run one pass: scrape the enabled sources concurrently, remove duplicates
within the batch, skip alerts already in the store and append the rest.

The run fails only when every source fails; if one source fails the alerts
from the others are still added and the run is reported as partial.

Examples:
  casalert run                  # Scrape all enabled sources
  casalert run --source cas     # Scrape CAS MHRA only
  casalert run --dry-run        # Show what would be added`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		sourceName, _ := cmd.Flags().GetString("source")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var run *types.ScrapeRun
		err := withRunLock("casalert run", func() error {
			p, cleanup, err := buildPipeline(ctx, sourceName, dryRun, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			run, err = p.Run(ctx)
			return err
		})
		if run != nil {
			printRunSummary(run)
		}
		return err
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "Plan additions without writing to the store")
	runCmd.Flags().StringP("source", "s", "", "Only scrape this source (cas or govuk)")
	rootCmd.AddCommand(runCmd)
}

// buildPipeline wires scrapers, store, notifier and metrics from the loaded
// config. The cleanup function closes everything it opened.
func buildPipeline(ctx context.Context, sourceName string, dryRun bool, m *metrics.Metrics) (*pipeline.Pipeline, func(), error) {
	client := scraper.NewClient(scraper.ClientConfigFrom(cfg.Scrape), logger)
	scrapers := scraper.NewFromConfig(cfg.Sources, client, logger)
	if sourceName != "" {
		source, err := types.ParseSource(sourceName)
		if err != nil {
			return nil, nil, err
		}
		scrapers = scraper.Filter(scrapers, source)
		if len(scrapers) == 0 {
			return nil, nil, fmt.Errorf("source %s is not enabled", source)
		}
	}

	dedup, err := deduplication.NewDeduplicator(cfg.Deduplication(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid deduplication configuration: %w", err)
	}

	store, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	notifier, closeNotifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		closeNotifier()
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}

	p, err := pipeline.New(pipeline.Options{
		Scrapers:        scrapers,
		Store:           store,
		Deduplicator:    dedup,
		Planner:         deduplication.NewPlanner(logger),
		Notifier:        notifier,
		Metrics:         m,
		Logger:          logger,
		MaxAlertsPerRun: cfg.Run.MaxAlertsPerRun,
		DryRun:          dryRun,
		RunHistory:      cfg.RunHistory,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

// printRunSummary writes a short, colored report of a finished run
func printRunSummary(run *types.ScrapeRun) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	icon, statusColor := green("✓"), green
	switch run.Status {
	case types.RunStatusPartial:
		icon, statusColor = yellow("⚠"), yellow
	case types.RunStatusFailed:
		icon, statusColor = red("✗"), red
	}

	fmt.Printf("\n%s Run %s %s\n", icon, gray(run.ID), statusColor(string(run.Status)))
	if run.DryRun {
		fmt.Printf("  %s\n", yellow("DRY RUN - nothing was written"))
	}
	for _, source := range []types.Source{types.SourceCAS, types.SourceGOVUK} {
		if n, ok := run.Scraped[source]; ok {
			fmt.Printf("  Scraped %-6s %s\n", source, formatNumber(n))
		}
	}
	fmt.Printf("  Duplicates:    %d exact, %d fuzzy\n", run.ExactDuplicates, run.FuzzyDuplicates)
	fmt.Printf("  Already known: %s\n", formatNumber(run.KnownSkipped))
	fmt.Printf("  Added:         %s\n", green(formatNumber(run.Added)))
	fmt.Printf("  Duration:      %v\n", run.Duration().Round(time.Millisecond))
	if run.Error != "" {
		fmt.Printf("  Error:         %s\n", red(run.Error))
	}
	fmt.Println()
}

// storeRunRecorder returns the store's run history, if it keeps one
func storeRunRecorder(store storage.Store) (storage.RunRecorder, bool) {
	r, ok := store.(storage.RunRecorder)
	return r, ok
}
