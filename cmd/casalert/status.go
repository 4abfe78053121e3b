package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and store size",
	Long:  `Display the configured store, the number of stored alerts and the most recent runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := context.Background()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== casalert status ==="))

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		alerts, err := store.GetExistingAlerts(ctx)
		if err != nil {
			return fmt.Errorf("failed to read alerts: %w", err)
		}

		fmt.Printf("%s\n", yellow("Store:"))
		fmt.Printf("  Backend: %s\n", backendLabel())
		fmt.Printf("  Alerts:  %s\n", formatNumber(len(alerts)))
		counts := countBySource(alerts)
		for _, source := range slices.Sorted(maps.Keys(counts)) {
			fmt.Printf("    %-6s %s\n", source, formatNumber(counts[source]))
		}
		fmt.Println()

		fmt.Printf("%s\n", yellow("Recent Runs:"))
		recorder, ok := storeRunRecorder(store)
		if !ok {
			fmt.Printf("  %s\n\n", gray("Run history is only kept by the sqlite backend"))
			return nil
		}
		runs, err := recorder.ListRuns(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Printf("  %s\n\n", gray("No runs recorded"))
			return nil
		}
		for _, run := range runs {
			fmt.Println(formatRunLine(run))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	statusCmd.Flags().IntP("limit", "n", 10, "Number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}

func backendLabel() string {
	switch cfg.Store.Backend {
	case config.BackendSheets:
		return fmt.Sprintf("sheets (%s/%s)", cfg.Store.Sheets.SpreadsheetID, cfg.Store.Sheets.Worksheet)
	case config.BackendMongo:
		return fmt.Sprintf("mongo (%s.%s)", cfg.Store.Mongo.Database, cfg.Store.Mongo.Collection)
	}
	return fmt.Sprintf("sqlite (%s)", cfg.Store.SQLite.Path)
}

// countBySource returns the stored alert count per source tag
func countBySource(alerts []*types.Alert) map[types.Source]int {
	counts := make(map[types.Source]int)
	for _, a := range alerts {
		counts[a.Source]++
	}
	return counts
}

// formatRunLine renders one run as a status line
func formatRunLine(run *types.ScrapeRun) string {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	statusColor, icon := gray, "○"
	switch run.Status {
	case types.RunStatusSucceeded:
		statusColor, icon = green, "●"
	case types.RunStatusPartial:
		statusColor, icon = yellow, "⚠"
	case types.RunStatusFailed:
		statusColor, icon = red, "✗"
	}

	line := fmt.Sprintf("  %s %s  %-9s scraped %-5d added %-4d %s",
		statusColor(icon),
		run.StartedAt.Local().Format("2006-01-02 15:04"),
		statusColor(string(run.Status)),
		run.TotalScraped(),
		run.Added,
		gray(run.Duration().Round(time.Second).String()))
	if run.DryRun {
		line += " " + yellow("(dry run)")
	}
	if run.Error != "" {
		line += "\n      " + red(run.Error)
	}
	return line
}
