package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/casalert/internal/deduplication"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup <file.csv>",
	Short: "Deduplicate a CSV export offline",
	Long: `Read a CSV export, remove duplicate alerts with the configured threshold and
write the surviving alerts as CSV to stdout. A summary goes to stderr.

Examples:
  casalert dedup alerts.csv > unique.csv
  casalert dedup alerts.csv --show-removed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showRemoved, _ := cmd.Flags().GetBool("show-removed")

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer func() { _ = f.Close() }()

		alerts, warnings, err := readAlertsCSV(f)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}
		yellow := color.New(color.FgYellow).SprintFunc()
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "%s skipped %v\n", yellow("⚠"), w)
		}

		dedup, err := deduplication.NewDeduplicator(cfg.Deduplication(), logger)
		if err != nil {
			return fmt.Errorf("invalid deduplication configuration: %w", err)
		}
		result := dedup.RemoveDuplicates(alerts)

		if showRemoved {
			gray := color.New(color.FgHiBlack).SprintFunc()
			for _, rm := range result.Removed {
				how := string(rm.Rule)
				if rm.Fuzzy && rm.Score >= 0 {
					how = fmt.Sprintf("%s %d", rm.Rule, rm.Score)
				}
				fmt.Fprintf(os.Stderr, "  - %s %s\n    kept %s\n",
					alerts[rm.Index].String(), gray("("+how+")"), alerts[rm.KeptIndex].String())
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s %s alert(s) in, %s unique (%d exact, %d fuzzy duplicates)\n",
			green("✓"),
			formatNumber(result.Stats.TotalInput),
			formatNumber(result.Stats.UniqueCount),
			result.Stats.ExactDuplicateCount,
			result.Stats.FuzzyDuplicateCount)

		return writeAlertsCSV(os.Stdout, result.Unique)
	},
}

func init() {
	dedupCmd.Flags().Bool("show-removed", false, "List each removed alert and the alert it duplicates")
	rootCmd.AddCommand(dedupCmd)
}
