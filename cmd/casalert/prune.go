package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove stored rows that repeat an earlier Hash ID",
	Long: `Delete every stored alert whose Hash ID already appears on an earlier row.
The first occurrence of each hash is kept; rows without a hash are never removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return withRunLock("casalert prune", func() error {
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			removed, err := store.PruneDuplicateHashes(ctx)
			if err != nil {
				return fmt.Errorf("failed to prune duplicates: %w", err)
			}

			green := color.New(color.FgGreen).SprintFunc()
			if removed == 0 {
				fmt.Printf("%s No duplicate rows found\n", green("✓"))
				return nil
			}
			fmt.Printf("%s Removed %s duplicate row(s)\n", green("✓"), formatNumber(removed))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
