package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/casalert/internal/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored alerts as CSV",
	Long: `Write every stored alert as CSV with the fixed column header, in append order.

Examples:
  casalert export                  # CSV to stdout
  casalert export --out alerts.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		ctx := context.Background()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		alerts, err := store.GetExistingAlerts(ctx)
		if err != nil {
			return fmt.Errorf("failed to read alerts: %w", err)
		}

		if out == "" || out == "-" {
			return writeAlertsCSV(os.Stdout, alerts)
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := writeAlertsCSV(f, alerts); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", out, err)
		}
		fmt.Fprintf(os.Stderr, "Exported %s alert(s) to %s\n", formatNumber(len(alerts)), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

// writeAlertsCSV writes the header followed by one row per alert
func writeAlertsCSV(w io.Writer, alerts []*types.Alert) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(types.Header()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, a := range alerts {
		if err := cw.Write(a.ToRow()); err != nil {
			return fmt.Errorf("failed to write alert %s: %w", a.String(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// readAlertsCSV parses a CSV export. Rows that do not form a valid alert are
// returned as warnings rather than failing the whole file.
func readAlertsCSV(r io.Reader) ([]*types.Alert, []error, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	var (
		alerts   []*types.Alert
		warnings []error
	)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}
		a, err := types.FromRow(header, row)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, warnings, nil
}
