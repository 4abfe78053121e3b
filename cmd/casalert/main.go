// Command casalert scrapes CAS MHRA and GOV.UK safety alerts into a
// deduplicated store.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/logging"
	"github.com/steveyegge/casalert/internal/storage"
)

var (
	cfgPath string
	dbPath  string
	verbose bool

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer = io.NopCloser(nil)
)

var rootCmd = &cobra.Command{
	Use:   "casalert",
	Short: "Collect CAS MHRA and GOV.UK safety alerts without duplicates",
	Long: `casalert scrapes the CAS MHRA alert search and the GOV.UK drug and device
alerts listing, removes duplicate alerts within each batch and appends only
alerts that are not already in the store.

Configuration is read from defaults, the optional --config YAML file and
CASALERT_* environment variables, in increasing order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// config init must work before a valid config exists
		if cmd.Annotations["skipConfig"] == "true" {
			return nil
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides store.sqlite.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func loadConfig() error {
	loaded, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		loaded.Store.SQLite.Path = dbPath
	}
	if verbose {
		loaded.Log.Level = "debug"
	}

	l, closer, err := logging.New(loaded.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	cfg, logger, logCloser = loaded, l, closer
	return nil
}

// openStore opens the configured store
func openStore(ctx context.Context) (storage.Store, error) {
	return storage.New(ctx, cfg.Store, logger)
}

// lockPath places the run lock next to the local database
func lockPath() string {
	return storage.LockPath(filepath.Dir(cfg.Store.SQLite.Path))
}

// withRunLock holds the run lock while fn touches the store
func withRunLock(holder string, fn func() error) error {
	path := lockPath()
	if err := storage.AcquireRunLock(path, holder); err != nil {
		return err
	}
	defer func() {
		if err := storage.ReleaseRunLock(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}()
	return fn()
}

// execute runs the root command with args. The log file is closed afterwards
// whether or not the command failed.
func execute(args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if cerr := logCloser.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close log file: %v\n", cerr)
	}
	logCloser = io.NopCloser(nil)
	return err
}

func main() {
	if err := execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
