package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/casalert/internal/metrics"
	"github.com/steveyegge/casalert/internal/storage"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run periodically until interrupted",
	Long: `Run a pass immediately and then once every interval until Ctrl+C.

A failed pass is logged and reported through notifications; watch keeps going.
With --metrics-addr (or metrics.addr) a Prometheus endpoint is served at /metrics.

Examples:
  casalert watch                          # Use run.interval from config (default 6h)
  casalert watch --interval 30m
  casalert watch --metrics-addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		if interval == 0 {
			interval = cfg.Run.Interval
		}
		if interval < time.Minute {
			return fmt.Errorf("interval must be at least 1m (got %v)", interval)
		}
		if metricsAddr == "" {
			metricsAddr = cfg.Metrics.Addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := metrics.New()
		if metricsAddr != "" {
			srv := serveMetrics(metricsAddr, m)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Watching every %v\n", green("✓"), interval)
		if metricsAddr != "" {
			fmt.Printf("  Metrics: http://%s/metrics\n", metricsAddr)
		}
		fmt.Printf("  Press Ctrl+C to stop\n\n")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			watchOnce(ctx, m)
			select {
			case <-ctx.Done():
				fmt.Println("\nStopping watch")
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	watchCmd.Flags().Duration("interval", 0, "Time between runs (default run.interval)")
	watchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(watchCmd)
}

// watchOnce runs a single pass; errors are logged and never stop the loop
func watchOnce(ctx context.Context, m *metrics.Metrics) {
	err := withRunLock("casalert watch", func() error {
		p, cleanup, err := buildPipeline(ctx, "", false, m)
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := p.Run(ctx)
		if run != nil {
			printRunSummary(run)
		}
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrLocked):
		logger.Warn("skipping run, store is locked", "error", err)
	case ctx.Err() != nil:
	default:
		logger.Error("run failed", "error", err)
	}
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
