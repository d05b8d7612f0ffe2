// Package cli provides the cobaltstore command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cobaltstore/cobaltstore/internal/config"
	"github.com/cobaltstore/cobaltstore/internal/engine"
	"github.com/cobaltstore/cobaltstore/internal/logging"
	"github.com/cobaltstore/cobaltstore/internal/metrics"
	"github.com/cobaltstore/cobaltstore/internal/persist"
	"github.com/cobaltstore/cobaltstore/internal/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	configPath string
	flagHost   string
	flagPort   int
	flagLevel  string
	flagFormat string
)

var rootCmd = &cobra.Command{
	Use:   "cobaltstore",
	Short: "Local Azure Blob Storage emulator",
	Long: `CobaltStore is a local Azure Blob Storage emulator for development
and testing. It implements the blob service REST API including containers,
block blobs, leases, snapshots and conditional requests, backed by an
in-memory engine with optional SQLite persistence.`,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the CobaltStore server",
	RunE:  runStart,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cobaltstore version %s\n", Version)
	},
}

func init() {
	startCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	startCmd.Flags().StringVar(&flagHost, "host", "", "override listening host")
	startCmd.Flags().IntVar(&flagPort, "port", 0, "override listening port")
	startCmd.Flags().StringVar(&flagLevel, "log-level", "", "log level: debug, info, warn, error")
	startCmd.Flags().StringVar(&flagFormat, "log-format", "", "log format: text, json")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. It is called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}

	// Command-line flags override config file values.
	if flagHost != "" {
		cfg.Server.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Server.Port = flagPort
	}
	if flagLevel != "" {
		cfg.Logging.Level = flagLevel
	}
	if flagFormat != "" {
		cfg.Logging.Format = flagFormat
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if cfg.Metrics.Enabled {
		metrics.Register()
	}

	eng := engine.New()

	var snapper *persist.Snapshotter
	if cfg.Persist.Enabled {
		snapper = persist.New(eng, cfg.Persist.Path, cfg.Persist.Interval)
		if err := snapper.Load(cmd.Context()); err != nil {
			return fmt.Errorf("restoring persisted state: %w", err)
		}
		snapper.Start()
		slog.Info("persistence enabled", "path", cfg.Persist.Path, "interval", cfg.Persist.Interval)
	}

	// Lease sweep: expired leases are also dropped lazily on access, the
	// ticker just keeps the maps and metrics from drifting.
	sweepStop := make(chan struct{})
	go sweepLeases(eng, cfg.Lease.SweepInterval, sweepStop)

	srv, err := server.New(cfg, eng)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("CobaltStore listening", "addr", addr, "version", Version)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Both exits (signal and listen failure) run the same shutdown path so
	// the final snapshot is never skipped.
	var serverErr error
	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

	case err := <-errCh:
		serverErr = err
	}

	close(sweepStop)
	if snapper != nil {
		if err := snapper.Close(); err != nil {
			slog.Error("final snapshot failed", "error", err)
		}
	}
	if serverErr != nil {
		return fmt.Errorf("server error: %w", serverErr)
	}
	slog.Info("server stopped")
	return nil
}

// sweepLeases periodically removes expired leases so they do not linger
// between requests.
func sweepLeases(eng *engine.Engine, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := eng.ExpireLeases(context.Background()); n > 0 {
				metrics.LeasesExpiredTotal.Add(float64(n))
				slog.Debug("expired leases swept", "count", n)
			}
		}
	}
}
