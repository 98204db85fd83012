package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/fleetworks/allocd/internal/cmd/client"
	serverrun "github.com/fleetworks/allocd/internal/cmd/server"
	cfgpkg "github.com/fleetworks/allocd/internal/config"
	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
	logpkg "github.com/fleetworks/allocd/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// Respect ALLOCD_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("ALLOCD_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "allocd",
		Short: "Allocd work allocation CLI",
		Long:  "Allocd is a single-binary work allocation server. This CLI manages the server and basic operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start allocd server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			configPath, _ := cmd.Flags().GetString("config")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			monitorIntervalMs, _ := cmd.Flags().GetInt("monitor-interval-ms")
			monitorWorkers, _ := cmd.Flags().GetInt("monitor-workers")
			monitorDisabled, _ := cmd.Flags().GetBool("monitor-disabled")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if logLevel != "" {
				_ = os.Setenv("ALLOCD_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("ALLOCD_LOG_FORMAT", logFormat)
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)
			if monitorIntervalMs > 0 {
				cfg.MonitorIntervalMs = monitorIntervalMs
			}
			if monitorWorkers > 0 {
				cfg.MonitorWorkers = monitorWorkers
			}
			if monitorDisabled {
				cfg.MonitorDisabled = true
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}

			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				HTTPAddr:      cfg.HTTPAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().String("config", os.Getenv("ALLOCD_CONFIG"), "Path to JSON config file")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().String("log-level", os.Getenv("ALLOCD_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("ALLOCD_LOG_FORMAT"), "Log format: text|json (default text)")
	serverStartCmd.Flags().Int("monitor-interval-ms", 0, "Background monitor pass interval in ms (default 5000)")
	serverStartCmd.Flags().Int("monitor-workers", 0, "Concurrent monitor tasks per pass (default 4)")
	serverStartCmd.Flags().Bool("monitor-disabled", false, "Disable the background monitor")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewRequestCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewAllocCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewConfigCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewStatsCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewAuditCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("ALLOCD_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
