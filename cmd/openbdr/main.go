package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/ishan3299/OpenBDR/internal/cmd/client"
	serverrun "github.com/ishan3299/OpenBDR/internal/cmd/server"
	cfgpkg "github.com/ishan3299/OpenBDR/internal/config"
	"github.com/ishan3299/OpenBDR/internal/host"
	pebblestore "github.com/ishan3299/OpenBDR/internal/storage/pebble"
	logpkg "github.com/ishan3299/OpenBDR/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// initialize logger for CLI
	// Respect OPENBDR_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("OPENBDR_LOG_LEVEL")
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
		Use:   "openbdr",
		Short: "OpenBDR collector CLI",
		Long:  "OpenBDR buffers browser telemetry durably and exports it as partitioned JSONL. This CLI manages the collector, the native writer host, and basic operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Collector server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the collector (durable buffer + HTTP API)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			configPath, _ := cmd.Flags().GetString("config")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			sinkName, _ := cmd.Flags().GetString("sink")
			outputDir, _ := cmd.Flags().GetString("output-dir")

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

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if sinkName != "" {
				cfg.Sink = sinkName
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if logLevel != "" {
				_ = os.Setenv("OPENBDR_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("OPENBDR_LOG_FORMAT", logFormat)
			}
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				HTTPAddr:      httpAddr,
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
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default from config, :8480)")
	serverStartCmd.Flags().String("config", "", "Config file (JSON or YAML)")
	serverStartCmd.Flags().String("sink", "", "Export sink: local|native (overrides config)")
	serverStartCmd.Flags().String("output-dir", "", "Export output directory (overrides config)")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().String("log-level", os.Getenv("OPENBDR_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("OPENBDR_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// host start
	hostCmd := &cobra.Command{Use: "host", Short: "Native writer host commands"}
	hostStartCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the native writer host (partitioned JSONL writer)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logDir, _ := cmd.Flags().GetString("log-dir")
			socketPath, _ := cmd.Flags().GetString("socket")
			statePath, _ := cmd.Flags().GetString("state")
			maxFileSize, _ := cmd.Flags().GetInt64("max-file-size")
			if logDir == "" {
				logDir = cfgpkg.DefaultOutputDir()
			}
			if socketPath == "" {
				socketPath = cfgpkg.DefaultSocketPath()
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			w, err := host.NewWriter(host.WriterOptions{
				LogDir:      logDir,
				StatePath:   statePath,
				MaxFileSize: maxFileSize,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			defer w.Close()

			h := host.New(w, logger)
			if err := h.ListenAndServe(ctx, socketPath); err != nil {
				return fmt.Errorf("host error: %w", err)
			}
			return nil
		},
	}
	hostStartCmd.Flags().String("log-dir", "", "Directory for partitioned JSONL output (default OS data dir)")
	hostStartCmd.Flags().String("socket", "", "Unix socket to listen on (default OS data dir)")
	hostStartCmd.Flags().String("state", "", "State file for crash recovery (default next to log dir)")
	hostStartCmd.Flags().Int64("max-file-size", host.DefaultMaxFileSize, "Size-based rotation threshold in bytes")
	hostCmd.AddCommand(hostStartCmd)
	rootCmd.AddCommand(hostCmd)

	// client commands (talk to a running collector over HTTP)
	rootCmd.AddCommand(
		clientcmd.NewLogCommand(apiURL),
		clientcmd.NewStatsCommand(apiURL),
		clientcmd.NewFlushCommand(apiURL),
		clientcmd.NewClearCommand(apiURL),
		clientcmd.NewConfigCommand(apiURL),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("OPENBDR_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8480"
}
