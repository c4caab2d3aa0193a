package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/dnsserver"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "burrowd",
	Short:   "burrowd - authoritative DNS resolver for container-to-container name resolution",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("burrowd version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().Uint32("log-sample-debug", 1, "Emit only 1-in-N Debug-level per-query log lines (1 disables sampling)")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("config-dir", envOr("BURROW_CONFIG_DIR", "/run/containers/burrow"), "Directory of network descriptor files")
	serveCmd.Flags().Int("port", envOrInt("BURROW_PORT", 53), "UDP/TCP port to bind on every network's gateway address")
	serveCmd.Flags().String("search-domain", envOr("BURROW_SEARCH_DOMAIN", ""), "Search-domain suffix stripped from queries before lookup")
	serveCmd.Flags().String("pid-file", envOr("BURROW_PID_FILE", config.DefaultPIDFileName), "Descriptor-directory entry to ignore as the runtime's own PID file")
	serveCmd.Flags().Bool("watch", true, "Reload the descriptor directory on change instead of a one-shot load")
	serveCmd.Flags().String("metrics-addr", envOr("BURROW_METRICS_ADDR", "127.0.0.1:9090"), "Address for the /metrics, /health, /ready, and /live HTTP endpoints")
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	sampleDebugEvery, _ := rootCmd.PersistentFlags().GetUint32("log-sample-debug")

	log.Init(log.Config{
		Level:            log.Level(logLevel),
		JSONOutput:       logJSON,
		SampleDebugEvery: sampleDebugEvery,
	})
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resolver, binding a listener on every network's gateway address",
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, _ := cmd.Flags().GetString("config-dir")
		port, _ := cmd.Flags().GetInt("port")
		searchDomain, _ := cmd.Flags().GetString("search-domain")
		pidFile, _ := cmd.Flags().GetString("pid-file")
		watch, _ := cmd.Flags().GetBool("watch")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		serveLog := log.WithComponent("burrowd")
		metrics.SetVersion(Version)

		watcher, err := config.NewWatcher(configDir, pidFile)
		if err != nil {
			return fmt.Errorf("failed to load descriptor directory %s: %w", configDir, err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var source dnsserver.SnapshotSource = watcher
		if watch {
			go func() {
				if err := watcher.Run(ctx); err != nil {
					serveLog.Warn().Err(err).Msg("descriptor directory watch stopped")
				}
			}()
		}

		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				serveLog.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		serveLog.Info().Str("addr", metricsAddr).Msg("metrics and health endpoints listening")

		fleet := dnsserver.NewFleet(source, port, searchDomain)

		errCh := make(chan error, 1)
		go func() { errCh <- fleet.Run(ctx) }()

		// Give the fleet's initial bind a moment to fail fast on a bad
		// port/address before installing the signal handler.
		time.Sleep(200 * time.Millisecond)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			serveLog.Info().Msg("received shutdown signal, draining listeners")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("fleet failed to start: %w", err)
			}
		}

		cancel()
		if err := <-errCh; err != nil {
			return fmt.Errorf("fleet shutdown error: %w", err)
		}

		serveLog.Info().Msg("shutdown complete")
		return nil
	},
}
