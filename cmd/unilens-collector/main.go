package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/unilens/unilens/internal/collector"
	"github.com/unilens/unilens/internal/config"
	"github.com/unilens/unilens/internal/logging"
	"github.com/unilens/unilens/pkg/tlsutil"
	"golang.org/x/sync/errgroup"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var runOnce bool

var rootCmd = &cobra.Command{
	Use:     "unilens-collector",
	Short:   "UniLens collector - ships UniFi traffic statistics to InfluxDB",
	Long:    `The UniLens collector polls a UniFi controller for DPI traffic statistics and writes them to InfluxDB for the UniLens dashboard.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runCollector()
	},
}

func init() {
	rootCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single collection cycle and exit")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(fingerprintCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("UniLens collector %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <host:port>",
	Short: "Print the SHA256 fingerprint of a controller's TLS certificate",
	Long: `Connects to the given host and prints the SHA256 fingerprint of its TLS
certificate. Use the output as UNIFI_FINGERPRINT to pin a self-signed
controller certificate instead of disabling verification.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fingerprint, err := tlsutil.FetchFingerprint(args[0])
		if err != nil {
			return err
		}
		fmt.Println(fingerprint)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCollector() {
	// Initialize logger with baseline defaults for early startup logs
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "unilens-collector",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Re-initialize logging with configuration-driven settings
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "unilens-collector",
	})

	if err := cfg.ValidateCollector(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("version", Version).
		Str("controller", cfg.UnifiURL).
		Str("influxdb", cfg.InfluxURL).
		Dur("interval", cfg.PollInterval).
		Msg("Starting UniLens collector")

	coll, err := collector.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise collector")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if runOnce {
		err := coll.RunOnce(ctx)
		coll.Close()
		if err != nil {
			os.Exit(1)
		}
		return
	}

	startMetricsServer(ctx, fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.MetricsPort))

	watcher, err := config.NewWatcher(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher, .env changes will require restart")
	} else {
		watcher.SetReloadCallback(coll.Reload)
		if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher")
		}
		defer watcher.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coll.Run(ctx)
	})

	// SIGHUP forces a .env re-read even when the file watcher missed it
	g.Go(func() error {
		reloadChan := make(chan os.Signal, 1)
		signal.Notify(reloadChan, syscall.SIGHUP)
		defer signal.Stop(reloadChan)

		for {
			select {
			case <-reloadChan:
				log.Info().Msg("Received SIGHUP, reloading configuration")
				if watcher != nil {
					watcher.ReloadConfig()
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Collector terminated with error")
	}
}
