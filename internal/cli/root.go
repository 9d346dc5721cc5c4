package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"topicidx/config"
	"topicidx/internal/logging"
	"topicidx/internal/metrics"
)

var (
	cfgFile     string
	cfg         *config.Config
	rootDir     string
	logLevel    string
	metricsAddr string
	logger      *slog.Logger
	closeLog    = func() {}
	appMetrics  *metrics.Metrics
	stopMetrics = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "topicidx",
	Short: "Topic-indexed document retrieval",
	Long: `topicidx ingests a document feed into a metadata store, trains a topic model
over the corpus, and answers keyword, topic and similarity queries.

Example usage:
  topicidx ingest                          # Load NDJSON feeds into the store
  topicidx train                           # Clean, fit and persist the topic model
  topicidx search-server                   # Serve keyword search over JSON-RPC
  topicidx query labels -q "dark matter"   # Topics closest to a query`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.ApplyEnv(os.Getenv); err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if metricsAddr != "" {
			cfg.Metrics.Address = metricsAddr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, closeLog, err = logging.Setup(cfg.Logging)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		appMetrics = metrics.New()
		if cfg.Metrics.Address != "" {
			stopMetrics = appMetrics.Start(cmd.Context(), cfg.Metrics.Address, logger)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
}

// Execute runs the root command. The caller decides how to exit.
func Execute(ctx context.Context) error {
	defer func() {
		stopMetrics()
		stopMetrics = func() {}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./topicidx.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "project directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-address", "", "serve Prometheus metrics on this address while the command runs (default metrics.address)")
}

func GetConfig() *config.Config {
	return cfg
}

// GetMetrics returns the instruments shared by the running command.
func GetMetrics() *metrics.Metrics {
	return appMetrics
}

func GetRootDir() string {
	return rootDir
}

// resolvePath resolves a configured path against the project directory.
func resolvePath(p string) string {
	return config.Resolve(rootDir, p)
}
