package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/snapgov/snapgov/internal/config"
	"github.com/snapgov/snapgov/internal/registry"
	"github.com/snapgov/snapgov/internal/storage"
	"github.com/snapgov/snapgov/internal/validate"
)

var (
	flagConfig   string
	flagLakeRoot string
	flagRegistry string
	flagLogLevel string

	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "snapgov",
	Short:         "snapshot governance for a date-partitioned data lake",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = setupLogging(flagLogLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "",
		"path to config file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&flagLakeRoot, "lake-root", "",
		"override the lake root directory")
	rootCmd.PersistentFlags().StringVar(&flagRegistry, "registry", "",
		"override the registry database path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info",
		"log level: debug, info, warn, error")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setupLogging(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flagConfig != "" {
		loaded, err := config.LoadFromFile(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	if flagLakeRoot != "" {
		cfg.Storage.Root = flagLakeRoot
	}
	if flagRegistry != "" {
		cfg.RegistryPath = flagRegistry
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.PartitionStore, error) {
	switch cfg.Storage.Type {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.Storage.S3.Bucket,
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
		})
	default:
		return storage.NewLocalStore(cfg.Storage.Root)
	}
}

func openRegistry(cfg *config.Config) (*registry.SQLiteRegistry, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return registry.Open(cfg.RegistryPath)
}

func renderReport(report *validate.Report, format string) error {
	switch format {
	case "json":
		return report.WriteJSON(os.Stdout)
	case "", "text":
		return report.WriteText(os.Stdout)
	default:
		return fmt.Errorf("unknown output format %q (must be text or json)", format)
	}
}
