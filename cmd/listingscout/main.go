package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ListingScout/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "listingscout",
		Short: "ListingScout: secondhand marketplace crawler and listing search",
		Long: `ListingScout crawls a secondhand marketplace search for configured
categories and price ranges, normalizes the listing cards, indexes them into
MongoDB and serves bounded, price-sorted searches over the index.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration and builds the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, setupLogger(cfg.Logging), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
	}()
	return ctx, cancel
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ListingScout %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Engine:\n")
			fmt.Printf("  Workers:           %d\n", cfg.Engine.Workers)
			fmt.Printf("  Settle Delay:      %s\n", cfg.Engine.SettleDelay)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Engine.RequestTimeout)
			fmt.Printf("  Max Retries:       %d\n", cfg.Engine.MaxRetries)
			fmt.Printf("  URL Template:      %s\n", cfg.Engine.URLTemplate)
			fmt.Printf("\nSession:\n")
			fmt.Printf("  Driver:            %s\n", cfg.Session.Driver)
			fmt.Printf("  Headless:          %v\n", cfg.Session.Headless)
			fmt.Printf("  Stealth:           %v\n", cfg.Session.Stealth)
			fmt.Printf("  User Agents:       %d configured\n", len(cfg.Session.UserAgents))
			fmt.Printf("\nExtractor:\n")
			fmt.Printf("  Type:              %s\n", cfg.Extractor.Type)
			fmt.Printf("\nStore:\n")
			fmt.Printf("  Type:              %s\n", cfg.Store.Type)
			fmt.Printf("  Database:          %s\n", cfg.Store.Database)
			fmt.Printf("  Collection:        %s\n", cfg.Store.Collection)
			fmt.Printf("\nSearch:\n")
			fmt.Printf("  Default Size:      %d\n", cfg.Search.DefaultSize)
			fmt.Printf("  Max Size:          %d\n", cfg.Search.MaxSize)
			fmt.Printf("\nLock:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Lock.Enabled)
			fmt.Printf("  TTL:               %s\n", cfg.Lock.TTL)
			fmt.Printf("\nRun Log:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.RunLog.Enabled)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setupLogger creates a structured logger.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
