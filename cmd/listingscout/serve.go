package main

import (
	"github.com/spf13/cobra"

	"github.com/IshaanNene/ListingScout/internal/api"
	"github.com/IshaanNene/ListingScout/internal/service"
)

var servePort int

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the crawl and search HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides api.port)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	crawls, err := a.crawlService(ctx, service.Options{})
	if err != nil {
		return err
	}

	srv := api.NewServer(cfg.API, crawls, a.searchService(), a.metrics.Handler(), logger)
	return srv.Run(ctx)
}
