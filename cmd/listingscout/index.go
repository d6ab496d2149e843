package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ListingScout/internal/storage"
	"github.com/IshaanNene/ListingScout/internal/types"
)

var importBatchSize int

// indexCmd creates the "index" subcommand group.
func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the listing index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the listing indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProvisioner(func(ctx context.Context, p storage.Provisioner) error {
				return p.EnsureIndex(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "drop",
		Short: "Drop the listing index and every document in it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProvisioner(func(ctx context.Context, p storage.Provisioner) error {
				return p.DropIndex(ctx)
			})
		},
	})
	return cmd
}

func withProvisioner(fn func(context.Context, storage.Provisioner) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	p, ok := a.store.(storage.Provisioner)
	if !ok {
		return fmt.Errorf("store %s does not manage indexes", a.store.Name())
	}
	if err := fn(ctx, p); err != nil {
		return err
	}
	fmt.Printf("✅ %s/%s done\n", cfg.Store.Database, cfg.Store.Collection)
	return nil
}

// importCmd creates the "import" subcommand.
func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file.jsonl]",
		Short: "Load exported listings into the index",
		Long: `Read listings exported with crawl --out and write them through the index
writer, replacing stored copies of the same listings.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
	cmd.Flags().IntVar(&importBatchSize, "batch", 500, "listings per write")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	listings, err := storage.ReadJSONL(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	w := a.writer()
	total := &types.WriteReport{}
	for start := 0; start < len(listings); start += max(importBatchSize, 1) {
		end := min(start+max(importBatchSize, 1), len(listings))
		report, err := w.Write(ctx, listings[start:end])
		if report != nil {
			total.Received += report.Received
			total.Duplicates += report.Duplicates
			total.Deleted += report.Deleted
			total.Inserted += report.Inserted
			total.Failed += report.Failed
			total.FailedKeys = append(total.FailedKeys, report.FailedKeys...)
		}
		var pwe *types.PartialWriteError
		if err != nil && !errors.As(err, &pwe) {
			return err
		}
	}

	logger.Info("import finished", "file", args[0], "inserted", total.Inserted, "failed", total.Failed)
	return printJSON(total)
}
