package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/IshaanNene/ListingScout/internal/service"
	"github.com/IshaanNene/ListingScout/internal/types"
)

var (
	crawlOptions     []string
	crawlOptionsFile string
	crawlDryRun      bool
	crawlOut         string
)

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the marketplace and index the listings",
		Long: `Crawl the marketplace search for each option and replace the indexed
copies of the listings found.

Options are given as repeated --option flags of the form
category:min_price:max_price:page_limit, or read from a YAML or JSON file
with an items_options list.`,
		Example: `  listingscout crawl --option "Prada:250000:1000000:3"
  listingscout crawl --options-file options.yaml --dry-run --out listings.jsonl`,
		RunE: runCrawl,
	}

	cmd.Flags().StringArrayVarP(&crawlOptions, "option", "o", nil, "crawl option category:min:max:pages (repeatable)")
	cmd.Flags().StringVarP(&crawlOptionsFile, "options-file", "f", "", "YAML or JSON file with items_options")
	cmd.Flags().BoolVar(&crawlDryRun, "dry-run", false, "crawl without writing to the store")
	cmd.Flags().StringVar(&crawlOut, "out", "", "also export the crawled listings as JSON lines")

	return cmd
}

// runCrawl executes the crawl command.
func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	options, err := collectOptions(crawlOptions, crawlOptionsFile)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	a.startMetricsServer()

	svc, err := a.crawlService(ctx, service.Options{DryRun: crawlDryRun, ExportPath: crawlOut})
	if err != nil {
		return err
	}

	report, err := svc.Crawl(ctx, options)
	if report != nil {
		printReport(report)
	}
	var pwe *types.PartialWriteError
	if errors.As(err, &pwe) {
		// Partially indexed: the report already lists the failed keys.
		logger.Warn("some listings were not indexed", "failed", pwe.Failed)
		return nil
	}
	return err
}

func printReport(r *types.CrawlReport) {
	fmt.Printf("\n✅ Crawl %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	fmt.Printf("   Pages:     %d fetched, %d failed\n", r.Stats.PagesFetched, r.Stats.PagesFailed)
	fmt.Printf("   Cards:     %d extracted, %d extraction errors\n", r.Stats.CardsExtracted, r.Stats.ExtractionErrors)
	fmt.Printf("   Listings:  %d kept, %d dropped\n", r.Stats.ListingsKept, r.Stats.RecordsDropped)
	if r.Interrupted {
		fmt.Println("   ⚠️  Interrupted: indexed the listings collected before the stop")
	}
	if len(r.SkippedOptions) > 0 {
		fmt.Printf("   Skipped:   %s (locked by another run)\n", strings.Join(r.SkippedOptions, ", "))
	}
	if w := r.Write; w != nil {
		fmt.Printf("   Index:     %d inserted, %d replaced, %d failed\n", w.Inserted, w.Deleted, w.Failed)
		for _, k := range w.FailedKeys {
			fmt.Printf("     failed: %s\n", k)
		}
	}
	if r.Error != "" {
		fmt.Printf("   Error:     %s\n", r.Error)
	}
}

// collectOptions merges options from flags and an options file.
func collectOptions(flags []string, file string) ([]types.SearchOption, error) {
	var options []types.SearchOption
	if file != "" {
		fromFile, err := loadOptionsFile(file)
		if err != nil {
			return nil, err
		}
		options = append(options, fromFile...)
	}
	for _, raw := range flags {
		opt, err := parseOption(raw)
		if err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	if len(options) == 0 {
		return nil, errors.New("no crawl options: use --option or --options-file")
	}
	return options, nil
}

// parseOption parses category:min_price:max_price:page_limit. The category
// may itself contain colons.
func parseOption(raw string) (types.SearchOption, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 4 {
		return types.SearchOption{}, fmt.Errorf("option %q: want category:min:max:pages", raw)
	}
	n := len(parts)
	nums := make([]int64, 3)
	for i, p := range parts[n-3:] {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return types.SearchOption{}, fmt.Errorf("option %q: %w", raw, err)
		}
		nums[i] = v
	}
	opt := types.SearchOption{
		Category:  strings.TrimSpace(strings.Join(parts[:n-3], ":")),
		MinPrice:  nums[0],
		MaxPrice:  nums[1],
		PageLimit: int(nums[2]),
	}
	if err := opt.Validate(); err != nil {
		return types.SearchOption{}, fmt.Errorf("option %q: %w", raw, err)
	}
	return opt, nil
}

// loadOptionsFile reads items_options from a YAML or JSON file.
func loadOptionsFile(path string) ([]types.SearchOption, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("options file: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read options file: %w", err)
	}
	var options []types.SearchOption
	if err := v.UnmarshalKey("items_options", &options); err != nil {
		return nil, fmt.Errorf("decode items_options: %w", err)
	}
	return options, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
