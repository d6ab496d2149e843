package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ListingScout/internal/types"
)

var (
	searchMinPrice int64
	searchMaxPrice int64
	searchOrder    string
	searchPage     int
	searchSize     int
	searchAfter    string
)

// searchCmd creates the "search" subcommand.
func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <category>",
		Short: "Search indexed listings by category and price",
		Long: `Search the listing index. Results are sorted by price and paginated
either by --page or by --after, the last_sort value of a previous response.`,
		Example: `  listingscout search Prada --min 200000 --max 500000 --order asc
  listingscout search Prada --after 300000,1718000000000000000`,
		Args: cobra.ExactArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().Int64Var(&searchMinPrice, "min", -1, "minimum price (inclusive)")
	cmd.Flags().Int64Var(&searchMaxPrice, "max", -1, "maximum price (inclusive)")
	cmd.Flags().StringVar(&searchOrder, "order", "desc", "price order: asc or desc")
	cmd.Flags().IntVar(&searchPage, "page", 0, "result page (1-based)")
	cmd.Flags().IntVarP(&searchSize, "size", "n", 0, "results per page")
	cmd.Flags().StringVar(&searchAfter, "after", "", "cursor: comma-separated last_sort values")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	q, err := buildQuery(args, cmd.Flags().Changed("page"), cmd.Flags().Changed("size"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.searchService().Search(ctx, q)
	if err != nil {
		return err
	}
	return printJSON(result)
}

// buildQuery turns the search flags into a query. Negative prices mean
// unbounded; page and size are sent only when given.
func buildQuery(args []string, pageSet, sizeSet bool) (*types.SearchQuery, error) {
	q := &types.SearchQuery{
		Sort:  types.SortFieldPrice,
		Order: types.SortOrder(searchOrder),
	}
	if len(args) > 0 {
		q.Query = args[0]
	}
	if sizeSet {
		q.Size = types.Int(searchSize)
	}
	if searchMinPrice >= 0 {
		q.MinPrice = types.Int64(searchMinPrice)
	}
	if searchMaxPrice >= 0 {
		q.MaxPrice = types.Int64(searchMaxPrice)
	}
	if pageSet {
		q.Page = types.Int(searchPage)
	}
	if searchAfter != "" {
		for _, part := range strings.Split(searchAfter, ",") {
			v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, &types.ValidationError{Field: "search_after", Reason: err.Error()}
			}
			q.SearchAfter = append(q.SearchAfter, v)
		}
	}
	return q, nil
}
