package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/gazou/internal/cli"
	"github.com/hyperjump/gazou/internal/models"
)

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		top    int
		text   bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "search <keyword...>",
		Short: "Find images matching a description",
		Long: `Find images whose content matches a natural-language description.

The keyword is all positional arguments joined by spaces. Use --text to match
stored descriptions and names instead of embedding the keyword. Pass --server ""
to query local storage directly when no server is running.`,
		Example: `  gazou search cat on a sofa
  gazou search --top 3 -o compact "sunset over water"
  gazou search --text receipt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyword := joinArgs(args)
			if keyword == "" {
				return errors.New("keyword is required")
			}
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			req := &models.SearchRequest{Keyword: keyword, Top: top}
			var resp *models.SearchResponse
			if opts.serverURL != "" {
				resp, err = newAPIClient(opts.serverURL).search(ctx, req.Keyword, req.Top, text)
			} else {
				resp, err = searchLocal(ctx, opts, req, text)
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 10, "number of results")
	cmd.Flags().BoolVar(&text, "text", false, "search stored descriptions instead of embeddings")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, compact or json")
	return cmd
}

// searchLocal runs a query against local storage without starting watchers.
func searchLocal(ctx context.Context, opts *globalOptions, req *models.SearchRequest, text bool) (*models.SearchResponse, error) {
	cfg, logger, err := opts.setup()
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = components.Close() }()
	if text {
		return components.Search.QueryText(ctx, req)
	}
	return components.Search.Query(ctx, req)
}
