package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

func newFeedCmd(c *cli) *cobra.Command {
	var (
		feedType   string
		sort       string
		cursor     string
		viewer     string
		curators   []string
		categories []string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print one feed page as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := domain.ParseFeedType(feedType)
			if err != nil {
				return err
			}
			mode, err := domain.ParseSortMode(sort)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, done, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer done()

			page, err := a.Feeds.GetFeed(ctx, domain.FeedQuery{
				FeedType:     ft,
				SortMode:     mode,
				Cursor:       cursor,
				CuratorScope: curators,
				Categories:   categories,
				PageSize:     limit,
				ViewerID:     viewer,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(page)
		},
	}

	cmd.Flags().StringVar(&feedType, "type", "curated", "feed type: curated, scoped, trending or personalized")
	cmd.Flags().StringVar(&sort, "sort", "", "sort mode for the curated feed")
	cmd.Flags().StringVar(&cursor, "cursor", "", "pagination cursor")
	cmd.Flags().StringVar(&viewer, "viewer", "", "viewer id")
	cmd.Flags().StringSliceVar(&curators, "curators", nil, "curator scope")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "category filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	return cmd
}
