package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

func newCurateCmd(c *cli) *cobra.Command {
	var (
		curator  string
		quality  float64
		category string
		at       string
	)

	cmd := &cobra.Command{
		Use:   "curate <hash>",
		Short: "Fetch a cast from upstream, store it and record a curation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if curator == "" {
				return fmt.Errorf("--curator is required")
			}
			curatedAt := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				curatedAt = t.UTC()
			}

			ctx := cmd.Context()
			a, done, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer done()

			hash := args[0]
			items, err := a.Upstream.FetchItems(ctx, []string{hash})
			if err != nil {
				return fmt.Errorf("fetch cast: %w", err)
			}
			if len(items) == 0 {
				return fmt.Errorf("cast %s not found upstream", hash)
			}

			item := items[0]
			item.QualityScore = quality
			item.Category = category
			if err := a.Store.SaveItem(ctx, &item); err != nil {
				return fmt.Errorf("save item: %w", err)
			}
			if err := a.Store.CreateCuration(ctx, &domain.Curation{
				ItemHash:  item.Hash,
				CuratorID: curator,
				CuratedAt: curatedAt,
			}); err != nil {
				return fmt.Errorf("record curation: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "curated %s by @%s (curator %s)\n", item.Hash, item.AuthorUsername, curator)
			return nil
		},
	}

	cmd.Flags().StringVar(&curator, "curator", "", "curator id")
	cmd.Flags().Float64Var(&quality, "quality", 0, "quality score")
	cmd.Flags().StringVar(&category, "category", "", "content category")
	cmd.Flags().StringVar(&at, "at", "", "curation time, RFC 3339 (default: now)")
	return cmd
}
