package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackmichael/curated-feeds/internal/domain"
	"github.com/blackmichael/curated-feeds/internal/prefs"
)

func newCuratorsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curators",
		Short: "Inspect and manage the curator role",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the default curator scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, done, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer done()

			ids, err := a.Prefs.DefaultCurators(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ids, "\n"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <id>...",
		Short: "Replace the curator role set in Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireRedis(); err != nil {
				return err
			}
			rdb := prefs.NewRedisClient(c.cfg.RedisAddr, c.cfg.RedisPassword, c.cfg.RedisDB)
			defer rdb.Close()

			if err := prefs.NewRedisResolver(rdb).SetCurators(cmd.Context(), args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d curators set\n", len(args))
			return nil
		},
	})

	return cmd
}

func newPrefsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read and write viewer preferences in Redis",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <viewer>",
		Short: "Print a viewer's preferences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireRedis(); err != nil {
				return err
			}
			rdb := prefs.NewRedisClient(c.cfg.RedisAddr, c.cfg.RedisPassword, c.cfg.RedisDB)
			defer rdb.Close()

			p, err := prefs.NewRedisResolver(rdb).ViewerPreferences(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <viewer> <json>",
		Short: `Store a viewer's preferences, e.g. '{"hideBots":true}'`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireRedis(); err != nil {
				return err
			}
			var p domain.Preferences
			if err := json.Unmarshal([]byte(args[1]), &p); err != nil {
				return fmt.Errorf("invalid preferences: %w", err)
			}
			rdb := prefs.NewRedisClient(c.cfg.RedisAddr, c.cfg.RedisPassword, c.cfg.RedisDB)
			defer rdb.Close()

			return prefs.NewRedisResolver(rdb).SetViewerPreferences(cmd.Context(), args[0], p)
		},
	})

	return cmd
}
