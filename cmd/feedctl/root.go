package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackmichael/curated-feeds/internal/app"
	"github.com/blackmichael/curated-feeds/internal/config"
)

// cli carries state shared by subcommands.
type cli struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "feedctl",
		Short:        "Curated feed administration",
		Long:         "Apply migrations, record curations, manage curator roles and inspect feed pages.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(
		newMigrateCmd(c),
		newCurateCmd(c),
		newFeedCmd(c),
		newCuratorsCmd(c),
		newPrefsCmd(c),
	)
	return root
}

// open builds the application with its task worker running. The returned
// func drains pending tasks and closes connections.
func (c *cli) open(ctx context.Context) (*app.App, func(), error) {
	a, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.Start(runCtx)
	return a, func() {
		a.Tasks.Flush()
		cancel()
		if err := a.Close(); err != nil {
			c.logger.Warn("close", "error", err)
		}
	}, nil
}

func (c *cli) requireRedis() error {
	if c.cfg.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is not configured")
	}
	return nil
}
