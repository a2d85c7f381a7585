// Package app wires the store, upstream client, preference resolver and
// feed service from configuration. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blackmichael/curated-feeds/internal/config"
	"github.com/blackmichael/curated-feeds/internal/domain"
	"github.com/blackmichael/curated-feeds/internal/feed"
	"github.com/blackmichael/curated-feeds/internal/prefs"
	"github.com/blackmichael/curated-feeds/internal/sqlstore"
	"github.com/blackmichael/curated-feeds/internal/upstream"
)

// App holds the wired components.
type App struct {
	Store    *sqlstore.Store
	Upstream *upstream.Client
	Prefs    domain.PreferenceResolver
	Tasks    *feed.TaskQueue
	Feeds    *feed.Service

	// Redis is nil when preferences come from configuration.
	Redis *redis.Client
}

// New opens the store and builds the pipeline. The task queue worker is
// not started; call Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := sqlstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{Store: store}

	if cfg.RedisAddr != "" {
		a.Redis = prefs.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.Redis.Ping(pctx).Err(); err != nil {
			logger.Warn("redis unreachable, preferences will degrade until it recovers", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		a.Prefs = prefs.NewRedisResolver(a.Redis)
	} else {
		a.Prefs = &prefs.Static{Curators: cfg.DefaultCurators}
	}

	if cfg.UpstreamAPIKey == "" {
		logger.Warn("UPSTREAM_API_KEY is not set; upstream requests may be rejected")
	}
	a.Upstream = upstream.NewClient(upstream.Config{
		BaseURL:       cfg.UpstreamBaseURL,
		APIKey:        cfg.UpstreamAPIKey,
		RatePerSecond: cfg.UpstreamRatePerSecond,
		Timeout:       cfg.UpstreamTimeout,
	})

	a.Tasks = feed.NewTaskQueue(cfg.TaskQueueSize, feed.DefaultTaskTimeout, logger)
	a.Feeds = feed.NewService(ServiceOptions(cfg), store, a.Upstream, a.Prefs, a.Tasks, logger)

	return a, nil
}

// ServiceOptions maps configuration onto feed.Options.
func ServiceOptions(cfg *config.Config) feed.Options {
	return feed.Options{
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		CacheSize:       cfg.CacheSize,
		CacheTTL: map[domain.FeedType]time.Duration{
			domain.FeedCurated:      cfg.CuratedCacheTTL,
			domain.FeedScoped:       cfg.UpstreamCacheTTL,
			domain.FeedTrending:     cfg.UpstreamCacheTTL,
			domain.FeedPersonalized: cfg.UpstreamCacheTTL,
		},
		RoleTTL: cfg.RoleCacheTTL,
		Filters: feed.FilterConfig{
			DefaultBlockedAuthors: cfg.DefaultBlockedAuthors,
			BotAuthors:            cfg.BotAuthors,
			MinTextLength:         cfg.MinTextLength,
		},
	}
}

// Start runs the background task worker until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	go a.Tasks.Start(ctx)
}

// Close releases the store and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}
