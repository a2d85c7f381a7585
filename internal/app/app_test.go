package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blackmichael/curated-feeds/internal/config"
	"github.com/blackmichael/curated-feeds/internal/domain"
	"github.com/blackmichael/curated-feeds/internal/prefs"
)

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:      "sqlite::memory:",
		DefaultCurators:  []string{"curator-1"},
		DefaultPageSize:  10,
		MaxPageSize:      50,
		CacheSize:        16,
		CuratedCacheTTL:  time.Minute,
		UpstreamCacheTTL: 2 * time.Minute,
		RoleCacheTTL:     time.Minute,
		UpstreamTimeout:  time.Second,
	}
}

func TestNewServesCuratedFeed(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, ok := a.Prefs.(*prefs.Static); !ok {
		t.Fatalf("Prefs = %T, want *prefs.Static without Redis", a.Prefs)
	}
	if err := a.Store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.Start(runCtx)

	item := &domain.ContentItem{Hash: "h1", AuthorID: "7", AuthorUsername: "alice", Text: "curated cast text", QualityScore: 80, CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	if err := a.Store.SaveItem(ctx, item); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}
	if err := a.Store.CreateCuration(ctx, &domain.Curation{ItemHash: "h1", CuratorID: "curator-1", CuratedAt: item.CreatedAt.Add(time.Minute)}); err != nil {
		t.Fatalf("CreateCuration: %v", err)
	}

	page, err := a.Feeds.GetFeed(ctx, domain.FeedQuery{})
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Hash != "h1" {
		t.Fatalf("items = %+v", page.Items)
	}
	if page.Next.Cursor != nil {
		t.Errorf("next cursor = %q, want none", *page.Next.Cursor)
	}
}

func TestServiceOptions(t *testing.T) {
	cfg := testConfig()
	cfg.BotAuthors = []string{"bot"}
	cfg.MinTextLength = 12

	opts := ServiceOptions(cfg)
	if opts.DefaultPageSize != 10 || opts.MaxPageSize != 50 || opts.CacheSize != 16 {
		t.Errorf("sizes = %+v", opts)
	}
	if opts.CacheTTL[domain.FeedCurated] != time.Minute || opts.CacheTTL[domain.FeedTrending] != 2*time.Minute {
		t.Errorf("CacheTTL = %v", opts.CacheTTL)
	}
	if opts.Filters.MinTextLength != 12 || len(opts.Filters.BotAuthors) != 1 {
		t.Errorf("Filters = %+v", opts.Filters)
	}
}
