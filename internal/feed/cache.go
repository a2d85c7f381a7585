package feed

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

// DefaultCacheTTL is used for feed types without a configured TTL.
const DefaultCacheTTL = 30 * time.Second

// DefaultRoleTTL is how long the default curator set is reused.
const DefaultRoleTTL = 5 * time.Minute

// ResponseCache holds assembled feed pages keyed by the canonical request.
// Each feed type has its own LRU and TTL.
type ResponseCache struct {
	byType map[domain.FeedType]*expirable.LRU[string, *domain.FeedPage]
}

// NewResponseCache creates one LRU of size entries per feed type.
func NewResponseCache(size int, ttl map[domain.FeedType]time.Duration) *ResponseCache {
	if size <= 0 {
		size = 1024
	}
	c := &ResponseCache{byType: make(map[domain.FeedType]*expirable.LRU[string, *domain.FeedPage])}
	for _, ft := range []domain.FeedType{domain.FeedCurated, domain.FeedScoped, domain.FeedTrending, domain.FeedPersonalized} {
		d, ok := ttl[ft]
		if !ok || d <= 0 {
			d = DefaultCacheTTL
		}
		c.byType[ft] = expirable.NewLRU[string, *domain.FeedPage](size, nil, d)
	}
	return c
}

// Get returns a copy of the cached page for key.
func (c *ResponseCache) Get(ft domain.FeedType, key string) (*domain.FeedPage, bool) {
	lru, ok := c.byType[ft]
	if !ok {
		return nil, false
	}
	page, ok := lru.Get(key)
	if !ok {
		return nil, false
	}
	return clonePage(page), true
}

// Put stores page under key.
func (c *ResponseCache) Put(ft domain.FeedType, key string, page *domain.FeedPage) {
	if lru, ok := c.byType[ft]; ok {
		lru.Add(key, clonePage(page))
	}
}

// Len returns the number of live entries for ft.
func (c *ResponseCache) Len(ft domain.FeedType) int {
	if lru, ok := c.byType[ft]; ok {
		return lru.Len()
	}
	return 0
}

func clonePage(p *domain.FeedPage) *domain.FeedPage {
	cp := &domain.FeedPage{
		Items: slices.Clone(p.Items),
		Next:  p.Next,
	}
	if cp.Items == nil {
		cp.Items = []domain.EnrichedItem{}
	}
	if p.Next.Cursor != nil {
		s := *p.Next.Cursor
		cp.Next.Cursor = &s
	}
	return cp
}

const rolesKey = "default_curators"

// RoleCache memoizes the default curator set from the preference resolver.
type RoleCache struct {
	resolver domain.PreferenceResolver
	lru      *expirable.LRU[string, []string]
	dedup    *Dedup
	logger   *slog.Logger
}

// NewRoleCache wraps resolver with a TTL cache.
func NewRoleCache(resolver domain.PreferenceResolver, ttl time.Duration, dedup *Dedup, logger *slog.Logger) *RoleCache {
	if ttl <= 0 {
		ttl = DefaultRoleTTL
	}
	return &RoleCache{
		resolver: resolver,
		lru:      expirable.NewLRU[string, []string](1, nil, ttl),
		dedup:    dedup,
		logger:   logger,
	}
}

// DefaultCurators returns the cached curator set, resolving it on a miss.
func (c *RoleCache) DefaultCurators(ctx context.Context) ([]string, error) {
	if ids, ok := c.lru.Get(rolesKey); ok {
		return slices.Clone(ids), nil
	}

	ids, err := dedupe(ctx, c.dedup, DedupKey("roles", rolesKey), func(ctx context.Context) ([]string, error) {
		return c.resolver.DefaultCurators(ctx)
	})
	if err != nil {
		return nil, err
	}
	// An empty role set is a valid scope and is cached like any other.
	c.lru.Add(rolesKey, slices.Clone(ids))
	c.logger.Debug("resolved default curators", "count", len(ids))
	return ids, nil
}
