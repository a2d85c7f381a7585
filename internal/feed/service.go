// Package feed assembles curated and upstream feeds: it plans candidates,
// hydrates them, applies viewer filters and caches the resulting pages.
package feed

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blackmichael/curated-feeds/internal/domain"
	"github.com/blackmichael/curated-feeds/internal/errmodel"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// Options configures a Service.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int

	// CacheSize is the number of pages kept per feed type.
	CacheSize int
	CacheTTL  map[domain.FeedType]time.Duration
	RoleTTL   time.Duration

	Filters FilterConfig
}

// Repository is the store surface the pipeline reads from.
type Repository interface {
	domain.CandidateRepository
	domain.ItemRepository
	domain.ReplyRepository
}

// Service is the feed orchestrator. It owns its caches and dedup group;
// they live as long as the Service.
type Service struct {
	opts     Options
	repo     Repository
	upstream domain.Upstream
	prefs    domain.PreferenceResolver

	roles    *RoleCache
	cache    *ResponseCache
	dedup    *Dedup
	hydrator *Hydrator
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewService wires the pipeline. upstream may be nil, in which case only
// the curated feed returns items.
func NewService(opts Options, repo Repository, upstream domain.Upstream, prefs domain.PreferenceResolver, tasks *TaskQueue, logger *slog.Logger) *Service {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = MaxPageSize
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}

	dedup := NewDedup()
	parents := NewParentResolver(repo, repo, upstream, dedup, tasks, logger)

	return &Service{
		opts:     opts,
		repo:     repo,
		upstream: upstream,
		prefs:    prefs,
		roles:    NewRoleCache(prefs, opts.RoleTTL, dedup, logger),
		cache:    NewResponseCache(opts.CacheSize, opts.CacheTTL),
		dedup:    dedup,
		hydrator: NewHydrator(repo, upstream, dedup, parents, logger),
		tracer:   otel.Tracer("curated-feeds/feed"),
		logger:   logger,
	}
}

// GetFeed returns one page of the requested feed.
func (s *Service) GetFeed(ctx context.Context, q domain.FeedQuery) (*domain.FeedPage, error) {
	q, err := s.normalize(q)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "Service.GetFeed", trace.WithAttributes(
		attribute.String("feed.type", string(q.FeedType)),
		attribute.String("feed.sort", string(q.SortMode)),
		attribute.Int("feed.page_size", q.PageSize),
		attribute.Bool("feed.has_cursor", q.Cursor != ""),
	))
	defer span.End()

	prefs := q.Overrides.Apply(s.viewerPreferences(ctx, q.ViewerID))

	key := q.CacheKey()
	if page, ok := s.cache.Get(q.FeedType, key); ok {
		span.SetAttributes(attribute.Bool("feed.cache_hit", true))
		s.logger.Debug("feed cache hit", "feed_type", q.FeedType, "sort", q.SortMode)
		return page, nil
	}
	span.SetAttributes(attribute.Bool("feed.cache_hit", false))

	var (
		page      *domain.FeedPage
		cacheable = true
	)
	if q.FeedType == domain.FeedCurated {
		page, err = s.curatedPage(ctx, q, prefs)
	} else {
		page, cacheable = s.upstreamPage(ctx, q, prefs)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if cacheable {
		s.cache.Put(q.FeedType, key, page)
	}
	span.SetAttributes(attribute.Int("feed.items", len(page.Items)))
	return page, nil
}

func (s *Service) normalize(q domain.FeedQuery) (domain.FeedQuery, error) {
	if q.FeedType == "" {
		q.FeedType = domain.FeedCurated
	}
	if q.SortMode == "" {
		q.SortMode = domain.SortRecentlyCurated
	}
	if q.PageSize < 0 {
		return q, errmodel.Validation("invalid_limit", "limit must be positive", map[string]any{"limit": q.PageSize})
	}
	if q.PageSize == 0 {
		q.PageSize = s.opts.DefaultPageSize
	}
	if q.PageSize > s.opts.MaxPageSize {
		q.PageSize = s.opts.MaxPageSize
	}
	q.CuratorScope = cleanList(q.CuratorScope)
	q.Categories = cleanList(q.Categories)
	return q, nil
}

func (s *Service) viewerPreferences(ctx context.Context, viewerID string) domain.Preferences {
	if viewerID == "" || s.prefs == nil {
		return domain.Preferences{}
	}
	p, err := s.prefs.ViewerPreferences(ctx, viewerID)
	if err != nil {
		s.logger.Warn("failed to resolve viewer preferences", "viewer", viewerID, "error", err)
		return domain.Preferences{}
	}
	return p
}

func (s *Service) curatedPage(ctx context.Context, q domain.FeedQuery, prefs domain.Preferences) (*domain.FeedPage, error) {
	scope := q.CuratorScope
	if len(scope) == 0 {
		var err error
		scope, err = s.roles.DefaultCurators(ctx)
		if err != nil {
			return nil, errmodel.Network("role_resolution_failed", "failed to resolve curators", err)
		}
	}
	if len(scope) == 0 {
		s.logger.Info("empty curator scope", "sort", q.SortMode)
		return emptyPage(), nil
	}

	strategy, err := NewSortStrategy(q.SortMode, s.repo)
	if err != nil {
		return nil, errmodel.Validation("invalid_sort", err.Error(), nil)
	}

	req := PlanRequest{
		Filter: domain.CandidateFilter{
			Curators:     scope,
			Categories:   q.Categories,
			QualityFloor: q.QualityFloor,
		},
		PageSize: q.PageSize,
	}
	if c, ok := DecodeCursor(q.SortMode, q.Cursor); ok {
		req.Cursor = &c
	} else if q.Cursor != "" {
		s.logger.Debug("ignoring malformed cursor", "sort", q.SortMode, "cursor", q.Cursor)
	}

	candidates, err := s.plan(ctx, strategy, req, q.Cursor)
	if err != nil {
		return nil, errmodel.System("store_failure", "failed to plan feed", err)
	}

	var next *string
	if len(candidates) > q.PageSize {
		last := candidates[q.PageSize-1]
		tie := samePrimary(q.SortMode, last, candidates[q.PageSize])
		c := EncodeCursor(q.SortMode, last, tie)
		next = &c
		candidates = candidates[:q.PageSize]
	}

	hctx, hspan := s.tracer.Start(ctx, "Hydrator.Hydrate", trace.WithAttributes(attribute.Int("feed.candidates", len(candidates))))
	items, err := s.hydrator.Hydrate(hctx, q.ViewerID, candidates)
	hspan.End()
	if err != nil {
		return nil, errmodel.System("store_failure", "failed to hydrate feed", err)
	}

	chain := BuildFilterChain(q.FeedType, prefs, s.opts.Filters)
	kept, dropped := chain.Apply(items)

	s.logger.Debug("curated feed assembled",
		"sort", q.SortMode,
		"scope", len(scope),
		"candidates", len(candidates),
		"hydrated", len(items),
		"kept", len(kept),
		"dropped", dropped,
		"filters", chain.Names(),
	)
	return &domain.FeedPage{Items: kept, Next: domain.NextPage{Cursor: next}}, nil
}

// plan runs the strategy through the dedup group so concurrent identical
// page requests issue a single candidate query.
func (s *Service) plan(ctx context.Context, strategy SortStrategy, req PlanRequest, rawCursor string) ([]domain.Candidate, error) {
	scope := slices.Clone(req.Filter.Curators)
	slices.Sort(scope)
	cats := slices.Clone(req.Filter.Categories)
	slices.Sort(cats)
	floor := ""
	if req.Filter.QualityFloor != nil {
		floor = strconv.FormatFloat(*req.Filter.QualityFloor, 'f', -1, 64)
	}
	key := DedupKey("plan",
		string(strategy.Mode()),
		strings.Join(scope, ","),
		strings.Join(cats, ","),
		floor,
		rawCursor,
		strconv.Itoa(req.PageSize),
	)

	ctx, span := s.tracer.Start(ctx, "SortStrategy.Plan", trace.WithAttributes(attribute.String("feed.sort", string(strategy.Mode()))))
	defer span.End()

	candidates, err := dedupe(ctx, s.dedup, key, func(ctx context.Context) ([]domain.Candidate, error) {
		return strategy.Plan(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	// The slice may be shared with other callers.
	return slices.Clone(candidates), nil
}

// upstreamPage serves the feeds ranked by the upstream API. Failures
// degrade to an empty page that must not be cached.
func (s *Service) upstreamPage(ctx context.Context, q domain.FeedQuery, prefs domain.Preferences) (*domain.FeedPage, bool) {
	if s.upstream == nil {
		s.logger.Warn("no upstream configured", "feed_type", q.FeedType)
		return emptyPage(), false
	}

	scope := slices.Clone(q.CuratorScope)
	if q.FeedType == domain.FeedPersonalized && len(scope) == 0 && q.ViewerID != "" {
		scope = []string{q.ViewerID}
	}
	slices.Sort(scope)

	req := domain.UpstreamFeedRequest{
		FeedType: q.FeedType,
		Scope:    scope,
		ViewerID: q.ViewerID,
		Cursor:   q.Cursor,
		Limit:    q.PageSize,
	}
	key := DedupKey("feed", string(q.FeedType), strings.Join(scope, ","), q.Cursor, strconv.Itoa(q.PageSize))

	ctx, span := s.tracer.Start(ctx, "Upstream.FetchFeed", trace.WithAttributes(attribute.String("feed.type", string(q.FeedType))))
	res, err := dedupe(ctx, s.dedup, key, func(ctx context.Context) (*domain.UpstreamFeedPage, error) {
		return s.upstream.FetchFeed(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		span.End()
		s.logger.Warn("upstream feed unavailable, serving empty page", "feed_type", q.FeedType, "error", err)
		return emptyPage(), false
	}
	span.End()
	if res == nil {
		res = &domain.UpstreamFeedPage{}
	}

	items := s.hydrator.Decorate(ctx, q.ViewerID, res.Items)
	chain := BuildFilterChain(q.FeedType, prefs, s.opts.Filters)
	kept, dropped := chain.Apply(items)

	var next *string
	if res.NextCursor != "" {
		c := res.NextCursor
		next = &c
	}

	s.logger.Debug("upstream feed assembled",
		"feed_type", q.FeedType,
		"fetched", len(res.Items),
		"kept", len(kept),
		"dropped", dropped,
	)
	return &domain.FeedPage{Items: kept, Next: domain.NextPage{Cursor: next}}, true
}

func emptyPage() *domain.FeedPage {
	return &domain.FeedPage{Items: []domain.EnrichedItem{}}
}

func cleanList(vals []string) []string {
	var out []string
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
