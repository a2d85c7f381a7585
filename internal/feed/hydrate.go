package feed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

// parentLookupLimit bounds concurrent parent resolutions per page.
const parentLookupLimit = 4

// Hydrator turns planned candidates into enriched feed items.
type Hydrator struct {
	items    domain.ItemRepository
	upstream domain.Upstream
	dedup    *Dedup
	parents  *ParentResolver
	logger   *slog.Logger
}

// NewHydrator creates a Hydrator. upstream may be nil, in which case items
// missing from the store are dropped.
func NewHydrator(items domain.ItemRepository, upstream domain.Upstream, dedup *Dedup, parents *ParentResolver, logger *slog.Logger) *Hydrator {
	return &Hydrator{
		items:    items,
		upstream: upstream,
		dedup:    dedup,
		parents:  parents,
		logger:   logger,
	}
}

// Hydrate loads and enriches candidates, preserving their order. Items that
// cannot be found locally or upstream are left out. Only a store failure
// while loading items or curators is returned as an error.
func (h *Hydrator) Hydrate(ctx context.Context, viewerID string, candidates []domain.Candidate) ([]domain.EnrichedItem, error) {
	if len(candidates) == 0 {
		return []domain.EnrichedItem{}, nil
	}

	index := make(map[string]int, len(candidates))
	hashes := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := index[c.Hash]; dup {
			continue
		}
		index[c.Hash] = len(hashes)
		hashes = append(hashes, c.Hash)
	}

	stored, err := h.items.GetItems(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	slots := make([]*domain.ContentItem, len(hashes))
	for i := range stored {
		if pos, ok := index[stored[i].Hash]; ok {
			slots[pos] = &stored[i]
		}
	}

	var missing []string
	for pos, it := range slots {
		if it == nil {
			missing = append(missing, hashes[pos])
		}
	}
	if len(missing) > 0 {
		for _, it := range h.fetchMissing(ctx, missing) {
			if pos, ok := index[it.Hash]; ok && slots[pos] == nil {
				slots[pos] = &it
			}
		}
	}

	ordered := make([]domain.ContentItem, 0, len(slots))
	for _, it := range slots {
		if it != nil {
			ordered = append(ordered, *it)
		}
	}

	curators, err := h.items.GetCurators(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("load curators: %w", err)
	}
	return h.decorate(ctx, viewerID, ordered, curators, true), nil
}

// Decorate enriches items that did not come from the planner, such as an
// upstream feed page. Local curator data and parents already stored
// locally are attached; nothing is looked up upstream.
func (h *Hydrator) Decorate(ctx context.Context, viewerID string, items []domain.ContentItem) []domain.EnrichedItem {
	hashes := make([]string, len(items))
	for i, it := range items {
		hashes[i] = it.Hash
	}
	curators, err := h.items.GetCurators(ctx, hashes)
	if err != nil {
		h.logger.Warn("failed to load curators for upstream items", "count", len(hashes), "error", err)
		curators = nil
	}
	return h.decorate(ctx, viewerID, items, curators, false)
}

// decorate attaches curators, viewer interactions and quote parents. remote
// enables the upstream parent lookup.
func (h *Hydrator) decorate(ctx context.Context, viewerID string, items []domain.ContentItem, curators map[string][]string, remote bool) []domain.EnrichedItem {
	out := make([]domain.EnrichedItem, len(items))
	hashes := make([]string, len(items))
	for i, it := range items {
		out[i] = EnrichItem(it)
		out[i].Curators = curators[it.Hash]
		hashes[i] = it.Hash
	}

	if viewerID != "" && len(hashes) > 0 {
		interactions, err := h.items.GetViewerInteractions(ctx, viewerID, hashes)
		if err != nil {
			h.logger.Warn("failed to load viewer interactions", "viewer", viewerID, "error", err)
		}
		for i := range out {
			set := interactions[out[i].Hash]
			out[i].ViewerLiked = set[domain.InteractionLike]
			out[i].ViewerRecasted = set[domain.InteractionRecast]
		}
	}

	if h.parents != nil {
		var g errgroup.Group
		g.SetLimit(parentLookupLimit)
		for i := range out {
			if !NeedsParent(&out[i], out[i].Hash) {
				continue
			}
			it := &out[i]
			g.Go(func() error {
				if remote {
					h.parents.Resolve(ctx, it, it.Hash)
				} else {
					h.parents.ResolveLocal(ctx, it, it.Hash)
				}
				return nil
			})
		}
		g.Wait()
	}
	return out
}

func (h *Hydrator) fetchMissing(ctx context.Context, hashes []string) []domain.ContentItem {
	if h.upstream == nil {
		h.logger.Warn("items missing from store", "count", len(hashes))
		return nil
	}

	sorted := slices.Clone(hashes)
	slices.Sort(sorted)
	key := DedupKey("items", strings.Join(sorted, ","))

	items, err := dedupe(ctx, h.dedup, key, func(ctx context.Context) ([]domain.ContentItem, error) {
		return h.upstream.FetchItems(ctx, sorted)
	})
	if err != nil {
		h.logger.Warn("failed to fetch missing items from upstream", "count", len(hashes), "error", err)
		return nil
	}
	h.logger.Debug("fetched missing items from upstream", "requested", len(hashes), "found", len(items))
	return items
}

// EnrichItem builds the response entry for a stored item from its columns
// and upstream payload.
func EnrichItem(it domain.ContentItem) domain.EnrichedItem {
	p := domain.DecodePayload(it.Payload)
	quoted := p.QuotedHashes()

	parent := it.ParentHash
	if parent == "" {
		parent = p.ParentHash
	}

	return domain.EnrichedItem{
		Hash:           it.Hash,
		AuthorID:       it.AuthorID,
		AuthorUsername: it.AuthorUsername,
		AuthorScore:    p.Author.Score,
		Text:           it.Text,
		CreatedAt:      it.CreatedAt,
		ParentHash:     parent,
		QuotedHashes:   quoted,
		IsRecast:       p.RecastOf != "" || (strings.TrimSpace(it.Text) == "" && len(quoted) == 1),
		Likes:          it.Likes,
		Recasts:        it.Recasts,
		Replies:        it.Replies,
		QualityScore:   it.QualityScore,
		Category:       it.Category,
	}
}
