package feed

import (
	"context"
	"log/slog"
	"slices"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

// ParentResolver attaches the replied-to cast to quote items.
type ParentResolver struct {
	replies  domain.ReplyRepository
	items    domain.ItemRepository
	upstream domain.Upstream
	dedup    *Dedup
	tasks    *TaskQueue
	logger   *slog.Logger
}

// NewParentResolver creates a ParentResolver. upstream and tasks may be nil.
func NewParentResolver(replies domain.ReplyRepository, items domain.ItemRepository, upstream domain.Upstream, dedup *Dedup, tasks *TaskQueue, logger *slog.Logger) *ParentResolver {
	return &ParentResolver{
		replies:  replies,
		items:    items,
		upstream: upstream,
		dedup:    dedup,
		tasks:    tasks,
		logger:   logger,
	}
}

// NeedsParent reports whether it is a quote whose parent differs from both
// the curated root and the casts it embeds.
func NeedsParent(it *domain.EnrichedItem, rootHash string) bool {
	if len(it.QuotedHashes) == 0 || it.ParentHash == "" {
		return false
	}
	if it.ParentHash == rootHash {
		return false
	}
	return !slices.Contains(it.QuotedHashes, it.ParentHash)
}

// Resolve sets it.Parent when the parent can be found. Lookups go to the
// reply store, then the item store, then upstream. Failures leave the item
// unchanged.
func (r *ParentResolver) Resolve(ctx context.Context, it *domain.EnrichedItem, rootHash string) {
	r.resolve(ctx, it, rootHash, true)
}

// ResolveLocal is Resolve without the upstream fallback.
func (r *ParentResolver) ResolveLocal(ctx context.Context, it *domain.EnrichedItem, rootHash string) {
	r.resolve(ctx, it, rootHash, false)
}

func (r *ParentResolver) resolve(ctx context.Context, it *domain.EnrichedItem, rootHash string, remote bool) {
	if !NeedsParent(it, rootHash) {
		return
	}
	hash := it.ParentHash

	reply, err := r.replies.GetReply(ctx, hash)
	if err != nil {
		r.logger.Warn("parent lookup in reply store failed", "hash", it.Hash, "parent", hash, "error", err)
	}
	if reply != nil {
		it.Parent = &domain.ParentContext{
			Hash:           reply.Hash,
			AuthorID:       reply.AuthorID,
			AuthorUsername: reply.AuthorUsername,
			Text:           reply.Text,
			CreatedAt:      reply.CreatedAt,
		}
		return
	}

	stored, err := r.items.GetItems(ctx, []string{hash})
	if err != nil {
		r.logger.Warn("parent lookup in item store failed", "hash", it.Hash, "parent", hash, "error", err)
	}
	if len(stored) > 0 {
		it.Parent = parentFromItem(&stored[0])
		return
	}

	if !remote || r.upstream == nil {
		return
	}
	found, err := dedupe(ctx, r.dedup, DedupKey("conversation", hash), func(ctx context.Context) (*domain.ContentItem, error) {
		return r.upstream.LookupCast(ctx, hash)
	})
	if err != nil {
		r.logger.Warn("upstream parent lookup failed", "hash", it.Hash, "parent", hash, "error", err)
		return
	}
	if found == nil {
		r.logger.Debug("parent not found upstream", "hash", it.Hash, "parent", hash)
		return
	}
	it.Parent = parentFromItem(found)

	if r.tasks != nil {
		cp := *found
		r.tasks.Submit("persist_parent", func(ctx context.Context) error {
			return r.items.SaveItem(ctx, &cp)
		})
	}
}

func parentFromItem(it *domain.ContentItem) *domain.ParentContext {
	return &domain.ParentContext{
		Hash:           it.Hash,
		AuthorID:       it.AuthorID,
		AuthorUsername: it.AuthorUsername,
		Text:           it.Text,
		CreatedAt:      it.CreatedAt,
	}
}
