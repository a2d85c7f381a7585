package domain

import (
	"context"
	"time"
)

// CandidateRepository ranks curated items without loading their payloads.
// Each method returns at most limit candidates in the mode's order.
type CandidateRepository interface {
	// RankByQuality orders by quality score, then creation time, then hash,
	// all descending. Only rows strictly after the cursor are returned.
	RankByQuality(ctx context.Context, f CandidateFilter, after *Cursor, limit int) ([]Candidate, error)

	// RankByCreation orders by creation time, then hash, descending.
	RankByCreation(ctx context.Context, f CandidateFilter, after *Cursor, limit int) ([]Candidate, error)

	// RankByFirstCuration orders by the earliest in-scope curation time per
	// item. Rows whose key is later than notAfter are excluded; the bound is
	// inclusive so callers must apply the exact cursor themselves.
	RankByFirstCuration(ctx context.Context, f CandidateFilter, notAfter *time.Time, limit, offset int) ([]Candidate, error)

	// RankByLatestReply orders by the latest reply time per item, falling
	// back to the item's creation time when it has no replies. The bound
	// semantics match RankByFirstCuration.
	RankByLatestReply(ctx context.Context, f CandidateFilter, notAfter *time.Time, limit, offset int) ([]Candidate, error)
}

// ItemRepository loads stored content for hydration.
type ItemRepository interface {
	// GetItems returns the stored items among hashes, in no particular order.
	GetItems(ctx context.Context, hashes []string) ([]ContentItem, error)

	// GetCurators returns, per item hash, the curator ids ordered by first
	// curation time.
	GetCurators(ctx context.Context, hashes []string) (map[string][]string, error)

	// GetViewerInteractions returns the viewer's interactions on hashes.
	GetViewerInteractions(ctx context.Context, viewerID string, hashes []string) (map[string]InteractionSet, error)

	// SaveItem upserts a mirrored item.
	SaveItem(ctx context.Context, item *ContentItem) error
}

// ReplyRepository persists replies and quotes on curated threads.
type ReplyRepository interface {
	// GetReply returns the reply with the given hash, or nil if unknown.
	GetReply(ctx context.Context, hash string) (*ReplyRecord, error)

	// SaveReply inserts a reply, ignoring duplicates.
	SaveReply(ctx context.Context, reply *ReplyRecord) error
}

// CurationRepository records curation events and interactions.
type CurationRepository interface {
	// CreateCuration records a curation event, ignoring duplicates.
	CreateCuration(ctx context.Context, c *Curation) error

	// CuratedRoot returns the curated item hash that hash belongs to: hash
	// itself when curated, the thread root when hash is a known reply, or
	// "" otherwise.
	CuratedRoot(ctx context.Context, hash string) (string, error)

	// RecordInteraction appends to the interaction log, ignoring duplicates.
	RecordInteraction(ctx context.Context, in *Interaction) error
}

// CursorRepository defines persistence operations for firehose cursors.
type CursorRepository interface {
	// GetCursor retrieves the last-processed firehose cursor for the given
	// service name. Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor persists the firehose cursor so we can resume on restart.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// Upstream is the protocol API the pipeline falls back to.
type Upstream interface {
	// FetchItems fetches casts by hash.
	FetchItems(ctx context.Context, hashes []string) ([]ContentItem, error)

	// FetchFeed fetches a pre-ranked feed page.
	FetchFeed(ctx context.Context, req UpstreamFeedRequest) (*UpstreamFeedPage, error)

	// LookupCast performs a shallow (depth 0) conversation lookup and
	// returns the cast itself, or nil if the upstream does not know it.
	LookupCast(ctx context.Context, hash string) (*ContentItem, error)
}

// PreferenceResolver supplies curator roles and viewer preferences.
type PreferenceResolver interface {
	// DefaultCurators returns the ids holding the curator role.
	DefaultCurators(ctx context.Context) ([]string, error)

	// ViewerPreferences returns the viewer's content preferences. Unknown
	// viewers get zero preferences.
	ViewerPreferences(ctx context.Context, viewerID string) (Preferences, error)
}
