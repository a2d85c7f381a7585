package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// FeedType selects how a feed is assembled.
type FeedType string

const (
	// FeedCurated is assembled locally from curation events.
	FeedCurated FeedType = "curated"
	// FeedScoped, FeedTrending and FeedPersonalized are pre-ranked
	// upstream and only filtered here.
	FeedScoped       FeedType = "scoped"
	FeedTrending     FeedType = "trending"
	FeedPersonalized FeedType = "personalized"
)

// ParseFeedType returns the feed type named by s. An empty string selects
// the curated feed.
func ParseFeedType(s string) (FeedType, error) {
	switch t := FeedType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return FeedCurated, nil
	case FeedCurated, FeedScoped, FeedTrending, FeedPersonalized:
		return t, nil
	}
	return "", fmt.Errorf("unknown feed type %q", s)
}

// SortMode selects the ordering of the curated feed.
type SortMode string

const (
	SortQuality         SortMode = "quality"
	SortTimeOfCast      SortMode = "time_of_cast"
	SortRecentlyCurated SortMode = "recently_curated"
	SortRecentReply     SortMode = "recent_reply"
)

// ParseSortMode returns the sort mode named by s. An empty string selects
// recently curated ordering.
func ParseSortMode(s string) (SortMode, error) {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SortRecentlyCurated, nil
	case SortQuality, SortTimeOfCast, SortRecentlyCurated, SortRecentReply:
		return m, nil
	}
	return "", fmt.Errorf("unknown sort mode %q", s)
}

// Preferences are a viewer's content preferences as supplied by the
// preference resolver.
type Preferences struct {
	HideBots       bool     `json:"hideBots"`
	BlockedAuthors []string `json:"blockedAuthors,omitempty"`
	AllowedAuthors []string `json:"allowedAuthors,omitempty"`

	HideShort     bool `json:"hideShort"`
	MinTextLength int  `json:"minTextLength,omitempty"`

	HideKeywords bool     `json:"hideKeywords"`
	Keywords     []string `json:"keywords,omitempty"`

	HideRecasts bool `json:"hideRecasts"`

	MinUserScore float64 `json:"minUserScore,omitempty"`
}

// PreferenceOverrides are per-request toggles that take precedence over
// the resolved preferences. Nil means "use the stored preference".
type PreferenceOverrides struct {
	HideBots     *bool `json:"hideBots,omitempty"`
	HideShort    *bool `json:"hideShort,omitempty"`
	HideKeywords *bool `json:"hideKeywords,omitempty"`
	HideRecasts  *bool `json:"hideRecasts,omitempty"`
}

// Apply returns p with the non-nil overrides applied.
func (o PreferenceOverrides) Apply(p Preferences) Preferences {
	if o.HideBots != nil {
		p.HideBots = *o.HideBots
	}
	if o.HideShort != nil {
		p.HideShort = *o.HideShort
	}
	if o.HideKeywords != nil {
		p.HideKeywords = *o.HideKeywords
	}
	if o.HideRecasts != nil {
		p.HideRecasts = *o.HideRecasts
	}
	return p
}

// FeedQuery is an inbound feed request. It is never persisted.
type FeedQuery struct {
	FeedType     FeedType
	SortMode     SortMode
	Cursor       string
	CuratorScope []string
	Categories   []string
	QualityFloor *float64
	PageSize     int
	ViewerID     string
	Overrides    PreferenceOverrides
}

// CacheKey returns a canonical serialization of q. Two queries with the
// same key produce the same response.
func (q FeedQuery) CacheKey() string {
	scope := slices.Clone(q.CuratorScope)
	slices.Sort(scope)
	cats := slices.Clone(q.Categories)
	slices.Sort(cats)

	// encoding/json writes map keys in sorted order.
	m := map[string]any{
		"categories": cats,
		"cursor":     q.Cursor,
		"feedType":   q.FeedType,
		"overrides":  q.Overrides,
		"pageSize":   q.PageSize,
		"scope":      scope,
		"sortMode":   q.SortMode,
		"viewer":     q.ViewerID,
	}
	if q.QualityFloor != nil {
		m["qualityFloor"] = *q.QualityFloor
	}
	b, _ := json.Marshal(m)
	return string(b)
}

// Candidate is a planner result: an item hash and its sort keys.
type Candidate struct {
	Hash string

	// Score is the primary key in quality mode.
	Score float64

	// SortTime is the primary key in the time-based modes: creation time,
	// first curation time or latest reply time.
	SortTime time.Time

	// CreatedAt is the item's creation time, the first tie-break.
	CreatedAt time.Time
}

// Cursor is a decoded pagination cursor. Rows strictly after it in the
// mode's ordering belong to the next page.
type Cursor struct {
	Score    float64
	SortTime time.Time

	// Exact is set when the cursor carries the tie-break of the last
	// returned row, in which case rows equal on the primary key are
	// compared by CreatedAt and Hash.
	Exact     bool
	CreatedAt time.Time
	Hash      string
}

// CandidateFilter restricts the candidate set of the curated feed.
type CandidateFilter struct {
	Curators     []string
	Categories   []string
	QualityFloor *float64
}

// ParentContext is the replied-to cast shown alongside a quote item.
type ParentContext struct {
	Hash           string    `json:"hash"`
	AuthorID       string    `json:"authorId"`
	AuthorUsername string    `json:"authorUsername"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EnrichedItem is a hydrated feed entry.
type EnrichedItem struct {
	Hash           string    `json:"hash"`
	AuthorID       string    `json:"authorId"`
	AuthorUsername string    `json:"authorUsername"`
	AuthorScore    float64   `json:"authorScore,omitempty"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
	ParentHash     string    `json:"parentHash,omitempty"`
	QuotedHashes   []string  `json:"quotedHashes,omitempty"`
	IsRecast       bool      `json:"isRecast,omitempty"`

	Likes   int64 `json:"likes"`
	Recasts int64 `json:"recasts"`
	Replies int64 `json:"replies"`

	QualityScore float64  `json:"qualityScore"`
	Category     string   `json:"category,omitempty"`
	Curators     []string `json:"curators,omitempty"`

	ViewerLiked    bool `json:"viewerLiked"`
	ViewerRecasted bool `json:"viewerRecasted"`

	Parent *ParentContext `json:"parent,omitempty"`
}

// NextPage carries the cursor for the following page; nil when exhausted.
type NextPage struct {
	Cursor *string `json:"cursor"`
}

// FeedPage is the response body of a feed request.
type FeedPage struct {
	Items []EnrichedItem `json:"items"`
	Next  NextPage       `json:"next"`
}

// UpstreamFeedRequest asks the upstream API for a pre-ranked feed.
type UpstreamFeedRequest struct {
	FeedType FeedType
	Scope    []string
	ViewerID string
	Cursor   string
	Limit    int
}

// UpstreamFeedPage is one page of an upstream feed.
type UpstreamFeedPage struct {
	Items      []ContentItem
	NextCursor string
}
