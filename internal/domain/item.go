package domain

import (
	"encoding/json"
	"time"
)

// ContentItem is a cast mirrored from the upstream protocol API. Rows are
// written by ingestion and refetch jobs; the feed pipeline only reads them.
type ContentItem struct {
	// Hash is the protocol-assigned identifier of the cast.
	Hash string

	AuthorID       string
	AuthorUsername string
	Text           string

	// ParentHash is the cast this one replies to, if any.
	ParentHash string

	Likes   int64
	Recasts int64
	Replies int64

	// QualityScore and Category are curation metadata.
	QualityScore float64
	Category     string

	CreatedAt time.Time

	// Payload is the raw upstream snapshot, decodable as CastPayload.
	Payload json.RawMessage
}

// Curation records that a curator selected an item. Unique per
// (ItemHash, CuratorID).
type Curation struct {
	ItemHash  string
	CuratorID string
	CuratedAt time.Time
}

// ReplyRecord is a reply or quote cast attached to a curated thread.
type ReplyRecord struct {
	Hash string

	// CuratedHash is the curated item whose thread this reply belongs to.
	CuratedHash string

	ParentHash     string
	AuthorID       string
	AuthorUsername string
	Text           string

	IsQuote    bool
	QuotedHash string

	CreatedAt time.Time
	Payload   json.RawMessage
}

// InteractionKind enumerates the viewer interactions kept locally.
type InteractionKind string

const (
	InteractionLike   InteractionKind = "like"
	InteractionRecast InteractionKind = "recast"
	InteractionReply  InteractionKind = "reply"
	InteractionQuote  InteractionKind = "quote"
)

// Valid reports whether k is a known interaction kind.
func (k InteractionKind) Valid() bool {
	switch k {
	case InteractionLike, InteractionRecast, InteractionReply, InteractionQuote:
		return true
	}
	return false
}

// Interaction is one row of the append-only interaction log.
type Interaction struct {
	ItemHash  string
	ViewerID  string
	Kind      InteractionKind
	CreatedAt time.Time
}

// InteractionSet is the set of interaction kinds a viewer has on one item.
type InteractionSet map[InteractionKind]bool

// CastPayload is the subset of the upstream cast JSON the pipeline reads.
type CastPayload struct {
	Hash       string       `json:"hash"`
	ParentHash string       `json:"parent_hash,omitempty"`
	ThreadHash string       `json:"thread_hash,omitempty"`
	Author     CastAuthor   `json:"author"`
	Text       string       `json:"text"`
	Timestamp  string       `json:"timestamp"`
	Embeds     []CastEmbed  `json:"embeds,omitempty"`
	Reactions  CastCounters `json:"reactions"`
	Replies    struct {
		Count int64 `json:"count"`
	} `json:"replies"`
	// RecastOf is set when the entry is a pure reshare of another cast.
	RecastOf string `json:"recast_of,omitempty"`
}

// CastAuthor identifies a cast's author.
type CastAuthor struct {
	FID         json.Number `json:"fid"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name,omitempty"`
	Score       float64     `json:"score,omitempty"`
}

// CastEmbed is either a URL or a reference to another cast.
type CastEmbed struct {
	URL    string   `json:"url,omitempty"`
	CastID *CastRef `json:"cast_id,omitempty"`
}

// CastRef is a reference to another cast.
type CastRef struct {
	FID  json.Number `json:"fid,omitempty"`
	Hash string      `json:"hash"`
}

// CastCounters holds engagement counters.
type CastCounters struct {
	LikesCount   int64 `json:"likes_count"`
	RecastsCount int64 `json:"recasts_count"`
}

// DecodePayload parses a raw upstream snapshot. An empty or invalid
// payload yields a zero CastPayload.
func DecodePayload(raw json.RawMessage) CastPayload {
	var p CastPayload
	if len(raw) == 0 {
		return p
	}
	_ = json.Unmarshal(raw, &p)
	return p
}

// QuotedHashes returns the hashes of casts embedded by reference.
func (p CastPayload) QuotedHashes() []string {
	var out []string
	for _, e := range p.Embeds {
		if e.CastID != nil && e.CastID.Hash != "" {
			out = append(out, e.CastID.Hash)
		}
	}
	return out
}

// IsQuote reports whether the cast embeds another cast.
func (p CastPayload) IsQuote() bool {
	return len(p.QuotedHashes()) > 0
}
