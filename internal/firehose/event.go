package firehose

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

const (
	kindCastAdded     = "cast_added"
	kindReactionAdded = "reaction_added"
)

// streamEvent is one message of the cast event stream.
type streamEvent struct {
	Seq      int64
	Kind     string
	Cast     *castEvent
	Reaction *reactionEvent
}

// castEvent is a newly published cast, with its raw JSON kept for storage.
type castEvent struct {
	Payload   domain.CastPayload
	Raw       json.RawMessage
	CreatedAt time.Time
}

// reactionEvent is a like or recast on a cast.
type reactionEvent struct {
	Type       string      `json:"type"`
	FID        json.Number `json:"fid"`
	TargetHash string      `json:"target_hash"`
	Timestamp  string      `json:"timestamp"`
}

func (r *reactionEvent) kind() (domain.InteractionKind, bool) {
	switch r.Type {
	case "like":
		return domain.InteractionLike, true
	case "recast":
		return domain.InteractionRecast, true
	}
	return "", false
}

func parseEvent(data []byte) (*streamEvent, error) {
	var raw struct {
		Seq      int64           `json:"seq"`
		Kind     string          `json:"kind"`
		Cast     json.RawMessage `json:"cast,omitempty"`
		Reaction json.RawMessage `json:"reaction,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	event := &streamEvent{Seq: raw.Seq, Kind: raw.Kind}

	switch raw.Kind {
	case kindCastAdded:
		if len(raw.Cast) == 0 {
			return nil, fmt.Errorf("event %d: missing cast", raw.Seq)
		}
		var p domain.CastPayload
		if err := json.Unmarshal(raw.Cast, &p); err != nil {
			return nil, fmt.Errorf("unmarshal cast: %w", err)
		}
		if p.Hash == "" {
			return nil, fmt.Errorf("event %d: cast without hash", raw.Seq)
		}
		event.Cast = &castEvent{
			Payload:   p,
			Raw:       raw.Cast,
			CreatedAt: parseTimestamp(p.Timestamp),
		}

	case kindReactionAdded:
		if len(raw.Reaction) == 0 {
			return nil, fmt.Errorf("event %d: missing reaction", raw.Seq)
		}
		var r reactionEvent
		if err := json.Unmarshal(raw.Reaction, &r); err != nil {
			return nil, fmt.Errorf("unmarshal reaction: %w", err)
		}
		event.Reaction = &r
	}

	return event, nil
}

// parseTimestamp falls back to the receive time for missing or malformed
// timestamps.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
