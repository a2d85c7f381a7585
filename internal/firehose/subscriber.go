package firehose

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

const (
	cursorServiceName  = "casts"
	cursorSaveInterval = 5 * time.Second
	reconnectBackoff   = 5 * time.Second
)

// Store is the persistence the subscriber writes to.
type Store interface {
	domain.CurationRepository
	domain.ReplyRepository
	domain.CursorRepository
}

// Subscriber consumes the cast event stream and records replies, quotes
// and reactions that touch curated threads.
type Subscriber struct {
	url    string
	store  Store
	logger *slog.Logger
}

// NewSubscriber creates a new firehose subscriber.
func NewSubscriber(firehoseURL string, store Store, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:    firehoseURL,
		store:  store,
		logger: logger,
	}
}

// Start connects to the stream and processes events until the context is
// cancelled. It reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("firehose connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectBackoff):
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse firehose url: %w", err)
	}
	if cursor > 0 {
		q := u.Query()
		q.Set("cursor", fmt.Sprintf("%d", cursor))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	cursor, err := s.store.GetCursor(ctx, cursorServiceName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
	}

	wsURL, err := s.buildURL(cursor)
	if err != nil {
		return err
	}
	s.logger.Info("connecting to firehose", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	// ReadMessage does not observe ctx.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.logger.Info("connected to firehose")

	latestCursor := cursor
	defer func() {
		if latestCursor > cursor {
			s.saveCursor(context.WithoutCancel(ctx), latestCursor)
		}
	}()

	lastCursorSave := time.Now()
	var eventsReceived, recorded int64
	lastStatsLog := time.Now()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}

		eventsReceived++
		if event.Seq > latestCursor {
			latestCursor = event.Seq
		}

		if ok, err := s.handleEvent(ctx, event); err != nil {
			s.logger.Error("failed to handle event", "seq", event.Seq, "kind", event.Kind, "error", err)
		} else if ok {
			recorded++
		}

		if time.Since(lastStatsLog) >= 30*time.Second {
			s.logger.Info("firehose stats",
				"events_received", eventsReceived,
				"events_recorded", recorded,
			)
			lastStatsLog = time.Now()
		}

		if time.Since(lastCursorSave) >= cursorSaveInterval {
			if s.saveCursor(ctx, latestCursor) {
				lastCursorSave = time.Now()
			}
		}
	}
}

func (s *Subscriber) saveCursor(ctx context.Context, cursor int64) bool {
	if err := s.store.UpdateCursor(ctx, cursorServiceName, cursor); err != nil {
		s.logger.Error("failed to save cursor", "error", err)
		return false
	}
	return true
}

// handleEvent reports whether the event was recorded.
func (s *Subscriber) handleEvent(ctx context.Context, event *streamEvent) (bool, error) {
	switch {
	case event.Cast != nil:
		return s.handleCast(ctx, event.Cast)
	case event.Reaction != nil:
		return s.handleReaction(ctx, event.Reaction)
	}
	return false, nil
}

// handleCast stores a cast that replies to or quotes something in a
// curated thread. The parent wins when both resolve.
func (s *Subscriber) handleCast(ctx context.Context, c *castEvent) (bool, error) {
	p := c.Payload
	quoted := p.QuotedHashes()

	var (
		root, target string
		viaQuote     bool
	)
	if p.ParentHash != "" {
		r, err := s.store.CuratedRoot(ctx, p.ParentHash)
		if err != nil {
			return false, err
		}
		root, target = r, p.ParentHash
	}
	if root == "" {
		for _, h := range quoted {
			r, err := s.store.CuratedRoot(ctx, h)
			if err != nil {
				return false, err
			}
			if r != "" {
				root, target, viaQuote = r, h, true
				break
			}
		}
	}
	if root == "" {
		return false, nil
	}

	reply := &domain.ReplyRecord{
		Hash:           p.Hash,
		CuratedHash:    root,
		ParentHash:     p.ParentHash,
		AuthorID:       p.Author.FID.String(),
		AuthorUsername: p.Author.Username,
		Text:           p.Text,
		IsQuote:        len(quoted) > 0,
		CreatedAt:      c.CreatedAt,
		Payload:        c.Raw,
	}
	if viaQuote {
		reply.QuotedHash = target
	} else if len(quoted) > 0 {
		reply.QuotedHash = quoted[0]
	}
	if err := s.store.SaveReply(ctx, reply); err != nil {
		return false, fmt.Errorf("save reply %s: %w", p.Hash, err)
	}

	kind := domain.InteractionReply
	if viaQuote {
		kind = domain.InteractionQuote
	}
	if err := s.store.RecordInteraction(ctx, &domain.Interaction{
		ItemHash:  target,
		ViewerID:  reply.AuthorID,
		Kind:      kind,
		CreatedAt: c.CreatedAt,
	}); err != nil {
		return false, fmt.Errorf("record %s on %s: %w", kind, target, err)
	}

	s.logger.Debug("recorded thread cast", "hash", p.Hash, "curated", root, "kind", kind)
	return true, nil
}

func (s *Subscriber) handleReaction(ctx context.Context, r *reactionEvent) (bool, error) {
	kind, ok := r.kind()
	if !ok || r.TargetHash == "" || r.FID.String() == "" {
		return false, nil
	}
	root, err := s.store.CuratedRoot(ctx, r.TargetHash)
	if err != nil {
		return false, err
	}
	if root == "" {
		return false, nil
	}
	if err := s.store.RecordInteraction(ctx, &domain.Interaction{
		ItemHash:  r.TargetHash,
		ViewerID:  r.FID.String(),
		Kind:      kind,
		CreatedAt: parseTimestamp(r.Timestamp),
	}); err != nil {
		return false, fmt.Errorf("record %s on %s: %w", kind, r.TargetHash, err)
	}
	return true, nil
}
