package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

// GetItems loads stored items by hash.
func (s *Store) GetItems(ctx context.Context, hashes []string) ([]domain.ContentItem, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT hash, author_id, author_username, text, parent_hash,
		       likes, recasts, replies, quality_score, category, created_at, payload
		FROM items
		WHERE hash IN (`+placeholders(len(hashes))+`)`),
		stringArgs(hashes)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query items (count=%d): %w", len(hashes), err)
	}
	defer rows.Close()

	items := make([]domain.ContentItem, 0, len(hashes))
	for rows.Next() {
		var (
			it      domain.ContentItem
			created int64
			payload string
		)
		err := rows.Scan(
			&it.Hash,
			&it.AuthorID,
			&it.AuthorUsername,
			&it.Text,
			&it.ParentHash,
			&it.Likes,
			&it.Recasts,
			&it.Replies,
			&it.QualityScore,
			&it.Category,
			&created,
			&payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.CreatedAt = fromMillis(created)
		it.Payload = json.RawMessage(payload)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// SaveItem upserts a mirrored item. Curation metadata is kept when the
// incoming item has none.
func (s *Store) SaveItem(ctx context.Context, it *domain.ContentItem) error {
	payload := string(it.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO items (hash, author_id, author_username, text, parent_hash,
		                   likes, recasts, replies, quality_score, category,
		                   created_at, payload, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO UPDATE SET
			author_username = excluded.author_username,
			text = excluded.text,
			likes = excluded.likes,
			recasts = excluded.recasts,
			replies = excluded.replies,
			quality_score = CASE WHEN excluded.quality_score <> 0 THEN excluded.quality_score ELSE items.quality_score END,
			category = CASE WHEN excluded.category <> '' THEN excluded.category ELSE items.category END,
			payload = excluded.payload,
			refreshed_at = excluded.refreshed_at`),
		it.Hash,
		it.AuthorID,
		it.AuthorUsername,
		it.Text,
		it.ParentHash,
		it.Likes,
		it.Recasts,
		it.Replies,
		it.QualityScore,
		it.Category,
		millis(it.CreatedAt),
		payload,
		millis(time.Now()),
	)
	return err
}

// GetCurators returns curator ids per item, ordered by first curation.
func (s *Store) GetCurators(ctx context.Context, hashes []string) (map[string][]string, error) {
	out := make(map[string][]string, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT item_hash, curator_id
		FROM curations
		WHERE item_hash IN (`+placeholders(len(hashes))+`)
		ORDER BY item_hash, curated_at ASC, curator_id ASC`),
		stringArgs(hashes)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query curators: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash, curator string
		if err := rows.Scan(&hash, &curator); err != nil {
			return nil, fmt.Errorf("scan curator: %w", err)
		}
		out[hash] = append(out[hash], curator)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate curators: %w", err)
	}
	return out, nil
}

// GetViewerInteractions returns the viewer's logged interactions on hashes.
func (s *Store) GetViewerInteractions(ctx context.Context, viewerID string, hashes []string) (map[string]domain.InteractionSet, error) {
	out := make(map[string]domain.InteractionSet)
	if viewerID == "" || len(hashes) == 0 {
		return out, nil
	}

	args := append([]any{viewerID}, stringArgs(hashes)...)
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT item_hash, kind
		FROM interactions
		WHERE viewer_id = ? AND item_hash IN (`+placeholders(len(hashes))+`)`),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash, kind string
		if err := rows.Scan(&hash, &kind); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		set, ok := out[hash]
		if !ok {
			set = domain.InteractionSet{}
			out[hash] = set
		}
		set[domain.InteractionKind(kind)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return out, nil
}

// RecordInteraction appends to the interaction log.
func (s *Store) RecordInteraction(ctx context.Context, in *domain.Interaction) error {
	if !in.Kind.Valid() {
		return fmt.Errorf("invalid interaction kind %q", in.Kind)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO interactions (item_hash, viewer_id, kind, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (item_hash, viewer_id, kind) DO NOTHING`),
		in.ItemHash, in.ViewerID, string(in.Kind), millis(in.CreatedAt),
	)
	return err
}

// CreateCuration records a curation event.
func (s *Store) CreateCuration(ctx context.Context, c *domain.Curation) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO curations (item_hash, curator_id, curated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (item_hash, curator_id) DO NOTHING`),
		c.ItemHash, c.CuratorID, millis(c.CuratedAt),
	)
	return err
}

// CuratedRoot resolves hash to the curated item it belongs to.
func (s *Store) CuratedRoot(ctx context.Context, hash string) (string, error) {
	var root string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT item_hash FROM curations WHERE item_hash = ? LIMIT 1`), hash,
	).Scan(&root)
	if err == nil {
		return root, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query curation: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		s.rebind(`SELECT curated_hash FROM replies WHERE hash = ?`), hash,
	).Scan(&root)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query reply root: %w", err)
	}
	return root, nil
}

// GetReply returns a stored reply by hash, or nil.
func (s *Store) GetReply(ctx context.Context, hash string) (*domain.ReplyRecord, error) {
	var (
		r       domain.ReplyRecord
		created int64
		payload string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT hash, curated_hash, parent_hash, author_id, author_username, text,
		       is_quote, quoted_hash, created_at, payload
		FROM replies
		WHERE hash = ?`), hash,
	).Scan(
		&r.Hash,
		&r.CuratedHash,
		&r.ParentHash,
		&r.AuthorID,
		&r.AuthorUsername,
		&r.Text,
		&r.IsQuote,
		&r.QuotedHash,
		&created,
		&payload,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query reply: %w", err)
	}
	r.CreatedAt = fromMillis(created)
	r.Payload = json.RawMessage(payload)
	return &r, nil
}

// SaveReply inserts a reply record.
func (s *Store) SaveReply(ctx context.Context, r *domain.ReplyRecord) error {
	payload := string(r.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO replies (hash, curated_hash, parent_hash, author_id, author_username,
		                     text, is_quote, quoted_hash, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO NOTHING`),
		r.Hash,
		r.CuratedHash,
		r.ParentHash,
		r.AuthorID,
		r.AuthorUsername,
		r.Text,
		r.IsQuote,
		r.QuotedHash,
		millis(r.CreatedAt),
		payload,
	)
	return err
}
