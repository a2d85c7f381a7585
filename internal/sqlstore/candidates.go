package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

// RankByQuality returns curated items ordered by quality score, paginated
// by keyset on (quality_score, created_at, hash).
func (s *Store) RankByQuality(ctx context.Context, f domain.CandidateFilter, after *domain.Cursor, limit int) ([]domain.Candidate, error) {
	if len(f.Curators) == 0 || limit <= 0 {
		return nil, nil
	}
	where, args := scopeConditions(f)

	if after != nil {
		if after.Exact {
			where = append(where, `(i.quality_score < ? OR (i.quality_score = ? AND (i.created_at < ? OR (i.created_at = ? AND i.hash < ?))))`)
			created := millis(after.CreatedAt)
			args = append(args, after.Score, after.Score, created, created, after.Hash)
		} else {
			where = append(where, `i.quality_score < ?`)
			args = append(args, after.Score)
		}
	}
	args = append(args, limit)

	query := `
		SELECT i.hash, i.quality_score, i.created_at
		FROM items i
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY i.quality_score DESC, i.created_at DESC, i.hash DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates by quality (limit=%d): %w", limit, err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var (
			c       domain.Candidate
			created int64
		)
		if err := rows.Scan(&c.Hash, &c.Score, &created); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.CreatedAt = fromMillis(created)
		c.SortTime = c.CreatedAt
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// RankByCreation returns curated items ordered by creation time, paginated
// by keyset on (created_at, hash).
func (s *Store) RankByCreation(ctx context.Context, f domain.CandidateFilter, after *domain.Cursor, limit int) ([]domain.Candidate, error) {
	if len(f.Curators) == 0 || limit <= 0 {
		return nil, nil
	}
	where, args := scopeConditions(f)

	if after != nil {
		if after.Exact {
			where = append(where, `(i.created_at < ? OR (i.created_at = ? AND i.hash < ?))`)
			created := millis(after.SortTime)
			args = append(args, created, created, after.Hash)
		} else {
			where = append(where, `i.created_at < ?`)
			args = append(args, millis(after.SortTime))
		}
	}
	args = append(args, limit)

	query := `
		SELECT i.hash, i.quality_score, i.created_at
		FROM items i
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY i.created_at DESC, i.hash DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates by creation (limit=%d): %w", limit, err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var (
			c       domain.Candidate
			created int64
		)
		if err := rows.Scan(&c.Hash, &c.Score, &created); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.CreatedAt = fromMillis(created)
		c.SortTime = c.CreatedAt
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// RankByFirstCuration orders items by their earliest curation among the
// curators in scope.
func (s *Store) RankByFirstCuration(ctx context.Context, f domain.CandidateFilter, notAfter *time.Time, limit, offset int) ([]domain.Candidate, error) {
	if len(f.Curators) == 0 || limit <= 0 {
		return nil, nil
	}

	where := []string{`c.curator_id IN (` + placeholders(len(f.Curators)) + `)`}
	args := stringArgs(f.Curators)
	where, args = appendMetadataConditions(where, args, f)

	having := ""
	if notAfter != nil {
		having = `HAVING MIN(c.curated_at) <= ?`
		args = append(args, millis(*notAfter))
	}
	args = append(args, limit, offset)

	query := `
		SELECT i.hash, i.quality_score, MIN(c.curated_at) AS sort_key, i.created_at
		FROM items i
		JOIN curations c ON c.item_hash = i.hash
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY i.hash, i.quality_score, i.created_at
		` + having + `
		ORDER BY sort_key DESC, i.created_at DESC, i.hash DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates by first curation (limit=%d, offset=%d): %w", limit, offset, err)
	}
	return scanAggregateCandidates(rows)
}

// RankByLatestReply orders items by their latest reply, or by their own
// creation time when they have none.
func (s *Store) RankByLatestReply(ctx context.Context, f domain.CandidateFilter, notAfter *time.Time, limit, offset int) ([]domain.Candidate, error) {
	if len(f.Curators) == 0 || limit <= 0 {
		return nil, nil
	}
	where, args := scopeConditions(f)

	having := ""
	if notAfter != nil {
		having = `HAVING COALESCE(MAX(r.created_at), i.created_at) <= ?`
		args = append(args, millis(*notAfter))
	}
	args = append(args, limit, offset)

	query := `
		SELECT i.hash, i.quality_score, COALESCE(MAX(r.created_at), i.created_at) AS sort_key, i.created_at
		FROM items i
		LEFT JOIN replies r ON r.curated_hash = i.hash
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY i.hash, i.quality_score, i.created_at
		` + having + `
		ORDER BY sort_key DESC, i.created_at DESC, i.hash DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates by latest reply (limit=%d, offset=%d): %w", limit, offset, err)
	}
	return scanAggregateCandidates(rows)
}

func scanAggregateCandidates(rows *sql.Rows) ([]domain.Candidate, error) {
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var (
			c            domain.Candidate
			key, created int64
		)
		if err := rows.Scan(&c.Hash, &c.Score, &key, &created); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.SortTime = fromMillis(key)
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// scopeConditions restricts items alias i to those curated by a curator in
// scope and matching the metadata thresholds.
func scopeConditions(f domain.CandidateFilter) ([]string, []any) {
	where := []string{`EXISTS (SELECT 1 FROM curations c WHERE c.item_hash = i.hash AND c.curator_id IN (` + placeholders(len(f.Curators)) + `))`}
	args := stringArgs(f.Curators)
	return appendMetadataConditions(where, args, f)
}

func appendMetadataConditions(where []string, args []any, f domain.CandidateFilter) ([]string, []any) {
	if len(f.Categories) > 0 {
		where = append(where, `i.category IN (`+placeholders(len(f.Categories))+`)`)
		args = append(args, stringArgs(f.Categories)...)
	}
	if f.QualityFloor != nil {
		where = append(where, `i.quality_score >= ?`)
		args = append(args, *f.QualityFloor)
	}
	return where, args
}
