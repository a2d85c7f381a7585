package feed

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

// cursorTimeLayout is ISO-8601 in UTC with millisecond precision, matching
// the store's timestamp resolution.
const cursorTimeLayout = "2006-01-02T15:04:05.000Z07:00"

const cursorSep = "~"

// EncodeCursor returns the opaque cursor for the page ending at last. Set
// tie when the first row of the next page shares last's primary sort key;
// the cursor then carries last's tie-break so that row is not skipped.
//
// Quality cursors are the decimal score ("90"); the time-based modes use an
// ISO-8601 timestamp.
func EncodeCursor(mode domain.SortMode, last domain.Candidate, tie bool) string {
	var primary string
	if mode == domain.SortQuality {
		primary = strconv.FormatFloat(last.Score, 'f', -1, 64)
	} else {
		primary = formatCursorTime(last.SortTime)
	}
	if !tie {
		return primary
	}
	return primary + cursorSep + formatCursorTime(last.CreatedAt) + cursorSep + last.Hash
}

// DecodeCursor parses a cursor produced by EncodeCursor for the same mode.
// Empty or malformed cursors report false and must be treated as absent.
func DecodeCursor(mode domain.SortMode, s string) (domain.Cursor, bool) {
	var c domain.Cursor
	s = strings.TrimSpace(s)
	if s == "" {
		return c, false
	}

	parts := strings.Split(s, cursorSep)
	if len(parts) != 1 && len(parts) != 3 {
		return c, false
	}

	if mode == domain.SortQuality {
		score, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			return c, false
		}
		c.Score = score
	} else {
		t, ok := parseCursorTime(parts[0])
		if !ok {
			return c, false
		}
		c.SortTime = t
	}

	if len(parts) == 3 {
		created, ok := parseCursorTime(parts[1])
		if !ok || parts[2] == "" {
			return domain.Cursor{}, false
		}
		c.Exact = true
		c.CreatedAt = created
		c.Hash = parts[2]
	}
	return c, true
}

// samePrimary reports whether a and b tie on the mode's primary key.
func samePrimary(mode domain.SortMode, a, b domain.Candidate) bool {
	if mode == domain.SortQuality {
		return a.Score == b.Score
	}
	return a.SortTime.Equal(b.SortTime)
}

// afterCursor reports whether c sorts strictly after cur, that is, whether
// it belongs to a page following the one cur was emitted for.
func afterCursor(mode domain.SortMode, c domain.Candidate, cur domain.Cursor) bool {
	var cmp int
	if mode == domain.SortQuality {
		cmp = compareFloat(c.Score, cur.Score)
	} else {
		cmp = c.SortTime.Compare(cur.SortTime)
	}
	if cmp != 0 {
		return cmp < 0
	}
	if !cur.Exact {
		return false
	}
	if cmp := c.CreatedAt.Compare(cur.CreatedAt); cmp != 0 {
		return cmp < 0
	}
	return c.Hash < cur.Hash
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func formatCursorTime(t time.Time) string {
	return t.UTC().Format(cursorTimeLayout)
}

func parseCursorTime(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC().Truncate(time.Millisecond), true
}
