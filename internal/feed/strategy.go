package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

// PlanRequest is the input of a SortStrategy.
type PlanRequest struct {
	Filter   domain.CandidateFilter
	Cursor   *domain.Cursor
	PageSize int
}

// SortStrategy plans one page of the curated feed: it returns at most
// PageSize+1 candidates in order, the extra one signalling that another
// page exists.
type SortStrategy interface {
	Mode() domain.SortMode
	Plan(ctx context.Context, req PlanRequest) ([]domain.Candidate, error)
}

// NewSortStrategy selects the strategy for mode.
func NewSortStrategy(mode domain.SortMode, repo domain.CandidateRepository) (SortStrategy, error) {
	switch mode {
	case domain.SortQuality:
		return QualityStrategy{repo: repo}, nil
	case domain.SortTimeOfCast:
		return TimeOfCastStrategy{repo: repo}, nil
	case domain.SortRecentlyCurated:
		return RecentlyCuratedStrategy{repo: repo}, nil
	case domain.SortRecentReply:
		return RecentReplyStrategy{repo: repo}, nil
	}
	return nil, fmt.Errorf("unknown sort mode %q", mode)
}

// QualityStrategy orders by quality score. The cursor is pushed into the
// store query.
type QualityStrategy struct {
	repo domain.CandidateRepository
}

func (QualityStrategy) Mode() domain.SortMode { return domain.SortQuality }

func (s QualityStrategy) Plan(ctx context.Context, req PlanRequest) ([]domain.Candidate, error) {
	return s.repo.RankByQuality(ctx, req.Filter, req.Cursor, req.PageSize+1)
}

// TimeOfCastStrategy orders by item creation time. The cursor is pushed
// into the store query.
type TimeOfCastStrategy struct {
	repo domain.CandidateRepository
}

func (TimeOfCastStrategy) Mode() domain.SortMode { return domain.SortTimeOfCast }

func (s TimeOfCastStrategy) Plan(ctx context.Context, req PlanRequest) ([]domain.Candidate, error) {
	return s.repo.RankByCreation(ctx, req.Filter, req.Cursor, req.PageSize+1)
}

// RecentlyCuratedStrategy orders by each item's first curation time.
type RecentlyCuratedStrategy struct {
	repo domain.CandidateRepository
}

func (RecentlyCuratedStrategy) Mode() domain.SortMode { return domain.SortRecentlyCurated }

func (s RecentlyCuratedStrategy) Plan(ctx context.Context, req PlanRequest) ([]domain.Candidate, error) {
	return planAggregate(ctx, domain.SortRecentlyCurated, s.repo.RankByFirstCuration, req)
}

// RecentReplyStrategy orders by each item's latest reply, falling back to
// the item's creation time.
type RecentReplyStrategy struct {
	repo domain.CandidateRepository
}

func (RecentReplyStrategy) Mode() domain.SortMode { return domain.SortRecentReply }

func (s RecentReplyStrategy) Plan(ctx context.Context, req PlanRequest) ([]domain.Candidate, error) {
	return planAggregate(ctx, domain.SortRecentReply, s.repo.RankByLatestReply, req)
}

type aggregateRanker func(ctx context.Context, f domain.CandidateFilter, notAfter *time.Time, limit, offset int) ([]domain.Candidate, error)

// planAggregate pages through an aggregate ordering in windows of
// 2*PageSize rows. The store only applies an inclusive bound on the
// aggregate key; the exact cursor comparison happens here.
func planAggregate(ctx context.Context, mode domain.SortMode, rank aggregateRanker, req PlanRequest) ([]domain.Candidate, error) {
	want := req.PageSize + 1
	window := 2 * req.PageSize
	if window < want {
		window = want
	}

	var bound *time.Time
	if req.Cursor != nil {
		t := req.Cursor.SortTime
		bound = &t
	}

	out := make([]domain.Candidate, 0, want)
	for offset := 0; ; offset += window {
		rows, err := rank(ctx, req.Filter, bound, window, offset)
		if err != nil {
			return nil, err
		}
		for _, c := range rows {
			if req.Cursor != nil && !afterCursor(mode, c, *req.Cursor) {
				continue
			}
			out = append(out, c)
			if len(out) == want {
				return out, nil
			}
		}
		if len(rows) < window {
			return out, nil
		}
	}
}
