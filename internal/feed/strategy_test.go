package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

func TestNewSortStrategy(t *testing.T) {
	store := newTestStore(t)
	for _, mode := range []domain.SortMode{domain.SortQuality, domain.SortTimeOfCast, domain.SortRecentlyCurated, domain.SortRecentReply} {
		s, err := NewSortStrategy(mode, store)
		if err != nil {
			t.Fatalf("NewSortStrategy(%s): %v", mode, err)
		}
		if s.Mode() != mode {
			t.Errorf("Mode() = %s, want %s", s.Mode(), mode)
		}
	}
	if _, err := NewSortStrategy("hottest", store); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestQualityStrategyPushesCursor(t *testing.T) {
	store := newTestStore(t)
	seed(t, store,
		seedItem{hash: "A", quality: 90, created: at(2)},
		seedItem{hash: "B", quality: 70, created: at(1)},
		seedItem{hash: "C", quality: 95, created: at(3)},
	)
	s, _ := NewSortStrategy(domain.SortQuality, store)
	filter := domain.CandidateFilter{Curators: []string{"curator-1"}}

	got, err := s.Plan(context.Background(), PlanRequest{Filter: filter, PageSize: 2})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if want := []string{"C", "A", "B"}; !slices.Equal(candidateHashes(got), want) {
		t.Fatalf("page 1 = %v, want %v", candidateHashes(got), want)
	}

	cur, _ := DecodeCursor(domain.SortQuality, "90")
	got, err = s.Plan(context.Background(), PlanRequest{Filter: filter, Cursor: &cur, PageSize: 2})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if want := []string{"B"}; !slices.Equal(candidateHashes(got), want) {
		t.Fatalf("page 2 = %v, want %v", candidateHashes(got), want)
	}
}

func TestRecentReplyStrategyFallsBackToCreation(t *testing.T) {
	store := newTestStore(t)
	seed(t, store,
		seedItem{hash: "D", created: at(0)},
		seedItem{hash: "E", created: at(-10)},
	)
	seedReply(t, store, "E-reply", "E", at(5))

	s, _ := NewSortStrategy(domain.SortRecentReply, store)
	got, err := s.Plan(context.Background(), PlanRequest{
		Filter:   domain.CandidateFilter{Curators: []string{"curator-1"}},
		PageSize: 1,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if want := []string{"E", "D"}; !slices.Equal(candidateHashes(got), want) {
		t.Fatalf("got %v, want %v", candidateHashes(got), want)
	}
	if !got[0].SortTime.Equal(at(5)) {
		t.Errorf("E sort time = %v, want latest reply %v", got[0].SortTime, at(5))
	}
	if !got[1].SortTime.Equal(at(0)) {
		t.Errorf("D sort time = %v, want creation %v", got[1].SortTime, at(0))
	}
}

func TestStrategyRespectsScopeAndMetadata(t *testing.T) {
	store := newTestStore(t)
	floor := 50.0
	seed(t, store,
		seedItem{hash: "in", quality: 80, category: "tech", created: at(1)},
		seedItem{hash: "low", quality: 10, category: "tech", created: at(2)},
		seedItem{hash: "art", quality: 80, category: "art", created: at(3)},
		seedItem{hash: "other", quality: 80, category: "tech", created: at(4),
			curatedBy: map[string]time.Time{"curator-2": at(5)}},
	)

	filter := domain.CandidateFilter{
		Curators:     []string{"curator-1"},
		Categories:   []string{"tech"},
		QualityFloor: &floor,
	}
	for _, mode := range []domain.SortMode{domain.SortQuality, domain.SortTimeOfCast, domain.SortRecentlyCurated, domain.SortRecentReply} {
		s, _ := NewSortStrategy(mode, store)
		got, err := s.Plan(context.Background(), PlanRequest{Filter: filter, PageSize: 10})
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if want := []string{"in"}; !slices.Equal(candidateHashes(got), want) {
			t.Errorf("%s: got %v, want %v", mode, candidateHashes(got), want)
		}
	}
}

func TestPlanAggregateWindows(t *testing.T) {
	// 20 candidates, one per minute, newest first.
	var all []domain.Candidate
	for i := 19; i >= 0; i-- {
		all = append(all, domain.Candidate{
			Hash:      fmt.Sprintf("c%02d", i),
			SortTime:  at(i),
			CreatedAt: at(i),
		})
	}

	var offsets []int
	rank := func(_ context.Context, _ domain.CandidateFilter, notAfter *time.Time, limit, offset int) ([]domain.Candidate, error) {
		offsets = append(offsets, offset)
		var rows []domain.Candidate
		for _, c := range all {
			if notAfter == nil || !c.SortTime.After(*notAfter) {
				rows = append(rows, c)
			}
		}
		if offset >= len(rows) {
			return nil, nil
		}
		return rows[offset:min(offset+limit, len(rows))], nil
	}

	cur := domain.Cursor{SortTime: at(12)}
	got, err := planAggregate(context.Background(), domain.SortRecentlyCurated, rank, PlanRequest{Cursor: &cur, PageSize: 3})
	if err != nil {
		t.Fatalf("planAggregate: %v", err)
	}
	if want := []string{"c11", "c10", "c09", "c08"}; !slices.Equal(candidateHashes(got), want) {
		t.Fatalf("got %v, want %v", candidateHashes(got), want)
	}

	// The tail of the ordering is reached by walking windows.
	offsets = nil
	cur = domain.Cursor{SortTime: at(2)}
	got, err = planAggregate(context.Background(), domain.SortRecentlyCurated, rank, PlanRequest{Cursor: &cur, PageSize: 3})
	if err != nil {
		t.Fatalf("planAggregate: %v", err)
	}
	if want := []string{"c01", "c00"}; !slices.Equal(candidateHashes(got), want) {
		t.Fatalf("got %v, want %v", candidateHashes(got), want)
	}
	if !slices.Equal(offsets, []int{0}) {
		t.Errorf("offsets = %v, want a single short window", offsets)
	}
}

func TestPlanAggregateSkipsTiesBeforeCursor(t *testing.T) {
	// Eight rows share the cursor's primary key, more than one window.
	var all []domain.Candidate
	for i := 7; i >= 0; i-- {
		all = append(all, domain.Candidate{Hash: fmt.Sprintf("t%d", i), SortTime: at(5), CreatedAt: at(1)})
	}
	all = append(all, domain.Candidate{Hash: "older", SortTime: at(4), CreatedAt: at(1)})

	var offsets []int
	rank := func(_ context.Context, _ domain.CandidateFilter, _ *time.Time, limit, offset int) ([]domain.Candidate, error) {
		offsets = append(offsets, offset)
		if offset >= len(all) {
			return nil, nil
		}
		return all[offset:min(offset+limit, len(all))], nil
	}

	cur := domain.Cursor{SortTime: at(5), Exact: true, CreatedAt: at(1), Hash: "t2"}
	got, err := planAggregate(context.Background(), domain.SortRecentReply, rank, PlanRequest{Cursor: &cur, PageSize: 2})
	if err != nil {
		t.Fatalf("planAggregate: %v", err)
	}
	if want := []string{"t1", "t0", "older"}; !slices.Equal(candidateHashes(got), want) {
		t.Fatalf("got %v, want %v", candidateHashes(got), want)
	}
	if !slices.Equal(offsets, []int{0, 4, 8}) {
		t.Errorf("offsets = %v, want [0 4 8]", offsets)
	}
}

func TestPlanAggregateError(t *testing.T) {
	boom := errors.New("boom")
	rank := func(context.Context, domain.CandidateFilter, *time.Time, int, int) ([]domain.Candidate, error) {
		return nil, boom
	}
	if _, err := planAggregate(context.Background(), domain.SortRecentReply, rank, PlanRequest{PageSize: 2}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
