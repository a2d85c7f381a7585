package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackmichael/curated-feeds/internal/domain"
	"github.com/blackmichael/curated-feeds/internal/sqlstore"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, "sqlite::memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

type seedItem struct {
	hash      string
	author    string
	text      string
	quality   float64
	category  string
	created   time.Time
	parent    string
	quotes    []string
	curatedBy map[string]time.Time
}

func seed(t *testing.T, store *sqlstore.Store, items ...seedItem) {
	t.Helper()
	ctx := context.Background()
	for _, s := range items {
		author := s.author
		if author == "" {
			author = "author-" + s.hash
		}
		text := s.text
		if text == "" {
			text = "a perfectly ordinary cast " + s.hash
		}
		it := &domain.ContentItem{
			Hash:           s.hash,
			AuthorID:       author,
			AuthorUsername: author,
			Text:           text,
			ParentHash:     s.parent,
			QualityScore:   s.quality,
			Category:       s.category,
			CreatedAt:      s.created,
			Payload:        payloadFor(s.hash, s.parent, s.quotes...),
		}
		if err := store.SaveItem(ctx, it); err != nil {
			t.Fatalf("save item %s: %v", s.hash, err)
		}
		curated := s.curatedBy
		if curated == nil {
			curated = map[string]time.Time{"curator-1": s.created.Add(time.Minute)}
		}
		for curator, when := range curated {
			c := &domain.Curation{ItemHash: s.hash, CuratorID: curator, CuratedAt: when}
			if err := store.CreateCuration(ctx, c); err != nil {
				t.Fatalf("curate %s: %v", s.hash, err)
			}
		}
	}
}

func seedReply(t *testing.T, store *sqlstore.Store, hash, root string, created time.Time) {
	t.Helper()
	r := &domain.ReplyRecord{
		Hash:        hash,
		CuratedHash: root,
		ParentHash:  root,
		AuthorID:    "replier",
		Text:        "reply " + hash,
		CreatedAt:   created,
	}
	if err := store.SaveReply(context.Background(), r); err != nil {
		t.Fatalf("save reply %s: %v", hash, err)
	}
}

func payloadFor(hash, parent string, quotes ...string) json.RawMessage {
	p := domain.CastPayload{Hash: hash, ParentHash: parent}
	for _, q := range quotes {
		p.Embeds = append(p.Embeds, domain.CastEmbed{CastID: &domain.CastRef{Hash: q}})
	}
	b, _ := json.Marshal(p)
	return b
}

func hashesOf(items []domain.EnrichedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Hash
	}
	return out
}

func candidateHashes(cs []domain.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Hash
	}
	return out
}

type staticPrefs struct {
	curators []string
	prefs    map[string]domain.Preferences
	err      error
	calls    atomic.Int32
}

func (p *staticPrefs) DefaultCurators(context.Context) ([]string, error) {
	p.calls.Add(1)
	return p.curators, p.err
}

func (p *staticPrefs) ViewerPreferences(_ context.Context, viewerID string) (domain.Preferences, error) {
	return p.prefs[viewerID], nil
}

// fakeUpstream is an in-memory domain.Upstream. When gate is non-nil every
// call blocks until it is closed.
type fakeUpstream struct {
	mu    sync.Mutex
	casts map[string]domain.ContentItem
	feed  *domain.UpstreamFeedPage
	err   error
	gate  chan struct{}

	fetchCalls  atomic.Int32
	feedCalls   atomic.Int32
	lookupCalls atomic.Int32
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{casts: make(map[string]domain.ContentItem)}
}

func (u *fakeUpstream) add(items ...domain.ContentItem) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, it := range items {
		u.casts[it.Hash] = it
	}
}

func (u *fakeUpstream) wait(ctx context.Context) error {
	if u.gate == nil {
		return nil
	}
	select {
	case <-u.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *fakeUpstream) FetchItems(ctx context.Context, hashes []string) ([]domain.ContentItem, error) {
	u.fetchCalls.Add(1)
	if err := u.wait(ctx); err != nil {
		return nil, err
	}
	if u.err != nil {
		return nil, u.err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []domain.ContentItem
	for _, h := range hashes {
		if it, ok := u.casts[h]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (u *fakeUpstream) FetchFeed(ctx context.Context, _ domain.UpstreamFeedRequest) (*domain.UpstreamFeedPage, error) {
	u.feedCalls.Add(1)
	if err := u.wait(ctx); err != nil {
		return nil, err
	}
	if u.err != nil {
		return nil, u.err
	}
	return u.feed, nil
}

func (u *fakeUpstream) LookupCast(ctx context.Context, hash string) (*domain.ContentItem, error) {
	u.lookupCalls.Add(1)
	if err := u.wait(ctx); err != nil {
		return nil, err
	}
	if u.err != nil {
		return nil, u.err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if it, ok := u.casts[hash]; ok {
		return &it, nil
	}
	return nil, nil
}

var errUpstreamDown = errors.New("upstream down")
