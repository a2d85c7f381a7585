package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

const castJSON = `{
	"hash": "0xabc",
	"parent_hash": "0xparent",
	"author": {"fid": 194, "username": "rish", "score": 0.93},
	"text": "gm builders",
	"timestamp": "2025-03-01T12:00:00.000Z",
	"embeds": [{"cast_id": {"fid": 3, "hash": "0xquoted"}}],
	"reactions": {"likes_count": 12, "recasts_count": 3},
	"replies": {"count": 4}
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Timeout: time.Second})
}

func TestFetchItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/farcaster/casts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if got := r.URL.Query().Get("casts"); got != "0xabc,0xdef" {
			t.Errorf("casts = %q", got)
		}
		w.Write([]byte(`{"result":{"casts":[` + castJSON + `]}}`))
	})

	items, err := c.FetchItems(context.Background(), []string{"0xabc", "0xdef"})
	if err != nil {
		t.Fatalf("FetchItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	if it.Hash != "0xabc" || it.AuthorID != "194" || it.AuthorUsername != "rish" || it.ParentHash != "0xparent" {
		t.Errorf("unexpected item: %+v", it)
	}
	if it.Likes != 12 || it.Recasts != 3 || it.Replies != 4 {
		t.Errorf("counters = %d/%d/%d", it.Likes, it.Recasts, it.Replies)
	}
	if !it.CreatedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", it.CreatedAt)
	}
	p := domain.DecodePayload(it.Payload)
	if !p.IsQuote() || p.QuotedHashes()[0] != "0xquoted" || p.Author.Score != 0.93 {
		t.Errorf("payload not preserved: %+v", p)
	}
}

func TestFetchFeed(t *testing.T) {
	tests := []struct {
		req   domain.UpstreamFeedRequest
		query map[string]string
	}{
		{
			req:   domain.UpstreamFeedRequest{FeedType: domain.FeedScoped, Scope: []string{"1", "2"}, Limit: 10},
			query: map[string]string{"feed_type": "filter", "filter_type": "fids", "fids": "1,2", "limit": "10"},
		},
		{
			req:   domain.UpstreamFeedRequest{FeedType: domain.FeedTrending, Cursor: "abc"},
			query: map[string]string{"feed_type": "filter", "filter_type": "global_trending", "cursor": "abc"},
		},
		{
			req:   domain.UpstreamFeedRequest{FeedType: domain.FeedPersonalized, Scope: []string{"42"}, ViewerID: "42"},
			query: map[string]string{"feed_type": "following", "fid": "42", "viewer_fid": "42"},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.req.FeedType), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.query {
					if got := r.URL.Query().Get(k); got != v {
						t.Errorf("%s = %q, want %q", k, got, v)
					}
				}
				w.Write([]byte(`{"casts":[` + castJSON + `],"next":{"cursor":"next-page"}}`))
			})
			page, err := c.FetchFeed(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("FetchFeed: %v", err)
			}
			if len(page.Items) != 1 || page.NextCursor != "next-page" {
				t.Fatalf("unexpected page: %+v", page)
			}
		})
	}
}

func TestFetchFeedRejectsCurated(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	if _, err := c.FetchFeed(context.Background(), domain.UpstreamFeedRequest{FeedType: domain.FeedCurated}); err == nil {
		t.Fatal("expected error for curated feed")
	}
}

func TestLookupCast(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("type") != "hash" || q.Get("reply_depth") != "0" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("identifier") == "0xmissing" {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"conversation":{"cast":` + castJSON + `}}`))
	})

	it, err := c.LookupCast(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("LookupCast: %v", err)
	}
	if it == nil || it.Hash != "0xabc" {
		t.Fatalf("unexpected cast: %+v", it)
	}

	it, err = c.LookupCast(context.Background(), "0xmissing")
	if err != nil || it != nil {
		t.Fatalf("missing cast = %+v, %v; want nil, nil", it, err)
	}
}

func TestServerErrorsAreReturned(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	_, err := c.FetchItems(context.Background(), []string{"0xabc"})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v, want status 503", err)
	}
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})

	start := time.Now()
	if _, err := c.LookupCast(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("timeout was not applied")
	}
}

func TestRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"casts":[]}}`))
	}))
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, RatePerSecond: 20})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.FetchItems(context.Background(), []string{"0xabc"}); err != nil {
			t.Fatalf("FetchItems: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("3 calls at 20/s took %v", elapsed)
	}
}
