package prefs

import (
	"context"
	"slices"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

func TestStaticResolver(t *testing.T) {
	s := &Static{
		Curators: []string{"1", "2"},
		Defaults: domain.Preferences{HideBots: true},
	}

	got, err := s.DefaultCurators(context.Background())
	if err != nil {
		t.Fatalf("DefaultCurators: %v", err)
	}
	if !slices.Equal(got, []string{"1", "2"}) {
		t.Fatalf("got %v", got)
	}
	got[0] = "mutated"
	if s.Curators[0] != "1" {
		t.Fatal("caller mutation leaked into the resolver")
	}

	p, err := s.ViewerPreferences(context.Background(), "anyone")
	if err != nil {
		t.Fatalf("ViewerPreferences: %v", err)
	}
	if !p.HideBots {
		t.Error("expected default preferences")
	}
}

func TestViewerKey(t *testing.T) {
	if got := viewerKey("42"); got != "prefs:viewer:42" {
		t.Fatalf("viewerKey = %q", got)
	}
}

func TestRedisResolverBlankViewerSkipsLookup(t *testing.T) {
	// The client points nowhere; a blank viewer must not touch it.
	rdb := NewRedisClient("127.0.0.1:1", "", 0)
	defer rdb.Close()
	r := NewRedisResolver(rdb)
	p, err := r.ViewerPreferences(context.Background(), " ")
	if err != nil {
		t.Fatalf("ViewerPreferences: %v", err)
	}
	if p.HideBots || len(p.BlockedAuthors) != 0 {
		t.Fatalf("expected zero preferences, got %+v", p)
	}
}

func newMiniResolver(t *testing.T) (*miniredis.Miniredis, *RedisResolver) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { rdb.Close() })
	return mr, NewRedisResolver(rdb)
}

func TestRedisResolverDefaultCurators(t *testing.T) {
	tests := []struct {
		name    string
		members []string
		want    []string
	}{
		{name: "sorted", members: []string{"30", "10", "20"}, want: []string{"10", "20", "30"}},
		{name: "single", members: []string{"7"}, want: []string{"7"}},
		{name: "missing key", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, r := newMiniResolver(t)
			if len(tt.members) > 0 {
				if _, err := mr.SAdd(defaultCuratorsKey, tt.members...); err != nil {
					t.Fatalf("SAdd: %v", err)
				}
			}
			got, err := r.DefaultCurators(context.Background())
			if err != nil {
				t.Fatalf("DefaultCurators: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRedisResolverViewerPreferences(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		want    domain.Preferences
		wantErr bool
	}{
		{name: "missing viewer", want: domain.Preferences{}},
		{
			name:   "stored",
			stored: `{"hideBots":true,"blockedAuthors":["9"],"minTextLength":12}`,
			want:   domain.Preferences{HideBots: true, BlockedAuthors: []string{"9"}, MinTextLength: 12},
		},
		{name: "malformed", stored: `{"hideBots":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, r := newMiniResolver(t)
			if tt.stored != "" {
				if err := mr.Set(viewerKey("42"), tt.stored); err != nil {
					t.Fatalf("Set: %v", err)
				}
			}
			got, err := r.ViewerPreferences(context.Background(), "42")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ViewerPreferences: %v", err)
			}
			if got.HideBots != tt.want.HideBots || got.MinTextLength != tt.want.MinTextLength ||
				!slices.Equal(got.BlockedAuthors, tt.want.BlockedAuthors) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRedisResolverSetCurators(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{name: "replace", ids: []string{"b", "a"}, want: []string{"a", "b"}},
		{name: "clear", ids: nil, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, r := newMiniResolver(t)
			if _, err := mr.SAdd(defaultCuratorsKey, "old-1", "old-2"); err != nil {
				t.Fatalf("SAdd: %v", err)
			}
			ctx := context.Background()
			if err := r.SetCurators(ctx, tt.ids); err != nil {
				t.Fatalf("SetCurators: %v", err)
			}
			got, err := r.DefaultCurators(ctx)
			if err != nil {
				t.Fatalf("DefaultCurators: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			if len(tt.want) == 0 && mr.Exists(defaultCuratorsKey) {
				t.Error("curator set still present after clearing")
			}
		})
	}
}

func TestRedisResolverSetViewerPreferences(t *testing.T) {
	mr, r := newMiniResolver(t)
	ctx := context.Background()
	want := domain.Preferences{HideShort: true, Keywords: []string{"gm"}, MinUserScore: 0.5}

	if err := r.SetViewerPreferences(ctx, "42", want); err != nil {
		t.Fatalf("SetViewerPreferences: %v", err)
	}
	if !mr.Exists(viewerKey("42")) {
		t.Fatal("preferences not written under the viewer key")
	}
	if ttl := mr.TTL(viewerKey("42")); ttl != 0 {
		t.Errorf("TTL = %v, want none", ttl)
	}
	got, err := r.ViewerPreferences(ctx, "42")
	if err != nil {
		t.Fatalf("ViewerPreferences: %v", err)
	}
	if !got.HideShort || got.MinUserScore != 0.5 || !slices.Equal(got.Keywords, want.Keywords) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
