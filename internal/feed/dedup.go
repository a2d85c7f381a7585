package feed

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Dedup coalesces concurrent identical calls into one execution. The
// shared call runs detached from the first caller's cancellation; each
// caller still stops waiting when its own context ends.
type Dedup struct {
	group singleflight.Group
}

// NewDedup returns an empty Dedup.
func NewDedup() *Dedup {
	return &Dedup{}
}

// Do runs fn once per key among concurrent callers. shared reports whether
// the result was delivered to more than one caller.
func (d *Dedup) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (v any, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// dedupe is the typed form of Dedup.Do.
func dedupe[T any](ctx context.Context, d *Dedup, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, _, err := d.Do(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("dedup %s: unexpected result type %T", key, v)
	}
	return t, nil
}

// DedupKey joins a call kind and its discriminating parts.
func DedupKey(kind string, parts ...string) string {
	return kind + "|" + strings.Join(parts, "|")
}
