// Package prefs resolves curator roles and viewer content preferences.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

// Static serves a fixed curator list and the same preferences to every
// viewer. It backs deployments without Redis and the CLI.
type Static struct {
	Curators []string
	Defaults domain.Preferences
}

func (s *Static) DefaultCurators(ctx context.Context) ([]string, error) {
	return slices.Clone(s.Curators), nil
}

func (s *Static) ViewerPreferences(ctx context.Context, viewerID string) (domain.Preferences, error) {
	return s.Defaults, nil
}

// NewRedisClient creates a Redis client from connection settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

const defaultCuratorsKey = "curators:default"

func viewerKey(viewerID string) string {
	return fmt.Sprintf("prefs:viewer:%s", viewerID)
}

// RedisResolver reads curator roles from the curators:default set and
// viewer preferences from JSON documents under prefs:viewer:<id>.
type RedisResolver struct {
	rdb *redis.Client
}

func NewRedisResolver(rdb *redis.Client) *RedisResolver {
	return &RedisResolver{rdb: rdb}
}

func (r *RedisResolver) DefaultCurators(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, defaultCuratorsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reading curator role: %w", err)
	}
	// Set members come back unordered.
	slices.Sort(ids)
	return ids, nil
}

func (r *RedisResolver) ViewerPreferences(ctx context.Context, viewerID string) (domain.Preferences, error) {
	var p domain.Preferences
	if strings.TrimSpace(viewerID) == "" {
		return p, nil
	}
	b, err := r.rdb.Get(ctx, viewerKey(viewerID)).Bytes()
	if err == redis.Nil {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("reading viewer preferences: %w", err)
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.Preferences{}, fmt.Errorf("decoding viewer preferences: %w", err)
	}
	return p, nil
}

// SetCurators replaces the curator role set.
func (r *RedisResolver) SetCurators(ctx context.Context, ids []string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, defaultCuratorsKey)
	if len(ids) > 0 {
		members := make([]any, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe.SAdd(ctx, defaultCuratorsKey, members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SetViewerPreferences stores a viewer's preferences.
func (r *RedisResolver) SetViewerPreferences(ctx context.Context, viewerID string, p domain.Preferences) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, viewerKey(viewerID), b, 0).Err()
}
