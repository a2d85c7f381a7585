// Package upstream is a client for the social protocol's hosted read API.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

const (
	defaultBaseURL = "https://api.neynar.com"
	defaultTimeout = 10 * time.Second

	// maxBatch is the most hashes one bulk cast request accepts.
	maxBatch = 100
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string

	// RatePerSecond caps outbound requests; zero disables the limit.
	RatePerSecond float64

	// Timeout bounds each call, including time spent waiting on the limiter.
	Timeout time.Duration

	HTTPClient *http.Client
}

// Client implements domain.Upstream.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a Client. An empty BaseURL selects the public API.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		limiter:    limiter,
		httpClient: cfg.HTTPClient,
	}
}

// FetchItems fetches casts by hash. Unknown hashes are omitted from the
// result.
func (c *Client) FetchItems(ctx context.Context, hashes []string) ([]domain.ContentItem, error) {
	var out []domain.ContentItem
	for start := 0; start < len(hashes); start += maxBatch {
		end := min(start+maxBatch, len(hashes))

		q := url.Values{}
		q.Set("casts", strings.Join(hashes[start:end], ","))

		var resp castsResponse
		if err := c.get(ctx, "/v2/farcaster/casts", q, &resp); err != nil {
			return nil, fmt.Errorf("fetch casts (count=%d): %w", end-start, err)
		}
		items, err := toItems(resp.Result.Casts)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// FetchFeed fetches a pre-ranked feed page.
func (c *Client) FetchFeed(ctx context.Context, req domain.UpstreamFeedRequest) (*domain.UpstreamFeedPage, error) {
	q := url.Values{}
	switch req.FeedType {
	case domain.FeedScoped:
		q.Set("feed_type", "filter")
		q.Set("filter_type", "fids")
		q.Set("fids", strings.Join(req.Scope, ","))
	case domain.FeedTrending:
		q.Set("feed_type", "filter")
		q.Set("filter_type", "global_trending")
	case domain.FeedPersonalized:
		q.Set("feed_type", "following")
		if len(req.Scope) > 0 {
			q.Set("fid", req.Scope[0])
		}
	default:
		return nil, fmt.Errorf("feed type %q is not served upstream", req.FeedType)
	}
	if req.ViewerID != "" {
		q.Set("viewer_fid", req.ViewerID)
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}

	var resp feedResponse
	if err := c.get(ctx, "/v2/farcaster/feed", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch %s feed: %w", req.FeedType, err)
	}
	items, err := toItems(resp.Casts)
	if err != nil {
		return nil, err
	}
	return &domain.UpstreamFeedPage{Items: items, NextCursor: resp.Next.Cursor}, nil
}

// LookupCast returns the cast with the given hash using a depth-0
// conversation lookup, or nil if the upstream does not know it.
func (c *Client) LookupCast(ctx context.Context, hash string) (*domain.ContentItem, error) {
	q := url.Values{}
	q.Set("identifier", hash)
	q.Set("type", "hash")
	q.Set("reply_depth", "0")

	var resp conversationResponse
	err := c.get(ctx, "/v2/farcaster/cast/conversation", q, &resp)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup cast %s: %w", hash, err)
	}
	if len(resp.Conversation.Cast) == 0 || string(resp.Conversation.Cast) == "null" {
		return nil, nil
	}

	it, err := toItem(resp.Conversation.Cast)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 256))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func toItems(raws []json.RawMessage) ([]domain.ContentItem, error) {
	out := make([]domain.ContentItem, 0, len(raws))
	for _, raw := range raws {
		it, err := toItem(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// toItem maps an upstream cast to a ContentItem, keeping the raw JSON as
// its payload.
func toItem(raw json.RawMessage) (domain.ContentItem, error) {
	var p domain.CastPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.ContentItem{}, fmt.Errorf("decode cast: %w", err)
	}
	if p.Hash == "" {
		return domain.ContentItem{}, errors.New("decode cast: missing hash")
	}

	created, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil && p.Timestamp != "" {
		return domain.ContentItem{}, fmt.Errorf("decode cast %s: timestamp: %w", p.Hash, err)
	}

	return domain.ContentItem{
		Hash:           p.Hash,
		AuthorID:       p.Author.FID.String(),
		AuthorUsername: p.Author.Username,
		Text:           p.Text,
		ParentHash:     p.ParentHash,
		Likes:          p.Reactions.LikesCount,
		Recasts:        p.Reactions.RecastsCount,
		Replies:        p.Replies.Count,
		CreatedAt:      created.UTC(),
		Payload:        raw,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type castsResponse struct {
	Result struct {
		Casts []json.RawMessage `json:"casts"`
	} `json:"result"`
}

type feedResponse struct {
	Casts []json.RawMessage `json:"casts"`
	Next  struct {
		Cursor string `json:"cursor"`
	} `json:"next"`
}

type conversationResponse struct {
	Conversation struct {
		Cast json.RawMessage `json:"cast"`
	} `json:"conversation"`
}
