package httpserver

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/blackmichael/curated-feeds/internal/domain"
	"github.com/blackmichael/curated-feeds/internal/errmodel"
)

// parseFeedQuery maps query parameters onto a FeedQuery. Absent
// parameters keep their zero value so the service applies its defaults.
func parseFeedQuery(v url.Values) (domain.FeedQuery, error) {
	var q domain.FeedQuery

	ft, err := domain.ParseFeedType(v.Get("feedType"))
	if err != nil {
		return q, errmodel.Validation("invalid_feed_type", err.Error(), map[string]any{"feedType": v.Get("feedType")})
	}
	q.FeedType = ft

	mode, err := domain.ParseSortMode(v.Get("sort"))
	if err != nil {
		return q, errmodel.Validation("invalid_sort", err.Error(), map[string]any{"sort": v.Get("sort")})
	}
	q.SortMode = mode

	if l := v.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			return q, errmodel.Validation("invalid_limit", "limit must be an integer", map[string]any{"limit": l})
		}
		q.PageSize = n
	}

	if s := v.Get("minQuality"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, errmodel.Validation("invalid_min_quality", "minQuality must be a number", map[string]any{"minQuality": s})
		}
		q.QualityFloor = &f
	}

	q.Cursor = v.Get("cursor")
	q.ViewerID = strings.TrimSpace(v.Get("viewer"))
	q.CuratorScope = splitList(v["curators"])
	q.Categories = splitList(v["categories"])

	flags := []struct {
		name string
		dst  **bool
	}{
		{"hideBots", &q.Overrides.HideBots},
		{"hideShort", &q.Overrides.HideShort},
		{"hideKeywords", &q.Overrides.HideKeywords},
		{"hideRecasts", &q.Overrides.HideRecasts},
	}
	for _, f := range flags {
		s := v.Get(f.name)
		if s == "" {
			continue
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, errmodel.Validation("invalid_flag", f.name+" must be a boolean", map[string]any{f.name: s})
		}
		*f.dst = &b
	}

	return q, nil
}

// splitList accepts both repeated parameters and comma lists.
func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
