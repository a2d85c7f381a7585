package feed

import (
	"strings"
	"unicode/utf8"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

// FilterConfig holds the service-wide filter settings.
type FilterConfig struct {
	// DefaultBlockedAuthors are always excluded, whatever the viewer's
	// preferences. Entries match author ids or usernames.
	DefaultBlockedAuthors []string

	// BotAuthors are excluded when the viewer hides bots.
	BotAuthors []string

	// MinTextLength applies when the viewer hides short items without
	// setting a length of their own.
	MinTextLength int
}

// Predicate is one stage of a FilterChain.
type Predicate struct {
	Name   string
	Reject func(it *domain.EnrichedItem) bool
}

// FilterChain is an ordered list of predicates. An item is dropped by the
// first predicate that rejects it.
type FilterChain []Predicate

// BuildFilterChain assembles the predicates active for one request.
func BuildFilterChain(feedType domain.FeedType, prefs domain.Preferences, cfg FilterConfig) FilterChain {
	var chain FilterChain

	if p, ok := botPredicate(prefs, cfg); ok {
		chain = append(chain, p)
	}

	if prefs.HideShort {
		minLen := prefs.MinTextLength
		if minLen <= 0 {
			minLen = cfg.MinTextLength
		}
		if minLen > 0 {
			chain = append(chain, Predicate{
				Name: "length",
				Reject: func(it *domain.EnrichedItem) bool {
					return utf8.RuneCountInString(strings.TrimSpace(it.Text)) < minLen
				},
			})
		}
	}

	if prefs.HideKeywords {
		keywords := make([]string, 0, len(prefs.Keywords))
		for _, k := range prefs.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords = append(keywords, k)
			}
		}
		if len(keywords) > 0 {
			chain = append(chain, Predicate{
				Name: "keyword",
				Reject: func(it *domain.EnrichedItem) bool {
					text := strings.ToLower(it.Text)
					for _, k := range keywords {
						if strings.Contains(text, k) {
							return true
						}
					}
					return false
				},
			})
		}
	}

	if prefs.HideRecasts {
		chain = append(chain, Predicate{
			Name:   "recast",
			Reject: func(it *domain.EnrichedItem) bool { return it.IsRecast },
		})
	}

	// Curated items were vetted by a curator; the author score floor only
	// applies to feeds ranked elsewhere.
	if feedType != domain.FeedCurated && prefs.MinUserScore > 0 {
		floor := prefs.MinUserScore
		chain = append(chain, Predicate{
			Name:   "user_score",
			Reject: func(it *domain.EnrichedItem) bool { return it.AuthorScore < floor },
		})
	}

	return chain
}

func botPredicate(prefs domain.Preferences, cfg FilterConfig) (Predicate, bool) {
	blocked := authorSet(cfg.DefaultBlockedAuthors)
	for k := range authorSet(prefs.BlockedAuthors) {
		blocked[k] = struct{}{}
	}
	if prefs.HideBots {
		allowed := authorSet(prefs.AllowedAuthors)
		for k := range authorSet(cfg.BotAuthors) {
			if _, ok := allowed[k]; !ok {
				blocked[k] = struct{}{}
			}
		}
	}
	if len(blocked) == 0 {
		return Predicate{}, false
	}

	return Predicate{
		Name: "bot",
		Reject: func(it *domain.EnrichedItem) bool {
			if _, ok := blocked[strings.ToLower(it.AuthorID)]; ok && it.AuthorID != "" {
				return true
			}
			_, ok := blocked[strings.ToLower(it.AuthorUsername)]
			return ok && it.AuthorUsername != ""
		},
	}, true
}

func authorSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

// Apply returns the items that pass every predicate, preserving order,
// and the number of items each predicate dropped.
func (c FilterChain) Apply(items []domain.EnrichedItem) ([]domain.EnrichedItem, map[string]int) {
	dropped := make(map[string]int)
	out := make([]domain.EnrichedItem, 0, len(items))
	for i := range items {
		if name, ok := c.rejectedBy(&items[i]); ok {
			dropped[name]++
			continue
		}
		out = append(out, items[i])
	}
	return out, dropped
}

func (c FilterChain) rejectedBy(it *domain.EnrichedItem) (string, bool) {
	for _, p := range c {
		if p.Reject(it) {
			return p.Name, true
		}
	}
	return "", false
}

// Names lists the active predicates in order.
func (c FilterChain) Names() []string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name
	}
	return names
}
