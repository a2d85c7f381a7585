package httpserver

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/feeds"

	"github.com/blackmichael/curated-feeds/internal/domain"
)

const castLinkFormat = "https://warpcast.com/~/conversations/%s"

// renderRSS returns RSS 2.0 XML for one feed page.
func renderRSS(hostname string, q domain.FeedQuery, page *domain.FeedPage, now time.Time) ([]byte, error) {
	self := url.URL{Scheme: "https", Host: hostname, Path: "/api/feed"}
	params := url.Values{}
	params.Set("feedType", string(q.FeedType))
	if q.FeedType == domain.FeedCurated || q.FeedType == "" {
		params.Set("sort", string(q.SortMode))
	}
	self.RawQuery = params.Encode()

	feed := &feeds.Feed{
		Title:       feedTitle(q),
		Link:        &feeds.Link{Href: self.String()},
		Description: "Casts selected by curators",
		Created:     now,
	}

	items := make([]*feeds.Item, 0, len(page.Items))
	for _, it := range page.Items {
		link := fmt.Sprintf(castLinkFormat, it.Hash)
		content := it.Text
		if it.Parent != nil {
			content = fmt.Sprintf("In reply to @%s: %s\n\n%s", it.Parent.AuthorUsername, it.Parent.Text, it.Text)
		}
		items = append(items, &feeds.Item{
			Id:          link,
			Title:       itemTitle(it),
			Link:        &feeds.Link{Href: link},
			Author:      &feeds.Author{Name: it.AuthorUsername},
			Description: it.Text,
			Content:     content,
			Created:     it.CreatedAt,
		})
	}
	feed.Items = items

	rssFeed := (&feeds.Rss{Feed: feed}).RssFeed()
	body, err := xml.MarshalIndent(rssFeed.FeedXml(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func feedTitle(q domain.FeedQuery) string {
	if q.FeedType == domain.FeedCurated || q.FeedType == "" {
		return fmt.Sprintf("Curated casts (%s)", strings.ReplaceAll(string(q.SortMode), "_", " "))
	}
	return fmt.Sprintf("%s casts", strings.ToUpper(string(q.FeedType[:1]))+string(q.FeedType[1:]))
}

func itemTitle(it domain.EnrichedItem) string {
	text := strings.Join(strings.Fields(it.Text), " ")
	if text == "" {
		return "@" + it.AuthorUsername
	}
	const maxTitle = 80
	if utf8.RuneCountInString(text) <= maxTitle {
		return text
	}
	r := []rune(text)
	return string(r[:maxTitle-3]) + "..."
}
