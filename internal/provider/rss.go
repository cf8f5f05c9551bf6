package provider

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RSSProvider walks a fixed list of feeds and keeps items mentioning the query.
// The cursor is the index of the next feed to read.
type RSSProvider struct {
	feeds   []string
	fetcher *Fetcher
	tracer  trace.Tracer
	logger  zerolog.Logger
	now     func() time.Time
}

// rssFeedItems caps how many entries of one feed are considered for matching.
const rssFeedItems = 100

func NewRSSProvider(tracer trace.Tracer, logger zerolog.Logger, feeds []string, retry RetryPolicy) *RSSProvider {
	fetcher := NewFetcher("rss", &http.Client{Timeout: 20 * time.Second}, nil, retry, tracer, logger)
	fetcher.SetHeader("Accept", "application/rss+xml, application/xml, text/xml")
	return &RSSProvider{
		feeds:   feeds,
		fetcher: fetcher,
		tracer:  tracer,
		logger:  logger.With().Str("provider", "rss").Logger(),
		now:     time.Now,
	}
}

func (p *RSSProvider) Name() string { return "rss" }

// Search reads feeds from the cursor onwards until one has entries matching
// query, and returns that feed's matches. A feed that fails is skipped; the
// error is returned only when every feed read failed. limit is ignored since
// matching happens after the fetch.
func (p *RSSProvider) Search(ctx context.Context, query string, limit int, cursor string) (SearchPage, error) {
	ctx, span := p.tracer.Start(ctx, "rss.search")
	defer span.End()

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return SearchPage{}, fmt.Errorf("query is required")
	}
	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return SearchPage{}, fmt.Errorf("invalid rss cursor %q", cursor)
		}
		idx = n
	}

	var failures []error
	read := 0
	for ; idx < len(p.feeds); idx++ {
		if err := ctx.Err(); err != nil {
			return SearchPage{}, err
		}
		feedURL := p.feeds[idx]
		read++
		items, err := p.FetchFeed(ctx, feedURL, rssFeedItems)
		if err != nil {
			p.logger.Warn().Str("feed_url", feedURL).Err(err).Msg("feed skipped")
			failures = append(failures, fmt.Errorf("%s: %w", feedURL, err))
			continue
		}
		matched := make([]ContentItem, 0, len(items))
		for _, item := range items {
			text := strings.ToLower(item.Title + " " + item.Excerpt)
			if strings.Contains(text, query) {
				matched = append(matched, item)
			}
		}
		if len(matched) == 0 {
			continue
		}
		span.SetAttributes(attribute.String("feed_url", feedURL), attribute.Int("matched", len(matched)))
		next := ""
		if idx+1 < len(p.feeds) {
			next = strconv.Itoa(idx + 1)
		}
		return SearchPage{Items: matched, Next: next}, nil
	}

	if read > 0 && len(failures) == read {
		return SearchPage{}, errors.Join(failures...)
	}
	return SearchPage{}, nil
}

// FetchFeed reads up to maxItems entries from one RSS 2.0 feed.
func (p *RSSProvider) FetchFeed(ctx context.Context, feedURL string, maxItems int) ([]ContentItem, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	if maxItems <= 0 {
		maxItems = 40
	}

	body, err := p.fetcher.Get(ctx, Request{URL: feedURL})
	if err != nil {
		return nil, err
	}

	var rss struct {
		Channel struct {
			Title string `xml:"title"`
			Items []struct {
				Title       string `xml:"title"`
				Link        string `xml:"link"`
				Description string `xml:"description"`
				GUID        string `xml:"guid"`
				PubDate     string `xml:"pubDate"`
				Creator     string `xml:"creator"`
				Author      string `xml:"author"`
				Enclosure   struct {
					URL  string `xml:"url,attr"`
					Type string `xml:"type,attr"`
				} `xml:"enclosure"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal(body, &rss); err != nil {
		return nil, fmt.Errorf("decode rss payload: %w", err)
	}

	items := make([]ContentItem, 0, min(maxItems, len(rss.Channel.Items)))
	for i, row := range rss.Channel.Items {
		if i >= maxItems {
			break
		}
		title := sanitizeText(row.Title, 300)
		if title == "" {
			continue
		}
		publishedAt := parseFeedDate(row.PubDate)
		if publishedAt.IsZero() {
			publishedAt = p.now().UTC()
		}
		author := sanitizeText(row.Creator, 120)
		if author == "" {
			author = sanitizeText(row.Author, 120)
		}
		sourceID := sanitizeText(row.GUID, 250)
		if sourceID == "" {
			sourceID = sanitizeText(row.Link, 250)
		}
		if sourceID == "" {
			sourceID = fallbackID(title, publishedAt.Format(time.RFC3339Nano))
		}
		image := ""
		if strings.HasPrefix(row.Enclosure.Type, "image/") {
			image = row.Enclosure.URL
		}

		items = append(items, ContentItem{
			Source:       "rss",
			SourceItemID: sourceID,
			Title:        title,
			URL:          sanitizeText(row.Link, 500),
			Excerpt:      sanitizeText(htmlStrip(row.Description), 420),
			Author:       author,
			ImageURL:     image,
			PublishedAt:  publishedAt,
		})
	}

	return items, nil
}
