package provider

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	redditBaseURL     = "https://www.reddit.com"
	defaultRedditUA   = "blockminds/1.0"
	defaultRedditSize = 100
)

// RedditProvider searches a set of subreddits, newest first.
type RedditProvider struct {
	baseURL    string
	userAgent  string
	subreddits []string
	fetcher    *Fetcher
	tracer     trace.Tracer
}

type RedditOptions struct {
	BaseURL           string
	UserAgent         string
	Subreddits        []string
	RequestsPerSecond float64
	Retry             RetryPolicy
}

func NewRedditProvider(tracer trace.Tracer, logger zerolog.Logger, opts RedditOptions) *RedditProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = redditBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultRedditUA
	}
	if len(opts.Subreddits) == 0 {
		opts.Subreddits = []string{"cryptocurrency", "CryptoMarkets"}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	return &RedditProvider{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		subreddits: opts.Subreddits,
		fetcher:    NewFetcher("reddit", &http.Client{Timeout: 20 * time.Second}, limiter, opts.Retry, tracer, logger),
		tracer:     tracer,
	}
}

func (p *RedditProvider) Name() string { return "reddit" }

// Search returns one page of posts matching query. cursor is Reddit's "after" token.
func (p *RedditProvider) Search(ctx context.Context, query string, limit int, cursor string) (SearchPage, error) {
	ctx, span := p.tracer.Start(ctx, "reddit.search")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	query = strings.TrimSpace(query)
	if query == "" {
		return SearchPage{}, fmt.Errorf("query is required")
	}
	if limit <= 0 || limit > defaultRedditSize {
		limit = defaultRedditSize
	}

	params := url.Values{
		"q":           {query},
		"restrict_sr": {"1"},
		"sort":        {"new"},
		"t":           {"all"},
		"limit":       {strconv.Itoa(limit)},
		"raw_json":    {"1"},
	}
	if cursor != "" {
		params.Set("after", cursor)
	}

	var payload struct {
		Data struct {
			After    string `json:"after"`
			Children []struct {
				Data struct {
					ID          string  `json:"id"`
					Subreddit   string  `json:"subreddit"`
					Title       string  `json:"title"`
					SelfText    string  `json:"selftext"`
					Author      string  `json:"author"`
					CreatedUTC  float64 `json:"created_utc"`
					Permalink   string  `json:"permalink"`
					URL         string  `json:"url"`
					Thumbnail   string  `json:"thumbnail"`
					Score       float64 `json:"score"`
					NumComments float64 `json:"num_comments"`
					Preview     struct {
						Images []struct {
							Source struct {
								URL string `json:"url"`
							} `json:"source"`
						} `json:"images"`
					} `json:"preview"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	err := p.fetcher.GetJSON(ctx, Request{
		URL:      fmt.Sprintf("%s/r/%s/search.json", p.baseURL, strings.Join(p.subreddits, "+")),
		Params:   params,
		Headers:  map[string]string{"User-Agent": p.userAgent},
		Validate: RequireKeys("data"),
	}, &payload)
	if err != nil {
		return SearchPage{}, err
	}

	items := make([]ContentItem, 0, len(payload.Data.Children))
	for _, row := range payload.Data.Children {
		data := row.Data
		if strings.TrimSpace(data.ID) == "" || strings.TrimSpace(data.Title) == "" {
			continue
		}
		itemURL := strings.TrimSpace(data.URL)
		if permalink := strings.TrimSpace(data.Permalink); permalink != "" {
			itemURL = p.baseURL + permalink
		}
		items = append(items, ContentItem{
			Source:       "reddit",
			SourceItemID: data.ID,
			Title:        sanitizeText(data.Title, 300),
			URL:          itemURL,
			Excerpt:      sanitizeText(data.SelfText, 420),
			Author:       sanitizeText(data.Author, 120),
			ImageURL:     redditImage(data.Thumbnail, data.Preview.Images),
			PublishedAt:  time.Unix(int64(data.CreatedUTC), 0).UTC(),
			Upvotes:      data.Score,
			Comments:     data.NumComments,
		})
	}

	next := ""
	if len(payload.Data.Children) > 0 {
		next = payload.Data.After
	}
	return SearchPage{Items: items, Next: next}, nil
}

func redditImage(thumbnail string, previews []struct {
	Source struct {
		URL string `json:"url"`
	} `json:"source"`
}) string {
	if len(previews) > 0 && previews[0].Source.URL != "" {
		return html.UnescapeString(previews[0].Source.URL)
	}
	if strings.HasPrefix(thumbnail, "http") {
		return thumbnail
	}
	return ""
}
