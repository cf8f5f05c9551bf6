package provider

import (
	"context"
	"errors"
	"fmt"
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

// NewsOptions configures one keyed news API.
type NewsOptions struct {
	BaseURL           string
	Keys              []string
	RequestsPerSecond float64
	Retry             RetryPolicy
}

func newNewsFetcher(name string, tracer trace.Tracer, logger zerolog.Logger, opts NewsOptions) *Fetcher {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	return NewFetcher(name, &http.Client{Timeout: 15 * time.Second}, limiter, opts.Retry, tracer, logger)
}

// ErrNoAPIKey is returned by keyed providers configured without any key.
var ErrNoAPIKey = errors.New("no api key configured")

// keyExhausted reports whether err means the key hit its quota or was refused.
func keyExhausted(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.StatusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden, http.StatusUpgradeRequired, http.StatusTooManyRequests:
		return true
	}
	return false
}

// Page-numbered APIs always use the same page size so that page n addresses
// the same rows whatever the caller still needs.
const (
	newsAPIPageSize       = 100
	contextualWebPageSize = 50
)

// NewsAPIProvider queries newsapi.org/v2/everything, rotating through its
// keys when one is rate limited. The cursor is "<key index>:<page>".
type NewsAPIProvider struct {
	baseURL string
	keys    []string
	fetcher *Fetcher
	tracer  trace.Tracer
	logger  zerolog.Logger
	now     func() time.Time
}

func NewNewsAPIProvider(tracer trace.Tracer, logger zerolog.Logger, opts NewsOptions) *NewsAPIProvider {
	return &NewsAPIProvider{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		keys:    opts.Keys,
		fetcher: newNewsFetcher("newsapi", tracer, logger, opts),
		tracer:  tracer,
		logger:  logger,
		now:     time.Now,
	}
}

func (p *NewsAPIProvider) Name() string { return "newsapi" }

func (p *NewsAPIProvider) Search(ctx context.Context, query string, limit int, cursor string) (SearchPage, error) {
	ctx, span := p.tracer.Start(ctx, "newsapi.search")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	if len(p.keys) == 0 {
		return SearchPage{}, ErrNoAPIKey
	}
	keyIdx, page, err := parseKeyCursor(cursor)
	if err != nil {
		return SearchPage{}, err
	}
	var payload struct {
		Status       string `json:"status"`
		TotalResults int    `json:"totalResults"`
		Articles     []struct {
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
			Author      string `json:"author"`
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			URLToImage  string `json:"urlToImage"`
			PublishedAt string `json:"publishedAt"`
		} `json:"articles"`
	}

	now := p.now().UTC()
	params := url.Values{
		"q":        {query},
		"from":     {now.AddDate(0, 0, -1).Format("2006-01-02")},
		"to":       {now.Format("2006-01-02")},
		"language": {"en"},
		"sortBy":   {"popularity"},
		"pageSize": {strconv.Itoa(newsAPIPageSize)},
		"page":     {strconv.Itoa(page)},
	}

	for ; keyIdx < len(p.keys); keyIdx++ {
		err = p.fetcher.GetJSON(ctx, Request{
			URL:      p.baseURL + "/everything",
			Params:   params,
			Headers:  map[string]string{"X-Api-Key": p.keys[keyIdx]},
			Validate: RequireKeys("articles"),
		}, &payload)
		if err == nil {
			break
		}
		if !keyExhausted(err) {
			return SearchPage{}, err
		}
		p.logger.Warn().Int("key_index", keyIdx).Err(err).Msg("newsapi key exhausted, rotating")
	}
	if err != nil {
		return SearchPage{}, fmt.Errorf("all newsapi keys exhausted: %w", err)
	}

	items := make([]ContentItem, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		title := sanitizeText(a.Title, 300)
		if title == "" || title == "[Removed]" {
			continue
		}
		items = append(items, ContentItem{
			Source:       "newsapi",
			SourceItemID: firstNonEmpty(a.URL, fallbackID(title, a.PublishedAt)),
			Title:        title,
			URL:          a.URL,
			Excerpt:      sanitizeText(htmlStrip(a.Description), 420),
			Author:       sanitizeText(firstNonEmpty(a.Author, a.Source.Name), 120),
			ImageURL:     a.URLToImage,
			PublishedAt:  parseFeedDate(a.PublishedAt),
		})
	}

	next := ""
	if len(payload.Articles) > 0 && page*newsAPIPageSize < payload.TotalResults {
		next = fmt.Sprintf("%d:%d", keyIdx, page+1)
	}
	return SearchPage{Items: items, Next: next}, nil
}

func parseKeyCursor(cursor string) (int, int, error) {
	if cursor == "" {
		return 0, 1, nil
	}
	keyPart, pagePart, ok := strings.Cut(cursor, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	key, err := strconv.Atoi(keyPart)
	if err != nil || key < 0 {
		return 0, 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	page, err := strconv.Atoi(pagePart)
	if err != nil || page < 1 {
		return 0, 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return key, page, nil
}

// NewsDataProvider queries newsdata.io. The cursor is the API's nextPage token.
type NewsDataProvider struct {
	baseURL string
	key     string
	fetcher *Fetcher
	tracer  trace.Tracer
}

func NewNewsDataProvider(tracer trace.Tracer, logger zerolog.Logger, opts NewsOptions) *NewsDataProvider {
	key := ""
	if len(opts.Keys) > 0 {
		key = opts.Keys[0]
	}
	return &NewsDataProvider{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		key:     key,
		fetcher: newNewsFetcher("newsdata", tracer, logger, opts),
		tracer:  tracer,
	}
}

func (p *NewsDataProvider) Name() string { return "newsdata" }

func (p *NewsDataProvider) Search(ctx context.Context, query string, limit int, cursor string) (SearchPage, error) {
	ctx, span := p.tracer.Start(ctx, "newsdata.search")
	defer span.End()

	if p.key == "" {
		return SearchPage{}, ErrNoAPIKey
	}
	params := url.Values{
		"apikey":   {p.key},
		"q":        {query},
		"language": {"en"},
		"category": {"business"},
	}
	if cursor != "" {
		params.Set("page", cursor)
	}

	var payload struct {
		Status   string `json:"status"`
		NextPage string `json:"nextPage"`
		Results  []struct {
			ArticleID   string   `json:"article_id"`
			Title       string   `json:"title"`
			Description string   `json:"description"`
			Link        string   `json:"link"`
			ImageURL    string   `json:"image_url"`
			SourceID    string   `json:"source_id"`
			PubDate     string   `json:"pubDate"`
			Creator     []string `json:"creator"`
		} `json:"results"`
	}
	if err := p.fetcher.GetJSON(ctx, Request{
		URL:      p.baseURL + "/news",
		Params:   params,
		Validate: RequireKeys("results"),
	}, &payload); err != nil {
		return SearchPage{}, err
	}

	items := make([]ContentItem, 0, len(payload.Results))
	for _, a := range payload.Results {
		title := sanitizeText(a.Title, 300)
		if title == "" {
			continue
		}
		author := a.SourceID
		if len(a.Creator) > 0 && a.Creator[0] != "" {
			author = a.Creator[0]
		}
		items = append(items, ContentItem{
			Source:       "newsdata",
			SourceItemID: firstNonEmpty(a.ArticleID, a.Link, fallbackID(title, a.PubDate)),
			Title:        title,
			URL:          a.Link,
			Excerpt:      sanitizeText(htmlStrip(a.Description), 420),
			Author:       sanitizeText(author, 120),
			ImageURL:     a.ImageURL,
			PublishedAt:  parseFeedDate(a.PubDate),
		})
	}

	next := ""
	if len(payload.Results) > 0 {
		next = payload.NextPage
	}
	return SearchPage{Items: items, Next: next}, nil
}

// MediaStackProvider queries api.mediastack.com. The cursor is the result offset.
type MediaStackProvider struct {
	baseURL string
	key     string
	fetcher *Fetcher
	tracer  trace.Tracer
}

func NewMediaStackProvider(tracer trace.Tracer, logger zerolog.Logger, opts NewsOptions) *MediaStackProvider {
	key := ""
	if len(opts.Keys) > 0 {
		key = opts.Keys[0]
	}
	return &MediaStackProvider{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		key:     key,
		fetcher: newNewsFetcher("mediastack", tracer, logger, opts),
		tracer:  tracer,
	}
}

func (p *MediaStackProvider) Name() string { return "mediastack" }

func (p *MediaStackProvider) Search(ctx context.Context, query string, limit int, cursor string) (SearchPage, error) {
	ctx, span := p.tracer.Start(ctx, "mediastack.search")
	defer span.End()

	if p.key == "" {
		return SearchPage{}, ErrNoAPIKey
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return SearchPage{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = n
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var payload struct {
		Pagination struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
			Count  int `json:"count"`
			Total  int `json:"total"`
		} `json:"pagination"`
		Data []struct {
			Author      string `json:"author"`
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			Source      string `json:"source"`
			Image       string `json:"image"`
			PublishedAt string `json:"published_at"`
		} `json:"data"`
	}
	if err := p.fetcher.GetJSON(ctx, Request{
		URL: p.baseURL + "/news",
		Params: url.Values{
			"access_key": {p.key},
			"keywords":   {query},
			"languages":  {"en"},
			"sort":       {"published_desc"},
			"limit":      {strconv.Itoa(limit)},
			"offset":     {strconv.Itoa(offset)},
		},
		Validate: RequireKeys("data"),
	}, &payload); err != nil {
		return SearchPage{}, err
	}

	items := make([]ContentItem, 0, len(payload.Data))
	for _, a := range payload.Data {
		title := sanitizeText(a.Title, 300)
		if title == "" {
			continue
		}
		items = append(items, ContentItem{
			Source:       "mediastack",
			SourceItemID: firstNonEmpty(a.URL, fallbackID(title, a.PublishedAt)),
			Title:        title,
			URL:          a.URL,
			Excerpt:      sanitizeText(htmlStrip(a.Description), 420),
			Author:       sanitizeText(firstNonEmpty(a.Author, a.Source), 120),
			ImageURL:     a.Image,
			PublishedAt:  parseFeedDate(a.PublishedAt, "2006-01-02T15:04:05-07:00", time.RFC3339),
		})
	}

	next := ""
	consumed := offset + len(payload.Data)
	if len(payload.Data) > 0 && consumed < payload.Pagination.Total {
		next = strconv.Itoa(consumed)
	}
	return SearchPage{Items: items, Next: next}, nil
}

// ContextualWebProvider queries the ContextualWeb news search on RapidAPI.
// The cursor is the page number.
type ContextualWebProvider struct {
	baseURL string
	host    string
	key     string
	fetcher *Fetcher
	tracer  trace.Tracer
}

func NewContextualWebProvider(tracer trace.Tracer, logger zerolog.Logger, opts NewsOptions) *ContextualWebProvider {
	key := ""
	if len(opts.Keys) > 0 {
		key = opts.Keys[0]
	}
	host := ""
	if u, err := url.Parse(opts.BaseURL); err == nil {
		host = u.Host
	}
	return &ContextualWebProvider{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		host:    host,
		key:     key,
		fetcher: newNewsFetcher("contextualweb", tracer, logger, opts),
		tracer:  tracer,
	}
}

func (p *ContextualWebProvider) Name() string { return "contextualweb" }

func (p *ContextualWebProvider) Search(ctx context.Context, query string, limit int, cursor string) (SearchPage, error) {
	ctx, span := p.tracer.Start(ctx, "contextualweb.search")
	defer span.End()

	if p.key == "" {
		return SearchPage{}, ErrNoAPIKey
	}
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return SearchPage{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		page = n
	}
	var payload struct {
		TotalCount int `json:"totalCount"`
		Value      []struct {
			ID            string `json:"id"`
			Title         string `json:"title"`
			URL           string `json:"url"`
			Description   string `json:"description"`
			DatePublished string `json:"datePublished"`
			Image         struct {
				URL string `json:"url"`
			} `json:"image"`
			Provider struct {
				Name string `json:"name"`
			} `json:"provider"`
		} `json:"value"`
	}
	if err := p.fetcher.GetJSON(ctx, Request{
		URL: p.baseURL + "/NewsSearchAPI",
		Params: url.Values{
			"q":           {query},
			"pageNumber":  {strconv.Itoa(page)},
			"pageSize":    {strconv.Itoa(contextualWebPageSize)},
			"autoCorrect": {"true"},
		},
		Headers: map[string]string{
			"X-RapidAPI-Key":  p.key,
			"X-RapidAPI-Host": p.host,
		},
		Validate: RequireKeys("value"),
	}, &payload); err != nil {
		return SearchPage{}, err
	}

	items := make([]ContentItem, 0, len(payload.Value))
	for _, a := range payload.Value {
		title := sanitizeText(htmlStrip(a.Title), 300)
		if title == "" {
			continue
		}
		items = append(items, ContentItem{
			Source:       "contextualweb",
			SourceItemID: firstNonEmpty(a.ID, a.URL, fallbackID(title, a.DatePublished)),
			Title:        title,
			URL:          a.URL,
			Excerpt:      sanitizeText(htmlStrip(a.Description), 420),
			Author:       sanitizeText(a.Provider.Name, 120),
			ImageURL:     a.Image.URL,
			PublishedAt:  parseFeedDate(a.DatePublished),
		})
	}

	next := ""
	if len(payload.Value) > 0 && page*contextualWebPageSize < payload.TotalCount {
		next = strconv.Itoa(page + 1)
	}
	return SearchPage{Items: items, Next: next}, nil
}
