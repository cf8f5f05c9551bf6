package domain

import (
	"time"

	"github.com/guregu/null/v6"
)

type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

const (
	TrendingYes = "Yes"
	TrendingNo  = "No"
)

// SentimentItem is one normalised post or article with its score.
type SentimentItem struct {
	Source         string         `json:"source"`
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	Author         string         `json:"author,omitempty"`
	Excerpt        string         `json:"excerpt,omitempty"`
	ImageURL       string         `json:"image_url,omitempty"`
	PublishedAt    time.Time      `json:"published_at"`
	Upvotes        float64        `json:"upvotes"`
	Comments       float64        `json:"comments"`
	Score          float64        `json:"score"`
	Label          SentimentLabel `json:"label"`
	ScoredBy       string         `json:"scored_by,omitempty"`
	PriceAtPost    null.Float     `json:"price_at_post"`
	PriceAfter     null.Float     `json:"price_after"`
	PriceChangePct null.Float     `json:"price_change_pct"`
}

// Engagement is the item's upvotes plus comments.
func (i SentimentItem) Engagement() float64 {
	return i.Upvotes + i.Comments
}

// SentimentSummary aggregates the items gathered for one asset.
type SentimentSummary struct {
	Query          string         `json:"query"`
	Volume         int            `json:"volume"`
	AvgSentiment   float64        `json:"avg_sentiment"`
	Label          SentimentLabel `json:"label"`
	AvgUpvotes     float64        `json:"avg_upvotes"`
	AvgComments    float64        `json:"avg_comments"`
	EngagementRate float64        `json:"engagement_rate"`
	PositiveRatio  float64        `json:"positive_ratio"`
	NegativeRatio  float64        `json:"negative_ratio"`
	MentionsPerDay float64        `json:"mentions_per_day"`
	Trending       string         `json:"trending"`
	TopItem        *SentimentItem `json:"top_item,omitempty"`
	SourceCounts   map[string]int `json:"source_counts,omitempty"`
	Exhausted      bool           `json:"exhausted"`
}

// EmptySentiment is the neutral summary used when nothing was collected.
func EmptySentiment(query string) SentimentSummary {
	return SentimentSummary{
		Query:    query,
		Label:    SentimentNeutral,
		Trending: TrendingNo,
	}
}
