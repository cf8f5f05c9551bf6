package sentiment

import (
	"context"
	"math"
	"strings"

	"blockminds/internal/domain"

	"github.com/rs/zerolog"
)

const lexiconModel = "vader:market"

// Thresholds split a compound score into a label: score >= Positive is
// positive, score <= Negative is negative, anything between is neutral.
type Thresholds struct {
	Positive float64
	Negative float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Positive: 0.05, Negative: -0.05}
}

func (t Thresholds) Label(score float64) domain.SentimentLabel {
	switch {
	case score >= t.Positive:
		return domain.SentimentPositive
	case score <= t.Negative:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// Rescore is one model-provided score for the item at Index of the batch.
type Rescore struct {
	Index int
	Score float64
	Model string
}

// BatchRescorer scores titles in bulk, typically with an LLM.
type BatchRescorer interface {
	RescoreBatch(ctx context.Context, titles []string) ([]Rescore, error)
}

// Scorer labels items with the lexicon and, when a rescorer is set, replaces
// lexicon scores with whatever the rescorer returns. Rescorer failures keep
// the lexicon scores.
type Scorer struct {
	lexicon    *Lexicon
	thresholds Thresholds
	rescorer   BatchRescorer
	batchSize  int
	logger     zerolog.Logger
}

func NewScorer(lexicon *Lexicon, thresholds Thresholds, rescorer BatchRescorer, batchSize int, logger zerolog.Logger) *Scorer {
	if lexicon == nil {
		lexicon = NewLexicon(nil)
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Scorer{
		lexicon:    lexicon,
		thresholds: thresholds,
		rescorer:   rescorer,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Score sets Score, Label and ScoredBy on every item in place.
func (s *Scorer) Score(ctx context.Context, items []domain.SentimentItem) {
	for i := range items {
		score := s.lexicon.Polarity(items[i].Title)
		items[i].Score = score
		items[i].Label = s.thresholds.Label(score)
		items[i].ScoredBy = lexiconModel
	}
	if s.rescorer == nil {
		return
	}

	for start := 0; start < len(items); start += s.batchSize {
		end := min(start+s.batchSize, len(items))
		titles := make([]string, 0, end-start)
		for _, item := range items[start:end] {
			titles = append(titles, strings.TrimSpace(item.Title))
		}
		scored, err := s.rescorer.RescoreBatch(ctx, titles)
		if err != nil {
			s.logger.Warn().Err(err).Int("batch_start", start).Msg("rescoring failed, keeping lexicon scores")
			continue
		}
		for _, row := range scored {
			if row.Index < 0 || row.Index >= len(titles) || math.IsNaN(row.Score) {
				continue
			}
			item := &items[start+row.Index]
			item.Score = clamp(row.Score, -1, 1)
			item.Label = s.thresholds.Label(item.Score)
			item.ScoredBy = row.Model
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
