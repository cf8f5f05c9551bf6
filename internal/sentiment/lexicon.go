package sentiment

import (
	"strings"

	"github.com/jonreiter/govader"
)

// Lexicon scores text with VADER, extended with market and crypto vocabulary.
type Lexicon struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// marketWords are added to the VADER lexicon, overriding entries it already has.
var marketWords = map[string]float64{
	"bull": 1.6, "bullish": 2.3, "bulls": 1.4, "rally": 2.2, "rallies": 2.2,
	"surge": 2.0, "surges": 2.0, "soar": 2.3, "soars": 2.3, "soaring": 2.4,
	"moon": 2.0, "mooning": 2.3, "pump": 1.2, "breakout": 2.0, "uptrend": 1.8,
	"recover": 1.8, "recovers": 1.8, "recovery": 1.8, "rebound": 1.7, "rebounds": 1.7,
	"adoption": 1.6, "approval": 2.0, "approved": 2.2, "launch": 1.2, "upgrade": 1.6,
	"partnership": 1.7, "ath": 1.9, "high": 0.6, "higher": 1.0, "rise": 1.4,
	"rises": 1.4, "rising": 1.3, "jump": 1.3, "jumps": 1.3, "climb": 1.2,
	"climbs": 1.2, "outperform": 1.9, "outperforms": 1.9, "accumulate": 1.1, "hodl": 1.2,
	"bear": -1.6, "bearish": -2.3, "bears": -1.4, "crash": -2.7, "crashes": -2.7,
	"dump": -2.0, "dumps": -2.0, "dumping": -2.1, "plunge": -2.4, "plunges": -2.4,
	"plummet": -2.6, "plummets": -2.6, "drop": -1.3, "drops": -1.3, "fall": -1.4,
	"falls": -1.4, "falling": -1.5, "decline": -1.5, "declines": -1.5, "downtrend": -1.8,
	"sell": -0.8, "selloff": -2.0, "liquidation": -2.0, "liquidations": -2.0, "hack": -2.6,
	"hacked": -2.8, "exploit": -2.4, "exploited": -2.6, "rug": -2.7, "rugpull": -3.0,
	"ban": -2.3, "banned": -2.4, "crackdown": -2.2, "delist": -2.1, "delisted": -2.3,
	"fud": -1.8, "rekt": -2.6, "bubble": -1.4, "lower": -1.0, "slump": -2.1,
	"tank": -2.0, "tanks": -2.0, "bleeding": -2.2, "capitulation": -2.2, "insolvent": -2.8,
	"bankrupt": -3.0, "bankruptcy": -3.0, "sec": -0.3, "sued": -2.0, "investigation": -1.5,
}

// NewLexicon builds a VADER analyzer with the market vocabulary and extra
// entries merged in. Keys are matched case-insensitively.
func NewLexicon(extra map[string]float64) *Lexicon {
	analyzer := govader.NewSentimentIntensityAnalyzer()
	for w, v := range marketWords {
		analyzer.Lexicon[w] = v
	}
	for w, v := range extra {
		analyzer.Lexicon[strings.ToLower(w)] = v
	}
	return &Lexicon{analyzer: analyzer}
}

// Polarity returns the VADER compound score in [-1, 1]. Text with no known
// words scores 0.
func (l *Lexicon) Polarity(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return l.analyzer.PolarityScores(text).Compound
}
