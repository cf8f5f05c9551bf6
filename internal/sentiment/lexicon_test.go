package sentiment

import "testing"

func TestLexiconPolarity(t *testing.T) {
	lex := NewLexicon(nil)
	tests := []struct {
		name string
		text string
		sign int
	}{
		{name: "bullish headline", text: "Bitcoin rally continues as ETF approval boosts adoption", sign: 1},
		{name: "bearish headline", text: "Exchange hacked, token crashes after exploit", sign: -1},
		{name: "no known words", text: "Bitcoin weekly thread", sign: 0},
		{name: "negated positive", text: "This is not good for ethereum", sign: -1},
		{name: "empty", text: "", sign: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lex.Polarity(tt.text)
			switch {
			case tt.sign > 0 && got <= 0, tt.sign < 0 && got >= 0, tt.sign == 0 && got != 0:
				t.Fatalf("unexpected polarity %v for %q", got, tt.text)
			}
			if got < -1 || got > 1 {
				t.Fatalf("polarity out of range: %v", got)
			}
		})
	}
}

func TestLexiconIntensifiers(t *testing.T) {
	lex := NewLexicon(nil)
	plain := lex.Polarity("a good day")
	boosted := lex.Polarity("a very good day")
	shouted := lex.Polarity("a GOOD day")
	exclaimed := lex.Polarity("a good day!!")
	if boosted <= plain || shouted <= plain || exclaimed <= plain {
		t.Fatalf("expected emphasis to raise score: plain=%v boosted=%v shouted=%v exclaimed=%v", plain, boosted, shouted, exclaimed)
	}
}

func TestLexiconExtraWords(t *testing.T) {
	lex := NewLexicon(map[string]float64{"WAGMI": 2.5})
	if lex.Polarity("wagmi") <= 0 {
		t.Fatal("expected custom entry to score positive")
	}
}

func TestThresholdLabels(t *testing.T) {
	th := DefaultThresholds()
	if th.Label(0.05) != "positive" || th.Label(-0.05) != "negative" || th.Label(0.049) != "neutral" {
		t.Fatal("unexpected threshold labels")
	}
}

func TestLexiconUsesFullVaderVocabulary(t *testing.T) {
	lex := NewLexicon(nil)
	if got := lex.Polarity("the rollout was horrible and disappointing"); got >= -0.05 {
		t.Fatalf("expected general vocabulary to score negative, got %v", got)
	}
	if got := lex.Polarity("what a delightful surprise"); got <= 0.05 {
		t.Fatalf("expected general vocabulary to score positive, got %v", got)
	}
}

func TestLexiconMarketVocabularyOverrides(t *testing.T) {
	lex := NewLexicon(nil)
	if got := lex.Polarity("bullish"); got <= 0.05 {
		t.Fatalf("expected market slang to score positive, got %v", got)
	}
	if got := lex.Polarity("rugpull"); got >= -0.05 {
		t.Fatalf("expected market slang to score negative, got %v", got)
	}
}
