package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madun/platform-nlp-dqm/internal/lexicon"
	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(lexicon.Default(), DefaultAnalyzerConfig())
}

func TestCleanAndNormalize(t *testing.T) {
	t.Parallel()

	cleaned := Clean("Cek https://contoh.example/abc @akun  ini   bagus!")
	assert.Equal(t, "Cek ini bagus!", cleaned)

	assert.Equal(t, "cek ini bagus", Normalize(cleaned))
	assert.Equal(t, "tahun menu baru", Normalize("Tahun 2025, menu baru!!!"))
}

func TestTokenizeDropsShortTokens(t *testing.T) {
	t.Parallel()

	tokens := Tokenize("di sd itu ada menu mbg ya")
	assert.Equal(t, []string{"itu", "ada", "menu", "mbg"}, tokens)
}

func TestAnalyzeWorkedScenario(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	res := a.Analyze("Makanan sangat bagus, anak saya sehat dan tumbuh dengan baik berkat program MBG")

	assert.ElementsMatch(t, []string{"sangat", "bagus", "sehat", "baik"}, res.Detail.PositiveMatches)
	assert.Empty(t, res.Detail.NegativeMatches)
	assert.True(t, res.Detail.Boosted)
	assert.False(t, res.Detail.Negated)
	assert.InDelta(t, 4.0, res.Detail.RawScore, 1e-9)
	assert.ElementsMatch(t, []string{"makanan", "sehat", "tumbuh", "mbg"}, res.Detail.ContextualHits)
	assert.InDelta(t, 9.6, res.Detail.WeightedScore, 1e-9)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
	assert.Equal(t, pipeline.SentimentPositive, res.Label)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestAnalyzeNegationDampens(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()

	plain := a.Analyze("makanan sehat")
	negated := a.Analyze("makanan tidak sehat")

	require.InDelta(t, 1.0, plain.Detail.RawScore, 1e-9)
	require.InDelta(t, 1.0, negated.Detail.RawScore, 1e-9)
	assert.True(t, negated.Detail.Negated)
	// Inverts and dampens: half the magnitude with the opposite sign, not a
	// full flip to the opposite magnitude.
	assert.InDelta(t, plain.Detail.WeightedScore*negationFactor, negated.Detail.WeightedScore, 1e-9)
	assert.Less(t, negated.Detail.WeightedScore, 0.0)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	text := "menu mbg kadang basi tapi anak senang"
	first := a.Analyze(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, a.Analyze(text))
	}
}

func TestClassifyBoundariesAreStrict(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()

	at := pipeline.SentimentDetail{WeightedScore: a.cfg.ThresholdHigh}
	assert.NotEqual(t, pipeline.SentimentPositive, a.classify(at))

	at = pipeline.SentimentDetail{WeightedScore: a.cfg.ThresholdLow}
	assert.NotEqual(t, pipeline.SentimentNegative, a.classify(at))

	above := pipeline.SentimentDetail{WeightedScore: a.cfg.ThresholdHigh + 0.001}
	assert.Equal(t, pipeline.SentimentPositive, a.classify(above))

	below := pipeline.SentimentDetail{WeightedScore: a.cfg.ThresholdLow - 0.001}
	assert.Equal(t, pipeline.SentimentNegative, a.classify(below))
}

func TestClassifyMixedRequiresBothPolarities(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()

	mixed := pipeline.SentimentDetail{
		WeightedScore:   0,
		PositiveMatches: []string{"bagus"},
		NegativeMatches: []string{"basi"},
	}
	assert.Equal(t, pipeline.SentimentMixed, a.classify(mixed))

	neutral := pipeline.SentimentDetail{WeightedScore: 0}
	assert.Equal(t, pipeline.SentimentNeutral, a.classify(neutral))
}

func TestConfidenceBounds(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()

	none := a.confidence(pipeline.SentimentDetail{})
	assert.InDelta(t, 0.3, none, 1e-9)

	many := a.confidence(pipeline.SentimentDetail{
		PositiveMatches: []string{"a", "b", "c", "d", "e", "f"},
	})
	assert.InDelta(t, 1.0, many, 1e-9)
}

func TestPhraseMatchesAreIndependentSignals(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()

	// "sangat" and "membantu" match as words, and "sangat membantu" adds a
	// third, independent positive signal.
	res := a.Analyze("program sangat membantu")
	assert.InDelta(t, 3.0, res.Detail.RawScore, 1e-9)
}

func TestExtractKeywords(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	res := a.Analyze("makanan makanan menu menu menu dapur")

	require.NotEmpty(t, res.Keywords)
	assert.Equal(t, "menu", res.Keywords[0].Term)
	assert.Equal(t, 3, res.Keywords[0].Count)
	assert.InDelta(t, 0.5, res.Keywords[0].Score, 1e-9)
	// Stemming folds "makanan" to "makan".
	assert.Equal(t, "makan", res.Keywords[1].Term)
	assert.Equal(t, 2, res.Keywords[1].Count)
}
