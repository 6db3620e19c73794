// Package enrich implements the lexicon-based sentiment and keyword
// enrichment of items that passed the quality gate.
package enrich

import (
	"math"
	"regexp"
	"strings"

	"github.com/madun/platform-nlp-dqm/internal/lexicon"
	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

// AnalyzerConfig carries the tunable scoring knobs. The label thresholds were
// changed in production from 1.5/-1.5 to 0.8/-0.8 to gain recall on short
// texts; both remain configurable.
type AnalyzerConfig struct {
	ThresholdHigh float64 `mapstructure:"threshold_high"`
	ThresholdLow  float64 `mapstructure:"threshold_low"`
	TopKeywords   int     `mapstructure:"top_keywords"`
}

// DefaultAnalyzerConfig returns the current production values.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		ThresholdHigh: 0.8,
		ThresholdLow:  -0.8,
		TopKeywords:   10,
	}
}

// Scoring constants. Negation inverts and dampens rather than fully negating;
// boosters amplify; each distinct contextual hit adds to the weight.
const (
	negationFactor       = -0.5
	boosterFactor        = 1.5
	contextualHitWeight  = 0.15
	scoreNormalizer      = 3.0
	confidenceBase       = 0.3
	minTokenLength       = 3
	minConfidenceMatches = 4 // matches at which confidence saturates
)

// Analyzer converts text into a sentiment and keyword result. All methods are
// pure; identical input always yields an identical result.
type Analyzer struct {
	lex *lexicon.Lexicon
	cfg AnalyzerConfig
}

// NewAnalyzer builds an Analyzer over the given lexicon.
func NewAnalyzer(lex *lexicon.Lexicon, cfg AnalyzerConfig) *Analyzer {
	if cfg.TopKeywords <= 0 {
		cfg.TopKeywords = DefaultAnalyzerConfig().TopKeywords
	}
	return &Analyzer{lex: lex, cfg: cfg}
}

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
	nonLetter      = regexp.MustCompile(`[^\p{L}\s]+`)
)

// Clean strips URLs and mentions and collapses whitespace, preserving case.
func Clean(text string) string {
	out := urlPattern.ReplaceAllString(text, " ")
	out = mentionPattern.ReplaceAllString(out, " ")
	return strings.Join(strings.Fields(out), " ")
}

// Normalize lowercases the cleaned text and strips punctuation and digits.
func Normalize(cleaned string) string {
	out := strings.ToLower(cleaned)
	out = nonLetter.ReplaceAllString(out, " ")
	return strings.Join(strings.Fields(out), " ")
}

// Tokenize splits normalized text on whitespace, dropping tokens of length
// <= 2 runes.
func Tokenize(normalized string) []string {
	fields := strings.Fields(normalized)
	tokens := fields[:0:len(fields)]
	for _, f := range fields {
		if len([]rune(f)) >= minTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Analyze runs the full enrichment pipeline over the raw text.
func (a *Analyzer) Analyze(text string) pipeline.EnrichmentResult {
	cleaned := Clean(text)
	normalized := Normalize(cleaned)
	tokens := Tokenize(normalized)

	content := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !a.lex.IsStopword(tok) {
			content = append(content, tok)
		}
	}

	detail := a.scoreSentiment(normalized, tokens, content)
	label := a.classify(detail)
	confidence := a.confidence(detail)
	keywords := a.extractKeywords(content)

	return pipeline.EnrichmentResult{
		CleanedText:    cleaned,
		NormalizedText: normalized,
		Label:          label,
		Score:          clamp(detail.WeightedScore/scoreNormalizer, -1, 1),
		Confidence:     confidence,
		Detail:         detail,
		Keywords:       keywords,
	}
}

// scoreSentiment computes raw and weighted scores. Word matches come from the
// stopword-filtered tokens; phrase matches are scanned over the full
// normalized text and count as independent signals even when their component
// words already matched.
func (a *Analyzer) scoreSentiment(normalized string, tokens, content []string) pipeline.SentimentDetail {
	detail := pipeline.SentimentDetail{}

	for _, tok := range content {
		switch a.lex.Polarity(tok) {
		case 1:
			detail.PositiveMatches = append(detail.PositiveMatches, tok)
		case -1:
			detail.NegativeMatches = append(detail.NegativeMatches, tok)
		}
	}
	posPhrases, negPhrases := a.lex.PhraseHits(normalized)
	detail.PositiveMatches = append(detail.PositiveMatches, posPhrases...)
	detail.NegativeMatches = append(detail.NegativeMatches, negPhrases...)

	raw := float64(len(detail.PositiveMatches) - len(detail.NegativeMatches))
	detail.RawScore = raw

	adjusted := raw
	if a.hasNegatedLexiconWord(tokens) {
		detail.Negated = true
		adjusted *= negationFactor
	}
	if a.hasBooster(tokens) {
		detail.Boosted = true
		adjusted *= boosterFactor
	}

	detail.ContextualHits = a.lex.ContextualHits(normalized, tokens)
	weight := 1 + contextualHitWeight*float64(len(detail.ContextualHits))
	detail.WeightedScore = adjusted * weight
	return detail
}

// hasNegatedLexiconWord reports a negation marker immediately followed by a
// lexicon-bearing word anywhere in the token stream.
func (a *Analyzer) hasNegatedLexiconWord(tokens []string) bool {
	for i := 0; i+1 < len(tokens); i++ {
		if a.lex.IsNegation(tokens[i]) && a.lex.Bears(tokens[i+1]) {
			return true
		}
	}
	return false
}

func (a *Analyzer) hasBooster(tokens []string) bool {
	for _, tok := range tokens {
		if a.lex.IsBooster(tok) {
			return true
		}
	}
	return false
}

// classify maps the weighted score to a label. The threshold comparisons are
// strict: a score exactly at a threshold does not take that label.
func (a *Analyzer) classify(detail pipeline.SentimentDetail) pipeline.SentimentLabel {
	switch {
	case detail.WeightedScore > a.cfg.ThresholdHigh:
		return pipeline.SentimentPositive
	case detail.WeightedScore < a.cfg.ThresholdLow:
		return pipeline.SentimentNegative
	case len(detail.PositiveMatches) > 0 && len(detail.NegativeMatches) > 0:
		return pipeline.SentimentMixed
	default:
		return pipeline.SentimentNeutral
	}
}

// confidence is bounded to [0.3, 1.0] and saturates at four lexicon matches.
func (a *Analyzer) confidence(detail pipeline.SentimentDetail) float64 {
	matches := len(detail.PositiveMatches) + len(detail.NegativeMatches)
	return math.Min(1.0, float64(matches)/float64(minConfidenceMatches)+confidenceBase)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
