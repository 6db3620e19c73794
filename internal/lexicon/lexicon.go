// Package lexicon provides the linguistic building blocks for enrichment:
// the Indonesian stopword set, the sentiment word/phrase lexicon, negation
// and booster markers, the domain-relevance keyword set, and the affix
// stripping stemmer. Everything here is pure and stateless after load.
package lexicon

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

type stopwordFile struct {
	Stopwords []string `yaml:"stopwords"`
}

type sentimentFile struct {
	Positive   []string `yaml:"positive"`
	Negative   []string `yaml:"negative"`
	Negation   []string `yaml:"negation"`
	Booster    []string `yaml:"booster"`
	Contextual []string `yaml:"contextual"`
}

// Lexicon holds the loaded word sets. Phrase entries (containing a space) are
// kept separately from single-word entries because they are matched against
// the full normalized text rather than token by token.
type Lexicon struct {
	stopwords map[string]struct{}

	positive map[string]struct{}
	negative map[string]struct{}

	positivePhrases []string
	negativePhrases []string

	negation map[string]struct{}
	booster  map[string]struct{}

	contextual        map[string]struct{}
	contextualPhrases []string
}

// Load parses the embedded word set files into a Lexicon.
func Load() (*Lexicon, error) {
	var stops stopwordFile
	if err := unmarshalData("data/stopwords.yaml", &stops); err != nil {
		return nil, err
	}
	var sent sentimentFile
	if err := unmarshalData("data/sentiment.yaml", &sent); err != nil {
		return nil, err
	}

	lex := &Lexicon{
		stopwords:  toSet(stops.Stopwords),
		positive:   map[string]struct{}{},
		negative:   map[string]struct{}{},
		negation:   toSet(sent.Negation),
		booster:    toSet(sent.Booster),
		contextual: map[string]struct{}{},
	}
	for _, entry := range sent.Positive {
		if strings.Contains(entry, " ") {
			lex.positivePhrases = append(lex.positivePhrases, entry)
		} else {
			lex.positive[entry] = struct{}{}
		}
	}
	for _, entry := range sent.Negative {
		if strings.Contains(entry, " ") {
			lex.negativePhrases = append(lex.negativePhrases, entry)
		} else {
			lex.negative[entry] = struct{}{}
		}
	}
	for _, entry := range sent.Contextual {
		if strings.Contains(entry, " ") {
			lex.contextualPhrases = append(lex.contextualPhrases, entry)
		} else {
			lex.contextual[entry] = struct{}{}
		}
	}
	return lex, nil
}

func unmarshalData(path string, out any) error {
	raw, err := dataFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

var (
	defaultOnce sync.Once
	defaultLex  *Lexicon
	defaultErr  error
)

// Default returns the process-wide lexicon loaded from the embedded data.
// It panics if the embedded data is unparseable, which indicates a build
// defect rather than a runtime condition.
func Default() *Lexicon {
	defaultOnce.Do(func() {
		defaultLex, defaultErr = Load()
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultLex
}

// IsStopword reports whether the token is in the stopword set.
func (l *Lexicon) IsStopword(token string) bool {
	_, ok := l.stopwords[token]
	return ok
}

// IsNegation reports whether the token is a negation marker.
func (l *Lexicon) IsNegation(token string) bool {
	_, ok := l.negation[token]
	return ok
}

// IsBooster reports whether the token is a booster word.
func (l *Lexicon) IsBooster(token string) bool {
	_, ok := l.booster[token]
	return ok
}

// Polarity returns +1 for a positive lexicon word, -1 for a negative one, and
// 0 for a word the lexicon does not carry.
func (l *Lexicon) Polarity(token string) int {
	if _, ok := l.positive[token]; ok {
		return 1
	}
	if _, ok := l.negative[token]; ok {
		return -1
	}
	return 0
}

// Bears reports whether the token carries sentiment on its own (used for the
// negation adjacency check).
func (l *Lexicon) Bears(token string) bool {
	return l.Polarity(token) != 0
}

// PhraseHits scans the normalized text for multi-word lexicon phrases and
// returns the matched positive and negative phrases. Each phrase counts once
// regardless of how often it occurs.
func (l *Lexicon) PhraseHits(normalized string) (positive, negative []string) {
	for _, phrase := range l.positivePhrases {
		if strings.Contains(normalized, phrase) {
			positive = append(positive, phrase)
		}
	}
	for _, phrase := range l.negativePhrases {
		if strings.Contains(normalized, phrase) {
			negative = append(negative, phrase)
		}
	}
	return positive, negative
}

// ContextualHits returns the distinct domain-relevance keywords present in
// the text: single-word entries are matched against the token list, phrase
// entries against the normalized text.
func (l *Lexicon) ContextualHits(normalized string, tokens []string) []string {
	seen := map[string]struct{}{}
	var hits []string
	for _, tok := range tokens {
		if _, ok := l.contextual[tok]; !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		hits = append(hits, tok)
	}
	for _, phrase := range l.contextualPhrases {
		if !strings.Contains(normalized, phrase) {
			continue
		}
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}
		hits = append(hits, phrase)
	}
	return hits
}
