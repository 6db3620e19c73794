package enrich

import (
	"sort"

	"github.com/madun/platform-nlp-dqm/internal/lexicon"
	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

// extractKeywords stems the stopword-filtered tokens, counts stem frequency,
// and returns the top-N stems with a term-frequency score. Independent of
// sentiment scoring.
func (a *Analyzer) extractKeywords(content []string) []pipeline.KeywordCount {
	if len(content) == 0 {
		return nil
	}

	counts := map[string]int{}
	total := 0
	for _, tok := range content {
		stem := lexicon.Stem(tok)
		counts[stem]++
		total++
	}

	keywords := make([]pipeline.KeywordCount, 0, len(counts))
	for term, count := range counts {
		keywords = append(keywords, pipeline.KeywordCount{
			Term:  term,
			Count: count,
			Score: float64(count) / float64(total),
		})
	}
	// Count descending, term ascending for a deterministic order.
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Count != keywords[j].Count {
			return keywords[i].Count > keywords[j].Count
		}
		return keywords[i].Term < keywords[j].Term
	})

	if len(keywords) > a.cfg.TopKeywords {
		keywords = keywords[:a.cfg.TopKeywords]
	}
	return keywords
}
