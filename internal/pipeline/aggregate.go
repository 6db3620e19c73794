package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// topKeywordLimit bounds how many merged keywords a daily aggregate carries.
const topKeywordLimit = 10

// RunAggregation recomputes the daily aggregate for one platform and day
// from the full enriched population of that day. Always derived from
// persisted state, so the upsert is idempotent under repeated or concurrent
// invocation.
func (o *Orchestrator) RunAggregation(ctx context.Context, platform Platform, day time.Time) (DailyAggregate, error) {
	day = day.UTC().Truncate(24 * time.Hour)

	items, err := o.store.ListEnrichedByDay(ctx, platform, day)
	if err != nil {
		return DailyAggregate{}, fmt.Errorf("list enriched items: %w", err)
	}
	collected, err := o.store.CountItemsByDay(ctx, platform, day)
	if err != nil {
		return DailyAggregate{}, fmt.Errorf("count collected items: %w", err)
	}
	passed, err := o.store.CountPassedByDay(ctx, platform, day)
	if err != nil {
		return DailyAggregate{}, fmt.Errorf("count passed items: %w", err)
	}

	agg := computeAggregate(platform, day, items, collected, passed, o.clock.Now())
	if err := o.store.UpsertDailyAggregate(ctx, agg); err != nil {
		return DailyAggregate{}, fmt.Errorf("upsert daily aggregate: %w", err)
	}
	return agg, nil
}

// computeAggregate folds enriched items into one daily row. Pending
// placeholders are excluded from the label counts and the average.
func computeAggregate(platform Platform, day time.Time, items []EnrichedItem, collected, passed int, now time.Time) DailyAggregate {
	agg := DailyAggregate{
		Date:      day,
		Platform:  platform,
		Collected: collected,
		Passed:    passed,
		UpdatedAt: now,
	}

	var scoreSum float64
	for _, item := range items {
		if item.Status != EnrichmentDone {
			continue
		}
		agg.Analyzed++
		scoreSum += item.Score
		switch item.Label {
		case SentimentPositive:
			agg.PositiveCount++
		case SentimentNegative:
			agg.NegativeCount++
		case SentimentMixed:
			agg.MixedCount++
		default:
			agg.NeutralCount++
		}
	}
	if agg.Analyzed > 0 {
		agg.AverageScore = scoreSum / float64(agg.Analyzed)
	}
	agg.TopKeywords = mergeKeywords(items)
	return agg
}

// mergeKeywords sums per-item keyword counts and keeps the day's top terms,
// rescored as term frequency over the merged total.
func mergeKeywords(items []EnrichedItem) []KeywordCount {
	counts := make(map[string]int)
	total := 0
	for _, item := range items {
		if item.Status != EnrichmentDone {
			continue
		}
		for _, kw := range item.Keywords {
			counts[kw.Term] += kw.Count
			total += kw.Count
		}
	}
	if len(counts) == 0 {
		return nil
	}

	merged := make([]KeywordCount, 0, len(counts))
	for term, count := range counts {
		merged = append(merged, KeywordCount{
			Term:  term,
			Count: count,
			Score: float64(count) / float64(total),
		})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Count != merged[j].Count {
			return merged[i].Count > merged[j].Count
		}
		return merged[i].Term < merged[j].Term
	})
	if len(merged) > topKeywordLimit {
		merged = merged[:topKeywordLimit]
	}
	return merged
}
