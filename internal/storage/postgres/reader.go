package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/google/uuid"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

// psql builds queries with Postgres placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const selectEnriched = `
SELECT id, raw_item_id, platform, status, source_text, cleaned_text,
	normalized_text, label, score, confidence, detail, keywords,
	created_at, enriched_at
FROM enriched_items`

// scanEnriched drains an enriched_items result set.
func scanEnriched(rows pgx.Rows) ([]pipeline.EnrichedItem, error) {
	defer rows.Close()
	var items []pipeline.EnrichedItem
	for rows.Next() {
		var (
			item     pipeline.EnrichedItem
			detail   []byte
			keywords []byte
		)
		if err := rows.Scan(
			&item.ID, &item.RawItemID, &item.Platform, &item.Status,
			&item.SourceText, &item.CleanedText, &item.NormalizedText,
			&item.Label, &item.Score, &item.Confidence, &detail, &keywords,
			&item.CreatedAt, &item.EnrichedAt,
		); err != nil {
			return nil, fmt.Errorf("scan enriched item: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &item.Detail); err != nil {
				return nil, fmt.Errorf("decode sentiment detail: %w", err)
			}
		}
		if len(keywords) > 0 {
			if err := json.Unmarshal(keywords, &item.Keywords); err != nil {
				return nil, fmt.Errorf("decode keywords: %w", err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListPending returns up to batchSize pending rows, oldest first.
func (s *Store) ListPending(ctx context.Context, platform pipeline.Platform, batchSize int) ([]pipeline.EnrichedItem, error) {
	query, args, err := psql.
		Select("id", "raw_item_id", "platform", "status", "source_text",
			"cleaned_text", "normalized_text", "label", "score", "confidence",
			"detail", "keywords", "created_at", "enriched_at").
		From("enriched_items").
		Where(sq.Eq{"platform": platform, "status": pipeline.EnrichmentPending}).
		OrderBy("created_at ASC").
		Limit(uint64(batchSize)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select pending items: %w", err)
	}
	return scanEnriched(rows)
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := day.UTC().Truncate(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}

// ListEnrichedByDay returns enrichment rows whose raw item was acquired on
// the given day.
func (s *Store) ListEnrichedByDay(ctx context.Context, platform pipeline.Platform, day time.Time) ([]pipeline.EnrichedItem, error) {
	start, end := dayBounds(day)
	query, args, err := psql.
		Select("e.id", "e.raw_item_id", "e.platform", "e.status", "e.source_text",
			"e.cleaned_text", "e.normalized_text", "e.label", "e.score", "e.confidence",
			"e.detail", "e.keywords", "e.created_at", "e.enriched_at").
		From("enriched_items e").
		Join("raw_items r ON r.id = e.raw_item_id").
		Where(sq.Eq{"e.platform": platform}).
		Where(sq.GtOrEq{"r.acquired_at": start}).
		Where(sq.Lt{"r.acquired_at": end}).
		OrderBy("e.created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build day query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select enriched by day: %w", err)
	}
	return scanEnriched(rows)
}

// CountItemsByDay counts raw items acquired on the given day.
func (s *Store) CountItemsByDay(ctx context.Context, platform pipeline.Platform, day time.Time) (int, error) {
	start, end := dayBounds(day)
	query, args, err := psql.
		Select("count(*)").
		From("raw_items").
		Where(sq.Eq{"platform": platform}).
		Where(sq.GtOrEq{"acquired_at": start}).
		Where(sq.Lt{"acquired_at": end}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count items by day: %w", err)
	}
	return count, nil
}

// CountPassedByDay counts gate-passed items acquired on the given day.
func (s *Store) CountPassedByDay(ctx context.Context, platform pipeline.Platform, day time.Time) (int, error) {
	start, end := dayBounds(day)
	query, args, err := psql.
		Select("count(*)").
		From("quality_verdicts v").
		Join("raw_items r ON r.id = v.raw_item_id").
		Where(sq.Eq{"v.platform": platform, "v.passed": true}).
		Where(sq.GtOrEq{"r.acquired_at": start}).
		Where(sq.Lt{"r.acquired_at": end}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build passed count query: %w", err)
	}
	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count passed by day: %w", err)
	}
	return count, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]pipeline.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := psql.
		Select("id", "kind", "platform", "status", "started_at", "ended_at",
			"found", "acquired", "passed", "sources", "error_text").
		From("runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer rows.Close()

	var runs []pipeline.Run
	for rows.Next() {
		var (
			run     pipeline.Run
			sources []byte
		)
		if err := rows.Scan(&run.ID, &run.Kind, &run.Platform, &run.Status,
			&run.StartedAt, &run.EndedAt, &run.Counters.Found,
			&run.Counters.Acquired, &run.Counters.Passed, &sources,
			&run.ErrorText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &run.Sources); err != nil {
				return nil, fmt.Errorf("decode run sources: %w", err)
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (pipeline.Run, bool, error) {
	runs, err := s.listRunByID(ctx, id)
	if err != nil {
		return pipeline.Run{}, false, err
	}
	if len(runs) == 0 {
		return pipeline.Run{}, false, nil
	}
	return runs[0], true, nil
}

func (s *Store) listRunByID(ctx context.Context, id uuid.UUID) ([]pipeline.Run, error) {
	query, args, err := psql.
		Select("id", "kind", "platform", "status", "started_at", "ended_at",
			"found", "acquired", "passed", "sources", "error_text").
		From("runs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}
	defer rows.Close()

	var runs []pipeline.Run
	for rows.Next() {
		var (
			run     pipeline.Run
			sources []byte
		)
		if err := rows.Scan(&run.ID, &run.Kind, &run.Platform, &run.Status,
			&run.StartedAt, &run.EndedAt, &run.Counters.Found,
			&run.Counters.Acquired, &run.Counters.Passed, &sources,
			&run.ErrorText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &run.Sources); err != nil {
				return nil, fmt.Errorf("decode run sources: %w", err)
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListAggregates returns aggregates within [from, to], oldest first.
func (s *Store) ListAggregates(ctx context.Context, platform pipeline.Platform, from, to time.Time) ([]pipeline.DailyAggregate, error) {
	query, args, err := psql.
		Select("platform", "day", "collected", "passed", "analyzed",
			"positive_count", "negative_count", "neutral_count", "mixed_count",
			"average_score", "top_keywords", "updated_at").
		From("daily_aggregates").
		Where(sq.Eq{"platform": platform}).
		Where(sq.GtOrEq{"day": from.UTC().Truncate(24 * time.Hour)}).
		Where(sq.LtOrEq{"day": to}).
		OrderBy("day ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build aggregates query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []pipeline.DailyAggregate
	for rows.Next() {
		var (
			agg      pipeline.DailyAggregate
			keywords []byte
		)
		if err := rows.Scan(&agg.Platform, &agg.Date, &agg.Collected,
			&agg.Passed, &agg.Analyzed, &agg.PositiveCount, &agg.NegativeCount,
			&agg.NeutralCount, &agg.MixedCount, &agg.AverageScore, &keywords,
			&agg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		if len(keywords) > 0 {
			if err := json.Unmarshal(keywords, &agg.TopKeywords); err != nil {
				return nil, fmt.Errorf("decode top keywords: %w", err)
			}
		}
		aggs = append(aggs, agg)
	}
	return aggs, rows.Err()
}
