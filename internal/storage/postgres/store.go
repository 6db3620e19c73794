// Package postgres provides the Postgres-backed persistence layer.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
	"github.com/madun/platform-nlp-dqm/internal/quality"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the pool subset the store needs; pgxmock satisfies it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements pipeline.Store and pipeline.WhitelistStore on Postgres.
type Store struct {
	pool querier
}

// NewStore connects a pool and runs pending schema migrations.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := Migrate(cfg.DSN); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (for tests).
func NewStoreWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// normalizeText is the full lowercased, whitespace-collapsed body used for
// duplicate prefix lookups. It must match what the quality gate queries with.
func normalizeText(text string) string {
	return quality.NormalizePrefix(text, len([]rune(text)))
}

// CreateIfAbsent inserts the item unless (platform, external id) exists,
// returning the stored row either way.
func (s *Store) CreateIfAbsent(ctx context.Context, item pipeline.RawItem) (pipeline.RawItem, bool, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO raw_items (
	id, platform, external_id, author_name, author_handle, verified,
	text_content, text_normalized, like_count, reply_count, share_count,
	published_at, acquired_at, source_keyword, source_video_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (platform, external_id) DO NOTHING`,
		item.ID, item.Platform, item.ExternalID, item.AuthorName, item.AuthorHandle,
		item.Verified, item.Text, normalizeText(item.Text), item.LikeCount,
		item.ReplyCount, item.ShareCount, item.PublishedAt, item.AcquiredAt,
		item.SourceKeyword, item.SourceVideoID,
	)
	if err != nil {
		return pipeline.RawItem{}, false, fmt.Errorf("insert raw item: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return item, true, nil
	}

	existing, err := s.getItem(ctx, item.Platform, item.ExternalID)
	if err != nil {
		return pipeline.RawItem{}, false, err
	}
	return existing, false, nil
}

func (s *Store) getItem(ctx context.Context, platform pipeline.Platform, externalID string) (pipeline.RawItem, error) {
	var item pipeline.RawItem
	err := s.pool.QueryRow(ctx, `
SELECT id, platform, external_id, author_name, author_handle, verified,
	text_content, like_count, reply_count, share_count,
	published_at, acquired_at, source_keyword, source_video_id
FROM raw_items WHERE platform = $1 AND external_id = $2`,
		platform, externalID,
	).Scan(
		&item.ID, &item.Platform, &item.ExternalID, &item.AuthorName,
		&item.AuthorHandle, &item.Verified, &item.Text, &item.LikeCount,
		&item.ReplyCount, &item.ShareCount, &item.PublishedAt, &item.AcquiredAt,
		&item.SourceKeyword, &item.SourceVideoID,
	)
	if err != nil {
		return pipeline.RawItem{}, fmt.Errorf("select raw item: %w", err)
	}
	return item, nil
}

// HasItem reports whether the external id is already stored.
func (s *Store) HasItem(ctx context.Context, platform pipeline.Platform, externalID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM raw_items WHERE platform = $1 AND external_id = $2)`,
		platform, externalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check raw item: %w", err)
	}
	return exists, nil
}

// HasRecentPrefix reports whether the prefix occurs more than once in the
// window. The gated item is already stored, so one match is itself.
func (s *Store) HasRecentPrefix(ctx context.Context, platform pipeline.Platform, prefix string, since time.Time) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
SELECT count(*) FROM raw_items
WHERE platform = $1 AND acquired_at >= $2 AND starts_with(text_normalized, $3)`,
		platform, since, prefix,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count duplicate prefixes: %w", err)
	}
	return count > 1, nil
}

// CreateVerdict inserts the immutable verdict row.
func (s *Store) CreateVerdict(ctx context.Context, verdict pipeline.QualityVerdict) error {
	outcomes, err := json.Marshal(verdict.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal rule outcomes: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO quality_verdicts (id, raw_item_id, platform, outcomes, score, passed, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		verdict.ID, verdict.RawItemID, verdict.Platform, outcomes,
		verdict.Score, verdict.Passed, verdict.Reason, verdict.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// CreateOrGetPlaceholder inserts the pending row, or returns the existing
// enrichment row for the raw item.
func (s *Store) CreateOrGetPlaceholder(ctx context.Context, item pipeline.EnrichedItem) (pipeline.EnrichedItem, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO enriched_items (id, raw_item_id, platform, status, source_text, label, score, confidence, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (raw_item_id) DO NOTHING`,
		item.ID, item.RawItemID, item.Platform, item.Status, item.SourceText,
		item.Label, item.Score, item.Confidence, item.CreatedAt,
	)
	if err != nil {
		return pipeline.EnrichedItem{}, fmt.Errorf("insert enrichment placeholder: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return item, nil
	}

	rows, err := s.pool.Query(ctx, selectEnriched+` WHERE raw_item_id = $1`, item.RawItemID)
	if err != nil {
		return pipeline.EnrichedItem{}, fmt.Errorf("select enrichment row: %w", err)
	}
	items, err := scanEnriched(rows)
	if err != nil {
		return pipeline.EnrichedItem{}, err
	}
	if len(items) == 0 {
		return pipeline.EnrichedItem{}, errors.New("enrichment row vanished")
	}
	return items[0], nil
}

// UpdateEnrichment fills in a pending row; enriched rows are left untouched.
func (s *Store) UpdateEnrichment(ctx context.Context, id uuid.UUID, result pipeline.EnrichmentResult) error {
	detail, err := json.Marshal(result.Detail)
	if err != nil {
		return fmt.Errorf("marshal sentiment detail: %w", err)
	}
	keywords, err := json.Marshal(result.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
UPDATE enriched_items SET
	status = $2, cleaned_text = $3, normalized_text = $4, label = $5,
	score = $6, confidence = $7, detail = $8, keywords = $9, enriched_at = $10
WHERE id = $1 AND status = $11`,
		id, pipeline.EnrichmentDone, result.CleanedText, result.NormalizedText,
		result.Label, result.Score, result.Confidence, detail, keywords,
		result.EnrichedAt, pipeline.EnrichmentPending,
	)
	if err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	return nil
}

// UpsertDailyAggregate replaces the (platform, day) aggregate row.
func (s *Store) UpsertDailyAggregate(ctx context.Context, agg pipeline.DailyAggregate) error {
	keywords, err := json.Marshal(agg.TopKeywords)
	if err != nil {
		return fmt.Errorf("marshal top keywords: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO daily_aggregates (
	platform, day, collected, passed, analyzed,
	positive_count, negative_count, neutral_count, mixed_count,
	average_score, top_keywords, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (platform, day) DO UPDATE SET
	collected = EXCLUDED.collected,
	passed = EXCLUDED.passed,
	analyzed = EXCLUDED.analyzed,
	positive_count = EXCLUDED.positive_count,
	negative_count = EXCLUDED.negative_count,
	neutral_count = EXCLUDED.neutral_count,
	mixed_count = EXCLUDED.mixed_count,
	average_score = EXCLUDED.average_score,
	top_keywords = EXCLUDED.top_keywords,
	updated_at = EXCLUDED.updated_at`,
		agg.Platform, agg.Date, agg.Collected, agg.Passed, agg.Analyzed,
		agg.PositiveCount, agg.NegativeCount, agg.NeutralCount, agg.MixedCount,
		agg.AverageScore, keywords, agg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert daily aggregate: %w", err)
	}
	return nil
}

// CreateRun inserts a run record.
func (s *Store) CreateRun(ctx context.Context, run pipeline.Run) error {
	sources, err := json.Marshal(run.Sources)
	if err != nil {
		return fmt.Errorf("marshal run sources: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO runs (id, kind, platform, status, started_at, ended_at, found, acquired, passed, sources, error_text)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		run.ID, run.Kind, run.Platform, run.Status, run.StartedAt, run.EndedAt,
		run.Counters.Found, run.Counters.Acquired, run.Counters.Passed,
		sources, run.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun writes the terminal state of a run.
func (s *Store) UpdateRun(ctx context.Context, run pipeline.Run) error {
	sources, err := json.Marshal(run.Sources)
	if err != nil {
		return fmt.Errorf("marshal run sources: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
UPDATE runs SET status = $2, ended_at = $3, found = $4, acquired = $5, passed = $6, sources = $7, error_text = $8
WHERE id = $1`,
		run.ID, run.Status, run.EndedAt, run.Counters.Found,
		run.Counters.Acquired, run.Counters.Passed, sources, run.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// ListActiveTargets returns active whitelist entries ordered by priority.
func (s *Store) ListActiveTargets(ctx context.Context, targetType pipeline.WhitelistTargetType) ([]pipeline.WhitelistEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT type, target_id, priority, max_items, collected, active
FROM whitelist_targets
WHERE type = $1 AND active
ORDER BY priority DESC, target_id`,
		targetType,
	)
	if err != nil {
		return nil, fmt.Errorf("select whitelist targets: %w", err)
	}
	defer rows.Close()

	var entries []pipeline.WhitelistEntry
	for rows.Next() {
		var entry pipeline.WhitelistEntry
		if err := rows.Scan(&entry.Type, &entry.TargetID, &entry.Priority,
			&entry.MaxItems, &entry.Collected, &entry.Active); err != nil {
			return nil, fmt.Errorf("scan whitelist entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RecordCollected adds count to the entry's cumulative counter.
func (s *Store) RecordCollected(ctx context.Context, targetType pipeline.WhitelistTargetType, targetID string, count int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE whitelist_targets SET collected = collected + $3 WHERE type = $1 AND target_id = $2`,
		targetType, targetID, count,
	)
	if err != nil {
		return fmt.Errorf("record collected: %w", err)
	}
	return nil
}
