// Package memory provides in-memory persistence used by tests and local
// single-process runs. All operations are safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
	"github.com/madun/platform-nlp-dqm/internal/quality"
)

type itemKey struct {
	platform   pipeline.Platform
	externalID string
}

type aggKey struct {
	platform pipeline.Platform
	day      time.Time
}

// Store is the in-memory implementation of pipeline.Store and the read-side
// query surface.
type Store struct {
	mu         sync.RWMutex
	items      map[itemKey]pipeline.RawItem
	verdicts   map[uuid.UUID]pipeline.QualityVerdict
	enriched   map[uuid.UUID]pipeline.EnrichedItem
	aggregates map[aggKey]pipeline.DailyAggregate
	runs       map[uuid.UUID]pipeline.Run
	runOrder   []uuid.UUID
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		items:      make(map[itemKey]pipeline.RawItem),
		verdicts:   make(map[uuid.UUID]pipeline.QualityVerdict),
		enriched:   make(map[uuid.UUID]pipeline.EnrichedItem),
		aggregates: make(map[aggKey]pipeline.DailyAggregate),
		runs:       make(map[uuid.UUID]pipeline.Run),
	}
}

// CreateIfAbsent stores the item unless its (platform, external id) pair
// already exists.
func (s *Store) CreateIfAbsent(_ context.Context, item pipeline.RawItem) (pipeline.RawItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := itemKey{item.Platform, item.ExternalID}
	if existing, ok := s.items[key]; ok {
		return existing, false, nil
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.items[key] = item
	return item, true, nil
}

// HasItem reports whether the external id is stored for the platform.
func (s *Store) HasItem(_ context.Context, platform pipeline.Platform, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[itemKey{platform, externalID}]
	return ok, nil
}

// HasRecentPrefix reports whether the prefix occurs more than once among
// items acquired at or after since.
func (s *Store) HasRecentPrefix(_ context.Context, platform pipeline.Platform, prefix string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key, item := range s.items {
		if key.platform != platform || item.AcquiredAt.Before(since) {
			continue
		}
		normalized := quality.NormalizePrefix(item.Text, len([]rune(item.Text)))
		if strings.HasPrefix(normalized, prefix) {
			count++
			if count > 1 {
				return true, nil
			}
		}
	}
	return false, nil
}

// CreateVerdict stores the verdict keyed by its raw item.
func (s *Store) CreateVerdict(_ context.Context, verdict pipeline.QualityVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts[verdict.RawItemID] = verdict
	return nil
}

// CreateOrGetPlaceholder inserts the pending row, or returns the existing one.
func (s *Store) CreateOrGetPlaceholder(_ context.Context, item pipeline.EnrichedItem) (pipeline.EnrichedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.enriched[item.RawItemID]; ok {
		return existing, nil
	}
	s.enriched[item.RawItemID] = item
	return item, nil
}

// UpdateEnrichment fills in a pending row; already-enriched rows are left
// untouched.
func (s *Store) UpdateEnrichment(_ context.Context, id uuid.UUID, result pipeline.EnrichmentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for rawID, item := range s.enriched {
		if item.ID != id {
			continue
		}
		if item.Status != pipeline.EnrichmentPending {
			return nil
		}
		item.Status = pipeline.EnrichmentDone
		item.CleanedText = result.CleanedText
		item.NormalizedText = result.NormalizedText
		item.Label = result.Label
		item.Score = result.Score
		item.Confidence = result.Confidence
		item.Detail = result.Detail
		item.Keywords = result.Keywords
		item.EnrichedAt = &result.EnrichedAt
		s.enriched[rawID] = item
		return nil
	}
	return nil
}

// ListPending returns up to batchSize pending rows, oldest first.
func (s *Store) ListPending(_ context.Context, platform pipeline.Platform, batchSize int) ([]pipeline.EnrichedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []pipeline.EnrichedItem
	for _, item := range s.enriched {
		if item.Platform == platform && item.Status == pipeline.EnrichmentPending {
			pending = append(pending, item)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if batchSize > 0 && len(pending) > batchSize {
		pending = pending[:batchSize]
	}
	return pending, nil
}

func sameDay(t, day time.Time) bool {
	y1, m1, d1 := t.UTC().Date()
	y2, m2, d2 := day.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ListEnrichedByDay returns all enrichment rows whose raw item was acquired
// on the given day.
func (s *Store) ListEnrichedByDay(_ context.Context, platform pipeline.Platform, day time.Time) ([]pipeline.EnrichedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pipeline.EnrichedItem
	for rawID, item := range s.enriched {
		if item.Platform != platform {
			continue
		}
		if raw, ok := s.itemByID(rawID); ok && sameDay(raw.AcquiredAt, day) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// itemByID requires the read lock to be held.
func (s *Store) itemByID(id uuid.UUID) (pipeline.RawItem, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return pipeline.RawItem{}, false
}

// CountItemsByDay counts raw items acquired on the given day.
func (s *Store) CountItemsByDay(_ context.Context, platform pipeline.Platform, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key, item := range s.items {
		if key.platform == platform && sameDay(item.AcquiredAt, day) {
			count++
		}
	}
	return count, nil
}

// CountPassedByDay counts gate-passed items acquired on the given day.
func (s *Store) CountPassedByDay(_ context.Context, platform pipeline.Platform, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key, item := range s.items {
		if key.platform != platform || !sameDay(item.AcquiredAt, day) {
			continue
		}
		if verdict, ok := s.verdicts[item.ID]; ok && verdict.Passed {
			count++
		}
	}
	return count, nil
}

// UpsertDailyAggregate replaces the aggregate row for (platform, date).
func (s *Store) UpsertDailyAggregate(_ context.Context, agg pipeline.DailyAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates[aggKey{agg.Platform, agg.Date.UTC().Truncate(24 * time.Hour)}] = agg
	return nil
}

// CreateRun records a new run.
func (s *Store) CreateRun(_ context.Context, run pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		s.runOrder = append(s.runOrder, run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRun replaces the run record.
func (s *Store) UpdateRun(ctx context.Context, run pipeline.Run) error {
	return s.CreateRun(ctx, run)
}

// Read-side projections.

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(_ context.Context, limit int) ([]pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pipeline.Run, 0, len(s.runOrder))
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.runOrder[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetRun returns one run by id.
func (s *Store) GetRun(_ context.Context, id uuid.UUID) (pipeline.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok, nil
}

// ListAggregates returns aggregates for the platform within [from, to],
// oldest first.
func (s *Store) ListAggregates(_ context.Context, platform pipeline.Platform, from, to time.Time) ([]pipeline.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pipeline.DailyAggregate
	for key, agg := range s.aggregates {
		if key.platform != platform {
			continue
		}
		if key.day.Before(from.UTC().Truncate(24*time.Hour)) || key.day.After(to) {
			continue
		}
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// VerdictFor returns the verdict recorded for a raw item, if any.
func (s *Store) VerdictFor(_ context.Context, rawItemID uuid.UUID) (pipeline.QualityVerdict, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	verdict, ok := s.verdicts[rawItemID]
	return verdict, ok, nil
}
