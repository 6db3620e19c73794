package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists pipeline records. All calls are atomic at the single-record
// level; no multi-record transactions are required.
type Store interface {
	// CreateIfAbsent stores the item unless its (platform, external id) pair
	// already exists. Returns the stored row and whether it was newly created.
	CreateIfAbsent(ctx context.Context, item RawItem) (RawItem, bool, error)

	// HasItem reports whether an item with the external id is already stored
	// for the platform.
	HasItem(ctx context.Context, platform Platform, externalID string) (bool, error)

	CreateVerdict(ctx context.Context, verdict QualityVerdict) error

	// CreateOrGetPlaceholder inserts the pending enrichment row, or returns
	// the existing one if the raw item already has it.
	CreateOrGetPlaceholder(ctx context.Context, item EnrichedItem) (EnrichedItem, error)

	// UpdateEnrichment fills in a placeholder row. Only pending rows are
	// eligible; an already-enriched row is left untouched.
	UpdateEnrichment(ctx context.Context, id uuid.UUID, result EnrichmentResult) error

	// ListPending returns up to batchSize placeholder rows for the platform.
	ListPending(ctx context.Context, platform Platform, batchSize int) ([]EnrichedItem, error)

	// HasRecentPrefix reports whether the normalized prefix occurs more than
	// once among items acquired at or after since. The item under evaluation
	// is stored before it is gated, so a single occurrence is the item itself.
	HasRecentPrefix(ctx context.Context, platform Platform, prefix string, since time.Time) (bool, error)

	ListEnrichedByDay(ctx context.Context, platform Platform, day time.Time) ([]EnrichedItem, error)
	CountItemsByDay(ctx context.Context, platform Platform, day time.Time) (int, error)
	CountPassedByDay(ctx context.Context, platform Platform, day time.Time) (int, error)
	UpsertDailyAggregate(ctx context.Context, agg DailyAggregate) error

	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
}

// WhitelistStore exposes the externally maintained API acquisition targets.
type WhitelistStore interface {
	// ListActiveTargets returns active entries ordered by priority descending,
	// then registration order.
	ListActiveTargets(ctx context.Context, targetType WhitelistTargetType) ([]WhitelistEntry, error)
	// RecordCollected adds count to the entry's cumulative collected counter.
	RecordCollected(ctx context.Context, targetType WhitelistTargetType, targetID string, count int) error
}

// Sink receives items from an acquisition engine. The orchestrator owns the
// implementation; engines never talk to the store directly.
type Sink interface {
	// Seen reports whether the external id is already stored. Engines use it
	// to skip expensive detail extraction; a seen item still counts as found.
	Seen(ctx context.Context, externalID string) (bool, error)
	// Offer counts the item as found, persists it if new, and runs the
	// quality gate on newly stored items. Returns whether it was new.
	Offer(ctx context.Context, item RawItem) (bool, error)
}

// Acquirer is one acquisition engine. Acquire pushes every encountered item
// into the sink and returns when its configured units of work are exhausted,
// the context is cancelled, or a fatal-per-run error occurs.
type Acquirer interface {
	Platform() Platform
	Sources() []string
	Acquire(ctx context.Context, sink Sink) error
}

// Gate evaluates a newly stored raw item and persists its verdict, creating
// the enrichment placeholder on pass.
type Gate interface {
	Evaluate(ctx context.Context, item RawItem) (QualityVerdict, error)
}

// Enricher analyzes a batch of placeholder rows.
type Enricher interface {
	ProcessBatch(ctx context.Context, items []EnrichedItem) (int, error)
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}
