package pipeline_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/enrich"
	"github.com/madun/platform-nlp-dqm/internal/lexicon"
	"github.com/madun/platform-nlp-dqm/internal/pipeline"
	"github.com/madun/platform-nlp-dqm/internal/quality"
	"github.com/madun/platform-nlp-dqm/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testDay = time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

// scriptedAcquirer replays a fixed item list into the sink.
type scriptedAcquirer struct {
	items  []pipeline.RawItem
	cancel context.CancelFunc
}

func (a *scriptedAcquirer) Platform() pipeline.Platform { return pipeline.PlatformTwitter }

func (a *scriptedAcquirer) Sources() []string { return []string{"program mbg"} }

func (a *scriptedAcquirer) Acquire(ctx context.Context, sink pipeline.Sink) error {
	for i, item := range a.items {
		if a.cancel != nil && i == len(a.items)-1 {
			a.cancel()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := sink.Offer(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func goodItems(n int) []pipeline.RawItem {
	items := make([]pipeline.RawItem, n)
	for i := range items {
		items[i] = pipeline.RawItem{
			Platform:   pipeline.PlatformTwitter,
			ExternalID: fmt.Sprintf("10000000000000000%d", i),
			AuthorName: "Warga",
			Text:       fmt.Sprintf("Menu program MBG hari ini nomor %d sehat dan anak senang sekali", i),
			AcquiredAt: testDay,
		}
	}
	return items
}

func newOrchestrator(t *testing.T, store *memory.Store) *pipeline.Orchestrator {
	t.Helper()
	clock := fixedClock{now: testDay}
	gate := quality.NewGate(store, clock, zap.NewNop(), quality.DefaultWeights(), nil)
	analyzer := enrich.NewAnalyzer(lexicon.Default(), enrich.DefaultAnalyzerConfig())
	enricher := enrich.NewEngine(store, analyzer, clock, zap.NewNop(), 2)

	o, err := pipeline.NewOrchestrator(store, gate, enricher, clock, zap.NewNop(), 50)
	require.NoError(t, err)
	return o
}

func TestRunAcquisitionCompletes(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	o := newOrchestrator(t, store)

	run, err := o.RunAcquisition(context.Background(), &scriptedAcquirer{items: goodItems(3)})
	require.NoError(t, err)

	assert.Equal(t, pipeline.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Counters.Found)
	assert.Equal(t, 3, run.Counters.Acquired)
	assert.Equal(t, 3, run.Counters.Passed)
	require.NotNil(t, run.EndedAt)

	stored, ok, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"program mbg"}, stored.Sources)

	pending, err := store.ListPending(context.Background(), pipeline.PlatformTwitter, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestRunAcquisitionIdempotentDedup(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	o := newOrchestrator(t, store)
	items := goodItems(3)

	first, err := o.RunAcquisition(context.Background(), &scriptedAcquirer{items: items})
	require.NoError(t, err)
	require.Equal(t, pipeline.RunStatusCompleted, first.Status)

	// Same content again: everything counts as found, nothing as acquired,
	// and the gate is not re-invoked.
	second, err := o.RunAcquisition(context.Background(), &scriptedAcquirer{items: items})
	require.NoError(t, err)
	assert.Equal(t, pipeline.RunStatusFailed, second.Status)
	assert.Equal(t, 3, second.Counters.Found)
	assert.Zero(t, second.Counters.Acquired)
	assert.Equal(t, "no items acquired", second.ErrorText)

	pending, err := store.ListPending(context.Background(), pipeline.PlatformTwitter, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestRunAcquisitionDropsMalformedItems(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	o := newOrchestrator(t, store)

	items := goodItems(1)
	items = append(items,
		pipeline.RawItem{Platform: pipeline.PlatformTwitter, ExternalID: "", Text: "tanpa identitas"},
		pipeline.RawItem{Platform: pipeline.PlatformTwitter, ExternalID: "200000000000000001", Text: "   "},
	)

	run, err := o.RunAcquisition(context.Background(), &scriptedAcquirer{items: items})
	require.NoError(t, err)
	assert.Equal(t, 3, run.Counters.Found)
	assert.Equal(t, 1, run.Counters.Acquired)
}

func TestRunAcquisitionCancelledTakesPrecedence(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	o := newOrchestrator(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	acquirer := &scriptedAcquirer{items: goodItems(3), cancel: cancel}

	run, err := o.RunAcquisition(ctx, acquirer)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, pipeline.RunStatusCancelled, run.Status)
	assert.Equal(t, 2, run.Counters.Acquired)

	// Partial progress is preserved and the record is terminal.
	stored, ok, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pipeline.RunStatusCancelled, stored.Status)
}

func TestRunEnrichmentDrainsBatch(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	o := newOrchestrator(t, store)

	_, err := o.RunAcquisition(context.Background(), &scriptedAcquirer{items: goodItems(3)})
	require.NoError(t, err)

	run, err := o.RunEnrichment(context.Background(), pipeline.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, pipeline.RunStatusCompleted, run.Status)
	assert.Equal(t, pipeline.RunKindEnrichment, run.Kind)
	assert.Equal(t, 3, run.Counters.Found)
	assert.Equal(t, 3, run.Counters.Acquired)

	pending, err := store.ListPending(context.Background(), pipeline.PlatformTwitter, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// An empty backlog is a healthy outcome, not a failure.
	again, err := o.RunEnrichment(context.Background(), pipeline.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, pipeline.RunStatusCompleted, again.Status)
	assert.Zero(t, again.Counters.Found)
}

func TestRunAggregationIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	o := newOrchestrator(t, store)

	_, err := o.RunAcquisition(context.Background(), &scriptedAcquirer{items: goodItems(4)})
	require.NoError(t, err)
	_, err = o.RunEnrichment(context.Background(), pipeline.PlatformTwitter)
	require.NoError(t, err)

	first, err := o.RunAggregation(context.Background(), pipeline.PlatformTwitter, testDay)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Collected)
	assert.Equal(t, 4, first.Passed)
	assert.Equal(t, 4, first.Analyzed)
	assert.Equal(t, 4,
		first.PositiveCount+first.NegativeCount+first.NeutralCount+first.MixedCount)
	assert.NotEmpty(t, first.TopKeywords)

	second, err := o.RunAggregation(context.Background(), pipeline.PlatformTwitter, testDay)
	require.NoError(t, err)
	assert.Equal(t, first.Collected, second.Collected)
	assert.Equal(t, first.Analyzed, second.Analyzed)
	assert.InDelta(t, first.AverageScore, second.AverageScore, 1e-9)

	aggs, err := store.ListAggregates(context.Background(), pipeline.PlatformTwitter, testDay.AddDate(0, 0, -1), testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, aggs, 1)
}
