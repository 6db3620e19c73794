package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

var day = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func TestCreateIfAbsentDeduplicates(t *testing.T) {
	t.Parallel()

	store := NewStore()
	item := pipeline.RawItem{
		Platform:   pipeline.PlatformTwitter,
		ExternalID: "42",
		Text:       "makan siang gratis",
		AcquiredAt: day,
	}

	first, created, err := store.CreateIfAbsent(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, first.ID)

	second, created, err := store.CreateIfAbsent(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	seen, err := store.HasItem(context.Background(), pipeline.PlatformTwitter, "42")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = store.HasItem(context.Background(), pipeline.PlatformYouTube, "42")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestHasRecentPrefixRequiresSecondOccurrence(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	text := "Menu hari ini sangat bagus dan bergizi untuk para siswa"

	_, _, err := store.CreateIfAbsent(ctx, pipeline.RawItem{
		Platform: pipeline.PlatformTwitter, ExternalID: "1", Text: text, AcquiredAt: day,
	})
	require.NoError(t, err)

	// The gated item itself is the single occurrence.
	dup, err := store.HasRecentPrefix(ctx, pipeline.PlatformTwitter, "menu hari ini sangat", day.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, dup)

	_, _, err = store.CreateIfAbsent(ctx, pipeline.RawItem{
		Platform: pipeline.PlatformTwitter, ExternalID: "2", Text: text + " sekali", AcquiredAt: day,
	})
	require.NoError(t, err)

	dup, err = store.HasRecentPrefix(ctx, pipeline.PlatformTwitter, "menu hari ini sangat", day.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, dup)

	// Outside the window nothing matches.
	dup, err = store.HasRecentPrefix(ctx, pipeline.PlatformTwitter, "menu hari ini sangat", day.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestPlaceholderLifecycle(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	rawID := uuid.New()

	_, _, err := store.CreateIfAbsent(ctx, pipeline.RawItem{
		ID:         rawID,
		Platform:   pipeline.PlatformTwitter,
		ExternalID: "raw-1",
		Text:       "teks asli",
		AcquiredAt: day,
	})
	require.NoError(t, err)

	placeholder := pipeline.EnrichedItem{
		ID:         uuid.New(),
		RawItemID:  rawID,
		Platform:   pipeline.PlatformTwitter,
		Status:     pipeline.EnrichmentPending,
		SourceText: "teks asli",
		Label:      pipeline.SentimentNeutral,
		CreatedAt:  day,
	}
	created, err := store.CreateOrGetPlaceholder(ctx, placeholder)
	require.NoError(t, err)
	assert.Equal(t, placeholder.ID, created.ID)

	// A second insert for the same raw item returns the existing row.
	again, err := store.CreateOrGetPlaceholder(ctx, pipeline.EnrichedItem{ID: uuid.New(), RawItemID: rawID})
	require.NoError(t, err)
	assert.Equal(t, placeholder.ID, again.ID)

	result := pipeline.EnrichmentResult{
		CleanedText:    "teks asli",
		NormalizedText: "teks asli",
		Label:          pipeline.SentimentPositive,
		Score:          0.9,
		Confidence:     0.8,
		EnrichedAt:     day.Add(time.Minute),
	}
	require.NoError(t, store.UpdateEnrichment(ctx, placeholder.ID, result))

	pending, err := store.ListPending(ctx, pipeline.PlatformTwitter, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Enriched rows are immutable under further updates.
	require.NoError(t, store.UpdateEnrichment(ctx, placeholder.ID, pipeline.EnrichmentResult{
		Label: pipeline.SentimentNegative, EnrichedAt: day.Add(2 * time.Minute),
	}))
	items, err := store.ListEnrichedByDay(ctx, pipeline.PlatformTwitter, day)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, pipeline.SentimentPositive, items[0].Label)
	assert.Equal(t, pipeline.EnrichmentDone, items[0].Status)
}

func TestRunRecords(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	run := pipeline.Run{ID: uuid.New(), Kind: pipeline.RunKindAcquisition, Platform: pipeline.PlatformTwitter, Status: pipeline.RunStatusRunning, StartedAt: day}
	require.NoError(t, store.CreateRun(ctx, run))

	run.Status = pipeline.RunStatusCompleted
	require.NoError(t, store.UpdateRun(ctx, run))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, pipeline.RunStatusCompleted, runs[0].Status)
}

func TestWhitelistOrderingAndCounts(t *testing.T) {
	t.Parallel()

	wl := NewWhitelist(
		pipeline.WhitelistEntry{Type: pipeline.TargetVideo, TargetID: "low", Priority: 1, Active: true},
		pipeline.WhitelistEntry{Type: pipeline.TargetVideo, TargetID: "high", Priority: 9, Active: true},
		pipeline.WhitelistEntry{Type: pipeline.TargetVideo, TargetID: "off", Priority: 5, Active: false},
		pipeline.WhitelistEntry{Type: pipeline.TargetChannel, TargetID: "chan", Priority: 3, Active: true},
	)

	targets, err := wl.ListActiveTargets(context.Background(), pipeline.TargetVideo)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "high", targets[0].TargetID)
	assert.Equal(t, "low", targets[1].TargetID)

	require.NoError(t, wl.RecordCollected(context.Background(), pipeline.TargetVideo, "high", 7))
	targets, err = wl.ListActiveTargets(context.Background(), pipeline.TargetVideo)
	require.NoError(t, err)
	assert.Equal(t, 7, targets[0].Collected)
}
