package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

var engineNow = time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

type engineClock struct{}

func (engineClock) Now() time.Time { return engineNow }

type recordingStore struct {
	pipeline.Store

	mu      sync.Mutex
	updated map[uuid.UUID]pipeline.EnrichmentResult
	failOn  uuid.UUID
}

func (s *recordingStore) UpdateEnrichment(_ context.Context, id uuid.UUID, result pipeline.EnrichmentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.failOn {
		return errors.New("write refused")
	}
	if s.updated == nil {
		s.updated = map[uuid.UUID]pipeline.EnrichmentResult{}
	}
	s.updated[id] = result
	return nil
}

func pendingBatch(n int) []pipeline.EnrichedItem {
	items := make([]pipeline.EnrichedItem, n)
	for i := range items {
		items[i] = pipeline.EnrichedItem{
			ID:         uuid.New(),
			Platform:   pipeline.PlatformTwitter,
			Status:     pipeline.EnrichmentPending,
			SourceText: "menu mbg hari ini enak dan anak senang",
		}
	}
	return items
}

func TestEngineProcessBatch(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	engine := NewEngine(store, newTestAnalyzer(), engineClock{}, zap.NewNop(), 3)

	items := pendingBatch(7)
	done, err := engine.ProcessBatch(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 7, done)
	assert.Len(t, store.updated, 7)

	for _, item := range items {
		result, ok := store.updated[item.ID]
		require.True(t, ok)
		assert.NotEmpty(t, result.NormalizedText)
		assert.NotEqual(t, pipeline.SentimentLabel(""), result.Label)
		assert.Equal(t, engineNow, result.EnrichedAt)
	}
}

func TestEngineProcessBatchSkipsFailedWrites(t *testing.T) {
	t.Parallel()

	items := pendingBatch(4)
	store := &recordingStore{failOn: items[1].ID}
	engine := NewEngine(store, newTestAnalyzer(), engineClock{}, zap.NewNop(), 2)

	done, err := engine.ProcessBatch(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 3, done)
}

func TestEngineProcessBatchEmpty(t *testing.T) {
	t.Parallel()

	engine := NewEngine(&recordingStore{}, newTestAnalyzer(), engineClock{}, zap.NewNop(), 2)
	done, err := engine.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, done)
}

func TestEngineProcessBatchHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(&recordingStore{}, newTestAnalyzer(), engineClock{}, zap.NewNop(), 2)
	_, err := engine.ProcessBatch(ctx, pendingBatch(50))
	assert.ErrorIs(t, err, context.Canceled)
}
