package enrich

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/metrics"
	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

// Engine processes pending enrichment placeholders in bounded batches. Items
// are independent of one another, so a batch fans out over a small worker
// pool with no ordering requirement.
type Engine struct {
	store    pipeline.Store
	analyzer *Analyzer
	clock    pipeline.Clock
	logger   *zap.Logger
	workers  int
}

// NewEngine constructs an Engine with the given worker pool size.
func NewEngine(store pipeline.Store, analyzer *Analyzer, clock pipeline.Clock, logger *zap.Logger, workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		store:    store,
		analyzer: analyzer,
		clock:    clock,
		logger:   logger,
		workers:  workers,
	}
}

// ProcessBatch analyzes every placeholder in the batch and writes the results
// back. Returns the number of successfully enriched items. A failed write
// skips that item only; the batch keeps going.
func (e *Engine) ProcessBatch(ctx context.Context, items []pipeline.EnrichedItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	jobs := make(chan pipeline.EnrichedItem)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	workers := e.workers
	if workers > len(items) {
		workers = len(items)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				if err := e.enrichOne(ctx, item); err != nil {
					e.logger.Error("enrichment failed",
						zap.String("item_id", item.ID.String()),
						zap.Error(err),
					)
					continue
				}
				mu.Lock()
				done++
				mu.Unlock()
			}
		}()
	}

feed:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- item:
		}
	}
	close(jobs)
	wg.Wait()

	metrics.ObserveEnrichmentBatch(len(items), done)
	if err := ctx.Err(); err != nil {
		return done, err
	}
	return done, nil
}

func (e *Engine) enrichOne(ctx context.Context, item pipeline.EnrichedItem) error {
	result := e.analyzer.Analyze(item.SourceText)
	result.EnrichedAt = e.clock.Now()
	if err := e.store.UpdateEnrichment(ctx, item.ID, result); err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	return nil
}
