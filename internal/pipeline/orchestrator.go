package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/metrics"
)

// Orchestrator drives the three pipeline stages: it runs acquisition engines
// against the store through a counting sink, feeds gate-passed items to the
// enricher in batches, and folds enriched items into daily aggregates. Every
// invocation is recorded as a run with a terminal status.
type Orchestrator struct {
	store     Store
	gate      Gate
	enricher  Enricher
	clock     Clock
	logger    *zap.Logger
	batchSize int
}

// NewOrchestrator validates the wiring and returns an orchestrator.
func NewOrchestrator(store Store, gate Gate, enricher Enricher, clock Clock, logger *zap.Logger, batchSize int) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if gate == nil {
		return nil, errors.New("pipeline: quality gate is required")
	}
	if enricher == nil {
		return nil, errors.New("pipeline: enricher is required")
	}
	if clock == nil {
		return nil, errors.New("pipeline: clock is required")
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Orchestrator{
		store:     store,
		gate:      gate,
		enricher:  enricher,
		clock:     clock,
		logger:    logger,
		batchSize: batchSize,
	}, nil
}

// runSink implements Sink for one acquisition run. It owns the counters and
// the persist-then-gate sequence, so engines stay store-agnostic.
type runSink struct {
	o        *Orchestrator
	platform Platform

	mu       sync.Mutex
	counters RunCounters
}

func (s *runSink) addFound() {
	s.mu.Lock()
	s.counters.Found++
	s.mu.Unlock()
	metrics.IncFound(string(s.platform))
}

// Seen reports whether the item is already stored. A seen item counts as
// found: the engine encountered it, even though it skips the full extraction.
func (s *runSink) Seen(ctx context.Context, externalID string) (bool, error) {
	seen, err := s.o.store.HasItem(ctx, s.platform, externalID)
	if err != nil {
		return false, err
	}
	if seen {
		s.addFound()
	}
	return seen, nil
}

// Offer counts the item as found, persists it if new, and gates new items.
// Malformed items (no identity or no text) are counted and dropped; a gate
// failure leaves the item stored but unassessed.
func (s *runSink) Offer(ctx context.Context, item RawItem) (bool, error) {
	s.addFound()

	if item.ExternalID == "" || strings.TrimSpace(item.Text) == "" {
		s.o.logger.Debug("dropping malformed item",
			zap.String("platform", string(s.platform)),
			zap.String("external_id", item.ExternalID),
		)
		return false, nil
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.AcquiredAt.IsZero() {
		item.AcquiredAt = s.o.clock.Now()
	}

	stored, created, err := s.o.store.CreateIfAbsent(ctx, item)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}
	s.mu.Lock()
	s.counters.Acquired++
	s.mu.Unlock()
	metrics.IncAcquired(string(s.platform))

	verdict, err := s.o.gate.Evaluate(ctx, stored)
	if err != nil {
		s.o.logger.Error("quality gate failed, item stored unassessed",
			zap.String("external_id", stored.ExternalID),
			zap.Error(err),
		)
		return true, nil
	}
	if verdict.Passed {
		s.mu.Lock()
		s.counters.Passed++
		s.mu.Unlock()
		metrics.IncPassed(string(s.platform))
	}
	return true, nil
}

func (s *runSink) snapshot() RunCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// RunAcquisition executes one acquisition run for the engine. Cancellation
// takes precedence over failure in the terminal status; a run that acquired
// nothing new while the source yielded nothing at all is recorded as FAILED.
func (o *Orchestrator) RunAcquisition(ctx context.Context, acquirer Acquirer) (Run, error) {
	run := Run{
		ID:        uuid.New(),
		Kind:      RunKindAcquisition,
		Platform:  acquirer.Platform(),
		Status:    RunStatusRunning,
		StartedAt: o.clock.Now(),
		Sources:   acquirer.Sources(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return run, err
	}
	o.logger.Info("acquisition run started",
		zap.String("run_id", run.ID.String()),
		zap.String("platform", string(run.Platform)),
	)

	sink := &runSink{o: o, platform: run.Platform}
	err := acquirer.Acquire(ctx, sink)

	run.Counters = sink.snapshot()
	run.Sources = acquirer.Sources()
	return o.finishRun(ctx, run, err)
}

// RunEnrichment lists one batch of gate-passed placeholders and analyzes it.
// Found counts the batch, Acquired the successfully enriched items.
func (o *Orchestrator) RunEnrichment(ctx context.Context, platform Platform) (Run, error) {
	run := Run{
		ID:        uuid.New(),
		Kind:      RunKindEnrichment,
		Platform:  platform,
		Status:    RunStatusRunning,
		StartedAt: o.clock.Now(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return run, err
	}

	items, err := o.store.ListPending(ctx, platform, o.batchSize)
	if err != nil {
		return o.finishRun(ctx, run, err)
	}
	run.Counters.Found = len(items)
	if len(items) == 0 {
		return o.finishRun(ctx, run, nil)
	}

	done, err := o.enricher.ProcessBatch(ctx, items)
	run.Counters.Acquired = done
	return o.finishRun(ctx, run, err)
}

// finishRun assigns the terminal status, persists it, and observes metrics.
func (o *Orchestrator) finishRun(ctx context.Context, run Run, runErr error) (Run, error) {
	ended := o.clock.Now()
	run.EndedAt = &ended

	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		run.Status = RunStatusCancelled
		run.ErrorText = runErr.Error()
	case runErr != nil:
		run.Status = RunStatusFailed
		run.ErrorText = runErr.Error()
	case run.Kind == RunKindAcquisition && run.Counters.Acquired == 0:
		// The found counter still distinguishes "nothing found" from
		// "everything already stored".
		run.Status = RunStatusFailed
		run.ErrorText = "no items acquired"
	default:
		run.Status = RunStatusCompleted
	}

	// The run record must land even when the run context is gone.
	updateCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		updateCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := o.store.UpdateRun(updateCtx, run); err != nil {
		o.logger.Error("persist run record failed",
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
	}
	metrics.ObserveRun(string(run.Platform), string(run.Status))
	o.logger.Info("run finished",
		zap.String("run_id", run.ID.String()),
		zap.String("kind", string(run.Kind)),
		zap.String("status", string(run.Status)),
		zap.Int("found", run.Counters.Found),
		zap.Int("acquired", run.Counters.Acquired),
		zap.Int("passed", run.Counters.Passed),
	)
	return run, runErr
}
