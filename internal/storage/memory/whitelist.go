package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

// Whitelist is the in-memory pipeline.WhitelistStore. Entries are seeded by
// the caller; the engine only reads them and reports collection counts.
type Whitelist struct {
	mu      sync.Mutex
	entries []pipeline.WhitelistEntry
}

// NewWhitelist seeds a whitelist with the given entries.
func NewWhitelist(entries ...pipeline.WhitelistEntry) *Whitelist {
	return &Whitelist{entries: entries}
}

// Add appends an entry.
func (w *Whitelist) Add(entry pipeline.WhitelistEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
}

// ListActiveTargets returns active entries of the type ordered by priority
// descending, then registration order.
func (w *Whitelist) ListActiveTargets(_ context.Context, targetType pipeline.WhitelistTargetType) ([]pipeline.WhitelistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []pipeline.WhitelistEntry
	for _, entry := range w.entries {
		if entry.Type == targetType && entry.Active {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// RecordCollected adds count to the entry's cumulative collected counter.
func (w *Whitelist) RecordCollected(_ context.Context, targetType pipeline.WhitelistTargetType, targetID string, count int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.entries {
		if w.entries[i].Type == targetType && w.entries[i].TargetID == targetID {
			w.entries[i].Collected += count
			return nil
		}
	}
	return nil
}
