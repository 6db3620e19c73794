package youtube

import (
	"sync"

	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/metrics"
)

// Per-call quota unit costs. Search is two orders of magnitude more expensive
// than list calls, which is why channel expansion is budgeted separately.
const (
	costSearch         = 100
	costVideos         = 1
	costCommentThreads = 1
)

var callCosts = map[string]int{
	"search":         costSearch,
	"videos":         costVideos,
	"commentThreads": costCommentThreads,
}

// QuotaTracker is an advisory counter of API quota units spent this run. The
// server enforces the real quota; the tracker exists so the engine can stop
// issuing expensive calls before the server starts refusing cheap ones.
type QuotaTracker struct {
	mu     sync.Mutex
	budget int
	used   int
	logger *zap.Logger
	warned bool
}

// NewQuotaTracker builds a tracker with the given unit budget. A zero or
// negative budget disables the advisory limit.
func NewQuotaTracker(budget int, logger *zap.Logger) *QuotaTracker {
	return &QuotaTracker{budget: budget, logger: logger}
}

// Spend records the cost of one API call and reports whether the budget is
// now exhausted.
func (q *QuotaTracker) Spend(call string) bool {
	cost, ok := callCosts[call]
	if !ok {
		cost = 1
	}
	metrics.AddQuotaUnits(call, cost)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.used += cost
	if q.budget <= 0 {
		return false
	}
	if q.used >= q.budget && !q.warned {
		q.warned = true
		q.logger.Warn("api quota budget exhausted",
			zap.Int("used", q.used),
			zap.Int("budget", q.budget),
		)
	}
	return q.used >= q.budget
}

// Affordable reports whether a call of the given type fits the remaining
// budget.
func (q *QuotaTracker) Affordable(call string) bool {
	cost, ok := callCosts[call]
	if !ok {
		cost = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.budget <= 0 {
		return true
	}
	return q.used+cost <= q.budget
}

// Used returns the units spent so far.
func (q *QuotaTracker) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}
