// Package pipeline defines the core types shared across the acquisition,
// quality, and enrichment subsystems, plus the orchestrator that sequences them.
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies an acquisition source.
type Platform string

// Supported acquisition platforms.
const (
	PlatformTwitter Platform = "twitter"
	PlatformYouTube Platform = "youtube"
)

// RunStatus represents the lifecycle state of an acquisition or enrichment run.
type RunStatus string

// Run status values persisted in the run store. Terminal states are final.
const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// RunKind distinguishes what a run invocation was doing.
type RunKind string

// Run kinds.
const (
	RunKindAcquisition RunKind = "acquisition"
	RunKindEnrichment  RunKind = "enrichment"
)

// Run records one acquisition (or enrichment) invocation. Only the
// orchestrator mutates it, and only while its status is RUNNING.
type Run struct {
	ID        uuid.UUID   `json:"id"`
	Kind      RunKind     `json:"kind"`
	Platform  Platform    `json:"platform"`
	Status    RunStatus   `json:"status"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
	Counters  RunCounters `json:"counters"`
	Sources   []string    `json:"sources,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
}

// RunCounters tracks per-run progress. Found counts every item the engine
// encountered, acquired only newly stored ones, passed only gate passes.
type RunCounters struct {
	Found    int `json:"found"`
	Acquired int `json:"acquired"`
	Passed   int `json:"passed"`
}

// RawItem is a social post as acquired from a source. Immutable once stored;
// deduplicated by (platform, external id).
type RawItem struct {
	ID           uuid.UUID `json:"id"`
	Platform     Platform  `json:"platform"`
	ExternalID   string    `json:"external_id"`
	AuthorName   string    `json:"author_name"`
	AuthorHandle string    `json:"author_handle"`
	Verified     bool      `json:"verified"`
	Text         string    `json:"text"`
	LikeCount    int       `json:"like_count"`
	ReplyCount   int       `json:"reply_count"`
	ShareCount   int       `json:"share_count"`
	PublishedAt  time.Time `json:"published_at"`
	AcquiredAt   time.Time `json:"acquired_at"`

	// Source context: the search keyword (twitter) or video/channel id
	// (youtube) the item was collected under.
	SourceKeyword string `json:"source_keyword,omitempty"`
	SourceVideoID string `json:"source_video_id,omitempty"`
}

// RuleOutcome is the result of one quality rule evaluation.
type RuleOutcome struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Weight float64 `json:"weight"`
}

// QualityVerdict is the gate decision for one raw item. Written once,
// immediately after the raw item is stored, and never mutated.
type QualityVerdict struct {
	ID        uuid.UUID     `json:"id"`
	RawItemID uuid.UUID     `json:"raw_item_id"`
	Platform  Platform      `json:"platform"`
	Outcomes  []RuleOutcome `json:"outcomes"`
	Score     float64       `json:"score"`
	Passed    bool          `json:"passed"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// SentimentLabel classifies the overall polarity of an item.
type SentimentLabel string

// Sentiment labels.
const (
	SentimentPositive SentimentLabel = "POSITIVE"
	SentimentNegative SentimentLabel = "NEGATIVE"
	SentimentNeutral  SentimentLabel = "NEUTRAL"
	SentimentMixed    SentimentLabel = "MIXED"
)

// EnrichmentStatus marks whether an enriched row still awaits analysis.
type EnrichmentStatus string

// Enrichment statuses. Placeholder rows are created by the quality gate and
// selected by the enrichment engine; enriched rows are never reprocessed.
const (
	EnrichmentPending EnrichmentStatus = "pending"
	EnrichmentDone    EnrichmentStatus = "enriched"
)

// KeywordCount is one extracted keyword with its frequency statistics.
type KeywordCount struct {
	Term  string  `json:"term"`
	Count int     `json:"count"`
	Score float64 `json:"score"`
}

// SentimentDetail carries the structured evidence behind a sentiment score.
type SentimentDetail struct {
	PositiveMatches []string `json:"positive_matches"`
	NegativeMatches []string `json:"negative_matches"`
	ContextualHits  []string `json:"contextual_hits"`
	Negated         bool     `json:"negated"`
	Boosted         bool     `json:"boosted"`
	RawScore        float64  `json:"raw_score"`
	WeightedScore   float64  `json:"weighted_score"`
}

// EnrichedItem holds the analysis result for a raw item that passed the
// quality gate. Created as a neutral placeholder by the gate, filled in
// exactly once by the enrichment engine.
type EnrichedItem struct {
	ID         uuid.UUID        `json:"id"`
	RawItemID  uuid.UUID        `json:"raw_item_id"`
	Platform   Platform         `json:"platform"`
	Status     EnrichmentStatus `json:"status"`
	SourceText string           `json:"source_text"`

	CleanedText    string          `json:"cleaned_text"`
	NormalizedText string          `json:"normalized_text"`
	Label          SentimentLabel  `json:"label"`
	Score          float64         `json:"score"`
	Confidence     float64         `json:"confidence"`
	Detail         SentimentDetail `json:"detail"`
	Keywords       []KeywordCount  `json:"keywords"`

	CreatedAt  time.Time  `json:"created_at"`
	EnrichedAt *time.Time `json:"enriched_at,omitempty"`
}

// EnrichmentResult is the payload the enrichment engine writes onto a
// placeholder row.
type EnrichmentResult struct {
	CleanedText    string          `json:"cleaned_text"`
	NormalizedText string          `json:"normalized_text"`
	Label          SentimentLabel  `json:"label"`
	Score          float64         `json:"score"`
	Confidence     float64         `json:"confidence"`
	Detail         SentimentDetail `json:"detail"`
	Keywords       []KeywordCount  `json:"keywords"`
	EnrichedAt     time.Time       `json:"enriched_at"`
}

// WhitelistTargetType distinguishes whitelist entries for the API engine.
type WhitelistTargetType string

// Whitelist target types.
const (
	TargetVideo   WhitelistTargetType = "video"
	TargetChannel WhitelistTargetType = "channel"
)

// WhitelistEntry is an externally maintained acquisition target for the API
// engine. The engine reads entries and reports collected counts but does not
// own them.
type WhitelistEntry struct {
	Type      WhitelistTargetType `json:"type"`
	TargetID  string              `json:"target_id"`
	Priority  int                 `json:"priority"`
	MaxItems  int                 `json:"max_items"`
	Collected int                 `json:"collected"`
	Active    bool                `json:"active"`
}

// DailyAggregate is the per-day, per-platform rollup. Recomputed idempotently
// from the stored enriched population; never incremented in place.
type DailyAggregate struct {
	Date          time.Time      `json:"date"`
	Platform      Platform       `json:"platform"`
	Collected     int            `json:"collected"`
	Passed        int            `json:"passed"`
	Analyzed      int            `json:"analyzed"`
	PositiveCount int            `json:"positive_count"`
	NegativeCount int            `json:"negative_count"`
	NeutralCount  int            `json:"neutral_count"`
	MixedCount    int            `json:"mixed_count"`
	AverageScore  float64        `json:"average_score"`
	TopKeywords   []KeywordCount `json:"top_keywords"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
