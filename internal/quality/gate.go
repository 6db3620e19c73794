package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

// Thresholds are the platform-parameterized gate settings.
type Thresholds struct {
	MinLength          int           `mapstructure:"min_length"`
	MaxLength          int           `mapstructure:"max_length"`
	MaxURLs            int           `mapstructure:"max_urls"`
	MaxMentions        int           `mapstructure:"max_mentions"`
	QualityThreshold   float64       `mapstructure:"quality_threshold"`
	EmojiRuleEnabled   bool          `mapstructure:"emoji_rule_enabled"`
	RepeatRuleEnabled  bool          `mapstructure:"repeat_rule_enabled"`
	DuplicateWindow    time.Duration `mapstructure:"duplicate_window"`
	DuplicatePrefixLen int           `mapstructure:"duplicate_prefix_len"`
}

// DefaultThresholds returns the production defaults for a platform.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinLength:          10,
		MaxLength:          5000,
		MaxURLs:            2,
		MaxMentions:        5,
		QualityThreshold:   0.6,
		EmojiRuleEnabled:   true,
		RepeatRuleEnabled:  true,
		DuplicateWindow:    7 * 24 * time.Hour,
		DuplicatePrefixLen: 50,
	}
}

// Gate evaluates raw items against the rule set and persists the verdict,
// creating the neutral enrichment placeholder for passing items.
type Gate struct {
	store      pipeline.Store
	clock      pipeline.Clock
	logger     *zap.Logger
	weights    Weights
	thresholds map[pipeline.Platform]Thresholds
}

// NewGate constructs a Gate. Platforms without an explicit thresholds entry
// fall back to the defaults.
func NewGate(
	store pipeline.Store,
	clock pipeline.Clock,
	logger *zap.Logger,
	weights Weights,
	thresholds map[pipeline.Platform]Thresholds,
) *Gate {
	if thresholds == nil {
		thresholds = map[pipeline.Platform]Thresholds{}
	}
	return &Gate{
		store:      store,
		clock:      clock,
		logger:     logger,
		weights:    weights,
		thresholds: thresholds,
	}
}

func (g *Gate) thresholdsFor(platform pipeline.Platform) Thresholds {
	if t, ok := g.thresholds[platform]; ok {
		return t
	}
	return DefaultThresholds()
}

// Evaluate scores the item, persists its verdict, and creates the enrichment
// placeholder when the item passes. The verdict is never mutated afterward.
func (g *Gate) Evaluate(ctx context.Context, item pipeline.RawItem) (pipeline.QualityVerdict, error) {
	th := g.thresholdsFor(item.Platform)
	now := g.clock.Now()

	duplicate, err := g.isDuplicate(ctx, item, th, now)
	if err != nil {
		return pipeline.QualityVerdict{}, fmt.Errorf("duplicate lookup: %w", err)
	}

	verdict := g.score(item, th, duplicate)
	verdict.ID = uuid.New()
	verdict.RawItemID = item.ID
	verdict.Platform = item.Platform
	verdict.CreatedAt = now

	if err := g.store.CreateVerdict(ctx, verdict); err != nil {
		return pipeline.QualityVerdict{}, fmt.Errorf("persist verdict: %w", err)
	}

	if verdict.Passed {
		placeholder := pipeline.EnrichedItem{
			ID:         uuid.New(),
			RawItemID:  item.ID,
			Platform:   item.Platform,
			Status:     pipeline.EnrichmentPending,
			SourceText: item.Text,
			Label:      pipeline.SentimentNeutral,
			CreatedAt:  now,
		}
		if _, err := g.store.CreateOrGetPlaceholder(ctx, placeholder); err != nil {
			return pipeline.QualityVerdict{}, fmt.Errorf("create enrichment placeholder: %w", err)
		}
	} else {
		g.logger.Debug("item rejected",
			zap.String("platform", string(item.Platform)),
			zap.String("external_id", item.ExternalID),
			zap.String("reason", verdict.Reason),
		)
	}
	return verdict, nil
}

func (g *Gate) isDuplicate(
	ctx context.Context,
	item pipeline.RawItem,
	th Thresholds,
	now time.Time,
) (bool, error) {
	prefix := NormalizePrefix(item.Text, th.DuplicatePrefixLen)
	if prefix == "" {
		return false, nil
	}
	return g.store.HasRecentPrefix(ctx, item.Platform, prefix, now.Add(-th.DuplicateWindow))
}

// score runs every rule, accumulates the weighted score, and picks the single
// rejection reason by fixed priority. Rules are evaluated in reason-priority
// order so the first failing outcome is the reported one.
func (g *Gate) score(item pipeline.RawItem, th Thresholds, duplicate bool) pipeline.QualityVerdict {
	textLen := len([]rune(item.Text))

	outcomes := []pipeline.RuleOutcome{
		{Name: RuleDuplicate, Passed: !duplicate, Weight: g.weights.Duplicate},
		{Name: RuleLanguage, Passed: languageBalanced(item.Text), Weight: g.weights.Language},
		{Name: RuleBot, Passed: !looksLikeBot(item.Text, item.AuthorHandle), Weight: g.weights.Bot},
		{Name: RuleMinLength, Passed: textLen > 0 && textLen >= th.MinLength, Weight: g.weights.MinLength},
		{Name: RuleMaxLength, Passed: textLen <= th.MaxLength, Weight: g.weights.MaxLength},
		{Name: RuleURLCount, Passed: countURLs(item.Text) <= th.MaxURLs, Weight: g.weights.URLCount},
		{Name: RuleMentionCount, Passed: countMentions(item.Text) <= th.MaxMentions, Weight: g.weights.MentionCount},
	}
	if th.EmojiRuleEnabled {
		outcomes = append(outcomes, pipeline.RuleOutcome{
			Name:   RuleEmoji,
			Passed: countEmoji(item.Text) <= emojiBudget(textLen),
			Weight: g.weights.Emoji,
		})
	}
	if th.RepeatRuleEnabled {
		outcomes = append(outcomes, pipeline.RuleOutcome{
			Name:   RuleRepeatedWord,
			Passed: !hasRepeatedWordRun(item.Text, repeatedWordLimit),
			Weight: g.weights.RepeatedWord,
		})
	}

	score := 1.0
	languagePassed := true
	for _, o := range outcomes {
		if o.Passed {
			continue
		}
		score -= o.Weight
		if o.Name == RuleLanguage {
			languagePassed = false
		}
	}
	if score < 0 {
		score = 0
	}

	// The language rule is an unconditional veto regardless of score.
	passed := score >= th.QualityThreshold && languagePassed

	verdict := pipeline.QualityVerdict{
		Outcomes: outcomes,
		Score:    score,
		Passed:   passed,
	}
	if !passed {
		verdict.Reason = rejectionReason(outcomes, score, th.QualityThreshold)
	}
	return verdict
}

// rejectionReason reports exactly one reason: the first failing rule in
// priority order, or the generic score message when no single rule explains
// the failure.
func rejectionReason(outcomes []pipeline.RuleOutcome, score, threshold float64) string {
	reasons := map[string]string{
		RuleDuplicate:    "duplicate of recently collected content",
		RuleLanguage:     "text does not look like the target language",
		RuleBot:          "matches bot or spam patterns",
		RuleMinLength:    "text is shorter than the platform minimum",
		RuleMaxLength:    "text exceeds the platform maximum length",
		RuleURLCount:     "too many links",
		RuleMentionCount: "too many mentions",
		RuleEmoji:        "excessive emoji for the text length",
		RuleRepeatedWord: "repeated word run",
	}
	for _, o := range outcomes {
		if !o.Passed {
			return reasons[o.Name]
		}
	}
	return fmt.Sprintf("quality score %.2f below threshold %.2f", score, threshold)
}
