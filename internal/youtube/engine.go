package youtube

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
	"github.com/madun/platform-nlp-dqm/internal/ratelimit"
)

// EngineConfig holds the comment collector settings.
type EngineConfig struct {
	MaxCommentsPerVideo int
	MaxVideosPerChannel int
	CommentPageSize     int
}

func (c *EngineConfig) applyDefaults() {
	if c.MaxCommentsPerVideo <= 0 {
		c.MaxCommentsPerVideo = 200
	}
	if c.MaxVideosPerChannel <= 0 {
		c.MaxVideosPerChannel = 10
	}
	if c.CommentPageSize <= 0 {
		c.CommentPageSize = 100
	}
}

// target is one resolved unit of work: a video whose comments we collect,
// attributed to the whitelist entry it came from.
type target struct {
	videoID  string
	entry    pipeline.WhitelistEntry
	maxItems int
}

// Engine acquires comments from whitelisted videos and channels through the
// data API. One video is one unit of work for rate-limit purposes; quota
// exhaustion is terminal for the whole run.
type Engine struct {
	client    *Client
	whitelist pipeline.WhitelistStore
	quota     *QuotaTracker
	throttle  *ratelimit.Throttle
	backoff   *ratelimit.BackoffPolicy
	clock     pipeline.Clock
	cfg       EngineConfig
	logger    *zap.Logger

	mu      sync.Mutex
	sources []string
}

// NewEngine validates the wiring and returns an API acquisition engine.
func NewEngine(client *Client, whitelist pipeline.WhitelistStore, quota *QuotaTracker, throttle *ratelimit.Throttle, backoff *ratelimit.BackoffPolicy, clock pipeline.Clock, cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	if client == nil {
		return nil, errors.New("youtube: client is required")
	}
	if whitelist == nil {
		return nil, errors.New("youtube: whitelist store is required")
	}
	if quota == nil {
		return nil, errors.New("youtube: quota tracker is required")
	}
	if throttle == nil || backoff == nil {
		return nil, errors.New("youtube: throttle and backoff policy are required")
	}
	if clock == nil {
		return nil, errors.New("youtube: clock is required")
	}
	cfg.applyDefaults()
	return &Engine{
		client:    client,
		whitelist: whitelist,
		quota:     quota,
		throttle:  throttle,
		backoff:   backoff,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

func (e *Engine) Platform() pipeline.Platform { return pipeline.PlatformYouTube }

// Sources returns the whitelist target ids resolved during the most recent
// acquisition.
func (e *Engine) Sources() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.sources))
	copy(out, e.sources)
	return out
}

// Acquire resolves the whitelist into videos, runs the metadata pre-pass,
// then pages comments per video. ErrQuotaExceeded aborts the run; any other
// per-video failure skips that video.
func (e *Engine) Acquire(ctx context.Context, sink pipeline.Sink) error {
	targets, err := e.resolveTargets(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		e.logger.Warn("whitelist resolved to no video targets")
		return nil
	}

	targets, err = e.filterByMetadata(ctx, targets)
	if err != nil {
		return err
	}

	collected := make(map[pipeline.WhitelistEntry]int)
	for _, tgt := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := e.collectVideo(ctx, sink, tgt)
		collected[tgt.entry] += n
		if err != nil {
			if errors.Is(err, ErrQuotaExceeded) || ctx.Err() != nil {
				e.recordCollected(ctx, collected)
				return err
			}
			e.logger.Error("video abandoned",
				zap.String("video_id", tgt.videoID),
				zap.Error(err),
			)
		}
	}
	e.recordCollected(ctx, collected)
	return nil
}

// resolveTargets loads whitelist entries and expands channel entries into
// their recent uploads, preserving priority order. Channel expansion uses the
// expensive search call, so it is skipped once the quota budget cannot
// afford it.
func (e *Engine) resolveTargets(ctx context.Context) ([]target, error) {
	videos, err := e.whitelist.ListActiveTargets(ctx, pipeline.TargetVideo)
	if err != nil {
		return nil, fmt.Errorf("list video targets: %w", err)
	}
	channels, err := e.whitelist.ListActiveTargets(ctx, pipeline.TargetChannel)
	if err != nil {
		return nil, fmt.Errorf("list channel targets: %w", err)
	}

	var (
		targets []target
		sources []string
		seen    = make(map[string]struct{})
	)
	add := func(videoID string, entry pipeline.WhitelistEntry) {
		if _, dup := seen[videoID]; dup {
			return
		}
		seen[videoID] = struct{}{}
		maxItems := entry.MaxItems
		if maxItems <= 0 || maxItems > e.cfg.MaxCommentsPerVideo {
			maxItems = e.cfg.MaxCommentsPerVideo
		}
		targets = append(targets, target{videoID: videoID, entry: entry, maxItems: maxItems})
	}

	for _, entry := range videos {
		sources = append(sources, string(entry.Type)+":"+entry.TargetID)
		add(entry.TargetID, entry)
	}
	for _, entry := range channels {
		sources = append(sources, string(entry.Type)+":"+entry.TargetID)
		if !e.quota.Affordable("search") {
			e.logger.Warn("skipping channel expansion, quota budget too low",
				zap.String("channel_id", entry.TargetID),
			)
			continue
		}
		if err := e.throttle.Wait(ctx); err != nil {
			return nil, err
		}
		uploads, err := e.client.ChannelUploads(ctx, entry.TargetID, e.cfg.MaxVideosPerChannel)
		if err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				return nil, err
			}
			e.logger.Error("channel expansion failed",
				zap.String("channel_id", entry.TargetID),
				zap.Error(err),
			)
			continue
		}
		for _, videoID := range uploads {
			add(videoID, entry)
		}
	}

	e.mu.Lock()
	e.sources = sources
	e.mu.Unlock()
	return targets, nil
}

// filterByMetadata batch-fetches video metadata and drops videos that no
// longer exist or have no comments, saving a commentThreads call each.
func (e *Engine) filterByMetadata(ctx context.Context, targets []target) ([]target, error) {
	ids := make([]string, len(targets))
	for i, tgt := range targets {
		ids[i] = tgt.videoID
	}
	if err := e.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	videos, err := e.client.Videos(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("metadata pre-pass: %w", err)
	}

	withComments := make(map[string]bool, len(videos))
	for _, v := range videos {
		withComments[v.ID] = v.CommentCount > 0
	}
	kept := targets[:0]
	for _, tgt := range targets {
		hasComments, known := withComments[tgt.videoID]
		if !known {
			e.logger.Debug("video missing or private, skipping", zap.String("video_id", tgt.videoID))
			continue
		}
		if !hasComments {
			continue
		}
		kept = append(kept, tgt)
	}
	return kept, nil
}

// collectVideo pages the video's comment threads until the per-target cap,
// the last page, or a page of entirely known comments. Comments arrive newest
// first, so a fully seen page means the incremental frontier from a previous
// run has been reached. Returns the number of new comments stored.
func (e *Engine) collectVideo(ctx context.Context, sink pipeline.Sink, tgt target) (int, error) {
	var collected int
	err := e.backoff.Retry(ctx, e.logger, nil, func(ctx context.Context) error {
		pageToken := ""
		collected = 0
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.throttle.Wait(ctx); err != nil {
				return err
			}
			comments, next, err := e.client.CommentThreads(ctx, tgt.videoID, pageToken, e.cfg.CommentPageSize)
			if err != nil {
				return err
			}
			pageHadNew := false
			for _, comment := range comments {
				seen, err := sink.Seen(ctx, comment.ID)
				if err != nil {
					return err
				}
				if seen {
					continue
				}
				pageHadNew = true
				created, err := sink.Offer(ctx, e.toRawItem(comment))
				if err != nil {
					return err
				}
				if created {
					collected++
				}
				if collected >= tgt.maxItems {
					return nil
				}
			}
			if next == "" || (len(comments) > 0 && !pageHadNew) {
				return nil
			}
			pageToken = next
		}
	})
	return collected, err
}

func (e *Engine) toRawItem(comment Comment) pipeline.RawItem {
	return pipeline.RawItem{
		Platform:      pipeline.PlatformYouTube,
		ExternalID:    comment.ID,
		AuthorName:    comment.AuthorName,
		Text:          comment.Text,
		LikeCount:     comment.LikeCount,
		ReplyCount:    comment.ReplyCount,
		PublishedAt:   comment.PublishedAt,
		AcquiredAt:    e.clock.Now(),
		SourceVideoID: comment.VideoID,
	}
}

// recordCollected reports per-entry collection counts back to the whitelist.
// Reporting failures are logged only; the items themselves are already
// stored.
func (e *Engine) recordCollected(ctx context.Context, collected map[pipeline.WhitelistEntry]int) {
	// Use a detached timeout so counts still land when the run context is
	// already cancelled.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	for entry, count := range collected {
		if count == 0 {
			continue
		}
		if err := e.whitelist.RecordCollected(ctx, entry.Type, entry.TargetID, count); err != nil {
			e.logger.Error("record collected count failed",
				zap.String("target_id", entry.TargetID),
				zap.Int("count", count),
				zap.Error(err),
			)
		}
	}
}
