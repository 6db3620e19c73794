package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
	"github.com/madun/platform-nlp-dqm/internal/ratelimit"
)

// Config holds the browser engine settings for one platform instance.
type Config struct {
	BaseURL      string
	Username     string
	Password     string
	Verification string

	Keywords           []string
	MaxItemsPerKeyword int
	StagnationLimit    int
	ScrollDelay        time.Duration
	MaxDeferred        int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://x.com"
	}
	if c.MaxItemsPerKeyword <= 0 {
		c.MaxItemsPerKeyword = 100
	}
	if c.StagnationLimit <= 0 {
		c.StagnationLimit = 3
	}
	if c.ScrollDelay <= 0 {
		c.ScrollDelay = 2 * time.Second
	}
	if c.MaxDeferred <= 0 {
		c.MaxDeferred = 10
	}
}

// DriverFactory opens a fresh browser session. The engine opens one session
// per run and closes it on every exit path.
type DriverFactory func() (Driver, error)

// Engine acquires posts by driving a real browser over the platform's search
// feed. One keyword is one unit of work: a rate-limited keyword is retried
// with backoff, and an exhausted keyword is skipped without aborting the run.
type Engine struct {
	newDriver DriverFactory
	cfg       Config
	throttle  *ratelimit.Throttle
	backoff   *ratelimit.BackoffPolicy
	clock     pipeline.Clock
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewEngine validates the wiring and returns a browser acquisition engine.
func NewEngine(factory DriverFactory, cfg Config, throttle *ratelimit.Throttle, backoff *ratelimit.BackoffPolicy, clock pipeline.Clock, logger *zap.Logger) (*Engine, error) {
	if factory == nil {
		return nil, errors.New("browser: driver factory is required")
	}
	if throttle == nil || backoff == nil {
		return nil, errors.New("browser: throttle and backoff policy are required")
	}
	if clock == nil {
		return nil, errors.New("browser: clock is required")
	}
	if len(cfg.Keywords) == 0 {
		return nil, errors.New("browser: at least one search keyword is required")
	}
	cfg.applyDefaults()
	return &Engine{
		newDriver: factory,
		cfg:       cfg,
		throttle:  throttle,
		backoff:   backoff,
		clock:     clock,
		logger:    logger,
		sleep:     sleepCtx,
	}, nil
}

func (e *Engine) Platform() pipeline.Platform { return pipeline.PlatformTwitter }

func (e *Engine) Sources() []string { return e.cfg.Keywords }

// Acquire runs the full keyword sweep over one browser session. A failed
// login degrades the session to anonymous collection instead of aborting;
// only a session that cannot be opened at all fails the run.
func (e *Engine) Acquire(ctx context.Context, sink pipeline.Sink) error {
	driver, err := e.newDriver()
	if err != nil {
		return fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if cerr := driver.Close(); cerr != nil {
			e.logger.Warn("browser session close failed", zap.Error(cerr))
		}
	}()

	s := &session{driver: driver, state: StateNotLoggedIn, logger: e.logger}
	if err := s.login(ctx, e.cfg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Error("login failed, continuing with anonymous session", zap.Error(err))
	}

	for _, keyword := range e.cfg.Keywords {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		kw := keyword
		err := e.backoff.Retry(ctx, e.logger, func(ctx context.Context) error {
			return e.recoverSession(ctx, s)
		}, func(ctx context.Context) error {
			return e.collectKeyword(ctx, s, sink, kw)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("keyword abandoned",
				zap.String("keyword", kw),
				zap.String("session_state", string(s.state)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// recoverSession navigates back to the platform home page between retry
// attempts so the next attempt starts from a clean feed.
func (e *Engine) recoverSession(ctx context.Context, s *session) error {
	return s.driver.Navigate(ctx, e.cfg.BaseURL+"/home")
}

func (e *Engine) searchURL(keyword string) string {
	return e.cfg.BaseURL + "/search?q=" + url.QueryEscape(keyword) + "&f=live"
}

// collectKeyword runs the scroll pagination loop for one keyword. The loop
// ends when the configured item count is reached or the content height stops
// growing for StagnationLimit consecutive scrolls.
func (e *Engine) collectKeyword(ctx context.Context, s *session, sink pipeline.Sink, keyword string) error {
	if err := e.throttle.Wait(ctx); err != nil {
		return err
	}
	if err := s.driver.Navigate(ctx, e.searchURL(keyword)); err != nil {
		return fmt.Errorf("open search feed: %w", err)
	}

	collected := make(map[string]struct{})
	deferred := make(map[int]struct{})
	lastHeight := -1.0
	stagnation := 0

feed:
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		html, err := s.driver.HTML(ctx)
		if err != nil {
			return fmt.Errorf("snapshot feed: %w", err)
		}
		if ratelimit.IsRateLimited(pageText(html)) {
			return fmt.Errorf("feed for %q: %w", keyword, ratelimit.ErrRateLimited)
		}

		items, err := extractItems(html)
		if err != nil {
			return fmt.Errorf("parse feed: %w", err)
		}
		for i, item := range items {
			if item.ExternalID == "" {
				// Identity is recoverable from the detail view; anything else
				// missing is not worth a navigation.
				if item.Text != "" && len(deferred) < e.cfg.MaxDeferred {
					deferred[i] = struct{}{}
				}
				continue
			}
			if _, dup := collected[item.ExternalID]; dup {
				continue
			}
			collected[item.ExternalID] = struct{}{}
			if _, err := sink.Offer(ctx, toRawItem(item, keyword, e.clock.Now())); err != nil {
				return fmt.Errorf("offer item %s: %w", item.ExternalID, err)
			}
			if len(collected) >= e.cfg.MaxItemsPerKeyword {
				break feed
			}
		}

		height, err := s.driver.ContentHeight(ctx)
		if err != nil {
			return fmt.Errorf("measure feed: %w", err)
		}
		if height <= lastHeight {
			stagnation++
			if stagnation >= e.cfg.StagnationLimit {
				break
			}
		} else {
			stagnation = 0
			lastHeight = height
		}

		if err := s.driver.ScrollBottom(ctx); err != nil {
			return fmt.Errorf("scroll feed: %w", err)
		}
		if err := e.sleep(ctx, e.cfg.ScrollDelay); err != nil {
			return err
		}
	}

	e.collectDeferred(ctx, s, sink, keyword, deferred, collected)

	e.logger.Info("keyword collected",
		zap.String("keyword", keyword),
		zap.Int("items", len(collected)),
		zap.Int("deferred", len(deferred)),
	)
	return nil
}

// collectDeferred revisits items whose identity was missing in the listing by
// opening their detail view. Failures here are logged and skipped: a deferred
// item is bonus recovery, never worth failing the keyword over.
func (e *Engine) collectDeferred(ctx context.Context, s *session, sink pipeline.Sink, keyword string, deferred map[int]struct{}, collected map[string]struct{}) {
	for index := range deferred {
		if ctx.Err() != nil {
			return
		}
		if err := e.recoverDeferred(ctx, s, sink, keyword, index, collected); err != nil {
			e.logger.Debug("deferred extraction failed",
				zap.String("keyword", keyword),
				zap.Int("index", index),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) recoverDeferred(ctx context.Context, s *session, sink pipeline.Sink, keyword string, index int, collected map[string]struct{}) error {
	if err := s.driver.ClickNth(ctx, itemSelector, index); err != nil {
		return err
	}
	defer func() {
		if err := s.driver.Back(ctx); err != nil {
			e.logger.Warn("navigate back from detail view failed", zap.Error(err))
		}
	}()

	html, err := s.driver.HTML(ctx)
	if err != nil {
		return err
	}
	items, err := extractItems(html)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ExternalID == "" || item.Text == "" {
			continue
		}
		if _, dup := collected[item.ExternalID]; dup {
			return nil
		}
		collected[item.ExternalID] = struct{}{}
		_, err := sink.Offer(ctx, toRawItem(item, keyword, e.clock.Now()))
		return err
	}
	return errors.New("detail view yielded no identifiable item")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
