// Package browser implements the browser-automation acquisition engine: the
// login state machine, fallback-chain content extraction, and the scroll
// pagination loop over a search feed.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Driver abstracts the live browser session so the engine's control flow is
// testable without Chrome. One driver owns exactly one logged-in tab; callers
// never fan out across it.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	ContentHeight(ctx context.Context) (float64, error)
	ScrollBottom(ctx context.Context) error
	Click(ctx context.Context, selector string) error
	ClickText(ctx context.Context, text string) error
	ClickNth(ctx context.Context, selector string, index int) error
	Back(ctx context.Context) error
	SendKeys(ctx context.Context, selector, value string) error
	Eval(ctx context.Context, expression string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Close() error
}

// ChromeDriver drives a headless Chrome session via chromedp. The session
// (cookies, login state, rate-limit standing) lives for one run.
type ChromeDriver struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	navTimeout    time.Duration
	logger        *zap.Logger
}

// DriverConfig controls the Chrome session.
type DriverConfig struct {
	UserAgent  string
	Headless   bool
	NavTimeout time.Duration
}

// NewChromeDriver starts a browser session and warms it up.
func NewChromeDriver(cfg DriverConfig, logger *zap.Logger) (*ChromeDriver, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromeDriver{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		navTimeout:    cfg.NavTimeout,
		logger:        logger,
	}, nil
}

// Close tears down the tab and the allocator.
func (d *ChromeDriver) Close() error {
	d.browserCancel()
	d.allocCancel()
	return nil
}

// run executes actions against the session tab, bounded by the navigation
// timeout and cancelled when the caller's context finishes.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(d.browserCtx, d.navTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Navigate loads the URL and waits for the document body.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// HTML returns a snapshot of the rendered DOM.
func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// ContentHeight reports the scroll height of the document body.
func (d *ChromeDriver) ContentHeight(ctx context.Context) (float64, error) {
	var height float64
	err := d.run(ctx, chromedp.Evaluate(`document.body ? document.body.scrollHeight : 0`, &height))
	if err != nil {
		return 0, err
	}
	return height, nil
}

// ScrollBottom scrolls the window to the bottom of the document.
func (d *ChromeDriver) ScrollBottom(ctx context.Context) error {
	return d.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

// Click clicks the first element matching the CSS selector.
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// ClickText clicks the first element whose text content equals text.
func (d *ChromeDriver) ClickText(ctx context.Context, text string) error {
	xpath := fmt.Sprintf(`//*[text()=%s]`, xpathLiteral(text))
	return d.run(ctx, chromedp.Click(xpath, chromedp.BySearch))
}

// ClickNth clicks the index-th element matching the CSS selector via script.
func (d *ChromeDriver) ClickNth(ctx context.Context, selector string, index int) error {
	expr := fmt.Sprintf(`(() => {
		const nodes = document.querySelectorAll(%q);
		if (nodes.length <= %d) { throw new Error("no element at index"); }
		nodes[%d].click();
	})()`, selector, index, index)
	return d.run(ctx, chromedp.Evaluate(expr, nil))
}

// Back navigates one step back in session history.
func (d *ChromeDriver) Back(ctx context.Context) error {
	return d.run(ctx,
		chromedp.NavigateBack(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// SendKeys types the value into the element matching the selector.
func (d *ChromeDriver) SendKeys(ctx context.Context, selector, value string) error {
	return d.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// Eval runs a script expression, discarding any result.
func (d *ChromeDriver) Eval(ctx context.Context, expression string) error {
	return d.run(ctx, chromedp.Evaluate(expression, nil))
}

// Exists reports whether an element matching the selector is present. Absence
// is a normal result, never an error.
func (d *ChromeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := d.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, err
	}
	return found, nil
}

// xpathLiteral quotes a string for embedding in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	return "concat('" + strings.Join(parts, `',"'",'`) + "')"
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
