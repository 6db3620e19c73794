package browser

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
	"github.com/madun/platform-nlp-dqm/internal/ratelimit"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// fakeDriver replays scripted page snapshots and records every interaction.
type fakeDriver struct {
	mu sync.Mutex

	pages      []string
	heights    []float64
	pageIdx    int
	heightIdx  int
	detailHTML string
	inDetail   bool

	navigated   []string
	scrolls     int
	clicked     []string
	clickedText []string
	clickedNth  []int
	backs       int
	typed       map[string]string
	exists      map[string]bool
	closed      int
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigated = append(d.navigated, url)
	return nil
}

func (d *fakeDriver) HTML(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inDetail {
		return d.detailHTML, nil
	}
	if len(d.pages) == 0 {
		return "<html><body></body></html>", nil
	}
	idx := d.pageIdx
	if idx >= len(d.pages) {
		idx = len(d.pages) - 1
	}
	d.pageIdx++
	return d.pages[idx], nil
}

func (d *fakeDriver) ContentHeight(context.Context) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.heights) == 0 {
		return 0, nil
	}
	idx := d.heightIdx
	if idx >= len(d.heights) {
		idx = len(d.heights) - 1
	}
	d.heightIdx++
	return d.heights[idx], nil
}

func (d *fakeDriver) ScrollBottom(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrolls++
	return nil
}

func (d *fakeDriver) Click(_ context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicked = append(d.clicked, selector)
	return nil
}

func (d *fakeDriver) ClickText(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clickedText = append(d.clickedText, text)
	return nil
}

func (d *fakeDriver) ClickNth(_ context.Context, _ string, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clickedNth = append(d.clickedNth, index)
	d.inDetail = true
	return nil
}

func (d *fakeDriver) Back(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backs++
	d.inDetail = false
	return nil
}

func (d *fakeDriver) SendKeys(_ context.Context, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.typed == nil {
		d.typed = map[string]string{}
	}
	d.typed[selector] = value
	return nil
}

func (d *fakeDriver) Eval(context.Context, string) error { return nil }

func (d *fakeDriver) Exists(_ context.Context, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exists[selector], nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	offered []pipeline.RawItem
}

func (s *fakeSink) Seen(context.Context, string) (bool, error) { return false, nil }

func (s *fakeSink) Offer(_ context.Context, item pipeline.RawItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offered = append(s.offered, item)
	return true, nil
}

func (s *fakeSink) externalIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.offered))
	for i, item := range s.offered {
		ids[i] = item.ExternalID
	}
	return ids
}

func newTestEngine(t *testing.T, driver Driver, cfg Config) *Engine {
	t.Helper()
	engine, err := NewEngine(
		func() (Driver, error) { return driver, nil },
		cfg,
		ratelimit.NewThrottle(time.Nanosecond, realClock{}),
		ratelimit.NewBackoffPolicy(time.Millisecond, 3),
		realClock{},
		zap.NewNop(),
	)
	require.NoError(t, err)
	engine.sleep = func(context.Context, time.Duration) error { return nil }
	return engine
}

const feedPageOne = `<html><body>
<article><a href="/u1/status/100000000000000001"></a><div lang="id">Program MBG bagus</div></article>
<article><a href="/u2/status/100000000000000002"></a><div lang="id">Menu hari ini enak</div></article>
</body></html>`

const feedPageTwo = `<html><body>
<article><a href="/u1/status/100000000000000001"></a><div lang="id">Program MBG bagus</div></article>
<article><a href="/u2/status/100000000000000002"></a><div lang="id">Menu hari ini enak</div></article>
<article><a href="/u3/status/100000000000000003"></a><div lang="id">Dapur baru dibuka</div></article>
</body></html>`

func TestAcquireCollectsAndDeduplicates(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{
		pages:   []string{feedPageOne, feedPageTwo},
		heights: []float64{1000, 1500},
	}
	engine := newTestEngine(t, driver, Config{
		Keywords:           []string{"program mbg"},
		MaxItemsPerKeyword: 10,
		StagnationLimit:    2,
	})

	sink := &fakeSink{}
	require.NoError(t, engine.Acquire(context.Background(), sink))

	assert.ElementsMatch(t,
		[]string{"100000000000000001", "100000000000000002", "100000000000000003"},
		sink.externalIDs(),
	)
	for _, item := range sink.offered {
		assert.Equal(t, pipeline.PlatformTwitter, item.Platform)
		assert.Equal(t, "program mbg", item.SourceKeyword)
	}

	require.NotEmpty(t, driver.navigated)
	assert.Contains(t, driver.navigated[0], "/search?q=program+mbg")
	assert.Equal(t, 1, driver.closed)
}

func TestAcquireStopsAtItemBudget(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{
		pages:   []string{feedPageTwo},
		heights: []float64{1000},
	}
	engine := newTestEngine(t, driver, Config{
		Keywords:           []string{"mbg"},
		MaxItemsPerKeyword: 2,
	})

	sink := &fakeSink{}
	require.NoError(t, engine.Acquire(context.Background(), sink))

	assert.Len(t, sink.offered, 2)
	assert.Zero(t, driver.scrolls)
}

func TestAcquireAbandonsRateLimitedKeyword(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{
		pages: []string{`<html><body><span>Too many requests. Try again later.</span></body></html>`},
	}
	engine := newTestEngine(t, driver, Config{Keywords: []string{"mbg"}})

	sink := &fakeSink{}
	require.NoError(t, engine.Acquire(context.Background(), sink))
	assert.Empty(t, sink.offered)

	// Three attempts on the search feed, with a recovery navigation home
	// between consecutive attempts.
	var searches, homes int
	for _, url := range driver.navigated {
		switch {
		case strings.Contains(url, "/search?q="):
			searches++
		case strings.HasSuffix(url, "/home"):
			homes++
		}
	}
	assert.Equal(t, 3, searches)
	assert.Equal(t, 2, homes)
}

func TestAcquireRecoversDeferredItem(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{
		pages:   []string{idlessArticle},
		heights: []float64{1000},
		detailHTML: `<html><body>
<article><a href="/u9/status/100000000000000009"></a><div lang="id">Dapur MBG di kota kami sudah mulai beroperasi</div></article>
</body></html>`,
	}
	engine := newTestEngine(t, driver, Config{
		Keywords:        []string{"dapur mbg"},
		StagnationLimit: 1,
	})

	sink := &fakeSink{}
	require.NoError(t, engine.Acquire(context.Background(), sink))

	assert.Equal(t, []string{"100000000000000009"}, sink.externalIDs())
	assert.Equal(t, []int{0}, driver.clickedNth)
	assert.Equal(t, 1, driver.backs)
}

func TestAcquireContinuesAnonymousAfterLoginFailure(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{
		pages:   []string{feedPageOne},
		heights: []float64{1000},
		exists:  map[string]bool{composeSelector: false},
	}
	engine := newTestEngine(t, driver, Config{
		Keywords: []string{"mbg"},
		Username: "collector",
		Password: "hunter2",
	})

	sink := &fakeSink{}
	require.NoError(t, engine.Acquire(context.Background(), sink))
	assert.Len(t, sink.offered, 2)
}

func TestAcquireHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver := &fakeDriver{pages: []string{feedPageOne}}
	engine := newTestEngine(t, driver, Config{Keywords: []string{"mbg"}})

	err := engine.Acquire(ctx, &fakeSink{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, driver.closed)
}

func TestNewEngineValidation(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(nil, Config{Keywords: []string{"x"}}, nil, nil, nil, zap.NewNop())
	assert.Error(t, err)

	factory := func() (Driver, error) { return &fakeDriver{}, nil }
	_, err = NewEngine(factory, Config{},
		ratelimit.NewThrottle(time.Second, realClock{}),
		ratelimit.NewBackoffPolicy(time.Second, 3),
		realClock{}, zap.NewNop(),
	)
	assert.Error(t, err)
}
