package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/api"
	"github.com/madun/platform-nlp-dqm/internal/config"
	"github.com/madun/platform-nlp-dqm/internal/enrich"
	"github.com/madun/platform-nlp-dqm/internal/lexicon"
	"github.com/madun/platform-nlp-dqm/internal/pipeline"
	"github.com/madun/platform-nlp-dqm/internal/quality"
	"github.com/madun/platform-nlp-dqm/internal/storage/memory"
)

type stubClock struct{}

func (stubClock) Now() time.Time { return time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC) }

type stubAcquirer struct {
	items []pipeline.RawItem
}

func (a *stubAcquirer) Platform() pipeline.Platform { return pipeline.PlatformTwitter }
func (a *stubAcquirer) Sources() []string           { return []string{"program mbg"} }

func (a *stubAcquirer) Acquire(ctx context.Context, sink pipeline.Sink) error {
	for _, item := range a.items {
		if _, err := sink.Offer(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

type stubServices struct {
	store  *memory.Store
	orch   *pipeline.Orchestrator
	closed bool
}

func newStubServices(t *testing.T) *stubServices {
	t.Helper()
	store := memory.NewStore()
	clock := stubClock{}
	logger := zap.NewNop()
	gate := quality.NewGate(store, clock, logger, quality.DefaultWeights(), nil)
	analyzer := enrich.NewAnalyzer(lexicon.Default(), enrich.DefaultAnalyzerConfig())
	enricher := enrich.NewEngine(store, analyzer, clock, logger, 2)
	orch, err := pipeline.NewOrchestrator(store, gate, enricher, clock, logger, 50)
	require.NoError(t, err)
	return &stubServices{store: store, orch: orch}
}

func (s *stubServices) Close()                              { s.closed = true }
func (s *stubServices) Logger() *zap.Logger                 { return zap.NewNop() }
func (s *stubServices) Orchestrator() *pipeline.Orchestrator { return s.orch }
func (s *stubServices) APIServer() *api.Server              { return api.NewServer(s.store, zap.NewNop()) }

func (s *stubServices) Config() config.Config {
	cfg, _ := config.Load("")
	return cfg
}

func (s *stubServices) Acquirer(platform pipeline.Platform) (pipeline.Acquirer, error) {
	return &stubAcquirer{items: []pipeline.RawItem{{
		ID:         uuid.New(),
		Platform:   platform,
		ExternalID: "100000000000000001",
		Text:       "Menu program MBG hari ini sehat dan anak senang sekali",
		AcquiredAt: stubClock{}.Now(),
	}}}, nil
}

func withStubServices(t *testing.T, services Services) {
	t.Helper()
	original := newServices
	newServices = func(context.Context, config.Config) (Services, error) {
		return services, nil
	}
	t.Cleanup(func() { newServices = original })
}

func TestAcquireCommandRunsPipeline(t *testing.T) {
	services := newStubServices(t)
	withStubServices(t, services)

	root := newRootCmd()
	root.SetArgs([]string{"acquire", "--platform", "twitter"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	runs, err := services.store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, pipeline.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 1, runs[0].Counters.Acquired)
	assert.True(t, services.closed)
}

func TestAcquireCommandRejectsUnknownPlatform(t *testing.T) {
	withStubServices(t, newStubServices(t))

	root := newRootCmd()
	root.SetArgs([]string{"acquire", "--platform", "myspace"})
	require.ErrorContains(t, root.ExecuteContext(context.Background()), "unknown platform")
}

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	platform, err := parsePlatform("twitter")
	require.NoError(t, err)
	assert.Equal(t, pipeline.PlatformTwitter, platform)

	platform, err = parsePlatform("youtube")
	require.NoError(t, err)
	assert.Equal(t, pipeline.PlatformYouTube, platform)

	_, err = parsePlatform("")
	require.Error(t, err)
}
