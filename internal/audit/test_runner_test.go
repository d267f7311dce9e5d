package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoaudit/internal/cache"
	"repoaudit/internal/config"
	"repoaudit/internal/llm"
	"repoaudit/internal/merge"
	"repoaudit/internal/progress"
	"repoaudit/internal/source"
	"repoaudit/internal/types"
)

func textFile(p, body string) types.RepoFile {
	return types.RepoFile{Path: p, SizeBytes: int64(len(body)), Content: []byte(body)}
}

func threeFiles() []types.RepoFile {
	return []types.RepoFile{
		textFile("src/run.js", "export function run(input) {\n  return eval(input)\n}\n"),
		textFile("src/math.js", "export function add(a, b) {\n  return a + b\n}\n"),
		textFile("README.md", "# demo\n"),
	}
}

var fakeProvider = config.ProviderConfig{Name: "fake", Model: "offline"}

type fixedClient struct{ client llm.Client }

func (f fixedClient) factory(context.Context, config.ProviderConfig) (llm.Client, error) {
	return f.client, nil
}

func newRunner(client llm.Client, opts ...Option) *Runner {
	base := []Option{WithClientFactory(fixedClient{client}.factory)}
	return NewRunner(append(base, opts...)...)
}

func TestRunFindsDynamicExecution(t *testing.T) {
	r := newRunner(llm.NewFakeClient())
	rep, err := r.Run(context.Background(), Request{
		Repo:     types.RepoRef{Owner: "acme", Name: "demo"},
		Files:    threeFiles(),
		Provider: fakeProvider,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Stats[types.StatHeuristics])
	assert.Equal(t, 3, rep.Stats[types.StatFiles])
	assert.Equal(t, 6, rep.Stats[types.StatAnalyzers])

	var security []types.Finding
	for _, is := range rep.Issues {
		if is.Type == types.TypeSecurity {
			security = append(security, is)
		}
	}
	require.NotEmpty(t, security)
	assert.Equal(t, "src/run.js", security[0].File)
	assert.Equal(t, 2, security[0].Line)
	require.NotNil(t, security[0].Remediation)
	assert.Equal(t, "manual-review", security[0].Remediation.Name)
	assert.Empty(t, rep.Warnings)
	assert.Equal(t, "fake", rep.Provider)
	assert.Contains(t, rep.RenderedSummary, "## Security")
}

func TestRunEmptyCollection(t *testing.T) {
	r := newRunner(llm.NewFakeClient())
	rep, err := r.Run(context.Background(), Request{
		Repo:     types.RepoRef{Owner: "acme", Name: "empty"},
		Files:    []types.RepoFile{},
		Provider: fakeProvider,
	})
	require.NoError(t, err)
	assert.Empty(t, rep.Issues)
	assert.NotNil(t, rep.Issues)
	assert.Equal(t, 0, rep.Stats[types.StatFiles])
	assert.Contains(t, rep.RenderedSummary, merge.NoIssuesText)
}

func TestRunDegradedAnalyzerBecomesWarning(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Errors["performance"] = errors.New("rate limited")
	r := newRunner(fake)
	rep, err := r.Run(context.Background(), Request{Repo: types.RepoRef{Owner: "acme", Name: "demo"}, Files: threeFiles(), Provider: fakeProvider})
	require.NoError(t, err)
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0], "performance")
	assert.Equal(t, 6, rep.Stats[types.StatAnalyzers])

	last := rep.Issues[len(rep.Issues)-1]
	assert.Equal(t, types.TypeGeneral, last.Type)
	assert.Contains(t, last.Title, "1 warning")
}

type stubFetcher struct {
	files    []types.RepoFile
	revision string
	err      error
	fetches  int
	fetched  types.RepoRef
}

func (s *stubFetcher) Fetch(_ context.Context, ref types.RepoRef, _ string) ([]types.RepoFile, error) {
	s.fetches++
	s.fetched = ref
	return s.files, s.err
}

func (s *stubFetcher) ResolveRevision(context.Context, types.RepoRef, string) (string, error) {
	return s.revision, nil
}

func TestRunUsesCacheForResolvedRevision(t *testing.T) {
	fetcher := &stubFetcher{files: threeFiles(), revision: "abc123"}
	fake := llm.NewFakeClient()
	r := newRunner(fake, WithFetcher(fetcher), WithCache(cache.New(cache.NewMemory(8, 0), nil), time.Hour))
	req := Request{Repo: types.RepoRef{Owner: "acme", Name: "demo"}, Provider: fakeProvider}

	first, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "abc123", first.Revision)

	second, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, fetcher.fetches)
	assert.Equal(t, 1, fake.Calls("security"))

	req.Provider.Model = "other"
	third, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached, "switching model never serves a stale report")

	req.NoCache = true
	req.Provider.Model = "offline"
	fourth, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, fourth.Cached)
}

func TestRunFetchesResolvedRevision(t *testing.T) {
	fetcher := &stubFetcher{files: threeFiles(), revision: "sha-A"}
	r := newRunner(llm.NewFakeClient(), WithFetcher(fetcher), WithCache(cache.New(cache.NewMemory(8, 0), nil), time.Hour))
	req := Request{Repo: types.RepoRef{Owner: "acme", Name: "demo", Ref: "main"}, Provider: fakeProvider}

	rep, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "sha-A", rep.Revision)
	assert.Equal(t, rep.Revision, fetcher.fetched.Ref)
	assert.Equal(t, "main", req.Repo.Ref)
}

func TestRunWithoutRevisionSkipsCache(t *testing.T) {
	fetcher := &stubFetcher{files: threeFiles()}
	r := newRunner(llm.NewFakeClient(), WithFetcher(fetcher), WithCache(cache.New(cache.NewMemory(8, 0), nil), time.Hour))
	req := Request{Repo: types.RepoRef{Owner: "acme", Name: "demo"}, Provider: fakeProvider}
	req.Repo.Ref = "main"
	for i := 0; i < 2; i++ {
		rep, err := r.Run(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, rep.Cached)
	}
	assert.Equal(t, 2, fetcher.fetches)
	assert.Equal(t, "main", fetcher.fetched.Ref)
}

func TestRunFetchErrorIsFatal(t *testing.T) {
	fetcher := &stubFetcher{err: &source.FetchError{Op: "archive link", Status: http.StatusNotFound, Err: errors.New("not found")}}
	r := newRunner(llm.NewFakeClient(), WithFetcher(fetcher))
	_, err := r.Run(context.Background(), Request{Repo: types.RepoRef{Owner: "acme", Name: "gone"}, Provider: fakeProvider})
	var fe *source.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.Status)
}

func TestRunClientFactoryError(t *testing.T) {
	r := NewRunner(WithClientFactory(func(context.Context, config.ProviderConfig) (llm.Client, error) {
		return nil, errors.New("api key is required")
	}))
	_, err := r.Run(context.Background(), Request{Files: threeFiles(), Provider: fakeProvider})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")
}

// blocking holds every call until release is closed.
type blocking struct {
	release chan struct{}
}

func (b *blocking) Name() string { return "blocking" }
func (b *blocking) Close() error { return nil }
func (b *blocking) GenerateJSON(ctx context.Context, _ string, _ any, _ *llm.Schema) (json.RawMessage, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return json.RawMessage(`{"findings":[]}`), nil
}

func TestRunTimeout(t *testing.T) {
	b := &blocking{release: make(chan struct{})}
	defer close(b.release)
	r := newRunner(b, WithTimeout(50*time.Millisecond))
	_, err := r.Run(context.Background(), Request{Files: threeFiles(), Provider: fakeProvider})
	assert.ErrorIs(t, err, ErrRunTimeout)
}

func TestRunCallerAbandonment(t *testing.T) {
	b := &blocking{release: make(chan struct{})}
	defer close(b.release)
	r := newRunner(b)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := r.Run(ctx, Request{Files: threeFiles(), Provider: fakeProvider})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamEmitsOrderedEventsAndOneTerminal(t *testing.T) {
	r := newRunner(llm.NewFakeClient())
	var events []progress.Event
	for e := range r.Stream(context.Background(), Request{
		Repo:     types.RepoRef{Owner: "acme", Name: "demo"},
		Files:    threeFiles(),
		Provider: fakeProvider,
	}) {
		events = append(events, e)
	}
	require.NotEmpty(t, events)

	terminal := 0
	last := 0
	stages := map[string]bool{}
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Progress, last)
		last = e.Progress
		stages[e.Stage] = true
		if e.Terminal() {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
	final := events[len(events)-1]
	assert.Equal(t, progress.KindComplete, final.Kind)
	require.NotNil(t, final.Report)
	assert.Equal(t, 1, final.Report.Stats[types.StatHeuristics])
	for _, s := range []string{progress.StageHeuristics, progress.StageSample, progress.StageChunk, progress.StageAnalyze, progress.StageMerge} {
		assert.True(t, stages[s], s)
	}
}

func TestStreamReportsFailure(t *testing.T) {
	r := newRunner(llm.NewFakeClient(), WithFetcher(&stubFetcher{err: &source.FetchError{Op: "extract", Err: source.ErrArchiveTooLarge}}))
	var final progress.Event
	for e := range r.Stream(context.Background(), Request{Repo: types.RepoRef{Owner: "acme", Name: "huge"}, Provider: fakeProvider}) {
		final = e
	}
	assert.Equal(t, progress.KindError, final.Kind)
	assert.NotEmpty(t, final.Error)
}

func TestRunEmitsToContextEmitter(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []progress.Kind
	)
	ctx := progress.WithEmitter(context.Background(), progress.Func(func(e progress.Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
	}))
	_, err := newRunner(llm.NewFakeClient()).Run(ctx, Request{Files: []types.RepoFile{}, Provider: fakeProvider})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, kinds)
	assert.Equal(t, progress.KindComplete, kinds[len(kinds)-1])
}
