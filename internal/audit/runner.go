package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"repoaudit/internal/analyzer"
	"repoaudit/internal/cache"
	"repoaudit/internal/chunker"
	"repoaudit/internal/config"
	"repoaudit/internal/docs"
	"repoaudit/internal/heuristics"
	"repoaudit/internal/llm"
	"repoaudit/internal/logging"
	"repoaudit/internal/merge"
	"repoaudit/internal/progress"
	"repoaudit/internal/sampler"
	"repoaudit/internal/source"
	"repoaudit/internal/types"
)

// ErrRunTimeout is returned when a run exceeds its time limit.
var ErrRunTimeout = errors.New("audit run exceeded its time limit")

const (
	DefaultSampleCap  = 40
	DefaultRunTimeout = 15 * time.Minute
)

// Request describes one audit.
type Request struct {
	Repo types.RepoRef
	// Files, when non-nil, is audited as-is and nothing is fetched.
	Files []types.RepoFile
	// Revision keys the cache for pre-supplied files. Fetched repositories
	// resolve their own revision.
	Revision string
	// Token overrides the fetcher's default credential.
	Token    string
	Provider config.ProviderConfig
	NoCache  bool
}

// ClientFactory builds the inference client for one run.
type ClientFactory func(ctx context.Context, cfg config.ProviderConfig) (llm.Client, error)

// Runner executes the audit pipeline. It holds no per-run state, so one
// Runner serves concurrent requests.
type Runner struct {
	fetcher     source.Fetcher
	cache       *cache.ScanCache
	cacheMaxAge time.Duration
	scanner     *heuristics.Scanner
	enricher    *docs.Enricher
	merger      *merge.Merger
	newClient   ClientFactory

	sampleCap       int
	concurrency     int
	maxExcerptChars int
	timeout         time.Duration

	log *zap.Logger
}

type Option func(*Runner)

func WithFetcher(f source.Fetcher) Option { return func(r *Runner) { r.fetcher = f } }

func WithCache(c *cache.ScanCache, maxAge time.Duration) Option {
	return func(r *Runner) {
		r.cache = c
		r.cacheMaxAge = maxAge
	}
}

func WithEnricher(e *docs.Enricher) Option { return func(r *Runner) { r.enricher = e } }

func WithClientFactory(f ClientFactory) Option { return func(r *Runner) { r.newClient = f } }

func WithMerger(m *merge.Merger) Option { return func(r *Runner) { r.merger = m } }

func WithSampleCap(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sampleCap = n
		}
	}
}

func WithConcurrency(n int) Option { return func(r *Runner) { r.concurrency = n } }

func WithMaxExcerptChars(n int) Option { return func(r *Runner) { r.maxExcerptChars = n } }

func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option { return func(r *Runner) { r.log = logging.OrNop(l) } }

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		scanner:         heuristics.Default(),
		enricher:        docs.NewEnricher(docs.Noop{}, 0, nil),
		merger:          merge.New(),
		sampleCap:       DefaultSampleCap,
		concurrency:     analyzer.DefaultConcurrency,
		maxExcerptChars: analyzer.DefaultMaxExcerptChars,
		timeout:         DefaultRunTimeout,
		log:             zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.newClient == nil {
		log := r.log
		r.newClient = func(ctx context.Context, cfg config.ProviderConfig) (llm.Client, error) {
			return llm.NewClient(ctx, cfg, log)
		}
	}
	return r
}

// FromConfig wires a Runner from loaded configuration.
func FromConfig(cfg *config.Config, c *cache.ScanCache, logger *zap.Logger) *Runner {
	fetcher := source.NewGitHubFetcher(source.GitHubConfig{
		BaseURL: cfg.Fetch.GitHubBaseURL,
		Token:   cfg.Fetch.GitHubToken,
		Limits: source.Limits{
			MaxArchiveBytes: cfg.Fetch.MaxArchiveBytes,
			MaxFileBytes:    cfg.Fetch.MaxFileBytes,
		},
	}, logger)
	provider := docs.NewProvider(cfg.Docs.BaseURL, cfg.Docs.APIKey)
	return NewRunner(
		WithLogger(logger),
		WithFetcher(fetcher),
		WithCache(c, cfg.Cache.MaxAge),
		WithEnricher(docs.NewEnricher(provider, cfg.Docs.MaxReferences, logger)),
		WithSampleCap(cfg.Sampler.Cap),
		WithConcurrency(cfg.Analyzer.Concurrency),
		WithMaxExcerptChars(cfg.Analyzer.MaxExcerptChars),
		WithTimeout(cfg.RunTimeout),
	)
}

// Run audits synchronously. Events are sent to the emitter attached to ctx,
// if any.
func (r *Runner) Run(ctx context.Context, req Request) (*types.ScanReport, error) {
	return r.run(ctx, req, progress.NewTracker(progress.EmitterFrom(ctx)))
}

// Stream audits in the background. The channel carries progress events and
// then exactly one complete or error event before it is closed.
func (r *Runner) Stream(ctx context.Context, req Request) <-chan progress.Event {
	b := progress.NewBroker()
	ch, _ := b.Subscribe(64)
	go func() {
		defer b.Close()
		_, _ = r.run(ctx, req, progress.NewTracker(b))
	}()
	return ch
}

type outcome struct {
	report *types.ScanReport
	err    error
}

// run detaches the pipeline from ctx: a caller that goes away stops waiting,
// but calls already issued finish in the background and are discarded. The
// run timeout still bounds the detached work.
func (r *Runner) run(ctx context.Context, req Request, tr *progress.Tracker) (*types.ScanReport, error) {
	tr.Stage(progress.StageStart, 0, "audit started", map[string]any{"repo": req.Repo.String()})

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	done := make(chan outcome, 1)
	go func() {
		defer cancel()
		rep, err := r.pipeline(runCtx, req, tr)
		done <- outcome{rep, err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	case <-timer.C:
		res.err = ErrRunTimeout
	}
	if errors.Is(res.err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.err = ErrRunTimeout
	}
	if res.err != nil {
		r.log.Warn("audit failed", zap.String("repo", req.Repo.String()), zap.Error(res.err))
		tr.Fail(res.err)
		return nil, res.err
	}
	tr.Complete(res.report)
	return res.report, nil
}

func (r *Runner) pipeline(ctx context.Context, req Request, tr *progress.Tracker) (rep *types.ScanReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("audit pipeline: panic: %v", p)
		}
	}()
	started := time.Now().UTC()
	log := r.log.With(zap.String("repo", req.Repo.String()))

	key := cache.Key{
		Owner:    req.Repo.Owner,
		Repo:     req.Repo.Name,
		Revision: r.revision(ctx, req),
		Provider: req.Provider.Name,
		Model:    req.Provider.Model,
	}
	useCache := !req.NoCache && key.Cacheable()
	if useCache {
		tr.Stage(progress.StageCache, 2, "checking cache", map[string]any{"revision": key.Revision})
		if hit, ok := r.cache.Lookup(ctx, key, r.cacheMaxAge); ok {
			log.Info("served from cache", zap.String("revision", key.Revision))
			return hit, nil
		}
	}

	client, err := r.newClient(ctx, req.Provider)
	if err != nil {
		return nil, fmt.Errorf("inference client: %w", err)
	}
	defer client.Close()

	files := req.Files
	if files == nil {
		if r.fetcher == nil {
			return nil, errors.New("no fetcher configured")
		}
		tr.Stage(progress.StageFetch, 5, "fetching repository", nil)
		// Pin the archive to the commit the cache key names so a moving branch cannot mix them.
		ref := req.Repo
		if key.Revision != "" {
			ref.Ref = key.Revision
		}
		files, err = r.fetcher.Fetch(ctx, ref, req.Token)
		if err != nil {
			return nil, err
		}
	}
	text := 0
	for _, f := range files {
		if !f.IsBinary {
			text++
		}
	}
	tr.Stage(progress.StageFetch, 15, fmt.Sprintf("loaded %d files", len(files)),
		map[string]any{"files": len(files), "text_files": text})

	hits := r.scanner.Scan(files)
	tr.Stage(progress.StageHeuristics, 20, fmt.Sprintf("%d heuristic hits", len(hits)), map[string]any{"hits": len(hits)})

	sampled := sampler.New(r.sampleCap).Select(files, hits)
	tr.Stage(progress.StageSample, 30, fmt.Sprintf("sampled %d files", len(sampled)), map[string]any{"sampled": len(sampled)})

	chunks := chunker.Chunk(ctx, sampled)
	tr.Stage(progress.StageChunk, 40, fmt.Sprintf("%d code chunks", len(chunks)), map[string]any{"chunks": len(chunks)})
	log.Debug("pipeline inputs ready",
		zap.Int("files", len(files)), zap.Int("hits", len(hits)),
		zap.Int("sampled", len(sampled)), zap.Int("chunks", len(chunks)))

	warnings := &types.Warnings{}
	pool := analyzer.NewPool(client,
		analyzer.WithConcurrency(r.concurrency),
		analyzer.WithMaxExcerptChars(r.maxExcerptChars),
		analyzer.WithLogger(r.log),
	)
	res := pool.Run(ctx, analyzer.Input{
		Repo:       req.Repo,
		Files:      files,
		Sampled:    sampled,
		Chunks:     chunks,
		Heuristics: hits,
	}, warnings, func(name string, n, total int) {
		tr.Stage(progress.StageAnalyze, 40+45*n/total, name+" analyzer finished",
			map[string]any{"analyzer": name, "done": n, "total": total})
		if n == total {
			tr.Stage(progress.StageRemediate, 86, "planning remediation", nil)
		}
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	tr.Stage(progress.StageMerge, 92, "merging findings", map[string]any{"findings": len(res.Findings)})
	report := r.merger.Build(merge.Input{
		Repo:       req.Repo,
		Revision:   key.Revision,
		Provider:   req.Provider.Name,
		Model:      req.Provider.Model,
		StartedAt:  started,
		Findings:   res.Findings,
		Plans:      res.Plans,
		References: r.enricher.References(ctx, files),
		Warnings:   warnings.List(),
		Counts: merge.Counts{
			Files:      len(files),
			TextFiles:  text,
			Chunks:     len(chunks),
			Heuristics: len(hits),
			Analyzers:  res.Analyzers,
			Sampled:    len(sampled),
		},
	})
	log.Info("audit finished",
		zap.Int("issues", len(report.Issues)),
		zap.Int("warnings", len(report.Warnings)),
		zap.Duration("elapsed", time.Since(started)))

	if useCache {
		r.cache.Store(ctx, key, report)
	}
	return &report, nil
}

// revision never fails: an unresolved revision only disables caching.
func (r *Runner) revision(ctx context.Context, req Request) string {
	if req.Files != nil || r.fetcher == nil {
		return strings.TrimSpace(req.Revision)
	}
	rev, err := r.fetcher.ResolveRevision(ctx, req.Repo, req.Token)
	if err != nil {
		r.log.Debug("revision unresolved", zap.String("repo", req.Repo.String()), zap.Error(err))
		return ""
	}
	return rev
}
