package docs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"repoaudit/internal/logging"
	"repoaudit/internal/types"
)

// Doc is one documentation record for a library.
type Doc struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Provider looks up documentation for a library name.
type Provider interface {
	Lookup(ctx context.Context, library string) ([]Doc, error)
}

// Noop is used when no documentation service is configured.
type Noop struct{}

func (Noop) Lookup(context.Context, string) ([]Doc, error) { return nil, nil }

// HTTPProvider queries a documentation search service:
// GET {base}/search?library=<name> returning {"results":[Doc...]}.
type HTTPProvider struct {
	http *resty.Client
}

func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &HTTPProvider{http: c}
}

func (p *HTTPProvider) Lookup(ctx context.Context, library string) ([]Doc, error) {
	var out struct {
		Results []Doc `json:"results"`
	}
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("library", library).
		SetResult(&out).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("docs lookup %s: %w", library, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("docs lookup %s: status %s", library, resp.Status())
	}
	return out.Results, nil
}

// NewProvider returns Noop when baseURL is empty.
func NewProvider(baseURL, apiKey string) Provider {
	if strings.TrimSpace(baseURL) == "" {
		return Noop{}
	}
	return NewHTTPProvider(baseURL, apiKey)
}

// Enricher gathers a small set of references shared by every finding.
type Enricher struct {
	provider Provider
	max      int
	log      *zap.Logger
}

func NewEnricher(p Provider, max int, logger *zap.Logger) *Enricher {
	if p == nil {
		p = Noop{}
	}
	if max <= 0 {
		max = 3
	}
	return &Enricher{provider: p, max: max, log: logging.OrNop(logger)}
}

// References never fails: lookup errors are logged and skipped.
func (e *Enricher) References(ctx context.Context, files []types.RepoFile) []types.Reference {
	if _, ok := e.provider.(Noop); ok {
		return nil
	}
	var refs []types.Reference
	seen := map[string]struct{}{}
	for _, lib := range Libraries(files) {
		if len(refs) >= e.max || ctx.Err() != nil {
			break
		}
		docs, err := e.provider.Lookup(ctx, lib)
		if err != nil {
			e.log.Warn("docs lookup failed", zap.String("library", lib), zap.Error(err))
			continue
		}
		for _, d := range docs {
			if d.URL == "" || len(refs) >= e.max {
				continue
			}
			if _, dup := seen[d.URL]; dup {
				continue
			}
			seen[d.URL] = struct{}{}
			title := d.Title
			if title == "" {
				title = lib
			}
			refs = append(refs, types.Reference{Title: title, URL: d.URL})
		}
	}
	return refs
}
