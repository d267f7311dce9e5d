package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/go-github/v47/github"
	"go.uber.org/zap"

	"repoaudit/internal/logging"
	"repoaudit/internal/types"
)

// Fetcher retrieves repository snapshots.
type Fetcher interface {
	// Fetch returns the files of ref. token may be empty for public repositories.
	Fetch(ctx context.Context, ref types.RepoRef, token string) ([]types.RepoFile, error)
	// ResolveRevision returns the commit SHA of ref, or "" when it cannot be resolved.
	ResolveRevision(ctx context.Context, ref types.RepoRef, token string) (string, error)
}

type GitHubConfig struct {
	// BaseURL overrides https://api.github.com/ (GitHub Enterprise, tests).
	BaseURL string
	// Token is used when the caller supplies none.
	Token  string
	Limits Limits
	// Timeout bounds the archive download.
	Timeout time.Duration
}

// GitHubFetcher downloads tarballs through the GitHub REST API.
type GitHubFetcher struct {
	cfg  GitHubConfig
	http *resty.Client
	log  *zap.Logger
}

func NewGitHubFetcher(cfg GitHubConfig, logger *zap.Logger) *GitHubFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	cfg.Limits = cfg.Limits.withDefaults()
	return &GitHubFetcher{
		cfg:  cfg,
		http: resty.New().SetTimeout(cfg.Timeout),
		log:  logging.OrNop(logger),
	}
}

type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}

func (f *GitHubFetcher) token(override string) string {
	if tok := strings.TrimSpace(override); tok != "" {
		return tok
	}
	return strings.TrimSpace(f.cfg.Token)
}

func (f *GitHubFetcher) client(token string) (*github.Client, error) {
	hc := &http.Client{Timeout: 30 * time.Second}
	if token != "" {
		hc.Transport = &tokenTransport{token: token, base: http.DefaultTransport}
	}
	cli := github.NewClient(hc)
	if base := strings.TrimSpace(f.cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		cli.BaseURL = u
	}
	return cli, nil
}

func refOrHead(ref types.RepoRef) string {
	if r := strings.TrimSpace(ref.Ref); r != "" {
		return r
	}
	return "HEAD"
}

// ResolveRevision never fails the run: an unresolvable revision is reported
// as "" so callers skip caching.
func (f *GitHubFetcher) ResolveRevision(ctx context.Context, ref types.RepoRef, token string) (string, error) {
	cli, err := f.client(f.token(token))
	if err != nil {
		return "", err
	}
	sha, _, err := cli.Repositories.GetCommitSHA1(ctx, ref.Owner, ref.Name, refOrHead(ref), "")
	if err != nil {
		f.log.Debug("revision unresolved", zap.String("repo", ref.String()), zap.Error(err))
		return "", nil
	}
	return strings.TrimSpace(sha), nil
}

func (f *GitHubFetcher) Fetch(ctx context.Context, ref types.RepoRef, token string) ([]types.RepoFile, error) {
	if strings.TrimSpace(ref.Owner) == "" || strings.TrimSpace(ref.Name) == "" {
		return nil, &FetchError{Op: "validate", Err: errors.New("owner and repo are required")}
	}
	tok := f.token(token)
	cli, err := f.client(tok)
	if err != nil {
		return nil, &FetchError{Op: "client", Err: err}
	}
	opts := &github.RepositoryContentGetOptions{}
	if r := strings.TrimSpace(ref.Ref); r != "" {
		opts.Ref = r
	}
	link, resp, err := cli.Repositories.GetArchiveLink(ctx, ref.Owner, ref.Name, github.Tarball, opts, true)
	if err != nil {
		return nil, &FetchError{Op: "archive link", Status: statusOf(resp, err), Err: err}
	}

	req := f.http.R().SetContext(ctx).SetDoNotParseResponse(true)
	if tok != "" {
		req.SetAuthToken(tok)
	}
	dl, err := req.Get(link.String())
	if err != nil {
		return nil, &FetchError{Op: "download", Err: err}
	}
	body := dl.RawBody()
	defer body.Close()
	if dl.StatusCode() < 200 || dl.StatusCode() >= 300 {
		return nil, &FetchError{Op: "download", Status: dl.StatusCode(), Err: fmt.Errorf("unexpected status %s", dl.Status())}
	}

	files, err := ExtractTarball(body, f.cfg.Limits)
	if err != nil {
		return nil, &FetchError{Op: "extract", Err: err}
	}
	f.log.Info("fetched repository", zap.String("repo", ref.String()), zap.Int("files", len(files)))
	return files, nil
}

func statusOf(resp *github.Response, err error) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	var ge *github.ErrorResponse
	if errors.As(err, &ge) && ge.Response != nil {
		return ge.Response.StatusCode
	}
	return 0
}
