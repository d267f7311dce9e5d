package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoaudit/internal/audit"
	"repoaudit/internal/config"
	"repoaudit/internal/llm"
	"repoaudit/internal/progress"
	"repoaudit/internal/source"
	"repoaudit/internal/types"
)

type stubFetcher struct {
	files []types.RepoFile
	err   error
}

func (s stubFetcher) Fetch(context.Context, types.RepoRef, string) ([]types.RepoFile, error) {
	return s.files, s.err
}

func (s stubFetcher) ResolveRevision(context.Context, types.RepoRef, string) (string, error) {
	return "", nil
}

func files() []types.RepoFile {
	body := "export function run(input) {\n  return eval(input)\n}\n"
	return []types.RepoFile{{Path: "src/run.js", SizeBytes: int64(len(body)), Content: []byte(body)}}
}

func newTestServer(t *testing.T, f source.Fetcher) *httptest.Server {
	t.Helper()
	runner := audit.NewRunner(
		audit.WithFetcher(f),
		audit.WithClientFactory(func(context.Context, config.ProviderConfig) (llm.Client, error) {
			return llm.NewFakeClient(), nil
		}),
	)
	h := NewHandler(runner, config.ProviderConfig{Name: "fake", Model: "offline"}, nil)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, stubFetcher{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAuditJSON(t *testing.T) {
	srv := newTestServer(t, stubFetcher{files: files()})
	resp := post(t, srv.URL+"/v1/audits", `{"repo":"acme/web@main"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep types.ScanReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	assert.Equal(t, "acme", rep.Repo.Owner)
	assert.Equal(t, "main", rep.Repo.Ref)
	assert.Equal(t, 1, rep.Stats[types.StatHeuristics])
	require.NotEmpty(t, rep.Issues)
	assert.Equal(t, types.TypeSecurity, rep.Issues[0].Type)
}

func TestCreateAuditFormats(t *testing.T) {
	srv := newTestServer(t, stubFetcher{files: files()})

	md := post(t, srv.URL+"/v1/audits?format=markdown", `{"repo":"acme/web"}`)
	assert.Equal(t, http.StatusOK, md.StatusCode)
	assert.Contains(t, md.Header.Get("Content-Type"), "text/markdown")

	sarif := post(t, srv.URL+"/v1/audits?format=sarif", `{"repo":"acme/web"}`)
	require.Equal(t, http.StatusOK, sarif.StatusCode)
	var doc map[string]any
	require.NoError(t, json.NewDecoder(sarif.Body).Decode(&doc))
	assert.Equal(t, "2.1.0", doc["version"])

	bad := post(t, srv.URL+"/v1/audits?format=pdf", `{"repo":"acme/web"}`)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestCreateAuditValidation(t *testing.T) {
	srv := newTestServer(t, stubFetcher{})
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/v1/audits", `{}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/v1/audits", `{"repo":"no-slash"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/v1/audits", `not json`).StatusCode)
}

func TestCreateAuditFetchErrors(t *testing.T) {
	notFound := newTestServer(t, stubFetcher{err: &source.FetchError{Op: "archive link", Status: 404, Err: errors.New("Not Found")}})
	resp := post(t, notFound.URL+"/v1/audits", `{"repo":"acme/missing"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 404, body.Status)

	huge := newTestServer(t, stubFetcher{err: &source.FetchError{Op: "extract", Err: source.ErrArchiveTooLarge}})
	assert.Equal(t, http.StatusRequestEntityTooLarge, post(t, huge.URL+"/v1/audits", `{"repo":"acme/huge"}`).StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(audit.ErrRunTimeout))
	assert.Equal(t, http.StatusBadGateway, statusFor(&source.FetchError{Op: "download", Status: 500}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestStreamAudit(t *testing.T) {
	srv := newTestServer(t, stubFetcher{files: files()})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/audits/stream?repo=acme/web"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var events []progress.Event
	for {
		var e progress.Event
		if err := conn.ReadJSON(&e); err != nil {
			break
		}
		events = append(events, e)
		if e.Terminal() {
			break
		}
	}
	require.NotEmpty(t, events)
	final := events[len(events)-1]
	assert.Equal(t, progress.KindComplete, final.Kind)
	require.NotNil(t, final.Report)
	assert.Equal(t, 1, final.Report.Stats[types.StatHeuristics])
}

func TestStreamAuditRejectsBadRepo(t *testing.T) {
	srv := newTestServer(t, stubFetcher{})
	resp, err := http.Get(srv.URL + "/v1/audits/stream?repo=bad")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
