package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoaudit/internal/config"
)

func groqServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		var req groqChatReq
		assert.NoError(t, json.Unmarshal(b, &req))
		assert.Equal(t, "llama", req.Model)
		assert.Equal(t, "json_object", req.ResponseFormat["type"])
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chatBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	})
	return string(b)
}

func TestGroqClientSuccess(t *testing.T) {
	srv := groqServer(t, http.StatusOK, chatBody(`{"findings":[]}`))
	cli := NewGroqClient("k", "llama", srv.URL)
	raw, err := cli.GenerateJSON(context.Background(), "audit", map[string]int{"n": 1}, Object(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"findings":[]}`, string(raw))
}

func TestGroqClientMalformedContent(t *testing.T) {
	srv := groqServer(t, http.StatusOK, chatBody(`Sure! [{"title":"x"}]`))
	_, err := NewGroqClient("k", "llama", srv.URL).GenerateJSON(context.Background(), "audit", nil, nil)
	var m *MalformedOutputError
	require.ErrorAs(t, err, &m)
	assert.Equal(t, `Sure! [{"title":"x"}]`, m.Text)
}

func TestGroqClientJSONValidateFailed(t *testing.T) {
	body := `{"error":{"code":"json_validate_failed","failed_generation":"oops [1,2]"}}`
	srv := groqServer(t, http.StatusBadRequest, body)
	_, err := NewGroqClient("k", "llama", srv.URL).GenerateJSON(context.Background(), "audit", nil, nil)
	var m *MalformedOutputError
	require.ErrorAs(t, err, &m)
	assert.Equal(t, "oops [1,2]", m.Text)
}

func TestGroqClientPermanentAndTransient(t *testing.T) {
	srv := groqServer(t, http.StatusUnauthorized, `{"error":{"message":"invalid key"}}`)
	_, err := NewGroqClient("k", "llama", srv.URL).GenerateJSON(context.Background(), "audit", nil, nil)
	var p *PermanentError
	assert.ErrorAs(t, err, &p)

	srv = groqServer(t, http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`)
	_, err = NewGroqClient("k", "llama", srv.URL).GenerateJSON(context.Background(), "audit", nil, nil)
	require.Error(t, err)
	assert.False(t, errors.As(err, &p))
}

func TestFakeClientSecurityFromHeuristics(t *testing.T) {
	f := NewFakeClient()
	input := map[string]any{
		"heuristics": []map[string]any{{"rule_id": "dynamic-code-execution", "file": "a.js", "line": 3, "message": "eval"}},
	}
	raw, err := f.GenerateJSON(WithPhase(context.Background(), "security"), "p", input, nil)
	require.NoError(t, err)

	var out struct {
		Findings []map[string]any `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "a.js", out.Findings[0]["file"])
	assert.Equal(t, 1, f.Calls("security"))

	raw, err = f.GenerateJSON(WithPhase(context.Background(), "lint"), "p", input, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"findings":[]}`, string(raw))
}

func TestFakeClientOverrides(t *testing.T) {
	f := NewFakeClient()
	f.Responses["ux"] = "not json [1]"
	f.Errors["db"] = errors.New("down")

	_, err := f.GenerateJSON(WithPhase(context.Background(), "ux"), "p", nil, nil)
	var m *MalformedOutputError
	assert.ErrorAs(t, err, &m)

	_, err = f.GenerateJSON(WithPhase(context.Background(), "db"), "p", nil, nil)
	assert.EqualError(t, err, "down")
}

func TestNewClient(t *testing.T) {
	cli, err := NewClient(context.Background(), config.ProviderConfig{Name: "fake"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fake:offline", cli.Name())

	_, err = NewClient(context.Background(), config.ProviderConfig{Name: "groq"}, nil)
	assert.Error(t, err)

	_, err = NewClient(context.Background(), config.ProviderConfig{Name: "nope"}, nil)
	assert.Error(t, err)
}

func TestSchemaConversion(t *testing.T) {
	s := Object(map[string]*Schema{
		"findings": Array(Object(map[string]*Schema{
			"title":    String("short title"),
			"severity": Enum("", "high", "low"),
			"line":     Integer(""),
		}, "title")),
	}, "findings")
	g := s.genai()
	require.NotNil(t, g)
	assert.EqualValues(t, "OBJECT", g.Type)
	assert.EqualValues(t, "ARRAY", g.Properties["findings"].Type)
	assert.Equal(t, []string{"high", "low"}, g.Properties["findings"].Items.Properties["severity"].Enum)
	assert.Contains(t, s.JSON(), `"required":["findings"]`)
}
