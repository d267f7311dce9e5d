package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const groqDefaultURL = "https://api.groq.com/openai/v1/chat/completions"

// GroqClient calls the Groq Chat Completions API (OpenAI-compatible) and asks for JSON.
type GroqClient struct {
	http    *resty.Client
	apiKey  string
	model   string
	baseURL string
}

func NewGroqClient(apiKey, model, baseURL string) *GroqClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = groqDefaultURL
	}
	return &GroqClient{
		http:    resty.New().SetTimeout(90 * time.Second),
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
	}
}

func (g *GroqClient) Name() string { return "groq:" + g.model }
func (g *GroqClient) Close() error { return nil }

type groqChatReq struct {
	Model          string            `json:"model"`
	Messages       []groqMessage     `json:"messages"`
	Temperature    float32           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateJSON sends the prompt as the system message and the input as the
// user message. Groq has no schema parameter, so the schema is appended to the prompt.
func (g *GroqClient) GenerateJSON(ctx context.Context, prompt string, input any, schema *Schema) (json.RawMessage, error) {
	system := prompt
	if s := schema.JSON(); s != "" {
		system += "\n\nRespond with a single JSON object matching this JSON Schema:\n" + s
	}
	body := groqChatReq{
		Model: g.model,
		Messages: []groqMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: "[INPUT JSON]\n" + marshalInput(input)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var out groqChatResp
	req := g.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out)
	if g.apiKey != "" {
		req.SetAuthToken(g.apiKey)
	}
	resp, err := req.Post(g.baseURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		msg := resp.String()
		const max = 2048
		if len(msg) > max {
			msg = msg[:max]
		}
		err := fmt.Errorf("groq: unexpected status %s: %s", resp.Status(), msg)
		switch {
		case resp.StatusCode() == http.StatusBadRequest && strings.Contains(msg, "json_validate_failed"):
			// The model produced text that failed Groq's JSON check; keep it for recovery.
			return nil, &MalformedOutputError{Text: failedGeneration(resp.Body())}
		case resp.StatusCode() == http.StatusBadRequest && strings.Contains(msg, `"code":"context_length_exceeded"`),
			resp.StatusCode() == http.StatusUnauthorized,
			resp.StatusCode() == http.StatusForbidden:
			return nil, NewPermanentError(err)
		}
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return checkJSON(strings.TrimSpace(out.Choices[0].Message.Content))
}

func failedGeneration(body []byte) string {
	var e struct {
		Error struct {
			FailedGeneration string `json:"failed_generation"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error.FailedGeneration == "" {
		return string(body)
	}
	return e.Error.FailedGeneration
}
