package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// FakeClient returns deterministic payloads per phase for offline runs and tests.
// Security turns heuristic evidence into findings, remediation proposes a
// review transform per located issue, every other phase returns no findings.
// Responses and Errors override the default behaviour for a phase.
type FakeClient struct {
	Responses map[string]string
	Errors    map[string]error

	mu    sync.Mutex
	calls map[string]int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{Responses: map[string]string{}, Errors: map[string]error{}}
}

func (f *FakeClient) Name() string { return "fake:offline" }
func (f *FakeClient) Close() error { return nil }

// Calls reports how many requests were made for phase.
func (f *FakeClient) Calls(phase string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[phase]
}

type fakeInput struct {
	Heuristics []struct {
		RuleID   string `json:"rule_id"`
		File     string `json:"file"`
		Line     int    `json:"line"`
		Message  string `json:"message"`
		Evidence string `json:"evidence"`
	} `json:"heuristics"`
	Issues []struct {
		Title string `json:"title"`
		File  string `json:"file"`
	} `json:"issues"`
}

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any, schema *Schema) (json.RawMessage, error) {
	phase := PhaseFrom(ctx)
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[phase]++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.Errors[phase]; ok && err != nil {
		return nil, err
	}
	if raw, ok := f.Responses[phase]; ok {
		return checkJSON(raw)
	}

	var in fakeInput
	b, _ := json.Marshal(input)
	_ = json.Unmarshal(b, &in)

	var obj any
	switch phase {
	case "security":
		findings := []map[string]any{}
		for _, h := range in.Heuristics {
			findings = append(findings, map[string]any{
				"title":          fmt.Sprintf("%s in %s", h.RuleID, h.File),
				"description":    h.Message,
				"severity":       "high",
				"file":           h.File,
				"line":           h.Line,
				"evidence":       h.Evidence,
				"recommendation": "Review the flagged code and remove or guard the construct.",
			})
		}
		obj = map[string]any{"findings": findings}
	case "remediation":
		plans := []map[string]any{}
		for _, is := range in.Issues {
			if strings.TrimSpace(is.File) == "" {
				continue
			}
			plans = append(plans, map[string]any{
				"issue_title": is.Title,
				"transform": map[string]any{
					"name":        "manual-review",
					"command":     "git diff -- " + is.File,
					"description": "Inspect and patch " + is.File,
				},
			})
		}
		obj = map[string]any{"plans": plans}
	default:
		obj = map[string]any{"findings": []any{}}
	}
	out, _ := json.Marshal(obj)
	return json.RawMessage(out), nil
}
