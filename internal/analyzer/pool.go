package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"repoaudit/internal/llm"
	"repoaudit/internal/logging"
	"repoaudit/internal/normalize"
	"repoaudit/internal/types"
)

const DefaultConcurrency = 3

// Outcome records how one analyzer call went.
type Outcome struct {
	Analyzer  string        `json:"analyzer"`
	Findings  int           `json:"findings"`
	Failed    bool          `json:"failed,omitempty"`
	Recovered bool          `json:"recovered,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Result is the merged output of one pool run. Findings keep analyzer order,
// so the result does not depend on completion order.
type Result struct {
	Findings  []types.Finding
	Plans     []types.RemediationPlan
	Outcomes  []Outcome
	Analyzers int
}

// DoneFunc is called after each independent analyzer finishes.
type DoneFunc func(analyzer string, done, total int)

// Pool runs the independent analyzers with bounded concurrency, then the
// remediation planner over their merged findings.
type Pool struct {
	client      llm.Client
	specs       []Spec
	concurrency int
	builder     *ContextBuilder
	log         *zap.Logger
}

type Option func(*Pool)

func WithSpecs(specs []Spec) Option { return func(p *Pool) { p.specs = specs } }

func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithMaxExcerptChars(n int) Option {
	return func(p *Pool) { p.builder = NewContextBuilder(n) }
}

func WithLogger(l *zap.Logger) Option { return func(p *Pool) { p.log = logging.OrNop(l) } }

func NewPool(client llm.Client, opts ...Option) *Pool {
	p := &Pool{
		client:      client,
		specs:       Default(),
		concurrency: DefaultConcurrency,
		builder:     NewContextBuilder(DefaultMaxExcerptChars),
		log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run never fails: analyzer errors become warnings and empty contributions.
func (p *Pool) Run(ctx context.Context, in Input, warnings *types.Warnings, onDone DoneFunc) Result {
	summary := p.builder.Summary(in)
	total := len(p.specs)
	outs := make([][]types.Finding, total)
	outcomes := make([]Outcome, total)

	var (
		g    errgroup.Group
		done = make(chan string, total)
	)
	g.SetLimit(p.concurrency)
	for i, spec := range p.specs {
		g.Go(func() error {
			outs[i], outcomes[i] = p.runOne(ctx, spec, p.builder.Payload(spec, in, summary), warnings)
			done <- spec.Name
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(done)
	}()
	n := 0
	for name := range done {
		n++
		if onDone != nil {
			onDone(name, n, total)
		}
	}

	res := Result{Outcomes: outcomes, Analyzers: total}
	for _, fs := range outs {
		res.Findings = append(res.Findings, fs...)
	}
	res.Plans = p.plan(ctx, summary, res.Findings, warnings)
	return res
}

func (p *Pool) runOne(ctx context.Context, spec Spec, payload Payload, warnings *types.Warnings) (findings []types.Finding, out Outcome) {
	start := time.Now()
	out.Analyzer = spec.Name
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("analyzer %s failed: panic: %v", spec.Name, r)
			p.log.Error("analyzer panic", zap.String("analyzer", spec.Name), zap.Any("panic", r))
			warnings.Add(msg)
			findings, out = nil, Outcome{Analyzer: spec.Name, Failed: true}
		}
		out.Elapsed = time.Since(start)
	}()

	raw, ok := p.call(ctx, spec.Name, spec.Prompt, payload, findingsSchema, warnings)
	if !ok {
		out.Failed = true
		return nil, out
	}
	var output normalize.Output[normalize.Proposed]
	if raw.text != "" {
		output = normalize.RawText[normalize.Proposed](raw.text)
	} else {
		output = normalize.Decode[normalize.Proposed](raw.json, "findings")
	}
	proposed, warns := normalize.Findings(spec.Name, output)
	warnings.Add(warns...)
	out.Recovered = !output.Typed && len(proposed) > 0

	for _, pr := range proposed {
		findings = append(findings, pr.Finding(spec.Type))
	}
	out.Findings = len(findings)
	p.log.Info("analyzer finished",
		zap.String("analyzer", spec.Name),
		zap.Int("findings", out.Findings),
		zap.Bool("recovered", out.Recovered),
		zap.Duration("elapsed", time.Since(start)))
	return findings, out
}

type rawResponse struct {
	json []byte
	text string
}

// call performs one inference request. A malformed-output error keeps its
// text for the recovery ladder; any other error becomes a failure warning.
func (p *Pool) call(ctx context.Context, name, prompt string, payload any, schema *llm.Schema, warnings *types.Warnings) (rawResponse, bool) {
	raw, err := p.client.GenerateJSON(llm.WithPhase(ctx, name), prompt, payload, schema)
	if err == nil {
		return rawResponse{json: raw}, true
	}
	var malformed *llm.MalformedOutputError
	if errors.As(err, &malformed) {
		return rawResponse{text: malformed.Text}, true
	}
	p.log.Warn("analyzer failed", zap.String("analyzer", name), zap.Error(err))
	warnings.Add(fmt.Sprintf("analyzer %s failed: %v", name, err))
	return rawResponse{}, false
}

type planIssue struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        types.IssueType `json:"type"`
	Severity    types.Severity  `json:"severity"`
	File        string          `json:"file,omitempty"`
}

type planPayload struct {
	Summary string      `json:"summary"`
	Issues  []planIssue `json:"issues"`
}

// plan runs the remediation planner. It only starts once every independent
// analyzer has returned, because it consumes their merged findings.
func (p *Pool) plan(ctx context.Context, summary string, findings []types.Finding, warnings *types.Warnings) []types.RemediationPlan {
	if len(findings) == 0 {
		return nil
	}
	payload := planPayload{Summary: summary}
	for _, f := range findings {
		payload.Issues = append(payload.Issues, planIssue{
			Title:       f.Title,
			Description: f.Description,
			Type:        f.Type,
			Severity:    f.Severity,
			File:        f.File,
		})
	}
	raw, ok := p.call(ctx, NameRemediation, remediationPrompt, payload, plansSchema, warnings)
	if !ok {
		return nil
	}
	var output normalize.Output[types.RemediationPlan]
	if raw.text != "" {
		output = normalize.RawText[types.RemediationPlan](raw.text)
	} else {
		output = normalize.Decode[types.RemediationPlan](raw.json, "plans")
	}
	plans, warns := normalize.Plans(NameRemediation, output)
	warnings.Add(warns...)
	return plans
}
