package merge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"repoaudit/internal/types"
)

var idPrefix = map[types.IssueType]string{
	types.TypeSecurity:    "sec",
	types.TypePerformance: "perf",
	types.TypeBackend:     "be",
	types.TypeUX:          "ux",
	types.TypeDB:          "db",
	types.TypeLint:        "lint",
	types.TypeGeneral:     "gen",
}

// Counts are the pipeline counters copied into the report stats.
type Counts struct {
	Files      int
	TextFiles  int
	Chunks     int
	Heuristics int
	Analyzers  int
	Sampled    int
}

// Input is everything the merger needs to build a report.
type Input struct {
	Repo       types.RepoRef
	Revision   string
	Provider   string
	Model      string
	StartedAt  time.Time
	FinishedAt time.Time
	Findings   []types.Finding
	Plans      []types.RemediationPlan
	References []types.Reference
	Warnings   []string
	Counts     Counts
}

// Merger builds reports. NewID can be replaced for deterministic tests.
type Merger struct {
	NewID func() string
}

func New() *Merger {
	return &Merger{NewID: func() string { return uuid.NewString()[:8] }}
}

// Build assigns identities, attaches references and remediation, appends the
// warnings summary and renders the report.
func (m *Merger) Build(in Input) types.ScanReport {
	issues := make([]types.Finding, 0, len(in.Findings)+1)
	seen := map[string]struct{}{}
	for _, f := range in.Findings {
		f.Type = normalizeType(f.Type)
		f.Severity = types.ParseSeverity(string(f.Severity))
		f.ID = m.uniqueID(f.Type, seen)
		f.References = withReferences(f.References, in.References)
		issues = append(issues, f)
	}

	ApplyRemediation(issues, in.Plans)

	if len(in.Warnings) > 0 {
		issues = append(issues, types.Finding{
			ID:          m.uniqueID(types.TypeGeneral, seen),
			Type:        types.TypeGeneral,
			Severity:    types.SeverityLow,
			Title:       fmt.Sprintf("Audit completed with %d warning(s)", len(in.Warnings)),
			Description: "Some stages degraded during this run:\n- " + strings.Join(in.Warnings, "\n- "),
		})
	}

	finished := in.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	warnings := append([]string{}, in.Warnings...)
	report := types.ScanReport{
		Repo:       in.Repo,
		Revision:   in.Revision,
		StartedAt:  in.StartedAt,
		FinishedAt: finished,
		Stats: map[string]int{
			types.StatFiles:      in.Counts.Files,
			types.StatTextFiles:  in.Counts.TextFiles,
			types.StatChunks:     in.Counts.Chunks,
			types.StatHeuristics: in.Counts.Heuristics,
			types.StatAnalyzers:  in.Counts.Analyzers,
			types.StatSampled:    in.Counts.Sampled,
			types.StatIssues:     len(issues),
		},
		Issues:   issues,
		Provider: in.Provider,
		Model:    in.Model,
		Warnings: warnings,
	}
	report.RenderedSummary = RenderMarkdown(report)
	return report
}

func (m *Merger) uniqueID(t types.IssueType, seen map[string]struct{}) string {
	for {
		id := idPrefix[t] + "-" + m.NewID()
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			return id
		}
	}
}

func normalizeType(t types.IssueType) types.IssueType {
	t = types.IssueType(strings.ToLower(strings.TrimSpace(string(t))))
	if !t.Valid() {
		return types.TypeGeneral
	}
	return t
}

func withReferences(own, shared []types.Reference) []types.Reference {
	if len(shared) == 0 {
		return own
	}
	out := append([]types.Reference{}, own...)
	have := map[string]struct{}{}
	for _, r := range out {
		have[r.URL] = struct{}{}
	}
	for _, r := range shared {
		if _, ok := have[r.URL]; ok {
			continue
		}
		have[r.URL] = struct{}{}
		out = append(out, r)
	}
	return out
}

// ApplyRemediation attaches each plan to the first issue whose title matches
// exactly. Plans without a match are ignored; an issue keeps the first plan
// it receives.
func ApplyRemediation(issues []types.Finding, plans []types.RemediationPlan) {
	for _, p := range plans {
		for i := range issues {
			if issues[i].Title != p.IssueTitle {
				continue
			}
			if issues[i].Remediation == nil {
				t := p.Transform
				issues[i].Remediation = &t
			}
			break
		}
	}
}
