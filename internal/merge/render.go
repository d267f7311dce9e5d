package merge

import (
	"fmt"
	"sort"
	"strings"

	"repoaudit/internal/types"
)

var typeTitles = map[types.IssueType]string{
	types.TypeSecurity:    "Security",
	types.TypePerformance: "Performance",
	types.TypeBackend:     "Backend",
	types.TypeUX:          "UX",
	types.TypeDB:          "Database",
	types.TypeLint:        "Lint",
	types.TypeGeneral:     "General",
}

const NoIssuesText = "No issues found."

// Grouped returns issues grouped by type in the fixed category order, each
// group sorted by descending severity. Equal severities keep input order.
func Grouped(issues []types.Finding) [][]types.Finding {
	byType := map[types.IssueType][]types.Finding{}
	for _, f := range issues {
		t := f.Type
		if !t.Valid() {
			t = types.TypeGeneral
		}
		byType[t] = append(byType[t], f)
	}
	var out [][]types.Finding
	for _, t := range types.TypeOrder {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Severity.Rank() < group[j].Severity.Rank()
		})
		out = append(out, group)
	}
	return out
}

// Ordered flattens Grouped.
func Ordered(issues []types.Finding) []types.Finding {
	out := make([]types.Finding, 0, len(issues))
	for _, g := range Grouped(issues) {
		out = append(out, g...)
	}
	return out
}

// RenderMarkdown is derived from report fields only.
func RenderMarkdown(r types.ScanReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Audit report: %s\n\n", r.Repo.String())
	if r.Revision != "" {
		fmt.Fprintf(&sb, "- Revision: `%s`\n", r.Revision)
	}
	if r.Provider != "" {
		fmt.Fprintf(&sb, "- Analysis: %s / %s\n", r.Provider, r.Model)
	}
	fmt.Fprintf(&sb, "- Files: %d (sampled %d, chunks %d)\n", r.Stats[types.StatFiles], r.Stats[types.StatSampled], r.Stats[types.StatChunks])
	fmt.Fprintf(&sb, "- Heuristic hits: %d, analyzers run: %d\n\n", r.Stats[types.StatHeuristics], r.Stats[types.StatAnalyzers])

	if len(r.Issues) == 0 {
		sb.WriteString(NoIssuesText + "\n")
		return sb.String()
	}

	for _, group := range Grouped(r.Issues) {
		fmt.Fprintf(&sb, "## %s (%d)\n\n", typeTitles[group[0].Type], len(group))
		for _, f := range group {
			renderIssue(&sb, f)
		}
	}
	return sb.String()
}

func renderIssue(sb *strings.Builder, f types.Finding) {
	fmt.Fprintf(sb, "### [%s] %s\n\n", strings.ToUpper(string(f.Severity)), f.Title)
	if f.File != "" {
		if f.Line > 0 {
			fmt.Fprintf(sb, "`%s:%d`\n\n", f.File, f.Line)
		} else {
			fmt.Fprintf(sb, "`%s`\n\n", f.File)
		}
	}
	if f.Description != "" {
		sb.WriteString(f.Description + "\n\n")
	}
	if f.Evidence != "" {
		fmt.Fprintf(sb, "```\n%s\n```\n\n", f.Evidence)
	}
	if f.Recommendation != "" {
		fmt.Fprintf(sb, "**Recommendation:** %s\n\n", f.Recommendation)
	}
	if f.Remediation != nil {
		fmt.Fprintf(sb, "**Automated fix:** %s", f.Remediation.Name)
		if f.Remediation.Command != "" {
			fmt.Fprintf(sb, " (`%s`)", f.Remediation.Command)
		}
		sb.WriteString("\n\n")
	}
	if len(f.References) > 0 {
		sb.WriteString("**References:**\n")
		for _, ref := range f.References {
			fmt.Fprintf(sb, "- [%s](%s)\n", ref.Title, ref.URL)
		}
		sb.WriteString("\n")
	}
}
