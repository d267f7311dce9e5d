package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"repoaudit/internal/types"
)

// Line accepts a number, a numeric string or null.
type Line int

func (l *Line) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*l = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*l = Line(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err == nil {
		*l = Line(int(f))
		return nil
	}
	*l = 0
	return nil
}

// Proposed is the structural contract of one analyzer finding.
type Proposed struct {
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Severity       string            `json:"severity,omitempty"`
	File           string            `json:"file,omitempty"`
	Line           Line              `json:"line,omitempty"`
	Recommendation string            `json:"recommendation,omitempty"`
	Evidence       string            `json:"evidence,omitempty"`
	References     []types.Reference `json:"references,omitempty"`
}

func ValidProposed(p Proposed) bool {
	return strings.TrimSpace(p.Title) != "" && strings.TrimSpace(p.Description) != ""
}

// Finding converts a validated proposal into a Finding of type t. Severity
// defaults to medium.
func (p Proposed) Finding(t types.IssueType) types.Finding {
	return types.Finding{
		Type:           t,
		Severity:       types.ParseSeverity(p.Severity),
		Title:          strings.TrimSpace(p.Title),
		Description:    strings.TrimSpace(p.Description),
		File:           strings.TrimSpace(p.File),
		Line:           int(p.Line),
		Recommendation: strings.TrimSpace(p.Recommendation),
		Evidence:       p.Evidence,
		References:     p.References,
	}
}

func ValidPlan(p types.RemediationPlan) bool {
	return strings.TrimSpace(p.IssueTitle) != "" && strings.TrimSpace(p.Transform.Name) != ""
}

// Findings normalizes the six analyzers' list-of-finding shape.
func Findings(analyzer string, out Output[Proposed]) ([]Proposed, []string) {
	return Normalize(analyzer, out, ValidProposed)
}

// Plans normalizes the remediation planner's shape.
func Plans(analyzer string, out Output[types.RemediationPlan]) ([]types.RemediationPlan, []string) {
	return Normalize(analyzer, out, ValidPlan)
}
