package types

import "strings"

// IssueType is the category of a finding.
type IssueType string

const (
	TypeSecurity    IssueType = "security"
	TypePerformance IssueType = "performance"
	TypeUX          IssueType = "ux"
	TypeBackend     IssueType = "backend"
	TypeDB          IssueType = "db"
	TypeLint        IssueType = "lint"
	TypeGeneral     IssueType = "general"
)

// TypeOrder is the fixed rendering order of issue groups.
var TypeOrder = []IssueType{
	TypeSecurity,
	TypePerformance,
	TypeBackend,
	TypeUX,
	TypeDB,
	TypeLint,
	TypeGeneral,
}

// Valid reports whether t is one of the known categories.
func (t IssueType) Valid() bool {
	for _, known := range TypeOrder {
		if t == known {
			return true
		}
	}
	return false
}

// Severity is ordered critical > high > medium > low > info.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// SeverityOrder lists severities from most to least severe.
var SeverityOrder = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Rank returns 0 for critical up to 4 for info. Unknown values rank as medium.
func (s Severity) Rank() int {
	for i, known := range SeverityOrder {
		if s == known {
			return i
		}
	}
	return 2
}

// ParseSeverity normalizes free-form input; empty or unknown values become medium.
func ParseSeverity(raw string) Severity {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range SeverityOrder {
		if s == known {
			return s
		}
	}
	return SeverityMedium
}

// Reference is a documentation link attached to a finding.
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// RemediationTransform is an automatable fix proposed by the remediation planner.
type RemediationTransform struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
}

// Finding is one reported issue.
type Finding struct {
	ID             string                `json:"id"`
	Type           IssueType             `json:"type"`
	Severity       Severity              `json:"severity"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	File           string                `json:"file,omitempty"`
	Line           int                   `json:"line,omitempty"`
	Recommendation string                `json:"recommendation,omitempty"`
	Remediation    *RemediationTransform `json:"remediation,omitempty"`
	References     []Reference           `json:"references,omitempty"`
	Evidence       string                `json:"evidence,omitempty"`
}

// RemediationPlan maps an issue title to a proposed transform.
type RemediationPlan struct {
	IssueTitle string               `json:"issue_title"`
	Transform  RemediationTransform `json:"transform"`
}
