package analyzer

import (
	"repoaudit/internal/llm"
	"repoaudit/internal/types"
)

// Analyzer names. They double as the llm phase of each call.
const (
	NameSecurity    = "security"
	NamePerformance = "performance"
	NameBackend     = "backend"
	NameDatabase    = "db"
	NameUX          = "ux"
	NameLint        = "lint"
	NameRemediation = "remediation"
)

// Spec describes one independent analyzer.
type Spec struct {
	Name   string
	Type   types.IssueType
	Prompt string
	// Heuristics attaches rule hits as grounding evidence.
	Heuristics bool
	// SchemaArtifact replaces excerpts with database schema sources when any exist.
	SchemaArtifact bool
}

// Default returns the six independent analyzers in their fixed order.
func Default() []Spec {
	return []Spec{
		{Name: NameSecurity, Type: types.TypeSecurity, Prompt: securityPrompt, Heuristics: true},
		{Name: NamePerformance, Type: types.TypePerformance, Prompt: performancePrompt},
		{Name: NameBackend, Type: types.TypeBackend, Prompt: backendPrompt},
		{Name: NameDatabase, Type: types.TypeDB, Prompt: databasePrompt, SchemaArtifact: true},
		{Name: NameUX, Type: types.TypeUX, Prompt: uxPrompt},
		{Name: NameLint, Type: types.TypeLint, Prompt: lintPrompt},
	}
}

var findingsSchema = llm.Object(map[string]*llm.Schema{
	"findings": llm.Array(llm.Object(map[string]*llm.Schema{
		"title":          llm.String("Short, specific issue title"),
		"description":    llm.String("What is wrong and why it matters"),
		"severity":       llm.Enum("Issue severity", "critical", "high", "medium", "low", "info"),
		"file":           llm.String("Repository-relative path, when known"),
		"line":           llm.Integer("1-based line, when known"),
		"recommendation": llm.String("Concrete fix"),
		"evidence":       llm.String("Short code excerpt supporting the finding"),
	}, "title", "description")),
}, "findings")

var plansSchema = llm.Object(map[string]*llm.Schema{
	"plans": llm.Array(llm.Object(map[string]*llm.Schema{
		"issue_title": llm.String("Exact title of the issue this plan fixes"),
		"transform": llm.Object(map[string]*llm.Schema{
			"name":        llm.String("Transform identifier, e.g. a codemod or lint rule"),
			"command":     llm.String("Shell command that applies the transform"),
			"description": llm.String("What the transform changes"),
		}, "name"),
	}, "issue_title", "transform")),
}, "plans")
