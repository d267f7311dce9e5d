package types

import "time"

// Stat names used in ScanReport.Stats.
const (
	StatFiles      = "files"
	StatTextFiles  = "text_files"
	StatChunks     = "chunks"
	StatHeuristics = "heuristics"
	StatAnalyzers  = "analyzers"
	StatSampled    = "sampled"
	StatIssues     = "issues"
)

// ScanReport is the immutable result of one pipeline run.
type ScanReport struct {
	Repo            RepoRef        `json:"repo"`
	Revision        string         `json:"revision,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Stats           map[string]int `json:"stats"`
	Issues          []Finding      `json:"issues"`
	Provider        string         `json:"provider"`
	Model           string         `json:"model"`
	RenderedSummary string         `json:"rendered_summary"`
	Warnings        []string       `json:"warnings"`
	Cached          bool           `json:"cached,omitempty"`
}
