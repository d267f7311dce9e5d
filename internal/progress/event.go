package progress

import "repoaudit/internal/types"

// Stage names, in pipeline order.
const (
	StageStart      = "start"
	StageCache      = "cache"
	StageFetch      = "fetch"
	StageHeuristics = "heuristics"
	StageSample     = "sample"
	StageChunk      = "chunk"
	StageAnalyze    = "analyze"
	StageRemediate  = "remediate"
	StageMerge      = "merge"
	StageComplete   = "complete"
	StageError      = "error"
)

type Kind string

const (
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Event is one lifecycle notification. Complete carries Report, Error
// carries Error; every other event is informational.
type Event struct {
	Kind     Kind              `json:"type"`
	Stage    string            `json:"stage"`
	Progress int               `json:"progress"`
	Message  string            `json:"message,omitempty"`
	Details  map[string]any    `json:"details,omitempty"`
	Report   *types.ScanReport `json:"report,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func (e Event) Terminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}
