package analyzer

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"repoaudit/internal/sampler"
	"repoaudit/internal/types"
)

const DefaultMaxExcerptChars = 60000

// Input is everything the analyzers may draw context from.
type Input struct {
	Repo       types.RepoRef
	Files      []types.RepoFile
	Sampled    []types.PrioritizedFile
	Chunks     []types.CodeChunk
	Heuristics []types.RuleHit
}

// Excerpt is one code unit as shown to a model.
type Excerpt struct {
	File      string          `json:"file"`
	Kind      types.ChunkKind `json:"kind"`
	Name      string          `json:"name,omitempty"`
	StartLine int             `json:"start_line"`
	EndLine   int             `json:"end_line"`
	Code      string          `json:"code"`
	Truncated bool            `json:"truncated,omitempty"`
}

// Artifact is a project file handed over whole, such as a database schema.
type Artifact struct {
	Files []Excerpt `json:"files"`
}

// Payload is the context of one analyzer call.
type Payload struct {
	Analyzer       string          `json:"analyzer"`
	Summary        string          `json:"summary"`
	Excerpts       []Excerpt       `json:"excerpts,omitempty"`
	Heuristics     []types.RuleHit `json:"heuristics,omitempty"`
	SchemaArtifact *Artifact       `json:"schema_artifact,omitempty"`
}

// ContextBuilder renders summaries and excerpt lists within a character budget.
type ContextBuilder struct {
	MaxChars int
}

func NewContextBuilder(maxChars int) *ContextBuilder {
	if maxChars <= 0 {
		maxChars = DefaultMaxExcerptChars
	}
	return &ContextBuilder{MaxChars: maxChars}
}

// Summary is a short textual description of the repository and the sample.
func (b *ContextBuilder) Summary(in Input) string {
	var (
		text, binary int
		textBytes    int64
		exts         = map[string]int{}
	)
	for _, f := range in.Files {
		if f.IsBinary {
			binary++
			continue
		}
		text++
		textBytes += f.SizeBytes
		ext := strings.ToLower(path.Ext(f.Path))
		if ext == "" {
			ext = "(none)"
		}
		exts[ext]++
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Repository: %s\n", in.Repo.String())
	fmt.Fprintf(&sb, "Files: %d total (%d text, %d binary), %d KB of text\n", len(in.Files), text, binary, textBytes/1024)
	if mix := languageMix(exts, 8); mix != "" {
		fmt.Fprintf(&sb, "Languages: %s\n", mix)
	}
	fmt.Fprintf(&sb, "Heuristic hits: %d\n", len(in.Heuristics))
	fmt.Fprintf(&sb, "Sampled files (%d):\n", len(in.Sampled))
	for _, pf := range in.Sampled {
		fmt.Fprintf(&sb, "- %s (score %d", pf.Path, pf.PriorityScore)
		if len(pf.ReasonTags) > 0 {
			fmt.Fprintf(&sb, "; %s", strings.Join(pf.ReasonTags, ", "))
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}

func languageMix(exts map[string]int, top int) string {
	type kv struct {
		ext string
		n   int
	}
	list := make([]kv, 0, len(exts))
	for e, n := range exts {
		list = append(list, kv{e, n})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].n != list[j].n {
			return list[i].n > list[j].n
		}
		return list[i].ext < list[j].ext
	})
	if len(list) > top {
		list = list[:top]
	}
	parts := make([]string, 0, len(list))
	for _, e := range list {
		parts = append(parts, fmt.Sprintf("%s %d", e.ext, e.n))
	}
	return strings.Join(parts, ", ")
}

// Excerpts takes chunks in order until the budget is spent. The chunk that
// crosses the budget is cut short and marked truncated.
func (b *ContextBuilder) Excerpts(chunks []types.CodeChunk, keep func(types.CodeChunk) bool) []Excerpt {
	budget := b.MaxChars
	var out []Excerpt
	for _, c := range chunks {
		if budget <= 0 {
			break
		}
		if keep != nil && !keep(c) {
			continue
		}
		ex := Excerpt{File: c.File, Kind: c.Kind, Name: c.Name, StartLine: c.StartLine, EndLine: c.EndLine, Code: c.Text}
		if len(ex.Code) > budget {
			ex.Code = cut(ex.Code, budget)
			ex.Truncated = true
			budget = len(ex.Code)
		}
		budget -= len(ex.Code)
		out = append(out, ex)
	}
	return out
}

var schemaNames = map[string]struct{}{
	"schema.prisma": {}, "schema.sql": {}, "schema.rb": {}, "structure.sql": {}, "models.py": {},
}

// IsSchemaFile reports whether p looks like a database schema or migration source.
func IsSchemaFile(p string) bool {
	lp := strings.ToLower(p)
	base := path.Base(lp)
	if _, ok := schemaNames[base]; ok {
		return true
	}
	switch path.Ext(lp) {
	case ".prisma", ".sql":
		return true
	}
	return strings.Contains("/"+lp, "/migrations/") || strings.Contains("/"+lp, "/migrate/")
}

// SchemaArtifact collects schema files from the whole collection within the
// budget. It returns nil when the repository has none.
func (b *ContextBuilder) SchemaArtifact(files []types.RepoFile) *Artifact {
	budget := b.MaxChars
	var art Artifact
	for _, f := range files {
		if f.IsBinary || !IsSchemaFile(f.Path) || budget <= 0 {
			continue
		}
		code := f.Text()
		ex := Excerpt{File: f.Path, Kind: types.ChunkModuleFallback, StartLine: 1, EndLine: strings.Count(code, "\n") + 1}
		if len(code) > budget {
			code = cut(code, budget)
			ex.Truncated = true
			budget = len(code)
		}
		ex.Code = code
		budget -= len(code)
		art.Files = append(art.Files, ex)
	}
	if len(art.Files) == 0 {
		return nil
	}
	return &art
}

// Payload assembles the context for one analyzer.
func (b *ContextBuilder) Payload(spec Spec, in Input, summary string) Payload {
	p := Payload{Analyzer: spec.Name, Summary: summary}
	if spec.Heuristics {
		p.Heuristics = in.Heuristics
	}
	if spec.SchemaArtifact {
		if art := b.SchemaArtifact(in.Files); art != nil {
			p.SchemaArtifact = art
			return p
		}
		dataFiles := map[string]struct{}{}
		for _, pf := range in.Sampled {
			for _, tag := range pf.ReasonTags {
				if tag == sampler.TagData {
					dataFiles[pf.Path] = struct{}{}
				}
			}
		}
		if len(dataFiles) > 0 {
			p.Excerpts = b.Excerpts(in.Chunks, func(c types.CodeChunk) bool {
				_, ok := dataFiles[c.File]
				return ok
			})
			return p
		}
	}
	p.Excerpts = b.Excerpts(in.Chunks, nil)
	return p
}

// cut shortens s to at most n bytes without splitting a rune.
func cut(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
