package chunker

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"

	"repoaudit/internal/types"
)

// minBindingLines is the smallest span for which a function-valued binding
// counts as its own unit.
const minBindingLines = 3

// ID derives a chunk id from the file path and line span. Identical input
// always yields the same id.
func ID(file string, start, end int) string {
	return fmt.Sprintf("%016x:%d-%d", xxhash.Sum64String(file), start, end)
}

type dialect int

const (
	dialectNone dialect = iota
	dialectJS
	dialectTS
	dialectTSX
	dialectGo
)

func dialectOf(p string) dialect {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return dialectJS
	case ".ts", ".mts", ".cts":
		return dialectTS
	case ".tsx":
		return dialectTSX
	case ".go":
		return dialectGo
	}
	return dialectNone
}

// unit is a structural span found by a dialect parser, before ids are assigned.
type unit struct {
	kind      types.ChunkKind
	name      string
	startLine int
	endLine   int
	text      string
}

// ChunkFile splits one text file into chunks. Files in unsupported dialects,
// files that fail to parse and files with no structural units produce a
// single whole-file fallback chunk.
func ChunkFile(ctx context.Context, f types.RepoFile) []types.CodeChunk {
	src := f.Content
	var units []unit
	switch dialectOf(f.Path) {
	case dialectJS, dialectTS, dialectTSX:
		units = scriptUnits(ctx, dialectOf(f.Path), src)
	case dialectGo:
		units = goUnits(f.Path, src)
	}
	if len(units) == 0 {
		return []types.CodeChunk{fallback(f)}
	}
	chunks := make([]types.CodeChunk, 0, len(units))
	for _, u := range units {
		chunks = append(chunks, types.CodeChunk{
			ID:        ID(f.Path, u.startLine, u.endLine),
			File:      f.Path,
			Kind:      u.kind,
			Name:      u.name,
			Text:      u.text,
			StartLine: u.startLine,
			EndLine:   u.endLine,
		})
	}
	return chunks
}

func fallback(f types.RepoFile) types.CodeChunk {
	text := f.Text()
	end := strings.Count(text, "\n") + 1
	if strings.HasSuffix(text, "\n") && end > 1 {
		end--
	}
	return types.CodeChunk{
		ID:        ID(f.Path, 1, end),
		File:      f.Path,
		Kind:      types.ChunkModuleFallback,
		Name:      path.Base(f.Path),
		Text:      text,
		StartLine: 1,
		EndLine:   end,
	}
}

// Chunk splits every file in order. Binary files are skipped.
func Chunk(ctx context.Context, files []types.PrioritizedFile) []types.CodeChunk {
	var out []types.CodeChunk
	for _, pf := range files {
		if pf.IsBinary {
			continue
		}
		if ctx.Err() != nil {
			return out
		}
		out = append(out, ChunkFile(ctx, pf.RepoFile)...)
	}
	return out
}
