package sampler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoaudit/internal/types"
)

func file(p string, size int) types.RepoFile {
	return types.RepoFile{Path: p, SizeBytes: int64(size), Content: make([]byte, size)}
}

func paths(pfs []types.PrioritizedFile) []string {
	out := make([]string, 0, len(pfs))
	for _, pf := range pfs {
		out = append(out, pf.Path)
	}
	return out
}

func manyFiles(n int) []types.RepoFile {
	files := make([]types.RepoFile, 0, n)
	for i := 0; i < n; i++ {
		files = append(files, file(fmt.Sprintf("src/lib/mod%03d.ts", i), (i%7)*9*1024))
	}
	return files
}

func TestScoreTagsAndWeights(t *testing.T) {
	s := New(10)
	pf := s.Score(file("src/api/auth/login.ts", 25*1024), map[string]struct{}{"src/api/auth/login.ts": {}})
	assert.Equal(t, []string{TagHeuristic, TagRoute, TagAuth}, pf.ReasonTags)
	assert.Equal(t, 10+8+9+2, pf.PriorityScore)
	assert.Equal(t, TagHeuristic, pf.PrimaryTag())

	big := s.Score(file("README.md", 500*1024), nil)
	assert.Empty(t, big.ReasonTags)
	assert.Equal(t, maxSizeBonus, big.PriorityScore)
}

func TestSelectRespectsCapAndKeepsHitFiles(t *testing.T) {
	files := manyFiles(100)
	hits := []types.RuleHit{
		{RuleID: "x", File: "src/lib/mod000.ts", Line: 1},
		{RuleID: "y", File: "src/lib/mod099.ts", Line: 3},
		{RuleID: "z", File: "src/lib/mod099.ts", Line: 9},
	}
	for _, limit := range []int{1, 2, 5, 40} {
		got := paths(Sample(files, hits, limit))
		assert.LessOrEqual(t, len(got), max(limit, 2), "limit %d", limit)
		if limit >= 2 {
			assert.Len(t, got, limit)
		}
		assert.Contains(t, got, "src/lib/mod000.ts")
		assert.Contains(t, got, "src/lib/mod099.ts")
	}
}

func TestSelectHitFilesOutrankCap(t *testing.T) {
	files := []types.RepoFile{file("a.js", 10), file("b.js", 10), file("c.js", 10), file("d.js", 10)}
	hits := []types.RuleHit{{File: "a.js"}, {File: "b.js"}, {File: "c.js"}}
	got := paths(Sample(files, hits, 2))
	assert.ElementsMatch(t, []string{"a.js", "b.js", "c.js"}, got)
}

func TestSelectZeroCapKeepsOnlyHitFiles(t *testing.T) {
	files := []types.RepoFile{file("a.js", 10), file("b.js", 10)}
	assert.Equal(t, []string{"a.js"}, paths(Sample(files, []types.RuleHit{{File: "a.js"}}, 0)))
	assert.Empty(t, Sample(files, nil, 0))
}

func TestSelectDeterministic(t *testing.T) {
	files := manyFiles(60)
	hits := []types.RuleHit{{File: "src/lib/mod010.ts"}}
	first := paths(Sample(files, hits, 12))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, paths(Sample(files, hits, 12)))
	}
}

func TestSelectFewerFilesThanCap(t *testing.T) {
	files := []types.RepoFile{
		file("main.go", 100),
		file("util.go", 100),
		{Path: "logo.png", SizeBytes: 900, IsBinary: true},
	}
	got := paths(Sample(files, nil, 40))
	assert.ElementsMatch(t, []string{"main.go", "util.go"}, got)
}

func TestSelectQuotaKeepsCategoryDiversity(t *testing.T) {
	var files []types.RepoFile
	for i := 0; i < 10; i++ {
		files = append(files, file(fmt.Sprintf("src/lib/big%d.ts", i), 60*1024))
	}
	files = append(files, file("pages/index.tsx", 100))

	got := paths(Sample(files, nil, 4))
	require.Len(t, got, 4)
	assert.Contains(t, got, "pages/index.tsx")
}

func TestSelectStableTies(t *testing.T) {
	files := []types.RepoFile{file("z.txt", 1), file("a.txt", 1), file("m.txt", 1)}
	assert.Equal(t, []string{"z.txt", "a.txt"}, paths(Sample(files, nil, 2)))
}

func TestSelectEmpty(t *testing.T) {
	assert.Empty(t, Sample(nil, nil, 40))
}
