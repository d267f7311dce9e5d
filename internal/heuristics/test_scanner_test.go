package heuristics

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoaudit/internal/types"
)

func text(p, body string) types.RepoFile {
	return types.RepoFile{Path: p, SizeBytes: int64(len(body)), Content: []byte(body)}
}

func ruleIDs(hits []types.RuleHit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.RuleID)
	}
	return out
}

func TestDynamicCodeFirstLineOnly(t *testing.T) {
	f := text("src/util.js", "const a = 1\nconst b = eval(input)\nnew Function('x', body)\n")
	hits := Default().Scan([]types.RepoFile{f})
	require.Len(t, hits, 1)
	assert.Equal(t, RuleDynamicCode, hits[0].RuleID)
	assert.Equal(t, 2, hits[0].Line)
	assert.Equal(t, "const b = eval(input)", hits[0].Evidence)
}

func TestEvidenceKeepsRunesWhole(t *testing.T) {
	line := "eval(" + strings.Repeat("a", maxEvidence-6) + strings.Repeat("é", 20)
	got := evidence(line)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "eval("+strings.Repeat("a", maxEvidence-6)+"…", got)
}

func TestDynamicCodeIgnoresLookalikes(t *testing.T) {
	f := text("src/util.ts", "const r = obj.evaluate(x)\nmyeval(x)\n")
	assert.Empty(t, Default().Scan([]types.RepoFile{f}))
}

func TestNonScriptFilesAreSkipped(t *testing.T) {
	f := text("docs/security.md", "Never call eval(input) on user data.\n")
	assert.Empty(t, Default().Scan([]types.RepoFile{f}))
}

func TestRawHTML(t *testing.T) {
	f := text("components/Post.tsx", "export function Post({html}) {\n  return <div dangerouslySetInnerHTML={{__html: html}} />\n}\n")
	hits := Default().Scan([]types.RepoFile{f})
	assert.Equal(t, []string{RuleRawHTML}, ruleIDs(hits))
	assert.Equal(t, 2, hits[0].Line)

	sanitized := text("components/Safe.tsx", "import DOMPurify from 'dompurify'\nconst clean = DOMPurify.sanitize(html)\nel.innerHTML = clean\n")
	assert.Empty(t, Default().Scan([]types.RepoFile{sanitized}))
}

func TestMissingCacheHeaders(t *testing.T) {
	bare := text("server/index.js", "const express = require('express')\nconst app = express()\napp.listen(3000)\n")
	hits := Default().Scan([]types.RepoFile{bare})
	assert.Equal(t, []string{RuleMissingCache}, ruleIDs(hits))
	assert.Equal(t, 2, hits[0].Line)

	cached := text("server/index.js", "const app = express()\napp.use((req, res, next) => { res.set('Cache-Control', 'public'); next() })\n")
	assert.Empty(t, Default().Scan([]types.RepoFile{cached}))
}

func TestInlineRenderInLargeMap(t *testing.T) {
	var b strings.Builder
	b.WriteString("export function List({items}) {\n  return <ul>{items.map((item) => (\n")
	for i := 0; i < 30; i++ {
		b.WriteString("    <li key={item.id}>{item.name}</li>\n")
	}
	b.WriteString("  ))}</ul>\n}\n")
	hits := Default().Scan([]types.RepoFile{text("components/List.jsx", b.String())})
	assert.Equal(t, []string{RuleInlineMapRender}, ruleIDs(hits))
	assert.Equal(t, 2, hits[0].Line)

	small := text("components/Small.jsx", "const x = items.map((i) => <li>{i}</li>)\n")
	assert.Empty(t, Default().Scan([]types.RepoFile{small}))
}

func TestLargePublicAsset(t *testing.T) {
	files := []types.RepoFile{
		{Path: "public/hero.png", SizeBytes: 2 << 20, IsBinary: true},
		{Path: "assets/hero.png", SizeBytes: 2 << 20, IsBinary: true},
		{Path: "public/icon.png", SizeBytes: 4 << 10, IsBinary: true},
	}
	hits := Default().Scan(files)
	require.Len(t, hits, 1)
	assert.Equal(t, RuleLargePublicAsset, hits[0].RuleID)
	assert.Equal(t, "public/hero.png", hits[0].File)
}

func TestHitsFollowFileThenRuleOrder(t *testing.T) {
	files := []types.RepoFile{
		text("b.js", "el.innerHTML = x\neval(y)\n"),
		text("a.js", "eval(z)\n"),
	}
	hits := Default().Scan(files)
	require.Len(t, hits, 3)
	assert.Equal(t, "b.js", hits[0].File)
	assert.Equal(t, RuleDynamicCode, hits[0].RuleID)
	assert.Equal(t, RuleRawHTML, hits[1].RuleID)
	assert.Equal(t, "a.js", hits[2].File)
}

func TestCustomRuleWithoutKeywordsAlwaysRuns(t *testing.T) {
	s := NewScanner([]Rule{{
		ID:      "todo",
		Message: "todo marker",
		Match: func(f types.RepoFile, lines []string) (int, string, bool) {
			for i, l := range lines {
				if strings.Contains(l, "TODO") {
					return i + 1, l, true
				}
			}
			return 0, "", false
		},
	}})
	hits := s.Scan([]types.RepoFile{text("x.go", "package x\n// TODO\n")})
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Line)
}
