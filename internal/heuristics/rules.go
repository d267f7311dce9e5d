package heuristics

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"repoaudit/internal/types"
)

// Rule IDs, in evaluation order.
const (
	RuleDynamicCode      = "dynamic-code-execution"
	RuleRawHTML          = "raw-html-injection"
	RuleMissingCache     = "missing-cache-headers"
	RuleInlineMapRender  = "inline-render-in-large-map"
	RuleLargePublicAsset = "large-public-asset"
)

const (
	maxEvidence        = 200
	largeMapBodyLines  = 25
	largePublicAssetKB = 500
)

// Rule is one pattern check. Keywords feed the shared prefilter: a rule with
// keywords only runs on files that contain at least one of them.
type Rule struct {
	ID       string
	Message  string
	Keywords []string
	// Binary rules see every file; the rest only see text files.
	Binary bool
	Match  func(f types.RepoFile, lines []string) (line int, evidence string, ok bool)
}

var scriptExts = map[string]struct{}{
	".js": {}, ".jsx": {}, ".mjs": {}, ".cjs": {}, ".ts": {}, ".tsx": {}, ".mts": {}, ".cts": {},
	".vue": {}, ".svelte": {}, ".astro": {}, ".html": {},
}

var jsxExts = map[string]struct{}{".jsx": {}, ".tsx": {}, ".js": {}}

func hasExt(p string, set map[string]struct{}) bool {
	_, ok := set[strings.ToLower(path.Ext(p))]
	return ok
}

var (
	dynamicCodeRe = regexp.MustCompile(`(^|[^\w.$])eval\s*\(|new\s+Function\s*\(|set(Timeout|Interval)\s*\(\s*["'\x60]`)
	rawHTMLRe     = regexp.MustCompile(`dangerouslySetInnerHTML|\.(inner|outer)HTML\s*=[^=]|insertAdjacentHTML\s*\(|document\.write\s*\(|v-html\s*=|\{@html\s`)
	serverRe      = regexp.MustCompile(`\bexpress\s*\(\s*\)|\bcreateServer\s*\(|\bnew\s+Hono\s*\(|\bfastify\s*\(|\bhttp\.ListenAndServe\(|export\s+(async\s+)?function\s+(GET|HEAD)\s*\(`)
	cacheHeaderRe = regexp.MustCompile(`(?i)cache-control|setHeader\(\s*["']etag|\bmaxAge\b|revalidate\s*[:=]`)
	jsxTagRe      = regexp.MustCompile(`<[A-Za-z]`)
)

func firstLine(lines []string, re *regexp.Regexp) (int, string, bool) {
	for i, l := range lines {
		if re.MatchString(l) {
			return i + 1, evidence(l), true
		}
	}
	return 0, "", false
}

func evidence(line string) string {
	s := strings.TrimSpace(line)
	if len(s) > maxEvidence {
		n := maxEvidence
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n] + "…"
	}
	return s
}

// DefaultRules returns the fixed rule battery in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       RuleDynamicCode,
			Message:  "Dynamic code execution (eval, new Function or string timers) can run attacker-controlled input",
			Keywords: []string{"eval", "Function", "setTimeout", "setInterval"},
			Match: func(f types.RepoFile, lines []string) (int, string, bool) {
				if !hasExt(f.Path, scriptExts) {
					return 0, "", false
				}
				return firstLine(lines, dynamicCodeRe)
			},
		},
		{
			ID:       RuleRawHTML,
			Message:  "Raw HTML is injected into the DOM without visible sanitization",
			Keywords: []string{"dangerouslySetInnerHTML", "innerHTML", "outerHTML", "insertAdjacentHTML", "document.write", "v-html", "{@html"},
			Match: func(f types.RepoFile, lines []string) (int, string, bool) {
				if !hasExt(f.Path, scriptExts) {
					return 0, "", false
				}
				line, ev, ok := firstLine(lines, rawHTMLRe)
				if !ok {
					return 0, "", false
				}
				if strings.Contains(strings.ToLower(f.Text()), "sanitize") {
					return 0, "", false
				}
				return line, ev, true
			},
		},
		{
			ID:       RuleMissingCache,
			Message:  "Server entry point sets no cache directives (Cache-Control, ETag or revalidate)",
			Keywords: []string{"express", "createServer", "Hono", "fastify", "ListenAndServe", "GET", "HEAD"},
			Match: func(f types.RepoFile, lines []string) (int, string, bool) {
				if !hasExt(f.Path, scriptExts) && path.Ext(f.Path) != ".go" {
					return 0, "", false
				}
				line, ev, ok := firstLine(lines, serverRe)
				if !ok || cacheHeaderRe.MatchString(f.Text()) {
					return 0, "", false
				}
				return line, ev, true
			},
		},
		{
			ID:       RuleInlineMapRender,
			Message:  "Large inline render callback inside .map(); extract a memoized component",
			Keywords: []string{".map("},
			Match: func(f types.RepoFile, lines []string) (int, string, bool) {
				if !hasExt(f.Path, jsxExts) {
					return 0, "", false
				}
				for i, l := range lines {
					if !rendersJSX(lines, i) {
						continue
					}
					if callbackSpan(lines, i) > largeMapBodyLines {
						return i + 1, evidence(l), true
					}
				}
				return 0, "", false
			},
		},
		{
			ID:      RuleLargePublicAsset,
			Message: "Large binary asset served from a public directory",
			Binary:  true,
			Match: func(f types.RepoFile, _ []string) (int, string, bool) {
				if !f.IsBinary || f.SizeBytes < largePublicAssetKB*1024 {
					return 0, "", false
				}
				p := "/" + f.Path
				if strings.Contains(p, "/public/") || strings.Contains(p, "/static/") {
					return 0, f.Path, true
				}
				return 0, "", false
			},
		},
	}
}

// rendersJSX reports whether the .map( callback opening on line i returns
// markup within its first few lines.
func rendersJSX(lines []string, i int) bool {
	j := strings.Index(lines[i], ".map(")
	if j < 0 {
		return false
	}
	if jsxTagRe.MatchString(lines[i][j:]) {
		return true
	}
	for k := i + 1; k < len(lines) && k <= i+2; k++ {
		if jsxTagRe.MatchString(lines[k]) {
			return true
		}
	}
	return false
}

// callbackSpan counts the lines from start until the parenthesis opened by
// .map( is balanced again.
func callbackSpan(lines []string, start int) int {
	idx := strings.Index(lines[start], ".map(")
	if idx < 0 {
		return 0
	}
	depth := 0
	for i := start; i < len(lines); i++ {
		l := lines[i]
		if i == start {
			l = l[idx+len(".map"):]
		}
		for _, c := range l {
			switch c {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return i - start + 1
				}
			}
		}
	}
	return len(lines) - start
}
