package sampler

import (
	"path"
	"regexp"
	"strings"
)

// Reason tags.
const (
	TagHeuristic  = "heuristic-hit"
	TagRoute      = "route"
	TagPage       = "page"
	TagLayout     = "layout"
	TagAuth       = "auth"
	TagData       = "data-access"
	TagMiddleware = "middleware"
	TagConfig     = "config"
	TagLibrary    = "library"
	TagComponent  = "component"
)

// Category is a weighted path signal. Categories are evaluated in table order,
// so the first match becomes the file's primary reason tag.
type Category struct {
	Tag    string
	Weight int
	Match  func(p, base string) bool
}

func anySegment(p string, names ...string) bool {
	for _, seg := range strings.Split(p, "/") {
		for _, n := range names {
			if seg == n {
				return true
			}
		}
	}
	return false
}

func stem(base string) string {
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

var (
	authRe = regexp.MustCompile(`auth|login|logout|signin|signup|session|secur|passw|token|jwt|oauth|crypt|permission|acl|rbac`)
	dataRe = regexp.MustCompile(`(^|/)(db|database|models?|prisma|repositor(y|ies)|dao|migrations?|queries|schema|entities|store)(/|\.|$)|\.sql$|\.prisma$`)
)

var configFiles = map[string]struct{}{
	"package.json": {}, "tsconfig.json": {}, "go.mod": {}, "dockerfile": {}, "docker-compose.yml": {},
	"docker-compose.yaml": {}, "vercel.json": {}, "netlify.toml": {}, ".env.example": {}, "requirements.txt": {},
	"pyproject.toml": {}, "cargo.toml": {}, "makefile": {},
}

// DefaultCategories is the weight table used by Sample.
var DefaultCategories = []Category{
	{Tag: TagRoute, Weight: 8, Match: func(p, base string) bool {
		s := stem(base)
		return anySegment(p, "api", "routes", "router", "handlers", "controllers", "endpoints") ||
			s == "route" || s == "routes" || s == "server" || s == "main" && path.Ext(base) == ".go"
	}},
	{Tag: TagPage, Weight: 7, Match: func(p, base string) bool {
		s := stem(base)
		return s == "page" || anySegment(p, "pages", "views", "screens", "templates") && !anySegment(p, "api")
	}},
	{Tag: TagLayout, Weight: 6, Match: func(p, base string) bool {
		s := stem(base)
		return s == "layout" || s == "_app" || s == "_document" || s == "template" || strings.Contains(strings.ToLower(s), "wrapper") || anySegment(p, "layouts")
	}},
	{Tag: TagAuth, Weight: 9, Match: func(p, _ string) bool {
		return authRe.MatchString(p)
	}},
	{Tag: TagData, Weight: 7, Match: func(p, _ string) bool {
		return dataRe.MatchString(p)
	}},
	{Tag: TagMiddleware, Weight: 8, Match: func(p, base string) bool {
		s := stem(base)
		return s == "middleware" || anySegment(p, "middleware", "middlewares", "interceptors") || strings.Contains(s, "interceptor")
	}},
	{Tag: TagConfig, Weight: 5, Match: func(p, base string) bool {
		if _, ok := configFiles[base]; ok {
			return true
		}
		return strings.Contains(base, ".config.") || strings.HasSuffix(base, "rc.json") || strings.HasSuffix(base, "rc.js")
	}},
	{Tag: TagLibrary, Weight: 4, Match: func(p, _ string) bool {
		return anySegment(p, "lib", "libs", "utils", "shared", "common", "helpers", "pkg", "internal")
	}},
	{Tag: TagComponent, Weight: 3, Match: func(p, base string) bool {
		ext := path.Ext(base)
		return anySegment(p, "components", "ui", "widgets") || ext == ".vue" || ext == ".svelte"
	}},
}

const (
	heuristicWeight = 10
	maxSizeBonus    = 5
)

// Quota reserves part of the cap for files whose primary tag matches Tag.
type Quota struct {
	Tag      string
	Fraction float64
	Floor    int
}

// DefaultQuotas are filled in order after the heuristic-hit files.
var DefaultQuotas = []Quota{
	{Tag: TagRoute, Fraction: 0.25},
	{Tag: TagPage, Fraction: 0.20},
	{Tag: TagAuth, Fraction: 0.15},
	{Tag: TagData, Fraction: 0.10},
	{Tag: TagMiddleware, Floor: 2},
	{Tag: TagLayout, Floor: 2},
}

func (q Quota) size(limit int) int {
	n := int(q.Fraction * float64(limit))
	if q.Fraction > 0 && n == 0 {
		n = 1
	}
	if n < q.Floor {
		n = q.Floor
	}
	return n
}
