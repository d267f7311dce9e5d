package source

import (
	"path"
	"strings"
)

var ignoredDirs = map[string]struct{}{
	".git":             {},
	".hg":              {},
	".svn":             {},
	"node_modules":     {},
	"bower_components": {},
	"vendor":           {},
	".venv":            {},
	"__pycache__":      {},
	"dist":             {},
	"build":            {},
	"out":              {},
	"target":           {},
	"coverage":         {},
	".next":            {},
	".nuxt":            {},
	".turbo":           {},
	".vercel":          {},
	".cache":           {},
}

var ignoredFiles = map[string]struct{}{
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"bun.lockb":         {},
	".DS_Store":         {},
}

// Ignored reports whether a repo-relative, slash-separated path falls under
// dependency, build output or VCS metadata locations.
func Ignored(rel string) bool {
	rel = strings.Trim(path.Clean("/"+rel), "/")
	if rel == "" || rel == "." {
		return true
	}
	parts := strings.Split(rel, "/")
	for _, p := range parts[:len(parts)-1] {
		if _, ok := ignoredDirs[p]; ok {
			return true
		}
	}
	_, ok := ignoredFiles[parts[len(parts)-1]]
	return ok
}

// IgnoredDir reports whether a directory name should be skipped while walking.
func IgnoredDir(name string) bool {
	_, ok := ignoredDirs[name]
	return ok
}
