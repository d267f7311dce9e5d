package docs

import (
	"encoding/json"
	"path"
	"sort"

	"golang.org/x/mod/modfile"

	"repoaudit/internal/types"
)

// Libraries lists direct dependencies declared in root-level package.json and
// go.mod files: runtime dependencies first, then dev dependencies, each sorted.
func Libraries(files []types.RepoFile) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(names []string) {
		for _, n := range names {
			if _, ok := seen[n]; ok || n == "" {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	for _, f := range files {
		if f.IsBinary || path.Dir(f.Path) != "." {
			continue
		}
		switch path.Base(f.Path) {
		case "package.json":
			deps, dev := npmDependencies(f.Content)
			add(deps)
			add(dev)
		case "go.mod":
			add(goRequires(f.Content))
		}
	}
	return out
}

func npmDependencies(b []byte) (deps, dev []string) {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(b, &pkg); err != nil {
		return nil, nil
	}
	return sortedKeys(pkg.Dependencies), sortedKeys(pkg.DevDependencies)
}

func goRequires(b []byte) []string {
	mf, err := modfile.ParseLax("go.mod", b, nil)
	if err != nil {
		return nil
	}
	var direct []string
	for _, r := range mf.Require {
		if r.Indirect {
			continue
		}
		direct = append(direct, r.Mod.Path)
	}
	sort.Strings(direct)
	return direct
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
