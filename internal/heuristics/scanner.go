package heuristics

import (
	"strings"

	"github.com/cloudflare/ahocorasick"

	"repoaudit/internal/types"
)

// Scanner applies an ordered rule battery to a file collection. It is safe
// for concurrent use.
type Scanner struct {
	rules   []Rule
	matcher *ahocorasick.Matcher
	// owner[i] lists the rules that registered keyword i.
	owner [][]int
}

func NewScanner(rules []Rule) *Scanner {
	s := &Scanner{rules: rules}
	index := map[string]int{}
	var keywords []string
	for ri, r := range rules {
		for _, kw := range r.Keywords {
			if kw == "" {
				continue
			}
			ki, ok := index[kw]
			if !ok {
				ki = len(keywords)
				index[kw] = ki
				keywords = append(keywords, kw)
				s.owner = append(s.owner, nil)
			}
			s.owner[ki] = append(s.owner[ki], ri)
		}
	}
	if len(keywords) > 0 {
		s.matcher = ahocorasick.NewStringMatcher(keywords)
	}
	return s
}

// Default returns a scanner over DefaultRules.
func Default() *Scanner { return NewScanner(DefaultRules()) }

// Scan returns at most one hit per rule per file. Hits are ordered by file,
// then by rule order.
func (s *Scanner) Scan(files []types.RepoFile) []types.RuleHit {
	var hits []types.RuleHit
	for _, f := range files {
		hits = append(hits, s.ScanFile(f)...)
	}
	return hits
}

func (s *Scanner) ScanFile(f types.RepoFile) []types.RuleHit {
	var (
		candidates []bool
		lines      []string
	)
	if !f.IsBinary {
		candidates = s.prefilter(f.Content)
		lines = strings.Split(f.Text(), "\n")
	}
	var hits []types.RuleHit
	for ri, r := range s.rules {
		if f.IsBinary && !r.Binary {
			continue
		}
		if !f.IsBinary && len(r.Keywords) > 0 && !candidates[ri] {
			continue
		}
		line, ev, ok := r.Match(f, lines)
		if !ok {
			continue
		}
		hits = append(hits, types.RuleHit{
			RuleID:   r.ID,
			File:     f.Path,
			Line:     line,
			Message:  r.Message,
			Evidence: ev,
		})
	}
	return hits
}

func (s *Scanner) prefilter(content []byte) []bool {
	candidates := make([]bool, len(s.rules))
	if s.matcher == nil || len(content) == 0 {
		return candidates
	}
	for _, ki := range s.matcher.MatchThreadSafe(content) {
		if ki < 0 || ki >= len(s.owner) {
			continue
		}
		for _, ri := range s.owner[ki] {
			candidates[ri] = true
		}
	}
	return candidates
}
