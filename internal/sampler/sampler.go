package sampler

import (
	"path"
	"sort"
	"strings"

	"repoaudit/internal/types"
)

// Sampler selects a bounded, category-diverse subset of text files.
type Sampler struct {
	Cap        int
	Categories []Category
	Quotas     []Quota
}

func New(limit int) *Sampler {
	return &Sampler{Cap: limit, Categories: DefaultCategories, Quotas: DefaultQuotas}
}

// Score annotates one file. hitFiles is the set of paths with at least one rule hit.
func (s *Sampler) Score(f types.RepoFile, hitFiles map[string]struct{}) types.PrioritizedFile {
	pf := types.PrioritizedFile{RepoFile: f}
	if _, ok := hitFiles[f.Path]; ok {
		pf.PriorityScore += heuristicWeight
		pf.ReasonTags = append(pf.ReasonTags, TagHeuristic)
	}
	p := strings.ToLower(f.Path)
	base := path.Base(p)
	for _, c := range s.Categories {
		if c.Match(p, base) {
			pf.PriorityScore += c.Weight
			pf.ReasonTags = append(pf.ReasonTags, c.Tag)
		}
	}
	bonus := int(f.SizeBytes / 1024 / 10)
	if bonus > maxSizeBonus {
		bonus = maxSizeBonus
	}
	pf.PriorityScore += bonus
	return pf
}

// Rank scores every text file and sorts by descending score. Ties keep input order.
func (s *Sampler) Rank(files []types.RepoFile, hits []types.RuleHit) []types.PrioritizedFile {
	hitFiles := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		hitFiles[h.File] = struct{}{}
	}
	ranked := make([]types.PrioritizedFile, 0, len(files))
	for _, f := range files {
		if f.IsBinary {
			continue
		}
		ranked = append(ranked, s.Score(f, hitFiles))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PriorityScore > ranked[j].PriorityScore
	})
	return ranked
}

// Select picks the subset handed to chunking. Heuristic-hit files are always
// kept, even when they alone exceed the cap or the cap is zero. Quotas are credited to the
// primary reason tag only. Remaining room goes to the highest scores.
// The result keeps ranking order.
func (s *Sampler) Select(files []types.RepoFile, hits []types.RuleHit) []types.PrioritizedFile {
	ranked := s.Rank(files, hits)
	picked := make([]bool, len(ranked))
	count := 0

	for i, pf := range ranked {
		if pf.PrimaryTag() == TagHeuristic {
			picked[i] = true
			count++
		}
	}

	for _, q := range s.Quotas {
		want := q.size(s.Cap)
		for i := 0; i < len(ranked) && want > 0 && count < s.Cap; i++ {
			if picked[i] || ranked[i].PrimaryTag() != q.Tag {
				continue
			}
			picked[i] = true
			count++
			want--
		}
	}

	for i := 0; i < len(ranked) && count < s.Cap; i++ {
		if !picked[i] {
			picked[i] = true
			count++
		}
	}

	out := make([]types.PrioritizedFile, 0, count)
	for i, pf := range ranked {
		if picked[i] {
			out = append(out, pf)
		}
	}
	return out
}

// Sample is Select with the default tables.
func Sample(files []types.RepoFile, hits []types.RuleHit, limit int) []types.PrioritizedFile {
	return New(limit).Select(files, hits)
}
