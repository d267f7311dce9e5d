package types

import (
	"fmt"
	"strings"
)

// RepoRef identifies the repository under audit. Ref is empty for the default branch.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	Ref   string `json:"ref,omitempty"`
}

func (r RepoRef) String() string {
	s := r.Owner + "/" + r.Name
	if strings.TrimSpace(r.Ref) != "" {
		s += "@" + r.Ref
	}
	return s
}

// ParseRepoRef accepts "owner/name" or "owner/name@ref".
func ParseRepoRef(s string) (RepoRef, error) {
	s = strings.TrimSpace(s)
	var ref RepoRef
	if i := strings.LastIndex(s, "@"); i >= 0 {
		ref.Ref = strings.TrimSpace(s[i+1:])
		s = s[:i]
	}
	owner, name, ok := strings.Cut(strings.TrimSuffix(s, ".git"), "/")
	owner, name = strings.TrimSpace(owner), strings.TrimSpace(name)
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, fmt.Errorf("invalid repository %q: want owner/name[@ref]", s)
	}
	ref.Owner, ref.Name = owner, name
	return ref, nil
}

// RepoFile is one file of a fetched snapshot. Content is nil for binary files.
type RepoFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	IsBinary  bool   `json:"is_binary"`
	Content   []byte `json:"-"`
}

// Text returns the file content as a string; empty for binaries.
func (f RepoFile) Text() string {
	if f.IsBinary {
		return ""
	}
	return string(f.Content)
}

// RuleHit is a single heuristic match. Each rule reports at most one hit per file.
type RuleHit struct {
	RuleID   string `json:"rule_id"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
	Evidence string `json:"evidence,omitempty"`
}

// PrioritizedFile is a text file annotated with its sampling score.
// ReasonTags keep match order; the first tag is the primary one used for quotas.
type PrioritizedFile struct {
	RepoFile
	PriorityScore int      `json:"priority_score"`
	ReasonTags    []string `json:"reason_tags"`
}

// PrimaryTag returns the first reason tag or "" when the file matched nothing.
func (p PrioritizedFile) PrimaryTag() string {
	if len(p.ReasonTags) == 0 {
		return ""
	}
	return p.ReasonTags[0]
}

type ChunkKind string

const (
	ChunkFunction       ChunkKind = "function"
	ChunkClass          ChunkKind = "class"
	ChunkComponent      ChunkKind = "component"
	ChunkModuleFallback ChunkKind = "module-fallback"
)

// CodeChunk is a position-addressed unit of code handed to analyzers.
type CodeChunk struct {
	ID        string    `json:"id"`
	File      string    `json:"file"`
	Kind      ChunkKind `json:"kind"`
	Name      string    `json:"name,omitempty"`
	Text      string    `json:"text"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
}
