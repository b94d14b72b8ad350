// Package ignore decides which mirror paths are excluded from a sync.
//
// Rules use gitignore syntax and are rooted at the mirror root: the root
// .gitignore, nested .gitignore files and .git/info/exclude are read once
// when the Matcher is built.
package ignore

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Filter reports whether a path is excluded.
type Filter interface {
	IsIgnored(path string, isDir bool) bool
}

// Nop ignores nothing.
type Nop struct{}

// IsIgnored implements Filter.
func (Nop) IsIgnored(string, bool) bool { return false }

// Matcher evaluates gitignore rules rooted at a directory.
type Matcher struct {
	root     string
	patterns int
	matcher  gitignore.Matcher
}

// Load reads the gitignore rules found under root and appends extra
// patterns. Extra patterns are evaluated last, so they override rules read
// from disk. A missing root yields a Matcher with only the extra patterns.
func Load(root string, extra []string) (*Matcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve ignore root %s: %w", root, err)
	}

	patterns, err := gitignore.ReadPatterns(osfs.New(abs), nil)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read ignore rules under %s: %w", abs, err)
	}
	for _, p := range extra {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	return &Matcher{
		root:     abs,
		patterns: len(patterns),
		matcher:  gitignore.NewMatcher(patterns),
	}, nil
}

// Len returns the number of loaded patterns.
func (m *Matcher) Len() int {
	return m.patterns
}

// IsIgnored implements Filter. Paths outside the root are never ignored.
func (m *Matcher) IsIgnored(path string, isDir bool) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return m.matcher.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}
