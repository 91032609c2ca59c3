package scanner

import (
	"bufio"
	"os"
	"path"
	"strings"
)

// IgnorePattern is one gitignore-style pattern.
type IgnorePattern struct {
	pattern  string
	negate   bool // Leading '!'
	dirOnly  bool // Trailing '/'
	segments []string
}

// ParseIgnorePattern parses a pattern. A pattern without an inner slash
// matches at any depth; one with a slash is anchored at the scan root.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{pattern: pattern}
	if strings.HasPrefix(pattern, "!") {
		p.negate = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")
	p.segments = strings.Split(pattern, "/")
	if !anchored {
		p.segments = append([]string{"**"}, p.segments...)
	}
	return p
}

// IsNegation reports whether the pattern re-includes what it matches.
func (p IgnorePattern) IsNegation() bool {
	return p.negate
}

func (p IgnorePattern) String() string {
	return p.pattern
}

// Match reports whether the slash-separated relative file path, or one of
// its parent directories, matches the pattern.
func (p IgnorePattern) Match(relPath string) bool {
	segs := strings.Split(relPath, "/")
	last := len(segs)
	if p.dirOnly {
		last--
	}
	for n := 1; n <= last; n++ {
		if matchSegments(p.segments, segs[:n]) {
			return true
		}
	}
	return false
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, err := path.Match(pattern[0], segs[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}

// IgnoreList applies patterns in order; the last matching pattern wins.
type IgnoreList []IgnorePattern

// NewIgnoreList parses patterns, skipping blank lines and comments.
func NewIgnoreList(patterns ...string) IgnoreList {
	var l IgnoreList
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		l = append(l, ParseIgnorePattern(raw))
	}
	return l
}

// LoadIgnoreFile reads an ignore file. A missing file yields an empty list.
func LoadIgnoreFile(name string) (IgnoreList, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewIgnoreList(lines...), nil
}

// Ignored reports whether relPath is excluded.
func (l IgnoreList) Ignored(relPath string) bool {
	ignored := false
	for _, p := range l {
		if p.Match(relPath) {
			ignored = !p.negate
		}
	}
	return ignored
}
