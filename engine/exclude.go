package engine

import (
	"path/filepath"
	"strings"
)

// Matcher evaluates exclusion rules against normalized relative paths.
// A path is excluded if at least one rule matches; rules are independent,
// there is no precedence or negation. The same matcher is used during the
// save walk and during restore/export, so excluded paths never round-trip.
type Matcher struct {
	rules []ExclusionRule
}

// NewMatcher builds a matcher over the given rule set.
func NewMatcher(rules []ExclusionRule) *Matcher {
	return &Matcher{rules: rules}
}

// Excluded reports whether relPath matches any rule. relPath uses forward
// slashes and is relative to the tree being walked.
func (m *Matcher) Excluded(relPath string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	for _, r := range m.rules {
		if matchRule(r, relPath, isDir) {
			return true
		}
	}
	return false
}

func matchRule(r ExclusionRule, relPath string, isDir bool) bool {
	switch r.Type {
	case RuleGlob:
		return matchGlob(r.Pattern, relPath)
	case RuleExtension:
		if isDir {
			return false
		}
		ext := strings.TrimPrefix(filepath.Ext(relPath), ".")
		return ext != "" && strings.EqualFold(ext, strings.TrimPrefix(r.Pattern, "."))
	case RuleExact:
		return relPath == filepath.ToSlash(r.Pattern)
	}
	return false
}

// matchGlob matches a shell-style pattern against the whole relative path,
// its base name, and each path segment, so "node_modules" excludes the
// directory wherever it appears in the tree.
func matchGlob(pattern, relPath string) bool {
	if ok, _ := filepath.Match(pattern, relPath); ok {
		return true
	}
	if ok, _ := filepath.Match(pattern, filepath.Base(relPath)); ok {
		return true
	}
	for _, seg := range strings.Split(relPath, "/") {
		if ok, _ := filepath.Match(pattern, seg); ok {
			return true
		}
	}
	return false
}
