package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcher_Glob(t *testing.T) {
	m := NewMatcher([]ExclusionRule{
		{Pattern: "*.log", Type: RuleGlob},
		{Pattern: "node_modules", Type: RuleGlob},
	})

	tests := []struct {
		relPath  string
		isDir    bool
		excluded bool
	}{
		{"app.log", false, true},
		{"sub/deep/app.log", false, true},
		{"app.log.bak", false, false},
		{"node_modules", true, true},
		{"src/node_modules", true, true},
		{"src/node_modules/pkg/index.js", false, true},
		{"src/main.go", false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.excluded, m.Excluded(tt.relPath, tt.isDir), tt.relPath)
	}
}

func TestMatcher_Extension(t *testing.T) {
	m := NewMatcher([]ExclusionRule{{Pattern: "tmp", Type: RuleExtension}})

	assert.True(t, m.Excluded("scratch.tmp", false))
	assert.True(t, m.Excluded("a/b/scratch.TMP", false))
	assert.False(t, m.Excluded("scratch.tmp", true)) // dirs have no extension
	assert.False(t, m.Excluded("tmp", false))
	assert.False(t, m.Excluded("scratch.tmpx", false))

	// Leading dot in the pattern is tolerated.
	dotted := NewMatcher([]ExclusionRule{{Pattern: ".tmp", Type: RuleExtension}})
	assert.True(t, dotted.Excluded("scratch.tmp", false))
}

func TestMatcher_Exact(t *testing.T) {
	m := NewMatcher([]ExclusionRule{{Pattern: "secrets/key.pem", Type: RuleExact}})

	assert.True(t, m.Excluded("secrets/key.pem", false))
	assert.False(t, m.Excluded("key.pem", false))
	assert.False(t, m.Excluded("other/secrets/key.pem", false))
}

func TestMatcher_Empty(t *testing.T) {
	assert.False(t, NewMatcher(nil).Excluded("anything", false))

	var m *Matcher
	assert.False(t, m.Excluded("anything", false))
}

func TestMatcher_AnyRuleMatches(t *testing.T) {
	m := NewMatcher([]ExclusionRule{
		{Pattern: "*.bin", Type: RuleGlob},
		{Pattern: "log", Type: RuleExtension},
	})
	assert.True(t, m.Excluded("data.bin", false))
	assert.True(t, m.Excluded("out.log", false))
	assert.False(t, m.Excluded("keep.txt", false))
}
