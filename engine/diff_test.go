package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffLines_Identical(t *testing.T) {
	content := []byte("line one\nline two\n")
	result := DiffLines(content, content)
	assert.True(t, result.Identical)
	assert.Empty(t, result.Ops)
}

func TestDiffLines_Binary(t *testing.T) {
	binary := []byte{0x00, 0x01, 0x02}
	text := []byte("plain text\n")

	assert.True(t, DiffLines(binary, text).Binary)
	assert.True(t, DiffLines(text, binary).Binary)

	// Identical binary content reports identical, not a diff.
	same := DiffLines(binary, binary)
	assert.True(t, same.Identical)
}

func TestDiffLines_TwoLineChange(t *testing.T) {
	src := []byte("alpha\nbeta\ngamma\n")
	dst := []byte("alpha\nBETA\ngamma\n")

	result := DiffLines(src, dst)
	assert.False(t, result.Identical)
	assert.False(t, result.Binary)

	var added, removed, context []string
	for _, op := range result.Ops {
		switch op.Kind {
		case DiffAdd:
			added = append(added, op.Line)
		case DiffRemove:
			removed = append(removed, op.Line)
		case DiffContext:
			context = append(context, op.Line)
		}
	}
	assert.Equal(t, []string{"BETA"}, added)
	assert.Equal(t, []string{"beta"}, removed)
	assert.Contains(t, context, "alpha")
	assert.Contains(t, context, "gamma")
}

func TestDiffLines_AppendOnly(t *testing.T) {
	src := []byte("one\n")
	dst := []byte("one\ntwo\n")

	result := DiffLines(src, dst)
	var added []string
	for _, op := range result.Ops {
		if op.Kind == DiffAdd {
			added = append(added, op.Line)
		}
		assert.NotEqual(t, DiffRemove, op.Kind)
	}
	assert.Equal(t, []string{"two"}, added)
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary(nil))
	assert.False(t, IsBinary([]byte("just text")))
	assert.True(t, IsBinary([]byte{'a', 0x00, 'b'}))

	// NUL beyond the sniff window is not considered.
	big := make([]byte, 1024)
	for i := range big {
		big[i] = 'x'
	}
	big[600] = 0x00
	assert.False(t, IsBinary(big))
}
