package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestBytes_KnownVector(t *testing.T) {
	// SHA-256 of the empty string.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		DigestBytes(nil))

	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		DigestBytes([]byte("hello")))
}

func TestDigestReader_MatchesDigestBytes(t *testing.T) {
	content := []byte("some file content\nwith two lines\n")
	sum, n, err := DigestReader(strings.NewReader(string(content)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, DigestBytes(content), sum)
}

func TestDigestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	content := []byte("digest me")
	require.NoError(t, os.WriteFile(path, content, 0644))

	sum, size, err := DigestFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)
	assert.Equal(t, DigestBytes(content), sum)
}

func TestDigestFile_Missing(t *testing.T) {
	_, _, err := DigestFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestAggregateDigest_OrderIndependent(t *testing.T) {
	a := FileEntry{RelPath: "a.txt", Checksum: "aaa", Size: 1}
	b := FileEntry{RelPath: "b.txt", Checksum: "bbb", Size: 2}
	c := FileEntry{RelPath: "sub/c.txt", Checksum: "ccc", Size: 3}

	d1 := AggregateDigest([]FileEntry{a, b, c})
	d2 := AggregateDigest([]FileEntry{c, a, b})
	assert.Equal(t, d1, d2)
}

func TestAggregateDigest_SensitiveToContent(t *testing.T) {
	base := []FileEntry{{RelPath: "a.txt", Checksum: "aaa", Size: 1}}
	changed := []FileEntry{{RelPath: "a.txt", Checksum: "zzz", Size: 1}}
	renamed := []FileEntry{{RelPath: "b.txt", Checksum: "aaa", Size: 1}}
	resized := []FileEntry{{RelPath: "a.txt", Checksum: "aaa", Size: 2}}

	d := AggregateDigest(base)
	assert.NotEqual(t, d, AggregateDigest(changed))
	assert.NotEqual(t, d, AggregateDigest(renamed))
	assert.NotEqual(t, d, AggregateDigest(resized))
}

func TestAggregateDigest_Empty(t *testing.T) {
	// An empty entry set still has a stable digest.
	assert.Equal(t, AggregateDigest(nil), AggregateDigest([]FileEntry{}))
}
