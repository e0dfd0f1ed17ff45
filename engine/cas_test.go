package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCAS(t *testing.T) *CAS {
	t.Helper()
	cas, err := NewCAS(filepath.Join(t.TempDir(), "storage"))
	require.NoError(t, err)
	return cas
}

func writeTemp(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestCAS_PutGetRoundtrip(t *testing.T) {
	cas := setupCAS(t)
	content := []byte("hello content store\n")

	sum, size, err := cas.Put(writeTemp(t, content))
	require.NoError(t, err)
	assert.Equal(t, DigestBytes(content), sum)
	assert.Equal(t, int64(len(content)), size)

	got, err := cas.Get(sum)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestCAS_PutIdempotent(t *testing.T) {
	cas := setupCAS(t)
	content := []byte("same bytes")

	sum1, _, err := cas.Put(writeTemp(t, content))
	require.NoError(t, err)
	sum2, _, err := cas.Put(writeTemp(t, content))
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2)

	blobs, err := cas.List()
	require.NoError(t, err)
	assert.Len(t, blobs, 1)
}

func TestCAS_PutBytes(t *testing.T) {
	cas := setupCAS(t)
	content := []byte("in-memory blob")

	sum, err := cas.PutBytes(content)
	require.NoError(t, err)
	assert.True(t, cas.Exists(sum))

	got, err := cas.Get(sum)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestCAS_GetMissing(t *testing.T) {
	cas := setupCAS(t)
	_, err := cas.Get(DigestBytes([]byte("never stored")))
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestCAS_Peek(t *testing.T) {
	cas := setupCAS(t)
	content := bytes.Repeat([]byte("x"), 1000)
	sum, err := cas.PutBytes(content)
	require.NoError(t, err)

	head, err := cas.Peek(sum, 100)
	require.NoError(t, err)
	assert.Equal(t, content[:100], head)

	// Limit larger than content returns everything.
	all, err := cas.Peek(sum, 5000)
	require.NoError(t, err)
	assert.Equal(t, content, all)
}

func TestCAS_WriteTo(t *testing.T) {
	cas := setupCAS(t)
	content := []byte("restore target")
	sum, err := cas.PutBytes(content)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "sub", "restored.txt")
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, cas.WriteTo(sum, dest, 0600, mtime))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	fi, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
	assert.Equal(t, mtime.Unix(), fi.ModTime().Unix())
}

func TestCAS_WriteTo_OverwritesExisting(t *testing.T) {
	cas := setupCAS(t)
	sum, err := cas.PutBytes([]byte("new content"))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(dest, []byte("old content"), 0644))
	require.NoError(t, cas.WriteTo(sum, dest, 0, time.Time{}))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("new content"), got)
}

func TestCAS_Delete(t *testing.T) {
	cas := setupCAS(t)
	sum, err := cas.PutBytes([]byte("doomed"))
	require.NoError(t, err)
	require.True(t, cas.Exists(sum))

	require.NoError(t, cas.Delete(sum))
	assert.False(t, cas.Exists(sum))

	// Deleting a missing blob is not an error.
	assert.NoError(t, cas.Delete(sum))
}

func TestCAS_CleanupTemp(t *testing.T) {
	cas := setupCAS(t)
	sum, err := cas.PutBytes([]byte("keep me"))
	require.NoError(t, err)

	// Simulate leftovers from an interrupted write.
	stale := filepath.Join(cas.root, "ab", "deadbeef.zst.tmp")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0750))
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0644))

	removed := cas.CleanupTemp()
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, stale)
	assert.True(t, cas.Exists(sum))
}
