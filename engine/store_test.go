package engine

import (
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveTestSnapshot(t *testing.T, store *Store, root string, entries []FileEntry) *Snapshot {
	t.Helper()
	snap := &Snapshot{
		Root:      root,
		Kind:      KindDir,
		Checksum:  AggregateDigest(entries),
		CreatedAt: nowFunc(),
	}
	for _, e := range entries {
		if !e.IsDir() {
			snap.Size += e.Size
			snap.FileCount++
		}
	}
	require.NoError(t, store.SaveSnapshot(snap, entries))
	return snap
}

func TestStore_SaveAndLoadSnapshot(t *testing.T) {
	store := setupTestStore(t)
	created := time.Date(2026, 8, 25, 10, 30, 0, 123456789, time.UTC)

	snap := &Snapshot{
		Root:      "/home/user/project",
		Kind:      KindDir,
		Checksum:  "agg1",
		Size:      42,
		FileCount: 2,
		CreatedAt: created,
	}
	entries := []FileEntry{
		{RelPath: "a.txt", Checksum: "c-a", Size: 20, Mode: 0644, Mtime: 111},
		{RelPath: "sub", Size: 0, Mode: fs.ModeDir | 0755, Mtime: 0},
		{RelPath: "sub/b.txt", Checksum: "c-b", Size: 22, Mode: 0600, Mtime: 222},
	}
	require.NoError(t, store.SaveSnapshot(snap, entries))
	assert.Greater(t, snap.ID, int64(0))

	got, err := store.LatestSnapshot("/home/user/project")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, "agg1", got.Checksum)
	assert.True(t, got.CreatedAt.Equal(created))

	loaded, err := store.Entries(snap.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	// Ordered by relative path.
	assert.Equal(t, "a.txt", loaded[0].RelPath)
	assert.Equal(t, "sub", loaded[1].RelPath)
	assert.Equal(t, "sub/b.txt", loaded[2].RelPath)
	assert.Equal(t, "c-b", loaded[2].Checksum)
	assert.Equal(t, int64(222), loaded[2].Mtime)
}

func TestStore_LatestSnapshotNone(t *testing.T) {
	store := setupTestStore(t)
	snap, err := store.LatestSnapshot("/nowhere")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStore_IDsFollowCommitOrder(t *testing.T) {
	store := setupTestStore(t)

	var ids []int64
	for i := 0; i < 5; i++ {
		snap := saveTestSnapshot(t, store, "/r", []FileEntry{
			{RelPath: "f", Checksum: fmt.Sprintf("c%d", i), Size: 1, Mode: 0644},
		})
		ids = append(ids, snap.ID)
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}

	history, err := store.SnapshotsForRoot("/r")
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, snap := range history {
		assert.Equal(t, ids[i], snap.ID)
	}
}

func TestStore_ListSnapshotsUnder(t *testing.T) {
	store := setupTestStore(t)
	saveTestSnapshot(t, store, "/work/proj", nil)
	saveTestSnapshot(t, store, "/work/proj/sub", nil)
	saveTestSnapshot(t, store, "/work/project-other", nil)
	saveTestSnapshot(t, store, "/elsewhere", nil)

	snaps, err := store.ListSnapshotsUnder("/work/proj")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "/work/proj", snaps[0].Root)
	assert.Equal(t, "/work/proj/sub", snaps[1].Root)
}

func TestStore_ListSnapshotsUnderLiteralMetacharacters(t *testing.T) {
	store := setupTestStore(t)
	saveTestSnapshot(t, store, "/work/a_b", nil)
	saveTestSnapshot(t, store, "/work/a_b/sub", nil)
	// "_" matches any one character in LIKE; an unescaped pattern would
	// pull this sibling in too.
	saveTestSnapshot(t, store, "/work/axb/sub", nil)

	snaps, err := store.ListSnapshotsUnder("/work/a_b")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "/work/a_b", snaps[0].Root)
	assert.Equal(t, "/work/a_b/sub", snaps[1].Root)
}

func TestStore_ResolvePrefix(t *testing.T) {
	store := setupTestStore(t)
	saveTestSnapshot(t, store, "/r", []FileEntry{
		{RelPath: "a", Checksum: "abc111", Size: 1, Mode: 0644},
		{RelPath: "b", Checksum: "abd222", Size: 1, Mode: 0644},
	})

	// Unique prefix
	sums, err := store.ResolvePrefix("abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc111"}, sums)

	// Ambiguous prefix spans both entries
	sums, err = store.ResolvePrefix("ab")
	require.NoError(t, err)
	assert.Len(t, sums, 2)

	// No match
	sums, err = store.ResolvePrefix("zzz")
	require.NoError(t, err)
	assert.Empty(t, sums)
}

func TestStore_ResolvePrefixIncludesAggregates(t *testing.T) {
	store := setupTestStore(t)
	entries := []FileEntry{{RelPath: "a", Checksum: "fff000", Size: 1, Mode: 0644}}
	snap := saveTestSnapshot(t, store, "/r", entries)

	sums, err := store.ResolvePrefix(snap.Checksum[:8])
	require.NoError(t, err)
	assert.Contains(t, sums, snap.Checksum)
}

func TestStore_ResolvePrefixForRoot_Scoped(t *testing.T) {
	store := setupTestStore(t)
	saveTestSnapshot(t, store, "/one", []FileEntry{
		{RelPath: "a", Checksum: "aaa111", Size: 1, Mode: 0644},
	})
	saveTestSnapshot(t, store, "/two", []FileEntry{
		{RelPath: "b", Checksum: "aaa222", Size: 1, Mode: 0644},
	})

	sums, err := store.ResolvePrefixForRoot("/one", "aaa")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa111"}, sums)
}

func TestStore_ResolvePrefixEscapesLikeMetachars(t *testing.T) {
	store := setupTestStore(t)
	saveTestSnapshot(t, store, "/r", []FileEntry{
		{RelPath: "a", Checksum: "abc111", Size: 1, Mode: 0644},
	})

	// "%" must match literally, not as a wildcard.
	sums, err := store.ResolvePrefix("%")
	require.NoError(t, err)
	assert.Empty(t, sums)
}

func TestStore_EntryByChecksum_NewestWins(t *testing.T) {
	store := setupTestStore(t)
	saveTestSnapshot(t, store, "/r", []FileEntry{
		{RelPath: "old-name.txt", Checksum: "shared", Size: 1, Mode: 0644},
	})
	second := saveTestSnapshot(t, store, "/r", []FileEntry{
		{RelPath: "new-name.txt", Checksum: "shared", Size: 1, Mode: 0644},
	})

	snap, entry, err := store.EntryByChecksum("/r", "shared")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, second.ID, snap.ID)
	assert.Equal(t, "new-name.txt", entry.RelPath)
}

func TestStore_EntryByChecksum_NoMatch(t *testing.T) {
	store := setupTestStore(t)
	snap, entry, err := store.EntryByChecksum("/r", "missing")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Nil(t, entry)
}

func TestStore_DeleteSnapshots_OrphanComputation(t *testing.T) {
	store := setupTestStore(t)
	// Blob "shared" is referenced from two roots; "lonely" only from /gone.
	saveTestSnapshot(t, store, "/gone", []FileEntry{
		{RelPath: "a", Checksum: "shared", Size: 1, Mode: 0644},
		{RelPath: "b", Checksum: "lonely", Size: 1, Mode: 0644},
	})
	saveTestSnapshot(t, store, "/kept", []FileEntry{
		{RelPath: "c", Checksum: "shared", Size: 1, Mode: 0644},
	})

	deleted, orphans, err := store.DeleteSnapshots("/gone", true)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, []string{"lonely"}, orphans)

	remaining, err := store.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "/kept", remaining[0].Root)
}

func TestStore_DeleteSnapshots_UnderPrefix(t *testing.T) {
	store := setupTestStore(t)
	saveTestSnapshot(t, store, "/w/a", nil)
	saveTestSnapshot(t, store, "/w/a/sub", nil)
	saveTestSnapshot(t, store, "/w/ab", nil) // sibling, must survive

	deleted, _, err := store.DeleteSnapshots("/w/a", true)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := store.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "/w/ab", remaining[0].Root)
}

func TestStore_DeleteAllSnapshots(t *testing.T) {
	store := setupTestStore(t)
	saveTestSnapshot(t, store, "/a", []FileEntry{
		{RelPath: "f", Checksum: "x1", Size: 1, Mode: 0644},
	})
	saveTestSnapshot(t, store, "/b", []FileEntry{
		{RelPath: "g", Checksum: "x2", Size: 1, Mode: 0644},
	})

	deleted, orphans, err := store.DeleteAllSnapshots()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.ElementsMatch(t, []string{"x1", "x2"}, orphans)
}

func TestStore_SearchEntries_LatestSnapshotOnly(t *testing.T) {
	store := setupTestStore(t)
	saveTestSnapshot(t, store, "/r", []FileEntry{
		{RelPath: "removed-later.go", Checksum: "c1", Size: 1, Mode: 0644},
	})
	latest := saveTestSnapshot(t, store, "/r", []FileEntry{
		{RelPath: "still-here.go", Checksum: "c2", Size: 1, Mode: 0644},
	})

	matches, err := store.SearchEntries(".go")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"still-here.go"}, matches[latest.ID])
}

func TestStore_Exclusions(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.AddExclusion("*.log", RuleGlob))
	require.NoError(t, store.AddExclusion("tmp", RuleExtension))

	// Duplicate pattern is rejected by the UNIQUE constraint.
	assert.Error(t, store.AddExclusion("*.log", RuleGlob))
	// Unknown rule types never reach the table.
	assert.Error(t, store.AddExclusion("x", "regex"))

	rules, err := store.ListExclusions()
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	removed, err := store.RemoveExclusion("*.log")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.RemoveExclusion("*.log")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_Counts(t *testing.T) {
	store := setupTestStore(t)
	snapshots, roots, totalSize, err := store.Counts()
	require.NoError(t, err)
	assert.Zero(t, snapshots)
	assert.Zero(t, roots)
	assert.Zero(t, totalSize)

	saveTestSnapshot(t, store, "/a", []FileEntry{{RelPath: "f", Checksum: "c", Size: 10, Mode: 0644}})
	saveTestSnapshot(t, store, "/a", []FileEntry{{RelPath: "f", Checksum: "c", Size: 10, Mode: 0644}})
	saveTestSnapshot(t, store, "/b", []FileEntry{{RelPath: "g", Checksum: "d", Size: 5, Mode: 0644}})

	snapshots, roots, totalSize, err = store.Counts()
	require.NoError(t, err)
	assert.Equal(t, 3, snapshots)
	assert.Equal(t, 2, roots)
	assert.Equal(t, int64(25), totalSize)
}
