package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Manager orchestrates save, restore, listing, comparison and cleanup. It
// is the sole writer of snapshot metadata; the CLI, web and MCP front ends
// all drive this one type.
type Manager struct {
	store  *Store
	cas    *CAS
	events *EventBus
}

// NewManager creates a Manager over the given metadata store and content
// store.
func NewManager(store *Store, cas *CAS) *Manager {
	return &Manager{store: store, cas: cas, events: NewEventBus()}
}

// Events returns the bus carrying snapshot lifecycle events (consumed by
// the web SSE endpoint and watch mode).
func (m *Manager) Events() *EventBus { return m.events }

// Store exposes read access for adapters that only list metadata.
func (m *Manager) Store() *Store { return m.store }

// OpenBlob streams the decompressed content behind a full checksum.
func (m *Manager) OpenBlob(checksum string) (io.ReadCloser, error) {
	return m.cas.Open(checksum)
}

// Save snapshots the file or directory at path. The walk applies the
// current exclusion rules; every file's content goes into the CAS; the
// snapshot plus its entries commit in one transaction. Any read error
// aborts the save with no partial snapshot written.
func (m *Manager) Save(path string) (*Snapshot, error) {
	l := sub("manager")
	abs, err := absolutePath(path)
	if err != nil {
		return nil, err
	}

	matcher, err := m.loadMatcher()
	if err != nil {
		return nil, err
	}

	walked, err := Walk(abs, matcher)
	if err != nil {
		return nil, err
	}

	kind := KindDir
	if len(walked) == 1 && !walked[0].IsDir && walked[0].AbsPath == abs {
		kind = KindFile
	}

	entries := make([]FileEntry, 0, len(walked))
	var totalSize int64
	fileCount := 0
	for _, w := range walked {
		e := FileEntry{
			RelPath: w.RelPath,
			Size:    w.Size,
			Mode:    w.Mode,
			Mtime:   w.Mtime,
		}
		if !w.IsDir {
			sum, size, err := m.cas.Put(w.AbsPath)
			if err != nil {
				return nil, fmt.Errorf("store %s: %w", w.RelPath, err)
			}
			e.Checksum = sum
			e.Size = size
			totalSize += size
			fileCount++
		}
		entries = append(entries, e)
	}

	snap := &Snapshot{
		Root:      abs,
		Kind:      kind,
		Checksum:  AggregateDigest(entries),
		Size:      totalSize,
		FileCount: fileCount,
		CreatedAt: nowFunc(),
	}
	if err := m.store.SaveSnapshot(snap, entries); err != nil {
		return nil, err
	}

	l.Info("snapshot saved", "id", snap.ID, "root", abs, "files", fileCount, "checksum", short(snap.Checksum))
	m.events.Publish(Event{Type: EventSnapshotCreated, Root: abs, SnapshotID: snap.ID, Checksum: snap.Checksum, Time: snap.CreatedAt})
	return snap, nil
}

// Restore rewrites path from a snapshot. With an empty checksumPrefix the
// most recent snapshot for path is used; otherwise the prefix must resolve,
// within path's history, to either a snapshot aggregate checksum (whole
// snapshot restored) or a single file entry checksum (just that file).
// The path need not exist on disk; deleted files and directories are
// recreated, missing parents included. Returns the number of files written.
func (m *Manager) Restore(path, checksumPrefix string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}

	if checksumPrefix == "" {
		snap, err := m.store.LatestSnapshot(abs)
		if err != nil {
			return 0, err
		}
		if snap == nil {
			return 0, fmt.Errorf("%w for %s", ErrSnapshotNotFound, abs)
		}
		return m.restoreSnapshot(snap, abs)
	}

	sum, err := m.resolveUnique(abs, checksumPrefix)
	if err != nil {
		return 0, err
	}

	if snap, err := m.store.SnapshotByChecksum(sum); err != nil {
		return 0, err
	} else if snap != nil && snap.Root == abs {
		return m.restoreSnapshot(snap, abs)
	}

	// Not an aggregate: a single file version inside this root's history.
	snap, entry, err := m.store.EntryByChecksum(abs, sum)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, fmt.Errorf("%w: %s", ErrChecksumNotFound, checksumPrefix)
	}

	matcher, err := m.loadMatcher()
	if err != nil {
		return 0, err
	}
	if matcher.Excluded(entry.RelPath, false) {
		sub("manager").Debug("restore skipping excluded entry", "relPath", entry.RelPath)
		return 0, nil
	}

	dest := abs
	if snap.Kind == KindDir {
		dest = filepath.Join(abs, filepath.FromSlash(entry.RelPath))
	}
	if err := m.cas.WriteTo(entry.Checksum, dest, entry.Mode, timeFromNanos(entry.Mtime)); err != nil {
		return 0, err
	}
	sub("manager").Info("file restored", "path", dest, "checksum", short(sum))
	return 1, nil
}

// restoreSnapshot materializes every entry of snap under root, re-applying
// the current exclusion rules so freshly excluded paths do not come back.
func (m *Manager) restoreSnapshot(snap *Snapshot, root string) (int, error) {
	l := sub("manager")
	entries, err := m.store.Entries(snap.ID)
	if err != nil {
		return 0, err
	}
	matcher, err := m.loadMatcher()
	if err != nil {
		return 0, err
	}

	written := 0
	for _, e := range entries {
		if matcher.Excluded(e.RelPath, e.IsDir()) {
			l.Debug("restore skipping excluded entry", "relPath", e.RelPath)
			continue
		}
		dest := root
		if snap.Kind == KindDir {
			dest = filepath.Join(root, filepath.FromSlash(e.RelPath))
		}
		if e.IsDir() {
			if err := os.MkdirAll(dest, e.Mode.Perm()); err != nil {
				return written, fmt.Errorf("recreate dir %s: %w", e.RelPath, err)
			}
			continue
		}
		if err := m.cas.WriteTo(e.Checksum, dest, e.Mode, timeFromNanos(e.Mtime)); err != nil {
			return written, fmt.Errorf("restore %s: %w", e.RelPath, err)
		}
		written++
	}

	l.Info("snapshot restored", "id", snap.ID, "root", root, "files", written)
	return written, nil
}

// Export writes a snapshot's content into destDir without touching its
// original location or any metadata. The selector is a path with saved
// history or a checksum prefix (aggregate or single file).
func (m *Manager) Export(selector, destDir string) (int, error) {
	snap, entry, err := m.resolveSelector(selector)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}

	matcher, err := m.loadMatcher()
	if err != nil {
		return 0, err
	}

	if entry != nil {
		if matcher.Excluded(entry.RelPath, false) {
			return 0, nil
		}
		dest := filepath.Join(destDir, filepath.Base(filepath.FromSlash(entry.RelPath)))
		if err := m.cas.WriteTo(entry.Checksum, dest, entry.Mode, timeFromNanos(entry.Mtime)); err != nil {
			return 0, err
		}
		return 1, nil
	}

	entries, err := m.store.Entries(snap.ID)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, e := range entries {
		if matcher.Excluded(e.RelPath, e.IsDir()) {
			continue
		}
		dest := filepath.Join(destDir, filepath.FromSlash(e.RelPath))
		if snap.Kind == KindFile {
			dest = filepath.Join(destDir, filepath.Base(filepath.FromSlash(e.RelPath)))
		}
		if e.IsDir() {
			if err := os.MkdirAll(dest, e.Mode.Perm()); err != nil {
				return written, fmt.Errorf("export dir %s: %w", e.RelPath, err)
			}
			continue
		}
		if err := m.cas.WriteTo(e.Checksum, dest, e.Mode, timeFromNanos(e.Mtime)); err != nil {
			return written, fmt.Errorf("export %s: %w", e.RelPath, err)
		}
		written++
	}
	sub("manager").Info("snapshot exported", "id", snap.ID, "dest", destDir, "files", written)
	return written, nil
}

// List returns all snapshots, oldest first.
func (m *Manager) List() ([]Snapshot, error) {
	return m.store.ListSnapshots()
}

// ListUnder returns snapshots whose root equals dir or lies within it,
// oldest first. This backs the current-directory listing.
func (m *Manager) ListUnder(dir string) ([]Snapshot, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	return m.store.ListSnapshotsUnder(abs)
}

// CheckResult reports how the live state of a path differs from its most
// recent snapshot.
type CheckResult struct {
	Changed          bool     `json:"changed"`
	SnapshotID       int64    `json:"snapshotId"`
	SnapshotChecksum string   `json:"snapshotChecksum"`
	LiveChecksum     string   `json:"liveChecksum"`
	Added            []string `json:"added,omitempty"`
	Removed          []string `json:"removed,omitempty"`
	Modified         []string `json:"modified,omitempty"`
}

// Check recomputes the aggregate checksum of the live filesystem state at
// path (same walk, same exclusions as save) and compares it against the
// most recent snapshot, reporting per-file differences.
func (m *Manager) Check(path string) (*CheckResult, error) {
	abs, err := absolutePath(path)
	if err != nil {
		return nil, err
	}
	snap, err := m.store.LatestSnapshot(abs)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w for %s", ErrSnapshotNotFound, abs)
	}

	live, err := m.liveEntries(abs)
	if err != nil {
		return nil, err
	}
	saved, err := m.store.Entries(snap.ID)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{
		SnapshotID:       snap.ID,
		SnapshotChecksum: snap.Checksum,
		LiveChecksum:     AggregateDigest(live),
	}
	result.Changed = result.LiveChecksum != snap.Checksum

	savedByPath := make(map[string]FileEntry, len(saved))
	for _, e := range saved {
		savedByPath[e.RelPath] = e
	}
	liveByPath := make(map[string]FileEntry, len(live))
	for _, e := range live {
		liveByPath[e.RelPath] = e
		if old, ok := savedByPath[e.RelPath]; !ok {
			result.Added = append(result.Added, e.RelPath)
		} else if old.Checksum != e.Checksum {
			result.Modified = append(result.Modified, e.RelPath)
		}
	}
	for _, e := range saved {
		if _, ok := liveByPath[e.RelPath]; !ok {
			result.Removed = append(result.Removed, e.RelPath)
		}
	}
	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Modified)
	return result, nil
}

// liveEntries walks path and digests files without writing to the CAS.
func (m *Manager) liveEntries(abs string) ([]FileEntry, error) {
	matcher, err := m.loadMatcher()
	if err != nil {
		return nil, err
	}
	walked, err := Walk(abs, matcher)
	if err != nil {
		return nil, err
	}
	entries := make([]FileEntry, 0, len(walked))
	for _, w := range walked {
		e := FileEntry{RelPath: w.RelPath, Size: w.Size, Mode: w.Mode, Mtime: w.Mtime}
		if !w.IsDir {
			sum, size, err := DigestFile(w.AbsPath)
			if err != nil {
				return nil, fmt.Errorf("digest %s: %w", w.RelPath, err)
			}
			e.Checksum = sum
			e.Size = size
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// VersionInfo is one step in a path's snapshot history, with the change
// delta relative to the previous version.
type VersionInfo struct {
	Snapshot Snapshot `json:"snapshot"`
	Added    int      `json:"added"`
	Removed  int      `json:"removed"`
	Modified int      `json:"modified"`
}

// Inspect returns the full snapshot history of path, oldest first, each
// version annotated with added/removed/modified counts versus its
// predecessor.
func (m *Manager) Inspect(path string) ([]VersionInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	snaps, err := m.store.SnapshotsForRoot(abs)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrSnapshotNotFound, abs)
	}

	history := make([]VersionInfo, 0, len(snaps))
	var prev map[string]string
	for _, snap := range snaps {
		entries, err := m.store.Entries(snap.ID)
		if err != nil {
			return nil, err
		}
		cur := make(map[string]string, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				cur[e.RelPath] = e.Checksum
			}
		}

		info := VersionInfo{Snapshot: snap}
		if prev != nil {
			for rel, sum := range cur {
				old, ok := prev[rel]
				if !ok {
					info.Added++
				} else if old != sum {
					info.Modified++
				}
			}
			for rel := range prev {
				if _, ok := cur[rel]; !ok {
					info.Removed++
				}
			}
		}
		history = append(history, info)
		prev = cur
	}
	return history, nil
}

// ViewResult is a read-only dump of one snapshot: its entry listing and,
// for single-file snapshots, a bounded content preview.
type ViewResult struct {
	Snapshot  Snapshot    `json:"snapshot"`
	Entries   []FileEntry `json:"entries"`
	Content   []byte      `json:"content,omitempty"`
	Binary    bool        `json:"binary,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
}

// viewPeekLimit bounds the content preview returned by View.
const viewPeekLimit = 64 * 1024

// View resolves selector (path or checksum prefix) to a snapshot and
// returns its listing. Single-file snapshots include a content preview;
// binary content is flagged instead of dumped.
func (m *Manager) View(selector string) (*ViewResult, error) {
	snap, entry, err := m.resolveSelector(selector)
	if err != nil {
		return nil, err
	}

	result := &ViewResult{Snapshot: *snap}
	if entry != nil {
		result.Entries = []FileEntry{*entry}
	} else {
		entries, err := m.store.Entries(snap.ID)
		if err != nil {
			return nil, err
		}
		result.Entries = entries
	}

	// Preview only when the view narrows to one file.
	var target *FileEntry
	if entry != nil {
		target = entry
	} else if snap.Kind == KindFile && len(result.Entries) == 1 {
		target = &result.Entries[0]
	}
	if target != nil && target.Checksum != "" {
		content, err := m.cas.Peek(target.Checksum, viewPeekLimit)
		if err != nil {
			return nil, err
		}
		if IsBinary(content) {
			result.Binary = true
		} else {
			result.Content = content
			result.Truncated = int64(len(content)) < target.Size
		}
	}
	return result, nil
}

// ClearStats reports what Clear removed.
type ClearStats struct {
	Snapshots int `json:"snapshots"`
	Blobs     int `json:"blobs"`
}

// Clear deletes snapshots — all of them when all is set, otherwise those
// rooted at or beneath path. Metadata removal is a single transaction;
// blobs orphaned by it are deleted from the CAS afterwards, so a crash can
// leave an unreferenced blob but never a dangling reference.
func (m *Manager) Clear(path string, all bool) (*ClearStats, error) {
	l := sub("manager")
	var deleted int
	var orphans []string
	var err error
	var root string

	if all {
		deleted, orphans, err = m.store.DeleteAllSnapshots()
	} else {
		root, err = filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		deleted, orphans, err = m.store.DeleteSnapshots(root, true)
	}
	if err != nil {
		return nil, err
	}

	blobs := 0
	for _, sum := range orphans {
		if err := m.cas.Delete(sum); err != nil {
			l.Warn("orphan blob delete failed", "checksum", short(sum), "err", err)
			continue
		}
		blobs++
	}

	l.Info("snapshots cleared", "snapshots", deleted, "blobs", blobs, "root", root, "all", all)
	if deleted > 0 {
		m.events.Publish(Event{Type: EventSnapshotCleared, Root: root, Time: nowFunc()})
	}
	return &ClearStats{Snapshots: deleted, Blobs: blobs}, nil
}

// SearchResult pairs a snapshot with the entry paths that matched.
type SearchResult struct {
	Snapshot     Snapshot `json:"snapshot"`
	MatchedPaths []string `json:"matchedPaths,omitempty"`
}

// Search matches pattern against snapshot root paths (substring) and entry
// relative paths (substring, or glob when the pattern carries a
// metacharacter — same glob semantics as exclusion rules).
func (m *Manager) Search(pattern string) ([]SearchResult, error) {
	byID := make(map[int64]*SearchResult)
	var order []int64

	rootMatches, err := m.store.SearchSnapshots(pattern)
	if err != nil {
		return nil, err
	}
	for _, snap := range rootMatches {
		byID[snap.ID] = &SearchResult{Snapshot: snap}
		order = append(order, snap.ID)
	}

	if isGlobPattern(pattern) {
		err = m.searchEntriesGlob(pattern, byID, &order)
	} else {
		err = m.searchEntriesSubstring(pattern, byID, &order)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	results := make([]SearchResult, 0, len(order))
	for _, id := range order {
		results = append(results, *byID[id])
	}
	return results, nil
}

func (m *Manager) searchEntriesSubstring(pattern string, byID map[int64]*SearchResult, order *[]int64) error {
	matches, err := m.store.SearchEntries(pattern)
	if err != nil {
		return err
	}
	return m.mergeEntryMatches(matches, byID, order)
}

func (m *Manager) searchEntriesGlob(pattern string, byID map[int64]*SearchResult, order *[]int64) error {
	snaps, err := m.store.ListSnapshots()
	if err != nil {
		return err
	}
	// Latest snapshot per root only, matching the substring search scope.
	latest := make(map[string]Snapshot)
	for _, snap := range snaps {
		latest[snap.Root] = snap
	}
	matches := make(map[int64][]string)
	for _, snap := range latest {
		entries, err := m.store.Entries(snap.ID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if matchGlob(pattern, e.RelPath) {
				matches[snap.ID] = append(matches[snap.ID], e.RelPath)
			}
		}
	}
	return m.mergeEntryMatches(matches, byID, order)
}

func (m *Manager) mergeEntryMatches(matches map[int64][]string, byID map[int64]*SearchResult, order *[]int64) error {
	ids := make([]int64, 0, len(matches))
	for id := range matches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if r, ok := byID[id]; ok {
			r.MatchedPaths = matches[id]
			continue
		}
		snaps, err := m.store.querySnapshots("SELECT "+snapshotCols+" FROM snapshots WHERE id = ?", id)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			continue
		}
		byID[id] = &SearchResult{Snapshot: snaps[0], MatchedPaths: matches[id]}
		*order = append(*order, id)
	}
	return nil
}

// Stats summarizes the store for the stats surface.
type Stats struct {
	Snapshots    int        `json:"snapshots"`
	Roots        int        `json:"roots"`
	TotalSize    int64      `json:"totalSize"`
	Blobs        int        `json:"blobs"`
	RecentErrors []LogEntry `json:"recentErrors,omitempty"`
}

// GetStats collects snapshot counts, blob count and recent errors.
func (m *Manager) GetStats() (*Stats, error) {
	snapshots, roots, totalSize, err := m.store.Counts()
	if err != nil {
		return nil, err
	}
	blobs, err := m.cas.List()
	if err != nil {
		return nil, err
	}
	return &Stats{
		Snapshots:    snapshots,
		Roots:        roots,
		TotalSize:    totalSize,
		Blobs:        len(blobs),
		RecentErrors: RecentErrors(),
	}, nil
}

// ExclusionAdd persists a new exclusion rule.
func (m *Manager) ExclusionAdd(pattern, ruleType string) error {
	return m.store.AddExclusion(pattern, ruleType)
}

// ExclusionRemove removes a rule by pattern.
func (m *Manager) ExclusionRemove(pattern string) (bool, error) {
	return m.store.RemoveExclusion(pattern)
}

// ExclusionList returns all configured rules.
func (m *Manager) ExclusionList() ([]ExclusionRule, error) {
	return m.store.ListExclusions()
}

// loadMatcher builds a Matcher from the persisted rule set.
func (m *Manager) loadMatcher() (*Matcher, error) {
	rules, err := m.store.ListExclusions()
	if err != nil {
		return nil, err
	}
	return NewMatcher(rules), nil
}

// resolveUnique resolves a checksum prefix within one root's history to a
// full checksum, failing with ErrChecksumNotFound or ErrAmbiguousChecksum.
func (m *Manager) resolveUnique(root, prefix string) (string, error) {
	sums, err := m.store.ResolvePrefixForRoot(root, prefix)
	if err != nil {
		return "", err
	}
	switch len(sums) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrChecksumNotFound, prefix)
	case 1:
		return sums[0], nil
	}
	return "", fmt.Errorf("%w: %s matches %d checksums", ErrAmbiguousChecksum, prefix, len(sums))
}

// ResolveGlobalPrefix resolves a checksum prefix across all stored
// checksums, failing on ambiguity.
func (m *Manager) ResolveGlobalPrefix(prefix string) (string, error) {
	sums, err := m.store.ResolvePrefix(prefix)
	if err != nil {
		return "", err
	}
	switch len(sums) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrChecksumNotFound, prefix)
	case 1:
		return sums[0], nil
	}
	return "", fmt.Errorf("%w: %s matches %d checksums", ErrAmbiguousChecksum, prefix, len(sums))
}

// resolveSelector interprets selector as a filesystem path with saved
// history, or failing that as a global checksum prefix. It returns the
// selected snapshot and, when the checksum named a single file's content
// rather than a snapshot aggregate, that file's entry.
func (m *Manager) resolveSelector(selector string) (*Snapshot, *FileEntry, error) {
	if looksLikePath(selector) {
		abs, err := filepath.Abs(selector)
		if err != nil {
			return nil, nil, fmt.Errorf("absolute path: %w", err)
		}
		snap, err := m.store.LatestSnapshot(abs)
		if err != nil {
			return nil, nil, err
		}
		if snap == nil {
			return nil, nil, fmt.Errorf("%w for %s", ErrSnapshotNotFound, abs)
		}
		return snap, nil, nil
	}

	sum, err := m.ResolveGlobalPrefix(selector)
	if err != nil {
		return nil, nil, err
	}
	if snap, err := m.store.SnapshotByChecksum(sum); err != nil {
		return nil, nil, err
	} else if snap != nil {
		return snap, nil, nil
	}
	snap, entry, err := m.store.EntryByChecksum("", sum)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrChecksumNotFound, selector)
	}
	return snap, entry, nil
}

// looksLikePath distinguishes a filesystem path selector from a checksum
// prefix. Hex-only strings are treated as checksums; anything with a path
// separator or non-hex character is a path.
func looksLikePath(s string) bool {
	if s == "" || strings.ContainsAny(s, "/\\") {
		return true
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return true
		}
	}
	return false
}

// isGlobPattern reports whether pattern carries glob metacharacters.
func isGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// absolutePath canonicalizes path and verifies it exists.
func absolutePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	if _, err := os.Lstat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrPathNotFound, abs)
		}
		return "", fmt.Errorf("stat: %w", err)
	}
	return abs, nil
}
