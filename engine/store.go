package engine

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"
)

// timeFormat is how snapshot creation times are persisted (RFC3339 with
// sub-second precision, sortable).
const timeFormat = time.RFC3339Nano

// Store provides CRUD operations on snapshot metadata. It is the only
// writer of the snapshots, file_entries and exclusions tables; the snapshot
// manager drives it.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveSnapshot persists a snapshot and its entries in one transaction and
// assigns snap.ID. Ids are allocated at commit, so their order matches
// commit order; readers see either nothing or the whole snapshot.
func (s *Store) SaveSnapshot(snap *Snapshot, entries []FileEntry) error {
	l := sub("store")
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
		INSERT INTO snapshots (root, kind, checksum, size, file_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.Root, snap.Kind, snap.Checksum, snap.Size, snap.FileCount, snap.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO file_entries (snapshot_id, rel_path, checksum, size, mode, mtime)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(id, e.RelPath, e.Checksum, e.Size, uint32(e.Mode), e.Mtime); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.RelPath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	snap.ID = id
	l.Debug("snapshot committed", "id", id, "root", snap.Root, "entries", len(entries))
	return nil
}

const snapshotCols = "id, root, kind, checksum, size, file_count, created_at"

func scanSnapshot(row interface{ Scan(...any) error }) (*Snapshot, error) {
	var snap Snapshot
	var created string
	err := row.Scan(&snap.ID, &snap.Root, &snap.Kind, &snap.Checksum, &snap.Size, &snap.FileCount, &created)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	snap.CreatedAt = t
	return &snap, nil
}

func (s *Store) querySnapshots(query string, args ...any) ([]Snapshot, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

// LatestSnapshot returns the most recent snapshot for root, or nil if none
// exists.
func (s *Store) LatestSnapshot(root string) (*Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRow(
		"SELECT "+snapshotCols+" FROM snapshots WHERE root = ? ORDER BY id DESC LIMIT 1", root))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotsForRoot returns every snapshot for root, oldest first.
func (s *Store) SnapshotsForRoot(root string) ([]Snapshot, error) {
	return s.querySnapshots(
		"SELECT "+snapshotCols+" FROM snapshots WHERE root = ? ORDER BY id ASC", root)
}

// SnapshotByChecksum returns the most recent snapshot whose aggregate
// checksum equals sum, or nil.
func (s *Store) SnapshotByChecksum(sum string) (*Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRow(
		"SELECT "+snapshotCols+" FROM snapshots WHERE checksum = ? ORDER BY id DESC LIMIT 1", sum))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot by checksum: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns all snapshots across all roots, id ascending.
func (s *Store) ListSnapshots() ([]Snapshot, error) {
	return s.querySnapshots("SELECT " + snapshotCols + " FROM snapshots ORDER BY id ASC")
}

// ListSnapshotsUnder returns snapshots whose root equals dir or lies
// beneath it, id ascending.
func (s *Store) ListSnapshotsUnder(dir string) ([]Snapshot, error) {
	dir = strings.TrimRight(dir, "/")
	return s.querySnapshots(
		"SELECT "+snapshotCols+" FROM snapshots WHERE root = ? OR root LIKE ? ESCAPE '\\' ORDER BY id ASC",
		dir, escapeLike(dir)+"/%")
}

// Entries returns a snapshot's file entries ordered by relative path.
func (s *Store) Entries(snapshotID int64) ([]FileEntry, error) {
	rows, err := s.db.Query(`
		SELECT snapshot_id, rel_path, checksum, size, mode, mtime
		FROM file_entries WHERE snapshot_id = ?
		ORDER BY rel_path ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []FileEntry
	for rows.Next() {
		var e FileEntry
		var mode uint32
		if err := rows.Scan(&e.SnapshotID, &e.RelPath, &e.Checksum, &e.Size, &mode, &e.Mtime); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Mode = fs.FileMode(mode)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ResolvePrefix returns the distinct full checksums, across snapshot
// aggregates and file entries, that start with prefix. The caller decides
// unique / ambiguous / not-found.
func (s *Store) ResolvePrefix(prefix string) ([]string, error) {
	return s.resolvePrefix(prefix, "", false)
}

// ResolvePrefixForRoot is ResolvePrefix scoped to one root's history.
func (s *Store) ResolvePrefixForRoot(root, prefix string) ([]string, error) {
	return s.resolvePrefix(prefix, root, true)
}

func (s *Store) resolvePrefix(prefix, root string, scoped bool) ([]string, error) {
	like := escapeLike(prefix) + "%"
	var rows *sql.Rows
	var err error
	if scoped {
		rows, err = s.db.Query(`
			SELECT DISTINCT checksum FROM (
				SELECT checksum FROM snapshots WHERE root = ?1 AND checksum LIKE ?2 ESCAPE '\'
				UNION
				SELECT fe.checksum FROM file_entries fe
				JOIN snapshots sn ON sn.id = fe.snapshot_id
				WHERE sn.root = ?1 AND fe.checksum != '' AND fe.checksum LIKE ?2 ESCAPE '\'
			) ORDER BY checksum
		`, root, like)
	} else {
		rows, err = s.db.Query(`
			SELECT DISTINCT checksum FROM (
				SELECT checksum FROM snapshots WHERE checksum LIKE ?1 ESCAPE '\'
				UNION
				SELECT checksum FROM file_entries WHERE checksum != '' AND checksum LIKE ?1 ESCAPE '\'
			) ORDER BY checksum
		`, like)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve prefix: %w", err)
	}
	defer rows.Close()

	var sums []string
	for rows.Next() {
		var sum string
		if err := rows.Scan(&sum); err != nil {
			return nil, fmt.Errorf("scan checksum: %w", err)
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

// EntryByChecksum returns the newest snapshot containing a file entry with
// the given content checksum, plus that entry. If root is non-empty the
// search is limited to that root's snapshots. Returns nils when no entry
// matches.
func (s *Store) EntryByChecksum(root, sum string) (*Snapshot, *FileEntry, error) {
	query := `
		SELECT sn.id, sn.root, sn.kind, sn.checksum, sn.size, sn.file_count, sn.created_at,
		       fe.rel_path, fe.size, fe.mode, fe.mtime
		FROM file_entries fe
		JOIN snapshots sn ON sn.id = fe.snapshot_id
		WHERE fe.checksum = ?`
	args := []any{sum}
	if root != "" {
		query += " AND sn.root = ?"
		args = append(args, root)
	}
	query += " ORDER BY sn.id DESC LIMIT 1"

	var snap Snapshot
	var entry FileEntry
	var created string
	var mode uint32
	err := s.db.QueryRow(query, args...).Scan(
		&snap.ID, &snap.Root, &snap.Kind, &snap.Checksum, &snap.Size, &snap.FileCount, &created,
		&entry.RelPath, &entry.Size, &mode, &entry.Mtime)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("entry by checksum: %w", err)
	}
	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return nil, nil, fmt.Errorf("parse created_at: %w", err)
	}
	snap.CreatedAt = t
	entry.SnapshotID = snap.ID
	entry.Checksum = sum
	entry.Mode = fs.FileMode(mode)
	return &snap, &entry, nil
}

// DeleteSnapshots removes every snapshot rooted at root (and, when under
// is set, any root beneath it). It returns the number of snapshots removed
// and the blob checksums no longer referenced by any remaining snapshot.
// Metadata removal is transactional; the caller deletes the orphaned blobs
// after the transaction commits.
func (s *Store) DeleteSnapshots(root string, under bool) (int, []string, error) {
	where := "root = ?"
	args := []any{root}
	if under {
		where = "root = ? OR root LIKE ? ESCAPE '\\'"
		args = append(args, escapeLike(strings.TrimRight(root, "/"))+"/%")
	}
	return s.deleteWhere(where, args...)
}

// DeleteAllSnapshots removes every snapshot. All stored blobs become
// orphans.
func (s *Store) DeleteAllSnapshots() (int, []string, error) {
	return s.deleteWhere("1=1")
}

func (s *Store) deleteWhere(where string, args ...any) (int, []string, error) {
	l := sub("store")
	tx, err := s.db.Begin()
	if err != nil {
		return 0, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Candidate blobs: everything the doomed snapshots reference.
	candRows, err := tx.Query(`
		SELECT DISTINCT fe.checksum FROM file_entries fe
		JOIN snapshots sn ON sn.id = fe.snapshot_id
		WHERE fe.checksum != '' AND (`+where+`)`, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("query candidate blobs: %w", err)
	}
	var candidates []string
	for candRows.Next() {
		var sum string
		if err := candRows.Scan(&sum); err != nil {
			candRows.Close()
			return 0, nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, sum)
	}
	candRows.Close()
	if err := candRows.Err(); err != nil {
		return 0, nil, err
	}

	res, err := tx.Exec("DELETE FROM snapshots WHERE "+where, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("delete snapshots: %w", err)
	}
	deleted, _ := res.RowsAffected()

	// Keep only candidates no surviving snapshot still references.
	var orphans []string
	for _, sum := range candidates {
		var n int
		if err := tx.QueryRow("SELECT COUNT(*) FROM file_entries WHERE checksum = ?", sum).Scan(&n); err != nil {
			return 0, nil, fmt.Errorf("count references: %w", err)
		}
		if n == 0 {
			orphans = append(orphans, sum)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit delete: %w", err)
	}
	l.Debug("snapshots deleted", "count", deleted, "orphanBlobs", len(orphans))
	return int(deleted), orphans, nil
}

// SearchSnapshots returns snapshots whose root contains pattern, id
// ascending.
func (s *Store) SearchSnapshots(pattern string) ([]Snapshot, error) {
	return s.querySnapshots(
		"SELECT "+snapshotCols+" FROM snapshots WHERE root LIKE ? ESCAPE '\\' ORDER BY id ASC",
		"%"+escapeLike(pattern)+"%")
}

// SearchEntries returns, per matching snapshot, the entry relative paths
// containing pattern. Only the newest snapshot per root is considered so
// results reflect current content.
func (s *Store) SearchEntries(pattern string) (map[int64][]string, error) {
	rows, err := s.db.Query(`
		SELECT fe.snapshot_id, fe.rel_path
		FROM file_entries fe
		JOIN snapshots sn ON sn.id = fe.snapshot_id
		WHERE fe.rel_path LIKE ? ESCAPE '\'
		  AND sn.id = (SELECT MAX(id) FROM snapshots WHERE root = sn.root)
		ORDER BY fe.snapshot_id, fe.rel_path
	`, "%"+escapeLike(pattern)+"%")
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	matches := make(map[int64][]string)
	for rows.Next() {
		var id int64
		var rel string
		if err := rows.Scan(&id, &rel); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches[id] = append(matches[id], rel)
	}
	return matches, rows.Err()
}

// AddExclusion persists an exclusion rule.
func (s *Store) AddExclusion(pattern, ruleType string) error {
	if !ValidRuleType(ruleType) {
		return fmt.Errorf("unknown exclusion type %q", ruleType)
	}
	_, err := s.db.Exec("INSERT INTO exclusions (pattern, type) VALUES (?, ?)", pattern, ruleType)
	if err != nil {
		return fmt.Errorf("add exclusion: %w", err)
	}
	sub("store").Info("exclusion added", "pattern", pattern, "type", ruleType)
	return nil
}

// RemoveExclusion deletes an exclusion rule by pattern. Returns whether a
// rule was actually removed.
func (s *Store) RemoveExclusion(pattern string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM exclusions WHERE pattern = ?", pattern)
	if err != nil {
		return false, fmt.Errorf("remove exclusion: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListExclusions returns all exclusion rules ordered by type then pattern.
func (s *Store) ListExclusions() ([]ExclusionRule, error) {
	rows, err := s.db.Query("SELECT id, pattern, type FROM exclusions ORDER BY type, pattern")
	if err != nil {
		return nil, fmt.Errorf("list exclusions: %w", err)
	}
	defer rows.Close()

	var rules []ExclusionRule
	for rows.Next() {
		var r ExclusionRule
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Type); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// Counts returns snapshot count, distinct root count and total stored
// logical size for the stats surface.
func (s *Store) Counts() (snapshots int, roots int, totalSize int64, err error) {
	err = s.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT root), COALESCE(SUM(size), 0) FROM snapshots
	`).Scan(&snapshots, &roots, &totalSize)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("counts: %w", err)
	}
	if logEnabled(slog.LevelDebug) {
		sub("store").Debug("counts", "snapshots", snapshots, "roots", roots)
	}
	return snapshots, roots, totalSize, nil
}

// escapeLike escapes SQL LIKE metacharacters so user input matches
// literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
