package engine

import (
	"io/fs"
	"time"
)

// nowFunc is the time source, replaceable in tests.
var nowFunc = time.Now

// Snapshot kinds.
const (
	KindFile = "file"
	KindDir  = "dir"
)

// Snapshot is one immutable saved version of a root path. The checksum is
// the aggregate digest over the ordered FileEntry set and doubles as the
// public identifier users pass back (as a prefix) to restore/export/view.
type Snapshot struct {
	ID        int64     `json:"id"`
	Root      string    `json:"root"`
	Kind      string    `json:"kind"` // "file" | "dir"
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	FileCount int       `json:"fileCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileEntry is one filesystem object inside a snapshot. Directory markers
// have an empty checksum and zero size; file entries reference exactly one
// blob in the content store.
type FileEntry struct {
	SnapshotID int64       `json:"-"`
	RelPath    string      `json:"relPath"`
	Checksum   string      `json:"checksum,omitempty"`
	Size       int64       `json:"size"`
	Mode       fs.FileMode `json:"mode"`
	Mtime      int64       `json:"mtime"` // nanoseconds
}

// IsDir reports whether the entry is a directory marker.
func (e FileEntry) IsDir() bool {
	return e.Mode.IsDir()
}

// Exclusion rule types.
const (
	RuleGlob      = "glob"
	RuleExtension = "extension"
	RuleExact     = "exact"
)

// ExclusionRule filters paths out of every save and restore walk.
type ExclusionRule struct {
	ID      int64  `json:"id"`
	Pattern string `json:"pattern"`
	Type    string `json:"type"`
}

// timeFromNanos converts a stored nanosecond timestamp back to time.Time.
// Zero stays zero so restore leaves mtimes alone when none was tracked.
func timeFromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ValidRuleType reports whether t names a known exclusion rule type.
func ValidRuleType(t string) bool {
	switch t {
	case RuleGlob, RuleExtension, RuleExact:
		return true
	}
	return false
}
