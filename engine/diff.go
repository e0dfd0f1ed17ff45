package engine

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff operation kinds.
const (
	DiffContext = "context"
	DiffAdd     = "add"
	DiffRemove  = "remove"
)

// DiffOp is one line-level edit operation.
type DiffOp struct {
	Kind string `json:"kind"`
	Line string `json:"line"`
}

// DiffResult is the outcome of comparing two contents. Binary content is
// reported as such instead of a line diff; identical content yields an
// empty edit script.
type DiffResult struct {
	Identical bool     `json:"identical"`
	Binary    bool     `json:"binary"`
	Ops       []DiffOp `json:"ops,omitempty"`
}

// ContentSource names one side of a comparison: either a stored checksum
// (prefix accepted) or a live file path — the "current" sentinel at the
// adapter layer maps to Path.
type ContentSource struct {
	Checksum string
	Path     string
}

// Compare loads both sides and produces a line-level edit script using a
// line-indexed LCS diff, deterministic with earlier lines matched first.
func (m *Manager) Compare(source, target ContentSource) (*DiffResult, error) {
	src, err := m.loadContent(source)
	if err != nil {
		return nil, err
	}
	dst, err := m.loadContent(target)
	if err != nil {
		return nil, err
	}
	return DiffLines(src, dst), nil
}

// loadContent fetches the bytes behind a content source. A checksum may
// name a file's content directly or a single-file snapshot's aggregate;
// both load the stored blob. Directory aggregates have no single content
// to compare and are rejected.
func (m *Manager) loadContent(cs ContentSource) ([]byte, error) {
	if cs.Checksum != "" {
		sum, err := m.ResolveGlobalPrefix(cs.Checksum)
		if err != nil {
			return nil, err
		}
		snap, err := m.store.SnapshotByChecksum(sum)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			return m.snapshotFileContent(snap)
		}
		return m.cas.Get(sum)
	}
	b, err := os.ReadFile(cs.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, cs.Path)
		}
		return nil, fmt.Errorf("read %s: %w", cs.Path, err)
	}
	return b, nil
}

// snapshotFileContent loads the blob behind a snapshot that captured
// exactly one file.
func (m *Manager) snapshotFileContent(snap *Snapshot) ([]byte, error) {
	entries, err := m.store.Entries(snap.ID)
	if err != nil {
		return nil, err
	}
	var file *FileEntry
	for i := range entries {
		if entries[i].IsDir() {
			continue
		}
		if file != nil {
			return nil, fmt.Errorf("checksum %s names a directory snapshot, not file content", short(snap.Checksum))
		}
		file = &entries[i]
	}
	if file == nil {
		return nil, fmt.Errorf("snapshot %d has no file content", snap.ID)
	}
	return m.cas.Get(file.Checksum)
}

// DiffLines computes the line-level edit script between two byte
// sequences. Non-decodable (binary) content on either side short-circuits
// to a binary result.
func DiffLines(src, dst []byte) *DiffResult {
	if bytes.Equal(src, dst) {
		return &DiffResult{Identical: true, Binary: IsBinary(src)}
	}
	if IsBinary(src) || IsBinary(dst) {
		return &DiffResult{Binary: true}
	}

	dmp := diffmatchpatch.New()
	c1, c2, lines := dmp.DiffLinesToChars(string(src), string(dst))
	diffs := dmp.DiffMain(c1, c2, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var ops []DiffOp
	for _, d := range diffs {
		kind := DiffContext
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = DiffAdd
		case diffmatchpatch.DiffDelete:
			kind = DiffRemove
		}
		for _, line := range splitLines(d.Text) {
			ops = append(ops, DiffOp{Kind: kind, Line: line})
		}
	}
	return &DiffResult{Ops: ops}
}

// splitLines splits diff hunk text into lines, dropping the trailing empty
// fragment a final newline produces.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// IsBinary reports whether content looks binary: a NUL byte within the
// first 512 bytes.
func IsBinary(content []byte) bool {
	limit := len(content)
	if limit > 512 {
		limit = 512
	}
	return bytes.IndexByte(content[:limit], 0) >= 0
}
