package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// maxWalkDepth bounds directory recursion. Hitting it reports ErrWalkDepth
// instead of walking forever.
const maxWalkDepth = 256

// WalkEntry is one filesystem object produced by a save walk.
type WalkEntry struct {
	RelPath string
	AbsPath string
	Size    int64
	Mode    fs.FileMode
	Mtime   int64 // nanoseconds
	IsDir   bool
}

// Walk traverses root and returns its entries in lexicographic relative
// path order, which makes snapshot aggregate checksums reproducible. A file
// root yields exactly one entry named after its base name. Excluded
// directories are pruned whole; symlinks are skipped, and a visited
// (device, inode) set catches bind-mount style cycles. Any read error
// aborts the walk — save is all-or-nothing.
func Walk(root string, m *Matcher) ([]WalkEntry, error) {
	l := sub("walker")
	info, err := os.Lstat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, root)
		}
		return nil, fmt.Errorf("stat root: %w", err)
	}

	if !info.IsDir() {
		if info.Mode()&fs.ModeSymlink != 0 {
			return nil, fmt.Errorf("%w: %s is a symlink", ErrPathNotFound, root)
		}
		return []WalkEntry{{
			RelPath: filepath.Base(root),
			AbsPath: root,
			Size:    info.Size(),
			Mode:    info.Mode(),
			Mtime:   info.ModTime().UnixNano(),
		}}, nil
	}

	l.Debug("walk start", "root", root)
	visited := make(map[[2]uint64]struct{})
	var entries []WalkEntry

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			l.Warn("walk error", "path", path, "err", err)
			return err
		}
		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if strings.Count(relPath, "/") >= maxWalkDepth {
			return fmt.Errorf("%w: %s", ErrWalkDepth, relPath)
		}

		if m.Excluded(relPath, d.IsDir()) {
			if d.IsDir() {
				l.Debug("excluded subtree", "path", relPath)
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed; a dangling or cyclic link cannot
		// break the walk.
		if d.Type()&fs.ModeSymlink != 0 {
			l.Debug("skipping symlink", "path", relPath)
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			l.Warn("walk stat error", "path", path, "err", err)
			return err
		}

		if d.IsDir() {
			if st, ok := fi.Sys().(*syscall.Stat_t); ok {
				key := [2]uint64{uint64(st.Dev), st.Ino}
				if _, seen := visited[key]; seen {
					return fmt.Errorf("%w: directory revisited at %s", ErrWalkDepth, relPath)
				}
				visited[key] = struct{}{}
			}
		}

		entries = append(entries, WalkEntry{
			RelPath: relPath,
			AbsPath: path,
			Size:    fileSize(fi),
			Mode:    fi.Mode(),
			Mtime:   fi.ModTime().UnixNano(),
			IsDir:   d.IsDir(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Debug("walk complete", "root", root, "entries", len(entries))
	return entries, nil
}

func fileSize(fi fs.FileInfo) int64 {
	if fi.IsDir() {
		return 0
	}
	return fi.Size()
}
