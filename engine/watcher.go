package engine

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 300 * time.Millisecond

// Watcher monitors a saved root for filesystem changes and feeds it into
// the save queue after a debounce window, so bursts of writes collapse
// into one snapshot.
type Watcher struct {
	root    string
	queue   *SaveQueue
	watcher *fsnotify.Watcher
}

// NewWatcher creates a recursive filesystem watcher for root.
func NewWatcher(root string, queue *SaveQueue) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{root: root, queue: queue, watcher: w}, nil
}

// Start begins watching and debouncing events. Blocks until ctx is
// cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	l := sub("watcher")
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	l.Info("watching", "root", w.root)

	timer := time.NewTimer(debounceInterval)
	timer.Stop()
	dirty := false

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			base := filepath.Base(event.Name)
			if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
				continue
			}

			dirty = true
			timer.Reset(debounceInterval)

			// A newly created directory must join the watch set.
			if event.Has(fsnotify.Create) {
				w.watcher.Add(event.Name) //nolint:errcheck
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			l.Warn("watch error", "err", err)

		case <-timer.C:
			if dirty {
				w.queue.Push(w.root)
				l.Debug("change flushed to save queue", "root", w.root)
				dirty = false
			}
		}
	}
}

// addRecursive adds a directory and all subdirectories to the watcher.
// A plain file root is watched directly.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if d.IsDir() {
			base := filepath.Base(path)
			if strings.HasPrefix(base, ".") && path != root {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		if path == root {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Close closes the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// RunWatch wires a Watcher to the Manager: every debounced change saves
// the root again if its content actually differs from the latest snapshot.
// Blocks until ctx is cancelled.
func RunWatch(ctx context.Context, mgr *Manager, root string) error {
	l := sub("watch")
	abs, err := absolutePath(root)
	if err != nil {
		return err
	}

	// Baseline snapshot so the first change has something to diff against.
	snap, err := mgr.Store().LatestSnapshot(abs)
	if err != nil {
		return err
	}
	if snap == nil {
		if _, err := mgr.Save(abs); err != nil {
			return err
		}
	}

	queue := NewSaveQueue()
	watcher, err := NewWatcher(abs, queue)
	if err != nil {
		return err
	}
	defer watcher.Close()

	go func() {
		if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
			l.Warn("watcher stopped unexpectedly", "err", err)
		}
	}()

	done := ctx.Done()
	for {
		path, ok := queue.Pop(done)
		if !ok {
			l.Info("watch stopping, context cancelled")
			return nil
		}

		check, err := mgr.Check(path)
		if err != nil {
			if errors.Is(err, ErrSnapshotNotFound) || errors.Is(err, ErrPathNotFound) {
				l.Warn("watched root unavailable", "path", path, "err", err)
				continue
			}
			l.Error("change check failed", "path", path, "err", err)
			continue
		}
		if !check.Changed {
			l.Debug("no content change, skipping save", "path", path)
			continue
		}

		snap, err := mgr.Save(path)
		if err != nil {
			l.Error("auto save failed", "path", path, "err", err)
			continue
		}
		l.Info("auto snapshot saved", "id", snap.ID, "path", path, "checksum", short(snap.Checksum))
	}
}
