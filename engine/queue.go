package engine

import (
	"log/slog"
	"sync"
)

// SaveQueue is a thread-safe set-based queue of root paths pending an
// automatic save. Duplicates are deduplicated; Pop returns paths in FIFO
// order. Watch mode feeds it from filesystem events.
type SaveQueue struct {
	mu     sync.Mutex
	set    map[string]struct{}
	order  []string
	notify chan struct{} // signaled when items are added
}

// NewSaveQueue creates an empty queue.
func NewSaveQueue() *SaveQueue {
	return &SaveQueue{
		set:    make(map[string]struct{}),
		notify: make(chan struct{}, 1),
	}
}

// Push adds a path to the queue. Already-queued paths are a no-op.
func (q *SaveQueue) Push(path string) {
	q.mu.Lock()
	if _, exists := q.set[path]; exists {
		q.mu.Unlock()
		if logEnabled(slog.LevelDebug) {
			sub("queue").Debug("push dedup", "path", path)
		}
		return
	}
	q.set[path] = struct{}{}
	q.order = append(q.order, path)
	newLen := len(q.order)
	q.mu.Unlock()

	if logEnabled(slog.LevelDebug) {
		sub("queue").Debug("push", "path", path, "queueLen", newLen)
	}

	// Non-blocking signal
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// PushMany adds multiple paths to the queue.
func (q *SaveQueue) PushMany(paths []string) {
	q.mu.Lock()
	added := 0
	for _, path := range paths {
		if _, exists := q.set[path]; exists {
			continue
		}
		q.set[path] = struct{}{}
		q.order = append(q.order, path)
		added++
	}
	q.mu.Unlock()

	if added > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
}

// Pop removes and returns the next path. Blocks until a path is available
// or the done channel is closed. Returns ("", false) when done.
func (q *SaveQueue) Pop(done <-chan struct{}) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			path := q.order[0]
			q.order = q.order[1:]
			delete(q.set, path)
			q.mu.Unlock()
			return path, true
		}
		q.mu.Unlock()

		select {
		case <-done:
			return "", false
		case <-q.notify:
			// Loop back to check queue
		}
	}
}

// Has checks if a path is currently queued.
func (q *SaveQueue) Has(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.set[path]
	return exists
}

// Len returns the current queue size.
func (q *SaveQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
