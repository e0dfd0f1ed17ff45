package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveQueue_PushPop(t *testing.T) {
	q := NewSaveQueue()
	q.Push("/a")
	q.Push("/b")

	assert.Equal(t, 2, q.Len())

	done := make(chan struct{})
	p1, ok := q.Pop(done)
	require.True(t, ok)
	p2, ok := q.Pop(done)
	require.True(t, ok)

	assert.Equal(t, "/a", p1)
	assert.Equal(t, "/b", p2)
	assert.Equal(t, 0, q.Len())
}

func TestSaveQueue_Dedup(t *testing.T) {
	q := NewSaveQueue()
	q.Push("/a")
	q.Push("/a")
	q.Push("/a")

	assert.Equal(t, 1, q.Len())
	assert.True(t, q.Has("/a"))
}

func TestSaveQueue_PushMany(t *testing.T) {
	q := NewSaveQueue()
	q.Push("/a")
	q.PushMany([]string{"/a", "/b", "/c"})

	assert.Equal(t, 3, q.Len())
}

func TestSaveQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewSaveQueue()
	done := make(chan struct{})

	got := make(chan string, 1)
	go func() {
		path, ok := q.Pop(done)
		if ok {
			got <- path
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push("/late")

	select {
	case path := <-got:
		assert.Equal(t, "/late", path)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestSaveQueue_PopReturnsOnDone(t *testing.T) {
	q := NewSaveQueue()
	done := make(chan struct{})
	close(done)

	_, ok := q.Pop(done)
	assert.False(t, ok)
}
