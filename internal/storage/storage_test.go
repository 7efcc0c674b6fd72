package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDoc struct {
	Handle  string `json:"handle"`
	Content string `json:"content"`
}

func TestStorage_PutAndGet(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	doc := memoryDoc{Handle: "chat_memory_1", Content: `[{"role":"user","content":"hi"}]`}
	require.NoError(t, s.Put(ctx, []string{"chat", doc.Handle}, doc))

	_, err := os.Stat(filepath.Join(dir, "chat", "chat_memory_1.json"))
	require.NoError(t, err)

	var got memoryDoc
	require.NoError(t, s.Get(ctx, []string{"chat", doc.Handle}, &got))
	assert.Equal(t, doc, got)
}

func TestStorage_GetNotFound(t *testing.T) {
	s := New(t.TempDir())

	var doc memoryDoc
	err := s.Get(context.Background(), []string{"chat", "missing"}, &doc)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_GetCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "chat"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat", "bad.json"), []byte("{not json"), 0644))

	var doc memoryDoc
	err := s.Get(context.Background(), []string{"chat", "bad"}, &doc)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestStorage_CanceledContext(t *testing.T) {
	s := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, []string{"a"}, memoryDoc{}), context.Canceled)
	assert.ErrorIs(t, s.Get(ctx, []string{"a"}, &memoryDoc{}), context.Canceled)
}

func TestStorage_Update(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	path := []string{"overall", "current"}

	var segments []string
	for _, line := range []string{"one", "two"} {
		err := s.Update(ctx, path, &segments, func() error {
			segments = append(segments, line)
			return nil
		})
		require.NoError(t, err)
		segments = nil
	}

	var got []string
	require.NoError(t, s.Get(ctx, path, &got))
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestStorage_UpdateAbort(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	path := []string{"chat", "x"}
	require.NoError(t, s.Put(ctx, path, memoryDoc{Content: "before"}))

	abort := errors.New("too large")
	var doc memoryDoc
	err := s.Update(ctx, path, &doc, func() error {
		doc.Content = "after"
		return abort
	})
	assert.ErrorIs(t, err, abort)

	var got memoryDoc
	require.NoError(t, s.Get(ctx, path, &got))
	assert.Equal(t, "before", got.Content)
}

func TestStorage_Delete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	path := []string{"chat", "gone"}

	require.NoError(t, s.Put(ctx, path, memoryDoc{Handle: "gone"}))
	require.NoError(t, s.Delete(ctx, path))
	assert.False(t, s.Exists(ctx, path))

	// Deleting again is not an error
	assert.NoError(t, s.Delete(ctx, path))
}

func TestStorage_List(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	for _, h := range []string{"c", "a", "b"} {
		require.NoError(t, s.Put(ctx, []string{"chat", h}, memoryDoc{Handle: h}))
	}

	items, err := s.List(ctx, []string{"chat"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)

	top, err := s.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"chat"}, top)
}

func TestStorage_ListEmpty(t *testing.T) {
	s := New(t.TempDir())

	items, err := s.List(context.Background(), []string{"nonexistent"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStorage_Exists(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	assert.False(t, s.Exists(ctx, []string{"chat", "h"}))
	require.NoError(t, s.Put(ctx, []string{"chat", "h"}, memoryDoc{}))
	assert.True(t, s.Exists(ctx, []string{"chat", "h"}))
}

func TestStorage_ConcurrentUpdate(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	path := []string{"counter"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n int
			assert.NoError(t, s.Update(ctx, path, &n, func() error {
				n++
				return nil
			}))
		}()
	}
	wg.Wait()

	var n int
	require.NoError(t, s.Get(ctx, path, &n))
	assert.Equal(t, 20, n)
}

func TestStorage_AtomicWrite(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Put(context.Background(), []string{"chat", "atomic"}, memoryDoc{}))

	_, err := os.Stat(filepath.Join(dir, "chat", "atomic.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}
