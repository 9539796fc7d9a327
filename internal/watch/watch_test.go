package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roserade/internal/indexer"
)

type recordingReindexer struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingReindexer) IndexPath(_ context.Context, path string, _ indexer.Options) (*indexer.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return &indexer.Result{Indexed: 1, Files: []indexer.FileResult{{Path: path, Outcome: indexer.OutcomeIndexed}}}, nil
}

func (r *recordingReindexer) indexed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.paths...)
}

type recordingRemover struct {
	mu       sync.Mutex
	patterns []string
}

func (r *recordingRemover) RemoveDocuments(_ context.Context, pattern string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
	return 1, nil
}

func (r *recordingRemover) removed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.patterns...)
}

func TestWatcher_ReindexesChangedFiles(t *testing.T) {
	dir := t.TempDir()
	rx := &recordingReindexer{}
	rm := &recordingRemover{}
	w := New(rx, rm, []string{".txt"}, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, dir, indexer.Options{}) }()

	// Give the watch registration a moment to land before writing.
	time.Sleep(100 * time.Millisecond)
	target := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(target, []byte("watched content"), 0o644))

	require.Eventually(t, func() bool {
		for _, p := range rx.indexed() {
			if p == target {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcher_RemovedFileDroppedFromIndex(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(target, []byte("to be deleted"), 0o644))

	rx := &recordingReindexer{}
	rm := &recordingRemover{}
	w := New(rx, rm, []string{".txt"}, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, dir, indexer.Options{}) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Remove(target))

	require.Eventually(t, func() bool {
		for _, p := range rm.removed() {
			if p == target {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresUnsupportedExtensions(t *testing.T) {
	dir := t.TempDir()
	rx := &recordingReindexer{}
	w := New(rx, &recordingRemover{}, []string{".md"}, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, dir, indexer.Options{}) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.log"), []byte("noise"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "take.md"), []byte("signal"), 0o644))

	require.Eventually(t, func() bool { return len(rx.indexed()) > 0 }, 5*time.Second, 20*time.Millisecond)
	for _, p := range rx.indexed() {
		assert.Equal(t, ".md", filepath.Ext(p))
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	rx := &recordingReindexer{}
	w := New(rx, &recordingRemover{}, []string{".txt"}, 150*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, dir, indexer.Options{}) }()

	time.Sleep(100 * time.Millisecond)
	target := filepath.Join(dir, "burst.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte("rev"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(rx.indexed()) > 0 }, 5*time.Second, 20*time.Millisecond)
	// One burst, one flush.
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, rx.indexed(), 1)
}

func TestWatcher_RecursivePicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	rx := &recordingReindexer{}
	w := New(rx, &recordingRemover{}, []string{".txt"}, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, dir, indexer.Options{Recursive: true}) }()

	time.Sleep(100 * time.Millisecond)
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	target := filepath.Join(sub, "deep.txt")
	require.NoError(t, os.WriteFile(target, []byte("nested content"), 0o644))

	require.Eventually(t, func() bool {
		for _, p := range rx.indexed() {
			if p == target {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}
