package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"roserade/internal/chunker"
	"roserade/internal/config"
	"roserade/internal/embedding"
	"roserade/internal/embedding/mocks"
	"roserade/internal/source"
	"roserade/internal/store"
)

// stubEmbedder returns fixed-dimension vectors and can be told to fail for
// texts containing a marker substring.
type stubEmbedder struct {
	dim     int
	failOn  string
	failErr error
	batches int
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.batches++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if s.failOn != "" && strings.Contains(t, s.failOn) {
			return nil, s.failErr
		}
		vec := make([]float32, s.dim)
		vec[0] = float32(len(t))
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func newTestIndexer(t *testing.T, emb embedding.Client) (*Indexer, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:", 3, store.Cosine())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ch, err := chunker.New(config.ChunkingConfig{
		Strategy: config.StrategyFixed,
		Size:     64,
		Overlap:  8,
	})
	require.NoError(t, err)

	cfg := config.ProcessingConfig{
		SupportedExtensions: []string{".txt", ".md"},
		Workers:             1,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(st, ch, emb, source.NewTextExtractor(), cfg, logger), st
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestIndexPath_IndexesDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha content for the first file")
	writeFile(t, dir, "b.md", "bravo content for the second file")
	writeFile(t, dir, "c.log", "unsupported extension, never indexed")

	ix, st := newTestIndexer(t, &stubEmbedder{dim: 3})
	res, err := ix.IndexPath(context.Background(), dir, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Indexed)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Files, 2)
	for _, f := range res.Files {
		assert.Equal(t, OutcomeIndexed, f.Outcome)
		assert.Positive(t, f.Chunks)
	}

	stats, err := st.IndexStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, stats.Chunks, stats.Vectors)
}

func TestIndexPath_SecondRunSkips(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "stable content")

	emb := &stubEmbedder{dim: 3}
	ix, _ := newTestIndexer(t, emb)
	ctx := context.Background()

	res, err := ix.IndexPath(ctx, dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	firstBatches := emb.batches

	res, err = ix.IndexPath(ctx, dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Indexed)
	// Unchanged files never hit the embedder again.
	assert.Equal(t, firstBatches, emb.batches)
}

func TestIndexPath_FingerprintSkipAfterTouch(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.txt", "content that does not change")

	emb := &stubEmbedder{dim: 3}
	ix, st := newTestIndexer(t, emb)
	ctx := context.Background()

	_, err := ix.IndexPath(ctx, dir, Options{})
	require.NoError(t, err)

	// Bump mtime without changing content: the cheap pre-filter misses but
	// the fingerprint still says unchanged.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, future, future))

	res, err := ix.IndexPath(ctx, dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	// The pre-filter metadata was refreshed for next time.
	doc, err := st.FindByPath(ctx, res.Files[0].Path)
	require.NoError(t, err)
	assert.True(t, doc.QuickUnchanged(doc.SizeBytes, future.UnixNano()))
}

func TestIndexPath_ModifiedFileReindexed(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.txt", "original content")

	ix, st := newTestIndexer(t, &stubEmbedder{dim: 3})
	ctx := context.Background()

	_, err := ix.IndexPath(ctx, dir, Options{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("completely different content now"), 0o644))
	res, err := ix.IndexPath(ctx, dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)

	doc, err := st.FindByPath(ctx, res.Files[0].Path)
	require.NoError(t, err)
	assert.False(t, doc.IsStale(doc.ContentHash))
}

func TestIndexPath_ForceReindexesUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "stable content")

	ix, _ := newTestIndexer(t, &stubEmbedder{dim: 3})
	ctx := context.Background()

	_, err := ix.IndexPath(ctx, dir, Options{})
	require.NoError(t, err)

	res, err := ix.IndexPath(ctx, dir, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Zero(t, res.Skipped)
}

func TestIndexPath_FailureIsolation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good1.txt", "fine content one")
	writeFile(t, dir, "bad.txt", "POISON content that fails embedding")
	writeFile(t, dir, "good2.txt", "fine content two")

	emb := &stubEmbedder{
		dim:     3,
		failOn:  "POISON",
		failErr: &embedding.TransientError{Err: fmt.Errorf("connection refused")},
	}
	ix, st := newTestIndexer(t, emb)
	ctx := context.Background()

	res, err := ix.IndexPath(ctx, dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 1, res.Failed)

	var failed FileResult
	for _, f := range res.Files {
		if f.Outcome == OutcomeFailed {
			failed = f
		}
	}
	assert.Equal(t, StageEmbed, failed.Stage)
	require.Error(t, failed.Err)

	doc, err := st.FindByPath(ctx, failed.Path)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, doc.Status)
}

func TestIndexPath_FatalEmbeddingAbortsRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "some content")

	ctrl := gomock.NewController(t)
	emb := mocks.NewMockClient(ctrl)
	emb.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).
		Return(nil, &embedding.FatalError{Err: fmt.Errorf("embedding dimension mismatch")})
	ix, _ := newTestIndexer(t, emb)

	res, err := ix.IndexPath(context.Background(), dir, Options{})
	require.Error(t, err)
	assert.True(t, embedding.IsFatal(err))
	assert.Equal(t, 1, res.Failed)
}

func TestIndexPath_ExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.txt", "kept")
	writeFile(t, dir, "drop.skip.txt", "dropped")

	ix, _ := newTestIndexer(t, &stubEmbedder{dim: 3})
	res, err := ix.IndexPath(context.Background(), dir, Options{ExcludePatterns: []string{"*.skip.txt"}})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "keep.txt", filepath.Base(res.Files[0].Path))
}

func TestIndexPath_EmptyFileIndexedWithoutChunks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.txt", "")

	ix, st := newTestIndexer(t, &stubEmbedder{dim: 3})
	res, err := ix.IndexPath(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Zero(t, res.Files[0].Chunks)

	doc, err := st.FindByPath(context.Background(), res.Files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, doc.Status)
}

func TestIndexPath_SingleFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "one.txt", "index just this file")

	ix, _ := newTestIndexer(t, &stubEmbedder{dim: 3})
	res, err := ix.IndexPath(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
}

func TestIndexPath_MissingPath(t *testing.T) {
	ix, _ := newTestIndexer(t, &stubEmbedder{dim: 3})
	_, err := ix.IndexPath(context.Background(), "/does/not/exist", Options{})
	require.Error(t, err)
}
