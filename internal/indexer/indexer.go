// Package indexer orchestrates the document indexing pipeline: discovery,
// staleness checks, segmentation, embedding, and the atomic store commit.
//
// Files are processed independently. A failure in one file is recorded and
// never aborts the run, with one exception: a fatal embedding error (wrong
// model or dimension) poisons every remaining file and cancels the run.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"roserade/internal/chunker"
	"roserade/internal/config"
	"roserade/internal/embedding"
	"roserade/internal/source"
	"roserade/internal/store"
)

// Indexer drives documents through the pipeline into the index store.
type Indexer struct {
	store     *store.Store
	chunker   chunker.Chunker
	embedder  embedding.Client
	extractor source.Extractor
	cfg       config.ProcessingConfig
	logger    *slog.Logger
}

// New creates an Indexer. A nil logger falls back to slog.Default.
func New(st *store.Store, ch chunker.Chunker, emb embedding.Client, ext source.Extractor, cfg config.ProcessingConfig, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:     st,
		chunker:   ch,
		embedder:  emb,
		extractor: ext,
		cfg:       cfg,
		logger:    logger,
	}
}

// IndexPath indexes a file or directory. Discovery honors the configured
// supported extensions and exclude patterns plus any per-run extras in opts.
// Files run concurrently over a worker pool; the returned Result carries one
// entry per discovered file in discovery order.
//
// The returned error is non-nil only when the run itself could not proceed
// (discovery failure, pool setup, cancellation, fatal embedding error).
// Per-file failures are reported in the Result instead.
func (ix *Indexer) IndexPath(ctx context.Context, path string, opts Options) (*Result, error) {
	files, err := source.Discover(path, source.DiscoverOptions{
		Recursive:       opts.Recursive,
		Extensions:      ix.cfg.SupportedExtensions,
		ExcludePatterns: append(append([]string{}, ix.cfg.ExcludePatterns...), opts.ExcludePatterns...),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	result := &Result{
		RunID: uuid.New().String(),
		Files: make([]FileResult, len(files)),
	}
	logger := ix.logger.With("run_id", result.RunID)
	logger.InfoContext(ctx, "starting indexing run", "path", path, "files", len(files), "force", opts.Force)

	if len(files) == 0 {
		return result, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := ix.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	for i, file := range files {
		i, file := i, file
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			// Cancellation and fatal aborts take effect between files only.
			if runCtx.Err() != nil {
				result.Files[i] = FileResult{Path: file, Outcome: OutcomeFailed, Err: runCtx.Err()}
				return
			}
			fr := ix.indexFile(runCtx, logger, file, opts.Force)
			result.Files[i] = fr
			if fr.Err != nil && embedding.IsFatal(fr.Err) {
				fatalMu.Lock()
				if fatalErr == nil {
					fatalErr = fr.Err
					cancel()
				}
				fatalMu.Unlock()
			}
		}); err != nil {
			wg.Done()
			result.Files[i] = FileResult{Path: file, Outcome: OutcomeFailed, Err: err}
		}
	}
	wg.Wait()

	result.tally()
	logger.InfoContext(ctx, "indexing run finished",
		"indexed", result.Indexed, "skipped", result.Skipped, "failed", result.Failed)

	if fatalErr != nil {
		return result, fmt.Errorf("run aborted: %w", fatalErr)
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// indexFile runs the per-file state machine:
// discovered -> (skip | segment) -> embed -> commit -> indexed | failed.
func (ix *Indexer) indexFile(ctx context.Context, logger *slog.Logger, path string, force bool) FileResult {
	info, err := source.Stat(path)
	if err != nil {
		return ix.fail(ctx, logger, path, "", "", StageExtract, err)
	}

	existing, err := ix.store.FindByPath(ctx, info.Path)
	if err != nil && err != store.ErrNotFound {
		return ix.fail(ctx, logger, info.Path, info.Filename, info.FileType, StageCommit, err)
	}

	// Cheap pre-filter: identical size and mtime means skip without reading.
	if existing != nil && !force && existing.QuickUnchanged(info.Size, info.ModTime.UnixNano()) {
		logger.DebugContext(ctx, "skipping unchanged file", "path", info.Path, "reason", "size+mtime")
		return FileResult{Path: info.Path, Outcome: OutcomeSkipped}
	}

	extracted, err := ix.extractor.Extract(info.Path)
	if err != nil {
		return ix.fail(ctx, logger, info.Path, info.Filename, info.FileType, StageExtract, err)
	}

	// Content fingerprint is authoritative.
	if existing != nil && !force && !existing.IsStale(extracted.Hash) {
		if err := ix.store.TouchDocument(ctx, info.Path, info.Size, info.ModTime.UnixNano()); err != nil {
			logger.WarnContext(ctx, "failed to refresh document metadata", "path", info.Path, "error", err)
		}
		logger.DebugContext(ctx, "skipping unchanged file", "path", info.Path, "reason", "fingerprint")
		return FileResult{Path: info.Path, Outcome: OutcomeSkipped}
	}

	segments, err := ix.chunker.Chunk(extracted.Content, info.FileType)
	if err != nil {
		return ix.fail(ctx, logger, info.Path, info.Filename, info.FileType, StageSegment, err)
	}

	var vectors [][]float32
	if len(segments) > 0 {
		texts := make([]string, len(segments))
		for i, seg := range segments {
			texts[i] = seg.Text
		}
		vectors, err = ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return ix.fail(ctx, logger, info.Path, info.Filename, info.FileType, StageEmbed, err)
		}
	}

	doc := &store.Document{
		Path:        info.Path,
		Filename:    info.Filename,
		FileType:    info.FileType,
		SizeBytes:   info.Size,
		ContentHash: extracted.Hash,
		ModTimeNS:   info.ModTime.UnixNano(),
		Metadata:    extracted.Metadata,
	}
	chunks := make([]store.Chunk, len(segments))
	for i, seg := range segments {
		start, end := seg.Start, seg.End
		chunks[i] = store.Chunk{
			ChunkIndex:  i,
			Content:     seg.Text,
			StartOffset: &start,
			EndOffset:   &end,
			Meta: store.ChunkMeta{
				WordCount:     seg.WordCount,
				SentenceCount: seg.SentenceCount,
				Strategy:      seg.Strategy,
			},
		}
	}

	// The commit must land whole even if the run is cancelled mid-flight.
	if err := ix.store.CommitDocument(context.WithoutCancel(ctx), doc, chunks, vectors); err != nil {
		return ix.fail(ctx, logger, info.Path, info.Filename, info.FileType, StageCommit, err)
	}

	logger.InfoContext(ctx, "indexed document", "path", info.Path, "chunks", len(chunks))
	return FileResult{Path: info.Path, Outcome: OutcomeIndexed, Chunks: len(chunks)}
}

// fail records the failure in the store (best effort) and builds the result.
func (ix *Indexer) fail(ctx context.Context, logger *slog.Logger, path, filename, fileType, stage string, err error) FileResult {
	logger.ErrorContext(ctx, "failed to index file", "path", path, "stage", stage, "error", err)
	if filename != "" {
		if merr := ix.store.MarkDocumentFailed(context.WithoutCancel(ctx), path, filename, fileType); merr != nil {
			logger.WarnContext(ctx, "failed to record failure state", "path", path, "error", merr)
		}
	}
	return FileResult{Path: path, Outcome: OutcomeFailed, Stage: stage, Err: err}
}
