// Package watch keeps an index current while files change, by feeding
// filesystem events into the indexing pipeline. Bursts of events (editor
// saves, bulk copies) are debounced into one reindex pass.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"roserade/internal/indexer"
)

// Reindexer indexes one path. Satisfied by *indexer.Indexer.
type Reindexer interface {
	IndexPath(ctx context.Context, path string, opts indexer.Options) (*indexer.Result, error)
}

// Remover drops documents from the index. Satisfied by *store.Store.
type Remover interface {
	RemoveDocuments(ctx context.Context, pattern string) (int, error)
}

// Watcher reacts to filesystem changes under a directory tree.
type Watcher struct {
	reindexer  Reindexer
	remover    Remover
	extensions []string
	debounce   time.Duration
	logger     *slog.Logger
}

// New creates a Watcher. Only files with one of the given extensions trigger
// reindexing; debounce controls how long to wait after the last event before
// flushing a batch.
func New(rx Reindexer, rm Remover, extensions []string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		reindexer:  rx,
		remover:    rm,
		extensions: extensions,
		debounce:   debounce,
		logger:     logger,
	}
}

// Run watches root until ctx is cancelled. With opts.Recursive it watches the
// whole subtree and picks up directories created while running. Changed files
// are reindexed, removed files are dropped from the index.
func (w *Watcher) Run(ctx context.Context, root string, opts indexer.Options) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", root, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, abs, opts.Recursive); err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "watching for changes", "path", abs, "recursive", opts.Recursive)

	var (
		changed = make(map[string]struct{})
		removed = make(map[string]struct{})
		timer   = time.NewTimer(w.debounce)
	)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if w.handleEvent(ctx, fw, event, opts.Recursive, changed, removed) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "watch error", "error", err)

		case <-timer.C:
			w.flush(ctx, changed, removed, opts)
			changed = make(map[string]struct{})
			removed = make(map[string]struct{})
		}
	}
}

// handleEvent classifies one event and reports whether the debounce timer
// should restart.
func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event, recursive bool, changed, removed map[string]struct{}) bool {
	path := event.Name

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if recursive && !strings.HasPrefix(filepath.Base(path), ".") {
				if err := w.addTree(fw, path, true); err != nil {
					w.logger.WarnContext(ctx, "failed to watch new directory", "path", path, "error", err)
				}
			}
			return false
		}
	}

	if !w.supported(path) {
		return false
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		delete(changed, path)
		removed[path] = struct{}{}
		return true
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		delete(removed, path)
		changed[path] = struct{}{}
		return true
	}
	return false
}

func (w *Watcher) flush(ctx context.Context, changed, removed map[string]struct{}, opts indexer.Options) {
	for path := range removed {
		n, err := w.remover.RemoveDocuments(ctx, path)
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to remove document", "path", path, "error", err)
			continue
		}
		if n > 0 {
			w.logger.InfoContext(ctx, "removed document", "path", path)
		}
	}
	for path := range changed {
		res, err := w.reindexer.IndexPath(ctx, path, indexer.Options{
			Force:           opts.Force,
			ExcludePatterns: opts.ExcludePatterns,
		})
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to reindex", "path", path, "error", err)
			continue
		}
		if res.Failed > 0 {
			w.logger.WarnContext(ctx, "reindex finished with failures", "path", path, "failed", res.Failed)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string, recursive bool) error {
	if !recursive {
		return fw.Add(root)
	}
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

func (w *Watcher) supported(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
