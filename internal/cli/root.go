// Package cli wires the command-line surface: index management, search,
// recurring jobs, and the change watcher.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"roserade/internal/chunker"
	"roserade/internal/config"
	"roserade/internal/embedding"
	"roserade/internal/indexer"
	"roserade/internal/source"
	"roserade/internal/store"
)

var (
	cfgPath string
	dbPath  string
	verbose bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "roserade",
	Short: "Local document indexing and semantic search",
	Long: `roserade indexes local documents into an embedded SQLite store and
searches them semantically through a local embedding model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default: XDG config dir)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "index database file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// ExecuteContext runs the CLI; ctx cancellation (e.g. SIGINT) propagates to
// long-running commands like watch and jobs daemon.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// app holds the wired pipeline components behind one command invocation.
type app struct {
	store    *store.Store
	embedder embedding.Client
	indexer  *indexer.Indexer
}

// openApp builds the component graph from the loaded configuration. The
// similarity metric is resolved once here; a bad metric name fails startup.
func openApp() (*app, error) {
	metric, err := store.ParseMetric(cfg.Search.Metric)
	if err != nil {
		return nil, err
	}
	st, err := store.New(cfg.Database.Path, cfg.Embedding.Dimension, metric)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.Chunking)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	emb := embedding.NewOllama(cfg.Embedding, logger)
	ix := indexer.New(st, ch, emb, source.NewTextExtractor(), cfg.Processing, logger)
	return &app{store: st, embedder: emb, indexer: ix}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close store", "error", err)
	}
}

// failedRunError makes a partially failed run exit non-zero while the
// per-file details still print normally.
func failedRunError(failed int) error {
	return fmt.Errorf("%d file(s) failed to index", failed)
}
