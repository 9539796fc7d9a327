package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"roserade/internal/indexer"
	"roserade/internal/watch"
)

var (
	watchRecursive bool
	watchDebounce  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Reindex files as they change",
	Long: `Watches a directory and reindexes files as they are created or
modified. Deleted files are removed from the index. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVarP(&watchRecursive, "recursive", "r", false, "watch subdirectories")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "delay after the last change before reindexing")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	w := watch.New(app.indexer, app.store, cfg.Processing.SupportedExtensions, watchDebounce, logger)
	err = w.Run(cmd.Context(), args[0], indexer.Options{Recursive: watchRecursive})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
