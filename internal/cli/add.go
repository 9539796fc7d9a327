package cli

import (
	"github.com/spf13/cobra"

	"roserade/internal/indexer"
)

var (
	addRecursive    bool
	addForce        bool
	addExclude      []string
	addChunkSize    int
	addChunkOverlap int
)

var addCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Index a file or directory",
	Long: `Indexes the given file or directory. Unchanged files (same content
fingerprint) are skipped unless --force is given. Individual file failures
are reported but do not stop the run; the exit code reflects them.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().BoolVarP(&addRecursive, "recursive", "r", false, "descend into subdirectories")
	addCmd.Flags().BoolVarP(&addForce, "force", "f", false, "reindex even if unchanged")
	addCmd.Flags().StringArrayVar(&addExclude, "exclude", nil, "glob pattern to exclude (repeatable)")
	addCmd.Flags().IntVar(&addChunkSize, "chunk-size", 0, "override configured chunk size")
	addCmd.Flags().IntVar(&addChunkOverlap, "chunk-overlap", -1, "override configured chunk overlap")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	if addChunkSize > 0 {
		cfg.Chunking.Size = addChunkSize
	}
	if addChunkOverlap >= 0 {
		cfg.Chunking.Overlap = addChunkOverlap
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.indexer.IndexPath(cmd.Context(), args[0], indexer.Options{
		Recursive:       addRecursive,
		Force:           addForce,
		ExcludePatterns: addExclude,
	})
	if err != nil {
		return err
	}

	cmd.Printf("Indexed: %d  Skipped: %d  Failed: %d\n", res.Indexed, res.Skipped, res.Failed)
	for _, f := range res.Files {
		if f.Outcome == indexer.OutcomeFailed {
			cmd.Printf("  failed (%s): %s: %v\n", f.Stage, f.Path, f.Err)
		}
	}
	if res.Failed > 0 {
		return failedRunError(res.Failed)
	}
	return nil
}
