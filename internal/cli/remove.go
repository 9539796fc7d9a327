package cli

import (
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove [path-or-glob]",
	Short: "Remove documents from the index",
	Long: `Removes documents whose path matches the given exact path or glob
pattern. Chunks and vectors are removed with their documents. The source
files themselves are never touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	n, err := app.store.RemoveDocuments(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Printf("Removed %d document(s)\n", n)
	return nil
}
