package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"roserade/internal/store"
)

var (
	listJSON   bool
	listStats  bool
	listLimit  int
	listOffset int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	listCmd.Flags().BoolVar(&listStats, "stats", false, "show index statistics")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum number of documents")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "number of documents to skip")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if listStats {
		stats, err := app.store.IndexStats(cmd.Context())
		if err != nil {
			return err
		}
		if listJSON {
			data, err := json.MarshalIndent(map[string]int{
				"documents": stats.Documents,
				"chunks":    stats.Chunks,
				"vectors":   stats.Vectors,
			}, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		}
		cmd.Printf("Documents: %d\nChunks:    %d\nVectors:   %d\n", stats.Documents, stats.Chunks, stats.Vectors)
		return nil
	}

	docs, err := app.store.ListDocuments(cmd.Context(), listLimit, listOffset)
	if err != nil {
		return err
	}

	if listJSON {
		return printDocumentsJSON(cmd, docs)
	}
	printDocumentsTable(cmd, docs)
	return nil
}

type documentJSON struct {
	Path        string     `json:"path"`
	Status      string     `json:"status"`
	SizeBytes   int64      `json:"size_bytes"`
	LastIndexed *time.Time `json:"last_indexed,omitempty"`
}

func printDocumentsJSON(cmd *cobra.Command, docs []store.Document) error {
	out := make([]documentJSON, len(docs))
	for i, d := range docs {
		out[i] = documentJSON{Path: d.Path, Status: d.Status, SizeBytes: d.SizeBytes, LastIndexed: d.LastIndexed}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal documents: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printDocumentsTable(cmd *cobra.Command, docs []store.Document) {
	if len(docs) == 0 {
		cmd.Println("No documents indexed.")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSTATUS\tSIZE\tLAST INDEXED")
	for _, d := range docs {
		indexed := "-"
		if d.LastIndexed != nil {
			indexed = d.LastIndexed.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.Path, d.Status, d.SizeBytes, indexed)
	}
	_ = w.Flush()
}
