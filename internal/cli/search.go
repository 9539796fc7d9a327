package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"roserade/internal/store"
)

var (
	searchLimit     int
	searchThreshold float64
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents semantically",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", -1, "minimum similarity score (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit := cfg.Search.Limit
	if searchLimit > 0 {
		limit = searchLimit
	}
	threshold := cfg.Search.Threshold
	if searchThreshold >= 0 {
		threshold = searchThreshold
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	queryVec, err := app.embedder.Embed(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := app.store.Search(cmd.Context(), queryVec, limit, threshold)
	if err != nil {
		return err
	}

	if searchJSON {
		return printSearchJSON(cmd, results)
	}
	printSearchTable(cmd, results)
	return nil
}

type searchResultJSON struct {
	Path       string  `json:"path"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

func printSearchJSON(cmd *cobra.Command, results []store.SearchResult) error {
	out := make([]searchResultJSON, len(results))
	for i, r := range results {
		out[i] = searchResultJSON{
			Path:       r.DocumentPath,
			Filename:   r.Filename,
			ChunkIndex: r.Chunk.ChunkIndex,
			Score:      r.Score,
			Content:    r.Chunk.Content,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printSearchTable(cmd *cobra.Command, results []store.SearchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		cmd.Printf("[%d] %s #%d (%.3f)\n", i+1, r.DocumentPath, r.Chunk.ChunkIndex, r.Score)
		cmd.Printf("    %s\n", snippet(r.Chunk.Content, 160))
	}
}

// snippet flattens whitespace and truncates on a rune boundary.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
