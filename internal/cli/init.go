package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"roserade/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file and index database",
	Long: `Writes the default configuration file (if none exists) and creates
the index database schema.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	target := cfgPath
	if target == "" {
		target = config.DefaultPath()
	}
	if err := config.WriteDefault(target); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return err
	}
	app, err := openApp()
	if err != nil {
		return err
	}
	app.Close()

	cmd.Printf("Config: %s\n", target)
	cmd.Printf("Index:  %s\n", cfg.Database.Path)
	return nil
}
