// Package cmd contains the CLI commands for ivvctl.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/ivvboard/internal/storage"
)

// defaultDBPath can be overridden via the IVVBOARD_DB_PATH env var.
var defaultDBPath = "./data/ivvboard.db"

func init() {
	if envPath := os.Getenv("IVVBOARD_DB_PATH"); envPath != "" {
		defaultDBPath = envPath
	}
}

var (
	// Used for flags
	verbose bool
	output  string
	dbPath  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ivvctl",
	Short: "ivvctl - IV&V dashboard administration",
	Long: `ivvctl manages the ivvboard database directly: accounts and their
approval, projects and vendor assignments, and offline report export.

Commands operate on the SQLite database file given by --db or the
IVVBOARD_DB_PATH environment variable.

Examples:
  # Approve a vendor account
  ivvctl user approve --email vendor@example.com

  # Assign a vendor to a project
  ivvctl project assign --name "Tax Portal" --vendor vendor@example.com

  # Export the June report as Word
  ivvctl report export --project "Tax Portal" --month 2025-06 --format docx`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath, "path to SQLite database file")
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...any) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// printJSON writes v as indented JSON when --output json is set and reports
// whether it did.
func printJSON(v any) (bool, error) {
	if output != "json" {
		return false, nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

// openDatabase opens and migrates the SQLite database.
func openDatabase(path string) (*storage.SQLiteStorage, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("database file not found: %s", path)
	}

	store := storage.NewSQLiteStorage(path)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	PrintVerbose("opened %s", path)
	return store, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 2 {
		return s[:n]
	}
	return s[:n-2] + ".."
}
