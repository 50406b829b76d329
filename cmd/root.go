// Package cmd implements the meterd CLI: capturing live combat telemetry
// from the game's network traffic, serving it over a local HTTP/WebSocket
// command surface, and inspecting previously recorded encounters.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/resonance-logs/meterd/internal/report"
)

// dbPath is the file path to the SQLite database, set via the --db flag.
var dbPath string

// silent suppresses verbose metric explanations when true, set via the --quiet flag.
var silent bool

// rootCmd is the top-level cobra command for the meterd CLI.
var rootCmd = &cobra.Command{
	Use:   "meterd",
	Short: "Passive combat-telemetry engine",
	Long:  "Capture, aggregate, and inspect combat encounters observed passively on the network.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		report.Verbose = !silent
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultDB := filepath.Join(mustUserHome(), ".meterd", "encounters.db")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "path to SQLite database")
	rootCmd.PersistentFlags().BoolVarP(&silent, "quiet", "q", false, "hide metric explanations before each table")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(replayConfigCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(sqlCmd)
}

// mustUserHome returns the current user's home directory, falling back to "."
// if it cannot be determined.
func mustUserHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
