package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/resonance-logs/meterd/internal/report"
	"github.com/resonance-logs/meterd/internal/storage"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently recorded encounters",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of encounters to list")
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	encs, err := db.RecentEncounters(listLimit)
	if err != nil {
		return fmt.Errorf("list encounters: %w", err)
	}
	if len(encs) == 0 {
		fmt.Fprintln(os.Stdout, "No encounters recorded yet. Run 'meterd capture' to start one.")
		return nil
	}
	report.PrintEncounterListTable(os.Stdout, encs)
	return nil
}
