package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/resonance-logs/meterd/internal/capture"
)

var replayConfigCmd = &cobra.Command{
	Use:   "replay-config",
	Short: "Print the effective capture configuration",
	Long:  "Resolve the capture config path and print the loaded configuration (with defaults applied) as JSON, without opening a capture device.",
	Args:  cobra.NoArgs,
	RunE:  runReplayConfig,
}

func runReplayConfig(cmd *cobra.Command, args []string) error {
	path, err := capture.ConfigPath()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	cfg, err := capture.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out := struct {
		Path string `json:"path"`
		capture.Config
	}{Path: path, Config: cfg}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
