// Package main is the entry point for meterd, a passive combat-telemetry
// engine for the game's network traffic.
package main

import "github.com/resonance-logs/meterd/cmd"

func main() {
	cmd.Execute()
}
