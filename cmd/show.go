package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/resonance-logs/meterd/internal/report"
	"github.com/resonance-logs/meterd/internal/storage"
)

// showActorID optionally highlights one actor and prints its skill breakdown.
var showActorID uint64

// showCmd re-displays one recorded encounter's stored stats by id.
var showCmd = &cobra.Command{
	Use:   "show <encounter-id>",
	Short: "Show a recorded encounter's stats",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().Uint64Var(&showActorID, "actor", 0, "highlight an actor and print its skill breakdown")
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid encounter id %q", args[0])
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	enc, err := db.EncounterByID(id)
	if err != nil {
		return fmt.Errorf("query encounter: %w", err)
	}
	if enc == nil {
		fmt.Fprintf(os.Stderr, "No encounter found with id %d\n", id)
		return nil
	}

	actors, err := db.EncounterActorStats(id)
	if err != nil {
		return fmt.Errorf("get actor stats: %w", err)
	}
	attempts, err := db.EncounterAttempts(id)
	if err != nil {
		return fmt.Errorf("get attempts: %w", err)
	}

	report.PrintEncounterSummary(os.Stdout, *enc)
	report.PrintActorTable(actors, showActorID)
	report.PrintAttemptTable(os.Stdout, attempts)

	if showActorID != 0 {
		dmg, err := db.ActorDamageSkills(id, showActorID)
		if err != nil {
			return fmt.Errorf("get damage skills: %w", err)
		}
		heal, err := db.ActorHealSkills(id, showActorID)
		if err != nil {
			return fmt.Errorf("get heal skills: %w", err)
		}
		report.PrintSkillTable(os.Stdout, "Damage Breakdown", dmg)
		report.PrintSkillTable(os.Stdout, "Heal Breakdown", heal)
	}
	return nil
}
