// Package report formats and prints encounter and actor statistics as
// terminal tables using tablewriter.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/resonance-logs/meterd/internal/storage"
)

// Verbose controls whether metric explanations are printed before each table.
// The root command sets it to false when the --quiet flag is passed.
var Verbose = true

// printSection prints a bold section title and, when Verbose is true, a one-line
// explanation of the columns that follow.
func printSection(w io.Writer, title, desc string) {
	fmt.Fprintf(w, "\n--- %s ---\n", title)
	if Verbose {
		fmt.Fprintf(w, "%s\n", desc)
	}
}

func newTable(w io.Writer, rowAlign, headerAlign tw.Align) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: rowAlign}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: headerAlign}},
	}))
}

// PrintEncounterSummary prints a one-line header for an encounter.
func PrintEncounterSummary(w io.Writer, s storage.EncounterSummary) {
	started := time.UnixMilli(s.StartedAtMs).Format("2006-01-02 15:04:05")
	duration := "in progress"
	if s.DurationMs.Valid {
		duration = (time.Duration(s.DurationMs.Int64) * time.Millisecond).Round(time.Second).String()
	}
	fmt.Fprintf(w, "\nEncounter #%d  |  Started: %s  |  Duration: %s  |  Total Dmg: %d  |  Total Heal: %d\n\n",
		s.ID, started, duration, s.TotalDmg, s.TotalHeal)
}

// PrintEncounterListTable prints a compact history of recent encounters.
func PrintEncounterListTable(w io.Writer, encs []storage.EncounterSummary) {
	table := newTable(w, tw.AlignRight, tw.AlignCenter)
	table.Header("ID", "STARTED", "DURATION", "TOTAL_DMG", "TOTAL_HEAL")
	for _, e := range encs {
		started := time.UnixMilli(e.StartedAtMs).Format("2006-01-02 15:04:05")
		duration := "—"
		if e.DurationMs.Valid {
			duration = (time.Duration(e.DurationMs.Int64) * time.Millisecond).Round(time.Second).String()
		}
		table.Append(strconv.FormatInt(e.ID, 10), started, duration, strconv.FormatInt(e.TotalDmg, 10), strconv.FormatInt(e.TotalHeal, 10))
	}
	table.Render()
}

// PrintActorTable prints the damage/heal/taken overview table for one
// encounter's actors, ordered by damage dealt (the caller's query order).
// If focusUID is non-zero, that actor's row is marked with ">".
func PrintActorTable(stats []storage.ActorStats, focusUID uint64) {
	PrintActorTableTo(os.Stdout, stats, focusUID)
}

// PrintActorTableTo writes the actor overview table to the provided writer.
func PrintActorTableTo(w io.Writer, stats []storage.ActorStats, focusUID uint64) {
	printSection(w, "Encounter Overview",
		"DMG=total damage dealt  DMG_BOSS=damage dealt to boss-flagged targets only  CRIT%=crit hit rate\n"+
			"HEAL=total healing dealt  TAKEN=damage taken (friendly fire excluded)  TYPE=pc/monster")
	table := newTable(w, tw.AlignRight, tw.AlignCenter)
	table.Header(" ", "NAME", "TYPE", "DMG", "DMG_BOSS", "CRIT%", "HEAL", "TAKEN")

	for _, s := range stats {
		marker := " "
		if focusUID != 0 && uint64(s.ActorID) == focusUID {
			marker = color.CyanString(">")
		}
		name := s.Name.String
		if name == "" {
			name = strconv.FormatInt(s.ActorID, 10)
		}
		critPct := "—"
		if s.HitsDealt > 0 {
			critPct = fmt.Sprintf("%.0f%%", float64(s.CritHitsDealt)/float64(s.HitsDealt)*100)
		}
		table.Append(
			marker,
			name,
			s.EntityType,
			strconv.FormatInt(s.DamageDealt, 10),
			strconv.FormatInt(s.DamageDealtBoss, 10),
			critPct,
			strconv.FormatInt(s.HealDealt, 10),
			strconv.FormatInt(s.DamageTaken, 10),
		)
	}
	table.Render()
}

// PrintSkillTable prints a per-skill breakdown (damage or heal) for one actor.
func PrintSkillTable(w io.Writer, title string, skills []storage.SkillStats) {
	if len(skills) == 0 {
		return
	}
	printSection(w, title,
		"TOTAL=summed value across the encounter  HITS=number of instances  CRIT%=crit hit rate  LUCKY%=lucky hit rate")
	table := newTable(w, tw.AlignRight, tw.AlignCenter)
	table.Header("SKILL", "TOTAL", "HITS", "CRIT%", "LUCKY%")

	for _, s := range skills {
		name := s.Name.String
		if name == "" {
			name = fmt.Sprintf("Skill_%d", s.SkillID)
		}
		critPct, luckyPct := "—", "—"
		if s.Hits > 0 {
			critPct = fmt.Sprintf("%.0f%%", float64(s.CritHits)/float64(s.Hits)*100)
			luckyPct = fmt.Sprintf("%.0f%%", float64(s.LuckyHits)/float64(s.Hits)*100)
		}
		table.Append(name, strconv.FormatInt(s.TotalValue, 10), strconv.FormatInt(s.Hits, 10), critPct, luckyPct)
	}
	table.Render()
}

// PrintAttemptTable prints an encounter's attempt history — one row per
// wipe-delimited try at the current boss.
func PrintAttemptTable(w io.Writer, attempts []storage.EncounterAttempt) {
	if len(attempts) == 0 {
		return
	}
	printSection(w, "Attempts",
		"BOSS_HP=boss HP fraction remaining when the attempt ended  DEATHS=party deaths during the attempt\n"+
			"REASON=what started the attempt (initial, wipe, hp_rollback)")
	table := newTable(w, tw.AlignRight, tw.AlignCenter)
	table.Header("#", "STARTED", "DURATION", "BOSS_HP", "DEATHS", "REASON")

	for _, a := range attempts {
		started := time.UnixMilli(a.StartedAtMs).Format("15:04:05")
		duration := "in progress"
		if a.EndedAtMs.Valid {
			duration = (time.Duration(a.EndedAtMs.Int64-a.StartedAtMs) * time.Millisecond).Round(time.Second).String()
		}
		bossHP := "—"
		if a.BossHP.Valid {
			bossHP = fmt.Sprintf("%.0f%%", a.BossHP.Float64*100)
		}
		reason := a.Reason.String
		if reason == "" {
			reason = "—"
		}
		table.Append(strconv.Itoa(int(a.AttemptIndex)), started, duration, bossHP, strconv.Itoa(a.Deaths), reason)
	}
	table.Render()
}
