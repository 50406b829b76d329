package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/resonance-logs/meterd/internal/storage"
)

var sqlCmd = &cobra.Command{
	Use:   "sql <query>",
	Short: "Run a raw SQL query against the encounter database",
	Long: `Run an arbitrary SQL query against the encounter database and print results as a table.

Schema overview:
  encounters(id, session_id, started_at_ms, ended_at_ms, local_player_id,
    total_dmg, total_heal, scene_id, scene_name, duration_ms)
  entities(entity_id, entity_type, is_player, name, class_id, class_spec,
    ability_score, level, first_seen_ms, last_seen_ms, attributes)
  actor_encounter_stats(encounter_id, actor_id, damage_dealt, hits_dealt,
    crit_hits_dealt, ..._boss variants, heal_dealt, ..., damage_taken, ...)
  damage_skill_stats / heal_skill_stats(encounter_id, actor_id, skill_id,
    total_value, hits, crit_hits, crit_total, lucky_hits, lucky_total)
  attempts(encounter_id, attempt_index, started_at_ms, ended_at_ms, reason, boss_hp, deaths)
  skills(skill_id, name), app_config(key, value)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSQL,
}

func runSQL(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	cols, rows, err := db.QueryRaw(query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))

	colsAny := make([]any, len(cols))
	for i, c := range cols {
		colsAny[i] = c
	}
	table.Header(colsAny...)

	for _, row := range rows {
		rowAny := make([]any, len(row))
		for i, v := range row {
			rowAny[i] = v
		}
		table.Append(rowAny...)
	}
	table.Render()
	fmt.Fprintf(os.Stdout, "\n(%d rows)\n", len(rows))
	return nil
}

