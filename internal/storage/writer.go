package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/resonance-logs/meterd/internal/dbtask"
)

// Writer drains a bounded dbtask queue and applies each task to the store,
// tracking the single currently-open encounter id the way
// original_source's handle_task/current_encounter_id pair does. One Writer
// owns one *sql.DB connection for its lifetime; it is the only writer goroutine.
type Writer struct {
	db                 *DB
	sink               dbtask.ChanSink
	log                *zap.Logger
	currentEncounterID int64
	hasEncounter       bool
}

// NewWriter constructs a Writer reading from sink.
func NewWriter(db *DB, sink dbtask.ChanSink, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{db: db, sink: sink, log: log}
}

// Run drains tasks until ctx is cancelled or the sink channel closes.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-w.sink:
			if !ok {
				return
			}
			if err := w.handle(t); err != nil {
				w.log.Warn("db task failed", zap.String("kind", t.Kind.String()), zap.Error(err))
			}
		}
	}
}

func (w *Writer) handle(t dbtask.Task) error {
	switch t.Kind {
	case dbtask.BeginEncounter:
		return w.beginEncounter(t)
	case dbtask.EndEncounter:
		return w.endEncounter(t)
	case dbtask.BeginAttempt:
		return w.beginAttempt(t)
	case dbtask.EndAttempt:
		return w.endAttempt(t)
	case dbtask.BeginPhase:
		return w.beginPhase(t)
	case dbtask.EndPhase:
		return w.endPhase(t)
	case dbtask.UpsertEntity:
		return w.upsertEntity(t)
	case dbtask.UpsertSkill:
		return w.upsertSkill(t)
	case dbtask.InsertDamageEvent:
		return w.insertDamageEvent(t)
	case dbtask.InsertHealEvent:
		return w.insertHealEvent(t)
	case dbtask.InsertDeathEvent:
		return w.insertDeathEvent(t)
	case dbtask.InsertDungeonSegment:
		return w.insertDungeonSegment(t)
	}
	return nil
}

// beginEncounter mirrors original_source's BeginEncounter arm: a no-op if
// an encounter is already open (ServerChange resets in-memory state but
// does not itself close the persisted encounter row — only an explicit
// EndEncounter does; Run returns on cancellation without ending it).
func (w *Writer) beginEncounter(t dbtask.Task) error {
	if w.hasEncounter {
		return nil
	}
	res, err := w.db.conn.Exec(
		`INSERT INTO encounters(started_at_ms, local_player_id, total_dmg, total_heal) VALUES (?, ?, 0, 0)`,
		t.TimestampMs, nullIfZero(t.ActorUID),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	w.currentEncounterID = id
	w.hasEncounter = true
	return nil
}

func (w *Writer) endEncounter(t dbtask.Task) error {
	if !w.hasEncounter {
		return nil
	}
	_, err := w.db.conn.Exec(`UPDATE encounters SET ended_at_ms = ?, duration_ms = ? - started_at_ms WHERE id = ?`,
		t.TimestampMs, t.TimestampMs, w.currentEncounterID)
	w.hasEncounter = false
	return err
}

func (w *Writer) beginAttempt(t dbtask.Task) error {
	if !w.hasEncounter {
		return nil
	}
	_, err := w.db.conn.Exec(
		`INSERT INTO attempts(encounter_id, attempt_index, started_at_ms, reason) VALUES (?, ?, ?, ?)
		 ON CONFLICT(encounter_id, attempt_index) DO NOTHING`,
		w.currentEncounterID, t.AttemptIndex, t.TimestampMs, t.Reason,
	)
	return err
}

func (w *Writer) endAttempt(t dbtask.Task) error {
	if !w.hasEncounter {
		return nil
	}
	_, err := w.db.conn.Exec(
		`UPDATE attempts SET ended_at_ms = ?, boss_hp = ?, deaths = ? WHERE encounter_id = ? AND attempt_index = ?`,
		t.TimestampMs, t.BossHP, t.Deaths, w.currentEncounterID, t.AttemptIndex,
	)
	return err
}

func (w *Writer) beginPhase(t dbtask.Task) error {
	if !w.hasEncounter {
		return nil
	}
	_, err := w.db.conn.Exec(
		`INSERT INTO encounter_phases(encounter_id, phase_name, started_at_ms) VALUES (?, ?, ?)`,
		w.currentEncounterID, t.PhaseName, t.TimestampMs,
	)
	return err
}

func (w *Writer) endPhase(t dbtask.Task) error {
	if !w.hasEncounter {
		return nil
	}
	_, err := w.db.conn.Exec(
		`UPDATE encounter_phases SET ended_at_ms = ?, outcome = ?
		 WHERE id = (SELECT id FROM encounter_phases WHERE encounter_id = ? AND phase_name = ? AND ended_at_ms IS NULL ORDER BY id DESC LIMIT 1)`,
		t.TimestampMs, t.Outcome, w.currentEncounterID, t.PhaseName,
	)
	return err
}

// upsertEntity mirrors original_source's UpsertEntity arm: probe for
// existence, then INSERT or UPDATE accordingly (SQLite's UPSERT would also
// work here, but the original's explicit-probe shape is kept since the
// insert and update column sets differ — first_seen_ms is write-once).
func (w *Writer) upsertEntity(t dbtask.Task) error {
	var exists int
	err := w.db.conn.QueryRow(`SELECT 1 FROM entities WHERE entity_id = ?`, t.ActorUID).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		_, err = w.db.conn.Exec(
			`INSERT INTO entities(entity_id, entity_type, is_player, name, class_id, class_spec, ability_score, level, first_seen_ms, last_seen_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ActorUID, entityType(t.IsPlayer), boolInt(t.IsPlayer), t.Name, t.ClassID, t.ClassSpec, t.AbilityScore, t.Level, t.TimestampMs, t.TimestampMs,
		)
		return err
	case err != nil:
		return err
	default:
		_, err = w.db.conn.Exec(
			`UPDATE entities SET entity_type = ?, name = ?, class_id = ?, class_spec = ?, ability_score = ?, level = ?, last_seen_ms = ? WHERE entity_id = ?`,
			entityType(t.IsPlayer), t.Name, t.ClassID, t.ClassSpec, t.AbilityScore, t.Level, t.TimestampMs, t.ActorUID,
		)
		return err
	}
}

func (w *Writer) upsertSkill(t dbtask.Task) error {
	_, err := w.db.conn.Exec(
		`INSERT INTO skills(skill_id, name) VALUES (?, ?)
		 ON CONFLICT(skill_id) DO UPDATE SET name = excluded.name WHERE excluded.name != ''`,
		t.SkillID, t.Name,
	)
	return err
}

func (w *Writer) insertDamageEvent(t dbtask.Task) error {
	if !w.hasEncounter {
		return nil
	}
	_, err := w.db.conn.Exec(
		`INSERT INTO damage_events(encounter_id, timestamp_ms, attacker_id, defender_id, skill_id, value, is_crit, is_lucky, defender_is_boss)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.currentEncounterID, t.TimestampMs, t.ActorUID, t.DefenderUID, skillIDOrNil(t), t.Value, boolInt(t.IsCrit), boolInt(t.IsLucky), boolInt(t.DefenderIsBoss),
	)
	if err != nil {
		return err
	}
	if _, err := w.db.conn.Exec(`UPDATE encounters SET total_dmg = total_dmg + ? WHERE id = ?`, t.Value, w.currentEncounterID); err != nil {
		return err
	}
	if err := w.upsertStats(t.ActorUID, "dealt", t.Value, t.IsCrit, t.IsLucky, t.DefenderIsBoss); err != nil {
		return err
	}
	if t.HasSkill {
		if err := w.upsertSkillStats("damage_skill_stats", t.ActorUID, t.SkillID, t.Value, t.IsCrit, t.IsLucky); err != nil {
			return err
		}
	}
	if !t.CreditTaken {
		return nil
	}
	return w.upsertStats(t.DefenderUID, "taken", t.Value, t.IsCrit, t.IsLucky, false)
}

func (w *Writer) insertHealEvent(t dbtask.Task) error {
	if !w.hasEncounter {
		return nil
	}
	_, err := w.db.conn.Exec(
		`INSERT INTO heal_events(encounter_id, timestamp_ms, healer_id, target_id, skill_id, value, is_crit, is_lucky)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.currentEncounterID, t.TimestampMs, t.ActorUID, t.DefenderUID, skillIDOrNil(t), t.Value, boolInt(t.IsCrit), boolInt(t.IsLucky),
	)
	if err != nil {
		return err
	}
	if _, err := w.db.conn.Exec(`UPDATE encounters SET total_heal = total_heal + ? WHERE id = ?`, t.Value, w.currentEncounterID); err != nil {
		return err
	}
	if err := w.upsertStats(t.ActorUID, "heal", t.Value, t.IsCrit, t.IsLucky, false); err != nil {
		return err
	}
	if t.HasSkill {
		return w.upsertSkillStats("heal_skill_stats", t.ActorUID, t.SkillID, t.Value, t.IsCrit, t.IsLucky)
	}
	return nil
}

func (w *Writer) insertDeathEvent(t dbtask.Task) error {
	if !w.hasEncounter {
		return nil
	}
	_, err := w.db.conn.Exec(
		`INSERT INTO death_events(encounter_id, timestamp_ms, actor_id, killer_id, skill_id) VALUES (?, ?, ?, ?, ?)`,
		w.currentEncounterID, t.TimestampMs, t.ActorUID, nullIfNoKiller(t), skillIDOrNil(t),
	)
	return err
}

func (w *Writer) insertDungeonSegment(t dbtask.Task) error {
	if !w.hasEncounter {
		return nil
	}
	_, err := w.db.conn.Exec(
		`INSERT INTO encounter_bosses(encounter_id, boss_uid, monster_type_id, name) VALUES (?, ?, ?, ?)
		 ON CONFLICT(encounter_id, boss_uid) DO UPDATE SET name = excluded.name`,
		w.currentEncounterID, t.ActorUID, t.SceneID, t.SceneName,
	)
	return err
}

// upsertStats implements the monotonic-counter idiom of
// upsert_stats_add_damage_dealt / upsert_stats_add_heal_dealt /
// upsert_stats_add_damage_taken: one row per (encounter, actor), every
// column folded forward with ON CONFLICT DO UPDATE SET col = col + excluded.col.
func (w *Writer) upsertStats(actorUID uint64, role string, value uint64, isCrit, isLucky, bossOnly bool) error {
	if actorUID == 0 {
		return nil
	}
	totalCol, hitsCol, critHitsCol, critTotalCol, luckyHitsCol, luckyTotalCol := statColumns(role, false)
	critHit, luckyHit := int64(0), int64(0)
	critVal, luckyVal := int64(0), int64(0)
	if isCrit {
		critHit, critVal = 1, int64(value)
	}
	if isLucky {
		luckyHit, luckyVal = 1, int64(value)
	}
	if _, err := w.db.conn.Exec(fmt.Sprintf(
		`INSERT INTO actor_encounter_stats(encounter_id, actor_id, %s, %s, %s, %s, %s, %s)
		 VALUES (?, ?, ?, 1, ?, ?, ?, ?)
		 ON CONFLICT(encounter_id, actor_id) DO UPDATE SET
		   %s = %s + excluded.%s, %s = %s + excluded.%s, %s = %s + excluded.%s,
		   %s = %s + excluded.%s, %s = %s + excluded.%s, %s = %s + excluded.%s`,
		totalCol, hitsCol, critHitsCol, luckyHitsCol, critTotalCol, luckyTotalCol,
		totalCol, totalCol, totalCol, hitsCol, hitsCol, hitsCol, critHitsCol, critHitsCol, critHitsCol,
		luckyHitsCol, luckyHitsCol, luckyHitsCol, critTotalCol, critTotalCol, critTotalCol, luckyTotalCol, luckyTotalCol, luckyTotalCol,
	), w.currentEncounterID, actorUID, value, critHit, luckyHit, critVal, luckyVal); err != nil {
		return err
	}
	if role == "dealt" && bossOnly {
		bTotalCol, bHitsCol, bCritHitsCol, bCritTotalCol, bLuckyHitsCol, bLuckyTotalCol := statColumns(role, true)
		_, err := w.db.conn.Exec(fmt.Sprintf(
			`INSERT INTO actor_encounter_stats(encounter_id, actor_id, %s, %s, %s, %s, %s, %s)
			 VALUES (?, ?, ?, 1, ?, ?, ?, ?)
			 ON CONFLICT(encounter_id, actor_id) DO UPDATE SET
			   %s = %s + excluded.%s, %s = %s + excluded.%s, %s = %s + excluded.%s,
			   %s = %s + excluded.%s, %s = %s + excluded.%s, %s = %s + excluded.%s`,
			bTotalCol, bHitsCol, bCritHitsCol, bLuckyHitsCol, bCritTotalCol, bLuckyTotalCol,
			bTotalCol, bTotalCol, bTotalCol, bHitsCol, bHitsCol, bHitsCol, bCritHitsCol, bCritHitsCol, bCritHitsCol,
			bLuckyHitsCol, bLuckyHitsCol, bLuckyHitsCol, bCritTotalCol, bCritTotalCol, bCritTotalCol, bLuckyTotalCol, bLuckyTotalCol, bLuckyTotalCol,
		), w.currentEncounterID, actorUID, value, critHit, luckyHit, critVal, luckyVal)
		return err
	}
	return nil
}

func statColumns(role string, bossOnly bool) (total, hits, critHits, critTotal, luckyHits, luckyTotal string) {
	suffix := ""
	if bossOnly {
		suffix = "_boss"
	}
	switch role {
	case "dealt":
		return "damage_dealt" + suffix, "hits_dealt" + suffix, "crit_hits_dealt" + suffix, "crit_total_dealt" + suffix, "lucky_hits_dealt" + suffix, "lucky_total_dealt" + suffix
	case "heal":
		return "heal_dealt", "hits_heal", "crit_hits_heal", "crit_total_heal", "lucky_hits_heal", "lucky_total_heal"
	default:
		return "damage_taken", "hits_taken", "crit_hits_taken", "crit_total_taken", "lucky_hits_taken", "lucky_total_taken"
	}
}

func (w *Writer) upsertSkillStats(table string, actorUID uint64, skillID uint32, value uint64, isCrit, isLucky bool) error {
	critHit, luckyHit, critVal, luckyVal := int64(0), int64(0), int64(0), int64(0)
	if isCrit {
		critHit, critVal = 1, int64(value)
	}
	if isLucky {
		luckyHit, luckyVal = 1, int64(value)
	}
	_, err := w.db.conn.Exec(fmt.Sprintf(
		`INSERT INTO %s(encounter_id, actor_id, skill_id, total_value, hits, crit_hits, crit_total, lucky_hits, lucky_total)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)
		 ON CONFLICT(encounter_id, actor_id, skill_id) DO UPDATE SET
		   total_value = total_value + excluded.total_value, hits = hits + excluded.hits,
		   crit_hits = crit_hits + excluded.crit_hits, crit_total = crit_total + excluded.crit_total,
		   lucky_hits = lucky_hits + excluded.lucky_hits, lucky_total = lucky_total + excluded.lucky_total`,
		table,
	), w.currentEncounterID, actorUID, skillID, value, critHit, critVal, luckyHit, luckyVal)
	return err
}

func entityType(isPlayer bool) string {
	if isPlayer {
		return "pc"
	}
	return "monster"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfZero(v uint64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullIfNoKiller(t dbtask.Task) interface{} {
	if !t.HasKiller {
		return nil
	}
	return t.KillerUID
}

func skillIDOrNil(t dbtask.Task) interface{} {
	if !t.HasSkill {
		return nil
	}
	return t.SkillID
}
