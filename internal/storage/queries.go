package storage

import (
	"database/sql"
	"fmt"
)

// EncounterSummary is one row of the get_recent_encounters read-path
// command (spec.md §6.3): enough to populate a history list without
// pulling every actor's stats.
type EncounterSummary struct {
	ID             int64
	StartedAtMs    int64
	EndedAtMs      sql.NullInt64
	DurationMs     sql.NullInt64
	LocalPlayerUID sql.NullInt64
	TotalDmg       int64
	TotalHeal      int64
}

// RecentEncounters returns the most recently started encounters, newest
// first, capped at limit rows.
func (db *DB) RecentEncounters(limit int) ([]EncounterSummary, error) {
	rows, err := db.conn.Query(
		`SELECT id, started_at_ms, ended_at_ms, duration_ms, local_player_id, total_dmg, total_heal
		 FROM encounters ORDER BY started_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EncounterSummary
	for rows.Next() {
		var s EncounterSummary
		if err := rows.Scan(&s.ID, &s.StartedAtMs, &s.EndedAtMs, &s.DurationMs, &s.LocalPlayerUID, &s.TotalDmg, &s.TotalHeal); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EncounterByID returns one encounter's summary row, or nil if no
// encounter with that id exists.
func (db *DB) EncounterByID(id int64) (*EncounterSummary, error) {
	var s EncounterSummary
	err := db.conn.QueryRow(
		`SELECT id, started_at_ms, ended_at_ms, duration_ms, local_player_id, total_dmg, total_heal
		 FROM encounters WHERE id = ?`, id,
	).Scan(&s.ID, &s.StartedAtMs, &s.EndedAtMs, &s.DurationMs, &s.LocalPlayerUID, &s.TotalDmg, &s.TotalHeal)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ActorStats is one row of get_encounter_actor_stats: an actor's full
// monotonic counter set for a single encounter, joined against the
// entities table for display identity.
type ActorStats struct {
	ActorID      int64
	Name         sql.NullString
	EntityType   string
	ClassID      sql.NullInt64
	ClassSpec    sql.NullInt64

	DamageDealt      int64
	HitsDealt        int64
	CritHitsDealt    int64
	CritTotalDealt   int64
	LuckyHitsDealt   int64
	LuckyTotalDealt  int64

	DamageDealtBoss     int64
	HitsDealtBoss       int64
	CritHitsDealtBoss   int64
	CritTotalDealtBoss  int64
	LuckyHitsDealtBoss  int64
	LuckyTotalDealtBoss int64

	HealDealt      int64
	HitsHeal       int64
	CritHitsHeal   int64
	CritTotalHeal  int64
	LuckyHitsHeal  int64
	LuckyTotalHeal int64

	DamageTaken      int64
	HitsTaken        int64
	CritHitsTaken    int64
	CritTotalTaken   int64
	LuckyHitsTaken   int64
	LuckyTotalTaken  int64
}

// EncounterActorStats returns every actor's full counter row for one
// encounter, ordered by damage_dealt descending (the natural DPS-meter
// display order).
func (db *DB) EncounterActorStats(encounterID int64) ([]ActorStats, error) {
	rows, err := db.conn.Query(`
		SELECT s.actor_id, e.name, e.entity_type, e.class_id, e.class_spec,
		       s.damage_dealt, s.hits_dealt, s.crit_hits_dealt, s.crit_total_dealt, s.lucky_hits_dealt, s.lucky_total_dealt,
		       s.damage_dealt_boss, s.hits_dealt_boss, s.crit_hits_dealt_boss, s.crit_total_dealt_boss, s.lucky_hits_dealt_boss, s.lucky_total_dealt_boss,
		       s.heal_dealt, s.hits_heal, s.crit_hits_heal, s.crit_total_heal, s.lucky_hits_heal, s.lucky_total_heal,
		       s.damage_taken, s.hits_taken, s.crit_hits_taken, s.crit_total_taken, s.lucky_hits_taken, s.lucky_total_taken
		FROM actor_encounter_stats s
		LEFT JOIN entities e ON e.entity_id = s.actor_id
		WHERE s.encounter_id = ?
		ORDER BY s.damage_dealt DESC`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActorStats
	for rows.Next() {
		var s ActorStats
		if err := rows.Scan(
			&s.ActorID, &s.Name, &s.EntityType, &s.ClassID, &s.ClassSpec,
			&s.DamageDealt, &s.HitsDealt, &s.CritHitsDealt, &s.CritTotalDealt, &s.LuckyHitsDealt, &s.LuckyTotalDealt,
			&s.DamageDealtBoss, &s.HitsDealtBoss, &s.CritHitsDealtBoss, &s.CritTotalDealtBoss, &s.LuckyHitsDealtBoss, &s.LuckyTotalDealtBoss,
			&s.HealDealt, &s.HitsHeal, &s.CritHitsHeal, &s.CritTotalHeal, &s.LuckyHitsHeal, &s.LuckyTotalHeal,
			&s.DamageTaken, &s.HitsTaken, &s.CritHitsTaken, &s.CritTotalTaken, &s.LuckyHitsTaken, &s.LuckyTotalTaken,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SkillStats is one row of an actor's per-skill damage or heal breakdown.
type SkillStats struct {
	SkillID    uint32
	Name       sql.NullString
	TotalValue int64
	Hits       int64
	CritHits   int64
	CritTotal  int64
	LuckyHits  int64
	LuckyTotal int64
}

// ActorDamageSkills returns an actor's damage_skill_stats rows for one
// encounter, ordered by total_value descending, backing
// get_player_skills(uid, "dps").
func (db *DB) ActorDamageSkills(encounterID int64, actorUID uint64) ([]SkillStats, error) {
	return db.actorSkillStats("damage_skill_stats", encounterID, actorUID)
}

// ActorHealSkills returns an actor's heal_skill_stats rows for one
// encounter, backing get_player_skills(uid, "heal").
func (db *DB) ActorHealSkills(encounterID int64, actorUID uint64) ([]SkillStats, error) {
	return db.actorSkillStats("heal_skill_stats", encounterID, actorUID)
}

func (db *DB) actorSkillStats(table string, encounterID int64, actorUID uint64) ([]SkillStats, error) {
	rows, err := db.conn.Query(fmt.Sprintf(`
		SELECT t.skill_id, sk.name, t.total_value, t.hits, t.crit_hits, t.crit_total, t.lucky_hits, t.lucky_total
		FROM %s t
		LEFT JOIN skills sk ON sk.skill_id = t.skill_id
		WHERE t.encounter_id = ? AND t.actor_id = ?
		ORDER BY t.total_value DESC`, table), encounterID, actorUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SkillStats
	for rows.Next() {
		var s SkillStats
		if err := rows.Scan(&s.SkillID, &s.Name, &s.TotalValue, &s.Hits, &s.CritHits, &s.CritTotal, &s.LuckyHits, &s.LuckyTotal); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EncounterAttempt is one row of an encounter's attempt history.
type EncounterAttempt struct {
	AttemptIndex int32
	StartedAtMs  int64
	EndedAtMs    sql.NullInt64
	Reason       sql.NullString
	BossHP       sql.NullFloat64
	Deaths       int
}

// EncounterAttempts returns an encounter's attempts ordered by index.
func (db *DB) EncounterAttempts(encounterID int64) ([]EncounterAttempt, error) {
	rows, err := db.conn.Query(`
		SELECT attempt_index, started_at_ms, ended_at_ms, reason, boss_hp, deaths
		FROM attempts WHERE encounter_id = ? ORDER BY attempt_index ASC`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EncounterAttempt
	for rows.Next() {
		var a EncounterAttempt
		if err := rows.Scan(&a.AttemptIndex, &a.StartedAtMs, &a.EndedAtMs, &a.Reason, &a.BossHP, &a.Deaths); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ConfigValue reads one app_config row, returning ("", false) if absent.
func (db *DB) ConfigValue(key string) (string, bool, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM app_config WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetConfigValue upserts one app_config row, backing set_boss_only_dps and
// similar persisted-preference commands.
func (db *DB) SetConfigValue(key, value string) error {
	_, err := db.conn.Exec(
		`INSERT INTO app_config(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// QueryRaw executes an arbitrary read-only SQL query and returns the column
// names and all row values as strings, for ad-hoc CLI inspection. NULL
// values are rendered as "NULL".
func (db *DB) QueryRaw(query string) (cols []string, rows [][]string, err error) {
	r, err := db.conn.Query(query)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	cols, err = r.Columns()
	if err != nil {
		return nil, nil, err
	}

	for r.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := r.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			if v == nil {
				row[i] = "NULL"
			} else {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		rows = append(rows, row)
	}
	return cols, rows, r.Err()
}
