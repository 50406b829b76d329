package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/resonance-logs/meterd/internal/dbtask"
)

func openMemDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenSeedsAppConfig(t *testing.T) {
	db := openMemDB(t)

	v, ok, err := db.ConfigValue("boss_only_dps")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "false", v)
}

func TestSetConfigValueUpserts(t *testing.T) {
	db := openMemDB(t)

	require.NoError(t, db.SetConfigValue("boss_only_dps", "true"))
	v, ok, err := db.ConfigValue("boss_only_dps")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "true", v)

	require.NoError(t, db.SetConfigValue("boss_only_dps", "false"))
	v, _, _ = db.ConfigValue("boss_only_dps")
	require.Equal(t, "false", v)
}

// runTasks drives a Writer directly through handle, bypassing Run's channel
// loop, so a test can assert on intermediate state deterministically.
func runTasks(t *testing.T, w *Writer, tasks ...dbtask.Task) {
	t.Helper()
	for _, task := range tasks {
		require.NoError(t, w.handle(task))
	}
}

func TestWriterBeginEndEncounter(t *testing.T) {
	db := openMemDB(t)
	w := NewWriter(db, nil, nil)

	runTasks(t, w,
		dbtask.Task{Kind: dbtask.BeginEncounter, TimestampMs: 1000, ActorUID: 42},
		dbtask.Task{Kind: dbtask.EndEncounter, TimestampMs: 6000},
	)

	encs, err := db.RecentEncounters(10)
	require.NoError(t, err)
	require.Len(t, encs, 1)
	require.Equal(t, int64(1000), encs[0].StartedAtMs)
	require.True(t, encs[0].EndedAtMs.Valid)
	require.Equal(t, int64(6000), encs[0].EndedAtMs.Int64)
	require.Equal(t, int64(5000), encs[0].DurationMs.Int64)
}

func TestEncounterByID(t *testing.T) {
	db := openMemDB(t)
	w := NewWriter(db, nil, nil)

	runTasks(t, w,
		dbtask.Task{Kind: dbtask.BeginEncounter, TimestampMs: 1000, ActorUID: 42},
		dbtask.Task{Kind: dbtask.EndEncounter, TimestampMs: 6000},
	)
	encs, err := db.RecentEncounters(1)
	require.NoError(t, err)
	require.Len(t, encs, 1)

	got, err := db.EncounterByID(encs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, encs[0], *got)

	missing, err := db.EncounterByID(encs[0].ID + 1000)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestWriterUpsertEntityInsertThenUpdate(t *testing.T) {
	db := openMemDB(t)
	w := NewWriter(db, nil, nil)

	runTasks(t, w,
		dbtask.Task{Kind: dbtask.UpsertEntity, ActorUID: 7, Name: "Tank", ClassID: 3, IsPlayer: true, TimestampMs: 100},
		dbtask.Task{Kind: dbtask.UpsertEntity, ActorUID: 7, Name: "Tank Renamed", ClassID: 3, IsPlayer: true, TimestampMs: 200},
	)

	var name, entityType string
	var isPlayer int
	err := db.conn.QueryRow(`SELECT name, entity_type, is_player FROM entities WHERE entity_id = ?`, 7).
		Scan(&name, &entityType, &isPlayer)
	require.NoError(t, err)
	require.Equal(t, "Tank Renamed", name)
	require.Equal(t, "pc", entityType)
	require.Equal(t, 1, isPlayer)
}

func TestWriterUpsertEntityMonster(t *testing.T) {
	db := openMemDB(t)
	w := NewWriter(db, nil, nil)

	runTasks(t, w, dbtask.Task{Kind: dbtask.UpsertEntity, ActorUID: 900, Name: "Dread Serpent", IsBoss: true, IsPlayer: false, TimestampMs: 50})

	var entityType string
	var isPlayer int
	err := db.conn.QueryRow(`SELECT entity_type, is_player FROM entities WHERE entity_id = ?`, 900).
		Scan(&entityType, &isPlayer)
	require.NoError(t, err)
	require.Equal(t, "monster", entityType)
	require.Equal(t, 0, isPlayer)
}

func TestWriterDamageEventFoldsStatsAndRespectsFriendlyFire(t *testing.T) {
	db := openMemDB(t)
	w := NewWriter(db, nil, nil)

	runTasks(t, w, dbtask.Task{Kind: dbtask.BeginEncounter, TimestampMs: 0})

	// PC attacker (uid 1) hits a boss (uid 900): dealt credited to the
	// attacker, taken NOT credited to the boss. CreditTaken models
	// "attacker wasn't a PC", so the engine sends false for any PC hit.
	runTasks(t, w, dbtask.Task{
		Kind: dbtask.InsertDamageEvent, TimestampMs: 10,
		ActorUID: 1, DefenderUID: 900, Value: 500, DefenderIsBoss: true, CreditTaken: false,
	})
	// Monster attacker (uid 900) hits a PC (uid 2): taken credited.
	runTasks(t, w, dbtask.Task{
		Kind: dbtask.InsertDamageEvent, TimestampMs: 20,
		ActorUID: 900, DefenderUID: 2, Value: 80, CreditTaken: true,
	})
	// PC attacker (uid 1) hits another PC (uid 2) — friendly fire, taken
	// must NOT be credited.
	runTasks(t, w, dbtask.Task{
		Kind: dbtask.InsertDamageEvent, TimestampMs: 30,
		ActorUID: 1, DefenderUID: 2, Value: 999, CreditTaken: false,
	})

	stats, err := db.EncounterActorStats(1)
	require.NoError(t, err)

	byActor := map[int64]ActorStats{}
	for _, s := range stats {
		byActor[s.ActorID] = s
	}

	require.Equal(t, int64(500), byActor[1].DamageDealt)
	require.Equal(t, int64(500), byActor[1].DamageDealtBoss)
	require.Equal(t, int64(80), byActor[900].DamageDealt)

	// Actor 2's taken total must be 80 (from the monster), never 999+80 —
	// the friendly-fire hit from actor 1 must not appear here.
	require.Equal(t, int64(80), byActor[2].DamageTaken)
	require.Equal(t, int64(0), byActor[900].DamageTaken)
}

func TestWriterHealEventFoldsStats(t *testing.T) {
	db := openMemDB(t)
	w := NewWriter(db, nil, nil)

	runTasks(t, w,
		dbtask.Task{Kind: dbtask.BeginEncounter, TimestampMs: 0},
		dbtask.Task{Kind: dbtask.InsertHealEvent, TimestampMs: 10, ActorUID: 5, DefenderUID: 6, Value: 300, IsCrit: true, HasSkill: true, SkillID: 42},
	)

	stats, err := db.EncounterActorStats(1)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, int64(300), stats[0].HealDealt)
	require.Equal(t, int64(1), stats[0].CritHitsHeal)

	skills, err := db.ActorHealSkills(1, 5)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	require.Equal(t, uint32(42), skills[0].SkillID)
	require.Equal(t, int64(300), skills[0].TotalValue)
}

func TestWriterAttemptLifecycle(t *testing.T) {
	db := openMemDB(t)
	w := NewWriter(db, nil, nil)

	runTasks(t, w,
		dbtask.Task{Kind: dbtask.BeginEncounter, TimestampMs: 0},
		dbtask.Task{Kind: dbtask.BeginAttempt, TimestampMs: 0, AttemptIndex: 1, Reason: "initial"},
		dbtask.Task{Kind: dbtask.EndAttempt, TimestampMs: 5000, AttemptIndex: 1, BossHP: 0.4, Deaths: 2},
		dbtask.Task{Kind: dbtask.BeginAttempt, TimestampMs: 5100, AttemptIndex: 2, Reason: "wipe"},
	)

	attempts, err := db.EncounterAttempts(1)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Equal(t, int32(1), attempts[0].AttemptIndex)
	require.True(t, attempts[0].EndedAtMs.Valid)
	require.Equal(t, 2, attempts[0].Deaths)
	require.Equal(t, int32(2), attempts[1].AttemptIndex)
	require.False(t, attempts[1].EndedAtMs.Valid)
}

func TestWriterRunDrainsChannelUntilCancel(t *testing.T) {
	db := openMemDB(t)
	sink := dbtask.NewChanSink(4)
	w := NewWriter(db, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	sink.Enqueue(dbtask.Task{Kind: dbtask.BeginEncounter, TimestampMs: 1})
	sink.Enqueue(dbtask.Task{Kind: dbtask.UpsertEntity, ActorUID: 1, Name: "Solo", IsPlayer: true})

	cancel()
	<-done
}
