package encounter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/resonance-logs/meterd/internal/dbtask"
	"github.com/resonance-logs/meterd/internal/model"
	"github.com/resonance-logs/meterd/internal/wire/payloads"
)

const (
	pcBit      = 0x1
	monsterBit = 0x2
)

func pcUUID(uid uint64) uint64      { return uid<<16 | pcBit }
func monsterUUID(uid uint64) uint64 { return uid<<16 | monsterBit }

func varintAttr(id int32, v uint64) payloads.Attr {
	return payloads.Attr{ID: id, HasID: true, RawData: protowire.AppendVarint(nil, v)}
}

func nameAttr(name string) payloads.Attr {
	raw := append([]byte{0x00}, protowire.AppendVarint(nil, uint64(len(name)))...)
	raw = append(raw, []byte(name)...)
	return payloads.Attr{ID: wireAttrName, HasID: true, RawData: raw}
}

func newTestEngine() *Engine {
	return New(DefaultAttemptConfig(), nil, nil, nil)
}

func appearEntity(uuid uint64, attrs ...payloads.Attr) payloads.NearEntity {
	return payloads.NearEntity{UUID: uuid, HasUUID: true, Attrs: attrs, HasAttrs: len(attrs) > 0}
}

func TestAttrIngestionSetsIdentityAndHP(t *testing.T) {
	e := newTestEngine()
	e.Handle(Event{
		Kind:        EventSyncNearEntities,
		TimestampMs: 1000,
		SyncNearEntities: payloads.SyncNearEntities{
			Appear: []payloads.NearEntity{
				appearEntity(pcUUID(42), nameAttr("Hero"), varintAttr(wireAttrCurrentHP, 800), varintAttr(wireAttrMaxHP, 1000)),
			},
		},
	})

	ent := e.enc.Entities[42]
	require.NotNil(t, ent)
	assert.Equal(t, model.KindPC, ent.Kind)
	assert.Equal(t, "Hero", ent.Name)
	hp, ok := ent.HP()
	require.True(t, ok)
	assert.Equal(t, int64(800), hp)
	maxHP, ok := ent.MaxHP()
	require.True(t, ok)
	assert.Equal(t, int64(1000), maxHP)
}

func TestMonsterNameAttrSetsRawAndDisplayName(t *testing.T) {
	e := newTestEngine()
	e.Handle(Event{
		Kind:        EventSyncNearEntities,
		TimestampMs: 1000,
		SyncNearEntities: payloads.SyncNearEntities{
			Appear: []payloads.NearEntity{
				appearEntity(monsterUUID(7), nameAttr("Training Dummy")),
			},
		},
	})
	ent := e.enc.Entities[7]
	require.NotNil(t, ent)
	assert.Equal(t, model.KindMonster, ent.Kind)
	assert.Equal(t, "Training Dummy", ent.RawPacketName)
	assert.Equal(t, "Training Dummy", ent.Name)
}

func damageDelta(targetUUID uint64, rec payloads.DamageInfo) payloads.SyncToMeDeltaInfo {
	return payloads.SyncToMeDeltaInfo{
		UUID:    targetUUID,
		HasUUID: true,
		BaseDelta: payloads.AoiSyncDelta{
			UUID: targetUUID, HasUUID: true,
			Damages: []payloads.DamageInfo{rec}, HasDamages: true,
		},
		HasBaseDelta: true,
	}
}

func TestDamageIngestionAccumulatesCountersAndTotals(t *testing.T) {
	e := newTestEngine()

	rec := payloads.DamageInfo{
		Value: 500, HasValue: true,
		AttackerUUID: pcUUID(1), HasAttackerUUID: true,
		OwnerID: 1714, HasOwnerID: true,
		TypeFlag: 0x01, // crit
	}
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 5000, SyncToMeDeltaInfo: damageDelta(monsterUUID(99), rec)})

	attacker := e.enc.Entities[1]
	require.NotNil(t, attacker)
	assert.Equal(t, uint64(500), attacker.Counters.Dealt.TotalValue)
	assert.Equal(t, uint64(1), attacker.Counters.Dealt.Hits)
	assert.Equal(t, uint64(1), attacker.Counters.Dealt.CritHits)
	assert.Equal(t, uint64(500), attacker.Counters.Dealt.CritTotal)
	assert.Equal(t, uint64(500), e.enc.TotalDmg)

	sk := attacker.SkillDealt[1714]
	require.NotNil(t, sk)
	assert.Equal(t, uint64(500), sk.TotalValue)

	// Inferred class spec from skill id 1714 -> Iaido -> Stormblade.
	assert.Equal(t, int64(classSpecIaido), attacker.ClassSpec)
	assert.Equal(t, int64(classStormblade), attacker.ClassID)

	assert.NotZero(t, e.enc.TimeFightStartMs)
	assert.Equal(t, uint64(5000), e.enc.TimeLastCombatPacketMs)
}

func TestFriendlyFireExcludedFromTakenCounters(t *testing.T) {
	e := newTestEngine()

	rec := payloads.DamageInfo{
		Value: 300, HasValue: true,
		AttackerUUID: pcUUID(1), HasAttackerUUID: true,
		HPLessenValue: 300, HasHPLessenValue: true,
	}
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 1000, SyncToMeDeltaInfo: damageDelta(pcUUID(2), rec)})

	defender := e.enc.Entities[2]
	require.NotNil(t, defender)
	assert.Equal(t, uint64(0), defender.Counters.Taken.TotalValue)
}

func TestNonPCAttackerIncrementsTakenCounters(t *testing.T) {
	e := newTestEngine()

	rec := payloads.DamageInfo{
		Value: 300, HasValue: true,
		AttackerUUID: monsterUUID(9), HasAttackerUUID: true,
	}
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 1000, SyncToMeDeltaInfo: damageDelta(pcUUID(2), rec)})

	defender := e.enc.Entities[2]
	require.NotNil(t, defender)
	assert.Equal(t, uint64(300), defender.Counters.Taken.TotalValue)
}

func TestHealIngestionCreditsHealerRegardlessOfAttackerKind(t *testing.T) {
	e := newTestEngine()

	rec := payloads.DamageInfo{
		Value: 200, HasValue: true,
		AttackerUUID: pcUUID(5), HasAttackerUUID: true,
		Type: damageTypeHeal, HasType: true,
	}
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 1000, SyncToMeDeltaInfo: damageDelta(pcUUID(2), rec)})

	healer := e.enc.Entities[5]
	require.NotNil(t, healer)
	assert.Equal(t, uint64(200), healer.Counters.Heal.TotalValue)
	assert.Equal(t, uint64(200), e.enc.TotalHeal)
}

func TestDeathDedupWithin2000ms(t *testing.T) {
	e := newTestEngine()
	lethal := payloads.DamageInfo{
		Value: 1000, HasValue: true,
		AttackerUUID: pcUUID(1), HasAttackerUUID: true,
		HPLessenValue: 1000, HasHPLessenValue: true,
	}
	e.Handle(Event{Kind: EventSyncNearEntities, TimestampMs: 0, SyncNearEntities: payloads.SyncNearEntities{
		Appear: []payloads.NearEntity{appearEntity(pcUUID(2), varintAttr(wireAttrCurrentHP, 1000), varintAttr(wireAttrMaxHP, 1000))},
	}})

	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 1000, SyncToMeDeltaInfo: damageDelta(pcUUID(2), lethal)})
	require.Len(t, e.enc.LastDeathMs, 1)
	firstDeathTs := e.enc.LastDeathMs[2]

	// A second lethal hit within 2000ms must not re-record the death.
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 1500, SyncToMeDeltaInfo: damageDelta(pcUUID(2), lethal)})
	assert.Equal(t, firstDeathTs, e.enc.LastDeathMs[2])
}

func TestServerChangePreservesIdentityResetsCombat(t *testing.T) {
	e := newTestEngine()
	e.Handle(Event{Kind: EventSyncNearEntities, TimestampMs: 0, SyncNearEntities: payloads.SyncNearEntities{
		Appear: []payloads.NearEntity{appearEntity(pcUUID(1), nameAttr("Hero"))},
	}})
	rec := payloads.DamageInfo{Value: 500, HasValue: true, AttackerUUID: pcUUID(1), HasAttackerUUID: true}
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 1000, SyncToMeDeltaInfo: damageDelta(monsterUUID(9), rec)})
	require.Equal(t, uint64(500), e.enc.Entities[1].Counters.Dealt.TotalValue)

	e.Handle(Event{Kind: EventServerChange, TimestampMs: 2000})

	ent := e.enc.Entities[1]
	require.NotNil(t, ent)
	assert.Equal(t, "Hero", ent.Name)
	assert.Equal(t, uint64(0), ent.Counters.Dealt.TotalValue)
	assert.Equal(t, uint64(0), e.enc.TotalDmg)
	assert.Zero(t, e.enc.TimeFightStartMs)
}

func TestPauseDropsSyncEvents(t *testing.T) {
	e := newTestEngine()
	e.Handle(Event{Kind: EventPauseEncounter, Pause: true})

	rec := payloads.DamageInfo{Value: 500, HasValue: true, AttackerUUID: pcUUID(1), HasAttackerUUID: true}
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 1000, SyncToMeDeltaInfo: damageDelta(monsterUUID(9), rec)})

	assert.Nil(t, e.enc.Entities[1])

	e.Handle(Event{Kind: EventPauseEncounter, Pause: false})
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 2000, SyncToMeDeltaInfo: damageDelta(monsterUUID(9), rec)})
	assert.NotNil(t, e.enc.Entities[1])
}

func TestBossPhaseBeginsAndEndsOnDeath(t *testing.T) {
	e := newTestEngine()
	// First contact establishes a boss entity with HP, and begins Mob phase.
	e.Handle(Event{Kind: EventSyncNearEntities, TimestampMs: 0, SyncNearEntities: payloads.SyncNearEntities{
		Appear: []payloads.NearEntity{appearEntity(monsterUUID(50),
			varintAttr(wireAttrID, 9001), varintAttr(wireAttrCurrentHP, 1000), varintAttr(wireAttrMaxHP, 1000))},
	}})
	boss := e.enc.Entities[50]
	require.NotNil(t, boss)
	boss.IsBoss = true // tables is nil in this test; force boss membership directly.

	rec := payloads.DamageInfo{
		Value: 10, HasValue: true,
		AttackerUUID: pcUUID(1), HasAttackerUUID: true,
	}
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 1000, SyncToMeDeltaInfo: damageDelta(monsterUUID(50), rec)})
	assert.Equal(t, model.PhaseBoss, e.enc.CurrentPhase)
	assert.Contains(t, e.enc.EngagedBossUIDs, uint64(50))

	lethal := payloads.DamageInfo{
		Value: 1000, HasValue: true,
		AttackerUUID: pcUUID(1), HasAttackerUUID: true,
		HPLessenValue: 1000, HasHPLessenValue: true,
	}
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 2000, SyncToMeDeltaInfo: damageDelta(monsterUUID(50), lethal)})

	assert.Contains(t, e.enc.DeadBossUIDs, uint64(50))
	assert.Equal(t, model.PhaseIdle, e.enc.CurrentPhase)
	assert.True(t, e.enc.TimerFrozen)
}

func TestAttemptSplitsOnWipe(t *testing.T) {
	e := newTestEngine()
	e.Handle(Event{Kind: EventSyncNearEntities, TimestampMs: 0, SyncNearEntities: payloads.SyncNearEntities{
		Appear: []payloads.NearEntity{
			appearEntity(pcUUID(1), varintAttr(wireAttrTeamID, 1), varintAttr(wireAttrCurrentHP, 1000), varintAttr(wireAttrMaxHP, 1000)),
			appearEntity(pcUUID(2), varintAttr(wireAttrTeamID, 1), varintAttr(wireAttrCurrentHP, 1000), varintAttr(wireAttrMaxHP, 1000)),
		},
	}})
	e.enc.LocalPlayerUID = 1
	e.Handle(Event{Kind: EventSyncNearEntities, TimestampMs: 0, SyncNearEntities: payloads.SyncNearEntities{
		Appear: []payloads.NearEntity{appearEntity(pcUUID(1), varintAttr(wireAttrTeamID, 1))},
	}})
	require.Contains(t, e.enc.PartyMemberUIDs, uint64(2))

	rec := payloads.DamageInfo{Value: 10, HasValue: true, AttackerUUID: monsterUUID(9), HasAttackerUUID: true}
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 1000, SyncToMeDeltaInfo: damageDelta(pcUUID(1), rec)})

	lethal1 := payloads.DamageInfo{Value: 1000, HasValue: true, AttackerUUID: monsterUUID(9), HasAttackerUUID: true, HPLessenValue: 100000, HasHPLessenValue: true}
	lethal2 := payloads.DamageInfo{Value: 1000, HasValue: true, AttackerUUID: monsterUUID(9), HasAttackerUUID: true, HPLessenValue: 100000, HasHPLessenValue: true}
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 3000, SyncToMeDeltaInfo: damageDelta(pcUUID(1), lethal1)})
	e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 10000, SyncToMeDeltaInfo: damageDelta(pcUUID(2), lethal2)})

	assert.Equal(t, int32(2), e.enc.CurrentAttemptIndex)
}

func TestNopSinkNeverBlocksEngine(t *testing.T) {
	e := New(DefaultAttemptConfig(), nil, dbtask.NopSink{}, nil)
	rec := payloads.DamageInfo{Value: 1, HasValue: true, AttackerUUID: pcUUID(1), HasAttackerUUID: true}
	assert.NotPanics(t, func() {
		e.Handle(Event{Kind: EventSyncToMeDeltaInfo, TimestampMs: 1, SyncToMeDeltaInfo: damageDelta(monsterUUID(9), rec)})
	})
}
