package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/resonance-logs/meterd/internal/encounter"
	"github.com/resonance-logs/meterd/internal/model"
	"github.com/resonance-logs/meterd/internal/wire/payloads"
)

const (
	pcBit      = 0x1
	monsterBit = 0x2
)

func pcUUID(uid uint64) uint64      { return uid<<16 | pcBit }
func monsterUUID(uid uint64) uint64 { return uid<<16 | monsterBit }

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

func drain(t *testing.T, f *Feed) []LiveEvent {
	t.Helper()
	var out []LiveEvent
	for {
		select {
		case ev := <-f.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestFeedOnDamageEmitsImmediately(t *testing.T) {
	e := encounter.New(encounter.DefaultAttemptConfig(), nil, nil, nil)
	f := NewFeed(e, nil, nil)

	rec := payloads.DamageInfo{
		Value: 500, HasValue: true,
		AttackerUUID: pcUUID(1), HasAttackerUUID: true,
		OwnerID: 42, HasOwnerID: true,
	}
	e.Handle(encounter.Event{
		Kind: encounter.EventSyncToMeDeltaInfo, TimestampMs: 1000,
		SyncToMeDeltaInfo: damageDelta(monsterUUID(2), rec),
	})

	events := drain(t, f)
	require.NotEmpty(t, events)
	assert.Equal(t, EventNewDamage, events[0].Type)
	data, ok := events[0].Data.(DamageUpdateData)
	require.True(t, ok)
	assert.Equal(t, uint64(1), data.PlayerUID)
	assert.Equal(t, uint64(500), data.DamageAmount)
}

func TestFeedOnPauseEmitsPauseAndResume(t *testing.T) {
	e := encounter.New(encounter.DefaultAttemptConfig(), nil, nil, nil)
	f := NewFeed(e, nil, nil)

	e.Handle(encounter.Event{Kind: encounter.EventPauseEncounter, Pause: true})
	e.Handle(encounter.Event{Kind: encounter.EventPauseEncounter, Pause: false})

	events := drain(t, f)
	require.Len(t, events, 2)
	assert.Equal(t, EventEncounterPause, events[0].Type)
	assert.Equal(t, EventEncounterResume, events[1].Type)
}

func TestFeedSubscribeTracksSkillUpdatesOnTick(t *testing.T) {
	e := encounter.New(encounter.DefaultAttemptConfig(), nil, nil, nil)
	f := NewFeed(e, nil, nil)

	rec := payloads.DamageInfo{
		Value: 500, HasValue: true,
		AttackerUUID: pcUUID(1), HasAttackerUUID: true,
		OwnerID: 42, HasOwnerID: true,
	}
	e.Handle(encounter.Event{
		Kind: encounter.EventSyncToMeDeltaInfo, TimestampMs: 1000,
		SyncToMeDeltaInfo: damageDelta(monsterUUID(2), rec),
	})
	drain(t, f) // discard the per-hit NewDamage event

	f.Subscribe(model.RoleDPS, 1)
	f.tick()

	events := drain(t, f)
	var sawSkillUpdate, sawEncounterUpdate bool
	for _, ev := range events {
		switch ev.Type {
		case EventSkillUpdate:
			sawSkillUpdate = true
			data := ev.Data.(SkillUpdateData)
			assert.Equal(t, uint64(1), data.PlayerUID)
			require.Len(t, data.SkillRows, 1)
			assert.Equal(t, uint64(500), data.SkillRows[0].TotalDmg)
		case EventEncounterUpdate:
			sawEncounterUpdate = true
		}
	}
	assert.True(t, sawSkillUpdate)
	assert.True(t, sawEncounterUpdate)

	f.Unsubscribe(model.RoleDPS, 1)
	f.tick()
	drainAfterUnsub := drain(t, f)
	for _, ev := range drainAfterUnsub {
		assert.NotEqual(t, EventSkillUpdate, ev.Type)
	}
}

func TestFeedSetUpdateRateAdjustsLimiter(t *testing.T) {
	e := encounter.New(encounter.DefaultAttemptConfig(), nil, nil, nil)
	f := NewFeed(e, nil, nil)
	f.SetUpdateRate(10 * time.Millisecond)
	assert.Equal(t, rate.Every(10*time.Millisecond), f.limiter.Limit())
}
