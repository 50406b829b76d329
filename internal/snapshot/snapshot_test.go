package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resonance-logs/meterd/internal/model"
)

func newTestEncounter() *model.Encounter {
	enc := model.NewEncounter()
	enc.TimeFightStartMs = 1000
	enc.TimeLastCombatPacketMs = 11000 // 10s elapsed
	return enc
}

func pc(enc *model.Encounter, uid uint64, name string) *model.Entity {
	ent := enc.GetOrCreateEntity(uid, model.KindPC)
	ent.Name = name
	return ent
}

func TestBuildHeaderInfoNilBeforeAnyDamage(t *testing.T) {
	enc := newTestEncounter()
	require.Nil(t, BuildHeaderInfo(enc))
}

func TestBuildHeaderInfoComputesTotalDPS(t *testing.T) {
	enc := newTestEncounter()
	enc.TotalDmg = 1000

	h := BuildHeaderInfo(enc)
	require.NotNil(t, h)
	assert.Equal(t, uint64(1000), h.TotalDmg)
	assert.InDelta(t, 100.0, h.TotalDPS, 0.001) // 1000 dmg / 10s elapsed
}

func TestBuildHeaderInfoListsEngagedBosses(t *testing.T) {
	enc := newTestEncounter()
	enc.TotalDmg = 1
	boss := enc.GetOrCreateEntity(900, model.KindMonster)
	boss.Name = "Dread Serpent"
	boss.IsBoss = true
	boss.Attrs[model.AttrHP] = model.IntAttr(4000)
	boss.Attrs[model.AttrMaxHP] = model.IntAttr(10000)
	enc.EngagedBossUIDs[900] = struct{}{}

	h := BuildHeaderInfo(enc)
	require.NotNil(t, h)
	require.Len(t, h.Bosses, 1)
	assert.Equal(t, uint64(900), h.Bosses[0].UID)
	assert.Equal(t, "Dread Serpent", h.Bosses[0].Name)
	require.NotNil(t, h.Bosses[0].Current)
	assert.Equal(t, int64(4000), *h.Bosses[0].Current)
}

func TestBuildPlayersWindowRanksByDamageAndSkipsZeroHitters(t *testing.T) {
	enc := newTestEncounter()
	enc.TotalDmg = 800

	hero := pc(enc, 1, "Hero")
	hero.Counters.Dealt.Add(500, true, false)

	support := pc(enc, 2, "Support")
	support.Counters.Dealt.Add(300, false, true)

	bystander := pc(enc, 3, "Bystander") // never hit anything

	win := BuildPlayersWindow(enc, model.RoleDPS)
	require.Len(t, win.PlayerRows, 2)
	assert.Equal(t, uint64(1), win.PlayerRows[0].UID)
	assert.Equal(t, uint64(500), win.PlayerRows[0].TotalDmg)
	assert.InDelta(t, 62.5, win.PlayerRows[0].DmgPct, 0.01)
	assert.Equal(t, uint64(2), win.PlayerRows[1].UID)
	_ = bystander
}

func TestBuildPlayersWindowPrettifiesLocalPlayerName(t *testing.T) {
	enc := newTestEncounter()
	enc.TotalDmg = 100
	enc.LocalPlayerUID = 1

	hero := pc(enc, 1, "Hero")
	hero.Counters.Dealt.Add(100, false, false)

	win := BuildPlayersWindow(enc, model.RoleDPS)
	require.Len(t, win.PlayerRows, 1)
	assert.Equal(t, "Hero (You)", win.PlayerRows[0].Name)
}

func TestBuildSkillsWindowSortsBySkillDamageDescending(t *testing.T) {
	enc := newTestEncounter()
	enc.TotalDmg = 900

	hero := pc(enc, 1, "Hero")
	hero.Counters.Dealt.Add(900, false, false)
	hero.SkillDealt[100] = &model.SkillCounter{TotalValue: 300, Hits: 1}
	hero.SkillDealt[200] = &model.SkillCounter{TotalValue: 600, Hits: 2}

	win := BuildSkillsWindow(enc, 1, model.RoleDPS, nil)
	require.Len(t, win.SkillRows, 2)
	assert.Equal(t, uint64(600), win.SkillRows[0].TotalDmg)
	assert.Equal(t, uint64(300), win.SkillRows[1].TotalDmg)
	require.Len(t, win.CurrPlayer, 1)
	assert.Equal(t, uint64(1), win.CurrPlayer[0].UID)
}

func TestBuildSkillsWindowUnknownActorReturnsEmpty(t *testing.T) {
	enc := newTestEncounter()
	win := BuildSkillsWindow(enc, 999, model.RoleDPS, nil)
	assert.Empty(t, win.CurrPlayer)
	assert.Empty(t, win.SkillRows)
}
