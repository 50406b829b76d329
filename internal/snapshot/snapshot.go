// Package snapshot derives the read-only window shapes the command surface
// and WebSocket feed serve (C9): per-actor damage/heal rows, the header
// summary, and per-skill breakdowns, all computed from a single
// encounter.Engine.Snapshot() call so a reader never observes a
// half-updated encounter.
package snapshot

import (
	"sort"

	"github.com/resonance-logs/meterd/internal/encounter"
	"github.com/resonance-logs/meterd/internal/model"
	"github.com/resonance-logs/meterd/internal/refdata"
)

// BossHealth is one boss's current/max HP, reported in HeaderInfo so a
// client can render a boss health bar without a separate round trip.
type BossHealth struct {
	UID     uint64 `json:"uid"`
	Name    string `json:"name"`
	Current *int64 `json:"current_hp,omitempty"`
	Max     *int64 `json:"max_hp,omitempty"`
}

// HeaderInfo is the top-of-window summary: elapsed time, total raid DPS,
// and the set of bosses currently engaged.
type HeaderInfo struct {
	TotalDPS              float64      `json:"total_dps"`
	TotalDmg              uint64       `json:"total_dmg"`
	ElapsedMs             uint64       `json:"elapsed_ms"`
	FightStartTimestampMs uint64       `json:"fight_start_timestamp_ms"`
	Bosses                []BossHealth `json:"bosses"`
	SceneID               *int32       `json:"scene_id,omitempty"`
	SceneName             string       `json:"scene_name,omitempty"`
}

// PlayerRow is one player's damage-meter row within a PlayersWindow.
type PlayerRow struct {
	UID            uint64  `json:"uid"`
	Name           string  `json:"name"`
	ClassName      string  `json:"class_name"`
	ClassSpecName  string  `json:"class_spec_name"`
	AbilityScore   int64   `json:"ability_score"`
	TotalDmg       uint64  `json:"total_dmg"`
	DPS            float64 `json:"dps"`
	DmgPct         float64 `json:"dmg_pct"`
	CritRate       float64 `json:"crit_rate"`
	CritDmgRate    float64 `json:"crit_dmg_rate"`
	LuckyRate      float64 `json:"lucky_rate"`
	LuckyDmgRate   float64 `json:"lucky_dmg_rate"`
	Hits           uint64  `json:"hits"`
	HitsPerMinute  float64 `json:"hits_per_minute"`
	CurrentHP      *int64  `json:"current_hp,omitempty"`
	MaxHP          *int64  `json:"max_hp,omitempty"`
	CritStat       *int64  `json:"crit_stat,omitempty"`
	LuckyStat      *int64  `json:"lucky_stat,omitempty"`
	Haste          *int64  `json:"haste,omitempty"`
	Mastery        *int64  `json:"mastery,omitempty"`
	ElementFlag    *int64  `json:"element_flag,omitempty"`
	EnergyFlag     *int64  `json:"energy_flag,omitempty"`
	ReductionLevel *int64  `json:"reduction_level,omitempty"`
}

// PlayersWindow is the damage/heal/tanked meter: every player who has
// contributed in the given role, ranked by contribution.
type PlayersWindow struct {
	PlayerRows []PlayerRow `json:"player_rows"`
}

// SkillRow is one skill's contribution within a SkillsWindow.
type SkillRow struct {
	Name          string  `json:"name"`
	TotalDmg      uint64  `json:"total_dmg"`
	DPS           float64 `json:"dps"`
	DmgPct        float64 `json:"dmg_pct"`
	CritRate      float64 `json:"crit_rate"`
	CritDmgRate   float64 `json:"crit_dmg_rate"`
	LuckyRate     float64 `json:"lucky_rate"`
	LuckyDmgRate  float64 `json:"lucky_dmg_rate"`
	Hits          uint64  `json:"hits"`
	HitsPerMinute float64 `json:"hits_per_minute"`
}

// SkillsWindow is one actor's skill breakdown for a single role, alongside
// that actor's own PlayerRow for header context (spec.md §6.3
// get_player_skills).
type SkillsWindow struct {
	CurrPlayer []PlayerRow `json:"curr_player"`
	SkillRows  []SkillRow  `json:"skill_rows"`
}

// prettifyName applies the "(You)" convention: the local player renders
// as "You" when its name is still unknown, "<name> (You)" once known, and
// every other entity renders under its plain name.
func prettifyName(uid, localPlayerUID uint64, name string) string {
	if uid != localPlayerUID {
		return name
	}
	if name == "" {
		return "You"
	}
	return name + " (You)"
}

func ptrIfSet(v int64, ok bool) *int64 {
	if !ok {
		return nil
	}
	vv := v
	return &vv
}

func elapsedSeconds(enc *model.Encounter) float64 {
	return float64(enc.ElapsedMs()) / 1000.0
}

// BuildHeaderInfo derives the top-of-window summary. It returns nil once
// encounter.total_dmg is zero, matching generate_header_info's "nothing to
// show yet" convention.
func BuildHeaderInfo(enc *model.Encounter) *HeaderInfo {
	if enc.TotalDmg == 0 {
		return nil
	}
	secs := elapsedSeconds(enc)
	h := &HeaderInfo{
		TotalDPS:              model.Nanzero(float64(enc.TotalDmg) / secs),
		TotalDmg:              enc.TotalDmg,
		ElapsedMs:             enc.ElapsedMs(),
		FightStartTimestampMs: enc.TimeFightStartMs,
	}
	if enc.CurrentSceneID != 0 {
		id := enc.CurrentSceneID
		h.SceneID = &id
		h.SceneName = enc.CurrentSceneName
	}
	for uid := range enc.EngagedBossUIDs {
		ent, ok := enc.Entities[uid]
		if !ok {
			continue
		}
		bh := BossHealth{UID: uid, Name: ent.Name}
		if hp, ok := ent.HP(); ok {
			bh.Current = ptrIfSet(hp, true)
		}
		if max, ok := ent.MaxHP(); ok {
			bh.Max = ptrIfSet(max, true)
		}
		h.Bosses = append(h.Bosses, bh)
	}
	sort.Slice(h.Bosses, func(i, j int) bool { return h.Bosses[i].UID < h.Bosses[j].UID })
	return h
}

// attrInt reads an optional int attribute off an entity, returning a
// pointer only when the attribute has actually been observed.
func attrInt(ent *model.Entity, key model.AttrKey) *int64 {
	v, ok := ent.Attrs[key]
	if !ok {
		return nil
	}
	i, _ := v.AsInt()
	return &i
}

func buildPlayerRow(uid uint64, ent *model.Entity, enc *model.Encounter, role model.Role) *PlayerRow {
	var counters model.CombatCounters
	var totalForPct uint64
	switch role {
	case model.RoleHeal:
		counters = ent.Counters.Heal
		totalForPct = enc.TotalHeal
	case model.RoleTanked:
		counters = ent.Counters.Taken
		totalForPct = enc.TotalDmg
	default:
		if enc.BossOnlyDPS {
			counters = ent.DealtBossOnly
			totalForPct = enc.TotalDmgBossOnly
		} else {
			counters = ent.Counters.Dealt
			totalForPct = enc.TotalDmg
		}
	}
	if counters.Hits == 0 {
		return nil
	}

	secs := elapsedSeconds(enc)
	row := &PlayerRow{
		UID:           uid,
		Name:          prettifyName(uid, enc.LocalPlayerUID, ent.Name),
		ClassName:     encounter.ClassName(ent.ClassID),
		ClassSpecName: encounter.ClassSpecName(ent.ClassSpec),
		AbilityScore:  ent.AbilityScore,
		TotalDmg:      counters.TotalValue,
		DPS:           model.Nanzero(float64(counters.TotalValue) / secs),
		DmgPct:        model.Nanzero(float64(counters.TotalValue) / float64(totalForPct) * 100),
		CritRate:      model.Nanzero(float64(counters.CritHits) / float64(counters.Hits) * 100),
		CritDmgRate:   model.Nanzero(float64(counters.CritTotal) / float64(counters.TotalValue) * 100),
		LuckyRate:     model.Nanzero(float64(counters.LuckyHits) / float64(counters.Hits) * 100),
		LuckyDmgRate:  model.Nanzero(float64(counters.LuckyTotal) / float64(counters.TotalValue) * 100),
		Hits:          counters.Hits,
		HitsPerMinute: model.Nanzero(float64(counters.Hits) / secs * 60),

		CritStat:       attrInt(ent, model.AttrCritStat),
		LuckyStat:      attrInt(ent, model.AttrLuckyStat),
		Haste:          attrInt(ent, model.AttrHaste),
		Mastery:        attrInt(ent, model.AttrMastery),
		ElementFlag:    attrInt(ent, model.AttrElementFlag),
		EnergyFlag:     attrInt(ent, model.AttrEnergyFlag),
		ReductionLevel: attrInt(ent, model.AttrReductionLevel),
	}
	if hp, ok := ent.HP(); ok {
		row.CurrentHP = ptrIfSet(hp, true)
	}
	if max, ok := ent.MaxHP(); ok {
		row.MaxHP = ptrIfSet(max, true)
	}
	return row
}

// BuildPlayersWindow derives the ranked damage/heal/tanked meter for
// every PC entity contributing in the given role, sorted by contribution
// descending.
func BuildPlayersWindow(enc *model.Encounter, role model.Role) *PlayersWindow {
	win := &PlayersWindow{}
	for uid, ent := range enc.Entities {
		if ent.Kind != model.KindPC {
			continue
		}
		if row := buildPlayerRow(uid, ent, enc, role); row != nil {
			win.PlayerRows = append(win.PlayerRows, *row)
		}
	}
	sort.Slice(win.PlayerRows, func(i, j int) bool {
		return win.PlayerRows[i].TotalDmg > win.PlayerRows[j].TotalDmg
	})
	return win
}

func skillMapForRole(ent *model.Entity, role model.Role, bossOnly bool) map[uint32]*model.SkillCounter {
	switch role {
	case model.RoleHeal:
		return ent.SkillHeal
	case model.RoleTanked:
		return ent.SkillTaken
	default:
		if bossOnly {
			return ent.SkillDealtBossOnly
		}
		return ent.SkillDealt
	}
}

// BuildSkillsWindow derives one actor's per-skill breakdown for a role,
// alongside that actor's own PlayerRow (generate_skill_rows +
// generate_player_row, combined per spec.md's get_player_skills command).
func BuildSkillsWindow(enc *model.Encounter, uid uint64, role model.Role, tables *refdata.Tables) *SkillsWindow {
	ent, ok := enc.Entities[uid]
	if !ok {
		return &SkillsWindow{}
	}

	win := &SkillsWindow{}
	if row := buildPlayerRow(uid, ent, enc, role); row != nil {
		win.CurrPlayer = append(win.CurrPlayer, *row)
	}

	secs := elapsedSeconds(enc)
	skills := skillMapForRole(ent, role, enc.BossOnlyDPS)
	var totalForPct uint64
	switch role {
	case model.RoleHeal:
		totalForPct = ent.Counters.Heal.TotalValue
	case model.RoleTanked:
		totalForPct = ent.Counters.Taken.TotalValue
	default:
		if enc.BossOnlyDPS {
			totalForPct = ent.DealtBossOnly.TotalValue
		} else {
			totalForPct = ent.Counters.Dealt.TotalValue
		}
	}

	for skillID, c := range skills {
		name := ""
		if tables != nil {
			name = tables.SkillOrUnknown(int32(skillID))
		}
		win.SkillRows = append(win.SkillRows, SkillRow{
			Name:          name,
			TotalDmg:      c.TotalValue,
			DPS:           model.Nanzero(float64(c.TotalValue) / secs),
			DmgPct:        model.Nanzero(float64(c.TotalValue) / float64(totalForPct) * 100),
			CritRate:      model.Nanzero(float64(c.CritHits) / float64(c.Hits) * 100),
			CritDmgRate:   model.Nanzero(float64(c.CritTotal) / float64(c.TotalValue) * 100),
			LuckyRate:     model.Nanzero(float64(c.LuckyHits) / float64(c.Hits) * 100),
			LuckyDmgRate:  model.Nanzero(float64(c.LuckyTotal) / float64(c.TotalValue) * 100),
			Hits:          c.Hits,
			HitsPerMinute: model.Nanzero(float64(c.Hits) / secs * 60),
		})
	}
	sort.Slice(win.SkillRows, func(i, j int) bool { return win.SkillRows[i].TotalDmg > win.SkillRows[j].TotalDmg })
	return win
}
