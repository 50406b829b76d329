package encounter

import "github.com/resonance-logs/meterd/internal/model"

// handleServerChange implements §4.7.2: preserve entity identities and
// local_player_uid; zero all combat counters and per-skill maps; clear
// timestamps, pending-death structures, attempt/phase tracking; remove
// stale HP attributes from monsters so HP does not bleed across a new
// encounter before the first fresh attribute packet arrives.
func (e *Engine) handleServerChange(_ uint64) {
	for _, ent := range e.enc.Entities {
		ent.ResetCombat()
		if ent.Kind == model.KindMonster {
			delete(ent.Attrs, model.AttrHP)
			delete(ent.Attrs, model.AttrMaxHP)
		}
	}

	e.enc.TimeFightStartMs = 0
	e.enc.TimeLastCombatPacketMs = 0
	e.enc.TotalDmg = 0
	e.enc.TotalDmgBossOnly = 0
	e.enc.TotalHeal = 0

	e.enc.PartyMemberUIDs = make(map[uint64]struct{})
	e.enc.LastDeathMs = make(map[uint64]uint64)
	e.enc.PendingPlayerDeaths = nil

	e.enc.CurrentAttemptIndex = 0
	e.enc.BossHPAtAttemptStart = 0
	e.enc.LowestBossHP = 0
	e.enc.LastAttemptSplitMs = 0

	e.enc.CurrentPhase = model.PhaseNone
	e.enc.PhaseStartMs = 0
	e.enc.EngagedBossUIDs = make(map[uint64]struct{})
	e.enc.DeadBossUIDs = make(map[uint64]struct{})
	e.enc.TimerFrozen = false
}
