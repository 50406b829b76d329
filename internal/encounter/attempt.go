package encounter

import (
	"github.com/resonance-logs/meterd/internal/dbtask"
	"github.com/resonance-logs/meterd/internal/model"
)

// firstBossEntity returns the first boss entity found, matching the
// original's simple "first boss in the map" selection (this system tracks
// a single live boss phase, not a roster).
func (e *Engine) firstBossEntity() (*model.Entity, bool) {
	for _, ent := range e.enc.Entities {
		if ent.Kind == model.KindMonster && ent.IsBoss {
			return ent, true
		}
	}
	return nil, false
}

// bossHPPercent mirrors get_boss_hp_percentage: the first boss's current
// HP as a percentage of max HP, or false if no boss or max_hp is unknown.
func bossHPPercent(ent *model.Entity) (float64, bool) {
	hp, okHP := ent.HP()
	maxHP, okMax := ent.MaxHP()
	if !okHP || !okMax || maxHP <= 0 {
		return 0, false
	}
	return float64(hp) / float64(maxHP) * 100, true
}

// trackPartyMembers implements track_party_member: every PC whose
// team_id matches the local player's own team_id joins party_member_uids
// (used only for wipe detection).
func (e *Engine) trackPartyMembers() {
	local, ok := e.enc.Entities[e.enc.LocalPlayerUID]
	if !ok {
		return
	}
	localTeam, ok := local.Attrs[model.AttrTeamID]
	if !ok {
		return
	}
	localTeamID, _ := localTeam.AsInt()

	for uid, ent := range e.enc.Entities {
		if ent.Kind != model.KindPC {
			continue
		}
		teamVal, ok := ent.Attrs[model.AttrTeamID]
		if !ok {
			continue
		}
		teamID, _ := teamVal.AsInt()
		if teamID == localTeamID {
			e.enc.PartyMemberUIDs[uid] = struct{}{}
		}
	}
}

// checkWipeCondition mirrors check_wipe_condition: every current party
// member has a recorded death.
func (e *Engine) checkWipeCondition() bool {
	if !e.cfg.EnableWipeDetection || len(e.enc.PartyMemberUIDs) == 0 {
		return false
	}
	for uid := range e.enc.PartyMemberUIDs {
		if _, dead := e.enc.LastDeathMs[uid]; !dead {
			return false
		}
	}
	return true
}

// checkHPRollbackCondition mirrors check_hp_rollback_condition, expressed
// in percentage terms per spec.md §4.7.6 (the lowest-hp tracking and
// threshold are both percentages here, clarifying the original Rust
// implementation's absolute-HP-vs-percentage comparison — see DESIGN.md).
func (e *Engine) checkHPRollbackCondition(currentPct float64, haveCurrent bool) bool {
	if !e.cfg.EnableHPRollback || !haveCurrent {
		return false
	}
	return e.enc.LowestBossHP < e.cfg.MinHPDecreasePct && currentPct >= e.cfg.HPRollbackThresholdPct
}

// evaluateAttemptSplits implements §4.7.6: wipe check first, then boss-HP
// rollback tracking and check, each calling splitAttempt on detection.
func (e *Engine) evaluateAttemptSplits(timestampMs uint64) {
	bossHP, haveBossHP := int64(0), false
	boss, haveBoss := e.firstBossEntity()
	if haveBoss {
		bossHP, haveBossHP = boss.HP()
	}

	if e.checkWipeCondition() {
		e.splitAttempt("wipe", timestampMs, bossHP, haveBossHP)
	}

	if haveBoss {
		if currentPct, ok := bossHPPercent(boss); ok {
			e.updateBossHPTracking(currentPct)
			if e.checkHPRollbackCondition(currentPct, ok) {
				e.splitAttempt("hp_rollback", timestampMs, bossHP, haveBossHP)
			}
		}
	}
}

// updateBossHPTracking mirrors update_boss_hp_tracking: tracks the
// minimum observed boss HP percentage.
func (e *Engine) updateBossHPTracking(currentPct float64) {
	if e.enc.LowestBossHP == 0 || currentPct < e.enc.LowestBossHP {
		e.enc.LowestBossHP = currentPct
	}
}

// seedBossHPTracking initializes attempt-start boss HP tracking on the
// encounter's first combat contact.
func (e *Engine) seedBossHPTracking() {
	boss, ok := e.firstBossEntity()
	if !ok {
		return
	}
	if pct, ok := bossHPPercent(boss); ok {
		e.enc.BossHPAtAttemptStart = pct
		e.enc.LowestBossHP = pct
	}
}

// splitAttempt mirrors split_attempt: refuses within the cooldown,
// enqueues EndAttempt/BeginAttempt, and resets split-scoped tracking.
func (e *Engine) splitAttempt(reason string, timestampMs uint64, bossHP int64, haveBossHP bool) {
	if e.enc.LastAttemptSplitMs != 0 {
		diff := int64(timestampMs) - int64(e.enc.LastAttemptSplitMs)
		if diff >= 0 && uint64(diff) < e.cfg.SplitCooldownMs {
			return
		}
	}

	deathsInAttempt := 0
	for _, d := range e.enc.PendingPlayerDeaths {
		if d.TimestampMs >= e.enc.TimeFightStartMs {
			deathsInAttempt++
		}
	}

	// The split-scoped tracking is a percentage like updateBossHPTracking's;
	// the persisted BossHP is the same value as a fraction of max HP.
	pct := float64(0)
	if boss, ok := e.firstBossEntity(); ok && haveBossHP {
		if p, ok := bossHPPercent(boss); ok {
			pct = p
		}
	}
	bossHPVal := pct / 100

	e.enqueue(dbtask.Task{
		Kind:         dbtask.EndAttempt,
		TimestampMs:  timestampMs,
		AttemptIndex: e.enc.CurrentAttemptIndex,
		BossHP:       bossHPVal,
		Deaths:       deathsInAttempt,
		Reason:       reason,
	})

	e.enc.CurrentAttemptIndex++

	e.enqueue(dbtask.Task{
		Kind:         dbtask.BeginAttempt,
		TimestampMs:  timestampMs,
		AttemptIndex: e.enc.CurrentAttemptIndex,
		Reason:       reason,
		BossHP:       bossHPVal,
	})

	e.enc.BossHPAtAttemptStart = pct
	e.enc.LowestBossHP = pct
	e.enc.LastAttemptSplitMs = timestampMs
	e.enc.PendingPlayerDeaths = nil
	e.enc.LastDeathMs = make(map[uint64]uint64)
}
