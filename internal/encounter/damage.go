package encounter

import (
	"github.com/resonance-logs/meterd/internal/dbtask"
	"github.com/resonance-logs/meterd/internal/model"
	"github.com/resonance-logs/meterd/internal/wire/payloads"
)

// damageTypeHeal is the EDamageType::Heal discriminant. EDamageType comes
// from the same closed-source blueprotobuf_lib crate as the rest of this
// wire format (see internal/wire/payloads package doc); the source only
// compares sync_damage_info.r#type against EDamageType::Heal as i32
// without ever printing its value. 1 is the conventional second-variant
// value for a two-member protobuf enum whose first (zero) member is the
// default/"Damage" case, and is used here as the best-effort discriminant.
const damageTypeHeal int32 = 1

// deathDedupWindowMs is the per-actor death-record dedup window (§4.7.4
// point 7, grounded on record_death's 2000ms check in opcodes_process.rs).
const deathDedupWindowMs = 2000

// handleSyncToMeDeltaInfo implements §4.7.4: the local player's own delta
// push sets local_player_uid, then delegates to the shared AOI-delta
// ingestion path.
func (e *Engine) handleSyncToMeDeltaInfo(msg payloads.SyncToMeDeltaInfo, timestampMs uint64) {
	if msg.HasUUID {
		e.enc.LocalPlayerUID = model.UIDFromUUID(msg.UUID)
	}
	if msg.HasBaseDelta {
		e.handleAoiSyncDelta(msg.BaseDelta, timestampMs)
	}
}

// handleAoiSyncDelta ingests one entity's attribute deltas and damage/heal
// ticks (§4.7.4), then evaluates attempt/phase transitions and starts the
// fight clock on first contact.
func (e *Engine) handleAoiSyncDelta(delta payloads.AoiSyncDelta, timestampMs uint64) {
	if !delta.HasUUID {
		return
	}
	targetUID := model.UIDFromUUID(delta.UUID)
	targetKind := model.KindFromUUID(delta.UUID)
	target := e.enc.GetOrCreateEntity(targetUID, targetKind)
	target.LastSeenMs = timestampMs

	if delta.HasAttrs {
		e.applyAttrs(target, delta.Attrs)
	}

	hadRecords := false
	for _, rec := range delta.Damages {
		e.applyDamageRecord(target, rec, timestampMs)
		hadRecords = true
	}

	if !hadRecords {
		return
	}

	if e.enc.TimeFightStartMs == 0 {
		e.enc.TimeFightStartMs = timestampMs
		e.enc.CurrentAttemptIndex = 1
		e.enqueue(dbtask.Task{Kind: dbtask.BeginEncounter, TimestampMs: timestampMs})
		e.enqueue(dbtask.Task{Kind: dbtask.BeginAttempt, TimestampMs: timestampMs, AttemptIndex: e.enc.CurrentAttemptIndex, Reason: "initial"})
		e.seedBossHPTracking()
		e.beginPhase(model.PhaseMob, timestampMs)
	}

	e.evaluateAttemptSplits(timestampMs)
	e.evaluatePhaseTransitions(timestampMs)
	e.enc.TimeLastCombatPacketMs = timestampMs
}

// applyDamageRecord implements the per-record processing rules of §4.7.4.
func (e *Engine) applyDamageRecord(target *model.Entity, rec payloads.DamageInfo, timestampMs uint64) {
	actualValue, ok := actualDamageValue(rec)
	if !ok {
		return
	}

	attackerUUID := rec.AttackerUUID
	if rec.HasTopSummonerID && rec.TopSummonerID != 0 {
		attackerUUID = rec.TopSummonerID
	}
	attackerUID := model.UIDFromUUID(attackerUUID)
	attackerKind := model.KindFromUUID(attackerUUID)
	attacker := e.enc.GetOrCreateEntity(attackerUID, attackerKind)

	isCrit := rec.TypeFlag&0x01 != 0
	isLucky := rec.HasLuckyValue

	var skillID uint32
	hasSkill := rec.HasOwnerID
	if hasSkill {
		skillID = uint32(rec.OwnerID)
		if attacker.ClassSpec == 0 {
			inferClassSpec(attacker, int32(skillID))
		}
	}

	isHeal := rec.HasType && rec.Type == damageTypeHeal
	if isHeal {
		e.applyHeal(attacker, target, uint64(actualValue), isCrit, isLucky, skillID, hasSkill, timestampMs)
		return
	}
	e.applyDamage(attacker, target, attackerKind, rec, uint64(actualValue), isCrit, isLucky, skillID, hasSkill, timestampMs)
}

// actualDamageValue computes actual_value = value ?? lucky_value, or
// reports false when neither is present (§4.7.4 point 1).
func actualDamageValue(rec payloads.DamageInfo) (int64, bool) {
	if rec.HasValue {
		return rec.Value, true
	}
	if rec.HasLuckyValue {
		return rec.LuckyValue, true
	}
	return 0, false
}

func (e *Engine) applyHeal(attacker, target *model.Entity, value uint64, isCrit, isLucky bool, skillID uint32, hasSkill bool, timestampMs uint64) {
	attacker.Counters.Heal.Add(value, isCrit, isLucky)
	if hasSkill {
		sk := skillCounterFor(attacker.SkillHeal, skillID)
		sk.Add(value, isCrit, isLucky)
	}
	e.enc.TotalHeal += value

	e.enqueue(dbtask.Task{
		Kind:        dbtask.InsertHealEvent,
		TimestampMs: timestampMs,
		ActorUID:    attacker.UID,
		DefenderUID: target.UID,
		SkillID:     skillID,
		HasSkill:    hasSkill,
		Value:       value,
		IsCrit:      isCrit,
		IsLucky:     isLucky,
	})
	e.observer.OnHeal(attacker.UID, target.UID, skillID, hasSkill, value, isCrit, isLucky)
}

func (e *Engine) applyDamage(attacker, target *model.Entity, attackerKind model.EntityKind, rec payloads.DamageInfo, value uint64, isCrit, isLucky bool, skillID uint32, hasSkill bool, timestampMs uint64) {
	attacker.Counters.Dealt.Add(value, isCrit, isLucky)
	if hasSkill {
		skillCounterFor(attacker.SkillDealt, skillID).Add(value, isCrit, isLucky)
	}

	defenderIsBoss := target.IsBoss
	if defenderIsBoss {
		attacker.DealtBossOnly.Add(value, isCrit, isLucky)
		if hasSkill {
			skillCounterFor(attacker.SkillDealtBossOnly, skillID).Add(value, isCrit, isLucky)
		}
	}

	attacker.TargetDealt[target.UID] += value
	if hasSkill {
		byTarget, ok := attacker.SkillTargetDealt[skillID]
		if !ok {
			byTarget = make(map[uint64]uint64)
			attacker.SkillTargetDealt[skillID] = byTarget
		}
		byTarget[target.UID] += value
	}

	e.enc.TotalDmg += value
	if defenderIsBoss {
		e.enc.TotalDmgBossOnly += value
	}

	effectiveValue := effectiveDamageValue(rec, value)

	e.enqueue(dbtask.Task{
		Kind:           dbtask.InsertDamageEvent,
		TimestampMs:    timestampMs,
		ActorUID:       attacker.UID,
		DefenderUID:    target.UID,
		SkillID:        skillID,
		HasSkill:       hasSkill,
		Value:          effectiveValue,
		IsCrit:         isCrit,
		IsLucky:        isLucky,
		DefenderIsBoss: defenderIsBoss,
		CreditTaken:    attackerKind != model.KindPC,
	})

	// Friendly-fire exclusion: a PC attacker never increments the
	// defender's taken counters (§4.7.4 point 6, invariant in §3).
	if attackerKind != model.KindPC {
		target.Counters.Taken.Add(effectiveValue, isCrit, isLucky)
		if hasSkill {
			skillCounterFor(target.SkillTaken, skillID).Add(effectiveValue, isCrit, isLucky)
		}
	}

	e.observer.OnDamage(attacker.UID, target.UID, skillID, hasSkill, effectiveValue, isCrit, isLucky)

	e.detectDeath(target, attacker, rec, skillID, hasSkill, timestampMs)
}

// effectiveDamageValue implements §4.7.4 point 6: the persisted damage
// event uses hp_loss+shield_loss when either is positive, falling back to
// the raw actual_value otherwise (e.g. a pure-mitigation tick).
func effectiveDamageValue(rec payloads.DamageInfo, actualValue uint64) uint64 {
	hpLoss := rec.HPLessenValue
	shieldLoss := rec.ShieldLessenValue
	total := hpLoss + shieldLoss
	if total > 0 {
		return uint64(total)
	}
	return actualValue
}

// detectDeath implements §4.7.4 point 7: a known current hp dropping to
// or below zero, or (absent known hp) hp+shield loss meeting max hp,
// records a death, deduped per actor within a 2s window.
func (e *Engine) detectDeath(target, attacker *model.Entity, rec payloads.DamageInfo, skillID uint32, hasSkill bool, timestampMs uint64) {
	hpLoss := rec.HPLessenValue
	shieldLoss := rec.ShieldLessenValue

	died := false
	if hp, ok := target.HP(); ok {
		died = hpLoss >= hp
	} else if maxHP, ok := target.MaxHP(); ok && maxHP > 0 {
		died = hpLoss+shieldLoss >= maxHP
	}
	if !died {
		return
	}

	if last, ok := e.enc.LastDeathMs[target.UID]; ok {
		diff := int64(timestampMs) - int64(last)
		if diff < 0 {
			diff = -diff
		}
		if diff <= deathDedupWindowMs {
			return
		}
	}
	e.enc.LastDeathMs[target.UID] = timestampMs

	if target.Kind == model.KindMonster && target.IsBoss {
		e.enc.DeadBossUIDs[target.UID] = struct{}{}
	}
	if _, isParty := e.enc.PartyMemberUIDs[target.UID]; isParty {
		e.enc.PendingPlayerDeaths = append(e.enc.PendingPlayerDeaths, model.PendingDeath{
			ActorUID:    target.UID,
			KillerUID:   attacker.UID,
			HasKiller:   true,
			SkillID:     skillID,
			HasSkill:    hasSkill,
			TimestampMs: timestampMs,
		})
	}

	e.enqueue(dbtask.Task{
		Kind:        dbtask.InsertDeathEvent,
		TimestampMs: timestampMs,
		ActorUID:    target.UID,
		KillerUID:   attacker.UID,
		HasKiller:   true,
		SkillID:     skillID,
		HasSkill:    hasSkill,
	})
}

func skillCounterFor(m map[uint32]*model.SkillCounter, skillID uint32) *model.SkillCounter {
	sc, ok := m[skillID]
	if !ok {
		sc = &model.SkillCounter{}
		m[skillID] = sc
	}
	return sc
}
