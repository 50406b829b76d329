package encounter

import (
	"github.com/resonance-logs/meterd/internal/dbtask"
	"github.com/resonance-logs/meterd/internal/model"
)

// evaluatePhaseTransitions implements §4.7.7: a wipe (checked first, since
// it can end any phase outright) takes priority over an ordinary boss
// engagement/death transition.
func (e *Engine) evaluatePhaseTransitions(timestampMs uint64) {
	if e.checkWipeCondition() {
		e.handleWipe(timestampMs)
		return
	}
	if e.checkBossPhaseTransition() {
		e.transitionToBossPhase(timestampMs)
	}
	e.handleBossDeaths(timestampMs)
}

// checkBossPhaseTransition mirrors check_boss_phase_transition: a live
// (non-dead) boss is present and the encounter isn't already in Boss
// phase.
func (e *Engine) checkBossPhaseTransition() bool {
	if e.enc.CurrentPhase == model.PhaseBoss {
		return false
	}
	for uid, ent := range e.enc.Entities {
		if ent.Kind == model.KindMonster && ent.IsBoss {
			if _, dead := e.enc.DeadBossUIDs[uid]; !dead {
				return true
			}
		}
	}
	return false
}

// beginPhase mirrors begin_phase.
func (e *Engine) beginPhase(phase model.Phase, timestampMs uint64) {
	e.enc.CurrentPhase = phase
	e.enc.PhaseStartMs = timestampMs
	e.enqueue(dbtask.Task{Kind: dbtask.BeginPhase, TimestampMs: timestampMs, PhaseName: phase.String()})
}

// endPhase mirrors end_phase.
func (e *Engine) endPhase(outcome string, timestampMs uint64) {
	e.enqueue(dbtask.Task{Kind: dbtask.EndPhase, TimestampMs: timestampMs, PhaseName: e.enc.CurrentPhase.String(), Outcome: outcome})
	e.enc.CurrentPhase = model.PhaseNone
	e.enc.PhaseStartMs = 0
}

// transitionToBossPhase mirrors transition_to_boss_phase: ends a live Mob
// phase as a success, then begins Boss phase and marks every live boss as
// engaged.
func (e *Engine) transitionToBossPhase(timestampMs uint64) {
	if e.enc.CurrentPhase == model.PhaseMob {
		e.endPhase("success", timestampMs)
	}
	e.beginPhase(model.PhaseBoss, timestampMs)
	for uid, ent := range e.enc.Entities {
		if ent.Kind == model.KindMonster && ent.IsBoss {
			if _, dead := e.enc.DeadBossUIDs[uid]; !dead {
				e.enc.EngagedBossUIDs[uid] = struct{}{}
			}
		}
	}
}

// handleBossDeaths mirrors handle_boss_death: only when every
// engaged_boss_uid is also a dead_boss_uid does the Boss phase end and
// the encounter move to Idle. TimerFrozen is the "paused for
// compatibility" flag the original sets alongside the Idle transition
// (see DESIGN.md open question 2: TimerFrozen freezes ElapsedMs without
// dropping packets, distinct from the user-controlled IsPaused).
func (e *Engine) handleBossDeaths(timestampMs uint64) {
	if e.enc.CurrentPhase != model.PhaseBoss || len(e.enc.EngagedBossUIDs) == 0 {
		return
	}
	for uid := range e.enc.EngagedBossUIDs {
		if _, dead := e.enc.DeadBossUIDs[uid]; !dead {
			return
		}
	}

	e.endPhase("success", timestampMs)
	e.beginPhase(model.PhaseIdle, timestampMs)
	e.enc.TimerFrozen = true
}

// handleWipe mirrors handle_wipe: ends whatever phase is currently active
// with outcome "wipe", with no phase-specific special-casing.
func (e *Engine) handleWipe(timestampMs uint64) {
	if e.enc.CurrentPhase == model.PhaseNone {
		return
	}
	e.endPhase("wipe", timestampMs)
}
