package encounter

// Observer receives immediate, unthrottled notifications of ingested
// combat events and pause/reset transitions, independent of the persisted
// dbtask.Sink path and of any polled snapshot. The WebSocket feed (C9)
// uses this to push per-hit events without waiting for its next tick.
type Observer interface {
	OnDamage(attackerUID, defenderUID uint64, skillID uint32, hasSkill bool, value uint64, isCrit, isLucky bool)
	OnHeal(attackerUID, defenderUID uint64, skillID uint32, hasSkill bool, value uint64, isCrit, isLucky bool)
	OnReset()
	OnPause(paused bool)
}

type noopObserver struct{}

func (noopObserver) OnDamage(uint64, uint64, uint32, bool, uint64, bool, bool) {}
func (noopObserver) OnHeal(uint64, uint64, uint32, bool, uint64, bool, bool)   {}
func (noopObserver) OnReset()                                                 {}
func (noopObserver) OnPause(bool)                                             {}

// SetObserver installs o as the Engine's event observer, replacing any
// previous one. Passing nil restores the no-op default.
func (e *Engine) SetObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o == nil {
		o = noopObserver{}
	}
	e.observer = o
}
