// Package encounter is the combat state machine (C7): the heart of the
// system. A single Engine owns one live model.Encounter and is driven by
// a single cooperative consumer goroutine feeding it decoded payloads —
// a writer lock is taken per event (§4.7, §5), so concurrent callers
// (the command surface included) never observe a half-applied event.
package encounter

import (
	"sync"

	"go.uber.org/zap"

	"github.com/resonance-logs/meterd/internal/dbtask"
	"github.com/resonance-logs/meterd/internal/model"
	"github.com/resonance-logs/meterd/internal/refdata"
	"github.com/resonance-logs/meterd/internal/telemetry"
)

// Engine wraps the live model.Encounter with the event-ingest contract,
// attempt/phase detection, and the persistence-task sink.
type Engine struct {
	mu sync.RWMutex

	enc      *model.Encounter
	cfg      AttemptConfig
	tables   *refdata.Tables
	sink     dbtask.Sink
	log      *zap.Logger
	observer Observer
}

// New constructs an Engine with a freshly-reset encounter scope. tables
// and sink may be nil in tests: a nil tables skips the reference-table
// name and boss lookups, and a nil sink is replaced by dbtask.NopSink,
// which accepts and discards every task.
func New(cfg AttemptConfig, tables *refdata.Tables, sink dbtask.Sink, log *zap.Logger) *Engine {
	if sink == nil {
		sink = dbtask.NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		enc:      model.NewEncounter(),
		cfg:      cfg,
		tables:   tables,
		sink:     sink,
		log:      log,
		observer: noopObserver{},
	}
}

// Snapshot returns a shallow clone of the live encounter suitable for
// read-only derivation (C9 reads from this, never from the live struct).
// Entities are not deep-copied; callers must not mutate returned entities.
func (e *Engine) Snapshot() *model.Encounter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	clone := *e.enc
	return &clone
}

// Handle is the public ingest contract (§4.7.1). While paused, every
// sync-family event is dropped (logged at debug); PauseEncounter and
// ResetEncounter always run.
func (e *Engine) Handle(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.enc.IsPaused && ev.isSyncFamily() {
		e.log.Debug("dropping sync event while paused", zap.Int("kind", int(ev.Kind)))
		return
	}

	switch ev.Kind {
	case EventServerChange:
		e.handleServerChange(ev.TimestampMs)
	case EventSyncNearEntities:
		e.handleSyncNearEntities(ev.SyncNearEntities, ev.TimestampMs)
	case EventSyncContainerData:
		e.handleSyncContainerData(ev.SyncContainerData)
	case EventSyncContainerDirtyData:
		// §4.5: HP arrives via attribute packets, not this path. No-op.
	case EventSyncServerTime:
		// No field of this payload is ever read anywhere in the pipeline;
		// the opcode's occurrence alone carries no state-machine meaning.
	case EventSyncToMeDeltaInfo:
		e.handleSyncToMeDeltaInfo(ev.SyncToMeDeltaInfo, ev.TimestampMs)
	case EventSyncNearDeltaInfo:
		// Same undecoded-opcode situation as SyncServerTime; see
		// internal/wire/payloads package doc.
	case EventPauseEncounter:
		e.enc.IsPaused = ev.Pause
		e.observer.OnPause(ev.Pause)
	case EventResetEncounter:
		e.resetEncounter()
		e.observer.OnReset()
	}
}

// IsPaused reports the live encounter's pause state for command-surface
// handlers that need to compute a toggle.
func (e *Engine) IsPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enc.IsPaused
}

// TogglePause flips the live pause state and notifies the observer,
// implementing spec.md §6.3's toggle_pause_encounter command.
func (e *Engine) TogglePause() bool {
	e.mu.Lock()
	e.enc.IsPaused = !e.enc.IsPaused
	paused := e.enc.IsPaused
	e.mu.Unlock()
	e.observer.OnPause(paused)
	return paused
}

// SetBossOnlyDPS updates the boss-only-DPS view flag, implementing
// spec.md §6.3's set_boss_only_dps command. It is a pure view filter: it
// never touches persisted counters, only which of an entity's parallel
// counter sets (Dealt vs DealtBossOnly) BuildPlayersWindow reads.
func (e *Engine) SetBossOnlyDPS(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enc.BossOnlyDPS = enabled
}

// Reset discards the live encounter scope, implementing spec.md §6.3's
// reset_encounter command.
func (e *Engine) Reset() {
	e.Handle(Event{Kind: EventResetEncounter})
}

// resetEncounter fully discards the live scope, starting a brand new
// encounter with no carried-over identities. Distinct from ServerChange,
// which preserves entity identity across a boundary.
func (e *Engine) resetEncounter() {
	e.enc = model.NewEncounter()
}

// enqueue forwards t to the sink, logging a warn on drop per §4.7.8. In-
// memory aggregates remain authoritative regardless of persistence lag.
func (e *Engine) enqueue(t dbtask.Task) {
	if !e.sink.Enqueue(t) {
		telemetry.DBQueueDroppedTotal.Inc()
		e.log.Warn("db task queue full, dropping task", zap.String("kind", t.Kind.String()))
	}
}
