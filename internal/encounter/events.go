package encounter

import "github.com/resonance-logs/meterd/internal/wire/payloads"

// EventKind tags the ingest union accepted by Engine.Handle (§4.7.1).
type EventKind int

const (
	EventServerChange EventKind = iota
	EventSyncNearEntities
	EventSyncContainerData
	EventSyncContainerDirtyData
	EventSyncServerTime
	EventSyncToMeDeltaInfo
	EventSyncNearDeltaInfo
	EventPauseEncounter
	EventResetEncounter
)

// Event is the tagged union the encounter engine ingests. Only the field
// matching Kind is populated.
type Event struct {
	Kind EventKind

	TimestampMs uint64

	SyncNearEntities payloads.SyncNearEntities
	SyncContainerData payloads.SyncContainerData
	SyncToMeDeltaInfo payloads.SyncToMeDeltaInfo

	Pause bool
}

// isSyncFamily reports whether this event is dropped while the encounter
// is paused (everything except PauseEncounter/ResetEncounter, per §4.7.1).
func (e Event) isSyncFamily() bool {
	switch e.Kind {
	case EventPauseEncounter, EventResetEncounter:
		return false
	default:
		return true
	}
}
