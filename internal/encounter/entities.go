package encounter

import (
	"github.com/resonance-logs/meterd/internal/model"
	"github.com/resonance-logs/meterd/internal/wire/payloads"
)

// handleSyncNearEntities implements the SyncNearEntities arm of §4.7.3:
// each appearing entity's uid/kind is derived from its wire UUID and its
// attribute records are merged in.
func (e *Engine) handleSyncNearEntities(msg payloads.SyncNearEntities, timestampMs uint64) {
	for _, ne := range msg.Appear {
		if !ne.HasUUID {
			continue
		}
		uid := model.UIDFromUUID(ne.UUID)
		kind := model.KindFromUUID(ne.UUID)
		ent := e.enc.GetOrCreateEntity(uid, kind)
		if ent.FirstSeenMs == 0 {
			ent.FirstSeenMs = timestampMs
		}
		ent.LastSeenMs = timestampMs
		if ne.HasAttrs {
			e.applyAttrs(ent, ne.Attrs)
		}
	}
	e.trackPartyMembers()
}

// handleSyncContainerData implements the SyncContainerData arm of
// §4.7.3/§4.3: the local player's own container push carries identity
// fields (name, fight point, profession, level) not exposed through the
// generic near-entity attribute path.
func (e *Engine) handleSyncContainerData(msg payloads.SyncContainerData) {
	if !msg.HasCharID {
		return
	}
	uid := uint64(msg.CharID)
	ent := e.enc.GetOrCreateEntity(uid, model.KindPC)

	if msg.HasCharBase {
		if msg.CharBase.HasName && msg.CharBase.Name != "" {
			ent.Name = msg.CharBase.Name
		}
		if msg.CharBase.HasFightPoint {
			ent.AbilityScore = msg.CharBase.FightPoint
		}
	}
	if msg.HasCurProfessionID {
		ent.ClassID = int64(msg.CurProfessionID)
	}
	if msg.HasLevel {
		ent.Level = int64(msg.Level)
	}

	e.enqueue(upsertEntityTask(ent))
}
