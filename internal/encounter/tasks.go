package encounter

import (
	"github.com/resonance-logs/meterd/internal/dbtask"
	"github.com/resonance-logs/meterd/internal/model"
)

// upsertEntityTask builds an UpsertEntity task from an entity's current
// identity fields.
func upsertEntityTask(ent *model.Entity) dbtask.Task {
	return dbtask.Task{
		Kind:         dbtask.UpsertEntity,
		ActorUID:     ent.UID,
		Name:         ent.Name,
		ClassID:      ent.ClassID,
		ClassSpec:    ent.ClassSpec,
		Level:        ent.Level,
		AbilityScore: ent.AbilityScore,
		IsBoss:       ent.IsBoss,
		IsPlayer:     ent.Kind == model.KindPC,
	}
}
