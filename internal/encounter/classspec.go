package encounter

import "github.com/resonance-logs/meterd/internal/model"

// classSpec is a cosmetic, non-load-bearing label inferred from the first
// skill id an entity is observed using (§4.7.4 point 4). Numbering follows
// the declaration order of the original ClassSpec enum.
type classSpec int32

const (
	classSpecUnknown classSpec = iota
	classSpecIaido
	classSpecMoonstrike
	classSpecIcicle
	classSpecFrostbeam
	classSpecVanguard
	classSpecSkyward
	classSpecSmite
	classSpecLifebind
	classSpecEarthfort
	classSpecBlock
	classSpecWildpack
	classSpecFalconry
	classSpecRecovery
	classSpecShield
	classSpecDissonance
	classSpecConcerto
)

// Class ids, matching the original class module's constants.
const (
	classUnknown       int32 = 0
	classStormblade    int32 = 1
	classFrostMage     int32 = 2
	classWindKnight    int32 = 4
	classVerdantOracle int32 = 5
	classHeavyGuardian int32 = 9
	classMarksman      int32 = 11
	classShieldKnight  int32 = 12
	classBeatPerformer int32 = 13
)

// classSpecFromSkillID mirrors get_class_spec_from_skill_id's heuristic
// table.
func classSpecFromSkillID(skillID int32) classSpec {
	switch skillID {
	case 1714, 1734:
		return classSpecIaido
	case 44701, 179906:
		return classSpecMoonstrike
	case 120901, 120902:
		return classSpecIcicle
	case 1241:
		return classSpecFrostbeam
	case 1405, 1418:
		return classSpecVanguard
	case 1419:
		return classSpecSkyward
	case 1518, 1541, 21402:
		return classSpecSmite
	case 20301:
		return classSpecLifebind
	case 199902:
		return classSpecEarthfort
	case 1930, 1931, 1934, 1935:
		return classSpecBlock
	case 220112, 2203622:
		return classSpecFalconry
	case 2292, 1700820, 1700825, 1700827:
		return classSpecWildpack
	case 2406:
		return classSpecRecovery
	case 2405:
		return classSpecShield
	case 2306:
		return classSpecDissonance
	case 2307, 2361, 55302:
		return classSpecConcerto
	default:
		return classSpecUnknown
	}
}

// classIDFromSpec mirrors get_class_id_from_spec.
func classIDFromSpec(spec classSpec) int32 {
	switch spec {
	case classSpecIaido, classSpecMoonstrike:
		return classStormblade
	case classSpecIcicle, classSpecFrostbeam:
		return classFrostMage
	case classSpecVanguard, classSpecSkyward:
		return classWindKnight
	case classSpecSmite, classSpecLifebind:
		return classVerdantOracle
	case classSpecEarthfort, classSpecBlock:
		return classHeavyGuardian
	case classSpecWildpack, classSpecFalconry:
		return classMarksman
	case classSpecRecovery, classSpecShield:
		return classShieldKnight
	case classSpecDissonance, classSpecConcerto:
		return classBeatPerformer
	default:
		return classUnknown
	}
}

// ClassName returns the display name for a class id (entity.ClassID), or
// "" for an unrecognized or unset id, mirroring get_class_name.
func ClassName(classID int64) string {
	switch int32(classID) {
	case classStormblade:
		return "Stormblade"
	case classFrostMage:
		return "Frost Mage"
	case classWindKnight:
		return "Wind Knight"
	case classVerdantOracle:
		return "Verdant Oracle"
	case classHeavyGuardian:
		return "Heavy Guardian"
	case classMarksman:
		return "Marksman"
	case classShieldKnight:
		return "Shield Knight"
	case classBeatPerformer:
		return "Beat Performer"
	default:
		return ""
	}
}

// ClassSpecName returns the display name for a class-spec id
// (entity.ClassSpec), or "" for Unknown, mirroring get_class_spec.
func ClassSpecName(spec int64) string {
	switch classSpec(spec) {
	case classSpecIaido:
		return "Iaido"
	case classSpecMoonstrike:
		return "Moonstrike"
	case classSpecIcicle:
		return "Icicle"
	case classSpecFrostbeam:
		return "Frostbeam"
	case classSpecVanguard:
		return "Vanguard"
	case classSpecSkyward:
		return "Skyward"
	case classSpecSmite:
		return "Smite"
	case classSpecLifebind:
		return "Lifebind"
	case classSpecEarthfort:
		return "Earthfort"
	case classSpecBlock:
		return "Block"
	case classSpecWildpack:
		return "Wildpack"
	case classSpecFalconry:
		return "Falconry"
	case classSpecRecovery:
		return "Recovery"
	case classSpecShield:
		return "Shield"
	case classSpecDissonance:
		return "Dissonance"
	case classSpecConcerto:
		return "Concerto"
	default:
		return ""
	}
}

// inferClassSpec sets ent.ClassSpec/ClassID from a skill id, once. A
// skill id with no table entry leaves the entity Unknown without error —
// this inference is cosmetic, not load-bearing (§4.7.4 point 4).
func inferClassSpec(ent *model.Entity, skillID int32) {
	spec := classSpecFromSkillID(skillID)
	if spec == classSpecUnknown {
		return
	}
	ent.ClassSpec = int64(spec)
	ent.ClassID = int64(classIDFromSpec(spec))
}
