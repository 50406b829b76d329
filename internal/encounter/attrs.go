package encounter

import (
	"encoding/hex"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/resonance-logs/meterd/internal/model"
	"github.com/resonance-logs/meterd/internal/telemetry"
	"github.com/resonance-logs/meterd/internal/wire/payloads"
)

// Wire attribute ids, reconstructed from the named hex constants of the
// original attr_type module (see internal/wire/payloads package doc for
// the same schema-less-decoding caveat: these ids are read verbatim from
// the original source's named constants, not rederived).
const (
	wireAttrName           int32 = 0x01
	wireAttrID             int32 = 0x0a
	wireAttrTeamID         int32 = 0x0b
	wireAttrRankLevel      int32 = 0x274c
	wireAttrCrit           int32 = 0x2b66
	wireAttrLucky          int32 = 0x2b7a
	wireAttrHaste          int32 = 0x2b84
	wireAttrMastery        int32 = 0x2b8e
	wireAttrCurrentHP      int32 = 0x2c2e
	wireAttrMaxHP          int32 = 0x2c38
	wireAttrCurrentShield  int32 = 0x2c3d
	wireAttrElementFlag    int32 = 0x646d6c
	wireAttrReductionLevel int32 = 0x64696d
	wireAttrEnergyFlag     int32 = 0x543cd3c6
)

// namedAttrKeys maps the load-bearing wire ids to their AttrKey (§6.4).
// All other ids fall through to the Unknown(id) / Custom path.
var namedAttrKeys = map[int32]model.AttrKey{
	wireAttrName:           model.AttrName,
	wireAttrTeamID:         model.AttrTeamID,
	wireAttrRankLevel:      model.AttrRank,
	wireAttrCrit:           model.AttrCritStat,
	wireAttrLucky:          model.AttrLuckyStat,
	wireAttrHaste:          model.AttrHaste,
	wireAttrMastery:        model.AttrMastery,
	wireAttrCurrentHP:      model.AttrHP,
	wireAttrMaxHP:          model.AttrMaxHP,
	wireAttrCurrentShield:  model.AttrShield,
	wireAttrElementFlag:    model.AttrElementFlag,
	wireAttrReductionLevel: model.AttrReductionLevel,
	wireAttrEnergyFlag:     model.AttrEnergyFlag,
}

// decodeAttrValue decodes one Attr's raw_data per §4.7.3: the name
// attribute is length-prefixed UTF-8 (a leading encoding-marker byte is
// skipped, matching the original source's from_string_bytes), every other
// known id is a varint, and unknown ids are tried as varint, then UTF-8,
// then stored as a hex string.
func decodeAttrValue(id int32, raw []byte) model.AttrValue {
	if id == wireAttrName {
		if s, ok := decodeNameBytes(raw); ok {
			return model.StringAttr(s)
		}
	}
	if v, n := protowire.ConsumeVarint(raw); n > 0 && n == len(raw) {
		return model.IntAttr(int64(v))
	}
	if utf8.Valid(raw) {
		return model.StringAttr(string(raw))
	}
	return model.StringAttr(hex.EncodeToString(raw))
}

// decodeNameBytes skips the leading encoding-marker byte, then reads the
// remainder as a varint-length-prefixed UTF-8 string. Falls back to
// treating the whole remainder as the string when no valid length prefix
// is present.
func decodeNameBytes(raw []byte) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	rest := raw[1:]
	if length, n := protowire.ConsumeVarint(rest); n > 0 && int(length) <= len(rest)-n {
		s := rest[n : n+int(length)]
		if utf8.Valid(s) {
			return string(s), true
		}
	}
	if utf8.Valid(rest) {
		return string(rest), true
	}
	return "", false
}

// attrKeyFor resolves a decoded Attr's wire id to a model.AttrKey.
func attrKeyFor(id int32) model.AttrKey {
	if k, ok := namedAttrKeys[id]; ok {
		return k
	}
	telemetry.UnknownAttributeTotal.Inc()
	return model.UnknownAttr(uint32(id))
}

// applyAttrs merges a decoded Attr collection into ent.Attrs and updates
// any identity fields the attribute set implies.
func (e *Engine) applyAttrs(ent *model.Entity, attrs []payloads.Attr) {
	for _, a := range attrs {
		if !a.HasID {
			continue
		}
		val := decodeAttrValue(a.ID, a.RawData)
		key := attrKeyFor(a.ID)
		ent.Attrs[key] = val

		switch {
		case key == model.AttrName:
			name, _ := val.AsString()
			e.applyNameAttr(ent, name)
		case a.ID == wireAttrID && ent.Kind == model.KindMonster:
			e.applyMonsterTypeID(ent, val)
		}
	}
}

// applyMonsterTypeID records ATTR_ID on a monster entity and resolves its
// boss membership and display name from the reference tables.
func (e *Engine) applyMonsterTypeID(ent *model.Entity, val model.AttrValue) {
	id, ok := val.AsInt()
	if !ok {
		return
	}
	ent.MonsterTypeID = int32(id)
	if e.tables != nil {
		ent.IsBoss = e.tables.IsBoss(ent.MonsterTypeID)
		if name, found := e.tables.Monster(ent.MonsterTypeID); found {
			ent.Name = name
		} else if ent.Name == "" {
			ent.Name = e.tables.MonsterOrUnknown(ent.MonsterTypeID)
		}
	}
	if ent.IsBoss {
		e.enqueue(upsertEntityTask(ent))
	}
}

// applyNameAttr implements the name-attribute side effects of §4.7.3:
// a PC's name triggers a player upsert task; a monster's name is recorded
// as the raw packet name and, when the monster type id is still unknown,
// also used as the display name.
func (e *Engine) applyNameAttr(ent *model.Entity, name string) {
	switch ent.Kind {
	case model.KindPC:
		ent.Name = name
		e.enqueue(upsertEntityTask(ent))
	case model.KindMonster:
		ent.RawPacketName = name
		if ent.MonsterTypeID == 0 {
			ent.Name = name
		}
	}
}
