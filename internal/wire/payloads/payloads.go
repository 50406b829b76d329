// Package payloads decodes the protobuf-framed bodies carried inside
// Notify events (see wire.NotifyEvent) into the handful of shapes the
// encounter engine cares about.
//
// The real schema for these messages lives in a closed-source protobuf
// crate that ships with the client and is not available anywhere in this
// workspace. Field numbers below are inferred from the order fields are
// accessed in the reference implementation (struct-field access order in
// a generated-code consumer is the closest available signal to the
// original .proto declaration order) rather than read from a .proto
// file. Treat every field number here as a best-effort reconstruction,
// not a verified schema; see DESIGN.md for the full reasoning.
//
// Decoding uses protowire directly (no generated .pb.go types) since
// there is no .proto to run through protoc.
package payloads

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when a payload cannot be parsed as a
// well-formed protobuf message. Callers treat it the same as "no data":
// skip this event, keep the pipeline running.
var ErrMalformed = errors.New("payloads: malformed protobuf message")

// field is one raw (number, wire-type, content) tuple from a single pass
// over a message's top-level fields. Repeated fields keep every
// occurrence in encounter order.
type field struct {
	num  protowire.Number
	typ  protowire.Type
	data []byte // varint: the raw content is the decoded value re-encoded is not kept; see raw below
	raw  uint64 // decoded value for varint/fixed32/fixed64 types
}

// parseFields walks the top-level fields of a protobuf message, without
// knowing its schema, and returns them in encounter order. Malformed
// input yields ErrMalformed rather than a partial result, so callers
// never act on a truncated message.
func parseFields(data []byte) ([]field, error) {
	var out []field
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, ErrMalformed
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, ErrMalformed
			}
			out = append(out, field{num: num, typ: typ, raw: v})
			data = data[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return nil, ErrMalformed
			}
			out = append(out, field{num: num, typ: typ, raw: uint64(v)})
			data = data[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, ErrMalformed
			}
			out = append(out, field{num: num, typ: typ, raw: v})
			data = data[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, ErrMalformed
			}
			out = append(out, field{num: num, typ: typ, data: v})
			data = data[n:]
		case protowire.StartGroupType:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, ErrMalformed
			}
			data = data[n:]
		default:
			return nil, ErrMalformed
		}
	}
	return out, nil
}

func firstBytes(fields []field, num protowire.Number) ([]byte, bool) {
	for _, f := range fields {
		if f.num == num && f.typ == protowire.BytesType {
			return f.data, true
		}
	}
	return nil, false
}

func firstVarint(fields []field, num protowire.Number) (uint64, bool) {
	for _, f := range fields {
		if f.num == num && f.typ == protowire.VarintType {
			return f.raw, true
		}
	}
	return 0, false
}

func allBytes(fields []field, num protowire.Number) [][]byte {
	var out [][]byte
	for _, f := range fields {
		if f.num == num && f.typ == protowire.BytesType {
			out = append(out, f.data)
		}
	}
	return out
}

// Attr is one raw (id, raw_data) pair from an attribute collection. The
// attribute ID selects the interpretation of raw_data (varint, string,
// or nested message) the same way model.AttrKey's named keys do; this
// package only extracts the bytes, it does not decode them. That
// happens in the encounter engine where the AttrType dispatch table
// lives, mirroring how process_player_attrs/process_monster_attrs take
// the same raw (id, raw_data) shape and decode it per-id.
type Attr struct {
	ID      int32
	HasID   bool
	RawData []byte
}

const (
	attrFieldID      = protowire.Number(1)
	attrFieldRawData = protowire.Number(2)
)

// DecodeAttr decodes one Attr message.
func DecodeAttr(data []byte) (Attr, error) {
	fields, err := parseFields(data)
	if err != nil {
		return Attr{}, err
	}
	var a Attr
	if v, ok := firstVarint(fields, attrFieldID); ok {
		a.ID = int32(v)
		a.HasID = true
	}
	if v, ok := firstBytes(fields, attrFieldRawData); ok {
		a.RawData = v
	}
	return a, nil
}

const attrsCollectionFieldAttrs = protowire.Number(1)

// DecodeAttrCollection decodes a repeated-Attr collection (the shape
// carried by both SyncNearEntities.appear[].attrs and
// AoiSyncDelta.attrs).
func DecodeAttrCollection(data []byte) ([]Attr, error) {
	fields, err := parseFields(data)
	if err != nil {
		return nil, err
	}
	var out []Attr
	for _, raw := range allBytes(fields, attrsCollectionFieldAttrs) {
		a, err := DecodeAttr(raw)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// NearEntity is one entry of SyncNearEntities.appear.
type NearEntity struct {
	UUID     uint64
	HasUUID  bool
	Attrs    []Attr
	HasAttrs bool
}

const (
	nearEntityFieldUUID  = protowire.Number(1)
	nearEntityFieldAttrs = protowire.Number(2)
)

func decodeNearEntity(data []byte) (NearEntity, error) {
	fields, err := parseFields(data)
	if err != nil {
		return NearEntity{}, err
	}
	var e NearEntity
	if v, ok := firstVarint(fields, nearEntityFieldUUID); ok {
		e.UUID = v
		e.HasUUID = true
	}
	if raw, ok := firstBytes(fields, nearEntityFieldAttrs); ok {
		attrs, err := DecodeAttrCollection(raw)
		if err == nil {
			e.Attrs = attrs
			e.HasAttrs = true
		}
	}
	return e, nil
}

const syncNearEntitiesFieldAppear = protowire.Number(1)

// SyncNearEntities is the periodic broadcast of entities newly visible
// to the local player's area of interest.
type SyncNearEntities struct {
	Appear []NearEntity
}

// DecodeSyncNearEntities decodes a SyncNearEntities payload.
func DecodeSyncNearEntities(data []byte) (SyncNearEntities, error) {
	fields, err := parseFields(data)
	if err != nil {
		return SyncNearEntities{}, err
	}
	var out SyncNearEntities
	for _, raw := range allBytes(fields, syncNearEntitiesFieldAppear) {
		e, err := decodeNearEntity(raw)
		if err != nil {
			continue
		}
		out.Appear = append(out.Appear, e)
	}
	return out, nil
}

// DamageInfo is one entry of AoiSyncDelta.skill_effects.damages: a
// single damage or heal tick attributed to a skill use.
type DamageInfo struct {
	Value              int64
	HasValue           bool
	LuckyValue         int64
	HasLuckyValue      bool
	AttackerUUID       uint64
	HasAttackerUUID    bool
	TopSummonerID      uint64
	HasTopSummonerID   bool
	OwnerID            int32 // skill id
	HasOwnerID         bool
	TypeFlag           int32
	Type               int32
	HasType            bool
	HPLessenValue      int64
	HasHPLessenValue   bool
	ShieldLessenValue  int64
	HasShieldLessen    bool
}

const (
	damageFieldValue             = protowire.Number(1)
	damageFieldLuckyValue        = protowire.Number(2)
	damageFieldAttackerUUID      = protowire.Number(3)
	damageFieldTopSummonerID     = protowire.Number(4)
	damageFieldOwnerID           = protowire.Number(5)
	damageFieldTypeFlag          = protowire.Number(6)
	damageFieldType              = protowire.Number(7)
	damageFieldHPLessenValue     = protowire.Number(8)
	damageFieldShieldLessenValue = protowire.Number(9)
)

func decodeDamageInfo(data []byte) (DamageInfo, error) {
	fields, err := parseFields(data)
	if err != nil {
		return DamageInfo{}, err
	}
	var d DamageInfo
	if v, ok := firstVarint(fields, damageFieldValue); ok {
		d.Value, d.HasValue = int64(v), true
	}
	if v, ok := firstVarint(fields, damageFieldLuckyValue); ok {
		d.LuckyValue, d.HasLuckyValue = int64(v), true
	}
	if v, ok := firstVarint(fields, damageFieldAttackerUUID); ok {
		d.AttackerUUID, d.HasAttackerUUID = v, true
	}
	if v, ok := firstVarint(fields, damageFieldTopSummonerID); ok {
		d.TopSummonerID, d.HasTopSummonerID = v, true
	}
	if v, ok := firstVarint(fields, damageFieldOwnerID); ok {
		d.OwnerID, d.HasOwnerID = int32(v), true
	}
	if v, ok := firstVarint(fields, damageFieldTypeFlag); ok {
		d.TypeFlag = int32(v)
	}
	if v, ok := firstVarint(fields, damageFieldType); ok {
		d.Type, d.HasType = int32(v), true
	}
	if v, ok := firstVarint(fields, damageFieldHPLessenValue); ok {
		d.HPLessenValue, d.HasHPLessenValue = int64(v), true
	}
	if v, ok := firstVarint(fields, damageFieldShieldLessenValue); ok {
		d.ShieldLessenValue, d.HasShieldLessen = int64(v), true
	}
	return d, nil
}

const skillEffectFieldDamages = protowire.Number(1)

// AoiSyncDelta is an incremental update for one entity already in the
// local player's area of interest: attribute deltas and/or a batch of
// damage/heal ticks it was involved in.
type AoiSyncDelta struct {
	UUID         uint64
	HasUUID      bool
	Attrs        []Attr
	HasAttrs     bool
	Damages      []DamageInfo
	HasDamages   bool
}

const (
	aoiSyncDeltaFieldUUID         = protowire.Number(1)
	aoiSyncDeltaFieldAttrs        = protowire.Number(2)
	aoiSyncDeltaFieldSkillEffects = protowire.Number(3)
)

// DecodeAoiSyncDelta decodes an AoiSyncDelta payload.
func DecodeAoiSyncDelta(data []byte) (AoiSyncDelta, error) {
	fields, err := parseFields(data)
	if err != nil {
		return AoiSyncDelta{}, err
	}
	var out AoiSyncDelta
	if v, ok := firstVarint(fields, aoiSyncDeltaFieldUUID); ok {
		out.UUID, out.HasUUID = v, true
	}
	if raw, ok := firstBytes(fields, aoiSyncDeltaFieldAttrs); ok {
		attrs, err := DecodeAttrCollection(raw)
		if err == nil {
			out.Attrs, out.HasAttrs = attrs, true
		}
	}
	if raw, ok := firstBytes(fields, aoiSyncDeltaFieldSkillEffects); ok {
		seFields, err := parseFields(raw)
		if err == nil {
			out.HasDamages = true
			for _, dmgRaw := range allBytes(seFields, skillEffectFieldDamages) {
				d, err := decodeDamageInfo(dmgRaw)
				if err != nil {
					continue
				}
				out.Damages = append(out.Damages, d)
			}
		}
	}
	return out, nil
}

const (
	syncToMeDeltaInfoFieldDeltaInfo = protowire.Number(1)
	deltaInfoFieldUUID              = protowire.Number(1)
	deltaInfoFieldBaseDelta         = protowire.Number(2)
)

// SyncToMeDeltaInfo carries the local player's own uid (so the engine
// can learn LocalPlayerUID) plus an embedded AoiSyncDelta for itself.
type SyncToMeDeltaInfo struct {
	UUID         uint64
	HasUUID      bool
	BaseDelta    AoiSyncDelta
	HasBaseDelta bool
}

// DecodeSyncToMeDeltaInfo decodes a SyncToMeDeltaInfo payload.
func DecodeSyncToMeDeltaInfo(data []byte) (SyncToMeDeltaInfo, error) {
	fields, err := parseFields(data)
	if err != nil {
		return SyncToMeDeltaInfo{}, err
	}
	raw, ok := firstBytes(fields, syncToMeDeltaInfoFieldDeltaInfo)
	if !ok {
		return SyncToMeDeltaInfo{}, nil
	}
	diFields, err := parseFields(raw)
	if err != nil {
		return SyncToMeDeltaInfo{}, err
	}
	var out SyncToMeDeltaInfo
	if v, ok := firstVarint(diFields, deltaInfoFieldUUID); ok {
		out.UUID, out.HasUUID = v, true
	}
	if bdRaw, ok := firstBytes(diFields, deltaInfoFieldBaseDelta); ok {
		delta, err := DecodeAoiSyncDelta(bdRaw)
		if err == nil {
			out.BaseDelta, out.HasBaseDelta = delta, true
		}
	}
	return out, nil
}

// CharBaseInfo is the player's name and ability-score fields from
// SyncContainerData.v_data.char_base.
type CharBaseInfo struct {
	Name          string
	HasName       bool
	FightPoint    int64
	HasFightPoint bool
}

const (
	charBaseFieldName       = protowire.Number(1)
	charBaseFieldFightPoint = protowire.Number(2)
)

func decodeCharBaseInfo(data []byte) (CharBaseInfo, error) {
	fields, err := parseFields(data)
	if err != nil {
		return CharBaseInfo{}, err
	}
	var c CharBaseInfo
	if raw, ok := firstBytes(fields, charBaseFieldName); ok {
		c.Name, c.HasName = string(raw), true
	}
	if v, ok := firstVarint(fields, charBaseFieldFightPoint); ok {
		c.FightPoint, c.HasFightPoint = int64(v), true
	}
	return c, nil
}

const profListFieldCurProfessionID = protowire.Number(1)
const roleLevelFieldLevel = protowire.Number(1)

const (
	playerDataFieldCharID         = protowire.Number(1)
	playerDataFieldCharBase       = protowire.Number(2)
	playerDataFieldProfessionList = protowire.Number(3)
	playerDataFieldRoleLevel      = protowire.Number(4)
)

const syncContainerDataFieldVData = protowire.Number(1)

// SyncContainerData is the full snapshot of the local player's own
// character container, sent once on login/scene entry.
type SyncContainerData struct {
	CharID              int64
	HasCharID           bool
	CharBase            CharBaseInfo
	HasCharBase         bool
	CurProfessionID     int32
	HasCurProfessionID  bool
	Level               int32
	HasLevel            bool
}

// DecodeSyncContainerData decodes a SyncContainerData payload.
func DecodeSyncContainerData(data []byte) (SyncContainerData, error) {
	fields, err := parseFields(data)
	if err != nil {
		return SyncContainerData{}, err
	}
	vRaw, ok := firstBytes(fields, syncContainerDataFieldVData)
	if !ok {
		return SyncContainerData{}, nil
	}
	vFields, err := parseFields(vRaw)
	if err != nil {
		return SyncContainerData{}, err
	}
	var out SyncContainerData
	if v, ok := firstVarint(vFields, playerDataFieldCharID); ok {
		out.CharID, out.HasCharID = int64(v), true
	}
	if raw, ok := firstBytes(vFields, playerDataFieldCharBase); ok {
		cb, err := decodeCharBaseInfo(raw)
		if err == nil {
			out.CharBase, out.HasCharBase = cb, true
		}
	}
	if raw, ok := firstBytes(vFields, playerDataFieldProfessionList); ok {
		plFields, err := parseFields(raw)
		if err == nil {
			if v, ok := firstVarint(plFields, profListFieldCurProfessionID); ok {
				out.CurProfessionID, out.HasCurProfessionID = int32(v), true
			}
		}
	}
	if raw, ok := firstBytes(vFields, playerDataFieldRoleLevel); ok {
		rlFields, err := parseFields(raw)
		if err == nil {
			if v, ok := firstVarint(rlFields, roleLevelFieldLevel); ok {
				out.Level, out.HasLevel = int32(v), true
			}
		}
	}
	return out, nil
}
