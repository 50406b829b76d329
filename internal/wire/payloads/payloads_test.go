package payloads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func buildAttr(id int32, raw []byte) []byte {
	var b []byte
	b = appendVarintField(b, attrFieldID, uint64(uint32(id)))
	b = appendBytesField(b, attrFieldRawData, raw)
	return b
}

func buildAttrCollection(attrs ...[]byte) []byte {
	var b []byte
	for _, a := range attrs {
		b = appendBytesField(b, attrsCollectionFieldAttrs, a)
	}
	return b
}

func TestDecodeAttr(t *testing.T) {
	raw := buildAttr(0x01, []byte("hello"))
	a, err := DecodeAttr(raw)
	require.NoError(t, err)
	assert.True(t, a.HasID)
	assert.Equal(t, int32(1), a.ID)
	assert.Equal(t, []byte("hello"), a.RawData)
}

func TestDecodeAttrCollection(t *testing.T) {
	raw := buildAttrCollection(buildAttr(1, []byte("a")), buildAttr(2, []byte("b")))
	attrs, err := DecodeAttrCollection(raw)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, int32(1), attrs[0].ID)
	assert.Equal(t, int32(2), attrs[1].ID)
}

func buildNearEntity(uuid uint64, attrsRaw []byte) []byte {
	var b []byte
	b = appendVarintField(b, nearEntityFieldUUID, uuid)
	b = appendBytesField(b, nearEntityFieldAttrs, attrsRaw)
	return b
}

func TestDecodeSyncNearEntities(t *testing.T) {
	attrs := buildAttrCollection(buildAttr(1, []byte("x")))
	e1 := buildNearEntity(1001<<16, attrs)
	e2 := buildNearEntity(2002<<16, attrs)

	var b []byte
	b = appendBytesField(b, syncNearEntitiesFieldAppear, e1)
	b = appendBytesField(b, syncNearEntitiesFieldAppear, e2)

	out, err := DecodeSyncNearEntities(b)
	require.NoError(t, err)
	require.Len(t, out.Appear, 2)
	assert.Equal(t, uint64(1001<<16), out.Appear[0].UUID)
	assert.Equal(t, uint64(2002<<16), out.Appear[1].UUID)
	require.Len(t, out.Appear[0].Attrs, 1)
}

func buildDamageInfo(value int64, attackerUUID uint64, ownerID int32, typeFlag int32) []byte {
	var b []byte
	b = appendVarintField(b, damageFieldValue, uint64(value))
	b = appendVarintField(b, damageFieldAttackerUUID, attackerUUID)
	b = appendVarintField(b, damageFieldOwnerID, uint64(uint32(ownerID)))
	b = appendVarintField(b, damageFieldTypeFlag, uint64(uint32(typeFlag)))
	return b
}

func TestDecodeAoiSyncDelta(t *testing.T) {
	dmg := buildDamageInfo(500, 777<<16, 1714, 1)
	var skillEffects []byte
	skillEffects = appendBytesField(skillEffects, skillEffectFieldDamages, dmg)

	var b []byte
	b = appendVarintField(b, aoiSyncDeltaFieldUUID, 999<<16)
	b = appendBytesField(b, aoiSyncDeltaFieldSkillEffects, skillEffects)

	out, err := DecodeAoiSyncDelta(b)
	require.NoError(t, err)
	assert.True(t, out.HasUUID)
	assert.Equal(t, uint64(999<<16), out.UUID)
	require.Len(t, out.Damages, 1)
	assert.Equal(t, int64(500), out.Damages[0].Value)
	assert.Equal(t, uint64(777<<16), out.Damages[0].AttackerUUID)
	assert.Equal(t, int32(1714), out.Damages[0].OwnerID)
	assert.Equal(t, int32(1), out.Damages[0].TypeFlag)
}

func TestDecodeSyncToMeDeltaInfo(t *testing.T) {
	dmg := buildDamageInfo(10, 1<<16, 20, 0)
	var skillEffects []byte
	skillEffects = appendBytesField(skillEffects, skillEffectFieldDamages, dmg)

	var delta []byte
	delta = appendVarintField(delta, aoiSyncDeltaFieldUUID, 55<<16)
	delta = appendBytesField(delta, aoiSyncDeltaFieldSkillEffects, skillEffects)

	var deltaInfo []byte
	deltaInfo = appendVarintField(deltaInfo, deltaInfoFieldUUID, 55<<16)
	deltaInfo = appendBytesField(deltaInfo, deltaInfoFieldBaseDelta, delta)

	var b []byte
	b = appendBytesField(b, syncToMeDeltaInfoFieldDeltaInfo, deltaInfo)

	out, err := DecodeSyncToMeDeltaInfo(b)
	require.NoError(t, err)
	assert.True(t, out.HasUUID)
	assert.Equal(t, uint64(55<<16), out.UUID)
	assert.True(t, out.HasBaseDelta)
	require.Len(t, out.BaseDelta.Damages, 1)
}

func TestDecodeSyncContainerData(t *testing.T) {
	var charBase []byte
	charBase = appendBytesField(charBase, charBaseFieldName, []byte("Hero"))
	charBase = appendVarintField(charBase, charBaseFieldFightPoint, 12345)

	var profList []byte
	profList = appendVarintField(profList, profListFieldCurProfessionID, 9)

	var roleLevel []byte
	roleLevel = appendVarintField(roleLevel, roleLevelFieldLevel, 60)

	var vData []byte
	vData = appendVarintField(vData, playerDataFieldCharID, 42)
	vData = appendBytesField(vData, playerDataFieldCharBase, charBase)
	vData = appendBytesField(vData, playerDataFieldProfessionList, profList)
	vData = appendBytesField(vData, playerDataFieldRoleLevel, roleLevel)

	var b []byte
	b = appendBytesField(b, syncContainerDataFieldVData, vData)

	out, err := DecodeSyncContainerData(b)
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.CharID)
	require.True(t, out.HasCharBase)
	assert.Equal(t, "Hero", out.CharBase.Name)
	assert.Equal(t, int64(12345), out.CharBase.FightPoint)
	assert.Equal(t, int32(9), out.CurProfessionID)
	assert.Equal(t, int32(60), out.Level)
}

func TestParseFieldsRejectsMalformed(t *testing.T) {
	_, err := parseFields([]byte{0xff})
	assert.ErrorIs(t, err, ErrMalformed)
}
