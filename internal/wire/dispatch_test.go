package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func beU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func beU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// buildNotifyFrame assembles a complete frame (length prefix included)
// carrying one Notify fragment, mirroring parse_notify_fragment's layout:
// service_uuid(u64) | stub_id(u32) | method_id(u32) | payload.
func buildNotifyFrame(methodID uint32, payload []byte, compressed bool) []byte {
	body := beU64(serviceUUID)
	body = append(body, beU32(0x11223344)...) // stub id, ignored
	body = append(body, beU32(methodID)...)
	body = append(body, payload...)

	packetType := uint16(FragNotify)
	if compressed {
		packetType |= 0x8000
	}
	header := beU16(packetType)

	frameBody := append(header, body...)
	total := uint32(4 + len(frameBody))
	return append(beU32(total), frameBody...)
}

func TestDispatchNotifyUncompressed(t *testing.T) {
	frame := buildNotifyFrame(uint32(OpSyncNearEntities), []byte("hello-world"), false)

	events := Dispatch(frame)
	require.Len(t, events, 1)
	assert.Equal(t, OpSyncNearEntities, events[0].Opcode)
	assert.Equal(t, []byte("hello-world"), events[0].Payload)
}

func TestDispatchNotifyCompressed(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(payload, nil)
	require.NoError(t, enc.Close())

	frame := buildNotifyFrame(uint32(OpSyncNearEntities), compressed, true)

	events := Dispatch(frame)
	require.Len(t, events, 1)
	assert.Equal(t, OpSyncNearEntities, events[0].Opcode)
	assert.Equal(t, payload, events[0].Payload)
}

func TestDispatchNotifyWrongServiceUUIDDropped(t *testing.T) {
	body := beU64(0xDEADBEEF)
	body = append(body, beU32(0)...)
	body = append(body, beU32(uint32(OpSyncNearEntities))...)
	header := beU16(uint16(FragNotify))
	frameBody := append(header, body...)
	frame := append(beU32(uint32(4+len(frameBody))), frameBody...)

	events := Dispatch(frame)
	assert.Empty(t, events)
}

func TestDispatchUnknownOpcodeDropped(t *testing.T) {
	frame := buildNotifyFrame(0xFFFF, []byte("x"), false)

	events := Dispatch(frame)
	assert.Empty(t, events)
}

func TestDispatchFrameDownRecursesIntoNestedStream(t *testing.T) {
	inner := buildNotifyFrame(uint32(OpSyncServerTime), []byte("tick"), false)

	frameDownBody := beU32(42) // server_sequence_id
	frameDownBody = append(frameDownBody, inner...)
	header := beU16(uint16(FragFrameDown))
	frameBody := append(header, frameDownBody...)
	outer := append(beU32(uint32(4+len(frameBody))), frameBody...)

	events := Dispatch(outer)
	require.Len(t, events, 1)
	assert.Equal(t, OpSyncServerTime, events[0].Opcode)
	assert.Equal(t, []byte("tick"), events[0].Payload)
}

func TestDispatchOtherFragmentTypesDropped(t *testing.T) {
	for _, ft := range []FragmentType{FragCall, FragReturn, FragEcho, FragFrameUp, FragNone} {
		header := beU16(uint16(ft))
		body := []byte("irrelevant")
		frameBody := append(append([]byte{}, header...), body...)
		frame := append(beU32(uint32(4+len(frameBody))), frameBody...)

		events := Dispatch(frame)
		assert.Empty(t, events, "fragment type %v should never produce events", ft)
	}
}

func TestLooksLikeFramedPacketStreamRejectsGarbage(t *testing.T) {
	assert.False(t, looksLikeFramedPacketStream(bytes.Repeat([]byte{0xFF}, 20)))
	assert.False(t, looksLikeFramedPacketStream([]byte{0, 0}))
}
