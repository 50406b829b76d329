package wire

import (
	"encoding/binary"

	"github.com/klauspost/compress/zstd"

	"github.com/resonance-logs/meterd/internal/stream/framereader"
)

// NotifyEvent is a fully decoded Notify fragment: an opcode recognized by
// the service and its (already decompressed) payload bytes.
type NotifyEvent struct {
	Opcode  Opcode
	Payload []byte
}

var zstdDecoder *zstd.Decoder

func init() {
	d, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	zstdDecoder = d
}

func decompress(payload []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(payload, nil)
}

// Dispatch classifies one complete frame (as yielded by framereader,
// including its 4-byte length prefix) and returns the Notify events it
// produced. FrameDown bodies that look like a nested framed stream are
// recursively unpacked in place; everything else (Call/Return/Echo/
// FrameUp/unrecognized Notify opcodes) is silently dropped, matching the
// wire's error-handling design: malformed or irrelevant frames never
// interrupt the pipeline.
func Dispatch(frame []byte) []NotifyEvent {
	var events []NotifyEvent
	dispatchInto(frame, &events, 0)
	return events
}

// maxNestingDepth guards against a crafted or corrupted nested-stream loop;
// no legitimate FrameDown body recurses this deep.
const maxNestingDepth = 8

func dispatchInto(frame []byte, events *[]NotifyEvent, depth int) {
	if depth > maxNestingDepth {
		return
	}
	r := NewReader(frame)
	if r.Remaining() < framereader.MinFrameLen {
		return
	}
	// The length prefix was only needed by the frame reader; skip it here.
	if _, err := r.ReadUint32(); err != nil {
		return
	}

	packetType, err := r.ReadUint16()
	if err != nil {
		return
	}
	compressed := packetType&0x8000 != 0
	fragType := ParseFragmentType(packetType & 0x7fff)

	switch fragType {
	case FragNotify:
		evt, ok := decodeNotify(r, compressed)
		if ok {
			*events = append(*events, evt)
		}
	case FragFrameDown:
		decodeFrameDown(r, compressed, events, depth)
	default:
		// Call/Return/Echo/FrameUp/None carry no combat-relevant payload.
	}
}

func decodeNotify(r *Reader, compressed bool) (NotifyEvent, bool) {
	svc, err := r.ReadUint64()
	if err != nil || svc != serviceUUID {
		return NotifyEvent{}, false
	}
	if _, err := r.ReadUint32(); err != nil { // stub_id, ignored
		return NotifyEvent{}, false
	}
	methodID, err := r.ReadUint32()
	if err != nil {
		return NotifyEvent{}, false
	}
	payload := r.ReadRemaining()
	if compressed {
		decoded, err := decompress(payload)
		if err != nil {
			return NotifyEvent{}, false
		}
		payload = decoded
	}
	op, known := ParseOpcode(methodID)
	if !known {
		return NotifyEvent{}, false
	}
	return NotifyEvent{Opcode: op, Payload: payload}, true
}

func decodeFrameDown(r *Reader, compressed bool, events *[]NotifyEvent, depth int) {
	if _, err := r.ReadUint32(); err != nil { // server_sequence, not needed downstream
		return
	}
	if r.Remaining() == 0 {
		return
	}
	nested := r.ReadRemaining()
	if compressed {
		decoded, err := decompress(nested)
		if err != nil {
			return
		}
		nested = decoded
	}

	if !looksLikeFramedPacketStream(nested) {
		return
	}

	fr := framereader.New()
	fr.Push(nested)
	for {
		next, ok := fr.TryNext()
		if !ok {
			return
		}
		dispatchInto(next, events, depth+1)
	}
}

// looksLikeFramedPacketStream is a plausibility check distinguishing a
// nested framed packet stream (combat/notify traffic, recursively framed
// the same way as the outer stream) from an unrelated binary payload
// (e.g. a market-data reply carried over the same FrameDown fragment
// type): the first four bytes must look like a sane frame length, and the
// u16 immediately after must decode to a recognized fragment type.
func looksLikeFramedPacketStream(data []byte) bool {
	if len(data) < framereader.MinFrameLen {
		return false
	}
	frameLen := binary.BigEndian.Uint32(data[0:4])
	if frameLen < framereader.MinFrameLen || int(frameLen) > len(data) || frameLen > framereader.MaxBufferSize {
		return false
	}
	packetType := binary.BigEndian.Uint16(data[4:6])
	frag := FragmentType(packetType & 0x7fff)
	switch frag {
	case FragCall, FragNotify, FragReturn, FragEcho, FragFrameUp, FragFrameDown:
		return true
	default:
		return false
	}
}
