// Package flowid is the flow identifier (C2): it decodes captured
// frames into IPv4/TCP segments and, until the game server's flow is
// known, probes every segment with two signature heuristics. Once a
// flow is declared, segments from any other 4-tuple are ignored until
// the next declaration.
package flowid

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/resonance-logs/meterd/internal/capture"
)

// maxFragmentIterations caps the fragment-signature scan per packet, a
// circuit breaker against a crafted payload that never terminates.
const maxFragmentIterations = 2000

const fragLengthSize = 4

// fragmentSignature is the 6 bytes expected at offset 5 of a signature
// fragment: a null byte, the ASCII "c3SB", then a trailing null.
var fragmentSignature = [6]byte{0x00, 0x63, 0x33, 0x53, 0x42, 0x00}

var loginReturnSig1 = [10]byte{0x00, 0x00, 0x00, 0x62, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01}
var loginReturnSig2 = [6]byte{0x00, 0x00, 0x00, 0x00, 0x0a, 0x4e}

// flowKey is a directional TCP 4-tuple: the declared server flow always
// carries this exact (src, dst) orientation, the same traffic in the
// other direction is a different key and is ignored.
type flowKey struct {
	srcIP   [4]byte
	srcPort uint16
	dstIP   [4]byte
	dstPort uint16
}

// Segment is one decoded TCP segment belonging to the declared game
// server flow (or the synthetic declaration event itself).
type Segment struct {
	IsServerChange bool
	Seq            uint32
	SYN, FIN, RST  bool
	Payload        []byte
}

// Identifier decodes frames and tracks which flow, if any, has been
// recognized as the game server.
type Identifier struct {
	log    *zap.Logger
	known  *flowKey
	parser *gopacket.DecodingLayerParser
	eth    layers.Ethernet
	ip4    layers.IPv4
	tcp    layers.TCP
	decoded []gopacket.LayerType
}

// New returns an Identifier ready to process frames of the given
// link-layer type.
func New(linkType gopacket.LayerType, log *zap.Logger) *Identifier {
	id := &Identifier{log: log}
	id.parser = gopacket.NewDecodingLayerParser(linkType, &id.eth, &id.ip4, &id.tcp)
	id.parser.IgnoreUnsupported = true
	return id
}

// Process decodes one captured frame and returns the resulting segment,
// if the frame belongs to (or declares) the recognized flow. Non-IPv4,
// non-TCP, or off-flow frames yield ok=false.
func (id *Identifier) Process(frame capture.Frame) (Segment, bool) {
	if err := id.parser.DecodeLayers(frame.Data, &id.decoded); err != nil {
		return Segment{}, false
	}
	var haveIP, haveTCP bool
	for _, lt := range id.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			haveIP = true
		case layers.LayerTypeTCP:
			haveTCP = true
		}
	}
	if !haveIP || !haveTCP {
		return Segment{}, false
	}

	var srcIP, dstIP [4]byte
	copy(srcIP[:], id.ip4.SrcIP.To4())
	copy(dstIP[:], id.ip4.DstIP.To4())
	key := flowKey{srcIP: srcIP, srcPort: uint16(id.tcp.SrcPort), dstIP: dstIP, dstPort: uint16(id.tcp.DstPort)}
	payload := id.tcp.Payload

	if id.known == nil || *id.known != key {
		if id.probe(key, payload) {
			k := key
			id.known = &k
			return Segment{IsServerChange: true, Seq: id.tcp.Seq + uint32(len(payload))}, true
		}
		return Segment{}, false
	}

	return Segment{
		Seq:     id.tcp.Seq,
		SYN:     id.tcp.SYN,
		FIN:     id.tcp.FIN,
		RST:     id.tcp.RST,
		Payload: payload,
	}, true
}

// Reset forgets the recognized flow; the next declaring segment
// re-establishes it.
func (id *Identifier) Reset() {
	id.known = nil
}

func (id *Identifier) probe(key flowKey, payload []byte) bool {
	if fragmentSignatureMatch(payload) {
		id.log.Info("declared game server flow via fragment signature")
		return true
	}
	if loginReturnSignatureMatch(payload) {
		id.log.Info("declared game server flow via login-return signature")
		return true
	}
	return false
}

// fragmentSignatureMatch treats payload as a series of
// (u32 BE length)(length-4 bytes) fragments and looks for the known
// service signature at bytes [5..11) of any fragment.
func fragmentSignatureMatch(payload []byte) bool {
	if len(payload) < 10 || payload[4] != 0 {
		return false
	}
	rest := payload
	for i := 0; rest != nil && len(rest) >= fragLengthSize; i++ {
		if i >= maxFragmentIterations {
			return false
		}
		fragLen := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		bodyLen := int(fragLen) - fragLengthSize
		if bodyLen < 0 || bodyLen > len(rest) {
			return false
		}
		frag := rest[:bodyLen]
		rest = rest[bodyLen:]
		if len(frag) >= 5+len(fragmentSignature) && bytesEqual(frag[5:5+len(fragmentSignature)], fragmentSignature[:]) {
			return true
		}
	}
	return false
}

func loginReturnSignatureMatch(payload []byte) bool {
	if len(payload) != 98 {
		return false
	}
	return bytesEqual(payload[0:10], loginReturnSig1[:]) && bytesEqual(payload[14:20], loginReturnSig2[:])
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
