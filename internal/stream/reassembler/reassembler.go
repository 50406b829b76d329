// Package reassembler reconstructs the ordered byte stream of one
// recognized TCP flow from out-of-order, overlapping, or duplicated
// segments (the C3 component). Sequence comparisons are modular
// (wrapping subtraction plus signed compare) so 32-bit sequence number
// wraparound never causes a false desync.
package reassembler

// desyncThreshold is how far a segment may precede the expected sequence
// before the stream is treated as desynced (wrapped counter or a lost
// flow) and rebased to the new sequence rather than trimmed.
const desyncThreshold = 2 * 1024 * 1024

// before reports whether sequence a precedes b, using wrapping subtraction
// and a signed comparison so this is correct across uint32 wraparound.
func before(a, b uint32) bool {
	return int32(a-b) < 0
}

// Reassembler holds the out-of-order segment cache for one TCP flow and
// drains contiguous runs starting at the next expected sequence number.
type Reassembler struct {
	cache    map[uint32][]byte
	nextSeq  uint32
	haveNext bool
}

// New returns an empty Reassembler with no expected sequence yet; the
// first inserted segment establishes it.
func New() *Reassembler {
	return &Reassembler{cache: make(map[uint32][]byte)}
}

// InsertSegment folds a TCP payload segment at the given sequence number
// into the reassembler. It returns the newly available contiguous bytes
// (possibly spanning several cached segments), or ok=false if nothing new
// is ready yet. An empty payload is a no-op. A segment arriving far enough
// before the expected sequence to suggest a wrapped or replaced flow
// rebases the reassembler to start fresh at that sequence.
func (r *Reassembler) InsertSegment(seq uint32, payload []byte) (out []byte, ok bool) {
	if len(payload) == 0 {
		return nil, false
	}

	if !r.haveNext {
		r.nextSeq = seq
		r.haveNext = true
	}
	expected := r.nextSeq

	if before(seq, expected) && expected-seq > desyncThreshold {
		r.Reset(seq)
		expected = seq
	}

	start := seq
	data := payload
	if before(start, expected) {
		overlap := expected - start
		if int(overlap) >= len(data) {
			return nil, false
		}
		start = expected
		data = data[overlap:]
	}

	if existing, found := r.cache[start]; found {
		if len(data) > len(existing) {
			r.cache[start] = append([]byte(nil), data...)
		}
	} else {
		r.cache[start] = append([]byte(nil), data...)
	}

	cursor := expected
	var output []byte
	for {
		segment, found := r.cache[cursor]
		if !found {
			break
		}
		delete(r.cache, cursor)
		cursor += uint32(len(segment))
		output = append(output, segment...)
	}

	if len(output) == 0 {
		return nil, false
	}
	r.nextSeq = cursor
	return output, true
}

// Reset clears all cached segments and sets the next expected sequence
// number, used on SYN (rebase to seq+1), on a server change, and on a
// segment far enough behind the expected sequence to count as a desync.
// FIN/RST use ResetUnknown instead.
func (r *Reassembler) Reset(nextSeq uint32) {
	r.cache = make(map[uint32][]byte)
	r.nextSeq = nextSeq
	r.haveNext = true
}

// ResetUnknown clears cached state without establishing a next-expected
// sequence; the following segment will define it.
func (r *Reassembler) ResetUnknown() {
	r.cache = make(map[uint32][]byte)
	r.haveNext = false
}

// NextSequence returns the current expected sequence number, if known.
func (r *Reassembler) NextSequence() (uint32, bool) {
	return r.nextSeq, r.haveNext
}
