package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ShutdownSentinel is written to the bridge by the I/O supervisor to
// unblock a reader thread parked in a blocking read. A blob consisting of
// exactly these 4 bytes terminates the reassembler cleanly instead of
// being treated as a (too-short) frame.
var ShutdownSentinel = []byte{0x04, 0x00, 0x00, 0x00}

// FramingError is reported when the reassembler observes a declared
// envelope length that can never be satisfied (shorter than the 8-byte
// prefix it was read from). The carry buffer is discarded so the next
// blob resynchronizes framing.
type FramingError struct {
	Length uint32
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("wire: impossible frame length %d", e.Length)
}

// Reassembler recovers whole, length-prefixed envelopes from a sequence of
// arbitrarily-chunked byte blobs, such as the individual reads off a
// datagram or stream bridge. It is not safe for concurrent use; the I/O
// supervisor owns a single reassembler on its parser goroutine.
type Reassembler struct {
	carry []byte
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends blob to the carry buffer and extracts as many complete
// envelopes as are now available, in arrival order. It returns the
// complete envelope byte slices, and shutdown=true if blob was the
// shutdown sentinel (in which case frames and err are always nil/zero).
//
// On a *FramingError, the carry is discarded; the caller should continue
// feeding subsequent blobs, which resynchronize from a clean slate.
func (r *Reassembler) Feed(blob []byte) (frames [][]byte, shutdown bool, err error) {
	if len(blob) == len(ShutdownSentinel) && bytes.Equal(blob, ShutdownSentinel) {
		return nil, true, nil
	}

	if len(r.carry) > 0 {
		buf := make([]byte, 0, len(r.carry)+len(blob))
		buf = append(buf, r.carry...)
		buf = append(buf, blob...)
		r.carry = buf
	} else {
		r.carry = blob
	}

	offset := 0
	buf := r.carry
	for offset < len(buf) {
		remaining := len(buf) - offset
		if remaining < 8 {
			// Incomplete prefix; wait for more data.
			break
		}
		length := binary.LittleEndian.Uint32(buf[offset : offset+4])
		if length < 8 {
			r.carry = nil
			return frames, false, &FramingError{Length: length}
		}
		if remaining < int(length) {
			// Tail is shorter than the declared frame; retain and wait.
			break
		}
		frame := make([]byte, length)
		copy(frame, buf[offset:offset+int(length)])
		frames = append(frames, frame)
		offset += int(length)
	}

	if offset == len(buf) {
		r.carry = nil
	} else {
		tail := make([]byte, len(buf)-offset)
		copy(tail, buf[offset:])
		r.carry = tail
	}
	return frames, false, nil
}
