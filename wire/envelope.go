// Package wire implements the outer envelope that multiplexes requests,
// replies and broadcasts across realms, and the reassembler that recovers
// whole envelopes from a stream-oriented bridge.
//
// The envelope is a fixed 16-byte header (length, type, flags, sequence,
// pid), two 4-byte realm fields (src, dst), and a TLV attribute list
// carrying exactly one CDATA attribute with the opaque inner-message bytes.
// The codec never looks inside CDATA.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Type is the envelope's outer message type.
type Type uint16

const (
	// Transport marks an envelope carrying ordinary, Marshal-decoded
	// user traffic.
	Transport Type = iota
	// Control marks an envelope carrying a management message, decoded
	// by the control-plane client rather than the pluggable Marshal.
	Control
)

// Flag bits carried in the envelope header.
const (
	// FlagManagementReply distinguishes a management reply from a
	// user-data reply on the same sequence number.
	FlagManagementReply uint16 = 1
)

const (
	headerSize = 16 // length(4) type(2) flags(2) sequence(4) pid(4)
	realmsSize = 8  // src(4) dst(4)
	// MinEnvelopeSize is the smallest legal envelope: header + realms,
	// no attributes.
	MinEnvelopeSize = headerSize + realmsSize
)

// AttrKind identifies a TLV attribute. The only kind the codec interprets
// by name is CDATA; all others round-trip opaquely.
type AttrKind uint16

// CDATA carries the opaque inner-message bytes.
const CDATA AttrKind = 1

// Attr is one TLV entry in an envelope's attribute list.
type Attr struct {
	Kind  AttrKind
	Value []byte
}

// Envelope is the decoded outer frame.
type Envelope struct {
	Type     Type
	Flags    uint16
	Sequence uint32
	PID      uint32
	Src      uint32
	Dst      uint32
	Attrs    []Attr
}

// CData returns the payload of the first CDATA attribute, or nil if none
// is present.
func (e *Envelope) CData() []byte {
	for _, a := range e.Attrs {
		if a.Kind == CDATA {
			return a.Value
		}
	}
	return nil
}

// IsManagementReply reports whether Flags carries FlagManagementReply.
func (e *Envelope) IsManagementReply() bool {
	return e.Flags&FlagManagementReply != 0
}

// MalformedEnvelopeError is returned by Decode when the header disagrees
// with the actual input size, or the input is too short to contain a
// header.
type MalformedEnvelopeError struct {
	Reason string
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("wire: malformed envelope: %s", e.Reason)
}

func newMalformed(format string, args ...any) *MalformedEnvelopeError {
	return &MalformedEnvelopeError{Reason: fmt.Sprintf(format, args...)}
}

// attrTLVHeaderSize is the size of one TLV header: kind(2) + length(4).
const attrTLVHeaderSize = 6

// Encode serializes env to the wire format, computing Length itself.
func Encode(env *Envelope) ([]byte, error) {
	attrsLen := 0
	for _, a := range env.Attrs {
		attrsLen += attrTLVHeaderSize + len(a.Value)
	}
	total := MinEnvelopeSize + attrsLen
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(env.Type))
	binary.LittleEndian.PutUint16(buf[6:8], env.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], env.Sequence)
	binary.LittleEndian.PutUint32(buf[12:16], env.PID)
	binary.LittleEndian.PutUint32(buf[16:20], env.Src)
	binary.LittleEndian.PutUint32(buf[20:24], env.Dst)

	off := headerSize + realmsSize
	for _, a := range env.Attrs {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(a.Kind))
		binary.LittleEndian.PutUint32(buf[off+2:off+6], uint32(len(a.Value)))
		off += attrTLVHeaderSize
		copy(buf[off:off+len(a.Value)], a.Value)
		off += len(a.Value)
	}
	return buf, nil
}

// Decode parses a single envelope from b. It fails with
// *MalformedEnvelopeError if the header's declared length disagrees with
// len(b), or a TLV runs past the end of the buffer.
func Decode(b []byte) (*Envelope, error) {
	if len(b) < MinEnvelopeSize {
		return nil, newMalformed("input too short for header: %d bytes", len(b))
	}
	length := binary.LittleEndian.Uint32(b[0:4])
	if int(length) != len(b) {
		return nil, newMalformed("declared length %d != input size %d", length, len(b))
	}

	env := &Envelope{
		Type:     Type(binary.LittleEndian.Uint16(b[4:6])),
		Flags:    binary.LittleEndian.Uint16(b[6:8]),
		Sequence: binary.LittleEndian.Uint32(b[8:12]),
		PID:      binary.LittleEndian.Uint32(b[12:16]),
		Src:      binary.LittleEndian.Uint32(b[16:20]),
		Dst:      binary.LittleEndian.Uint32(b[20:24]),
	}

	off := headerSize + realmsSize
	for off < len(b) {
		if off+attrTLVHeaderSize > len(b) {
			return nil, newMalformed("truncated attribute header at offset %d", off)
		}
		kind := AttrKind(binary.LittleEndian.Uint16(b[off : off+2]))
		alen := binary.LittleEndian.Uint32(b[off+2 : off+6])
		off += attrTLVHeaderSize
		if off+int(alen) > len(b) {
			return nil, newMalformed("attribute value runs past end of envelope (kind %d)", kind)
		}
		value := make([]byte, alen)
		copy(value, b[off:off+int(alen)])
		env.Attrs = append(env.Attrs, Attr{Kind: kind, Value: value})
		off += int(alen)
	}

	return env, nil
}
