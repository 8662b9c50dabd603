package marshal

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Marshal turns the raw CDATA payload carried inside an Envelope into
// zero or more typed messages, and optionally patches a parsed message
// before it reaches a listener. A Client holds exactly one instance per
// connection, configured for the message family it speaks.
type Marshal interface {
	// Parse decodes b (an Envelope's CDATA attribute) into the sequence
	// of messages it represents. A single CDATA blob can carry more than
	// one inner message back-to-back, matching the kernel's own netlink
	// multi-message-per-datagram behavior.
	Parse(b []byte) ([]*Message, error)

	// FixMessage is called once per parsed message, after Parse and
	// before delivery, so a collaborator can patch in information Parse
	// itself doesn't have (e.g. resolving the Sequence to a request's
	// original arguments). The default implementation is a no-op.
	FixMessage(msg *Message)
}

// DefaultMarshal is the reference Marshal used by tests and by callers
// that don't need kernel-catalog-specific patching. It decodes a CDATA
// blob as a back-to-back sequence of CBOR-encoded Message values, so Parse
// can split a multi-message blob without needing the kernel's own
// length-prefixed netlink framing.
type DefaultMarshal struct{}

// NewDefault returns a DefaultMarshal.
func NewDefault() *DefaultMarshal { return &DefaultMarshal{} }

// Parse splits b into CBOR items and decodes each with Decode. Unlike the
// outer wire.Reassembler, items here are not length-prefixed: CBOR is
// self-delimiting, so decoding one item tells us where the next begins.
func (DefaultMarshal) Parse(b []byte) ([]*Message, error) {
	var out []*Message
	for len(b) > 0 {
		msg, n, err := decodePrefix(b)
		if err != nil {
			return nil, fmt.Errorf("marshal: parse: %w", err)
		}
		out = append(out, msg)
		b = b[n:]
	}
	return out, nil
}

// FixMessage is a no-op for the reference implementation.
func (DefaultMarshal) FixMessage(*Message) {}

// decodePrefix decodes a single CBOR-encoded Message from the front of b
// and reports how many bytes it consumed, so the caller can continue
// decoding the remainder.
func decodePrefix(b []byte) (*Message, int, error) {
	r := bytes.NewReader(b)
	dec := cbor.NewDecoder(r)
	m := &Message{}
	if err := dec.Decode(m); err != nil {
		return nil, 0, err
	}
	n := dec.NumBytesRead()
	m.raw = append([]byte(nil), b[:n]...)
	return m, n, nil
}
