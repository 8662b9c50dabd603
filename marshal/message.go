// Package marshal defines the inner-message contract the dispatcher and
// registry depend on, plus a closed set of message kinds used by the
// reference Marshal implementation and by tests. Implementations of the
// real kernel message catalog plug in their own Marshal; this package only
// models the shape the core needs (a typed header plus an attribute list),
// not the kernel's actual encodings.
package marshal

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind is the closed set of inner message types this reference
// implementation understands. Real deployments carry many more kinds
// (RTM_NEWLINK, RTM_NEWADDR, ...); those live in the family-specific
// message catalog, not here.
type Kind uint16

const (
	// KindDone is the sentinel terminating a multi-part reply stream.
	KindDone Kind = iota
	KindLink
	KindAddr
	KindRoute
	KindNeigh
	KindRule
	KindTC
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindDone:
		return "DONE"
	case KindLink:
		return "LINK"
	case KindAddr:
		return "ADDR"
	case KindRoute:
		return "ROUTE"
	case KindNeigh:
		return "NEIGH"
	case KindRule:
		return "RULE"
	case KindTC:
		return "TC"
	case KindError:
		return "ERROR"
	default:
		return fmt.Sprintf("Kind(%d)", uint16(k))
	}
}

// Flag bits carried in an inner message's header.
const (
	// FlagMulti marks one message in a series terminated by KindDone.
	FlagMulti uint16 = 1 << iota
	FlagRequest
	FlagDump
	FlagAck
)

// Header is the portion of an inner message the core ever looks at.
type Header struct {
	Type      Kind
	Flags     uint16
	Sequence  uint32
	PID       uint32
	ErrorCode *int32 `cbor:",omitempty"`
}

// Attr is one entry of an inner message's open attribute list: a name and
// a discriminated value. Value is whatever the concrete Kind's schema
// says it should be; the core never interprets it.
type Attr struct {
	Name  string
	Value any
}

// Message is the reference inner-message collaborator: a typed header, an
// ordered attribute list, and the raw bytes it was decoded from (or will
// encode to).
type Message struct {
	Header Header
	Attrs  []Attr

	raw []byte
}

// IsMulti satisfies registry.Message.
func (m *Message) IsMulti() bool { return m.Header.Flags&FlagMulti != 0 }

// IsDone satisfies registry.Message.
func (m *Message) IsDone() bool { return m.Header.Type == KindDone }

// Err satisfies registry.Message, surfacing the inner header's error code
// (if any) as a *RequestFailedError.
func (m *Message) Err() error {
	if m.Header.ErrorCode == nil {
		return nil
	}
	return &RequestFailedError{Code: int(*m.Header.ErrorCode)}
}

// Raw returns the bytes this message was last decoded from, or nil if it
// was constructed fresh and never encoded.
func (m *Message) Raw() []byte { return m.raw }

// Reset clears the cached raw bytes so the message is ready to be
// re-encoded.
func (m *Message) Reset() { m.raw = nil }

// Attr looks up the first attribute with the given name.
func (m *Message) Attr(name string) (any, bool) {
	for _, a := range m.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// Encode serializes the message and caches the result as Raw().
func (m *Message) Encode() ([]byte, error) {
	b, err := cbor.Marshal(m)
	if err != nil {
		return nil, err
	}
	m.raw = b
	return b, nil
}

// Decode parses an inner-message blob produced by Encode.
func Decode(b []byte) (*Message, error) {
	m := &Message{}
	if err := cbor.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("marshal: decode: %w", err)
	}
	m.raw = append([]byte(nil), b...)
	return m, nil
}

// RequestFailedError is the error kind surfaced from a request whose inner
// header carried a non-null error code.
type RequestFailedError struct {
	Code int
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("marshal: request failed with code %d", e.Code)
}
