package marshal

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Cmd identifies a management-message command. Management replies are
// always terminal, never multi-part.
type Cmd uint16

const (
	CmdAck Cmd = iota
	CmdServe
	CmdShutdown
	CmdConnect
	CmdDisconnect
	CmdSubscribe
	CmdUnsubscribe
)

func (c Cmd) String() string {
	switch c {
	case CmdAck:
		return "ACK"
	case CmdServe:
		return "SERVE"
	case CmdShutdown:
		return "SHUTDOWN"
	case CmdConnect:
		return "CONNECT"
	case CmdDisconnect:
		return "DISCONNECT"
	case CmdSubscribe:
		return "SUBSCRIBE"
	case CmdUnsubscribe:
		return "UNSUBSCRIBE"
	default:
		return fmt.Sprintf("Cmd(%d)", uint16(c))
	}
}

// Attribute names used by the control plane.
const (
	AttrHost    = "IPR_ATTR_HOST"
	AttrAddr    = "IPR_ATTR_ADDR"
	AttrSSLKey  = "IPR_ATTR_SSL_KEY"
	AttrSSLCert = "IPR_ATTR_SSL_CERT"
	AttrSSLCA   = "IPR_ATTR_SSL_CA"
	AttrKey     = "IPR_ATTR_KEY"
	AttrCID     = "IPR_ATTR_CID"
)

// SubscriptionKey is the AttrKey payload of a SUBSCRIBE command: the host
// matches broadcast traffic by masking the envelope bytes at Offset with
// Mask and comparing against Key. The zero Mask matches everything.
type SubscriptionKey struct {
	Offset uint32
	Key    uint32
	Mask   uint32
}

// ManagementMessage is the body of a CONTROL-type envelope.
type ManagementMessage struct {
	Cmd   Cmd
	Attrs []Attr

	raw []byte
}

// Attr looks up the first attribute with the given name.
func (m *ManagementMessage) Attr(name string) (any, bool) {
	for _, a := range m.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// IsMulti always returns false: management replies are terminal.
func (m *ManagementMessage) IsMulti() bool { return false }

// IsDone always returns false; management messages have no DONE sentinel,
// they simply aren't multi-part (see IsMulti).
func (m *ManagementMessage) IsDone() bool { return false }

// Err always returns nil; a rejected management command is surfaced as
// ControlRejected by the control-plane client, not via the header.
func (m *ManagementMessage) Err() error { return nil }

func (m *ManagementMessage) Encode() ([]byte, error) {
	b, err := cbor.Marshal(m)
	if err != nil {
		return nil, err
	}
	m.raw = b
	return b, nil
}

// DecodeManagement parses a management-message blob.
func DecodeManagement(b []byte) (*ManagementMessage, error) {
	m := &ManagementMessage{}
	if err := cbor.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("marshal: decode management message: %w", err)
	}
	m.raw = append([]byte(nil), b...)
	return m, nil
}
