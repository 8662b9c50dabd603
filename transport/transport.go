// Package transport defines the socket-pair collaborator the I/O
// supervisor speaks to, and ships two concrete implementations: an
// in-process pipe for tests and a quic-go-backed remote bridge for
// exercising a real datagram transport.
package transport

import (
	"errors"
	"net"
)

// ErrNotControl is returned by SetControl when host was never registered
// with this Transport's AddClient.
var ErrNotControl = errors.New("transport: endpoint is not a known member")

// Transport is the socket-pair factory and control-set membership API the
// client builds on. NewPair returns two ends of a datagram-style
// connection: the "client" end is handed to the I/O supervisor, the
// "host" end is kept by the transport implementation (a remote peer, a
// local test double, whatever actually moves bytes).
type Transport interface {
	// NewPair returns (clientEnd, hostEnd). Writes to one side arrive as
	// whole datagrams on reads from the other.
	NewPair() (client net.Conn, host net.Conn, err error)

	// AddClient registers a new client connection with the transport
	// host, e.g. to start relaying its datagrams to a remote peer.
	AddClient(host net.Conn) error

	// SetControl marks host as a control channel, exempt from whatever
	// data-plane policy (rate limiting, realm accounting) the transport
	// applies to ordinary traffic.
	SetControl(host net.Conn) error

	// Reload re-reads the transport's own configuration without
	// disturbing established connections.
	Reload() error

	// Start brings the transport host up; Stop tears it down. Both are
	// idempotent.
	Start() error
	Stop() error
}
