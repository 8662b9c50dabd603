package client

import (
	"encoding/binary"
	"net"

	"github.com/vnetkit/rtnl/marshal"
	"github.com/vnetkit/rtnl/wire"
)

// testHost is a minimal stand-in for the far side of the bridge: it
// reads whole envelopes off host (using the same length-prefix framing
// the reassembler expects) and hands each to a caller-supplied handler,
// which may write a reply back through host itself.
type testHost struct {
	conn    net.Conn
	handler func(env *wire.Envelope, reply func(*wire.Envelope))
}

func newTestHost(conn net.Conn, handler func(env *wire.Envelope, reply func(*wire.Envelope))) *testHost {
	h := &testHost{conn: conn, handler: handler}
	go h.loop()
	return h
}

func (h *testHost) loop() {
	var carry []byte
	buf := make([]byte, 4096)
	for {
		n, err := h.conn.Read(buf)
		if err != nil {
			return
		}
		carry = append(carry, buf[:n]...)
		for len(carry) >= 8 {
			length := binary.LittleEndian.Uint32(carry[0:4])
			if uint32(len(carry)) < length {
				break
			}
			frame := carry[:length]
			carry = carry[length:]
			env, err := wire.Decode(frame)
			if err != nil {
				continue
			}
			h.handler(env, func(reply *wire.Envelope) {
				b, err := wire.Encode(reply)
				if err != nil {
					return
				}
				h.conn.Write(b)
			})
		}
	}
}

func managementAck(seq uint32) *wire.Envelope {
	ack := &marshal.ManagementMessage{Cmd: marshal.CmdAck}
	payload, _ := ack.Encode()
	return &wire.Envelope{
		Type:     wire.Control,
		Flags:    wire.FlagManagementReply,
		Sequence: seq,
		Attrs:    []wire.Attr{{Kind: wire.CDATA, Value: payload}},
	}
}
