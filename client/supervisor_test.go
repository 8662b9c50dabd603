package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vnetkit/rtnl/callback"
	"github.com/vnetkit/rtnl/marshal"
	"github.com/vnetkit/rtnl/registry"
	"github.com/vnetkit/rtnl/seqno"
	"github.com/vnetkit/rtnl/transport"
	"github.com/vnetkit/rtnl/wire"
)

func TestSupervisorRoutesTransportEnvelopeToDispatcher(t *testing.T) {
	tr := transport.NewPipe()
	clientConn, hostConn, err := tr.NewPair()
	require.NoError(t, err)
	defer clientConn.Close()
	defer hostConn.Close()

	reg := registry.New()
	require.NoError(t, reg.Register(5, false))
	seq := seqno.New()
	chain := callback.New(nil)
	dispatcher := NewDispatcher(reg, seq, marshal.NewDefault(), clientConn)
	ctrl := NewControl(reg, seq, clientConn)

	sup := NewSupervisor(clientConn, reg, chain, dispatcher, ctrl, nil)
	sup.Start()
	defer sup.Release()

	var seen []string
	chain.Register(callback.Always, func(msg any, args ...any) {
		if m, ok := msg.(*marshal.Message); ok {
			seen = append(seen, m.Header.Type.String())
		}
	})

	m := &marshal.Message{Header: marshal.Header{Type: marshal.KindLink, Sequence: 5}}
	b, err := m.Encode()
	require.NoError(t, err)
	env := &wire.Envelope{Type: wire.Transport, Sequence: 5, Attrs: []wire.Attr{{Kind: wire.CDATA, Value: b}}}
	encoded, err := wire.Encode(env)
	require.NoError(t, err)

	_, err = hostConn.Write(encoded)
	require.NoError(t, err)

	got, err := reg.Get(5, time.Second, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Eventually(t, func() bool { return len(seen) == 1 }, time.Second, time.Millisecond)
}

func TestSupervisorRoutesManagementReplyToControl(t *testing.T) {
	tr := transport.NewPipe()
	clientConn, hostConn, err := tr.NewPair()
	require.NoError(t, err)
	defer clientConn.Close()
	defer hostConn.Close()

	reg := registry.New()
	require.NoError(t, reg.Register(9, false))
	seq := seqno.New()
	chain := callback.New(nil)
	dispatcher := NewDispatcher(reg, seq, marshal.NewDefault(), clientConn)
	ctrl := NewControl(reg, seq, clientConn)

	sup := NewSupervisor(clientConn, reg, chain, dispatcher, ctrl, nil)
	sup.Start()
	defer sup.Release()

	ack := &marshal.ManagementMessage{Cmd: marshal.CmdAck}
	payload, err := ack.Encode()
	require.NoError(t, err)
	env := &wire.Envelope{Type: wire.Control, Flags: wire.FlagManagementReply, Sequence: 9, Attrs: []wire.Attr{{Kind: wire.CDATA, Value: payload}}}
	encoded, err := wire.Encode(env)
	require.NoError(t, err)

	_, err = hostConn.Write(encoded)
	require.NoError(t, err)

	got, err := reg.Get(9, time.Second, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	mm, ok := got[0].(*marshal.ManagementMessage)
	require.True(t, ok)
	require.Equal(t, marshal.CmdAck, mm.Cmd)
}
