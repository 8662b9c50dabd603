// Package client assembles the wire, seqno, registry, callback and
// marshal packages into the request/response multiplexer described by
// the envelope protocol: a Dispatcher for user requests, a Control
// helper for management commands, and a Supervisor owning the I/O
// threads that feed them both.
package client

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vnetkit/rtnl/marshal"
	"github.com/vnetkit/rtnl/registry"
	"github.com/vnetkit/rtnl/seqno"
	"github.com/vnetkit/rtnl/wire"
)

// BridgeWriter is the single atomic-datagram write side of the bridge
// endpoint; implemented by the net.Conn the Supervisor holds.
type BridgeWriter interface {
	Write(b []byte) (int, error)
}

// Dispatcher builds, sends and collects replies for transport-type
// requests. It holds no realm bookkeeping of its own: callers
// resolve a concrete realm (e.g. via Control's default realm) before
// calling Request.
type Dispatcher struct {
	seq *seqno.Allocator
	reg *registry.Registry
	ma  marshal.Marshal
	bw  BridgeWriter
	pid uint32

	// Debug keeps each returned message's Header instead of zeroing it
	// after a request completes. Raw() is reset either way.
	Debug bool
}

// NewDispatcher wires a Dispatcher over the given registry, sequence
// allocator, Marshal and bridge writer.
func NewDispatcher(reg *registry.Registry, seq *seqno.Allocator, ma marshal.Marshal, bw BridgeWriter) *Dispatcher {
	return &Dispatcher{seq: seq, reg: reg, ma: ma, bw: bw, pid: uint32(os.Getpid())}
}

// Request allocates a sequence, registers a listener, ships msg inside a
// transport envelope addressed to realm, and blocks collecting the reply
// stream. msg's Header.Type/Flags are taken as given; Request overwrites
// only Sequence and PID before encoding.
func (d *Dispatcher) Request(msg *marshal.Message, envFlags uint16, realm uint32, timeout time.Duration, raw bool) ([]*marshal.Message, error) {
	seq := d.seq.Next()
	if err := d.reg.Register(seq, false); err != nil {
		return nil, fmt.Errorf("client: register listener for %d: %w", seq, err)
	}

	msg.Header.Sequence = seq
	msg.Header.PID = d.pid
	inner, err := msg.Encode()
	if err != nil {
		d.reg.Remove(seq)
		return nil, fmt.Errorf("client: encode inner message: %w", err)
	}

	env := &wire.Envelope{
		Type:     wire.Transport,
		Flags:    envFlags,
		Sequence: seq,
		PID:      d.pid,
		Src:      0,
		Dst:      realm,
		Attrs:    []wire.Attr{{Kind: wire.CDATA, Value: inner}},
	}
	b, err := wire.Encode(env)
	if err != nil {
		d.reg.Remove(seq)
		return nil, fmt.Errorf("client: encode envelope: %w", err)
	}
	if _, err := d.bw.Write(b); err != nil {
		d.reg.Remove(seq)
		return nil, fmt.Errorf("client: write envelope: %w", err)
	}

	out, err := d.collect(seq, timeout, raw)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dispatcher) collect(seq uint32, timeout time.Duration, raw bool) ([]*marshal.Message, error) {
	got, err := d.reg.Get(seq, timeout, raw)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrTimeout):
			return nil, &TimeoutError{Sequence: seq}
		case errors.Is(err, registry.ErrShutdown):
			return nil, ErrShutdown{}
		default:
			return nil, err
		}
	}

	out := make([]*marshal.Message, 0, len(got))
	for _, m := range got {
		mm, ok := m.(*marshal.Message)
		if !ok {
			continue
		}
		// Returned messages are copies, reset so the caller can re-encode
		// them; the transport header is stripped unless debug mode keeps it.
		// The parsed value itself, which mirror mode also shares into the
		// broadcast queue, is left untouched.
		cp := *mm
		cp.Reset()
		if !d.Debug {
			cp.Header = marshal.Header{}
		}
		out = append(out, &cp)
	}
	return out, nil
}

// Deliver decodes env's CDATA payload via Marshal and delivers each parsed
// message to the listener registry under env.Sequence, running cb first
// if non-nil: the Marshal-decode, callback-chain, enqueue leg of the
// inbound path.
func (d *Dispatcher) Deliver(env *wire.Envelope, cb func(*marshal.Message), mirror bool) error {
	msgs, err := d.ma.Parse(env.CData())
	if err != nil {
		return fmt.Errorf("client: parse envelope %d: %w", env.Sequence, err)
	}
	for _, m := range msgs {
		d.ma.FixMessage(m)
		if cb != nil {
			cb(m)
		}
		d.reg.Deliver(env.Sequence, m)
		if mirror && env.Sequence != registry.BroadcastKey {
			// Messages are immutable once parsed, so mirror mode shares
			// the parsed value instead of re-decoding Raw().
			d.reg.Deliver(registry.BroadcastKey, m)
		}
	}
	return nil
}
