package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vnetkit/rtnl/marshal"
	"github.com/vnetkit/rtnl/registry"
	"github.com/vnetkit/rtnl/seqno"
	"github.com/vnetkit/rtnl/wire"
)

const controlTimeout = 10 * time.Second

// Control implements the management side of the protocol. Every
// operation goes through one helper: send a CONTROL-type envelope with
// the management-reply flag set and expect exactly one ACK in return.
type Control struct {
	mu sync.Mutex

	seq *seqno.Allocator
	reg *registry.Registry
	bw  BridgeWriter

	realms       map[uint32]bool
	defaultRealm uint32
	haveDefault  bool

	// cid is the broadcast channel id returned by SUBSCRIBE, needed to
	// UNSUBSCRIBE later.
	cid     uint32
	haveCID bool

	mirror bool
}

// NewControl wires a Control over the same registry and sequence
// allocator the Dispatcher uses, since both share one listener space.
func NewControl(reg *registry.Registry, seq *seqno.Allocator, bw BridgeWriter) *Control {
	return &Control{seq: seq, reg: reg, bw: bw, realms: make(map[uint32]bool)}
}

// DefaultRealm returns the realm established by the first successful
// Connect, and whether one has been established yet.
func (c *Control) DefaultRealm() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultRealm, c.haveDefault
}

// Mirror reports whether mirror mode is currently enabled.
func (c *Control) Mirror() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mirror
}

// send ships a management message and blocks for its single ACK-or-fail
// reply. Management replies are always terminal, never multi-part.
func (c *Control) send(cmd marshal.Cmd, attrs []marshal.Attr) (*marshal.ManagementMessage, error) {
	seq := c.seq.Next()
	if err := c.reg.Register(seq, false); err != nil {
		return nil, fmt.Errorf("client: register control listener for %d: %w", seq, err)
	}

	body := &marshal.ManagementMessage{Cmd: cmd, Attrs: attrs}
	payload, err := body.Encode()
	if err != nil {
		c.reg.Remove(seq)
		return nil, fmt.Errorf("client: encode management message: %w", err)
	}

	env := &wire.Envelope{
		Type:     wire.Control,
		Flags:    wire.FlagManagementReply,
		Sequence: seq,
		Dst:      0,
		Attrs:    []wire.Attr{{Kind: wire.CDATA, Value: payload}},
	}
	b, err := wire.Encode(env)
	if err != nil {
		c.reg.Remove(seq)
		return nil, fmt.Errorf("client: encode control envelope: %w", err)
	}
	if _, err := c.bw.Write(b); err != nil {
		c.reg.Remove(seq)
		return nil, fmt.Errorf("client: write control envelope: %w", err)
	}

	got, err := c.reg.Get(seq, controlTimeout, false)
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
	if len(got) != 1 {
		return nil, fmt.Errorf("client: control reply for %d carried %d messages, want 1", seq, len(got))
	}
	reply, ok := got[0].(*marshal.ManagementMessage)
	if !ok {
		return nil, fmt.Errorf("client: control reply for %d was not a management message", seq)
	}
	if reply.Cmd != marshal.CmdAck {
		return nil, &ControlRejectedError{Want: marshal.CmdAck, Got: reply.Cmd}
	}
	return reply, nil
}

// Connect issues CONNECT and registers the returned address as a realm.
// The first realm established becomes the default realm.
func (c *Control) Connect(host string, creds map[string]string) (uint32, error) {
	attrs := []marshal.Attr{{Name: marshal.AttrHost, Value: host}}
	for k, v := range creds {
		attrs = append(attrs, marshal.Attr{Name: k, Value: v})
	}
	reply, err := c.send(marshal.CmdConnect, attrs)
	if err != nil {
		return 0, err
	}
	v, ok := reply.Attr(marshal.AttrAddr)
	if !ok {
		return 0, fmt.Errorf("client: CONNECT reply missing %s", marshal.AttrAddr)
	}
	realm, ok := toUint32(v)
	if !ok {
		return 0, fmt.Errorf("client: CONNECT reply %s has unexpected type %T", marshal.AttrAddr, v)
	}

	c.mu.Lock()
	c.realms[realm] = true
	if !c.haveDefault {
		c.defaultRealm = realm
		c.haveDefault = true
	}
	c.mu.Unlock()
	return realm, nil
}

// Disconnect issues DISCONNECT and removes realm from the set.
func (c *Control) Disconnect(realm uint32) error {
	_, err := c.send(marshal.CmdDisconnect, []marshal.Attr{{Name: marshal.AttrAddr, Value: realm}})
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.realms, realm)
	if c.haveDefault && c.defaultRealm == realm {
		c.haveDefault = false
	}
	c.mu.Unlock()
	return nil
}

// Serve issues SERVE, asking the transport host to listen on url.
func (c *Control) Serve(url string, creds map[string]string) error {
	attrs := []marshal.Attr{{Name: marshal.AttrHost, Value: url}}
	for k, v := range creds {
		attrs = append(attrs, marshal.Attr{Name: k, Value: v})
	}
	_, err := c.send(marshal.CmdServe, attrs)
	return err
}

// Shutdown issues SHUTDOWN against url.
func (c *Control) Shutdown(url string) error {
	_, err := c.send(marshal.CmdShutdown, []marshal.Attr{{Name: marshal.AttrHost, Value: url}})
	return err
}

// Monitor enables or disables the broadcast listener (key 0) via
// SUBSCRIBE/UNSUBSCRIBE, keeping the channel id the host hands back so
// the matching UNSUBSCRIBE can name it.
func (c *Control) Monitor(on bool) error {
	c.mu.Lock()
	subscribed := c.haveCID
	cid := c.cid
	c.mu.Unlock()

	if on {
		if subscribed {
			return nil
		}
		key := marshal.SubscriptionKey{Offset: 8}
		reply, err := c.send(marshal.CmdSubscribe, []marshal.Attr{{Name: marshal.AttrKey, Value: key}})
		if err != nil {
			return err
		}
		if v, ok := reply.Attr(marshal.AttrCID); ok {
			cid, _ = toUint32(v)
		}
		if err := c.reg.Register(registry.BroadcastKey, true); err != nil && !errors.Is(err, registry.ErrDuplicateKey) {
			return err
		}
		c.mu.Lock()
		c.cid = cid
		c.haveCID = true
		c.mu.Unlock()
		return nil
	}

	if !subscribed {
		return nil
	}
	if _, err := c.send(marshal.CmdUnsubscribe, []marshal.Attr{{Name: marshal.AttrCID, Value: cid}}); err != nil {
		return err
	}
	c.reg.Remove(registry.BroadcastKey)
	c.mu.Lock()
	c.cid = 0
	c.haveCID = false
	c.mirror = false
	c.mu.Unlock()
	return nil
}

// MirrorMode enables or disables mirror mode: Monitor(on) plus a flag
// that makes the Dispatcher deliver every message to the broadcast queue
// too, not only unsolicited ones.
func (c *Control) MirrorMode(on bool) error {
	if err := c.Monitor(on); err != nil {
		return err
	}
	c.mu.Lock()
	c.mirror = on
	c.mu.Unlock()
	return nil
}

func toUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint32:
		return n, true
	case uint64:
		return uint32(n), true
	case int64:
		return uint32(n), true
	case int:
		return uint32(n), true
	default:
		return 0, false
	}
}
