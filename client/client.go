package client

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vnetkit/rtnl/callback"
	"github.com/vnetkit/rtnl/config"
	"github.com/vnetkit/rtnl/marshal"
	"github.com/vnetkit/rtnl/registry"
	"github.com/vnetkit/rtnl/seqno"
	"github.com/vnetkit/rtnl/transport"
)

// Client is the public entry point: it owns one bridge connection to a
// transport.Transport, the shared registry/sequence allocator/callback
// chain, and the Dispatcher/Control/Supervisor built on top of them.
type Client struct {
	mu       sync.Mutex
	released bool

	log *log.Logger
	cfg *config.Config

	tr         transport.Transport
	registry   *registry.Registry
	seq        *seqno.Allocator
	chain      *callback.Chain
	dispatcher *Dispatcher
	control    *Control
	supervisor *Supervisor
}

// New brings up a Client: it asks tr for a new socket pair, attaches the
// host side to tr, starts the Supervisor's I/O threads, and (if
// cfg.Client.Host is set) connects the default realm and optionally
// subscribes to broadcasts.
func New(cfg *config.Config, tr transport.Transport, ma marshal.Marshal) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if ma == nil {
		ma = marshal.NewDefault()
	}

	logger := newLogger(cfg.Log)

	client, host, err := tr.NewPair()
	if err != nil {
		return nil, fmt.Errorf("client: new socket pair: %w", err)
	}
	if err := tr.AddClient(host); err != nil {
		client.Close()
		host.Close()
		return nil, fmt.Errorf("client: add client: %w", err)
	}
	if err := tr.SetControl(host); err != nil {
		client.Close()
		host.Close()
		return nil, fmt.Errorf("client: set control: %w", err)
	}
	if err := tr.Start(); err != nil {
		client.Close()
		host.Close()
		return nil, fmt.Errorf("client: start transport: %w", err)
	}

	reg := registry.New()
	seq := seqno.New()
	chain := callback.New(logger.WithPrefix("callback"))
	dispatcher := NewDispatcher(reg, seq, ma, client)
	dispatcher.Debug = cfg.Client.Debug
	ctrl := NewControl(reg, seq, client)
	sup := NewSupervisor(client, reg, chain, dispatcher, ctrl, logger.WithPrefix("supervisor"))

	c := &Client{
		log:        logger,
		cfg:        cfg,
		tr:         tr,
		registry:   reg,
		seq:        seq,
		chain:      chain,
		dispatcher: dispatcher,
		control:    ctrl,
		supervisor: sup,
	}

	sup.Start()
	<-sup.Ready()

	if cfg.Client.Host != "" {
		if _, err := ctrl.Connect(cfg.Client.Host, nil); err != nil {
			c.Release()
			return nil, fmt.Errorf("client: connect default realm: %w", err)
		}
	}
	if cfg.Client.Mirror {
		if err := ctrl.MirrorMode(true); err != nil {
			c.Release()
			return nil, fmt.Errorf("client: enable mirror mode: %w", err)
		}
	} else if cfg.Client.Monitor {
		if err := ctrl.Monitor(true); err != nil {
			c.Release()
			return nil, fmt.Errorf("client: enable monitor: %w", err)
		}
	}

	return c, nil
}

func newLogger(cfg config.LogConfig) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: cfg.ReportTime,
		Prefix:          "rtnl",
	})
	if cfg.Level != "" {
		if lvl, err := log.ParseLevel(cfg.Level); err == nil {
			l.SetLevel(lvl)
		}
	}
	return l
}

// Callbacks exposes the synchronous predicate/action chain so callers
// can Register/Unregister observers.
func (c *Client) Callbacks() *callback.Chain { return c.chain }

// Request issues a transport-type request and blocks for its reply
// stream, resolving realm to the default realm when zero.
func (c *Client) Request(msg *marshal.Message, envFlags uint16, realm uint32, raw bool) ([]*marshal.Message, error) {
	c.mu.Lock()
	released := c.released
	c.mu.Unlock()
	if released {
		return nil, ErrShutdown{}
	}

	if realm == 0 {
		def, ok := c.control.DefaultRealm()
		if !ok {
			return nil, &RealmNotFoundError{Realm: realm}
		}
		realm = def
	}
	return c.dispatcher.Request(msg, envFlags, realm, c.cfg.Client.RequestTimeout(), raw)
}

// RequestTimeout issues a Request with an explicit timeout override.
func (c *Client) RequestTimeout(msg *marshal.Message, envFlags uint16, realm uint32, raw bool, timeout time.Duration) ([]*marshal.Message, error) {
	c.mu.Lock()
	released := c.released
	c.mu.Unlock()
	if released {
		return nil, ErrShutdown{}
	}
	if realm == 0 {
		def, ok := c.control.DefaultRealm()
		if !ok {
			return nil, &RealmNotFoundError{Realm: realm}
		}
		realm = def
	}
	return c.dispatcher.Request(msg, envFlags, realm, timeout, raw)
}

// Connect, Disconnect, Serve, Shutdown, Monitor and Mirror expose the
// control-plane client directly.
func (c *Client) Connect(host string, creds map[string]string) (uint32, error) {
	return c.control.Connect(host, creds)
}

func (c *Client) Disconnect(realm uint32) error {
	return c.control.Disconnect(realm)
}

func (c *Client) Serve(url string, creds map[string]string) error {
	return c.control.Serve(url, creds)
}

func (c *Client) ShutdownRemote(url string) error {
	return c.control.Shutdown(url)
}

func (c *Client) Monitor(on bool) error {
	return c.control.Monitor(on)
}

func (c *Client) Mirror(on bool) error {
	return c.control.MirrorMode(on)
}

// Release shuts the client down: disconnect every realm, stop the I/O
// threads, and close the transport. It is safe to call more than once.
func (c *Client) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	c.mu.Unlock()

	for realm := range c.snapshotRealms() {
		if err := c.control.Disconnect(realm); err != nil {
			c.log.Warnf("release: disconnect realm %d: %v", realm, err)
		}
	}

	if err := c.supervisor.Release(); err != nil {
		return err
	}
	c.registry.Shutdown()
	return c.tr.Stop()
}

func (c *Client) snapshotRealms() map[uint32]bool {
	c.control.mu.Lock()
	defer c.control.mu.Unlock()
	out := make(map[uint32]bool, len(c.control.realms))
	for k, v := range c.control.realms {
		out[k] = v
	}
	return out
}
