package client

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/charmbracelet/log"
	channels "gopkg.in/eapache/channels.v1"

	"github.com/vnetkit/rtnl/callback"
	"github.com/vnetkit/rtnl/internal/worker"
	"github.com/vnetkit/rtnl/marshal"
	"github.com/vnetkit/rtnl/registry"
	"github.com/vnetkit/rtnl/wire"
)

// readRetryDelay is the brief yield the bridge reader takes after a
// transient read error before retrying.
const readRetryDelay = 10 * time.Millisecond

// Supervisor owns the bridge endpoint and the reader/reassembler thread
// pair, and implements the startup/shutdown protocol that brings them up
// and tears them down in step with the rest of the client.
type Supervisor struct {
	worker.Worker

	log *log.Logger

	bridge net.Conn
	blobs  *channels.InfiniteChannel

	reassembler *wire.Reassembler
	reg         *registry.Registry
	chain       *callback.Chain
	dispatcher  *Dispatcher
	ctrl        *Control

	readyCh chan struct{}
}

// NewSupervisor wires a Supervisor over an already-connected bridge
// endpoint (the client side of a transport.Transport pair).
func NewSupervisor(bridge net.Conn, reg *registry.Registry, chain *callback.Chain, dispatcher *Dispatcher, ctrl *Control, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default().WithPrefix("client.supervisor")
	}
	return &Supervisor{
		log:         logger,
		bridge:      bridge,
		blobs:       channels.NewInfiniteChannel(),
		reassembler: wire.NewReassembler(),
		reg:         reg,
		chain:       chain,
		dispatcher:  dispatcher,
		ctrl:        ctrl,
		readyCh:     make(chan struct{}),
	}
}

// Start spawns the bridge reader and reassembler/parser threads and then
// closes the Ready channel; it does not wait for either thread to run.
func (s *Supervisor) Start() {
	s.Go(s.readLoop)
	s.Go(s.parseLoop)
	close(s.readyCh)
}

// Ready blocks until Start has installed both I/O threads.
func (s *Supervisor) Ready() <-chan struct{} { return s.readyCh }

// readLoop blocks on the bridge endpoint, pushing each recv'd blob into
// the unbounded channel feeding the reassembler. A transient read error
// is retried after readRetryDelay; Halt or a closed endpoint ends it.
func (s *Supervisor) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-s.HaltCh():
			return
		default:
		}
		n, err := s.bridge.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-s.HaltCh():
				return
			case <-time.After(readRetryDelay):
				continue
			}
		}
		blob := make([]byte, n)
		copy(blob, buf[:n])
		s.blobs.In() <- blob
	}
}

// parseLoop consumes the blob channel, runs the reassembly algorithm,
// and routes each complete envelope to the control plane or the
// dispatcher.
func (s *Supervisor) parseLoop() {
	for raw := range s.blobs.Out() {
		blob, ok := raw.([]byte)
		if !ok {
			return // terminator pushed by Release
		}
		frames, shutdown, err := s.reassembler.Feed(blob)
		if err != nil {
			s.log.Warnf("reassembler: %v", err)
		}
		for _, frame := range frames {
			s.handleFrame(frame)
		}
		if shutdown {
			return
		}
	}
}

func (s *Supervisor) handleFrame(frame []byte) {
	env, err := wire.Decode(frame)
	if err != nil {
		s.log.Warnf("decode envelope: %v", err)
		return
	}

	if env.IsManagementReply() {
		mm, err := marshal.DecodeManagement(env.CData())
		if err != nil {
			s.log.Warnf("decode management reply: %v", err)
			return
		}
		s.chain.Dispatch(mm)
		s.reg.Deliver(env.Sequence, mm)
		return
	}

	if err := s.dispatcher.Deliver(env, func(m *marshal.Message) { s.chain.Dispatch(m) }, s.ctrl.Mirror()); err != nil {
		s.log.Warnf("deliver envelope %d: %v", env.Sequence, err)
	}
}

// Release implements the shutdown protocol: it does not disconnect
// realms itself (the Client does, via Control, before calling Release)
// but it stops both I/O threads: it writes the shutdown sentinel to the
// far side, closes the bridge endpoint (which unblocks the reader), pushes
// a terminator to the parser, and joins them both. No thread outlives
// Release.
func (s *Supervisor) Release() error {
	s.Halt()
	// The sentinel write unblocks a far side parked mid-read; a deadline
	// keeps Release from parking itself when nobody is reading.
	s.bridge.SetWriteDeadline(time.Now().Add(readRetryDelay))
	if _, err := s.bridge.Write(wire.ShutdownSentinel); err != nil {
		s.log.Debugf("release: write shutdown sentinel: %v", err)
	}
	s.bridge.Close()
	s.blobs.In() <- struct{}{} // non-[]byte terminator unblocks parseLoop
	s.Wait()
	s.blobs.Close()
	return nil
}
