// Package registry implements the per-sequence listener map that demuxes
// parsed messages to waiting callers, plus the broadcast listener at key 0.
// Each listener is a bounded FIFO; delivery never blocks the parser, and a
// full or absent queue drops the message rather than stalling inbound I/O.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Capacity is the bound on every per-key queue, including the broadcast
// queue at key 0.
const Capacity = 4096

// BroadcastKey is the reserved listener key for unsolicited messages.
const BroadcastKey uint32 = 0

// Message is the minimal shape registry.Get needs to drive the multi-part
// reply protocol. marshal.Message satisfies this without registry needing
// to import the marshal package.
type Message interface {
	// IsMulti reports whether the inner header carries the MULTI flag.
	IsMulti() bool
	// IsDone reports whether the inner message's type is the DONE
	// sentinel that terminates a multi-part reply.
	IsDone() bool
	// Err returns the error recorded in the inner header, if any.
	Err() error
}

// ErrDuplicateKey is returned by Register when the key is already in use.
var ErrDuplicateKey = errors.New("registry: duplicate listener key")

// ErrShutdown is returned by Get when the registry was shut down while a
// caller was blocked waiting for a message.
var ErrShutdown = errors.New("registry: shut down")

// ErrTimeout is returned by Get when no message arrives for a
// non-persistent, non-broadcast listener within the deadline.
var ErrTimeout = errors.New("registry: timeout")

var (
	droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtnl",
		Subsystem: "registry",
		Name:      "dropped_messages_total",
		Help:      "Messages dropped because a listener queue was full or absent.",
	}, []string{"reason"})

	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rtnl",
		Subsystem: "registry",
		Name:      "listener_queue_depth",
		Help:      "Number of listener queues currently registered (including broadcast).",
	}, []string{})
)

func init() {
	prometheus.MustRegister(droppedTotal, queueDepth)
}

type listener struct {
	ch      chan any // Message, or nil as the shutdown sentinel
	persist bool
}

// Registry maps sequence keys to bounded listener queues.
type Registry struct {
	mu        sync.Mutex
	listeners map[uint32]*listener
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{listeners: make(map[uint32]*listener)}
}

// Register installs a fresh bounded queue under key. persist marks the
// listener as exempt from timeout-driven removal (used for the broadcast
// queue and for monitor/mirror subscriptions).
func (r *Registry) Register(key uint32, persist bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listeners[key]; ok {
		return ErrDuplicateKey
	}
	r.listeners[key] = &listener{ch: make(chan any, Capacity), persist: persist}
	queueDepth.WithLabelValues().Set(float64(len(r.listeners)))
	return nil
}

// DeliverResult reports the outcome of a Deliver call.
type DeliverResult int

const (
	// Delivered means the message was enqueued to key's listener.
	Delivered DeliverResult = iota
	// DeliveredBroadcast means key had no listener, but the message was
	// redelivered to the broadcast queue instead.
	DeliveredBroadcast
	// Full means the target queue was at capacity; the message was
	// dropped and the drop recorded.
	Full
	// Absent means neither key's listener nor the broadcast listener
	// exists; the message was dropped.
	Absent
)

// Deliver performs a non-blocking put of msg under key. If key has no
// listener, it is redelivered to the broadcast key; if that is also
// absent, the message is dropped. Every drop is counted via the registry's
// observability metrics.
func (r *Registry) Deliver(key uint32, msg Message) DeliverResult {
	r.mu.Lock()
	l, ok := r.listeners[key]
	if !ok {
		key = BroadcastKey
		l, ok = r.listeners[key]
	}
	r.mu.Unlock()

	if !ok {
		droppedTotal.WithLabelValues("absent").Inc()
		return Absent
	}

	select {
	case l.ch <- msg:
		if key == BroadcastKey {
			return DeliveredBroadcast
		}
		return Delivered
	default:
		droppedTotal.WithLabelValues("full").Inc()
		return Full
	}
}

// Remove detaches key's listener. Any messages still queued are re-routed
// to the broadcast listener if one exists, otherwise discarded.
func (r *Registry) Remove(key uint32) {
	r.mu.Lock()
	l, ok := r.listeners[key]
	if ok {
		delete(r.listeners, key)
	}
	bcast := r.listeners[BroadcastKey]
	r.mu.Unlock()

	if !ok {
		return
	}
	queueDepth.WithLabelValues().Set(float64(r.Len()))

	if key == BroadcastKey {
		return
	}
	for {
		select {
		case msg := <-l.ch:
			if bcast != nil {
				select {
				case bcast.ch <- msg:
				default:
					droppedTotal.WithLabelValues("full").Inc()
				}
			}
		default:
			return
		}
	}
}

// Len returns the number of currently registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Has reports whether key currently has a registered listener.
func (r *Registry) Has(key uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.listeners[key]
	return ok
}

// Get blocks up to timeout collecting messages for key per the multi-part
// reply protocol: messages accumulate until a DONE sentinel, a non-MULTI
// message, or (when raw is true) the very next message. A listener marked
// persist, and the broadcast listener, never time out; Get simply keeps
// waiting instead of returning ErrTimeout.
//
// A non-persist listener is removed before Get returns, success or
// failure, matching the invariant that every completed request's listener
// is gone by the time its caller observes the result. A persist listener
// is kept after a successful Get, but is removed when Get fails on an
// error record or the shutdown sentinel.
func (r *Registry) Get(key uint32, timeout time.Duration, raw bool) ([]Message, error) {
	r.mu.Lock()
	l, ok := r.listeners[key]
	r.mu.Unlock()
	if !ok {
		return nil, errors.New("registry: no such listener")
	}

	var result []Message
	for {
		var popped any
		var gotTimeout bool
		select {
		case popped = <-l.ch:
		case <-time.After(timeout):
			gotTimeout = true
		}

		if gotTimeout {
			if l.persist || key == BroadcastKey {
				continue
			}
			r.Remove(key)
			return nil, ErrTimeout
		}

		if popped == nil {
			// Shutdown sentinel.
			r.Remove(key)
			return nil, ErrShutdown
		}

		msg := popped.(Message)
		if err := msg.Err(); err != nil && !raw {
			r.Remove(key)
			return nil, err
		}
		if !msg.IsDone() || raw {
			result = append(result, msg)
		}
		if msg.IsDone() || !msg.IsMulti() {
			break
		}
		if raw {
			break
		}
	}

	if !l.persist {
		r.Remove(key)
	}
	return result, nil
}

// Shutdown unblocks every waiter by delivering the sentinel nil value to
// every registered listener. It does not remove the listeners; callers
// blocked in Get remove their own on the way out.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listeners {
		select {
		case l.ch <- nil:
		default:
		}
	}
}
