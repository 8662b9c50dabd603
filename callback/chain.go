// Package callback implements the synchronous predicate/action chain that
// observes every parsed message before it is enqueued to any listener.
// Entries run in registration order on the parser goroutine, so they see
// every message, including broadcasts nobody is waiting for.
package callback

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Predicate decides whether an entry's Action runs for msg.
type Predicate func(msg any) bool

// Action is invoked with the message and the entry's bound extra
// arguments when its Predicate returns true.
type Action func(msg any, args ...any)

// Always is a Predicate that matches every message.
func Always(any) bool { return true }

type entry struct {
	predicate Predicate
	action    Action
	args      []any
}

// Token identifies a registered entry for a later Unregister call. Go func
// values aren't comparable, unlike Python bound methods, so identity here
// is an index handed back at registration time rather than the Action
// itself.
type Token int

// Chain is an ordered, append-only (except for targeted removal) list of
// callback entries, run synchronously on the reassembly goroutine.
type Chain struct {
	mu      sync.RWMutex
	log     *log.Logger
	entries []entry
}

// New returns an empty Chain. logger may be nil, in which case a default
// logger is used for recovered panics.
func New(logger *log.Logger) *Chain {
	if logger == nil {
		logger = log.Default().WithPrefix("callback")
	}
	return &Chain{log: logger}
}

// Register appends (predicate, action, args) to the chain and returns a
// Token for Unregister. A nil predicate is treated as Always.
func (c *Chain) Register(predicate Predicate, action Action, args ...any) Token {
	if predicate == nil {
		predicate = Always
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry{predicate: predicate, action: action, args: args})
	return Token(len(c.entries) - 1)
}

// Unregister detaches the entry identified by tok. It is a no-op for an
// out-of-range or already-unregistered token.
func (c *Chain) Unregister(tok Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := int(tok)
	if idx < 0 || idx >= len(c.entries) {
		return
	}
	c.entries[idx].action = nil
	c.entries[idx].predicate = func(any) bool { return false }
}

// Dispatch runs every entry whose predicate matches msg, in registration
// order, on the calling goroutine. Panics from a predicate or action are
// recovered, logged, and do not stop the remaining entries from running;
// a misbehaving callback must never tear down the reassembler.
func (c *Chain) Dispatch(msg any) {
	c.mu.RLock()
	snapshot := make([]entry, len(c.entries))
	copy(snapshot, c.entries)
	c.mu.RUnlock()

	for i, e := range snapshot {
		c.runEntry(i, e, msg)
	}
}

func (c *Chain) runEntry(i int, e entry, msg any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warnf("callback entry %d panicked: %v", i, r)
		}
	}()
	if e.action == nil {
		return
	}
	if e.predicate(msg) {
		e.action(msg, e.args...)
	}
}

// Len returns the number of entries, including unregistered (tombstoned)
// ones; it exists mainly for tests.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
