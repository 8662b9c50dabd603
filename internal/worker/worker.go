// Package worker provides the halt/wait primitive used by every long-lived
// goroutine in this module (bridge reader, reassembler, transport pumps):
// Go launches a tracked goroutine, Halt signals shutdown, Wait joins.
package worker

import "sync"

// Worker is embedded by types that own one or more background goroutines.
// Call Go to launch a tracked goroutine, Halt to signal it to stop, and
// Wait to block until all tracked goroutines have returned.
type Worker struct {
	sync.WaitGroup

	haltOnce sync.Once
	haltedCh chan struct{}
	initOnce sync.Once
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltedCh = make(chan struct{})
	})
}

// HaltCh returns the channel that closes when Halt is first called.
// Goroutines launched via Go select on this channel to notice shutdown.
func (w *Worker) HaltCh() <-chan struct{} {
	w.init()
	return w.haltedCh
}

// Go launches fn in a goroutine tracked by Wait.
func (w *Worker) Go(fn func()) {
	w.init()
	w.Add(1)
	go func() {
		defer w.Done()
		fn()
	}()
}

// Halt signals HaltCh and is safe to call multiple times or concurrently.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() { close(w.haltedCh) })
}

// IsHalted reports whether Halt has been called.
func (w *Worker) IsHalted() bool {
	w.init()
	select {
	case <-w.haltedCh:
		return true
	default:
		return false
	}
}
