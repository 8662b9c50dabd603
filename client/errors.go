package client

import "fmt"

// TimeoutError is returned by a request that received no reply within
// its deadline.
type TimeoutError struct {
	Sequence uint32
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("client: request %d timed out", e.Sequence)
}

// ControlRejectedError is returned when a management command's reply
// carried a cmd other than ACK.
type ControlRejectedError struct {
	Want, Got fmt.Stringer
}

func (e *ControlRejectedError) Error() string {
	return fmt.Sprintf("client: control command rejected: want %s, got %s", e.Want, e.Got)
}

// QueueOverflowError describes a dropped message. Nothing in this module
// constructs or returns it; the registry counts drops in its
// dropped_messages_total metric instead.
type QueueOverflowError struct {
	Key uint32
}

func (e *QueueOverflowError) Error() string {
	return fmt.Sprintf("client: listener queue for key %d overflowed", e.Key)
}

// ErrShutdown is returned by Request and RequestTimeout when called after
// Release, and by a request or control call whose wait was ended by the
// registry's shutdown sentinel.
type ErrShutdown struct{}

func (ErrShutdown) Error() string { return "client: operation attempted after release" }

// RealmNotFoundError is returned when a request names no realm (zero) and
// no default realm has been established with Connect. A non-zero realm is
// passed through without checking it against the realm set.
type RealmNotFoundError struct {
	Realm uint32
}

func (e *RealmNotFoundError) Error() string {
	return fmt.Sprintf("client: unknown realm %d", e.Realm)
}
