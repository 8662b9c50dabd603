package callback

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatchRunsMatchingEntriesInOrder(t *testing.T) {
	c := New(nil)
	var order []int

	c.Register(Always, func(msg any, args ...any) { order = append(order, 1) })
	c.Register(Always, func(msg any, args ...any) { order = append(order, 2) })
	c.Register(func(any) bool { return false }, func(msg any, args ...any) { order = append(order, 99) })

	c.Dispatch("x")
	require.Equal(t, []int{1, 2}, order)
}

func TestDispatchPassesBoundArgs(t *testing.T) {
	c := New(nil)
	var got []any
	c.Register(Always, func(msg any, args ...any) { got = args }, "a", 7)

	c.Dispatch("msg")
	require.Equal(t, []any{"a", 7}, got)
}

func TestUnregisterStopsFutureDispatch(t *testing.T) {
	c := New(nil)
	calls := 0
	tok := c.Register(Always, func(msg any, args ...any) { calls++ })

	c.Dispatch("x")
	require.Equal(t, 1, calls)

	c.Unregister(tok)
	c.Dispatch("x")
	require.Equal(t, 1, calls, "unregistered entry must not run again")
}

func TestDispatchRecoversPanicsAndContinues(t *testing.T) {
	c := New(nil)
	ran := false
	c.Register(Always, func(msg any, args ...any) { panic("boom") })
	c.Register(Always, func(msg any, args ...any) { ran = true })

	require.NotPanics(t, func() { c.Dispatch("x") })
	require.True(t, ran, "later entries still run after an earlier one panics")
}
