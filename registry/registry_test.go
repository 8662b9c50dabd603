package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeMsg struct {
	multi bool
	done  bool
	err   error
}

func (m *fakeMsg) IsMulti() bool { return m.multi }
func (m *fakeMsg) IsDone() bool  { return m.done }
func (m *fakeMsg) Err() error    { return m.err }

func TestRegisterDuplicateKey(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, false))
	require.ErrorIs(t, r.Register(1, false), ErrDuplicateKey)
}

func TestDeliverAndGetSingleShot(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, false))

	res := r.Deliver(1, &fakeMsg{multi: false, done: false})
	require.Equal(t, Delivered, res)

	got, err := r.Get(1, time.Second, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.False(t, r.Has(1), "listener removed after non-persist Get completes")
}

func TestDeliverMultiPartTerminatedByDone(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, false))

	r.Deliver(1, &fakeMsg{multi: true, done: false})
	r.Deliver(1, &fakeMsg{multi: true, done: true})

	got, err := r.Get(1, time.Second, false)
	require.NoError(t, err)
	require.Len(t, got, 1, "the DONE sentinel itself is not included in results")
}

func TestGetTimesOutWithoutDone(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, false))
	r.Deliver(1, &fakeMsg{multi: true, done: false})

	_, err := r.Get(1, 30*time.Millisecond, false)
	require.ErrorIs(t, err, ErrTimeout)
	require.False(t, r.Has(1))
}

func TestDeliverAbsentKeyFallsBackToBroadcast(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(BroadcastKey, true))

	res := r.Deliver(42, &fakeMsg{})
	require.Equal(t, DeliveredBroadcast, res)

	got, err := r.Get(BroadcastKey, 30*time.Millisecond, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestDeliverAbsentNoBroadcastDrops(t *testing.T) {
	r := New()
	res := r.Deliver(99, &fakeMsg{})
	require.Equal(t, Absent, res)
}

func TestDeliverFullQueueDrops(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, true))
	for i := 0; i < Capacity; i++ {
		require.Equal(t, Delivered, r.Deliver(1, &fakeMsg{multi: true}))
	}
	require.Equal(t, Full, r.Deliver(1, &fakeMsg{multi: true}))
}

func TestGetSurfacesRequestFailedError(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, false))
	wantErr := errors.New("boom")
	r.Deliver(1, &fakeMsg{err: wantErr})

	_, err := r.Get(1, time.Second, false)
	require.ErrorIs(t, err, wantErr)
	require.False(t, r.Has(1))
}

func TestGetRawReturnsErrorRecordInsteadOfFailing(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, false))
	wantErr := errors.New("boom")
	r.Deliver(1, &fakeMsg{err: wantErr})

	got, err := r.Get(1, time.Second, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestShutdownUnblocksWaiters(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, false))

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Get(1, 5*time.Second, false)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	r.Shutdown()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrShutdown)
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not unblock after Shutdown")
	}
}

func TestPersistListenerKeptAfterGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(BroadcastKey, true))

	done := make(chan struct{})
	go func() {
		r.Deliver(BroadcastKey, &fakeMsg{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delivery should not block")
	}

	got, err := r.Get(BroadcastKey, 10*time.Millisecond, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, r.Has(BroadcastKey), "broadcast listener persists")
}

func TestRemoveReroutesRemainingToBroadcast(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(BroadcastKey, true))
	require.NoError(t, r.Register(5, false))

	r.Deliver(5, &fakeMsg{multi: true})
	r.Remove(5)

	got, err := r.Get(BroadcastKey, 30*time.Millisecond, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
