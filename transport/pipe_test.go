package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeTransportNewPairIsConnected(t *testing.T) {
	p := NewPipe()
	client, host, err := p.NewPair()
	require.NoError(t, err)
	defer client.Close()
	defer host.Close()

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 5)
		n, err := host.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "hello", string(buf[:n]))
		close(done)
	}()

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)
	<-done
}

func TestPipeTransportSetControlRequiresKnownMember(t *testing.T) {
	p := NewPipe()
	_, host, _ := p.NewPair()

	require.ErrorIs(t, p.SetControl(host), ErrNotControl)

	require.NoError(t, p.AddClient(host))
	require.NoError(t, p.SetControl(host))
	require.True(t, p.IsControl(host))
}

func TestPipeTransportStopClosesClients(t *testing.T) {
	p := NewPipe()
	_, host, _ := p.NewPair()
	require.NoError(t, p.AddClient(host))
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())

	_, err := host.Write([]byte("x"))
	require.Error(t, err)
}
