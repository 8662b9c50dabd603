package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildEnvelopeBytes(t *testing.T, seq uint32, cdata []byte) []byte {
	t.Helper()
	buf, err := Encode(&Envelope{
		Type:     Transport,
		Sequence: seq,
		Attrs:    []Attr{{Kind: CDATA, Value: cdata}},
	})
	require.NoError(t, err)
	return buf
}

func TestReassemblerSingleBlobSingleFrame(t *testing.T) {
	r := NewReassembler()
	frame := buildEnvelopeBytes(t, 1, []byte("link record"))

	frames, shutdown, err := r.Feed(frame)
	require.NoError(t, err)
	require.False(t, shutdown)
	require.Len(t, frames, 1)
	require.Equal(t, frame, frames[0])
}

func TestReassemblerFragmentedAcrossTwoBlobs(t *testing.T) {
	r := NewReassembler()
	frame := buildEnvelopeBytes(t, 1, []byte("0123456789012345678901234"))
	require.Greater(t, len(frame), 16)

	split := 24
	if split > len(frame) {
		split = len(frame) / 2
	}

	frames, shutdown, err := r.Feed(frame[:split])
	require.NoError(t, err)
	require.False(t, shutdown)
	require.Empty(t, frames, "no envelope should be emitted before the tail arrives")

	frames, shutdown, err = r.Feed(frame[split:])
	require.NoError(t, err)
	require.False(t, shutdown)
	require.Len(t, frames, 1)
	require.Equal(t, frame, frames[0])
}

func TestReassemblerMultipleFramesInOneBlob(t *testing.T) {
	r := NewReassembler()
	f1 := buildEnvelopeBytes(t, 1, []byte("a"))
	f2 := buildEnvelopeBytes(t, 2, []byte("b"))

	blob := append(append([]byte{}, f1...), f2...)
	frames, shutdown, err := r.Feed(blob)
	require.NoError(t, err)
	require.False(t, shutdown)
	require.Len(t, frames, 2)
	require.Equal(t, f1, frames[0])
	require.Equal(t, f2, frames[1])
}

func TestReassemblerFramingErrorResyncs(t *testing.T) {
	r := NewReassembler()

	bad := []byte{2, 0, 0, 0, 0, 0, 0, 0} // declared length 2 < 8
	_, shutdown, err := r.Feed(bad)
	require.False(t, shutdown)
	require.Error(t, err)
	var fe *FramingError
	require.ErrorAs(t, err, &fe)

	good := buildEnvelopeBytes(t, 9, []byte("after resync"))
	frames, shutdown, err := r.Feed(good)
	require.NoError(t, err)
	require.False(t, shutdown)
	require.Len(t, frames, 1)
	require.Equal(t, good, frames[0])
}

func TestReassemblerShutdownSentinel(t *testing.T) {
	r := NewReassembler()
	frames, shutdown, err := r.Feed(ShutdownSentinel)
	require.NoError(t, err)
	require.True(t, shutdown)
	require.Nil(t, frames)
}

func TestReassemblerIncompletePrefixRetained(t *testing.T) {
	r := NewReassembler()
	frame := buildEnvelopeBytes(t, 3, []byte("x"))
	require.Greater(t, len(frame), 8)

	frames, shutdown, err := r.Feed(frame[:5]) // shorter than the 8-byte prefix
	require.NoError(t, err)
	require.False(t, shutdown)
	require.Empty(t, frames)

	frames, shutdown, err = r.Feed(frame[5:])
	require.NoError(t, err)
	require.False(t, shutdown)
	require.Len(t, frames, 1)
	require.Equal(t, frame, frames[0])
}
