package marshal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	m := &Message{
		Header: Header{Type: KindLink, Flags: FlagMulti | FlagDump, Sequence: 7, PID: 1234},
		Attrs:  []Attr{{Name: "IFNAME", Value: "eth0"}},
	}
	b, err := m.Encode()
	require.NoError(t, err)
	require.Equal(t, b, m.Raw())

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, m.Header, got.Header)
	require.True(t, got.IsMulti())
	require.False(t, got.IsDone())
}

func TestMessageIsDoneOnKindDone(t *testing.T) {
	m := &Message{Header: Header{Type: KindDone}}
	require.True(t, m.IsDone())
	require.Nil(t, m.Err())
}

func TestMessageErrSurfacesErrorCode(t *testing.T) {
	code := int32(-13)
	m := &Message{Header: Header{Type: KindError, ErrorCode: &code}}

	err := m.Err()
	require.Error(t, err)

	var rfe *RequestFailedError
	require.ErrorAs(t, err, &rfe)
	require.Equal(t, -13, rfe.Code)
}

func TestMessageResetClearsRaw(t *testing.T) {
	m := &Message{Header: Header{Type: KindAddr}}
	_, err := m.Encode()
	require.NoError(t, err)
	require.NotNil(t, m.Raw())

	m.Reset()
	require.Nil(t, m.Raw())
}

func TestMessageAttrLookup(t *testing.T) {
	m := &Message{Attrs: []Attr{{Name: "A", Value: 1}, {Name: "B", Value: "two"}}}

	v, ok := m.Attr("B")
	require.True(t, ok)
	require.Equal(t, "two", v)

	_, ok = m.Attr("missing")
	require.False(t, ok)
}
