package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayStreamsUntilEOF(t *testing.T) {
	r := NewReplay(bytes.NewReader([]byte{1, 2, 3, 4, 5}))
	defer r.Close()

	buf := make([]byte, 3)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, buf[:n])

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	assert.NoError(t, r.WriteCommand("!ET0\n"))
}

func TestLoopbackDeliversChunksAndRecordsCommands(t *testing.T) {
	lb := NewLoopback(2)

	require.True(t, lb.Feed([]byte{0xAA, 0xBB, 0xCC}))

	// A small read buffer splits the chunk across calls.
	buf := make([]byte, 2)
	n, err := lb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, buf[:n])
	n, err = lb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCC}, buf[:n])

	// Empty poll cycle.
	n, err = lb.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, lb.WriteCommand("!E+\n"))
	assert.Equal(t, []string{"!E+\n"}, lb.Commands())

	require.NoError(t, lb.Close())
	assert.False(t, lb.Feed([]byte{0x01}))
	_, err = lb.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}
