package decoder

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tobias-Fischer/dvstream/internal/events"
)

func edvsRecord(x, y uint8, on bool, ts uint16) []byte {
	b0 := edvsAlignFlag | (y & edvsAddrMask)
	b1 := x & edvsAddrMask
	if on {
		b1 |= edvsAlignFlag
	}
	return []byte{b0, b1, byte(ts >> 8), byte(ts)}
}

func TestEDVSRecordDecode(t *testing.T) {
	p := newPipeline(1, 1_000_000, 8)
	d := NewEDVS(EDVSConfig{SizeX: 128, SizeY: 128}, p.ts, p.b, nil, nil, p.log)

	d.Decode(edvsRecord(7, 5, true, 100))

	c := p.queue.Get(false)
	require.NotNil(t, c)
	require.Equal(t, 1, c.Polarity.Len())
	e := c.Polarity.Events()[0]
	assert.Equal(t, uint16(7), e.X)
	assert.Equal(t, uint16(5), e.Y)
	assert.True(t, e.On)
	assert.Equal(t, int32(100), e.Timestamp)
}

func TestEDVSOffPolarity(t *testing.T) {
	p := newPipeline(1, 1_000_000, 8)
	d := NewEDVS(EDVSConfig{SizeX: 128, SizeY: 128}, p.ts, p.b, nil, nil, p.log)

	d.Decode(edvsRecord(3, 4, false, 10))

	c := p.queue.Get(false)
	require.NotNil(t, c)
	assert.False(t, c.Polarity.Events()[0].On)
}

func TestEDVSRecordSplitAcrossChunks(t *testing.T) {
	p := newPipeline(1, 1_000_000, 8)
	d := NewEDVS(EDVSConfig{SizeX: 128, SizeY: 128}, p.ts, p.b, nil, nil, p.log)

	rec := edvsRecord(9, 2, true, 77)
	d.Decode(rec[:2])
	assert.Nil(t, p.queue.Get(false))
	assert.Len(t, d.pending, 2)

	d.Decode(rec[2:])
	c := p.queue.Get(false)
	require.NotNil(t, c)
	require.Equal(t, 1, c.Polarity.Len())
	e := c.Polarity.Events()[0]
	assert.Equal(t, uint16(9), e.X)
	assert.Equal(t, int32(77), e.Timestamp)
}

func TestEDVSResyncSkipsGarbage(t *testing.T) {
	p := newPipeline(1, 1_000_000, 8)
	d := NewEDVS(EDVSConfig{SizeX: 128, SizeY: 128}, p.ts, p.b, nil, nil, p.log)

	chunk := append([]byte{0x12, 0x34}, edvsRecord(1, 2, true, 5)...)
	d.Decode(chunk)

	c := p.queue.Get(false)
	require.NotNil(t, c)
	require.Equal(t, 1, c.Polarity.Len())
	assert.Equal(t, uint16(1), c.Polarity.Events()[0].X)
	assert.Nil(t, p.queue.Get(false))
}

func TestEDVSSmallWrapOnRegression(t *testing.T) {
	p := newPipeline(1, 1_000_000, 8)
	d := NewEDVS(EDVSConfig{SizeX: 128, SizeY: 128}, p.ts, p.b, nil, nil, p.log)

	d.Decode(edvsRecord(1, 1, true, 100))
	d.Decode(edvsRecord(2, 2, true, 50))

	first := p.queue.Get(false)
	require.NotNil(t, first)
	assert.Equal(t, int32(100), first.Polarity.Events()[0].Timestamp)

	second := p.queue.Get(false)
	require.NotNil(t, second)
	assert.Equal(t, int32(0x10000+50), second.Polarity.Events()[0].Timestamp)
}

func TestEDVSBigWrapEmitsWrapMarker(t *testing.T) {
	p := newPipeline(0, 1_000_000, 8)
	d := NewEDVS(EDVSConfig{SizeX: 128, SizeY: 128}, p.ts, p.b, nil, nil, p.log)
	p.ts.WrapAdd = math.MaxInt32 - 0xFFFF

	d.Decode(edvsRecord(1, 1, true, 100))
	d.Decode(edvsRecord(2, 2, true, 50))

	assert.Equal(t, int32(1), p.ts.WrapOverflow)
	assert.Equal(t, int32(0), p.ts.WrapAdd)

	c := p.queue.Get(false)
	require.NotNil(t, c)
	require.NotNil(t, c.Polarity)
	assert.Equal(t, 1, c.Polarity.Len())
	require.NotNil(t, c.Special)
	require.Equal(t, 1, c.Special.Len())
	assert.Equal(t, events.TimestampWrap, c.Special.Events()[0].Type)
}

func TestEDVSOutOfRangeDropped(t *testing.T) {
	p := newPipeline(1, 1_000_000, 8)
	d := NewEDVS(EDVSConfig{SizeX: 64, SizeY: 64}, p.ts, p.b, nil, nil, p.log)

	d.Decode(edvsRecord(100, 5, true, 10))

	assert.Nil(t, p.queue.Get(false))
}

func TestEDVSTimestampResetForcedDelivery(t *testing.T) {
	p := newPipeline(1, 1_000_000, 1)
	var request atomic.Bool
	var commanded atomic.Bool
	d := NewEDVS(EDVSConfig{SizeX: 128, SizeY: 128}, p.ts, p.b, &request,
		func() { commanded.Store(true) }, p.log)

	// Fill the single exchange slot so the forced delivery must wait.
	d.Decode(edvsRecord(1, 1, true, 10))
	require.Equal(t, 1, p.queue.Len())

	request.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Decode(edvsRecord(2, 2, true, 20))
	}()

	select {
	case <-done:
		t.Fatal("decode finished while the exchange buffer was still full")
	case <-time.After(50 * time.Millisecond):
	}

	first := p.queue.Get(true)
	require.NotNil(t, first)
	require.NotNil(t, first.Polarity)

	reset := p.queue.Get(true)
	require.NotNil(t, reset)
	require.Equal(t, 1, reset.Special.Len())
	marker := reset.Special.Events()[0]
	assert.Equal(t, events.TimestampReset, marker.Type)
	assert.Equal(t, int32(events.TimestampMax), marker.Timestamp)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("decode never finished after the reset was delivered")
	}
	assert.True(t, commanded.Load())
	assert.False(t, request.Load())
	assert.Equal(t, int32(0), p.ts.Current)
}
