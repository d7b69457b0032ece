package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tobias-Fischer/dvstream/internal/events"
)

func container() *events.Container {
	p := events.NewPacket[events.Special](1, 0)
	p.Append(events.Special{Type: events.ExternalInputPulse})
	return &events.Container{Special: p}
}

func TestPutGetOrder(t *testing.T) {
	q := New(4, nil)
	first := container()
	second := container()

	require.NoError(t, q.Put(first))
	require.NoError(t, q.Put(second))

	assert.Same(t, first, q.Get(false))
	assert.Same(t, second, q.Get(false))
	assert.Nil(t, q.Get(false))
}

func TestPutFullReportsError(t *testing.T) {
	q := New(1, nil)
	require.NoError(t, q.Put(container()))

	assert.ErrorIs(t, q.Put(container()), ErrFull)
	assert.Equal(t, 1, q.Len())
}

func TestPutNotifies(t *testing.T) {
	notified := 0
	q := New(4, func() { notified++ })

	require.NoError(t, q.Put(container()))
	require.NoError(t, q.Put(container()))

	assert.Equal(t, 2, notified)
}

func TestPutForcedBlocksUntilSpace(t *testing.T) {
	q := New(1, nil)
	require.NoError(t, q.Put(container()))

	forced := container()
	delivered := make(chan bool)
	go func() {
		delivered <- q.PutForced(forced)
	}()

	select {
	case <-delivered:
		t.Fatal("forced put returned while the buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	q.Get(true)
	select {
	case ok := <-delivered:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("forced put never completed")
	}
	assert.Same(t, forced, q.Get(false))
}

func TestCloseAbandonsForcedPut(t *testing.T) {
	q := New(1, nil)
	require.NoError(t, q.Put(container()))

	delivered := make(chan bool)
	go func() {
		delivered <- q.PutForced(container())
	}()

	q.Close()
	select {
	case ok := <-delivered:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("forced put never returned after close")
	}
}

func TestBlockingGetUnblocksOnClose(t *testing.T) {
	q := New(1, nil)

	got := make(chan *events.Container)
	go func() {
		got <- q.Get(true)
	}()

	q.Close()
	select {
	case c := <-got:
		assert.Nil(t, c)
	case <-time.After(time.Second):
		t.Fatal("blocking get never returned after close")
	}
}

func TestGetAfterCloseDeliversBuffered(t *testing.T) {
	q := New(2, nil)
	buffered := container()
	require.NoError(t, q.Put(buffered))

	q.Close()

	assert.Same(t, buffered, q.Get(true))
	assert.Nil(t, q.Get(true))
}

func TestDrainCountsDiscarded(t *testing.T) {
	q := New(4, nil)
	require.NoError(t, q.Put(container()))
	require.NoError(t, q.Put(container()))

	assert.Equal(t, 2, q.Drain())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Drain())
}
